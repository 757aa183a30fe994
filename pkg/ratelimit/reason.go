// File: pkg/ratelimit/reason.go
package ratelimit

import (
	"fmt"
	"strings"
)

// Reason tags why a fetch was rejected or failed. Callers receive a Reason
// alongside the zero value instead of an error so that expected conditions
// (cooldowns, throttling, provider outages) stay distinguishable without
// unwrapping error chains.
type Reason string

const (
	ReasonNone          Reason = ""
	ReasonCooldown      Reason = "cooldown"
	ReasonRateLimit429  Reason = "rate_limit_429"
	ReasonTimeout       Reason = "timeout"
	ReasonNetworkError  Reason = "network_error"
	ReasonParseError    Reason = "parse_error"
	ReasonInvalidAPIKey Reason = "invalid_api_key"
)

// ServerErrorReason tags a 5xx response, e.g. "server_error_503".
func ServerErrorReason(code int) Reason {
	return Reason(fmt.Sprintf("server_error_%d", code))
}

// ClientErrorReason tags a non-retryable 4xx response outside the permanent set.
func ClientErrorReason(code int) Reason {
	return Reason(fmt.Sprintf("client_error_%d", code))
}

// PermanentErrorReason tags the hard-permanent status codes (401/403/404).
func PermanentErrorReason(code int) Reason {
	return Reason(fmt.Sprintf("permanent_error_%d", code))
}

// OK reports whether the fetch succeeded.
func (r Reason) OK() bool {
	return r == ReasonNone
}

// Transient reports whether the failure is worth retrying with backoff:
// timeouts, network errors, 5xx responses and soft rate-limit markers found
// in a 200 body. Everything else returns immediately to the caller.
func (r Reason) Transient() bool {
	switch r {
	case ReasonTimeout, ReasonNetworkError, ReasonRateLimit429:
		return true
	}
	return strings.HasPrefix(string(r), "server_error_")
}

// Suppressed reports whether the call was rejected locally before any network
// activity (breaker open or an armed provider cooldown).
func (r Reason) Suppressed() bool {
	return r == ReasonCooldown
}

func (r Reason) String() string {
	if r == ReasonNone {
		return "ok"
	}
	return string(r)
}
