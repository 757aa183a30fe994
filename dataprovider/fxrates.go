// File: dataprovider/fxrates.go
package dataprovider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Bardaqus/signalsbot-sub001/utilities"
)

// fxRatesResponse is the /latest payload from fxratesapi.com.
type fxRatesResponse struct {
	Success   bool               `json:"success"`
	Base      string             `json:"base"`
	Rates     map[string]float64 `json:"rates"`
	Timestamp int64              `json:"timestamp"`
	Error     *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// FxRatesClient is the keyless forex-rates fallback. It is only consulted
// when the primary forex source is suppressed or failing, so it stays
// deliberately simple: one endpoint, one retry.
type FxRatesClient struct {
	HTTPClient *http.Client
	logger     *utilities.Logger
	baseURL    string
}

// NewFxRatesClient creates a RateQuoter backed by fxratesapi.com.
func NewFxRatesClient(cfg *utilities.FxRatesConfig, logger *utilities.Logger) (RateQuoter, error) {
	if cfg == nil {
		return nil, errors.New("FxRatesClient: FxRatesConfig cannot be nil")
	}
	if logger == nil {
		logger = utilities.NewLogger(utilities.Info)
		logger.LogWarn("FxRatesClient: Logger not provided, using default.")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.fxratesapi.com"
		logger.LogWarn("FxRatesClient: BaseURL not set, defaulting to %s", baseURL)
	}
	timeout := 10 * time.Second
	if cfg.RequestTimeoutSec > 0 {
		timeout = time.Duration(cfg.RequestTimeoutSec) * time.Second
	}
	return &FxRatesClient{
		HTTPClient: &http.Client{Timeout: timeout},
		logger:     logger,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
	}, nil
}

// GetRate fetches the current base->quote conversion rate.
func (c *FxRatesClient) GetRate(ctx context.Context, base, quote string) (float64, error) {
	base = strings.ToUpper(strings.TrimSpace(base))
	quote = strings.ToUpper(strings.TrimSpace(quote))
	if base == "" || quote == "" {
		return 0, errors.New("fxrates: base and quote are required")
	}

	params := url.Values{}
	params.Set("base", base)
	params.Set("symbols", quote)
	fullURL := c.baseURL + "/latest?" + params.Encode()

	c.logger.LogDebug("Fetching fx rate %s/%s from %s", base, quote, c.baseURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return 0, fmt.Errorf("fxrates: create request failed: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "SignalsBot/1.0")

	var raw fxRatesResponse
	// one retry, short backoff
	if err := utilities.DoJSONRequest(c.HTTPClient, req, 1, 2*time.Second, &raw); err != nil {
		return 0, fmt.Errorf("fxrates: request/decoding failed: %w", err)
	}

	if raw.Error != nil {
		return 0, fmt.Errorf("fxrates API error: %s (%s)", raw.Error.Message, raw.Error.Code)
	}
	if !raw.Success {
		return 0, errors.New("fxrates: API reported failure without detail")
	}

	rate, ok := raw.Rates[quote]
	if !ok || rate <= 0 {
		return 0, fmt.Errorf("fxrates: no usable rate for %s/%s in response", base, quote)
	}
	return rate, nil
}
