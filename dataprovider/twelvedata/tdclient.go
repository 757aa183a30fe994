// File: dataprovider/twelvedata/tdclient.go
package twelvedata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Bardaqus/signalsbot-sub001/dataprovider"
	"github.com/Bardaqus/signalsbot-sub001/pkg/ratelimit"
	utils "github.com/Bardaqus/signalsbot-sub001/utilities"
)

const (
	providerName = "twelvedata"
	maxBodyBytes = 1 << 20
)

// Client wraps the Twelve Data REST API behind an admission gate: minimum
// inter-request spacing, a rolling per-minute budget, a consecutive-failure
// circuit breaker with escalating cooldowns and a 429-armed suppression
// window. Fetches return tagged reasons instead of errors so callers can
// distinguish a local cooldown from a provider failure.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	gate       *ratelimit.Gate
	logger     *utils.Logger
	cfg        *utils.TwelveDataConfig
	store      *dataprovider.SQLiteStore
}

// --- Internal structs for Twelve Data API responses ---

// tdErrorProbe matches the error shape Twelve Data embeds in 200 responses:
// {"status":"error","code":429,"message":"..."}.
type tdErrorProbe struct {
	Status  string `json:"status"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type tdPriceResponse struct {
	Price string `json:"price"`
}

type tdTimeSeriesValue struct {
	Datetime string `json:"datetime"`
	Open     string `json:"open"`
	High     string `json:"high"`
	Low      string `json:"low"`
	Close    string `json:"close"`
	Volume   string `json:"volume"`
}

type tdTimeSeriesResponse struct {
	Meta struct {
		Symbol   string `json:"symbol"`
		Interval string `json:"interval"`
	} `json:"meta"`
	Values []tdTimeSeriesValue `json:"values"`
	Status string              `json:"status"`
}

func NewClient(cfg *utils.AppConfig, logger *utils.Logger, store *dataprovider.SQLiteStore) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("twelvedata client: AppConfig cannot be nil")
	}
	if logger == nil {
		logger = utils.NewLogger(utils.Info)
		logger.LogWarn("TwelveData Client: Logger not provided, using default logger.")
	}

	var tdCfg *utils.TwelveDataConfig
	if cfg.TwelveData != nil {
		tdCfg = cfg.TwelveData
	} else {
		return nil, errors.New("twelvedata client: TwelveDataConfig missing in AppConfig")
	}

	if tdCfg.BaseURL == "" {
		tdCfg.BaseURL = "https://api.twelvedata.com"
		logger.LogWarn("TwelveData Client: BaseURL not set, defaulting to %s", tdCfg.BaseURL)
	}
	if tdCfg.APIKey == "" {
		return nil, errors.New("twelvedata client: APIKey is required in TwelveDataConfig")
	}
	if tdCfg.RequestTimeoutSec <= 0 {
		tdCfg.RequestTimeoutSec = 10
		logger.LogWarn("TwelveData Client: Invalid RequestTimeoutSec, defaulting to 10 seconds")
	}
	if tdCfg.MinIntervalMs <= 0 {
		tdCfg.MinIntervalMs = 400
		logger.LogWarn("TwelveData Client: Invalid MinIntervalMs, defaulting to 400")
	}
	if tdCfg.RequestsPerMinute <= 0 {
		tdCfg.RequestsPerMinute = 8
		logger.LogWarn("TwelveData Client: Invalid RequestsPerMinute, defaulting to 8")
	}
	if tdCfg.MaxRetries <= 0 {
		tdCfg.MaxRetries = 3
		logger.LogWarn("TwelveData Client: Invalid MaxRetries, defaulting to 3")
	}
	if store == nil {
		logger.LogWarn("TwelveData Client: no store provided, bar caching disabled.")
	}

	gate := ratelimit.NewGate(ratelimit.Config{
		MinInterval:   time.Duration(tdCfg.MinIntervalMs) * time.Millisecond,
		Window:        time.Minute,
		PerWindow:     tdCfg.RequestsPerMinute,
		BackoffBase:   time.Duration(tdCfg.BackoffBaseMs) * time.Millisecond,
		BackoffMax:    time.Duration(tdCfg.BackoffMaxMs) * time.Millisecond,
		CooldownOn429: time.Duration(tdCfg.CooldownOn429Sec) * time.Second,
		MaxInFlight:   tdCfg.MaxInFlight,
		Breaker: ratelimit.BreakerConfig{
			Threshold:    tdCfg.BreakerThreshold,
			BaseCooldown: time.Duration(tdCfg.BreakerBaseCooldownSec) * time.Second,
			MaxCooldown:  time.Duration(tdCfg.BreakerMaxCooldownSec) * time.Second,
		},
	}, logger)

	client := &Client{
		BaseURL:    tdCfg.BaseURL,
		APIKey:     tdCfg.APIKey,
		HTTPClient: &http.Client{Timeout: time.Duration(tdCfg.RequestTimeoutSec) * time.Second},
		gate:       gate,
		logger:     logger,
		cfg:        tdCfg,
		store:      store,
	}

	logger.LogInfo("TwelveData client initialized with URL: %s, %d req/min, min interval %dms",
		client.BaseURL, tdCfg.RequestsPerMinute, tdCfg.MinIntervalMs)

	return client, nil
}

// NormalizePair converts a compact 6-letter pair into Twelve Data's
// slash-separated form: EURUSD -> EUR/USD, XAUUSD -> XAU/USD. Pairs that
// already carry a slash pass through unchanged.
func NormalizePair(pair string) string {
	p := strings.ToUpper(strings.TrimSpace(pair))
	if strings.Contains(p, "/") {
		return p
	}
	if len(p) == 6 {
		return p[:3] + "/" + p[3:]
	}
	return p
}

// GetPrice fetches the current price for a forex pair.
func (c *Client) GetPrice(ctx context.Context, pair string) (float64, ratelimit.Reason) {
	return c.getPrice(ctx, pair, -1)
}

// GetPriceSingleShot fetches the current price with retries disabled: one
// attempt, no backoff sleep. Used by latency-sensitive callers such as the
// pre-flight connectivity probe.
func (c *Client) GetPriceSingleShot(ctx context.Context, pair string) (float64, ratelimit.Reason) {
	return c.getPrice(ctx, pair, 0)
}

func (c *Client) getPrice(ctx context.Context, pair string, maxRetriesOverride int) (float64, ratelimit.Reason) {
	params := url.Values{}
	params.Set("symbol", NormalizePair(pair))

	var resp tdPriceResponse
	if reason := c.fetch(ctx, "/price", params, &resp, maxRetriesOverride); !reason.OK() {
		return 0, reason
	}
	price, err := strconv.ParseFloat(resp.Price, 64)
	if err != nil || price <= 0 {
		c.logger.LogError("TwelveData: unparseable price %q for %s", resp.Price, pair)
		return 0, ratelimit.ReasonParseError
	}
	return price, ratelimit.ReasonNone
}

// GetTimeSeries fetches up to count OHLCV bars for a pair at the given
// timeframe, oldest first. Fetched bars are written through to the bar cache
// when a store is attached.
func (c *Client) GetTimeSeries(ctx context.Context, pair, timeframe string, count int) ([]utils.OHLCVBar, ratelimit.Reason) {
	interval, err := utils.ConvertTFToTwelveDataInterval(timeframe)
	if err != nil {
		c.logger.LogError("TwelveData: %v", err)
		return nil, ratelimit.ReasonParseError
	}
	if count <= 0 {
		count = 30
	}

	params := url.Values{}
	params.Set("symbol", NormalizePair(pair))
	params.Set("interval", interval)
	params.Set("outputsize", strconv.Itoa(count))

	var resp tdTimeSeriesResponse
	if reason := c.fetch(ctx, "/time_series", params, &resp, -1); !reason.OK() {
		return nil, reason
	}

	bars := make([]utils.OHLCVBar, 0, len(resp.Values))
	for _, v := range resp.Values {
		bar, convErr := v.toBar()
		if convErr != nil {
			c.logger.LogWarn("TwelveData: skipping malformed bar for %s: %v", pair, convErr)
			continue
		}
		bars = append(bars, bar)
	}
	if len(bars) == 0 {
		return nil, ratelimit.ReasonParseError
	}
	utils.SortBarsByTimestamp(bars)

	if c.store != nil {
		if saveErr := c.store.SaveBars(providerName, NormalizePair(pair), interval, bars); saveErr != nil {
			c.logger.LogWarn("TwelveData: failed to cache %d bars for %s: %v", len(bars), pair, saveErr)
		}
	}
	return bars, ratelimit.ReasonNone
}

// CachedBars reads previously fetched bars from the attached store.
func (c *Client) CachedBars(pair, timeframe string, start, end int64) ([]utils.OHLCVBar, error) {
	if c.store == nil {
		return nil, errors.New("twelvedata client: no store attached")
	}
	interval, err := utils.ConvertTFToTwelveDataInterval(timeframe)
	if err != nil {
		return nil, err
	}
	return c.store.GetBars(providerName, NormalizePair(pair), interval, start, end)
}

// BreakerState exposes the gate's breaker state for diagnostics.
func (c *Client) BreakerState() ratelimit.State {
	return c.gate.BreakerState()
}

// fetch runs the full admission/retry cycle for one logical request.
// maxRetriesOverride < 0 uses the configured maximum; 0 forces single-shot.
// Transient failures (timeouts, network errors, 5xx, soft rate-limit markers
// in a 200 body) count against the breaker and retry with capped, jittered
// backoff. Permanent failures return immediately and leave the breaker
// untouched. A hard HTTP 429 arms the cooldown window and returns without
// retrying, since the window would reject the retry anyway.
func (c *Client) fetch(ctx context.Context, endpoint string, params url.Values, result interface{}, maxRetriesOverride int) ratelimit.Reason {
	maxRetries := c.cfg.MaxRetries
	if maxRetriesOverride >= 0 {
		maxRetries = maxRetriesOverride
	}

	for attempt := 0; ; attempt++ {
		reason, retryable := c.attempt(ctx, endpoint, params, result)
		if reason.OK() {
			c.gate.RecordSuccess()
			return ratelimit.ReasonNone
		}
		if !retryable {
			return reason
		}

		c.gate.RecordFailure()
		if attempt >= maxRetries {
			c.logger.LogError("TwelveData: %s failed after %d attempt(s): %s", endpoint, attempt+1, reason)
			return reason
		}

		delay := c.gate.Backoff(attempt)
		c.logger.LogWarn("TwelveData: %s attempt %d failed (%s), retrying in %s", endpoint, attempt+1, reason, delay.Round(time.Millisecond))
		select {
		case <-ctx.Done():
			return ratelimit.ReasonTimeout
		case <-time.After(delay):
		}
	}
}

// attempt performs one admission plus at most one HTTP round trip. The bool
// reports whether the failure may be retried by fetch.
func (c *Client) attempt(ctx context.Context, endpoint string, params url.Values, result interface{}) (ratelimit.Reason, bool) {
	if reason := c.gate.Acquire(ctx); !reason.OK() {
		// Local rejection: breaker open, armed cooldown or caller cancellation.
		// No network call happened, so nothing counts toward retries.
		return reason, false
	}
	defer c.gate.Release()

	fullURL := c.BaseURL + endpoint
	if !strings.HasPrefix(endpoint, "/") && !strings.HasSuffix(c.BaseURL, "/") {
		fullURL = c.BaseURL + "/" + endpoint
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		c.logger.LogError("TwelveData: failed to create request for %s: %v", fullURL, err)
		return ratelimit.ReasonNetworkError, false
	}

	query := url.Values{}
	for k, vs := range params {
		for _, v := range vs {
			query.Add(k, v)
		}
	}
	query.Set("apikey", c.APIKey)
	req.URL.RawQuery = query.Encode()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "SignalsBot/1.0")
	c.logger.LogDebug("TwelveData Request: %s %s", req.Method, req.URL.Path)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return classifyTransportError(err), true
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		c.gate.StartCooldown(0)
		return ratelimit.ReasonRateLimit429, false
	case resp.StatusCode >= 500:
		return ratelimit.ServerErrorReason(resp.StatusCode), true
	case resp.StatusCode == http.StatusUnauthorized:
		return ratelimit.PermanentErrorReason(resp.StatusCode), false
	case resp.StatusCode == http.StatusForbidden, resp.StatusCode == http.StatusNotFound:
		return ratelimit.PermanentErrorReason(resp.StatusCode), false
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return ratelimit.ClientErrorReason(resp.StatusCode), false
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return classifyTransportError(err), true
	}

	var probe tdErrorProbe
	if json.Unmarshal(body, &probe) == nil && strings.EqualFold(probe.Status, "error") {
		return c.classifyBodyError(probe.Code, probe.Message)
	}

	if err := json.Unmarshal(body, result); err != nil {
		c.logger.LogError("TwelveData: failed to decode %s response: %v", endpoint, err)
		return ratelimit.ReasonParseError, false
	}
	return ratelimit.ReasonNone, false
}

// classifyBodyError maps the error shape Twelve Data embeds in 200 bodies.
// Code 401 means a bad key; code 429 is the soft rate-limit marker, which is
// transient per the retry policy.
func (c *Client) classifyBodyError(code int, message string) (ratelimit.Reason, bool) {
	msg := strings.ToLower(message)
	switch {
	case code == http.StatusUnauthorized || strings.Contains(msg, "apikey") || strings.Contains(msg, "api key"):
		return ratelimit.ReasonInvalidAPIKey, false
	case code == http.StatusTooManyRequests || strings.Contains(msg, "credits") || strings.Contains(msg, "rate limit"):
		return ratelimit.ReasonRateLimit429, true
	case code >= 500:
		return ratelimit.ServerErrorReason(code), true
	case code == http.StatusForbidden || code == http.StatusNotFound:
		return ratelimit.PermanentErrorReason(code), false
	case code >= 400:
		return ratelimit.ClientErrorReason(code), false
	default:
		return ratelimit.ReasonParseError, false
	}
}

func classifyTransportError(err error) ratelimit.Reason {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ratelimit.ReasonTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ratelimit.ReasonTimeout
	}
	return ratelimit.ReasonNetworkError
}

func (v tdTimeSeriesValue) toBar() (utils.OHLCVBar, error) {
	ts, err := time.ParseInLocation("2006-01-02 15:04:05", v.Datetime, time.UTC)
	if err != nil {
		// Daily and weekly series carry date-only stamps.
		ts, err = time.ParseInLocation("2006-01-02", v.Datetime, time.UTC)
		if err != nil {
			return utils.OHLCVBar{}, fmt.Errorf("bad datetime %q: %w", v.Datetime, err)
		}
	}
	open, err := strconv.ParseFloat(v.Open, 64)
	if err != nil {
		return utils.OHLCVBar{}, fmt.Errorf("bad open %q: %w", v.Open, err)
	}
	high, err := strconv.ParseFloat(v.High, 64)
	if err != nil {
		return utils.OHLCVBar{}, fmt.Errorf("bad high %q: %w", v.High, err)
	}
	low, err := strconv.ParseFloat(v.Low, 64)
	if err != nil {
		return utils.OHLCVBar{}, fmt.Errorf("bad low %q: %w", v.Low, err)
	}
	closePx, err := strconv.ParseFloat(v.Close, 64)
	if err != nil {
		return utils.OHLCVBar{}, fmt.Errorf("bad close %q: %w", v.Close, err)
	}
	volume := 0.0
	if v.Volume != "" {
		// Forex series omit volume; crypto and equities carry it.
		volume, err = strconv.ParseFloat(v.Volume, 64)
		if err != nil {
			return utils.OHLCVBar{}, fmt.Errorf("bad volume %q: %w", v.Volume, err)
		}
	}
	return utils.OHLCVBar{
		Timestamp: ts.UnixMilli(),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closePx,
		Volume:    volume,
	}, nil
}
