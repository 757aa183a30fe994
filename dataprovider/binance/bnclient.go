// File: dataprovider/binance/bnclient.go
package binance

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/Bardaqus/signalsbot-sub001/dataprovider"
	utils "github.com/Bardaqus/signalsbot-sub001/utilities"
)

// Client talks to the public Binance spot endpoints. No API key is needed
// for ticker data; the limiter keeps us inside Binance's IP weight budget.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	limiter    *rate.Limiter
	logger     *utils.Logger
	cfg        *utils.BinanceConfig
}

// --- Binance API response structs ---

type bnPriceTicker struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

type bnTicker24h struct {
	Symbol             string `json:"symbol"`
	LastPrice          string `json:"lastPrice"`
	HighPrice          string `json:"highPrice"`
	LowPrice           string `json:"lowPrice"`
	Volume             string `json:"volume"`
	PriceChangePercent string `json:"priceChangePercent"`
}

func NewClient(appCfg *utils.AppConfig, logger *utils.Logger) (*Client, error) {
	if appCfg == nil || appCfg.Binance == nil {
		return nil, errors.New("binance client: AppConfig or BinanceConfig cannot be nil")
	}
	cfg := appCfg.Binance

	if logger == nil {
		logger = utils.NewLogger(utils.Info)
		logger.LogWarn("Binance Client: Logger not provided, using default logger.")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.binance.com"
		logger.LogWarn("Binance Client: BaseURL not set, defaulting to %s", cfg.BaseURL)
	}
	if cfg.RateLimitPerSec <= 0 {
		cfg.RateLimitPerSec = 10
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 5
	}
	if cfg.RequestTimeoutSec <= 0 {
		cfg.RequestTimeoutSec = 10
	}

	client := &Client{
		BaseURL:    cfg.BaseURL,
		HTTPClient: &http.Client{Timeout: time.Duration(cfg.RequestTimeoutSec) * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst),
		logger:     logger,
		cfg:        cfg,
	}

	logger.LogInfo("Binance client initialized. BaseURL: %s, RateLimit: %d req/sec, Burst: %d",
		cfg.BaseURL, cfg.RateLimitPerSec, cfg.RateLimitBurst)
	return client, nil
}

// NormalizeSymbol converts a slashed pair into Binance's compact form:
// BTC/USDT -> BTCUSDT.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(symbol), "/", ""))
}

func (c *Client) makeAPICall(ctx context.Context, endpoint string, params url.Values, result interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait error for %s: %w", endpoint, err)
	}

	fullURLStr := c.BaseURL + endpoint
	parsedURL, err := url.Parse(fullURLStr)
	if err != nil {
		return fmt.Errorf("binance: bad url %s: %w", fullURLStr, err)
	}
	if params == nil {
		params = url.Values{}
	}
	parsedURL.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsedURL.String(), nil)
	if err != nil {
		return fmt.Errorf("binance: create request for %s: %w", parsedURL.String(), err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "SignalsBot/1.0")

	c.logger.LogDebug("Binance Request: %s %s", req.Method, req.URL.Path)

	maxRetries := 3
	if c.cfg.MaxRetries > 0 {
		maxRetries = c.cfg.MaxRetries
	}
	retryDelay := 2 * time.Second
	if c.cfg.RetryDelaySec > 0 {
		retryDelay = time.Duration(c.cfg.RetryDelaySec) * time.Second
	}

	return utils.DoJSONRequest(c.HTTPClient, req, maxRetries, retryDelay, result)
}

// GetPrice returns the latest trade price for a spot symbol.
func (c *Client) GetPrice(ctx context.Context, symbol string) (float64, error) {
	params := url.Values{}
	params.Set("symbol", NormalizeSymbol(symbol))

	var ticker bnPriceTicker
	if err := c.makeAPICall(ctx, "/api/v3/ticker/price", params, &ticker); err != nil {
		return 0, fmt.Errorf("binance GetPrice for %s failed: %w", symbol, err)
	}

	price, err := strconv.ParseFloat(ticker.Price, 64)
	if err != nil || price <= 0 {
		return 0, fmt.Errorf("binance GetPrice: unparseable price %q for %s", ticker.Price, symbol)
	}
	return price, nil
}

// GetTicker24h returns the rolling 24-hour statistics for a spot symbol.
func (c *Client) GetTicker24h(ctx context.Context, symbol string) (dataprovider.Ticker24h, error) {
	params := url.Values{}
	params.Set("symbol", NormalizeSymbol(symbol))

	var raw bnTicker24h
	if err := c.makeAPICall(ctx, "/api/v3/ticker/24hr", params, &raw); err != nil {
		return dataprovider.Ticker24h{}, fmt.Errorf("binance GetTicker24h for %s failed: %w", symbol, err)
	}

	last, err := strconv.ParseFloat(raw.LastPrice, 64)
	if err != nil {
		return dataprovider.Ticker24h{}, fmt.Errorf("binance GetTicker24h: unparseable lastPrice %q for %s", raw.LastPrice, symbol)
	}
	high, err := strconv.ParseFloat(raw.HighPrice, 64)
	if err != nil {
		return dataprovider.Ticker24h{}, fmt.Errorf("binance GetTicker24h: unparseable highPrice %q for %s", raw.HighPrice, symbol)
	}
	low, err := strconv.ParseFloat(raw.LowPrice, 64)
	if err != nil {
		return dataprovider.Ticker24h{}, fmt.Errorf("binance GetTicker24h: unparseable lowPrice %q for %s", raw.LowPrice, symbol)
	}
	volume, err := strconv.ParseFloat(raw.Volume, 64)
	if err != nil {
		return dataprovider.Ticker24h{}, fmt.Errorf("binance GetTicker24h: unparseable volume %q for %s", raw.Volume, symbol)
	}
	changePct, err := strconv.ParseFloat(raw.PriceChangePercent, 64)
	if err != nil {
		return dataprovider.Ticker24h{}, fmt.Errorf("binance GetTicker24h: unparseable priceChangePercent %q for %s", raw.PriceChangePercent, symbol)
	}

	return dataprovider.Ticker24h{
		Symbol:             raw.Symbol,
		LastPrice:          last,
		HighPrice:          high,
		LowPrice:           low,
		Volume:             volume,
		PriceChangePercent: changePct,
	}, nil
}
