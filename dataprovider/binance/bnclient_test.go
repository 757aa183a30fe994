// File: dataprovider/binance/bnclient_test.go
package binance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	utils "github.com/Bardaqus/signalsbot-sub001/utilities"
)

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	cfg := &utils.AppConfig{Binance: &utils.BinanceConfig{
		BaseURL:           baseURL,
		MaxRetries:        1,
		RateLimitBurst:    10,
		RateLimitPerSec:   100,
		RequestTimeoutSec: 5,
		RetryDelaySec:     1,
	}}
	client, err := NewClient(cfg, utils.NewLogger(utils.Error))
	require.NoError(t, err)
	return client
}

func TestGetPrice(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/ticker/price", r.URL.Path)
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		w.Write([]byte(`{"symbol":"BTCUSDT","price":"64250.10000000"}`))
	}))
	defer ts.Close()

	c := newTestClient(t, ts.URL)
	price, err := c.GetPrice(context.Background(), "BTC/USDT")
	require.NoError(t, err)
	assert.InDelta(t, 64250.10, price, 1e-9)
}

func TestGetPriceBadPayload(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"symbol":"BTCUSDT","price":"garbage"}`))
	}))
	defer ts.Close()

	c := newTestClient(t, ts.URL)
	_, err := c.GetPrice(context.Background(), "BTCUSDT")
	assert.Error(t, err)
}

func TestGetTicker24h(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/ticker/24hr", r.URL.Path)
		assert.Equal(t, "ETHUSDT", r.URL.Query().Get("symbol"))
		w.Write([]byte(`{
			"symbol":"ETHUSDT",
			"lastPrice":"3120.55",
			"highPrice":"3185.00",
			"lowPrice":"3044.10",
			"volume":"420133.7",
			"priceChangePercent":"1.25"
		}`))
	}))
	defer ts.Close()

	c := newTestClient(t, ts.URL)
	ticker, err := c.GetTicker24h(context.Background(), "ETHUSDT")
	require.NoError(t, err)
	assert.Equal(t, "ETHUSDT", ticker.Symbol)
	assert.InDelta(t, 3120.55, ticker.LastPrice, 1e-9)
	assert.InDelta(t, 3185.00, ticker.HighPrice, 1e-9)
	assert.InDelta(t, 3044.10, ticker.LowPrice, 1e-9)
	assert.InDelta(t, 420133.7, ticker.Volume, 1e-9)
	assert.InDelta(t, 1.25, ticker.PriceChangePercent, 1e-9)
}

func TestNormalizeSymbol(t *testing.T) {
	assert.Equal(t, "BTCUSDT", NormalizeSymbol("BTC/USDT"))
	assert.Equal(t, "BTCUSDT", NormalizeSymbol("btcusdt"))
	assert.Equal(t, "SOLUSDT", NormalizeSymbol(" SOL/USDT "))
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(nil, nil)
	assert.Error(t, err)

	_, err = NewClient(&utils.AppConfig{}, nil)
	assert.Error(t, err)
}
