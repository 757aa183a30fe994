// File: dataprovider/twelvedata/tdclient_test.go
package twelvedata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bardaqus/signalsbot-sub001/pkg/ratelimit"
	utils "github.com/Bardaqus/signalsbot-sub001/utilities"
)

func newTestClient(t *testing.T, baseURL string, mutate func(*utils.TwelveDataConfig)) *Client {
	t.Helper()
	tdCfg := &utils.TwelveDataConfig{
		APIKey:                 "test-key",
		BackoffBaseMs:          1,
		BackoffMaxMs:           4,
		BaseURL:                baseURL,
		BreakerBaseCooldownSec: 1,
		BreakerMaxCooldownSec:  2,
		BreakerThreshold:       10,
		CooldownOn429Sec:       1,
		MaxInFlight:            4,
		MaxRetries:             3,
		MinIntervalMs:          1,
		RequestTimeoutSec:      5,
		RequestsPerMinute:      1000,
	}
	if mutate != nil {
		mutate(tdCfg)
	}
	cfg := &utils.AppConfig{TwelveData: tdCfg}
	client, err := NewClient(cfg, utils.NewLogger(utils.Error), nil)
	require.NoError(t, err)
	return client
}

func priceHandler(hits *atomic.Int32, price string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"price":"` + price + `"}`))
	}
}

func TestGetPriceParsesStringPrice(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "/price", r.URL.Path)
		assert.Equal(t, "EUR/USD", r.URL.Query().Get("symbol"))
		assert.Equal(t, "test-key", r.URL.Query().Get("apikey"))
		w.Write([]byte(`{"price":"1.0852"}`))
	}))
	defer ts.Close()

	c := newTestClient(t, ts.URL, nil)
	price, reason := c.GetPrice(context.Background(), "EURUSD")
	require.Equal(t, ratelimit.ReasonNone, reason)
	assert.InDelta(t, 1.0852, price, 1e-9)
	assert.Equal(t, int32(1), hits.Load())
}

func TestGetPriceUnparseablePrice(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(priceHandler(&hits, "not-a-number"))
	defer ts.Close()

	c := newTestClient(t, ts.URL, nil)
	_, reason := c.GetPrice(context.Background(), "EURUSD")
	assert.Equal(t, ratelimit.ReasonParseError, reason)
	assert.Equal(t, int32(1), hits.Load(), "parse errors must not retry")
}

func TestPermanentErrorNeverRetries(t *testing.T) {
	t.Run("http 401", func(t *testing.T) {
		var hits atomic.Int32
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer ts.Close()

		c := newTestClient(t, ts.URL, nil)
		_, reason := c.GetPrice(context.Background(), "EURUSD")
		assert.Equal(t, ratelimit.Reason("permanent_error_401"), reason)
		assert.Equal(t, int32(1), hits.Load())
		assert.Equal(t, ratelimit.StateClosed, c.BreakerState(), "permanent failures must not trip the breaker")
	})

	t.Run("invalid api key in body", func(t *testing.T) {
		var hits atomic.Int32
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			w.Write([]byte(`{"status":"error","code":401,"message":"Invalid apikey provided"}`))
		}))
		defer ts.Close()

		c := newTestClient(t, ts.URL, nil)
		_, reason := c.GetPrice(context.Background(), "EURUSD")
		assert.Equal(t, ratelimit.ReasonInvalidAPIKey, reason)
		assert.Equal(t, int32(1), hits.Load())
	})

	t.Run("http 404", func(t *testing.T) {
		var hits atomic.Int32
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			w.WriteHeader(http.StatusNotFound)
		}))
		defer ts.Close()

		c := newTestClient(t, ts.URL, nil)
		_, reason := c.GetPrice(context.Background(), "EURUSD")
		assert.Equal(t, ratelimit.Reason("permanent_error_404"), reason)
		assert.Equal(t, int32(1), hits.Load())
	})
}

func TestTransientErrorRetriesUntilExhausted(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	c := newTestClient(t, ts.URL, nil)
	_, reason := c.GetPrice(context.Background(), "EURUSD")
	assert.Equal(t, ratelimit.Reason("server_error_500"), reason)
	assert.Equal(t, int32(4), hits.Load(), "max_retries=3 means exactly 4 attempts")
}

func TestTransientErrorRecoversOnRetry(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"price":"2650.40"}`))
	}))
	defer ts.Close()

	c := newTestClient(t, ts.URL, nil)
	price, reason := c.GetPrice(context.Background(), "XAUUSD")
	require.Equal(t, ratelimit.ReasonNone, reason)
	assert.InDelta(t, 2650.40, price, 1e-9)
	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, ratelimit.StateClosed, c.BreakerState(), "success must reset the failure count")
}

func TestSoftRateLimitMarkerRetries(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.Write([]byte(`{"status":"error","code":429,"message":"You have run out of API credits"}`))
			return
		}
		w.Write([]byte(`{"price":"1.2500"}`))
	}))
	defer ts.Close()

	c := newTestClient(t, ts.URL, nil)
	price, reason := c.GetPrice(context.Background(), "GBPUSD")
	require.Equal(t, ratelimit.ReasonNone, reason)
	assert.InDelta(t, 1.25, price, 1e-9)
	assert.Equal(t, int32(2), hits.Load())
}

func TestHard429ArmsCooldown(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer ts.Close()

	c := newTestClient(t, ts.URL, nil)
	_, reason := c.GetPrice(context.Background(), "EURUSD")
	assert.Equal(t, ratelimit.ReasonRateLimit429, reason)
	assert.Equal(t, int32(1), hits.Load(), "hard 429 must not retry")

	_, reason = c.GetPrice(context.Background(), "EURUSD")
	assert.Equal(t, ratelimit.ReasonCooldown, reason)
	assert.Equal(t, int32(1), hits.Load(), "cooldown must suppress without network activity")
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	c := newTestClient(t, ts.URL, func(cfg *utils.TwelveDataConfig) {
		cfg.BreakerThreshold = 2
	})
	ctx := context.Background()

	_, reason := c.GetPriceSingleShot(ctx, "EURUSD")
	assert.Equal(t, ratelimit.Reason("server_error_500"), reason)
	_, reason = c.GetPriceSingleShot(ctx, "EURUSD")
	assert.Equal(t, ratelimit.Reason("server_error_500"), reason)
	require.Equal(t, ratelimit.StateOpen, c.BreakerState())

	_, reason = c.GetPriceSingleShot(ctx, "EURUSD")
	assert.Equal(t, ratelimit.ReasonCooldown, reason)
	assert.Equal(t, int32(2), hits.Load(), "open breaker must reject before the network")
}

func TestMinIntervalSpacing(t *testing.T) {
	var stamps []time.Time
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stamps = append(stamps, time.Now())
		w.Write([]byte(`{"price":"1.1000"}`))
	}))
	defer ts.Close()

	c := newTestClient(t, ts.URL, func(cfg *utils.TwelveDataConfig) {
		cfg.MinIntervalMs = 120
	})
	ctx := context.Background()

	_, reason := c.GetPrice(ctx, "EURUSD")
	require.Equal(t, ratelimit.ReasonNone, reason)
	_, reason = c.GetPrice(ctx, "EURUSD")
	require.Equal(t, ratelimit.ReasonNone, reason)

	require.Len(t, stamps, 2)
	assert.GreaterOrEqual(t, stamps[1].Sub(stamps[0]), 110*time.Millisecond)
}

func TestSingleShotMakesOneAttempt(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	c := newTestClient(t, ts.URL, nil)
	_, reason := c.GetPriceSingleShot(context.Background(), "EURUSD")
	assert.Equal(t, ratelimit.Reason("server_error_500"), reason)
	assert.Equal(t, int32(1), hits.Load())
}

func TestNetworkErrorClassification(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:1", nil)
	_, reason := c.GetPriceSingleShot(context.Background(), "EURUSD")
	assert.Equal(t, ratelimit.ReasonNetworkError, reason)
}

func TestTimeoutClassification(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.Write([]byte(`{"price":"1.1000"}`))
	}))
	defer ts.Close()

	c := newTestClient(t, ts.URL, nil)
	c.HTTPClient.Timeout = 50 * time.Millisecond

	_, reason := c.GetPriceSingleShot(context.Background(), "EURUSD")
	assert.Equal(t, ratelimit.ReasonTimeout, reason)
}

func TestGetTimeSeriesParsesAndSorts(t *testing.T) {
	body := `{
		"meta":{"symbol":"EUR/USD","interval":"1h"},
		"values":[
			{"datetime":"2026-08-21 14:00:00","open":"1.0850","high":"1.0870","low":"1.0840","close":"1.0860","volume":""},
			{"datetime":"2026-08-21 13:00:00","open":"1.0830","high":"1.0855","low":"1.0825","close":"1.0850","volume":""}
		],
		"status":"ok"
	}`
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/time_series", r.URL.Path)
		assert.Equal(t, "1h", r.URL.Query().Get("interval"))
		assert.Equal(t, "2", r.URL.Query().Get("outputsize"))
		w.Write([]byte(body))
	}))
	defer ts.Close()

	c := newTestClient(t, ts.URL, nil)
	bars, reason := c.GetTimeSeries(context.Background(), "EURUSD", "1h", 2)
	require.Equal(t, ratelimit.ReasonNone, reason)
	require.Len(t, bars, 2)

	assert.Less(t, bars[0].Timestamp, bars[1].Timestamp, "bars must come back oldest first")
	assert.InDelta(t, 1.0830, bars[0].Open, 1e-9)
	assert.InDelta(t, 1.0860, bars[1].Close, 1e-9)

	wantFirst := time.Date(2026, 8, 21, 13, 0, 0, 0, time.UTC).UnixMilli()
	assert.Equal(t, wantFirst, bars[0].Timestamp)
}

func TestGetTimeSeriesEmptyValues(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"meta":{"symbol":"EUR/USD"},"values":[],"status":"ok"}`))
	}))
	defer ts.Close()

	c := newTestClient(t, ts.URL, nil)
	_, reason := c.GetTimeSeries(context.Background(), "EURUSD", "1h", 10)
	assert.Equal(t, ratelimit.ReasonParseError, reason)
}

func TestNormalizePair(t *testing.T) {
	cases := map[string]string{
		"EURUSD":   "EUR/USD",
		"eurusd":   "EUR/USD",
		"XAUUSD":   "XAU/USD",
		"XAU/USD":  "XAU/USD",
		"BTCUSDT":  "BTCUSDT",
		" GBPUSD ": "GBP/USD",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizePair(in), "input %q", in)
	}
}

func TestNewClientValidation(t *testing.T) {
	logger := utils.NewLogger(utils.Error)

	_, err := NewClient(nil, logger, nil)
	assert.Error(t, err)

	_, err = NewClient(&utils.AppConfig{}, logger, nil)
	assert.Error(t, err, "missing TwelveData section must be rejected")

	_, err = NewClient(&utils.AppConfig{TwelveData: &utils.TwelveDataConfig{BaseURL: "https://api.twelvedata.com"}}, logger, nil)
	assert.Error(t, err, "missing API key must be rejected")
}
