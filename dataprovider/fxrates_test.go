// File: dataprovider/fxrates_test.go
package dataprovider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bardaqus/signalsbot-sub001/utilities"
)

func newFxClient(t *testing.T, baseURL string) RateQuoter {
	t.Helper()
	c, err := NewFxRatesClient(&utilities.FxRatesConfig{BaseURL: baseURL, RequestTimeoutSec: 5}, utilities.NewLogger(utilities.Error))
	require.NoError(t, err)
	return c
}

func TestGetRate(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/latest", r.URL.Path)
		assert.Equal(t, "EUR", r.URL.Query().Get("base"))
		assert.Equal(t, "USD", r.URL.Query().Get("symbols"))
		w.Write([]byte(`{"success":true,"base":"EUR","rates":{"USD":1.0861},"timestamp":1755950400}`))
	}))
	defer ts.Close()

	c := newFxClient(t, ts.URL)
	rate, err := c.GetRate(context.Background(), "eur", "usd")
	require.NoError(t, err)
	assert.InDelta(t, 1.0861, rate, 1e-9)
}

func TestGetRateAPIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":false,"error":{"code":"invalid_base_currency","message":"Base currency not supported"}}`))
	}))
	defer ts.Close()

	c := newFxClient(t, ts.URL)
	_, err := c.GetRate(context.Background(), "ZZZ", "USD")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Base currency not supported")
}

func TestGetRateMissingQuote(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true,"base":"EUR","rates":{"GBP":0.8567}}`))
	}))
	defer ts.Close()

	c := newFxClient(t, ts.URL)
	_, err := c.GetRate(context.Background(), "EUR", "USD")
	assert.Error(t, err)
}

func TestGetRateValidation(t *testing.T) {
	c := newFxClient(t, "http://127.0.0.1:1")
	_, err := c.GetRate(context.Background(), "", "USD")
	assert.Error(t, err)

	_, err = NewFxRatesClient(nil, nil)
	assert.Error(t, err)
}
