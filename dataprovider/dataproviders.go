package dataprovider

import (
	"context"
	"time"

	"github.com/Bardaqus/signalsbot-sub001/pkg/ratelimit"
	"github.com/Bardaqus/signalsbot-sub001/utilities"
)

// ForexQuoter is the rate-limited forex price surface (Twelve Data). Failures
// come back as tagged reasons so callers can tell a local cooldown from a
// provider error without unwrapping anything.
type ForexQuoter interface {
	GetPrice(ctx context.Context, pair string) (float64, ratelimit.Reason)
	GetTimeSeries(ctx context.Context, pair, timeframe string, count int) ([]utilities.OHLCVBar, ratelimit.Reason)
}

// CryptoQuoter is the crypto price surface (Binance public API).
type CryptoQuoter interface {
	GetPrice(ctx context.Context, symbol string) (float64, error)
	GetTicker24h(ctx context.Context, symbol string) (Ticker24h, error)
}

// RateQuoter is the free forex-rates fallback used when the primary forex
// source is cooling down.
type RateQuoter interface {
	GetRate(ctx context.Context, base, quote string) (float64, error)
}

// PriceQuote is a resolved price with its provenance, passed from the
// resolution chain to the signal engine.
type PriceQuote struct {
	Pair      string
	Price     float64
	Source    string
	Timestamp time.Time
}

// Ticker24h is the 24-hour rolling statistics for one crypto symbol.
type Ticker24h struct {
	Symbol             string
	LastPrice          float64
	HighPrice          float64
	LowPrice           float64
	Volume             float64
	PriceChangePercent float64
}

// PerformanceRow is one channel's daily delivery/outcome tally.
type PerformanceRow struct {
	Date    string
	Channel string
	Sent    int
	Wins    int
	Losses  int
}
