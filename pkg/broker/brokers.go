// File: pkg/broker/brokers.go
package broker

import (
	"context"
	"time"
)

// Broker defines the interface for a trading venue's market data feed.
type Broker interface {
	// Connect establishes the session, including venue authentication.
	Connect(ctx context.Context) error

	// GetQuote retrieves the most recent quote for a symbol, subscribing
	// to the venue's feed on first use.
	GetQuote(ctx context.Context, symbol string) (Quote, error)

	// Close tears down the session and its background tasks.
	Close() error
}

// Quote is a venue quote for one symbol. Price is the bid/ask midpoint.
type Quote struct {
	Symbol    string    `json:"symbol"`
	Bid       float64   `json:"bid"`
	Ask       float64   `json:"ask"`
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}
