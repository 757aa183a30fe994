// File: signal/engine.go
package signal

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/Bardaqus/signalsbot-sub001/utilities"
)

// Default pair lists, used when a channel does not name its own.
var (
	DefaultForexPairs = []string{
		"EURUSD", "GBPUSD", "USDJPY", "AUDUSD", "USDCAD", "USDCHF", "GBPCAD", "GBPNZD", "XAUUSD",
	}
	DefaultCryptoPairs = []string{
		"BTCUSDT", "ETHUSDT", "BNBUSDT", "ADAUSDT", "SOLUSDT", "XRPUSDT", "DOTUSDT", "DOGEUSDT", "AVAXUSDT", "MATICUSDT",
	}
)

// Engine applies the generation policy: which pair, which side, what levels,
// how many per day and how long until the next one. Entry prices come from
// the caller; the engine never talks to a provider itself.
type Engine struct {
	cfg     utilities.SignalsConfig
	logger  *utilities.Logger
	tracker *Tracker

	mu  sync.Mutex
	rng *rand.Rand
}

// NewEngine validates and normalizes the signals section of the config.
// Channels without pair lists get the defaults for their market; interval and
// cap fields fall back to the 2-5h / 5-per-day policy.
func NewEngine(appCfg *utilities.AppConfig, logger *utilities.Logger, tracker *Tracker) (*Engine, error) {
	if appCfg == nil {
		return nil, errors.New("signal engine: AppConfig cannot be nil")
	}
	if tracker == nil {
		return nil, errors.New("signal engine: tracker cannot be nil")
	}
	if logger == nil {
		logger = utilities.NewLogger(utilities.Info)
		logger.LogWarn("Signal Engine: Logger not provided, using default logger.")
	}

	cfg := appCfg.Signals
	if cfg.BuyRatio <= 0 || cfg.BuyRatio > 1 {
		cfg.BuyRatio = 0.73
	}
	if cfg.WinRateBias <= 0 || cfg.WinRateBias > 1 {
		cfg.WinRateBias = 0.73
	}
	if len(cfg.Channels) == 0 {
		return nil, errors.New("signal engine: at least one channel must be configured")
	}

	// Channels is a copy of the config slice header but shares backing
	// storage with it, so normalize into a fresh slice.
	channels := make([]utilities.ChannelConfig, len(cfg.Channels))
	copy(channels, cfg.Channels)
	cfg.Channels = channels
	for i := range cfg.Channels {
		ch := &cfg.Channels[i]
		if ch.Name == "" {
			return nil, fmt.Errorf("signal engine: channel %d has no name", i)
		}
		if ch.Market != utilities.MarketForex && ch.Market != utilities.MarketCrypto {
			return nil, fmt.Errorf("signal engine: channel %q has unknown market %q", ch.Name, ch.Market)
		}
		if len(ch.Pairs) == 0 {
			if ch.Market == utilities.MarketCrypto {
				ch.Pairs = DefaultCryptoPairs
			} else {
				ch.Pairs = DefaultForexPairs
			}
		}
		if ch.MaxSignalsPerDay <= 0 {
			ch.MaxSignalsPerDay = 5
		}
		if ch.MinIntervalHours <= 0 {
			ch.MinIntervalHours = 2
		}
		if ch.MaxIntervalHours <= 0 {
			ch.MaxIntervalHours = 5
		}
		if ch.MaxIntervalHours < ch.MinIntervalHours {
			logger.LogWarn("Signal Engine: channel %q has max_interval_hours below min_interval_hours, using %.1fh for both.",
				ch.Name, ch.MinIntervalHours)
			ch.MaxIntervalHours = ch.MinIntervalHours
		}
		if ch.TakeProfitLevels <= 0 || ch.TakeProfitLevels > 3 {
			if ch.Market == utilities.MarketCrypto {
				ch.TakeProfitLevels = 3
			} else {
				ch.TakeProfitLevels = 1
			}
		}
	}

	logger.LogInfo("Signal Engine initialized. Channels: %d, BuyRatio: %.2f", len(cfg.Channels), cfg.BuyRatio)
	return &Engine{
		cfg:     cfg,
		logger:  logger,
		tracker: tracker,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// Channels returns the normalized channel configs.
func (e *Engine) Channels() []utilities.ChannelConfig {
	return e.cfg.Channels
}

// BuyRatio returns the target BUY share.
func (e *Engine) BuyRatio() float64 {
	return e.cfg.BuyRatio
}

// Tracker returns the day counters backing this engine.
func (e *Engine) Tracker() *Tracker {
	return e.tracker
}

// CapReached reports whether the channel has sent its daily quota.
func (e *Engine) CapReached(ch utilities.ChannelConfig) bool {
	return e.tracker.Count(ch.Name) >= ch.MaxSignalsPerDay
}

// ChooseSide holds today's BUY share of a channel at the configured target:
// BUY while the share is below it, SELL once it is reached. The first signal
// of a day is always a BUY.
func (e *Engine) ChooseSide(channel string) string {
	total := e.tracker.Count(channel)
	if total == 0 {
		return utilities.SideBuy
	}
	if float64(e.tracker.BuyCount(channel))/float64(total) < e.cfg.BuyRatio {
		return utilities.SideBuy
	}
	return utilities.SideSell
}

// PickPair draws a random pair from the channel's list.
func (e *Engine) PickPair(ch utilities.ChannelConfig) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return ch.Pairs[e.rng.Intn(len(ch.Pairs))]
}

// NextInterval draws the wait before the channel's next signal, uniform
// between the channel's min and max hours at second granularity.
func (e *Engine) NextInterval(ch utilities.ChannelConfig) time.Duration {
	minSec := int64(ch.MinIntervalHours * 3600)
	maxSec := int64(ch.MaxIntervalHours * 3600)
	if maxSec <= minSec {
		return time.Duration(minSec) * time.Second
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return time.Duration(minSec+e.rng.Int63n(maxSec-minSec+1)) * time.Second
}

// Build assembles a signal for the channel at the given entry price: side
// from the ratio policy, levels from the fixed-percentage ladder, take-profits
// truncated to the channel's rung count.
func (e *Engine) Build(ch utilities.ChannelConfig, pair string, entry float64) utilities.Signal {
	side := e.ChooseSide(ch.Name)
	levels := ComputeLevels(ch.Market, pair, side, entry)
	tps := levels.TakeProfits
	if len(tps) > ch.TakeProfitLevels {
		tps = tps[:ch.TakeProfitLevels]
	}
	return utilities.Signal{
		Channel:     ch.Name,
		Market:      ch.Market,
		Pair:        pair,
		Side:        side,
		Entry:       entry,
		StopLoss:    levels.StopLoss,
		TakeProfits: tps,
		CreatedAt:   time.Now().UTC(),
	}
}

// Record persists a sent signal into the day tracker.
func (e *Engine) Record(sig utilities.Signal) error {
	return e.tracker.Append(sig)
}

// SimulateOutcomes draws a win/loss split for n signals at the configured
// win-rate bias.
func (e *Engine) SimulateOutcomes(n int) (wins, losses int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := 0; i < n; i++ {
		if e.rng.Float64() < e.cfg.WinRateBias {
			wins++
		} else {
			losses++
		}
	}
	return wins, losses
}
