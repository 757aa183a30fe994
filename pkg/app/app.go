// File: pkg/app/app.go
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Bardaqus/signalsbot-sub001/dataprovider"
	"github.com/Bardaqus/signalsbot-sub001/dataprovider/binance"
	td "github.com/Bardaqus/signalsbot-sub001/dataprovider/twelvedata"
	"github.com/Bardaqus/signalsbot-sub001/notification/telegram"
	"github.com/Bardaqus/signalsbot-sub001/pkg/broker"
	"github.com/Bardaqus/signalsbot-sub001/pkg/broker/ctrader"
	"github.com/Bardaqus/signalsbot-sub001/signal"
	"github.com/Bardaqus/signalsbot-sub001/utilities"
)

// errCoolingDown marks a cycle where every usable forex source was either
// suppressed by its admission gate or unreachable. The scheduler retries on
// the next tick instead of treating it as a delivery failure.
var errCoolingDown = errors.New("price sources cooling down")

// Messenger is the delivery surface the scheduler posts through.
type Messenger interface {
	SendMessage(chatID int64, text string) error
	SendSignal(chatID int64, text string) error
	SendSummary(chatID int64, text string) error
}

// BotState carries everything the scheduler loop needs between cycles.
type BotState struct {
	config   *utilities.AppConfig
	logger   *utilities.Logger
	store    *dataprovider.SQLiteStore
	notifier Messenger
	engine   *signal.Engine

	forex      dataprovider.ForexQuoter
	cryptoFeed dataprovider.CryptoQuoter
	rates      dataprovider.RateQuoter
	spot       broker.Broker

	stateMutex      sync.Mutex
	nextDue         map[string]time.Time
	lastSummaryDate string
	summaryHour     int
	summaryMinute   int
}

// Run wires every component together and drives the scheduler until ctx is
// cancelled. Hard pre-flight failures (Telegram auth, SQLite, engine config)
// abort; degraded data sources only narrow the price resolution chain.
func Run(ctx context.Context, cfg *utilities.AppConfig, logger *utilities.Logger) error {
	if cfg == nil {
		return errors.New("pre-flight check failed: config is nil")
	}
	if logger == nil {
		logger = utilities.NewLogger(utilities.Info)
	}
	if strings.TrimSpace(cfg.Telegram.BotToken) == "" {
		return errors.New("pre-flight check failed: telegram.bot_token is not set (set TELEGRAM_BOT_TOKEN)")
	}
	if len(cfg.Signals.Channels) == 0 {
		return errors.New("pre-flight check failed: no channels configured in config.json")
	}

	logger.LogInfo("AppRun: Starting pre-flight checks...")

	state, cleanup, err := buildState(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	if cfg.Signals.SummaryChatID != 0 {
		if err := state.notifier.SendMessage(cfg.Signals.SummaryChatID, fmt.Sprintf("✅ SignalsBot v%s starting up", cfg.Version)); err != nil {
			logger.LogWarn("AppRun: startup notice failed: %v", err)
		}
		defer state.notifier.SendMessage(cfg.Signals.SummaryChatID, "🛑 SignalsBot shutting down")
	}

	now := time.Now().UTC()
	state.stateMutex.Lock()
	for _, ch := range state.engine.Channels() {
		state.nextDue[ch.Name] = now
	}
	// A restart after today's summary slot must not replay the summary.
	if !now.Before(state.summaryTarget(now)) {
		state.lastSummaryDate = now.Format("2006-01-02")
	}
	state.stateMutex.Unlock()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	logger.LogInfo("AppRun: Pre-flight checks complete. Scheduler ticking every 60s.")
	processCycle(ctx, state)
	for {
		select {
		case <-ctx.Done():
			logger.LogInfo("AppRun: context cancelled, shutting down.")
			return nil
		case <-ticker.C:
			processCycle(ctx, state)
		}
	}
}

// SendNow runs one generation pass for every channel, honoring daily caps but
// ignoring due times, then returns. Used by the send-now command.
func SendNow(ctx context.Context, cfg *utilities.AppConfig, logger *utilities.Logger) error {
	if cfg == nil {
		return errors.New("pre-flight check failed: config is nil")
	}
	if logger == nil {
		logger = utilities.NewLogger(utilities.Info)
	}
	if strings.TrimSpace(cfg.Telegram.BotToken) == "" {
		return errors.New("pre-flight check failed: telegram.bot_token is not set (set TELEGRAM_BOT_TOKEN)")
	}

	state, cleanup, err := buildState(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	var errs []error
	for _, ch := range state.engine.Channels() {
		if state.engine.CapReached(ch) {
			logger.LogInfo("SendNow: channel %q already at its daily cap, skipping.", ch.Name)
			continue
		}
		if err := state.sendSignal(ctx, ch); err != nil {
			errs = append(errs, fmt.Errorf("channel %q: %w", ch.Name, err))
		}
	}
	return errors.Join(errs...)
}

// buildState constructs the store, tracker, engine, notifier and every price
// source. The returned cleanup closes what was opened.
func buildState(ctx context.Context, cfg *utilities.AppConfig, logger *utilities.Logger) (*BotState, func(), error) {
	notifier, err := telegram.NewClient(&cfg.Telegram, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("pre-flight check failed: %w", err)
	}

	store, err := dataprovider.NewSQLiteStore(cfg.DB, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("pre-flight check failed: sqlite store init failed: %w", err)
	}
	if err := store.InitSchema(); err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("pre-flight check failed: could not initialize db schema: %w", err)
	}
	retention := 7
	if cfg.TwelveData != nil && cfg.TwelveData.CacheRetentionDays > 0 {
		retention = cfg.TwelveData.CacheRetentionDays
	}
	go store.StartScheduledCleanup(ctx, 24*time.Hour, "twelvedata", retention)

	statePath := cfg.Signals.StatePath
	if statePath == "" {
		statePath = "signals.json"
	}
	tracker, err := signal.NewTracker(statePath, logger)
	if err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("pre-flight check failed: %w", err)
	}
	engine, err := signal.NewEngine(cfg, logger, tracker)
	if err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("pre-flight check failed: %w", err)
	}

	state := &BotState{
		config:   cfg,
		logger:   logger,
		store:    store,
		notifier: notifier,
		engine:   engine,
		nextDue:  make(map[string]time.Time),
	}

	sh, sm, tErr := signal.ParseSummaryTime(cfg.Signals.SummaryTimeUTC)
	if tErr != nil {
		logger.LogWarn("AppRun: %v; using 14:30 UTC.", tErr)
	}
	state.summaryHour, state.summaryMinute = sh, sm

	// Forex sources: Twelve Data first, free rates API as fallback.
	if cfg.TwelveData != nil && cfg.TwelveData.APIKey != "" {
		tdClient, tdErr := td.NewClient(cfg, logger, store)
		if tdErr != nil {
			logger.LogWarn("Pre-Flight: Twelve Data client init failed (%v), continuing with fallback sources.", tdErr)
		} else {
			probeCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			price, reason := tdClient.GetPriceSingleShot(probeCtx, "EUR/USD")
			cancel()
			if reason.OK() {
				logger.LogInfo("Pre-Flight: Twelve Data probe passed (EUR/USD=%.5f).", price)
			} else {
				logger.LogWarn("Pre-Flight: Twelve Data probe failed (%s). Client stays active; the rates fallback covers outages.", reason)
			}
			state.forex = tdClient
		}
	} else {
		logger.LogWarn("Pre-Flight: no Twelve Data API key configured; forex prices use the rates fallback only.")
	}

	if cfg.FxRates == nil {
		cfg.FxRates = &utilities.FxRatesConfig{}
	}
	rates, ratesErr := dataprovider.NewFxRatesClient(cfg.FxRates, logger)
	if ratesErr != nil {
		logger.LogWarn("Pre-Flight: rates fallback unavailable: %v", ratesErr)
	} else {
		state.rates = rates
	}

	// Crypto source, only when a crypto channel exists.
	for _, ch := range engine.Channels() {
		if ch.Market != utilities.MarketCrypto {
			continue
		}
		if cfg.Binance == nil {
			logger.LogWarn("Pre-Flight: binance section missing from config, using defaults.")
			cfg.Binance = &utilities.BinanceConfig{}
		}
		bn, bnErr := binance.NewClient(cfg, logger)
		if bnErr != nil {
			logger.LogWarn("Pre-Flight: Binance client init failed (%v); crypto channels will be skipped.", bnErr)
		} else {
			state.cryptoFeed = bn
		}
		break
	}

	// Live spot prices are optional; a failed dial only degrades forex
	// entries to REST prices.
	var session *ctrader.Session
	if cfg.CTrader != nil && cfg.CTrader.ClientID != "" && cfg.CTrader.AccountID > 0 {
		tokens, tokErr := ctrader.NewTokenSource(cfg.CTrader, logger)
		if tokErr != nil {
			logger.LogWarn("Pre-Flight: cTrader token source init failed: %v", tokErr)
		} else if s, sesErr := ctrader.NewSession(cfg, logger, tokens); sesErr != nil {
			logger.LogWarn("Pre-Flight: cTrader session init failed: %v", sesErr)
		} else if connErr := s.Connect(ctx); connErr != nil {
			logger.LogWarn("Pre-Flight: cTrader connect failed (%v); continuing without live spot prices.", connErr)
		} else {
			logger.LogInfo("Pre-Flight: cTrader session connected.")
			session = s
			state.spot = s
		}
	} else {
		logger.LogInfo("Pre-Flight: cTrader not configured; forex entries use REST prices.")
	}

	cleanup := func() {
		if session != nil {
			session.Close()
		}
		store.Close()
	}
	return state, cleanup, nil
}

// processCycle runs one scheduler pass: send due signals, then check the
// summary slot.
func processCycle(ctx context.Context, s *BotState) {
	now := time.Now().UTC()
	for _, ch := range s.engine.Channels() {
		s.stateMutex.Lock()
		due := s.nextDue[ch.Name]
		s.stateMutex.Unlock()
		if now.Before(due) {
			continue
		}
		if s.engine.CapReached(ch) {
			s.logger.LogDebug("Cycle: channel %q is at its daily cap.", ch.Name)
			continue
		}

		if err := s.sendSignal(ctx, ch); err != nil {
			if errors.Is(err, errCoolingDown) {
				// Not a failure: the gate will readmit on a later tick.
				s.logger.LogInfo("Cycle: channel %q skipped, %v.", ch.Name, err)
				continue
			}
			s.logger.LogError("Cycle: channel %q: %v", ch.Name, err)
			s.reschedule(ch.Name, now.Add(5*time.Minute))
			continue
		}

		next := now.Add(s.engine.NextInterval(ch))
		s.reschedule(ch.Name, next)
		s.logger.LogInfo("Cycle: channel %q next signal around %s UTC.", ch.Name, next.Format("15:04"))
	}
	s.maybeSendSummary(now)
}

func (s *BotState) reschedule(channel string, at time.Time) {
	s.stateMutex.Lock()
	s.nextDue[channel] = at
	s.stateMutex.Unlock()
}

// sendSignal generates, posts and records one signal for the channel.
func (s *BotState) sendSignal(ctx context.Context, ch utilities.ChannelConfig) error {
	pair := s.engine.PickPair(ch)
	quote, err := s.resolvePrice(ctx, ch, pair)
	if err != nil {
		return fmt.Errorf("resolving %s price: %w", pair, err)
	}

	sig := s.engine.Build(ch, pair, quote.Price)
	if err := s.notifier.SendSignal(ch.ChatID, signal.FormatSignal(sig)); err != nil {
		return fmt.Errorf("delivering %s signal: %w", pair, err)
	}

	if err := s.engine.Record(sig); err != nil {
		s.logger.LogError("Signal sent but not tracked for %q: %v", ch.Name, err)
	}
	if s.store != nil {
		date := sig.CreatedAt.UTC().Format("2006-01-02")
		if _, err := s.store.SaveSignal(&sig); err != nil {
			s.logger.LogError("Signal sent but not saved for %q: %v", ch.Name, err)
		}
		if err := s.store.RecordDelivery(date, ch.Name); err != nil {
			s.logger.LogError("Delivery tally update failed for %q: %v", ch.Name, err)
		}
	}
	s.logger.LogInfo("Signal sent: %s %s %s @ %s via %s (%d/%d today)", ch.Name, sig.Pair, sig.Side,
		signal.FormatPrice(sig.Market, sig.Pair, sig.Entry), quote.Source,
		s.engine.Tracker().Count(ch.Name), ch.MaxSignalsPerDay)
	return nil
}

// resolvePrice finds an entry price for the pair. Crypto goes straight to
// Binance; forex walks the chain live cTrader spot, Twelve Data, free rates
// API.
func (s *BotState) resolvePrice(ctx context.Context, ch utilities.ChannelConfig, pair string) (dataprovider.PriceQuote, error) {
	if ch.Market == utilities.MarketCrypto {
		if s.cryptoFeed == nil {
			return dataprovider.PriceQuote{}, errors.New("no crypto price source configured")
		}
		price, err := s.cryptoFeed.GetPrice(ctx, pair)
		if err != nil {
			return dataprovider.PriceQuote{}, err
		}
		return dataprovider.PriceQuote{Pair: pair, Price: price, Source: "binance", Timestamp: time.Now().UTC()}, nil
	}

	if s.spot != nil {
		quote, err := s.spot.GetQuote(ctx, pair)
		if err == nil && quote.Price > 0 {
			s.logger.LogDebug("Price: %s from cTrader spot: %.5f", pair, quote.Price)
			return dataprovider.PriceQuote{Pair: pair, Price: quote.Price, Source: "ctrader", Timestamp: quote.Timestamp}, nil
		}
		if err != nil {
			s.logger.LogDebug("Price: cTrader quote for %s unavailable (%v), trying Twelve Data.", pair, err)
		}
	}

	suppressed := false
	if s.forex != nil {
		price, reason := s.forex.GetPrice(ctx, td.NormalizePair(pair))
		if reason.OK() {
			return dataprovider.PriceQuote{Pair: pair, Price: price, Source: "twelvedata", Timestamp: time.Now().UTC()}, nil
		}
		suppressed = reason.Suppressed()
		if suppressed {
			s.logger.LogInfo("Price: Twelve Data cooling down for %s (%s), trying rates fallback.", pair, reason)
		} else {
			s.logger.LogWarn("Price: Twelve Data failed for %s (%s), trying rates fallback.", pair, reason)
		}
	}

	if s.rates != nil && len(pair) == 6 {
		rate, err := s.rates.GetRate(ctx, pair[:3], pair[3:])
		if err == nil {
			return dataprovider.PriceQuote{Pair: pair, Price: rate, Source: "fxrates", Timestamp: time.Now().UTC()}, nil
		}
		s.logger.LogWarn("Price: rates fallback failed for %s: %v", pair, err)
	}

	if suppressed {
		return dataprovider.PriceQuote{}, errCoolingDown
	}
	return dataprovider.PriceQuote{}, fmt.Errorf("no price source available for %s", pair)
}

func (s *BotState) summaryTarget(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day(), s.summaryHour, s.summaryMinute, 0, 0, time.UTC)
}

// maybeSendSummary posts the daily report once per UTC day after the
// configured wall-clock slot and folds the tallies into the performance
// table.
func (s *BotState) maybeSendSummary(now time.Time) {
	if s.config.Signals.SummaryChatID == 0 {
		return
	}
	today := now.Format("2006-01-02")

	s.stateMutex.Lock()
	alreadySent := s.lastSummaryDate == today
	s.stateMutex.Unlock()
	if alreadySent || now.Before(s.summaryTarget(now)) {
		return
	}

	tallies := s.engine.DailyTallies()
	msg := signal.BuildDailySummary(today, tallies, now)
	if err := s.notifier.SendSummary(s.config.Signals.SummaryChatID, msg); err != nil {
		// Leave lastSummaryDate unset so the next tick retries.
		s.logger.LogError("Daily summary delivery failed: %v", err)
		return
	}

	s.stateMutex.Lock()
	s.lastSummaryDate = today
	s.stateMutex.Unlock()

	if s.store != nil {
		for _, t := range tallies {
			for i := 0; i < t.Wins; i++ {
				if err := s.store.RecordOutcome(today, t.Channel, true); err != nil {
					s.logger.LogError("Recording win tally for %q failed: %v", t.Channel, err)
					break
				}
			}
			for i := 0; i < t.Losses; i++ {
				if err := s.store.RecordOutcome(today, t.Channel, false); err != nil {
					s.logger.LogError("Recording loss tally for %q failed: %v", t.Channel, err)
					break
				}
			}
		}
	}
	s.logger.LogInfo("Daily summary sent to chat %d.", s.config.Signals.SummaryChatID)
}
