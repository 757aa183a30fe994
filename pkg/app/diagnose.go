// File: pkg/app/diagnose.go
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Bardaqus/signalsbot-sub001/dataprovider"
	"github.com/Bardaqus/signalsbot-sub001/dataprovider/binance"
	td "github.com/Bardaqus/signalsbot-sub001/dataprovider/twelvedata"
	"github.com/Bardaqus/signalsbot-sub001/notification/telegram"
	"github.com/Bardaqus/signalsbot-sub001/pkg/broker/ctrader"
	"github.com/Bardaqus/signalsbot-sub001/signal"
	"github.com/Bardaqus/signalsbot-sub001/utilities"
)

// Diagnose probes every configured component and prints one status line per
// check. Price sources only warn when they fail; Telegram and the store must
// come up for a zero exit.
func Diagnose(ctx context.Context, cfg *utilities.AppConfig, logger *utilities.Logger) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if logger == nil {
		logger = utilities.NewLogger(utilities.Info)
	}

	fmt.Printf("SignalsBot v%s diagnostics\n", cfg.Version)
	fmt.Printf("Channels: %d configured\n", len(cfg.Signals.Channels))
	for _, ch := range cfg.Signals.Channels {
		fmt.Printf("   - %s (%s) chat %d\n", ch.Name, ch.Market, ch.ChatID)
	}
	fmt.Println()

	var hard []error

	if notifier, err := telegram.NewClient(&cfg.Telegram, logger); err != nil {
		fmt.Printf("❌ Telegram: %v\n", err)
		hard = append(hard, fmt.Errorf("telegram: %w", err))
	} else {
		fmt.Printf("✅ Telegram: authorized as @%s\n", notifier.BotUsername())
	}

	var store *dataprovider.SQLiteStore
	if s, err := dataprovider.NewSQLiteStore(cfg.DB, logger); err != nil {
		fmt.Printf("❌ SQLite: %v\n", err)
		hard = append(hard, fmt.Errorf("sqlite: %w", err))
	} else if err := s.InitSchema(); err != nil {
		fmt.Printf("❌ SQLite: %v\n", err)
		hard = append(hard, fmt.Errorf("sqlite: %w", err))
		s.Close()
	} else {
		fmt.Printf("✅ SQLite: %s\n", cfg.DB.DBPath)
		store = s
		defer store.Close()
	}

	statePath := cfg.Signals.StatePath
	if statePath == "" {
		statePath = "signals.json"
	}
	if tracker, err := signal.NewTracker(statePath, logger); err != nil {
		fmt.Printf("⚠️  State file: %v\n", err)
	} else {
		total := 0
		for _, ch := range cfg.Signals.Channels {
			total += tracker.Count(ch.Name)
		}
		fmt.Printf("✅ State file: %s (%d signals today)\n", statePath, total)
	}

	if cfg.TwelveData == nil || cfg.TwelveData.APIKey == "" {
		fmt.Println("⚠️  Twelve Data: not configured")
	} else if client, err := td.NewClient(cfg, logger, store); err != nil {
		fmt.Printf("⚠️  Twelve Data: %v\n", err)
	} else {
		probeCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		price, reason := client.GetPriceSingleShot(probeCtx, "EUR/USD")
		cancel()
		if reason.OK() {
			fmt.Printf("✅ Twelve Data: EUR/USD = %.5f\n", price)
		} else {
			fmt.Printf("⚠️  Twelve Data: probe failed (%s)\n", reason)
		}
	}

	fxCfg := cfg.FxRates
	if fxCfg == nil {
		fxCfg = &utilities.FxRatesConfig{}
	}
	if rates, err := dataprovider.NewFxRatesClient(fxCfg, logger); err != nil {
		fmt.Printf("⚠️  FxRates: %v\n", err)
	} else {
		probeCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		rate, err := rates.GetRate(probeCtx, "EUR", "USD")
		cancel()
		if err != nil {
			fmt.Printf("⚠️  FxRates: probe failed: %v\n", err)
		} else {
			fmt.Printf("✅ FxRates: EUR/USD = %.5f\n", rate)
		}
	}

	if cfg.Binance == nil {
		cfg.Binance = &utilities.BinanceConfig{}
	}
	if bn, err := binance.NewClient(cfg, logger); err != nil {
		fmt.Printf("⚠️  Binance: %v\n", err)
	} else {
		probeCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		price, err := bn.GetPrice(probeCtx, "BTCUSDT")
		cancel()
		if err != nil {
			fmt.Printf("⚠️  Binance: probe failed: %v\n", err)
		} else {
			fmt.Printf("✅ Binance: BTCUSDT = %.2f\n", price)
		}
	}

	if cfg.CTrader == nil || cfg.CTrader.ClientID == "" || cfg.CTrader.AccountID <= 0 {
		fmt.Println("⚠️  cTrader: not configured")
	} else {
		diagnoseCTrader(ctx, cfg, logger)
	}

	if len(hard) > 0 {
		fmt.Printf("\n%d check(s) failed.\n", len(hard))
		return errors.Join(hard...)
	}
	fmt.Println("\nAll required checks passed.")
	return nil
}

func diagnoseCTrader(ctx context.Context, cfg *utilities.AppConfig, logger *utilities.Logger) {
	tokens, err := ctrader.NewTokenSource(cfg.CTrader, logger)
	if err != nil {
		fmt.Printf("⚠️  cTrader: %v\n", err)
		return
	}
	session, err := ctrader.NewSession(cfg, logger, tokens)
	if err != nil {
		fmt.Printf("⚠️  cTrader: %v\n", err)
		return
	}
	defer session.Close()

	connectCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()
	if err := session.Connect(connectCtx); err != nil {
		fmt.Printf("⚠️  cTrader: connect failed: %v\n", err)
		return
	}
	quote, err := session.GetQuote(connectCtx, "EURUSD")
	if err != nil {
		fmt.Printf("⚠️  cTrader: connected, but no EURUSD quote: %v\n", err)
		return
	}
	fmt.Printf("✅ cTrader: EURUSD bid %.5f / ask %.5f\n", quote.Bid, quote.Ask)
}
