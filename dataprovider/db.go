// File: dataprovider/db.go
package dataprovider

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Bardaqus/signalsbot-sub001/utilities"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore persists cached OHLCV bars, generated signals and per-channel
// performance tallies. Bars are a cache; signals and performance are history.
type SQLiteStore struct {
	db     *sql.DB
	logger *utilities.Logger
}

func NewSQLiteStore(cfg utilities.DatabaseConfig, logger *utilities.Logger) (*SQLiteStore, error) {
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("sqlite store: database_path is not configured")
	}
	if logger == nil {
		logger = utilities.NewLogger(utilities.Info)
		logger.LogWarn("SQLiteStore: logger not provided, using default.")
	}
	db, err := sql.Open("sqlite3", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: open %s failed: %w", cfg.DBPath, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite store: ping %s failed: %w", cfg.DBPath, err)
	}
	return &SQLiteStore{db: db, logger: logger}, nil
}

func (s *SQLiteStore) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS ohlcv_bars (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		provider TEXT NOT NULL,
		pair TEXT NOT NULL,
		timeframe TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		open REAL NOT NULL,
		high REAL NOT NULL,
		low REAL NOT NULL,
		close REAL NOT NULL,
		volume REAL NOT NULL,
		UNIQUE(provider, pair, timeframe, timestamp)
	);
	CREATE INDEX IF NOT EXISTS idx_bars_provider_pair_tf_ts ON ohlcv_bars (provider, pair, timeframe, timestamp);

	CREATE TABLE IF NOT EXISTS signals (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		date TEXT NOT NULL,
		channel TEXT NOT NULL,
		market TEXT NOT NULL,
		pair TEXT NOT NULL,
		side TEXT NOT NULL,
		entry REAL NOT NULL,
		stop_loss REAL NOT NULL,
		tp1 REAL NOT NULL DEFAULT 0,
		tp2 REAL NOT NULL DEFAULT 0,
		tp3 REAL NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_signals_date_channel ON signals (date, channel);

	CREATE TABLE IF NOT EXISTS performance (
		date TEXT NOT NULL,
		channel TEXT NOT NULL,
		sent INTEGER NOT NULL DEFAULT 0,
		wins INTEGER NOT NULL DEFAULT 0,
		losses INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (date, channel)
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("sqlite store: schema init failed: %w", err)
	}
	return nil
}

// --- OHLCV Bar Caching ---

func (s *SQLiteStore) SaveBar(provider, pair, timeframe string, bar utilities.OHLCVBar) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO ohlcv_bars (provider, pair, timeframe, timestamp, open, high, low, close, volume) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		provider, pair, timeframe, bar.Timestamp, bar.Open, bar.High, bar.Low, bar.Close, bar.Volume)
	return err
}

func (s *SQLiteStore) SaveBars(provider, pair, timeframe string, bars []utilities.OHLCVBar) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO ohlcv_bars (provider, pair, timeframe, timestamp, open, high, low, close, volume) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, bar := range bars {
		if _, err := stmt.Exec(provider, pair, timeframe, bar.Timestamp, bar.Open, bar.High, bar.Low, bar.Close, bar.Volume); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetBars(provider, pair, timeframe string, start, end int64) ([]utilities.OHLCVBar, error) {
	rows, err := s.db.Query(`SELECT timestamp, open, high, low, close, volume FROM ohlcv_bars WHERE provider=? AND pair=? AND timeframe=? AND timestamp BETWEEN ? AND ? ORDER BY timestamp ASC`,
		provider, pair, timeframe, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var bars []utilities.OHLCVBar
	for rows.Next() {
		var bar utilities.OHLCVBar
		if err := rows.Scan(&bar.Timestamp, &bar.Open, &bar.High, &bar.Low, &bar.Close, &bar.Volume); err != nil {
			return nil, err
		}
		bars = append(bars, bar)
	}
	return bars, rows.Err()
}

// --- Signal History ---

func (s *SQLiteStore) SaveSignal(sig *utilities.Signal) (int64, error) {
	var tp [3]float64
	for i := 0; i < len(sig.TakeProfits) && i < 3; i++ {
		tp[i] = sig.TakeProfits[i]
	}
	res, err := s.db.Exec(`INSERT INTO signals (date, channel, market, pair, side, entry, stop_loss, tp1, tp2, tp3, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sig.CreatedAt.UTC().Format("2006-01-02"), sig.Channel, sig.Market, sig.Pair, sig.Side,
		sig.Entry, sig.StopLoss, tp[0], tp[1], tp[2], sig.CreatedAt.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to save signal for %s: %w", sig.Pair, err)
	}
	return res.LastInsertId()
}

func (s *SQLiteStore) GetSignalsByDate(date string) ([]utilities.Signal, error) {
	rows, err := s.db.Query(`SELECT id, channel, market, pair, side, entry, stop_loss, tp1, tp2, tp3, created_at FROM signals WHERE date=? ORDER BY created_at ASC`, date)
	if err != nil {
		return nil, fmt.Errorf("failed to query signals for %s: %w", date, err)
	}
	defer rows.Close()

	var signals []utilities.Signal
	for rows.Next() {
		var sig utilities.Signal
		var tp1, tp2, tp3 float64
		var ts int64
		if err := rows.Scan(&sig.ID, &sig.Channel, &sig.Market, &sig.Pair, &sig.Side, &sig.Entry, &sig.StopLoss, &tp1, &tp2, &tp3, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan signal row: %w", err)
		}
		for _, v := range []float64{tp1, tp2, tp3} {
			if v != 0 {
				sig.TakeProfits = append(sig.TakeProfits, v)
			}
		}
		sig.CreatedAt = time.Unix(ts, 0).UTC()
		signals = append(signals, sig)
	}
	return signals, rows.Err()
}

// --- Performance Tallies ---

func (s *SQLiteStore) RecordDelivery(date, channel string) error {
	_, err := s.db.Exec(`INSERT INTO performance (date, channel, sent) VALUES (?, ?, 1)
		ON CONFLICT(date, channel) DO UPDATE SET sent = sent + 1`, date, channel)
	return err
}

func (s *SQLiteStore) RecordOutcome(date, channel string, win bool) error {
	col := "losses"
	if win {
		col = "wins"
	}
	_, err := s.db.Exec(fmt.Sprintf(`INSERT INTO performance (date, channel, %s) VALUES (?, ?, 1)
		ON CONFLICT(date, channel) DO UPDATE SET %s = %s + 1`, col, col, col), date, channel)
	return err
}

func (s *SQLiteStore) GetPerformance(date string) ([]PerformanceRow, error) {
	rows, err := s.db.Query(`SELECT date, channel, sent, wins, losses FROM performance WHERE date=? ORDER BY channel ASC`, date)
	if err != nil {
		return nil, fmt.Errorf("failed to query performance for %s: %w", date, err)
	}
	defer rows.Close()

	var out []PerformanceRow
	for rows.Next() {
		var row PerformanceRow
		if err := rows.Scan(&row.Date, &row.Channel, &row.Sent, &row.Wins, &row.Losses); err != nil {
			return nil, fmt.Errorf("failed to scan performance row: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// --- Cleanup ---

func (s *SQLiteStore) CleanupOldBars(provider string, olderThan time.Time) error {
	_, err := s.db.Exec(`DELETE FROM ohlcv_bars WHERE provider=? AND timestamp < ?`, provider, olderThan.UnixMilli())
	return err
}

// StartScheduledCleanup trims cached bars for one provider on a fixed
// interval until ctx is cancelled.
func (s *SQLiteStore) StartScheduledCleanup(ctx context.Context, interval time.Duration, provider string, retentionDays int) {
	if retentionDays <= 0 {
		retentionDays = 7
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().AddDate(0, 0, -retentionDays)
			if err := s.CleanupOldBars(provider, cutoff); err != nil {
				s.logger.LogError("SQLiteStore: scheduled cleanup for %s failed: %v", provider, err)
			} else {
				s.logger.LogDebug("SQLiteStore: trimmed %s bars older than %s.", provider, cutoff.Format("2006-01-02"))
			}
		}
	}
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
