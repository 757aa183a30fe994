package utilities

import (
	"log"
	"time"
)

// --- Global Logger ---
var globalLogger = NewLogger(Info) // Default to Info

// Colors.
const (
	ColorCyan   = "\033[96m" // For Buy signals
	ColorRed    = "\033[91m" // For Sell signals
	ColorReset  = "\033[0m"
	ColorWhite  = "\033[97m" // For neutral output
	ColorYellow = "\033[93m" // For symbol names
)

// Logging Level
const (
	Debug LogLevel = iota
	Info
	Warn
	Error
	Fatal
)

// Signal sides.
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Markets a channel can serve.
const (
	MarketForex  = "forex"
	MarketCrypto = "crypto"
)

// --- Types (Alphabetized) ---

// AppConfig is the root configuration structure, holding all other config sections.
type AppConfig struct {
	AppName     string            `mapstructure:"app_name"`
	Binance     *BinanceConfig    `mapstructure:"binance"`
	CTrader     *CTraderConfig    `mapstructure:"ctrader"`
	DB          DatabaseConfig    `mapstructure:"database"`
	Environment string            `mapstructure:"environment"`
	FxRates     *FxRatesConfig    `mapstructure:"fxrates"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Signals     SignalsConfig     `mapstructure:"signals"`
	Telegram    TelegramConfig    `mapstructure:"telegram"`
	TwelveData  *TwelveDataConfig `mapstructure:"twelve_data"`
	Version     string            `mapstructure:"version"`
}

// BinanceConfig holds settings for the Binance public market-data API.
type BinanceConfig struct {
	BaseURL           string `mapstructure:"base_url"`
	MaxRetries        int    `mapstructure:"max_retries"`
	RateLimitBurst    int    `mapstructure:"rate_limit_burst"`
	RateLimitPerSec   int    `mapstructure:"rate_limit_per_sec"`
	RequestTimeoutSec int    `mapstructure:"request_timeout_sec"`
	RetryDelaySec     int    `mapstructure:"retry_delay_sec"`
}

// ChannelConfig describes one Telegram channel the bot posts signals to.
type ChannelConfig struct {
	ChatID           int64    `mapstructure:"chat_id"`
	Market           string   `mapstructure:"market"`
	MaxIntervalHours float64  `mapstructure:"max_interval_hours"`
	MaxSignalsPerDay int      `mapstructure:"max_signals_per_day"`
	MinIntervalHours float64  `mapstructure:"min_interval_hours"`
	Name             string   `mapstructure:"name"`
	Pairs            []string `mapstructure:"pairs"`
	TakeProfitLevels int      `mapstructure:"take_profit_levels"`
}

// CTraderConfig holds all settings for the cTrader Open API session.
type CTraderConfig struct {
	AccessToken        string `mapstructure:"access_token"`
	AccountID          int64  `mapstructure:"account_id"`
	APIBaseURL         string `mapstructure:"api_base_url"`
	ClientID           string `mapstructure:"client_id"`
	ClientSecret       string `mapstructure:"client_secret"`
	ConnectTimeoutSec  int    `mapstructure:"connect_timeout_sec"`
	HeartbeatSec       int    `mapstructure:"heartbeat_sec"`
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port"`
	RefreshToken       string `mapstructure:"refresh_token"`
	ResponseTimeoutSec int    `mapstructure:"response_timeout_sec"`
}

// DatabaseConfig holds settings for database connections.
type DatabaseConfig struct {
	DBPath string `mapstructure:"database_path"`
}

// FxRatesConfig holds settings for the free forex-rate fallback source.
type FxRatesConfig struct {
	BaseURL           string `mapstructure:"base_url"`
	RequestTimeoutSec int    `mapstructure:"request_timeout_sec"`
}

// Logger provides a structured logger with different levels.
type Logger struct {
	Level  LogLevel
	Logger *log.Logger
}

// LoggingConfig holds settings related to logging.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// LogLevel defines the severity of a log message.
type LogLevel int

// OHLCVBar represents a single Open, High, Low, Close, Volume data point.
type OHLCVBar struct {
	Timestamp int64   `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

// Signal is one generated trading signal, shared between the engine,
// the stores and the notifier.
type Signal struct {
	ID          int64     `json:"id,omitempty"`
	Channel     string    `json:"channel"`
	Market      string    `json:"market"`
	Pair        string    `json:"pair"`
	Side        string    `json:"side"`
	Entry       float64   `json:"entry"`
	StopLoss    float64   `json:"stop_loss"`
	TakeProfits []float64 `json:"take_profits"`
	CreatedAt   time.Time `json:"created_at"`
}

// SignalsConfig holds the generation policy shared by all channels.
type SignalsConfig struct {
	BuyRatio       float64         `mapstructure:"buy_ratio"`
	Channels       []ChannelConfig `mapstructure:"channels"`
	StatePath      string          `mapstructure:"state_path"`
	SummaryChatID  int64           `mapstructure:"summary_chat_id"`
	SummaryTimeUTC string          `mapstructure:"summary_time_utc"`
	WinRateBias    float64         `mapstructure:"win_rate_bias"`
}

// TelegramConfig holds settings for the Telegram delivery surface.
type TelegramConfig struct {
	APIEndpoint string `mapstructure:"api_endpoint"`
	BotToken    string `mapstructure:"bot_token"`
}

// TwelveDataConfig holds settings for the Twelve Data provider, including the
// admission-gate tuning the client is built around.
type TwelveDataConfig struct {
	APIKey                 string `mapstructure:"api_key"`
	BackoffBaseMs          int    `mapstructure:"backoff_base_ms"`
	BackoffMaxMs           int    `mapstructure:"backoff_max_ms"`
	BaseURL                string `mapstructure:"base_url"`
	BreakerBaseCooldownSec int    `mapstructure:"breaker_base_cooldown_sec"`
	BreakerMaxCooldownSec  int    `mapstructure:"breaker_max_cooldown_sec"`
	BreakerThreshold       int    `mapstructure:"breaker_threshold"`
	CacheRetentionDays     int    `mapstructure:"cache_retention_days"`
	CooldownOn429Sec       int    `mapstructure:"cooldown_on_429_sec"`
	MaxInFlight            int    `mapstructure:"max_in_flight"`
	MaxRetries             int    `mapstructure:"max_retries"`
	MinIntervalMs          int    `mapstructure:"min_interval_ms"`
	RequestTimeoutSec      int    `mapstructure:"request_timeout_sec"`
	RequestsPerMinute      int    `mapstructure:"requests_per_minute"`
}
