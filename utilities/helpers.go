package utilities

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

func ConvertTFToTwelveDataInterval(tf string) (string, error) {
	// Map of standard timeframes to Twelve Data intervals
	intervalMap := map[string]string{
		"1m":  "1min",
		"5m":  "5min",
		"15m": "15min",
		"30m": "30min",
		"45m": "45min",
		"1h":  "1h",
		"2h":  "2h",
		"4h":  "4h",
		"1d":  "1day",
		"1w":  "1week",
	}

	// Check if the input is a standard timeframe
	if interval, ok := intervalMap[strings.ToLower(tf)]; ok {
		return interval, nil
	}

	// Defensive check: if the input is already a Twelve Data interval, return it unchanged
	validTDIntervals := map[string]bool{
		"1min":  true,
		"5min":  true,
		"15min": true,
		"30min": true,
		"45min": true,
		"1h":    true,
		"2h":    true,
		"4h":    true,
		"1day":  true,
		"1week": true,
	}
	if validTDIntervals[tf] {
		return tf, nil // Return the Twelve Data interval as-is to prevent re-conversion errors
	}

	// If the timeframe is unsupported, return an error
	return "", fmt.Errorf("unsupported timeframe for Twelve Data interval conversion: %s", tf)
}

// DoJSONRequest performs an HTTP request, retries on transient errors, and unmarshals a JSON response.
func DoJSONRequest(client *http.Client, req *http.Request, maxRetries int, retryDelay time.Duration, result interface{}) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		r := req
		if attempt > 0 && req.GetBody != nil {
			bodyReader, err := req.GetBody()
			if err != nil {
				return fmt.Errorf("retry %d: could not reset request body: %w", attempt, err)
			}
			r = req.Clone(req.Context())
			r.Body = bodyReader
		}

		resp, err := client.Do(r)
		if err != nil {
			lastErr = err
			time.Sleep(retryDelay)
			continue
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 && resp.StatusCode <= 599 {
			lastErr = fmt.Errorf("server error %d %s", resp.StatusCode, resp.Status)
			time.Sleep(retryDelay)
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return fmt.Errorf("http %d: %s", resp.StatusCode, string(snippet))
		}

		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode JSON response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("all retries failed: %w", lastErr)
}

// FilterAfter returns a subset of items that occur after a given cutoff time.
func FilterAfter[T any](items []T, getTime func(T) time.Time, cutoff time.Time) []T {
	var out []T
	for _, it := range items {
		if getTime(it).After(cutoff) {
			out = append(out, it)
		}
	}
	return out
}

// LogDebug logs a message at Debug level.
func (l *Logger) LogDebug(format string, v ...interface{}) {
	if l.Level <= Debug {
		_ = l.Logger.Output(2, fmt.Sprintf("[DEBUG] "+format, v...))
	}
}

// LogDebugF is a package-level convenience function for Debug logging.
func LogDebugF(format string, v ...interface{}) {
	globalLogger.LogDebug(format, v...)
}

// LogError logs a message at Error level.
func (l *Logger) LogError(format string, v ...interface{}) {
	if l.Level <= Error {
		_ = l.Logger.Output(2, fmt.Sprintf("[ERROR] "+format, v...))
	}
}

// LogFatal logs a message at Fatal level and then calls os.Exit(1).
func (l *Logger) LogFatal(format string, v ...interface{}) {
	_ = l.Logger.Output(2, fmt.Sprintf("[FATAL] "+format, v...))
	os.Exit(1)
}

// LogInfo logs a message at Info level.
func (l *Logger) LogInfo(format string, v ...interface{}) {
	if l.Level <= Info {
		_ = l.Logger.Output(2, fmt.Sprintf("[INFO] "+format, v...))
	}
}

// LogInfoF is a package-level convenience function for Info logging.
func LogInfoF(format string, v ...interface{}) {
	globalLogger.LogInfo(format, v...)
}

// LogWarn logs a message at Warn level.
func (l *Logger) LogWarn(format string, v ...interface{}) {
	if l.Level <= Warn {
		_ = l.Logger.Output(2, fmt.Sprintf("[WARN] "+format, v...))
	}
}

// LogWarnF is a package-level convenience function for Warn logging.
func LogWarnF(format string, v ...interface{}) {
	globalLogger.LogWarn(format, v...)
}

// MinInt returns the minimum of two integers.
func MinInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// NewLogger creates a new Logger instance.
func NewLogger(level LogLevel) *Logger {
	return &Logger{
		Level:  level,
		Logger: log.New(os.Stdout, "[SignalsBot] ", log.Ldate|log.Ltime|log.Lshortfile),
	}
}

// ParseFloatFromInterface is a helper function to parse float64 from various numeric types.
func ParseFloatFromInterface(val interface{}) (float64, error) {
	switch v := val.(type) {
	case string:
		return strconv.ParseFloat(v, 64)
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	default:
		return 0, fmt.Errorf("unsupported type for float conversion: %T", v)
	}
}

// ParseLogLevel converts a string log level to the LogLevel type.
func ParseLogLevel(levelStr string) (LogLevel, error) {
	switch strings.ToLower(levelStr) {
	case "debug":
		return Debug, nil
	case "info":
		return Info, nil
	case "warn":
		return Warn, nil
	case "error":
		return Error, nil
	case "fatal":
		return Fatal, nil
	default:
		return Info, fmt.Errorf("invalid log level string: %s", levelStr)
	}
}

// SetLogLevel updates the logging level of the logger.
func (l *Logger) SetLogLevel(level LogLevel) {
	l.Level = level
}

// SortBarsByTimestamp sorts a slice of OHLCVBar by ascending Timestamp.
func SortBarsByTimestamp(bars []OHLCVBar) {
	sort.Slice(bars, func(i, j int) bool {
		return bars[i].Timestamp < bars[j].Timestamp
	})
}
