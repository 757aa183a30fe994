// File: signal/summary.go
package signal

import (
	"fmt"
	"strings"
	"time"

	"github.com/Bardaqus/signalsbot-sub001/utilities"
)

// ChannelTally is one channel's line in the daily summary.
type ChannelTally struct {
	Channel string
	Market  string
	Cap     int
	Sent    int
	Buys    int
	Sells   int
	Wins    int
	Losses  int
}

// DailyTallies computes today's per-channel tallies, drawing the win/loss
// split from the win-rate bias.
func (e *Engine) DailyTallies() []ChannelTally {
	out := make([]ChannelTally, 0, len(e.cfg.Channels))
	for _, ch := range e.cfg.Channels {
		sent := e.tracker.Count(ch.Name)
		buys := e.tracker.BuyCount(ch.Name)
		wins, losses := e.SimulateOutcomes(sent)
		out = append(out, ChannelTally{
			Channel: ch.Name,
			Market:  ch.Market,
			Cap:     ch.MaxSignalsPerDay,
			Sent:    sent,
			Buys:    buys,
			Sells:   sent - buys,
			Wins:    wins,
			Losses:  losses,
		})
	}
	return out
}

// BuildDailySummary renders the plain-text report posted at the daily
// summary time.
func BuildDailySummary(date string, tallies []ChannelTally, generatedAt time.Time) string {
	var b strings.Builder
	b.WriteString("📊 Daily Trading Signals Summary\n")
	fmt.Fprintf(&b, "📅 Date: %s\n", date)

	for _, t := range tallies {
		icon := "📈"
		if t.Market == utilities.MarketCrypto {
			icon = "🪙"
		}
		fmt.Fprintf(&b, "\n%s %s\n", icon, t.Channel)
		fmt.Fprintf(&b, "• Signals: %d/%d (BUY %d, SELL %d)\n", t.Sent, t.Cap, t.Buys, t.Sells)
		if t.Sent > 0 {
			winRate := float64(t.Wins) / float64(t.Sent) * 100
			fmt.Fprintf(&b, "• Results: %dW / %dL (%.1f%% win rate)\n", t.Wins, t.Losses, winRate)
		} else {
			b.WriteString("• Results: no signals today\n")
		}
	}

	fmt.Fprintf(&b, "\n⏰ Generated: %s UTC", generatedAt.UTC().Format("15:04:05"))
	return b.String()
}

// ParseSummaryTime parses an "HH:MM" wall-clock string. The zero value and
// parse failures fall back to the 14:30 UTC default.
func ParseSummaryTime(s string) (hour, minute int, err error) {
	if s == "" {
		return 14, 30, nil
	}
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 14, 30, fmt.Errorf("summary time %q is not HH:MM", s)
	}
	if _, scanErr := fmt.Sscanf(s, "%d:%d", &hour, &minute); scanErr != nil {
		return 14, 30, fmt.Errorf("summary time %q is not HH:MM: %w", s, scanErr)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 14, 30, fmt.Errorf("summary time %q is out of range", s)
	}
	return hour, minute, nil
}
