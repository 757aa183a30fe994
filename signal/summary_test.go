package signal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bardaqus/signalsbot-sub001/utilities"
)

func TestDailyTalliesSimulatedOutcomes(t *testing.T) {
	e := newTestEngine(t, nil)
	require.NoError(t, e.Record(testSignal("forex", utilities.SideBuy)))
	require.NoError(t, e.Record(testSignal("forex", utilities.SideBuy)))
	require.NoError(t, e.Record(testSignal("forex", utilities.SideSell)))

	tallies := e.DailyTallies()
	require.Len(t, tallies, 2)

	forex := tallies[0]
	assert.Equal(t, "forex", forex.Channel)
	assert.Equal(t, 3, forex.Sent)
	assert.Equal(t, 2, forex.Buys)
	assert.Equal(t, 1, forex.Sells)
	assert.Equal(t, 3, forex.Wins+forex.Losses, "every sent signal resolves to a win or a loss")

	crypto := tallies[1]
	assert.Equal(t, 0, crypto.Sent)
	assert.Equal(t, 0, crypto.Wins+crypto.Losses)
}

func TestSimulateOutcomesBias(t *testing.T) {
	e := newTestEngine(t, nil)

	wins, losses := e.SimulateOutcomes(2000)
	assert.Equal(t, 2000, wins+losses)
	assert.InDelta(t, 0.73, float64(wins)/2000, 0.05, "win share must track the bias")
}

func TestBuildDailySummaryFormat(t *testing.T) {
	tallies := []ChannelTally{
		{Channel: "forex", Market: utilities.MarketForex, Cap: 5, Sent: 5, Buys: 4, Sells: 1, Wins: 4, Losses: 1},
		{Channel: "crypto", Market: utilities.MarketCrypto, Cap: 5, Sent: 0},
	}
	generated := time.Date(2026, 8, 23, 14, 30, 0, 0, time.UTC)

	msg := BuildDailySummary("2026-08-23", tallies, generated)
	assert.Contains(t, msg, "📊 Daily Trading Signals Summary")
	assert.Contains(t, msg, "📅 Date: 2026-08-23")
	assert.Contains(t, msg, "📈 forex")
	assert.Contains(t, msg, "• Signals: 5/5 (BUY 4, SELL 1)")
	assert.Contains(t, msg, "• Results: 4W / 1L (80.0% win rate)")
	assert.Contains(t, msg, "🪙 crypto")
	assert.Contains(t, msg, "• Results: no signals today")
	assert.Contains(t, msg, "⏰ Generated: 14:30:00 UTC")
	assert.NotContains(t, msg, "**", "summaries go out as plain text")
}

func TestParseSummaryTime(t *testing.T) {
	hour, minute, err := ParseSummaryTime("")
	require.NoError(t, err)
	assert.Equal(t, 14, hour)
	assert.Equal(t, 30, minute)

	hour, minute, err = ParseSummaryTime("09:15")
	require.NoError(t, err)
	assert.Equal(t, 9, hour)
	assert.Equal(t, 15, minute)

	for _, bad := range []string{"99:00", "12:99", "nope", "12", "a:b"} {
		hour, minute, err = ParseSummaryTime(bad)
		assert.Error(t, err, bad)
		assert.Equal(t, 14, hour, "fallback hour for %q", bad)
		assert.Equal(t, 30, minute, "fallback minute for %q", bad)
	}
}
