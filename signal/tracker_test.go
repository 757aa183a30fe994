package signal

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bardaqus/signalsbot-sub001/utilities"
)

func testSignal(channel, side string) utilities.Signal {
	return utilities.Signal{
		Channel:     channel,
		Market:      utilities.MarketForex,
		Pair:        "EURUSD",
		Side:        side,
		Entry:       1.0852,
		StopLoss:    1.0842,
		TakeProfits: []float64{1.0862},
		CreatedAt:   time.Now().UTC(),
	}
}

func newTestTracker(t *testing.T) (*Tracker, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "signals.json")
	tr, err := NewTracker(path, utilities.NewLogger(utilities.Error))
	require.NoError(t, err)
	return tr, path
}

func TestTrackerCountsPerChannel(t *testing.T) {
	tr, _ := newTestTracker(t)

	require.NoError(t, tr.Append(testSignal("forex", utilities.SideBuy)))
	require.NoError(t, tr.Append(testSignal("forex", utilities.SideBuy)))
	require.NoError(t, tr.Append(testSignal("forex", utilities.SideSell)))

	assert.Equal(t, 3, tr.Count("forex"))
	assert.Equal(t, 2, tr.BuyCount("forex"))
	assert.Equal(t, 0, tr.Count("crypto"))
}

func TestTrackerPersistsAndReloads(t *testing.T) {
	tr, path := newTestTracker(t)
	require.NoError(t, tr.Append(testSignal("forex", utilities.SideBuy)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"date"`)
	assert.Contains(t, string(data), `"forex"`)

	reloaded, err := NewTracker(path, utilities.NewLogger(utilities.Error))
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.Count("forex"))
	assert.Equal(t, tr.Date(), reloaded.Date())
}

func TestTrackerDayRollover(t *testing.T) {
	tr, _ := newTestTracker(t)

	day1 := time.Date(2026, 8, 22, 23, 50, 0, 0, time.UTC)
	tr.now = func() time.Time { return day1 }
	tr.date = "2026-08-22"

	require.NoError(t, tr.Append(testSignal("forex", utilities.SideBuy)))
	require.NoError(t, tr.Append(testSignal("forex", utilities.SideBuy)))
	require.Equal(t, 2, tr.Count("forex"))

	// Past midnight the old counters must read as zero before any write.
	tr.now = func() time.Time { return day1.Add(20 * time.Minute) }
	assert.Equal(t, 0, tr.Count("forex"))
	assert.Equal(t, 0, tr.BuyCount("forex"))
	assert.Nil(t, tr.Signals("forex"))

	// The first append of the new day resets the stored state.
	require.NoError(t, tr.Append(testSignal("forex", utilities.SideSell)))
	assert.Equal(t, "2026-08-23", tr.Date())
	assert.Equal(t, 1, tr.Count("forex"))
	assert.Equal(t, 0, tr.BuyCount("forex"))
}

func TestTrackerDiscardsStaleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signals.json")
	stale := `{"date":"2001-01-01","forex":[{"channel":"forex","side":"BUY"}]}`
	require.NoError(t, os.WriteFile(path, []byte(stale), 0o644))

	tr, err := NewTracker(path, utilities.NewLogger(utilities.Error))
	require.NoError(t, err)
	assert.Equal(t, 0, tr.Count("forex"))
}

func TestTrackerSurvivesCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signals.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	tr, err := NewTracker(path, utilities.NewLogger(utilities.Error))
	require.NoError(t, err)
	assert.Equal(t, 0, tr.Count("forex"))

	// A fresh append replaces the corrupt file with valid state.
	require.NoError(t, tr.Append(testSignal("forex", utilities.SideBuy)))
	reloaded, err := NewTracker(path, utilities.NewLogger(utilities.Error))
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.Count("forex"))
}

func TestTrackerRequiresPath(t *testing.T) {
	_, err := NewTracker("", utilities.NewLogger(utilities.Error))
	assert.Error(t, err)
}
