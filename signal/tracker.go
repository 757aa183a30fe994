// File: signal/tracker.go
package signal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Bardaqus/signalsbot-sub001/utilities"
)

// Tracker is the day-keyed counter file behind the generation policy: how
// many signals each channel has sent today and with which sides. The file is
// flat JSON, one array per channel name plus the date:
//
//	{"date":"2026-08-23","forex":[...],"crypto":[...]}
//
// The date key rolls the counters over at UTC midnight. Writes go through a
// temp file and rename so a crash never leaves a half-written state file.
type Tracker struct {
	path   string
	logger *utilities.Logger
	now    func() time.Time

	mu        sync.RWMutex
	date      string
	byChannel map[string][]utilities.Signal
}

// NewTracker loads the state file at path, or starts fresh when it does not
// exist. A corrupt file is discarded with a warning rather than aborting.
func NewTracker(path string, logger *utilities.Logger) (*Tracker, error) {
	if path == "" {
		return nil, fmt.Errorf("signal NewTracker: state path is required")
	}
	if logger == nil {
		logger = utilities.NewLogger(utilities.Info)
		logger.LogWarn("Signal NewTracker: logger was nil, using default Info logger.")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("signal NewTracker: creating state dir: %w", err)
		}
	}

	t := &Tracker{
		path:      path,
		logger:    logger,
		now:       time.Now,
		byChannel: make(map[string][]utilities.Signal),
	}
	t.date = t.today()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return t, nil
		}
		return nil, fmt.Errorf("signal NewTracker: reading %s: %w", path, err)
	}

	raw := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &raw); err != nil {
		logger.LogWarn("Signal Tracker: state file %s is corrupt (%v), starting fresh.", path, err)
		return t, nil
	}
	var date string
	if d, ok := raw["date"]; ok {
		if err := json.Unmarshal(d, &date); err != nil {
			logger.LogWarn("Signal Tracker: bad date in %s (%v), starting fresh.", path, err)
			return t, nil
		}
	}
	if date != t.date {
		// Stale file from a previous day; counters restart at zero.
		return t, nil
	}
	for name, blob := range raw {
		if name == "date" {
			continue
		}
		var sigs []utilities.Signal
		if err := json.Unmarshal(blob, &sigs); err != nil {
			logger.LogWarn("Signal Tracker: skipping unreadable channel %q in %s: %v", name, path, err)
			continue
		}
		t.byChannel[name] = sigs
	}
	return t, nil
}

func (t *Tracker) today() string {
	return t.now().UTC().Format("2006-01-02")
}

// Date returns the UTC day the counters currently cover.
func (t *Tracker) Date() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.date
}

// Count returns how many signals the channel has sent today. Counters from a
// previous day read as zero even before the next Append resets them.
func (t *Tracker) Count(channel string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.date != t.today() {
		return 0
	}
	return len(t.byChannel[channel])
}

// BuyCount returns today's BUY count for the channel.
func (t *Tracker) BuyCount(channel string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.date != t.today() {
		return 0
	}
	n := 0
	for _, s := range t.byChannel[channel] {
		if s.Side == utilities.SideBuy {
			n++
		}
	}
	return n
}

// Signals returns a copy of today's signals for the channel.
func (t *Tracker) Signals(channel string) []utilities.Signal {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.date != t.today() {
		return nil
	}
	sigs := t.byChannel[channel]
	out := make([]utilities.Signal, len(sigs))
	copy(out, sigs)
	return out
}

// Append records a sent signal under its channel, rolling the counters over
// first when the UTC day has changed, and persists the file atomically.
func (t *Tracker) Append(sig utilities.Signal) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if today := t.today(); t.date != today {
		t.logger.LogInfo("Signal Tracker: new day %s, resetting counters.", today)
		t.date = today
		t.byChannel = make(map[string][]utilities.Signal)
	}
	t.byChannel[sig.Channel] = append(t.byChannel[sig.Channel], sig)
	return t.saveLocked()
}

func (t *Tracker) saveLocked() error {
	out := make(map[string]interface{}, len(t.byChannel)+1)
	out["date"] = t.date
	for name, sigs := range t.byChannel {
		out[name] = sigs
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("signal Tracker: marshalling state: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(t.path), ".signals-*.json")
	if err != nil {
		return fmt.Errorf("signal Tracker: creating temp state file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("signal Tracker: writing temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("signal Tracker: closing temp state file: %w", err)
	}
	if err := os.Rename(tmp.Name(), t.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("signal Tracker: replacing state file: %w", err)
	}
	return nil
}
