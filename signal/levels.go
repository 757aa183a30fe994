// File: signal/levels.go
package signal

import (
	"math"
	"strings"

	"github.com/Bardaqus/signalsbot-sub001/utilities"
)

// Levels is the stop-loss and three-rung take-profit ladder for one signal.
// Channels that publish fewer rungs truncate the ladder at send time.
type Levels struct {
	StopLoss    float64
	TakeProfits []float64
}

// ComputeLevels derives SL/TP from the entry price using the fixed-percentage
// policy: crypto 2% SL with a 2/4/6% TP ladder, gold 2% SL with a 1/2/3%
// ladder, JPY pairs a 0.10 offset and everything else a 0.0010 offset with a
// 1x/2x/3x ladder. SELL mirrors every level around the entry.
func ComputeLevels(market, pair, side string, entry float64) Levels {
	sell := side == utilities.SideSell
	dir := 1.0
	if sell {
		dir = -1.0
	}

	switch {
	case market == utilities.MarketCrypto:
		return Levels{
			StopLoss: roundTo(entry*(1-dir*0.02), 6),
			TakeProfits: []float64{
				roundTo(entry*(1+dir*0.02), 6),
				roundTo(entry*(1+dir*0.04), 6),
				roundTo(entry*(1+dir*0.06), 6),
			},
		}
	case pair == "XAUUSD":
		return Levels{
			StopLoss: roundTo(entry*(1-dir*0.02), 2),
			TakeProfits: []float64{
				roundTo(entry*(1+dir*0.01), 2),
				roundTo(entry*(1+dir*0.02), 2),
				roundTo(entry*(1+dir*0.03), 2),
			},
		}
	case strings.HasSuffix(pair, "JPY"):
		return ladderFromOffset(entry, dir, 0.10, 3)
	default:
		return ladderFromOffset(entry, dir, 0.0010, 5)
	}
}

func ladderFromOffset(entry, dir, offset float64, places int) Levels {
	return Levels{
		StopLoss: roundTo(entry-dir*offset, places),
		TakeProfits: []float64{
			roundTo(entry+dir*offset, places),
			roundTo(entry+dir*2*offset, places),
			roundTo(entry+dir*3*offset, places),
		},
	}
}

func roundTo(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}
