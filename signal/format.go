// File: signal/format.go
package signal

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Bardaqus/signalsbot-sub001/utilities"
)

// FormatPrice renders a price at the precision its instrument trades at:
// 3 decimals for JPY pairs, 2 for gold, 6 for crypto, 5 for everything else,
// with trailing zeros trimmed.
func FormatPrice(market, pair string, v float64) string {
	places := 5
	switch {
	case strings.HasSuffix(pair, "JPY"):
		places = 3
	case pair == "XAUUSD":
		places = 2
	case market == utilities.MarketCrypto || strings.HasSuffix(pair, "USDT"):
		places = 6
	}
	s := strconv.FormatFloat(v, 'f', places, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimRight(s, ".")
	return s
}

// FormatSignal builds the channel message for a signal. Forex channels use
// the compact layout, crypto channels the labelled one:
//
//	EURUSD BUY 1.0852          BTCUSDT BUY
//	SL 1.0842                  Entry: 64250.1
//	TP 1.0862                  SL: 62965.098
//	                           TP1: 65535.102
//	                           ...
//
// A single take-profit prints as "TP", a ladder numbers the rungs.
func FormatSignal(sig utilities.Signal) string {
	var b strings.Builder

	if sig.Market == utilities.MarketCrypto {
		fmt.Fprintf(&b, "%s %s\n", sig.Pair, sig.Side)
		fmt.Fprintf(&b, "Entry: %s\n", FormatPrice(sig.Market, sig.Pair, sig.Entry))
		fmt.Fprintf(&b, "SL: %s", FormatPrice(sig.Market, sig.Pair, sig.StopLoss))
		for i, tp := range sig.TakeProfits {
			fmt.Fprintf(&b, "\nTP%d: %s", i+1, FormatPrice(sig.Market, sig.Pair, tp))
		}
		return b.String()
	}

	fmt.Fprintf(&b, "%s %s %s\n", sig.Pair, sig.Side, FormatPrice(sig.Market, sig.Pair, sig.Entry))
	fmt.Fprintf(&b, "SL %s", FormatPrice(sig.Market, sig.Pair, sig.StopLoss))
	if len(sig.TakeProfits) == 1 {
		fmt.Fprintf(&b, "\nTP %s", FormatPrice(sig.Market, sig.Pair, sig.TakeProfits[0]))
		return b.String()
	}
	for i, tp := range sig.TakeProfits {
		fmt.Fprintf(&b, "\nTP%d %s", i+1, FormatPrice(sig.Market, sig.Pair, tp))
	}
	return b.String()
}
