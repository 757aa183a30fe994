package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bardaqus/signalsbot-sub001/utilities"
)

func TestComputeLevelsCryptoBuy(t *testing.T) {
	l := ComputeLevels(utilities.MarketCrypto, "BTCUSDT", utilities.SideBuy, 64250.10)

	assert.InDelta(t, 62965.098, l.StopLoss, 1e-6)
	require.Len(t, l.TakeProfits, 3)
	assert.InDelta(t, 65535.102, l.TakeProfits[0], 1e-6)
	assert.InDelta(t, 66820.104, l.TakeProfits[1], 1e-6)
	assert.InDelta(t, 68105.106, l.TakeProfits[2], 1e-6)
}

func TestComputeLevelsCryptoSellMirrors(t *testing.T) {
	l := ComputeLevels(utilities.MarketCrypto, "ETHUSDT", utilities.SideSell, 100)

	assert.InDelta(t, 102, l.StopLoss, 1e-9)
	require.Len(t, l.TakeProfits, 3)
	assert.InDelta(t, 98, l.TakeProfits[0], 1e-9)
	assert.InDelta(t, 96, l.TakeProfits[1], 1e-9)
	assert.InDelta(t, 94, l.TakeProfits[2], 1e-9)
}

func TestComputeLevelsGold(t *testing.T) {
	l := ComputeLevels(utilities.MarketForex, "XAUUSD", utilities.SideBuy, 2400.00)

	assert.InDelta(t, 2352.00, l.StopLoss, 1e-9)
	require.Len(t, l.TakeProfits, 3)
	assert.InDelta(t, 2424.00, l.TakeProfits[0], 1e-9)
	assert.InDelta(t, 2448.00, l.TakeProfits[1], 1e-9)
	assert.InDelta(t, 2472.00, l.TakeProfits[2], 1e-9)
}

func TestComputeLevelsJPYOffset(t *testing.T) {
	l := ComputeLevels(utilities.MarketForex, "USDJPY", utilities.SideSell, 147.250)

	assert.InDelta(t, 147.350, l.StopLoss, 1e-9)
	require.Len(t, l.TakeProfits, 3)
	assert.InDelta(t, 147.150, l.TakeProfits[0], 1e-9)
	assert.InDelta(t, 147.050, l.TakeProfits[1], 1e-9)
	assert.InDelta(t, 146.950, l.TakeProfits[2], 1e-9)
}

func TestComputeLevelsDefaultForexOffset(t *testing.T) {
	l := ComputeLevels(utilities.MarketForex, "EURUSD", utilities.SideBuy, 1.08520)

	assert.InDelta(t, 1.08420, l.StopLoss, 1e-9)
	require.Len(t, l.TakeProfits, 3)
	assert.InDelta(t, 1.08620, l.TakeProfits[0], 1e-9)
	assert.InDelta(t, 1.08720, l.TakeProfits[1], 1e-9)
	assert.InDelta(t, 1.08820, l.TakeProfits[2], 1e-9)
}
