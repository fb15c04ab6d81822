package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTradeLadder_Prices(t *testing.T) {
	ladder := TradeLadder{TakeProfits: []float64{0.05, 0.10}, StopLosses: [2]float64{0.04, 0.05}}

	tp, sl := ladder.Prices(SideShort, 100)
	assert.InDeltaSlice(t, []float64{95, 90}, tp, 1e-9)
	assert.InDelta(t, 104, sl[0], 1e-9)
	assert.InDelta(t, 105, sl[1], 1e-9)

	tp, sl = ladder.Prices(SideLong, 100)
	assert.InDeltaSlice(t, []float64{105, 110}, tp, 1e-9)
	assert.InDelta(t, 96, sl[0], 1e-9)
	assert.InDelta(t, 95, sl[1], 1e-9)
}

func TestSides(t *testing.T) {
	assert.Equal(t, SideShort, SideFromChange(20))
	assert.Equal(t, SideLong, SideFromChange(-20))

	assert.Equal(t, OrderSideSell, SideShort.EntrySide())
	assert.Equal(t, OrderSideBuy, SideShort.ExitSide())
	assert.Equal(t, OrderSideBuy, SideLong.EntrySide())
	assert.Equal(t, OrderSideSell, SideLong.ExitSide())
}

func TestPosition_Age(t *testing.T) {
	entry := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	p := Position{EntryTime: entry}
	assert.Equal(t, 2*time.Hour, p.Age(entry.Add(2*time.Hour)))
}
