package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/crypto_move_tracker/internal/domain"
	"go.uber.org/zap"
)

func testExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		Leverage:      10,
		Margin:        10,
		StopLossPct:   5,
		TakeProfitPct: 5,
		VolumeCeiling: 1e8,
		Workers:       2,
		QueueSize:     4,
	}
}

func TestPositionExecutor_OpenShort(t *testing.T) {
	ex := NewMockExchange()
	ex.Price = 2.0
	ex.AvgPrice = 2.02
	reg := NewPositionRegistry()
	e := NewPositionExecutor(ex, reg, testExecutorConfig(), zap.NewNop())
	e.timeNow = func() time.Time { return t0 }

	pos, err := e.Open(context.Background(), "DOGEUSDT", domain.SideShort, 5e7)
	require.NoError(t, err)
	require.NotNil(t, pos)

	assert.Equal(t, 10, ex.Leverages["DOGEUSDT"])

	// 10 margin * 10x / 2.0 = 50 contracts
	require.Len(t, ex.MarketOrders, 1)
	entry := ex.MarketOrders[0]
	assert.Equal(t, domain.OrderSideSell, entry.Side)
	assert.False(t, entry.ReduceOnly)
	assert.True(t, entry.Amount.Equal(decimal.NewFromInt(50)))

	assert.Equal(t, 2.02, pos.EntryPrice)
	assert.True(t, pos.StopLoss.Equal(decimal.RequireFromString("2.121")), pos.StopLoss.String())
	assert.True(t, pos.TakeProfit.Equal(decimal.RequireFromString("1.919")), pos.TakeProfit.String())

	require.Len(t, ex.StopOrders, 1)
	assert.Equal(t, domain.OrderSideBuy, ex.StopOrders[0].Side)
	assert.True(t, ex.StopOrders[0].ReduceOnly)
	assert.True(t, ex.StopOrders[0].StopPrice.Equal(pos.StopLoss))

	require.Len(t, ex.TPOrders, 1)
	tp := ex.TPOrders[0]
	assert.Equal(t, domain.OrderSideBuy, tp.Side)
	assert.True(t, tp.ReduceOnly)
	assert.True(t, tp.StopPrice.Equal(tp.LimitPrice))

	got, ok := reg.Get("DOGEUSDT")
	require.True(t, ok)
	assert.Equal(t, t0, got.EntryTime)
	assert.True(t, got.StopLoss.Equal(pos.StopLoss))
}

func TestPositionExecutor_FallsBackToReferencePrice(t *testing.T) {
	ex := NewMockExchange()
	ex.Price = 4.0
	e := NewPositionExecutor(ex, NewPositionRegistry(), testExecutorConfig(), zap.NewNop())

	pos, err := e.Open(context.Background(), "XUSDT", domain.SideShort, 1)
	require.NoError(t, err)
	assert.Equal(t, 4.0, pos.EntryPrice)
}

func TestPositionExecutor_Filters(t *testing.T) {
	ex := NewMockExchange()
	ex.Price = 1
	e := NewPositionExecutor(ex, NewPositionRegistry(), testExecutorConfig(), zap.NewNop())

	pos, err := e.Open(context.Background(), "AUSDT", domain.SideLong, 1e6)
	assert.NoError(t, err)
	assert.Nil(t, pos, "longs are not executed")

	pos, err = e.Open(context.Background(), "AUSDT", domain.SideShort, 1e8)
	assert.NoError(t, err)
	assert.Nil(t, pos, "volume at the ceiling is skipped")

	assert.Empty(t, ex.MarketOrders)
}

func TestPositionExecutor_SkipsOpenSymbol(t *testing.T) {
	ex := NewMockExchange()
	ex.Price = 1
	reg := NewPositionRegistry()
	e := NewPositionExecutor(ex, reg, testExecutorConfig(), zap.NewNop())

	_, err := e.Open(context.Background(), "AUSDT", domain.SideShort, 1)
	require.NoError(t, err)
	pos, err := e.Open(context.Background(), "AUSDT", domain.SideShort, 1)
	assert.NoError(t, err)
	assert.Nil(t, pos)
	assert.Len(t, ex.MarketOrders, 1)
}

func TestPositionExecutor_EntryFailureReleasesSymbol(t *testing.T) {
	ex := NewMockExchange()
	ex.Price = 1
	ex.MarketErr = errors.New("insufficient margin")
	reg := NewPositionRegistry()
	e := NewPositionExecutor(ex, reg, testExecutorConfig(), zap.NewNop())

	_, err := e.Open(context.Background(), "AUSDT", domain.SideShort, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient margin")
	assert.Equal(t, 0, reg.Len())
	assert.True(t, reg.Reserve("AUSDT"), "reservation released")
}

func TestPositionExecutor_LeverageFailureNotFatal(t *testing.T) {
	ex := NewMockExchange()
	ex.Price = 1
	ex.LeverageErr = errors.New("leverage not modified")
	e := NewPositionExecutor(ex, NewPositionRegistry(), testExecutorConfig(), zap.NewNop())

	pos, err := e.Open(context.Background(), "AUSDT", domain.SideShort, 1)
	require.NoError(t, err)
	assert.NotNil(t, pos)
}

func TestPositionExecutor_ProtectiveFailureKeepsPosition(t *testing.T) {
	ex := NewMockExchange()
	ex.Price = 1
	ex.StopErr = errors.New("order would immediately trigger")
	reg := NewPositionRegistry()
	e := NewPositionExecutor(ex, reg, testExecutorConfig(), zap.NewNop())

	_, err := e.Open(context.Background(), "AUSDT", domain.SideShort, 1)
	require.Error(t, err)
	assert.Equal(t, 1, reg.Len(), "left for the timeout enforcer")
	assert.Empty(t, ex.TPOrders)
}

func TestPositionExecutor_ZeroAmount(t *testing.T) {
	ex := NewMockExchange()
	ex.Price = 1e6
	e := NewPositionExecutor(ex, NewPositionRegistry(), testExecutorConfig(), zap.NewNop())

	_, err := e.Open(context.Background(), "BTCUSDT", domain.SideShort, 1)
	require.Error(t, err)
	assert.Empty(t, ex.MarketOrders)
}

func TestPositionExecutor_WorkersDrainQueue(t *testing.T) {
	ex := NewMockExchange()
	ex.Price = 1
	reg := NewPositionRegistry()
	e := NewPositionExecutor(ex, reg, testExecutorConfig(), zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	e.Start(ctx)

	assert.True(t, e.Submit(domain.MovementEvent{Symbol: "AUSDT", Side: domain.SideShort, QuoteVolume: 1}))
	assert.True(t, e.Submit(domain.MovementEvent{Symbol: "BUSDT", Side: domain.SideShort, QuoteVolume: 1}))

	require.Eventually(t, func() bool { return reg.Len() == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	e.Wait()
}

func TestPositionExecutor_SubmitDropsWhenFull(t *testing.T) {
	cfg := testExecutorConfig()
	cfg.QueueSize = 1
	e := NewPositionExecutor(NewMockExchange(), NewPositionRegistry(), cfg, zap.NewNop())

	assert.True(t, e.Submit(domain.MovementEvent{Symbol: "AUSDT", Side: domain.SideShort, QuoteVolume: 1}))
	assert.False(t, e.Submit(domain.MovementEvent{Symbol: "BUSDT", Side: domain.SideShort, QuoteVolume: 1}))
}

func TestPositionExecutor_SubmitFiltersBeforeQueueing(t *testing.T) {
	cfg := testExecutorConfig()
	cfg.QueueSize = 1
	e := NewPositionExecutor(NewMockExchange(), NewPositionRegistry(), cfg, zap.NewNop())

	assert.False(t, e.Submit(domain.MovementEvent{Symbol: "LONGUSDT", Side: domain.SideLong, QuoteVolume: 1}))
	assert.False(t, e.Submit(domain.MovementEvent{Symbol: "BIGUSDT", Side: domain.SideShort, QuoteVolume: cfg.VolumeCeiling}))
	assert.Empty(t, e.jobs, "filtered signals never take a queue slot")

	assert.True(t, e.Submit(domain.MovementEvent{Symbol: "AUSDT", Side: domain.SideShort, QuoteVolume: 1}))
}

func TestProtectiveLevels(t *testing.T) {
	sl, tp := protectiveLevels(domain.SideShort, 100, 5, 5)
	assert.InDelta(t, 105.0, sl, 1e-9)
	assert.InDelta(t, 95.0, tp, 1e-9)

	sl, tp = protectiveLevels(domain.SideLong, 100, 4, 10)
	assert.InDelta(t, 96.0, sl, 1e-9)
	assert.InDelta(t, 110.0, tp, 1e-9)
}
