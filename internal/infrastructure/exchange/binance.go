package exchange

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"
	"github.com/vitos/crypto_move_tracker/internal/domain"
	"go.uber.org/zap"
)

const (
	BinanceWSURL        = "wss://fstream.binance.com"
	BinanceTestnetWSURL = "wss://stream.binancefuture.com"

	exchangeInfoTTL = time.Hour
)

// BinanceFutures implements domain.Exchange on the USDT-margined futures
// REST API.
type BinanceFutures struct {
	client *futures.Client
	logger *zap.Logger

	mu       sync.RWMutex
	filters  map[string]symbolFilters
	loadedAt time.Time
}

// NewBinanceFutures creates the adapter. Testnet switches the go-binance
// futures package to testnet endpoints for the whole process.
func NewBinanceFutures(apiKey, apiSecret string, testnet bool, logger *zap.Logger) *BinanceFutures {
	if testnet {
		futures.UseTestnet = true
	}
	return newBinanceFutures(futures.NewClient(apiKey, apiSecret), logger)
}

func newBinanceFutures(client *futures.Client, logger *zap.Logger) *BinanceFutures {
	return &BinanceFutures{
		client:  client,
		logger:  logger,
		filters: make(map[string]symbolFilters),
	}
}

func orderSide(side domain.OrderSide) futures.SideType {
	if side == domain.OrderSideSell {
		return futures.SideTypeSell
	}
	return futures.SideTypeBuy
}

func (b *BinanceFutures) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	_, err := b.client.NewChangeLeverageService().
		Symbol(symbol).
		Leverage(leverage).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("set leverage %s: %w", symbol, err)
	}
	return nil
}

func (b *BinanceFutures) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	prices, err := b.client.NewListPricesService().
		Symbol(symbol).
		Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("get price %s: %w", symbol, err)
	}
	for _, p := range prices {
		if p.Symbol == symbol {
			return strconv.ParseFloat(p.Price, 64)
		}
	}
	return 0, fmt.Errorf("price not found for %s", symbol)
}

func (b *BinanceFutures) MarketOrder(ctx context.Context, symbol string, side domain.OrderSide, amount decimal.Decimal, reduceOnly bool) (*domain.OrderResult, error) {
	res, err := b.client.NewCreateOrderService().
		Symbol(symbol).
		Side(orderSide(side)).
		Type(futures.OrderTypeMarket).
		Quantity(amount.String()).
		ReduceOnly(reduceOnly).
		NewOrderResponseType(futures.NewOrderRespTypeRESULT).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("market order %s %s: %w", side, symbol, err)
	}
	return toOrderResult(res), nil
}

func (b *BinanceFutures) StopMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, amount, stopPrice decimal.Decimal, reduceOnly bool) (*domain.OrderResult, error) {
	res, err := b.client.NewCreateOrderService().
		Symbol(symbol).
		Side(orderSide(side)).
		Type(futures.OrderTypeStopMarket).
		Quantity(amount.String()).
		StopPrice(stopPrice.String()).
		ReduceOnly(reduceOnly).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("stop-market order %s: %w", symbol, err)
	}
	return toOrderResult(res), nil
}

func (b *BinanceFutures) TakeProfitOrder(ctx context.Context, symbol string, side domain.OrderSide, amount, stopPrice, limitPrice decimal.Decimal, reduceOnly bool) (*domain.OrderResult, error) {
	res, err := b.client.NewCreateOrderService().
		Symbol(symbol).
		Side(orderSide(side)).
		Type(futures.OrderTypeTakeProfit).
		TimeInForce(futures.TimeInForceTypeGTC).
		Quantity(amount.String()).
		StopPrice(stopPrice.String()).
		Price(limitPrice.String()).
		ReduceOnly(reduceOnly).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("take-profit order %s: %w", symbol, err)
	}
	return toOrderResult(res), nil
}

func toOrderResult(res *futures.CreateOrderResponse) *domain.OrderResult {
	avg, _ := strconv.ParseFloat(res.AvgPrice, 64)
	return &domain.OrderResult{
		OrderID:  res.OrderID,
		Symbol:   res.Symbol,
		Status:   string(res.Status),
		AvgPrice: avg,
	}
}

func (b *BinanceFutures) CancelAllOrders(ctx context.Context, symbol string) error {
	if err := b.client.NewCancelAllOpenOrdersService().Symbol(symbol).Do(ctx); err != nil {
		return fmt.Errorf("cancel orders %s: %w", symbol, err)
	}
	return nil
}

// GetPositionAmount returns the signed position size for symbol, zero when
// flat.
func (b *BinanceFutures) GetPositionAmount(ctx context.Context, symbol string) (decimal.Decimal, error) {
	risks, err := b.client.NewGetPositionRiskService().Symbol(symbol).Do(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("position risk %s: %w", symbol, err)
	}
	total := decimal.Zero
	for _, r := range risks {
		if r.Symbol != symbol {
			continue
		}
		amt, err := decimal.NewFromString(r.PositionAmt)
		if err != nil {
			return decimal.Zero, fmt.Errorf("position amount %q: %w", r.PositionAmt, err)
		}
		total = total.Add(amt)
	}
	return total, nil
}

func (b *BinanceFutures) AmountToPrecision(ctx context.Context, symbol string, amount float64) (decimal.Decimal, error) {
	f, err := b.symbolFilters(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	return floorToStep(amount, f.StepSize), nil
}

func (b *BinanceFutures) PriceToPrecision(ctx context.Context, symbol string, price float64) (decimal.Decimal, error) {
	f, err := b.symbolFilters(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	return roundToTick(price, f.TickSize), nil
}

// GetTradableSymbols lists perpetual contracts in TRADING status settled in
// quoteAsset, sorted by name. It also refreshes the precision cache.
func (b *BinanceFutures) GetTradableSymbols(ctx context.Context, quoteAsset string) ([]string, error) {
	info, err := b.loadExchangeInfo(ctx)
	if err != nil {
		return nil, err
	}
	var symbols []string
	for _, s := range info.Symbols {
		if string(s.Status) != "TRADING" || string(s.ContractType) != "PERPETUAL" {
			continue
		}
		if quoteAsset != "" && s.QuoteAsset != quoteAsset {
			continue
		}
		symbols = append(symbols, s.Symbol)
	}
	sort.Strings(symbols)
	return symbols, nil
}

func (b *BinanceFutures) symbolFilters(ctx context.Context, symbol string) (symbolFilters, error) {
	b.mu.RLock()
	f, ok := b.filters[symbol]
	stale := time.Since(b.loadedAt) > exchangeInfoTTL
	b.mu.RUnlock()
	if ok && !stale {
		return f, nil
	}

	if _, err := b.loadExchangeInfo(ctx); err != nil {
		if ok {
			b.logger.Warn("Using stale precision data", zap.String("symbol", symbol), zap.Error(err))
			return f, nil
		}
		return symbolFilters{}, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	f, ok = b.filters[symbol]
	if !ok {
		return symbolFilters{}, fmt.Errorf("unknown symbol %s", symbol)
	}
	return f, nil
}

func (b *BinanceFutures) loadExchangeInfo(ctx context.Context) (*futures.ExchangeInfo, error) {
	info, err := b.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("exchange info: %w", err)
	}

	filters := make(map[string]symbolFilters, len(info.Symbols))
	for i := range info.Symbols {
		s := &info.Symbols[i]
		lot := s.LotSizeFilter()
		price := s.PriceFilter()
		if lot == nil || price == nil {
			continue
		}
		f, err := parseFilters(lot.StepSize, price.TickSize)
		if err != nil {
			b.logger.Debug("Skipping symbol filters", zap.String("symbol", s.Symbol), zap.Error(err))
			continue
		}
		filters[s.Symbol] = f
	}

	b.mu.Lock()
	b.filters = filters
	b.loadedAt = time.Now()
	b.mu.Unlock()

	b.logger.Debug("Exchange info loaded", zap.Int("symbols", len(filters)))
	return info, nil
}
