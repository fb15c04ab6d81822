package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/vitos/crypto_move_tracker/internal/config"
	"github.com/vitos/crypto_move_tracker/internal/infrastructure/exchange"
	"github.com/vitos/crypto_move_tracker/internal/usecase"
	"go.uber.org/zap"
)

func main() {
	// 1. Load Config
	cfg, err := config.Load("config/config.yaml")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	symbol := "BTCUSDT"
	if len(os.Args) > 1 {
		symbol = os.Args[1]
	}

	fmt.Printf("Testing Binance Futures interaction (testnet=%v)...\n", cfg.Exchange.Testnet)
	fmt.Printf("API Key: %s\n", cfg.MaskedAPIKey())

	binance := exchange.NewBinanceFutures(cfg.Exchange.APIKey, cfg.Exchange.APISecret, cfg.Exchange.Testnet, zap.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// 2. Check Universe
	symbols, err := binance.GetTradableSymbols(ctx, cfg.Exchange.QuoteAsset)
	if err != nil {
		fmt.Printf("❌ Failed to list symbols: %v\n", err)
	} else {
		groups := usecase.PartitionSymbols(symbols, cfg.Detector.GroupSize)
		fmt.Printf("✅ %d %s perpetuals in %d stream groups of up to %d\n",
			len(symbols), cfg.Exchange.QuoteAsset, len(groups), cfg.Detector.GroupSize)
	}

	// 3. Check Public Endpoint (Price)
	price, err := binance.GetCurrentPrice(ctx, symbol)
	if err != nil {
		fmt.Printf("❌ Failed to get price: %v\n", err)
	} else {
		fmt.Printf("✅ Current Price (%s): %f\n", symbol, price)
	}

	// 4. Check Precision
	amount, err := binance.AmountToPrecision(ctx, symbol, 0.123456789)
	if err != nil {
		fmt.Printf("❌ Failed to load filters: %v\n", err)
	} else {
		fmt.Printf("✅ Amount step (%s): 0.123456789 -> %s\n", symbol, amount)
	}

	// 5. Check Private Endpoint (Position)
	if cfg.Exchange.APIKey == "" {
		fmt.Println("⚠️ API_KEY not set, skipping position check")
		return
	}
	pos, err := binance.GetPositionAmount(ctx, symbol)
	if err != nil {
		fmt.Printf("❌ Failed to get position: %v\n", err)
	} else {
		fmt.Printf("✅ Position (%s): Amount=%s\n", symbol, pos)
	}
}
