package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/vitos/crypto_move_tracker/internal/infrastructure/storage"
)

func main() {
	dbPath := "bot.db"
	if v := os.Getenv("DB_PATH"); v != "" {
		dbPath = v
	}
	limit := 20
	if len(os.Args) > 1 {
		n, err := strconv.Atoi(os.Args[1])
		if err != nil {
			fmt.Printf("Invalid limit %q: %v\n", os.Args[1], err)
			os.Exit(1)
		}
		limit = n
	}

	store, err := storage.NewSQLiteStore(dbPath)
	if err != nil {
		fmt.Printf("Failed to init sqlite: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	outcomes, err := store.ListTradeOutcomes(context.Background(), limit)
	if err != nil {
		fmt.Printf("Failed to list trade outcomes: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Found %d trade outcomes:\n", len(outcomes))
	var total float64
	for _, o := range outcomes {
		marker := "➖"
		switch {
		case o.Result > 0:
			marker = "✅"
		case o.Result < 0:
			marker = "❌"
		}
		fmt.Printf("%s %s %-12s %-5s move=%+.2f%% hit=%d result=%.2f%% reason=%s entry=%g close=%g\n",
			marker, o.CreatedAt.Format("2006-01-02 15:04"), o.Symbol, o.Side,
			o.ChangePct, o.Hit, o.Result, o.Reason, o.EntryPrice, o.ClosePrice)
		if o.SLWarning {
			fmt.Println("  ⚠️ first stop-loss rung was touched")
		}
		total += o.Result
	}
	if len(outcomes) > 0 {
		fmt.Printf("Total result: %.2f%%, average: %.2f%%\n", total, total/float64(len(outcomes)))
	}
}
