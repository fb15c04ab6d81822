package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vitos/crypto_move_tracker/internal/domain"
)

const defaultListLimit = 100

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	// one connection serializes concurrent outcome writes
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS trade_outcomes (
			id TEXT PRIMARY KEY,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			volume REAL NOT NULL,
			percentage REAL NOT NULL,
			result REAL NOT NULL,
			entry_price REAL NOT NULL,
			close_price REAL NOT NULL,
			hit INTEGER NOT NULL DEFAULT 0,
			reason TEXT NOT NULL,
			sl_warning BOOLEAN NOT NULL DEFAULT 0,
			msg_id TEXT,
			created_at DATETIME NOT NULL,
			closed_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_trade_outcomes_created_at ON trade_outcomes(created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_trade_outcomes_symbol ON trade_outcomes(symbol);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("failed to exec query %s: %w", q, err)
		}
	}

	return nil
}

// OutcomeRepository Implementation

func (s *SQLiteStore) SaveTradeOutcome(ctx context.Context, o *domain.TradeOutcome) error {
	query := `INSERT INTO trade_outcomes (id, symbol, side, volume, percentage, result, entry_price, close_price, hit, reason, sl_warning, msg_id, created_at, closed_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		o.ID, o.Symbol, string(o.Side), o.Volume, o.ChangePct, o.Result, o.EntryPrice, o.ClosePrice,
		o.Hit, string(o.Reason), o.SLWarning, o.AlertRef, o.CreatedAt.UTC(), o.ClosedAt.UTC())
	if err != nil {
		return fmt.Errorf("save outcome %s: %w", o.ID, err)
	}
	return nil
}

// ListTradeOutcomes returns the most recent outcomes first. A non-positive
// limit falls back to the default.
func (s *SQLiteStore) ListTradeOutcomes(ctx context.Context, limit int) ([]*domain.TradeOutcome, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	query := `SELECT id, symbol, side, volume, percentage, result, entry_price, close_price, hit, reason, sl_warning, msg_id, created_at, closed_at
			  FROM trade_outcomes ORDER BY created_at DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var outcomes []*domain.TradeOutcome
	for rows.Next() {
		var o domain.TradeOutcome
		var side, reason string
		var msgID sql.NullString
		if err := rows.Scan(&o.ID, &o.Symbol, &side, &o.Volume, &o.ChangePct, &o.Result, &o.EntryPrice, &o.ClosePrice,
			&o.Hit, &reason, &o.SLWarning, &msgID, &o.CreatedAt, &o.ClosedAt); err != nil {
			return nil, err
		}
		o.Side = domain.Side(side)
		o.Reason = domain.CloseReason(reason)
		o.AlertRef = msgID.String
		outcomes = append(outcomes, &o)
	}
	return outcomes, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
