package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"megamarket/internal/market"
)

type SQLite struct {
	db    *sql.DB
	runID string
}

// OpenSQLite opens or creates the database at path. ":memory:" is accepted.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if path == "" {
		path = filepath.Join(os.TempDir(), "megamarket", "turns.db")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	s := &SQLite{db: db, runID: uuid.NewString()}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (s *SQLite) RunID() string { return s.runID }

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) createTables(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS turns (
			run_id      TEXT NOT NULL,
			turn        INTEGER NOT NULL,
			recorded_at INTEGER NOT NULL,
			PRIMARY KEY (run_id, turn)
		)`,
		`CREATE TABLE IF NOT EXISTS prices (
			run_id TEXT NOT NULL,
			turn   INTEGER NOT NULL,
			symbol TEXT NOT NULL,
			price  REAL NOT NULL,
			PRIMARY KEY (run_id, turn, symbol)
		)`,
		`CREATE TABLE IF NOT EXISTS news (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id      TEXT NOT NULL,
			turn        INTEGER NOT NULL,
			event_id    INTEGER NOT NULL,
			scope       TEXT NOT NULL,
			description TEXT NOT NULL,
			symbols     TEXT NOT NULL DEFAULT '[]'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_prices_symbol ON prices(run_id, symbol, turn)`,
		`CREATE INDEX IF NOT EXISTS idx_news_turn ON news(run_id, turn)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLite) RecordTurn(ctx context.Context, snap market.Snapshot, news []market.NewsItem) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO turns (run_id, turn, recorded_at) VALUES (?,?,?)`,
		s.runID, snap.Turn, time.Now().UnixNano(),
	); err != nil {
		return fmt.Errorf("failed to insert turn %d: %w", snap.Turn, err)
	}

	symbols := make([]string, 0, len(snap.Prices))
	for sym := range snap.Prices {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	for _, sym := range symbols {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO prices (run_id, turn, symbol, price) VALUES (?,?,?,?)`,
			s.runID, snap.Turn, sym, snap.Prices[sym],
		); err != nil {
			return fmt.Errorf("failed to insert price %s: %w", sym, err)
		}
	}

	for _, item := range news {
		raw, err := json.Marshal(item.Symbols)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO news (run_id, turn, event_id, scope, description, symbols) VALUES (?,?,?,?,?,?)`,
			s.runID, item.Turn, item.EventID, string(item.Scope), item.Description, string(raw),
		); err != nil {
			return fmt.Errorf("failed to insert news: %w", err)
		}
	}
	return tx.Commit()
}
