package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"megamarket/internal/market"
)

type Postgres struct {
	pool  *pgxpool.Pool
	runID string
}

// Connect opens a tuned pool and checks it with a ping.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 20
	cfg.MinConns = 2
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 10 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return pool, nil
}

func OpenPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := Connect(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	p := &Postgres{pool: pool, runID: uuid.NewString()}
	if err := p.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return p, nil
}

func (p *Postgres) RunID() string { return p.runID }

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

func (p *Postgres) migrate(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `
		CREATE SCHEMA IF NOT EXISTS megamarket;
		CREATE TABLE IF NOT EXISTS megamarket.turns (
			run_id      UUID NOT NULL,
			turn        INTEGER NOT NULL,
			recorded_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (run_id, turn)
		);
		CREATE TABLE IF NOT EXISTS megamarket.prices (
			run_id UUID NOT NULL,
			turn   INTEGER NOT NULL,
			symbol TEXT NOT NULL,
			price  DOUBLE PRECISION NOT NULL,
			PRIMARY KEY (run_id, turn, symbol),
			FOREIGN KEY (run_id, turn) REFERENCES megamarket.turns (run_id, turn) ON DELETE CASCADE
		);
		CREATE TABLE IF NOT EXISTS megamarket.news (
			id          BIGSERIAL PRIMARY KEY,
			run_id      UUID NOT NULL,
			turn        INTEGER NOT NULL,
			event_id    INTEGER NOT NULL,
			scope       TEXT NOT NULL,
			description TEXT NOT NULL,
			symbols     TEXT[] NOT NULL DEFAULT '{}'
		);
		CREATE INDEX IF NOT EXISTS idx_prices_symbol ON megamarket.prices (run_id, symbol, turn DESC);
	`)
	return err
}

func (p *Postgres) RecordTurn(ctx context.Context, snap market.Snapshot, news []market.NewsItem) error {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO megamarket.turns (run_id, turn)
		VALUES ($1, $2)
	`, p.runID, snap.Turn); err != nil {
		return fmt.Errorf("insert turn %d: %w", snap.Turn, err)
	}

	symbols := make([]string, 0, len(snap.Prices))
	for sym := range snap.Prices {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	batch := &pgx.Batch{}
	for _, sym := range symbols {
		batch.Queue(`
			INSERT INTO megamarket.prices (run_id, turn, symbol, price)
			VALUES ($1, $2, $3, $4)
		`, p.runID, snap.Turn, sym, snap.Prices[sym])
	}
	for _, item := range news {
		syms := item.Symbols
		if syms == nil {
			syms = []string{}
		}
		batch.Queue(`
			INSERT INTO megamarket.news (run_id, turn, event_id, scope, description, symbols)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, p.runID, item.Turn, item.EventID, string(item.Scope), item.Description, syms)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert turn %d rows: %w", snap.Turn, err)
	}
	return tx.Commit(ctx)
}
