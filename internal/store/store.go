// Package store records finished market turns for offline analysis. Two
// backends share one schema: SQLite for local runs and Postgres for the
// hosted API.
package store

import (
	"context"
	"log/slog"
	"strings"

	"megamarket/internal/market"
)

// Recorder persists turns for a single market run. Every Recorder tags rows
// with its own run ID, so several runs can share one database.
type Recorder interface {
	RecordTurn(ctx context.Context, snap market.Snapshot, news []market.NewsItem) error
	RunID() string
	Close() error
}

// Open picks a backend from url: postgres:// and postgresql:// use Postgres,
// sqlite:// or a bare path use SQLite, and an empty url records nothing.
func Open(ctx context.Context, url string, logger *slog.Logger) (Recorder, error) {
	if logger == nil {
		logger = slog.Default()
	}
	url = strings.TrimSpace(url)
	switch {
	case url == "":
		logger.Info("turn recording disabled")
		return Nop{}, nil
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		rec, err := OpenPostgres(ctx, url)
		if err != nil {
			return nil, err
		}
		logger.Info("recording turns to postgres", "run_id", rec.RunID())
		return rec, nil
	default:
		path := strings.TrimPrefix(url, "sqlite://")
		rec, err := OpenSQLite(ctx, path)
		if err != nil {
			return nil, err
		}
		logger.Info("recording turns to sqlite", "path", path, "run_id", rec.RunID())
		return rec, nil
	}
}

// Nop drops everything.
type Nop struct{}

func (Nop) RecordTurn(context.Context, market.Snapshot, []market.NewsItem) error { return nil }

func (Nop) RunID() string { return "" }

func (Nop) Close() error { return nil }
