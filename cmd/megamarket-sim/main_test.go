package main

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"megamarket/internal/config"
	"megamarket/internal/market"
	"megamarket/internal/store"
)

type countingRecorder struct {
	turns  []int
	closed bool
}

func (r *countingRecorder) RecordTurn(_ context.Context, snap market.Snapshot, _ []market.NewsItem) error {
	r.turns = append(r.turns, snap.Turn)
	return nil
}

func (r *countingRecorder) RunID() string { return "test-run" }

func (r *countingRecorder) Close() error {
	r.closed = true
	return nil
}

func useRecorder(t *testing.T, rec store.Recorder) {
	t.Helper()
	orig := openStore
	openStore = func(context.Context, string, *slog.Logger) (store.Recorder, error) { return rec, nil }
	t.Cleanup(func() { openStore = orig })
}

func testConfig() config.ServerConfig {
	return config.ServerConfig{Seed: 333, EventsMin: 3, EventsMax: 3, Model: market.ModelGBM}
}

func TestRunRecordsTurnsAndCloses(t *testing.T) {
	rec := &countingRecorder{}
	useRecorder(t, rec)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	if err := run(context.Background(), testConfig(), 3, logger); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(rec.turns) != 4 || rec.turns[0] != 0 || rec.turns[3] != 3 {
		t.Fatalf("got recorded turns %v want [0 1 2 3]", rec.turns)
	}
	if !rec.closed {
		t.Fatalf("recorder left open")
	}
}

func TestRunClosesRecorderOnFailure(t *testing.T) {
	rec := &countingRecorder{}
	useRecorder(t, rec)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := run(ctx, testConfig(), 2, logger); err == nil {
		t.Fatalf("expected a cancelled run to fail")
	}
	if !rec.closed {
		t.Fatalf("recorder left open after a failed run")
	}
}
