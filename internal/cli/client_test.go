package cli

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	"megamarket/internal/api"
	"megamarket/internal/game"
	"megamarket/internal/market"
	"megamarket/internal/syncq"
)

func newClient(t *testing.T) *Client {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m, err := market.New(market.Options{
		Instruments: []market.InstrumentConfig{
			{Symbol: "ACME", Name: "Acme Corp", Sector: "tech", Price: 10},
		},
		Catalog: market.EmptyCatalog(),
		Seed:    1,
		Logger:  logger,
	})
	if err != nil {
		t.Fatalf("market: %v", err)
	}
	svc, err := game.NewService(game.Options{Market: m, StartingCash: decimal.NewFromInt(100), Logger: logger})
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	srv := httptest.NewServer(api.New(logger, svc, nil).Handler())
	t.Cleanup(srv.Close)
	return NewClient(srv.URL + "/")
}

func TestClientRoundTrip(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()

	dash, created, err := c.Join(ctx, "alice")
	if err != nil || !created {
		t.Fatalf("join got created=%v err=%v", created, err)
	}
	if !dash.Cash.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("got starting cash %s want 100", dash.Cash)
	}
	if _, created, _ = c.Join(ctx, "alice"); created {
		t.Fatalf("second join should not create")
	}

	res, err := c.PlaceOrder(ctx, "alice", "acme", game.SideBuy, "5", "k1")
	if err != nil {
		t.Fatalf("order: %v", err)
	}
	if res.Shares != 5 || !res.Cash.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("unexpected order result %+v", res)
	}

	_, err = c.PlaceOrder(ctx, "alice", "ACME", game.SideBuy, "5", "k1")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusConflict {
		t.Fatalf("expected 409 APIError, got %v", err)
	}
	if IsUnreachable(err) {
		t.Fatalf("an API answer is not unreachable")
	}

	list, err := c.ListStocks(ctx)
	if err != nil || list.Turn != 0 || len(list.Stocks) != 1 || list.Stocks[0].Symbol != "ACME" {
		t.Fatalf("stocks got %+v, %v", list, err)
	}

	turn, err := c.AdvanceTurn(ctx, 2)
	if err != nil || turn.Turn != 2 || len(turn.Reports) != 2 {
		t.Fatalf("turn got %+v, %v", turn, err)
	}
	detail, err := c.StockDetail(ctx, "ACME", 0)
	if err != nil || len(detail.Series) != 3 {
		t.Fatalf("detail got %+v, %v", detail, err)
	}

	cash, err := c.Acquire(ctx, "alice", decimal.NewFromInt(10))
	if err != nil || !cash.Equal(decimal.NewFromInt(60)) {
		t.Fatalf("acquire got %s, %v", cash, err)
	}
	if _, _, err := c.Join(ctx, "bob"); err != nil {
		t.Fatalf("join bob: %v", err)
	}
	if err := c.Transfer(ctx, "bob", "alice", decimal.NewFromInt(30)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	rows, err := c.Leaderboard(ctx, 10)
	if err != nil || len(rows) != 2 || rows[0].Player != "alice" {
		t.Fatalf("leaderboard got %+v, %v", rows, err)
	}
}

func TestSyncReplayFromQueue(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	c := newClient(t)
	ctx := context.Background()
	if _, _, err := c.Join(ctx, "alice"); err != nil {
		t.Fatalf("join: %v", err)
	}

	cmd := syncq.Command{Method: http.MethodPost, Path: "/v1/orders", Body: OrderBody("alice", "acme", game.SideBuy, "2"), IdempotencyKey: "offline-1"}
	if err := syncq.Push(cmd); err != nil {
		t.Fatalf("push: %v", err)
	}
	queued, err := syncq.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	results, err := c.SyncReplay(ctx, queued)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(results) != 1 || results[0].Status != "ok" || results[0].Result == nil || results[0].Result.Shares != 2 {
		t.Fatalf("unexpected replay results %+v", results)
	}

	results, err = c.SyncReplay(ctx, queued)
	if err != nil || results[0].Status != "duplicate" {
		t.Fatalf("second replay got %+v, %v", results, err)
	}
}

func TestUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(url).ListStocks(context.Background())
	if err == nil || !IsUnreachable(err) {
		t.Fatalf("expected unreachable error, got %v", err)
	}
}

func TestSessionRoundTrip(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	if _, err := LoadSession(); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
	if err := SaveSession(Session{Player: "alice", APIBaseURL: "http://example"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	s, err := LoadSession()
	if err != nil || s.Player != "alice" || s.APIBaseURL != "http://example" {
		t.Fatalf("load got %+v, %v", s, err)
	}
	if err := ClearSession(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, err := LoadSession(); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession after clear, got %v", err)
	}
}
