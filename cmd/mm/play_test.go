package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"megamarket/internal/game"
	"megamarket/internal/market"
)

func newTestGame(t *testing.T, players ...string) *game.Service {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m, err := market.New(market.Options{
		Instruments: []market.InstrumentConfig{{Symbol: "ACME", Name: "Acme Corp", Price: 10}},
		Catalog:     market.EmptyCatalog(),
		Seed:        333,
		Logger:      logger,
	})
	if err != nil {
		t.Fatalf("market: %v", err)
	}
	svc, err := game.NewService(game.Options{Market: m, StartingCash: decimal.NewFromInt(100), Players: players, Logger: logger})
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	return svc
}

func TestConsoleSinglePlayer(t *testing.T) {
	svc := newTestGame(t, "alice")
	input := strings.Join([]string{
		"b acme 5",
		"b acme 10",
		"m",
		"v",
		"a 25",
		"bogus",
		"p",
		"s ACME 5",
		"q",
	}, "\n")
	var out bytes.Buffer
	if err := newConsole(context.Background(), svc, strings.NewReader(input), &out).run(); err != nil {
		t.Fatalf("run: %v", err)
	}

	text := out.String()
	for _, want := range []string{
		"Y1Q1 - Alice >> ",
		"Bought 5 ACME",
		"failed: ",
		"Moving to next turn...",
		"Y1Q2 - Alice >> ",
		"Sold 5 ACME",
		"unknown command",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("output missing %q:\n%s", want, text)
		}
	}
	if svc.Turn() != 1 {
		t.Fatalf("got turn %d want 1", svc.Turn())
	}
	d, err := svc.Dashboard("alice")
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if !d.Cash.Equal(decimal.NewFromInt(125)) || len(d.Positions) != 0 {
		t.Fatalf("got cash %s positions %d want 125 and 0", d.Cash, len(d.Positions))
	}
}

func TestConsoleRoundVisitsEveryPlayer(t *testing.T) {
	svc := newTestGame(t, "alice", "bob")
	// Both players pass, then whoever moves first in round two transfers and quits.
	input := "p\np\nt alice 10\nt bob 10\nq\n"
	var out bytes.Buffer
	if err := newConsole(context.Background(), svc, strings.NewReader(input), &out).run(); err != nil {
		t.Fatalf("run: %v", err)
	}
	if strings.Count(out.String(), "Y1Q1 - ") != 2 {
		t.Fatalf("expected one prompt per player in the first round:\n%s", out.String())
	}
	if svc.Turn() != 1 {
		t.Fatalf("got turn %d want 1", svc.Turn())
	}
	total := decimal.Zero
	for _, name := range []string{"alice", "bob"} {
		d, _ := svc.Dashboard(name)
		total = total.Add(d.Cash)
	}
	if !total.Equal(decimal.NewFromInt(200)) {
		t.Fatalf("transfers changed the total cash to %s", total)
	}
}

func TestConsoleStopsAtEOF(t *testing.T) {
	svc := newTestGame(t, "alice")
	var out bytes.Buffer
	if err := newConsole(context.Background(), svc, strings.NewReader("v\n"), &out).run(); err != nil {
		t.Fatalf("run: %v", err)
	}
	if svc.Turn() != 0 {
		t.Fatalf("EOF should not advance the market, got turn %d", svc.Turn())
	}
}

func TestFormatMoney(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0", "0.00"},
		{"12.5", "12.50"},
		{"1234567.891", "1,234,567.89"},
		{"-2500", "-2,500.00"},
	}
	for _, tc := range tests {
		if got := formatMoney(decimal.RequireFromString(tc.in)); got != tc.want {
			t.Fatalf("formatMoney(%s) got %s want %s", tc.in, got, tc.want)
		}
	}
}

func TestSparkline(t *testing.T) {
	got := sparkline([]game.PricePoint{{Turn: 0, Price: 1}, {Turn: 1, Price: 5}, {Turn: 2, Price: 9}})
	if got != "▁▄█" {
		t.Fatalf("got %q", got)
	}
	if flat := sparkline([]game.PricePoint{{Price: 3}, {Price: 3}}); flat != "▁▁" {
		t.Fatalf("got %q for a flat series", flat)
	}
}
