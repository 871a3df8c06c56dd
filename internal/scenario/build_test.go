package scenario

import (
	"path/filepath"
	"testing"

	"megamarket/internal/market"
)

func TestNewMarketWarmsUp(t *testing.T) {
	m, err := NewMarket(Options{
		Model:       market.ModelGBM,
		Events:      market.FixedCount(3),
		Seed:        333,
		WarmupTurns: 10,
		Logger:      quietLogger(),
	})
	if err != nil {
		t.Fatalf("new market: %v", err)
	}
	if m.Turn() != 10 {
		t.Fatalf("got turn %d want 10", m.Turn())
	}
	if got := len(m.Symbols()); got != 9 {
		t.Fatalf("got %d symbols want 9", got)
	}
	if m.Catalog().Len() != 21 {
		t.Fatalf("got %d events want the built-in 21", m.Catalog().Len())
	}
}

func TestNewMarketIsReproducible(t *testing.T) {
	build := func() map[string]float64 {
		m, err := NewMarket(Options{Model: ModelMixed, Events: market.FixedCount(3), Seed: 42, WarmupTurns: 5, Logger: quietLogger()})
		if err != nil {
			t.Fatalf("new market: %v", err)
		}
		snap, _ := m.Snapshot(m.Turn())
		return snap.Prices
	}
	a, b := build(), build()
	for sym, p := range a {
		if b[sym] != p {
			t.Fatalf("%s diverged: %v vs %v", sym, p, b[sym])
		}
	}
}

func TestNewMarketMixedModels(t *testing.T) {
	m, err := NewMarket(Options{Model: ModelMixed, Seed: 1, Logger: quietLogger()})
	if err != nil {
		t.Fatalf("new market: %v", err)
	}
	seen := map[string]int{}
	for _, v := range m.Instruments() {
		seen[v.Model]++
	}
	if seen[market.ModelGBM] == 0 || seen[market.ModelTrend] == 0 {
		t.Fatalf("expected both models, got %v", seen)
	}
}

func TestNewMarketFromFiles(t *testing.T) {
	path := writeFile(t, "scenario.yaml", `
instruments:
  - symbol: ACME
    price: 10
  - symbol: BOLT
    price: 20
    model: trend
    drift: 0.2
    volatility: 1
    softening: 0.5
`)
	missing := filepath.Join(t.TempDir(), "missing.yaml")
	m, err := NewMarket(Options{Path: path, CatalogPath: missing, Events: market.FixedCount(2), Seed: 9, WarmupTurns: 3, Logger: quietLogger()})
	if err != nil {
		t.Fatalf("new market: %v", err)
	}
	if m.Catalog().Len() != 0 {
		t.Fatalf("unreadable catalog should leave the market without events, got %d", m.Catalog().Len())
	}
	if len(m.News()) != 0 {
		t.Fatalf("got %d news items want 0", len(m.News()))
	}
	acme, err := m.Instrument("ACME")
	if err != nil || acme.Model != market.ModelGBM {
		t.Fatalf("ACME got %+v, %v", acme, err)
	}

	if _, err := NewMarket(Options{Path: filepath.Join(t.TempDir(), "nope.yaml"), Logger: quietLogger()}); err == nil {
		t.Fatalf("expected an error for a missing scenario file")
	}
}

func TestNewMarketSurvivesBadScenarioEvents(t *testing.T) {
	tests := []struct {
		name   string
		events string
	}{
		{"unknown scope", `
events:
  - id: 1
    scope: galaxy
    description: Far away
    effects: [{param: price, op: add, amount: 1}]
`},
		{"wrong shape", `
events: "not a list"
`},
	}
	for _, tc := range tests {
		path := writeFile(t, "scenario.yaml", `
instruments:
  - symbol: ACME
    price: 10
`+tc.events)
		m, err := NewMarket(Options{Path: path, Events: market.FixedCount(1), Seed: 7, WarmupTurns: 2, Logger: quietLogger()})
		if err != nil {
			t.Fatalf("%s: new market: %v", tc.name, err)
		}
		if m.Catalog().Len() != 0 || m.Turn() != 2 || len(m.News()) != 0 {
			t.Fatalf("%s: got %d events, turn %d, %d news", tc.name, m.Catalog().Len(), m.Turn(), len(m.News()))
		}
	}

	bad := writeFile(t, "scenario.yaml", `
instruments:
  - symbol: ACME
    price: -5
`)
	if _, err := NewMarket(Options{Path: bad, Logger: quietLogger()}); err == nil {
		t.Fatalf("expected bad instruments to fail the build")
	}
}
