package scenario

import (
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"megamarket/internal/market"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDefaultCatalogShape(t *testing.T) {
	c := DefaultCatalog()
	if c.Len() != 21 {
		t.Fatalf("got %d events want 21", c.Len())
	}
	counts := map[market.Scope]int{}
	for _, e := range c.Events() {
		counts[e.Scope]++
		if e.Scope == market.ScopeGlobal && e.Chance != globalChance {
			t.Fatalf("global event %d chance %v", e.ID, e.Chance)
		}
	}
	if counts[market.ScopeGlobal] != 4 || counts[market.ScopeSingle] != 4 || counts[market.ScopeSector] != 13 {
		t.Fatalf("unexpected scope counts %v", counts)
	}
}

func TestDefaultInstrumentsCoverSectors(t *testing.T) {
	cfgs := DefaultInstruments(rand.New(rand.NewSource(333)), market.ModelGBM)
	if len(cfgs) != 9 {
		t.Fatalf("got %d instruments want 9", len(cfgs))
	}
	sectors := map[string]int{}
	for _, c := range cfgs {
		sectors[c.Sector]++
		if c.Price != DefaultSeedPrice {
			t.Fatalf("%s seed price %v", c.Symbol, c.Price)
		}
		if c.Drift < -1 || c.Drift >= 1 || c.Volatility < -1.5 || c.Volatility >= 1.5 {
			t.Fatalf("%s params out of range: drift %v vol %v", c.Symbol, c.Drift, c.Volatility)
		}
	}
	for _, s := range DefaultCatalog().Sectors() {
		if sectors[s] != 3 {
			t.Fatalf("sector %s has %d instruments want 3", s, sectors[s])
		}
	}
}

func TestDefaultMarketRuns(t *testing.T) {
	rng := rand.New(rand.NewSource(333))
	for _, model := range []string{market.ModelGBM, market.ModelTrend} {
		m, err := market.New(market.Options{
			Instruments: DefaultInstruments(rng, model),
			Catalog:     DefaultCatalog(),
			Events:      market.FixedCount(3),
			Rand:        rng,
			Logger:      quietLogger(),
		})
		if err != nil {
			t.Fatalf("%s: new market: %v", model, err)
		}
		for i := 0; i < 50; i++ {
			if _, err := m.AdvanceTurn(); err != nil {
				t.Fatalf("%s turn %d: %v", model, i, err)
			}
		}
	}
}

func TestLoadScenario(t *testing.T) {
	path := writeFile(t, "market.yaml", `
instruments:
  - symbol: acme
    name: Acme Corp
    sector: tech
    price: 10
    drift: 0.1
    volatility: 0.3
  - symbol: BOLT
    sector: energy
    price: 20
    model: trend
    softening: 0.5
events:
  - id: 1
    scope: sector
    sector: tech
    description: Gadget recall
    effects:
      - {param: price, op: multiply, amount: 0.9}
      - {param: sigma, op: add, amount: 0.1}
`)
	sc, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(sc.Instruments) != 2 {
		t.Fatalf("got %d instruments want 2", len(sc.Instruments))
	}
	if sc.Instruments[1].Model != "trend" || sc.Instruments[1].Softening != 0.5 {
		t.Fatalf("unexpected second instrument %+v", sc.Instruments[1])
	}
	c, err := sc.Catalog()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	if c.Len() != 1 {
		t.Fatalf("got %d events want 1", c.Len())
	}
	if eff := c.At(0).Effects[1]; eff.Param != market.ParamVolatility || eff.Op != market.OpAdd {
		t.Fatalf("unexpected effect %+v", eff)
	}
}

func TestLoadScenarioWithoutEventsUsesDefaults(t *testing.T) {
	path := writeFile(t, "market.yaml", "instruments:\n  - {symbol: ACME, price: 10}\n")
	sc, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	c, err := sc.Catalog()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	if c.Len() != DefaultCatalog().Len() {
		t.Fatalf("got %d events want default bank", c.Len())
	}
}

func TestLoadScenarioRequiresInstruments(t *testing.T) {
	path := writeFile(t, "empty.yaml", "events: []\n")
	if _, err := Load(path); !errors.Is(err, ErrNoInstruments) {
		t.Fatalf("expected ErrNoInstruments, got %v", err)
	}
}

func TestLoadCatalogForms(t *testing.T) {
	list := writeFile(t, "list.yaml", `
- id: 3
  scope: global
  chance: 0.5
  description: Rate cut
  effects: [{param: drift, op: add, amount: 0.2}]
`)
	c, err := LoadCatalog(list)
	if err != nil {
		t.Fatalf("list form: %v", err)
	}
	if c.Len() != 1 || c.At(0).Chance != 0.5 {
		t.Fatalf("unexpected list catalog %+v", c.Events())
	}

	doc := writeFile(t, "doc.yaml", `
events:
  - id: 4
    scope: single
    description: CEO resigns
    effects: [{param: volatility, op: multiply, amount: 1.5}]
`)
	c, err = LoadCatalog(doc)
	if err != nil {
		t.Fatalf("document form: %v", err)
	}
	if c.Len() != 1 || c.At(0).ID != 4 {
		t.Fatalf("unexpected document catalog %+v", c.Events())
	}
}

func TestLoadCatalogOrEmptyFallsBack(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.yaml")
	if c := LoadCatalogOrEmpty(missing, quietLogger()); c.Len() != 0 {
		t.Fatalf("missing file: got %d events want 0", c.Len())
	}
	bad := writeFile(t, "bad.yaml", "- id: 1\n  scope: single\n  effects: [{param: beta, op: add, amount: 1}]\n")
	if c := LoadCatalogOrEmpty(bad, quietLogger()); c.Len() != 0 {
		t.Fatalf("invalid event: got %d events want 0", c.Len())
	}
}

func TestDefaultEventsKeepTrendPricesSane(t *testing.T) {
	for _, ev := range DefaultEvents() {
		for seed := int64(1); seed <= 5; seed++ {
			in, err := market.NewInstrument(market.InstrumentConfig{
				Symbol: "PFE", Sector: SectorHealthcare, Price: 50, Drift: 0.1, Volatility: 0.5, Softening: 0.5,
			}, market.DefaultTrendWalk())
			if err != nil {
				t.Fatalf("instrument: %v", err)
			}
			for _, e := range ev.Effects {
				if err := in.ApplyEffect(e.Param, e.Op, e.Amount); err != nil {
					t.Fatalf("event %d: %v", ev.ID, err)
				}
			}
			rng := rand.New(rand.NewSource(seed))
			for turn := 0; turn < 20; turn++ {
				in.Advance(rng)
			}
			if p := in.Price(); p < 5 || p > 500 {
				t.Fatalf("event %d seed %d: price %.2f after 20 turns, want within [5, 500]", ev.ID, seed, p)
			}
		}
	}
}
