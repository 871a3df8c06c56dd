// Package market implements the turn-based price engine: per-instrument
// stochastic processes, the news-event catalog and selector, and the Market
// that ties them together one turn at a time.
//
// A Market is not safe for concurrent use. Callers that share one across
// goroutines must serialize AdvanceTurn and ApplyEffect themselves.
package market

import (
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"
)

// NewsItem records one applied event.
type NewsItem struct {
	Turn        int      `json:"turn"`
	EventID     int      `json:"event_id"`
	Scope       Scope    `json:"scope"`
	Description string   `json:"description"`
	Symbols     []string `json:"symbols"`
}

// Snapshot is a detached copy of every instrument price at the end of a turn.
type Snapshot struct {
	Turn   int                `json:"turn"`
	Prices map[string]float64 `json:"prices"`
}

// TurnReport summarizes one AdvanceTurn call.
type TurnReport struct {
	Turn    int                `json:"turn"`
	News    []NewsItem         `json:"news"`
	Prices  map[string]float64 `json:"prices"`
	Skipped int                `json:"skipped"`
}

type Options struct {
	Instruments []InstrumentConfig
	Catalog     *Catalog
	Events      CountPolicy
	MaxAttempts int
	// DefaultModel is used for instruments that do not name one.
	DefaultModel string
	Seed         int64
	Rand         *rand.Rand
	Logger       *slog.Logger
}

type Market struct {
	rng      *rand.Rand
	log      *slog.Logger
	selector *Selector

	order       []string
	instruments map[string]*Instrument

	turn      int
	news      []NewsItem
	snapshots []Snapshot
}

// New builds a market from opts. When opts.Rand is nil a source is created
// from opts.Seed, or from the clock when Seed is zero.
func New(opts Options) (*Market, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rng := opts.Rand
	if rng == nil {
		seed := opts.Seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		rng = rand.New(rand.NewSource(seed))
	}
	selector, err := NewSelector(opts.Catalog, opts.Events, opts.MaxAttempts)
	if err != nil {
		return nil, err
	}

	m := &Market{
		rng:         rng,
		log:         logger,
		selector:    selector,
		instruments: make(map[string]*Instrument, len(opts.Instruments)),
	}
	for _, cfg := range opts.Instruments {
		model := cfg.Model
		if strings.TrimSpace(model) == "" {
			model = opts.DefaultModel
		}
		process, err := ProcessFor(model)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", cfg.Symbol, err)
		}
		in, err := NewInstrument(cfg, process)
		if err != nil {
			return nil, err
		}
		if _, dup := m.instruments[in.Symbol]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicate, in.Symbol)
		}
		m.instruments[in.Symbol] = in
		m.order = append(m.order, in.Symbol)
	}
	m.snapshots = append(m.snapshots, m.snapshot())
	return m, nil
}

func (m *Market) Turn() int { return m.turn }

// Rand exposes the shared source so collaborators (turn order, seeding) draw
// from the same reproducible stream.
func (m *Market) Rand() *rand.Rand { return m.rng }

func (m *Market) Catalog() *Catalog { return m.selector.Catalog() }

// Symbols returns instrument symbols in their stable iteration order.
func (m *Market) Symbols() []string {
	return append([]string(nil), m.order...)
}

func (m *Market) CurrentPrice(symbol string) (float64, error) {
	in, err := m.lookup(symbol)
	if err != nil {
		return 0, err
	}
	return in.Price(), nil
}

func (m *Market) Instrument(symbol string) (View, error) {
	in, err := m.lookup(symbol)
	if err != nil {
		return View{}, err
	}
	return in.View(), nil
}

func (m *Market) Instruments() []View {
	out := make([]View, 0, len(m.order))
	for _, sym := range m.order {
		out = append(out, m.instruments[sym].View())
	}
	return out
}

func (m *Market) History(symbol string) ([]float64, error) {
	in, err := m.lookup(symbol)
	if err != nil {
		return nil, err
	}
	return in.History(), nil
}

// ApplyEffect mutates one parameter of one instrument.
func (m *Market) ApplyEffect(symbol string, param Param, op Op, amount float64) error {
	in, err := m.lookup(symbol)
	if err != nil {
		return err
	}
	return in.ApplyEffect(param, op, amount)
}

// AdvanceTurn selects and applies this turn's events, steps every instrument,
// bumps the turn counter and stores a snapshot of the resulting prices.
func (m *Market) AdvanceTurn() (TurnReport, error) {
	ordered := make([]*Instrument, len(m.order))
	for i, sym := range m.order {
		ordered[i] = m.instruments[sym]
	}

	next := m.turn + 1
	sel := m.selector.Select(m.rng, ordered)
	if sel.Skipped > 0 {
		m.log.Warn("event slots skipped after bounded resampling",
			"turn", next, "skipped", sel.Skipped)
	}

	news := make([]NewsItem, 0, len(sel.Firings))
	for _, f := range sel.Firings {
		for _, sym := range f.Symbols {
			for _, eff := range f.Event.Effects {
				if err := m.ApplyEffect(sym, eff.Param, eff.Op, eff.Amount); err != nil {
					return TurnReport{}, fmt.Errorf("apply event %d: %w", f.Event.ID, err)
				}
			}
		}
		item := NewsItem{
			Turn:        next,
			EventID:     f.Event.ID,
			Scope:       f.Event.Scope,
			Description: f.Event.Description,
			Symbols:     append([]string(nil), f.Symbols...),
		}
		news = append(news, item)
		m.log.Debug("event applied", "turn", next, "event_id", item.EventID, "scope", item.Scope, "symbols", item.Symbols)
	}

	for _, in := range ordered {
		in.Advance(m.rng)
	}
	m.turn = next
	m.news = append(m.news, news...)
	snap := m.snapshot()
	m.snapshots = append(m.snapshots, snap)

	return TurnReport{
		Turn:    next,
		News:    copyNews(news),
		Prices:  copyPrices(snap.Prices),
		Skipped: sel.Skipped,
	}, nil
}

// News returns the full applied-event log, oldest first.
func (m *Market) News() []NewsItem {
	return copyNews(m.news)
}

// Snapshots returns deep copies of every stored turn snapshot, turn 0 first.
func (m *Market) Snapshots() []Snapshot {
	out := make([]Snapshot, len(m.snapshots))
	for i, s := range m.snapshots {
		out[i] = Snapshot{Turn: s.Turn, Prices: copyPrices(s.Prices)}
	}
	return out
}

func (m *Market) Snapshot(turn int) (Snapshot, bool) {
	if turn < 0 || turn >= len(m.snapshots) {
		return Snapshot{}, false
	}
	s := m.snapshots[turn]
	return Snapshot{Turn: s.Turn, Prices: copyPrices(s.Prices)}, true
}

func (m *Market) lookup(symbol string) (*Instrument, error) {
	in, ok := m.instruments[strings.ToUpper(strings.TrimSpace(symbol))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSymbol, symbol)
	}
	return in, nil
}

func (m *Market) snapshot() Snapshot {
	prices := make(map[string]float64, len(m.order))
	for _, sym := range m.order {
		prices[sym] = m.instruments[sym].Price()
	}
	return Snapshot{Turn: m.turn, Prices: prices}
}

func copyPrices(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copyNews(in []NewsItem) []NewsItem {
	out := make([]NewsItem, len(in))
	for i, n := range in {
		n.Symbols = append([]string(nil), n.Symbols...)
		out[i] = n
	}
	return out
}
