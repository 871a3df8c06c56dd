package market

import (
	"fmt"
	"math/rand"
)

// DefaultMaxAttempts bounds the draws spent filling one event slot.
const DefaultMaxAttempts = 64

// CountPolicy decides how many events are drawn per turn: exactly Min when
// Min == Max, otherwise uniformly in [Min, Max].
type CountPolicy struct {
	Min int
	Max int
}

func FixedCount(n int) CountPolicy { return CountPolicy{Min: n, Max: n} }

func (p CountPolicy) Validate() error {
	if p.Min < 0 || p.Max < p.Min {
		return fmt.Errorf("invalid event count range [%d,%d]", p.Min, p.Max)
	}
	return nil
}

func (p CountPolicy) draw(rng *rand.Rand) int {
	if p.Max <= p.Min {
		return p.Min
	}
	return p.Min + rng.Intn(p.Max-p.Min+1)
}

// Firing is one accepted event together with the symbols it targets.
type Firing struct {
	Event   Event
	Symbols []string
}

// Selection is the outcome of one turn's draw.
type Selection struct {
	Firings []Firing
	// Skipped counts slots abandoned after MaxAttempts draws.
	Skipped int
}

type Selector struct {
	catalog     *Catalog
	policy      CountPolicy
	maxAttempts int
}

func NewSelector(catalog *Catalog, policy CountPolicy, maxAttempts int) (*Selector, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if catalog == nil {
		catalog = EmptyCatalog()
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Selector{catalog: catalog, policy: policy, maxAttempts: maxAttempts}, nil
}

func (s *Selector) Catalog() *Catalog { return s.catalog }

// Select draws this turn's events. instruments must be in stable order so that
// a fixed seed reproduces the same picks. At most one global event fires and no
// instrument is targeted by more than one scoped event.
func (s *Selector) Select(rng *rand.Rand, instruments []*Instrument) Selection {
	var out Selection
	if s.catalog.Len() == 0 {
		return out
	}
	slots := s.policy.draw(rng)
	picked := make(map[string]bool, len(instruments))
	globalFired := false

	for slot := 0; slot < slots; slot++ {
		firing, ok := s.fill(rng, instruments, picked, &globalFired)
		if !ok {
			out.Skipped++
			continue
		}
		out.Firings = append(out.Firings, firing)
	}
	return out
}

func (s *Selector) fill(rng *rand.Rand, instruments []*Instrument, picked map[string]bool, globalFired *bool) (Firing, bool) {
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		idx := rng.Intn(len(s.catalog.events))
		ev := s.catalog.events[idx]
		if ev.Scope == ScopeGlobal && *globalFired {
			continue
		}
		if chance := ev.acceptChance(); chance < 1 && rng.Float64() >= chance {
			continue
		}

		if ev.Scope == ScopeGlobal {
			symbols := make([]string, len(instruments))
			for i, in := range instruments {
				symbols[i] = in.Symbol
			}
			*globalFired = true
			return Firing{Event: s.catalog.At(idx), Symbols: symbols}, true
		}

		candidates := make([]*Instrument, 0, len(instruments))
		for _, in := range instruments {
			if picked[in.Symbol] {
				continue
			}
			if ev.Scope == ScopeSector && in.Sector != ev.Sector {
				continue
			}
			candidates = append(candidates, in)
		}
		if len(candidates) == 0 {
			continue
		}
		target := candidates[rng.Intn(len(candidates))]
		picked[target.Symbol] = true
		return Firing{Event: s.catalog.At(idx), Symbols: []string{target.Symbol}}, true
	}
	return Firing{}, false
}
