package market

import (
	"errors"
	"fmt"
	"strings"
)

// Scope is the breadth of instruments an event can reach.
type Scope string

const (
	ScopeGlobal Scope = "global"
	ScopeSector Scope = "sector"
	ScopeSingle Scope = "single"
)

var ErrInvalidEvent = errors.New("invalid event definition")

type Effect struct {
	Param  Param   `yaml:"param" json:"param"`
	Op     Op      `yaml:"op" json:"op"`
	Amount float64 `yaml:"amount" json:"amount"`
}

// Event is one catalog entry. Chance is the probability that the event is
// accepted once drawn; zero means always.
type Event struct {
	ID          int      `yaml:"id" json:"id"`
	Scope       Scope    `yaml:"scope" json:"scope"`
	Sector      string   `yaml:"sector,omitempty" json:"sector,omitempty"`
	Description string   `yaml:"description" json:"description"`
	Chance      float64  `yaml:"chance,omitempty" json:"chance,omitempty"`
	Effects     []Effect `yaml:"effects" json:"effects"`
}

func (e Event) acceptChance() float64 {
	if e.Chance <= 0 || e.Chance > 1 {
		return 1
	}
	return e.Chance
}

func (e Event) validate() error {
	switch e.Scope {
	case ScopeGlobal, ScopeSingle:
	case ScopeSector:
		if strings.TrimSpace(e.Sector) == "" {
			return fmt.Errorf("%w: event %d: sector scope without sector", ErrInvalidEvent, e.ID)
		}
	default:
		return fmt.Errorf("%w: event %d: scope %q", ErrInvalidEvent, e.ID, e.Scope)
	}
	if e.Chance < 0 || e.Chance > 1 {
		return fmt.Errorf("%w: event %d: chance %v outside [0,1]", ErrInvalidEvent, e.ID, e.Chance)
	}
	return nil
}

// Catalog is an immutable, ordered bank of events.
type Catalog struct {
	events []Event
}

// NewCatalog normalizes and validates defs. The returned catalog owns its own
// copy, so later changes to defs do not leak in.
func NewCatalog(defs []Event) (*Catalog, error) {
	events := make([]Event, 0, len(defs))
	seen := make(map[int]struct{}, len(defs))
	for _, d := range defs {
		d.Scope = Scope(strings.ToLower(strings.TrimSpace(string(d.Scope))))
		d.Sector = strings.ToLower(strings.TrimSpace(d.Sector))
		effects := make([]Effect, len(d.Effects))
		for i, eff := range d.Effects {
			p, err := ParseParam(string(eff.Param))
			if err != nil {
				return nil, fmt.Errorf("event %d: %w", d.ID, err)
			}
			o, err := ParseOp(string(eff.Op))
			if err != nil {
				return nil, fmt.Errorf("event %d: %w", d.ID, err)
			}
			effects[i] = Effect{Param: p, Op: o, Amount: eff.Amount}
		}
		d.Effects = effects
		if err := d.validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[d.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %d", ErrInvalidEvent, d.ID)
		}
		seen[d.ID] = struct{}{}
		events = append(events, d)
	}
	return &Catalog{events: events}, nil
}

// EmptyCatalog yields a catalog under which turns fire no events.
func EmptyCatalog() *Catalog {
	return &Catalog{}
}

func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.events)
}

func (c *Catalog) At(i int) Event {
	e := c.events[i]
	e.Effects = append([]Effect(nil), e.Effects...)
	return e
}

// Events returns a copy of the catalog in order.
func (c *Catalog) Events() []Event {
	out := make([]Event, c.Len())
	for i := range out {
		out[i] = c.At(i)
	}
	return out
}

// Sectors lists the distinct sectors referenced by sector-scoped events.
func (c *Catalog) Sectors() []string {
	var out []string
	seen := map[string]bool{}
	for _, e := range c.events {
		if e.Scope == ScopeSector && !seen[e.Sector] {
			seen[e.Sector] = true
			out = append(out, e.Sector)
		}
	}
	return out
}
