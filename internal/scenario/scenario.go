// Package scenario supplies the starting instruments and the news catalog,
// either built in or read from a YAML file.
package scenario

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"megamarket/internal/market"
)

const (
	SectorEnergy     = "energy"
	SectorTech       = "tech"
	SectorHealthcare = "healthcare"

	DefaultSeedPrice = 50.0

	// ModelMixed alternates the gbm and trend processes across listings.
	ModelMixed = "mixed"
)

var ErrNoInstruments = errors.New("scenario has no instruments")

// Scenario is the on-disk description of a market.
type Scenario struct {
	Instruments []market.InstrumentConfig `yaml:"instruments"`
	Events      []market.Event            `yaml:"events"`

	eventsErr error
}

// scenarioFile defers decoding the events so a broken events block does not
// cost the instrument list.
type scenarioFile struct {
	Instruments []market.InstrumentConfig `yaml:"instruments"`
	Events      yaml.Node                 `yaml:"events"`
}

var defaultListings = []struct {
	Symbol, Name, Sector string
}{
	{"XOM", "Exxon Mobil", SectorEnergy},
	{"CVX", "Chevron", SectorEnergy},
	{"ALD", "Ald Energy", SectorEnergy},
	{"APPL", "Appl Computer", SectorTech},
	{"MFST", "Mfst Software", SectorTech},
	{"GOOG", "Goog Search", SectorTech},
	{"PFE", "Pfizer", SectorHealthcare},
	{"JNJ", "Johnson & Johnson", SectorHealthcare},
	{"CSL", "CSL Biotech", SectorHealthcare},
}

// DefaultInstruments seeds the built-in listings at DefaultSeedPrice with
// drift in [-1, 1) and volatility in [-1.5, 1.5), drawn from rng. model is
// applied to every listing, or alternated when it is ModelMixed.
func DefaultInstruments(rng *rand.Rand, model string) []market.InstrumentConfig {
	out := make([]market.InstrumentConfig, 0, len(defaultListings))
	for i, l := range defaultListings {
		process := model
		if strings.EqualFold(model, ModelMixed) {
			process = market.ModelGBM
			if i%2 == 1 {
				process = market.ModelTrend
			}
		}
		cfg := market.InstrumentConfig{
			Symbol:     l.Symbol,
			Name:       l.Name,
			Sector:     l.Sector,
			Price:      DefaultSeedPrice,
			Drift:      2 * (rng.Float64() - 0.5),
			Volatility: 3 * (rng.Float64() - 0.5),
			Model:      process,
		}
		if strings.EqualFold(process, market.ModelTrend) {
			// trend rolls need a positive spread
			cfg.Volatility = 0.3 + 1.2*rng.Float64()
			cfg.Softening = 0.2 + rng.Float64()
		}
		out = append(out, cfg)
	}
	return out
}

// Load reads a YAML scenario from path.
func Load(path string) (*Scenario, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open scenario: %w", err)
	}
	defer file.Close()

	var f scenarioFile
	if err := yaml.NewDecoder(file).Decode(&f); err != nil {
		return nil, fmt.Errorf("decode scenario %s: %w", path, err)
	}
	if len(f.Instruments) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrNoInstruments)
	}
	sc := &Scenario{Instruments: f.Instruments}
	if !f.Events.IsZero() {
		if err := f.Events.Decode(&sc.Events); err != nil {
			sc.eventsErr = fmt.Errorf("decode events in %s: %w", path, err)
		}
	}
	return sc, nil
}

// Catalog builds the scenario's catalog. A scenario without an events key
// falls back to the built-in bank.
func (s *Scenario) Catalog() (*market.Catalog, error) {
	if s.eventsErr != nil {
		return nil, s.eventsErr
	}
	if s.Events == nil {
		return DefaultCatalog(), nil
	}
	return market.NewCatalog(s.Events)
}

// LoadCatalog reads a YAML file holding either a bare list of events or a
// document with an events key.
func LoadCatalog(path string) (*market.Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var events []market.Event
	if err := yaml.Unmarshal(raw, &events); err != nil {
		var doc Scenario
		if err2 := yaml.Unmarshal(raw, &doc); err2 != nil {
			return nil, fmt.Errorf("decode catalog %s: %w", path, err)
		}
		events = doc.Events
	}
	return market.NewCatalog(events)
}

// LoadCatalogOrEmpty never fails: a missing or malformed catalog is logged
// and replaced by an empty one, so turns proceed without news.
func LoadCatalogOrEmpty(path string, logger *slog.Logger) *market.Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	c, err := LoadCatalog(path)
	if err != nil {
		logger.Warn("event catalog unavailable, running without news", "path", path, "err", err)
		return market.EmptyCatalog()
	}
	return c
}
