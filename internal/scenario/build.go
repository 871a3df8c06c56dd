package scenario

import (
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"megamarket/internal/market"
)

// Options describes where a market's instruments and events come from.
type Options struct {
	// Path names a scenario file. Empty uses DefaultInstruments. Bad
	// instruments fail the build; bad events leave the market without news.
	Path string
	// CatalogPath overrides the scenario's events. A catalog that cannot be
	// read leaves the market without news rather than failing.
	CatalogPath string
	Model       string
	Events      market.CountPolicy
	MaxAttempts int
	Seed        int64
	WarmupTurns int
	Logger      *slog.Logger
}

// NewMarket builds a market from opts and runs the warm-up turns. One
// generator seeds the listings and drives the market, so a fixed seed
// reproduces the whole run.
func NewMarket(opts Options) (*market.Market, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	model := strings.ToLower(strings.TrimSpace(opts.Model))
	if model == "" {
		model = market.ModelGBM
	}
	defaultModel := model
	if model == ModelMixed {
		defaultModel = market.ModelGBM
	}

	var (
		instruments []market.InstrumentConfig
		catalog     *market.Catalog
	)
	if strings.TrimSpace(opts.Path) != "" {
		sc, err := Load(opts.Path)
		if err != nil {
			return nil, err
		}
		instruments = sc.Instruments
		if catalog, err = sc.Catalog(); err != nil {
			logger.Warn("scenario events unusable, running without news", "path", opts.Path, "err", err)
			catalog = market.EmptyCatalog()
		}
	} else {
		instruments = DefaultInstruments(rng, model)
		catalog = DefaultCatalog()
	}
	if strings.TrimSpace(opts.CatalogPath) != "" {
		catalog = LoadCatalogOrEmpty(opts.CatalogPath, logger)
	}

	m, err := market.New(market.Options{
		Instruments:  instruments,
		Catalog:      catalog,
		Events:       opts.Events,
		MaxAttempts:  opts.MaxAttempts,
		DefaultModel: defaultModel,
		Rand:         rng,
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}
	for i := 0; i < opts.WarmupTurns; i++ {
		if _, err := m.AdvanceTurn(); err != nil {
			return nil, fmt.Errorf("warm-up turn %d: %w", i+1, err)
		}
	}
	logger.Info("market ready",
		"instruments", len(instruments),
		"events", catalog.Len(),
		"model", model,
		"seed", seed,
		"turn", m.Turn(),
	)
	return m, nil
}
