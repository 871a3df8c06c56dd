package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"megamarket/internal/config"
	"megamarket/internal/game"
	"megamarket/internal/market"
	"megamarket/internal/metrics"
	"megamarket/internal/scenario"
	"megamarket/internal/store"
)

const defaultTurnEvery = 5 * time.Second

// openStore is swapped in tests.
var openStore = store.Open

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadServer()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	runTurns, _ := strconv.Atoi(strings.TrimSpace(os.Getenv("MEGAMARKET_SIM_RUN_TURNS")))
	if err := run(ctx, cfg, runTurns, logger); err != nil {
		logger.Error("simulator stopped", "err", err)
		stop()
		os.Exit(1)
	}
}

// run advances runTurns turns and returns, or ticks until ctx is done when
// runTurns is zero. The recorder is closed on every return path.
func run(ctx context.Context, cfg config.ServerConfig, runTurns int, logger *slog.Logger) error {
	m, err := scenario.NewMarket(scenario.Options{
		Path:        cfg.ScenarioPath,
		CatalogPath: cfg.CatalogPath,
		Model:       cfg.Model,
		Events:      market.CountPolicy{Min: cfg.EventsMin, Max: cfg.EventsMax},
		MaxAttempts: cfg.MaxAttempts,
		Seed:        cfg.Seed,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("market init: %w", err)
	}

	rec, err := openStore(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("store open: %w", err)
	}
	defer func() {
		if err := rec.Close(); err != nil {
			logger.Warn("store close failed", "err", err)
		}
	}()
	if snap, ok := m.Snapshot(0); ok {
		if err := rec.RecordTurn(ctx, snap, nil); err != nil {
			logger.Error("seed prices not recorded", "err", err)
		}
	}

	svc, err := game.NewService(game.Options{Market: m, Recorder: rec, Logger: logger})
	if err != nil {
		return fmt.Errorf("game init: %w", err)
	}

	if runTurns > 0 {
		for i := 0; i < runTurns; i++ {
			report, err := svc.AdvanceTurn(ctx)
			if err != nil {
				return fmt.Errorf("turn %d: %w", svc.Turn()+1, err)
			}
			logNews(logger, report)
		}
		logger.Info("simulation run completed", "turns", runTurns, "run_id", rec.RunID())
		return nil
	}

	metricsServer := metrics.Serve(cfg.MetricsAddr)
	defer metricsServer.Close()

	every := cfg.TurnEvery
	if every <= 0 {
		every = defaultTurnEvery
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	logger.Info("simulator started", "turn_every", every.String(), "metrics_addr", cfg.MetricsAddr, "run_id", rec.RunID())
	for {
		select {
		case <-ctx.Done():
			logger.Info("simulator shutdown", "turn", svc.Turn())
			return nil
		case <-ticker.C:
			report, err := svc.AdvanceTurn(ctx)
			if err != nil {
				logger.Error("turn failed", "err", err)
				continue
			}
			logNews(logger, report)
		}
	}
}

func logNews(logger *slog.Logger, report market.TurnReport) {
	for _, n := range report.News {
		logger.Info("news", "turn", n.Turn, "quarter", game.QuarterLabel(n.Turn), "scope", n.Scope, "symbols", n.Symbols, "headline", n.Description)
	}
}
