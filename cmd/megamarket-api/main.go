package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"megamarket/internal/api"
	"megamarket/internal/config"
	"megamarket/internal/game"
	"megamarket/internal/market"
	"megamarket/internal/scenario"
	"megamarket/internal/store"
	"megamarket/internal/stream"
)

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
	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("megamarket api stopped", "err", err)
		stop()
		os.Exit(1)
	}
}

// run owns every resource it opens, so they are released on all return
// paths before main decides the exit code.
func run(ctx context.Context, cfg config.ServerConfig, logger *slog.Logger) error {
	m, err := scenario.NewMarket(scenario.Options{
		Path:        cfg.ScenarioPath,
		CatalogPath: cfg.CatalogPath,
		Model:       cfg.Model,
		Events:      market.CountPolicy{Min: cfg.EventsMin, Max: cfg.EventsMax},
		MaxAttempts: cfg.MaxAttempts,
		Seed:        cfg.Seed,
		WarmupTurns: cfg.WarmupTurns,
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
	if err := backfill(ctx, rec, m); err != nil {
		logger.Error("warm-up history not recorded", "err", err)
	}

	hub := stream.NewHub(logger)
	go hub.Run(ctx)

	gameSvc, err := game.NewService(game.Options{
		Market:       m,
		StartingCash: decimal.NewFromFloat(cfg.StartingCash),
		Players:      cfg.Players,
		Recorder:     rec,
		Publisher:    hub,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("game init: %w", err)
	}

	if cfg.TurnEvery > 0 {
		go autoAdvance(ctx, gameSvc, cfg.TurnEvery, logger)
	}

	server := api.New(logger, gameSvc, hub)
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("megamarket api listening", "addr", cfg.Addr, "run_id", rec.RunID(), "turn", gameSvc.Turn())
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// backfill records the snapshots produced before the service took over.
func backfill(ctx context.Context, rec store.Recorder, m *market.Market) error {
	news := m.News()
	for _, snap := range m.Snapshots() {
		var items []market.NewsItem
		for _, n := range news {
			if n.Turn == snap.Turn {
				items = append(items, n)
			}
		}
		if err := rec.RecordTurn(ctx, snap, items); err != nil {
			return err
		}
	}
	return nil
}

func autoAdvance(ctx context.Context, svc *game.Service, every time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	logger.Info("auto-advance started", "turn_every", every.String())
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := svc.AdvanceTurn(ctx); err != nil {
				logger.Error("turn advance failed", "err", err)
			}
		}
	}
}
