package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"megamarket/internal/game"
	"megamarket/internal/market"
	"megamarket/internal/metrics"
	"megamarket/internal/stream"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	defaultSeriesLimit = 64
	defaultNewsLimit   = 20
	maxTurnsPerRequest = 100
)

type Server struct {
	log  *slog.Logger
	game *game.Service
	hub  *stream.Hub
	mux  *chi.Mux
}

// New wires the router. hub may be nil, in which case /v1/stream is not
// mounted.
func New(logger *slog.Logger, gameSvc *game.Service, hub *stream.Hub) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		log:  logger,
		game: gameSvc,
		hub:  hub,
		mux:  chi.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "turn": s.game.Turn()})
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if s.hub != nil {
			r.Get("/stream", s.hub.Handler(s.game.Turn))
		}

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))

			r.Get("/stocks", s.handleStocksList)
			r.Get("/stocks/{symbol}", s.handleStockDetail)
			r.Get("/news", s.handleNews)
			r.Post("/turns", s.handleAdvanceTurn)

			r.Post("/players", s.handlePlayerJoin)
			r.Get("/players/{name}", s.handleDashboard)
			r.Post("/players/{name}/acquire", s.handleAcquire)
			r.Post("/transfers", s.handleTransfer)
			r.Post("/orders", s.handleOrder)
			r.Get("/leaderboard", s.handleLeaderboard)

			r.Post("/sync/replay", s.handleSyncReplay)
		})
	})
}

func (s *Server) handleStocksList(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"turn":   s.game.Turn(),
		"stocks": s.game.ListStocks(),
	})
}

func (s *Server) handleStockDetail(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultSeriesLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.game.StockDetail(chi.URLParam(r, "symbol"), limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleNews(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultNewsLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"news": s.game.News(limit)})
}

func (s *Server) handleAdvanceTurn(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Count int `json:"count"`
	}
	if err := decodeJSON(r, &in); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if in.Count == 0 {
		in.Count = 1
	}
	if in.Count < 0 || in.Count > maxTurnsPerRequest {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("count must be between 1 and %d", maxTurnsPerRequest))
		return
	}
	reports := make([]market.TurnReport, 0, in.Count)
	for i := 0; i < in.Count; i++ {
		report, err := s.game.AdvanceTurn(r.Context())
		if err != nil {
			writeDomainError(w, err)
			return
		}
		reports = append(reports, report)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"turn":    reports[len(reports)-1].Turn,
		"quarter": game.QuarterLabel(reports[len(reports)-1].Turn),
		"reports": reports,
	})
}

func (s *Server) handlePlayerJoin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	created, err := s.game.EnsurePlayer(in.Name)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out, err := s.game.Dashboard(in.Name)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, out)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	out, err := s.game.Dashboard(chi.URLParam(r, "name"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAcquire(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Amount decimal.Decimal `json:"amount"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := game.ParseAmount(in.Amount.String())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	name := chi.URLParam(r, "name")
	cash, err := s.game.Acquire(name, amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"player": name, "cash": cash})
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var in struct {
		From   string          `json:"from"`
		To     string          `json:"to"`
		Amount decimal.Decimal `json:"amount"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := game.ParseAmount(in.Amount.String())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if err := s.game.Transfer(in.From, in.To, amount); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type orderRequest struct {
	Player   string      `json:"player"`
	Symbol   string      `json:"symbol"`
	Side     string      `json:"side"`
	Quantity json.Number `json:"quantity"`
}

func (s *Server) handleOrder(w http.ResponseWriter, r *http.Request) {
	var in orderRequest
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := s.game.PlaceOrder(r.Context(), game.OrderInput{
		Player:         in.Player,
		Symbol:         in.Symbol,
		Side:           in.Side,
		Quantity:       in.Quantity.String(),
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 100)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rows": s.game.Leaderboard(limit)})
}

// replayCommand is one request queued by the CLI while the API was
// unreachable. Only order placement is replayed server side.
type replayCommand struct {
	Method         string       `json:"method"`
	Path           string       `json:"path"`
	Body           orderRequest `json:"body"`
	IdempotencyKey string       `json:"idempotency_key"`
}

func (s *Server) handleSyncReplay(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Commands []replayCommand `json:"commands"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	results := make([]map[string]any, 0, len(in.Commands))
	for _, cmd := range in.Commands {
		res := map[string]any{
			"method":          cmd.Method,
			"path":            cmd.Path,
			"idempotency_key": cmd.IdempotencyKey,
		}
		if !strings.EqualFold(cmd.Method, http.MethodPost) || cmd.Path != "/v1/orders" {
			res["status"] = "unsupported"
			results = append(results, res)
			continue
		}
		out, err := s.game.PlaceOrder(r.Context(), game.OrderInput{
			Player:         cmd.Body.Player,
			Symbol:         cmd.Body.Symbol,
			Side:           cmd.Body.Side,
			Quantity:       cmd.Body.Quantity.String(),
			IdempotencyKey: cmd.IdempotencyKey,
		})
		switch {
		case err == nil:
			res["status"] = "ok"
			res["result"] = out
		case errors.Is(err, game.ErrDuplicateIdempotency):
			res["status"] = "duplicate"
		default:
			res["status"] = "error"
			res["error"] = err.Error()
		}
		results = append(results, res)
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, game.ErrDuplicateIdempotency):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, game.ErrInsufficientFunds), errors.Is(err, game.ErrInsufficientShares):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, game.ErrInvalidSymbol), errors.Is(err, game.ErrInvalidPlayer),
		errors.Is(err, game.ErrInvalidQuantity), errors.Is(err, game.ErrInvalidAmount),
		errors.Is(err, game.ErrInvalidSide), errors.Is(err, game.ErrSelfTransfer),
		errors.Is(err, game.ErrMissingIdempotency):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, game.ErrStockNotFound), errors.Is(err, game.ErrUnknownPlayer):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message)})
}

func idempotencyKey(r *http.Request) string {
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key != "" {
		return key
	}
	return uuid.NewString()
}

func queryInt(r *http.Request, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", key)
	}
	return v, nil
}
