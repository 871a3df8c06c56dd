package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"megamarket/internal/market"
	"megamarket/internal/metrics"
)

// Recorder persists finished turns.
type Recorder interface {
	RecordTurn(ctx context.Context, snap market.Snapshot, news []market.NewsItem) error
}

// Publisher fans a finished turn out to live subscribers.
type Publisher interface {
	Publish(report market.TurnReport)
}

type Options struct {
	Market *market.Market
	// StartingCash defaults to StarterCash when zero.
	StartingCash decimal.Decimal
	Players      []string
	Recorder     Recorder
	Publisher    Publisher
	Logger       *slog.Logger
}

// Service serializes access to a Market and the player Book. Turns, trades
// and balance changes take the write lock; reads take the read lock.
type Service struct {
	mu        sync.RWMutex
	market    *market.Market
	book      *Book
	log       *slog.Logger
	recorder  Recorder
	publisher Publisher
	claimed   map[string]struct{}
}

func NewService(opts Options) (*Service, error) {
	if opts.Market == nil {
		return nil, errors.New("market is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	starting := opts.StartingCash
	if starting.IsZero() {
		starting = decimal.NewFromInt(StarterCash)
	}
	if starting.IsNegative() {
		return nil, fmt.Errorf("%w: starting cash %s", ErrInvalidAmount, starting)
	}
	s := &Service{
		market:    opts.Market,
		book:      NewBook(starting),
		log:       logger,
		recorder:  opts.Recorder,
		publisher: opts.Publisher,
		claimed:   make(map[string]struct{}),
	}
	for _, name := range opts.Players {
		if err := s.book.Add(name); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Service) Turn() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.market.Turn()
}

// AdvanceTurn runs one market turn, then records and publishes it. A
// recording failure is logged; the turn itself has already happened.
func (s *Service) AdvanceTurn(ctx context.Context) (market.TurnReport, error) {
	if err := ctx.Err(); err != nil {
		return market.TurnReport{}, err
	}
	s.mu.Lock()
	report, err := s.market.AdvanceTurn()
	s.mu.Unlock()
	if err != nil {
		return report, fmt.Errorf("advance turn: %w", err)
	}

	metrics.TurnsTotal.Inc()
	for _, item := range report.News {
		metrics.EventsTotal.WithLabelValues(string(item.Scope)).Inc()
	}
	if report.Skipped > 0 {
		metrics.EventsSkipped.Add(float64(report.Skipped))
	}

	if s.recorder != nil {
		snap := market.Snapshot{Turn: report.Turn, Prices: report.Prices}
		if err := s.recorder.RecordTurn(ctx, snap, report.News); err != nil {
			s.log.Error("record turn failed", "turn", report.Turn, "err", err)
		}
	}
	if s.publisher != nil {
		s.publisher.Publish(report)
	}
	s.log.Info("turn advanced",
		"turn", report.Turn,
		"quarter", QuarterLabel(report.Turn),
		"news", len(report.News),
		"skipped", report.Skipped,
	)
	return report, nil
}

func (s *Service) ListStocks() []StockView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	views := s.market.Instruments()
	out := make([]StockView, 0, len(views))
	for _, v := range views {
		out = append(out, stockView(v, s.previousPrice(v.Symbol, v.Price)))
	}
	return out
}

// StockDetail returns the instrument and its last limit prices, oldest
// first. limit <= 0 returns the whole history.
func (s *Service) StockDetail(symbol string, limit int) (StockDetail, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, err := s.market.Instrument(symbol)
	if err != nil {
		return StockDetail{}, stockErr(err)
	}
	history, err := s.market.History(symbol)
	if err != nil {
		return StockDetail{}, stockErr(err)
	}
	out := StockDetail{StockView: stockView(v, s.previousPrice(symbol, v.Price))}
	start := 0
	if limit > 0 && len(history) > limit {
		start = len(history) - limit
	}
	for turn := start; turn < len(history); turn++ {
		out.Series = append(out.Series, PricePoint{Turn: turn, Price: history[turn]})
	}
	return out, nil
}

// Quote is the settlement price of symbol right now.
func (s *Service) Quote(symbol string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	price, err := s.market.CurrentPrice(symbol)
	if err != nil {
		return decimal.Zero, stockErr(err)
	}
	return Quote(price), nil
}

// EnsurePlayer opens an account for name unless one exists. It reports
// whether a new account was created.
func (s *Service) EnsurePlayer(name string) (bool, error) {
	name = strings.TrimSpace(name)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.book.Has(name) {
		return false, nil
	}
	if err := s.book.Add(name); err != nil {
		return false, err
	}
	s.log.Info("player joined", "player", name, "cash", s.book.StartingCash().String())
	return true, nil
}

func (s *Service) Players() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.book.Players()
}

// NextRound draws the hot-seat order for one round from the market's RNG.
func (s *Service) NextRound() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return TurnOrder(s.market.Rand(), s.book.Players())
}

func (s *Service) PlaceOrder(ctx context.Context, in OrderInput) (OrderResult, error) {
	var out OrderResult
	if err := ctx.Err(); err != nil {
		return out, err
	}
	in.Player = strings.TrimSpace(in.Player)
	in.Symbol = strings.ToUpper(strings.TrimSpace(in.Symbol))
	in.Side = strings.ToLower(strings.TrimSpace(in.Side))
	if err := ValidateSymbol(in.Symbol); err != nil {
		return out, s.reject(err)
	}
	if in.Side != SideBuy && in.Side != SideSell {
		return out, s.reject(ErrInvalidSide)
	}
	qty, err := ParseQuantity(in.Quantity)
	if err != nil {
		return out, s.reject(err)
	}
	key := strings.TrimSpace(in.IdempotencyKey)
	if key == "" {
		return out, s.reject(ErrMissingIdempotency)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	claim := in.Player + "\x00" + key
	if _, dup := s.claimed[claim]; dup {
		return out, s.reject(ErrDuplicateIdempotency)
	}
	price, err := s.market.CurrentPrice(in.Symbol)
	if err != nil {
		return out, s.reject(stockErr(err))
	}
	quote := Quote(price)

	var fill Fill
	if in.Side == SideBuy {
		fill, err = s.book.Buy(in.Player, in.Symbol, qty, quote)
	} else {
		fill, err = s.book.Sell(in.Player, in.Symbol, qty, quote)
	}
	if err != nil {
		return out, s.reject(err)
	}
	s.claimed[claim] = struct{}{}

	out = OrderResult{
		OrderID:  uuid.NewString(),
		Turn:     s.market.Turn(),
		Symbol:   fill.Symbol,
		Side:     fill.Side,
		Quantity: fill.Quantity,
		Price:    fill.Price,
		Notional: fill.Notional,
		Cash:     fill.Cash,
		Shares:   fill.Shares,
	}
	metrics.OrdersTotal.WithLabelValues(out.Symbol, out.Side).Inc()
	s.log.Info("order filled",
		"order_id", out.OrderID,
		"player", in.Player,
		"symbol", out.Symbol,
		"side", out.Side,
		"quantity", out.Quantity,
		"price", out.Price.String(),
	)
	return out, nil
}

// Acquire grants amount from the bank and returns the new cash balance.
func (s *Service) Acquire(name string, amount decimal.Decimal) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cash, err := s.book.Acquire(name, amount)
	if err != nil {
		return decimal.Zero, err
	}
	s.log.Info("cash acquired", "player", name, "amount", amount.String())
	return cash, nil
}

func (s *Service) Transfer(from, to string, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.book.Transfer(from, to, amount); err != nil {
		return err
	}
	s.log.Info("cash transferred", "from", from, "to", to, "amount", amount.String())
	return nil
}

func (s *Service) Dashboard(name string) (Dashboard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bal, err := s.book.Balance(name)
	if err != nil {
		return Dashboard{}, err
	}
	turn := s.market.Turn()
	out := Dashboard{
		Player:       strings.TrimSpace(name),
		Turn:         turn,
		Quarter:      QuarterLabel(turn),
		Cash:         bal.Cash,
		Holdings:     decimal.Zero,
		StartingCash: s.book.StartingCash(),
	}
	for _, v := range s.market.Instruments() {
		held := bal.Holding(v.Symbol)
		if held == 0 {
			continue
		}
		price := Quote(v.Price)
		value := notional(price, held)
		out.Holdings = out.Holdings.Add(value)
		out.Positions = append(out.Positions, PositionView{
			Symbol:      v.Symbol,
			DisplayName: v.Name,
			Shares:      held,
			Price:       price,
			MarketValue: value,
		})
	}
	out.NetWorth = out.Cash.Add(out.Holdings)
	out.ProfitLoss = out.NetWorth.Sub(out.StartingCash)
	return out, nil
}

// Leaderboard ranks players by net worth, ties broken by name.
func (s *Service) Leaderboard(limit int) []LeaderboardRow {
	s.mu.RLock()
	defer s.mu.RUnlock()

	prices := make(map[string]decimal.Decimal)
	for _, v := range s.market.Instruments() {
		prices[v.Symbol] = Quote(v.Price)
	}
	rows := make([]LeaderboardRow, 0, len(s.book.order))
	for _, name := range s.book.order {
		bal := s.book.players[name]
		worth := bal.Cash
		for sym, qty := range bal.Shares {
			worth = worth.Add(notional(prices[sym], qty))
		}
		rows = append(rows, LeaderboardRow{Player: name, NetWorth: worth})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if c := rows[i].NetWorth.Cmp(rows[j].NetWorth); c != 0 {
			return c > 0
		}
		return rows[i].Player < rows[j].Player
	})
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	for i := range rows {
		rows[i].Rank = int64(i + 1)
	}
	return rows
}

// News returns up to limit applied events, newest first.
func (s *Service) News(limit int) []market.NewsItem {
	s.mu.RLock()
	all := s.market.News()
	s.mu.RUnlock()

	out := make([]market.NewsItem, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		out = append(out, all[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func (s *Service) previousPrice(symbol string, current float64) float64 {
	history, err := s.market.History(symbol)
	if err != nil || len(history) < 2 {
		return current
	}
	return history[len(history)-2]
}

func (s *Service) reject(err error) error {
	metrics.OrderRejections.WithLabelValues(rejectionReason(err)).Inc()
	return err
}

func stockErr(err error) error {
	if errors.Is(err, market.ErrUnknownSymbol) {
		return fmt.Errorf("%w: %v", ErrStockNotFound, err)
	}
	return err
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrInsufficientShares):
		return "insufficient_shares"
	case errors.Is(err, ErrInvalidQuantity):
		return "invalid_quantity"
	case errors.Is(err, ErrStockNotFound), errors.Is(err, ErrInvalidSymbol):
		return "unknown_stock"
	case errors.Is(err, ErrUnknownPlayer):
		return "unknown_player"
	case errors.Is(err, ErrDuplicateIdempotency), errors.Is(err, ErrMissingIdempotency):
		return "idempotency"
	default:
		return "other"
	}
}
