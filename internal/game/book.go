package game

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/shopspring/decimal"
)

// Balance is one player's holdings. Shares only lists symbols with a
// non-zero count.
type Balance struct {
	Cash   decimal.Decimal  `json:"cash"`
	Shares map[string]int64 `json:"shares"`
}

func (b Balance) Holding(symbol string) int64 {
	return b.Shares[symbol]
}

func (b Balance) clone() Balance {
	shares := make(map[string]int64, len(b.Shares))
	for k, v := range b.Shares {
		shares[k] = v
	}
	return Balance{Cash: b.Cash, Shares: shares}
}

// Fill describes a settled trade.
type Fill struct {
	Player   string          `json:"player"`
	Symbol   string          `json:"symbol"`
	Side     string          `json:"side"`
	Quantity int64           `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Notional decimal.Decimal `json:"notional"`
	Cash     decimal.Decimal `json:"cash"`
	Shares   int64           `json:"shares"`
}

// Book holds every player's balance. Every mutation either succeeds fully
// or leaves the book untouched. Book does no locking of its own.
type Book struct {
	starting decimal.Decimal
	order    []string
	players  map[string]*Balance
}

func NewBook(startingCash decimal.Decimal) *Book {
	return &Book{
		starting: startingCash,
		players:  make(map[string]*Balance),
	}
}

func (b *Book) StartingCash() decimal.Decimal { return b.starting }

// Add opens an account funded with the starting cash.
func (b *Book) Add(name string) error {
	name = strings.TrimSpace(name)
	if err := ValidatePlayerName(name); err != nil {
		return err
	}
	if _, ok := b.players[name]; ok {
		return fmt.Errorf("%w: %s", ErrPlayerExists, name)
	}
	b.players[name] = &Balance{Cash: b.starting, Shares: map[string]int64{}}
	b.order = append(b.order, name)
	return nil
}

func (b *Book) Has(name string) bool {
	_, ok := b.players[strings.TrimSpace(name)]
	return ok
}

// Players returns names in join order.
func (b *Book) Players() []string {
	return append([]string(nil), b.order...)
}

func (b *Book) Balance(name string) (Balance, error) {
	bal, err := b.lookup(name)
	if err != nil {
		return Balance{}, err
	}
	return bal.clone(), nil
}

// Buy debits qty*price from the player's cash and credits qty shares.
func (b *Book) Buy(name, symbol string, qty int64, price decimal.Decimal) (Fill, error) {
	if qty <= 0 {
		return Fill{}, ErrInvalidQuantity
	}
	bal, err := b.lookup(name)
	if err != nil {
		return Fill{}, err
	}
	cost := notional(price, qty)
	if cost.GreaterThan(bal.Cash) {
		return Fill{}, fmt.Errorf("%w: %d %s costs %s, cash %s, max buy %d",
			ErrInsufficientFunds, qty, symbol, cost.StringFixed(cashPlaces), bal.Cash.StringFixed(cashPlaces), maxAffordable(price, bal.Cash))
	}
	bal.Cash = bal.Cash.Sub(cost)
	bal.Shares[symbol] += qty
	return Fill{
		Player:   name,
		Symbol:   symbol,
		Side:     SideBuy,
		Quantity: qty,
		Price:    price,
		Notional: cost,
		Cash:     bal.Cash,
		Shares:   bal.Shares[symbol],
	}, nil
}

// Sell debits qty shares and credits qty*price to the player's cash.
func (b *Book) Sell(name, symbol string, qty int64, price decimal.Decimal) (Fill, error) {
	if qty <= 0 {
		return Fill{}, ErrInvalidQuantity
	}
	bal, err := b.lookup(name)
	if err != nil {
		return Fill{}, err
	}
	held := bal.Shares[symbol]
	if held < qty {
		return Fill{}, fmt.Errorf("%w: selling %d %s, holding %d", ErrInsufficientShares, qty, symbol, held)
	}
	proceeds := notional(price, qty)
	bal.Cash = bal.Cash.Add(proceeds)
	if held == qty {
		delete(bal.Shares, symbol)
	} else {
		bal.Shares[symbol] = held - qty
	}
	return Fill{
		Player:   name,
		Symbol:   symbol,
		Side:     SideSell,
		Quantity: qty,
		Price:    price,
		Notional: proceeds,
		Cash:     bal.Cash,
		Shares:   bal.Shares[symbol],
	}, nil
}

// Acquire grants cash from the bank.
func (b *Book) Acquire(name string, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	bal, err := b.lookup(name)
	if err != nil {
		return decimal.Zero, err
	}
	bal.Cash = bal.Cash.Add(amount)
	return bal.Cash, nil
}

// Transfer moves cash between two players. The payer cannot go negative.
func (b *Book) Transfer(from, to string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	payer, err := b.lookup(from)
	if err != nil {
		return err
	}
	payee, err := b.lookup(to)
	if err != nil {
		return err
	}
	if payer == payee {
		return ErrSelfTransfer
	}
	if amount.GreaterThan(payer.Cash) {
		return fmt.Errorf("%w: transfer %s, cash %s", ErrInsufficientFunds, amount.StringFixed(cashPlaces), payer.Cash.StringFixed(cashPlaces))
	}
	payer.Cash = payer.Cash.Sub(amount)
	payee.Cash = payee.Cash.Add(amount)
	return nil
}

func (b *Book) lookup(name string) (*Balance, error) {
	bal, ok := b.players[strings.TrimSpace(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPlayer, name)
	}
	return bal, nil
}

// TurnOrder returns players in a random order, each exactly once.
func TurnOrder(rng *rand.Rand, players []string) []string {
	out := append([]string(nil), players...)
	rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}
