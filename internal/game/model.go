package game

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"megamarket/internal/market"
)

const (
	StarterCash = int64(2000)

	SideBuy  = "buy"
	SideSell = "sell"

	// cash is kept to the cent
	cashPlaces = 2
)

var (
	ErrInvalidSymbol        = errors.New("symbol must be 2-6 uppercase letters")
	ErrInvalidPlayer        = errors.New("player name must be 2-24 letters, digits or underscores")
	ErrInvalidQuantity      = errors.New("quantity must be a positive whole number")
	ErrInvalidAmount        = errors.New("amount must be a positive number")
	ErrInvalidSide          = errors.New("side must be buy or sell")
	ErrStockNotFound        = errors.New("stock not found")
	ErrUnknownPlayer        = errors.New("unknown player")
	ErrPlayerExists         = errors.New("player already exists")
	ErrSelfTransfer         = errors.New("cannot transfer to yourself")
	ErrDuplicateIdempotency = errors.New("duplicate idempotency key")
	ErrMissingIdempotency   = errors.New("idempotency key is required")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrInsufficientShares   = errors.New("insufficient shares")
)

var (
	playerNameRE = regexp.MustCompile(`^[a-zA-Z0-9_]{2,24}$`)
)

func ValidateSymbol(symbol string) error {
	if !market.ValidSymbol(strings.TrimSpace(symbol)) {
		return ErrInvalidSymbol
	}
	return nil
}

func ValidatePlayerName(name string) error {
	if !playerNameRE.MatchString(strings.TrimSpace(name)) {
		return ErrInvalidPlayer
	}
	return nil
}

// ParseQuantity reads a share count typed by a player. Only positive base-10
// integers are accepted; "2.5", "0" and "-1" are rejected.
func ParseQuantity(text string) (int64, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, ErrInvalidQuantity
	}
	qty, err := strconv.ParseInt(text, 10, 64)
	if err != nil || qty <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidQuantity, text)
	}
	return qty, nil
}

// ParseAmount reads a cash amount and rounds it to the cent.
func ParseAmount(text string) (decimal.Decimal, error) {
	amt, err := decimal.NewFromString(strings.TrimSpace(text))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, text)
	}
	amt = amt.Round(cashPlaces)
	if !amt.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, text)
	}
	return amt, nil
}

// Quote converts an engine price into the cash price a trade settles at.
func Quote(price float64) decimal.Decimal {
	return decimal.NewFromFloat(price).Round(cashPlaces)
}

func notional(price decimal.Decimal, qty int64) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(qty))
}

// maxAffordable is the largest whole share count cash can pay for at price.
func maxAffordable(price, cash decimal.Decimal) int64 {
	if !price.IsPositive() || !cash.IsPositive() {
		return 0
	}
	return cash.Div(price).Floor().IntPart()
}

// QuarterLabel renders a turn as a year/quarter tag: turn 0 is Y1Q1, turn 5
// is Y2Q2.
func QuarterLabel(turn int) string {
	if turn < 0 {
		turn = 0
	}
	return fmt.Sprintf("Y%dQ%d", 1+turn/4, 1+turn%4)
}
