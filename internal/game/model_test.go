package game

import (
	"errors"
	"math/rand"
	"sort"
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestValidateSymbol(t *testing.T) {
	valid := []string{"ACME", "XOM", "GOOG", "NIMBUS"}
	for _, s := range valid {
		if err := ValidateSymbol(s); err != nil {
			t.Fatalf("expected symbol %q to be valid: %v", s, err)
		}
	}

	invalid := []string{"acme", "A", "TOOLONG", "AB1", "A_B"}
	for _, s := range invalid {
		if err := ValidateSymbol(s); err == nil {
			t.Fatalf("expected symbol %q to fail", s)
		}
	}
}

func TestParseQuantity(t *testing.T) {
	tests := []struct {
		in   string
		want int64
		ok   bool
	}{
		{in: "5", want: 5, ok: true},
		{in: " 12 ", want: 12, ok: true},
		{in: "0"},
		{in: "-3"},
		{in: "2.5"},
		{in: "five"},
		{in: ""},
	}
	for _, tc := range tests {
		got, err := ParseQuantity(tc.in)
		if tc.ok {
			if err != nil || got != tc.want {
				t.Fatalf("ParseQuantity(%q) got %d, %v want %d", tc.in, got, err, tc.want)
			}
			continue
		}
		if !errors.Is(err, ErrInvalidQuantity) {
			t.Fatalf("ParseQuantity(%q) expected ErrInvalidQuantity, got %v", tc.in, err)
		}
	}
}

func TestParseAmount(t *testing.T) {
	got, err := ParseAmount("12.345")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(dec("12.35")) {
		t.Fatalf("got %s want 12.35", got)
	}
	for _, bad := range []string{"0", "-5", "abc", "0.001"} {
		if _, err := ParseAmount(bad); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("ParseAmount(%q) expected ErrInvalidAmount, got %v", bad, err)
		}
	}
}

func TestQuarterLabel(t *testing.T) {
	tests := []struct {
		turn int
		want string
	}{
		{0, "Y1Q1"},
		{3, "Y1Q4"},
		{4, "Y2Q1"},
		{10, "Y3Q3"},
	}
	for _, tc := range tests {
		if got := QuarterLabel(tc.turn); got != tc.want {
			t.Fatalf("turn=%d got=%s want=%s", tc.turn, got, tc.want)
		}
	}
}

func TestMaxAffordable(t *testing.T) {
	tests := []struct {
		price, cash string
		want        int64
	}{
		{"10", "100", 10},
		{"10", "99.99", 9},
		{"33.33", "100", 3},
		{"10", "0", 0},
	}
	for _, tc := range tests {
		if got := maxAffordable(dec(tc.price), dec(tc.cash)); got != tc.want {
			t.Fatalf("price=%s cash=%s got=%d want=%d", tc.price, tc.cash, got, tc.want)
		}
	}
}

func newACMEBook(t *testing.T) *Book {
	t.Helper()
	b := NewBook(dec("100"))
	if err := b.Add("alice"); err != nil {
		t.Fatalf("add player: %v", err)
	}
	return b
}

func TestBuyDebitsCash(t *testing.T) {
	b := newACMEBook(t)
	fill, err := b.Buy("alice", "ACME", 5, dec("10"))
	if err != nil {
		t.Fatalf("buy failed: %v", err)
	}
	if !fill.Cash.Equal(dec("50")) || fill.Shares != 5 {
		t.Fatalf("got cash %s shares %d want 50 and 5", fill.Cash, fill.Shares)
	}
	bal, _ := b.Balance("alice")
	if !bal.Cash.Equal(dec("50")) || bal.Holding("ACME") != 5 {
		t.Fatalf("balance not updated: %+v", bal)
	}
}

func TestBuyInsufficientFundsLeavesStateUnchanged(t *testing.T) {
	b := newACMEBook(t)
	if _, err := b.Buy("alice", "ACME", 5, dec("10")); err != nil {
		t.Fatalf("buy failed: %v", err)
	}
	_, err := b.Buy("alice", "ACME", 10, dec("10"))
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	bal, _ := b.Balance("alice")
	if !bal.Cash.Equal(dec("50")) || bal.Holding("ACME") != 5 {
		t.Fatalf("state changed after failed buy: %+v", bal)
	}
}

func TestSellCreditsCash(t *testing.T) {
	b := newACMEBook(t)
	if _, err := b.Buy("alice", "ACME", 5, dec("10")); err != nil {
		t.Fatalf("buy failed: %v", err)
	}
	fill, err := b.Sell("alice", "ACME", 5, dec("12"))
	if err != nil {
		t.Fatalf("sell failed: %v", err)
	}
	if !fill.Notional.Equal(dec("60")) || !fill.Cash.Equal(dec("110")) || fill.Shares != 0 {
		t.Fatalf("got notional %s cash %s shares %d", fill.Notional, fill.Cash, fill.Shares)
	}

	_, err = b.Sell("alice", "ACME", 1, dec("12"))
	if !errors.Is(err, ErrInsufficientShares) {
		t.Fatalf("expected ErrInsufficientShares, got %v", err)
	}
	bal, _ := b.Balance("alice")
	if !bal.Cash.Equal(dec("110")) || bal.Holding("ACME") != 0 || len(bal.Shares) != 0 {
		t.Fatalf("state changed after failed sell: %+v", bal)
	}
}

func TestBookRejectsBadInputs(t *testing.T) {
	b := newACMEBook(t)
	if _, err := b.Buy("alice", "ACME", 0, dec("10")); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity, got %v", err)
	}
	if _, err := b.Buy("bob", "ACME", 1, dec("10")); !errors.Is(err, ErrUnknownPlayer) {
		t.Fatalf("expected ErrUnknownPlayer, got %v", err)
	}
	if err := b.Add("alice"); !errors.Is(err, ErrPlayerExists) {
		t.Fatalf("expected ErrPlayerExists, got %v", err)
	}
	if err := b.Add("x"); !errors.Is(err, ErrInvalidPlayer) {
		t.Fatalf("expected ErrInvalidPlayer, got %v", err)
	}
}

func TestAcquireAndTransfer(t *testing.T) {
	b := newACMEBook(t)
	if err := b.Add("bob"); err != nil {
		t.Fatalf("add bob: %v", err)
	}
	cash, err := b.Acquire("alice", dec("25.50"))
	if err != nil || !cash.Equal(dec("125.50")) {
		t.Fatalf("acquire got %s, %v", cash, err)
	}
	if _, err := b.Acquire("alice", dec("-1")); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}

	if err := b.Transfer("alice", "bob", dec("125.50")); err != nil {
		t.Fatalf("transfer failed: %v", err)
	}
	alice, _ := b.Balance("alice")
	bob, _ := b.Balance("bob")
	if !alice.Cash.IsZero() || !bob.Cash.Equal(dec("225.50")) {
		t.Fatalf("got alice %s bob %s", alice.Cash, bob.Cash)
	}

	if err := b.Transfer("alice", "bob", dec("0.01")); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if err := b.Transfer("bob", "bob", dec("1")); !errors.Is(err, ErrSelfTransfer) {
		t.Fatalf("expected ErrSelfTransfer, got %v", err)
	}
	if err := b.Transfer("bob", "carol", dec("1")); !errors.Is(err, ErrUnknownPlayer) {
		t.Fatalf("expected ErrUnknownPlayer, got %v", err)
	}
	bob, _ = b.Balance("bob")
	if !bob.Cash.Equal(dec("225.50")) {
		t.Fatalf("failed transfers changed bob's cash to %s", bob.Cash)
	}
}

func TestBalanceIsCopy(t *testing.T) {
	b := newACMEBook(t)
	if _, err := b.Buy("alice", "ACME", 2, dec("10")); err != nil {
		t.Fatalf("buy failed: %v", err)
	}
	bal, _ := b.Balance("alice")
	bal.Shares["ACME"] = 99
	again, _ := b.Balance("alice")
	if again.Holding("ACME") != 2 {
		t.Fatalf("mutating a returned balance leaked into the book")
	}
}

func TestTurnOrderIsPermutation(t *testing.T) {
	players := []string{"ann", "bob", "cat", "dan"}
	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 20; round++ {
		got := TurnOrder(rng, players)
		if len(got) != len(players) {
			t.Fatalf("got %d players want %d", len(got), len(players))
		}
		sorted := append([]string(nil), got...)
		sort.Strings(sorted)
		for i := range players {
			if sorted[i] != players[i] {
				t.Fatalf("round %d is not a permutation: %v", round, got)
			}
		}
	}
	if players[0] != "ann" {
		t.Fatalf("TurnOrder mutated its input")
	}
}
