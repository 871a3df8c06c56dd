package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"megamarket/internal/game"
)

var errUsage = errors.New("usage")

// console runs the hot-seat game: each round every player, in a freshly
// drawn order, issues commands until they pass; then the market moves.
type console struct {
	ctx context.Context
	svc *game.Service
	in  *bufio.Scanner
	out io.Writer
}

func newConsole(ctx context.Context, svc *game.Service, in io.Reader, out io.Writer) *console {
	return &console{ctx: ctx, svc: svc, in: bufio.NewScanner(in), out: out}
}

func (c *console) run() error {
	for {
		for _, player := range c.svc.NextRound() {
			quit, err := c.playerTurn(player)
			if err != nil || quit {
				return err
			}
		}
		report, err := c.svc.AdvanceTurn(c.ctx)
		if err != nil {
			return err
		}
		neutral.Fprintln(c.out, "Moving to next turn...")
		renderNews(c.out, report.News)
	}
}

func (c *console) playerTurn(player string) (quit bool, err error) {
	for {
		fmt.Fprintf(c.out, "%s - %s >> ", game.QuarterLabel(c.svc.Turn()), capitalize(player))
		if !c.in.Scan() {
			return true, c.in.Err()
		}
		fields := strings.Fields(c.in.Text())
		if len(fields) == 0 {
			continue
		}
		switch strings.ToLower(fields[0]) {
		case "q", "quit", "exit":
			return true, nil
		case "p", "pass":
			return false, nil
		}
		if err := c.exec(player, strings.ToLower(fields[0]), fields[1:]); err != nil {
			danger.Fprintf(c.out, "failed: %v\n", err)
		}
	}
}

func (c *console) exec(player, command string, args []string) error {
	switch command {
	case "b", "buy", "s", "sell":
		if len(args) != 2 {
			return fmt.Errorf("%w: %s SYMBOL QUANTITY", errUsage, command)
		}
		side := game.SideBuy
		if command == "s" || command == "sell" {
			side = game.SideSell
		}
		res, err := c.svc.PlaceOrder(c.ctx, game.OrderInput{
			Player:         player,
			Symbol:         args[0],
			Side:           side,
			Quantity:       args[1],
			IdempotencyKey: uuid.NewString(),
		})
		if err != nil {
			return err
		}
		renderOrderResult(c.out, res)
	case "v", "view":
		for _, name := range c.svc.Players() {
			d, err := c.svc.Dashboard(name)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "\t%s:\n", name)
			fmt.Fprintf(c.out, "\t\tcash: %s\n", formatMoney(d.Cash))
			for _, p := range d.Positions {
				fmt.Fprintf(c.out, "\t\t%s: %d\n", p.Symbol, p.Shares)
			}
		}
	case "m", "market":
		for _, s := range c.svc.ListStocks() {
			fmt.Fprintf(c.out, "\t%s\n", s.Symbol)
			fmt.Fprintf(c.out, "\t\tPrice: %s\n", formatMoney(s.Price))
			fmt.Fprintf(c.out, "\t\t%-6s %.2f\n", "Mu:", s.Drift)
			fmt.Fprintf(c.out, "\t\tSigma: %.2f\n", s.Volatility)
		}
	case "a", "aquire", "acquire":
		if len(args) != 1 {
			return fmt.Errorf("%w: %s AMOUNT", errUsage, command)
		}
		amount, err := game.ParseAmount(args[0])
		if err != nil {
			return err
		}
		cash, err := c.svc.Acquire(player, amount)
		if err != nil {
			return err
		}
		success.Fprintf(c.out, "Cash is now %s.\n", formatMoney(cash))
	case "t", "trade":
		if len(args) != 2 {
			return fmt.Errorf("%w: %s PLAYER AMOUNT", errUsage, command)
		}
		amount, err := game.ParseAmount(args[1])
		if err != nil {
			return err
		}
		if err := c.svc.Transfer(player, args[0], amount); err != nil {
			return err
		}
		success.Fprintf(c.out, "Sent %s to %s.\n", formatMoney(amount), args[0])
	default:
		return fmt.Errorf("unknown command %q (b, s, v, m, a, t, p, q)", command)
	}
	return nil
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
