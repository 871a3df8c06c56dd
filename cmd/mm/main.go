package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	cl "megamarket/internal/cli"
	"megamarket/internal/config"
	"megamarket/internal/game"
	"megamarket/internal/market"
	"megamarket/internal/scenario"
	"megamarket/internal/syncq"
)

func main() {
	cfg := config.LoadCLI()
	apiBase := cfg.APIBaseURL

	root := &cobra.Command{
		Use:          "mm",
		Short:        "Megamarket stock game",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&apiBase, "api", apiBase, "API base URL")

	root.AddCommand(
		newPlayCmd(),
		newJoinCmd(&apiBase),
		newLogoutCmd(),
		newDashCmd(&apiBase),
		newStocksCmd(&apiBase),
		newNewsCmd(&apiBase),
		newTurnCmd(&apiBase),
		newLeaderboardCmd(&apiBase),
		newAcquireCmd(&apiBase),
		newTransferCmd(&apiBase),
		newSyncCmd(&apiBase),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newClient(apiBase *string) *cl.Client {
	return cl.NewClient(strings.TrimRight(strings.TrimSpace(*apiBase), "/"))
}

func requirePlayer() (string, error) {
	sess, err := cl.LoadSession()
	if err != nil {
		return "", err
	}
	return sess.Player, nil
}

func newPlayCmd() *cobra.Command {
	var (
		players  []string
		seed     int64
		model    string
		events   int
		cash     float64
		warmup   int
		scenPath string
	)
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Play a local hot-seat game in this terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(players) == 0 {
				line, err := promptRequired("Players (comma separated)")
				if err != nil {
					return err
				}
				players = strings.Split(line, ",")
			}
			for i := range players {
				players[i] = strings.TrimSpace(players[i])
			}

			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
			m, err := scenario.NewMarket(scenario.Options{
				Path:        scenPath,
				Model:       model,
				Events:      market.FixedCount(events),
				Seed:        seed,
				WarmupTurns: warmup,
				Logger:      logger,
			})
			if err != nil {
				return err
			}
			svc, err := game.NewService(game.Options{
				Market:       m,
				StartingCash: decimal.NewFromFloat(cash),
				Players:      players,
				Logger:       logger,
			})
			if err != nil {
				return err
			}
			accent.Println("Commands: b/buy SYM QTY, s/sell SYM QTY, v/view, m/market, a/aquire AMT, t/trade PLAYER AMT, p/pass, q/quit")
			return newConsole(cmd.Context(), svc, os.Stdin, os.Stdout).run()
		},
	}
	cmd.Flags().StringSliceVar(&players, "players", nil, "player names")
	cmd.Flags().Int64Var(&seed, "seed", 0, "random seed (0 = clock)")
	cmd.Flags().StringVar(&model, "model", market.ModelGBM, "price model: gbm, trend or mixed")
	cmd.Flags().IntVar(&events, "events", 3, "news events per turn")
	cmd.Flags().Float64Var(&cash, "cash", float64(game.StarterCash), "starting cash per player")
	cmd.Flags().IntVar(&warmup, "warmup", 10, "turns simulated before play starts")
	cmd.Flags().StringVar(&scenPath, "scenario", "", "YAML scenario file")
	return cmd
}

func newJoinCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "join [name]",
		Short: "Join the shared market and remember the player locally",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var name string
			if len(args) > 0 {
				name = strings.TrimSpace(args[0])
			} else {
				var err error
				if name, err = promptRequired("Player name"); err != nil {
					return err
				}
			}
			if err := game.ValidatePlayerName(name); err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			dash, created, err := newClient(apiBase).Join(ctx, name)
			if err != nil {
				return err
			}
			if err := cl.SaveSession(cl.Session{Player: name, APIBaseURL: *apiBase}); err != nil {
				return err
			}
			if created {
				printSuccess(fmt.Sprintf("Welcome %s, you start with %s.", name, formatMoney(dash.Cash)))
			} else {
				printInfo(fmt.Sprintf("Welcome back %s.", name))
			}
			return nil
		},
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the local player",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cl.ClearSession(); err != nil {
				return err
			}
			printSuccess("Logged out.")
			return nil
		},
	}
}

func newDashCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "dash",
		Short: "Show your dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			player, err := requirePlayer()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).Dashboard(ctx, player)
			if err != nil {
				return err
			}
			renderDashboard(os.Stdout, out)
			return nil
		},
	}
}

func newStocksCmd(apiBase *string) *cobra.Command {
	stocks := &cobra.Command{
		Use:     "stocks",
		Short:   "Stock market commands",
		Aliases: []string{"stock"},
	}
	stocks.AddCommand(newStocksListCmd(apiBase))
	stocks.AddCommand(newStocksOrderCmd(apiBase, game.SideBuy))
	stocks.AddCommand(newStocksOrderCmd(apiBase, game.SideSell))
	return stocks
}

func newStocksListCmd(apiBase *string) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list [SYMBOL]",
		Short: "List stocks or inspect one stock",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			client := newClient(apiBase)
			if len(args) == 0 {
				list, err := client.ListStocks(ctx)
				if err != nil {
					return err
				}
				renderStocksList(os.Stdout, list.Turn, list.Stocks)
				return nil
			}
			symbol, err := symbolFromArgsOrPrompt(args)
			if err != nil {
				return err
			}
			out, err := client.StockDetail(ctx, symbol, limit)
			if err != nil {
				return err
			}
			renderStockDetail(os.Stdout, out)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "history", 40, "turns of history to show")
	return cmd
}

func newStocksOrderCmd(apiBase *string, side string) *cobra.Command {
	return &cobra.Command{
		Use:   side + " [symbol] [quantity]",
		Short: strings.ToUpper(side[:1]) + side[1:] + " shares",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			symbol, err := symbolFromArgsOrPrompt(args)
			if err != nil {
				return err
			}
			var qty string
			if len(args) > 1 {
				qty = args[1]
			} else if qty, err = promptQuantity("Shares to " + side); err != nil {
				return err
			}
			return placeOrderCommand(cmd, apiBase, side, symbol, qty)
		},
	}
}

func placeOrderCommand(cmd *cobra.Command, apiBase *string, side, symbol, qty string) error {
	player, err := requirePlayer()
	if err != nil {
		return err
	}
	if _, err := game.ParseQuantity(qty); err != nil {
		return err
	}
	idem := uuid.NewString()

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()
	out, err := newClient(apiBase).PlaceOrder(ctx, player, symbol, side, qty, idem)
	if err != nil {
		return queueOnNetworkError(err, syncq.Command{
			Method:         http.MethodPost,
			Path:           "/v1/orders",
			Body:           cl.OrderBody(player, symbol, side, qty),
			IdempotencyKey: idem,
		})
	}
	renderOrderResult(os.Stdout, out)
	return nil
}

func newNewsCmd(apiBase *string) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "news",
		Short: "Show recent market news",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			news, err := newClient(apiBase).News(ctx, limit)
			if err != nil {
				return err
			}
			renderNews(os.Stdout, news)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of headlines")
	return cmd
}

func newTurnCmd(apiBase *string) *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "turn",
		Short: "Advance the shared market",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
			defer cancel()
			out, err := newClient(apiBase).AdvanceTurn(ctx, count)
			if err != nil {
				return err
			}
			for _, r := range out.Reports {
				renderNews(os.Stdout, r.News)
			}
			printSuccess(fmt.Sprintf("Market is now at %s (turn %d).", out.Quarter, out.Turn))
			return nil
		},
	}
	cmd.Flags().IntVar(&count, "count", 1, "turns to advance")
	return cmd
}

func newLeaderboardCmd(apiBase *string) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Rank players by net worth",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			rows, err := newClient(apiBase).Leaderboard(ctx, limit)
			if err != nil {
				return err
			}
			renderLeaderboard(os.Stdout, rows)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "rows to show")
	return cmd
}

func newAcquireCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:     "acquire AMOUNT",
		Aliases: []string{"aquire"},
		Short:   "Take cash from the bank",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			player, err := requirePlayer()
			if err != nil {
				return err
			}
			amount, err := game.ParseAmount(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			cash, err := newClient(apiBase).Acquire(ctx, player, amount)
			if err != nil {
				return err
			}
			printSuccess("Cash is now " + formatMoney(cash) + ".")
			return nil
		},
	}
}

func newTransferCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:     "transfer PLAYER AMOUNT",
		Aliases: []string{"trade"},
		Short:   "Send cash to another player",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			player, err := requirePlayer()
			if err != nil {
				return err
			}
			amount, err := game.ParseAmount(args[1])
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			if err := newClient(apiBase).Transfer(ctx, player, args[0], amount); err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Sent %s to %s.", formatMoney(amount), args[0]))
			return nil
		},
	}
}

func newSyncCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replay orders queued while the API was unreachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			queue, err := syncq.Load()
			if err != nil {
				return err
			}
			if len(queue) == 0 {
				printInfo("Sync queue is empty.")
				return nil
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
			defer cancel()
			results, err := newClient(apiBase).SyncReplay(ctx, queue)
			if err != nil {
				return err
			}

			done := make(map[string]bool, len(results))
			replayed := 0
			for _, r := range results {
				done[r.IdempotencyKey] = true
				switch r.Status {
				case "ok":
					replayed++
					if r.Result != nil {
						renderOrderResult(os.Stdout, *r.Result)
					}
				case "duplicate":
					printInfo(fmt.Sprintf("Already applied: %s", r.IdempotencyKey))
				default:
					printError(fmt.Sprintf("Dropped %s %s (%s): %s", r.Method, r.Path, r.Status, r.Error))
				}
			}
			if err := syncq.Drop(done); err != nil {
				return err
			}
			remaining, _ := syncq.Load()
			printSuccess(fmt.Sprintf("Sync complete: replayed=%d remaining=%d", replayed, len(remaining)))
			return nil
		},
	}
}

// queueOnNetworkError keeps an order for `mm sync` when the API could not be
// reached. API answers are returned as errors.
func queueOnNetworkError(err error, cmd syncq.Command) error {
	if !cl.IsUnreachable(err) {
		return err
	}
	if qerr := syncq.Push(cmd); qerr != nil {
		return fmt.Errorf("request failed (%v) and could not be queued: %w", err, qerr)
	}
	printWarn("API unreachable; order queued. Run `mm sync` once it is back.")
	return nil
}

func symbolFromArgsOrPrompt(args []string) (string, error) {
	if len(args) > 0 {
		symbol := strings.ToUpper(strings.TrimSpace(args[0]))
		if err := game.ValidateSymbol(symbol); err != nil {
			return "", err
		}
		return symbol, nil
	}
	return promptSymbol("Symbol")
}
