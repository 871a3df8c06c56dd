package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/shopspring/decimal"

	"megamarket/internal/game"
	"megamarket/internal/market"
)

var (
	stdinReader = bufio.NewReader(os.Stdin)
	accent      = color.New(color.FgCyan, color.Bold)
	success     = color.New(color.FgGreen, color.Bold)
	warn        = color.New(color.FgYellow, color.Bold)
	danger      = color.New(color.FgRed, color.Bold)
	neutral     = color.New(color.FgHiWhite)
)

func printSuccess(msg string) {
	success.Println(msg)
}

func printWarn(msg string) {
	warn.Println(msg)
}

func printError(msg string) {
	danger.Println(msg)
}

func printInfo(msg string) {
	neutral.Println(msg)
}

func promptRequired(label string) (string, error) {
	for {
		fmt.Printf("%s: ", label)
		text, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}
		text = strings.TrimSpace(text)
		if text != "" {
			return text, nil
		}
		printWarn(label + " is required.")
	}
}

func promptQuantity(label string) (string, error) {
	for {
		text, err := promptRequired(label)
		if err != nil {
			return "", err
		}
		if _, err := game.ParseQuantity(text); err != nil {
			printWarn("Enter a whole number of shares greater than zero.")
			continue
		}
		return text, nil
	}
}

func promptSymbol(label string) (string, error) {
	for {
		symbol, err := promptRequired(label)
		if err != nil {
			return "", err
		}
		symbol = strings.ToUpper(strings.TrimSpace(symbol))
		if err := game.ValidateSymbol(symbol); err != nil {
			printWarn(err.Error())
			continue
		}
		return symbol, nil
	}
}

func renderDashboard(w io.Writer, d game.Dashboard) {
	accent.Fprintf(w, "\n== %s (%s, turn %d) ==\n", strings.ToUpper(d.Player), d.Quarter, d.Turn)
	fmt.Fprintf(w, "Cash:          %s\n", formatMoney(d.Cash))
	fmt.Fprintf(w, "Holdings:      %s\n", formatMoney(d.Holdings))
	fmt.Fprintf(w, "Net Worth:     %s\n", formatMoney(d.NetWorth))
	fmt.Fprintf(w, "P/L vs Start:  %s\n", colorizeMoney(d.ProfitLoss))

	fmt.Fprintln(w)
	accent.Fprintln(w, "Positions")
	if len(d.Positions) == 0 {
		neutral.Fprintln(w, "No open positions yet.")
		fmt.Fprintln(w)
		return
	}
	fmt.Fprintf(w, "%-8s %-22s %8s %12s %14s\n", "SYMBOL", "NAME", "QTY", "PRICE", "VALUE")
	for _, p := range d.Positions {
		fmt.Fprintf(w, "%-8s %-22s %8d %12s %14s\n",
			p.Symbol,
			truncate(p.DisplayName, 22),
			p.Shares,
			formatMoney(p.Price),
			formatMoney(p.MarketValue),
		)
	}
	fmt.Fprintln(w)
}

func renderStocksList(w io.Writer, turn int, stocks []game.StockView) {
	accent.Fprintf(w, "\n== MARKET %s ==\n", game.QuarterLabel(turn))
	if len(stocks) == 0 {
		neutral.Fprintln(w, "No stocks found.")
		return
	}
	fmt.Fprintf(w, "%-8s %-22s %-11s %12s %10s %8s %8s\n", "SYMBOL", "NAME", "SECTOR", "PRICE", "CHANGE", "MU", "SIGMA")
	for _, s := range stocks {
		fmt.Fprintf(w, "%-8s %-22s %-11s %12s %10s %8.2f %8.2f\n",
			s.Symbol,
			truncate(s.DisplayName, 22),
			s.Sector,
			formatMoney(s.Price),
			colorizeMoney(s.Change),
			s.Drift,
			s.Volatility,
		)
	}
	fmt.Fprintln(w)
}

func renderStockDetail(w io.Writer, d game.StockDetail) {
	accent.Fprintf(w, "\n== %s (%s) ==\n", d.Symbol, d.DisplayName)
	fmt.Fprintf(w, "Sector:      %s\n", d.Sector)
	fmt.Fprintf(w, "Model:       %s\n", d.Model)
	fmt.Fprintf(w, "Price:       %s (%s)\n", formatMoney(d.Price), colorizeMoney(d.Change))
	fmt.Fprintf(w, "Mu / Sigma:  %.2f / %.2f\n", d.Drift, d.Volatility)
	if len(d.Series) > 1 {
		first, last := d.Series[0], d.Series[len(d.Series)-1]
		fmt.Fprintf(w, "History:     %s  (turn %d..%d)\n", sparkline(d.Series), first.Turn, last.Turn)
	}
	fmt.Fprintln(w)
}

func renderOrderResult(w io.Writer, r game.OrderResult) {
	verb := "Bought"
	if r.Side == game.SideSell {
		verb = "Sold"
	}
	success.Fprintf(w, "%s %d %s @ %s for %s.\n", verb, r.Quantity, r.Symbol, formatMoney(r.Price), formatMoney(r.Notional))
	fmt.Fprintf(w, "Cash %s, now holding %d %s.\n", formatMoney(r.Cash), r.Shares, r.Symbol)
}

func renderNews(w io.Writer, news []market.NewsItem) {
	if len(news) == 0 {
		neutral.Fprintln(w, "No news.")
		return
	}
	for _, n := range news {
		targets := "all stocks"
		if n.Scope != market.ScopeGlobal {
			targets = strings.Join(n.Symbols, ", ")
		}
		fmt.Fprintf(w, "%s  %-40s %s\n", accent.Sprint(game.QuarterLabel(n.Turn)), n.Description, neutral.Sprint(targets))
	}
}

func renderLeaderboard(w io.Writer, rows []game.LeaderboardRow) {
	accent.Fprintln(w, "\n== LEADERBOARD ==")
	if len(rows) == 0 {
		neutral.Fprintln(w, "No players yet.")
		return
	}
	fmt.Fprintf(w, "%-5s %-24s %14s\n", "RANK", "PLAYER", "NET WORTH")
	for _, r := range rows {
		fmt.Fprintf(w, "%-5d %-24s %14s\n", r.Rank, truncate(r.Player, 24), formatMoney(r.NetWorth))
	}
	fmt.Fprintln(w)
}

func colorizeMoney(d decimal.Decimal) string {
	text := formatMoney(d)
	switch d.Sign() {
	case 1:
		return success.Sprint("+" + text)
	case -1:
		return danger.Sprint(text)
	default:
		return neutral.Sprint(text)
	}
}

func formatMoney(d decimal.Decimal) string {
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Neg()
	}
	fixed := d.StringFixed(2)
	whole, frac, _ := strings.Cut(fixed, ".")
	v, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return sign + fixed
	}
	return fmt.Sprintf("%s%s.%s", sign, comma(v), frac)
}

func comma(v int64) string {
	s := strconv.FormatInt(v, 10)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	pre := len(s) % 3
	if pre > 0 {
		b.WriteString(s[:pre])
		if len(s) > pre {
			b.WriteByte(',')
		}
	}
	for i := pre; i < len(s); i += 3 {
		b.WriteString(s[i : i+3])
		if i+3 < len(s) {
			b.WriteByte(',')
		}
	}
	return b.String()
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}

var sparkTicks = []rune("▁▂▃▄▅▆▇█")

// sparkline draws the series scaled between its own min and max.
func sparkline(series []game.PricePoint) string {
	if len(series) == 0 {
		return ""
	}
	lo, hi := series[0].Price, series[0].Price
	for _, p := range series {
		lo = min(lo, p.Price)
		hi = max(hi, p.Price)
	}
	var b strings.Builder
	for _, p := range series {
		idx := 0
		if hi > lo {
			idx = int((p.Price - lo) / (hi - lo) * float64(len(sparkTicks)-1))
		}
		b.WriteRune(sparkTicks[idx])
	}
	return b.String()
}
