package game

import (
	"github.com/shopspring/decimal"

	"megamarket/internal/market"
)

type Dashboard struct {
	Player       string          `json:"player"`
	Turn         int             `json:"turn"`
	Quarter      string          `json:"quarter"`
	Cash         decimal.Decimal `json:"cash"`
	Holdings     decimal.Decimal `json:"holdings"`
	NetWorth     decimal.Decimal `json:"net_worth"`
	StartingCash decimal.Decimal `json:"starting_cash"`
	ProfitLoss   decimal.Decimal `json:"profit_loss"`
	Positions    []PositionView  `json:"positions"`
}

type PositionView struct {
	Symbol      string          `json:"symbol"`
	DisplayName string          `json:"display_name"`
	Shares      int64           `json:"shares"`
	Price       decimal.Decimal `json:"price"`
	MarketValue decimal.Decimal `json:"market_value"`
}

type StockView struct {
	Symbol      string          `json:"symbol"`
	DisplayName string          `json:"display_name"`
	Sector      string          `json:"sector,omitempty"`
	Model       string          `json:"model"`
	Price       decimal.Decimal `json:"price"`
	Change      decimal.Decimal `json:"change"`
	Drift       float64         `json:"drift"`
	Volatility  float64         `json:"volatility"`
}

type StockDetail struct {
	StockView
	Series []PricePoint `json:"series"`
}

type PricePoint struct {
	Turn  int     `json:"turn"`
	Price float64 `json:"price"`
}

type OrderInput struct {
	Player string
	Symbol string
	Side   string
	// Quantity is the raw text the player typed.
	Quantity       string
	IdempotencyKey string
}

type OrderResult struct {
	OrderID  string          `json:"order_id"`
	Turn     int             `json:"turn"`
	Symbol   string          `json:"symbol"`
	Side     string          `json:"side"`
	Quantity int64           `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Notional decimal.Decimal `json:"notional"`
	Cash     decimal.Decimal `json:"cash"`
	Shares   int64           `json:"shares"`
}

type LeaderboardRow struct {
	Rank     int64           `json:"rank"`
	Player   string          `json:"player"`
	NetWorth decimal.Decimal `json:"net_worth"`
}

func stockView(v market.View, prev float64) StockView {
	price := Quote(v.Price)
	return StockView{
		Symbol:      v.Symbol,
		DisplayName: v.Name,
		Sector:      v.Sector,
		Model:       v.Model,
		Price:       price,
		Change:      price.Sub(Quote(prev)),
		Drift:       v.Drift,
		Volatility:  v.Volatility,
	}
}
