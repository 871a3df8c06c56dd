package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"megamarket/internal/game"
	"megamarket/internal/market"
	"megamarket/internal/syncq"
)

// APIError is a non-2xx answer from the server. Transport failures are
// returned unwrapped so callers can tell the two apart.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api status %d: %s", e.Status, e.Message)
}

// IsUnreachable reports whether err means the request never got an answer.
func IsUnreachable(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return false
	}
	return !errors.Is(err, context.Canceled)
}

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Join opens an account for name. created is false when it already existed.
func (c *Client) Join(ctx context.Context, name string) (out game.Dashboard, created bool, err error) {
	status, err := c.jsonRequest(ctx, http.MethodPost, "/v1/players", map[string]any{"name": name}, &out, "")
	return out, status == http.StatusCreated, err
}

func (c *Client) Dashboard(ctx context.Context, player string) (game.Dashboard, error) {
	var out game.Dashboard
	_, err := c.jsonRequest(ctx, http.MethodGet, "/v1/players/"+url.PathEscape(player), nil, &out, "")
	return out, err
}

type StockList struct {
	Turn   int              `json:"turn"`
	Stocks []game.StockView `json:"stocks"`
}

func (c *Client) ListStocks(ctx context.Context) (StockList, error) {
	var out StockList
	_, err := c.jsonRequest(ctx, http.MethodGet, "/v1/stocks", nil, &out, "")
	return out, err
}

func (c *Client) StockDetail(ctx context.Context, symbol string, limit int) (game.StockDetail, error) {
	path := "/v1/stocks/" + url.PathEscape(symbol)
	if limit > 0 {
		path += fmt.Sprintf("?limit=%d", limit)
	}
	var out game.StockDetail
	_, err := c.jsonRequest(ctx, http.MethodGet, path, nil, &out, "")
	return out, err
}

// OrderBody is the wire form of an order, shared with the offline queue.
func OrderBody(player, symbol, side, quantity string) map[string]any {
	return map[string]any{
		"player":   player,
		"symbol":   strings.ToUpper(strings.TrimSpace(symbol)),
		"side":     side,
		"quantity": json.Number(strings.TrimSpace(quantity)),
	}
}

func (c *Client) PlaceOrder(ctx context.Context, player, symbol, side, quantity, idem string) (game.OrderResult, error) {
	var out game.OrderResult
	_, err := c.jsonRequest(ctx, http.MethodPost, "/v1/orders", OrderBody(player, symbol, side, quantity), &out, idem)
	return out, err
}

// TurnResult is the answer to AdvanceTurn.
type TurnResult struct {
	Turn    int                 `json:"turn"`
	Quarter string              `json:"quarter"`
	Reports []market.TurnReport `json:"reports"`
}

func (c *Client) AdvanceTurn(ctx context.Context, count int) (TurnResult, error) {
	var out TurnResult
	_, err := c.jsonRequest(ctx, http.MethodPost, "/v1/turns", map[string]any{"count": count}, &out, "")
	return out, err
}

func (c *Client) News(ctx context.Context, limit int) ([]market.NewsItem, error) {
	var out struct {
		News []market.NewsItem `json:"news"`
	}
	_, err := c.jsonRequest(ctx, http.MethodGet, fmt.Sprintf("/v1/news?limit=%d", limit), nil, &out, "")
	return out.News, err
}

func (c *Client) Leaderboard(ctx context.Context, limit int) ([]game.LeaderboardRow, error) {
	var out struct {
		Rows []game.LeaderboardRow `json:"rows"`
	}
	_, err := c.jsonRequest(ctx, http.MethodGet, fmt.Sprintf("/v1/leaderboard?limit=%d", limit), nil, &out, "")
	return out.Rows, err
}

func (c *Client) Acquire(ctx context.Context, player string, amount decimal.Decimal) (decimal.Decimal, error) {
	var out struct {
		Cash decimal.Decimal `json:"cash"`
	}
	_, err := c.jsonRequest(ctx, http.MethodPost, "/v1/players/"+url.PathEscape(player)+"/acquire",
		map[string]any{"amount": amount}, &out, "")
	return out.Cash, err
}

func (c *Client) Transfer(ctx context.Context, from, to string, amount decimal.Decimal) error {
	_, err := c.jsonRequest(ctx, http.MethodPost, "/v1/transfers", map[string]any{
		"from":   from,
		"to":     to,
		"amount": amount,
	}, nil, "")
	return err
}

// ReplayResult is the server's verdict on one queued command.
type ReplayResult struct {
	Method         string            `json:"method"`
	Path           string            `json:"path"`
	IdempotencyKey string            `json:"idempotency_key"`
	Status         string            `json:"status"`
	Error          string            `json:"error,omitempty"`
	Result         *game.OrderResult `json:"result,omitempty"`
}

func (c *Client) SyncReplay(ctx context.Context, commands []syncq.Command) ([]ReplayResult, error) {
	var out struct {
		Results []ReplayResult `json:"results"`
	}
	_, err := c.jsonRequest(ctx, http.MethodPost, "/v1/sync/replay", map[string]any{
		"commands": commands,
	}, &out, "")
	return out.Results, err
}

func (c *Client) Do(ctx context.Context, method, path string, body map[string]any, idem string) (map[string]any, error) {
	var out map[string]any
	_, err := c.jsonRequest(ctx, method, path, body, &out, idem)
	return out, err
}

func (c *Client) jsonRequest(ctx context.Context, method, path string, in any, out any, idem string) (int, error) {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return 0, err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idem != "" {
		req.Header.Set("Idempotency-Key", idem)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return resp.StatusCode, &APIError{Status: resp.StatusCode, Message: errorMessage(raw)}
	}
	if out == nil {
		return resp.StatusCode, nil
	}
	return resp.StatusCode, json.NewDecoder(resp.Body).Decode(out)
}

func errorMessage(raw []byte) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		return body.Error
	}
	return strings.TrimSpace(string(raw))
}
