// Package broker is the execution-API collaborator: account state, market
// clock, order submission and terminal-status lookup. All calls are bounded
// by client timeouts; the core never polls indefinitely.
package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"rsidesk/internal/models"
)

// ErrAwaitTimeout is returned when an order does not reach a terminal
// status within the wait budget. The trade record stays submitted and is
// picked up later by the reconcile command.
var ErrAwaitTimeout = errors.New("order still open after wait budget")

type Client struct {
	http *resty.Client
}

func New(baseURL, apiKey, apiSecret string) (*Client, error) {
	if baseURL == "" || apiKey == "" || apiSecret == "" {
		return nil, fmt.Errorf("broker base url, api key and secret are required")
	}

	http := resty.New().
		SetBaseURL(baseURL).
		SetHeader("APCA-API-KEY-ID", apiKey).
		SetHeader("APCA-API-SECRET-KEY", apiSecret).
		SetTimeout(10 * time.Second).
		SetRetryCount(2)

	return &Client{http: http}, nil
}

// Account is the subset of broker account state the session needs.
type Account struct {
	Cash float64
}

type accountPayload struct {
	Cash string `json:"cash"`
}

func (c *Client) Account(ctx context.Context) (Account, error) {
	var payload accountPayload
	resp, err := c.http.R().SetContext(ctx).SetResult(&payload).Get("/v2/account")
	if err := checkResponse(resp, err, "get account"); err != nil {
		return Account{}, err
	}
	cash, err := decimal.NewFromString(payload.Cash)
	if err != nil {
		return Account{}, fmt.Errorf("parse account cash %q: %w", payload.Cash, err)
	}
	return Account{Cash: cash.InexactFloat64()}, nil
}

type clockPayload struct {
	IsOpen bool `json:"is_open"`
}

// MarketOpen reports whether the market is currently open. A failed clock
// call is treated as closed, matching the conservative pricing fallback.
func (c *Client) MarketOpen(ctx context.Context) bool {
	var payload clockPayload
	resp, err := c.http.R().SetContext(ctx).SetResult(&payload).Get("/v2/clock")
	if err := checkResponse(resp, err, "get clock"); err != nil {
		return false
	}
	return payload.IsOpen
}

// HeldPosition is one broker-reported position, the authoritative state the
// portfolio sync collaborator reconciles against.
type HeldPosition struct {
	Symbol   string
	Qty      int64
	AvgPrice float64
}

type positionPayload struct {
	Symbol        string `json:"symbol"`
	Qty           string `json:"qty"`
	AvgEntryPrice string `json:"avg_entry_price"`
}

func (c *Client) Positions(ctx context.Context) ([]HeldPosition, error) {
	var payload []positionPayload
	resp, err := c.http.R().SetContext(ctx).SetResult(&payload).Get("/v2/positions")
	if err := checkResponse(resp, err, "list positions"); err != nil {
		return nil, err
	}

	positions := make([]HeldPosition, 0, len(payload))
	for _, p := range payload {
		qty, err := decimal.NewFromString(p.Qty)
		if err != nil {
			return nil, fmt.Errorf("parse position qty %q for %s: %w", p.Qty, p.Symbol, err)
		}
		avg, err := decimal.NewFromString(p.AvgEntryPrice)
		if err != nil {
			return nil, fmt.Errorf("parse avg entry price %q for %s: %w", p.AvgEntryPrice, p.Symbol, err)
		}
		positions = append(positions, HeldPosition{
			Symbol:   p.Symbol,
			Qty:      qty.IntPart(),
			AvgPrice: avg.InexactFloat64(),
		})
	}
	return positions, nil
}

// OrderRequest is a day market order, the only order type the system
// submits.
type OrderRequest struct {
	Symbol string
	Side   models.Side
	Qty    int64
}

// Order is the broker's view of a submitted order.
type Order struct {
	ID          string
	Status      models.OrderStatus
	FilledQty   int64
	FilledPrice float64
	Reason      string
}

type orderPayload struct {
	ID             string `json:"id"`
	Status         string `json:"status"`
	FilledQty      string `json:"filled_qty"`
	FilledAvgPrice string `json:"filled_avg_price"`
}

func (c *Client) SubmitOrder(ctx context.Context, req OrderRequest) (Order, error) {
	body := map[string]any{
		"symbol":        req.Symbol,
		"qty":           fmt.Sprintf("%d", req.Qty),
		"side":          string(req.Side),
		"type":          "market",
		"time_in_force": "day",
	}

	var payload orderPayload
	resp, err := c.http.R().SetContext(ctx).SetBody(body).SetResult(&payload).Post("/v2/orders")
	if err := checkResponse(resp, err, fmt.Sprintf("submit %s %d %s", req.Side, req.Qty, req.Symbol)); err != nil {
		return Order{}, err
	}
	return payload.toOrder()
}

// Order fetches the current broker state of one order.
func (c *Client) Order(ctx context.Context, orderID string) (Order, error) {
	var payload orderPayload
	resp, err := c.http.R().SetContext(ctx).SetResult(&payload).Get("/v2/orders/" + orderID)
	if err := checkResponse(resp, err, "get order "+orderID); err != nil {
		return Order{}, err
	}
	return payload.toOrder()
}

// AwaitTerminal polls the order until it reaches a terminal status or the
// wait budget runs out, surfacing a bounded result either way.
func (c *Client) AwaitTerminal(ctx context.Context, orderID string, wait time.Duration) (models.BrokerResult, error) {
	deadline := time.Now().Add(wait)
	interval := 2 * time.Second

	for {
		order, err := c.Order(ctx, orderID)
		if err != nil {
			return models.BrokerResult{}, err
		}
		if order.Status.Terminal() {
			return models.BrokerResult{
				OrderID:     order.ID,
				Status:      order.Status,
				FilledQty:   order.FilledQty,
				FilledPrice: order.FilledPrice,
				Reason:      order.Reason,
			}, nil
		}
		if time.Now().After(deadline) {
			return models.BrokerResult{}, fmt.Errorf("order %s: %w", orderID, ErrAwaitTimeout)
		}
		select {
		case <-ctx.Done():
			return models.BrokerResult{}, ctx.Err()
		case <-time.After(interval):
		}
	}
}

// Result converts a broker order lookup into the reconciler's input.
func (c *Client) Result(ctx context.Context, brokerOrderID string) (models.BrokerResult, error) {
	order, err := c.Order(ctx, brokerOrderID)
	if err != nil {
		return models.BrokerResult{}, err
	}
	return models.BrokerResult{
		OrderID:     order.ID,
		Status:      order.Status,
		FilledQty:   order.FilledQty,
		FilledPrice: order.FilledPrice,
		Reason:      order.Reason,
	}, nil
}

func (p orderPayload) toOrder() (Order, error) {
	order := Order{ID: p.ID, Status: mapStatus(p.Status)}

	if p.FilledQty != "" {
		qty, err := decimal.NewFromString(p.FilledQty)
		if err != nil {
			return Order{}, fmt.Errorf("parse filled qty %q: %w", p.FilledQty, err)
		}
		order.FilledQty = qty.IntPart()
	}
	if p.FilledAvgPrice != "" {
		price, err := decimal.NewFromString(p.FilledAvgPrice)
		if err != nil {
			return Order{}, fmt.Errorf("parse filled avg price %q: %w", p.FilledAvgPrice, err)
		}
		order.FilledPrice = price.InexactFloat64()
	}
	if order.Status == models.StatusRejected || order.Status == models.StatusCancelled {
		order.Reason = p.Status
	}
	return order, nil
}

// mapStatus folds the broker's order lifecycle into the local state
// machine: anything not yet terminal stays submitted.
func mapStatus(status string) models.OrderStatus {
	switch status {
	case "filled":
		return models.StatusFilled
	case "rejected", "expired":
		return models.StatusRejected
	case "canceled", "cancelled":
		return models.StatusCancelled
	default:
		return models.StatusSubmitted
	}
}

func checkResponse(resp *resty.Response, err error, action string) error {
	if err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%s: broker returned %d: %s", action, resp.StatusCode(), resp.String())
	}
	return nil
}
