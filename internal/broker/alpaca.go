package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const defaultPollInterval = 500 * time.Millisecond

type ClientOptions struct {
	APIKey      string
	APISecret   string
	BaseURL     string
	Symbol      string
	Asset       AssetClass
	TimeInForce string
	// FillTimeout bounds how long Buy and Sell wait for the order to fill.
	FillTimeout  time.Duration
	PollInterval time.Duration
}

// Client trades the whole account through the Alpaca trading API.
type Client struct {
	client       *alpaca.Client
	market       *MarketData
	symbol       string
	asset        AssetClass
	tif          alpaca.TimeInForce
	fillTimeout  time.Duration
	pollInterval time.Duration
}

func New(opts ClientOptions, market *MarketData) *Client {
	client := alpaca.NewClient(alpaca.ClientOpts{
		APIKey:    opts.APIKey,
		APISecret: opts.APISecret,
		BaseURL:   opts.BaseURL,
	})
	asset := opts.Asset
	if asset == "" {
		asset = Crypto
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}
	return &Client{
		client:       client,
		market:       market,
		symbol:       opts.Symbol,
		asset:        asset,
		tif:          timeInForceFor(asset, opts.TimeInForce),
		fillTimeout:  opts.FillTimeout,
		pollInterval: poll,
	}
}

func (c *Client) Price(ctx context.Context) (float64, error) {
	return c.market.Price(ctx)
}

func (c *Client) Holdings(ctx context.Context) (Holdings, error) {
	if err := ctx.Err(); err != nil {
		return Holdings{}, err
	}
	acct, err := c.client.GetAccount()
	if err != nil {
		slog.Error("fetch account failed", "error", err)
		return Holdings{}, err
	}
	coin, err := c.positionQty()
	if err != nil {
		return Holdings{}, err
	}
	slog.Info("holdings fetched", "symbol", c.symbol, "cash", acct.Cash.String(), "coin", coin.String())
	return Holdings{Symbol: c.symbol, Cash: acct.Cash, Coin: coin}, nil
}

// Buy spends all available cash on a notional market order.
func (c *Client) Buy(ctx context.Context) (Fill, error) {
	acct, err := c.client.GetAccount()
	if err != nil {
		slog.Error("fetch account failed", "error", err)
		return Fill{}, err
	}
	cash := acct.Cash.RoundDown(2)
	if !cash.IsPositive() {
		return Fill{}, ErrNothingToTrade
	}
	return c.submit(ctx, alpaca.PlaceOrderRequest{
		Symbol:      c.symbol,
		Notional:    &cash,
		Side:        alpaca.Buy,
		Type:        alpaca.Market,
		TimeInForce: c.tif,
	})
}

// Sell liquidates the whole position.
func (c *Client) Sell(ctx context.Context) (Fill, error) {
	qty, err := c.positionQty()
	if err != nil {
		return Fill{}, err
	}
	if !qty.IsPositive() {
		return Fill{}, ErrNothingToTrade
	}
	return c.submit(ctx, alpaca.PlaceOrderRequest{
		Symbol:      c.symbol,
		Qty:         &qty,
		Side:        alpaca.Sell,
		Type:        alpaca.Market,
		TimeInForce: c.tif,
	})
}

func (c *Client) positionQty() (decimal.Decimal, error) {
	pos, err := c.client.GetPosition(positionSymbol(c.asset, c.symbol))
	if err != nil {
		var apiErr *alpaca.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return decimal.Zero, nil
		}
		slog.Error("fetch position failed", "symbol", c.symbol, "error", err)
		return decimal.Zero, err
	}
	return pos.Qty, nil
}

func (c *Client) submit(ctx context.Context, req alpaca.PlaceOrderRequest) (Fill, error) {
	req.ClientOrderID = uuid.NewString()
	order, err := c.client.PlaceOrder(req)
	if err != nil {
		slog.Error("place order failed", "side", req.Side, "symbol", req.Symbol, "client_order_id", req.ClientOrderID, "error", err)
		return Fill{}, err
	}
	slog.Info("place order success", "order_id", order.ID, "side", req.Side, "symbol", req.Symbol, "status", order.Status)

	waitCtx := ctx
	if c.fillTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, c.fillTimeout)
		defer cancel()
	}
	return c.awaitFill(waitCtx, order.ID, req.ClientOrderID, string(req.Side))
}

func (c *Client) awaitFill(ctx context.Context, orderID, clientOrderID, side string) (Fill, error) {
	for {
		order, err := c.client.GetOrder(orderID)
		if err != nil {
			slog.Error("fetch order failed", "order_id", orderID, "error", err)
			return Fill{}, err
		}
		switch string(order.Status) {
		case "filled":
			return filled(order, clientOrderID, side), nil
		case "canceled", "rejected", "expired":
			slog.Error("order not filled", "order_id", order.ID, "side", side, "status", order.Status)
			return Fill{}, fmt.Errorf("order %s %s", order.ID, order.Status)
		}
		if err := WaitForContext(ctx, c.pollInterval); err != nil {
			return c.abandon(orderID, clientOrderID, side, err)
		}
	}
}

// abandon cancels an order that is still open when the wait ends. An order
// that filled before the cancel landed is still reported as a fill.
func (c *Client) abandon(orderID, clientOrderID, side string, cause error) (Fill, error) {
	cancelErr := c.client.CancelOrder(orderID)
	if cancelErr != nil {
		slog.Error("cancel order failed", "order_id", orderID, "side", side, "error", cancelErr)
	} else {
		slog.Warn("open order canceled", "order_id", orderID, "side", side, "reason", cause)
	}

	order, err := c.client.GetOrder(orderID)
	if err == nil && string(order.Status) == "filled" {
		return filled(order, clientOrderID, side), nil
	}
	if err == nil && order.FilledQty.IsPositive() {
		slog.Error("order partially filled before cancel", "order_id", orderID, "side", side, "qty", order.FilledQty.String())
	}
	if cancelErr != nil {
		return Fill{}, fmt.Errorf("waiting for order %s: %w (cancel failed: %v)", orderID, cause, cancelErr)
	}
	return Fill{}, fmt.Errorf("waiting for order %s: %w", orderID, cause)
}

func filled(order *alpaca.Order, clientOrderID, side string) Fill {
	fill := Fill{
		OrderID:       order.ID,
		ClientOrderID: clientOrderID,
		Side:          side,
		Qty:           order.FilledQty,
	}
	if order.FilledAvgPrice != nil {
		fill.Price = *order.FilledAvgPrice
	}
	slog.Info("order filled", "order_id", order.ID, "side", side, "qty", fill.Qty.String(), "price", fill.Price.String())
	return fill
}

// timeInForceFor picks the order duration. Alpaca only accepts day for
// notional equity orders.
func timeInForceFor(asset AssetClass, value string) alpaca.TimeInForce {
	if asset == Stocks {
		return alpaca.Day
	}
	return parseTimeInForce(value)
}

func parseTimeInForce(value string) alpaca.TimeInForce {
	switch value {
	case "gtc":
		return alpaca.GTC
	default:
		return alpaca.Day
	}
}

// Positions are keyed by the pair without its slash (BTC/USD is BTCUSD).
func positionSymbol(asset AssetClass, symbol string) string {
	if asset == Crypto {
		return strings.ReplaceAll(symbol, "/", "")
	}
	return symbol
}
