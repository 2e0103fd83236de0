package broker

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var ErrNothingToTrade = errors.New("no balance available to trade")

// PriceSource yields the current market price of the traded symbol.
type PriceSource interface {
	Price(ctx context.Context) (float64, error)
}

// Executor converts the whole balance of one asset into the other.
type Executor interface {
	Buy(ctx context.Context) (Fill, error)
	Sell(ctx context.Context) (Fill, error)
}

type BalanceReader interface {
	Holdings(ctx context.Context) (Holdings, error)
}

// Exchange is what the bot needs from a venue, live or sandboxed.
type Exchange interface {
	PriceSource
	Executor
	BalanceReader
}

type Fill struct {
	OrderID       string
	ClientOrderID string
	Side          string
	Price         decimal.Decimal
	Qty           decimal.Decimal
}

func (f Fill) PriceFloat() float64 {
	price, _ := f.Price.Float64()
	return price
}

type Holdings struct {
	Symbol string
	Cash   decimal.Decimal
	Coin   decimal.Decimal
}

func WaitForContext(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
