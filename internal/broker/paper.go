package broker

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Quoter supplies prices and the bid/ask spread a paper fill executes at.
type Quoter interface {
	PriceSource
	Quote(ctx context.Context) (Quote, error)
}

// Paper is a sandbox exchange holding decimal cash and coin balances. Buys
// convert all cash at the ask, sells convert all coin at the bid.
type Paper struct {
	mu     sync.Mutex
	quotes Quoter
	symbol string
	cash   decimal.Decimal
	coin   decimal.Decimal
}

func NewPaper(symbol string, cash, coin decimal.Decimal, quotes Quoter) *Paper {
	return &Paper{quotes: quotes, symbol: symbol, cash: cash, coin: coin}
}

func (p *Paper) Price(ctx context.Context) (float64, error) {
	return p.quotes.Price(ctx)
}

func (p *Paper) Holdings(ctx context.Context) (Holdings, error) {
	if err := ctx.Err(); err != nil {
		return Holdings{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return Holdings{Symbol: p.symbol, Cash: p.cash, Coin: p.coin}, nil
}

func (p *Paper) Buy(ctx context.Context) (Fill, error) {
	quote, err := p.quotes.Quote(ctx)
	if err != nil {
		return Fill{}, err
	}
	ask := decimal.NewFromFloat(quote.Ask)
	if !ask.IsPositive() {
		return Fill{}, ErrNothingToTrade
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.cash.IsPositive() {
		return Fill{}, ErrNothingToTrade
	}
	qty := p.cash.Div(ask)
	p.coin = p.coin.Add(qty)
	p.cash = decimal.Zero

	fill := Fill{OrderID: uuid.NewString(), ClientOrderID: uuid.NewString(), Side: "buy", Price: ask, Qty: qty}
	slog.Info("paper buy filled", "symbol", p.symbol, "qty", qty.String(), "price", ask.String())
	return fill, nil
}

func (p *Paper) Sell(ctx context.Context) (Fill, error) {
	quote, err := p.quotes.Quote(ctx)
	if err != nil {
		return Fill{}, err
	}
	bid := decimal.NewFromFloat(quote.Bid)
	if !bid.IsPositive() {
		return Fill{}, ErrNothingToTrade
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.coin.IsPositive() {
		return Fill{}, ErrNothingToTrade
	}
	qty := p.coin
	p.cash = p.cash.Add(qty.Mul(bid))
	p.coin = decimal.Zero

	fill := Fill{OrderID: uuid.NewString(), ClientOrderID: uuid.NewString(), Side: "sell", Price: bid, Qty: qty}
	slog.Info("paper sell filled", "symbol", p.symbol, "qty", qty.String(), "price", bid.String())
	return fill, nil
}
