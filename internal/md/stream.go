package md

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata/stream"
)

var (
	ErrNoPrice      = errors.New("no trade received yet")
	ErrStreamClosed = errors.New("market data stream closed")
)

// StreamPrice keeps the latest trade price from the market data stream so the
// tick loop can sample it without a request per tick.
type StreamPrice struct {
	mu    sync.RWMutex
	price float64
	seen  bool
	err   error
	once  sync.Once
	ready chan struct{}
}

func NewStreamPrice() *StreamPrice {
	return &StreamPrice{ready: make(chan struct{})}
}

// Ready is closed once the first trade has arrived.
func (s *StreamPrice) Ready() <-chan struct{} {
	return s.ready
}

// Price returns the last trade. Once the stream has stopped every call fails,
// so a dead stream is never sampled as a flat price.
func (s *StreamPrice) Price(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return 0, s.err
	}
	if !s.seen {
		return 0, ErrNoPrice
	}
	return s.price, nil
}

func (s *StreamPrice) Update(price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.price = price
	s.seen = true
	s.once.Do(func() { close(s.ready) })
}

func (s *StreamPrice) stop(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = fmt.Errorf("market data stream stopped: %w", err)
}

// WaitReady blocks until the first trade arrives. It fails when the stream
// stops first or no trade shows up within timeout.
func (s *StreamPrice) WaitReady(ctx context.Context, stopped <-chan error, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-s.ready:
		return nil
	case err, ok := <-stopped:
		if !ok {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			err = ErrStreamClosed
		}
		return fmt.Errorf("market data stream stopped before first trade: %w", err)
	case <-timer.C:
		return fmt.Errorf("no trade received within %s", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

type TradeHandler func(symbol string, price float64)

type StreamOptions struct {
	APIKey     string
	APISecret  string
	Symbol     string
	AssetClass string
	Feed       string
}

type streamClient interface {
	Connect(ctx context.Context) error
	Terminated() <-chan error
}

// StartStream subscribes to trades for the symbol and calls handler for each
// one. It blocks until ctx is done or the SDK gives up reconnecting.
func StartStream(ctx context.Context, opts StreamOptions, handler TradeHandler) error {
	var client streamClient
	var subscribe func() error
	if opts.AssetClass == "crypto" {
		crypto := stream.NewCryptoClient(marketdata.US, stream.WithCredentials(opts.APIKey, opts.APISecret))
		client = crypto
		subscribe = func() error {
			return crypto.SubscribeToTrades(func(trade stream.CryptoTrade) {
				handler(trade.Symbol, trade.Price)
			}, opts.Symbol)
		}
	} else {
		stocks := stream.NewStocksClient(ParseFeed(opts.Feed), stream.WithCredentials(opts.APIKey, opts.APISecret))
		client = stocks
		subscribe = func() error {
			return stocks.SubscribeToTrades(func(trade stream.Trade) {
				handler(trade.Symbol, trade.Price)
			}, opts.Symbol)
		}
	}

	// Connect must be called before subscribing in this SDK version.
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("connect market data stream: %w", err)
	}
	slog.Info("market data stream connected", "symbol", opts.Symbol, "asset_class", opts.AssetClass, "feed", opts.Feed)

	if err := subscribe(); err != nil {
		return fmt.Errorf("subscribe to trades: %w", err)
	}
	slog.Info("subscribed to trades", "symbol", opts.Symbol)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-client.Terminated():
		if err == nil {
			err = ErrStreamClosed
		}
		return err
	}
}

// Follow runs StartStream in the background, feeding s. The returned channel
// gets the error that ended the stream and is closed when it returns.
func (s *StreamPrice) Follow(ctx context.Context, opts StreamOptions) <-chan error {
	return s.follow(ctx, func(ctx context.Context, handler TradeHandler) error {
		return StartStream(ctx, opts, handler)
	})
}

func (s *StreamPrice) follow(ctx context.Context, run func(context.Context, TradeHandler) error) <-chan error {
	stopped := make(chan error, 1)
	go func() {
		defer close(stopped)
		err := run(ctx, func(_ string, price float64) {
			s.Update(price)
		})
		if err == nil || errors.Is(err, context.Canceled) {
			return
		}
		slog.Error("market data stream stopped", "error", err)
		s.stop(err)
		stopped <- err
	}()
	return stopped
}

func ParseFeed(feed string) marketdata.Feed {
	switch feed {
	case "iex":
		return marketdata.IEX
	case "sip":
		return marketdata.SIP
	default:
		return marketdata.IEX
	}
}
