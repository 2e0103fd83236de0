package broker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
)

// AssetClass selects which Alpaca endpoints a symbol trades on.
type AssetClass string

const (
	Crypto AssetClass = "crypto"
	Stocks AssetClass = "stocks"
)

func ParseAssetClass(value string) (AssetClass, error) {
	switch AssetClass(strings.ToLower(value)) {
	case Crypto:
		return Crypto, nil
	case Stocks:
		return Stocks, nil
	default:
		return "", fmt.Errorf("unknown asset class %q", value)
	}
}

type Quote struct {
	Bid float64
	Ask float64
}

type MarketDataOptions struct {
	APIKey    string
	APISecret string
	// BaseURL overrides the market data host, empty means the SDK default.
	BaseURL string
	Symbol  string
	Asset   AssetClass
	Feed    marketdata.Feed
}

// MarketData samples prices over the Alpaca market data REST API.
type MarketData struct {
	client *marketdata.Client
	symbol string
	asset  AssetClass
	feed   marketdata.Feed
}

func NewMarketData(opts MarketDataOptions) *MarketData {
	asset := opts.Asset
	if asset == "" {
		asset = Crypto
	}
	return &MarketData{
		client: marketdata.NewClient(marketdata.ClientOpts{
			APIKey:    opts.APIKey,
			APISecret: opts.APISecret,
			BaseURL:   opts.BaseURL,
		}),
		symbol: opts.Symbol,
		asset:  asset,
		feed:   opts.Feed,
	}
}

func (m *MarketData) Price(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	price, ok, err := m.latestTrade()
	if err != nil {
		slog.Error("fetch latest trade failed", "symbol", m.symbol, "asset", m.asset, "error", err)
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("no latest trade for %s", m.symbol)
	}
	return price, nil
}

func (m *MarketData) Quote(ctx context.Context) (Quote, error) {
	if err := ctx.Err(); err != nil {
		return Quote{}, err
	}
	quote, ok, err := m.latestQuote()
	if err != nil {
		slog.Error("fetch latest quote failed", "symbol", m.symbol, "asset", m.asset, "error", err)
		return Quote{}, err
	}
	if !ok {
		return Quote{}, fmt.Errorf("no latest quote for %s", m.symbol)
	}
	return quote, nil
}

// The SDK returns a nil trade or quote with no error when the symbol is
// missing from the response.
func (m *MarketData) latestTrade() (float64, bool, error) {
	if m.asset == Crypto {
		trade, err := m.client.GetLatestCryptoTrade(m.symbol, marketdata.GetLatestCryptoTradeRequest{})
		if err != nil || trade == nil {
			return 0, false, err
		}
		return trade.Price, true, nil
	}
	trade, err := m.client.GetLatestTrade(m.symbol, marketdata.GetLatestTradeRequest{Feed: m.feed})
	if err != nil || trade == nil {
		return 0, false, err
	}
	return trade.Price, true, nil
}

func (m *MarketData) latestQuote() (Quote, bool, error) {
	if m.asset == Crypto {
		quote, err := m.client.GetLatestCryptoQuote(m.symbol, marketdata.GetLatestCryptoQuoteRequest{})
		if err != nil || quote == nil {
			return Quote{}, false, err
		}
		return Quote{Bid: quote.BidPrice, Ask: quote.AskPrice}, true, nil
	}
	quote, err := m.client.GetLatestQuote(m.symbol, marketdata.GetLatestQuoteRequest{Feed: m.feed})
	if err != nil || quote == nil {
		return Quote{}, false, err
	}
	return Quote{Bid: quote.BidPrice, Ask: quote.AskPrice}, true, nil
}
