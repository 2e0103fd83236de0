// Package events carries the discrete notifications the trading loop emits
// and the sinks that record or forward them.
package events

import (
	"context"
	"log/slog"
	"time"

	"autotrader/internal/condition"
	"autotrader/internal/strategy"
)

type Type string

const (
	Traded            Type = "TRADED"
	Advanced          Type = "ADVANCED"
	SellFloorBreached Type = "SELL_FLOOR_BREACHED"
)

type Event struct {
	RunID     string          `json:"run_id,omitempty"`
	Type      Type            `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Symbol    string          `json:"symbol,omitempty"`
	Chain     condition.Side  `json:"chain,omitempty"`
	Direction strategy.Action `json:"direction,omitempty"`
	Price     float64         `json:"price"`
	FromNode  string          `json:"from_node,omitempty"`
	ToNode    string          `json:"to_node,omitempty"`
	Reference float64         `json:"reference,omitempty"`
	Threshold float64         `json:"threshold,omitempty"`
	Floor     float64         `json:"floor,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	OrderID   string          `json:"order_id,omitempty"`
}

func NewTraded(direction strategy.Action, price float64) Event {
	return Event{Type: Traded, Timestamp: time.Now().UTC(), Direction: direction, Price: price}
}

func NewAdvanced(chain condition.Side, from, to string, price float64) Event {
	return Event{Type: Advanced, Timestamp: time.Now().UTC(), Chain: chain, FromNode: from, ToNode: to, Price: price}
}

func NewSellFloorBreached(price, floor float64) Event {
	return Event{Type: SellFloorBreached, Timestamp: time.Now().UTC(), Price: price, Floor: floor}
}

// Sink receives events. Emit must not block the tick loop for long and
// reports its own failures.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// Multi fans an event out to every sink in order.
type Multi []Sink

func (m Multi) Emit(ctx context.Context, event Event) {
	for _, sink := range m {
		if sink != nil {
			sink.Emit(ctx, event)
		}
	}
}

// Tagged stamps the run id on every event before handing it to Sink.
type Tagged struct {
	RunID string
	Sink  Sink
}

func (t Tagged) Emit(ctx context.Context, event Event) {
	if event.RunID == "" {
		event.RunID = t.RunID
	}
	t.Sink.Emit(ctx, event)
}

// Discard drops every event.
type Discard struct{}

func (Discard) Emit(context.Context, Event) {}

// LogSink writes events as structured log records.
type LogSink struct {
	Logger *slog.Logger
}

func (l LogSink) Emit(ctx context.Context, event Event) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	switch event.Type {
	case Traded:
		logger.InfoContext(ctx, "traded", "direction", event.Direction, "price", event.Price, "node", event.FromNode, "reason", event.Reason, "order_id", event.OrderID)
	case Advanced:
		logger.InfoContext(ctx, "next link", "chain", event.Chain, "from", event.FromNode, "to", event.ToNode, "price", event.Price)
	case SellFloorBreached:
		logger.WarnContext(ctx, "price is below the sell floor", "price", event.Price, "floor", event.Floor)
	default:
		logger.InfoContext(ctx, "event", "type", event.Type, "price", event.Price)
	}
}
