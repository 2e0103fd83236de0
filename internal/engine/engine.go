package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"autotrader/internal/broker"
	"autotrader/internal/condition"
	"autotrader/internal/events"
	"autotrader/internal/md"
	"autotrader/internal/metrics"
	"autotrader/internal/risk"
	"autotrader/internal/state"
	"autotrader/internal/strategy"
)

type Mode int

const (
	SeekBuy Mode = iota
	SeekSell
)

func (m Mode) String() string {
	if m == SeekSell {
		return "SEEK_SELL"
	}
	return "SEEK_BUY"
}

// Side is the chain evaluated while in this mode.
func (m Mode) Side() condition.Side {
	if m == SeekSell {
		return condition.Sell
	}
	return condition.Buy
}

type Options struct {
	Symbol       string
	SellFloor    float64
	TickInterval time.Duration
	StartMode    Mode
	// MaxSampleFailures is how many consecutive sample errors Run logs and
	// skips before returning one.
	MaxSampleFailures int
	Sink              events.Sink
	Metrics           *metrics.Metrics
	Logger            *slog.Logger
	Holdings          *state.Store
	Balances          broker.BalanceReader
	Now               func() time.Time
}

// Result summarizes one tick.
type Result struct {
	Mode    Mode
	Price   float64
	Outcome strategy.Outcome
	Fill    *broker.Fill
	Halted  bool
}

// Engine is the mode state machine. It owns the window, the extremes and
// both chains' activation flags; only the goroutine running Tick touches them.
type Engine struct {
	mode     Mode
	buy      *strategy.Chain
	sell     *strategy.Chain
	window   *md.Window
	extremes md.Extremes
	gate     risk.Gate
	prices   broker.PriceSource
	exec     broker.Executor

	symbol            string
	tickInterval      time.Duration
	maxSampleFailures int
	sink              events.Sink
	metrics           *metrics.Metrics
	logger            *slog.Logger
	holdings          *state.Store
	balances          broker.BalanceReader
	now               func() time.Time

	started bool
	halted  bool
}

func New(buy, sell *condition.Graph, prices broker.PriceSource, exec broker.Executor, opts Options) (*Engine, error) {
	if buy == nil || buy.Side() != condition.Buy {
		return nil, errors.New("engine requires a buy graph")
	}
	if sell == nil || sell.Side() != condition.Sell {
		return nil, errors.New("engine requires a sell graph")
	}
	if prices == nil || exec == nil {
		return nil, errors.New("engine requires a price source and an executor")
	}

	e := &Engine{
		mode:              opts.StartMode,
		buy:               strategy.NewChain(buy),
		sell:              strategy.NewChain(sell),
		window:            md.NewWindow(condition.MaxInterval(buy, sell)),
		gate:              risk.Gate{SellFloor: opts.SellFloor},
		prices:            prices,
		exec:              exec,
		symbol:            opts.Symbol,
		tickInterval:      opts.TickInterval,
		maxSampleFailures: opts.MaxSampleFailures,
		sink:              opts.Sink,
		metrics:           opts.Metrics,
		logger:            opts.Logger,
		holdings:          opts.Holdings,
		balances:          opts.Balances,
		now:               opts.Now,
	}
	if e.tickInterval <= 0 {
		e.tickInterval = 200 * time.Millisecond
	}
	if e.sink == nil {
		e.sink = events.Discard{}
	}
	if e.metrics == nil {
		e.metrics = metrics.New()
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.now == nil {
		e.now = time.Now
	}
	e.logger = e.logger.With("symbol", e.symbol)
	return e, nil
}

func (e *Engine) Mode() Mode {
	return e.mode
}

func (e *Engine) chain() *strategy.Chain {
	if e.mode == SeekSell {
		return e.sell
	}
	return e.buy
}

// Start takes the first sample and seeds the extremes with it. The sample is
// not added to the window.
func (e *Engine) Start(ctx context.Context) error {
	price, err := e.prices.Price(ctx)
	if err != nil {
		e.metrics.SampleErrors.Inc()
		return &SampleError{Mode: e.mode, Err: err}
	}
	e.reset(price)
	e.started = true
	e.metrics.Price.Set(price)
	e.metrics.Mode.Set(float64(e.mode))
	e.reconcile(ctx, nil, e.now())

	e.logger.Info("engine started",
		"mode", e.mode.String(),
		"price", price,
		"window", e.window.Bound().String(),
		"sell_floor", e.gate.SellFloor,
		"buy_entry", e.buy.ActiveIDs(),
		"sell_entry", e.sell.ActiveIDs(),
	)
	return nil
}

// Tick processes one price sample to completion: window and extremes update,
// the sell-floor guard, evaluation of the active chain and the resulting
// trade or advance.
func (e *Engine) Tick(ctx context.Context, now time.Time) (Result, error) {
	if !e.started {
		return Result{Mode: e.mode}, ErrNotStarted
	}
	if e.halted {
		return Result{Mode: e.mode, Halted: true}, ErrSellFloorBreached
	}
	timer := time.Now()
	defer func() { e.metrics.TickDuration.Observe(time.Since(timer).Seconds()) }()

	price, err := e.prices.Price(ctx)
	if err != nil {
		e.metrics.SampleErrors.Inc()
		return Result{Mode: e.mode}, &SampleError{Mode: e.mode, Err: err}
	}
	e.metrics.Ticks.Inc()
	e.metrics.Price.Set(price)

	e.window.Push(price, now)
	e.extremes.Observe(price)
	e.metrics.WindowSamples.Set(float64(e.window.Len()))

	if verdict := e.gate.Evaluate(risk.FloorContext{Price: price, Holding: e.mode == SeekSell}); verdict.Halt {
		return e.breach(ctx, now, price, verdict)
	}

	chain := e.chain()
	out := strategy.Evaluate(chain, strategy.MarketSnapshot{
		Timestamp: now,
		Price:     price,
		Window:    e.window,
		Extremes:  e.extremes,
	})
	res := Result{Mode: e.mode, Price: price, Outcome: out}

	switch out.Kind {
	case strategy.Trade:
		fill, err := e.execute(ctx, out.Action)
		if err != nil {
			e.metrics.TradeFailures.WithLabelValues(string(chain.Side())).Inc()
			return res, &ExecutionError{
				Mode:      e.mode,
				Action:    out.Action,
				Chain:     chain.Side(),
				Node:      out.NodeID,
				Price:     price,
				Reference: out.Reference,
				Threshold: out.Threshold,
				Reason:    out.Reason(),
				Err:       err,
			}
		}
		e.completeTrade(ctx, now, price, chain.Side(), out, fill)
		res.Mode = e.mode
		res.Fill = &fill
	case strategy.Advance:
		chain.Advance(out.Node)
		e.metrics.Advances.WithLabelValues(string(chain.Side())).Inc()
		ev := events.NewAdvanced(chain.Side(), out.NodeID, out.NextID, price)
		ev.Symbol = e.symbol
		ev.Reference, ev.Threshold = out.Reference, out.Threshold
		ev.Reason = out.Reason()
		e.sink.Emit(ctx, ev)
	default:
		e.logger.Debug("tick", "mode", e.mode.String(), "price", price, "active", chain.ActiveIDs())
	}
	return res, nil
}

// Run ticks every TickInterval until ctx is done or a tick fails fatally.
func (e *Engine) Run(ctx context.Context) error {
	if !e.started {
		if err := e.Start(ctx); err != nil {
			return err
		}
	}

	failures := 0
	for {
		if err := broker.WaitForContext(ctx, e.tickInterval); err != nil {
			return err
		}
		_, err := e.Tick(ctx, e.now())
		if err == nil {
			failures = 0
			continue
		}
		var sampleErr *SampleError
		if errors.As(err, &sampleErr) && ctx.Err() == nil && failures < e.maxSampleFailures {
			failures++
			e.logger.Warn("price sample failed", "mode", e.mode.String(), "consecutive", failures, "error", sampleErr.Err)
			continue
		}
		return err
	}
}

func (e *Engine) execute(ctx context.Context, action strategy.Action) (broker.Fill, error) {
	if action == strategy.Sell {
		return e.exec.Sell(ctx)
	}
	return e.exec.Buy(ctx)
}

// completeTrade applies the effects of an executed trade: the mode flips and
// evaluation state resets from the tick price.
func (e *Engine) completeTrade(ctx context.Context, now time.Time, price float64, side condition.Side, out strategy.Outcome, fill broker.Fill) {
	if e.mode == SeekBuy {
		e.mode = SeekSell
	} else {
		e.mode = SeekBuy
	}
	e.reset(price)
	e.metrics.Trades.WithLabelValues(string(side)).Inc()
	e.metrics.Mode.Set(float64(e.mode))
	e.metrics.WindowSamples.Set(0)

	ev := events.NewTraded(strategy.ActionFor(side), price)
	ev.Symbol = e.symbol
	ev.Chain = side
	ev.FromNode = out.NodeID
	ev.Reference, ev.Threshold = out.Reference, out.Threshold
	ev.Reason = out.Reason()
	ev.OrderID = fill.OrderID
	e.sink.Emit(ctx, ev)

	e.reconcile(ctx, &fill, now)
}

func (e *Engine) reset(price float64) {
	e.extremes.Reset(price)
	e.window.Clear()
	e.buy.Reset()
	e.sell.Reset()
}

func (e *Engine) breach(ctx context.Context, now time.Time, price float64, verdict risk.Verdict) (Result, error) {
	e.halted = true
	e.metrics.FloorBreaches.Inc()
	ev := events.NewSellFloorBreached(price, e.gate.SellFloor)
	ev.Symbol = e.symbol
	ev.Reason = verdict.Reason
	e.sink.Emit(ctx, ev)

	res := Result{Mode: e.mode, Price: price, Halted: true}
	if !verdict.ForceSell {
		return res, ErrSellFloorBreached
	}

	fill, err := e.exec.Sell(ctx)
	if err != nil {
		e.metrics.TradeFailures.WithLabelValues(string(condition.Sell)).Inc()
		return res, &ExecutionError{
			Mode:      e.mode,
			Action:    strategy.Sell,
			Chain:     condition.Sell,
			Price:     price,
			Threshold: e.gate.SellFloor,
			Reason:    verdict.Reason,
			Err:       err,
		}
	}
	out := strategy.Outcome{
		Kind:      strategy.Trade,
		Action:    strategy.Sell,
		Node:      condition.NoNext,
		Next:      condition.NoNext,
		Threshold: e.gate.SellFloor,
	}
	e.completeTrade(ctx, now, price, condition.Sell, out, fill)
	res.Mode = e.mode
	res.Outcome = out
	res.Fill = &fill
	return res, ErrSellFloorBreached
}
