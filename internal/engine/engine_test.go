package engine

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"autotrader/internal/broker"
	"autotrader/internal/condition"
	"autotrader/internal/events"
	"autotrader/internal/state"
	"autotrader/internal/strategy"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func f(v float64) *float64 { return &v }

type fakePrices struct {
	prices []float64
	errs   map[int]error
	calls  int
}

func (p *fakePrices) Price(ctx context.Context) (float64, error) {
	i := p.calls
	p.calls++
	if err, ok := p.errs[i]; ok {
		return 0, err
	}
	if i >= len(p.prices) {
		return p.prices[len(p.prices)-1], nil
	}
	return p.prices[i], nil
}

type fakeExchange struct {
	buys  int
	sells int
	err   error
}

func (x *fakeExchange) Buy(ctx context.Context) (broker.Fill, error) {
	if x.err != nil {
		return broker.Fill{}, x.err
	}
	x.buys++
	return broker.Fill{OrderID: "buy-order", Side: "buy", Price: decimal.NewFromInt(100), Qty: decimal.NewFromInt(1)}, nil
}

func (x *fakeExchange) Sell(ctx context.Context) (broker.Fill, error) {
	if x.err != nil {
		return broker.Fill{}, x.err
	}
	x.sells++
	return broker.Fill{OrderID: "sell-order", Side: "sell", Price: decimal.NewFromInt(100), Qty: decimal.NewFromInt(1)}, nil
}

func (x *fakeExchange) Holdings(ctx context.Context) (broker.Holdings, error) {
	return broker.Holdings{Symbol: "BTC/USD", Cash: decimal.NewFromInt(int64(100 * x.sells)), Coin: decimal.NewFromInt(int64(x.buys - x.sells))}, nil
}

type recorder struct {
	events []events.Event
}

func (r *recorder) Emit(_ context.Context, event events.Event) {
	r.events = append(r.events, event)
}

func (r *recorder) ofType(kind events.Type) []events.Event {
	var out []events.Event
	for _, ev := range r.events {
		if ev.Type == kind {
			out = append(out, ev)
		}
	}
	return out
}

func mustBuild(t *testing.T, side condition.Side, records []condition.Record) *condition.Graph {
	t.Helper()
	g, err := condition.Build(side, records)
	if err != nil {
		t.Fatalf("build %s graph: %v", side, err)
	}
	return g
}

func simpleSell(t *testing.T) *condition.Graph {
	return mustBuild(t, condition.Sell, []condition.Record{
		{ID: "S", PercentDown: f(5), FromDown: condition.SinceLastTrade},
	})
}

func intervalSell(t *testing.T) *condition.Graph {
	return mustBuild(t, condition.Sell, []condition.Record{
		{ID: "S", PercentDown: f(5), FromDown: condition.IntervalWindow, Interval: 30},
	})
}

type harness struct {
	engine *Engine
	prices *fakePrices
	exch   *fakeExchange
	sink   *recorder
	clock  time.Time
}

func newHarness(t *testing.T, buy, sell *condition.Graph, prices []float64, opts Options) *harness {
	t.Helper()
	h := &harness{
		prices: &fakePrices{prices: prices},
		exch:   &fakeExchange{},
		sink:   &recorder{},
		clock:  epoch,
	}
	opts.Sink = h.sink
	opts.Symbol = "BTC/USD"
	eng, err := New(buy, sell, h.prices, h.exch, opts)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	h.engine = eng
	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	return h
}

func (h *harness) tick() (Result, error) {
	h.clock = h.clock.Add(time.Second)
	return h.engine.Tick(context.Background(), h.clock)
}

func (h *harness) mustTick(t *testing.T) Result {
	t.Helper()
	res, err := h.tick()
	if err != nil {
		t.Fatalf("tick %d: %v", h.prices.calls-1, err)
	}
	return res
}

func assertReset(t *testing.T, e *Engine) {
	t.Helper()
	if e.window.Len() != 0 {
		t.Fatalf("expected empty window after reset, got %d samples", e.window.Len())
	}
	for _, chain := range []*strategy.Chain{e.buy, e.sell} {
		g := chain.Graph()
		for i := 0; i < g.Len(); i++ {
			if chain.IsActive(i) == g.Node(i).HasPredecessor {
				t.Fatalf("%s node %s: active=%v with predecessor=%v", g.Side(), g.Node(i).ID, chain.IsActive(i), g.Node(i).HasPredecessor)
			}
		}
	}
}

func TestPercentUpTradeFlipsMode(t *testing.T) {
	buy := mustBuild(t, condition.Buy, []condition.Record{
		{ID: "A", PercentUp: f(5), FromUp: condition.SinceLastTrade},
	})
	h := newHarness(t, buy, simpleSell(t), []float64{100, 100, 101, 104, 106}, Options{})

	for i := 0; i < 3; i++ {
		if res := h.mustTick(t); res.Outcome.Kind != strategy.NoAction || res.Mode != SeekBuy {
			t.Fatalf("tick %d: expected no action in SEEK_BUY, got %s in %s", i, res.Outcome.Kind, res.Mode)
		}
	}

	res := h.mustTick(t)
	if res.Outcome.Kind != strategy.Trade || res.Mode != SeekSell || res.Fill == nil {
		t.Fatalf("expected trade into SEEK_SELL, got %+v", res)
	}
	if h.exch.buys != 1 {
		t.Fatalf("expected one buy, got %d", h.exch.buys)
	}
	if max, min := h.engine.extremes.Current(); max != 106 || min != 106 {
		t.Fatalf("expected extremes reset to 106, got max=%v min=%v", max, min)
	}
	assertReset(t, h.engine)

	traded := h.sink.ofType(events.Traded)
	if len(traded) != 1 || traded[0].Direction != strategy.Buy || traded[0].Price != 106 || traded[0].FromNode != "A" {
		t.Fatalf("unexpected traded events %+v", traded)
	}
	if got := testutil.ToFloat64(h.engine.metrics.Trades.WithLabelValues("buy")); got != 1 {
		t.Fatalf("expected trade metric 1, got %v", got)
	}
}

func TestIntervalDropAdvancesChain(t *testing.T) {
	buy := mustBuild(t, condition.Buy, []condition.Record{
		{ID: "A", PercentUp: f(50), FromUp: condition.SinceLastTrade, PriceDown: f(10), FromDown: condition.IntervalWindow, Interval: 60, Next: "B"},
		{ID: "B", PercentUp: f(3), FromUp: condition.SinceLastTrade},
	})
	h := newHarness(t, buy, simpleSell(t), []float64{110, 110, 120, 108, 109, 112}, Options{})
	if h.engine.window.Bound() != 60*time.Second {
		t.Fatalf("expected window bound 60s, got %s", h.engine.window.Bound())
	}

	h.mustTick(t)
	h.mustTick(t)
	res := h.mustTick(t)
	if res.Outcome.Kind != strategy.Advance || res.Outcome.NodeID != "A" || res.Outcome.NextID != "B" {
		t.Fatalf("expected advance A->B, got %+v", res.Outcome)
	}
	if res.Outcome.Reference != 120 {
		t.Fatalf("expected reference 120, got %v", res.Outcome.Reference)
	}
	a, _ := buy.Index("A")
	b, _ := buy.Index("B")
	if h.engine.buy.IsActive(a) || !h.engine.buy.IsActive(b) {
		t.Fatalf("expected A dormant and B active, got %v", h.engine.buy.ActiveIDs())
	}
	advanced := h.sink.ofType(events.Advanced)
	if len(advanced) != 1 || advanced[0].FromNode != "A" || advanced[0].ToNode != "B" {
		t.Fatalf("unexpected advanced events %+v", advanced)
	}

	// B measures from the low since the last trade, 108.
	if res := h.mustTick(t); res.Outcome.Kind != strategy.NoAction {
		t.Fatalf("expected no action at 109, got %+v", res.Outcome)
	}
	res = h.mustTick(t)
	if res.Outcome.Kind != strategy.Trade || res.Outcome.NodeID != "B" || res.Mode != SeekSell {
		t.Fatalf("expected B to trade at 112, got %+v", res.Outcome)
	}
	assertReset(t, h.engine)
	if !h.engine.buy.IsActive(a) || h.engine.buy.IsActive(b) {
		t.Fatalf("expected buy chain back at its entry point, got %v", h.engine.buy.ActiveIDs())
	}
}

func TestSellFloorForcesSellInSeekSell(t *testing.T) {
	buy := mustBuild(t, condition.Buy, []condition.Record{
		{ID: "A", PercentUp: f(5), FromUp: condition.SinceLastTrade},
	})
	h := newHarness(t, buy, simpleSell(t), []float64{55, 49}, Options{SellFloor: 50, StartMode: SeekSell})

	res, err := h.tick()
	if !errors.Is(err, ErrSellFloorBreached) {
		t.Fatalf("expected ErrSellFloorBreached, got %v", err)
	}
	if !res.Halted || res.Fill == nil || h.exch.sells != 1 {
		t.Fatalf("expected forced sell, got %+v sells=%d", res, h.exch.sells)
	}
	breaches := h.sink.ofType(events.SellFloorBreached)
	if len(breaches) != 1 || breaches[0].Price != 49 || breaches[0].Floor != 50 {
		t.Fatalf("unexpected breach events %+v", breaches)
	}

	if _, err := h.tick(); !errors.Is(err, ErrSellFloorBreached) {
		t.Fatalf("expected engine to stay halted, got %v", err)
	}
	if h.exch.sells != 1 {
		t.Fatalf("expected no further sells, got %d", h.exch.sells)
	}
}

func TestSellFloorInSeekBuyHaltsWithoutSelling(t *testing.T) {
	buy := mustBuild(t, condition.Buy, []condition.Record{
		{ID: "A", PercentDown: f(1), FromDown: condition.SinceLastTrade, PercentUp: f(1), FromUp: condition.SinceLastTrade, Next: "B"},
		{ID: "B", PercentUp: f(1), FromUp: condition.SinceLastTrade},
	})
	h := newHarness(t, buy, simpleSell(t), []float64{60, 49}, Options{SellFloor: 50})

	res, err := h.tick()
	if !errors.Is(err, ErrSellFloorBreached) {
		t.Fatalf("expected ErrSellFloorBreached, got %v", err)
	}
	if res.Fill != nil || h.exch.sells != 0 || h.exch.buys != 0 {
		t.Fatalf("expected no trade, got %+v", res)
	}
	if len(h.sink.ofType(events.Advanced)) != 0 {
		t.Fatalf("guard must run before chain evaluation")
	}
}

func TestExecutionErrorLeavesStateUntouched(t *testing.T) {
	buy := mustBuild(t, condition.Buy, []condition.Record{
		{ID: "A", PercentUp: f(5), FromUp: condition.SinceLastTrade},
	})
	h := newHarness(t, buy, intervalSell(t), []float64{100, 100, 106}, Options{})
	boom := errors.New("exchange rejected order")
	h.exch.err = boom

	h.mustTick(t)
	_, err := h.tick()
	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("expected ExecutionError, got %v", err)
	}
	if !errors.Is(err, boom) || execErr.Node != "A" || execErr.Reference != 100 || execErr.Mode != SeekBuy {
		t.Fatalf("unexpected execution error %+v", execErr)
	}
	if h.engine.Mode() != SeekBuy {
		t.Fatalf("mode flipped despite failed trade")
	}
	if h.engine.window.Len() != 2 {
		t.Fatalf("window reset despite failed trade, got %d samples", h.engine.window.Len())
	}
	if max, min := h.engine.extremes.Current(); max != 106 || min != 100 {
		t.Fatalf("extremes reset despite failed trade: max=%v min=%v", max, min)
	}
	if len(h.sink.ofType(events.Traded)) != 0 {
		t.Fatalf("traded event emitted for failed trade")
	}
}

func TestSampleErrorPropagates(t *testing.T) {
	buy := mustBuild(t, condition.Buy, []condition.Record{
		{ID: "A", PercentUp: f(5), FromUp: condition.SinceLastTrade},
	})
	boom := errors.New("timeout")
	h := newHarness(t, buy, simpleSell(t), []float64{100, 101, 102}, Options{})
	h.prices.errs = map[int]error{2: boom}

	h.mustTick(t)
	_, err := h.tick()
	var sampleErr *SampleError
	if !errors.As(err, &sampleErr) || !errors.Is(err, boom) {
		t.Fatalf("expected SampleError wrapping timeout, got %v", err)
	}
	if h.engine.window.Len() != 1 {
		t.Fatalf("failed sample touched the window, got %d samples", h.engine.window.Len())
	}
	if got := testutil.ToFloat64(h.engine.metrics.SampleErrors); got != 1 {
		t.Fatalf("expected sample error metric 1, got %v", got)
	}
}

func TestTickBeforeStart(t *testing.T) {
	buy := mustBuild(t, condition.Buy, []condition.Record{
		{ID: "A", PercentUp: f(5), FromUp: condition.SinceLastTrade},
	})
	eng, err := New(buy, simpleSell(t), &fakePrices{prices: []float64{1}}, &fakeExchange{}, Options{})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if _, err := eng.Tick(context.Background(), epoch); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("expected ErrNotStarted, got %v", err)
	}
}

func TestNewRejectsSwappedGraphs(t *testing.T) {
	buy := mustBuild(t, condition.Buy, []condition.Record{
		{ID: "A", PercentUp: f(5), FromUp: condition.SinceLastTrade},
	})
	if _, err := New(simpleSell(t), buy, &fakePrices{}, &fakeExchange{}, Options{}); err == nil {
		t.Fatalf("expected error for swapped graphs")
	}
}

func TestRunToleratesSampleFailuresUntilLimit(t *testing.T) {
	buy := mustBuild(t, condition.Buy, []condition.Record{
		{ID: "A", PercentUp: f(5), FromUp: condition.SinceLastTrade},
	})
	boom := errors.New("timeout")
	clock := epoch
	now := func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	prices := &fakePrices{prices: []float64{100, 100, 100, 100, 40}, errs: map[int]error{1: boom, 2: boom}}
	eng, err := New(buy, simpleSell(t), prices, &fakeExchange{}, Options{SellFloor: 50, TickInterval: time.Millisecond, MaxSampleFailures: 2, Now: now})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if err := eng.Run(context.Background()); !errors.Is(err, ErrSellFloorBreached) {
		t.Fatalf("expected run to end on the floor breach, got %v", err)
	}

	prices = &fakePrices{prices: []float64{100, 100}, errs: map[int]error{1: boom}}
	eng, err = New(buy, simpleSell(t), prices, &fakeExchange{}, Options{TickInterval: time.Millisecond, Now: now})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	var sampleErr *SampleError
	if err := eng.Run(context.Background()); !errors.As(err, &sampleErr) {
		t.Fatalf("expected run to return the sample error, got %v", err)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	buy := mustBuild(t, condition.Buy, []condition.Record{
		{ID: "A", PercentUp: f(5), FromUp: condition.SinceLastTrade},
	})
	eng, err := New(buy, simpleSell(t), &fakePrices{prices: []float64{100}}, &fakeExchange{}, Options{TickInterval: time.Millisecond})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := eng.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestTradeRecordsHoldings(t *testing.T) {
	buy := mustBuild(t, condition.Buy, []condition.Record{
		{ID: "A", PercentUp: f(5), FromUp: condition.SinceLastTrade},
	})
	path := filepath.Join(t.TempDir(), "holdings.json")
	store := state.NewStore(path)
	exch := &fakeExchange{}
	eng, err := New(buy, simpleSell(t), &fakePrices{prices: []float64{100, 106}}, exch, Options{Holdings: store, Balances: exch})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := eng.Tick(context.Background(), epoch); err != nil {
		t.Fatalf("tick: %v", err)
	}

	loaded := state.NewStore(path)
	if err := loaded.Load(); err != nil {
		t.Fatalf("load holdings: %v", err)
	}
	snap := loaded.Snapshot()
	if snap.Trades != 1 || snap.LastTradeSide != "buy" || !snap.Coin.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("unexpected holdings %+v", snap)
	}
}
