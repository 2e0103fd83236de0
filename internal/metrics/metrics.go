package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors the trading loop updates.
type Metrics struct {
	Ticks         prometheus.Counter
	SampleErrors  prometheus.Counter
	Trades        *prometheus.CounterVec // labels: side
	TradeFailures *prometheus.CounterVec // labels: side
	Advances      *prometheus.CounterVec // labels: chain
	FloorBreaches prometheus.Counter
	Price         prometheus.Gauge
	Mode          prometheus.Gauge // 0=seek_buy, 1=seek_sell
	WindowSamples prometheus.Gauge
	TickDuration  prometheus.Histogram
	registry      *prometheus.Registry
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "autotrader_ticks_total",
			Help: "Price samples processed",
		}),
		SampleErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "autotrader_sample_errors_total",
			Help: "Ticks that failed to obtain a price",
		}),
		Trades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autotrader_trades_total",
			Help: "Trades executed",
		}, []string{"side"}),
		TradeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autotrader_trade_failures_total",
			Help: "Trade submissions that failed",
		}, []string{"side"}),
		Advances: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autotrader_chain_advances_total",
			Help: "Chain links advanced without a trade",
		}, []string{"chain"}),
		FloorBreaches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "autotrader_sell_floor_breaches_total",
			Help: "Ticks that fell below the sell floor",
		}),
		Price: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "autotrader_price",
			Help: "Latest sampled price",
		}),
		Mode: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "autotrader_mode",
			Help: "Current mode (0=seek_buy, 1=seek_sell)",
		}),
		WindowSamples: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "autotrader_window_samples",
			Help: "Samples held in the sliding price window",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "autotrader_tick_duration_seconds",
			Help:    "Time to process one tick including trade submission",
			Buckets: prometheus.DefBuckets,
		}),
		registry: prometheus.NewRegistry(),
	}
	m.registry.MustRegister(
		m.Ticks,
		m.SampleErrors,
		m.Trades,
		m.TradeFailures,
		m.Advances,
		m.FloorBreaches,
		m.Price,
		m.Mode,
		m.WindowSamples,
		m.TickDuration,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	go func() {
		slog.Info("metrics server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server stopped", "error", err)
		}
	}()
}
