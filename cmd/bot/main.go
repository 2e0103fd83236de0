package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"autotrader/internal/broker"
	"autotrader/internal/condition"
	"autotrader/internal/config"
	"autotrader/internal/engine"
	"autotrader/internal/events"
	"autotrader/internal/logger"
	"autotrader/internal/md"
	"autotrader/internal/metrics"
	"autotrader/internal/state"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logg, logCloser, err := logger.Init("autotrader", cfg.LogLevel, cfg.LogFile)
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer logCloser.Close()

	buyGraph, sellGraph, err := loadGraphs(cfg)
	if err != nil {
		log.Fatalf("rule error: %v", err)
	}

	runID := generateRunID()
	sink, closeSinks, err := buildSinks(cfg, runID, logg)
	if err != nil {
		log.Fatalf("event sink error: %v", err)
	}
	defer closeSinks()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signalChan
		slog.Info("shutdown signal received")
		cancel()
	}()

	m := metrics.New()
	if cfg.MetricsAddr != "" {
		m.Serve(ctx, cfg.MetricsAddr)
	}

	asset, err := broker.ParseAssetClass(cfg.AssetClass)
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	store := state.NewStore(cfg.HoldingsPath)
	market := broker.NewMarketData(broker.MarketDataOptions{
		APIKey:    cfg.APIKey,
		APISecret: cfg.APISecret,
		Symbol:    cfg.Symbol,
		Asset:     asset,
		Feed:      md.ParseFeed(cfg.Feed),
	})
	exchange := buildExchange(cfg, asset, market, store)

	var prices broker.PriceSource = exchange
	if cfg.PriceSource == config.PriceSourceStream {
		stream := md.NewStreamPrice()
		stopped := stream.Follow(ctx, md.StreamOptions{
			APIKey:     cfg.APIKey,
			APISecret:  cfg.APISecret,
			Symbol:     cfg.Symbol,
			AssetClass: cfg.AssetClass,
			Feed:       cfg.Feed,
		})
		if err := stream.WaitReady(ctx, stopped, cfg.StreamWait); err != nil {
			if ctx.Err() != nil {
				return
			}
			closeSinks()
			log.Fatalf("market data stream error: %v", err)
		}
		prices = stream
	}

	startMode := engine.SeekBuy
	if holdings, err := exchange.Holdings(ctx); err != nil {
		log.Fatalf("holdings error: %v", err)
	} else if holdings.Coin.IsPositive() {
		startMode = engine.SeekSell
	}

	bot, err := engine.New(buyGraph, sellGraph, prices, exchange, engine.Options{
		Symbol:            cfg.Symbol,
		SellFloor:         cfg.SellFloor,
		TickInterval:      cfg.TickInterval,
		StartMode:         startMode,
		MaxSampleFailures: cfg.MaxSampleFailures,
		Sink:              sink,
		Metrics:           m,
		Logger:            logg,
		Holdings:          store,
		Balances:          exchange,
	})
	if err != nil {
		log.Fatalf("engine error: %v", err)
	}

	slog.Info("starting bot", "run_id", runID, "mode", cfg.Mode, "symbol", cfg.Symbol, "asset_class", cfg.AssetClass, "feed", cfg.Feed, "price_source", cfg.PriceSource, "start_mode", startMode.String())
	err = bot.Run(ctx)
	switch {
	case errors.Is(err, engine.ErrSellFloorBreached):
		slog.Warn("sell floor reached, trading stopped")
	case errors.Is(err, context.Canceled):
	case err != nil:
		closeSinks()
		log.Fatalf("engine stopped: %v", err)
	}

	if err := store.Save(); err != nil {
		slog.Error("failed to save holdings", "error", err)
	}
	slog.Info("bot shutdown complete")
}

func loadGraphs(cfg config.Config) (*condition.Graph, *condition.Graph, error) {
	buyRecords, err := config.LoadRules(cfg.BuyRulesPath)
	if err != nil {
		return nil, nil, err
	}
	sellRecords, err := config.LoadRules(cfg.SellRulesPath)
	if err != nil {
		return nil, nil, err
	}
	buy, err := condition.Build(condition.Buy, buyRecords)
	if err != nil {
		return nil, nil, err
	}
	sell, err := condition.Build(condition.Sell, sellRecords)
	if err != nil {
		return nil, nil, err
	}
	return buy, sell, nil
}

func buildExchange(cfg config.Config, asset broker.AssetClass, market *broker.MarketData, store *state.Store) broker.Exchange {
	if cfg.Mode == config.ModeLive {
		return broker.New(broker.ClientOptions{
			APIKey:      cfg.APIKey,
			APISecret:   cfg.APISecret,
			BaseURL:     cfg.BaseURL,
			Symbol:      cfg.Symbol,
			Asset:       asset,
			TimeInForce: cfg.TimeInForce,
			FillTimeout: cfg.FillTimeout,
		}, market)
	}

	cash := decimal.NewFromFloat(cfg.StartingCash)
	coin := decimal.Zero
	if err := store.Load(); err == nil {
		if snap := store.Snapshot(); snap.Symbol == cfg.Symbol {
			cash, coin = snap.Cash, snap.Coin
			slog.Info("resuming sandbox holdings", "path", cfg.HoldingsPath, "cash", cash.String(), "coin", coin.String())
		}
	}
	return broker.NewPaper(cfg.Symbol, cash, coin, market)
}

func buildSinks(cfg config.Config, runID string, logg *slog.Logger) (events.Sink, func(), error) {
	sinks := events.Multi{events.LogSink{Logger: logg}}
	var closers []func() error

	if cfg.JournalPath != "" {
		journal, err := events.NewJournal(cfg.JournalPath)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, journal)
		closers = append(closers, journal.Close)
	}
	if cfg.SQLitePath != "" {
		db, err := events.NewSQLiteJournal(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, db)
		closers = append(closers, db.Close)
	}
	if cfg.RedisAddr != "" {
		publisher, err := events.NewRedisPublisher(events.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Channel:  cfg.RedisChannel,
		})
		if err != nil {
			slog.Warn("redis event publishing disabled", "error", err)
		} else {
			sinks = append(sinks, publisher)
			closers = append(closers, publisher.Close)
		}
	}

	closed := false
	closeAll := func() {
		if closed {
			return
		}
		closed = true
		for _, c := range closers {
			if err := c(); err != nil {
				slog.Error("failed to close event sink", "error", err)
			}
		}
	}
	return events.Tagged{RunID: runID, Sink: sinks}, closeAll, nil
}

func generateRunID() string {
	timestamp := time.Now().UTC().Format("20060102T150405")
	return timestamp + "-" + uuid.NewString()[:8]
}
