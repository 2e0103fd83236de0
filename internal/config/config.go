package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Mode string

const (
	ModeSandbox Mode = "sandbox"
	ModeLive    Mode = "live"
)

const (
	AssetCrypto = "crypto"
	AssetStocks = "stocks"
)

const (
	PriceSourceREST   = "rest"
	PriceSourceStream = "stream"
)

type Config struct {
	Mode              Mode
	Symbol            string
	AssetClass        string
	Feed              string
	PriceSource       string
	StreamWait        time.Duration
	TickInterval      time.Duration
	MaxSampleFailures int
	BuyRulesPath      string
	SellRulesPath     string
	SellFloor         float64
	StartingCash      float64
	TimeInForce       string
	FillTimeout       time.Duration
	HoldingsPath      string
	JournalPath       string
	SQLitePath        string
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	RedisChannel      string
	MetricsAddr       string
	LogLevel          string
	LogFile           string
	BaseURL           string
	APIKey            string
	APISecret         string
}

func Load() (Config, error) {
	var cfg Config
	var mode string

	loadDotEnvIfPresent(".env")

	flag.StringVar(&mode, "mode", envOr("AUTOTRADER_MODE", string(ModeSandbox)), "run mode: sandbox or live")
	flag.StringVar(&cfg.Symbol, "symbol", envOr("AUTOTRADER_SYMBOL", "BTC/USD"), "trading symbol")
	flag.StringVar(&cfg.AssetClass, "asset-class", envOr("AUTOTRADER_ASSET_CLASS", AssetCrypto), "asset class of symbol: crypto or stocks")
	flag.StringVar(&cfg.Feed, "feed", "iex", "stock market data feed: iex or sip")
	flag.StringVar(&cfg.PriceSource, "price-source", PriceSourceREST, "price sampling: rest or stream")
	flag.DurationVar(&cfg.StreamWait, "stream-wait", 30*time.Second, "how long to wait for the first streamed trade")
	flag.DurationVar(&cfg.TickInterval, "tick-interval", 200*time.Millisecond, "delay between price samples")
	flag.IntVar(&cfg.MaxSampleFailures, "max-sample-failures", 5, "consecutive failed price samples tolerated before exiting")
	flag.StringVar(&cfg.BuyRulesPath, "buy-rules", "TradeConditions/buy-conditions.conf", "buy rule file (.conf, .ini, .yaml)")
	flag.StringVar(&cfg.SellRulesPath, "sell-rules", "TradeConditions/sell-conditions.conf", "sell rule file (.conf, .ini, .yaml)")
	flag.Float64Var(&cfg.SellFloor, "sell-floor", envFloat("AUTOTRADER_SELL_FLOOR", 0), "halt below this price, 0 disables")
	flag.Float64Var(&cfg.StartingCash, "starting-cash", 1000, "sandbox starting cash")
	flag.StringVar(&cfg.TimeInForce, "time-in-force", "", "time in force: day or gtc (default gtc for crypto, day for stocks)")
	flag.DurationVar(&cfg.FillTimeout, "fill-timeout", 30*time.Second, "how long to wait for a live order to fill")
	flag.StringVar(&cfg.HoldingsPath, "holdings-path", "account-holdings.json", "path to holdings file")
	flag.StringVar(&cfg.JournalPath, "journal-path", "events.ndjson", "path to event journal")
	flag.StringVar(&cfg.SQLitePath, "sqlite-path", "", "optional sqlite event journal")
	flag.StringVar(&cfg.RedisAddr, "redis-addr", os.Getenv("REDIS_ADDR"), "optional redis address for event publishing")
	flag.IntVar(&cfg.RedisDB, "redis-db", 0, "redis database")
	flag.StringVar(&cfg.RedisChannel, "redis-channel", "autotrader:events", "redis pub/sub channel")
	flag.StringVar(&cfg.MetricsAddr, "metrics-addr", "", "optional address for /metrics, e.g. :9090")
	flag.StringVar(&cfg.LogLevel, "log-level", envOr("LOG_LEVEL", "info"), "log level: debug, info, warn, error")
	flag.StringVar(&cfg.LogFile, "log-file", "", "optional rotating log file")
	flag.StringVar(&cfg.BaseURL, "base-url", "https://paper-api.alpaca.markets", "trading API base URL")
	flag.Parse()

	cfg.Mode = Mode(mode)
	cfg.APIKey = os.Getenv("APCA_API_KEY_ID")
	cfg.APISecret = os.Getenv("APCA_API_SECRET_KEY")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	if cfg.TimeInForce == "" {
		cfg.TimeInForce = defaultTimeInForce(cfg.AssetClass)
	}

	if err := validate(cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func validate(cfg Config) error {
	if cfg.Mode != ModeSandbox && cfg.Mode != ModeLive {
		return fmt.Errorf("invalid mode: %s", cfg.Mode)
	}
	if cfg.Symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	if cfg.APIKey == "" || cfg.APISecret == "" {
		return fmt.Errorf("APCA_API_KEY_ID and APCA_API_SECRET_KEY are required")
	}
	if cfg.PriceSource != PriceSourceREST && cfg.PriceSource != PriceSourceStream {
		return fmt.Errorf("invalid price-source: %s", cfg.PriceSource)
	}
	if cfg.PriceSource == PriceSourceStream && cfg.StreamWait <= 0 {
		return fmt.Errorf("stream-wait must be > 0")
	}
	if cfg.TickInterval <= 0 {
		return fmt.Errorf("tick-interval must be > 0")
	}
	if cfg.MaxSampleFailures < 0 {
		return fmt.Errorf("max-sample-failures must be >= 0")
	}
	if cfg.BuyRulesPath == "" || cfg.SellRulesPath == "" {
		return fmt.Errorf("buy-rules and sell-rules are required")
	}
	if cfg.SellFloor < 0 {
		return fmt.Errorf("sell-floor must be >= 0")
	}
	if cfg.Mode == ModeSandbox && cfg.StartingCash <= 0 {
		return fmt.Errorf("starting-cash must be > 0 in sandbox mode")
	}
	if cfg.AssetClass != AssetCrypto && cfg.AssetClass != AssetStocks {
		return fmt.Errorf("invalid asset-class: %s", cfg.AssetClass)
	}
	if cfg.TimeInForce != "day" && cfg.TimeInForce != "gtc" {
		return fmt.Errorf("unsupported time in force: %s", cfg.TimeInForce)
	}
	// Alpaca rejects notional stock orders that are not day orders.
	if cfg.AssetClass == AssetStocks && cfg.TimeInForce != "day" {
		return fmt.Errorf("time in force %s not allowed for stocks, use day", cfg.TimeInForce)
	}
	if cfg.FillTimeout <= 0 {
		return fmt.Errorf("fill-timeout must be > 0")
	}
	if cfg.RedisAddr != "" && cfg.RedisChannel == "" {
		return fmt.Errorf("redis-channel is required with redis-addr")
	}
	return nil
}

func defaultTimeInForce(assetClass string) string {
	if assetClass == AssetStocks {
		return "day"
	}
	return "gtc"
}

// loadDotEnv reads KEY=VALUE pairs from path. Variables already present in
// the environment win.
func loadDotEnv(path string) error {
	return godotenv.Load(path)
}

func loadDotEnvIfPresent(path string) {
	if _, err := os.Stat(path); err != nil {
		return
	}
	if err := loadDotEnv(path); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load %s: %v\n", path, err)
	}
}

func envOr(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}
