package params

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StorePebble = "pebble"
	StoreMemory = "memory"
)

type API struct {
	Addr         string
	CORSOrigins  []string
	PingInterval time.Duration
	WriteTimeout time.Duration
}

type Storage struct {
	Backend     string // pebble or memory
	Path        string
	JournalFile string // empty disables the journal
	Timeout     time.Duration
}

type Orders struct {
	HistoryLimit  int
	SweepInterval time.Duration
	MatchRetries  uint64
}

type Log struct {
	File  string
	Level string
}

type Kafka struct {
	Brokers    []string // empty disables trade publication
	TradeTopic string
}

// Simulation drives the demo price feed and order generator. It only runs
// when Enabled is set.
type Simulation struct {
	Enabled       bool
	Asset         string
	InitialPrice  float64
	PriceInterval time.Duration
	OrderInterval time.Duration
}

type Config struct {
	API        API
	Storage    Storage
	Orders     Orders
	Log        Log
	Kafka      Kafka
	Simulation Simulation
}

func Default() Config {
	return Config{
		API: API{
			Addr:         ":8080",
			CORSOrigins:  []string{"http://localhost:3000"},
			PingInterval: 30 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Storage: Storage{
			Backend:     StorePebble,
			Path:        "data/orders.db",
			JournalFile: "data/orders.journal",
			Timeout:     3 * time.Second,
		},
		Orders: Orders{
			HistoryLimit:  50,
			SweepInterval: 5 * time.Second,
			MatchRetries:  3,
		},
		Log: Log{
			File:  "data/orderdesk.log",
			Level: "info",
		},
		Kafka: Kafka{
			TradeTopic: "orderdesk.trades",
		},
		Simulation: Simulation{
			Asset:         "BTC-USDT",
			InitialPrice:  45000,
			PriceInterval: time.Second,
			OrderInterval: 5 * time.Second,
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	// .env is optional
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	cfg.API.Addr = getEnv("API_ADDR", cfg.API.Addr)
	cfg.API.CORSOrigins = getEnvList("CORS_ORIGINS", cfg.API.CORSOrigins)
	cfg.API.PingInterval = getEnvMillis("PING_INTERVAL_MS", cfg.API.PingInterval)
	cfg.API.WriteTimeout = getEnvMillis("WRITE_TIMEOUT_MS", cfg.API.WriteTimeout)

	cfg.Storage.Backend = strings.ToLower(getEnv("STORE", cfg.Storage.Backend))
	cfg.Storage.Path = getEnv("DB_PATH", cfg.Storage.Path)
	if v, ok := os.LookupEnv("JOURNAL_FILE"); ok {
		cfg.Storage.JournalFile = v
	}
	cfg.Storage.Timeout = getEnvMillis("STORE_TIMEOUT_MS", cfg.Storage.Timeout)

	cfg.Orders.HistoryLimit = getEnvInt("HISTORY_LIMIT", cfg.Orders.HistoryLimit)
	cfg.Orders.SweepInterval = getEnvMillis("SWEEP_INTERVAL_MS", cfg.Orders.SweepInterval)
	if v := os.Getenv("MATCH_RETRIES"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Orders.MatchRetries = n
		}
	}

	cfg.Log.File = getEnv("LOG_FILE", cfg.Log.File)
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)

	cfg.Kafka.Brokers = getEnvList("KAFKA_BROKERS", cfg.Kafka.Brokers)
	cfg.Kafka.TradeTopic = getEnv("KAFKA_TRADE_TOPIC", cfg.Kafka.TradeTopic)

	if enabled := os.Getenv("ENABLE_SIMULATION"); enabled != "" {
		cfg.Simulation.Enabled = enabled == "true"
	}
	cfg.Simulation.Asset = getEnv("SIM_ASSET", cfg.Simulation.Asset)
	if v := os.Getenv("SIM_INITIAL_PRICE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.Simulation.InitialPrice = f
		}
	}
	cfg.Simulation.PriceInterval = getEnvMillis("SIM_PRICE_INTERVAL_MS", cfg.Simulation.PriceInterval)
	cfg.Simulation.OrderInterval = getEnvMillis("SIM_ORDER_INTERVAL_MS", cfg.Simulation.OrderInterval)

	return cfg
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return defaultValue
}

// getEnvMillis reads a positive millisecond count.
func getEnvMillis(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultValue
}

// getEnvList splits a comma-separated value, dropping empty items.
func getEnvList(key string, defaultValue []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
