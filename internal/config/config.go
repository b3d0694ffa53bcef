package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"svcmarket/internal/ledger"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
	StorePebble   = "pebble"

	BusNone  = "none"
	BusNats  = "nats"
	BusGRPC  = "grpc"
	BusKafka = "kafka"
)

type Config struct {
	Owner      string
	UnitCost   int64
	FeeRate    int64
	RefundRate int64
	ServiceCap int64
	ListingCap int64

	GenesisTokens   map[string]int64
	GenesisServices map[string]int64

	StoreProvider string
	PebbleDir     string

	DBUser    string
	DBPass    string
	DBHost    string
	DBPort    string
	DBName    string
	SSLMode   string
	RedisHost string
	RedisPort string

	BusProvider   string
	BusBufferSize int
	NatsHost      string
	NatsPort      string
	GRPCBusHost   string
	GRPCBusPort   string
	KafkaBrokers  []string
	KafkaTopic    string

	ApiEnabled          string
	ApiPort             string
	GRPCPort            string
	NatsCommandsEnabled string
}

// New loads and validates configuration from environment variables.
// The HTTP API and NATS command handler are optional; the store and bus
// default to memory and none.
func New() (*Config, error) {
	_ = godotenv.Load()

	var err error
	cfg := &Config{
		Owner:               os.Getenv("SVCMARKET_OWNER"),
		StoreProvider:       getEnv("SVCMARKET_STORE_PROVIDER", StoreMemory),
		PebbleDir:           getEnv("SVCMARKET_PEBBLE_DIR", "data/ledger"),
		RedisHost:           os.Getenv("SVCMARKET_REDIS_HOST"),
		RedisPort:           getEnv("SVCMARKET_REDIS_PORT", "6379"),
		BusProvider:         getEnv("SVCMARKET_BUS_PROVIDER", BusNone),
		BusBufferSize:       getEnvInt("SVCMARKET_BUS_BUFFER_SIZE", 1024),
		NatsHost:            os.Getenv("SVCMARKET_NATS_HOST"),
		NatsPort:            getEnv("SVCMARKET_NATS_PORT", "4222"),
		GRPCBusHost:         os.Getenv("SVCMARKET_GRPC_BUS_HOST"),
		GRPCBusPort:         os.Getenv("SVCMARKET_GRPC_BUS_PORT"),
		KafkaBrokers:        splitList(os.Getenv("SVCMARKET_KAFKA_BROKERS")),
		KafkaTopic:          getEnv("SVCMARKET_KAFKA_TOPIC", "market.events"),
		ApiEnabled:          os.Getenv("SVCMARKET_API_ENABLED"),
		ApiPort:             getEnv("SVCMARKET_API_PORT", "8080"),
		GRPCPort:            getEnv("SVCMARKET_GRPC_PORT", "50051"),
		NatsCommandsEnabled: os.Getenv("SVCMARKET_NATS_COMMANDS_ENABLED"),
	}

	cfg.loadDatabase()

	if cfg.UnitCost, err = getEnvInt64("SVCMARKET_UNIT_COST", 0); err != nil {
		return nil, err
	}
	if cfg.FeeRate, err = getEnvInt64("SVCMARKET_FEE_RATE", 0); err != nil {
		return nil, err
	}
	if cfg.RefundRate, err = getEnvInt64("SVCMARKET_REFUND_RATE", 0); err != nil {
		return nil, err
	}
	if cfg.ServiceCap, err = getEnvInt64("SVCMARKET_SERVICE_CAP", 0); err != nil {
		return nil, err
	}
	if cfg.ListingCap, err = getEnvInt64("SVCMARKET_LISTING_CAP", 0); err != nil {
		return nil, err
	}
	if cfg.GenesisTokens, err = parseAllocations(os.Getenv("SVCMARKET_GENESIS_TOKENS")); err != nil {
		return nil, fmt.Errorf("SVCMARKET_GENESIS_TOKENS: %w", err)
	}
	if cfg.GenesisServices, err = parseAllocations(os.Getenv("SVCMARKET_GENESIS_SERVICES")); err != nil {
		return nil, fmt.Errorf("SVCMARKET_GENESIS_SERVICES: %w", err)
	}

	// Required: ledger parameters
	if cfg.Owner == "" {
		return nil, fmt.Errorf("missing required env: SVCMARKET_OWNER")
	}
	if err := cfg.LedgerConfig().Validate(); err != nil {
		return nil, fmt.Errorf("invalid ledger parameters: %w", err)
	}

	switch cfg.StoreProvider {
	case StoreMemory:
	case StorePostgres:
		if cfg.DBUser == "" || cfg.DBHost == "" || cfg.DBName == "" {
			return nil, fmt.Errorf("missing required env for postgres store: SVCMARKET_POSTGRES_USER/HOST/DB")
		}
	case StoreRedis:
		if cfg.RedisHost == "" {
			return nil, fmt.Errorf("missing required env for redis store: SVCMARKET_REDIS_HOST")
		}
	case StorePebble:
		if cfg.PebbleDir == "" {
			return nil, fmt.Errorf("missing required env for pebble store: SVCMARKET_PEBBLE_DIR")
		}
	default:
		return nil, fmt.Errorf("invalid store provider %q, must be 'memory', 'postgres', 'redis' or 'pebble'", cfg.StoreProvider)
	}

	switch cfg.BusProvider {
	case BusNone:
	case BusNats:
		if cfg.NatsHost == "" {
			return nil, fmt.Errorf("missing required env for nats bus: SVCMARKET_NATS_HOST")
		}
	case BusGRPC:
		if cfg.GRPCBusHost == "" || cfg.GRPCBusPort == "" {
			return nil, fmt.Errorf("missing required env for grpc bus: SVCMARKET_GRPC_BUS_HOST/PORT")
		}
	case BusKafka:
		if len(cfg.KafkaBrokers) == 0 {
			return nil, fmt.Errorf("missing required env for kafka bus: SVCMARKET_KAFKA_BROKERS")
		}
	default:
		return nil, fmt.Errorf("invalid bus provider %q, must be 'none', 'nats', 'grpc' or 'kafka'", cfg.BusProvider)
	}

	if cfg.NatsCommandsEnabled == "true" && cfg.NatsHost == "" {
		return nil, fmt.Errorf("SVCMARKET_NATS_HOST is required when SVCMARKET_NATS_COMMANDS_ENABLED=true")
	}

	return cfg, nil
}

// NewDatabase loads only the Postgres settings, for tools such as the
// migration CLI that never open the ledger.
func NewDatabase() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	cfg.loadDatabase()
	if !cfg.HasPostgres() {
		return nil, fmt.Errorf("missing required env for database: SVCMARKET_POSTGRES_USER/HOST/DB")
	}
	return cfg, nil
}

func (c *Config) loadDatabase() {
	c.DBUser = os.Getenv("SVCMARKET_POSTGRES_USER")
	c.DBPass = os.Getenv("SVCMARKET_POSTGRES_PASSWORD")
	c.DBHost = os.Getenv("SVCMARKET_POSTGRES_HOST")
	c.DBPort = getEnv("SVCMARKET_POSTGRES_PORT", "5432")
	c.DBName = os.Getenv("SVCMARKET_POSTGRES_DB")
	c.SSLMode = getEnv("SVCMARKET_POSTGRES_SSLMODE", "disable")
}

// LedgerConfig returns the genesis ledger parameters.
func (c *Config) LedgerConfig() ledger.Config {
	return ledger.Config{
		Owner:      ledger.AccountID(c.Owner),
		UnitCost:   c.UnitCost,
		FeeRate:    c.FeeRate,
		RefundRate: c.RefundRate,
		ServiceCap: c.ServiceCap,
		ListingCap: c.ListingCap,
	}
}

func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPass, c.DBHost, c.DBPort, c.DBName, c.SSLMode)
}

// HasPostgres reports whether Postgres connection settings are present,
// whichever store is selected. The event log lives there.
func (c *Config) HasPostgres() bool {
	return c.DBUser != "" && c.DBHost != "" && c.DBName != ""
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

func (c *Config) NatsAddr() string {
	return fmt.Sprintf("nats://%s:%s", c.NatsHost, c.NatsPort)
}

// NeedsNats reports whether any component talks to NATS.
func (c *Config) NeedsNats() bool {
	return c.BusProvider == BusNats || c.NatsCommandsEnabled == "true"
}

func (c *Config) GRPCBusAddr() string {
	return fmt.Sprintf("%s:%s", c.GRPCBusHost, c.GRPCBusPort)
}

func (c *Config) GRPCAddr() string {
	return ":" + c.GRPCPort
}

// ApiAddr returns the HTTP listen address if the API is enabled.
// Returns an error if SVCMARKET_API_ENABLED != "true"; callers should skip starting the HTTP server.
func (c *Config) ApiAddr() (string, error) {
	if c.ApiEnabled == "true" {
		if c.ApiPort == "" {
			return "", fmt.Errorf("SVCMARKET_API_PORT is required when SVCMARKET_API_ENABLED=true")
		}
		return ":" + c.ApiPort, nil
	}
	return "", fmt.Errorf("HTTP API is disabled (SVCMARKET_API_ENABLED != true)")
}

// parseAllocations reads "alice:100,bob:5" into a map.
func parseAllocations(raw string) (map[string]int64, error) {
	out := make(map[string]int64)
	for _, item := range splitList(raw) {
		account, amount, ok := strings.Cut(item, ":")
		account = strings.TrimSpace(account)
		if !ok || account == "" {
			return nil, fmt.Errorf("malformed allocation %q, want account:amount", item)
		}
		v, err := strconv.ParseInt(strings.TrimSpace(amount), 10, 64)
		if err != nil || v <= 0 {
			return nil, fmt.Errorf("allocation %q must be a positive integer", item)
		}
		out[account] += v
	}
	return out, nil
}

func splitList(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var intVal int
	if _, err := fmt.Sscanf(val, "%d", &intVal); err != nil {
		return defaultVal
	}
	return intVal
}

func getEnvInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	v, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return v, nil
}
