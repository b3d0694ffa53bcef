package config

import (
	"testing"

	"github.com/stretchr/testify/require"

	"svcmarket/internal/ledger"
)

func setBase(t *testing.T) {
	t.Helper()
	t.Setenv("SVCMARKET_OWNER", "owner")
	t.Setenv("SVCMARKET_UNIT_COST", "150")
	t.Setenv("SVCMARKET_FEE_RATE", "3")
	t.Setenv("SVCMARKET_REFUND_RATE", "85")
	t.Setenv("SVCMARKET_SERVICE_CAP", "1000")
}

func TestNew_Defaults(t *testing.T) {
	setBase(t)

	cfg, err := New()
	require.NoError(t, err)
	require.Equal(t, StoreMemory, cfg.StoreProvider)
	require.Equal(t, BusNone, cfg.BusProvider)
	require.Equal(t, 1024, cfg.BusBufferSize)
	require.Equal(t, ":50051", cfg.GRPCAddr())
	require.False(t, cfg.NeedsNats())
	require.False(t, cfg.HasPostgres())
	require.Equal(t, ledger.Config{Owner: "owner", UnitCost: 150, FeeRate: 3, RefundRate: 85, ServiceCap: 1000}, cfg.LedgerConfig())

	_, err = cfg.ApiAddr()
	require.Error(t, err)
}

func TestNew_Providers(t *testing.T) {
	setBase(t)
	t.Setenv("SVCMARKET_STORE_PROVIDER", "postgres")
	t.Setenv("SVCMARKET_POSTGRES_USER", "market")
	t.Setenv("SVCMARKET_POSTGRES_PASSWORD", "secret")
	t.Setenv("SVCMARKET_POSTGRES_HOST", "db")
	t.Setenv("SVCMARKET_POSTGRES_DB", "svcmarket")
	t.Setenv("SVCMARKET_BUS_PROVIDER", "kafka")
	t.Setenv("SVCMARKET_KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("SVCMARKET_API_ENABLED", "true")
	t.Setenv("SVCMARKET_API_PORT", "9090")

	cfg, err := New()
	require.NoError(t, err)
	require.Equal(t, "postgres://market:secret@db:5432/svcmarket?sslmode=disable", cfg.DSN())
	require.True(t, cfg.HasPostgres())
	require.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	require.Equal(t, "market.events", cfg.KafkaTopic)

	addr, err := cfg.ApiAddr()
	require.NoError(t, err)
	require.Equal(t, ":9090", addr)
}

func TestNew_Invalid(t *testing.T) {
	var tests = []struct {
		name string
		env  map[string]string
	}{
		{name: "missing owner", env: map[string]string{"SVCMARKET_OWNER": ""}},
		{name: "non-numeric unit cost", env: map[string]string{"SVCMARKET_UNIT_COST": "cheap"}},
		{name: "zero unit cost", env: map[string]string{"SVCMARKET_UNIT_COST": "0"}},
		{name: "fee rate above 100", env: map[string]string{"SVCMARKET_FEE_RATE": "101"}},
		{name: "unknown store", env: map[string]string{"SVCMARKET_STORE_PROVIDER": "mongo"}},
		{name: "redis store without host", env: map[string]string{"SVCMARKET_STORE_PROVIDER": "redis"}},
		{name: "unknown bus", env: map[string]string{"SVCMARKET_BUS_PROVIDER": "amqp"}},
		{name: "nats bus without host", env: map[string]string{"SVCMARKET_BUS_PROVIDER": "nats"}},
		{name: "grpc bus without address", env: map[string]string{"SVCMARKET_BUS_PROVIDER": "grpc"}},
		{name: "kafka bus without brokers", env: map[string]string{"SVCMARKET_BUS_PROVIDER": "kafka"}},
		{name: "nats commands without host", env: map[string]string{"SVCMARKET_NATS_COMMANDS_ENABLED": "true"}},
		{name: "malformed genesis", env: map[string]string{"SVCMARKET_GENESIS_TOKENS": "alice=5"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setBase(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := New()
			require.Error(t, err)
		})
	}
}

func TestParseAllocations(t *testing.T) {
	got, err := parseAllocations(" alice:100, bob:5,alice:1 ")
	require.NoError(t, err)
	require.Equal(t, map[string]int64{"alice": 101, "bob": 5}, got)

	got, err = parseAllocations("")
	require.NoError(t, err)
	require.Empty(t, got)

	for _, raw := range []string{"alice", ":5", "bob:-1", "bob:0", "bob:x"} {
		_, err := parseAllocations(raw)
		require.Error(t, err, raw)
	}
}

func TestNewDatabase_IgnoresLedgerParameters(t *testing.T) {
	t.Setenv("SVCMARKET_OWNER", "")
	t.Setenv("SVCMARKET_UNIT_COST", "")
	t.Setenv("SVCMARKET_POSTGRES_USER", "market")
	t.Setenv("SVCMARKET_POSTGRES_PASSWORD", "secret")
	t.Setenv("SVCMARKET_POSTGRES_HOST", "db")
	t.Setenv("SVCMARKET_POSTGRES_DB", "svcmarket")

	cfg, err := NewDatabase()
	require.NoError(t, err)
	require.Equal(t, "postgres://market:secret@db:5432/svcmarket?sslmode=disable", cfg.DSN())

	t.Setenv("SVCMARKET_POSTGRES_HOST", "")
	_, err = NewDatabase()
	require.Error(t, err)
}
