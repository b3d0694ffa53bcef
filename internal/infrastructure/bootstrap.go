package infrastructure

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"

	"svcmarket/internal/config"
	"svcmarket/internal/ledger"
	"svcmarket/internal/metrics"
	"svcmarket/internal/repository"
	"svcmarket/internal/service"
	transportGRPC "svcmarket/internal/transport/grpc"
	transportHTTP "svcmarket/internal/transport/http"
	transportKafka "svcmarket/internal/transport/kafka"
	transportNATS "svcmarket/internal/transport/nats"
	"svcmarket/internal/worker"
)

// Bootstrap initialises all dependencies from config and wires up the application.
// Returns the App, a cleanup function, or an error.
func Bootstrap(ctx context.Context) (*App, func(), error) {
	cfg, err := config.New()
	if err != nil {
		return nil, nil, err
	}

	var cleanupFns []func()
	fail := func(err error) (*App, func(), error) {
		runCleanup(cleanupFns)()
		return nil, nil, err
	}

	// ── Connections ────────────────────────────────────────────────────────────
	var db *pgxpool.Pool
	if cfg.HasPostgres() {
		if db, err = connectPostgres(cfg.DSN()); err != nil {
			return fail(fmt.Errorf("postgres: %w", err))
		}
		cleanupFns = append(cleanupFns, db.Close)
	}

	var nc *nats.Conn
	if cfg.NeedsNats() {
		if nc, err = connectNats(cfg.NatsAddr()); err != nil {
			return fail(fmt.Errorf("nats: %w", err))
		}
		cleanupFns = append(cleanupFns, nc.Close)
	}

	// ── Ledger ─────────────────────────────────────────────────────────────────
	var store ledger.Store
	switch cfg.StoreProvider {
	case config.StorePostgres:
		store = repository.NewPostgresStore(db)
	case config.StoreRedis:
		rdb, err := connectRedis(cfg.RedisAddr())
		if err != nil {
			return fail(fmt.Errorf("redis: %w", err))
		}
		cleanupFns = append(cleanupFns, func() { _ = rdb.Close() })
		store = repository.NewRedisStore(rdb)
	case config.StorePebble:
		ps, err := repository.OpenPebbleStore(cfg.PebbleDir)
		if err != nil {
			return fail(fmt.Errorf("pebble: %w", err))
		}
		cleanupFns = append(cleanupFns, func() { _ = ps.Close() })
		store = ps
	}

	var l *ledger.Ledger
	if store != nil {
		l, err = ledger.Open(ctx, cfg.LedgerConfig(), store)
	} else {
		l, err = ledger.New(cfg.LedgerConfig())
	}
	if err != nil {
		return fail(err)
	}
	if err := applyGenesis(ctx, l, cfg); err != nil {
		return fail(err)
	}
	slog.Info("ledger ready", "store", cfg.StoreProvider, "seq", l.Seq(), "owner", l.Owner())

	// ── Bus ────────────────────────────────────────────────────────────────────
	var bus repository.MessageBus
	switch cfg.BusProvider {
	case config.BusNats:
		bus = transportNATS.NewBus(nc)
	case config.BusGRPC:
		grpcBus, cleanup, err := transportGRPC.NewGrpcBusFromAddr(cfg.GRPCBusAddr(), cfg.BusBufferSize)
		if err != nil {
			return fail(fmt.Errorf("grpc bus: %w", err))
		}
		cleanupFns = append(cleanupFns, cleanup)
		bus = grpcBus
	case config.BusKafka:
		kafkaBus := transportKafka.NewBus(cfg.KafkaBrokers, cfg.KafkaTopic)
		cleanupFns = append(cleanupFns, func() { _ = kafkaBus.Close() })
		bus = kafkaBus
	}

	m := metrics.New()
	svc := service.NewMarketplace(l, bus, m)

	// ── Servers ────────────────────────────────────────────────────────────────
	var recorder service.EventRecorder = worker.LogRecorder{}
	if db != nil {
		recorder = repository.NewEventLog(db)
	}

	var servers []Server

	// The gRPC server also receives events published by a remote GrpcBus.
	servers = append(servers, transportGRPC.NewServer(cfg.GRPCAddr(), svc, recorder))

	if addr, apiErr := cfg.ApiAddr(); apiErr == nil {
		servers = append(servers, transportHTTP.NewServer(addr, svc, m.Registry))
	}
	if cfg.NatsCommandsEnabled == "true" {
		servers = append(servers, transportNATS.NewHandler(svc, nc))
	}
	if cfg.BusProvider == config.BusNats {
		servers = append(servers, worker.NewEventWorker(recorder, nc, m))
	}

	return NewApp(servers), runCleanup(cleanupFns), nil
}

// applyGenesis issues the configured allocations to a ledger that has never
// committed anything.
func applyGenesis(ctx context.Context, l *ledger.Ledger, cfg *config.Config) error {
	if l.Seq() != 0 {
		return nil
	}
	owner := l.Owner()
	for _, id := range sortedKeys(cfg.GenesisTokens) {
		if _, err := l.IssueTokens(ctx, owner, ledger.AccountID(id), cfg.GenesisTokens[id]); err != nil {
			return fmt.Errorf("genesis tokens for %s: %w", id, err)
		}
	}
	for _, id := range sortedKeys(cfg.GenesisServices) {
		if _, err := l.IssueServices(ctx, owner, ledger.AccountID(id), cfg.GenesisServices[id]); err != nil {
			return fmt.Errorf("genesis services for %s: %w", id, err)
		}
	}
	return nil
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// runCleanup returns a single function that calls all cleanup functions in reverse order.
func runCleanup(fns []func()) func() {
	return func() {
		for i := len(fns) - 1; i >= 0; i-- {
			fns[i]()
		}
	}
}
