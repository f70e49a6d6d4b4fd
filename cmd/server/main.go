package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/sync/errgroup"

	"bayanat/internal/access"
	"bayanat/internal/dynamicfield"
	"bayanat/internal/entity/models"
	entityservice "bayanat/internal/entity/service"
	entitystore "bayanat/internal/entity/store"
	"bayanat/internal/graphcache"
	"bayanat/internal/importer"
	jwttoken "bayanat/internal/jwt_token"
	"bayanat/internal/outbox"
	"bayanat/internal/platform/config"
	"bayanat/internal/platform/httpserver"
	"bayanat/internal/platform/logger"
	"bayanat/internal/platform/metrics"
	"bayanat/internal/platform/postgres"
	"bayanat/internal/platform/redis"
	"bayanat/internal/ratelimit"
	"bayanat/internal/relation"
	"bayanat/internal/revision"
	"bayanat/internal/search"
	"bayanat/internal/taxonomy"
	httptransport "bayanat/internal/transport/http"
	"bayanat/internal/user"
	"bayanat/pkg/platform/circuit"
)

const (
	shutdownTimeout = 15 * time.Second
	graphCacheTTL   = 24 * time.Hour
	graphCacheSize  = 4096
)

// main wires the stores and services behind the HTTP API and runs the outbox relay
// next to the server until a signal arrives.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.JSON)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer postgres.Close(db, log)

	if cfg.Database.MigrateOnStart {
		if err := postgres.ApplyMigrations(db.DB, log); err != nil {
			return err
		}
	}

	rdb, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
	}

	m := metrics.New()
	tx := postgres.NewTxRunner(db)
	mode := access.Permissive
	if cfg.Access.Restrictive {
		mode = access.Restrictive
	}
	policy := access.NewPolicy(mode)

	outboxStore := outbox.NewPostgresStore(db)
	historyStore := revision.NewPostgresStore(db)
	recorder := revision.NewRecorder(historyStore,
		revision.WithLogger(log), revision.WithMetrics(m), revision.WithPublisher(outboxStore))

	relations := relation.NewService(relation.NewPostgresStore(db), relation.WithLogger(log), relation.WithMetrics(m))
	fields := dynamicfield.NewService(dynamicfield.NewPostgresStore(db), tx,
		dynamicfield.WithLogger(log), dynamicfield.WithMetrics(m))
	entities := entityservice.New(entitystore.New(db), tx, relations, recorder, fields,
		entityservice.WithLogger(log), entityservice.WithMetrics(m), entityservice.WithPolicy(policy),
		entityservice.WithHistory(revision.NewReader(historyStore)))

	tax := taxonomy.NewService(taxonomy.NewPostgresStore(db), tx,
		taxonomy.WithLogger(log), taxonomy.WithPostalCodes(cfg.Locations.IncludePostalCode), taxonomy.WithHistory(recorder))
	recorder.Register(models.ClassLocation, tax.LocationSnapshot)

	imports := importer.New(importer.NewPostgresStore(db), tx, entities, tax, fields,
		importer.WithLogger(log), importer.WithMetrics(m))

	graphs, err := newGraphCache(rdb, log, m)
	if err != nil {
		return err
	}

	users := user.NewService(user.NewPostgresStore(db),
		user.WithLogger(log), user.WithTx(tx), user.WithHistory(recorder))
	recorder.Register(models.ClassUser, users.UserSnapshot)
	tokens := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.Issuer, cfg.Auth.Audience)

	limiter := newLimiter(cfg.RateLimit, rdb, log, m)

	health := map[string]httptransport.HealthCheck{"postgres": db.PingContext}
	if rdb != nil {
		health["redis"] = rdb.Health
	}

	router := httptransport.NewRouter(httptransport.NewHandler(httptransport.Deps{
		Entities:     entities,
		Search:       search.New(db, search.WithLogger(log), search.WithPolicy(policy)),
		Taxonomy:     tax,
		RelationInfo: relations,
		Fields:       fields,
		Importer:     imports,
		Graphs:       graphs,
		GraphBuilder: graphcache.NewBuilder(relations, entities),
		JWT:          jwttoken.NewJWTServiceAdapter(tokens),
		Users:        users,
		Callers:      users,
		Limiter:      limiter,
		Health:       health,
		Metrics:      m,
		Logger:       log,
	}))
	srv := httpserver.New(cfg.Addr, router)

	stopRelay, err := startRelay(ctx, cfg.Kafka, outboxStore, tx, log, m)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting bayanat", "addr", cfg.Addr, "restrictive", cfg.Access.Restrictive)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return stopRelay()
	})
	return g.Wait()
}

// newGraphCache shares graph entries through Redis when it is configured, falling
// back to the in-process cache while Redis is failing.
func newGraphCache(rdb *redis.Client, log *slog.Logger, m *metrics.Metrics) (*graphcache.Service, error) {
	mem, err := graphcache.NewMemoryStore(graphCacheSize)
	if err != nil {
		return nil, err
	}
	var store graphcache.Store = mem
	if rdb != nil {
		store = graphcache.NewFallbackStore(
			graphcache.NewRedisStore(rdb.Client, graphcache.WithTTL(graphCacheTTL)),
			mem, circuit.New("graph-cache-redis"), log)
	}
	return graphcache.New(store, graphcache.WithLogger(log), graphcache.WithMetrics(m)), nil
}

// newLimiter counts requests in Redis when it is configured so every process shares
// one budget per user.
func newLimiter(cfg config.RateLimitConfig, rdb *redis.Client, log *slog.Logger, m *metrics.Metrics) *ratelimit.Limiter {
	var store ratelimit.Store = ratelimit.NewMemoryStore()
	if rdb != nil {
		store = ratelimit.NewRedisStore(rdb.Client)
	}
	return ratelimit.New(store, map[ratelimit.Class]ratelimit.Limit{
		ratelimit.ClassWrite:  {Requests: cfg.Writes, Window: cfg.Window},
		ratelimit.ClassImport: {Requests: cfg.Imports, Window: cfg.Window},
	}, ratelimit.WithLogger(log), ratelimit.WithMetrics(m), ratelimit.WithDisabled(!cfg.Enabled))
}

// startRelay publishes the outbox to Kafka and returns its stop function. Without
// brokers the outbox only accumulates.
func startRelay(ctx context.Context, cfg config.KafkaConfig, store *outbox.PostgresStore, tx *postgres.TxRunner, log *slog.Logger, m *metrics.Metrics) (func() error, error) {
	if len(cfg.Brokers) == 0 {
		log.Warn("no kafka brokers configured, outbox relay disabled")
		return func() error { return nil }, nil
	}
	client, err := kgo.NewClient(kgo.SeedBrokers(cfg.Brokers...), kgo.DefaultProduceTopic(cfg.Topic))
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	if err := outbox.EnsureTopic(ctx, kadm.NewClient(client), cfg.Topic, 1, 1); err != nil {
		log.Warn("could not ensure outbox topic", "topic", cfg.Topic, "error", err)
	}

	relay := outbox.NewRelay(store, tx, client, cfg.Topic,
		outbox.WithLogger(log), outbox.WithMetrics(m),
		outbox.WithBatch(cfg.RelayBatch), outbox.WithInterval(cfg.RelayInterval))
	if err := relay.Start(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return func() error {
		defer client.Close()
		return relay.Stop()
	}, nil
}
