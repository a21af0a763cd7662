package main

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/redis/go-redis/v9"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/internal/repositories/postgres"
	"github.com/Ramsey-B/fern/pkg/cache"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/etl"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/graph"
	"github.com/Ramsey-B/fern/pkg/health"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/locks"
	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/merging"
	"github.com/Ramsey-B/fern/pkg/normalizers"
	"github.com/Ramsey-B/fern/pkg/similarity"
	"github.com/Ramsey-B/fern/pkg/startup"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// app owns the connections and services one command needs.
type app struct {
	cfg     *config.Config
	logger  ectologger.Logger
	startup *startup.Startup
	checker *health.Checker

	db       database.DB
	rdb      *redis.Client
	producer *kafka.Producer
	graph    *graph.Client
	tracing  func(context.Context) error

	store        *postgres.Store
	similarities *similarity.Service
	merger       *merging.Engine
	orchestrator *etl.Orchestrator
}

// newApp registers every configured dependency. migrate runs schema migrations once
// postgres is reachable.
func newApp(cfg *config.Config, logger ectologger.Logger, migrate bool) *app {
	a := &app{
		cfg:     cfg,
		logger:  logger,
		startup: startup.NewStartup(logger, cfg.StartupMaxAttempts),
		checker: health.NewChecker(version),
	}

	a.startup.Add(startup.Func{
		ID: "tracing",
		OnStart: func(ctx context.Context) error {
			tcfg := cfg.Tracing
			if tcfg.ServiceName == "" {
				tcfg.ServiceName = cfg.ServiceName
			}
			shutdown, err := tracing.Setup(ctx, tcfg, logger)
			a.tracing = shutdown
			return err
		},
		OnStop: func(ctx context.Context) error { return a.tracing(ctx) },
	})

	a.startup.Add(startup.Func{
		ID: "postgres",
		OnStart: func(ctx context.Context) error {
			db, err := database.Open(ctx, cfg.Database, logger)
			if err != nil {
				return err
			}
			a.db = db
			if migrate {
				return database.NewMigrationService(logger, &cfg.Migration).Migrate(db)
			}
			return nil
		},
		OnStop: func(context.Context) error { return a.db.Close() },
	})
	a.checker.Require("postgres", func(ctx context.Context) error { return a.db.PingContext(ctx) })

	if cfg.Redis.Host != "" {
		a.startup.Add(startup.Func{
			ID: "redis",
			OnStart: func(ctx context.Context) error {
				rdb, err := cache.Connect(ctx, cfg.Redis, logger)
				a.rdb = rdb
				return err
			},
			OnStop: func(context.Context) error { return a.rdb.Close() },
		})
		check := a.checker.Optional
		if cfg.Locks.Backend == config.LockBackendRedis {
			check = a.checker.Require
		}
		check("redis", func(ctx context.Context) error { return a.rdb.Ping(ctx).Err() })
	}

	if cfg.Kafka.Enabled() {
		a.startup.Add(startup.Func{
			ID: "kafka",
			OnStart: func(context.Context) error {
				a.producer = kafka.NewProducer(kafka.NewWriter(cfg.Kafka), cfg.Kafka, logger)
				return nil
			},
			OnStop: func(context.Context) error { return a.producer.Close() },
		})
	}

	if cfg.Neo4j.Enabled() {
		a.startup.Add(startup.Func{
			ID: "neo4j",
			OnStart: func(ctx context.Context) error {
				client, err := graph.NewClient(cfg.Neo4j, logger)
				if err != nil {
					return err
				}
				if err := client.VerifyConnectivity(ctx); err != nil {
					_ = client.Close(ctx)
					return fmt.Errorf("neo4j %s: %w", cfg.Neo4j.URI(), err)
				}
				a.graph = client
				return nil
			},
			OnStop: func(ctx context.Context) error { return a.graph.Close(ctx) },
		})
		a.checker.Optional("neo4j", func(ctx context.Context) error { return a.graph.VerifyConnectivity(ctx) })
	}

	return a
}

// start brings every dependency up and builds the services on top of them.
func (a *app) start(ctx context.Context) error {
	if err := a.startup.Start(ctx); err != nil {
		return err
	}

	a.store = postgres.New(a.db, a.logger)

	var locker locks.Locker = locks.NewLocalLocker()
	if a.cfg.Locks.Backend == config.LockBackendRedis {
		locker = locks.NewRedisLocker(a.rdb, a.cfg.Locks.Redis, a.logger)
	}

	var (
		simListeners   []similarity.Listener
		mergeListeners []merging.Listener
		etlListeners   []etl.Listener
		simCache       similarity.Cache
	)
	if a.rdb != nil {
		c := cache.NewSimilarGames(a.rdb, a.cfg.Redis.TTL, a.logger)
		simCache = c
		mergeListeners = append(mergeListeners, c)
		etlListeners = append(etlListeners, c)
	}
	if a.producer != nil {
		emitter := events.NewEmitter(a.producer, a.logger)
		simListeners = append(simListeners, emitter)
		mergeListeners = append(mergeListeners, emitter)
		etlListeners = append(etlListeners, emitter)
	}
	if a.graph != nil {
		projector := graph.NewProjector(a.graph, a.logger)
		simListeners = append(simListeners, projector)
		mergeListeners = append(mergeListeners, projector)
	}

	a.similarities = similarity.NewService(a.store, locker, simCache, a.logger, a.cfg.Similarity, simListeners...)
	a.merger = merging.NewEngine(a.logger, a.store, locker, matching.NewDetector(a.cfg.Matching), mergeListeners...)

	var recomputer etl.Recomputer
	if a.cfg.Etl.Pipeline.RecomputeSimilarities {
		recomputer = a.similarities
	}
	a.orchestrator = etl.NewOrchestrator(
		a.logger,
		a.store,
		locker,
		normalizers.NewTagNormalizer(normalizers.DefaultTagTables()),
		a.merger,
		recomputer,
		a.cfg.Etl.Pipeline,
		etlListeners...,
	)

	a.checker.SetReady(true)
	return nil
}

func (a *app) stop(ctx context.Context) {
	a.checker.SetReady(false)
	if err := a.startup.Stop(ctx); err != nil {
		a.logger.WithError(err).Error("Failed to stop dependencies cleanly")
	}
}
