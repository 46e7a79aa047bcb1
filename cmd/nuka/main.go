package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/nidhogg/nuka-mind/internal/api"
	"github.com/nidhogg/nuka-mind/internal/attention"
	"github.com/nidhogg/nuka-mind/internal/bus"
	"github.com/nidhogg/nuka-mind/internal/config"
	"github.com/nidhogg/nuka-mind/internal/consciousness"
	"github.com/nidhogg/nuka-mind/internal/emergence"
	"github.com/nidhogg/nuka-mind/internal/memory"
	"github.com/nidhogg/nuka-mind/internal/persona"
	pgstore "github.com/nidhogg/nuka-mind/internal/store"
	"github.com/nidhogg/nuka-mind/internal/world"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	_ = godotenv.Load()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/nuka.json"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.String("path", cfgPath), zap.Error(err))
	}
	if lvl, lvlErr := zapcore.ParseLevel(cfg.Server.LogLevel); cfg.Server.LogLevel != "" && lvlErr == nil {
		logger = logger.WithOptions(zap.IncreaseLevel(lvl))
	}
	logger.Info("Starting Nuka Mind...", zap.String("config", cfgPath))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// World clock; every mind reads world time from it.
	clock := world.NewWorldClock(cfg.World.TickInterval.Duration, cfg.World.Speed, time.Now().UTC(), logger)
	factory := mindFactory(cfg.Cognition, clock.Now, logger)

	population := world.NewPopulation(cfg.World.Workers, logger)

	// PostgreSQL: agent registry and cognition snapshots.
	var pg *pgstore.Store
	if cfg.Database.Postgres.DSN != "" {
		ps, pgErr := pgstore.New(ctx, cfg.Database.Postgres.DSN, logger)
		if pgErr != nil {
			logger.Warn("PostgreSQL unavailable, running without persistence", zap.Error(pgErr))
		} else {
			if mErr := ps.Migrate(ctx, cfg.Database.Postgres.Migrations); mErr != nil {
				logger.Fatal("migration failed", zap.Error(mErr))
			}
			pg = ps
			defer pg.Close()
		}
	}
	loadAgents(ctx, cfg, pg, population, factory, logger)

	// Neo4j: relationship graph.
	var relations *world.RelationGraph
	if cfg.Database.Neo4j.URI != "" {
		driver, dErr := neo4j.NewDriverWithContext(cfg.Database.Neo4j.URI,
			neo4j.BasicAuth(cfg.Database.Neo4j.User, cfg.Database.Neo4j.Password, ""))
		if dErr == nil {
			dErr = driver.VerifyConnectivity(ctx)
		}
		if dErr != nil {
			logger.Warn("Neo4j unavailable, running without relationships", zap.Error(dErr))
		} else {
			defer driver.Close(context.Background())
			relations = world.NewRelationGraph(driver, cfg.World.RelationDecay, logger)
			population.SetRelations(relations)
			if cfg.World.RelationDecay > 0 {
				clock.AddListener(relations)
			}
		}
	}

	// Redis: stimuli in, behaviours out.
	if cfg.Database.Redis.URL != "" {
		b, bErr := bus.New(ctx, cfg.Database.Redis.URL, logger)
		if bErr != nil {
			logger.Warn("Redis unavailable, running without message bus", zap.Error(bErr))
		} else {
			defer b.Close()
			population.SetSink(b)
			go func() {
				if err := b.Deliver(ctx, population, population.IDs()); err != nil {
					logger.Error("stimulus delivery stopped", zap.Error(err))
				}
			}()
		}
	}

	clock.AddListener(population)

	sweep := func(ctx context.Context) ([]consciousness.MaintenanceReport, error) {
		reports, err := population.Maintain(ctx)
		if err != nil || pg == nil {
			return reports, err
		}
		for _, id := range population.IDs() {
			ctrl, ok := population.Get(id)
			if !ok {
				continue
			}
			if sErr := pg.SaveSnapshot(ctx, ctrl.Snapshot()); sErr != nil {
				logger.Warn("snapshot not saved", zap.String("agent", id), zap.Error(sErr))
			}
		}
		return reports, nil
	}
	sweeper := world.NewSweeper(cfg.World.SweepInterval.Duration, sweep, logger)
	clock.AddListener(sweeper)

	clock.Start(ctx)
	logger.Info("World simulation started", zap.Int("agents", population.Len()))

	var saver api.AgentSaver
	if pg != nil {
		saver = pg
	}
	handler := api.NewHandler(population, clock, sweeper, factory, saver, logger)
	if relations != nil {
		handler.SetRelations(relations)
	}

	port := fmt.Sprintf("%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: handler.Router(),
	}

	go func() {
		logger.Info("Nuka Mind listening", zap.String("port", port))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()

	logger.Info("Shutting down Nuka Mind...")
	clock.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)

	// Final snapshot so a restart resumes where the world stopped.
	if _, err := sweep(shutdownCtx); err != nil {
		logger.Warn("final sweep failed", zap.Error(err))
	}
}

// mindFactory wires the four cognition components for one agent, all on
// world time. Components built with the agent id tag their own logs; the
// selector is the only one that needs the field added.
func mindFactory(cc config.CognitionConfig, now func() time.Time, logger *zap.Logger) api.AgentFactory {
	return func(agentID string, p persona.Personality) *consciousness.Controller {
		mem := memory.NewStore(agentID, cc.Memory(), logger)
		sel := attention.NewSelector(cc.Attention(), logger.With(zap.String("agent", agentID)))
		eng := emergence.NewEngine(agentID, nil, cc.Emergence(), logger)
		mem.SetClock(now)
		sel.SetClock(now)
		eng.SetClock(now)

		ctrl := consciousness.New(agentID, p, mem, sel, eng, cc.Controller(), logger)
		ctrl.SetClock(now)
		return ctrl
	}
}

// loadAgents registers persisted agents with their last snapshot, then any
// configured agent the database did not know.
func loadAgents(ctx context.Context, cfg *config.Config, pg *pgstore.Store, population *world.Population, factory api.AgentFactory, logger *zap.Logger) {
	if pg != nil {
		rows, err := pg.ListAgents(ctx)
		if err != nil {
			logger.Warn("failed to load agents from DB", zap.Error(err))
		}
		for _, row := range rows {
			ctrl := factory(row.ID, row.Personality)
			snap, sErr := pg.LoadSnapshot(ctx, row.ID)
			switch {
			case sErr == nil:
				ctrl.Restore(*snap)
			case !errors.Is(sErr, pgstore.ErrNotFound):
				logger.Warn("snapshot not loaded", zap.String("agent", row.ID), zap.Error(sErr))
			}
			if err := population.Add(ctrl); err != nil {
				logger.Warn("agent not added", zap.String("agent", row.ID), zap.Error(err))
			}
		}
		logger.Info("Loaded agents from DB", zap.Int("count", len(rows)))
	}

	for _, a := range cfg.Agents {
		if _, ok := population.Get(a.ID); ok {
			continue
		}
		if err := population.Add(factory(a.ID, a.Personality)); err != nil {
			logger.Warn("seed agent not added", zap.String("agent", a.ID), zap.Error(err))
			continue
		}
		if pg != nil {
			if err := pg.SaveAgent(ctx, pgstore.AgentRow{ID: a.ID, Name: a.Name, Personality: a.Personality}); err != nil {
				logger.Warn("seed agent not persisted", zap.String("agent", a.ID), zap.Error(err))
			}
		}
	}
}
