package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/guildworks/guildworks-backend/api/routes"
	"github.com/guildworks/guildworks-backend/internal/assignment"
	"github.com/guildworks/guildworks-backend/internal/attribution"
	"github.com/guildworks/guildworks-backend/internal/opportunities"
	"github.com/guildworks/guildworks-backend/internal/projects"
	"github.com/guildworks/guildworks-backend/internal/ranks"
	"github.com/guildworks/guildworks-backend/internal/registry"
	"github.com/guildworks/guildworks-backend/internal/treasury"
	"github.com/guildworks/guildworks-backend/pkg/config"
	"github.com/guildworks/guildworks-backend/pkg/db"
	"github.com/guildworks/guildworks-backend/pkg/logger"
	"github.com/guildworks/guildworks-backend/pkg/metrics"
	"github.com/guildworks/guildworks-backend/pkg/migrate"
	"github.com/guildworks/guildworks-backend/pkg/outbox"
	"github.com/guildworks/guildworks-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	stats := metrics.NewAllocationMetrics(promRegistry)

	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	registryRepo := registry.NewRepository(dbClient.DB())
	opportunityRepo := opportunities.NewRepository(dbClient.DB())
	assignmentRepo := assignment.NewRepository(dbClient.DB())
	projectRepo := projects.NewRepository(dbClient.DB())
	treasuryRepo := treasury.NewRepository(dbClient.DB())
	rankRepo := ranks.NewRepository(dbClient.DB())
	attributionRepo := attribution.NewRepository(dbClient.DB())

	registryService, err := registry.NewService(registryRepo, dbClient, cfg.Policy)
	if err != nil {
		logg.Error(context.Background(), "failed to create registry service", err)
		os.Exit(1)
	}

	projectService, err := projects.NewService(projectRepo, dbClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create project service", err)
		os.Exit(1)
	}

	opportunityService, err := opportunities.NewService(opportunityRepo, registryRepo, projectRepo, dbClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create opportunity service", err)
		os.Exit(1)
	}

	assignmentService, err := assignment.NewService(assignmentRepo, opportunityRepo, registryRepo, outboxService, stats, dbClient, cfg.Policy)
	if err != nil {
		logg.Error(context.Background(), "failed to create assignment service", err)
		os.Exit(1)
	}

	treasuryService, err := treasury.NewService(treasuryRepo, registryRepo, outboxService, stats, dbClient, cfg.Policy)
	if err != nil {
		logg.Error(context.Background(), "failed to create treasury service", err)
		os.Exit(1)
	}

	rankService, err := ranks.NewService(rankRepo, registryRepo, outboxService, stats, dbClient, cfg.Policy)
	if err != nil {
		logg.Error(context.Background(), "failed to create rank service", err)
		os.Exit(1)
	}

	attributionService, err := attribution.NewService(
		attributionRepo,
		assignmentRepo,
		opportunityRepo,
		projectRepo,
		registryRepo,
		treasuryService,
		rankService,
		outboxService,
		stats,
		dbClient,
		cfg.Policy,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create attribution service", err)
		os.Exit(1)
	}

	if err := treasuryService.EnsureSingleton(context.Background()); err != nil {
		logg.Error(context.Background(), "failed to seed treasury", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(cfg, logg, dbClient, redisClient, redisClient, promRegistry, routes.Services{
			Registry:      registryService,
			Opportunities: opportunityService,
			Assignment:    assignmentService,
			Projects:      projectService,
			Attribution:   attributionService,
			Treasury:      treasuryService,
			Ranks:         rankService,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
