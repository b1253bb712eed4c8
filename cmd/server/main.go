// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in the internal packages.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"konkurs/internal/aggregate/cache"
	"konkurs/internal/aggregate/handler"
	"konkurs/internal/aggregate/metrics"
	"konkurs/internal/aggregate/service"
	"konkurs/internal/archive"
	"konkurs/internal/ingest"
	"konkurs/internal/platform/config"
	"konkurs/internal/platform/httpserver"
	"konkurs/internal/platform/logger"
	platformredis "konkurs/internal/platform/redis"
	httptransport "konkurs/internal/transport/http"
	"konkurs/internal/upstream/feed"
	"konkurs/internal/upstream/lawyer"
	"konkurs/internal/upstream/registry"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	var checkers []httptransport.HealthChecker

	// Cache: Redis when configured, in-memory otherwise.
	var profileCache cache.ProfileCache
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("redis setup failed", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		profileCache = cache.NewRedisCache(redisClient.Client)
		checkers = append(checkers, httptransport.HealthChecker{Name: "redis", Check: redisClient.Health})
		defer redisClient.Close()
	} else {
		memCache := cache.NewInMemoryCache()
		profileCache = memCache
		defer memCache.Close()
	}

	// Archive: Postgres when configured, in-memory otherwise.
	var caseStore archive.Store
	if cfg.Postgres.URL != "" {
		pg, err := archive.NewPostgresStore(cfg.Postgres.URL)
		if err != nil {
			log.Error("postgres setup failed", "error", err)
			os.Exit(1)
		}
		caseStore = pg
		checkers = append(checkers, httptransport.HealthChecker{Name: "postgres", Check: pg.Health})
		defer pg.Close()
	} else {
		caseStore = archive.NewInMemoryStore()
	}

	m := metrics.New()
	svc := service.New(service.Deps{
		Registry:        registry.New(cfg.Registry, log),
		Feed:            feed.New(cfg.Feed, log),
		Lawyer:          lawyer.New(cfg.Lawyer, log),
		Cache:           profileCache,
		Logger:          log,
		Metrics:         m,
		RequestDeadline: cfg.RequestDeadline,
		EntityCacheTTL:  cfg.EntityCacheTTL,
		DateCacheTTL:    cfg.DateCacheTTL,
	})

	worker := ingest.New(svc, caseStore, log)
	if cfg.IngestEnabled {
		worker.Start()
		defer worker.Stop()
	}

	h := handler.New(svc, caseStore, worker, log)
	router := httptransport.NewRouter(h, cfg.AdminToken, log, checkers)
	srv := httpserver.New(cfg.Addr, router)

	log.Info("starting konkurs aggregator", "addr", cfg.Addr, "ingest_enabled", cfg.IngestEnabled)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
}
