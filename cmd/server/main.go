package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mgrobelny/badgeforge/internal/api/badges"
	"github.com/mgrobelny/badgeforge/internal/cache"
	"github.com/mgrobelny/badgeforge/internal/config"
	"github.com/mgrobelny/badgeforge/internal/repository"
	"github.com/mgrobelny/badgeforge/internal/service/catalog"
	"github.com/mgrobelny/badgeforge/internal/service/engine"
	"github.com/mgrobelny/badgeforge/internal/service/scheduler"
	"github.com/mgrobelny/badgeforge/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	log.Info().Str("version", "1.0").Msg("Starting badgeforge server")

	db, err := repository.NewDB(&cfg.Database.Postgres, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	if err := db.AutoMigrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	userRepo := repository.NewUserRepository(db)
	badgeRepo := repository.NewBadgeRepository(db)

	// Badge definitions are declarative. Every slug a rule can grant must
	// exist in the catalog before the first recompute runs.
	rules := engine.DefaultRules()
	defs, err := catalog.LoadDefinitions(cfg.Catalog.DefinitionsPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.Catalog.DefinitionsPath).Msg("Failed to load badge definitions")
	}
	if err := catalog.Validate(defs, engine.RuleSlugs(rules)); err != nil {
		log.Fatal().Err(err).Msg("Badge definitions are incomplete")
	}
	syncer := catalog.NewSyncer(badgeRepo, log)
	if err := syncer.Sync(defs); err != nil {
		log.Fatal().Err(err).Msg("Failed to sync badge catalog")
	}

	redisCache, err := cache.NewRedis(&cfg.Database.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer redisCache.Close()

	engineService := engine.NewService(userRepo, badgeRepo, log)

	schedulerService := scheduler.NewService(&cfg.Scheduler, engineService, log)
	if err := schedulerService.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start scheduler")
	}
	defer schedulerService.Stop()

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		if err := db.Health(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if cfg.Metrics.Enabled {
		path := cfg.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		router.GET(path, gin.WrapH(promhttp.Handler()))
	}

	handler := badges.NewHandler(engineService, badgeRepo, redisCache, cfg.Database.Redis.CacheTTL(), log)
	handler.Register(router.Group("/api/v1"))

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}
	log.Info().Msg("Server stopped")
}
