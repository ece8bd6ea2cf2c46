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
	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog/log"

	"github.com/welcomarr/welcomarr/internal/config"
	"github.com/welcomarr/welcomarr/internal/gormw"
	"github.com/welcomarr/welcomarr/internal/handlers/middleware"
	"github.com/welcomarr/welcomarr/internal/handlers/portal"
	"github.com/welcomarr/welcomarr/internal/invitation"
	"github.com/welcomarr/welcomarr/internal/librarysync"
	"github.com/welcomarr/welcomarr/internal/metrics"
	"github.com/welcomarr/welcomarr/internal/plex"
	"github.com/welcomarr/welcomarr/internal/storage"
)

var (
	configPath = flag.String("c", os.Getenv("CONFIG_PATH"), "Path to configuration file")
)

func main() {
	flag.Parse()
	if *configPath == "" {
		log.Fatal().Msg("Config path must be provided via CONFIG_PATH env var or -c flag")
	}

	// Load configuration
	cfg := config.LoadConfig(*configPath)

	// Initialize database
	db, err := gormw.Open(&cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate database")
	}

	store := storage.New(db)
	if err := store.EnsureDefaults(context.Background(), cfg.Portal.InitialAdminPassword); err != nil {
		log.Fatal().Err(err).Msg("Failed to seed database")
	}

	collector := metrics.NewCollector(nil)
	plexClient := plex.NewClient(&cfg.Plex, collector)
	syncer := librarysync.NewSyncer(store, plexClient, collector)

	// cron schedule
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create scheduler")
	}
	if err := librarysync.Register(scheduler, syncer, &cfg.Sync); err != nil {
		log.Fatal().Err(err).Msg("Failed to schedule library sync")
	}
	scheduler.Start()

	service := invitation.NewService(store, cfg.Portal.CodeLength)
	coordinator := invitation.NewCoordinator(
		store, plexClient, syncer, collector,
		time.Duration(cfg.Portal.GrantTimeoutSeconds)*time.Second)

	// Set up Gin router
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// add firewall middleware
	if cfg.Firewall != nil {
		fw := middleware.NewFirewallMiddleware(cfg.Firewall)
		router.Use(fw.Middleware())
	}

	router.GET("/metrics", gin.WrapH(collector.Handler()))

	limiter := middleware.NewRateLimiter(&cfg.RateLimit)
	p := portal.NewPortal(&cfg.Portal, store, service, coordinator, syncer)
	p.RegisterHandlers(router.Group("/"), limiter.Middleware())

	// Start server
	srv := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Port),
		// Redemption waits on plex.tv, leave it room.
		WriteTimeout: time.Second*15 + time.Duration(cfg.Portal.GrantTimeoutSeconds)*time.Second,
		ReadTimeout:  time.Second * 15,
		IdleTimeout:  time.Second * 60,
		Handler:      router,
	}

	// Run our server in a goroutine so that it doesn't block.
	go func() {
		log.Info().Msgf("start server at %q", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	// Block until we receive our signal.
	<-c

	// Create a deadline to wait for.
	wait := time.Second * 15
	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()
	srv.Shutdown(ctx)

	if err := scheduler.Shutdown(); err != nil {
		log.Warn().Err(err).Msg("Failed to stop scheduler")
	}

	log.Info().Msg("shutting down")
}
