package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"violation-service/internal/config"
	"violation-service/internal/cooldown"
	"violation-service/internal/db"
	"violation-service/internal/detector"
	handler "violation-service/internal/http"
	"violation-service/internal/identity"
	"violation-service/internal/logger"
	"violation-service/internal/notify"
	"violation-service/internal/policy"
	"violation-service/internal/repository"
	"violation-service/internal/resolver"
	"violation-service/internal/service"
)

const shutdownTimeout = 15 * time.Second

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		boot := zerolog.New(os.Stderr).With().Timestamp().Logger()
		boot.Fatal().Err(err).Msg("failed to load config")
	}

	log := logger.New(cfg.Log)

	gdb, err := db.Open(cfg.DB, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}

	table, err := policy.New(policy.Options{
		ClassIDs:                     cfg.Detection.ClassIDs,
		MinConfidenceByClass:         cfg.Detection.MinConfidenceByClass,
		FineAmountByViolationType:    cfg.Detection.FineAmountByViolationType,
		RequireMotorcycleForNoHelmet: cfg.Detection.RequireMotorcycleForNoHelmet,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("invalid detection policy")
	}

	violationRepo := repository.NewViolationRepository(gdb)

	var store cooldown.Store = cooldown.NewMemoryStore()
	if cfg.Detection.CooldownStore == config.CooldownStoreDatabase {
		store = repository.NewCooldownRepository(gdb)
	}
	engine := cooldown.NewEngine(store, cfg.Detection.CooldownWindow(), log)

	notifiers := notify.Multi{notify.NewLogNotifier(log)}
	var kafka *notify.KafkaNotifier
	if cfg.Notify.Kafka.Enabled {
		kafka, err = notify.NewKafkaNotifier(cfg.Notify.Kafka, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create kafka notifier")
		}
		notifiers = append(notifiers, kafka)
	}

	detectorClient := detector.NewClient(cfg.Detector.URL, cfg.Detector.Timeout, log)
	sink := service.NewRecordSink(violationRepo, notifiers)
	res := resolver.New(table, log)

	pipeline := service.NewPipeline(
		detectorClient,
		res,
		identity.New(log),
		engine,
		table,
		sink,
		service.PipelineOptions{
			MaxViolationsPerFrame: cfg.Detection.MaxViolationsPerFrame,
			DefaultLocation:       cfg.Detection.DefaultLocation,
		},
		log,
	)
	violationService := service.NewViolationService(violationRepo, detectorClient, res, table, sink, log)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.HTTP.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	handler.NewHandler(pipeline, violationService, cfg, log).Register(router)

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Str("cooldown_store", cfg.Detection.CooldownStore).Msg("violation service listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return engine.Run(gctx, cfg.Detection.PruneInterval)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("service stopped with error")
	}

	if kafka != nil {
		kafka.Close(int(shutdownTimeout / time.Millisecond))
	}
	if sqlDB, err := gdb.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info().Msg("service stopped")
}
