package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/synaptica-ai/studydata/pkg/common/config"
	"github.com/synaptica-ai/studydata/pkg/common/database"
	"github.com/synaptica-ai/studydata/pkg/common/kafka"
	"github.com/synaptica-ai/studydata/pkg/common/logger"
	"github.com/synaptica-ai/studydata/pkg/common/middleware"
	"github.com/synaptica-ai/studydata/pkg/common/models"
	"github.com/synaptica-ai/studydata/pkg/extraction"
	"github.com/synaptica-ai/studydata/pkg/observability/metrics"
	"github.com/synaptica-ai/studydata/pkg/storage"
	"github.com/synaptica-ai/studydata/pkg/terminology"
)

func main() {
	logger.Init()
	cfg := config.Load()

	catalog, err := terminology.Load(cfg.CodelistCatalogPath)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to load codelist catalog")
	}

	producer := kafka.NewProducer(cfg, cfg.DatasetEventTopic)
	defer producer.Close()

	opts := []extraction.Option{
		extraction.WithDefinitionPath(cfg.DefinitionPath),
		extraction.WithDummyDefaults(cfg.DummyPopulationSize, cfg.DummySeed),
		extraction.WithPublisher(producer),
		extraction.WithCache(storage.NewResultCache(database.GetRedis(cfg), cfg.ResultCacheTTL)),
	}
	defer database.CloseRedis()

	var runner *extraction.Runner
	db, err := database.GetPostgres(cfg)
	if err != nil {
		if cfg.DataSource == models.SourcePostgres {
			logger.Log.WithError(err).Fatal("failed to connect to postgres")
		}
		logger.Log.WithError(err).Warn("postgres unavailable, serving dummy data without jobs")
	} else {
		defer database.ClosePostgres()
		source := storage.NewPostgresSource(db)
		if err := source.AutoMigrate(); err != nil {
			logger.Log.WithError(err).Fatal("failed to migrate clinical tables")
		}
		opts = append(opts, extraction.WithPostgres(source))
	}

	svc := extraction.NewService(catalog, opts...)

	if db != nil {
		repo := extraction.NewJobRepository(db)
		if err := repo.AutoMigrate(); err != nil {
			logger.Log.WithError(err).Fatal("failed to migrate dataset job table")
		}
		runner = extraction.NewRunner(repo, svc, cfg.MaxWorkers)
	}

	if _, err := svc.Resolve(""); err != nil {
		logger.Log.WithError(err).Fatal("default dataset definition is invalid")
	}

	handler := extraction.NewHTTPHandler(svc, runner, cfg.MaxRequestBody, cfg.JobListLimit)

	router := mux.NewRouter()
	router.Use(middleware.Recovery, middleware.Logging)
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)

	router.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	}).Methods(http.MethodGet)

	router.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		metrics.WritePrometheus(w)
	}).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	if cfg.RateLimitRPS > 0 {
		api.Use(middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
	}
	handler.Register(api)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host": cfg.ServerHost,
			"port": cfg.ServerPort,
		}).Info("Dataset Service started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Dataset Service...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Log.WithError(err).Error("server forced to shutdown")
	}
	if runner != nil {
		runner.Wait()
	}

	logger.Log.Info("Dataset Service stopped")
}
