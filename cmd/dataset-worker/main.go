package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/synaptica-ai/studydata/pkg/common/config"
	"github.com/synaptica-ai/studydata/pkg/common/database"
	"github.com/synaptica-ai/studydata/pkg/common/kafka"
	"github.com/synaptica-ai/studydata/pkg/common/logger"
	"github.com/synaptica-ai/studydata/pkg/common/models"
	"github.com/synaptica-ai/studydata/pkg/extraction"
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

	db, err := database.GetPostgres(cfg)
	if err != nil {
		if cfg.DataSource == models.SourcePostgres {
			logger.Log.WithError(err).Fatal("failed to connect to postgres")
		}
		logger.Log.WithError(err).Warn("postgres unavailable, results are kept in the result cache only")
	} else {
		defer database.ClosePostgres()
		opts = append(opts, extraction.WithPostgres(storage.NewPostgresSource(db)))
	}

	svc := extraction.NewService(catalog, opts...)

	handle := svc.HandleEvent
	if db != nil {
		repo := extraction.NewJobRepository(db)
		if err := repo.AutoMigrate(); err != nil {
			logger.Log.WithError(err).Fatal("failed to migrate dataset job table")
		}
		handle = extraction.NewRunner(repo, svc, cfg.MaxWorkers).HandleEvent
	}

	consumer := kafka.NewConsumer(cfg, cfg.DatasetRequestTopic, cfg.KafkaGroupID+"-dataset-worker")
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Log.Info("Shutting down Dataset Worker...")
		cancel()
	}()

	logger.Log.WithFields(map[string]interface{}{
		"topic":  cfg.DatasetRequestTopic,
		"source": cfg.DataSource,
	}).Info("Dataset Worker started")

	if err := consumer.Consume(ctx, handle); err != nil && !errors.Is(err, context.Canceled) {
		logger.Log.WithError(err).Error("consumer stopped")
	}

	logger.Log.Info("Dataset Worker stopped")
}
