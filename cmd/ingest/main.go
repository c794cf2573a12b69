package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/grantwell/grantwell/internal/config"
	"github.com/grantwell/grantwell/internal/logger"
	"github.com/grantwell/grantwell/internal/repository"
	"github.com/grantwell/grantwell/internal/service"
	"github.com/grantwell/grantwell/internal/storage"
)

func main() {
	appLogger := logger.New(&logger.Config{
		Level:       "info",
		Format:      "json",
		ServiceName: "grantwell-ingest",
	})
	logger.SetDefaultLogger(appLogger)

	corpusPath := flag.String("corpus", "", "Path to grant corpus JSON file")
	limit := flag.Int("limit", 0, "Maximum number of grants to ingest (0 = all)")
	workers := flag.Int("workers", 4, "Number of concurrent ingest workers")
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	if *corpusPath == "" {
		appLogger.Fatal("corpus path is required (-corpus)")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	corpus, err := service.LoadCorpus(*corpusPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load corpus")
	}

	appLogger.WithFields(logger.Fields{
		"corpus":  *corpusPath,
		"grants":  len(corpus),
		"limit":   *limit,
		"workers": *workers,
	}).Info("Starting ingestion")

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}
	grantRepo := repository.NewGrantRepository(db)

	vectorRepo, err := repository.NewVectorRepository(&repository.VectorConnectionConfig{
		Host:            cfg.Qdrant.Host,
		Port:            cfg.Qdrant.Port,
		Collection:      cfg.Qdrant.Collection,
		APIKey:          cfg.Qdrant.APIKey,
		UseTLS:          cfg.Qdrant.UseTLS,
		VectorDimension: cfg.Embedding.Dimensions,
	})
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize vector repository")
	}
	defer vectorRepo.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := vectorRepo.EnsureCollection(ctx); err != nil {
		appLogger.WithError(err).Fatal("Failed to ensure vector collection")
	}

	objectStorage, err := storage.NewS3Storage(&storage.S3Config{
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		UseSSL:    cfg.Storage.UseSSL,
		Bucket:    cfg.Storage.Bucket,
		Region:    cfg.Storage.Region,
	})
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize storage")
	}
	if err := objectStorage.EnsureBucket(ctx); err != nil {
		appLogger.WithError(err).Fatal("Failed to ensure document bucket")
	}

	embeddingService := service.NewEmbeddingService(&service.EmbeddingConfig{
		Model:      cfg.Embedding.Model,
		APIKey:     cfg.Embedding.APIKey,
		Dimensions: cfg.Embedding.Dimensions,
	})
	summaryService := service.NewSummaryService(objectStorage)

	ingestService := service.NewIngestService(
		grantRepo,
		vectorRepo,
		summaryService,
		embeddingService,
		cfg.Storage.Bucket,
		&service.IngestConfig{Workers: *workers},
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		appLogger.Info("Received shutdown signal, canceling...")
		cancel()
	}()

	stats, err := ingestService.IngestCorpus(ctx, corpus, *limit)
	if err != nil {
		appLogger.WithError(err).Fatal("Ingestion failed")
	}

	appLogger.WithFields(logger.Fields{
		"total":     stats.TotalGrants,
		"processed": stats.ProcessedGrants,
		"failed":    stats.FailedGrants,
		"passages":  stats.IndexedPassages,
	}).Info("Ingestion completed")
}
