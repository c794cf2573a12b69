package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/grantwell/grantwell/internal/api"
	"github.com/grantwell/grantwell/internal/api/middleware"
	"github.com/grantwell/grantwell/internal/config"
	applogger "github.com/grantwell/grantwell/internal/logger"
	"github.com/grantwell/grantwell/internal/repository"
	"github.com/grantwell/grantwell/internal/service"
	"github.com/grantwell/grantwell/internal/storage"
)

const jobSweepInterval = 10 * time.Minute

func main() {
	// Support CONFIG_PATH environment variable for production deployments
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logg := applogger.NewDefault()
	applogger.SetDefaultLogger(logg)
	defer applogger.Sync()

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		applogger.Fatal("Failed to initialize database: error=%v", err)
	}

	grantRepo := repository.NewGrantRepository(db)
	jobRepo := repository.NewJobRepository(db)

	vectorRepo, err := repository.NewVectorRepository(&repository.VectorConnectionConfig{
		Host:            cfg.Qdrant.Host,
		Port:            cfg.Qdrant.Port,
		Collection:      cfg.Qdrant.Collection,
		APIKey:          cfg.Qdrant.APIKey,
		UseTLS:          cfg.Qdrant.UseTLS,
		VectorDimension: cfg.Embedding.Dimensions,
	})
	if err != nil {
		applogger.Fatal("Failed to initialize vector repository: error=%v", err)
	}
	defer vectorRepo.Close()

	ctx := context.Background()
	if err := vectorRepo.EnsureCollection(ctx); err != nil {
		applogger.Fatal("Failed to ensure vector collection: error=%v", err)
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
		applogger.Fatal("Failed to initialize storage: error=%v", err)
	}
	if err := objectStorage.EnsureBucket(ctx); err != nil {
		applogger.Fatal("Failed to ensure document bucket: error=%v", err)
	}

	embeddingService := service.NewEmbeddingService(&service.EmbeddingConfig{
		Model:      cfg.Embedding.Model,
		APIKey:     cfg.Embedding.APIKey,
		Dimensions: cfg.Embedding.Dimensions,
	})

	summaryService := service.NewSummaryService(objectStorage)

	vocabCache := service.NewVocabularyCache(grantRepo, &service.VocabCacheSettings{
		Enabled: cfg.Search.VocabCache.Enabled,
		TTL:     cfg.Search.VocabCache.TTL,
	})

	filterSearch := service.NewFilterSearchService(grantRepo, summaryService)

	retrieval := service.NewRetrievalService(
		embeddingService,
		vectorRepo,
		cfg.Search.TopK,
		cfg.Search.ConfidenceThreshold,
	)

	ragProcessor := service.NewRAGProcessor(retrieval, grantRepo, summaryService, cfg.Search.ConfidenceThreshold)

	recommendations := service.NewRecommendationService(
		filterSearch,
		ragProcessor,
		vocabCache,
		jobRepo,
		service.RecommendationConfig{
			SoftTimeout: cfg.Search.RAGSoftTimeout,
			JobTTL:      cfg.Search.JobTTL,
			QueueSize:   cfg.Search.QueueSize,
			Workers:     cfg.Search.Workers,
		},
	)
	recommendations.StartWorkers()

	// Periodic cleanup of expired job records
	janitorCtx, stopJanitor := context.WithCancel(ctx)
	go runJobJanitor(janitorCtx, jobRepo)

	router := api.SetupRouter(api.RouterDeps{
		Recommendations: recommendations,
		Grants:          grantRepo,
		Summaries:       summaryService,
		Vocab:           vocabCache,
		Log:             logg,
		CORS: middleware.CORSConfig{
			AllowedOrigins:  cfg.Server.CORS.AllowedOrigins,
			AllowAllOrigins: cfg.Server.CORS.AllowAllOrigins,
		},
	}, cfg.Server.Mode)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		applogger.Info("Starting API server: port=%d, mode=%s", cfg.Server.Port, cfg.Server.Mode)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			applogger.Fatal("Failed to start server: error=%v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	applogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		applogger.Error("Server forced to shutdown: error=%v", err)
	}

	stopJanitor()
	recommendations.Stop()

	applogger.Info("Server exited")
}

// runJobJanitor periodically deletes job records past their retention
// window. Reads already treat expired records as absent, so the sweep is
// purely housekeeping.
func runJobJanitor(ctx context.Context, jobs *repository.JobRepository) {
	ticker := time.NewTicker(jobSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := jobs.DeleteExpired(ctx, time.Now())
			if err != nil {
				applogger.CtxWarn(ctx, "Job cleanup sweep failed: error=%v", err)
				continue
			}
			if removed > 0 {
				applogger.CtxInfo(ctx, "Removed expired search jobs: count=%d", removed)
			}
		}
	}
}
