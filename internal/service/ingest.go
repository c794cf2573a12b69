package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/grantwell/grantwell/internal/domain"
	"github.com/grantwell/grantwell/internal/logger"
	"github.com/grantwell/grantwell/internal/repository"
)

// CorpusGrant is one grant entry in an ingest corpus file: the structured
// record, its summary document, and the document passages to index.
type CorpusGrant struct {
	ID        string              `json:"id"`
	Name      string              `json:"name"`
	Category  string              `json:"category"`
	Agency    string              `json:"agency"`
	GrantType string              `json:"grant_type"`
	Status    domain.GrantStatus  `json:"status"`
	Summary   domain.GrantSummary `json:"summary"`
	Passages  []string            `json:"passages"`
}

// GrantUpserter writes grant records to the structured store.
type GrantUpserter interface {
	Upsert(ctx context.Context, grant *domain.Grant) error
}

// VectorUpserter writes passage vectors to the index.
type VectorUpserter interface {
	Upsert(ctx context.Context, pointID string, vector []float32, payload *repository.PassagePayload) error
}

// SummaryWriter writes summary documents to the blob store.
type SummaryWriter interface {
	PutSummary(ctx context.Context, grantID string, summary *domain.GrantSummary) error
}

// PassageEmbedder produces passage embeddings in batches.
type PassageEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// IngestConfig holds ingestion settings.
type IngestConfig struct {
	Workers   int
	BatchSize int
}

// IngestStats summarizes one ingestion run.
type IngestStats struct {
	TotalGrants     int
	ProcessedGrants int64
	FailedGrants    int64
	IndexedPassages int64
}

// IngestService loads a grant corpus into all three stores: structured
// records, summary documents, and passage vectors. Grants are processed
// concurrently; a failure on one grant does not stop the run.
type IngestService struct {
	grants    GrantUpserter
	vectors   VectorUpserter
	summaries SummaryWriter
	embedding PassageEmbedder
	bucket    string
	workers   int
	batchSize int
}

// NewIngestService creates a new IngestService.
func NewIngestService(grants GrantUpserter, vectors VectorUpserter, summaries SummaryWriter, embedding PassageEmbedder, bucket string, cfg *IngestConfig) *IngestService {
	workers := 4
	batchSize := 16
	if cfg != nil {
		if cfg.Workers > 0 {
			workers = cfg.Workers
		}
		if cfg.BatchSize > 0 {
			batchSize = cfg.BatchSize
		}
	}
	return &IngestService{
		grants:    grants,
		vectors:   vectors,
		summaries: summaries,
		embedding: embedding,
		bucket:    bucket,
		workers:   workers,
		batchSize: batchSize,
	}
}

// LoadCorpus reads and decodes a corpus file.
func LoadCorpus(path string) ([]CorpusGrant, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read corpus file: %w", err)
	}
	var corpus []CorpusGrant
	if err := json.Unmarshal(data, &corpus); err != nil {
		return nil, fmt.Errorf("failed to decode corpus file: %w", err)
	}
	return corpus, nil
}

// IngestCorpus ingests all grants in the corpus, up to limit when limit > 0.
// Parameters:
//   - ctx: context; cancellation stops dispatching new grants.
//   - corpus: decoded corpus entries.
//   - limit: maximum grants to process; <= 0 means all.
// Returns:
//   - *IngestStats: per-run counters.
//   - error: non-nil only if the run could not start.
func (s *IngestService) IngestCorpus(ctx context.Context, corpus []CorpusGrant, limit int) (*IngestStats, error) {
	if limit > 0 && limit < len(corpus) {
		corpus = corpus[:limit]
	}

	stats := &IngestStats{TotalGrants: len(corpus)}
	jobs := make(chan CorpusGrant)

	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for entry := range jobs {
				if err := s.ingestOne(ctx, entry, stats); err != nil {
					atomic.AddInt64(&stats.FailedGrants, 1)
					logger.CtxWarn(ctx, "Grant ingest failed: grant_id=%s, error=%v", entry.ID, err)
					continue
				}
				atomic.AddInt64(&stats.ProcessedGrants, 1)
			}
		}()
	}

dispatch:
	for _, entry := range corpus {
		select {
		case <-ctx.Done():
			break dispatch
		case jobs <- entry:
		}
	}
	close(jobs)
	wg.Wait()

	return stats, nil
}

func (s *IngestService) ingestOne(ctx context.Context, entry CorpusGrant, stats *IngestStats) error {
	start := time.Now()

	if entry.ID == "" || entry.Name == "" {
		return fmt.Errorf("corpus entry missing id or name")
	}

	status := entry.Status
	if status == "" {
		status = domain.GrantStatusActive
	}

	grant := &domain.Grant{
		ID:        entry.ID,
		Name:      entry.Name,
		Category:  entry.Category,
		Agency:    entry.Agency,
		GrantType: entry.GrantType,
		Status:    status,
	}
	if err := s.grants.Upsert(ctx, grant); err != nil {
		return fmt.Errorf("failed to upsert grant: %w", err)
	}

	summary := entry.Summary
	if summary.GrantName == "" {
		summary.GrantName = entry.Name
	}
	if summary.Status == "" {
		summary.Status = string(status)
	}
	if err := s.summaries.PutSummary(ctx, entry.ID, &summary); err != nil {
		return fmt.Errorf("failed to upload summary: %w", err)
	}

	indexed, err := s.indexPassages(ctx, entry)
	if err != nil {
		return err
	}
	atomic.AddInt64(&stats.IndexedPassages, int64(indexed))

	logger.With(logger.Fields{
		logger.FieldComponent: "ingest",
	}).WithDuration(time.Since(start).Milliseconds()).WithCount(indexed).
		Debug(ctx, "Grant ingested: grant_id=%s", entry.ID)

	return nil
}

// indexPassages embeds the entry's passages in batches and writes one
// vector point per passage, tagged with the grant's source locator.
func (s *IngestService) indexPassages(ctx context.Context, entry CorpusGrant) (int, error) {
	sourceURI := fmt.Sprintf("s3://%s/%s/document.txt", s.bucket, entry.ID)

	indexed := 0
	for offset := 0; offset < len(entry.Passages); offset += s.batchSize {
		end := offset + s.batchSize
		if end > len(entry.Passages) {
			end = len(entry.Passages)
		}
		batch := entry.Passages[offset:end]

		vectors, err := s.embedding.EmbedBatch(ctx, batch)
		if err != nil {
			return indexed, fmt.Errorf("failed to embed passages: %w", err)
		}

		for i, vector := range vectors {
			payload := &repository.PassagePayload{
				SourceURI: sourceURI,
				Passage:   batch[i],
				GrantName: entry.Name,
			}
			if err := s.vectors.Upsert(ctx, uuid.New().String(), vector, payload); err != nil {
				return indexed, fmt.Errorf("failed to index passage: %w", err)
			}
			indexed++
		}
	}

	return indexed, nil
}
