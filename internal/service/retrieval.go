package service

import (
	"context"
	"time"

	"github.com/grantwell/grantwell/internal/logger"
	"github.com/grantwell/grantwell/internal/repository"
)

// EmbeddingProvider produces a query vector for semantic retrieval.
type EmbeddingProvider interface {
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
}

// PassageSearcher runs similarity search over indexed grant passages.
type PassageSearcher interface {
	Search(ctx context.Context, vector []float32, topK int) ([]repository.PassageHit, error)
}

// RetrievalResult is one passage-level hit from the knowledge base, before
// grant-level deduplication.
type RetrievalResult struct {
	SourceURI  string
	Passage    string
	GrantName  string
	Confidence float32
}

// RetrievalService embeds a query and searches the passage index.
// Any failure yields an empty result set, never an error: the retrieval
// phase fails closed so the caller can fall back to phase-1 results alone.
type RetrievalService struct {
	embedding EmbeddingProvider
	passages  PassageSearcher
	topK      int
	threshold float32
}

// NewRetrievalService creates a new RetrievalService.
// Parameters:
//   - embedding: query embedding provider.
//   - passages: passage vector index.
//   - topK: number of passages to retrieve; <= 0 defaults to 40.
//   - threshold: minimum confidence a hit must exceed to be kept.
// Returns:
//   - *RetrievalService: initialized service.
func NewRetrievalService(embedding EmbeddingProvider, passages PassageSearcher, topK int, threshold float32) *RetrievalService {
	if topK <= 0 {
		topK = 40
	}
	return &RetrievalService{
		embedding: embedding,
		passages:  passages,
		topK:      topK,
		threshold: threshold,
	}
}

// Retrieve returns passage hits for the query with confidence above the
// threshold. Embedding or index failures are logged and produce an empty
// slice.
func (s *RetrievalService) Retrieve(ctx context.Context, query string) []RetrievalResult {
	start := time.Now()

	vector, err := s.embedding.EmbedQuery(ctx, query)
	if err != nil {
		logger.CtxWarn(ctx, "Query embedding failed, skipping retrieval: error=%v", err)
		return []RetrievalResult{}
	}

	hits, err := s.passages.Search(ctx, vector, s.topK)
	if err != nil {
		logger.CtxWarn(ctx, "Passage search failed, skipping retrieval: error=%v", err)
		return []RetrievalResult{}
	}

	results := make([]RetrievalResult, 0, len(hits))
	for _, hit := range hits {
		if hit.Payload == nil || hit.Payload.SourceURI == "" {
			continue
		}
		if hit.Score <= s.threshold {
			continue
		}
		results = append(results, RetrievalResult{
			SourceURI:  hit.Payload.SourceURI,
			Passage:    hit.Payload.Passage,
			GrantName:  hit.Payload.GrantName,
			Confidence: hit.Score,
		})
	}

	logger.With(logger.Fields{
		logger.FieldComponent: "retrieval",
	}).WithDuration(time.Since(start).Milliseconds()).WithCount(len(results)).
		Debug(ctx, "Passage retrieval finished: query_len=%d", len(query))

	return results
}
