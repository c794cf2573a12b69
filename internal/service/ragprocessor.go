package service

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/grantwell/grantwell/internal/domain"
	"github.com/grantwell/grantwell/internal/logger"
)

const defaultGrantType = "federal"

// Retriever produces passage-level hits for a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string) []RetrievalResult
}

// GrantLookup fetches a single grant record from the structured store.
type GrantLookup interface {
	GetByID(ctx context.Context, id string) (*domain.Grant, error)
}

// SummaryProvider fetches a grant's summary document.
type SummaryProvider interface {
	GetSummary(ctx context.Context, grantID string) (*domain.GrantSummary, error)
}

// RAGProcessor turns raw passage hits into grant-level candidates: it
// derives grant IDs from source locators, drops grants already shown by the
// immediate phase, enforces the confidence floor, deduplicates passages of
// the same grant, and enriches survivors from the summary store.
type RAGProcessor struct {
	retriever Retriever
	grants    GrantLookup
	summaries SummaryProvider
	threshold float32
}

// NewRAGProcessor creates a new RAGProcessor.
func NewRAGProcessor(retriever Retriever, grants GrantLookup, summaries SummaryProvider, threshold float32) *RAGProcessor {
	return &RAGProcessor{
		retriever: retriever,
		grants:    grants,
		summaries: summaries,
		threshold: threshold,
	}
}

// GrantIDFromSourceURI extracts the grant ID from a passage source locator
// of the form s3://<bucket>/<grantID>/<file>. The grant ID is the first
// path segment after the bucket.
// Parameters:
//   - uri: source locator stored with the passage vector.
// Returns:
//   - string: grant ID.
//   - error: non-nil if the locator does not follow the expected shape.
func GrantIDFromSourceURI(uri string) (string, error) {
	rest, ok := strings.CutPrefix(uri, "s3://")
	if !ok {
		return "", fmt.Errorf("unexpected source locator scheme: %s", uri)
	}

	parts := strings.SplitN(rest, "/", 3)
	if len(parts) < 2 || parts[1] == "" {
		return "", fmt.Errorf("source locator has no grant segment: %s", uri)
	}

	return parts[1], nil
}

type ragHit struct {
	grantID    string
	grantName  string
	confidence float32
}

// Process runs the semantic phase for a query and returns grant candidates
// not already covered by the immediate phase. Retrieval failures degrade to
// an empty result; only context cancellation is reported as an error.
// Parameters:
//   - ctx: context bounding the phase.
//   - query: original user query.
//   - filters: structural filter active for the request, possibly empty.
//   - alreadyShown: grant IDs surfaced by the immediate phase.
// Returns:
//   - []domain.GrantCandidate: enriched semantic candidates.
//   - error: ctx.Err() if the phase was cancelled mid-flight.
func (p *RAGProcessor) Process(ctx context.Context, query string, filters domain.FilterSet, alreadyShown map[string]struct{}) ([]domain.GrantCandidate, error) {
	hits := p.retriever.Retrieve(ctx, query)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	deduped := p.collapse(ctx, hits, filters, alreadyShown)

	candidates := make([]domain.GrantCandidate, 0, len(deduped))
	for _, hit := range deduped {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		candidate, ok := p.enrich(ctx, query, hit)
		if !ok {
			continue
		}
		candidates = append(candidates, candidate)
	}

	return candidates, nil
}

// collapse maps passage hits to unique grant IDs, keeping the highest
// confidence per grant and applying the exclusion and filter gates.
func (p *RAGProcessor) collapse(ctx context.Context, hits []RetrievalResult, filters domain.FilterSet, alreadyShown map[string]struct{}) []ragHit {
	best := make(map[string]int)
	var order []ragHit

	for _, hit := range hits {
		grantID, err := GrantIDFromSourceURI(hit.SourceURI)
		if err != nil {
			logger.CtxDebug(ctx, "Skipping passage with bad locator: error=%v", err)
			continue
		}

		if _, seen := alreadyShown[grantID]; seen {
			continue
		}

		if idx, ok := best[grantID]; ok {
			if hit.Confidence > order[idx].confidence {
				order[idx].confidence = hit.Confidence
			}
			continue
		}

		if filters.HasStructuralFilter() && p.hasIncompleteMetadata(ctx, grantID, filters) {
			continue
		}

		best[grantID] = len(order)
		order = append(order, ragHit{
			grantID:    grantID,
			grantName:  hit.GrantName,
			confidence: hit.Confidence,
		})
	}

	kept := order[:0]
	for _, hit := range order {
		if hit.confidence < p.threshold {
			continue
		}
		kept = append(kept, hit)
	}

	return kept
}

// hasIncompleteMetadata reports whether a grant should be excluded from a
// filtered request because its structured metadata is missing the filtered
// column. The check fails open: if the record cannot be fetched, the grant
// is kept rather than silently dropped on an infrastructure hiccup.
func (p *RAGProcessor) hasIncompleteMetadata(ctx context.Context, grantID string, filters domain.FilterSet) bool {
	grant, err := p.grants.GetByID(ctx, grantID)
	if err != nil || grant == nil {
		logger.CtxDebug(ctx, "Metadata check inconclusive, keeping grant: grant_id=%s, error=%v", grantID, err)
		return false
	}

	if filters.Category != "" && strings.TrimSpace(grant.Category) == "" {
		return true
	}
	if filters.Agency != "" {
		agency := strings.TrimSpace(grant.Agency)
		if agency == "" || agency == domain.AgencyUnknown {
			return true
		}
	}

	return false
}

// enrich builds the final candidate for a deduplicated hit. Grants whose
// summary is absent or marked archived are dropped.
func (p *RAGProcessor) enrich(ctx context.Context, query string, hit ragHit) (domain.GrantCandidate, bool) {
	summary, err := p.summaries.GetSummary(ctx, hit.grantID)
	if err != nil {
		logger.CtxWarn(ctx, "Summary fetch failed, dropping candidate: grant_id=%s, error=%v", hit.grantID, err)
		return domain.GrantCandidate{}, false
	}
	if summary == nil || summary.IsArchived() {
		return domain.GrantCandidate{}, false
	}

	name := summary.GrantName
	if name == "" {
		name = hit.grantName
	}
	if name == "" {
		name = hit.grantID
	}

	grantType := summary.GrantType
	if grantType == "" {
		if grant, err := p.grants.GetByID(ctx, hit.grantID); err == nil && grant != nil && grant.GrantType != "" {
			grantType = grant.GrantType
		}
	}
	if grantType == "" {
		grantType = defaultGrantType
	}

	return domain.GrantCandidate{
		GrantID:       hit.grantID,
		Name:          name,
		Score:         int(math.Round(float64(hit.confidence) * 100)),
		MatchReason:   fmt.Sprintf("Semantically relevant to your search for %q", query),
		Provenance:    domain.ProvenanceRAG,
		FundingAmount: summary.FundingAmount,
		Deadline:      summary.Deadline,
		GrantType:     grantType,
	}, true
}
