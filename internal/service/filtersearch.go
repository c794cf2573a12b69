package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/grantwell/grantwell/internal/domain"
	"github.com/grantwell/grantwell/internal/logger"
)

const (
	scoreStructural = 100
	scoreNameMatch  = 90

	// Shorter terms match too much of the corpus to be useful
	minNameQueryLen = 3
)

// GrantSearcher runs the structured-store queries behind the immediate phase.
type GrantSearcher interface {
	FindByCategory(ctx context.Context, category string) ([]domain.Grant, error)
	FindByAgency(ctx context.Context, agency string) ([]domain.Grant, error)
	SearchByNameOrID(ctx context.Context, term string) ([]domain.Grant, error)
}

// FilterSearchService is the immediate phase of a recommendation request:
// exact category and agency matches plus a name/ID substring pass, unioned
// with first-writer-wins per grant ID and enriched from the summary store.
type FilterSearchService struct {
	grants    GrantSearcher
	summaries SummaryProvider
}

// NewFilterSearchService creates a new FilterSearchService.
func NewFilterSearchService(grants GrantSearcher, summaries SummaryProvider) *FilterSearchService {
	return &FilterSearchService{grants: grants, summaries: summaries}
}

// Search runs the immediate phase. Store failures on any sub-query are
// logged and skipped; the phase returns whatever the remaining sub-queries
// produced.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - query: original user query, used for the name/ID pass.
//   - filters: active structural filter, possibly empty.
// Returns:
//   - []domain.GrantCandidate: enriched candidates, unique by grant ID.
//   - bool: whether any structural filter drove the search.
func (s *FilterSearchService) Search(ctx context.Context, query string, filters domain.FilterSet) ([]domain.GrantCandidate, bool) {
	start := time.Now()
	usedFilters := filters.HasStructuralFilter()

	seen := make(map[string]struct{})
	var candidates []domain.GrantCandidate

	add := func(grants []domain.Grant, score int, reason string, prov domain.Provenance) {
		for _, grant := range grants {
			if _, dup := seen[grant.ID]; dup {
				continue
			}
			seen[grant.ID] = struct{}{}

			candidate, ok := s.enrich(ctx, grant, score, reason, prov)
			if !ok {
				continue
			}
			candidates = append(candidates, candidate)
		}
	}

	if filters.Category != "" {
		grants, err := s.grants.FindByCategory(ctx, filters.Category)
		if err != nil {
			logger.CtxWarn(ctx, "Category search failed: category=%s, error=%v", filters.Category, err)
		} else {
			add(grants, scoreStructural,
				fmt.Sprintf("Matches the %s category", filters.Category),
				domain.ProvenanceCategory)
		}
	}

	if filters.Agency != "" {
		grants, err := s.grants.FindByAgency(ctx, filters.Agency)
		if err != nil {
			logger.CtxWarn(ctx, "Agency search failed: agency=%s, error=%v", filters.Agency, err)
		} else {
			add(grants, scoreStructural,
				fmt.Sprintf("Offered by %s", filters.Agency),
				domain.ProvenanceAgency)
		}
	}

	if term := strings.TrimSpace(query); len(term) >= minNameQueryLen {
		grants, err := s.grants.SearchByNameOrID(ctx, term)
		if err != nil {
			logger.CtxWarn(ctx, "Name search failed: error=%v", err)
		} else {
			add(grants, scoreNameMatch,
				fmt.Sprintf("Grant name matches %q", term),
				domain.ProvenanceNameMatch)
		}
	}

	logger.With(logger.Fields{
		logger.FieldComponent: "filter_search",
	}).WithDuration(time.Since(start).Milliseconds()).WithCount(len(candidates)).
		Debug(ctx, "Immediate search finished: used_filters=%t", usedFilters)

	return candidates, usedFilters
}

// enrich fills display metadata from the grant's summary document. Grants
// whose summary is absent or marked archived are dropped.
func (s *FilterSearchService) enrich(ctx context.Context, grant domain.Grant, score int, reason string, prov domain.Provenance) (domain.GrantCandidate, bool) {
	summary, err := s.summaries.GetSummary(ctx, grant.ID)
	if err != nil {
		logger.CtxWarn(ctx, "Summary fetch failed, dropping candidate: grant_id=%s, error=%v", grant.ID, err)
		return domain.GrantCandidate{}, false
	}
	if summary == nil || summary.IsArchived() {
		return domain.GrantCandidate{}, false
	}

	name := grant.Name
	if name == "" {
		name = summary.GrantName
	}

	grantType := grant.GrantType
	if grantType == "" {
		grantType = summary.GrantType
	}
	if grantType == "" {
		grantType = defaultGrantType
	}

	return domain.GrantCandidate{
		GrantID:       grant.ID,
		Name:          name,
		Score:         score,
		MatchReason:   reason,
		Provenance:    prov,
		FundingAmount: summary.FundingAmount,
		Deadline:      summary.Deadline,
		GrantType:     grantType,
	}, true
}
