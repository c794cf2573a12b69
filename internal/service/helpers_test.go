package service

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/grantwell/grantwell/internal/domain"
	"github.com/grantwell/grantwell/internal/repository"
)

// fakeGrantStore backs the searcher, lookup, and vocabulary interfaces with
// an in-memory grant set.
type fakeGrantStore struct {
	grants      map[string]domain.Grant
	failLookups bool
	lookupCalls int
	vocabCalls  int
}

func newFakeGrantStore(grants ...domain.Grant) *fakeGrantStore {
	s := &fakeGrantStore{grants: make(map[string]domain.Grant)}
	for _, g := range grants {
		s.grants[g.ID] = g
	}
	return s
}

func (s *fakeGrantStore) GetByID(ctx context.Context, id string) (*domain.Grant, error) {
	s.lookupCalls++
	if s.failLookups {
		return nil, errors.New("store unavailable")
	}
	g, ok := s.grants[id]
	if !ok {
		return nil, errors.New("record not found")
	}
	return &g, nil
}

func (s *fakeGrantStore) FindByCategory(ctx context.Context, category string) ([]domain.Grant, error) {
	if s.failLookups {
		return nil, errors.New("store unavailable")
	}
	var out []domain.Grant
	for _, g := range s.grants {
		if g.Category == category {
			out = append(out, g)
		}
	}
	return out, nil
}

func (s *fakeGrantStore) FindByAgency(ctx context.Context, agency string) ([]domain.Grant, error) {
	if s.failLookups {
		return nil, errors.New("store unavailable")
	}
	var out []domain.Grant
	for _, g := range s.grants {
		if g.Agency == agency {
			out = append(out, g)
		}
	}
	return out, nil
}

func (s *fakeGrantStore) SearchByNameOrID(ctx context.Context, term string) ([]domain.Grant, error) {
	if s.failLookups {
		return nil, errors.New("store unavailable")
	}
	var out []domain.Grant
	for _, g := range s.grants {
		if containsFold(g.Name, term) || containsFold(g.ID, term) {
			out = append(out, g)
		}
	}
	return out, nil
}

func (s *fakeGrantStore) DistinctCategories(ctx context.Context) ([]string, error) {
	s.vocabCalls++
	if s.failLookups {
		return nil, errors.New("store unavailable")
	}
	seen := make(map[string]struct{})
	var out []string
	for _, g := range s.grants {
		if g.Category == "" {
			continue
		}
		if _, dup := seen[g.Category]; dup {
			continue
		}
		seen[g.Category] = struct{}{}
		out = append(out, g.Category)
	}
	return out, nil
}

func (s *fakeGrantStore) DistinctAgencies(ctx context.Context) ([]string, error) {
	s.vocabCalls++
	if s.failLookups {
		return nil, errors.New("store unavailable")
	}
	seen := make(map[string]struct{})
	var out []string
	for _, g := range s.grants {
		if g.Agency == "" || g.Agency == domain.AgencyUnknown {
			continue
		}
		if _, dup := seen[g.Agency]; dup {
			continue
		}
		seen[g.Agency] = struct{}{}
		out = append(out, g.Agency)
	}
	return out, nil
}

// fakeSummaryStore serves summaries from a map; IDs listed in fail return a
// transport error.
type fakeSummaryStore struct {
	summaries map[string]*domain.GrantSummary
	fail      map[string]bool
}

func newFakeSummaryStore() *fakeSummaryStore {
	return &fakeSummaryStore{
		summaries: make(map[string]*domain.GrantSummary),
		fail:      make(map[string]bool),
	}
}

func (s *fakeSummaryStore) put(id string, summary domain.GrantSummary) {
	s.summaries[id] = &summary
}

func (s *fakeSummaryStore) GetSummary(ctx context.Context, grantID string) (*domain.GrantSummary, error) {
	if s.fail[grantID] {
		return nil, errors.New("storage unavailable")
	}
	return s.summaries[grantID], nil
}

// fakeRetriever returns canned passage hits.
type fakeRetriever struct {
	results []RetrievalResult
}

func (r *fakeRetriever) Retrieve(ctx context.Context, query string) []RetrievalResult {
	return r.results
}

// fakeJobStore records created jobs and applied patches.
type fakeJobStore struct {
	mu        sync.Mutex
	created   []*domain.SearchJob
	patches   []repository.JobPatch
	createErr error
}

func (s *fakeJobStore) Create(ctx context.Context, job *domain.SearchJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	s.created = append(s.created, job)
	return nil
}

func (s *fakeJobStore) Merge(ctx context.Context, jobID string, patch repository.JobPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patches = append(s.patches, patch)
	return nil
}

func (s *fakeJobStore) Get(ctx context.Context, jobID string) (*domain.SearchJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, job := range s.created {
		if job.JobID == jobID {
			return job, nil
		}
	}
	return nil, errors.New("record not found")
}

func (s *fakeJobStore) lastPatch() *repository.JobPatch {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.patches) == 0 {
		return nil
	}
	p := s.patches[len(s.patches)-1]
	return &p
}

// fakeSemantic implements SemanticProcessor with canned candidates. When
// block is set, it waits for the context to expire first.
type fakeSemantic struct {
	candidates []domain.GrantCandidate
	err        error
	block      bool
}

func (f *fakeSemantic) Process(ctx context.Context, query string, filters domain.FilterSet, alreadyShown map[string]struct{}) ([]domain.GrantCandidate, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.GrantCandidate
	for _, c := range f.candidates {
		if _, seen := alreadyShown[c.GrantID]; seen {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// fakeImmediate implements ImmediateSearcher with a fixed result.
type fakeImmediate struct {
	candidates  []domain.GrantCandidate
	usedFilters bool
}

func (f *fakeImmediate) Search(ctx context.Context, query string, filters domain.FilterSet) ([]domain.GrantCandidate, bool) {
	return f.candidates, f.usedFilters
}

// staticVocab implements VocabProvider without a backing store.
type staticVocab struct {
	categories []string
	agencies   []string
	calls      int
}

func (v *staticVocab) Get(ctx context.Context, kind VocabKind) []string {
	v.calls++
	if kind == VocabAgency {
		return v.agencies
	}
	return v.categories
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
