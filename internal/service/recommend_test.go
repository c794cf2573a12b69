package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/grantwell/grantwell/internal/domain"
)

func testConfig() RecommendationConfig {
	return RecommendationConfig{
		SoftTimeout: 200 * time.Millisecond,
		JobTTL:      time.Hour,
		QueueSize:   4,
		Workers:     1,
	}
}

func structuralCandidate(id string, score int) domain.GrantCandidate {
	return domain.GrantCandidate{GrantID: id, Name: id, Score: score, Provenance: domain.ProvenanceCategory, GrantType: "federal"}
}

func ragCandidate(id string, score int) domain.GrantCandidate {
	return domain.GrantCandidate{GrantID: id, Name: id, Score: score, Provenance: domain.ProvenanceRAG, GrantType: "federal"}
}

func TestRecommend_EmptyQuery(t *testing.T) {
	svc := NewRecommendationService(&fakeImmediate{}, &fakeSemantic{}, &staticVocab{}, &fakeJobStore{}, testConfig())

	_, err := svc.Recommend(context.Background(), RecommendRequest{Query: "  "})
	if !errors.Is(err, ErrEmptyQuery) {
		t.Errorf("expected ErrEmptyQuery, got %v", err)
	}
}

func TestRecommend_InlineCompletion(t *testing.T) {
	jobs := &fakeJobStore{}
	svc := NewRecommendationService(
		&fakeImmediate{candidates: []domain.GrantCandidate{structuralCandidate("f1", 100)}, usedFilters: true},
		&fakeSemantic{candidates: []domain.GrantCandidate{ragCandidate("r1", 80)}},
		&staticVocab{categories: []string{"Forestry"}},
		jobs,
		testConfig(),
	)

	resp, err := svc.Recommend(context.Background(), RecommendRequest{Query: "forestry"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resp.SearchMethod != "hybrid" {
		t.Errorf("expected hybrid search method, got %q", resp.SearchMethod)
	}
	if resp.JobID == "" {
		t.Error("expected a job ID")
	}
	if resp.RAGStatus != domain.RAGStatusCompleted {
		t.Errorf("expected completed ragStatus, got %s", resp.RAGStatus)
	}
	if resp.FilteredCount != 1 || resp.RAGCount != 1 {
		t.Errorf("expected counts 1/1, got %d/%d", resp.FilteredCount, resp.RAGCount)
	}
	if len(resp.Grants) != 2 || resp.Grants[0].GrantID != "f1" || resp.Grants[1].GrantID != "r1" {
		t.Errorf("expected structural before semantic, got %+v", resp.Grants)
	}
	if resp.Filters.Category != "Forestry" {
		t.Errorf("expected classified category filter, got %+v", resp.Filters)
	}

	if len(jobs.created) != 1 {
		t.Fatalf("expected 1 job record, got %d", len(jobs.created))
	}
	job := jobs.created[0]
	if job.Status != domain.JobStatusPartial {
		t.Errorf("expected initial job status partial, got %s", job.Status)
	}
	if !job.ExpiresAt.After(job.CreatedAt) {
		t.Error("expected a retention window on the job record")
	}

	last := jobs.lastPatch()
	if last == nil || last.RAGStatus == nil || *last.RAGStatus != domain.RAGStatusCompleted {
		t.Errorf("expected final patch to complete the semantic phase, got %+v", last)
	}
	if last.RAGGrants == nil || len(*last.RAGGrants) != 1 {
		t.Errorf("expected semantic grants recorded on the job, got %+v", last)
	}
	if last.CompletedAt == nil {
		t.Error("expected completion timestamp on the final patch")
	}
}

func TestRecommend_NoDuplicateGrantsAcrossPhases(t *testing.T) {
	jobs := &fakeJobStore{}
	svc := NewRecommendationService(
		&fakeImmediate{candidates: []domain.GrantCandidate{structuralCandidate("shared", 100)}},
		&fakeSemantic{candidates: []domain.GrantCandidate{ragCandidate("shared", 95), ragCandidate("extra", 70)}},
		&staticVocab{},
		jobs,
		testConfig(),
	)

	resp, err := svc.Recommend(context.Background(), RecommendRequest{Query: "anything"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	seen := make(map[string]bool)
	for _, c := range resp.Grants {
		if seen[c.GrantID] {
			t.Fatalf("grant %s returned twice", c.GrantID)
		}
		seen[c.GrantID] = true
	}
	if !seen["shared"] || !seen["extra"] {
		t.Errorf("expected shared and extra, got %+v", resp.Grants)
	}
	for _, c := range resp.Grants {
		if c.GrantID == "shared" && c.Provenance != domain.ProvenanceCategory {
			t.Errorf("expected the structural copy of shared to win, got %s", c.Provenance)
		}
	}
}

func TestRecommend_ExplicitPreferencesSkipClassification(t *testing.T) {
	vocab := &staticVocab{categories: []string{"Forestry"}}
	svc := NewRecommendationService(
		&fakeImmediate{usedFilters: true},
		&fakeSemantic{},
		vocab,
		&fakeJobStore{},
		testConfig(),
	)

	prefs := &domain.FilterSet{Agency: "EPA"}
	resp, err := svc.Recommend(context.Background(), RecommendRequest{Query: "forestry", UserPreferences: prefs})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vocab.calls != 0 {
		t.Errorf("expected classification to be skipped, vocabulary fetched %d times", vocab.calls)
	}
	if resp.Filters.Agency != "EPA" || resp.Filters.Category != "" {
		t.Errorf("expected explicit preferences to win, got %+v", resp.Filters)
	}
}

func TestRecommend_SemanticFailureDegradesToStructuralOnly(t *testing.T) {
	jobs := &fakeJobStore{}
	svc := NewRecommendationService(
		&fakeImmediate{candidates: []domain.GrantCandidate{structuralCandidate("f1", 100)}},
		&fakeSemantic{err: context.Canceled},
		&staticVocab{},
		jobs,
		testConfig(),
	)

	resp, err := svc.Recommend(context.Background(), RecommendRequest{Query: "anything"})
	if err != nil {
		t.Fatalf("expected graceful degradation, got %v", err)
	}
	if resp.RAGStatus != domain.RAGStatusError {
		t.Errorf("expected error ragStatus, got %s", resp.RAGStatus)
	}
	if resp.RAGCount != 0 || len(resp.Grants) != 1 {
		t.Errorf("expected structural-only results, got %+v", resp)
	}

	last := jobs.lastPatch()
	if last == nil || last.RAGError == nil || *last.RAGError == "" {
		t.Errorf("expected failure recorded on the job, got %+v", last)
	}
}

// slowThenFastSemantic blocks on its first call and answers instantly after,
// standing in for a semantic phase that outlives the inline budget.
type slowThenFastSemantic struct {
	candidates []domain.GrantCandidate
	calls      int
}

func (f *slowThenFastSemantic) Process(ctx context.Context, query string, filters domain.FilterSet, alreadyShown map[string]struct{}) ([]domain.GrantCandidate, error) {
	f.calls++
	if f.calls == 1 {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.candidates, nil
}

func TestRecommend_SoftTimeoutDefersToBackgroundQueue(t *testing.T) {
	jobs := &fakeJobStore{}
	semantic := &slowThenFastSemantic{candidates: []domain.GrantCandidate{ragCandidate("r1", 75)}}

	cfg := testConfig()
	cfg.SoftTimeout = 20 * time.Millisecond

	svc := NewRecommendationService(
		&fakeImmediate{candidates: []domain.GrantCandidate{structuralCandidate("f1", 100)}},
		semantic,
		&staticVocab{},
		jobs,
		cfg,
	)
	svc.StartWorkers()
	defer svc.Stop()

	resp, err := svc.Recommend(context.Background(), RecommendRequest{Query: "anything"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.RAGStatus != domain.RAGStatusPending {
		t.Errorf("expected pending ragStatus after soft timeout, got %s", resp.RAGStatus)
	}
	if len(resp.Grants) != 1 || resp.Grants[0].GrantID != "f1" {
		t.Errorf("expected immediate results only, got %+v", resp.Grants)
	}

	// The background worker should finish the job shortly after
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		last := jobs.lastPatch()
		if last != nil && last.RAGStatus != nil && *last.RAGStatus == domain.RAGStatusCompleted {
			if last.RAGGrants == nil || len(*last.RAGGrants) != 1 {
				t.Fatalf("expected semantic grants on completion patch, got %+v", last)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("background worker never completed the deferred semantic phase")
}

func TestContinueRAG(t *testing.T) {
	jobs := &fakeJobStore{}
	svc := NewRecommendationService(
		&fakeImmediate{},
		&fakeSemantic{candidates: []domain.GrantCandidate{ragCandidate("r1", 80), ragCandidate("shown", 90)}},
		&staticVocab{},
		jobs,
		testConfig(),
	)

	count, err := svc.ContinueRAG(context.Background(), RAGTask{
		JobID:      "job-1",
		Query:      "forestry",
		ExcludeIDs: []string{"shown"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 semantic grant after exclusion, got %d", count)
	}

	last := jobs.lastPatch()
	if last == nil || last.Status == nil || *last.Status != domain.JobStatusCompleted {
		t.Errorf("expected job completion patch, got %+v", last)
	}
}

func TestContinueRAG_RequiresJobID(t *testing.T) {
	svc := NewRecommendationService(&fakeImmediate{}, &fakeSemantic{}, &staticVocab{}, &fakeJobStore{}, testConfig())

	if _, err := svc.ContinueRAG(context.Background(), RAGTask{Query: "forestry"}); err == nil {
		t.Error("expected error for missing job ID")
	}
}

func TestRecommend_JobStoreFailureDoesNotFailRequest(t *testing.T) {
	jobs := &fakeJobStore{createErr: errors.New("db down")}
	svc := NewRecommendationService(
		&fakeImmediate{candidates: []domain.GrantCandidate{structuralCandidate("f1", 100)}},
		&fakeSemantic{},
		&staticVocab{},
		jobs,
		testConfig(),
	)

	resp, err := svc.Recommend(context.Background(), RecommendRequest{Query: "anything"})
	if err != nil {
		t.Fatalf("expected request to survive job-store outage, got %v", err)
	}
	if len(resp.Grants) != 1 {
		t.Errorf("expected structural results, got %+v", resp.Grants)
	}
}
