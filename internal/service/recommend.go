package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/grantwell/grantwell/internal/domain"
	"github.com/grantwell/grantwell/internal/logger"
	"github.com/grantwell/grantwell/internal/repository"
)

// ErrEmptyQuery is returned when a recommendation request has no query.
var ErrEmptyQuery = errors.New("query is required")

// Deferred phase-2 runs get their own budget, detached from the request
const ragWorkerTimeout = 60 * time.Second

// JobStore persists and patches search job records.
type JobStore interface {
	Create(ctx context.Context, job *domain.SearchJob) error
	Merge(ctx context.Context, jobID string, patch repository.JobPatch) error
	Get(ctx context.Context, jobID string) (*domain.SearchJob, error)
}

// ImmediateSearcher runs the structural phase of a request.
type ImmediateSearcher interface {
	Search(ctx context.Context, query string, filters domain.FilterSet) ([]domain.GrantCandidate, bool)
}

// SemanticProcessor runs the semantic phase of a request.
type SemanticProcessor interface {
	Process(ctx context.Context, query string, filters domain.FilterSet, alreadyShown map[string]struct{}) ([]domain.GrantCandidate, error)
}

// VocabProvider supplies corpus vocabularies for query classification.
type VocabProvider interface {
	Get(ctx context.Context, kind VocabKind) []string
}

// RecommendRequest is a recommendation query with optional explicit filters.
// Explicit preferences always win over query classification.
type RecommendRequest struct {
	Query           string
	UserPreferences *domain.FilterSet
}

// RecommendResponse is the combined result of both search phases.
type RecommendResponse struct {
	Grants        []domain.GrantCandidate `json:"grants"`
	JobID         string                  `json:"jobId"`
	SearchMethod  string                  `json:"searchMethod"`
	FilteredCount int                     `json:"filteredCount"`
	RAGCount      int                     `json:"ragCount"`
	RAGStatus     domain.RAGStatus        `json:"ragStatus"`
	Filters       domain.FilterSet        `json:"filters"`
}

// RAGTask describes a semantic phase run for one job, either inline during
// the request or deferred to the background queue.
type RAGTask struct {
	JobID      string
	Query      string
	Filters    domain.FilterSet
	ExcludeIDs []string
}

// RecommendationConfig holds orchestration settings.
type RecommendationConfig struct {
	// SoftTimeout bounds the inline semantic attempt before it is handed
	// to the background queue.
	SoftTimeout time.Duration
	JobTTL      time.Duration
	QueueSize   int
	Workers     int
}

// RecommendationService orchestrates the two-phase search: the immediate
// structural phase answers synchronously, the semantic phase completes
// inline when fast enough and finishes in the background otherwise, with
// progress tracked in the job store.
type RecommendationService struct {
	filterSearch ImmediateSearcher
	rag          SemanticProcessor
	vocab        VocabProvider
	jobs         JobStore
	cfg          RecommendationConfig

	tasks chan RAGTask
	wg    sync.WaitGroup
	once  sync.Once
}

// NewRecommendationService creates a new RecommendationService.
func NewRecommendationService(filterSearch ImmediateSearcher, rag SemanticProcessor, vocab VocabProvider, jobs JobStore, cfg RecommendationConfig) *RecommendationService {
	if cfg.SoftTimeout <= 0 {
		cfg.SoftTimeout = 15 * time.Second
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = time.Hour
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}

	return &RecommendationService{
		filterSearch: filterSearch,
		rag:          rag,
		vocab:        vocab,
		jobs:         jobs,
		cfg:          cfg,
		tasks:        make(chan RAGTask, cfg.QueueSize),
	}
}

// Recommend runs both phases for a query. The immediate phase always
// completes; the semantic phase gets the soft timeout and falls back to the
// background queue when it cannot finish in time. Job-store failures are
// logged and never fail the request.
// Parameters:
//   - ctx: request context.
//   - req: query and optional explicit filters.
// Returns:
//   - *RecommendResponse: combined, ordered results.
//   - error: ErrEmptyQuery for a blank query.
func (s *RecommendationService) Recommend(ctx context.Context, req RecommendRequest) (*RecommendResponse, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, ErrEmptyQuery
	}

	jobID := uuid.New().String()
	ctx = logger.SetJobID(ctx, jobID)

	filters := s.resolveFilters(ctx, req)

	filtered, usedFilters := s.filterSearch.Search(ctx, req.Query, filters)

	var prefs domain.FilterSet
	if req.UserPreferences != nil {
		prefs = *req.UserPreferences
	}

	// "partial" signals that structural filters produced a meaningful
	// phase-1 slice; an unfiltered search is just in progress
	status := domain.JobStatusInProgress
	if usedFilters {
		status = domain.JobStatusPartial
	}

	now := time.Now()
	job := &domain.SearchJob{
		JobID:           jobID,
		Status:          status,
		Query:           req.Query,
		UserPreferences: prefs,
		Filters:         filters,
		FilteredGrants:  domain.CandidateList(filtered),
		RAGStatus:       domain.RAGStatusPending,
		CreatedAt:       now,
		ExpiresAt:       now.Add(s.cfg.JobTTL),
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		// The response still carries phase-1 results; only polling is lost
		logger.CtxWarn(ctx, "Failed to persist search job: error=%v", err)
	}

	task := RAGTask{
		JobID:      jobID,
		Query:      req.Query,
		Filters:    filters,
		ExcludeIDs: domain.CandidateList(filtered).IDs(),
	}

	ragCtx, cancel := context.WithTimeout(ctx, s.cfg.SoftTimeout)
	ragGrants, err := s.runRAGPhase(ragCtx, task)
	cancel()

	ragStatus := domain.RAGStatusCompleted
	if err != nil {
		ragGrants = nil
		if errors.Is(err, context.DeadlineExceeded) {
			ragStatus = domain.RAGStatusPending
			if !s.Enqueue(task) {
				logger.CtxWarn(ctx, "Semantic queue full, abandoning deferred phase: job_id=%s", jobID)
				ragStatus = s.markRAGError(ctx, jobID, errors.New("semantic phase queue is full"))
			}
		} else {
			ragStatus = s.markRAGError(ctx, jobID, err)
		}
	}

	return &RecommendResponse{
		Grants:        AssembleRecommendations(filtered, ragGrants),
		JobID:         jobID,
		SearchMethod:  "hybrid",
		FilteredCount: len(filtered),
		RAGCount:      len(ragGrants),
		RAGStatus:     ragStatus,
		Filters:       filters,
	}, nil
}

// resolveFilters applies the precedence rule: explicit user preferences win
// outright and skip classification entirely.
func (s *RecommendationService) resolveFilters(ctx context.Context, req RecommendRequest) domain.FilterSet {
	if req.UserPreferences != nil && !req.UserPreferences.IsZero() {
		return *req.UserPreferences
	}

	return ClassifyQuery(req.Query, Vocabularies{
		Agencies:   s.vocab.Get(ctx, VocabAgency),
		Categories: s.vocab.Get(ctx, VocabCategory),
	})
}

// runRAGPhase executes the semantic phase for a task and records its
// outcome in the job store. A context error is returned so the caller can
// decide between deferral and failure.
func (s *RecommendationService) runRAGPhase(ctx context.Context, task RAGTask) ([]domain.GrantCandidate, error) {
	inProgress := domain.RAGStatusInProgress
	if err := s.jobs.Merge(ctx, task.JobID, repository.JobPatch{RAGStatus: &inProgress}); err != nil {
		logger.CtxWarn(ctx, "Failed to mark semantic phase in progress: job_id=%s, error=%v", task.JobID, err)
	}

	exclude := make(map[string]struct{}, len(task.ExcludeIDs))
	for _, id := range task.ExcludeIDs {
		exclude[id] = struct{}{}
	}

	ragGrants, err := s.rag.Process(ctx, task.Query, task.Filters, exclude)
	if err != nil {
		return nil, err
	}

	completed := domain.JobStatusCompleted
	ragCompleted := domain.RAGStatusCompleted
	list := domain.CandidateList(ragGrants)
	completedAt := time.Now()
	patch := repository.JobPatch{
		Status:      &completed,
		RAGGrants:   &list,
		RAGStatus:   &ragCompleted,
		CompletedAt: &completedAt,
	}
	if err := s.jobs.Merge(ctx, task.JobID, patch); err != nil {
		logger.CtxWarn(ctx, "Failed to record semantic results: job_id=%s, error=%v", task.JobID, err)
	}

	return ragGrants, nil
}

// markRAGError records a terminal semantic-phase failure on the job.
func (s *RecommendationService) markRAGError(ctx context.Context, jobID string, cause error) domain.RAGStatus {
	status := domain.JobStatusError
	ragStatus := domain.RAGStatusError
	msg := cause.Error()
	completedAt := time.Now()
	patch := repository.JobPatch{
		Status:      &status,
		RAGStatus:   &ragStatus,
		RAGError:    &msg,
		CompletedAt: &completedAt,
	}
	if err := s.jobs.Merge(context.WithoutCancel(ctx), jobID, patch); err != nil {
		logger.CtxWarn(ctx, "Failed to record semantic failure: job_id=%s, error=%v", jobID, err)
	}
	return ragStatus
}

// ContinueRAG runs the semantic phase for a job on behalf of a caller that
// already holds the phase-1 results, such as the async continuation
// endpoint. Unlike the inline attempt it has no soft timeout.
// Parameters:
//   - ctx: caller context.
//   - task: job, query, filters, and IDs to exclude.
// Returns:
//   - int: number of semantic candidates recorded.
//   - error: non-nil if the phase was cancelled or the job ID is blank.
func (s *RecommendationService) ContinueRAG(ctx context.Context, task RAGTask) (int, error) {
	if task.JobID == "" {
		return 0, errors.New("jobId is required")
	}
	if strings.TrimSpace(task.Query) == "" {
		return 0, ErrEmptyQuery
	}

	ctx = logger.SetJobID(ctx, task.JobID)
	ragGrants, err := s.runRAGPhase(ctx, task)
	if err != nil {
		s.markRAGError(ctx, task.JobID, err)
		return 0, err
	}
	return len(ragGrants), nil
}

// GetJob returns the job record for polling.
func (s *RecommendationService) GetJob(ctx context.Context, jobID string) (*domain.SearchJob, error) {
	return s.jobs.Get(ctx, jobID)
}

// Enqueue hands a task to the background queue without blocking.
// Returns false when the queue is full.
func (s *RecommendationService) Enqueue(task RAGTask) bool {
	select {
	case s.tasks <- task:
		return true
	default:
		return false
	}
}

// StartWorkers launches the background workers that drain the deferred
// semantic queue. Safe to call once; Stop shuts the pool down.
func (s *RecommendationService) StartWorkers() {
	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
}

func (s *RecommendationService) worker(id int) {
	defer s.wg.Done()

	for task := range s.tasks {
		ctx, cancel := context.WithTimeout(context.Background(), ragWorkerTimeout)
		ctx = logger.SetJobID(ctx, task.JobID)

		if _, err := s.runRAGPhase(ctx, task); err != nil {
			s.markRAGError(ctx, task.JobID, err)
			logger.CtxWarn(ctx, "Deferred semantic phase failed: worker=%d, error=%v", id, err)
		}
		cancel()
	}
}

// Stop closes the queue and waits for in-flight deferred work to finish.
func (s *RecommendationService) Stop() {
	s.once.Do(func() {
		close(s.tasks)
	})
	s.wg.Wait()
}
