package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/grantwell/grantwell/internal/domain"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := db.AutoMigrate(&domain.Grant{}, &domain.SearchJob{}); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db
}

func newTestJob(id string, ttl time.Duration) *domain.SearchJob {
	now := time.Now()
	return &domain.SearchJob{
		JobID:     id,
		Status:    domain.JobStatusPartial,
		Query:     "forestry grants",
		Filters:   domain.FilterSet{Category: "Forestry"},
		RAGStatus: domain.RAGStatusPending,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

func TestJobRepository_MergeIsPartial(t *testing.T) {
	repo := NewJobRepository(newTestDB(t))
	ctx := context.Background()

	job := newTestJob("job-1", time.Hour)
	job.FilteredGrants = domain.CandidateList{
		{GrantID: "g1", Name: "Grant One", Score: 100, Provenance: domain.ProvenanceCategory},
	}
	if err := repo.Create(ctx, job); err != nil {
		t.Fatalf("failed to create job: %v", err)
	}

	ragGrants := domain.CandidateList{
		{GrantID: "g2", Name: "Grant Two", Score: 81, Provenance: domain.ProvenanceRAG},
	}
	ragStatus := domain.RAGStatusCompleted
	status := domain.JobStatusCompleted
	completedAt := time.Now()
	err := repo.Merge(ctx, "job-1", JobPatch{
		Status:      &status,
		RAGGrants:   &ragGrants,
		RAGStatus:   &ragStatus,
		CompletedAt: &completedAt,
	})
	if err != nil {
		t.Fatalf("failed to merge: %v", err)
	}

	got, err := repo.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("failed to get job: %v", err)
	}

	// Columns not named in the patch keep their phase-1 values
	if len(got.FilteredGrants) != 1 || got.FilteredGrants[0].GrantID != "g1" {
		t.Errorf("phase-1 grants lost by merge: %+v", got.FilteredGrants)
	}
	if got.Query != "forestry grants" || got.Filters.Category != "Forestry" {
		t.Errorf("request fields lost by merge: %+v", got)
	}
	if got.Status != domain.JobStatusCompleted || got.RAGStatus != domain.RAGStatusCompleted {
		t.Errorf("patched fields not applied: status=%s ragStatus=%s", got.Status, got.RAGStatus)
	}
	if len(got.RAGGrants) != 1 || got.RAGGrants[0].GrantID != "g2" {
		t.Errorf("semantic grants not recorded: %+v", got.RAGGrants)
	}
	if got.CompletedAt == nil {
		t.Error("completion timestamp not recorded")
	}
}

func TestJobRepository_MergesCommute(t *testing.T) {
	repo := NewJobRepository(newTestDB(t))
	ctx := context.Background()

	if err := repo.Create(ctx, newTestJob("job-1", time.Hour)); err != nil {
		t.Fatalf("failed to create job: %v", err)
	}

	// Phase 2 lands before a late phase-1 column write
	ragStatus := domain.RAGStatusCompleted
	ragGrants := domain.CandidateList{{GrantID: "g2", Score: 70, Provenance: domain.ProvenanceRAG}}
	if err := repo.Merge(ctx, "job-1", JobPatch{RAGStatus: &ragStatus, RAGGrants: &ragGrants}); err != nil {
		t.Fatalf("failed to merge phase 2: %v", err)
	}

	filtered := domain.CandidateList{{GrantID: "g1", Score: 100, Provenance: domain.ProvenanceAgency}}
	if err := repo.Merge(ctx, "job-1", JobPatch{FilteredGrants: &filtered}); err != nil {
		t.Fatalf("failed to merge phase 1: %v", err)
	}

	got, err := repo.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("failed to get job: %v", err)
	}
	if len(got.RAGGrants) != 1 || got.RAGStatus != domain.RAGStatusCompleted {
		t.Errorf("phase-2 write lost: %+v", got)
	}
	if len(got.FilteredGrants) != 1 {
		t.Errorf("phase-1 write lost: %+v", got)
	}
}

func TestJobRepository_EmptyPatchIsNoop(t *testing.T) {
	repo := NewJobRepository(newTestDB(t))
	ctx := context.Background()

	if err := repo.Create(ctx, newTestJob("job-1", time.Hour)); err != nil {
		t.Fatalf("failed to create job: %v", err)
	}
	if err := repo.Merge(ctx, "job-1", JobPatch{}); err != nil {
		t.Errorf("empty patch should be a no-op, got %v", err)
	}
}

func TestJobRepository_ExpiredJobReadsAsAbsent(t *testing.T) {
	repo := NewJobRepository(newTestDB(t))
	ctx := context.Background()

	if err := repo.Create(ctx, newTestJob("stale", -time.Minute)); err != nil {
		t.Fatalf("failed to create job: %v", err)
	}

	_, err := repo.Get(ctx, "stale")
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("expected expired job to read as absent, got %v", err)
	}
}

func TestJobRepository_DeleteExpired(t *testing.T) {
	repo := NewJobRepository(newTestDB(t))
	ctx := context.Background()

	if err := repo.Create(ctx, newTestJob("stale", -time.Minute)); err != nil {
		t.Fatalf("failed to create job: %v", err)
	}
	if err := repo.Create(ctx, newTestJob("fresh", time.Hour)); err != nil {
		t.Fatalf("failed to create job: %v", err)
	}

	removed, err := repo.DeleteExpired(ctx, time.Now())
	if err != nil {
		t.Fatalf("failed to delete expired: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 removed job, got %d", removed)
	}

	if _, err := repo.Get(ctx, "fresh"); err != nil {
		t.Errorf("fresh job should survive cleanup: %v", err)
	}
}
