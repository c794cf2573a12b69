package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/grantwell/grantwell/internal/domain"
	"gorm.io/gorm"
)

// JobRepository persists search job lifecycle records.
type JobRepository struct {
	db *gorm.DB
}

// NewJobRepository creates a new JobRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *JobRepository: repository instance bound to db.
func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// JobPatch describes a partial update to a search job. Only non-nil fields
// are written, which lets the phase-1 and phase-2 writers update disjoint
// columns without a read-modify-write race on the whole record.
type JobPatch struct {
	Status         *domain.JobStatus
	FilteredGrants *domain.CandidateList
	RAGGrants      *domain.CandidateList
	RAGStatus      *domain.RAGStatus
	RAGError       *string
	CompletedAt    *time.Time
}

// Create writes a full job record.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - job: job record to persist; ExpiresAt must already be set.
// Returns:
//   - error: non-nil if the insert fails.
func (r *JobRepository) Create(ctx context.Context, job *domain.SearchJob) error {
	return r.db.WithContext(ctx).Create(job).Error
}

// Merge applies a partial update to the job record, leaving all columns not
// named in the patch untouched. Merges are idempotent and order-tolerant:
// a phase-2 completion merge is never lost to a phase-1 write.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - jobID: job identifier.
//   - patch: fields to update.
// Returns:
//   - error: non-nil if the update fails.
func (r *JobRepository) Merge(ctx context.Context, jobID string, patch JobPatch) error {
	updates := make(map[string]interface{})
	if patch.Status != nil {
		updates["status"] = *patch.Status
	}
	if patch.FilteredGrants != nil {
		updates["filtered_grants"] = *patch.FilteredGrants
	}
	if patch.RAGGrants != nil {
		updates["rag_grants"] = *patch.RAGGrants
	}
	if patch.RAGStatus != nil {
		updates["rag_status"] = *patch.RAGStatus
	}
	if patch.RAGError != nil {
		updates["rag_error"] = *patch.RAGError
	}
	if patch.CompletedAt != nil {
		updates["completed_at"] = *patch.CompletedAt
	}
	if len(updates) == 0 {
		return nil
	}

	return r.db.WithContext(ctx).
		Model(&domain.SearchJob{}).
		Where("job_id = ?", jobID).
		Updates(updates).Error
}

// Get retrieves a job by ID. A record past its retention window reads as
// absent even if the janitor has not deleted it yet.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - jobID: job identifier.
// Returns:
//   - *domain.SearchJob: job record if found and unexpired.
//   - error: gorm.ErrRecordNotFound if absent or expired.
func (r *JobRepository) Get(ctx context.Context, jobID string) (*domain.SearchJob, error) {
	var job domain.SearchJob
	if err := r.db.WithContext(ctx).First(&job, "job_id = ?", jobID).Error; err != nil {
		return nil, err
	}
	if job.Expired(time.Now()) {
		return nil, gorm.ErrRecordNotFound
	}
	return &job, nil
}

// DeleteExpired removes job records whose retention window has passed.
// This is advisory cleanup, not a correctness dependency.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - now: cutoff time.
// Returns:
//   - int64: number of records removed.
//   - error: non-nil if the delete fails.
func (r *JobRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("expires_at < ?", now).
		Delete(&domain.SearchJob{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete expired jobs: %w", res.Error)
	}
	return res.RowsAffected, nil
}
