package domain

import "time"

// JobStatus represents the overall status of a search job.
// "partial" means phase 1 completed with structural filters active and
// phase 2 still outstanding.
type JobStatus string

const (
	JobStatusPartial    JobStatus = "partial"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusError      JobStatus = "error"
)

// RAGStatus represents the status of the semantic-retrieval phase.
type RAGStatus string

const (
	RAGStatusPending    RAGStatus = "pending"
	RAGStatusInProgress RAGStatus = "in_progress"
	RAGStatusCompleted  RAGStatus = "completed"
	RAGStatusError      RAGStatus = "error"
)

// SearchJob is the persisted record tracking a single search request's
// two-phase completion. Fields are additively merged on update: phase 1 and
// phase 2 own disjoint columns, so their writes commute regardless of order.
type SearchJob struct {
	JobID           string        `gorm:"column:job_id;type:text;primaryKey" json:"jobId"`
	Status          JobStatus     `gorm:"column:status;type:text" json:"status"`
	Query           string        `gorm:"column:query;type:text" json:"query"`
	UserPreferences FilterSet     `gorm:"column:user_preferences;type:text" json:"userPreferences"`
	Filters         FilterSet     `gorm:"column:filters;type:text" json:"filters"`
	FilteredGrants  CandidateList `gorm:"column:filtered_grants;type:text" json:"filteredGrants"`
	RAGGrants       CandidateList `gorm:"column:rag_grants;type:text" json:"ragGrants"`
	RAGStatus       RAGStatus     `gorm:"column:rag_status;type:text" json:"ragStatus"`
	RAGError        string        `gorm:"column:rag_error;type:text" json:"ragError,omitempty"`
	CreatedAt       time.Time     `gorm:"column:created_at" json:"createdAt"`
	CompletedAt     *time.Time    `gorm:"column:completed_at" json:"completedAt,omitempty"`
	ExpiresAt       time.Time     `gorm:"column:expires_at;index:idx_search_jobs_expiry" json:"ttl"`
}

// TableName returns the database table name for SearchJob.
func (SearchJob) TableName() string {
	return "search_jobs"
}

// Expired reports whether the job's retention window has passed at now.
// Expiry is advisory cleanup: an expired record reads as absent, but no
// synchronous response path depends on post-expiry reads.
func (j *SearchJob) Expired(now time.Time) bool {
	return now.After(j.ExpiresAt)
}
