package domain

import "time"

// GrantStatus represents the lifecycle status of a grant record.
// Values include GrantStatusActive and GrantStatusArchived.
type GrantStatus string

const (
	GrantStatusActive   GrantStatus = "active"
	GrantStatusArchived GrantStatus = "archived"
)

// AgencyUnknown is the placeholder agency value excluded from the agency
// vocabulary and treated as blank by the metadata-completeness check.
const AgencyUnknown = "Unknown"

// Grant represents a funding opportunity (NOFO) in the structured store.
// The ID is the stable folder-like path segment under which the grant's
// documents live in the blob store.
type Grant struct {
	ID        string      `gorm:"type:text;primaryKey" json:"id"`
	Name      string      `gorm:"type:text;not null;index:idx_grants_name" json:"name"`
	Category  string      `gorm:"type:text;index:idx_grants_category" json:"category"`
	Agency    string      `gorm:"type:text;index:idx_grants_agency" json:"agency"`
	GrantType string      `gorm:"type:text" json:"grant_type"`
	Status    GrantStatus `gorm:"type:text;index:idx_grants_status;default:active" json:"status"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// TableName returns the database table name for Grant.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (Grant) TableName() string {
	return "grants"
}

// GrantSummary is the per-grant metadata document stored in the blob store
// at <grantID>/summary.json. Absence of the document is a normal outcome.
type GrantSummary struct {
	GrantName     string `json:"grant_name"`
	FundingAmount string `json:"funding_amount"`
	Deadline      string `json:"application_deadline"`
	GrantType     string `json:"grant_type,omitempty"`
	Status        string `json:"status"`
}

// IsArchived reports whether the summary marks the grant as archived.
func (s *GrantSummary) IsArchived() bool {
	return s != nil && s.Status == string(GrantStatusArchived)
}
