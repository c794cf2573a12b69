package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/grantwell/grantwell/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GrantRepository handles grant data operations against the structured store.
type GrantRepository struct {
	db *gorm.DB
}

// NewGrantRepository creates a new GrantRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *GrantRepository: repository instance bound to db.
func NewGrantRepository(db *gorm.DB) *GrantRepository {
	return &GrantRepository{db: db}
}

// Upsert creates or updates a grant record keyed by ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - grant: grant record to create or update.
// Returns:
//   - error: non-nil if the upsert fails.
func (r *GrantRepository) Upsert(ctx context.Context, grant *domain.Grant) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(grant).Error
}

// GetByID retrieves a grant by its ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: grant ID.
// Returns:
//   - *domain.Grant: grant record if found.
//   - error: non-nil if lookup fails.
func (r *GrantRepository) GetByID(ctx context.Context, id string) (*domain.Grant, error) {
	var grant domain.Grant
	if err := r.db.WithContext(ctx).First(&grant, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &grant, nil
}

// FindByCategory retrieves grants whose category field equals the value.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - category: exact category value.
// Returns:
//   - []domain.Grant: matching grant records.
//   - error: non-nil if the query fails.
func (r *GrantRepository) FindByCategory(ctx context.Context, category string) ([]domain.Grant, error) {
	var grants []domain.Grant
	if err := r.db.WithContext(ctx).
		Where("category = ?", category).
		Find(&grants).Error; err != nil {
		return nil, fmt.Errorf("failed to find grants by category: %w", err)
	}
	return grants, nil
}

// FindByAgency retrieves grants whose agency field equals the value.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - agency: exact agency value.
// Returns:
//   - []domain.Grant: matching grant records.
//   - error: non-nil if the query fails.
func (r *GrantRepository) FindByAgency(ctx context.Context, agency string) ([]domain.Grant, error) {
	var grants []domain.Grant
	if err := r.db.WithContext(ctx).
		Where("agency = ?", agency).
		Find(&grants).Error; err != nil {
		return nil, fmt.Errorf("failed to find grants by agency: %w", err)
	}
	return grants, nil
}

// SearchByNameOrID retrieves grants whose name or ID contains the term,
// case-insensitive.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - term: substring to match.
// Returns:
//   - []domain.Grant: matching grant records.
//   - error: non-nil if the query fails.
func (r *GrantRepository) SearchByNameOrID(ctx context.Context, term string) ([]domain.Grant, error) {
	pattern := "%" + strings.ToLower(term) + "%"
	var grants []domain.Grant
	if err := r.db.WithContext(ctx).
		Where("LOWER(name) LIKE ? OR LOWER(id) LIKE ?", pattern, pattern).
		Find(&grants).Error; err != nil {
		return nil, fmt.Errorf("failed to search grants by name or id: %w", err)
	}
	return grants, nil
}

// DistinctCategories retrieves all distinct non-empty category values.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - []string: distinct category names.
//   - error: non-nil if the query fails.
func (r *GrantRepository) DistinctCategories(ctx context.Context) ([]string, error) {
	var categories []string
	if err := r.db.WithContext(ctx).
		Model(&domain.Grant{}).
		Where("category <> ''").
		Distinct("category").
		Pluck("category", &categories).Error; err != nil {
		return nil, fmt.Errorf("failed to get distinct categories: %w", err)
	}
	return categories, nil
}

// DistinctAgencies retrieves all distinct non-empty agency values,
// excluding the Unknown placeholder.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - []string: distinct agency names.
//   - error: non-nil if the query fails.
func (r *GrantRepository) DistinctAgencies(ctx context.Context) ([]string, error) {
	var agencies []string
	if err := r.db.WithContext(ctx).
		Model(&domain.Grant{}).
		Where("agency <> ? AND agency <> ''", domain.AgencyUnknown).
		Distinct("agency").
		Pluck("agency", &agencies).Error; err != nil {
		return nil, fmt.Errorf("failed to get distinct agencies: %w", err)
	}
	return agencies, nil
}

// List retrieves grants with pagination.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - limit: maximum number of records to return.
//   - offset: number of records to skip.
// Returns:
//   - []domain.Grant: grant records ordered by creation time descending.
//   - error: non-nil if the query fails.
func (r *GrantRepository) List(ctx context.Context, limit, offset int) ([]domain.Grant, error) {
	var grants []domain.Grant
	if err := r.db.WithContext(ctx).
		Limit(limit).
		Offset(offset).
		Order("created_at DESC").
		Find(&grants).Error; err != nil {
		return nil, err
	}
	return grants, nil
}

// Count returns the total number of grant records.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - int64: number of records.
//   - error: non-nil if the query fails.
func (r *GrantRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.Grant{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Delete removes a grant by ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: grant ID to delete.
// Returns:
//   - error: non-nil if the delete fails.
func (r *GrantRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&domain.Grant{}, "id = ?", id).Error
}
