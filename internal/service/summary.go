package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/grantwell/grantwell/internal/domain"
	"github.com/grantwell/grantwell/internal/logger"
	"github.com/grantwell/grantwell/internal/storage"
)

// SummaryService reads per-grant summary documents from the document bucket.
// Each grant folder holds a summary.json with the display metadata used to
// enrich candidates before they are returned.
type SummaryService struct {
	storage storage.ObjectStorage
}

// NewSummaryService creates a new SummaryService.
func NewSummaryService(store storage.ObjectStorage) *SummaryService {
	return &SummaryService{storage: store}
}

func summaryKey(grantID string) string {
	return fmt.Sprintf("%s/summary.json", grantID)
}

// GetSummary fetches and parses the summary document for a grant. Absence
// is a normal outcome, not an error: a grant with no summary is simply
// excluded from results. A malformed document is treated the same way.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - grantID: grant folder name in the document bucket.
// Returns:
//   - *domain.GrantSummary: parsed summary, or nil when absent or unreadable.
//   - error: non-nil only for transport failures other than absence.
func (s *SummaryService) GetSummary(ctx context.Context, grantID string) (*domain.GrantSummary, error) {
	body, err := s.storage.Download(ctx, summaryKey(grantID))
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch summary for %s: %w", grantID, err)
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("failed to read summary for %s: %w", grantID, err)
	}

	var summary domain.GrantSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		logger.CtxWarn(ctx, "Skipping malformed summary: grant_id=%s, error=%v", grantID, err)
		return nil, nil
	}

	return &summary, nil
}

// PutSummary writes the summary document for a grant. Used by ingest and
// the admin upsert path.
func (s *SummaryService) PutSummary(ctx context.Context, grantID string, summary *domain.GrantSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to encode summary for %s: %w", grantID, err)
	}
	return s.storage.Upload(ctx, summaryKey(grantID), bytes.NewReader(data), int64(len(data)), "application/json")
}
