package service

import (
	"sort"

	"github.com/grantwell/grantwell/internal/domain"
)

// AssembleRecommendations merges the two phases into the final ordering:
// structural matches strictly before semantic ones, and descending score
// within each group. The sort is stable, so ties keep their phase order.
// Parameters:
//   - filtered: immediate-phase candidates.
//   - rag: semantic-phase candidates, already deduplicated against filtered.
// Returns:
//   - []domain.GrantCandidate: combined, ordered list.
func AssembleRecommendations(filtered, rag []domain.GrantCandidate) []domain.GrantCandidate {
	combined := make([]domain.GrantCandidate, 0, len(filtered)+len(rag))
	combined = append(combined, filtered...)
	combined = append(combined, rag...)

	sort.SliceStable(combined, func(i, j int) bool {
		si, sj := combined[i].Provenance.IsStructural(), combined[j].Provenance.IsStructural()
		if si != sj {
			return si
		}
		return combined[i].Score > combined[j].Score
	})

	return combined
}
