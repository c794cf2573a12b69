package service

import (
	"strings"

	"github.com/grantwell/grantwell/internal/domain"
)

// Vocabularies holds the distinct corpus values a query is classified against.
type Vocabularies struct {
	Agencies   []string
	Categories []string
}

// ClassifyQuery derives a structural filter from a free-text query by
// matching it against the corpus vocabularies. Agency is consulted before
// category, exact matches before containment, and only the first match per
// kind is kept. The result may be empty; classification never fails.
// Parameters:
//   - query: raw user query.
//   - vocab: distinct agency and category values currently in the corpus.
// Returns:
//   - domain.FilterSet: detected filters, possibly empty.
func ClassifyQuery(query string, vocab Vocabularies) domain.FilterSet {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return domain.FilterSet{}
	}

	filters := domain.FilterSet{
		Agency:   matchExact(q, vocab.Agencies),
		Category: matchExact(q, vocab.Categories),
	}
	if !filters.IsZero() {
		return filters
	}

	if agency := matchContains(q, vocab.Agencies); agency != "" {
		return domain.FilterSet{Agency: agency}
	}
	if category := matchContains(q, vocab.Categories); category != "" {
		return domain.FilterSet{Category: category}
	}

	return domain.FilterSet{}
}

func matchExact(q string, values []string) string {
	for _, v := range values {
		if strings.ToLower(strings.TrimSpace(v)) == q {
			return v
		}
	}
	return ""
}

// matchContains checks containment in both directions, so "forestry grants"
// finds the "Forestry" category and "epa" finds "EPA Region 1".
func matchContains(q string, values []string) string {
	for _, v := range values {
		lv := strings.ToLower(strings.TrimSpace(v))
		if lv == "" {
			continue
		}
		if strings.Contains(q, lv) || strings.Contains(lv, q) {
			return v
		}
	}
	return ""
}
