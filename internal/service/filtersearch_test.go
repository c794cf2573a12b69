package service

import (
	"context"
	"testing"

	"github.com/grantwell/grantwell/internal/domain"
)

func newFilterFixture() (*fakeGrantStore, *fakeSummaryStore) {
	store := newFakeGrantStore(
		domain.Grant{ID: "forest-2026", Name: "Forest Restoration Grant", Category: "Forestry", Agency: "EPA"},
		domain.Grant{ID: "urban-trees", Name: "Urban Forestry Initiative", Category: "Forestry", Agency: "USDA"},
		domain.Grant{ID: "solar-fund", Name: "Solar Community Fund", Category: "Clean Energy", Agency: "EPA"},
	)
	summaries := newFakeSummaryStore()
	summaries.put("forest-2026", domain.GrantSummary{GrantName: "Forest Restoration Grant", FundingAmount: "$2M", Deadline: "2026-12-01", Status: "active"})
	summaries.put("urban-trees", domain.GrantSummary{GrantName: "Urban Forestry Initiative", Status: "active"})
	summaries.put("solar-fund", domain.GrantSummary{GrantName: "Solar Community Fund", Status: "active"})
	return store, summaries
}

func TestFilterSearch_CategoryFilter(t *testing.T) {
	store, summaries := newFilterFixture()
	svc := NewFilterSearchService(store, summaries)

	got, usedFilters := svc.Search(context.Background(), "zz", domain.FilterSet{Category: "Forestry"})
	if !usedFilters {
		t.Error("expected usedFilters to be true")
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(got))
	}
	for _, c := range got {
		if c.Score != 100 {
			t.Errorf("expected category match score 100, got %d for %s", c.Score, c.GrantID)
		}
		if c.Provenance != domain.ProvenanceCategory {
			t.Errorf("expected category provenance, got %s", c.Provenance)
		}
	}
}

func TestFilterSearch_CategoryWinsOverNameMatch(t *testing.T) {
	store, summaries := newFilterFixture()
	svc := NewFilterSearchService(store, summaries)

	// "forest" also matches two names; the category pass claims them first
	got, _ := svc.Search(context.Background(), "forestry", domain.FilterSet{Category: "Forestry"})

	seen := make(map[string]domain.Provenance)
	for _, c := range got {
		if prev, dup := seen[c.GrantID]; dup {
			t.Fatalf("grant %s appears twice (%s and %s)", c.GrantID, prev, c.Provenance)
		}
		seen[c.GrantID] = c.Provenance
	}
	if seen["forest-2026"] != domain.ProvenanceCategory {
		t.Errorf("expected category provenance for forest-2026, got %s", seen["forest-2026"])
	}
}

func TestFilterSearch_NameMatchRequiresThreeChars(t *testing.T) {
	store, summaries := newFilterFixture()
	svc := NewFilterSearchService(store, summaries)

	got, usedFilters := svc.Search(context.Background(), "fo", domain.FilterSet{})
	if usedFilters {
		t.Error("expected usedFilters to be false with no structural filter")
	}
	if len(got) != 0 {
		t.Errorf("expected no candidates for a two-character query, got %+v", got)
	}

	got, _ = svc.Search(context.Background(), "forest", domain.FilterSet{})
	if len(got) != 2 {
		t.Fatalf("expected 2 name matches, got %+v", got)
	}
	for _, c := range got {
		if c.Score != 90 || c.Provenance != domain.ProvenanceNameMatch {
			t.Errorf("expected name_match with score 90, got %s/%d", c.Provenance, c.Score)
		}
	}
}

func TestFilterSearch_MatchesGrantID(t *testing.T) {
	store, summaries := newFilterFixture()
	svc := NewFilterSearchService(store, summaries)

	got, _ := svc.Search(context.Background(), "solar-fund", domain.FilterSet{})
	if len(got) != 1 || got[0].GrantID != "solar-fund" {
		t.Errorf("expected ID substring match, got %+v", got)
	}
}

func TestFilterSearch_DropsArchivedAndMissingSummaries(t *testing.T) {
	store := newFakeGrantStore(
		domain.Grant{ID: "live", Name: "Live Grant", Category: "Forestry"},
		domain.Grant{ID: "old", Name: "Old Grant", Category: "Forestry"},
		domain.Grant{ID: "ghost", Name: "Ghost Grant", Category: "Forestry"},
	)
	summaries := newFakeSummaryStore()
	summaries.put("live", domain.GrantSummary{GrantName: "Live Grant", Status: "active"})
	summaries.put("old", domain.GrantSummary{GrantName: "Old Grant", Status: "archived"})

	svc := NewFilterSearchService(store, summaries)
	got, _ := svc.Search(context.Background(), "zz", domain.FilterSet{Category: "Forestry"})

	if len(got) != 1 || got[0].GrantID != "live" {
		t.Errorf("expected only the live grant, got %+v", got)
	}
}

func TestFilterSearch_EnrichesFromSummary(t *testing.T) {
	store, summaries := newFilterFixture()
	svc := NewFilterSearchService(store, summaries)

	got, _ := svc.Search(context.Background(), "zz", domain.FilterSet{Agency: "EPA"})

	var forest *domain.GrantCandidate
	for i := range got {
		if got[i].GrantID == "forest-2026" {
			forest = &got[i]
		}
	}
	if forest == nil {
		t.Fatalf("expected forest-2026 in results, got %+v", got)
	}
	if forest.FundingAmount != "$2M" || forest.Deadline != "2026-12-01" {
		t.Errorf("expected summary enrichment, got %+v", forest)
	}
	if forest.GrantType != "federal" {
		t.Errorf("expected default grant type federal, got %q", forest.GrantType)
	}
}

func TestFilterSearch_StoreFailureYieldsEmptyPhase(t *testing.T) {
	store, summaries := newFilterFixture()
	store.failLookups = true
	svc := NewFilterSearchService(store, summaries)

	got, usedFilters := svc.Search(context.Background(), "forest", domain.FilterSet{Category: "Forestry"})
	if !usedFilters {
		t.Error("expected usedFilters true even when queries fail")
	}
	if len(got) != 0 {
		t.Errorf("expected empty phase on store failure, got %+v", got)
	}
}
