package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/grantwell/grantwell/internal/logger"
)

// VocabKind identifies which vocabulary column is being cached.
type VocabKind string

const (
	VocabCategory VocabKind = "category"
	VocabAgency   VocabKind = "agency"
)

// VocabSource provides distinct vocabulary values from the structured store.
type VocabSource interface {
	DistinctCategories(ctx context.Context) ([]string, error)
	DistinctAgencies(ctx context.Context) ([]string, error)
}

// VocabCacheSettings holds configuration for the vocabulary cache.
type VocabCacheSettings struct {
	Enabled bool
	TTL     time.Duration
}

type vocabEntry struct {
	values     []string
	computedAt time.Time
}

// VocabularyCache is a process-local, time-boxed cache of the distinct
// category and agency values in the grant corpus. It is advisory: staleness
// is bounded by the TTL, absence degrades classification rather than
// failing a request, and entries are idempotently recomputable.
type VocabularyCache struct {
	source  VocabSource
	ttl     time.Duration
	enabled bool
	now     func() time.Time

	mu      sync.Mutex
	entries map[VocabKind]vocabEntry
}

// NewVocabularyCache creates a vocabulary cache backed by source.
// Parameters:
//   - source: structured-store vocabulary scans.
//   - cfg: cache settings; nil enables caching with a 5 minute TTL.
// Returns:
//   - *VocabularyCache: initialized cache.
func NewVocabularyCache(source VocabSource, cfg *VocabCacheSettings) *VocabularyCache {
	settings := VocabCacheSettings{Enabled: true, TTL: 5 * time.Minute}
	if cfg != nil {
		settings = *cfg
	}
	if settings.TTL <= 0 {
		settings.TTL = 5 * time.Minute
	}
	return &VocabularyCache{
		source:  source,
		ttl:     settings.TTL,
		enabled: settings.Enabled,
		now:     time.Now,
		entries: make(map[VocabKind]vocabEntry),
	}
}

// SetClock overrides the cache's clock. Intended for tests.
func (c *VocabularyCache) SetClock(now func() time.Time) {
	c.now = now
}

// Get returns the vocabulary for kind, recomputing it when the cached entry
// is missing or older than the TTL. A failed backing-store scan yields an
// empty vocabulary, never an error: vocabulary absence degrades
// classification gracefully rather than failing the request.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - kind: vocabulary kind to fetch.
// Returns:
//   - []string: distinct values, sorted; empty on failure.
func (c *VocabularyCache) Get(ctx context.Context, kind VocabKind) []string {
	if c.enabled {
		c.mu.Lock()
		entry, ok := c.entries[kind]
		c.mu.Unlock()
		if ok && c.now().Sub(entry.computedAt) < c.ttl {
			return entry.values
		}
	}

	values := c.fetch(ctx, kind)

	if c.enabled {
		// Last writer wins; concurrent recomputations produce the same set
		c.mu.Lock()
		c.entries[kind] = vocabEntry{values: values, computedAt: c.now()}
		c.mu.Unlock()
	}

	return values
}

func (c *VocabularyCache) fetch(ctx context.Context, kind VocabKind) []string {
	var values []string
	var err error

	switch kind {
	case VocabAgency:
		values, err = c.source.DistinctAgencies(ctx)
	default:
		values, err = c.source.DistinctCategories(ctx)
	}
	if err != nil {
		logger.CtxWarn(ctx, "Vocabulary scan failed: kind=%s, error=%v", kind, err)
		return []string{}
	}

	sort.Strings(values)
	return values
}
