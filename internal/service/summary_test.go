package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/grantwell/grantwell/internal/domain"
)

// memoryStorage is an in-memory ObjectStorage for tests.
type memoryStorage struct {
	objects map[string][]byte
	failAll bool
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{objects: make(map[string][]byte)}
}

func (m *memoryStorage) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	m.objects[key] = data
	return nil
}

func (m *memoryStorage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	if m.failAll {
		return nil, errors.New("connection refused")
	}
	data, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("failed to download object: NoSuchKey: %s", key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memoryStorage) Delete(ctx context.Context, key string) error {
	delete(m.objects, key)
	return nil
}

func (m *memoryStorage) Exists(ctx context.Context, key string) (bool, error) {
	_, ok := m.objects[key]
	return ok, nil
}

func TestSummaryService_GetSummary(t *testing.T) {
	store := newMemoryStorage()
	store.objects["forest-2026/summary.json"] = []byte(`{
		"grant_name": "Forest Restoration Grant",
		"funding_amount": "$2M",
		"application_deadline": "2026-12-01",
		"status": "active"
	}`)
	store.objects["broken/summary.json"] = []byte(`{not json`)

	svc := NewSummaryService(store)
	ctx := context.Background()

	t.Run("parses an existing summary", func(t *testing.T) {
		got, err := svc.GetSummary(ctx, "forest-2026")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got == nil || got.GrantName != "Forest Restoration Grant" || got.FundingAmount != "$2M" {
			t.Errorf("unexpected summary: %+v", got)
		}
	})

	t.Run("absence is not an error", func(t *testing.T) {
		got, err := svc.GetSummary(ctx, "missing")
		if err != nil {
			t.Fatalf("expected nil error for absent summary, got %v", err)
		}
		if got != nil {
			t.Errorf("expected nil summary, got %+v", got)
		}
	})

	t.Run("malformed document is skipped", func(t *testing.T) {
		got, err := svc.GetSummary(ctx, "broken")
		if err != nil {
			t.Fatalf("expected malformed summary to be skipped, got %v", err)
		}
		if got != nil {
			t.Errorf("expected nil summary, got %+v", got)
		}
	})

	t.Run("transport failure is an error", func(t *testing.T) {
		store.failAll = true
		defer func() { store.failAll = false }()

		if _, err := svc.GetSummary(ctx, "forest-2026"); err == nil {
			t.Error("expected transport failures to surface")
		}
	})
}

func TestSummaryService_PutRoundTrip(t *testing.T) {
	store := newMemoryStorage()
	svc := NewSummaryService(store)
	ctx := context.Background()

	in := &domain.GrantSummary{
		GrantName:     "Grant One",
		FundingAmount: "$500K",
		Deadline:      "2027-01-15",
		Status:        "active",
	}
	if err := svc.PutSummary(ctx, "g1", in); err != nil {
		t.Fatalf("failed to put summary: %v", err)
	}

	got, err := svc.GetSummary(ctx, "g1")
	if err != nil {
		t.Fatalf("failed to get summary: %v", err)
	}
	if got == nil || got.GrantName != in.GrantName || got.Deadline != in.Deadline {
		t.Errorf("round trip mismatch: put %+v, got %+v", in, got)
	}
}
