package redis

import (
	"context"
	"testing"
	"time"

	"engagement-service/internal/domain"
	"engagement-service/internal/infra/memory"
)

type countingStore struct {
	*memory.Store
	lists int
}

func (s *countingStore) ListPublishedEvents(ctx context.Context, filter domain.EventFilter) ([]domain.Event, error) {
	s.lists++
	return s.Store.ListPublishedEvents(ctx, filter)
}

func TestCatalogCacheServesFromRedis(t *testing.T) {
	mr, client := newClient(t)
	store := &countingStore{Store: memory.NewStore()}
	cache := NewCatalogCache(store, client, time.Minute)
	ctx := context.Background()

	publish(t, cache, "ev-1")

	first, err := cache.ListPublishedEvents(ctx, domain.EventFilter{JobID: "job-1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	second, err := cache.ListPublishedEvents(ctx, domain.EventFilter{JobID: "job-1"})
	if err != nil {
		t.Fatalf("list 2: %v", err)
	}
	if store.lists != 1 {
		t.Fatalf("expected one store load, got %d", store.lists)
	}
	if len(first) != 1 || len(second) != 1 || second[0].ID != "ev-1" {
		t.Fatalf("unexpected listings %v / %v", first, second)
	}
	if !mr.Exists("catalog:2:job-1:") {
		t.Fatalf("expected listing cached under generation 2, keys %v", mr.Keys())
	}
}

func TestCatalogCacheGenerationBumpOnWrite(t *testing.T) {
	_, client := newClient(t)
	store := &countingStore{Store: memory.NewStore()}
	cache := NewCatalogCache(store, client, time.Minute)
	ctx := context.Background()

	publish(t, cache, "ev-1")
	if _, err := cache.ListPublishedEvents(ctx, domain.EventFilter{}); err != nil {
		t.Fatalf("list: %v", err)
	}

	// a second instance sharing the same redis sees the write
	other := NewCatalogCache(store, client, time.Minute)
	publish(t, other, "ev-2")

	events, err := cache.ListPublishedEvents(ctx, domain.EventFilter{})
	if err != nil {
		t.Fatalf("list after write: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events after invalidation, got %d", len(events))
	}
}

func publish(t *testing.T, cache *CatalogCache, id string) {
	t.Helper()
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	err := cache.CreateEvent(ctx, domain.Event{
		ID: id, OwnerID: "owner", JobID: "job-1", Type: domain.EventTypeWebinar,
		Status: domain.EventStatusDraft, Title: id, CreatedAt: at,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := cache.PublishEvent(ctx, id, at); err != nil {
		t.Fatalf("publish: %v", err)
	}
}
