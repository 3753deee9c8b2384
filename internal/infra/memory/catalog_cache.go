package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"engagement-service/internal/app"
	"engagement-service/internal/domain"
	"golang.org/x/sync/singleflight"
)

// CatalogCache fronts a store and caches the participant discovery query with a
// TTL to avoid repeated DB hits. Event writes that pass through it drop the
// cache; writes made by other processes show up once the TTL runs out.
type CatalogCache struct {
	app.Store
	ttl   time.Duration
	clock func() time.Time
	sf    singleflight.Group
	rnd   *rand.Rand

	mu    sync.RWMutex
	cache map[domain.EventFilter]cachedCatalog
}

type cachedCatalog struct {
	events    []domain.Event
	expiresAt time.Time
}

func NewCatalogCache(store app.Store, ttl time.Duration) *CatalogCache {
	return &CatalogCache{
		Store: store,
		ttl:   ttl,
		clock: time.Now,
		rnd:   rand.New(rand.NewSource(time.Now().UnixNano())),
		cache: make(map[domain.EventFilter]cachedCatalog),
	}
}

func (c *CatalogCache) ListPublishedEvents(ctx context.Context, filter domain.EventFilter) ([]domain.Event, error) {
	if events, ok := c.lookup(filter); ok {
		return events, nil
	}

	result, err, _ := c.sf.Do(filter.JobID+"|"+string(filter.Type), func() (interface{}, error) {
		// Re-check in case another goroutine filled it.
		if events, ok := c.lookup(filter); ok {
			return events, nil
		}
		now := c.clock()
		events, err := c.Store.ListPublishedEvents(ctx, filter)
		if err != nil {
			return nil, err
		}
		if ttl := c.ttlWithJitter(); ttl > 0 {
			c.mu.Lock()
			c.cache[filter] = cachedCatalog{events: events, expiresAt: now.Add(ttl)}
			c.mu.Unlock()
		}
		return events, nil
	})
	if err != nil {
		return nil, err
	}
	return copyEvents(result.([]domain.Event)), nil
}

func (c *CatalogCache) CreateEvent(ctx context.Context, event domain.Event) error {
	defer c.Invalidate()
	return c.Store.CreateEvent(ctx, event)
}

func (c *CatalogCache) UpdateEvent(ctx context.Context, id string, patch domain.EventPatch, updatedAt time.Time) (domain.Event, error) {
	defer c.Invalidate()
	return c.Store.UpdateEvent(ctx, id, patch, updatedAt)
}

func (c *CatalogCache) PublishEvent(ctx context.Context, id string, at time.Time) (domain.Event, error) {
	defer c.Invalidate()
	return c.Store.PublishEvent(ctx, id, at)
}

func (c *CatalogCache) DeleteEvent(ctx context.Context, id string) error {
	defer c.Invalidate()
	return c.Store.DeleteEvent(ctx, id)
}

// Invalidate drops every cached listing.
func (c *CatalogCache) Invalidate() {
	c.mu.Lock()
	c.cache = make(map[domain.EventFilter]cachedCatalog)
	c.mu.Unlock()
}

func (c *CatalogCache) lookup(filter domain.EventFilter) ([]domain.Event, bool) {
	now := c.clock()
	c.mu.RLock()
	defer c.mu.RUnlock()
	if entry, ok := c.cache[filter]; ok && entry.expiresAt.After(now) {
		return copyEvents(entry.events), true
	}
	return nil, false
}

func (c *CatalogCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

func copyEvents(in []domain.Event) []domain.Event {
	out := make([]domain.Event, len(in))
	for i, e := range in {
		out[i] = cloneEvent(e)
	}
	return out
}
