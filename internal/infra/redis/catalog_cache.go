package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"engagement-service/internal/app"
	"engagement-service/internal/domain"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// CatalogCache caches the participant discovery query in Redis and falls back
// to the store on a miss. Listings live under a generation number:
//
//	GET  catalog:generation            -> n
//	GET  catalog:{n}:{jobID}:{type}    -> JSON []domain.Event
//
// Event writes bump the generation, which orphans every cached listing on every
// instance at once; the orphans age out with their TTL.
type CatalogCache struct {
	app.Store
	client *redis.Client
	ttl    time.Duration
	sf     singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewCatalogCache(store app.Store, client *redis.Client, ttl time.Duration) *CatalogCache {
	return &CatalogCache{
		Store:  store,
		client: client,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

const generationKey = "catalog:generation"

func (c *CatalogCache) ListPublishedEvents(ctx context.Context, filter domain.EventFilter) ([]domain.Event, error) {
	key := c.listingKey(ctx, filter)
	if events, ok := c.lookup(ctx, key); ok {
		return events, nil
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if events, ok := c.lookup(ctx, key); ok {
			return events, nil
		}
		events, err := c.Store.ListPublishedEvents(ctx, filter)
		if err != nil {
			return nil, err
		}
		if ttl := c.ttlWithJitter(); ttl > 0 {
			if payload, err := json.Marshal(events); err == nil {
				// best effort; a failed write just means another miss later
				_ = c.client.Set(ctx, key, payload, ttl).Err()
			}
		}
		return events, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Event), nil
}

func (c *CatalogCache) CreateEvent(ctx context.Context, event domain.Event) error {
	defer c.Invalidate(ctx)
	return c.Store.CreateEvent(ctx, event)
}

func (c *CatalogCache) UpdateEvent(ctx context.Context, id string, patch domain.EventPatch, updatedAt time.Time) (domain.Event, error) {
	defer c.Invalidate(ctx)
	return c.Store.UpdateEvent(ctx, id, patch, updatedAt)
}

func (c *CatalogCache) PublishEvent(ctx context.Context, id string, at time.Time) (domain.Event, error) {
	defer c.Invalidate(ctx)
	return c.Store.PublishEvent(ctx, id, at)
}

func (c *CatalogCache) DeleteEvent(ctx context.Context, id string) error {
	defer c.Invalidate(ctx)
	return c.Store.DeleteEvent(ctx, id)
}

// Invalidate moves every instance to a fresh generation.
func (c *CatalogCache) Invalidate(ctx context.Context) {
	_ = c.client.Incr(ctx, generationKey).Err()
}

func (c *CatalogCache) listingKey(ctx context.Context, filter domain.EventFilter) string {
	generation, err := c.client.Get(ctx, generationKey).Result()
	if err != nil {
		generation = "0"
	}
	return "catalog:" + generation + ":" + filter.JobID + ":" + string(filter.Type)
}

func (c *CatalogCache) lookup(ctx context.Context, key string) ([]domain.Event, bool) {
	payload, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var events []domain.Event
	if err := json.Unmarshal(payload, &events); err != nil {
		return nil, false
	}
	return events, true
}

func (c *CatalogCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
