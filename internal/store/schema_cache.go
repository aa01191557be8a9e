package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"centroid/internal/config"
	"centroid/internal/filter"
)

// SchemaCache wraps Store.LoadSchema with a process-local, TTL-bounded cache
// (spec.md §5's "stale schema reads are bounded by a TTL" requirement) and,
// when Redis is configured, broadcasts invalidations over a pub/sub channel
// so a fleet of stateless instances drops a tenant's cached schema together
// after extend_schema runs elsewhere — grounded on the teacher's
// internal/skills/redis_cache.go RedisSkillsCache (same
// cfg.Enabled-gates-everything shape, same Get/Set/Invalidate split), adapted
// from a value cache to an invalidation-only cache since a filter.Schema is
// cheap to reload locally once told it's stale.
type SchemaCache struct {
	store *Store
	ttl   time.Duration

	mu      sync.RWMutex
	entries map[string]schemaCacheEntry

	redisClient *redis.Client
	channel     string
}

type schemaCacheEntry struct {
	schema  filter.Schema
	expires time.Time
}

// NewSchemaCache builds a SchemaCache over st. If cfg.Enabled is false, the
// cache still works (local TTL only); it just can't be invalidated by other
// instances.
func NewSchemaCache(st *Store, cfg config.RedisConfig, ttl time.Duration) (*SchemaCache, error) {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	c := &SchemaCache{store: st, ttl: ttl, entries: make(map[string]schemaCacheEntry), channel: "centroid:schema-invalidate"}
	if !cfg.Enabled {
		return c, nil
	}
	c.redisClient = redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	if err := c.redisClient.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("schema cache: redis ping: %w", err)
	}
	return c, nil
}

// Start subscribes to the invalidation channel until ctx is cancelled; a
// no-op if Redis isn't configured. Grounded on the same
// goroutine-plus-select-on-ctx.Done idiom internal/indexworker.Worker.Start
// uses for its own background loop.
func (c *SchemaCache) Start(ctx context.Context) {
	if c.redisClient == nil {
		return
	}
	sub := c.redisClient.Subscribe(ctx, c.channel)
	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				c.dropLocal(msg.Payload)
			}
		}
	}()
}

// Get returns tenant's schema, serving from the local cache when fresh and
// reloading via Store.LoadSchema otherwise.
func (c *SchemaCache) Get(ctx context.Context, tenant string) (filter.Schema, error) {
	c.mu.RLock()
	entry, ok := c.entries[tenant]
	c.mu.RUnlock()
	if ok && time.Now().Before(entry.expires) {
		return entry.schema, nil
	}

	schema, err := c.store.LoadSchema(ctx, tenant)
	if err != nil {
		return filter.Schema{}, err
	}
	c.mu.Lock()
	c.entries[tenant] = schemaCacheEntry{schema: schema, expires: time.Now().Add(c.ttl)}
	c.mu.Unlock()
	return schema, nil
}

// Invalidate drops tenant's cached schema locally and, when Redis is
// configured, publishes to the invalidation channel so every other instance
// in the fleet drops it too. Callers invoke this after a successful
// ExtendSchema commit.
func (c *SchemaCache) Invalidate(ctx context.Context, tenant string) {
	c.dropLocal(tenant)
	if c.redisClient == nil {
		return
	}
	if err := c.redisClient.Publish(ctx, c.channel, tenant).Err(); err != nil {
		log.Debug().Err(err).Str("tenant", tenant).Msg("schema_cache_publish_invalidate_error")
	}
}

func (c *SchemaCache) dropLocal(tenant string) {
	c.mu.Lock()
	delete(c.entries, tenant)
	c.mu.Unlock()
}

// Close releases the Redis connection, if any.
func (c *SchemaCache) Close() error {
	if c.redisClient == nil {
		return nil
	}
	return c.redisClient.Close()
}
