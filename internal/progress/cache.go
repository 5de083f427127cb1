package progress

import (
	"context"
	"sync"
	"time"

	"github.com/EliosFinance/elios-backend-sub000/internal/challenge"
)

// CachedDefinitions is a TTL read-through cache over a DefinitionRepository.
// Definitions are read on every job but written rarely, so a short TTL takes
// most of the load off the definition table. Edits to a definition converge
// within one TTL; a stale entry can at worst cause a DefinitionMismatch
// dead-letter, never a write of an invalid state.
//
// Negative results are not cached: a missing definition dead-letters the job
// anyway, and caching the miss would delay recovery if the challenge is
// created moments later.
type CachedDefinitions struct {
	source DefinitionRepository
	ttl    time.Duration

	mu      sync.RWMutex
	entries map[int64]cacheEntry
}

type cacheEntry struct {
	def       *challenge.Definition
	expiresAt time.Time
}

// NewCachedDefinitions wraps source with a TTL cache. A non-positive ttl
// disables caching entirely.
func NewCachedDefinitions(source DefinitionRepository, ttl time.Duration) *CachedDefinitions {
	return &CachedDefinitions{
		source:  source,
		ttl:     ttl,
		entries: make(map[int64]cacheEntry),
	}
}

// Get returns the cached definition if fresh, otherwise reads through.
func (c *CachedDefinitions) Get(ctx context.Context, challengeID int64) (*challenge.Definition, error) {
	if c.ttl <= 0 {
		return c.source.Get(ctx, challengeID)
	}

	c.mu.RLock()
	entry, ok := c.entries[challengeID]
	c.mu.RUnlock()
	if ok && time.Now().Before(entry.expiresAt) {
		return entry.def, nil
	}

	def, err := c.source.Get(ctx, challengeID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[challengeID] = cacheEntry{def: def, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()

	return def, nil
}

// Invalidate drops a cached definition, forcing the next Get to read through.
func (c *CachedDefinitions) Invalidate(challengeID int64) {
	c.mu.Lock()
	delete(c.entries, challengeID)
	c.mu.Unlock()
}
