package progress

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/EliosFinance/elios-backend-sub000/internal/challenge"
)

// countingDefinitions counts reads against the underlying store.
type countingDefinitions struct {
	defs  map[int64]*challenge.Definition
	reads int
}

func (c *countingDefinitions) Get(ctx context.Context, challengeID int64) (*challenge.Definition, error) {
	c.reads++
	def, ok := c.defs[challengeID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrDefinitionNotFound, challengeID)
	}
	return def, nil
}

func cacheTestDefinition(t *testing.T) *challenge.Definition {
	t.Helper()
	def, err := challenge.Decode(7, []byte(`{
		"initial": "A",
		"states": {"A": {"on": {"GO": {"target": "B"}}}, "B": {"on": {}}}
	}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	return def
}

func TestCachedDefinitions_ReadThrough(t *testing.T) {
	source := &countingDefinitions{defs: map[int64]*challenge.Definition{7: cacheTestDefinition(t)}}
	cache := NewCachedDefinitions(source, 1*time.Minute)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		def, err := cache.Get(ctx, 7)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if def.ID != 7 {
			t.Errorf("ID = %d, want 7", def.ID)
		}
	}

	if source.reads != 1 {
		t.Errorf("source reads = %d, want 1 (cache should absorb repeats)", source.reads)
	}
}

func TestCachedDefinitions_TTLExpiry(t *testing.T) {
	source := &countingDefinitions{defs: map[int64]*challenge.Definition{7: cacheTestDefinition(t)}}
	cache := NewCachedDefinitions(source, 20*time.Millisecond)
	ctx := context.Background()

	if _, err := cache.Get(ctx, 7); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	time.Sleep(30 * time.Millisecond)
	if _, err := cache.Get(ctx, 7); err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if source.reads != 2 {
		t.Errorf("source reads = %d, want 2 (entry should expire)", source.reads)
	}
}

// Misses are not cached: a challenge created right after a miss must be
// visible on the next read.
func TestCachedDefinitions_MissNotCached(t *testing.T) {
	source := &countingDefinitions{defs: map[int64]*challenge.Definition{}}
	cache := NewCachedDefinitions(source, 1*time.Minute)
	ctx := context.Background()

	if _, err := cache.Get(ctx, 7); err == nil {
		t.Fatal("expected a miss")
	}

	source.defs[7] = cacheTestDefinition(t)
	if _, err := cache.Get(ctx, 7); err != nil {
		t.Errorf("definition created after a miss should be found: %v", err)
	}
}

func TestCachedDefinitions_Invalidate(t *testing.T) {
	source := &countingDefinitions{defs: map[int64]*challenge.Definition{7: cacheTestDefinition(t)}}
	cache := NewCachedDefinitions(source, 1*time.Minute)
	ctx := context.Background()

	if _, err := cache.Get(ctx, 7); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	cache.Invalidate(7)
	if _, err := cache.Get(ctx, 7); err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if source.reads != 2 {
		t.Errorf("source reads = %d, want 2 after Invalidate", source.reads)
	}
}

func TestCachedDefinitions_ZeroTTLDisables(t *testing.T) {
	source := &countingDefinitions{defs: map[int64]*challenge.Definition{7: cacheTestDefinition(t)}}
	cache := NewCachedDefinitions(source, 0)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := cache.Get(ctx, 7); err != nil {
			t.Fatalf("Get failed: %v", err)
		}
	}
	if source.reads != 3 {
		t.Errorf("source reads = %d, want 3 with caching disabled", source.reads)
	}
}
