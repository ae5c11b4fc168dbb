package memory

import (
	"context"
	"sync"

	"tallyhub/contexts/election-results/tally-engine/domain/entities"
	"tallyhub/contexts/election-results/tally-engine/ports"
)

type cachedAggregate struct {
	generation uint64
	value      entities.AggregatedResult
}

// AggregateCache is a process-local generation-stamped aggregate cache.
type AggregateCache struct {
	mu          sync.Mutex
	generations map[entities.AggregateKey]uint64
	entries     map[entities.AggregateKey]cachedAggregate
}

func NewAggregateCache() *AggregateCache {
	return &AggregateCache{
		generations: make(map[entities.AggregateKey]uint64),
		entries:     make(map[entities.AggregateKey]cachedAggregate),
	}
}

func (c *AggregateCache) Lookup(_ context.Context, key entities.AggregateKey) (ports.CacheLookup, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	generation := c.generations[key]
	entry, ok := c.entries[key]
	if !ok || entry.generation != generation {
		return ports.CacheLookup{Generation: generation}, nil
	}
	return ports.CacheLookup{
		Generation: generation,
		Value:      cloneAggregate(entry.value),
		Hit:        true,
	}, nil
}

func (c *AggregateCache) Store(_ context.Context, key entities.AggregateKey, generation uint64, value entities.AggregatedResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generations[key] != generation {
		return nil
	}
	c.entries[key] = cachedAggregate{generation: generation, value: cloneAggregate(value)}
	return nil
}

func (c *AggregateCache) Invalidate(_ context.Context, keys []entities.AggregateKey) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, key := range keys {
		c.generations[key]++
		delete(c.entries, key)
	}
	return nil
}

func cloneAggregate(value entities.AggregatedResult) entities.AggregatedResult {
	value.Candidates = append([]entities.CandidateTotal{}, value.Candidates...)
	return value
}
