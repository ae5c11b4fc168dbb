package redisadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"tallyhub/contexts/election-results/tally-engine/domain/entities"
	"tallyhub/contexts/election-results/tally-engine/ports"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "tallyhub:aggregate"

// AggregateCache memoizes aggregates in Redis. Each (location, position) has
// a generation counter with no TTL; values are stored under the generation
// they were computed for, so bumping the counter orphans every older fill.
type AggregateCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

func NewAggregateCache(client *redis.Client, ttl time.Duration) *AggregateCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &AggregateCache{
		client: client,
		ttl:    ttl,
		prefix: defaultKeyPrefix,
	}
}

func (c *AggregateCache) Lookup(ctx context.Context, key entities.AggregateKey) (ports.CacheLookup, error) {
	generation, err := c.generation(ctx, key)
	if err != nil {
		return ports.CacheLookup{}, err
	}
	raw, err := c.client.Get(ctx, c.valueKey(key, generation)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ports.CacheLookup{Generation: generation}, nil
	}
	if err != nil {
		return ports.CacheLookup{}, fmt.Errorf("redis get aggregate: %w", err)
	}
	var value entities.AggregatedResult
	if err := json.Unmarshal(raw, &value); err != nil {
		return ports.CacheLookup{Generation: generation}, nil
	}
	return ports.CacheLookup{Generation: generation, Value: value, Hit: true}, nil
}

func (c *AggregateCache) Store(ctx context.Context, key entities.AggregateKey, generation uint64, value entities.AggregatedResult) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, c.valueKey(key, generation), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set aggregate: %w", err)
	}
	return nil
}

func (c *AggregateCache) Invalidate(ctx context.Context, keys []entities.AggregateKey) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, key := range keys {
			pipe.Incr(ctx, c.generationKey(key))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis bump aggregate generation: %w", err)
	}
	return nil
}

func (c *AggregateCache) generation(ctx context.Context, key entities.AggregateKey) (uint64, error) {
	raw, err := c.client.Get(ctx, c.generationKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get aggregate generation: %w", err)
	}
	generation, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse aggregate generation %q: %w", raw, err)
	}
	return generation, nil
}

func (c *AggregateCache) generationKey(key entities.AggregateKey) string {
	return fmt.Sprintf("%s:gen:%s:%s", c.prefix, key.LocationID, key.Position)
}

func (c *AggregateCache) valueKey(key entities.AggregateKey, generation uint64) string {
	return fmt.Sprintf("%s:value:%s:%s:%d", c.prefix, key.LocationID, key.Position, generation)
}
