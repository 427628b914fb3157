package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/synaptica-ai/studydata/pkg/common/logger"
	"github.com/synaptica-ai/studydata/pkg/engine"
)

var ErrCacheMiss = errors.New("result not cached")

// ResultCache keeps evaluated datasets in Redis, keyed by declaration hash.
type ResultCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

func NewResultCache(client *redis.Client, ttl time.Duration) *ResultCache {
	return &ResultCache{client: client, ttl: ttl, prefix: "datasets"}
}

func (c *ResultCache) key(hash, source string) string {
	return fmt.Sprintf("%s:%s:%s", c.prefix, source, hash)
}

func (c *ResultCache) Get(ctx context.Context, hash, source string) (*engine.Result, error) {
	key := c.key(hash, source)
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}

	var result engine.Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("decoding cached result %s: %w", key, err)
	}
	if err := result.RestoreTypes(); err != nil {
		return nil, err
	}
	logger.Log.WithField("key", key).Debug("Dataset result served from cache")
	return &result, nil
}

func (c *ResultCache) Put(ctx context.Context, hash, source string, result *engine.Result) error {
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	key := c.key(hash, source)
	logger.Log.WithFields(map[string]interface{}{
		"key":  key,
		"size": len(data),
	}).Debug("Caching dataset result")
	return c.client.Set(ctx, key, data, c.ttl).Err()
}
