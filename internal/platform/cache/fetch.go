package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// FetchJSON loads a cached value or populates it using the loader. A nil client
// degrades to calling the loader directly.
func FetchJSON(ctx context.Context, client *redis.Client, key string, ttl time.Duration, dest any, loader func(context.Context) (any, error)) error {
	if loader == nil {
		return errors.New("platform/cache: loader required")
	}
	if client != nil {
		raw, err := client.Get(ctx, key).Bytes()
		if err == nil {
			return json.Unmarshal(raw, dest)
		}
		if !errors.Is(err, redis.Nil) {
			return err
		}
	}

	value, err := loader(ctx)
	if err != nil {
		return err
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if client != nil {
		if err := client.Set(ctx, key, data, ttl).Err(); err != nil {
			return err
		}
	}
	return json.Unmarshal(data, dest)
}
