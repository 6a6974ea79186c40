package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// errNotFound marks a missing entity key. Callers map it to the
// appropriate sentinel via isNotFound.
var errNotFound = errors.New("recipeflow/redis: entity not found")

// getEntity fetches and unmarshals a JSON entity.
func (s *Store) getEntity(ctx context.Context, key string, dst any) error {
	raw, err := s.rdb.Get(ctx, key).Result()
	if err != nil {
		if isRedisNil(err) {
			return errNotFound
		}
		return err
	}
	if err = json.Unmarshal([]byte(raw), dst); err != nil {
		return fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return nil
}

// setEntity marshals and stores a JSON entity.
func (s *Store) setEntity(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return s.rdb.Set(ctx, key, data, 0).Err()
}

// entityExists reports whether an entity key is present.
func (s *Store) entityExists(ctx context.Context, key string) (bool, error) {
	n, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func isRedisNil(err error) bool { return errors.Is(err, redis.Nil) }

func isNotFound(err error) bool { return errors.Is(err, errNotFound) }

func now() time.Time { return time.Now().UTC() }
