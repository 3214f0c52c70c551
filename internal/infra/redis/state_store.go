package redis

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"
)

// StateStore persists client state records in Redis so a restarted client
// reconstructs credentials, game session, and in-progress attempt instead of
// racing a fresh empty state against in-flight operations.
//
// Records are plain JSON blobs with no schema versioning; an entry that fails
// to parse is treated as absent.
type StateStore struct {
	client *redis.Client
	prefix string
}

func NewStateStore(client *redis.Client) *StateStore {
	return &StateStore{client: client, prefix: "quizbattle:state:"}
}

func (s *StateStore) Put(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.prefix+key, data, 0).Err()
}

func (s *StateStore) Get(ctx context.Context, key string, dest any) (bool, error) {
	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		// Corrupt record: treat as absent and drop it so the next read is clean.
		_ = s.client.Del(ctx, s.prefix+key).Err()
		return false, nil
	}
	return true, nil
}

func (s *StateStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.prefix+key).Err()
}
