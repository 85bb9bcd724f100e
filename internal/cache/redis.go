// internal/cache/redis.go
package cache

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// DefaultKeyPrefix namespaces mute-list keys.
const DefaultKeyPrefix = "mutes:"

// ConnectRedis creates a client for addr/db and verifies it with a ping.
func ConnectRedis(ctx context.Context, addr string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return rdb, nil
}

// RedisMuteStore keeps each mute list in a redis SET named <prefix><owner>.
type RedisMuteStore struct {
	rdb    *redis.Client
	prefix string
	log    logrus.FieldLogger
}

func NewRedisMuteStore(rdb *redis.Client, prefix string, logger logrus.FieldLogger) *RedisMuteStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisMuteStore{rdb: rdb, prefix: prefix, log: logger.WithField("store", "redis")}
}

func (s *RedisMuteStore) key(owner string) string {
	return s.prefix + owner
}

// Load returns owner's mute list in ascending order. A missing key is an empty list.
func (s *RedisMuteStore) Load(ctx context.Context, owner string) ([]string, error) {
	names, err := s.rdb.SMembers(ctx, s.key(owner)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to SMEMBERS '%s': %w", s.key(owner), err)
	}
	slices.Sort(names)
	return names, nil
}

// Save replaces owner's mute list atomically.
func (s *RedisMuteStore) Save(ctx context.Context, owner string, muted []string) error {
	key := s.key(owner)
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(muted) > 0 {
			members := make([]interface{}, len(muted))
			for i, name := range muted {
				members[i] = name
			}
			pipe.SAdd(ctx, key, members...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to replace '%s': %w", key, err)
	}
	s.log.Debugf("saved %d muted names for %s", len(muted), owner)
	return nil
}
