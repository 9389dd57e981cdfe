package repository

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const presenceKeyPrefix = "presence:user:"

// RedisPresenceMirror publishes local presence so other nodes and the main
// API can see who is online. Keys expire on their own if a node dies.
type RedisPresenceMirror struct {
	rdb    *redis.Client
	nodeID string
	ttl    time.Duration
}

func NewRedisPresenceMirror(rdb *redis.Client, nodeID string, ttl time.Duration) *RedisPresenceMirror {
	return &RedisPresenceMirror{rdb: rdb, nodeID: nodeID, ttl: ttl}
}

func presenceKey(userID string) string {
	return presenceKeyPrefix + userID
}

// MarkOnline records that userID has at least one connection on this node.
// The key carries the TTL from the first write so a node that dies before its
// next refresh does not leave the user online.
func (m *RedisPresenceMirror) MarkOnline(ctx context.Context, userID string) error {
	key := presenceKey(userID)
	_, err := m.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, m.nodeID, time.Now().Unix())
		pipe.Expire(ctx, key, m.ttl)
		return nil
	})
	return err
}

// MarkOffline removes this node's entry. The key goes away with the last node.
func (m *RedisPresenceMirror) MarkOffline(ctx context.Context, userID string) error {
	return m.rdb.HDel(ctx, presenceKey(userID), m.nodeID).Err()
}

// Refresh extends the TTL of every listed user in one round trip.
func (m *RedisPresenceMirror) Refresh(ctx context.Context, userIDs []string) error {
	if len(userIDs) == 0 {
		return nil
	}
	now := time.Now().Unix()
	_, err := m.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range userIDs {
			pipe.HSet(ctx, presenceKey(id), m.nodeID, now)
			pipe.Expire(ctx, presenceKey(id), m.ttl)
		}
		return nil
	})
	return err
}

// IsOnline reports whether any node holds a connection for userID.
func (m *RedisPresenceMirror) IsOnline(ctx context.Context, userID string) (bool, error) {
	n, err := m.rdb.Exists(ctx, presenceKey(userID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
