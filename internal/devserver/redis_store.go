/* Copyright © 2026 Mike Brown. All Rights Reserved.
 *
 * See LICENSE file at the root of this package for license terms
 */
package devserver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mikeb26/medchat/internal/types"
	"github.com/redis/go-redis/v9"
)

type redisStore struct {
	rdb *redis.Client
}

// NewRedisStore keeps event logs in Redis so several producer processes
// can serve the same message. redisURL may be a redis:// URL or a bare
// host:port.
func NewRedisStore(ctx context.Context, redisURL string) (EventStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		opt = &redis.Options{Addr: redisURL}
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("Failed to connect to redis at %v: %w", opt.Addr, err)
	}

	return &redisStore{rdb: rdb}, nil
}

func eventsKey(messageID int64) string { return messageKey(messageID) + ":events" }
func statusKey(messageID int64) string { return messageKey(messageID) + ":status" }

func (s *redisStore) Append(ctx context.Context, messageID int64, payload []byte) error {
	return s.rdb.RPush(ctx, eventsKey(messageID), payload).Err()
}

func (s *redisStore) Events(ctx context.Context, messageID int64, from int) ([][]byte, error) {
	if from < 0 {
		from = 0
	}
	vals, err := s.rdb.LRange(ctx, eventsKey(messageID), int64(from), -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([][]byte, 0, len(vals))
	for _, v := range vals {
		out = append(out, []byte(v))
	}
	return out, nil
}

func (s *redisStore) SetStatus(ctx context.Context, messageID int64, status types.MessageStatus) error {
	return s.rdb.Set(ctx, statusKey(messageID), string(status), 0).Err()
}

func (s *redisStore) Status(ctx context.Context, messageID int64) (types.MessageStatus, bool, error) {
	v, err := s.rdb.Get(ctx, statusKey(messageID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return types.MessageStatus(v), true, nil
}

func (s *redisStore) Expire(ctx context.Context, messageID int64, ttl time.Duration) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Expire(ctx, eventsKey(messageID), ttl)
		pipe.Expire(ctx, statusKey(messageID), ttl)
		return nil
	})
	return err
}

func (s *redisStore) Delete(ctx context.Context, messageID int64) error {
	return s.rdb.Del(ctx, eventsKey(messageID), statusKey(messageID)).Err()
}

func (s *redisStore) Close() error {
	return s.rdb.Close()
}
