/* Copyright © 2026 Mike Brown. All Rights Reserved.
 *
 * See LICENSE file at the root of this package for license terms
 */
package devserver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mikeb26/medchat/internal/types"
	"github.com/patrickmn/go-cache"
)

// EventStore holds the encoded events and generation status of assistant
// messages while they are produced and for a retention window afterwards.
// Streams poll it, so a reconnecting client replays the same log.
type EventStore interface {
	Append(ctx context.Context, messageID int64, payload []byte) error
	// Events returns the payloads at index from onwards.
	Events(ctx context.Context, messageID int64, from int) ([][]byte, error)
	SetStatus(ctx context.Context, messageID int64, status types.MessageStatus) error
	// Status reports false once the log has expired or never existed.
	Status(ctx context.Context, messageID int64) (types.MessageStatus, bool, error)
	// Expire schedules the log for removal after ttl.
	Expire(ctx context.Context, messageID int64, ttl time.Duration) error
	// Delete removes the log now.
	Delete(ctx context.Context, messageID int64) error
	Close() error
}

func messageKey(messageID int64) string {
	return fmt.Sprintf("message:%d", messageID)
}

type eventLog struct {
	mu     sync.Mutex
	events [][]byte
	status types.MessageStatus
}

type memoryStore struct {
	mu    sync.Mutex
	cache *cache.Cache
}

// NewMemoryStore keeps event logs in process memory.
func NewMemoryStore() EventStore {
	return &memoryStore{
		cache: cache.New(cache.NoExpiration, time.Minute),
	}
}

func (s *memoryStore) log(messageID int64, create bool) *eventLog {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := messageKey(messageID)
	if x, found := s.cache.Get(key); found {
		return x.(*eventLog)
	}
	if !create {
		return nil
	}
	l := &eventLog{}
	s.cache.Set(key, l, cache.NoExpiration)
	return l
}

func (s *memoryStore) Append(_ context.Context, messageID int64, payload []byte) error {
	l := s.log(messageID, true)
	l.mu.Lock()
	defer l.mu.Unlock()

	l.events = append(l.events, append([]byte(nil), payload...))
	return nil
}

func (s *memoryStore) Events(_ context.Context, messageID int64, from int) ([][]byte, error) {
	l := s.log(messageID, false)
	if l == nil {
		return nil, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if from < 0 {
		from = 0
	}
	if from >= len(l.events) {
		return nil, nil
	}
	out := make([][]byte, len(l.events)-from)
	copy(out, l.events[from:])
	return out, nil
}

func (s *memoryStore) SetStatus(_ context.Context, messageID int64, status types.MessageStatus) error {
	l := s.log(messageID, true)
	l.mu.Lock()
	defer l.mu.Unlock()

	l.status = status
	return nil
}

func (s *memoryStore) Status(_ context.Context, messageID int64) (types.MessageStatus, bool, error) {
	l := s.log(messageID, false)
	if l == nil {
		return "", false, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.status, l.status != "", nil
}

func (s *memoryStore) Expire(_ context.Context, messageID int64, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := messageKey(messageID)
	x, found := s.cache.Get(key)
	if !found {
		return nil
	}
	s.cache.Set(key, x, ttl)
	return nil
}

func (s *memoryStore) Delete(_ context.Context, messageID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache.Delete(messageKey(messageID))
	return nil
}

func (s *memoryStore) Close() error {
	s.cache.Flush()
	return nil
}
