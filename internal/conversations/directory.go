/* Copyright © 2026 Mike Brown. All Rights Reserved.
 *
 * See LICENSE file at the root of this package for license terms
 */

// Package conversations keeps a cached view of the user's conversation list.
package conversations

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/mikeb26/medchat/internal/logging"
	"github.com/mikeb26/medchat/internal/types"
	"github.com/patrickmn/go-cache"
)

const (
	DefaultTTL = time.Minute
	listKey    = "conversations"
)

type Lister interface {
	ListConversations(ctx context.Context) ([]types.Conversation, error)
}

// Directory caches the conversation list and applies renames announced on
// the event stream without a refetch.
type Directory struct {
	mu     sync.Mutex
	api    Lister
	cache  *cache.Cache
	logger logging.Logger
}

var _ types.TitleSink = (*Directory)(nil)

func NewDirectory(api Lister, ttl time.Duration) *Directory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Directory{
		api:    api,
		cache:  cache.New(ttl, 2*ttl),
		logger: logging.Nop(),
	}
}

func (d *Directory) WithLogger(l logging.Logger) *Directory {
	d.logger = l
	return d
}

// List returns the cached list, fetching it when absent or expired.
func (d *Directory) List(ctx context.Context) ([]types.Conversation, error) {
	if x, found := d.cache.Get(listKey); found {
		return slices.Clone(x.([]types.Conversation)), nil
	}

	convs, err := d.api.ListConversations(ctx)
	if err != nil {
		return nil, err
	}
	d.cache.Set(listKey, slices.Clone(convs), cache.DefaultExpiration)

	return convs, nil
}

func (d *Directory) Get(ctx context.Context, id int64) (types.Conversation, bool, error) {
	convs, err := d.List(ctx)
	if err != nil {
		return types.Conversation{}, false, err
	}
	for _, c := range convs {
		if c.ID == id {
			return c, true, nil
		}
	}
	return types.Conversation{}, false, nil
}

// Rename updates the cached entry in place, keeping its expiration. It is a
// no-op when nothing is cached.
func (d *Directory) Rename(conversationID int64, title string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	x, exp, found := d.cache.GetWithExpiration(listKey)
	if !found {
		return
	}
	convs := slices.Clone(x.([]types.Conversation))
	idx := slices.IndexFunc(convs, func(c types.Conversation) bool {
		return c.ID == conversationID
	})
	if idx < 0 {
		d.logger.Debug("conversations", "rename for uncached conversation",
			map[string]any{"conversation_id": conversationID})
		return
	}
	convs[idx].Title = title

	ttl := cache.NoExpiration
	if !exp.IsZero() {
		ttl = time.Until(exp)
		if ttl <= 0 {
			return
		}
	}
	d.cache.Set(listKey, convs, ttl)
	d.logger.Info("conversations", "conversation renamed",
		map[string]any{"conversation_id": conversationID, "title": title})
}

func (d *Directory) Invalidate() {
	d.cache.Delete(listKey)
}
