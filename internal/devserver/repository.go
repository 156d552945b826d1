/* Copyright © 2026 Mike Brown. All Rights Reserved.
 *
 * See LICENSE file at the root of this package for license terms
 */
package devserver

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/mikeb26/medchat/internal/types"
)

var ErrConversationNotFound = errors.New("conversation not found")
var ErrMessageNotFound = errors.New("message not found")

// repository is the producer's persisted state: conversations and their
// messages. It lives in memory for the lifetime of the process.
type repository struct {
	mu            sync.Mutex
	nextConvID    int64
	nextMsgID     int64
	conversations map[int64]*types.Conversation
	messages      map[int64][]*types.Message
	byID          map[int64]*types.Message
}

func newRepository() *repository {
	return &repository{
		conversations: make(map[int64]*types.Conversation),
		messages:      make(map[int64][]*types.Message),
		byID:          make(map[int64]*types.Message),
	}
}

func (r *repository) createConversation(title string) types.Conversation {
	r.mu.Lock()
	defer r.mu.Unlock()

	if title == "" {
		title = types.DefaultConversationTitle
	}
	r.nextConvID++
	conv := &types.Conversation{
		ID:        r.nextConvID,
		Title:     title,
		CreatedAt: time.Now().UTC(),
	}
	r.conversations[conv.ID] = conv
	return *conv
}

func (r *repository) conversation(id int64) (types.Conversation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conv, ok := r.conversations[id]
	if !ok {
		return types.Conversation{}, false
	}
	return *conv, true
}

// listConversations returns conversations most recently updated first.
func (r *repository) listConversations() []types.Conversation {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]types.Conversation, 0, len(r.conversations))
	for _, conv := range r.conversations {
		c := *conv
		c.MessageCount = len(r.messages[conv.ID])
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b types.Conversation) int {
		at, bt := lastTouched(a), lastTouched(b)
		if c := bt.Compare(at); c != 0 {
			return c
		}
		return int(b.ID - a.ID)
	})
	return out
}

func lastTouched(c types.Conversation) time.Time {
	if c.UpdatedAt != nil {
		return *c.UpdatedAt
	}
	return c.CreatedAt
}

func (r *repository) rename(id int64, title string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conv, ok := r.conversations[id]
	if !ok {
		return ErrConversationNotFound
	}
	conv.Title = title
	r.touch(conv)
	return nil
}

func (r *repository) touch(conv *types.Conversation) {
	now := time.Now().UTC()
	conv.UpdatedAt = &now
}

func (r *repository) addMessage(convID int64, typ types.MessageType, content string,
	status types.MessageStatus) (types.Message, error) {

	r.mu.Lock()
	defer r.mu.Unlock()

	conv, ok := r.conversations[convID]
	if !ok {
		return types.Message{}, ErrConversationNotFound
	}
	r.nextMsgID++
	msg := &types.Message{
		ID:             r.nextMsgID,
		ConversationID: convID,
		Content:        content,
		MessageType:    typ,
		Status:         status,
		CreatedAt:      time.Now().UTC(),
	}
	r.messages[convID] = append(r.messages[convID], msg)
	r.byID[msg.ID] = msg
	r.touch(conv)
	return *msg, nil
}

func (r *repository) finishMessage(id int64, content string, status types.MessageStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg, ok := r.byID[id]
	if !ok {
		return ErrMessageNotFound
	}
	msg.Content = content
	msg.Status = status
	return nil
}

func (r *repository) message(id int64) (types.Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg, ok := r.byID[id]
	if !ok {
		return types.Message{}, false
	}
	return *msg, true
}

func (r *repository) listMessages(convID int64) ([]types.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conversations[convID]; !ok {
		return nil, ErrConversationNotFound
	}
	out := make([]types.Message, 0, len(r.messages[convID]))
	for _, m := range r.messages[convID] {
		out = append(out, *m)
	}
	return out, nil
}
