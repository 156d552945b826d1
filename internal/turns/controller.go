/* Copyright © 2026 Mike Brown. All Rights Reserved.
 *
 * See LICENSE file at the root of this package for license terms
 */

// Package turns drives assistant turns: it opens the event stream, applies
// each event to the turn's document and publishes progress.
package turns

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mikeb26/medchat/internal/logging"
	"github.com/mikeb26/medchat/internal/sse"
	"github.com/mikeb26/medchat/internal/types"
	"github.com/mikeb26/medchat/internal/workflow"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName      = "github.com/mikeb26/medchat/internal/turns"
	updateQueueSize = 64

	// DefaultTailTimeout bounds how long a finished turn keeps reading
	// frames the producer sends after done, such as a late title_updated.
	DefaultTailTimeout = 5 * time.Second
)

type StartRequest struct {
	ConversationID int64
	Content        string
	Mode           types.ChatMode
	Attachments    []types.Attachment
}

type opener func(ctx context.Context) (io.ReadCloser, error)

// Controller owns at most one active turn per conversation.
type Controller struct {
	mu     sync.Mutex
	api    types.ChatAPI
	titles types.TitleSink
	logger logging.Logger
	tracer trace.Tracer
	sseOps []sse.Option
	turns  map[int64]*Turn

	tailTimeout time.Duration
}

func NewController(api types.ChatAPI) *Controller {
	return &Controller{
		api:    api,
		logger: logging.Nop(),
		tracer: otel.Tracer(tracerName),
		turns:  make(map[int64]*Turn),

		tailTimeout: DefaultTailTimeout,
	}
}

// WithTitleSink forwards title_updated events to sink.
func (c *Controller) WithTitleSink(sink types.TitleSink) *Controller {
	c.titles = sink
	return c
}

func (c *Controller) WithLogger(l logging.Logger) *Controller {
	c.logger = l
	return c
}

func (c *Controller) WithTracer(t trace.Tracer) *Controller {
	c.tracer = t
	return c
}

// WithTailTimeout sets how long frames after the terminal event are read.
// Zero reads until the producer closes the stream or the turn is cancelled.
func (c *Controller) WithTailTimeout(d time.Duration) *Controller {
	c.tailTimeout = d
	return c
}

func (c *Controller) WithStreamOptions(opts ...sse.Option) *Controller {
	c.sseOps = opts
	return c
}

// Start sends a new user message. Any active turn of the same conversation
// is cancelled first.
func (c *Controller) Start(ctx context.Context, req StartRequest) (*Turn, error) {
	streamReq := types.StreamRequest{
		ConversationID: req.ConversationID,
		Content:        req.Content,
		Mode:           req.Mode,
		Attachments:    req.Attachments,
	}
	if streamReq.Mode == "" {
		streamReq.Mode = types.ChatModeNormal
	}
	if streamReq.Mode == types.ChatModeNormal && len(streamReq.Attachments) > 0 {
		streamReq.Mode = types.ChatModeAttachment
	}

	open := func(ctx context.Context) (io.ReadCloser, error) {
		return c.api.OpenStream(ctx, streamReq)
	}
	return c.launch(ctx, req.ConversationID, 0, KindStart,
		workflow.ModeFor(streamReq.Mode), open), nil
}

// Resume reconnects to a message still generating on the producer. The
// document starts empty; only events received on the new connection are
// applied.
func (c *Controller) Resume(ctx context.Context, conversationID int64,
	messageID int64) (*Turn, error) {

	if messageID <= 0 {
		return nil, fmt.Errorf("invalid message id %d", messageID)
	}
	open := func(ctx context.Context) (io.ReadCloser, error) {
		return c.api.ContinueStream(ctx, messageID)
	}
	return c.launch(ctx, conversationID, messageID, KindResume, workflow.ModeFlat,
		open), nil
}

// ResumeIfGenerating inspects the conversation's latest assistant message
// and resumes it only when its persisted status is generating.
func (c *Controller) ResumeIfGenerating(ctx context.Context,
	conversationID int64) (*Turn, error) {

	if c.Active(conversationID) != nil {
		return nil, ErrTurnActive
	}
	msgs, err := c.api.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("Failed to load messages for conversation %d: %w",
			conversationID, err)
	}
	latest, ok := types.LatestAssistant(msgs)
	if !ok || latest.Status != types.MessageStatusGenerating {
		return nil, ErrNotGenerating
	}

	return c.Resume(ctx, conversationID, latest.ID)
}

// Cancel abandons the conversation's active turn.
func (c *Controller) Cancel(conversationID int64) error {
	turn := c.Active(conversationID)
	if turn == nil {
		return ErrNoTurn
	}
	turn.Cancel()
	return nil
}

// Active returns the conversation's connecting or streaming turn, or nil.
func (c *Controller) Active(conversationID int64) *Turn {
	c.mu.Lock()
	defer c.mu.Unlock()

	turn := c.turns[conversationID]
	if turn == nil || !turn.State().Active() {
		return nil
	}
	return turn
}

// Focus cancels the turns of every conversation other than conversationID,
// so a backgrounded conversation cannot keep mutating visible state.
func (c *Controller) Focus(conversationID int64) {
	for _, turn := range c.snapshotTurns() {
		if turn.ConversationID != conversationID {
			turn.Cancel()
		}
	}
}

func (c *Controller) CancelAll() {
	for _, turn := range c.snapshotTurns() {
		turn.Cancel()
	}
}

func (c *Controller) snapshotTurns() []*Turn {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]*Turn, 0, len(c.turns))
	for _, t := range c.turns {
		out = append(out, t)
	}
	return out
}

func (c *Controller) launch(ctx context.Context, conversationID int64,
	messageID int64, kind Kind, mode workflow.Mode, open opener) *Turn {

	ctx, cancel := context.WithCancel(ctx)
	updatesCh := make(chan Update, updateQueueSize)
	resultCh := make(chan Result, 1)
	doneCh := make(chan struct{})

	turn := &Turn{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		MessageID:      messageID,
		Kind:           kind,
		Updates:        updatesCh,
		Result:         resultCh,
		Done:           doneCh,
		state:          TurnStateConnecting,
		doc:            workflow.New(mode),
		cancel:         cancel,
	}

	c.mu.Lock()
	prev := c.turns[conversationID]
	c.turns[conversationID] = turn
	c.mu.Unlock()

	if prev != nil {
		prev.Cancel()
	}

	c.logger.Info("turns", "turn started", map[string]any{
		"turn_id":         turn.ID,
		"conversation_id": conversationID,
		"message_id":      messageID,
		"kind":            string(kind),
		"mode":            string(mode),
	})

	go c.run(ctx, turn, open, updatesCh, resultCh, doneCh)

	return turn
}

// release forgets turn unless a newer turn has replaced it.
func (c *Controller) release(turn *Turn) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.turns[turn.ConversationID] == turn {
		delete(c.turns, turn.ConversationID)
	}
}
