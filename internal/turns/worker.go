/* Copyright © 2026 Mike Brown. All Rights Reserved.
 *
 * See LICENSE file at the root of this package for license terms
 */
package turns

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/mikeb26/medchat/internal/sse"
	"github.com/mikeb26/medchat/internal/types"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

func (c *Controller) run(ctx context.Context, turn *Turn, open opener,
	updatesCh chan<- Update, resultCh chan<- Result, doneCh chan<- struct{}) {

	defer close(doneCh)
	defer turn.cancel()

	ctx, span := c.tracer.Start(ctx, "turn.stream", trace.WithAttributes(
		attribute.String("turn.id", turn.ID),
		attribute.Int64("conversation.id", turn.ConversationID),
		attribute.String("turn.kind", string(turn.Kind)),
	))

	res, tail := c.stream(ctx, turn, open, updatesCh)

	diag := turn.Diagnostics()
	span.SetAttributes(
		attribute.String("turn.state", res.State.String()),
		attribute.Int("turn.events", diag.Applied),
		attribute.Int("turn.malformed", diag.Malformed),
		attribute.Int("turn.unknown", diag.Unknown),
	)
	if res.Err != nil {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, res.Err.Error())
	}
	span.End()

	details := map[string]any{
		"turn_id":   turn.ID,
		"state":     res.State.String(),
		"applied":   diag.Applied,
		"malformed": diag.Malformed,
		"unknown":   diag.Unknown,
		"dropped":   diag.Dropped,
	}
	if res.Err != nil {
		details["error"] = res.Err
		c.logger.Error("turns", "turn failed", details)
	} else {
		c.logger.Info("turns", "turn finished", details)
	}

	c.release(turn)
	resultCh <- res
	close(resultCh)
	close(updatesCh)

	if tail != nil {
		c.drainTail(turn, tail)
	}
}

// stream runs the turn to its terminal state. When that state was reached
// through a done or error event the still-open stream is returned so the
// frames the producer sends after it can be drained.
func (c *Controller) stream(ctx context.Context, turn *Turn, open opener,
	updatesCh chan<- Update) (Result, *schema.StreamReader[sse.Result]) {

	body, err := open(ctx)
	if err != nil {
		return c.fail(ctx, turn, err), nil
	}
	if turn.State() != TurnStateConnecting {
		_ = body.Close()
		return c.fail(ctx, turn, context.Canceled), nil
	}

	stream := sse.Stream(ctx, body, c.sseOps...)
	var terminal types.Event
	for started := false; terminal == nil; {
		r, recvErr := stream.Recv()
		if recvErr != nil {
			stream.Close()
			if errors.Is(recvErr, io.EOF) {
				return c.fail(ctx, turn, ErrStreamClosed), nil
			}
			return c.fail(ctx, turn, recvErr), nil
		}
		if !started {
			// first frame off the wire
			if !turn.streaming() {
				stream.Close()
				return c.fail(ctx, turn, context.Canceled), nil
			}
			started = true
		}
		if r.Err != nil {
			c.malformed(turn, r.Err)
			continue
		}

		upd, ok := turn.apply(r.Event)
		if !ok {
			stream.Close()
			return c.fail(ctx, turn, context.Canceled), nil
		}
		c.observe(turn, upd)
		trySendUpdate(ctx, updatesCh, upd)

		if upd.Outcome.Terminal {
			terminal = r.Event
		}
	}

	if e, ok := terminal.(types.ErrorEvent); ok {
		state, snap := turn.finish(TurnStateErrored, "")
		return Result{State: state, Snapshot: snap,
			Err: &ProtocolError{Content: e.Content, Step: e.Step}}, stream
	}

	state, snap := turn.finish(TurnStateCompleted, "")
	res := Result{State: state, Snapshot: snap}
	if state != TurnStateCompleted {
		stream.Close()
		return res, nil
	}
	res.Messages, res.RefetchErr = c.api.ListMessages(ctx, turn.ConversationID)
	if res.RefetchErr != nil {
		c.logger.Warn("turns", "message refetch failed", map[string]any{
			"turn_id": turn.ID,
			"error":   res.RefetchErr.Error(),
		})
	}

	return res, stream
}

// drainTail reads what the producer sends after the terminal event, until
// EOF, cancellation or the tail timeout. A title_updated still reaches the
// title sink; everything else is ignored and the document is not touched.
func (c *Controller) drainTail(turn *Turn, stream *schema.StreamReader[sse.Result]) {
	defer stream.Close()
	if c.tailTimeout > 0 {
		timer := time.AfterFunc(c.tailTimeout, turn.cancel)
		defer timer.Stop()
	}

	for {
		r, err := stream.Recv()
		if err != nil {
			return
		}
		if r.Err != nil {
			c.malformed(turn, r.Err)
			continue
		}
		if e, ok := r.Event.(types.TitleUpdatedEvent); ok {
			if c.titles != nil {
				c.titles.Rename(e.ConversationID, e.Title)
			}
			continue
		}
		c.logger.Debug("turns", "event after end ignored", map[string]any{
			"turn_id": turn.ID,
			"type":    string(r.Event.Type()),
		})
	}
}

func (c *Controller) malformed(turn *Turn, fe *sse.FrameError) {
	turn.malformed()
	c.logger.Warn("turns", "malformed frame dropped", map[string]any{
		"turn_id": turn.ID,
		"raw":     fe.Raw,
		"error":   fe.Err.Error(),
	})
}

// fail ends the turn. A cancelled context means the client abandoned it,
// anything else is a transport failure.
func (c *Controller) fail(ctx context.Context, turn *Turn, err error) Result {
	target, msg := TurnStateErrored, err.Error()
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		target, msg = TurnStateCancelled, ""
	}

	state, snap := turn.finish(target, msg)
	if state == TurnStateCancelled {
		return Result{State: state, Snapshot: snap}
	}
	return Result{State: state, Snapshot: snap, Err: err}
}

func (c *Controller) observe(turn *Turn, upd Update) {
	out := upd.Outcome
	switch {
	case out.Unknown != "":
		c.logger.Debug("turns", "unknown event ignored", map[string]any{
			"turn_id": turn.ID,
			"type":    out.Unknown,
		})
	case out.Dropped != "":
		c.logger.Debug("turns", "event dropped", map[string]any{
			"turn_id": turn.ID,
			"type":    string(upd.Event.Type()),
			"reason":  out.Dropped,
		})
	case out.TitleUpdate != nil && c.titles != nil:
		c.titles.Rename(out.TitleUpdate.ConversationID, out.TitleUpdate.Title)
	}
}

func trySendUpdate(ctx context.Context, ch chan<- Update, upd Update) {
	select {
	case <-ctx.Done():
		return
	case ch <- upd:
		return
	}
}
