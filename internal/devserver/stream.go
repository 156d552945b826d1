/* Copyright © 2026 Mike Brown. All Rights Reserved.
 *
 * See LICENSE file at the root of this package for license terms
 */
package devserver

import (
	"bufio"
	"context"
	"time"

	"github.com/mikeb26/medchat/internal/sse"
	"github.com/mikeb26/medchat/internal/types"
)

const (
	DefaultPollInterval      = 50 * time.Millisecond
	DefaultKeepaliveInterval = 15 * time.Second
)

type streamer struct {
	store     EventStore
	poll      time.Duration
	keepalive time.Duration
	// lookup resolves a message whose log is gone; nil treats it as done.
	lookup func(messageID int64) (types.Message, bool)
}

func writeFrame(w *bufio.Writer, payload []byte) error {
	if _, err := w.WriteString(sse.DataPrefix); err != nil {
		return err
	}
	if _, err := w.Write(payload); err != nil {
		return err
	}
	_, err := w.WriteString("\n\n")
	return err
}

func writeEvent(w *bufio.Writer, ev types.Event) error {
	payload, err := types.EncodeEvent(ev)
	if err != nil {
		return err
	}
	if err := writeFrame(w, payload); err != nil {
		return err
	}
	return w.Flush()
}

func doneEvent(messageID int64) types.DoneEvent {
	return types.DoneEvent{MessageID: &messageID}
}

func isTerminal(payload []byte) bool {
	ev, err := types.DecodeEvent(payload)
	if err != nil {
		return false
	}
	switch ev.(type) {
	case types.DoneEvent, types.ErrorEvent:
		return true
	}
	return false
}

// terminalFor is the closing event for a message with no retained log.
func (s *streamer) terminalFor(messageID int64) types.Event {
	if s.lookup == nil {
		return doneEvent(messageID)
	}
	if msg, ok := s.lookup(messageID); ok && msg.Status == types.MessageStatusCompleted {
		return doneEvent(messageID)
	}
	return types.ErrorEvent{Content: failedReason}
}

// stream relays messageID's event log from its first event until the log
// reaches a terminal status. Frames logged after done (a title) are relayed
// too; done or error is written only when the log carries neither. A flush
// failure means the client went away; generation is unaffected.
func (s *streamer) stream(ctx context.Context, w *bufio.Writer, messageID int64) error {
	sent := 0
	ended := false
	lastWrite := time.Now()
	for {
		// Status is read before events so nothing appended ahead of a
		// terminal status is missed.
		status, ok, err := s.store.Status(ctx, messageID)
		if err != nil {
			return err
		}
		events, err := s.store.Events(ctx, messageID, sent)
		if err != nil {
			return err
		}
		for _, payload := range events {
			if err := writeFrame(w, payload); err != nil {
				return err
			}
			ended = ended || isTerminal(payload)
			sent++
		}

		switch {
		case ended && (!ok || status != types.MessageStatusGenerating):
			return w.Flush()
		case !ok:
			return writeEvent(w, s.terminalFor(messageID))
		case status == types.MessageStatusCompleted:
			return writeEvent(w, doneEvent(messageID))
		case status == types.MessageStatusFailed:
			return writeEvent(w, types.ErrorEvent{Content: failedReason})
		}

		now := time.Now()
		if len(events) > 0 {
			if err := w.Flush(); err != nil {
				return err
			}
			lastWrite = now
		} else if s.keepalive > 0 && now.Sub(lastWrite) >= s.keepalive {
			if _, err := w.WriteString(": ping\n\n"); err != nil {
				return err
			}
			if err := w.Flush(); err != nil {
				return err
			}
			lastWrite = now
		}

		if err := pause(ctx, s.poll); err != nil {
			return err
		}
	}
}
