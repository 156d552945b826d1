/* Copyright © 2026 Mike Brown. All Rights Reserved.
 *
 * See LICENSE file at the root of this package for license terms
 */
package turns

import (
	"context"
	"sync"

	"github.com/mikeb26/medchat/internal/types"
	"github.com/mikeb26/medchat/internal/workflow"
)

// Update is published once per applied event. Snapshot is a private copy.
type Update struct {
	TurnID   string
	Event    types.Event
	Outcome  workflow.Outcome
	Snapshot *workflow.Document
	State    TurnState
}

// Result is sent once when the turn reaches a terminal state.
type Result struct {
	State    TurnState
	Snapshot *workflow.Document
	// Messages is the persisted conversation re-fetched after done.
	Messages   []types.Message
	RefetchErr error
	Err        error
}

type Diagnostics struct {
	Applied   int
	Malformed int
	Unknown   int
	Dropped   int
}

// Turn is one assistant reply being streamed. Callers select on Updates,
// Result and Done; Updates must be drained or the worker stalls until the
// turn is cancelled. Result is sent and Updates closed as soon as the turn
// ends. Done closes later, once frames sent after the terminal event (a late
// title_updated) have been read.
type Turn struct {
	ID             string
	ConversationID int64
	MessageID      int64
	Kind           Kind

	Updates <-chan Update
	Result  <-chan Result
	Done    <-chan struct{}

	mu     sync.Mutex
	state  TurnState
	doc    *workflow.Document
	diag   Diagnostics
	cancel context.CancelFunc
}

func (t *Turn) State() TurnState {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.state
}

// Snapshot returns a deep copy of the current document.
func (t *Turn) Snapshot() *workflow.Document {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.doc.Clone()
}

func (t *Turn) IsGenerating() bool {
	return t.State().Active()
}

func (t *Turn) IsDone() bool {
	return t.State().Terminal()
}

func (t *Turn) Diagnostics() Diagnostics {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.diag
}

// Cancel abandons the turn. No event read after Cancel returns is applied.
// The producer is not told to stop. It is safe to call multiple times.
func (t *Turn) Cancel() {
	if t == nil {
		return
	}
	t.mu.Lock()
	if t.state.Active() {
		t.state = TurnStateCancelled
		t.doc.Halt()
	}
	t.mu.Unlock()

	if t.cancel != nil {
		t.cancel()
	}
}

// streaming moves Connecting to Streaming; it fails if the turn was
// cancelled first.
func (t *Turn) streaming() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != TurnStateConnecting {
		return false
	}
	t.state = TurnStateStreaming
	return true
}

// apply mutates the document with ev while the turn is still streaming.
func (t *Turn) apply(ev types.Event) (Update, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != TurnStateStreaming {
		return Update{}, false
	}

	out := t.doc.Apply(ev)
	t.diag.Applied++
	if out.Unknown != "" {
		t.diag.Unknown++
	}
	if out.Dropped != "" {
		t.diag.Dropped++
	}

	return Update{
		TurnID:   t.ID,
		Event:    ev,
		Outcome:  out,
		Snapshot: t.doc.Clone(),
		State:    t.state,
	}, true
}

func (t *Turn) malformed() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.diag.Malformed++
}

// finish moves the turn to its terminal state unless Cancel already did.
func (t *Turn) finish(state TurnState, transportErr string) (TurnState, *workflow.Document) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.state.Terminal() {
		t.state = state
		switch state {
		case TurnStateCancelled:
			t.doc.Halt()
		case TurnStateErrored:
			if transportErr != "" {
				t.doc.Fail(transportErr)
			}
		}
	}

	return t.state, t.doc.Clone()
}
