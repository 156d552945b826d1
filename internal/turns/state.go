/* Copyright © 2026 Mike Brown. All Rights Reserved.
 *
 * See LICENSE file at the root of this package for license terms
 */
package turns

import (
	"errors"
	"fmt"
)

type TurnState int

const (
	TurnStateIdle TurnState = iota
	TurnStateConnecting
	TurnStateStreaming
	TurnStateCompleted
	TurnStateErrored
	TurnStateCancelled
)

func (s TurnState) String() string {
	switch s {
	case TurnStateIdle:
		return "idle"
	case TurnStateConnecting:
		return "connecting"
	case TurnStateStreaming:
		return "streaming"
	case TurnStateCompleted:
		return "completed"
	case TurnStateErrored:
		return "errored"
	case TurnStateCancelled:
		return "cancelled"
	}
	return fmt.Sprintf("TurnState(%d)", int(s))
}

// Active reports whether a turn in this state still owns a connection.
func (s TurnState) Active() bool {
	return s == TurnStateConnecting || s == TurnStateStreaming
}

func (s TurnState) Terminal() bool {
	return s == TurnStateCompleted || s == TurnStateErrored ||
		s == TurnStateCancelled
}

type Kind string

const (
	KindStart  Kind = "start"
	KindResume Kind = "resume"
)

var (
	ErrTurnActive    = errors.New("a turn is already streaming for this conversation")
	ErrNoTurn        = errors.New("no active turn for this conversation")
	ErrNotGenerating = errors.New("latest assistant message is not generating")
	ErrStreamClosed  = errors.New("stream closed before the turn finished")
)

// ProtocolError is an error event sent by the producer. Content is meant for
// the user as-is.
type ProtocolError struct {
	Content string
	Step    string
}

func (e *ProtocolError) Error() string {
	if e.Step != "" {
		return fmt.Sprintf("%v (step %v)", e.Content, e.Step)
	}
	return e.Content
}
