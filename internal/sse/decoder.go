/* Copyright © 2026 Mike Brown. All Rights Reserved.
 *
 * See LICENSE file at the root of this package for license terms
 */

// Package sse frames a server-sent event byte stream into decoded events.
//
// Only lines beginning with "data: " carry frames. Comment lines, blank
// separators and other SSE fields are ignored. Frames may be split across
// arbitrary chunk boundaries.
package sse

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/mikeb26/medchat/internal/types"
)

const (
	DataPrefix         = "data: "
	DefaultMaxLineSize = 4 << 20
)

var ErrLineTooLong = errors.New("sse line exceeds maximum size")

// FrameError is a frame that could not be decoded. Raw holds the payload
// after the data prefix, truncated for oversized lines.
type FrameError struct {
	Raw string
	Err error
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("malformed frame %q: %v", e.Raw, e.Err)
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// Result is either a decoded event or a frame error; exactly one is set.
type Result struct {
	Event types.Event
	Err   *FrameError
}

type Option func(*Decoder)

// WithMaxLineSize bounds the bytes buffered for a single line.
func WithMaxLineSize(n int) Option {
	return func(d *Decoder) {
		if n > 0 {
			d.maxLine = n
		}
	}
}

// Decoder is a synchronous line framer. It is not safe for concurrent use.
type Decoder struct {
	buf        []byte
	maxLine    int
	discarding bool
}

func NewDecoder(opts ...Option) *Decoder {
	d := &Decoder{maxLine: DefaultMaxLineSize}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Feed consumes one chunk and returns the results of every line it
// completed, in order.
func (d *Decoder) Feed(chunk []byte) []Result {
	var out []Result

	for len(chunk) > 0 {
		idx := bytes.IndexByte(chunk, '\n')
		if idx < 0 {
			if !d.discarding {
				d.buf = append(d.buf, chunk...)
			}
			break
		}

		if d.discarding {
			d.discarding = false
		} else {
			d.buf = append(d.buf, chunk[:idx]...)
			if len(d.buf) > d.maxLine {
				out = append(out, d.oversized())
			} else if r, ok := decodeLine(d.buf); ok {
				out = append(out, r)
			}
		}
		d.buf = d.buf[:0]
		chunk = chunk[idx+1:]
	}

	if len(d.buf) > d.maxLine {
		out = append(out, d.oversized())
		d.buf = nil
		d.discarding = true
	}

	return out
}

// Flush decodes a non-empty unterminated final line, if any, and resets the
// decoder.
func (d *Decoder) Flush() []Result {
	defer func() {
		d.buf = nil
		d.discarding = false
	}()

	if d.discarding || len(d.buf) == 0 {
		return nil
	}
	if r, ok := decodeLine(d.buf); ok {
		return []Result{r}
	}
	return nil
}

func (d *Decoder) oversized() Result {
	raw := d.buf
	if len(raw) > 64 {
		raw = raw[:64]
	}
	return Result{Err: &FrameError{
		Raw: string(bytes.TrimPrefix(raw, []byte(DataPrefix))),
		Err: ErrLineTooLong,
	}}
}

func decodeLine(line []byte) (Result, bool) {
	line = bytes.TrimSuffix(line, []byte("\r"))
	if !bytes.HasPrefix(line, []byte(DataPrefix)) {
		return Result{}, false
	}
	payload := line[len(DataPrefix):]

	ev, err := types.DecodeEvent(payload)
	if err != nil {
		return Result{Err: &FrameError{Raw: string(payload), Err: err}}, true
	}
	return Result{Event: ev}, true
}

// DecodeAll frames a complete in-memory stream.
func DecodeAll(data []byte, opts ...Option) []Result {
	d := NewDecoder(opts...)
	out := d.Feed(data)
	return append(out, d.Flush()...)
}
