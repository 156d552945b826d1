/* Copyright © 2026 Mike Brown. All Rights Reserved.
 *
 * See LICENSE file at the root of this package for license terms
 */
package sse

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/cloudwego/eino/schema"
)

const readChunkSize = 32 * 1024

// Stream decodes body lazily on a reader goroutine. Decode errors arrive as
// Result values; a transport error or cancellation is returned by Recv and
// ends the stream. body is closed when the stream ends, when ctx is done, or
// when the returned reader is closed and the next chunk arrives.
func Stream(ctx context.Context, body io.ReadCloser,
	opts ...Option) *schema.StreamReader[Result] {

	sr, sw := schema.Pipe[Result](16)
	go pump(ctx, body, NewDecoder(opts...), sw)

	return sr
}

func pump(ctx context.Context, body io.ReadCloser, dec *Decoder,
	sw *schema.StreamWriter[Result]) {

	var once sync.Once
	closeBody := func() { once.Do(func() { _ = body.Close() }) }

	defer sw.Close()
	defer closeBody()

	stop := context.AfterFunc(ctx, closeBody)
	defer stop()

	buf := make([]byte, readChunkSize)
	for {
		n, err := body.Read(buf)
		if ctx.Err() != nil {
			sw.Send(Result{}, ctx.Err())
			return
		}
		if n > 0 {
			for _, r := range dec.Feed(buf[:n]) {
				if closed := sw.Send(r, nil); closed {
					return
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				for _, r := range dec.Flush() {
					if closed := sw.Send(r, nil); closed {
						return
					}
				}
				return
			}
			sw.Send(Result{}, err)
			return
		}
	}
}

// Collect drains sr into a slice. It stops at the first transport error.
func Collect(sr *schema.StreamReader[Result]) ([]Result, error) {
	defer sr.Close()

	var out []Result
	for {
		r, err := sr.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return out, err
		}
		out = append(out, r)
	}
}
