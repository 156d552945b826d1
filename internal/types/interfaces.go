/* Copyright © 2026 Mike Brown. All Rights Reserved.
 *
 * See LICENSE file at the root of this package for license terms
 */
package types

import (
	"context"
	"io"
)

// ChatAPI is the subset of the assistant backend the turn controller talks
// to. Stream bodies are raw SSE byte streams owned by the caller, which must
// close them.
//
//go:generate mockgen --build_flags=--mod=mod -destination=chatapi_mock.go -package=$GOPACKAGE github.com/mikeb26/medchat/internal/types ChatAPI
type ChatAPI interface {
	OpenStream(ctx context.Context, req StreamRequest) (io.ReadCloser, error)
	ContinueStream(ctx context.Context, messageID int64) (io.ReadCloser, error)
	ListMessages(ctx context.Context, conversationID int64) ([]Message, error)
}

// TitleSink receives conversation renames announced by the producer.
type TitleSink interface {
	Rename(conversationID int64, title string)
}
