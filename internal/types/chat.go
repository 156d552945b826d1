/* Copyright © 2026 Mike Brown. All Rights Reserved.
 *
 * See LICENSE file at the root of this package for license terms
 */
package types

import (
	"time"
)

// ChatMode selects how the producer answers a prompt.
type ChatMode string

const (
	ChatModeNormal      ChatMode = "normal"
	ChatModeAttachment  ChatMode = "attachment"
	ChatModeMultiSource ChatMode = "multi_source"
)

// DefaultConversationTitle is the title a conversation carries until the
// producer renames it with a title_updated event.
const DefaultConversationTitle = "新对话"

func (m ChatMode) Valid() bool {
	switch m {
	case ChatModeNormal, ChatModeAttachment, ChatModeMultiSource:
		return true
	}
	return false
}

type Attachment struct {
	Filename         string `json:"filename" validate:"required" yaml:"filename"`
	OriginalFilename string `json:"original_filename" yaml:"original_filename"`
	FileSize         int64  `json:"file_size" validate:"gte=0" yaml:"file_size"`
	MimeType         string `json:"mime_type" yaml:"mime_type"`
	FilePath         string `json:"file_path" yaml:"file_path"`
}

// StreamRequest is the body of POST /chat/stream.
type StreamRequest struct {
	ConversationID int64        `json:"conversation_id" validate:"required"`
	Content        string       `json:"content" validate:"required"`
	Mode           ChatMode     `json:"mode" validate:"required,oneof=normal attachment multi_source"`
	Attachments    []Attachment `json:"attachments" validate:"dive"`
}

type MessageType string

const (
	MessageTypeUser      MessageType = "user"
	MessageTypeAssistant MessageType = "assistant"
)

type MessageStatus string

const (
	MessageStatusGenerating MessageStatus = "generating"
	MessageStatusCompleted  MessageStatus = "completed"
	MessageStatusFailed     MessageStatus = "failed"
)

type Message struct {
	ID             int64         `json:"id"`
	ConversationID int64         `json:"conversation_id"`
	Content        string        `json:"content"`
	MessageType    MessageType   `json:"message_type"`
	Status         MessageStatus `json:"status,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
}

type Conversation struct {
	ID           int64      `json:"id"`
	Title        string     `json:"title"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`
	MessageCount int        `json:"message_count"`
}

// LatestAssistant returns the most recent assistant message in msgs, which
// are expected in chronological order.
func LatestAssistant(msgs []Message) (Message, bool) {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].MessageType == MessageTypeAssistant {
			return msgs[i], true
		}
	}
	return Message{}, false
}
