/* Copyright © 2026 Mike Brown. All Rights Reserved.
 *
 * See LICENSE file at the root of this package for license terms
 */
package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEventKnownTypes(t *testing.T) {
	ev, err := DecodeEvent([]byte(`{"type":"section_start","step":"search","title":"Searching","collapsible":true}`))
	require.NoError(t, err)
	assert.Equal(t, SectionStartEvent{Step: "search", Title: "Searching", Collapsible: true}, ev)

	ev, err = DecodeEvent([]byte(`{"type":"log","content":"a","newline":false,"source":"attachment"}`))
	require.NoError(t, err)
	log, ok := ev.(LogEvent)
	require.True(t, ok)
	require.NotNil(t, log.Newline)
	assert.False(t, *log.Newline)
	require.NotNil(t, log.Source)
	assert.Equal(t, "attachment", *log.Source)

	ev, err = DecodeEvent([]byte(`{"type":"done","message_id":42}`))
	require.NoError(t, err)
	done := ev.(DoneEvent)
	require.NotNil(t, done.MessageID)
	assert.Equal(t, int64(42), *done.MessageID)

	ev, err = DecodeEvent([]byte(`{"type":"title_updated","conversation_id":7,"title":"Aspirin"}`))
	require.NoError(t, err)
	assert.Equal(t, TitleUpdatedEvent{ConversationID: 7, Title: "Aspirin"}, ev)
}

func TestDecodeEventOptionalFields(t *testing.T) {
	ev, err := DecodeEvent([]byte(`{"type":"log","content":"a"}`))
	require.NoError(t, err)
	assert.Nil(t, ev.(LogEvent).Newline)
	assert.Nil(t, ev.(LogEvent).Source)

	ev, err = DecodeEvent([]byte(`{"type":"result","content":"","data":null}`))
	require.NoError(t, err)
	res := ev.(ResultEvent)
	require.NotNil(t, res.Content)
	assert.Equal(t, "", *res.Content)
	assert.Nil(t, res.Data)
	assert.Nil(t, res.Summary)

	ev, err = DecodeEvent([]byte(`{"type":"result","data":{"n":3},"summary":"3 found","is_incremental":true}`))
	require.NoError(t, err)
	res = ev.(ResultEvent)
	assert.Nil(t, res.Content)
	assert.JSONEq(t, `{"n":3}`, string(res.Data))
	assert.Equal(t, "3 found", *res.Summary)
	assert.True(t, res.IsIncremental)
}

func TestDecodeEventUnknownType(t *testing.T) {
	payload := []byte(`{"type":"heartbeat","seq":1}`)
	ev, err := DecodeEvent(payload)
	require.NoError(t, err)
	u, ok := ev.(UnknownEvent)
	require.True(t, ok)
	assert.Equal(t, "heartbeat", u.Kind)
	assert.Equal(t, EventType("heartbeat"), u.Type())

	payload[2] = 'X'
	assert.JSONEq(t, `{"type":"heartbeat","seq":1}`, string(u.Raw))
}

func TestDecodeEventRejectsMalformed(t *testing.T) {
	_, err := DecodeEvent([]byte(`{"content":"x"}`))
	assert.ErrorIs(t, err, ErrMissingType)

	_, err = DecodeEvent([]byte(`not json`))
	assert.Error(t, err)

	_, err = DecodeEvent([]byte(`["type","token"]`))
	assert.Error(t, err)

	_, err = DecodeEvent([]byte(`{"type":5}`))
	assert.Error(t, err)

	_, err = DecodeEvent([]byte(`{"type":"token","content":12}`))
	assert.Error(t, err)
}

func TestEncodeEventPutsTypeFirst(t *testing.T) {
	b, err := EncodeEvent(TokenEvent{Content: "hi"})
	require.NoError(t, err)
	assert.Equal(t, `{"type":"token","content":"hi"}`, string(b))

	b, err = EncodeEvent(DoneEvent{})
	require.NoError(t, err)
	assert.Equal(t, `{"type":"done"}`, string(b))

	b, err = EncodeEvent(LogEvent{Content: "x", Newline: Bool(false)})
	require.NoError(t, err)
	ev, err := DecodeEvent(b)
	require.NoError(t, err)
	assert.Equal(t, LogEvent{Content: "x", Newline: Bool(false)}, ev)

	_, err = EncodeEvent(nil)
	assert.Error(t, err)
}

func TestLatestAssistant(t *testing.T) {
	msgs := []Message{
		{ID: 1, MessageType: MessageTypeUser},
		{ID: 2, MessageType: MessageTypeAssistant, Status: MessageStatusCompleted},
		{ID: 3, MessageType: MessageTypeUser},
		{ID: 4, MessageType: MessageTypeAssistant, Status: MessageStatusGenerating},
	}
	m, ok := LatestAssistant(msgs)
	assert.True(t, ok)
	assert.Equal(t, int64(4), m.ID)

	_, ok = LatestAssistant(msgs[:1])
	assert.False(t, ok)
}

func TestStreamRequestJSON(t *testing.T) {
	b, err := json.Marshal(StreamRequest{ConversationID: 1, Content: "q", Mode: ChatModeNormal, Attachments: []Attachment{}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"conversation_id":1,"content":"q","mode":"normal","attachments":[]}`, string(b))
	assert.True(t, ChatModeMultiSource.Valid())
	assert.False(t, ChatMode("deep").Valid())
}
