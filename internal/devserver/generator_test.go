/* Copyright © 2026 Mike Brown. All Rights Reserved.
 *
 * See LICENSE file at the root of this package for license terms
 */
package devserver

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mikeb26/medchat/internal/logging"
	"github.com/mikeb26/medchat/internal/sse"
	"github.com/mikeb26/medchat/internal/types"
	"github.com/mikeb26/medchat/internal/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

var errStatusWrite = errors.New("status write refused")

// statusFailingStore refuses SetStatus for failOn, or for every status when
// failOn is empty.
type statusFailingStore struct {
	EventStore
	failOn types.MessageStatus
}

func (s *statusFailingStore) SetStatus(ctx context.Context, messageID int64,
	status types.MessageStatus) error {

	if s.failOn == "" || s.failOn == status {
		return errStatusWrite
	}
	return s.EventStore.SetStatus(ctx, messageID, status)
}

func reduce(mode types.ChatMode, events []types.Event) *workflow.Document {
	doc := workflow.New(workflow.ModeFor(mode))
	for _, ev := range events {
		doc.Apply(ev)
	}
	return doc
}

func TestNormalScript(t *testing.T) {
	events, failAt := script(job{Mode: types.ChatModeNormal, Query: "高血压用药"})
	assert.Equal(t, -1, failAt)
	for _, ev := range events {
		assert.IsType(t, types.TokenEvent{}, ev)
	}

	doc := reduce(types.ChatModeNormal, events)
	assert.Equal(t, answerFor("高血压用药"), doc.FlatBuffer)
	assert.Empty(t, doc.Sections)
}

func TestAttachmentScript(t *testing.T) {
	atts := []types.Attachment{
		{Filename: "a.pdf", OriginalFilename: "报告.pdf"},
		{Filename: "b.png"},
	}
	events, _ := script(job{Mode: types.ChatModeAttachment, Query: "总结", Attachments: atts})

	doc := reduce(types.ChatModeAttachment, events)
	assert.Equal(t, workflow.ModeFlat, doc.Mode)
	assert.Empty(t, doc.Sections)
	require.Len(t, doc.AttachmentLogs, 4)
	assert.Contains(t, doc.AttachmentLogs[1].Content, "报告.pdf")
	assert.Contains(t, doc.AttachmentLogs[2].Content, "b.png")
	assert.Equal(t, answerFor("总结"), doc.Markdown())

	events, _ = script(job{Mode: types.ChatModeAttachment, Query: "总结"})
	require.Len(t, events, 1)
	assert.Equal(t, types.ErrorEvent{Content: "未提供附件"}, events[0])
}

func TestMultiSourceScript(t *testing.T) {
	events, _ := script(job{Mode: types.ChatModeMultiSource, Query: "糖尿病"})
	doc := reduce(types.ChatModeMultiSource, events)

	var steps []string
	for _, s := range doc.Sections {
		steps = append(steps, s.Step)
	}
	assert.Equal(t, []string{"extract_features", "generate_queries", "search",
		"analyze_papers", "analyze_trials", "generate_final"}, steps)
	assert.Equal(t, workflow.NoSection, doc.OpenSection)

	for _, s := range doc.Sections[:5] {
		assert.True(t, s.Collapsed, s.Step)
		assert.NotEmpty(t, s.Summary, s.Step)
	}
	papers := doc.Sections[3]
	require.Len(t, papers.Results, 1)
	assert.Contains(t, papers.Results[0].Content, "文献 1")
	assert.Contains(t, papers.Results[0].Content, "文献 2")

	final := doc.Sections[5]
	assert.False(t, final.Collapsed)
	assert.Equal(t, answerFor("糖尿病"), final.Results[0].Content)
	assert.Equal(t, 2, doc.Metadata["paper_count"])
}

func TestFailMarker(t *testing.T) {
	events, failAt := script(job{Mode: types.ChatModeNormal, Query: "x " + FailMarker})
	assert.Equal(t, len(events)/2, failAt)
	assert.NotContains(t, answerFor("x "+FailMarker), FailMarker)
}

func TestTitleFor(t *testing.T) {
	assert.Equal(t, "阿司匹林", titleFor("  阿司匹林 [fail] "))
	assert.Len(t, []rune(titleFor("一二三四五六七八九十一二三四五六七八九十")), titleRunes)
}

func newTestGenerator() (*generator, *repository, EventStore) {
	repo := newRepository()
	store := NewMemoryStore()
	return &generator{
		store:     store,
		repo:      repo,
		logger:    logging.Nop(),
		retention: DefaultRetention,
	}, repo, store
}

func TestGeneratorRunCompletes(t *testing.T) {
	gen, repo, store := newTestGenerator()
	ctx := context.Background()

	conv := repo.createConversation("")
	msg, err := repo.addMessage(conv.ID, types.MessageTypeAssistant, "", types.MessageStatusGenerating)
	require.NoError(t, err)

	gen.run(ctx, job{
		MessageID: msg.ID, ConversationID: conv.ID, Query: "头痛",
		Mode: types.ChatModeNormal, FirstTurn: true,
	})

	status, ok, _ := store.Status(ctx, msg.ID)
	assert.True(t, ok)
	assert.Equal(t, types.MessageStatusCompleted, status)

	payloads, _ := store.Events(ctx, msg.ID, 0)
	require.NotEmpty(t, payloads)
	require.GreaterOrEqual(t, len(payloads), 2)
	last, err := types.DecodeEvent(payloads[len(payloads)-1])
	require.NoError(t, err)
	assert.Equal(t, types.TitleUpdatedEvent{ConversationID: conv.ID, Title: "头痛"}, last)
	done, err := types.DecodeEvent(payloads[len(payloads)-2])
	require.NoError(t, err)
	assert.Equal(t, doneEvent(msg.ID), done)

	stored, _ := repo.message(msg.ID)
	assert.Equal(t, types.MessageStatusCompleted, stored.Status)
	assert.Equal(t, answerFor("头痛"), stored.Content)
	renamed, _ := repo.conversation(conv.ID)
	assert.Equal(t, "头痛", renamed.Title)
}

func TestGeneratorRunFails(t *testing.T) {
	gen, repo, store := newTestGenerator()
	ctx := context.Background()

	conv := repo.createConversation("已命名")
	msg, _ := repo.addMessage(conv.ID, types.MessageTypeAssistant, "", types.MessageStatusGenerating)

	gen.run(ctx, job{
		MessageID: msg.ID, ConversationID: conv.ID, Query: "q " + FailMarker,
		Mode: types.ChatModeNormal,
	})

	status, _, _ := store.Status(ctx, msg.ID)
	assert.Equal(t, types.MessageStatusFailed, status)
	stored, _ := repo.message(msg.ID)
	assert.Equal(t, types.MessageStatusFailed, stored.Status)
	assert.NotEmpty(t, stored.Content)
	assert.NotEqual(t, answerFor("q"), stored.Content)
}

func TestGeneratorCompletedStatusWriteFailure(t *testing.T) {
	gen, repo, store := newTestGenerator()
	core, logs := observer.New(zap.DebugLevel)
	gen.logger = logging.FromZap(zap.New(core))
	gen.store = &statusFailingStore{EventStore: store, failOn: types.MessageStatusCompleted}
	ctx := context.Background()

	conv := repo.createConversation("已命名")
	msg, _ := repo.addMessage(conv.ID, types.MessageTypeAssistant, "", types.MessageStatusGenerating)
	require.NoError(t, store.SetStatus(ctx, msg.ID, types.MessageStatusGenerating))

	gen.run(ctx, job{
		MessageID: msg.ID, ConversationID: conv.ID, Query: "头痛",
		Mode: types.ChatModeNormal,
	})

	status, ok, _ := store.Status(ctx, msg.ID)
	assert.True(t, ok)
	assert.Equal(t, types.MessageStatusFailed, status)
	stored, _ := repo.message(msg.ID)
	assert.Equal(t, types.MessageStatusFailed, stored.Status)

	failures := logs.FilterMessage("message generation failed").All()
	require.Len(t, failures, 1)
	assert.Equal(t, zap.ErrorLevel, failures[0].Level)
	assert.Empty(t, logs.FilterMessage("message generated").All())
}

func TestGeneratorStatusStoreDown(t *testing.T) {
	gen, repo, store := newTestGenerator()
	core, logs := observer.New(zap.DebugLevel)
	gen.logger = logging.FromZap(zap.New(core))
	gen.store = &statusFailingStore{EventStore: store}
	ctx := context.Background()

	conv := repo.createConversation("已命名")
	msg, _ := repo.addMessage(conv.ID, types.MessageTypeAssistant, "", types.MessageStatusGenerating)
	require.NoError(t, store.SetStatus(ctx, msg.ID, types.MessageStatusGenerating))

	gen.run(ctx, job{
		MessageID: msg.ID, ConversationID: conv.ID, Query: "头痛",
		Mode: types.ChatModeNormal,
	})

	// the log cannot be finished, so it is removed rather than left
	// generating forever
	_, ok, _ := store.Status(ctx, msg.ID)
	assert.False(t, ok)
	stored, _ := repo.message(msg.ID)
	assert.Equal(t, types.MessageStatusFailed, stored.Status)
	assert.Len(t, logs.FilterMessage("failed to mark message failed").All(), 1)

	s := &streamer{store: store, poll: time.Millisecond, lookup: repo.message}
	var buf bytes.Buffer
	require.NoError(t, s.stream(ctx, bufio.NewWriter(&buf), msg.ID))
	results := sse.DecodeAll(buf.Bytes())
	require.Len(t, results, 1)
	assert.Equal(t, types.ErrorEvent{Content: failedReason}, results[0].Event)
}
