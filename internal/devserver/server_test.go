/* Copyright © 2026 Mike Brown. All Rights Reserved.
 *
 * See LICENSE file at the root of this package for license terms
 */
package devserver

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/mikeb26/medchat/internal/chatapi"
	"github.com/mikeb26/medchat/internal/sse"
	"github.com/mikeb26/medchat/internal/turns"
	"github.com/mikeb26/medchat/internal/types"
	"github.com/mikeb26/medchat/internal/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func newTestServer(t *testing.T, opts Options) *Server {
	t.Helper()

	opts.JWTSecret = testSecret
	opts.PollInterval = time.Millisecond
	if opts.KeepaliveInterval == 0 {
		opts.KeepaliveInterval = -1
	}
	srv := New(opts)
	t.Cleanup(func() { _ = srv.Shutdown() })
	return srv
}

func testToken(t *testing.T) string {
	t.Helper()

	token, err := IssueToken(testSecret, "tester", time.Hour)
	require.NoError(t, err)
	return token
}

func request(t *testing.T, srv *Server, method, path string, body any) *http.Response {
	t.Helper()

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, APIPrefix+path, rdr)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+testToken(t))

	resp, err := srv.App().Test(req, 5000)
	require.NoError(t, err)
	return resp
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()

	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func readEvents(t *testing.T, resp *http.Response) []types.Event {
	t.Helper()
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out []types.Event
	for _, r := range sse.DecodeAll(data) {
		require.Nil(t, r.Err)
		out = append(out, r.Event)
	}
	return out
}

func createConversation(t *testing.T, srv *Server, title string) types.Conversation {
	t.Helper()

	resp := request(t, srv, http.MethodPost, "/conversations", map[string]string{"title": title})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return decodeJSON[types.Conversation](t, resp)
}

func TestRejectsMissingAndBadTokens(t *testing.T) {
	srv := newTestServer(t, Options{})

	req := httptest.NewRequest(http.MethodGet, APIPrefix+"/conversations", nil)
	resp, err := srv.App().Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	other, err := IssueToken("other-secret", "tester", time.Hour)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, APIPrefix+"/conversations", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+other)
	resp, err = srv.App().Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, err = IssueToken("", "tester", time.Hour)
	assert.Error(t, err)
}

func TestConversations(t *testing.T) {
	srv := newTestServer(t, Options{})

	first := createConversation(t, srv, "")
	assert.Equal(t, types.DefaultConversationTitle, first.Title)
	second := createConversation(t, srv, "随访")

	resp := request(t, srv, http.MethodGet, "/conversations", nil)
	convs := decodeJSON[[]types.Conversation](t, resp)
	require.Len(t, convs, 2)
	assert.Equal(t, second.ID, convs[0].ID)

	resp = request(t, srv, http.MethodGet, "/conversations/999/messages", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = request(t, srv, http.MethodGet, "/conversations/abc/messages", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestChatStreamNormal(t *testing.T) {
	srv := newTestServer(t, Options{})
	conv := createConversation(t, srv, "")

	resp := request(t, srv, http.MethodPost, "/chat/stream", types.StreamRequest{
		ConversationID: conv.ID, Content: "失眠怎么办", Mode: types.ChatModeNormal,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get(fiber.HeaderContentType))
	events := readEvents(t, resp)
	srv.Wait()

	require.GreaterOrEqual(t, len(events), 3)
	done, ok := events[len(events)-2].(types.DoneEvent)
	require.True(t, ok)
	require.NotNil(t, done.MessageID)
	title, ok := events[len(events)-1].(types.TitleUpdatedEvent)
	require.True(t, ok)
	assert.Equal(t, conv.ID, title.ConversationID)

	doc := reduce(types.ChatModeNormal, events)
	assert.Equal(t, answerFor("失眠怎么办"), doc.FlatBuffer)

	resp = request(t, srv, http.MethodGet, "/conversations/"+itoa(conv.ID)+"/messages", nil)
	msgs := decodeJSON[[]types.Message](t, resp)
	require.Len(t, msgs, 2)
	assert.Equal(t, types.MessageTypeUser, msgs[0].MessageType)
	latest, ok := types.LatestAssistant(msgs)
	require.True(t, ok)
	assert.Equal(t, *done.MessageID, latest.ID)
	assert.Equal(t, types.MessageStatusCompleted, latest.Status)
	assert.Equal(t, doc.FlatBuffer, latest.Content)

	resp = request(t, srv, http.MethodGet, "/conversations", nil)
	convs := decodeJSON[[]types.Conversation](t, resp)
	assert.Equal(t, title.Title, convs[0].Title)
	assert.Equal(t, 2, convs[0].MessageCount)
}

func TestChatStreamSwitchesToAttachmentMode(t *testing.T) {
	srv := newTestServer(t, Options{})
	conv := createConversation(t, srv, "已命名")

	resp := request(t, srv, http.MethodPost, "/chat/stream", types.StreamRequest{
		ConversationID: conv.ID, Content: "解读报告", Mode: types.ChatModeNormal,
		Attachments: []types.Attachment{{Filename: "r.pdf", OriginalFilename: "化验单.pdf"}},
	})
	events := readEvents(t, resp)

	log, ok := events[0].(types.LogEvent)
	require.True(t, ok)
	require.NotNil(t, log.Source)
	assert.Equal(t, workflow.SourceAttachment, *log.Source)
	for _, ev := range events {
		assert.NotEqual(t, types.EventTitleUpdated, ev.Type())
	}
}

func TestChatStreamValidation(t *testing.T) {
	srv := newTestServer(t, Options{})
	conv := createConversation(t, srv, "")

	resp := request(t, srv, http.MethodPost, "/chat/stream", types.StreamRequest{
		ConversationID: conv.ID, Content: "q", Mode: "smart_qa",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp = request(t, srv, http.MethodPost, "/chat/stream", types.StreamRequest{
		ConversationID: conv.ID, Mode: types.ChatModeNormal,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp = request(t, srv, http.MethodPost, "/chat/stream", types.StreamRequest{
		ConversationID: 4242, Content: "q", Mode: types.ChatModeNormal,
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	body := decodeJSON[map[string]string](t, resp)
	assert.Equal(t, "对话不存在", body["detail"])
}

func TestChatStreamFailure(t *testing.T) {
	srv := newTestServer(t, Options{})
	conv := createConversation(t, srv, "")

	resp := request(t, srv, http.MethodPost, "/chat/stream", types.StreamRequest{
		ConversationID: conv.ID, Content: "q " + FailMarker, Mode: types.ChatModeNormal,
	})
	events := readEvents(t, resp)
	srv.Wait()

	require.NotEmpty(t, events)
	assert.Equal(t, types.ErrorEvent{Content: failedReason}, events[len(events)-1])

	resp = request(t, srv, http.MethodGet, "/conversations/"+itoa(conv.ID)+"/messages", nil)
	msgs := decodeJSON[[]types.Message](t, resp)
	latest, _ := types.LatestAssistant(msgs)
	assert.Equal(t, types.MessageStatusFailed, latest.Status)

	resp = request(t, srv, http.MethodGet, "/conversations", nil)
	convs := decodeJSON[[]types.Conversation](t, resp)
	assert.Equal(t, types.DefaultConversationTitle, convs[0].Title)
}

func TestContinueReplaysRetainedLog(t *testing.T) {
	srv := newTestServer(t, Options{})
	conv := createConversation(t, srv, "已命名")

	resp := request(t, srv, http.MethodPost, "/chat/stream", types.StreamRequest{
		ConversationID: conv.ID, Content: "胸痛", Mode: types.ChatModeMultiSource,
	})
	first := readEvents(t, resp)
	srv.Wait()
	done := doneOf(t, first)

	resp = request(t, srv, http.MethodGet, "/chat/stream/continue/"+itoa(*done.MessageID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	replay := readEvents(t, resp)
	assert.Equal(t, first, replay)

	doc := reduce(types.ChatModeMultiSource, replay)
	assert.Len(t, doc.Sections, 6)
	assert.True(t, doc.IsDone)
}

func TestContinueAfterExpiry(t *testing.T) {
	srv := newTestServer(t, Options{Retention: 10 * time.Millisecond})
	conv := createConversation(t, srv, "")

	resp := request(t, srv, http.MethodPost, "/chat/stream", types.StreamRequest{
		ConversationID: conv.ID, Content: "q", Mode: types.ChatModeNormal,
	})
	events := readEvents(t, resp)
	srv.Wait()
	done := doneOf(t, events)

	assert.Eventually(t, func() bool {
		_, ok, _ := srv.store.Status(context.Background(), *done.MessageID)
		return !ok
	}, 2*time.Second, 5*time.Millisecond)

	resp = request(t, srv, http.MethodGet, "/chat/stream/continue/"+itoa(*done.MessageID), nil)
	replay := readEvents(t, resp)
	assert.Equal(t, []types.Event{doneEvent(*done.MessageID)}, replay)

	resp = request(t, srv, http.MethodGet, "/chat/stream/continue/999", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = request(t, srv, http.MethodGet, "/chat/stream/continue/0", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStreamerRelaysTitleAfterDone(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	for _, ev := range []types.Event{
		types.TokenEvent{Content: "答"},
		doneEvent(7),
		types.TitleUpdatedEvent{ConversationID: 1, Title: "新标题"},
	} {
		payload, err := types.EncodeEvent(ev)
		require.NoError(t, err)
		require.NoError(t, store.Append(ctx, 7, payload))
	}
	require.NoError(t, store.SetStatus(ctx, 7, types.MessageStatusCompleted))

	s := &streamer{store: store, poll: time.Millisecond}
	var buf bytes.Buffer
	require.NoError(t, s.stream(ctx, bufio.NewWriter(&buf), 7))

	var got []types.Event
	for _, r := range sse.DecodeAll(buf.Bytes()) {
		require.Nil(t, r.Err)
		got = append(got, r.Event)
	}
	assert.Equal(t, []types.Event{
		types.TokenEvent{Content: "答"},
		doneEvent(7),
		types.TitleUpdatedEvent{ConversationID: 1, Title: "新标题"},
	}, got)
}

func TestStreamerKeepalive(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	require.NoError(t, store.SetStatus(context.Background(), 1, types.MessageStatusGenerating))

	s := &streamer{store: store, poll: time.Millisecond, keepalive: 5 * time.Millisecond}
	var buf bytes.Buffer
	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
	defer cancel()

	err := s.stream(ctx, bufio.NewWriter(&buf), 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, buf.String(), ": ping\n\n")
	assert.Empty(t, sse.DecodeAll(buf.Bytes()))
}

func TestEndToEndWithTurnController(t *testing.T) {
	srv := newTestServer(t, Options{})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = srv.App().Listener(ln) }()

	client := chatapi.NewClient("http://"+ln.Addr().String()+APIPrefix, testToken(t))
	ctx := context.Background()
	conv, err := client.CreateConversation(ctx, "")
	require.NoError(t, err)

	titles := &recordingTitles{}
	ctrl := turns.NewController(client).WithTitleSink(titles)
	turn, err := ctrl.Start(ctx, turns.StartRequest{
		ConversationID: conv.ID, Content: "房颤抗凝", Mode: types.ChatModeMultiSource,
	})
	require.NoError(t, err)
	res := awaitTurn(t, turn)

	require.Equal(t, turns.TurnStateCompleted, res.State, "%v", res.Err)
	assert.Len(t, res.Snapshot.Sections, 6)
	require.NotNil(t, res.Snapshot.MessageID)
	latest, ok := types.LatestAssistant(res.Messages)
	require.True(t, ok)
	assert.Equal(t, types.MessageStatusCompleted, latest.Status)
	assert.Equal(t, res.Snapshot.Markdown(), latest.Content)
	assert.Equal(t, map[int64]string{conv.ID: "房颤抗凝"}, titles.snapshot())

	resumed, err := ctrl.Resume(ctx, conv.ID, *res.Snapshot.MessageID)
	require.NoError(t, err)
	again := awaitTurn(t, resumed)
	assert.Equal(t, turns.TurnStateCompleted, again.State)
	assert.Equal(t, res.Snapshot.Markdown(), again.Snapshot.Markdown())
}

func awaitTurn(t *testing.T, turn *turns.Turn) turns.Result {
	t.Helper()

	timeout := time.After(10 * time.Second)
	for {
		select {
		case _, ok := <-turn.Updates:
			if ok {
				continue
			}
			res := <-turn.Result
			select {
			case <-turn.Done:
			case <-timeout:
				t.Fatal("timed out waiting for turn tail")
			}
			return res
		case <-timeout:
			t.Fatal("timed out waiting for turn")
			return turns.Result{}
		}
	}
}

func doneOf(t *testing.T, events []types.Event) types.DoneEvent {
	t.Helper()

	for _, ev := range events {
		if done, ok := ev.(types.DoneEvent); ok {
			require.NotNil(t, done.MessageID)
			return done
		}
	}
	t.Fatal("no done event")
	return types.DoneEvent{}
}

type recordingTitles struct {
	mu     sync.Mutex
	titles map[int64]string
}

func (r *recordingTitles) Rename(conversationID int64, title string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.titles == nil {
		r.titles = make(map[int64]string)
	}
	r.titles[conversationID] = title
}

func (r *recordingTitles) snapshot() map[int64]string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[int64]string, len(r.titles))
	for k, v := range r.titles {
		out[k] = v
	}
	return out
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
