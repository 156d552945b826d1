/* Copyright © 2026 Mike Brown. All Rights Reserved.
 *
 * See LICENSE file at the root of this package for license terms
 */

// Package chatapi is the HTTP transport to the assistant backend.
package chatapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mikeb26/medchat/internal/types"
)

var ErrUnauthorized = errors.New("not authorized; check your token")

// HTTPError is a non-2xx response. Body is truncated.
type HTTPError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	msg := fmt.Sprintf("%v %v: HTTP %d", e.Method, e.Path, e.StatusCode)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

func (e *HTTPError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden {
		return ErrUnauthorized
	}
	return nil
}

const maxErrorBody = 512

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	validate   *validator.Validate
}

var _ types.ChatAPI = (*Client)(nil)

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		// streaming responses have no overall deadline; callers bound them
		// with their context
		httpClient: &http.Client{},
		validate:   validator.New(),
	}
}

func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// OpenStream starts a new turn. The returned body is the raw event stream.
func (c *Client) OpenStream(ctx context.Context,
	req types.StreamRequest) (io.ReadCloser, error) {

	if req.Attachments == nil {
		req.Attachments = []types.Attachment{}
	}
	if err := c.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid stream request: %w", err)
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	resp, err := c.do(ctx, http.MethodPost, "/chat/stream", bytes.NewReader(body), true)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// ContinueStream reconnects to a message that is still generating.
func (c *Client) ContinueStream(ctx context.Context,
	messageID int64) (io.ReadCloser, error) {

	path := fmt.Sprintf("/chat/stream/continue/%d", messageID)
	resp, err := c.do(ctx, http.MethodGet, path, nil, true)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (c *Client) ListMessages(ctx context.Context,
	conversationID int64) ([]types.Message, error) {

	var msgs []types.Message
	path := fmt.Sprintf("/conversations/%d/messages", conversationID)
	if err := c.getJSON(ctx, path, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

func (c *Client) ListConversations(ctx context.Context) ([]types.Conversation, error) {
	var convs []types.Conversation
	if err := c.getJSON(ctx, "/conversations", &convs); err != nil {
		return nil, err
	}
	return convs, nil
}

func (c *Client) CreateConversation(ctx context.Context,
	title string) (types.Conversation, error) {

	if title == "" {
		title = types.DefaultConversationTitle
	}
	body, err := json.Marshal(map[string]string{"title": title})
	if err != nil {
		return types.Conversation{}, err
	}

	resp, err := c.do(ctx, http.MethodPost, "/conversations", bytes.NewReader(body), false)
	if err != nil {
		return types.Conversation{}, err
	}
	defer resp.Body.Close()

	var conv types.Conversation
	if err := json.NewDecoder(resp.Body).Decode(&conv); err != nil {
		return types.Conversation{}, fmt.Errorf("decode conversation: %w", err)
	}
	return conv, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	resp, err := c.do(ctx, http.MethodGet, path, nil, false)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %v: %w", path, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader,
	stream bool) (*http.Response, error) {

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if stream {
		req.Header.Set("Accept", "text/event-stream")
		req.Header.Set("Cache-Control", "no-cache")
	} else {
		req.Header.Set("Accept", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%v %v: %w", method, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &HTTPError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(msg)),
		}
	}

	return resp, nil
}
