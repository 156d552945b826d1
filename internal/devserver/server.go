/* Copyright © 2026 Mike Brown. All Rights Reserved.
 *
 * See LICENSE file at the root of this package for license terms
 */
package devserver

import (
	"bufio"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/mikeb26/medchat/internal/logging"
	"github.com/mikeb26/medchat/internal/types"
)

// APIPrefix is where the chat API is mounted; clients use
// http://<addr>/api/v1 as their base URL.
const APIPrefix = "/api/v1"

// DefaultRetention is how long a finished message's event log stays
// available for reconnects.
const DefaultRetention = 5 * time.Minute

type Options struct {
	JWTSecret         string
	TokenDelay        time.Duration
	Retention         time.Duration
	PollInterval      time.Duration
	KeepaliveInterval time.Duration
	// Store defaults to an in-memory store.
	Store  EventStore
	Logger logging.Logger
}

// Server is a development producer of the chat event stream. Answers are
// canned; the wire behavior (background generation, polling relay,
// reconnect replay, keepalives) follows the production backend.
type Server struct {
	app      *fiber.App
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	repo     *repository
	store    EventStore
	gen      *generator
	streamer *streamer
	logger   logging.Logger
	validate *validator.Validate
}

func New(opts Options) *Server {
	if opts.Store == nil {
		opts.Store = NewMemoryStore()
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.KeepaliveInterval == 0 {
		opts.KeepaliveInterval = DefaultKeepaliveInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	repo := newRepository()
	s := &Server{
		ctx:    ctx,
		cancel: cancel,
		repo:   repo,
		store:  opts.Store,
		gen: &generator{
			store:     opts.Store,
			repo:      repo,
			logger:    opts.Logger,
			delay:     opts.TokenDelay,
			retention: opts.Retention,
		},
		streamer: &streamer{
			store:     opts.Store,
			poll:      opts.PollInterval,
			keepalive: opts.KeepaliveInterval,
			lookup:    repo.message,
		},
		logger:   opts.Logger,
		validate: validator.New(),
	}

	app := fiber.New(fiber.Config{
		AppName:               "medchat devserver",
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})
	app.Use(recover.New())
	app.Use(cors.New())
	app.Use(otelfiber.Middleware())
	app.Use(s.logRequest)

	api := app.Group(APIPrefix, jwtMiddleware(opts.JWTSecret))
	api.Get("/conversations", s.listConversations)
	api.Post("/conversations", s.createConversation)
	api.Get("/conversations/:id/messages", s.listMessages)
	api.Post("/chat/stream", s.chatStream)
	api.Get("/chat/stream/continue/:id", s.continueStream)

	s.app = app
	return s
}

func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Listen(addr string) error {
	s.logger.Info("devserver", "listening", map[string]any{"addr": addr})
	return s.app.Listen(addr)
}

// Shutdown stops open streams and background generations.
func (s *Server) Shutdown() error {
	s.cancel()
	err := s.app.Shutdown()
	s.wg.Wait()
	return errors.Join(err, s.store.Close())
}

// Wait blocks until every background generation has finished.
func (s *Server) Wait() {
	s.wg.Wait()
}

func (s *Server) handleError(ctx *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var ferr *fiber.Error
	if errors.As(err, &ferr) {
		code = ferr.Code
	}
	if code >= fiber.StatusInternalServerError {
		s.logger.Error("devserver", "request failed", map[string]any{
			"path":  ctx.Path(),
			"error": err,
		})
	}
	return ctx.Status(code).JSON(fiber.Map{"detail": err.Error()})
}

func (s *Server) logRequest(ctx *fiber.Ctx) error {
	start := time.Now()
	err := ctx.Next()
	s.logger.Debug("devserver", "request", map[string]any{
		"method":  ctx.Method(),
		"path":    ctx.Path(),
		"status":  ctx.Response().StatusCode(),
		"latency": time.Since(start).String(),
	})
	return err
}

type createConversationRequest struct {
	Title string `json:"title"`
}

func (s *Server) listConversations(ctx *fiber.Ctx) error {
	return ctx.JSON(s.repo.listConversations())
}

func (s *Server) createConversation(ctx *fiber.Ctx) error {
	var req createConversationRequest
	if len(ctx.Body()) > 0 {
		if err := ctx.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
	}
	return ctx.JSON(s.repo.createConversation(req.Title))
}

func (s *Server) listMessages(ctx *fiber.Ctx) error {
	id, err := ctx.ParamsInt("id")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid conversation id")
	}
	msgs, err := s.repo.listMessages(int64(id))
	if err != nil {
		return fiber.NewError(fiber.StatusNotFound, "对话不存在")
	}
	return ctx.JSON(msgs)
}

func (s *Server) chatStream(ctx *fiber.Ctx) error {
	var req types.StreamRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.Mode == "" {
		req.Mode = types.ChatModeNormal
	}
	if err := s.validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	}

	conv, ok := s.repo.conversation(req.ConversationID)
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "对话不存在")
	}
	mode := req.Mode
	if len(req.Attachments) > 0 && mode == types.ChatModeNormal {
		mode = types.ChatModeAttachment
	}

	if _, err := s.repo.addMessage(conv.ID, types.MessageTypeUser, req.Content,
		types.MessageStatusCompleted); err != nil {
		return err
	}
	reply, err := s.repo.addMessage(conv.ID, types.MessageTypeAssistant, "",
		types.MessageStatusGenerating)
	if err != nil {
		return err
	}

	err = s.startGeneration(job{
		MessageID:      reply.ID,
		ConversationID: conv.ID,
		Query:          req.Content,
		Mode:           mode,
		Attachments:    req.Attachments,
		FirstTurn:      conv.Title == types.DefaultConversationTitle,
	})
	if err != nil {
		return err
	}

	return s.sendStream(ctx, reply.ID)
}

func (s *Server) continueStream(ctx *fiber.Ctx) error {
	id, err := ctx.ParamsInt("id")
	if err != nil || id <= 0 {
		return fiber.NewError(fiber.StatusBadRequest, "invalid message id")
	}
	messageID := int64(id)

	_, retained, err := s.store.Status(ctx.Context(), messageID)
	if err != nil {
		return err
	}
	if retained {
		return s.sendStream(ctx, messageID)
	}

	msg, ok := s.repo.message(messageID)
	if !ok || msg.MessageType != types.MessageTypeAssistant {
		return fiber.NewError(fiber.StatusNotFound, "消息不存在")
	}
	ev := s.streamer.terminalFor(messageID)
	setStreamHeaders(ctx)
	ctx.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		_ = writeEvent(w, ev)
	})
	return nil
}

func (s *Server) startGeneration(j job) error {
	// Marked before the relay starts so the first poll sees a live log.
	if err := s.store.SetStatus(s.ctx, j.MessageID, types.MessageStatusGenerating); err != nil {
		return err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.gen.run(s.ctx, j)
	}()

	s.logger.Info("devserver", "generation started", map[string]any{
		"message_id":      j.MessageID,
		"conversation_id": j.ConversationID,
		"mode":            string(j.Mode),
	})
	return nil
}

func setStreamHeaders(ctx *fiber.Ctx) {
	ctx.Set(fiber.HeaderContentType, "text/event-stream")
	ctx.Set(fiber.HeaderCacheControl, "no-cache")
	ctx.Set(fiber.HeaderConnection, "keep-alive")
	ctx.Set("X-Accel-Buffering", "no")
}

func (s *Server) sendStream(ctx *fiber.Ctx, messageID int64) error {
	setStreamHeaders(ctx)
	base := s.ctx
	ctx.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		if err := s.streamer.stream(base, w, messageID); err != nil {
			s.logger.Debug("devserver", "stream closed", map[string]any{
				"message_id": messageID,
				"error":      err.Error(),
			})
		}
	})
	return nil
}
