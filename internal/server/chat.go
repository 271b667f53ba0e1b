package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	core "github.com/pamudu-ranasinghe/virtualme/internal/agent/core"
	"github.com/pamudu-ranasinghe/virtualme/internal/store"
)

// turnLockTTL bounds how long a crashed turn can keep a session locked.
const turnLockTTL = 2 * time.Minute

var errTurnInFlight = errors.New("a turn is already running for this session")

// ChatHandler runs conversation turns. One turn per session at a time,
// enforced with a redis lock keyed by session id.
type ChatHandler struct {
	Store  *store.Store
	Coord  *core.Coordinator
	Rdb    *redis.Client
	Window int
	Logger *log.Logger
}

func (h *ChatHandler) Register(g *echo.Group) {
	g.POST("/chat", h.chat)
	g.POST("/chat/stream", h.chatStream)
}

// chanSink forwards pipeline events onto a channel. Emit drops on a full
// channel rather than stall the turn.
type chanSink struct {
	ch chan core.Event
}

func (s *chanSink) Emit(ev core.Event) {
	select {
	case s.ch <- ev:
	default:
	}
}

func (h *ChatHandler) chat(c echo.Context) error {
	ctx := c.Request().Context()
	req, sess, err := h.acceptTurn(c)
	if err != nil {
		return err
	}
	unlock, err := h.lockSession(ctx, sess.ID)
	if err != nil {
		return lockError(err)
	}
	defer unlock()

	history, err := h.Store.ListMessages(ctx, sess.ID, h.Window)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	out := h.Coord.Turn(ctx, req.Message, history, nil)
	if err := h.Store.AppendTurn(ctx, sess.ID, out.UserTurn, out.AssistantTurn); err != nil {
		// the answer is already computed; losing a history row is not
		// worth failing the turn over
		h.Logger.Printf("persisting turn for session %s failed: %v", sess.ID, err)
	}
	turnCount := 0
	if n, err := h.Store.CountMessages(ctx, sess.ID); err != nil {
		h.Logger.Printf("counting messages for session %s failed: %v", sess.ID, err)
	} else {
		// two rows per turn
		turnCount = n / 2
	}
	return c.JSON(http.StatusOK, ChatResponse{
		SessionID:          sess.ID,
		Answer:             out.Answer,
		Citations:          out.Citations,
		SuggestedQuestions: out.SuggestedQuestions,
		TurnCount:          turnCount,
	})
}

// chatStream is the SSE variant of chat. The pipeline runs detached from the
// request context so a dropped client never aborts a turn mid-flight; it only
// stops receiving events.
func (h *ChatHandler) chatStream(c echo.Context) error {
	reqCtx := c.Request().Context()
	req, sess, err := h.acceptTurn(c)
	if err != nil {
		return err
	}
	unlock, err := h.lockSession(reqCtx, sess.ID)
	if err != nil {
		return lockError(err)
	}

	history, err := h.Store.ListMessages(reqCtx, sess.ID, h.Window)
	if err != nil {
		unlock()
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set(echo.HeaderCacheControl, "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)
	flusher, ok := resp.Writer.(http.Flusher)
	if !ok {
		unlock()
		return echo.NewHTTPError(http.StatusServiceUnavailable, "streaming unsupported")
	}

	sink := &chanSink{ch: make(chan core.Event, 16)}
	pipeCtx := context.WithoutCancel(reqCtx)
	go func() {
		defer unlock()
		out := h.Coord.Turn(pipeCtx, req.Message, history, sink)
		if err := h.Store.AppendTurn(pipeCtx, sess.ID, out.UserTurn, out.AssistantTurn); err != nil {
			h.Logger.Printf("persisting turn for session %s failed: %v", sess.ID, err)
		}
		close(sink.ch)
	}()

	for {
		select {
		case <-reqCtx.Done():
			// client gone; the goroutine finishes and persists on its own
			return nil
		case ev, open := <-sink.ch:
			if !open {
				return nil
			}
			data, err := json.Marshal(ev)
			if err != nil {
				h.Logger.Printf("marshaling event failed: %v", err)
				continue
			}
			if _, err := resp.Write([]byte("data: " + string(data) + "\n\n")); err != nil {
				return nil
			}
			flusher.Flush()
		}
	}
}

// acceptTurn validates the request and resolves its session, creating one
// when no session_id was given.
func (h *ChatHandler) acceptTurn(c echo.Context) (ChatRequest, store.Session, error) {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return req, store.Session{}, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		return req, store.Session{}, echo.NewHTTPError(http.StatusBadRequest, "message required")
	}
	ctx := c.Request().Context()
	if req.SessionID == "" {
		sess, err := h.Store.CreateSession(ctx)
		if err != nil {
			return req, store.Session{}, echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		return req, sess, nil
	}
	sess, err := h.Store.GetSession(ctx, req.SessionID)
	if errors.Is(err, store.ErrSessionNotFound) {
		return req, store.Session{}, echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	if err != nil {
		return req, store.Session{}, echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return req, sess, nil
}

// lockSession takes the per-session turn lock. The returned func releases it.
// A nil redis client disables locking.
func (h *ChatHandler) lockSession(ctx context.Context, sessionID string) (func(), error) {
	if h.Rdb == nil {
		return func() {}, nil
	}
	key := "chat:lock:" + sessionID
	ok, err := h.Rdb.SetNX(ctx, key, "1", turnLockTTL).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errTurnInFlight
	}
	return func() { h.Rdb.Del(context.Background(), key) }, nil
}

func lockError(err error) error {
	if errors.Is(err, errTurnInFlight) {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
}
