package server

import (
	"bufio"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"

	core "github.com/pamudu-ranasinghe/virtualme/internal/agent/core"
	"github.com/pamudu-ranasinghe/virtualme/internal/store"
	"github.com/pamudu-ranasinghe/virtualme/tools"
)

type stubProvider struct {
	generateJSON func(ctx context.Context, system, user string) (string, error)
	generate     func(ctx context.Context, system, user string) (string, error)
}

func (s *stubProvider) Generate(ctx context.Context, system, user string) (string, error) {
	return s.generate(ctx, system, user)
}

func (s *stubProvider) GenerateJSON(ctx context.Context, system, user string) (string, error) {
	return s.generateJSON(ctx, system, user)
}

// directProvider always answers without tools.
func directProvider(answer string) *stubProvider {
	return &stubProvider{
		generateJSON: func(ctx context.Context, system, user string) (string, error) {
			return `{"need_tools": false, "tool_calls": [], "response": "` + answer + `"}`, nil
		},
		generate: func(ctx context.Context, system, user string) (string, error) {
			return answer, nil
		},
	}
}

func newChatHandler(t *testing.T, p core.LLMProvider) (*ChatHandler, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	reg, err := tools.NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return &ChatHandler{
		Store:  &store.Store{DB: db},
		Coord:  core.NewCoordinator(p, reg, nil),
		Window: 12,
		Logger: log.New(log.Writer(), "[CHAT] ", log.LstdFlags),
	}, mock
}

func postJSON(e *echo.Echo, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func expectSession(mock sqlmock.Sqlmock, id string) {
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, created_at, updated_at FROM sessions WHERE id=$1`)).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(id, now, now))
}

func expectEmptyHistory(mock sqlmock.Sqlmock, id string, window int) {
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT role, content, created_at FROM messages WHERE session_id=$1 ORDER BY id DESC LIMIT $2`)).
		WithArgs(id, window).
		WillReturnRows(sqlmock.NewRows([]string{"role", "content", "created_at"}))
}

func expectAppendTurn(mock sqlmock.Sqlmock, id string) {
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO messages (session_id, role, content, created_at) VALUES ($1,$2,$3,$4)`)).
		WithArgs(id, "user", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO messages (session_id, role, content, created_at) VALUES ($1,$2,$3,$4)`)).
		WithArgs(id, "assistant", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE sessions SET updated_at=NOW() WHERE id=$1`)).
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	h, _ := newChatHandler(t, directProvider("hi"))
	c, _ := postJSON(echo.New(), "/api/chat", `{"session_id": "s", "message": "   "}`)

	err := h.chat(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestChatUnknownSession(t *testing.T) {
	h, mock := newChatHandler(t, directProvider("hi"))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, created_at, updated_at FROM sessions WHERE id=$1`)).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}))

	c, _ := postJSON(echo.New(), "/api/chat", `{"session_id": "missing", "message": "hello"}`)
	err := h.chat(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
}

func expectTurnCount(mock sqlmock.Sqlmock, id string, n int) {
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM messages WHERE session_id=$1`)).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(n))
}

func TestChatRunsTurnAndPersists(t *testing.T) {
	h, mock := newChatHandler(t, directProvider("Hi there!"))
	expectSession(mock, "sess-1")
	expectEmptyHistory(mock, "sess-1", 12)
	expectAppendTurn(mock, "sess-1")
	expectTurnCount(mock, "sess-1", 2)

	c, rec := postJSON(echo.New(), "/api/chat", `{"session_id": "sess-1", "message": "hi"}`)
	if err := h.chat(c); err != nil {
		t.Fatalf("chat: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp ChatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.SessionID != "sess-1" || resp.Answer != "Hi there!" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.TurnCount != 1 {
		t.Fatalf("expected turn_count 1 after the first turn, got %d", resp.TurnCount)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestChatCreatesSessionWhenIDOmitted(t *testing.T) {
	h, mock := newChatHandler(t, directProvider("Hello!"))
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO sessions (id) VALUES ($1) RETURNING id, created_at, updated_at`)).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow("fresh", now, now))
	expectEmptyHistory(mock, "fresh", 12)
	expectAppendTurn(mock, "fresh")
	expectTurnCount(mock, "fresh", 2)

	c, rec := postJSON(echo.New(), "/api/chat", `{"message": "hi"}`)
	if err := h.chat(c); err != nil {
		t.Fatalf("chat: %v", err)
	}
	var resp ChatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.SessionID != "fresh" {
		t.Fatalf("expected the new session id in the response, got %+v", resp)
	}
}

// Emit on a full channel drops the event instead of blocking the pipeline.
func TestChanSinkDropsWhenFull(t *testing.T) {
	sink := &chanSink{ch: make(chan core.Event, 1)}

	done := make(chan struct{})
	go func() {
		sink.Emit(core.Event{Type: core.EventStatus, Node: core.NodePlanner})
		sink.Emit(core.Event{Type: core.EventStatus, Node: core.NodeExecutor})
		sink.Emit(core.Event{Type: core.EventResult, Answer: "hi"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Emit blocked on a full channel")
	}
	if got := len(sink.ch); got != 1 {
		t.Fatalf("expected 1 buffered event, got %d", got)
	}
	ev := <-sink.ch
	if ev.Node != core.NodePlanner {
		t.Fatalf("expected the first event to survive, got %+v", ev)
	}
}

// A client that walks away mid-turn must not abort the pipeline: the turn
// finishes on a detached context and both history rows still land.
func TestChatStreamDisconnectedClientStillPersists(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	p := &stubProvider{
		generateJSON: func(ctx context.Context, system, user string) (string, error) {
			once.Do(func() { close(started) })
			<-release
			return `{"need_tools": false, "tool_calls": [], "response": "Hi!"}`, nil
		},
		generate: func(ctx context.Context, system, user string) (string, error) {
			return "Hi!", nil
		},
	}
	h, mock := newChatHandler(t, p)
	expectSession(mock, "sess-1")
	expectEmptyHistory(mock, "sess-1", 12)
	expectAppendTurn(mock, "sess-1")

	e := echo.New()
	reqCtx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodPost, "/api/chat/stream", strings.NewReader(`{"session_id": "sess-1", "message": "hi"}`)).WithContext(reqCtx)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	done := make(chan error, 1)
	go func() { done <- h.chatStream(c) }()

	<-started
	cancel() // client disconnects while the planner is still thinking
	close(release)

	if err := <-done; err != nil {
		t.Fatalf("chatStream: %v", err)
	}
	// the pipeline goroutine persists after the handler already returned
	deadline := time.Now().Add(2 * time.Second)
	for mock.ExpectationsWereMet() != nil {
		if time.Now().After(deadline) {
			t.Fatalf("turn not persisted after disconnect: %v", mock.ExpectationsWereMet())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestChatStreamEmitsOrderedEvents(t *testing.T) {
	h, mock := newChatHandler(t, directProvider("Hi!"))
	expectSession(mock, "sess-1")
	expectEmptyHistory(mock, "sess-1", 12)
	expectAppendTurn(mock, "sess-1")

	c, rec := postJSON(echo.New(), "/api/chat/stream", `{"session_id": "sess-1", "message": "hi"}`)
	if err := h.chatStream(c); err != nil {
		t.Fatalf("chatStream: %v", err)
	}
	if ct := rec.Header().Get(echo.HeaderContentType); ct != "text/event-stream" {
		t.Fatalf("expected event-stream content type, got %q", ct)
	}

	var events []core.Event
	scanner := bufio.NewScanner(rec.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev core.Event
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			t.Fatalf("bad event line %q: %v", line, err)
		}
		events = append(events, ev)
	}
	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d: %+v", len(events), events)
	}
	wantNodes := []string{core.NodePlanner, core.NodeExecutor, core.NodeSynthesizer}
	for i, node := range wantNodes {
		if events[i].Type != core.EventStatus || events[i].Node != node {
			t.Fatalf("event %d = %+v, want status from %s", i, events[i], node)
		}
	}
	final := events[3]
	if final.Type != core.EventResult || final.Answer != "Hi!" {
		t.Fatalf("unexpected result event: %+v", final)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
