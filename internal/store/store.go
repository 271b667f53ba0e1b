package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	core "github.com/pamudu-ranasinghe/virtualme/internal/agent/core"
)

// ErrSessionNotFound is returned when a session id has no row.
var ErrSessionNotFound = errors.New("session not found")

type Store struct {
	DB *sql.DB
}

// Session is one conversation keyed by an opaque identifier.
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is one append-only history entry in a session.
type Message struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// NewWithDSN constructs the Store using an explicit Postgres DSN
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

// CreateSession inserts a fresh session and returns its id.
func (s *Store) CreateSession(ctx context.Context) (Session, error) {
	id := uuid.New().String()
	var sess Session
	err := s.DB.QueryRowContext(ctx,
		`INSERT INTO sessions (id) VALUES ($1) RETURNING id, created_at, updated_at`, id).
		Scan(&sess.ID, &sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		return Session{}, fmt.Errorf("creating session: %w", err)
	}
	return sess, nil
}

// GetSession looks up one session by id.
func (s *Store) GetSession(ctx context.Context, id string) (Session, error) {
	var sess Session
	err := s.DB.QueryRowContext(ctx,
		`SELECT id, created_at, updated_at FROM sessions WHERE id=$1`, id).
		Scan(&sess.ID, &sess.CreatedAt, &sess.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrSessionNotFound
	}
	if err != nil {
		return Session{}, err
	}
	return sess, nil
}

// ListSessions returns all sessions, newest first.
func (s *Store) ListSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, created_at, updated_at FROM sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Session
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// DeleteSession removes a session; its messages cascade.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM sessions WHERE id=$1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// ClearMessages wipes a session's history, keeping the session itself.
func (s *Store) ClearMessages(ctx context.Context, sessionID string) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM messages WHERE session_id=$1`, sessionID)
	return err
}

// CountMessages returns the number of messages in a session.
func (s *Store) CountMessages(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE session_id=$1`, sessionID).Scan(&n)
	return n, err
}

// ListMessages returns the most recent `limit` messages in chronological
// order. limit <= 0 means the full history.
func (s *Store) ListMessages(ctx context.Context, sessionID string, limit int) ([]core.ConversationTurn, error) {
	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = s.DB.QueryContext(ctx,
			`SELECT role, content, created_at FROM messages WHERE session_id=$1 ORDER BY id DESC LIMIT $2`,
			sessionID, limit)
	} else {
		rows, err = s.DB.QueryContext(ctx,
			`SELECT role, content, created_at FROM messages WHERE session_id=$1 ORDER BY id ASC`,
			sessionID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var turns []core.ConversationTurn
	for rows.Next() {
		var t core.ConversationTurn
		if err := rows.Scan(&t.Role, &t.Content, &t.Timestamp); err != nil {
			return nil, err
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if limit > 0 {
		// the bounded query walks newest-first, flip back to chronological
		for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
			turns[i], turns[j] = turns[j], turns[i]
		}
	}
	return turns, nil
}

// AppendTurn writes the user and assistant entries of one completed turn
// atomically and bumps the session's updated_at.
func (s *Store) AppendTurn(ctx context.Context, sessionID string, userTurn, assistantTurn core.ConversationTurn) (err error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, turn := range []core.ConversationTurn{userTurn, assistantTurn} {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO messages (session_id, role, content, created_at) VALUES ($1,$2,$3,$4)`,
			sessionID, turn.Role, turn.Content, turn.Timestamp); err != nil {
			return fmt.Errorf("appending %s turn: %w", turn.Role, err)
		}
	}
	if _, err = tx.ExecContext(ctx,
		`UPDATE sessions SET updated_at=NOW() WHERE id=$1`, sessionID); err != nil {
		return err
	}
	return tx.Commit()
}
