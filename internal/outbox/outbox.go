// Package outbox spools fire-and-forget requests to SQLite while the
// broker is unreachable and replays them, oldest first, once it is back.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/services-client/internal/infrastructure/database"
)

// DefaultMaxMessages caps the spool; the oldest messages are discarded beyond it.
const DefaultMaxMessages = 10000

// ErrEmptyKind is returned when enqueueing a message without a kind.
var ErrEmptyKind = errors.New("outbox: empty kind")

// Message is one spooled request.
type Message struct {
	ID        int64
	Kind      string
	Payload   []byte
	Attempts  int
	LastError string
	CreatedAt time.Time
}

// Store is the SQLite-backed spool. The outbox table must exist; see
// database.DB.Migrate.
//
// All public methods are thread-safe.
type Store struct {
	db          *database.DB
	maxMessages int
}

// Option configures a Store.
type Option func(*Store)

// WithMaxMessages sets the spool capacity. Values below 1 are ignored.
func WithMaxMessages(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxMessages = n
		}
	}
}

// New creates a Store on db.
func New(db *database.DB, opts ...Option) *Store {
	s := &Store{db: db, maxMessages: DefaultMaxMessages}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enqueue spools a request body and returns its ID. When the spool is
// over capacity the oldest messages are dropped.
func (s *Store) Enqueue(ctx context.Context, kind string, payload []byte) (int64, error) {
	if kind == "" {
		return 0, ErrEmptyKind
	}

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO outbox (kind, payload, created_at) VALUES (?, ?, ?)",
		kind, payload, time.Now().UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("enqueueing %s: %w", kind, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading outbox id: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, `
		DELETE FROM outbox WHERE id NOT IN (
			SELECT id FROM outbox ORDER BY created_at DESC, id DESC LIMIT ?
		)`, s.maxMessages,
	); err != nil {
		return id, fmt.Errorf("trimming outbox: %w", err)
	}
	return id, nil
}

// Pending returns up to limit messages, oldest first. limit <= 0 means all.
func (s *Store) Pending(ctx context.Context, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, payload, attempts, COALESCE(last_error, ''), created_at
		FROM outbox ORDER BY created_at, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying outbox: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		var created int64
		if err := rows.Scan(&m.ID, &m.Kind, &m.Payload, &m.Attempts, &m.LastError, &created); err != nil {
			return nil, fmt.Errorf("scanning outbox row: %w", err)
		}
		m.CreatedAt = time.UnixMilli(created)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating outbox: %w", err)
	}
	return msgs, nil
}

// Delete removes a delivered message.
func (s *Store) Delete(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM outbox WHERE id = ?", id); err != nil {
		return fmt.Errorf("deleting outbox message %d: %w", id, err)
	}
	return nil
}

// MarkFailed records a failed delivery attempt.
func (s *Store) MarkFailed(ctx context.Context, id int64, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	if _, err := s.db.ExecContext(ctx,
		"UPDATE outbox SET attempts = attempts + 1, last_error = ? WHERE id = ?", msg, id,
	); err != nil {
		return fmt.Errorf("marking outbox message %d: %w", id, err)
	}
	return nil
}

// Len returns the number of spooled messages.
func (s *Store) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM outbox").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting outbox: %w", err)
	}
	return n, nil
}

// Drain hands spooled messages to send, oldest first, deleting each one
// send accepts. It stops at the first failure so ordering is preserved,
// and returns how many messages were delivered.
func (s *Store) Drain(ctx context.Context, send func(Message) error) (int, error) {
	msgs, err := s.Pending(ctx, 0)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, m := range msgs {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		if err := send(m); err != nil {
			if markErr := s.MarkFailed(ctx, m.ID, err); markErr != nil {
				return sent, errors.Join(err, markErr)
			}
			return sent, fmt.Errorf("delivering outbox message %d: %w", m.ID, err)
		}
		if err := s.Delete(ctx, m.ID); err != nil {
			return sent, err
		}
		sent++
	}
	return sent, nil
}
