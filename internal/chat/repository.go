package chat

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultPageSize is the number of messages returned when no limit is given.
const DefaultPageSize = 50

// MaxPageSize caps the page size a client may request.
const MaxPageSize = 100

// Repository defines the interface for chat message data operations.
type Repository interface {
	// Insert stores a new message, assigning ID and CreatedAt if absent.
	Insert(ctx context.Context, m *Message) error

	// ListBySession returns one page of a session's history. The page ends at
	// the cursor (a message ID from a previous page) when given, otherwise at
	// the newest message. Messages come back in ascending creation order.
	ListBySession(ctx context.Context, sessionID string, limit int, cursor *string) (*Page, error)

	// CreatedSince returns messages in the session created strictly after the
	// given time, in ascending creation order. Used by the change feed producer.
	CreatedSince(ctx context.Context, sessionID string, since time.Time) ([]*Message, error)
}

// InMemoryRepository is an in-memory implementation of Repository.
// Thread-safe via RWMutex; used for testing and development.
type InMemoryRepository struct {
	mu       sync.RWMutex
	messages []*Message
	now      func() time.Time
}

// NewInMemoryRepository creates a new in-memory chat repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{now: time.Now}
}

// SetClock overrides the repository clock. Test hook.
func (r *InMemoryRepository) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// Insert stores a new message.
func (r *InMemoryRepository) Insert(_ context.Context, m *Message) error {
	if err := m.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = r.now()
	}

	messageCopy := *m
	r.messages = append(r.messages, &messageCopy)
	return nil
}

// ListBySession returns one page of a session's history.
func (r *InMemoryRepository) ListBySession(_ context.Context, sessionID string, limit int, cursor *string) (*Page, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	// Newest first, then walk back from the cursor.
	var descending []*Message
	for _, m := range r.messages {
		if m.SessionID == sessionID {
			messageCopy := *m
			descending = append(descending, &messageCopy)
		}
	}
	sort.SliceStable(descending, func(i, j int) bool {
		return descending[i].CreatedAt.After(descending[j].CreatedAt)
	})

	start := 0
	if cursor != nil {
		for i, m := range descending {
			if m.ID == *cursor {
				start = i
				break
			}
		}
	}
	window := descending[start:]

	var nextCursor *string
	if len(window) > limit {
		id := window[limit].ID
		nextCursor = &id
		window = window[:limit]
	}

	// Reverse into ascending creation order.
	ascending := make([]*Message, len(window))
	for i, m := range window {
		ascending[len(window)-1-i] = m
	}

	return &Page{Messages: ascending, NextCursor: nextCursor}, nil
}

// CreatedSince returns messages created strictly after the given time.
func (r *InMemoryRepository) CreatedSince(_ context.Context, sessionID string, since time.Time) ([]*Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Message
	for _, m := range r.messages {
		if m.SessionID == sessionID && m.CreatedAt.After(since) {
			messageCopy := *m
			out = append(out, &messageCopy)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// PostgresRepository implements Repository backed by PostgreSQL.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a new Postgres-backed chat repository.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Insert stores a new message.
func (r *PostgresRepository) Insert(ctx context.Context, m *Message) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if m.ID == "" {
		m.ID = uuid.New().String()
	}

	query := `INSERT INTO chat_messages (id, session_id, user_id, content, type, created_at)
	          VALUES ($1, $2, $3, $4, $5, NOW())
	          RETURNING created_at`

	err := r.db.QueryRowContext(ctx, query, m.ID, m.SessionID, m.UserID, m.Content, m.Type).
		Scan(&m.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert chat message: %w", err)
	}
	return nil
}

// ListBySession returns one page of a session's history.
func (r *PostgresRepository) ListBySession(ctx context.Context, sessionID string, limit int, cursor *string) (*Page, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	query := `SELECT id, session_id, user_id, content, type, created_at
	          FROM chat_messages
	          WHERE session_id = $1
	            AND ($2::text IS NULL OR (created_at, id) <= (SELECT created_at, id FROM chat_messages WHERE id = $2))
	          ORDER BY created_at DESC, id DESC
	          LIMIT $3`

	rows, err := r.db.QueryContext(ctx, query, sessionID, cursor, limit+1)
	if err != nil {
		return nil, fmt.Errorf("failed to query chat messages: %w", err)
	}
	defer rows.Close()

	var descending []*Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.SessionID, &m.UserID, &m.Content, &m.Type, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat message: %w", err)
		}
		descending = append(descending, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chat messages: %w", err)
	}

	var nextCursor *string
	if len(descending) > limit {
		id := descending[limit].ID
		nextCursor = &id
		descending = descending[:limit]
	}

	ascending := make([]*Message, len(descending))
	for i, m := range descending {
		ascending[len(descending)-1-i] = m
	}

	return &Page{Messages: ascending, NextCursor: nextCursor}, nil
}

// CreatedSince returns messages created strictly after the given time.
func (r *PostgresRepository) CreatedSince(ctx context.Context, sessionID string, since time.Time) ([]*Message, error) {
	query := `SELECT id, session_id, user_id, content, type, created_at
	          FROM chat_messages
	          WHERE session_id = $1 AND created_at > $2
	          ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, query, sessionID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query chat messages: %w", err)
	}
	defer rows.Close()

	var out []*Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.SessionID, &m.UserID, &m.Content, &m.Type, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat message: %w", err)
		}
		out = append(out, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chat messages: %w", err)
	}
	return out, nil
}
