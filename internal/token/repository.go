package token

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openvtt/gridveil/internal/tracing"
)

// Repository defines the interface for token data operations.
type Repository interface {
	// Insert stores a new token, assigning an ID if absent.
	Insert(ctx context.Context, t *Token) error

	// GetByID retrieves a token by ID. Returns ErrTokenNotFound if absent.
	GetByID(ctx context.Context, id string) (*Token, error)

	// ListBySession returns all tokens in a session ordered by creation time.
	ListBySession(ctx context.Context, sessionID string) ([]*Token, error)

	// Update applies a partial update and bumps UpdatedAt.
	Update(ctx context.Context, id string, upd Update) (*Token, error)

	// Delete removes a token. Returns ErrTokenNotFound if absent.
	Delete(ctx context.Context, id string) error

	// UpdatedSince returns tokens in the session whose UpdatedAt is strictly
	// after the given time. Used by the change feed producer.
	UpdatedSince(ctx context.Context, sessionID string, since time.Time) ([]*Token, error)
}

// InMemoryRepository is an in-memory implementation of Repository.
// Thread-safe via RWMutex; used for testing and development.
type InMemoryRepository struct {
	mu     sync.RWMutex
	tokens map[string]*Token
	now    func() time.Time
}

// NewInMemoryRepository creates a new in-memory token repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		tokens: make(map[string]*Token),
		now:    time.Now,
	}
}

// SetClock overrides the repository clock. Test hook.
func (r *InMemoryRepository) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// Insert stores a new token, assigning an ID if absent.
func (r *InMemoryRepository) Insert(_ context.Context, t *Token) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	now := r.now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now

	tokenCopy := r.copyToken(t)
	r.tokens[t.ID] = tokenCopy
	return nil
}

// GetByID retrieves a token by ID.
func (r *InMemoryRepository) GetByID(_ context.Context, id string) (*Token, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tokens[id]
	if !ok {
		return nil, ErrTokenNotFound
	}
	return r.copyToken(t), nil
}

// ListBySession returns all tokens in a session ordered by creation time.
func (r *InMemoryRepository) ListBySession(_ context.Context, sessionID string) ([]*Token, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Token
	for _, t := range r.tokens {
		if t.SessionID == sessionID {
			out = append(out, r.copyToken(t))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Update applies a partial update and bumps UpdatedAt.
func (r *InMemoryRepository) Update(_ context.Context, id string, upd Update) (*Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tokens[id]
	if !ok {
		return nil, ErrTokenNotFound
	}

	if upd.Name != nil {
		t.Name = *upd.Name
	}
	if upd.X != nil {
		t.X = *upd.X
	}
	if upd.Y != nil {
		t.Y = *upd.Y
	}
	if upd.Size != nil {
		t.Size = *upd.Size
	}
	if upd.VisionRadius != nil {
		radius := *upd.VisionRadius
		t.VisionRadius = &radius
	}
	if upd.HasDarkvision != nil {
		t.HasDarkvision = *upd.HasDarkvision
	}
	if upd.ImageURL != nil {
		t.ImageURL = *upd.ImageURL
	}
	t.UpdatedAt = r.now()

	return r.copyToken(t), nil
}

// Delete removes a token.
func (r *InMemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tokens[id]; !ok {
		return ErrTokenNotFound
	}
	delete(r.tokens, id)
	return nil
}

// UpdatedSince returns tokens updated strictly after the given time.
func (r *InMemoryRepository) UpdatedSince(_ context.Context, sessionID string, since time.Time) ([]*Token, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Token
	for _, t := range r.tokens {
		if t.SessionID == sessionID && t.UpdatedAt.After(since) {
			out = append(out, r.copyToken(t))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.Before(out[j].UpdatedAt)
	})
	return out, nil
}

// copyToken creates a deep copy of a Token to prevent external mutation.
func (r *InMemoryRepository) copyToken(t *Token) *Token {
	copied := *t
	if t.VisionRadius != nil {
		radius := *t.VisionRadius
		copied.VisionRadius = &radius
	}
	if t.CharacterID != nil {
		characterID := *t.CharacterID
		copied.CharacterID = &characterID
	}
	if t.OwnerID != nil {
		ownerID := *t.OwnerID
		copied.OwnerID = &ownerID
	}
	return &copied
}

// PostgresRepository implements Repository backed by PostgreSQL.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a new Postgres-backed token repository.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const tokenColumns = `id, session_id, name, x, y, size, vision_radius,
	has_darkvision, image_url, character_id, owner_id, created_at, updated_at`

// Insert stores a new token, assigning an ID if absent.
func (r *PostgresRepository) Insert(ctx context.Context, t *Token) (err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "tokens", tracing.DBOperationInsert)
	defer func() { endSpan(err) }()

	if t.ID == "" {
		t.ID = uuid.New().String()
	}

	query := `INSERT INTO tokens (id, session_id, name, x, y, size, vision_radius,
	            has_darkvision, image_url, character_id, owner_id, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
	          RETURNING created_at, updated_at`

	err = r.db.QueryRowContext(ctx, query,
		t.ID, t.SessionID, t.Name, t.X, t.Y, t.Size, t.VisionRadius,
		t.HasDarkvision, t.ImageURL, t.CharacterID, t.OwnerID,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert token: %w", err)
	}
	return nil
}

// GetByID retrieves a token by ID.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Token, error) {
	query := `SELECT ` + tokenColumns + ` FROM tokens WHERE id = $1`

	t, err := r.scanToken(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to get token: %w", err)
	}
	return t, nil
}

// ListBySession returns all tokens in a session ordered by creation time.
func (r *PostgresRepository) ListBySession(ctx context.Context, sessionID string) ([]*Token, error) {
	query := `SELECT ` + tokenColumns + ` FROM tokens
	          WHERE session_id = $1 ORDER BY created_at ASC`

	return r.queryTokens(ctx, query, sessionID)
}

// Update applies a partial update and bumps updated_at.
func (r *PostgresRepository) Update(ctx context.Context, id string, upd Update) (*Token, error) {
	query := `UPDATE tokens SET
	            name = COALESCE($2, name),
	            x = COALESCE($3, x),
	            y = COALESCE($4, y),
	            size = COALESCE($5, size),
	            vision_radius = COALESCE($6, vision_radius),
	            has_darkvision = COALESCE($7, has_darkvision),
	            image_url = COALESCE($8, image_url),
	            updated_at = NOW()
	          WHERE id = $1
	          RETURNING ` + tokenColumns

	t, err := r.scanToken(r.db.QueryRowContext(ctx, query,
		id, upd.Name, upd.X, upd.Y, upd.Size, upd.VisionRadius, upd.HasDarkvision, upd.ImageURL))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to update token: %w", err)
	}
	return t, nil
}

// Delete removes a token.
func (r *PostgresRepository) Delete(ctx context.Context, id string) (err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "tokens", tracing.DBOperationDelete)
	defer func() { endSpan(err) }()

	result, err := r.db.ExecContext(ctx, `DELETE FROM tokens WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrTokenNotFound
	}
	return nil
}

// UpdatedSince returns tokens updated strictly after the given time.
func (r *PostgresRepository) UpdatedSince(ctx context.Context, sessionID string, since time.Time) ([]*Token, error) {
	query := `SELECT ` + tokenColumns + ` FROM tokens
	          WHERE session_id = $1 AND updated_at > $2 ORDER BY updated_at ASC`

	return r.queryTokens(ctx, query, sessionID, since)
}

func (r *PostgresRepository) queryTokens(ctx context.Context, query string, args ...any) ([]*Token, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tokens: %w", err)
	}
	defer rows.Close()

	var out []*Token
	for rows.Next() {
		t, err := r.scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan token: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tokens: %w", err)
	}
	return out, nil
}

// rowScanner abstracts sql.Row and sql.Rows for scanToken.
type rowScanner interface {
	Scan(dest ...any) error
}

func (r *PostgresRepository) scanToken(row rowScanner) (*Token, error) {
	var t Token
	var imageURL sql.NullString
	err := row.Scan(&t.ID, &t.SessionID, &t.Name, &t.X, &t.Y, &t.Size,
		&t.VisionRadius, &t.HasDarkvision, &imageURL, &t.CharacterID, &t.OwnerID,
		&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.ImageURL = imageURL.String
	return &t, nil
}
