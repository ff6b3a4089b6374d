package mapstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/openvtt/gridveil/internal/geometry"
)

// Repository defines the interface for map data operations. Each session has
// at most one map; Put replaces any existing record for the session.
type Repository interface {
	// Get retrieves the map for a session. Returns ErrMapNotFound if the
	// session has no map loaded.
	Get(ctx context.Context, sessionID string) (*Map, error)

	// Put upserts the map for a session.
	Put(ctx context.Context, m *Map) error
}

// InMemoryRepository is an in-memory implementation of Repository.
// Thread-safe via RWMutex; used for testing and development.
type InMemoryRepository struct {
	mu   sync.RWMutex
	maps map[string]*Map
}

// NewInMemoryRepository creates a new in-memory map repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{maps: make(map[string]*Map)}
}

// Get retrieves the map for a session.
func (r *InMemoryRepository) Get(_ context.Context, sessionID string) (*Map, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.maps[sessionID]
	if !ok {
		return nil, ErrMapNotFound
	}
	return r.copyMap(m), nil
}

// Put upserts the map for a session.
func (r *InMemoryRepository) Put(_ context.Context, m *Map) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if existing, ok := r.maps[m.SessionID]; ok {
		m.CreatedAt = existing.CreatedAt
	} else if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now

	r.maps[m.SessionID] = r.copyMap(m)
	return nil
}

// copyMap creates a deep copy of a Map to prevent external mutation.
func (r *InMemoryRepository) copyMap(m *Map) *Map {
	copied := *m
	copied.Walls = make([]geometry.Wall, len(m.Walls))
	copy(copied.Walls, m.Walls)
	return &copied
}

// PostgresRepository implements Repository backed by PostgreSQL. Walls are
// persisted as a JSONB array.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a new Postgres-backed map repository.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Get retrieves the map for a session.
func (r *PostgresRepository) Get(ctx context.Context, sessionID string) (*Map, error) {
	query := `SELECT session_id, name, image_url, width, height, grid_size, walls, created_at, updated_at
	          FROM session_maps WHERE session_id = $1`

	var m Map
	var wallsJSON []byte
	err := r.db.QueryRowContext(ctx, query, sessionID).Scan(
		&m.SessionID, &m.Name, &m.ImageURL, &m.Width, &m.Height, &m.GridSize,
		&wallsJSON, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrMapNotFound
		}
		return nil, fmt.Errorf("failed to get map: %w", err)
	}

	if err := json.Unmarshal(wallsJSON, &m.Walls); err != nil {
		return nil, fmt.Errorf("failed to decode walls: %w", err)
	}
	return &m, nil
}

// Put upserts the map for a session.
func (r *PostgresRepository) Put(ctx context.Context, m *Map) error {
	wallsJSON, err := json.Marshal(m.Walls)
	if err != nil {
		return fmt.Errorf("failed to encode walls: %w", err)
	}

	query := `INSERT INTO session_maps (session_id, name, image_url, width, height, grid_size, walls, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
	          ON CONFLICT (session_id) DO UPDATE SET
	            name = EXCLUDED.name,
	            image_url = EXCLUDED.image_url,
	            width = EXCLUDED.width,
	            height = EXCLUDED.height,
	            grid_size = EXCLUDED.grid_size,
	            walls = EXCLUDED.walls,
	            updated_at = NOW()
	          RETURNING created_at, updated_at`

	err = r.db.QueryRowContext(ctx, query,
		m.SessionID, m.Name, m.ImageURL, m.Width, m.Height, m.GridSize, wallsJSON,
	).Scan(&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert map: %w", err)
	}
	return nil
}
