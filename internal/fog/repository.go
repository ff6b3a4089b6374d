package fog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/openvtt/gridveil/internal/geometry"
	"github.com/openvtt/gridveil/internal/tracing"
)

// Repository defines the interface for fog-of-war persistence. A session
// with no stored state reads as an empty reveal set, never an error.
type Repository interface {
	// Get retrieves the fog state for a session. A session that has never
	// been revealed returns a State with an empty RevealedAreas slice.
	Get(ctx context.Context, sessionID string) (*State, error)

	// AppendAreas appends revealed polygons to the session's fog state.
	AppendAreas(ctx context.Context, sessionID string, areas [][]geometry.Point) error

	// Clear removes all revealed areas for a session.
	Clear(ctx context.Context, sessionID string) error
}

// InMemoryRepository is an in-memory implementation of Repository.
// Thread-safe via RWMutex; used for testing and development.
type InMemoryRepository struct {
	mu     sync.RWMutex
	states map[string]*State
}

// NewInMemoryRepository creates a new in-memory fog repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{states: make(map[string]*State)}
}

// Get retrieves the fog state for a session.
func (r *InMemoryRepository) Get(_ context.Context, sessionID string) (*State, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.states[sessionID]
	if !ok {
		return &State{SessionID: sessionID, RevealedAreas: [][]geometry.Point{}}, nil
	}
	return copyState(s), nil
}

// AppendAreas appends revealed polygons to the session's fog state.
func (r *InMemoryRepository) AppendAreas(_ context.Context, sessionID string, areas [][]geometry.Point) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.states[sessionID]
	if !ok {
		s = &State{SessionID: sessionID, RevealedAreas: [][]geometry.Point{}}
		r.states[sessionID] = s
	}

	for _, area := range areas {
		copied := make([]geometry.Point, len(area))
		copy(copied, area)
		s.RevealedAreas = append(s.RevealedAreas, copied)
	}
	s.UpdatedAt = time.Now()
	return nil
}

// Clear removes all revealed areas for a session.
func (r *InMemoryRepository) Clear(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.states[sessionID]
	if !ok {
		return nil
	}
	s.RevealedAreas = [][]geometry.Point{}
	s.UpdatedAt = time.Now()
	return nil
}

// copyState creates a deep copy of a State to prevent external mutation.
func copyState(s *State) *State {
	copied := &State{
		SessionID:     s.SessionID,
		RevealedAreas: make([][]geometry.Point, len(s.RevealedAreas)),
		UpdatedAt:     s.UpdatedAt,
	}
	for i, area := range s.RevealedAreas {
		copied.RevealedAreas[i] = make([]geometry.Point, len(area))
		copy(copied.RevealedAreas[i], area)
	}
	return copied
}

// PostgresRepository implements Repository backed by PostgreSQL. The reveal
// set is persisted as a single JSONB document per session.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a new Postgres-backed fog repository.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Get retrieves the fog state for a session.
func (r *PostgresRepository) Get(ctx context.Context, sessionID string) (_ *State, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "fog_of_war", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	query := `SELECT session_id, revealed_areas, updated_at FROM fog_of_war WHERE session_id = $1`

	var s State
	var areasJSON []byte
	err = r.db.QueryRowContext(ctx, query, sessionID).Scan(&s.SessionID, &areasJSON, &s.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return &State{SessionID: sessionID, RevealedAreas: [][]geometry.Point{}}, nil
		}
		return nil, fmt.Errorf("failed to get fog state: %w", err)
	}

	if err := json.Unmarshal(areasJSON, &s.RevealedAreas); err != nil {
		return nil, fmt.Errorf("failed to decode revealed areas: %w", err)
	}
	if s.RevealedAreas == nil {
		s.RevealedAreas = [][]geometry.Point{}
	}
	return &s, nil
}

// AppendAreas appends revealed polygons to the session's fog state.
func (r *PostgresRepository) AppendAreas(ctx context.Context, sessionID string, areas [][]geometry.Point) (err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "fog_of_war", tracing.DBOperationExec)
	defer func() { endSpan(err) }()

	areasJSON, err := json.Marshal(areas)
	if err != nil {
		return fmt.Errorf("failed to encode revealed areas: %w", err)
	}

	query := `INSERT INTO fog_of_war (session_id, revealed_areas, updated_at)
	          VALUES ($1, $2, NOW())
	          ON CONFLICT (session_id) DO UPDATE SET
	            revealed_areas = fog_of_war.revealed_areas || EXCLUDED.revealed_areas,
	            updated_at = NOW()`

	if _, err := r.db.ExecContext(ctx, query, sessionID, areasJSON); err != nil {
		return fmt.Errorf("failed to append revealed areas: %w", err)
	}
	return nil
}

// Clear removes all revealed areas for a session.
func (r *PostgresRepository) Clear(ctx context.Context, sessionID string) (err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "fog_of_war", tracing.DBOperationUpdate)
	defer func() { endSpan(err) }()

	query := `UPDATE fog_of_war SET revealed_areas = '[]'::jsonb, updated_at = NOW() WHERE session_id = $1`
	if _, err := r.db.ExecContext(ctx, query, sessionID); err != nil {
		return fmt.Errorf("failed to clear fog state: %w", err)
	}
	return nil
}
