package session

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
)

// Repository defines the data operations the access gate needs.
type Repository interface {
	// GetSession retrieves a session by ID. Returns ErrSessionNotFound if absent.
	GetSession(ctx context.Context, id string) (*Session, error)

	// GetCampaign retrieves a campaign by ID. Returns ErrSessionNotFound if absent.
	GetCampaign(ctx context.Context, id string) (*Campaign, error)

	// HasCharacterInCampaign reports whether the user has a character linked
	// to the campaign.
	HasCharacterInCampaign(ctx context.Context, campaignID, userID string) (bool, error)

	// IsParticipant reports whether the user is a direct participant in the session.
	IsParticipant(ctx context.Context, sessionID, userID string) (bool, error)
}

// InMemoryRepository is an in-memory implementation of Repository.
// Thread-safe via RWMutex; used for testing and development.
type InMemoryRepository struct {
	mu           sync.RWMutex
	sessions     map[string]*Session
	campaigns    map[string]*Campaign
	characters   map[string]map[string]bool // campaignID -> userID set
	participants map[string]map[string]bool // sessionID -> userID set
}

// NewInMemoryRepository creates a new in-memory session repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		sessions:     make(map[string]*Session),
		campaigns:    make(map[string]*Campaign),
		characters:   make(map[string]map[string]bool),
		participants: make(map[string]map[string]bool),
	}
}

// PutCampaign stores a campaign.
func (r *InMemoryRepository) PutCampaign(c *Campaign) {
	r.mu.Lock()
	defer r.mu.Unlock()
	campaignCopy := *c
	r.campaigns[c.ID] = &campaignCopy
}

// PutSession stores a session.
func (r *InMemoryRepository) PutSession(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sessionCopy := *s
	r.sessions[s.ID] = &sessionCopy
}

// AddCharacter links a user's character to a campaign.
func (r *InMemoryRepository) AddCharacter(campaignID, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.characters[campaignID] == nil {
		r.characters[campaignID] = make(map[string]bool)
	}
	r.characters[campaignID][userID] = true
}

// AddParticipant adds a direct session participant.
func (r *InMemoryRepository) AddParticipant(sessionID, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.participants[sessionID] == nil {
		r.participants[sessionID] = make(map[string]bool)
	}
	r.participants[sessionID][userID] = true
}

// GetSession retrieves a session by ID.
func (r *InMemoryRepository) GetSession(_ context.Context, id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	sessionCopy := *s
	return &sessionCopy, nil
}

// GetCampaign retrieves a campaign by ID.
func (r *InMemoryRepository) GetCampaign(_ context.Context, id string) (*Campaign, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.campaigns[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	campaignCopy := *c
	return &campaignCopy, nil
}

// HasCharacterInCampaign reports whether the user has a character in the campaign.
func (r *InMemoryRepository) HasCharacterInCampaign(_ context.Context, campaignID, userID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.characters[campaignID][userID], nil
}

// IsParticipant reports whether the user is a direct session participant.
func (r *InMemoryRepository) IsParticipant(_ context.Context, sessionID, userID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.participants[sessionID][userID], nil
}

// PostgresRepository implements Repository backed by PostgreSQL.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a new Postgres-backed session repository.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetSession retrieves a session by ID.
func (r *PostgresRepository) GetSession(ctx context.Context, id string) (*Session, error) {
	query := `SELECT id, campaign_id, name, created_at FROM game_sessions WHERE id = $1`

	var s Session
	err := r.db.QueryRowContext(ctx, query, id).Scan(&s.ID, &s.CampaignID, &s.Name, &s.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &s, nil
}

// GetCampaign retrieves a campaign by ID.
func (r *PostgresRepository) GetCampaign(ctx context.Context, id string) (*Campaign, error) {
	query := `SELECT id, name, dm_id, created_at FROM campaigns WHERE id = $1`

	var c Campaign
	err := r.db.QueryRowContext(ctx, query, id).Scan(&c.ID, &c.Name, &c.DMID, &c.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}
	return &c, nil
}

// HasCharacterInCampaign reports whether the user has a character in the campaign.
func (r *PostgresRepository) HasCharacterInCampaign(ctx context.Context, campaignID, userID string) (bool, error) {
	query := `SELECT EXISTS(
	            SELECT 1 FROM campaign_characters cc
	            JOIN characters c ON c.id = cc.character_id
	            WHERE cc.campaign_id = $1 AND c.user_id = $2)`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, campaignID, userID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check campaign characters: %w", err)
	}
	return exists, nil
}

// IsParticipant reports whether the user is a direct session participant.
func (r *PostgresRepository) IsParticipant(ctx context.Context, sessionID, userID string) (bool, error) {
	query := `SELECT EXISTS(
	            SELECT 1 FROM session_participants
	            WHERE session_id = $1 AND user_id = $2)`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, sessionID, userID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check session participants: %w", err)
	}
	return exists, nil
}
