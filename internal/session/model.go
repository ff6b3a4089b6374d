// Package session provides game session models and the access gate that
// resolves a (session, user) pair to a role before any query or mutation.
package session

import (
	"errors"
	"time"
)

// Common errors for session access resolution.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrForbidden       = errors.New("user does not have access to this session")
)

// Campaign is the minimal campaign entity needed to state access rules:
// the campaign owner (DM) has full rights over its sessions.
type Campaign struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	DMID      string    `json:"dm_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Session represents one game session within a campaign.
type Session struct {
	ID         string    `json:"id"`
	CampaignID string    `json:"campaign_id"`
	Name       string    `json:"name"`
	CreatedAt  time.Time `json:"created_at"`
}

// Role is a user's resolved role within a session.
type Role int

const (
	// RoleNone means the user has no access to the session.
	RoleNone Role = iota
	// RoleParticipant means the user may read session state and move their
	// own tokens.
	RoleParticipant
	// RoleDM means the user owns the campaign and may mutate map, fog and
	// any token state.
	RoleDM
)

// String returns the role name for logging.
func (r Role) String() string {
	switch r {
	case RoleDM:
		return "dm"
	case RoleParticipant:
		return "participant"
	default:
		return "none"
	}
}

// Access is the result of a successful gate check.
type Access struct {
	Session *Session
	Role    Role
}

// IsDM reports whether the resolved role is DM.
func (a *Access) IsDM() bool {
	return a.Role == RoleDM
}
