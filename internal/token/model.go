// Package token provides models and repository for map tokens: the movable
// pieces on the tactical map whose positions drive vision and fog computation.
package token

import (
	"errors"
	"time"
)

// Common errors for token operations.
var (
	ErrTokenNotFound = errors.New("token not found")
)

// Token represents one piece on a session's map. VisionRadius is in feet;
// nil means the token casts no light and is excluded from FOV computation.
// HasDarkvision is reserved for future radius adjustment and is not consumed
// by the geometry kernel.
type Token struct {
	ID            string   `json:"id"`
	SessionID     string   `json:"session_id"`
	Name          string   `json:"name"`
	X             float64  `json:"x"`
	Y             float64  `json:"y"`
	Size          int      `json:"size"`
	VisionRadius  *float64 `json:"vision_radius,omitempty"`
	HasDarkvision bool     `json:"has_darkvision"`
	ImageURL      string   `json:"image_url,omitempty"`
	CharacterID   *string  `json:"character_id,omitempty"`
	OwnerID       *string  `json:"owner_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Update carries partial token mutations. Nil fields are left unchanged.
type Update struct {
	Name          *string
	X             *float64
	Y             *float64
	Size          *int
	VisionRadius  *float64
	HasDarkvision *bool
	ImageURL      *string
}
