// Package mapstore provides the map entity for a session: the background
// image reference, grid dimensions and the wall set consumed by the geometry
// kernel. Walls are immutable once a map is uploaded.
package mapstore

import (
	"errors"
	"time"

	"github.com/openvtt/gridveil/internal/geometry"
)

// Common errors for map operations.
var (
	ErrMapNotFound = errors.New("map not found")
)

// DefaultGridSize is the pixel size of one grid square when the upload does
// not specify one.
const DefaultGridSize = 70

// Map represents the tactical map loaded into a session.
type Map struct {
	SessionID string          `json:"session_id"`
	Name      string          `json:"name"`
	ImageURL  string          `json:"image_url"`
	Width     int             `json:"width"`
	Height    int             `json:"height"`
	GridSize  int             `json:"grid_size"`
	Walls     []geometry.Wall `json:"walls"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
