// Package fog implements fog-of-war state for a session: an append-only set
// of revealed polygons the DM carves out of the darkness. Players only ever
// see the union of revealed areas; the DM controls every mutation.
package fog

import (
	"errors"
	"time"

	"github.com/openvtt/gridveil/internal/geometry"
)

// Common errors for fog-of-war operations.
var (
	ErrNotDM           = errors.New("only the DM may modify fog of war")
	ErrPolygonTooSmall = errors.New("revealed area must have at least 3 points")
	ErrNoMap           = errors.New("session has no map loaded")
)

// MinPolygonPoints is the minimum vertex count for a revealed area.
const MinPolygonPoints = 3

// State holds the fog-of-war state for a session. RevealedAreas is
// append-only under normal play; Clear resets it wholesale.
type State struct {
	SessionID     string             `json:"session_id"`
	RevealedAreas [][]geometry.Point `json:"revealed_areas"`
	UpdatedAt     time.Time          `json:"updated_at"`
}
