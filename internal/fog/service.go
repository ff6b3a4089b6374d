package fog

import (
	"context"
	"errors"
	"fmt"

	"github.com/openvtt/gridveil/internal/geometry"
	"github.com/openvtt/gridveil/internal/mapstore"
	"github.com/openvtt/gridveil/internal/session"
	"github.com/openvtt/gridveil/internal/token"
)

// Service coordinates fog-of-war reads and mutations. Reads are open to any
// session participant; every mutation requires the DM role.
type Service struct {
	fog     Repository
	tokens  token.Repository
	maps    mapstore.Repository
	metrics *Metrics
}

// NewService creates a fog-of-war service.
func NewService(fog Repository, tokens token.Repository, maps mapstore.Repository, metrics *Metrics) *Service {
	return &Service{fog: fog, tokens: tokens, maps: maps, metrics: metrics}
}

// Get returns the fog state for a session. Any participant may read it.
func (s *Service) Get(ctx context.Context, sessionID string) (*State, error) {
	return s.fog.Get(ctx, sessionID)
}

// RevealArea appends a single polygon to the session's revealed set.
// DM only; the polygon must have at least MinPolygonPoints vertices.
func (s *Service) RevealArea(ctx context.Context, access *session.Access, area []geometry.Point) error {
	if !access.IsDM() {
		return ErrNotDM
	}
	if len(area) < MinPolygonPoints {
		return ErrPolygonTooSmall
	}

	if err := s.fog.AppendAreas(ctx, access.Session.ID, [][]geometry.Point{area}); err != nil {
		return fmt.Errorf("failed to reveal area: %w", err)
	}
	if s.metrics != nil {
		s.metrics.IncReveals()
	}
	return nil
}

// Clear resets the session's fog state to fully hidden. DM only.
func (s *Service) Clear(ctx context.Context, access *session.Access) error {
	if !access.IsDM() {
		return ErrNotDM
	}

	if err := s.fog.Clear(ctx, access.Session.ID); err != nil {
		return fmt.Errorf("failed to clear fog: %w", err)
	}
	if s.metrics != nil {
		s.metrics.IncClears()
	}
	return nil
}

// AutoReveal computes the vision polygon of every vision-bearing token on the
// session's map and appends them all to the revealed set. The polygons are
// appended individually rather than merged so each reveal stays reversible by
// inspection. DM only; requires a map to be loaded.
func (s *Service) AutoReveal(ctx context.Context, access *session.Access) (int, error) {
	if !access.IsDM() {
		return 0, ErrNotDM
	}

	m, err := s.maps.Get(ctx, access.Session.ID)
	if err != nil {
		if errors.Is(err, mapstore.ErrMapNotFound) {
			return 0, ErrNoMap
		}
		return 0, fmt.Errorf("failed to load map: %w", err)
	}

	tokens, err := s.tokens.ListBySession(ctx, access.Session.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to list tokens: %w", err)
	}

	areas := make([][]geometry.Point, 0, len(tokens))
	for _, t := range tokens {
		poly := geometry.TokenVision(geometry.Point{X: t.X, Y: t.Y}, t.VisionRadius, m.Walls, float64(m.GridSize))
		if len(poly) < MinPolygonPoints {
			continue
		}
		areas = append(areas, poly)
	}

	if len(areas) > 0 {
		if err := s.fog.AppendAreas(ctx, access.Session.ID, areas); err != nil {
			return 0, fmt.Errorf("failed to append revealed areas: %w", err)
		}
	}
	if s.metrics != nil {
		s.metrics.IncAutoReveals()
	}
	return len(areas), nil
}
