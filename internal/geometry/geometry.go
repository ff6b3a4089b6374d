// Package geometry provides line-of-sight and field-of-view computation for
// the tactical map. All functions are pure: they take walls and vision sources
// and return visibility regions without touching any state.
package geometry

import (
	"math"
	"sort"
)

// parallelEpsilon is the denominator threshold below which two segments are
// treated as parallel and therefore non-intersecting.
const parallelEpsilon = 1e-4

// FeetPerSquare is the real-world convention of 5 feet per grid square,
// used to convert token vision radii into grid units.
const FeetPerSquare = 5.0

// MinRays is the minimum number of rays cast for a field-of-view computation,
// regardless of radius.
const MinRays = 32

// MergeProximity is the axis-wise distance under which two points are
// considered duplicates when merging polygons.
const MergeProximity = 0.1

// Point is a position in map-grid coordinates (grid units, not pixels).
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Wall is an opaque line segment in map-grid coordinates. Walls are immutable
// once a map is loaded.
type Wall struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Intersects reports whether the segment (x1,y1)-(x2,y2) crosses the wall.
// It solves for the parametric intersection coefficients on both segments;
// parallel segments (denominator within parallelEpsilon of zero) are reported
// as non-intersecting.
func Intersects(x1, y1, x2, y2 float64, wall Wall) bool {
	d1x := x2 - x1
	d1y := y2 - y1
	d2x := wall.X2 - wall.X1
	d2y := wall.Y2 - wall.Y1

	denominator := d1x*d2y - d1y*d2x
	if math.Abs(denominator) < parallelEpsilon {
		return false
	}

	t1 := ((wall.X1-x1)*d2y - (wall.Y1-y1)*d2x) / denominator
	t2 := ((wall.X1-x1)*d1y - (wall.Y1-y1)*d1x) / denominator

	return t1 >= 0 && t1 <= 1 && t2 >= 0 && t2 <= 1
}

// HasLineOfSight reports whether no wall blocks the segment between from and to.
func HasLineOfSight(from, to Point, walls []Wall) bool {
	for _, wall := range walls {
		if Intersects(from.X, from.Y, to.X, to.Y, wall) {
			return false
		}
	}
	return true
}

// RayCount returns the number of rays cast for the given radius:
// max(MinRays, floor(radius*2)).
func RayCount(radius float64) int {
	rays := int(math.Floor(radius * 2))
	if rays < MinRays {
		rays = MinRays
	}
	return rays
}

// FieldOfView casts rays from origin at equally spaced angles covering a full
// circle and returns one boundary point per ray. Each ray is walked outward in
// increments of step up to radius; the boundary point sits at the first
// blocking distance, or at radius if nothing blocks.
//
// This is an approximation of true polygon-clipped visibility: precision is
// bounded by step and ray count.
func FieldOfView(origin Point, radius float64, walls []Wall, step float64) []Point {
	rays := RayCount(radius)
	visible := make([]Point, 0, rays)

	for i := 0; i < rays; i++ {
		angle := (float64(i) / float64(rays)) * 2 * math.Pi
		maxDistance := radius

		for distance := step; distance <= radius; distance += step {
			x := origin.X + math.Cos(angle)*distance
			y := origin.Y + math.Sin(angle)*distance

			hitWall := false
			for _, wall := range walls {
				if Intersects(origin.X, origin.Y, x, y, wall) {
					hitWall = true
					maxDistance = math.Min(maxDistance, distance)
					break
				}
			}
			if hitWall {
				break
			}
		}

		visible = append(visible, Point{
			X: origin.X + math.Cos(angle)*maxDistance,
			Y: origin.Y + math.Sin(angle)*maxDistance,
		})
	}

	return visible
}

// VisionPolygon sorts the field-of-view boundary points by angle around the
// origin and prepends the origin, yielding a closed fan polygon usable as a
// fill or clip path.
func VisionPolygon(origin Point, fovPoints []Point) []Point {
	sorted := make([]Point, len(fovPoints))
	copy(sorted, fovPoints)

	sort.SliceStable(sorted, func(i, j int) bool {
		angleI := math.Atan2(sorted[i].Y-origin.Y, sorted[i].X-origin.X)
		angleJ := math.Atan2(sorted[j].Y-origin.Y, sorted[j].X-origin.X)
		return angleI < angleJ
	})

	polygon := make([]Point, 0, len(sorted)+1)
	polygon = append(polygon, origin)
	polygon = append(polygon, sorted...)
	return polygon
}

// TokenVision computes the vision polygon for a token. The vision radius is
// given in feet and converted to grid units at FeetPerSquare. A nil or
// non-positive radius means the token casts no light; the result is empty.
func TokenVision(position Point, visionRadiusFeet *float64, walls []Wall, gridSize float64) []Point {
	if visionRadiusFeet == nil || *visionRadiusFeet <= 0 {
		return []Point{}
	}

	radiusInGrid := *visionRadiusFeet / FeetPerSquare
	fovPoints := FieldOfView(position, radiusInGrid, walls, gridSize)
	return VisionPolygon(position, fovPoints)
}

// MergePolygons combines multiple polygons into a single point list,
// deduplicating any pair of points within MergeProximity of each other on
// both axes. This is deduplication, not a geometric union: overlapping but
// non-identical polygons remain represented by all of their distinct points.
func MergePolygons(polygons [][]Point) []Point {
	if len(polygons) == 0 {
		return []Point{}
	}
	if len(polygons) == 1 {
		return polygons[0]
	}

	var all []Point
	for _, polygon := range polygons {
		all = append(all, polygon...)
	}

	unique := make([]Point, 0, len(all))
	for _, p := range all {
		duplicate := false
		for _, u := range unique {
			if math.Abs(p.X-u.X) < MergeProximity && math.Abs(p.Y-u.Y) < MergeProximity {
				duplicate = true
				break
			}
		}
		if !duplicate {
			unique = append(unique, p)
		}
	}

	return unique
}
