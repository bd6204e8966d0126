// Package geometry parses restricted-region polygons and answers
// point-in-polygon queries. Geometry is built on github.com/paulmach/orb,
// the same ray-casting primitive used elsewhere in the ADS-B tooling
// ecosystem this service draws from; we deliberately keep our own thin
// GeoJSON decoding rather than orb's geojson subpackage, since the wire
// contract only ever needs a single Polygon geometry, never the full
// Feature/FeatureCollection envelope.
package geometry

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// MalformedGeometry is returned when a polygon encoding cannot be parsed or
// does not satisfy the closed-ring / distinct-vertex invariant.
type MalformedGeometry struct {
	Reason string
}

func (e *MalformedGeometry) Error() string {
	return fmt.Sprintf("malformed geometry: %s", e.Reason)
}

// Region is the parsed, ready-to-query form of a restricted region. It is
// safe for concurrent read access — every method here is read-only.
type Region struct {
	Polygon orb.Polygon
}

// rawPolygon mirrors the subset of GeoJSON Polygon we accept: outer ring
// first, coordinates as [lon, lat] pairs, extra rings ignored per spec.md §6.
type rawPolygon struct {
	Type        string        `json:"type"`
	Coordinates [][][]float64 `json:"coordinates"`
}

// Parse decodes a serialized GeoJSON Polygon into a queryable Region.
// Self-intersecting rings are rejected rather than repaired: orb has no
// buffer-by-zero primitive, so the spec's fallback path ("otherwise the
// region is rejected") is the one taken here.
func Parse(encoded string) (*Region, error) {
	var raw rawPolygon
	if err := json.Unmarshal([]byte(encoded), &raw); err != nil {
		return nil, &MalformedGeometry{Reason: "invalid JSON: " + err.Error()}
	}
	if raw.Type != "Polygon" {
		return nil, &MalformedGeometry{Reason: fmt.Sprintf("unsupported geometry type %q", raw.Type)}
	}
	if len(raw.Coordinates) == 0 {
		return nil, &MalformedGeometry{Reason: "no rings present"}
	}

	outer := raw.Coordinates[0]
	if len(outer) < 4 {
		return nil, &MalformedGeometry{Reason: "ring has fewer than 4 vertices"}
	}

	ring := make(orb.Ring, 0, len(outer))
	for _, pt := range outer {
		if len(pt) < 2 {
			return nil, &MalformedGeometry{Reason: "coordinate pair missing lon/lat"}
		}
		ring = append(ring, orb.Point{pt[0], pt[1]})
	}

	if ring[0] != ring[len(ring)-1] {
		return nil, &MalformedGeometry{Reason: "ring is not closed (first != last vertex)"}
	}

	if distinctVertexCount(ring) < 3 {
		return nil, &MalformedGeometry{Reason: "ring has fewer than 3 distinct vertices"}
	}

	if selfIntersects(ring) {
		return nil, &MalformedGeometry{Reason: "ring self-intersects and cannot be repaired"}
	}

	return &Region{Polygon: orb.Polygon{ring}}, nil
}

func distinctVertexCount(ring orb.Ring) int {
	seen := make(map[orb.Point]struct{}, len(ring))
	for i, p := range ring {
		if i == len(ring)-1 {
			break // last vertex duplicates the first by the closed-ring invariant
		}
		seen[p] = struct{}{}
	}
	return len(seen)
}

// selfIntersects checks every non-adjacent edge pair for intersection using
// a standard segment-intersection test. O(n^2) but n is small (hand-drawn
// operator polygons, not high-resolution terrain data).
func selfIntersects(ring orb.Ring) bool {
	n := len(ring) - 1 // last point duplicates first
	if n < 4 {
		return false
	}
	for i := 0; i < n; i++ {
		a1, a2 := ring[i], ring[i+1]
		for j := i + 2; j < n; j++ {
			if i == 0 && j == n-1 {
				continue // adjacent edges sharing the closing vertex
			}
			b1, b2 := ring[j], ring[j+1]
			if segmentsIntersect(a1, a2, b1, b2) {
				return true
			}
		}
	}
	return false
}

func segmentsIntersect(p1, p2, p3, p4 orb.Point) bool {
	d1 := cross(p4, p3, p1)
	d2 := cross(p4, p3, p2)
	d3 := cross(p2, p1, p3)
	d4 := cross(p2, p1, p4)

	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}
	return false
}

func cross(a, b, c orb.Point) float64 {
	return (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
}

// Contains reports whether (lat, lon) falls inside the region, using the
// even-odd ray-casting rule. Boundary points are treated as inside.
func (r *Region) Contains(lat, lon float64) bool {
	pt := orb.Point{lon, lat}
	if planar.PolygonContains(r.Polygon, pt) {
		return true
	}
	return onBoundary(r.Polygon[0], pt)
}

func onBoundary(ring orb.Ring, pt orb.Point) bool {
	const eps = 1e-9
	for i := 0; i < len(ring)-1; i++ {
		a, b := ring[i], ring[i+1]
		if pointOnSegment(a, b, pt, eps) {
			return true
		}
	}
	return false
}

func pointOnSegment(a, b, p orb.Point, eps float64) bool {
	cr := cross(a, b, p)
	if math.Abs(cr) > eps {
		return false
	}
	minX, maxX := math.Min(a[0], b[0]), math.Max(a[0], b[0])
	minY, maxY := math.Min(a[1], b[1]), math.Max(a[1], b[1])
	return p[0] >= minX-eps && p[0] <= maxX+eps && p[1] >= minY-eps && p[1] <= maxY+eps
}

// CentroidAndExtent returns the region's bounding-box center and its
// longest side length in degrees, for framing visualisations. Deterministic
// by construction — no trig, just min/max over the ring.
func (r *Region) CentroidAndExtent() (lat, lon, maxExtentDeg float64) {
	bound := r.Polygon.Bound()
	center := bound.Center()
	dx := bound.Max[0] - bound.Min[0]
	dy := bound.Max[1] - bound.Min[1]
	extent := dx
	if dy > extent {
		extent = dy
	}
	return center[1], center[0], extent
}
