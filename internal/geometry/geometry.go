// Package geometry provides the great-circle and along-line calculations
// used to place the mission marker on a route.
package geometry

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"

	"focus-walker/internal/models"
)

// ErrGeometryLookup is returned when a point cannot be interpolated on a line
type ErrGeometryLookup struct {
	Distance float64
	Reason   string
}

func (e *ErrGeometryLookup) Error() string {
	return fmt.Sprintf("geometry lookup failed at %.1fm: %s", e.Distance, e.Reason)
}

func toOrb(p models.CalcPoint) orb.Point {
	return orb.Point{p.Lng, p.Lat}
}

func fromOrb(p orb.Point) models.CalcPoint {
	return models.CalcPoint{Lng: p.Lon(), Lat: p.Lat()}
}

// Distance returns the great-circle distance between two points in meters
func Distance(a, b models.CalcPoint) float64 {
	return geo.Distance(toOrb(a), toOrb(b))
}

// LineLength returns the along-line length of a polyline in meters
func LineLength(line []models.CalcPoint) float64 {
	return geo.Length(toLineString(line))
}

// PointAlong returns the point at the given along-line distance from the
// start of line. Distances past the end clamp to the last point.
func PointAlong(line []models.CalcPoint, meters float64) (models.CalcPoint, error) {
	if len(line) == 0 {
		return models.CalcPoint{}, &ErrGeometryLookup{Distance: meters, Reason: "empty line"}
	}
	if math.IsNaN(meters) || math.IsInf(meters, 0) {
		return models.CalcPoint{}, &ErrGeometryLookup{Distance: meters, Reason: "distance is not finite"}
	}
	for i, p := range line {
		if !p.Valid() {
			return models.CalcPoint{}, &ErrGeometryLookup{
				Distance: meters,
				Reason:   fmt.Sprintf("invalid coordinate at index %d", i),
			}
		}
	}

	pt, _ := geo.PointAtDistanceAlongLine(toLineString(line), meters)
	return fromOrb(pt), nil
}

func toLineString(line []models.CalcPoint) orb.LineString {
	ls := make(orb.LineString, len(line))
	for i, p := range line {
		ls[i] = toOrb(p)
	}
	return ls
}
