package core

import (
	"encoding/json"
	"fmt"
	"math"
)

// earthRadius is the WGS84 equatorial radius in metres.
const earthRadius = 6378137.0

type geoJSON struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// FieldArea validates a GeoJSON Polygon or MultiPolygon in WGS84 and
// returns its area in hectares.
func FieldArea(geometry string) (float64, error) {
	var g geoJSON
	if err := json.Unmarshal([]byte(geometry), &g); err != nil {
		return 0, invalid("b_geometry is not valid GeoJSON")
	}

	var polygons [][][][2]float64
	switch g.Type {
	case "Polygon":
		var p [][][2]float64
		if err := json.Unmarshal(g.Coordinates, &p); err != nil {
			return 0, invalid("b_geometry has malformed coordinates")
		}
		polygons = append(polygons, p)
	case "MultiPolygon":
		if err := json.Unmarshal(g.Coordinates, &polygons); err != nil {
			return 0, invalid("b_geometry has malformed coordinates")
		}
	default:
		return 0, invalid(fmt.Sprintf("b_geometry must be a Polygon or MultiPolygon, got %q", g.Type))
	}
	if len(polygons) == 0 {
		return 0, invalid("b_geometry is empty")
	}

	var m2 float64
	for _, poly := range polygons {
		if len(poly) == 0 {
			return 0, invalid("b_geometry has a polygon without rings")
		}
		for i, ring := range poly {
			if err := validRing(ring); err != nil {
				return 0, err
			}
			a := math.Abs(ringArea(ring))
			if i == 0 {
				m2 += a
			} else {
				m2 -= a
			}
		}
	}
	return m2 / 10_000, nil
}

func validRing(ring [][2]float64) error {
	if len(ring) < 4 {
		return invalid("b_geometry ring needs at least four positions")
	}
	if ring[0] != ring[len(ring)-1] {
		return invalid("b_geometry ring is not closed")
	}
	for _, p := range ring {
		if p[0] < -180 || p[0] > 180 || p[1] < -90 || p[1] > 90 {
			return invalid("b_geometry has coordinates outside WGS84 bounds")
		}
	}
	return nil
}

// ringArea is the signed spherical area of a closed ring in square metres.
func ringArea(ring [][2]float64) float64 {
	n := len(ring)
	var sum float64
	for i := range n {
		lower, middle, upper := ring[i], ring[(i+1)%n], ring[(i+2)%n]
		sum += (radians(upper[0]) - radians(lower[0])) * math.Sin(radians(middle[1]))
	}
	return sum * earthRadius * earthRadius / 2
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }
