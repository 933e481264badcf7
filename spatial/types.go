// Copyright 2025 The Palate Authors
//
// SPDX-License-Identifier: Apache-2.0
package spatial

import (
	"database/sql/driver"
	"fmt"
	"math"
)

const earthRadius = 6371e3 // meters

// Point represents a geographical point with latitude and longitude.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// String returns a string representation of the Point.
func (p Point) String() string {
	return fmt.Sprintf("POINT(%f %f)", p.Lng, p.Lat)
}

// Value implements the driver.Valuer interface for database serialization.
func (p Point) Value() (driver.Value, error) {
	return p.String(), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
func (p *Point) Scan(value interface{}) error {
	if value == nil {
		p.Lat, p.Lng = 0, 0

		return nil
	}

	switch v := value.(type) {
	case []byte:
		return p.scanText(string(v))
	case string:
		return p.scanText(v)
	default:
		return fmt.Errorf("spatial: unsupported type for Point scan: %T", value)
	}
}

func (p *Point) scanText(s string) error {
	// both "POINT(lng lat)" and "POINT (lng lat)" show up depending on the writer
	if _, err := fmt.Sscanf(s, "POINT(%f %f)", &p.Lng, &p.Lat); err == nil {
		return nil
	}

	_, err := fmt.Sscanf(s, "POINT (%f %f)", &p.Lng, &p.Lat)

	return err
}

// HaversineDistance calculates the distance between two points on Earth in meters.
func (p *Point) HaversineDistance(other *Point) float64 {
	return Distance(p.Lat, p.Lng, other.Lat, other.Lng)
}

// Distance returns the great-circle distance in meters between two
// coordinates using the haversine formula. NaN inputs yield NaN.
func Distance(lat1, lng1, lat2, lng2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dLat := (lat2 - lat1) * math.Pi / 180
	dLng := (lng2 - lng1) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(phi1)*math.Cos(phi2)*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadius * c
}

// Centroid returns the arithmetic mean of the given points. The second
// return value is false when points is empty.
func Centroid(points []Point) (Point, bool) {
	if len(points) == 0 {
		return Point{}, false
	}

	var sumLat, sumLng float64
	for _, p := range points {
		sumLat += p.Lat
		sumLng += p.Lng
	}

	n := float64(len(points))

	return Point{Lat: sumLat / n, Lng: sumLng / n}, true
}
