// Copyright 2025 The Palate Authors
// SPDX-License-Identifier: Apache-2.0

package visits

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

const (
	maxNameLength  = 300
	maxNotesLength = 2000
)

// validateCoordinates checks that lat/lon are finite and on the globe.
func validateCoordinates(lat, lon float64) error {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return fmt.Errorf("coordinates must be finite (got %f, %f)", lat, lon)
	}

	if lat < -90 || lat > 90 {
		return fmt.Errorf("latitude must be between -90 and 90 (got %f)", lat)
	}

	if lon < -180 || lon > 180 {
		return fmt.Errorf("longitude must be between -180 and 180 (got %f)", lon)
	}

	return nil
}

// validateReference checks a reference restaurant before it is stored.
func validateReference(r *ReferenceRestaurant) error {
	if r == nil {
		return errors.New("restaurant can't be nil")
	}

	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("restaurant %d: name can't be empty", r.ID)
	}

	if len(r.Name) > maxNameLength {
		return fmt.Errorf("restaurant %d: name too long (max %d)", r.ID, maxNameLength)
	}

	if err := validateCoordinates(r.Latitude, r.Longitude); err != nil {
		return fmt.Errorf("restaurant %d: %w", r.ID, err)
	}

	return nil
}

// validatePhoto checks a photo record before it is stored. Photos without a
// location are accepted; they just never cluster.
func validatePhoto(p *Photo) error {
	if p == nil {
		return errors.New("photo can't be nil")
	}

	if strings.TrimSpace(p.ID) == "" {
		return errors.New("photo id can't be empty")
	}

	if p.CaptureTime.IsZero() {
		return fmt.Errorf("photo %s: capture time is required", p.ID)
	}

	if (p.Latitude == nil) != (p.Longitude == nil) {
		return fmt.Errorf("photo %s: latitude and longitude must be set together", p.ID)
	}

	if p.Latitude != nil {
		if err := validateCoordinates(*p.Latitude, *p.Longitude); err != nil {
			return fmt.Errorf("photo %s: %w", p.ID, err)
		}
	}

	return nil
}

// validateNewRestaurant checks a user supplied restaurant.
func validateNewRestaurant(r NewRestaurant) error {
	if strings.TrimSpace(r.Name) == "" {
		return errors.New("name can't be empty")
	}

	if len(r.Name) > maxNameLength {
		return fmt.Errorf("name too long (max %d)", maxNameLength)
	}

	return validateCoordinates(r.Latitude, r.Longitude)
}

// sanitizeNotes trims and caps free text notes.
func sanitizeNotes(notes string) string {
	notes = strings.TrimSpace(notes)

	if len(notes) > maxNotesLength {
		notes = notes[:maxNotesLength]
	}

	return notes
}
