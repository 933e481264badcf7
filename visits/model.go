// Copyright 2025 The Palate Authors
// SPDX-License-Identifier: Apache-2.0

package visits

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jonluca/palate-sub000/spatial"
)

// Status is the review state of a visit.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusRejected  Status = "rejected"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusRejected:
		return true
	default:
		return false
	}
}

// FoodState is the outcome of the food classifier for a photo. Unknown means
// the photo hasn't been classified yet.
type FoodState int

const (
	FoodUnknown FoodState = iota
	FoodPositive
	FoodNegative
)

var foodStateNames = map[FoodState]string{
	FoodUnknown:  "unknown",
	FoodPositive: "food",
	FoodNegative: "not_food",
}

func (f FoodState) String() string {
	if name, ok := foodStateNames[f]; ok {
		return name
	}

	return fmt.Sprintf("FoodState(%d)", int(f))
}

// MarshalText implements encoding.TextMarshaler.
func (f FoodState) MarshalText() ([]byte, error) {
	name, ok := foodStateNames[f]
	if !ok {
		return nil, fmt.Errorf("invalid food state %d", int(f))
	}

	return []byte(name), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Booleans are accepted
// for inputs produced by classifiers that only emit true/false.
func (f *FoodState) UnmarshalText(text []byte) error {
	switch string(text) {
	case "", "unknown", "null":
		*f = FoodUnknown
	case "food", "true":
		*f = FoodPositive
	case "not_food", "false":
		*f = FoodNegative
	default:
		return fmt.Errorf("invalid food state %q", text)
	}

	return nil
}

// UnmarshalJSON accepts the text forms plus JSON booleans and null.
func (f *FoodState) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return f.UnmarshalText([]byte(s))
	}

	return f.UnmarshalText(data)
}

// Label is a classifier label with its confidence in [0, 1].
type Label struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Photo is a single photo record. VisitID is empty while the photo is not
// assigned to any visit.
type Photo struct {
	ID           string    `json:"id"`
	URI          string    `json:"uri"`
	CaptureTime  time.Time `json:"capture_time"`
	Latitude     *float64  `json:"latitude,omitempty"`
	Longitude    *float64  `json:"longitude,omitempty"`
	VisitID      string    `json:"visit_id,omitempty"`
	MediaType    string    `json:"media_type"`
	FoodDetected FoodState `json:"food_detected"`
	FoodLabels   []Label   `json:"food_labels,omitempty"`
	AllLabels    []Label   `json:"all_labels,omitempty"`
}

// Point returns the photo location, if it has one.
func (p *Photo) Point() (spatial.Point, bool) {
	if p.Latitude == nil || p.Longitude == nil {
		return spatial.Point{}, false
	}

	return spatial.Point{Lat: *p.Latitude, Lng: *p.Longitude}, true
}

// Visit is a time and space bounded group of photos representing one dining
// occasion. Empty string fields are stored as NULL.
type Visit struct {
	ID                    string    `json:"id"`
	Status                Status    `json:"status"`
	StartTime             time.Time `json:"start_time"`
	EndTime               time.Time `json:"end_time"`
	CenterLat             float64   `json:"center_lat"`
	CenterLon             float64   `json:"center_lon"`
	PhotoCount            int       `json:"photo_count"`
	FoodProbable          bool      `json:"food_probable"`
	RestaurantID          string    `json:"restaurant_id,omitempty"`
	SuggestedRestaurantID *int64    `json:"suggested_restaurant_id,omitempty"`
	AwardAtVisit          string    `json:"award_at_visit,omitempty"`
	CalendarEventID       string    `json:"calendar_event_id,omitempty"`
	CalendarEventTitle    string    `json:"calendar_event_title,omitempty"`
	Notes                 string    `json:"notes,omitempty"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// Center returns the visit centroid.
func (v *Visit) Center() spatial.Point {
	return spatial.Point{Lat: v.CenterLat, Lng: v.CenterLon}
}

// ReferenceRestaurant is an entry of the curated award restaurant dataset.
type ReferenceRestaurant struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address"`
	Location  string  `json:"location"`
	Cuisine   string  `json:"cuisine"`
	Award     string  `json:"award"`
}

// VisitSuggestion links a visit to a nearby reference restaurant.
type VisitSuggestion struct {
	VisitID        string  `json:"visit_id"`
	RestaurantID   int64   `json:"restaurant_id"`
	DistanceMeters float64 `json:"distance_meters"`
}

// ConfirmedRestaurant is a restaurant the user confirmed at least one visit
// against. ReferenceID is set when it came from the reference dataset.
type ConfirmedRestaurant struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	Address     string    `json:"address,omitempty"`
	Cuisine     string    `json:"cuisine,omitempty"`
	ReferenceID *int64    `json:"reference_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// MergeGroup is a detected run of confirmed visits to the same restaurant that
// are close enough in time to be duplicates. It is never persisted.
type MergeGroup struct {
	RestaurantID   string   `json:"restaurant_id"`
	RestaurantName string   `json:"restaurant_name"`
	Visits         []*Visit `json:"visits"`
	TotalPhotos    int      `json:"total_photos"`
}

// CalendarEvent is an event supplied by the calendar collaborator.
type CalendarEvent struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Location  string    `json:"location,omitempty"`
}

func confirmedIDForReference(refID int64) string {
	return fmt.Sprintf("ref-%d", refID)
}
