// Copyright 2025 The Palate Authors
// SPDX-License-Identifier: Apache-2.0

package visits

import (
	"context"
	"database/sql"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const metersPerDegree = 6371e3 * math.Pi / 180

// t0 is the reference instant of the fixtures.
var t0 = time.Date(2025, 3, 14, 19, 30, 0, 0, time.UTC)

// origin is the reference location of the fixtures (midtown Manhattan).
var origin = [2]float64{40.7614, -73.9776}

// offset returns the point north/east meters away from lat/lng.
func offset(lat, lng, northMeters, eastMeters float64) (float64, float64) {
	return lat + northMeters/metersPerDegree,
		lng + eastMeters/(metersPerDegree*math.Cos(lat*math.Pi/180))
}

func f64(v float64) *float64 {
	return &v
}

func i64(v int64) *int64 {
	return &v
}

func photoAt(id string, at time.Time, lat, lng float64, food FoodState) *Photo {
	return &Photo{
		ID:           id,
		URI:          "ph://" + id,
		CaptureTime:  at,
		Latitude:     f64(lat),
		Longitude:    f64(lng),
		MediaType:    "photo",
		FoodDetected: food,
	}
}

func setupTestDB(t *testing.T) (*sql.DB, Repository) {
	t.Helper()

	db, err := OpenDatabase(context.Background(), DriverDuckDB, "")
	require.NoError(t, err)

	t.Cleanup(func() { db.Close() })

	return db, NewSQLRepositoryWithRetry(db, RetryPolicy{BaseDelay: time.Millisecond, MaxRetries: 5})
}

func setupSQLiteDB(t *testing.T) (*sql.DB, Repository) {
	t.Helper()

	db, err := OpenDatabase(context.Background(), DriverSQLite, filepath.Join(t.TempDir(), "palate.db"))
	require.NoError(t, err)

	t.Cleanup(func() { db.Close() })

	return db, NewSQLRepositoryWithRetry(db, RetryPolicy{BaseDelay: time.Millisecond, MaxRetries: 5})
}

// drivers runs fn against every supported store.
func drivers(t *testing.T, fn func(t *testing.T, repo Repository)) {
	t.Helper()

	for name, setup := range map[string]func(*testing.T) (*sql.DB, Repository){
		DriverDuckDB: setupTestDB,
		DriverSQLite: setupSQLiteDB,
	} {
		t.Run(name, func(t *testing.T) {
			_, repo := setup(t)
			fn(t, repo)
		})
	}
}

// staticLoader serves a fixed reference set and counts loads.
type staticLoader struct {
	restaurants []*ReferenceRestaurant
	loads       int
}

func (l *staticLoader) ListReferenceRestaurants(_ context.Context) ([]*ReferenceRestaurant, error) {
	l.loads++

	return l.restaurants, nil
}

// restaurantAt returns a reference restaurant north/east meters away from origin.
func restaurantAt(id int64, name string, northMeters, eastMeters float64) *ReferenceRestaurant {
	lat, lng := offset(origin[0], origin[1], northMeters, eastMeters)

	return &ReferenceRestaurant{
		ID:        id,
		Name:      name,
		Latitude:  lat,
		Longitude: lng,
		Address:   "somewhere",
		Location:  "New York, USA",
		Cuisine:   "Contemporary",
		Award:     "1 Star",
	}
}

// seedReferences stores restaurants and returns a suggester over them.
func seedReferences(t *testing.T, repo Repository, restaurants ...*ReferenceRestaurant) *Suggester {
	t.Helper()

	index := NewReferenceIndex(repo)
	if len(restaurants) > 0 {
		_, err := LoadReferenceRestaurants(context.Background(), repo, index, restaurants, BatchOptions{})
		require.NoError(t, err)
	}

	return NewSuggester(index, DefaultSuggestOptions())
}
