// Copyright 2025 The Palate Authors
// SPDX-License-Identifier: Apache-2.0

package visits

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"

	"github.com/jonluca/palate-sub000/spatial"
)

// ReferenceLoader supplies the full reference restaurant set.
type ReferenceLoader interface {
	ListReferenceRestaurants(ctx context.Context) ([]*ReferenceRestaurant, error)
}

// ReferenceSnapshot is an immutable view of the reference set and the spatial
// index built over it. Index is nil when the set is empty.
type ReferenceSnapshot struct {
	Restaurants []*ReferenceRestaurant
	Index       *spatial.Index
}

// NearbyRestaurant is a reference restaurant returned by a proximity query.
type NearbyRestaurant struct {
	Restaurant     *ReferenceRestaurant `json:"restaurant"`
	DistanceMeters float64              `json:"distance_meters"`
}

// Nearby returns up to k restaurants within radius meters, nearest first.
func (s *ReferenceSnapshot) Nearby(lat, lon float64, k int, radius float64) []NearbyRestaurant {
	if s == nil || s.Index == nil {
		return nil
	}

	hits := s.Index.Nearest(lat, lon, k, radius)
	out := make([]NearbyRestaurant, 0, len(hits))

	for _, h := range hits {
		out = append(out, NearbyRestaurant{Restaurant: s.Restaurants[h.Pos], DistanceMeters: h.Distance})
	}

	return out
}

// ReferenceIndex owns the spatial index over the reference restaurants. It is
// built lazily on first use and rebuilt after Invalidate. Readers always get
// a complete snapshot; a rebuild swaps the pointer, it never mutates one.
type ReferenceIndex struct {
	loader ReferenceLoader

	current atomic.Pointer[ReferenceSnapshot]
	// serializes builds so concurrent first users load once
	buildMu sync.Mutex
	// bumped by Invalidate; a build started before the bump is not published
	generation atomic.Uint64
}

// NewReferenceIndex creates an index service that loads from loader.
func NewReferenceIndex(loader ReferenceLoader) *ReferenceIndex {
	return &ReferenceIndex{loader: loader}
}

// Snapshot returns the current snapshot, building it if needed.
func (ri *ReferenceIndex) Snapshot(ctx context.Context) (*ReferenceSnapshot, error) {
	if s := ri.current.Load(); s != nil {
		return s, nil
	}

	ri.buildMu.Lock()
	defer ri.buildMu.Unlock()

	if s := ri.current.Load(); s != nil {
		return s, nil
	}

	gen := ri.generation.Load()

	restaurants, err := ri.loader.ListReferenceRestaurants(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading reference restaurants: %w", err)
	}

	entries := make([]spatial.Entry, len(restaurants))
	for i, r := range restaurants {
		entries[i] = spatial.Entry{ID: r.ID, Point: spatial.Point{Lat: r.Latitude, Lng: r.Longitude}}
	}

	s := &ReferenceSnapshot{Restaurants: restaurants, Index: spatial.Build(entries)}

	// an Invalidate during the load means the data may already be stale;
	// hand it out to this caller but let the next one reload
	if ri.generation.Load() == gen {
		ri.current.Store(s)
	}

	return s, nil
}

// Invalidate drops the cached snapshot. Must be called after any change of
// the reference set.
func (ri *ReferenceIndex) Invalidate() {
	ri.generation.Add(1)
	ri.current.Store(nil)
}

// Nearby queries the current snapshot.
func (ri *ReferenceIndex) Nearby(ctx context.Context, lat, lon float64, k int, radius float64) ([]NearbyRestaurant, error) {
	s, err := ri.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	return s.Nearby(lat, lon, k, radius), nil
}

// ReadReferenceFile reads a JSON array of reference restaurants.
func ReadReferenceFile(path string) ([]*ReferenceRestaurant, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path is provided by the operator
	if err != nil {
		return nil, fmt.Errorf("reading reference file: %w", err)
	}

	var restaurants []*ReferenceRestaurant
	if err := json.Unmarshal(data, &restaurants); err != nil {
		return nil, fmt.Errorf("parsing reference JSON: %w", err)
	}

	return restaurants, nil
}

// LoadReferenceRestaurants validates and stores restaurants, then
// invalidates index. Invalid rows are skipped and logged.
func LoadReferenceRestaurants(ctx context.Context, repo Repository, index *ReferenceIndex, restaurants []*ReferenceRestaurant, opts BatchOptions) (*BatchResult, error) {
	valid := make([]*ReferenceRestaurant, 0, len(restaurants))
	skipped := 0

	for _, r := range restaurants {
		if err := validateReference(r); err != nil {
			log.Printf("⚠️  skipping reference restaurant: %v", err)

			skipped++

			continue
		}

		valid = append(valid, r)
	}

	// invalidate even on a partial load since some chunks may have landed
	defer index.Invalidate()

	result, err := RunBatches(ctx, valid, opts, func(ctx context.Context, chunk []*ReferenceRestaurant) error {
		return repo.UpsertReferenceRestaurants(ctx, chunk)
	})

	result.Total += skipped
	result.Failed += skipped

	return result, err
}
