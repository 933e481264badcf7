// Copyright 2025 The Palate Authors
// SPDX-License-Identifier: Apache-2.0

package visits

import (
	"cmp"
	"context"
	"fmt"
	"log"
	"slices"
	"time"

	"github.com/jonluca/palate-sub000/spatial"
)

// SuggestOptions are the suggestion thresholds.
type SuggestOptions struct {
	// MaxSuggestions caps the candidates per visit.
	MaxSuggestions int

	// SearchRadius in meters, inclusive.
	SearchRadius float64

	// PrimaryRadius in meters, inclusive. The closest candidate within it
	// becomes the primary suggestion.
	PrimaryRadius float64
}

// DefaultSuggestOptions returns 5 candidates within 200m, primary within 100m.
func DefaultSuggestOptions() SuggestOptions {
	return SuggestOptions{
		MaxSuggestions: 5,
		SearchRadius:   200,
		PrimaryRadius:  100,
	}
}

// Suggestion is a candidate restaurant for a location.
type Suggestion struct {
	RestaurantID   int64   `json:"restaurant_id"`
	DistanceMeters float64 `json:"distance_meters"`
}

// SuggestionSet is the complete replacement set of suggestions for a visit.
type SuggestionSet struct {
	Suggestions []Suggestion `json:"suggestions"`
	Primary     *int64       `json:"primary,omitempty"`
}

// rows converts the set to storage rows for visitID.
func (s SuggestionSet) rows(visitID string) []*VisitSuggestion {
	out := make([]*VisitSuggestion, len(s.Suggestions))
	for i, sg := range s.Suggestions {
		out[i] = &VisitSuggestion{VisitID: visitID, RestaurantID: sg.RestaurantID, DistanceMeters: sg.DistanceMeters}
	}

	return out
}

// Suggester matches locations against the reference index.
type Suggester struct {
	index *ReferenceIndex
	opts  SuggestOptions
}

// NewSuggester creates a suggester. Zero fields of opts take the defaults.
func NewSuggester(index *ReferenceIndex, opts SuggestOptions) *Suggester {
	def := DefaultSuggestOptions()

	if opts.MaxSuggestions <= 0 {
		opts.MaxSuggestions = def.MaxSuggestions
	}

	if opts.SearchRadius <= 0 {
		opts.SearchRadius = def.SearchRadius
	}

	if opts.PrimaryRadius <= 0 {
		opts.PrimaryRadius = def.PrimaryRadius
	}

	return &Suggester{index: index, opts: opts}
}

// Index returns the reference index the suggester queries.
func (s *Suggester) Index() *ReferenceIndex {
	return s.index
}

// Options returns the effective thresholds.
func (s *Suggester) Options() SuggestOptions {
	return s.opts
}

// Compute returns the suggestions for a location. An empty reference set
// yields an empty set, not an error.
func (s *Suggester) Compute(ctx context.Context, lat, lon float64) (SuggestionSet, error) {
	snap, err := s.index.Snapshot(ctx)
	if err != nil {
		return SuggestionSet{}, err
	}

	return s.computeWith(snap, lat, lon), nil
}

func (s *Suggester) computeWith(snap *ReferenceSnapshot, lat, lon float64) SuggestionSet {
	var set SuggestionSet

	for _, n := range snap.Nearby(lat, lon, s.opts.MaxSuggestions, s.opts.SearchRadius) {
		r := n.Restaurant

		d := spatial.Distance(lat, lon, r.Latitude, r.Longitude)
		if d > s.opts.SearchRadius {
			continue
		}

		set.Suggestions = append(set.Suggestions, Suggestion{RestaurantID: r.ID, DistanceMeters: d})
	}

	slices.SortStableFunc(set.Suggestions, func(a, b Suggestion) int {
		if c := cmp.Compare(a.DistanceMeters, b.DistanceMeters); c != 0 {
			return c
		}

		return cmp.Compare(a.RestaurantID, b.RestaurantID)
	})

	if len(set.Suggestions) > 0 && set.Suggestions[0].DistanceMeters <= s.opts.PrimaryRadius {
		id := set.Suggestions[0].RestaurantID
		set.Primary = &id
	}

	return set
}

// replaceSuggestions swaps the stored suggestions and the primary of each
// visit in ids for sets[id]. The visits are read again inside tx and only
// those still pending are touched, so a visit confirmed or rejected since
// the chunk was listed keeps its suggestions. Old rows are cleared before
// the new ones are written. Returns the ids that were replaced.
func replaceSuggestions(ctx context.Context, tx Repository, ids []string, sets map[string]SuggestionSet, now time.Time) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	current, err := tx.ListVisits(ctx, VisitFilter{IDs: ids, Statuses: []Status{StatusPending}})
	if err != nil {
		return nil, err
	}

	if len(current) == 0 {
		return nil, nil
	}

	replaced := make([]string, len(current))
	for i, v := range current {
		replaced[i] = v.ID
	}

	if err := tx.DeleteSuggestions(ctx, replaced); err != nil {
		return nil, err
	}

	var rows []*VisitSuggestion

	for _, v := range current {
		set := sets[v.ID]
		rows = append(rows, set.rows(v.ID)...)

		if !equalPrimary(v.SuggestedRestaurantID, set.Primary) {
			if err := tx.SetSuggestedRestaurant(ctx, v.ID, set.Primary, now); err != nil {
				return nil, err
			}
		}
	}

	if err := tx.InsertSuggestions(ctx, rows); err != nil {
		return nil, err
	}

	return replaced, nil
}

func equalPrimary(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}

	return *a == *b
}

// RecomputePending rebuilds the suggestions of every pending visit. Each
// chunk is replaced in its own transaction so a failure never leaves a visit
// with a mix of old and new suggestions.
func (s *Suggester) RecomputePending(ctx context.Context, repo Repository, opts BatchOptions) (*BatchResult, error) {
	pending, err := repo.ListVisits(ctx, VisitFilter{Statuses: []Status{StatusPending}})
	if err != nil {
		return nil, fmt.Errorf("listing pending visits: %w", err)
	}

	snap, err := s.index.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	result, err := RunBatches(ctx, pending, opts, func(ctx context.Context, chunk []*Visit) error {
		sets := make(map[string]SuggestionSet, len(chunk))
		ids := make([]string, len(chunk))

		for i, v := range chunk {
			ids[i] = v.ID
			sets[v.ID] = s.computeWith(snap, v.CenterLat, v.CenterLon)
		}

		now := time.Now()

		var replaced []string

		err := repo.WithTx(ctx, func(tx Repository) error {
			var err error
			replaced, err = replaceSuggestions(ctx, tx, ids, sets, now)

			return err
		})
		if err != nil {
			return err
		}

		if n := len(ids) - len(replaced); n > 0 {
			log.Printf("⚠️  %d visits left pending state during recompute, kept as they are", n)
		}

		return nil
	})
	if result != nil {
		log.Printf("✅ Recomputed suggestions for %d/%d pending visits (%d failed)", result.Processed, result.Total, result.Failed)
	}

	return result, err
}
