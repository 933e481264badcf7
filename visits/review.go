// Copyright 2025 The Palate Authors
// SPDX-License-Identifier: Apache-2.0

package visits

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
)

// Tier is the coarse review priority of a visit. Lower is reviewed first.
type Tier int

const (
	// TierFoodWithSuggestion food was detected and a restaurant is nearby.
	TierFoodWithSuggestion Tier = iota + 1
	// TierSuggestion a restaurant is nearby.
	TierSuggestion
	// TierFood food was detected but nothing is nearby.
	TierFood
	// TierOther everything else.
	TierOther
)

// TierFor computes the tier of a visit.
func TierFor(foodProbable, hasSuggestion bool) Tier {
	switch {
	case foodProbable && hasSuggestion:
		return TierFoodWithSuggestion
	case hasSuggestion:
		return TierSuggestion
	case foodProbable:
		return TierFood
	default:
		return TierOther
	}
}

// DefaultFoodLabelLimit is how many labels are kept per review item.
const DefaultFoodLabelLimit = 5

// ReviewSuggestion is a suggestion resolved to its reference restaurant.
type ReviewSuggestion struct {
	Restaurant     *ReferenceRestaurant `json:"restaurant"`
	DistanceMeters float64              `json:"distance_meters"`
	Primary        bool                 `json:"primary"`
}

// AggregatedLabel is a food label across the photos of a visit.
type AggregatedLabel struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	PhotoCount int     `json:"photo_count"`
}

// ReviewItem is an entry of the review queue.
type ReviewItem struct {
	Visit           *Visit             `json:"visit"`
	Suggestions     []ReviewSuggestion `json:"suggestions"`
	Tier            Tier               `json:"tier"`
	CalendarMatched bool               `json:"calendar_matched"`
	FoodLabels      []AggregatedLabel  `json:"food_labels"`
}

// NewReviewItem builds the review entry of v. Suggestions are expected in
// ascending distance order.
func NewReviewItem(v *Visit, suggestions []ReviewSuggestion, photos []*Photo) *ReviewItem {
	item := &ReviewItem{
		Visit:       v,
		Suggestions: suggestions,
		Tier:        TierFor(v.FoodProbable, len(suggestions) > 0),
		FoodLabels:  AggregateFoodLabels(photos, DefaultFoodLabelLimit),
	}

	if v.CalendarEventTitle != "" {
		for _, s := range suggestions {
			if CalendarTitleMatches(v.CalendarEventTitle, s.Restaurant.Name) {
				item.CalendarMatched = true

				break
			}
		}
	}

	return item
}

// PrioritizeReview orders items in place: by tier, most recent first within
// a tier, then calendar matched items ahead of the rest. Both passes are
// stable so equal items keep their relative order.
func PrioritizeReview(items []*ReviewItem) {
	slices.SortStableFunc(items, func(a, b *ReviewItem) int {
		if c := cmp.Compare(a.Tier, b.Tier); c != 0 {
			return c
		}

		return b.Visit.StartTime.Compare(a.Visit.StartTime)
	})

	slices.SortStableFunc(items, func(a, b *ReviewItem) int {
		switch {
		case a.CalendarMatched == b.CalendarMatched:
			return 0
		case a.CalendarMatched:
			return -1
		default:
			return 1
		}
	})
}

// AggregateFoodLabels merges the food labels of photos. Each label keeps its
// best confidence and the number of photos carrying it. The result is
// ordered by confidence, highest first, and capped at limit.
func AggregateFoodLabels(photos []*Photo, limit int) []AggregatedLabel {
	byKey := make(map[string]*AggregatedLabel)

	for _, p := range photos {
		seen := make(map[string]bool, len(p.FoodLabels))

		for _, l := range p.FoodLabels {
			key := strings.ToLower(strings.TrimSpace(l.Label))
			if key == "" {
				continue
			}

			agg, ok := byKey[key]
			if !ok {
				agg = &AggregatedLabel{Label: key}
				byKey[key] = agg
			}

			agg.Confidence = max(agg.Confidence, l.Confidence)

			if !seen[key] {
				seen[key] = true
				agg.PhotoCount++
			}
		}
	}

	out := make([]AggregatedLabel, 0, len(byKey))
	for _, agg := range byKey {
		out = append(out, *agg)
	}

	slices.SortFunc(out, func(a, b AggregatedLabel) int {
		if c := cmp.Compare(b.Confidence, a.Confidence); c != 0 {
			return c
		}

		return cmp.Compare(a.Label, b.Label)
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}

	return out
}

// reviewLoadChunk bounds the IN lists used while loading the queue.
const reviewLoadChunk = 500

// BuildReviewQueue loads every pending visit with its suggestions and photos
// and returns them in review order.
func BuildReviewQueue(ctx context.Context, repo Repository) ([]*ReviewItem, error) {
	pending, err := repo.ListVisits(ctx, VisitFilter{Statuses: []Status{StatusPending}})
	if err != nil {
		return nil, fmt.Errorf("listing pending visits: %w", err)
	}

	items := make([]*ReviewItem, 0, len(pending))

	for chunk := range slices.Chunk(pending, reviewLoadChunk) {
		chunkItems, err := loadReviewItems(ctx, repo, chunk)
		if err != nil {
			return nil, err
		}

		items = append(items, chunkItems...)
	}

	PrioritizeReview(items)

	return items, nil
}

// GetReviewItem returns the review entry of a single visit, whatever its
// status.
func GetReviewItem(ctx context.Context, repo Repository, visitID string) (*ReviewItem, error) {
	v, err := repo.GetVisit(ctx, visitID)
	if err != nil {
		return nil, err
	}

	items, err := loadReviewItems(ctx, repo, []*Visit{v})
	if err != nil {
		return nil, err
	}

	return items[0], nil
}

func loadReviewItems(ctx context.Context, repo Repository, visits []*Visit) ([]*ReviewItem, error) {
	ids := make([]string, len(visits))
	for i, v := range visits {
		ids[i] = v.ID
	}

	suggestions, err := repo.ListSuggestions(ctx, ids)
	if err != nil {
		return nil, err
	}

	photos, err := repo.ListPhotosByVisit(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("listing photos: %w", err)
	}

	var refIDs []int64

	for _, list := range suggestions {
		for _, s := range list {
			refIDs = append(refIDs, s.RestaurantID)
		}
	}

	slices.Sort(refIDs)

	refs, err := repo.GetReferenceRestaurants(ctx, slices.Compact(refIDs))
	if err != nil {
		return nil, fmt.Errorf("loading suggested restaurants: %w", err)
	}

	items := make([]*ReviewItem, 0, len(visits))

	for _, v := range visits {
		var resolved []ReviewSuggestion

		for _, s := range suggestions[v.ID] {
			ref, ok := refs[s.RestaurantID]
			if !ok {
				// stale row for a restaurant that left the reference set
				continue
			}

			resolved = append(resolved, ReviewSuggestion{
				Restaurant:     ref,
				DistanceMeters: s.DistanceMeters,
				Primary:        v.SuggestedRestaurantID != nil && *v.SuggestedRestaurantID == s.RestaurantID,
			})
		}

		items = append(items, NewReviewItem(v, resolved, photos[v.ID]))
	}

	return items, nil
}
