// Copyright 2025 The Palate Authors
// SPDX-License-Identifier: Apache-2.0

package visits

import (
	"cmp"
	"context"
	"fmt"
	"log"
	"slices"
	"sync"
	"time"

	"github.com/jonluca/palate-sub000/spatial"
	"golang.org/x/sync/errgroup"
)

// MergeVisits absorbs source into target: photos move to target, the time
// range becomes the union, the centroid is recomputed over every photo of
// the merged visit, suggestions are unioned and source is deleted. Nothing
// changes when either visit doesn't exist.
func MergeVisits(ctx context.Context, repo Repository, targetID, sourceID string) (*Visit, error) {
	if targetID == sourceID {
		return nil, invalid("merge visits", "can't merge visit %q into itself", targetID)
	}

	var merged *Visit

	err := repo.WithTx(ctx, func(tx Repository) error {
		target, err := tx.GetVisit(ctx, targetID)
		if err != nil {
			return err
		}

		source, err := tx.GetVisit(ctx, sourceID)
		if err != nil {
			return err
		}

		moved, err := tx.ListPhotosByVisit(ctx, []string{sourceID})
		if err != nil {
			return err
		}

		if _, err := tx.ReassignPhotos(ctx, sourceID, targetID); err != nil {
			return fmt.Errorf("reassigning photos: %w", err)
		}

		photos, err := tx.ListPhotosByVisit(ctx, []string{targetID})
		if err != nil {
			return err
		}

		if err := unionSuggestions(ctx, tx, targetID, sourceID); err != nil {
			return err
		}

		m := combineVisits(target, source, moved[sourceID], photos[targetID], time.Now())

		if err := tx.UpdateVisit(ctx, m); err != nil {
			return err
		}

		if err := tx.DeleteVisit(ctx, sourceID); err != nil {
			return err
		}

		merged = m

		return nil
	})
	if err != nil {
		return nil, err
	}

	return merged, nil
}

// combineVisits computes the merged state of target. photos are all photos
// of target after the reassignment, moved the ones that came from source.
func combineVisits(target, source *Visit, moved, photos []*Photo, now time.Time) *Visit {
	m := *target

	if source.StartTime.Before(m.StartTime) {
		m.StartTime = source.StartTime
	}

	if source.EndTime.After(m.EndTime) {
		m.EndTime = source.EndTime
	}

	points := make([]spatial.Point, 0, len(photos))
	for _, p := range photos {
		if pt, ok := p.Point(); ok {
			points = append(points, pt)
		}
	}

	// calendar-only visits have no photos and keep their own center
	if c, ok := spatial.Centroid(points); ok {
		m.CenterLat, m.CenterLon = c.Lat, c.Lng
	}

	m.PhotoCount = len(photos)
	m.FoodProbable = target.FoodProbable || source.FoodProbable || slices.ContainsFunc(moved, func(p *Photo) bool {
		return p.FoodDetected == FoodPositive
	})

	if m.SuggestedRestaurantID == nil {
		m.SuggestedRestaurantID = source.SuggestedRestaurantID
	}

	if m.RestaurantID == "" {
		m.RestaurantID = source.RestaurantID
		m.AwardAtVisit = source.AwardAtVisit
	}

	if m.CalendarEventID == "" {
		m.CalendarEventID = source.CalendarEventID
		m.CalendarEventTitle = source.CalendarEventTitle
	}

	if m.Notes == "" {
		m.Notes = source.Notes
	}

	m.UpdatedAt = now

	return &m
}

// unionSuggestions moves the suggestions of source to target, keeping the
// target row when both have the same restaurant.
func unionSuggestions(ctx context.Context, tx Repository, targetID, sourceID string) error {
	existing, err := tx.ListSuggestions(ctx, []string{targetID, sourceID})
	if err != nil {
		return err
	}

	have := make(map[int64]bool, len(existing[targetID]))
	for _, s := range existing[targetID] {
		have[s.RestaurantID] = true
	}

	var added []*VisitSuggestion

	for _, s := range existing[sourceID] {
		if have[s.RestaurantID] {
			continue
		}

		have[s.RestaurantID] = true
		added = append(added, &VisitSuggestion{VisitID: targetID, RestaurantID: s.RestaurantID, DistanceMeters: s.DistanceMeters})
	}

	if err := tx.DeleteSuggestions(ctx, []string{sourceID}); err != nil {
		return err
	}

	return tx.InsertSuggestions(ctx, added)
}

// MergeOptions controls bulk auto-merge.
type MergeOptions struct {
	// MaxGap between the end of a visit and the start of the next one for
	// both to be considered the same occasion. Inclusive.
	MaxGap time.Duration

	// Concurrency is the number of groups merged at once.
	Concurrency int

	// Progress, when set, is called after every group.
	Progress ProgressFunc
}

// DefaultMergeOptions returns a 12 hour gap and 4 concurrent groups.
func DefaultMergeOptions() MergeOptions {
	return MergeOptions{
		MaxGap:      12 * time.Hour,
		Concurrency: 4,
	}
}

// DetectMergeGroups finds runs of confirmed visits to the same restaurant
// where each visit starts at most maxGap after the previous one ended. Only
// runs of two or more visits are returned, ordered by restaurant id. names
// maps restaurant ids to display names.
func DetectMergeGroups(confirmed []*Visit, names map[string]string, maxGap time.Duration) []*MergeGroup {
	byRestaurant := make(map[string][]*Visit)

	for _, v := range confirmed {
		if v.Status != StatusConfirmed || v.RestaurantID == "" {
			continue
		}

		byRestaurant[v.RestaurantID] = append(byRestaurant[v.RestaurantID], v)
	}

	restaurantIDs := make([]string, 0, len(byRestaurant))
	for id := range byRestaurant {
		restaurantIDs = append(restaurantIDs, id)
	}

	slices.Sort(restaurantIDs)

	var groups []*MergeGroup

	for _, rid := range restaurantIDs {
		list := byRestaurant[rid]
		slices.SortFunc(list, func(a, b *Visit) int {
			if c := a.StartTime.Compare(b.StartTime); c != 0 {
				return c
			}

			return cmp.Compare(a.ID, b.ID)
		})

		emit := func(run []*Visit) {
			if len(run) < 2 {
				return
			}

			g := &MergeGroup{RestaurantID: rid, RestaurantName: names[rid], Visits: run}
			for _, v := range run {
				g.TotalPhotos += v.PhotoCount
			}

			groups = append(groups, g)
		}

		run := []*Visit{list[0]}
		runEnd := list[0].EndTime

		for _, v := range list[1:] {
			if v.StartTime.Sub(runEnd) <= maxGap {
				run = append(run, v)
				runEnd = v.EndTime

				continue
			}

			emit(run)

			run = []*Visit{v}
			runEnd = v.EndTime
		}

		emit(run)
	}

	return groups
}

// FindMergeGroups loads the confirmed visits and detects merge groups.
func FindMergeGroups(ctx context.Context, repo Repository, opts MergeOptions) ([]*MergeGroup, error) {
	confirmed, err := repo.ListVisits(ctx, VisitFilter{Statuses: []Status{StatusConfirmed}, HasRestaurant: true})
	if err != nil {
		return nil, fmt.Errorf("listing confirmed visits: %w", err)
	}

	restaurants, err := repo.ListConfirmedRestaurants(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing restaurants: %w", err)
	}

	names := make(map[string]string, len(restaurants))
	for _, r := range restaurants {
		names[r.ID] = r.Name
	}

	maxGap := opts.MaxGap
	if maxGap <= 0 {
		maxGap = DefaultMergeOptions().MaxGap
	}

	return DetectMergeGroups(confirmed, names, maxGap), nil
}

// MergeResult is the outcome of AutoMerge.
type MergeResult struct {
	// Groups is the number of groups detected.
	Groups int `json:"groups"`

	// Merged is the number of visits absorbed into a group target.
	Merged int `json:"merged"`

	// FailedGroups is the number of groups with at least one failed merge.
	FailedGroups int `json:"failed_groups"`

	Errors []error `json:"-"`
}

// AutoMerge detects merge groups and collapses each one into its earliest
// visit. Groups are merged concurrently, the members of a group one after
// the other. A failing group doesn't stop the others.
func AutoMerge(ctx context.Context, repo Repository, opts MergeOptions) (*MergeResult, error) {
	groups, err := FindMergeGroups(ctx, repo, opts)
	if err != nil {
		return nil, err
	}

	result := &MergeResult{Groups: len(groups)}
	if len(groups) == 0 {
		return result, nil
	}

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultMergeOptions().Concurrency
	}

	var (
		mu   sync.Mutex
		done int
		g    errgroup.Group
	)

	g.SetLimit(concurrency)

	for _, group := range groups {
		g.Go(func() error {
			merged, errs := mergeGroup(ctx, repo, group)

			mu.Lock()
			defer mu.Unlock()

			result.Merged += merged
			if len(errs) > 0 {
				result.FailedGroups++
				result.Errors = append(result.Errors, errs...)
			}

			done++
			if opts.Progress != nil {
				opts.Progress(done, len(groups))
			}

			// never fail the group, siblings keep going
			return nil
		})
	}

	_ = g.Wait()

	log.Printf("✅ Auto-merge: %d groups, %d visits merged, %d groups failed", result.Groups, result.Merged, result.FailedGroups)

	return result, ctx.Err()
}

func mergeGroup(ctx context.Context, repo Repository, group *MergeGroup) (int, []error) {
	target := group.Visits[0]
	merged := 0

	var errs []error

	for _, source := range group.Visits[1:] {
		if err := ctx.Err(); err != nil {
			return merged, append(errs, err)
		}

		if _, err := MergeVisits(ctx, repo, target.ID, source.ID); err != nil {
			log.Printf("⚠️  merging %s into %s (%s): %v", source.ID, target.ID, group.RestaurantName, err)

			errs = append(errs, fmt.Errorf("merging %s into %s: %w", source.ID, target.ID, err))

			continue
		}

		merged++
	}

	return merged, errs
}
