// Copyright 2025 The Palate Authors
// SPDX-License-Identifier: Apache-2.0

package visits

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"slices"
	"time"

	"github.com/google/uuid"
)

// CalendarOptions controls how calendar events are linked to visits.
type CalendarOptions struct {
	// Slack widens the event window on both sides when looking for
	// overlapping visits.
	Slack time.Duration

	Batch BatchOptions
}

// DefaultCalendarOptions returns a one hour slack.
func DefaultCalendarOptions() CalendarOptions {
	return CalendarOptions{Slack: time.Hour}
}

// CalendarImportResult summarizes ImportCalendarEvents.
type CalendarImportResult struct {
	// Linked events attached to an existing pending visit.
	Linked int `json:"linked"`

	// Created calendar-only visits.
	Created int `json:"created"`

	// Skipped events: invalid, already imported, matching nothing or whose
	// visit was reviewed before the link was written.
	Skipped int `json:"skipped"`

	Batch *BatchResult `json:"batch"`
}

// calendarAction is a single write produced by the import plan.
type calendarAction struct {
	link   *Visit
	create *Visit
	set    SuggestionSet
}

// ReadCalendarFile reads a JSON array of calendar events.
func ReadCalendarFile(path string) ([]CalendarEvent, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path is provided by the operator
	if err != nil {
		return nil, fmt.Errorf("reading calendar file: %w", err)
	}

	var events []CalendarEvent
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("parsing calendar JSON: %w", err)
	}

	return events, nil
}

// ImportCalendarEvents attaches events to the pending visit they overlap
// the most. Events overlapping no visit whose cleaned title is exactly the
// name of a reference restaurant become calendar-only visits at that
// restaurant. Events already imported are skipped.
func ImportCalendarEvents(ctx context.Context, repo Repository, index *ReferenceIndex, events []CalendarEvent, opts CalendarOptions) (*CalendarImportResult, error) {
	eventIDs := make([]string, 0, len(events))
	for _, e := range events {
		eventIDs = append(eventIDs, e.ID)
	}

	imported := make(map[string]bool)

	if len(eventIDs) > 0 {
		linked, err := repo.ListVisits(ctx, VisitFilter{CalendarEventIDs: eventIDs})
		if err != nil {
			return nil, fmt.Errorf("listing linked visits: %w", err)
		}

		for _, v := range linked {
			imported[v.CalendarEventID] = true
		}
	}

	pending, err := repo.ListVisits(ctx, VisitFilter{Statuses: []Status{StatusPending}})
	if err != nil {
		return nil, fmt.Errorf("listing pending visits: %w", err)
	}

	snap, err := index.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	actions, skipped := planCalendarImport(events, pending, byExactName(snap.Restaurants), imported, opts.Slack, time.Now())

	result := &CalendarImportResult{Skipped: skipped}

	batch, err := RunBatches(ctx, actions, opts.Batch, func(ctx context.Context, chunk []calendarAction) error {
		var linked, created, stale int

		err := repo.WithTx(ctx, func(tx Repository) error {
			linked, created, stale = 0, 0, 0

			for _, a := range chunk {
				applied, err := applyCalendarAction(ctx, tx, a)
				if err != nil {
					return err
				}

				switch {
				case !applied:
					stale++
				case a.link != nil:
					linked++
				default:
					created++
				}
			}

			return nil
		})
		if err != nil {
			return err
		}

		result.Linked += linked
		result.Created += created
		result.Skipped += stale

		return nil
	})

	result.Batch = batch

	log.Printf("✅ Calendar import: %d linked, %d created, %d skipped, %d failed", result.Linked, result.Created, result.Skipped, batch.Failed)

	return result, err
}

// applyCalendarAction writes a. A link is only applied while its visit is
// still pending and unlinked; otherwise it reports false and writes nothing.
func applyCalendarAction(ctx context.Context, tx Repository, a calendarAction) (bool, error) {
	if a.link != nil {
		v, err := tx.GetVisit(ctx, a.link.ID)
		if IsNotFound(err) {
			return false, nil
		}

		if err != nil {
			return false, err
		}

		if v.Status != StatusPending || v.CalendarEventID != "" {
			return false, nil
		}

		l := a.link

		return true, tx.SetCalendarEvent(ctx, l.ID, l.CalendarEventID, l.CalendarEventTitle, l.UpdatedAt)
	}

	if err := tx.InsertVisits(ctx, []*Visit{a.create}); err != nil {
		return false, err
	}

	return true, tx.InsertSuggestions(ctx, a.set.rows(a.create.ID))
}

// byExactName indexes restaurants by normalized name. Names shared by more
// than one restaurant are left out since they can't be resolved.
func byExactName(restaurants []*ReferenceRestaurant) map[string]*ReferenceRestaurant {
	out := make(map[string]*ReferenceRestaurant, len(restaurants))
	ambiguous := make(map[string]bool)

	for _, r := range restaurants {
		key := normalizeName(r.Name)
		if key == "" || ambiguous[key] {
			continue
		}

		if _, ok := out[key]; ok {
			delete(out, key)
			ambiguous[key] = true

			continue
		}

		out[key] = r
	}

	return out
}

// overlap is the length of the intersection of two time ranges; negative
// when they are apart.
func overlap(aStart, aEnd, bStart, bEnd time.Time) time.Duration {
	start := aStart
	if bStart.After(start) {
		start = bStart
	}

	end := aEnd
	if bEnd.Before(end) {
		end = bEnd
	}

	return end.Sub(start)
}

// planCalendarImport decides what to do with each event. It is pure so the
// matching rules can be tested without a store.
func planCalendarImport(
	events []CalendarEvent,
	pending []*Visit,
	byName map[string]*ReferenceRestaurant,
	imported map[string]bool,
	slack time.Duration,
	now time.Time,
) ([]calendarAction, int) {
	sorted := slices.Clone(events)
	slices.SortStableFunc(sorted, func(a, b CalendarEvent) int {
		return a.StartTime.Compare(b.StartTime)
	})

	taken := make(map[string]bool)

	for _, v := range pending {
		if v.CalendarEventID != "" {
			taken[v.ID] = true
		}
	}

	var (
		actions []calendarAction
		skipped int
	)

	for _, e := range sorted {
		if e.ID == "" || e.EndTime.Before(e.StartTime) || imported[e.ID] {
			skipped++

			continue
		}

		imported[e.ID] = true

		from, to := e.StartTime.Add(-slack), e.EndTime.Add(slack)

		var (
			best     *Visit
			bestOver time.Duration
		)

		for _, v := range pending {
			if taken[v.ID] {
				continue
			}

			o := overlap(from, to, v.StartTime, v.EndTime)
			if o < 0 {
				continue
			}

			if best == nil || o > bestOver || (o == bestOver && cmp.Compare(v.ID, best.ID) < 0) {
				best, bestOver = v, o
			}
		}

		if best != nil {
			taken[best.ID] = true

			linked := *best
			linked.CalendarEventID = e.ID
			linked.CalendarEventTitle = e.Title
			linked.UpdatedAt = now
			actions = append(actions, calendarAction{link: &linked})

			continue
		}

		ref, ok := byName[CleanCalendarTitle(e.Title)]
		if !ok {
			skipped++

			continue
		}

		refID := ref.ID
		v := &Visit{
			ID:                    uuid.NewString(),
			Status:                StatusPending,
			StartTime:             e.StartTime,
			EndTime:               e.EndTime,
			CenterLat:             ref.Latitude,
			CenterLon:             ref.Longitude,
			SuggestedRestaurantID: &refID,
			CalendarEventID:       e.ID,
			CalendarEventTitle:    e.Title,
			UpdatedAt:             now,
		}

		actions = append(actions, calendarAction{
			create: v,
			set:    SuggestionSet{Suggestions: []Suggestion{{RestaurantID: ref.ID}}, Primary: &refID},
		})
	}

	return actions, skipped
}
