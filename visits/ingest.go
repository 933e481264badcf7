// Copyright 2025 The Palate Authors
// SPDX-License-Identifier: Apache-2.0

package visits

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"slices"
	"time"

	"github.com/google/uuid"
)

// SavePhotos validates and upserts photo records. Invalid records are
// skipped, logged and counted as failed.
func SavePhotos(ctx context.Context, repo Repository, photos []*Photo, opts BatchOptions) (*BatchResult, error) {
	valid := make([]*Photo, 0, len(photos))
	skipped := 0

	for _, p := range photos {
		if err := validatePhoto(p); err != nil {
			log.Printf("⚠️  skipping photo: %v", err)

			skipped++

			continue
		}

		valid = append(valid, p)
	}

	result, err := RunBatches(ctx, valid, opts, func(ctx context.Context, chunk []*Photo) error {
		return repo.UpsertPhotos(ctx, chunk)
	})

	result.Total += skipped
	result.Failed += skipped

	return result, err
}

// DiscoverVisits clusters every geotagged photo that isn't part of a visit
// yet into new pending visits and attaches their suggestions. Each chunk of
// clusters is written in one transaction.
func DiscoverVisits(ctx context.Context, repo Repository, suggester *Suggester, copts ClusterOptions, bopts BatchOptions) (*BatchResult, error) {
	photos, err := repo.ListUnassignedPhotos(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing unassigned photos: %w", err)
	}

	clusters := ClusterPhotos(photos, copts)

	snap, err := suggester.Index().Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	result, err := RunBatches(ctx, clusters, bopts, func(ctx context.Context, chunk []*Cluster) error {
		now := time.Now()
		visits := make([]*Visit, len(chunk))
		var suggestions []*VisitSuggestion

		for i, c := range chunk {
			v := c.Visit(uuid.NewString(), now)

			set := suggester.computeWith(snap, v.CenterLat, v.CenterLon)
			v.SuggestedRestaurantID = set.Primary

			visits[i] = v
			suggestions = append(suggestions, set.rows(v.ID)...)
		}

		return repo.WithTx(ctx, func(tx Repository) error {
			if err := tx.InsertVisits(ctx, visits); err != nil {
				return err
			}

			for i, c := range chunk {
				if err := tx.AssignPhotos(ctx, visits[i].ID, c.PhotoIDs()); err != nil {
					return fmt.Errorf("assigning photos to %s: %w", visits[i].ID, err)
				}
			}

			return tx.InsertSuggestions(ctx, suggestions)
		})
	})
	if result != nil {
		log.Printf("✅ Discovered %d visits from %d photos (%d failed)", result.Processed, len(photos), result.Failed)
	}

	return result, err
}

// DefaultFoodThreshold is the label confidence from which a photo counts as
// food when the classifier didn't state it.
const DefaultFoodThreshold = 0.5

// DeriveFoodState maps classifier food labels to a food state. A classified
// photo with no confident food label is not food.
func DeriveFoodState(labels []Label, threshold float64) FoodState {
	for _, l := range labels {
		if l.Confidence >= threshold {
			return FoodPositive
		}
	}

	return FoodNegative
}

// Classification is the food classifier output for one photo.
type Classification struct {
	PhotoID      string    `json:"photo_id"`
	FoodDetected FoodState `json:"food_detected"`
	FoodLabels   []Label   `json:"food_labels,omitempty"`
	AllLabels    []Label   `json:"all_labels,omitempty"`
}

// ReadClassificationsFile reads a JSON array of classifications.
func ReadClassificationsFile(path string) ([]Classification, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path is provided by the operator
	if err != nil {
		return nil, fmt.Errorf("reading classifications file: %w", err)
	}

	var cls []Classification
	if err := json.Unmarshal(data, &cls); err != nil {
		return nil, fmt.Errorf("parsing classifications JSON: %w", err)
	}

	return cls, nil
}

// ReadPhotosFile reads a JSON array of photo records.
func ReadPhotosFile(path string) ([]*Photo, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path is provided by the operator
	if err != nil {
		return nil, fmt.Errorf("reading photos file: %w", err)
	}

	var photos []*Photo
	if err := json.Unmarshal(data, &photos); err != nil {
		return nil, fmt.Errorf("parsing photos JSON: %w", err)
	}

	return photos, nil
}

// ApplyClassifications stores classifier output and refreshes the food flag
// of the visits owning the reclassified photos.
func ApplyClassifications(ctx context.Context, repo Repository, cls []Classification, opts BatchOptions) (*BatchResult, error) {
	return RunBatches(ctx, cls, opts, func(ctx context.Context, chunk []Classification) error {
		return repo.WithTx(ctx, func(tx Repository) error {
			return applyClassificationChunk(ctx, tx, chunk)
		})
	})
}

func applyClassificationChunk(ctx context.Context, tx Repository, chunk []Classification) error {
	ids := make([]string, len(chunk))
	for i, c := range chunk {
		ids[i] = c.PhotoID
	}

	photos, err := tx.GetPhotos(ctx, ids)
	if err != nil {
		return err
	}

	byID := make(map[string]*Photo, len(photos))
	for _, p := range photos {
		byID[p.ID] = p
	}

	var (
		updated  []*Photo
		visitIDs []string
	)

	for _, c := range chunk {
		p, ok := byID[c.PhotoID]
		if !ok {
			log.Printf("⚠️  classification for unknown photo %s", c.PhotoID)

			continue
		}

		p.FoodDetected = c.FoodDetected
		if p.FoodDetected == FoodUnknown {
			p.FoodDetected = DeriveFoodState(c.FoodLabels, DefaultFoodThreshold)
		}

		p.FoodLabels = c.FoodLabels
		p.AllLabels = c.AllLabels
		updated = append(updated, p)

		if p.VisitID != "" {
			visitIDs = append(visitIDs, p.VisitID)
		}
	}

	if err := tx.UpdatePhotoClassifications(ctx, updated); err != nil {
		return fmt.Errorf("updating classifications: %w", err)
	}

	slices.Sort(visitIDs)

	return refreshFoodProbable(ctx, tx, slices.Compact(visitIDs))
}

// refreshFoodProbable recomputes the food flag of visits from their photos.
func refreshFoodProbable(ctx context.Context, tx Repository, visitIDs []string) error {
	if len(visitIDs) == 0 {
		return nil
	}

	visits, err := tx.ListVisits(ctx, VisitFilter{IDs: visitIDs})
	if err != nil {
		return err
	}

	photos, err := tx.ListPhotosByVisit(ctx, visitIDs)
	if err != nil {
		return err
	}

	now := time.Now()

	for _, v := range visits {
		food := slices.ContainsFunc(photos[v.ID], func(p *Photo) bool {
			return p.FoodDetected == FoodPositive
		})
		if food == v.FoodProbable {
			continue
		}

		v.FoodProbable = food
		v.UpdatedAt = now

		if err := tx.UpdateVisit(ctx, v); err != nil {
			return err
		}
	}

	return nil
}
