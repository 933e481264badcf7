// Copyright 2025 The Palate Authors
// SPDX-License-Identifier: Apache-2.0

package visits

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
)

// NewRestaurant is a restaurant entered by hand, not in the reference set.
type NewRestaurant struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address,omitempty"`
	Cuisine   string  `json:"cuisine,omitempty"`
}

// ensureReferenceRestaurant returns the confirmed restaurant for ref,
// creating it on first use.
func ensureReferenceRestaurant(ctx context.Context, tx Repository, ref *ReferenceRestaurant, now time.Time) (*ConfirmedRestaurant, error) {
	id := confirmedIDForReference(ref.ID)

	cr, err := tx.GetConfirmedRestaurant(ctx, id)
	if err == nil {
		return cr, nil
	}

	if !IsNotFound(err) {
		return nil, err
	}

	refID := ref.ID
	cr = &ConfirmedRestaurant{
		ID:          id,
		Name:        ref.Name,
		Latitude:    ref.Latitude,
		Longitude:   ref.Longitude,
		Address:     ref.Address,
		Cuisine:     ref.Cuisine,
		ReferenceID: &refID,
		CreatedAt:   now,
	}

	if err := tx.InsertConfirmedRestaurant(ctx, cr); err != nil {
		return nil, err
	}

	return cr, nil
}

func confirmAgainst(ctx context.Context, tx Repository, v *Visit, cr *ConfirmedRestaurant, award string, now time.Time) (*Visit, error) {
	updated := *v
	updated.Status = StatusConfirmed
	updated.RestaurantID = cr.ID
	updated.AwardAtVisit = award
	updated.UpdatedAt = now

	if err := tx.UpdateVisit(ctx, &updated); err != nil {
		return nil, err
	}

	return &updated, nil
}

// ConfirmVisit confirms a visit as a visit to the reference restaurant
// referenceID. The award the restaurant holds now is recorded on the visit.
func ConfirmVisit(ctx context.Context, repo Repository, visitID string, referenceID int64) (*Visit, error) {
	var confirmed *Visit

	err := repo.WithTx(ctx, func(tx Repository) error {
		v, err := tx.GetVisit(ctx, visitID)
		if err != nil {
			return err
		}

		refs, err := tx.GetReferenceRestaurants(ctx, []int64{referenceID})
		if err != nil {
			return err
		}

		ref, ok := refs[referenceID]
		if !ok {
			return notFound("confirm visit", "reference restaurant %d", referenceID)
		}

		now := time.Now()

		cr, err := ensureReferenceRestaurant(ctx, tx, ref, now)
		if err != nil {
			return err
		}

		confirmed, err = confirmAgainst(ctx, tx, v, cr, ref.Award, now)

		return err
	})
	if err != nil {
		return nil, err
	}

	return confirmed, nil
}

// ConfirmVisitManual confirms a visit against a restaurant entered by hand.
func ConfirmVisitManual(ctx context.Context, repo Repository, visitID string, r NewRestaurant) (*Visit, error) {
	if err := validateNewRestaurant(r); err != nil {
		return nil, &OpError{Op: "confirm visit", Kind: KindValidation, Err: err}
	}

	id := uuid.NewString()

	var confirmed *Visit

	err := repo.WithTx(ctx, func(tx Repository) error {
		v, err := tx.GetVisit(ctx, visitID)
		if err != nil {
			return err
		}

		now := time.Now()
		cr := &ConfirmedRestaurant{
			ID:        id,
			Name:      r.Name,
			Latitude:  r.Latitude,
			Longitude: r.Longitude,
			Address:   r.Address,
			Cuisine:   r.Cuisine,
			CreatedAt: now,
		}

		if err := tx.InsertConfirmedRestaurant(ctx, cr); err != nil {
			return err
		}

		confirmed, err = confirmAgainst(ctx, tx, v, cr, "", now)

		return err
	})
	if err != nil {
		return nil, err
	}

	return confirmed, nil
}

// RejectVisit marks a visit as not a restaurant visit.
func RejectVisit(ctx context.Context, repo Repository, visitID string) (*Visit, error) {
	var rejected *Visit

	err := repo.WithTx(ctx, func(tx Repository) error {
		v, err := tx.GetVisit(ctx, visitID)
		if err != nil {
			return err
		}

		v.Status = StatusRejected
		v.RestaurantID = ""
		v.AwardAtVisit = ""
		v.UpdatedAt = time.Now()

		if err := tx.UpdateVisit(ctx, v); err != nil {
			return err
		}

		rejected = v

		return nil
	})
	if err != nil {
		return nil, err
	}

	return rejected, nil
}

// UpdateNotes replaces the free text notes of a visit.
func UpdateNotes(ctx context.Context, repo Repository, visitID, notes string) (*Visit, error) {
	var updated *Visit

	err := repo.WithTx(ctx, func(tx Repository) error {
		v, err := tx.GetVisit(ctx, visitID)
		if err != nil {
			return err
		}

		v.Notes = sanitizeNotes(notes)
		v.UpdatedAt = time.Now()

		if err := tx.UpdateVisit(ctx, v); err != nil {
			return err
		}

		updated = v

		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// ConfirmPrimarySuggestions confirms every pending visit that has a primary
// suggestion against that restaurant.
func ConfirmPrimarySuggestions(ctx context.Context, repo Repository, opts BatchOptions) (*BatchResult, error) {
	pending, err := repo.ListVisits(ctx, VisitFilter{Statuses: []Status{StatusPending}, HasSuggestion: true})
	if err != nil {
		return nil, fmt.Errorf("listing pending visits: %w", err)
	}

	result, err := RunBatches(ctx, pending, opts, func(ctx context.Context, chunk []*Visit) error {
		visitIDs := make([]string, len(chunk))
		for i, v := range chunk {
			visitIDs[i] = v.ID
		}

		return repo.WithTx(ctx, func(tx Repository) error {
			// the listing is stale by now: a visit may have been reviewed
			current, err := tx.ListVisits(ctx, VisitFilter{
				IDs:           visitIDs,
				Statuses:      []Status{StatusPending},
				HasSuggestion: true,
			})
			if err != nil {
				return err
			}

			refIDs := make([]int64, len(current))
			for i, v := range current {
				refIDs[i] = *v.SuggestedRestaurantID
			}

			refs, err := tx.GetReferenceRestaurants(ctx, refIDs)
			if err != nil {
				return err
			}

			now := time.Now()

			for _, v := range current {
				ref, ok := refs[*v.SuggestedRestaurantID]
				if !ok {
					return notFound("confirm primary", "reference restaurant %d of visit %s", *v.SuggestedRestaurantID, v.ID)
				}

				cr, err := ensureReferenceRestaurant(ctx, tx, ref, now)
				if err != nil {
					return err
				}

				if _, err := confirmAgainst(ctx, tx, v, cr, ref.Award, now); err != nil {
					return err
				}
			}

			return nil
		})
	})
	if result != nil {
		log.Printf("✅ Confirmed %d/%d visits with a primary suggestion", result.Processed, result.Total)
	}

	return result, err
}
