// Copyright 2025 The Palate Authors
// SPDX-License-Identifier: Apache-2.0

package visits

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeVisit inserts v and assigns photos to it.
func storeVisit(t *testing.T, repo Repository, v *Visit, photos ...*Photo) {
	t.Helper()

	ctx := context.Background()

	if v.Status == "" {
		v.Status = StatusPending
	}

	if v.UpdatedAt.IsZero() {
		v.UpdatedAt = t0
	}

	v.PhotoCount = len(photos)
	require.NoError(t, repo.InsertVisits(ctx, []*Visit{v}))

	for _, p := range photos {
		p.VisitID = v.ID
	}

	if len(photos) > 0 {
		require.NoError(t, repo.UpsertPhotos(ctx, photos))
	}
}

func TestMergeVisitsCentroidUsesAllPhotos(t *testing.T) {
	drivers(t, func(t *testing.T, repo Repository) {
		ctx := context.Background()

		var (
			a          []*Photo
			lats, lngs []float64
		)

		for i, north := range []float64{0, 10, 20} {
			lat, lng := offset(origin[0], origin[1], north, 0)
			a = append(a, photoAt("a"+string(rune('0'+i)), t0.Add(time.Duration(i)*time.Minute), lat, lng, FoodUnknown))
			lats, lngs = append(lats, lat), append(lngs, lng)
		}

		aLat := (lats[0] + lats[1] + lats[2]) / 3

		bLat, bLng := offset(origin[0], origin[1], 100, 30)
		lats, lngs = append(lats, bLat), append(lngs, bLng)

		storeVisit(t, repo, &Visit{ID: "target", StartTime: t0, EndTime: t0.Add(2 * time.Minute), CenterLat: aLat, CenterLon: origin[1]}, a...)
		storeVisit(t, repo, &Visit{ID: "source", StartTime: t0.Add(time.Hour), EndTime: t0.Add(time.Hour), CenterLat: bLat, CenterLon: bLng},
			photoAt("b0", t0.Add(time.Hour), bLat, bLng, FoodUnknown))

		merged, err := MergeVisits(ctx, repo, "target", "source")
		require.NoError(t, err)

		wantLat := (lats[0] + lats[1] + lats[2] + lats[3]) / 4
		wantLng := (lngs[0] + lngs[1] + lngs[2] + lngs[3]) / 4

		assert.InDelta(t, wantLat, merged.CenterLat, 1e-9)
		assert.InDelta(t, wantLng, merged.CenterLon, 1e-9)
		assert.Greater(t, abs(merged.CenterLat-(aLat+bLat)/2), 1e-5, "centroid must not be the mean of the two centroids")
		assert.Equal(t, 4, merged.PhotoCount)

		stored, err := repo.GetVisit(ctx, "target")
		require.NoError(t, err)
		assert.InDelta(t, wantLat, stored.CenterLat, 1e-9)
		assert.Equal(t, 4, stored.PhotoCount)

		_, err = repo.GetVisit(ctx, "source")
		assert.True(t, IsNotFound(err))

		photos, err := repo.ListPhotosByVisit(ctx, []string{"target", "source"})
		require.NoError(t, err)
		assert.Len(t, photos["target"], 4)
		assert.Empty(t, photos["source"])
	})
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}

	return v
}

func TestMergeVisitsTimeRangeUnion(t *testing.T) {
	h := func(n int) time.Time { return t0.Add(time.Duration(n) * time.Hour) }

	tests := []struct {
		name               string
		tStart, tEnd       time.Time
		sStart, sEnd       time.Time
		wantStart, wantEnd time.Time
	}{
		{"disjoint, source after", h(0), h(1), h(3), h(4), h(0), h(4)},
		{"disjoint, source before", h(3), h(4), h(0), h(1), h(0), h(4)},
		{"overlapping", h(1), h(3), h(0), h(2), h(0), h(3)},
		{"source nested in target", h(0), h(4), h(1), h(2), h(0), h(4)},
		{"target nested in source", h(1), h(2), h(0), h(4), h(0), h(4)},
		{"identical", h(0), h(1), h(0), h(1), h(0), h(1)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			_, repo := setupTestDB(t)

			storeVisit(t, repo, &Visit{ID: "t", StartTime: tc.tStart, EndTime: tc.tEnd, CenterLat: origin[0], CenterLon: origin[1]})
			storeVisit(t, repo, &Visit{ID: "s", StartTime: tc.sStart, EndTime: tc.sEnd, CenterLat: origin[0], CenterLon: origin[1]})

			merged, err := MergeVisits(ctx, repo, "t", "s")
			require.NoError(t, err)

			assert.Equal(t, tc.wantStart, merged.StartTime)
			assert.Equal(t, tc.wantEnd, merged.EndTime)

			stored, err := repo.GetVisit(ctx, "t")
			require.NoError(t, err)
			assert.True(t, tc.wantStart.Equal(stored.StartTime))
			assert.True(t, tc.wantEnd.Equal(stored.EndTime))
		})
	}
}

func TestMergeVisitsSuggestionsAndFlags(t *testing.T) {
	ctx := context.Background()
	_, repo := setupTestDB(t)

	lat, lng := origin[0], origin[1]

	storeVisit(t, repo, &Visit{ID: "t", StartTime: t0, EndTime: t0, CenterLat: lat, CenterLon: lng, Notes: "great"},
		photoAt("t1", t0, lat, lng, FoodNegative))
	storeVisit(t, repo, &Visit{
		ID: "s", StartTime: t0.Add(time.Hour), EndTime: t0.Add(time.Hour), CenterLat: lat, CenterLon: lng,
		SuggestedRestaurantID: i64(1), CalendarEventID: "evt", CalendarEventTitle: "Dinner at Atomix",
	}, photoAt("s1", t0.Add(time.Hour), lat, lng, FoodPositive))

	require.NoError(t, repo.InsertSuggestions(ctx, []*VisitSuggestion{
		{VisitID: "t", RestaurantID: 1, DistanceMeters: 10},
		{VisitID: "s", RestaurantID: 1, DistanceMeters: 50},
		{VisitID: "s", RestaurantID: 2, DistanceMeters: 70},
	}))

	merged, err := MergeVisits(ctx, repo, "t", "s")
	require.NoError(t, err)

	assert.True(t, merged.FoodProbable, "a reassigned food photo makes the target food probable")
	assert.Equal(t, "great", merged.Notes)
	assert.Equal(t, "evt", merged.CalendarEventID)
	require.NotNil(t, merged.SuggestedRestaurantID)
	assert.Equal(t, int64(1), *merged.SuggestedRestaurantID)

	suggestions, err := repo.ListSuggestions(ctx, []string{"t", "s"})
	require.NoError(t, err)

	want := []*VisitSuggestion{
		{VisitID: "t", RestaurantID: 1, DistanceMeters: 10},
		{VisitID: "t", RestaurantID: 2, DistanceMeters: 70},
	}
	if diff := cmp.Diff(want, suggestions["t"]); diff != "" {
		t.Errorf("suggestions mismatch (-want +got):\n%s", diff)
	}

	assert.Empty(t, suggestions["s"])
}

func TestMergeVisitsFoodFlagFromPriorState(t *testing.T) {
	ctx := context.Background()
	_, repo := setupTestDB(t)

	storeVisit(t, repo, &Visit{ID: "t", StartTime: t0, EndTime: t0, CenterLat: origin[0], CenterLon: origin[1]})
	storeVisit(t, repo, &Visit{ID: "s", StartTime: t0, EndTime: t0, CenterLat: origin[0], CenterLon: origin[1], FoodProbable: true})

	merged, err := MergeVisits(ctx, repo, "t", "s")
	require.NoError(t, err)
	assert.True(t, merged.FoodProbable)
	assert.Equal(t, 0, merged.PhotoCount)
	assert.Equal(t, origin[0], merged.CenterLat, "without photos the center is kept")
}

func TestMergeVisitsErrors(t *testing.T) {
	ctx := context.Background()
	_, repo := setupTestDB(t)

	lat, lng := origin[0], origin[1]
	storeVisit(t, repo, &Visit{ID: "t", StartTime: t0, EndTime: t0, CenterLat: lat, CenterLon: lng},
		photoAt("p", t0, lat, lng, FoodUnknown))

	_, err := MergeVisits(ctx, repo, "t", "missing")
	assert.True(t, IsNotFound(err))

	_, err = MergeVisits(ctx, repo, "missing", "t")
	assert.True(t, IsNotFound(err))

	_, err = MergeVisits(ctx, repo, "t", "t")
	assert.True(t, IsValidationError(err))

	v, err := repo.GetVisit(ctx, "t")
	require.NoError(t, err)
	assert.Equal(t, 1, v.PhotoCount)

	photos, err := repo.ListPhotosByVisit(ctx, []string{"t"})
	require.NoError(t, err)
	assert.Len(t, photos["t"], 1)
}

func confirmedVisit(id, restaurant string, start, end time.Time, photos int) *Visit {
	return &Visit{
		ID:           id,
		Status:       StatusConfirmed,
		StartTime:    start,
		EndTime:      end,
		RestaurantID: restaurant,
		PhotoCount:   photos,
	}
}

func TestDetectMergeGroups(t *testing.T) {
	h := func(n int) time.Time { return t0.Add(time.Duration(n) * time.Hour) }

	visits := []*Visit{
		confirmedVisit("v22", "ref-1", h(22), h(23), 1),
		confirmedVisit("v0", "ref-1", h(0), h(1), 2),
		confirmedVisit("v40", "ref-1", h(40), h(41), 4),
		confirmedVisit("v10", "ref-1", h(10), h(11), 3),
		confirmedVisit("solo", "ref-2", h(0), h(1), 1),
		confirmedVisit("w0", "ref-3", h(0), h(1), 1),
		confirmedVisit("w1", "ref-3", h(13), h(14), 1),
		{ID: "pending", Status: StatusPending, StartTime: h(1), EndTime: h(1), RestaurantID: "ref-1"},
		{ID: "norestaurant", Status: StatusConfirmed, StartTime: h(1), EndTime: h(1)},
	}

	groups := DetectMergeGroups(visits, map[string]string{"ref-1": "Atomix"}, 12*time.Hour)
	require.Len(t, groups, 1)

	g := groups[0]
	assert.Equal(t, "ref-1", g.RestaurantID)
	assert.Equal(t, "Atomix", g.RestaurantName)
	assert.Equal(t, 6, g.TotalPhotos)

	ids := make([]string, len(g.Visits))
	for i, v := range g.Visits {
		ids[i] = v.ID
	}

	assert.Equal(t, []string{"v0", "v10", "v22"}, ids)
}

func TestDetectMergeGroupsGapIsInclusive(t *testing.T) {
	visits := []*Visit{
		confirmedVisit("a", "r", t0, t0.Add(time.Hour), 1),
		confirmedVisit("b", "r", t0.Add(13*time.Hour), t0.Add(14*time.Hour), 1),
	}

	assert.Len(t, DetectMergeGroups(visits, nil, 12*time.Hour), 1)
	assert.Empty(t, DetectMergeGroups(visits, nil, 12*time.Hour-time.Second))
}

func TestDetectMergeGroupsAnchorsOnEndTime(t *testing.T) {
	// a long visit: the next one starts 20h after a's start but only 4h after its end
	visits := []*Visit{
		confirmedVisit("long", "r", t0, t0.Add(16*time.Hour), 1),
		confirmedVisit("next", "r", t0.Add(20*time.Hour), t0.Add(21*time.Hour), 1),
	}

	groups := DetectMergeGroups(visits, nil, 12*time.Hour)
	require.Len(t, groups, 1)
	assert.Len(t, groups[0].Visits, 2)
}

func TestDetectMergeGroupsGapIsFromPreviousVisit(t *testing.T) {
	h := func(n int) time.Time { return t0.Add(time.Duration(n) * time.Hour) }

	// short ends at 2h, late starts 18h later even though long is still open
	visits := []*Visit{
		confirmedVisit("long", "r", h(0), h(30), 1),
		confirmedVisit("short", "r", h(1), h(2), 1),
		confirmedVisit("late", "r", h(20), h(21), 1),
	}

	groups := DetectMergeGroups(visits, nil, 12*time.Hour)
	require.Len(t, groups, 1)

	ids := make([]string, len(groups[0].Visits))
	for i, v := range groups[0].Visits {
		ids[i] = v.ID
	}

	assert.Equal(t, []string{"long", "short"}, ids)
}

func TestAutoMerge(t *testing.T) {
	ctx := context.Background()
	_, repo := setupTestDB(t)

	h := func(n int) time.Time { return t0.Add(time.Duration(n) * time.Hour) }
	lat, lng := origin[0], origin[1]

	for _, cr := range []*ConfirmedRestaurant{
		{ID: "ref-1", Name: "Atomix", Latitude: lat, Longitude: lng, CreatedAt: t0},
		{ID: "ref-2", Name: "Per Se", Latitude: lat, Longitude: lng, CreatedAt: t0},
	} {
		require.NoError(t, repo.InsertConfirmedRestaurant(ctx, cr))
	}

	for _, v := range []*Visit{
		confirmedVisit("v0", "ref-1", h(0), h(1), 0),
		confirmedVisit("v10", "ref-1", h(10), h(11), 0),
		confirmedVisit("v22", "ref-1", h(22), h(23), 0),
		confirmedVisit("v40", "ref-1", h(40), h(41), 0),
		confirmedVisit("w0", "ref-2", h(0), h(1), 0),
		confirmedVisit("w5", "ref-2", h(5), h(6), 0),
	} {
		v.CenterLat, v.CenterLon = lat, lng
		storeVisit(t, repo, v, photoAt("p-"+v.ID, v.StartTime, lat, lng, FoodUnknown))
	}

	groups, err := FindMergeGroups(ctx, repo, DefaultMergeOptions())
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, "Atomix", groups[0].RestaurantName)
	assert.Equal(t, "Per Se", groups[1].RestaurantName)

	var progress []int

	opts := DefaultMergeOptions()
	opts.Concurrency = 2
	opts.Progress = func(done, total int) {
		assert.Equal(t, 2, total)

		progress = append(progress, done)
	}

	result, err := AutoMerge(ctx, repo, opts)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Groups)
	assert.Equal(t, 3, result.Merged)
	assert.Equal(t, 0, result.FailedGroups)
	assert.Empty(t, result.Errors)
	assert.Equal(t, []int{1, 2}, progress)

	remaining, err := repo.ListVisits(ctx, VisitFilter{Statuses: []Status{StatusConfirmed}})
	require.NoError(t, err)

	ids := make([]string, len(remaining))
	for i, v := range remaining {
		ids[i] = v.ID
	}

	assert.ElementsMatch(t, []string{"v0", "v40", "w0"}, ids)

	v0, err := repo.GetVisit(ctx, "v0")
	require.NoError(t, err)
	assert.True(t, h(0).Equal(v0.StartTime))
	assert.True(t, h(23).Equal(v0.EndTime))
	assert.Equal(t, 3, v0.PhotoCount)

	again, err := AutoMerge(ctx, repo, opts)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Groups)
}

// failingDelete fails DeleteVisit for one visit, also inside transactions.
type failingDelete struct {
	Repository
	id string
}

func (f *failingDelete) WithTx(ctx context.Context, fn func(tx Repository) error) error {
	return f.Repository.WithTx(ctx, func(tx Repository) error {
		return fn(&failingDelete{Repository: tx, id: f.id})
	})
}

func (f *failingDelete) DeleteVisit(ctx context.Context, id string) error {
	if id == f.id {
		return errors.New("disk full")
	}

	return f.Repository.DeleteVisit(ctx, id)
}

func TestAutoMergePartialFailure(t *testing.T) {
	ctx := context.Background()
	_, repo := setupTestDB(t)

	h := func(n int) time.Time { return t0.Add(time.Duration(n) * time.Hour) }
	lat, lng := origin[0], origin[1]

	for _, cr := range []*ConfirmedRestaurant{
		{ID: "ref-1", Name: "Atomix", Latitude: lat, Longitude: lng, CreatedAt: t0},
		{ID: "ref-2", Name: "Per Se", Latitude: lat, Longitude: lng, CreatedAt: t0},
	} {
		require.NoError(t, repo.InsertConfirmedRestaurant(ctx, cr))
	}

	for _, v := range []*Visit{
		confirmedVisit("v0", "ref-1", h(0), h(1), 0),
		confirmedVisit("v10", "ref-1", h(10), h(11), 0),
		confirmedVisit("w0", "ref-2", h(0), h(1), 0),
		confirmedVisit("w5", "ref-2", h(5), h(6), 0),
	} {
		v.CenterLat, v.CenterLon = lat, lng
		storeVisit(t, repo, v, photoAt("p-"+v.ID, v.StartTime, lat, lng, FoodUnknown))
	}

	require.NoError(t, repo.InsertSuggestions(ctx, []*VisitSuggestion{{VisitID: "w5", RestaurantID: 7, DistanceMeters: 12}}))

	opts := DefaultMergeOptions()
	opts.Concurrency = 1

	result, err := AutoMerge(ctx, &failingDelete{Repository: repo, id: "w5"}, opts)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Groups)
	assert.Equal(t, 1, result.Merged)
	assert.Equal(t, 1, result.FailedGroups)
	require.Len(t, result.Errors, 1)
	assert.ErrorContains(t, result.Errors[0], "merging w5 into w0")

	v0, err := repo.GetVisit(ctx, "v0")
	require.NoError(t, err)
	assert.Equal(t, 2, v0.PhotoCount)
	assert.True(t, v0.EndTime.Equal(h(11)))

	_, err = repo.GetVisit(ctx, "v10")
	assert.True(t, IsNotFound(err))

	// the failed pair is left exactly as it was
	w0, err := repo.GetVisit(ctx, "w0")
	require.NoError(t, err)
	assert.Equal(t, 1, w0.PhotoCount)
	assert.True(t, w0.EndTime.Equal(h(1)))

	w5, err := repo.GetVisit(ctx, "w5")
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, w5.Status)

	photos, err := repo.ListPhotosByVisit(ctx, []string{"w0", "w5"})
	require.NoError(t, err)
	require.Len(t, photos["w5"], 1)
	assert.Equal(t, "p-w5", photos["w5"][0].ID)
	assert.Len(t, photos["w0"], 1)

	suggestions, err := repo.ListSuggestions(ctx, []string{"w0", "w5"})
	require.NoError(t, err)
	assert.Empty(t, suggestions["w0"])
	assert.Len(t, suggestions["w5"], 1)
}
