// Copyright 2025 The Palate Authors
// SPDX-License-Identifier: Apache-2.0

package visits

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonluca/palate-sub000/spatial"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clusterIDs(clusters []*Cluster) [][]string {
	out := make([][]string, len(clusters))
	for i, c := range clusters {
		out[i] = c.PhotoIDs()
	}

	return out
}

func TestClusterPhotos(t *testing.T) {
	lat, lng := origin[0], origin[1]
	farLat, farLng := offset(lat, lng, 2000, 0)
	nearLat, nearLng := offset(lat, lng, 50, 0)

	tests := []struct {
		name   string
		photos []*Photo
		want   [][]string
	}{
		{
			name: "empty",
			want: [][]string{},
		},
		{
			name:   "single photo is a visit",
			photos: []*Photo{photoAt("a", t0, lat, lng, FoodUnknown)},
			want:   [][]string{{"a"}},
		},
		{
			name: "burst at one place",
			photos: []*Photo{
				photoAt("a", t0, lat, lng, FoodUnknown),
				photoAt("b", t0.Add(10*time.Minute), nearLat, nearLng, FoodUnknown),
				photoAt("c", t0.Add(90*time.Minute), lat, lng, FoodUnknown),
			},
			want: [][]string{{"a", "b", "c"}},
		},
		{
			name: "gap is measured from the last photo",
			photos: []*Photo{
				photoAt("a", t0, lat, lng, FoodUnknown),
				photoAt("b", t0.Add(110*time.Minute), lat, lng, FoodUnknown),
				photoAt("c", t0.Add(220*time.Minute), lat, lng, FoodUnknown),
			},
			want: [][]string{{"a", "b", "c"}},
		},
		{
			name: "far away splits",
			photos: []*Photo{
				photoAt("a", t0, lat, lng, FoodUnknown),
				photoAt("b", t0.Add(5*time.Minute), farLat, farLng, FoodUnknown),
				photoAt("c", t0.Add(10*time.Minute), lat, lng, FoodUnknown),
			},
			want: [][]string{{"a"}, {"b"}, {"c"}},
		},
		{
			name: "unsorted input is ordered by capture time",
			photos: []*Photo{
				photoAt("late", t0.Add(5*time.Hour), lat, lng, FoodUnknown),
				photoAt("b", t0.Add(time.Minute), lat, lng, FoodUnknown),
				photoAt("a", t0, lat, lng, FoodUnknown),
			},
			want: [][]string{{"a", "b"}, {"late"}},
		},
		{
			name: "photos without location are ignored",
			photos: []*Photo{
				photoAt("a", t0, lat, lng, FoodUnknown),
				{ID: "nogps", CaptureTime: t0.Add(time.Minute)},
				photoAt("b", t0.Add(2*time.Minute), lat, lng, FoodUnknown),
			},
			want: [][]string{{"a", "b"}},
		},
		{
			name: "equal capture times keep input order",
			photos: []*Photo{
				photoAt("z", t0, lat, lng, FoodUnknown),
				photoAt("y", t0, lat, lng, FoodUnknown),
				photoAt("x", t0, lat, lng, FoodUnknown),
			},
			want: [][]string{{"z", "y", "x"}},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := clusterIDs(ClusterPhotos(tc.photos, DefaultClusterOptions()))
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("ClusterPhotos() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestClusterPhotosTimeBoundary(t *testing.T) {
	lat, lng := origin[0], origin[1]
	opts := DefaultClusterOptions()

	atGap := ClusterPhotos([]*Photo{
		photoAt("a", t0, lat, lng, FoodUnknown),
		photoAt("b", t0.Add(opts.MaxGap), lat, lng, FoodUnknown),
	}, opts)
	assert.Len(t, atGap, 2, "photos exactly MaxGap apart must not merge")

	justUnder := ClusterPhotos([]*Photo{
		photoAt("a", t0, lat, lng, FoodUnknown),
		photoAt("b", t0.Add(opts.MaxGap-time.Second), lat, lng, FoodUnknown),
	}, opts)
	assert.Len(t, justUnder, 1)
}

func TestClusterPhotosDistanceBoundary(t *testing.T) {
	lat, lng := origin[0], origin[1]
	bLat, bLng := offset(lat, lng, 200, 0)

	// threshold set to the exact distance between the photos
	opts := DefaultClusterOptions()
	opts.MaxDistance = spatial.Distance(lat, lng, bLat, bLng)

	photos := []*Photo{
		photoAt("a", t0, lat, lng, FoodUnknown),
		photoAt("b", t0.Add(time.Minute), bLat, bLng, FoodUnknown),
	}

	assert.Len(t, ClusterPhotos(photos, opts), 2, "photos exactly MaxDistance apart must not merge")

	opts.MaxDistance = opts.MaxDistance + 0.01
	assert.Len(t, ClusterPhotos(photos, opts), 1)

	cLat, cLng := offset(lat, lng, 199, 0)
	photos[1] = photoAt("b", t0.Add(time.Minute), cLat, cLng, FoodUnknown)
	assert.Len(t, ClusterPhotos(photos, DefaultClusterOptions()), 1)
}

func TestClusterPhotosDistanceIsToCentroid(t *testing.T) {
	lat, lng := origin[0], origin[1]
	bLat, bLng := offset(lat, lng, 150, 0)
	// 250m from a, but only 175m from the centroid of a and b
	cLat, cLng := offset(lat, lng, 250, 0)

	clusters := ClusterPhotos([]*Photo{
		photoAt("a", t0, lat, lng, FoodUnknown),
		photoAt("b", t0.Add(time.Minute), bLat, bLng, FoodUnknown),
		photoAt("c", t0.Add(2*time.Minute), cLat, cLng, FoodUnknown),
	}, DefaultClusterOptions())

	if diff := cmp.Diff([][]string{{"a", "b", "c"}}, clusterIDs(clusters)); diff != "" {
		t.Errorf("ClusterPhotos() mismatch (-want +got):\n%s", diff)
	}
}

func TestClusterPhotosIsDeterministic(t *testing.T) {
	lat, lng := origin[0], origin[1]

	var photos []*Photo

	for i := range 60 {
		pLat, pLng := offset(lat, lng, float64((i*37)%400), float64((i*53)%300))
		photos = append(photos, photoAt(string(rune('A'+i)), t0.Add(time.Duration(i*i)*time.Minute), pLat, pLng, FoodUnknown))
	}

	first := clusterIDs(ClusterPhotos(photos, DefaultClusterOptions()))
	second := clusterIDs(ClusterPhotos(photos, DefaultClusterOptions()))

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("ClusterPhotos() is not deterministic (-first +second):\n%s", diff)
	}
}

func TestClusterVisit(t *testing.T) {
	lat, lng := origin[0], origin[1]
	bLat, bLng := offset(lat, lng, 40, 0)
	cLat, cLng := offset(lat, lng, 80, 0)

	clusters := ClusterPhotos([]*Photo{
		photoAt("a", t0, lat, lng, FoodNegative),
		photoAt("b", t0.Add(20*time.Minute), bLat, bLng, FoodPositive),
		photoAt("c", t0.Add(45*time.Minute), cLat, cLng, FoodUnknown),
	}, DefaultClusterOptions())
	require.Len(t, clusters, 1)

	now := t0.Add(24 * time.Hour)
	v := clusters[0].Visit("v1", now)

	assert.Equal(t, "v1", v.ID)
	assert.Equal(t, StatusPending, v.Status)
	assert.Equal(t, t0, v.StartTime)
	assert.Equal(t, t0.Add(45*time.Minute), v.EndTime)
	assert.Equal(t, 3, v.PhotoCount)
	assert.True(t, v.FoodProbable)
	assert.InDelta(t, (lat+bLat+cLat)/3, v.CenterLat, 1e-12)
	assert.InDelta(t, (lng+bLng+cLng)/3, v.CenterLon, 1e-12)
	assert.Equal(t, now, v.UpdatedAt)
	assert.Nil(t, v.SuggestedRestaurantID)
}
