// Copyright 2025 The Palate Authors
// SPDX-License-Identifier: Apache-2.0

package visits

import (
	"slices"
	"time"

	"github.com/jonluca/palate-sub000/spatial"
)

// ClusterOptions are the thresholds that bound a single dining occasion.
type ClusterOptions struct {
	// MaxGap is the time since the previous photo of the open cluster. A
	// photo exactly MaxGap later starts a new cluster.
	MaxGap time.Duration

	// MaxDistance is the distance in meters to the centroid of the open
	// cluster. A photo exactly MaxDistance away starts a new cluster.
	MaxDistance float64
}

// DefaultClusterOptions returns 2 hours / 200 meters.
func DefaultClusterOptions() ClusterOptions {
	return ClusterOptions{
		MaxGap:      2 * time.Hour,
		MaxDistance: 200,
	}
}

// Cluster is a draft visit: photos taken close in time and space.
type Cluster struct {
	Photos       []*Photo
	Start        time.Time
	End          time.Time
	Center       spatial.Point
	FoodProbable bool

	// running sums for the centroid
	sumLat, sumLng float64
}

func newCluster(p *Photo, pt spatial.Point) *Cluster {
	c := &Cluster{Start: p.CaptureTime, End: p.CaptureTime}
	c.add(p, pt)

	return c
}

func (c *Cluster) add(p *Photo, pt spatial.Point) {
	c.Photos = append(c.Photos, p)
	c.sumLat += pt.Lat
	c.sumLng += pt.Lng

	n := float64(len(c.Photos))
	c.Center = spatial.Point{Lat: c.sumLat / n, Lng: c.sumLng / n}

	if p.CaptureTime.Before(c.Start) {
		c.Start = p.CaptureTime
	}

	if p.CaptureTime.After(c.End) {
		c.End = p.CaptureTime
	}

	if p.FoodDetected == FoodPositive {
		c.FoodProbable = true
	}
}

// accepts reports whether p belongs to the open cluster c. The last photo
// is the latest one since input is time ordered.
func (c *Cluster) accepts(p *Photo, pt spatial.Point, opts ClusterOptions) bool {
	last := c.Photos[len(c.Photos)-1].CaptureTime
	if p.CaptureTime.Sub(last) >= opts.MaxGap {
		return false
	}

	return c.Center.HaversineDistance(&pt) < opts.MaxDistance
}

// PhotoIDs returns the ids of the member photos in capture order.
func (c *Cluster) PhotoIDs() []string {
	ids := make([]string, len(c.Photos))
	for i, p := range c.Photos {
		ids[i] = p.ID
	}

	return ids
}

// Visit turns the cluster into a pending visit.
func (c *Cluster) Visit(id string, now time.Time) *Visit {
	return &Visit{
		ID:           id,
		Status:       StatusPending,
		StartTime:    c.Start,
		EndTime:      c.End,
		CenterLat:    c.Center.Lat,
		CenterLon:    c.Center.Lng,
		PhotoCount:   len(c.Photos),
		FoodProbable: c.FoodProbable,
		UpdatedAt:    now,
	}
}

// clusterState is the fold accumulator.
type clusterState struct {
	open   *Cluster
	closed []*Cluster
}

func (s clusterState) step(p *Photo, opts ClusterOptions) clusterState {
	pt, ok := p.Point()
	if !ok {
		return s
	}

	if s.open != nil && s.open.accepts(p, pt, opts) {
		s.open.add(p, pt)

		return s
	}

	if s.open != nil {
		s.closed = append(s.closed, s.open)
	}

	s.open = newCluster(p, pt)

	return s
}

func (s clusterState) finish() []*Cluster {
	if s.open != nil {
		return append(s.closed, s.open)
	}

	return s.closed
}

// ClusterPhotos groups photos into draft visits with a greedy single pass in
// capture time order. Photos without a location are ignored. Photos with the
// same capture time keep their input order, so the result is a pure function
// of the input and opts.
func ClusterPhotos(photos []*Photo, opts ClusterOptions) []*Cluster {
	sorted := slices.Clone(photos)
	slices.SortStableFunc(sorted, func(a, b *Photo) int {
		return a.CaptureTime.Compare(b.CaptureTime)
	})

	var state clusterState
	for _, p := range sorted {
		state = state.step(p, opts)
	}

	return state.finish()
}
