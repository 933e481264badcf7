// Copyright 2025 The Palate Authors
//
// SPDX-License-Identifier: Apache-2.0
package spatial

import (
	"cmp"
	"math"
	"slices"

	"github.com/uber/h3-go/v4"
)

const (
	// indexResolution is the H3 resolution used to bucket entries. Cells at
	// resolution 9 are roughly 0.1 km², small enough that a 200 m query only
	// touches a few dozen of them.
	indexResolution = 9

	// avgEdgeMeters is the average hexagon edge length at indexResolution.
	avgEdgeMeters = 174.375668

	// maxRings bounds the grid disk walked by a query. Larger radii scan linearly.
	maxRings = 48
)

// Entry is a point to be indexed, identified by an opaque ID.
type Entry struct {
	ID    int64
	Point Point
}

// Neighbor is a query hit. Pos is the position of the entry in the slice
// given to Build.
type Neighbor struct {
	Pos      int
	ID       int64
	Distance float64
}

// Index is an immutable nearest-neighbour index over a fixed set of entries.
// It is safe for concurrent use.
type Index struct {
	entries []Entry
	cells   map[h3.Cell][]int

	// uncelled holds the positions H3 couldn't place; every query checks them.
	uncelled []int
}

// Build indexes entries. It returns nil when entries is empty, which callers
// must treat as "nothing can be found". Entries whose coordinates can't be
// mapped to a cell are kept aside and checked by every query.
func Build(entries []Entry) *Index {
	if len(entries) == 0 {
		return nil
	}

	idx := &Index{
		entries: slices.Clone(entries),
		cells:   make(map[h3.Cell][]int, len(entries)),
	}

	for i, e := range idx.entries {
		cell, err := h3.LatLngToCell(h3.NewLatLng(e.Point.Lat, e.Point.Lng), indexResolution)
		if err != nil {
			idx.uncelled = append(idx.uncelled, i)

			continue
		}

		idx.cells[cell] = append(idx.cells[cell], i)
	}

	return idx
}

// Len returns the number of indexed entries.
func (idx *Index) Len() int {
	if idx == nil {
		return 0
	}

	return len(idx.entries)
}

// Entry returns the entry at position pos.
func (idx *Index) Entry(pos int) Entry {
	return idx.entries[pos]
}

// Nearest returns up to k entries within radiusMeters of (lat, lng), closest
// first. Ties are broken by build position so results are deterministic.
func (idx *Index) Nearest(lat, lng float64, k int, radiusMeters float64) []Neighbor {
	if idx == nil || k <= 0 || radiusMeters < 0 || math.IsNaN(lat) || math.IsNaN(lng) {
		return nil
	}

	var hits []Neighbor

	consider := func(pos int) {
		e := idx.entries[pos]

		d := Distance(lat, lng, e.Point.Lat, e.Point.Lng)
		if d <= radiusMeters {
			hits = append(hits, Neighbor{Pos: pos, ID: e.ID, Distance: d})
		}
	}

	candidates, ok := idx.candidates(lat, lng, radiusMeters)
	if ok {
		for _, pos := range candidates {
			consider(pos)
		}
	} else {
		for pos := range idx.entries {
			consider(pos)
		}
	}

	slices.SortFunc(hits, func(a, b Neighbor) int {
		if c := cmp.Compare(a.Distance, b.Distance); c != 0 {
			return c
		}

		return cmp.Compare(a.Pos, b.Pos)
	})

	if len(hits) > k {
		hits = hits[:k]
	}

	return hits
}

// candidates collects the entries bucketed in the grid disk around the query
// point. It reports false when a linear scan is needed instead.
func (idx *Index) candidates(lat, lng, radiusMeters float64) ([]int, bool) {
	rings := ringsFor(radiusMeters)
	if rings > maxRings || len(idx.cells) == 0 {
		return nil, false
	}

	origin, err := h3.LatLngToCell(h3.NewLatLng(lat, lng), indexResolution)
	if err != nil {
		return nil, false
	}

	disk, err := h3.GridDisk(origin, rings)
	if err != nil {
		return nil, false
	}

	out := slices.Clone(idx.uncelled)
	for _, cell := range disk {
		out = append(out, idx.cells[cell]...)
	}

	return out, true
}

// ringsFor returns how many grid-disk rings guarantee coverage of radius.
// Edge lengths vary across the globe, so half the average edge is used as
// the lower bound for the spacing between neighbouring cell centers.
func ringsFor(radiusMeters float64) int {
	spacing := math.Sqrt(3) * avgEdgeMeters / 2

	return int(math.Ceil((radiusMeters+avgEdgeMeters)/spacing)) + 1
}
