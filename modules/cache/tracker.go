/* Copyright © INFINI Ltd. All rights reserved.
 * web: https://infinilabs.com
 * mail: hello#infini.ltd */

package cache

import (
	"sync"

	"github.com/emirpasic/gods/maps/treemap"
	"github.com/emirpasic/gods/utils"
)

// Region is a half open byte range [Start, End).
type Region struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

func (r Region) Len() int64 {
	return r.End - r.Start
}

// RegionTracker records which byte ranges of a sparse cache file hold valid
// data. Ranges are merged on insert, the tree maps range start to range end.
type RegionTracker struct {
	l      sync.RWMutex
	length int64
	tree   *treemap.Map
	bytes  int64
}

func NewRegionTracker(length int64) *RegionTracker {
	return &RegionTracker{
		length: length,
		tree:   treemap.NewWith(utils.Int64Comparator),
	}
}

func (t *RegionTracker) Length() int64 {
	return t.length
}

// Add marks [start, end) as present, merging with adjacent and overlapping
// ranges.
func (t *RegionTracker) Add(start, end int64) {
	if start < 0 {
		start = 0
	}
	if end > t.length {
		end = t.length
	}
	if start >= end {
		return
	}

	t.l.Lock()
	defer t.l.Unlock()

	// merge with a predecessor touching or overlapping the new range
	if fk, fv := t.tree.Floor(start); fk != nil {
		floorStart := fk.(int64)
		floorEnd := fv.(int64)
		if floorEnd >= start {
			start = floorStart
			if floorEnd > end {
				end = floorEnd
			}
			t.tree.Remove(floorStart)
			t.bytes -= floorEnd - floorStart
		}
	}

	// absorb successors covered by or touching the new range
	for {
		ck, cv := t.tree.Ceiling(start)
		if ck == nil {
			break
		}
		ceilStart := ck.(int64)
		ceilEnd := cv.(int64)
		if ceilStart > end {
			break
		}
		if ceilEnd > end {
			end = ceilEnd
		}
		t.tree.Remove(ceilStart)
		t.bytes -= ceilEnd - ceilStart
	}

	t.tree.Put(start, end)
	t.bytes += end - start
}

// Contains reports whether [start, end) is fully present.
func (t *RegionTracker) Contains(start, end int64) bool {
	if start >= end {
		return true
	}

	t.l.RLock()
	defer t.l.RUnlock()

	fk, fv := t.tree.Floor(start)
	if fk == nil {
		return false
	}
	return fv.(int64) >= end
}

// Gaps returns the sub ranges of [start, end) that are not present.
func (t *RegionTracker) Gaps(start, end int64) []Region {
	if end > t.length {
		end = t.length
	}
	if start >= end {
		return nil
	}

	t.l.RLock()
	defer t.l.RUnlock()

	gaps := []Region{}
	pos := start

	// the predecessor may already cover the head of the requested range
	if fk, fv := t.tree.Floor(start); fk != nil {
		if floorEnd := fv.(int64); floorEnd > pos {
			pos = floorEnd
		}
	}

	it := t.tree.Iterator()
	for it.Next() {
		regionStart := it.Key().(int64)
		regionEnd := it.Value().(int64)
		if regionEnd <= pos {
			continue
		}
		if regionStart >= end {
			break
		}
		if regionStart > pos {
			gaps = append(gaps, Region{Start: pos, End: min64(regionStart, end)})
		}
		if regionEnd > pos {
			pos = regionEnd
		}
	}

	if pos < end {
		gaps = append(gaps, Region{Start: pos, End: end})
	}
	return gaps
}

// Bytes returns the total number of present bytes.
func (t *RegionTracker) Bytes() int64 {
	t.l.RLock()
	defer t.l.RUnlock()
	return t.bytes
}

// Regions returns a snapshot of the present ranges in ascending order.
func (t *RegionTracker) Regions() []Region {
	t.l.RLock()
	defer t.l.RUnlock()

	out := make([]Region, 0, t.tree.Size())
	it := t.tree.Iterator()
	for it.Next() {
		out = append(out, Region{Start: it.Key().(int64), End: it.Value().(int64)})
	}
	return out
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
