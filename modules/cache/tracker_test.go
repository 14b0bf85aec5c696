/* Copyright © INFINI LTD. All rights reserved.
 * Web: https://infinilabs.com
 * Email: hello#infini.ltd */

package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrackerAddAndMerge(t *testing.T) {
	tracker := NewRegionTracker(1000)

	tracker.Add(0, 100)
	tracker.Add(200, 300)
	assert.Equal(t, []Region{{0, 100}, {200, 300}}, tracker.Regions())
	assert.Equal(t, int64(200), tracker.Bytes())

	// bridge the gap
	tracker.Add(100, 200)
	assert.Equal(t, []Region{{0, 300}}, tracker.Regions())
	assert.Equal(t, int64(300), tracker.Bytes())

	// overlapping insert absorbs multiple ranges
	tracker.Add(500, 600)
	tracker.Add(700, 800)
	tracker.Add(250, 750)
	assert.Equal(t, []Region{{0, 800}}, tracker.Regions())
	assert.Equal(t, int64(800), tracker.Bytes())
}

func TestTrackerAddTouchingRanges(t *testing.T) {
	tracker := NewRegionTracker(100)

	tracker.Add(0, 10)
	tracker.Add(10, 20)
	assert.Equal(t, []Region{{0, 20}}, tracker.Regions())
}

func TestTrackerClampsToLength(t *testing.T) {
	tracker := NewRegionTracker(100)

	tracker.Add(-10, 50)
	tracker.Add(90, 500)
	assert.Equal(t, []Region{{0, 50}, {90, 100}}, tracker.Regions())

	// empty and inverted ranges are ignored
	tracker.Add(60, 60)
	tracker.Add(70, 65)
	assert.Equal(t, int64(60), tracker.Bytes())
}

func TestTrackerContains(t *testing.T) {
	tracker := NewRegionTracker(1000)
	tracker.Add(100, 400)

	assert.True(t, tracker.Contains(100, 400))
	assert.True(t, tracker.Contains(150, 300))
	assert.False(t, tracker.Contains(0, 100))
	assert.False(t, tracker.Contains(350, 450))
	assert.False(t, tracker.Contains(500, 600))

	// empty range is trivially contained
	assert.True(t, tracker.Contains(700, 700))
}

func TestTrackerGaps(t *testing.T) {
	tracker := NewRegionTracker(1000)
	tracker.Add(100, 200)
	tracker.Add(400, 500)

	assert.Equal(t, []Region{{0, 100}, {200, 400}, {500, 600}}, tracker.Gaps(0, 600))
	assert.Equal(t, []Region{{250, 400}}, tracker.Gaps(250, 450))
	assert.Empty(t, tracker.Gaps(120, 180))
	assert.Equal(t, []Region{{600, 1000}}, tracker.Gaps(600, 2000))

	empty := NewRegionTracker(100)
	assert.Equal(t, []Region{{0, 100}}, empty.Gaps(0, 100))

	full := NewRegionTracker(100)
	full.Add(0, 100)
	assert.Empty(t, full.Gaps(0, 100))
}
