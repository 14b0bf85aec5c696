/* Copyright © INFINI LTD. All rights reserved.
 * Web: https://infinilabs.com
 * Email: hello#infini.ltd */

package stats

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatsCounters(t *testing.T) {
	s := &Stats{data: map[string]map[string]int64{}}

	s.Increment("cache", "hit")
	s.IncrementBy("cache", "hit", 4)
	s.Decrement("cache", "hit")
	s.Gauge("cache", "files", 12)

	assert.Equal(t, int64(4), s.Stat("cache", "hit"))
	assert.Equal(t, int64(12), s.Stat("cache", "files"))
	assert.Equal(t, int64(0), s.Stat("cache", "miss"))

	m := s.StatsMap()
	assert.Equal(t, int64(4), m["cache"]["hit"])

	// the snapshot is detached from the live data
	m["cache"]["hit"] = 100
	assert.Equal(t, int64(4), s.Stat("cache", "hit"))
}

func TestStatsConcurrentAccess(t *testing.T) {
	s := &Stats{data: map[string]map[string]int64{}}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				s.Increment("cache", "hit")
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(10000), s.Stat("cache", "hit"))
}
