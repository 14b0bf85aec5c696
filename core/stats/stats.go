/* Copyright © INFINI Ltd. All rights reserved.
 * web: https://infinilabs.com
 * mail: hello#infini.ltd */

package stats

import (
	"sync"
)

type StatsInterface interface {
	Increment(category, key string)

	IncrementBy(category, key string, value int64)

	Decrement(category, key string)

	DecrementBy(category, key string, value int64)

	Gauge(category, key string, v int64)

	Stat(category, key string) int64

	StatsMap() map[string]map[string]int64
}

var handlers = []StatsInterface{}
var l sync.RWMutex

func Register(h StatsInterface) {
	l.Lock()
	defer l.Unlock()
	handlers = append(handlers, h)
}

func Increment(category, key string) {
	IncrementBy(category, key, 1)
}

func IncrementBy(category, key string, value int64) {
	l.RLock()
	defer l.RUnlock()
	for _, v := range handlers {
		v.IncrementBy(category, key, value)
	}
}

func Decrement(category, key string) {
	DecrementBy(category, key, 1)
}

func DecrementBy(category, key string, value int64) {
	l.RLock()
	defer l.RUnlock()
	for _, v := range handlers {
		v.DecrementBy(category, key, value)
	}
}

func Gauge(category, key string, v int64) {
	l.RLock()
	defer l.RUnlock()
	for _, h := range handlers {
		h.Gauge(category, key, v)
	}
}

// Stat returns the current value from the first registered handler.
func Stat(category, key string) int64 {
	l.RLock()
	defer l.RUnlock()
	for _, h := range handlers {
		return h.Stat(category, key)
	}
	return 0
}

// StatsMap returns a merged snapshot of all handlers.
func StatsMap() map[string]map[string]int64 {
	l.RLock()
	defer l.RUnlock()
	out := map[string]map[string]int64{}
	for _, h := range handlers {
		for category, keys := range h.StatsMap() {
			m, ok := out[category]
			if !ok {
				m = map[string]int64{}
				out[category] = m
			}
			for k, v := range keys {
				m[k] += v
			}
		}
	}
	return out
}
