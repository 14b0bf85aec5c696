/* Copyright © INFINI Ltd. All rights reserved.
 * web: https://infinilabs.com
 * mail: hello#infini.ltd */

package stats

import (
	"sync"

	"infini.sh/snapcache/core/global"
	"infini.sh/snapcache/core/stats"
)

type SimpleStatsConfig struct {
	Enabled bool `config:"enabled"`
}

type SimpleStatsModule struct {
	config *SimpleStatsConfig
	data   *Stats
}

func (module *SimpleStatsModule) Name() string {
	return "stats"
}

func (module *SimpleStatsModule) Setup() {
	module.config = &SimpleStatsConfig{Enabled: true}
	ok, err := global.Env().ParseConfig("stats", module.config)
	if ok && err != nil {
		panic(err)
	}

	if !module.config.Enabled {
		return
	}

	module.data = &Stats{data: map[string]map[string]int64{}}
	stats.Register(module.data)
}

func (module *SimpleStatsModule) Start() error {
	return nil
}

func (module *SimpleStatsModule) Stop() error {
	return nil
}

type Stats struct {
	l    sync.RWMutex
	data map[string]map[string]int64
}

func (s *Stats) initData(category, key string) {
	_, ok := s.data[category]
	if !ok {
		s.data[category] = make(map[string]int64)
	}
}

func (s *Stats) Increment(category, key string) {
	s.IncrementBy(category, key, 1)
}

func (s *Stats) IncrementBy(category, key string, value int64) {
	s.l.Lock()
	s.initData(category, key)
	s.data[category][key] += value
	s.l.Unlock()
}

func (s *Stats) Decrement(category, key string) {
	s.DecrementBy(category, key, 1)
}

func (s *Stats) DecrementBy(category, key string, value int64) {
	s.l.Lock()
	s.initData(category, key)
	s.data[category][key] -= value
	s.l.Unlock()
}

func (s *Stats) Gauge(category, key string, v int64) {
	s.l.Lock()
	s.initData(category, key)
	s.data[category][key] = v
	s.l.Unlock()
}

func (s *Stats) Stat(category, key string) int64 {
	s.l.RLock()
	defer s.l.RUnlock()
	return s.data[category][key]
}

func (s *Stats) StatsMap() map[string]map[string]int64 {
	s.l.RLock()
	defer s.l.RUnlock()
	out := map[string]map[string]int64{}
	for category, keys := range s.data {
		m := map[string]int64{}
		for k, v := range keys {
			m[k] = v
		}
		out[category] = m
	}
	return out
}
