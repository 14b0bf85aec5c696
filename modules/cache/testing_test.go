/* Copyright © INFINI LTD. All rights reserved.
 * Web: https://infinilabs.com
 * Email: hello#infini.ltd */

package cache

import (
	"bytes"
	"context"
	"io"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"

	"infini.sh/snapcache/core/errors"
	"infini.sh/snapcache/core/kv"
)

var errTestFetch = errors.New("synthetic fetch failure")

// memKV is an in-memory kv store used instead of badger in tests.
type memKV struct {
	l    sync.RWMutex
	data map[string][]byte
}

func newMemKV() *memKV {
	return &memKV{data: map[string][]byte{}}
}

func (m *memKV) Open() error  { return nil }
func (m *memKV) Close() error { return nil }

func (m *memKV) GetValue(bucket string, key []byte) ([]byte, error) {
	m.l.RLock()
	defer m.l.RUnlock()
	return m.data[bucket+":"+string(key)], nil
}

func (m *memKV) AddValue(bucket string, key []byte, value []byte) error {
	m.l.Lock()
	defer m.l.Unlock()
	m.data[bucket+":"+string(key)] = value
	return nil
}

func (m *memKV) ExistsKey(bucket string, key []byte) (bool, error) {
	m.l.RLock()
	defer m.l.RUnlock()
	_, ok := m.data[bucket+":"+string(key)]
	return ok, nil
}

func (m *memKV) DeleteKey(bucket string, key []byte) error {
	m.l.Lock()
	defer m.l.Unlock()
	delete(m.data, bucket+":"+string(key))
	return nil
}

func (m *memKV) IterateBucket(bucket string, visit func(key, value []byte) bool) error {
	m.l.RLock()
	snapshot := map[string][]byte{}
	prefix := bucket + ":"
	for k, v := range m.data {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			snapshot[k[len(prefix):]] = v
		}
	}
	m.l.RUnlock()

	for k, v := range snapshot {
		if !visit([]byte(k), v) {
			return nil
		}
	}
	return nil
}

var registerKV sync.Once

// setupKV wires an in-memory kv handler, shared across the package's tests.
func setupKV(t *testing.T) {
	t.Helper()
	registerKV.Do(func() {
		kv.Register("memory", newMemKV())
	})
}

// memSource serves regions out of an in-memory blob and counts fetches.
type memSource struct {
	data    []byte
	fetches int64

	failNext atomic.Bool
}

func newMemSource(size int64) *memSource {
	data := make([]byte, size)
	r := rand.New(rand.NewSource(42))
	r.Read(data)
	return &memSource{data: data}
}

func (s *memSource) ReadRegion(ctx context.Context, offset, length int64) (io.ReadCloser, error) {
	if s.failNext.Swap(false) {
		return nil, errTestFetch
	}
	atomic.AddInt64(&s.fetches, 1)
	end := offset + length
	if end > int64(len(s.data)) {
		end = int64(len(s.data))
	}
	return io.NopCloser(bytes.NewReader(s.data[offset:end])), nil
}

func (s *memSource) fetchCount() int64 {
	return atomic.LoadInt64(&s.fetches)
}
