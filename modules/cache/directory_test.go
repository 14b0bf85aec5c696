/* Copyright © INFINI LTD. All rights reserved.
 * Web: https://infinilabs.com
 * Email: hello@infini.ltd */

package cache

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"infini.sh/snapcache/core/blobstore"
	"infini.sh/snapcache/core/errors"
	"infini.sh/snapcache/core/snapshot"
)

// memBlobStore is an in-memory blobstore.BlobStore.
type memBlobStore struct {
	l     sync.RWMutex
	blobs map[string][]byte
}

func newMemBlobStore() *memBlobStore {
	return &memBlobStore{blobs: map[string][]byte{}}
}

func (m *memBlobStore) put(name string, data []byte) {
	m.l.Lock()
	m.blobs[name] = data
	m.l.Unlock()
}

func (m *memBlobStore) Stat(ctx context.Context, name string) (blobstore.ObjectInfo, error) {
	m.l.RLock()
	defer m.l.RUnlock()
	data, ok := m.blobs[name]
	if !ok {
		return blobstore.ObjectInfo{}, errors.Errorf("no such blob: %v", name)
	}
	return blobstore.ObjectInfo{Name: name, Size: int64(len(data))}, nil
}

func (m *memBlobStore) Get(ctx context.Context, name string) (io.ReadCloser, error) {
	m.l.RLock()
	defer m.l.RUnlock()
	data, ok := m.blobs[name]
	if !ok {
		return nil, errors.Errorf("no such blob: %v", name)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memBlobStore) GetRange(ctx context.Context, name string, offset, length int64) (io.ReadCloser, error) {
	m.l.RLock()
	defer m.l.RUnlock()
	data, ok := m.blobs[name]
	if !ok {
		return nil, errors.Errorf("no such blob: %v", name)
	}
	end := offset + length
	if end > int64(len(data)) {
		end = int64(len(data))
	}
	return io.NopCloser(bytes.NewReader(data[offset:end])), nil
}

func (m *memBlobStore) List(ctx context.Context, prefix string) ([]blobstore.ObjectInfo, error) {
	m.l.RLock()
	defer m.l.RUnlock()
	out := []blobstore.ObjectInfo{}
	for name, data := range m.blobs {
		if len(name) >= len(prefix) && name[:len(prefix)] == prefix {
			out = append(out, blobstore.ObjectInfo{Name: name, Size: int64(len(data))})
		}
	}
	return out, nil
}

func (m *memBlobStore) Exists(ctx context.Context, name string) (bool, error) {
	m.l.RLock()
	defer m.l.RUnlock()
	_, ok := m.blobs[name]
	return ok, nil
}

func newTestDirectory(t *testing.T, service *CacheService) (*Directory, map[string][]byte) {
	t.Helper()

	store := newMemBlobStore()
	contents := map[string][]byte{
		"_0.cfs":     bytes.Repeat([]byte("abcdefghij"), 35), // 350 bytes, spans regions
		"segments_1": []byte("segments"),                     // small file
	}

	shardSnapshot := &snapshot.ShardSnapshot{
		Snapshot: "snap-1",
		Index:    "idx-1",
		Shard:    0,
	}
	i := 0
	for name, data := range contents {
		info := snapshot.FileInfo{
			Name:         "__" + string(rune('0'+i)),
			PhysicalName: name,
			Length:       int64(len(data)),
		}
		store.put(info.BlobPath("idx-1", 0), data)
		shardSnapshot.Files = append(shardSnapshot.Files, info)
		i++
	}

	return NewDirectory(service, store, "backup", "snap-1", "idx-1", shardSnapshot), contents
}

func TestDirectoryOpenAndRead(t *testing.T) {
	service := newTestService(t, t.TempDir())
	defer service.Close()

	dir, contents := newTestDirectory(t, service)
	ctx := context.Background()

	input, err := dir.Open(ctx, "_0.cfs")
	require.NoError(t, err)
	defer input.Close()

	assert.Equal(t, int64(350), input.Length())

	// sequential reads cross the region boundary at 100
	got, err := io.ReadAll(input)
	require.NoError(t, err)
	assert.Equal(t, contents["_0.cfs"], got)
}

func TestDirectoryReadAtMatchesSequentialRead(t *testing.T) {
	service := newTestService(t, t.TempDir())
	defer service.Close()

	dir, contents := newTestDirectory(t, service)
	ctx := context.Background()

	input, err := dir.Open(ctx, "_0.cfs")
	require.NoError(t, err)
	defer input.Close()

	buf := make([]byte, 120)
	n, err := input.ReadAt(buf, 90)
	require.NoError(t, err)
	assert.Equal(t, 120, n)
	assert.Equal(t, contents["_0.cfs"][90:210], buf)
}

func TestDirectorySmallFileFetchedWhole(t *testing.T) {
	service := newTestService(t, t.TempDir())
	defer service.Close()

	dir, contents := newTestDirectory(t, service)
	ctx := context.Background()

	input, err := dir.Open(ctx, "segments_1")
	require.NoError(t, err)
	defer input.Close()

	// already fully present after open
	require.NotNil(t, input.cacheFile)
	assert.Equal(t, int64(len(contents["segments_1"])), input.cacheFile.Tracker().Bytes())

	got, err := io.ReadAll(input)
	require.NoError(t, err)
	assert.Equal(t, contents["segments_1"], got)
}

func TestDirectoryUnknownFile(t *testing.T) {
	service := newTestService(t, t.TempDir())
	defer service.Close()

	dir, _ := newTestDirectory(t, service)

	_, err := dir.Open(context.Background(), "_nonexistent.cfs")
	require.Error(t, err)
	assert.Equal(t, ErrFileNotFound, errors.Cause(err))
}

func TestDirectoryFallsBackToDirectReads(t *testing.T) {
	service := newTestService(t, t.TempDir())
	require.NoError(t, service.Close())

	dir, contents := newTestDirectory(t, service)

	// the cache is closed, Open falls back to streaming from the blob store
	input, err := dir.Open(context.Background(), "_0.cfs")
	require.NoError(t, err)
	defer input.Close()
	require.Nil(t, input.cacheFile)

	got, err := io.ReadAll(input)
	require.NoError(t, err)
	assert.Equal(t, contents["_0.cfs"], got)
}

func TestInputSeek(t *testing.T) {
	service := newTestService(t, t.TempDir())
	defer service.Close()

	dir, contents := newTestDirectory(t, service)

	input, err := dir.Open(context.Background(), "_0.cfs")
	require.NoError(t, err)
	defer input.Close()

	pos, err := input.Seek(100, io.SeekStart)
	require.NoError(t, err)
	assert.Equal(t, int64(100), pos)

	buf := make([]byte, 10)
	_, err = io.ReadFull(input, buf)
	require.NoError(t, err)
	assert.Equal(t, contents["_0.cfs"][100:110], buf)

	pos, err = input.Seek(-10, io.SeekEnd)
	require.NoError(t, err)
	assert.Equal(t, int64(340), pos)

	_, err = input.Seek(-500, io.SeekCurrent)
	require.Error(t, err)
}

func TestDirectoryPrewarm(t *testing.T) {
	service := newTestService(t, t.TempDir())
	defer service.Close()

	dir, contents := newTestDirectory(t, service)

	require.NoError(t, dir.Prewarm(context.Background(), "_0.cfs"))

	f, err := service.Acquire(dir.key(dir.files["_0.cfs"]), int64(len(contents["_0.cfs"])), nil)
	require.NoError(t, err)
	defer service.Release(f)
	assert.Equal(t, int64(len(contents["_0.cfs"])), f.Tracker().Bytes())
}
