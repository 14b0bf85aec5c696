/* Copyright © INFINI LTD. All rights reserved.
 * Web: https://infinilabs.com
 * Email: hello#infini.ltd */

package snapshot

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"infini.sh/snapcache/core/blobstore"
	"infini.sh/snapcache/core/errors"
)

type fakeStore struct {
	blobs map[string][]byte
}

func (f *fakeStore) Stat(ctx context.Context, name string) (blobstore.ObjectInfo, error) {
	data, ok := f.blobs[name]
	if !ok {
		return blobstore.ObjectInfo{}, errors.Errorf("no such blob: %v", name)
	}
	return blobstore.ObjectInfo{Name: name, Size: int64(len(data))}, nil
}

func (f *fakeStore) Get(ctx context.Context, name string) (io.ReadCloser, error) {
	data, ok := f.blobs[name]
	if !ok {
		return nil, errors.Errorf("no such blob: %v", name)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeStore) GetRange(ctx context.Context, name string, offset, length int64) (io.ReadCloser, error) {
	reader, err := f.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	data, _ := io.ReadAll(reader)
	end := offset + length
	if end > int64(len(data)) {
		end = int64(len(data))
	}
	return io.NopCloser(bytes.NewReader(data[offset:end])), nil
}

func (f *fakeStore) List(ctx context.Context, prefix string) ([]blobstore.ObjectInfo, error) {
	return nil, nil
}

func (f *fakeStore) Exists(ctx context.Context, name string) (bool, error) {
	_, ok := f.blobs[name]
	return ok, nil
}

func newTestRepository(t *testing.T) *fakeStore {
	t.Helper()

	index := RepositoryIndex{
		Snapshots: []SnapshotInfo{
			{ID: "snap-uuid-1", Name: "nightly-1", State: "SUCCESS", Indices: []string{"logs"}},
		},
		Indices: map[string]IndexMetadata{
			"logs": {ID: "idx-uuid-1", ShardCount: 2, Snapshots: []string{"snap-uuid-1"}},
		},
	}
	indexData, err := json.Marshal(index)
	require.NoError(t, err)

	shard := ShardSnapshot{
		Snapshot: "snap-uuid-1",
		Index:    "logs",
		Shard:    0,
		Files: []FileInfo{
			{Name: "__0", PhysicalName: "_0.cfs", Length: 1024},
			{Name: "__1", PhysicalName: "segments_1", Length: 128, Checksum: "abc"},
		},
	}
	shardData, err := json.Marshal(shard)
	require.NoError(t, err)

	return &fakeStore{blobs: map[string][]byte{
		IndexBlob: indexData,
		"indices/idx-uuid-1/0/snap-snap-uuid-1.json": shardData,
	}}
}

func TestLoaderListSnapshots(t *testing.T) {
	loader := NewLoaderWithStore("backup", newTestRepository(t))

	snapshots, err := loader.ListSnapshots(context.Background())
	require.NoError(t, err)
	require.Len(t, snapshots, 1)
	assert.Equal(t, "snap-uuid-1", snapshots[0].ID)
	assert.Equal(t, "nightly-1", snapshots[0].Name)
}

func TestLoaderFindSnapshotByIDOrName(t *testing.T) {
	loader := NewLoaderWithStore("backup", newTestRepository(t))

	index, err := loader.LoadIndex(context.Background())
	require.NoError(t, err)

	byID, ok := index.FindSnapshot("snap-uuid-1")
	require.True(t, ok)
	byName, ok2 := index.FindSnapshot("nightly-1")
	require.True(t, ok2)
	assert.Equal(t, byID, byName)

	_, ok = index.FindSnapshot("missing")
	assert.False(t, ok)
}

func TestLoaderLoadShardSnapshot(t *testing.T) {
	loader := NewLoaderWithStore("backup", newTestRepository(t))

	shard, err := loader.LoadShardSnapshot(context.Background(), "snap-uuid-1", "idx-uuid-1", 0)
	require.NoError(t, err)
	assert.Equal(t, 0, shard.Shard)
	require.Len(t, shard.Files, 2)
	assert.Equal(t, "_0.cfs", shard.Files[0].PhysicalName)
	assert.Equal(t, "indices/idx-uuid-1/0/__0", shard.Files[0].BlobPath("idx-uuid-1", 0))
}

func TestLoaderShardSnapshotNotFound(t *testing.T) {
	loader := NewLoaderWithStore("backup", newTestRepository(t))

	_, err := loader.LoadShardSnapshot(context.Background(), "snap-uuid-1", "idx-uuid-1", 7)
	require.Error(t, err)
	assert.Equal(t, ErrNotFound, errors.Cause(err))
}

func TestLoaderCorruptMetadata(t *testing.T) {
	store := newTestRepository(t)
	store.blobs[IndexBlob] = []byte("{not json")

	loader := NewLoaderWithStore("backup", store)
	_, err := loader.LoadIndex(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "corrupt repository index")
}
