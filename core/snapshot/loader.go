/* Copyright © INFINI Ltd. All rights reserved.
 * web: https://infinilabs.com
 * mail: hello#infini.ltd */

package snapshot

import (
	"context"
	"io"

	log "github.com/cihub/seelog"
	"github.com/segmentio/encoding/json"
	"infini.sh/snapcache/core/blobstore"
	"infini.sh/snapcache/core/errors"
)

// ErrNotFound is returned when a snapshot, index or shard is missing from
// the repository catalog.
var ErrNotFound = errors.New("snapshot not found")

// Loader reads snapshot metadata blobs from one repository.
type Loader struct {
	repository string
	store      blobstore.BlobStore
}

func NewLoader(repository string) *Loader {
	return &Loader{
		repository: repository,
		store:      blobstore.Get(repository),
	}
}

// NewLoaderWithStore is used by tests to inject a fake store.
func NewLoaderWithStore(repository string, store blobstore.BlobStore) *Loader {
	return &Loader{repository: repository, store: store}
}

func (l *Loader) Repository() string {
	return l.repository
}

func (l *Loader) Store() blobstore.BlobStore {
	return l.store
}

// LoadIndex fetches and parses the repository catalog.
func (l *Loader) LoadIndex(ctx context.Context) (*RepositoryIndex, error) {
	data, err := l.readBlob(ctx, IndexBlob)
	if err != nil {
		return nil, err
	}

	index := &RepositoryIndex{}
	if err := json.Unmarshal(data, index); err != nil {
		return nil, errors.Wrapf(err, "corrupt repository index in [%s]", l.repository)
	}
	return index, nil
}

// ListSnapshots returns the snapshots recorded in the repository catalog.
func (l *Loader) ListSnapshots(ctx context.Context) ([]SnapshotInfo, error) {
	index, err := l.LoadIndex(ctx)
	if err != nil {
		return nil, err
	}
	return index.Snapshots, nil
}

// LoadShardSnapshot fetches the file list of one shard of a snapshotted index.
func (l *Loader) LoadShardSnapshot(ctx context.Context, snapshotID, indexID string, shard int) (*ShardSnapshot, error) {
	blob := shardSnapshotBlob(indexID, shard, snapshotID)

	exists, err := l.store.Exists(ctx, blob)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, errors.Wrapf(ErrNotFound, "shard snapshot blob [%s]", blob)
	}

	data, err := l.readBlob(ctx, blob)
	if err != nil {
		return nil, err
	}

	shardSnapshot := &ShardSnapshot{}
	if err := json.Unmarshal(data, shardSnapshot); err != nil {
		return nil, errors.Wrapf(err, "corrupt shard snapshot blob [%s]", blob)
	}

	log.Debugf("loaded shard snapshot [%s], %v files", blob, len(shardSnapshot.Files))

	return shardSnapshot, nil
}

func (l *Loader) readBlob(ctx context.Context, name string) ([]byte, error) {
	reader, err := l.store.Get(ctx, name)
	if err != nil {
		return nil, errors.Wrapf(err, "read blob [%s] from [%s]", name, l.repository)
	}
	defer reader.Close()
	return io.ReadAll(reader)
}
