/* Copyright © INFINI Ltd. All rights reserved.
 * web: https://infinilabs.com
 * mail: hello#infini.ltd */

package mount

import (
	"context"
	"sync"
	"time"

	log "github.com/cihub/seelog"
	"github.com/rs/xid"
	"github.com/segmentio/encoding/json"
	"golang.org/x/sync/errgroup"
	"infini.sh/snapcache/core/blobstore"
	"infini.sh/snapcache/core/errors"
	"infini.sh/snapcache/core/kv"
	"infini.sh/snapcache/core/snapshot"
	"infini.sh/snapcache/core/stats"
	"infini.sh/snapcache/modules/cache"
)

const mountBucket = "mounts"

const (
	StateMounted = "mounted"
	StateBroken  = "broken"
)

var ErrMountNotFound = errors.New("mount not found")

// Mount is one snapshotted index attached to the cache.
type Mount struct {
	ID         string    `json:"id"`
	Repository string    `json:"repository"`
	Snapshot   string    `json:"snapshot"`
	Index      string    `json:"index"`
	IndexID    string    `json:"index_id"`
	Shards     int       `json:"shards"`
	State      string    `json:"state"`
	Prewarm    bool      `json:"prewarm"`
	CreatedAt  time.Time `json:"created_at"`
}

// Manager tracks the active mounts and their per shard directories. Mount
// records are persisted so a restart re-attaches them.
type Manager struct {
	service        *cache.CacheService
	prewarmWorkers int

	l      sync.RWMutex
	mounts map[string]*Mount
	dirs   map[string][]*cache.Directory
	cancel map[string]context.CancelFunc

	wg sync.WaitGroup
}

func NewManager(service *cache.CacheService, prewarmWorkers int) *Manager {
	if prewarmWorkers <= 0 {
		prewarmWorkers = 2
	}
	return &Manager{
		service:        service,
		prewarmWorkers: prewarmWorkers,
		mounts:         map[string]*Mount{},
		dirs:           map[string][]*cache.Directory{},
		cancel:         map[string]context.CancelFunc{},
	}
}

// CreateMount resolves the snapshot in the repository, loads every shard's
// file list and attaches the index.
func (m *Manager) CreateMount(ctx context.Context, repository, snapshotIDOrName, index string, prewarm bool) (*Mount, error) {
	store, ok := blobstore.Lookup(repository)
	if !ok {
		return nil, errors.Errorf("unknown repository [%v]", repository)
	}

	loader := snapshot.NewLoaderWithStore(repository, store)
	repoIndex, err := loader.LoadIndex(ctx)
	if err != nil {
		return nil, err
	}

	info, ok := repoIndex.FindSnapshot(snapshotIDOrName)
	if !ok {
		return nil, errors.Wrapf(snapshot.ErrNotFound, "snapshot [%v] in repository [%v]", snapshotIDOrName, repository)
	}

	indexMeta, ok := repoIndex.Indices[index]
	if !ok {
		return nil, errors.Wrapf(snapshot.ErrNotFound, "index [%v] in repository [%v]", index, repository)
	}

	mount := &Mount{
		ID:         xid.New().String(),
		Repository: repository,
		Snapshot:   info.ID,
		Index:      index,
		IndexID:    indexMeta.ID,
		Shards:     indexMeta.ShardCount,
		State:      StateMounted,
		Prewarm:    prewarm,
		CreatedAt:  time.Now(),
	}

	dirs, err := m.buildDirectories(ctx, mount)
	if err != nil {
		return nil, err
	}

	m.l.Lock()
	m.mounts[mount.ID] = mount
	m.dirs[mount.ID] = dirs
	m.l.Unlock()

	m.persist(mount)
	stats.Increment("mount", "created")
	log.Infof("mounted index [%v] of snapshot [%v] from [%v], %v shards", index, info.ID, repository, mount.Shards)

	if prewarm {
		m.startPrewarm(mount, dirs)
	}

	return mount, nil
}

func (m *Manager) buildDirectories(ctx context.Context, mount *Mount) ([]*cache.Directory, error) {
	store, ok := blobstore.Lookup(mount.Repository)
	if !ok {
		return nil, errors.Errorf("unknown repository [%v]", mount.Repository)
	}
	loader := snapshot.NewLoaderWithStore(mount.Repository, store)

	dirs := make([]*cache.Directory, 0, mount.Shards)
	for shard := 0; shard < mount.Shards; shard++ {
		shardSnapshot, err := loader.LoadShardSnapshot(ctx, mount.Snapshot, mount.IndexID, shard)
		if err != nil {
			return nil, err
		}
		dirs = append(dirs, cache.NewDirectory(m.service, store, mount.Repository, mount.Snapshot, mount.IndexID, shardSnapshot))
	}
	return dirs, nil
}

// GetMount returns the mount by id.
func (m *Manager) GetMount(id string) (*Mount, error) {
	m.l.RLock()
	defer m.l.RUnlock()
	mount, ok := m.mounts[id]
	if !ok {
		return nil, errors.Wrapf(ErrMountNotFound, "[%v]", id)
	}
	return mount, nil
}

// ListMounts returns all mounts.
func (m *Manager) ListMounts() []*Mount {
	m.l.RLock()
	defer m.l.RUnlock()
	out := make([]*Mount, 0, len(m.mounts))
	for _, mount := range m.mounts {
		out = append(out, mount)
	}
	return out
}

// GetDirectory returns the directory of one shard of a mount.
func (m *Manager) GetDirectory(id string, shard int) (*cache.Directory, error) {
	m.l.RLock()
	defer m.l.RUnlock()
	dirs, ok := m.dirs[id]
	if !ok {
		return nil, errors.Wrapf(ErrMountNotFound, "[%v]", id)
	}
	if shard < 0 || shard >= len(dirs) {
		return nil, errors.Errorf("mount [%v] has no shard [%v]", id, shard)
	}
	return dirs[shard], nil
}

// DeleteMount detaches the index and evicts its cache files.
func (m *Manager) DeleteMount(id string) error {
	m.l.Lock()
	mount, ok := m.mounts[id]
	if !ok {
		m.l.Unlock()
		return errors.Wrapf(ErrMountNotFound, "[%v]", id)
	}
	dirs := m.dirs[id]
	cancel := m.cancel[id]
	delete(m.mounts, id)
	delete(m.dirs, id)
	delete(m.cancel, id)
	m.l.Unlock()

	if cancel != nil {
		cancel()
	}

	evicted := 0
	for _, dir := range dirs {
		evicted += m.service.EvictPrefix(dir.KeyPrefix())
	}

	if err := kv.DeleteKey(mountBucket, []byte(id)); err != nil {
		log.Error("delete mount record: ", err)
	}

	stats.Increment("mount", "deleted")
	log.Infof("unmounted [%v], evicted %v cache files", mount.Index, evicted)
	return nil
}

func (m *Manager) startPrewarm(mount *Mount, dirs []*cache.Directory) {
	ctx, cancel := context.WithCancel(context.Background())

	m.l.Lock()
	m.cancel[mount.ID] = cancel
	m.l.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		group, ctx := errgroup.WithContext(ctx)
		group.SetLimit(m.prewarmWorkers)

		for _, dir := range dirs {
			for _, file := range dir.ListFiles() {
				dir, name := dir, file.PhysicalName
				group.Go(func() error {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					return dir.Prewarm(ctx, name)
				})
			}
		}

		if err := group.Wait(); err != nil && err != context.Canceled {
			log.Warnf("prewarm of mount [%v] stopped: %v", mount.ID, err)
			return
		}
		log.Infof("prewarm of mount [%v] finished", mount.ID)
	}()
}

func (m *Manager) persist(mount *Mount) {
	data, err := json.Marshal(mount)
	if err != nil {
		log.Error("marshal mount record: ", err)
		return
	}
	if err := kv.AddValue(mountBucket, []byte(mount.ID), data); err != nil {
		log.Error("persist mount record: ", err)
	}
}

// Restore re-attaches the persisted mounts. Mounts whose repository or
// metadata is gone are kept visible in broken state.
func (m *Manager) Restore(ctx context.Context) error {
	records := []*Mount{}
	err := kv.IterateBucket(mountBucket, func(key, value []byte) bool {
		mount := &Mount{}
		if err := json.Unmarshal(value, mount); err != nil {
			log.Warnf("drop corrupt mount record [%s]: %v", string(key), err)
			return true
		}
		records = append(records, mount)
		return true
	})
	if err != nil {
		return err
	}

	for _, mount := range records {
		dirs, err := m.buildDirectories(ctx, mount)
		if err != nil {
			log.Warnf("mount [%v] could not be re-attached: %v", mount.ID, err)
			mount.State = StateBroken
			m.l.Lock()
			m.mounts[mount.ID] = mount
			m.l.Unlock()
			continue
		}

		mount.State = StateMounted
		m.l.Lock()
		m.mounts[mount.ID] = mount
		m.dirs[mount.ID] = dirs
		m.l.Unlock()

		log.Infof("re-attached mount [%v] of index [%v]", mount.ID, mount.Index)
	}

	return nil
}

// Close cancels the running prewarmers.
func (m *Manager) Close() {
	m.l.Lock()
	for _, cancel := range m.cancel {
		cancel()
	}
	m.cancel = map[string]context.CancelFunc{}
	m.l.Unlock()
	m.wg.Wait()
}
