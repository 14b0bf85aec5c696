/* Copyright © INFINI Ltd. All rights reserved.
 * web: https://infinilabs.com
 * mail: hello#infini.ltd */

package cache

import (
	"os"
	"path"
	"strings"
	"sync"
	"time"

	log "github.com/cihub/seelog"
	"github.com/dgraph-io/ristretto"
	"github.com/rs/xid"
	"github.com/segmentio/encoding/json"
	"github.com/shirou/gopsutil/v3/disk"
	"infini.sh/snapcache/core/errors"
	"infini.sh/snapcache/core/kv"
	"infini.sh/snapcache/core/stats"
)

// CacheService owns the cache directory. It keeps the authoritative key to
// cache file index, delegates the byte budget and eviction choice to
// ristretto (cost = file length) and persists cache file records in the
// local kv index.
type CacheService struct {
	cfg *CacheConfig

	l      sync.RWMutex
	files  map[string]*CacheFile
	closed bool

	budget *ristretto.Cache

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewCacheService(cfg *CacheConfig) (*CacheService, error) {
	if cfg.Path == "" {
		return nil, errors.New("cache path is required")
	}
	if cfg.RegionSize <= 0 {
		cfg.RegionSize = defaultRegionSize
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = defaultMaxSize
	}
	if err := os.MkdirAll(cfg.Path, 0755); err != nil {
		return nil, err
	}

	service := &CacheService{
		cfg:    cfg,
		files:  map[string]*CacheFile{},
		stopCh: make(chan struct{}),
	}

	budget, err := ristretto.NewCache(&ristretto.Config{
		NumCounters:        1e6,
		MaxCost:            cfg.MaxSize,
		BufferItems:        64,
		IgnoreInternalCost: true,
		Metrics:            true,
		OnEvict: func(item *ristretto.Item) {
			if f, ok := item.Value.(*CacheFile); ok {
				service.onBudgetEvict(f)
			}
		},
		OnReject: func(item *ristretto.Item) {
			if f, ok := item.Value.(*CacheFile); ok {
				service.onBudgetReject(f)
			}
		},
	})
	if err != nil {
		return nil, err
	}
	service.budget = budget

	return service, nil
}

// Open restores persisted cache files and starts the background sync loop.
func (s *CacheService) Open() error {
	if err := s.recover(); err != nil {
		return err
	}

	interval := time.Duration(s.cfg.SyncIntervalInSeconds) * time.Second
	if interval <= 0 {
		interval = defaultSyncInterval * time.Second
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Sync()
			case <-s.stopCh:
				return
			}
		}
	}()

	return nil
}

// Acquire returns a referenced cache file for the key, creating the local
// sparse file on first use. The caller must Release it.
func (s *CacheService) Acquire(key CacheKey, length int64, source RegionSource) (*CacheFile, error) {
	k := key.String()

	s.l.Lock()
	if s.closed {
		s.l.Unlock()
		return nil, ErrCacheClosed
	}

	if f, ok := s.files[k]; ok {
		if f.tryRetain() {
			s.l.Unlock()
			f.setSource(source)
			// the budget keeper ranks eviction victims by access frequency,
			// it only sees accesses that go through Get
			s.budget.Get(k)
			stats.Increment("cache", "hit")
			return f, nil
		}
		// lost the race against eviction, rebuild below
		delete(s.files, k)
	}

	if err := s.checkFreeDiskSpace(); err != nil {
		s.l.Unlock()
		stats.Increment("cache", "rejected")
		return nil, err
	}

	fileName := xid.New().String() + ".cache"
	f, err := newCacheFile(key, fileName, path.Join(s.cfg.Path, fileName), length, s.cfg.RegionSize, source)
	if err != nil {
		s.l.Unlock()
		return nil, errors.Wrapf(err, "create cache file for [%v]", k)
	}
	f.onIdle = s.destroyFile
	f.refs = 1
	s.files[k] = f
	count := len(s.files)
	s.l.Unlock()

	if !s.budget.Set(k, f, length) {
		// refused outright, serve the caller and drop the file once released
		s.onBudgetReject(f)
	}

	stats.Increment("cache", "miss")
	stats.Gauge("cache", "files", int64(count))

	s.persistRecord(f)

	return f, nil
}

// Release drops one reference taken by Acquire.
func (s *CacheService) Release(f *CacheFile) {
	if f == nil {
		return
	}
	f.release()
}

// Evict invalidates one cache file.
func (s *CacheService) Evict(key CacheKey) {
	k := key.String()

	s.l.Lock()
	f := s.files[k]
	delete(s.files, k)
	s.l.Unlock()

	s.budget.Del(k)

	if f != nil && f.markEvicted() {
		s.destroyFile(f)
	}
}

// EvictPrefix invalidates every cache file whose key starts with the prefix,
// used when a mount is deleted.
func (s *CacheService) EvictPrefix(prefix string) int {
	s.l.RLock()
	keys := []CacheKey{}
	for k, f := range s.files {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, f.key)
		}
	}
	s.l.RUnlock()

	for _, key := range keys {
		s.Evict(key)
	}
	return len(keys)
}

// Clear drops the whole cache.
func (s *CacheService) Clear() int {
	return s.EvictPrefix("")
}

// onBudgetEvict runs on ristretto's eviction path. It also fires while the
// budget keeper shuts down, at that point the files must stay on disk for
// the next start.
func (s *CacheService) onBudgetEvict(f *CacheFile) {
	k := f.key.String()

	s.l.Lock()
	if s.closed {
		s.l.Unlock()
		return
	}
	if current, ok := s.files[k]; ok && current == f {
		delete(s.files, k)
	}
	s.l.Unlock()

	stats.Increment("cache", "evict")

	if f.markEvicted() {
		s.destroyFile(f)
	}
}

// onBudgetReject runs when the admission policy refuses an entry. Unlike an
// eviction the file stays readable for current holders, it is only dropped
// once the last reference goes away.
func (s *CacheService) onBudgetReject(f *CacheFile) {
	k := f.key.String()

	s.l.Lock()
	if s.closed {
		s.l.Unlock()
		return
	}
	if current, ok := s.files[k]; ok && current == f {
		delete(s.files, k)
	}
	s.l.Unlock()

	stats.Increment("cache", "rejected")

	if f.markTransient() {
		s.destroyFile(f)
	}
}

// destroyFile removes the local file and its persisted record. Only called
// for evicted files with zero references.
func (s *CacheService) destroyFile(f *CacheFile) {
	if err := f.close(); err != nil {
		log.Error("close cache file: ", err)
	}
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		log.Error("remove cache file: ", err)
	}
	if err := kv.DeleteKey(indexBucket, []byte(f.key.String())); err != nil {
		log.Error("delete cache record: ", err)
	}
	log.Debugf("dropped cache file [%v]", f.key)
}

func (s *CacheService) checkFreeDiskSpace() error {
	if s.cfg.MinFreeDiskSpace <= 0 {
		return nil
	}
	usage, err := disk.Usage(s.cfg.Path)
	if err != nil {
		log.Warn("check cache volume: ", err)
		return nil
	}
	if usage.Free < uint64(s.cfg.MinFreeDiskSpace) {
		return ErrDiskFull
	}
	return nil
}

// Sync flushes dirty cache file records to the kv index.
func (s *CacheService) Sync() {
	s.l.RLock()
	files := make([]*CacheFile, 0, len(s.files))
	for _, f := range s.files {
		files = append(files, f)
	}
	s.l.RUnlock()

	for _, f := range files {
		if f.dirty.Swap(false) {
			s.persistRecord(f)
		}
	}
}

func (s *CacheService) persistRecord(f *CacheFile) {
	record := fileRecord{
		Key:       f.key,
		FileName:  f.fileName,
		Length:    f.length,
		Regions:   f.tracker.Regions(),
		Digests:   f.regionDigests(),
		UpdatedAt: time.Now(),
	}
	data, err := json.Marshal(record)
	if err != nil {
		log.Error("marshal cache record: ", err)
		return
	}
	if err := kv.AddValueCompress(indexBucket, []byte(f.key.String()), data); err != nil {
		log.Error("persist cache record: ", err)
	}
}

// recover joins the persisted records with the files on disk, dropping the
// orphans of either side.
func (s *CacheService) recover() error {
	recordKeys := [][]byte{}
	err := kv.IterateBucket(indexBucket, func(key, value []byte) bool {
		k := make([]byte, len(key))
		copy(k, key)
		recordKeys = append(recordKeys, k)
		return true
	})
	if err != nil {
		return err
	}

	known := map[string]bool{}
	restored := 0

	for _, recordKey := range recordKeys {
		data, err := kv.GetCompressedValue(indexBucket, recordKey)
		if err != nil || data == nil {
			kv.DeleteKey(indexBucket, recordKey)
			continue
		}

		record := fileRecord{}
		if err := json.Unmarshal(data, &record); err != nil {
			log.Warnf("drop corrupt cache record [%s]: %v", string(recordKey), err)
			kv.DeleteKey(indexBucket, recordKey)
			continue
		}

		filePath := path.Join(s.cfg.Path, record.FileName)
		info, err := os.Stat(filePath)
		if err != nil || info.Size() != record.Length {
			log.Debugf("drop stale cache record [%v]", record.Key)
			kv.DeleteKey(indexBucket, recordKey)
			if err == nil {
				os.Remove(filePath)
			}
			continue
		}

		f, err := newCacheFile(record.Key, record.FileName, filePath, record.Length, s.cfg.RegionSize, nil)
		if err != nil {
			log.Warn("reopen cache file: ", err)
			continue
		}
		f.onIdle = s.destroyFile
		f.restore(record.Regions, record.Digests)

		k := record.Key.String()
		s.l.Lock()
		s.files[k] = f
		s.l.Unlock()

		if !s.budget.Set(k, f, record.Length) {
			// refused outright, nothing holds a reference so the file and
			// its record go right away
			s.onBudgetReject(f)
			continue
		}

		known[record.FileName] = true
		restored++
	}

	// drop cache files nothing refers to
	entries, err := os.ReadDir(s.cfg.Path)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".cache") {
			continue
		}
		if !known[entry.Name()] {
			log.Debugf("remove orphan cache file [%v]", entry.Name())
			os.Remove(path.Join(s.cfg.Path, entry.Name()))
		}
	}

	if restored > 0 {
		log.Infof("restored %v cache files from the local index", restored)
	}
	stats.Gauge("cache", "files", int64(restored))

	return nil
}

// CachedBytes returns the number of locally present bytes.
func (s *CacheService) CachedBytes() int64 {
	s.l.RLock()
	defer s.l.RUnlock()
	var total int64
	for _, f := range s.files {
		total += f.tracker.Bytes()
	}
	return total
}

// FileCount returns the number of tracked cache files.
func (s *CacheService) FileCount() int {
	s.l.RLock()
	defer s.l.RUnlock()
	return len(s.files)
}

// Close syncs the index and shuts the service down.
func (s *CacheService) Close() error {
	s.l.Lock()
	if s.closed {
		s.l.Unlock()
		return nil
	}
	s.closed = true
	s.l.Unlock()

	close(s.stopCh)
	s.wg.Wait()

	s.Sync()

	s.budget.Close()

	s.l.Lock()
	defer s.l.Unlock()
	errs := errors.Errors{}
	for _, f := range s.files {
		if err := f.close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.files = map[string]*CacheFile{}

	return errs.Err()
}
