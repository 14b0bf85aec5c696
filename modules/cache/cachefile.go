/* Copyright © INFINI Ltd. All rights reserved.
 * web: https://infinilabs.com
 * mail: hello#infini.ltd */

package cache

import (
	"context"
	"io"
	"os"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/OneOfOne/xxhash"
	log "github.com/cihub/seelog"
	"golang.org/x/sync/singleflight"
	"infini.sh/snapcache/core/errors"
	"infini.sh/snapcache/core/stats"
)

var (
	ErrCacheClosed = errors.New("cache service is closed")
	ErrFileEvicted = errors.New("cache file was evicted")
	ErrOutOfBounds = errors.New("read beyond end of file")
	ErrDiskFull    = errors.New("cache volume is below the free disk watermark")
)

// RegionSource fetches missing byte ranges of one remote blob.
type RegionSource interface {
	ReadRegion(ctx context.Context, offset, length int64) (io.ReadCloser, error)
}

// CacheFile is a local sparse file caching one remote blob. Missing regions
// are fetched on demand, a region is fetched at most once concurrently.
type CacheFile struct {
	key        CacheKey
	fileName   string
	path       string
	length     int64
	regionSize int64

	file    *os.File
	tracker *RegionTracker
	group   singleflight.Group

	sl     sync.RWMutex
	source RegionSource

	dl      sync.Mutex
	digests map[int64]uint64

	ml      sync.Mutex
	refs    int32
	evicted bool
	// transient files were refused admission by the budget keeper and are
	// dropped once the last reference is released
	transient bool

	dirty atomic.Bool

	// invoked when an evicted file drops its last reference
	onIdle func(*CacheFile)
}

func newCacheFile(key CacheKey, fileName, path string, length, regionSize int64, source RegionSource) (*CacheFile, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}
	if err = file.Truncate(length); err != nil {
		file.Close()
		return nil, err
	}

	return &CacheFile{
		key:        key,
		fileName:   fileName,
		path:       path,
		length:     length,
		regionSize: regionSize,
		file:       file,
		tracker:    NewRegionTracker(length),
		source:     source,
		digests:    map[int64]uint64{},
	}, nil
}

func (f *CacheFile) Key() CacheKey {
	return f.key
}

func (f *CacheFile) Length() int64 {
	return f.length
}

func (f *CacheFile) Tracker() *RegionTracker {
	return f.tracker
}

// setSource attaches the remote source, recovered files start without one.
func (f *CacheFile) setSource(source RegionSource) {
	f.sl.Lock()
	if f.source == nil && source != nil {
		f.source = source
	}
	f.sl.Unlock()
}

func (f *CacheFile) getSource() RegionSource {
	f.sl.RLock()
	defer f.sl.RUnlock()
	return f.source
}

// tryRetain takes a reference, it fails once the file was evicted.
func (f *CacheFile) tryRetain() bool {
	f.ml.Lock()
	defer f.ml.Unlock()
	if f.evicted {
		return false
	}
	f.refs++
	return true
}

func (f *CacheFile) release() {
	var idle bool
	f.ml.Lock()
	f.refs--
	if f.refs < 0 {
		f.ml.Unlock()
		panic(errors.Errorf("cache file [%v] released more often than retained", f.key))
	}
	idle = f.refs == 0 && (f.evicted || f.transient)
	f.ml.Unlock()

	if idle && f.onIdle != nil {
		f.onIdle(f)
	}
}

// markEvicted flags the file, returns true when it is already idle and can
// be deleted right away.
func (f *CacheFile) markEvicted() bool {
	f.ml.Lock()
	defer f.ml.Unlock()
	if f.evicted {
		return false
	}
	f.evicted = true
	return f.refs == 0
}

// markTransient flags the file, returns true when it is already idle and
// can be deleted right away.
func (f *CacheFile) markTransient() bool {
	f.ml.Lock()
	defer f.ml.Unlock()
	f.transient = true
	return f.refs == 0
}

func (f *CacheFile) isEvicted() bool {
	f.ml.Lock()
	defer f.ml.Unlock()
	return f.evicted
}

// ReadAt serves p from the cache file, fetching the covering regions first
// when they are missing. Short reads at the end of file return io.EOF.
func (f *CacheFile) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if off < 0 || off > f.length {
		return 0, ErrOutOfBounds
	}
	if off == f.length {
		return 0, io.EOF
	}

	end := off + int64(len(p))
	short := false
	if end > f.length {
		end = f.length
		short = true
	}

	if err := f.Ensure(ctx, off, end); err != nil {
		return 0, err
	}

	n, err := f.file.ReadAt(p[:end-off], off)
	if err != nil {
		return n, err
	}

	stats.IncrementBy("cache", "bytes_read", int64(n))

	if short {
		return n, io.EOF
	}
	return n, nil
}

// Ensure fetches all regions covering [start, end) that are not yet present.
func (f *CacheFile) Ensure(ctx context.Context, start, end int64) error {
	if f.isEvicted() {
		return ErrFileEvicted
	}
	if end > f.length {
		end = f.length
	}
	if start >= end {
		return nil
	}

	alignedStart := (start / f.regionSize) * f.regionSize
	for regionStart := alignedStart; regionStart < end; regionStart += f.regionSize {
		if err := f.fetchRegion(ctx, regionStart); err != nil {
			return err
		}
	}
	return nil
}

// EnsureAll fetches the whole file, used for small files and prewarming.
func (f *CacheFile) EnsureAll(ctx context.Context) error {
	return f.Ensure(ctx, 0, f.length)
}

func (f *CacheFile) fetchRegion(ctx context.Context, regionStart int64) error {
	regionEnd := min64(regionStart+f.regionSize, f.length)
	if f.tracker.Contains(regionStart, regionEnd) {
		return nil
	}

	_, err, _ := f.group.Do(strconv.FormatInt(regionStart, 10), func() (interface{}, error) {
		// may have been filled while we waited on the flight group
		if f.tracker.Contains(regionStart, regionEnd) {
			return nil, nil
		}
		if f.isEvicted() {
			return nil, ErrFileEvicted
		}

		source := f.getSource()
		if source == nil {
			return nil, errors.Errorf("cache file [%v] has no source attached", f.key)
		}

		length := regionEnd - regionStart
		reader, err := source.ReadRegion(ctx, regionStart, length)
		if err != nil {
			return nil, errors.Wrapf(err, "fetch region [%v-%v] of [%v]", regionStart, regionEnd, f.key)
		}
		defer reader.Close()

		hasher := xxhash.New64()
		written, err := f.writeRegion(regionStart, io.TeeReader(reader, hasher))
		if err != nil {
			return nil, errors.Wrapf(err, "write region [%v-%v] of [%v]", regionStart, regionEnd, f.key)
		}
		if written != length {
			return nil, errors.Errorf("short region fetch of [%v]: got %v of %v bytes at %v", f.key, written, length, regionStart)
		}

		f.dl.Lock()
		f.digests[regionStart] = hasher.Sum64()
		f.dl.Unlock()

		// ranges become visible to readers only after the bytes hit the file
		f.tracker.Add(regionStart, regionEnd)
		f.dirty.Store(true)

		stats.IncrementBy("cache", "bytes_fetched", length)
		log.Tracef("fetched region [%v-%v] of [%v]", regionStart, regionEnd, f.key)

		return nil, nil
	})
	return err
}

func (f *CacheFile) writeRegion(offset int64, reader io.Reader) (int64, error) {
	buf := make([]byte, 128*1024)
	var written int64
	for {
		n, err := reader.Read(buf)
		if n > 0 {
			if _, werr := f.file.WriteAt(buf[:n], offset+written); werr != nil {
				return written, werr
			}
			written += int64(n)
		}
		if err == io.EOF {
			return written, nil
		}
		if err != nil {
			return written, err
		}
	}
}

func (f *CacheFile) regionDigests() []RegionDigest {
	f.dl.Lock()
	defer f.dl.Unlock()
	out := make([]RegionDigest, 0, len(f.digests))
	for start, sum := range f.digests {
		out = append(out, RegionDigest{Start: start, Sum: sum})
	}
	return out
}

// restore re-adds persisted regions, keeping only those whose on-disk bytes
// still hash to the digest recorded at fetch time. Dropped regions are
// refetched on the next read.
func (f *CacheFile) restore(regions []Region, digests []RegionDigest) {
	recorded := map[int64]uint64{}
	for _, d := range digests {
		recorded[d.Start] = d.Sum
	}

	dropped := false
	for _, r := range regions {
		for regionStart := r.Start; regionStart < r.End; regionStart += f.regionSize {
			regionEnd := min64(regionStart+f.regionSize, f.length)
			sum, ok := recorded[regionStart]
			if !ok {
				dropped = true
				continue
			}
			actual, err := f.digestRegion(regionStart, regionEnd)
			if err != nil || actual != sum {
				log.Warnf("drop corrupt region [%v-%v] of [%v]", regionStart, regionEnd, f.key)
				dropped = true
				continue
			}
			f.tracker.Add(regionStart, regionEnd)
			f.dl.Lock()
			f.digests[regionStart] = sum
			f.dl.Unlock()
		}
	}
	if dropped {
		f.dirty.Store(true)
	}
}

func (f *CacheFile) digestRegion(start, end int64) (uint64, error) {
	hasher := xxhash.New64()
	if _, err := io.Copy(hasher, io.NewSectionReader(f.file, start, end-start)); err != nil {
		return 0, err
	}
	return hasher.Sum64(), nil
}

func (f *CacheFile) close() error {
	if f.file == nil {
		return nil
	}
	err := f.file.Close()
	f.file = nil
	return err
}
