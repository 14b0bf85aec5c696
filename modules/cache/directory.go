/* Copyright © INFINI Ltd. All rights reserved.
 * web: https://infinilabs.com
 * mail: hello#infini.ltd */

package cache

import (
	"context"
	"io"
	"sort"

	log "github.com/cihub/seelog"
	"infini.sh/snapcache/core/blobstore"
	"infini.sh/snapcache/core/errors"
	"infini.sh/snapcache/core/snapshot"
	"infini.sh/snapcache/core/stats"
)

// ErrFileNotFound is returned by Open for names the shard snapshot does not
// contain.
var ErrFileNotFound = errors.New("file not found in shard snapshot")

// Directory exposes the files of one mounted shard snapshot for reading,
// backed by the cache service. When the cache refuses a file (closed, disk
// watermark) reads fall back to streaming straight from the blob store.
type Directory struct {
	service    *CacheService
	store      blobstore.BlobStore
	repository string
	snapshotID string
	indexID    string
	shard      int

	files map[string]*snapshot.FileInfo
}

func NewDirectory(service *CacheService, store blobstore.BlobStore, repository, snapshotID, indexID string, shardSnapshot *snapshot.ShardSnapshot) *Directory {
	files := map[string]*snapshot.FileInfo{}
	for i := range shardSnapshot.Files {
		f := &shardSnapshot.Files[i]
		files[f.PhysicalName] = f
	}
	return &Directory{
		service:    service,
		store:      store,
		repository: repository,
		snapshotID: snapshotID,
		indexID:    indexID,
		shard:      shardSnapshot.Shard,
		files:      files,
	}
}

func (d *Directory) Shard() int {
	return d.shard
}

// ListFiles returns the files of the shard snapshot sorted by name.
func (d *Directory) ListFiles() []snapshot.FileInfo {
	out := make([]snapshot.FileInfo, 0, len(d.files))
	for _, f := range d.files {
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PhysicalName < out[j].PhysicalName })
	return out
}

// KeyPrefix returns the cache key prefix shared by all files of this
// directory.
func (d *Directory) KeyPrefix() string {
	return CacheKey{
		Repository: d.repository,
		Snapshot:   d.snapshotID,
		Index:      d.indexID,
		Shard:      d.shard,
	}.String()
}

func (d *Directory) key(f *snapshot.FileInfo) CacheKey {
	return CacheKey{
		Repository: d.repository,
		Snapshot:   d.snapshotID,
		Index:      d.indexID,
		Shard:      d.shard,
		Name:       f.PhysicalName,
	}
}

// Open returns a read handle over the named file. The caller must Close it.
func (d *Directory) Open(ctx context.Context, name string) (*Input, error) {
	info, ok := d.files[name]
	if !ok {
		return nil, errors.Wrapf(ErrFileNotFound, "[%v] in shard [%v]", name, d.shard)
	}

	source := &blobSource{store: d.store, blob: info.BlobPath(d.indexID, d.shard)}

	cacheFile, err := d.service.Acquire(d.key(info), info.Length, source)
	if err != nil {
		if err == ErrDiskFull || err == ErrCacheClosed {
			log.Debugf("cache refused [%v], falling back to direct reads: %v", name, err)
			stats.Increment("cache", "direct")
			return &Input{ctx: ctx, info: info, source: source}, nil
		}
		return nil, err
	}

	// footer and metadata sized files are cheap to fetch whole
	if info.Length <= d.service.cfg.SmallFileSize {
		if err := cacheFile.EnsureAll(ctx); err != nil {
			d.service.Release(cacheFile)
			return nil, err
		}
	}

	return &Input{ctx: ctx, info: info, service: d.service, cacheFile: cacheFile, source: source}, nil
}

// Prewarm fetches every region of the named file into the cache.
func (d *Directory) Prewarm(ctx context.Context, name string) error {
	input, err := d.Open(ctx, name)
	if err != nil {
		return err
	}
	defer input.Close()

	if input.cacheFile == nil {
		return nil
	}
	return input.cacheFile.EnsureAll(ctx)
}

// blobSource adapts a blob store object to a RegionSource.
type blobSource struct {
	store blobstore.BlobStore
	blob  string
}

func (s *blobSource) ReadRegion(ctx context.Context, offset, length int64) (io.ReadCloser, error) {
	return s.store.GetRange(ctx, s.blob, offset, length)
}

// Input is a positional read handle over one file of a mounted shard
// snapshot. It implements io.Reader, io.ReaderAt, io.Seeker and io.Closer.
type Input struct {
	ctx  context.Context
	info *snapshot.FileInfo
	pos  int64

	service   *CacheService
	cacheFile *CacheFile

	// direct fallback when the file is not cached
	source RegionSource

	closed bool
}

func (in *Input) Name() string {
	return in.info.PhysicalName
}

func (in *Input) Length() int64 {
	return in.info.Length
}

func (in *Input) Read(p []byte) (int, error) {
	n, err := in.ReadAt(p, in.pos)
	in.pos += int64(n)
	return n, err
}

func (in *Input) ReadAt(p []byte, off int64) (int, error) {
	if in.closed {
		return 0, errors.New("input is closed")
	}

	if in.cacheFile != nil {
		return in.cacheFile.ReadAt(in.ctx, p, off)
	}
	return in.readDirect(p, off)
}

func (in *Input) readDirect(p []byte, off int64) (int, error) {
	if off < 0 || off > in.info.Length {
		return 0, ErrOutOfBounds
	}
	if off == in.info.Length {
		return 0, io.EOF
	}

	end := off + int64(len(p))
	short := false
	if end > in.info.Length {
		end = in.info.Length
		short = true
	}

	reader, err := in.source.ReadRegion(in.ctx, off, end-off)
	if err != nil {
		return 0, err
	}
	defer reader.Close()

	n, err := io.ReadFull(reader, p[:end-off])
	if err == io.ErrUnexpectedEOF || err == io.EOF {
		err = io.EOF
	}
	if err == nil && short {
		err = io.EOF
	}
	return n, err
}

func (in *Input) Seek(offset int64, whence int) (int64, error) {
	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = in.pos + offset
	case io.SeekEnd:
		pos = in.info.Length + offset
	default:
		return 0, errors.Errorf("invalid whence: %v", whence)
	}
	if pos < 0 {
		return 0, errors.Errorf("negative position: %v", pos)
	}
	in.pos = pos
	return pos, nil
}

func (in *Input) Close() error {
	if in.closed {
		return nil
	}
	in.closed = true
	if in.cacheFile != nil {
		in.service.Release(in.cacheFile)
		in.cacheFile = nil
	}
	return nil
}
