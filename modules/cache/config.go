/* Copyright © INFINI Ltd. All rights reserved.
 * web: https://infinilabs.com
 * mail: hello#infini.ltd */

package cache

type CacheConfig struct {
	Enabled bool `config:"enabled"`

	// Path is the cache directory holding the sparse cache files.
	Path string `config:"path"`

	// MaxSize is the total cache budget in bytes.
	MaxSize int64 `config:"max_size"`

	// RegionSize is the fetch granularity in bytes, cache misses are
	// filled one region at a time.
	RegionSize int64 `config:"region_size"`

	// SmallFileSize, files at or below this size are fetched whole on open.
	SmallFileSize int64 `config:"small_file_size"`

	// MinFreeDiskSpace stops admission of new cache files when the free
	// space of the cache volume falls below this watermark.
	MinFreeDiskSpace int64 `config:"min_free_disk_space"`

	// SyncIntervalInSeconds controls how often dirty cache file records
	// are flushed to the local kv index.
	SyncIntervalInSeconds int `config:"sync_interval_in_seconds"`
}

const (
	defaultMaxSize          = 10 * 1024 * 1024 * 1024
	defaultRegionSize       = 32 * 1024 * 1024
	defaultSmallFileSize    = 4 * 1024
	defaultMinFreeDiskSpace = 512 * 1024 * 1024
	defaultSyncInterval     = 60
)

func defaultConfig() *CacheConfig {
	return &CacheConfig{
		Enabled:               true,
		MaxSize:               defaultMaxSize,
		RegionSize:            defaultRegionSize,
		SmallFileSize:         defaultSmallFileSize,
		MinFreeDiskSpace:      defaultMinFreeDiskSpace,
		SyncIntervalInSeconds: defaultSyncInterval,
	}
}
