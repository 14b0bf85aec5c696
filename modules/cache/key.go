/* Copyright © INFINI Ltd. All rights reserved.
 * web: https://infinilabs.com
 * mail: hello#infini.ltd */

package cache

import (
	"fmt"
	"time"
)

// CacheKey identifies one cached blob, a single file of one shard of one
// snapshot within one repository.
type CacheKey struct {
	Repository string `json:"repository"`
	Snapshot   string `json:"snapshot"`
	Index      string `json:"index"`
	Shard      int    `json:"shard"`
	Name       string `json:"name"`
}

func (k CacheKey) String() string {
	return fmt.Sprintf("%s/%s/%s/%d/%s", k.Repository, k.Snapshot, k.Index, k.Shard, k.Name)
}

// fileRecord is the persisted form of one cache file, stored in the kv
// index so a restart resumes with a warm cache.
type fileRecord struct {
	Key       CacheKey       `json:"key"`
	FileName  string         `json:"file_name"`
	Length    int64          `json:"length"`
	Regions   []Region       `json:"regions"`
	Digests   []RegionDigest `json:"digests,omitempty"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// RegionDigest records the verification hash of one fully fetched region.
type RegionDigest struct {
	Start int64  `json:"start"`
	Sum   uint64 `json:"sum"`
}

const indexBucket = "cache_index"
