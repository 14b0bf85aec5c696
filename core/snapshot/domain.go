/* Copyright © INFINI Ltd. All rights reserved.
 * web: https://infinilabs.com
 * mail: hello#infini.ltd */

package snapshot

import (
	"fmt"
	"time"
)

const (
	// IndexBlob is the repository level catalog blob.
	IndexBlob = "index.json"

	// snapBlobFormat is the per shard file list blob, one per snapshot.
	snapBlobFormat = "indices/%s/%d/snap-%s.json"
)

// RepositoryIndex is the catalog of all snapshots held in one repository.
type RepositoryIndex struct {
	Snapshots []SnapshotInfo           `json:"snapshots"`
	Indices   map[string]IndexMetadata `json:"indices"`
}

// SnapshotInfo describes a single completed snapshot.
type SnapshotInfo struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	State   string    `json:"state"`
	Indices []string  `json:"indices"`
	EndTime time.Time `json:"end_time"`
}

// IndexMetadata maps a logical index name to its blob path id and layout.
type IndexMetadata struct {
	ID         string   `json:"id"`
	ShardCount int      `json:"shard_count"`
	Snapshots  []string `json:"snapshots"`
}

// ShardSnapshot is the file list of one shard within one snapshot.
type ShardSnapshot struct {
	Snapshot string     `json:"snapshot"`
	Index    string     `json:"index"`
	Shard    int        `json:"shard"`
	Files    []FileInfo `json:"files"`
}

// FileInfo describes one Lucene file captured in a shard snapshot.
type FileInfo struct {
	// Name is the blob name inside the shard container, e.g. "__0".
	Name string `json:"name"`
	// PhysicalName is the original file name, e.g. "_0.cfs".
	PhysicalName string `json:"physical_name"`
	Length       int64  `json:"length"`
	Checksum     string `json:"checksum,omitempty"`
	WrittenBy    string `json:"written_by,omitempty"`
}

// BlobPath returns the full blob name of the file inside the repository.
func (f *FileInfo) BlobPath(indexID string, shard int) string {
	return fmt.Sprintf("indices/%s/%d/%s", indexID, shard, f.Name)
}

func shardSnapshotBlob(indexID string, shard int, snapshotID string) string {
	return fmt.Sprintf(snapBlobFormat, indexID, shard, snapshotID)
}

// FindSnapshot resolves a snapshot by id or by name.
func (r *RepositoryIndex) FindSnapshot(idOrName string) (*SnapshotInfo, bool) {
	for i := range r.Snapshots {
		if r.Snapshots[i].ID == idOrName || r.Snapshots[i].Name == idOrName {
			return &r.Snapshots[i], true
		}
	}
	return nil, false
}
