/* Copyright © INFINI Ltd. All rights reserved.
 * web: https://infinilabs.com
 * mail: hello#infini.ltd */

package blobstore

import (
	"context"
	"io"

	"infini.sh/snapcache/core/errors"
)

// ObjectInfo describes a single blob within a repository.
type ObjectInfo struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// BlobStore is a read-only view over one snapshot repository's blob container.
type BlobStore interface {
	// Stat returns metadata of the named blob.
	Stat(ctx context.Context, name string) (ObjectInfo, error)

	// Get streams the whole blob.
	Get(ctx context.Context, name string) (io.ReadCloser, error)

	// GetRange streams length bytes of the blob starting at offset.
	GetRange(ctx context.Context, name string, offset, length int64) (io.ReadCloser, error)

	// List returns the blobs under the given name prefix.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)

	// Exists reports whether the named blob is present.
	Exists(ctx context.Context, name string) (bool, error)
}

var stores = map[string]BlobStore{}

func Register(repository string, store BlobStore) {
	_, ok := stores[repository]
	if ok {
		panic(errors.Errorf("blob store [%v] already registered", repository))
	}
	stores[repository] = store
}

// Get returns the blob store registered for the repository, it panics when
// the repository was never configured.
func Get(repository string) BlobStore {
	store, ok := stores[repository]
	if !ok {
		panic(errors.Errorf("blob store [%v] was not found", repository))
	}
	return store
}

// Lookup is the non-panicking variant of Get.
func Lookup(repository string) (BlobStore, bool) {
	store, ok := stores[repository]
	return store, ok
}

// Stores returns the registered repository names.
func Stores() []string {
	names := []string{}
	for k := range stores {
		names = append(names, k)
	}
	return names
}
