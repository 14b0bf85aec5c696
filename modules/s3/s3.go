/* Copyright © INFINI Ltd. All rights reserved.
 * web: https://infinilabs.com
 * mail: hello#infini.ltd */

package s3

import (
	"context"
	"io"
	"strings"

	log "github.com/cihub/seelog"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"infini.sh/snapcache/core/blobstore"
	"infini.sh/snapcache/core/errors"
	"infini.sh/snapcache/core/global"
)

type S3Config struct {
	Endpoint     string `config:"endpoint" json:"endpoint,omitempty"`
	AccessKey    string `config:"access_key" json:"access_key,omitempty"`
	AccessSecret string `config:"access_secret" json:"access_secret,omitempty"`
	Token        string `config:"token" json:"token,omitempty"`
	SSL          bool   `config:"ssl" json:"ssl,omitempty"`
	Location     string `config:"location" json:"location,omitempty"`
	Bucket       string `config:"bucket" json:"bucket,omitempty"`
	BasePath     string `config:"base_path" json:"base_path,omitempty"`
}

type S3Module struct {
	S3Configs map[string]S3Config
}

// S3Store serves ranged reads of one repository bucket.
type S3Store struct {
	S3Config    *S3Config
	minioClient *minio.Client
}

func NewS3Store(cfg *S3Config) (*S3Store, error) {

	var err error
	store := &S3Store{S3Config: cfg}
	store.minioClient, err = minio.New(store.S3Config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(store.S3Config.AccessKey, store.S3Config.AccessSecret, store.S3Config.Token),
		Secure: store.S3Config.SSL,
	})

	if err != nil {
		return nil, err
	}
	return store, nil
}

func (store *S3Store) objectName(name string) string {
	if store.S3Config.BasePath == "" {
		return name
	}
	return strings.TrimSuffix(store.S3Config.BasePath, "/") + "/" + name
}

func (store *S3Store) Stat(ctx context.Context, name string) (blobstore.ObjectInfo, error) {
	info, err := store.minioClient.StatObject(ctx, store.S3Config.Bucket, store.objectName(name), minio.StatObjectOptions{})
	if err != nil {
		return blobstore.ObjectInfo{}, err
	}
	return blobstore.ObjectInfo{Name: name, Size: info.Size}, nil
}

func (store *S3Store) Get(ctx context.Context, name string) (io.ReadCloser, error) {
	log.Tracef("s3 fetching object: %v", name)
	return store.minioClient.GetObject(ctx, store.S3Config.Bucket, store.objectName(name), minio.GetObjectOptions{})
}

func (store *S3Store) GetRange(ctx context.Context, name string, offset, length int64) (io.ReadCloser, error) {
	if length <= 0 {
		return nil, errors.Errorf("invalid range length: %v", length)
	}

	log.Tracef("s3 fetching object: %v, offset: %v, length: %v", name, offset, length)

	opts := minio.GetObjectOptions{}
	err := opts.SetRange(offset, offset+length-1)
	if err != nil {
		return nil, err
	}
	return store.minioClient.GetObject(ctx, store.S3Config.Bucket, store.objectName(name), opts)
}

func (store *S3Store) List(ctx context.Context, prefix string) ([]blobstore.ObjectInfo, error) {
	objects := []blobstore.ObjectInfo{}
	basePrefix := store.objectName(prefix)
	for object := range store.minioClient.ListObjects(ctx, store.S3Config.Bucket, minio.ListObjectsOptions{
		Prefix:    basePrefix,
		Recursive: true,
	}) {
		if object.Err != nil {
			return nil, object.Err
		}
		name := object.Key
		if store.S3Config.BasePath != "" {
			name = strings.TrimPrefix(name, strings.TrimSuffix(store.S3Config.BasePath, "/")+"/")
		}
		objects = append(objects, blobstore.ObjectInfo{Name: name, Size: object.Size})
	}
	return objects, nil
}

func (store *S3Store) Exists(ctx context.Context, name string) (bool, error) {
	_, err := store.minioClient.StatObject(ctx, store.S3Config.Bucket, store.objectName(name), minio.StatObjectOptions{})
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (module *S3Module) Name() string {
	return "s3"
}

func (module *S3Module) Setup() {
	module.S3Configs = map[string]S3Config{}
	ok, err := global.Env().ParseConfig("s3", &module.S3Configs)
	if ok && err != nil {
		panic(err)
	}
	if ok {
		for k, v := range module.S3Configs {
			if v.Bucket == "" {
				panic(errors.Errorf("s3 repository [%v] is missing bucket", k))
			}
			store, err := NewS3Store(&v)
			if err != nil {
				log.Error(err)
				continue
			}
			blobstore.Register(k, store)
		}
	}
}

func (module *S3Module) Start() error {
	return nil
}

func (module *S3Module) Stop() error {
	return nil
}
