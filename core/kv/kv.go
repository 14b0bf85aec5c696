/* Copyright © INFINI LTD. All rights reserved.
 * Web: https://infinilabs.com
 * Email: hello#infini.ltd */

package kv

import (
	lz4 "github.com/bkaradzic/go-lz4"
	log "github.com/cihub/seelog"
	"infini.sh/snapcache/core/errors"
)

type KVStore interface {
	Open() error

	Close() error

	GetValue(bucket string, key []byte) ([]byte, error)

	AddValue(bucket string, key []byte, value []byte) error

	ExistsKey(bucket string, key []byte) (bool, error)

	DeleteKey(bucket string, key []byte) error

	IterateBucket(bucket string, visit func(key, value []byte) bool) error
}

var handler KVStore

func getKVHandler() KVStore {

	if handler == nil {
		panic(errors.New("kv store handler is not registered"))
	}
	return handler
}

func GetValue(bucket string, key []byte) ([]byte, error) {
	return getKVHandler().GetValue(bucket, key)
}

func GetCompressedValue(bucket string, key []byte) ([]byte, error) {
	data, err := getKVHandler().GetValue(bucket, key)
	if err != nil || data == nil {
		return data, err
	}
	data, err = lz4.Decode(nil, data)
	if err != nil {
		log.Error("data decompress error, key: ", string(key), ",", err)
		return nil, err
	}
	return data, nil
}

func AddValueCompress(bucket string, key []byte, value []byte) error {
	value, err := lz4.Encode(nil, value)
	if err != nil {
		log.Error("data compress error, key: ", string(key), ",", err)
		return err
	}
	return getKVHandler().AddValue(bucket, key, value)
}

func AddValue(bucket string, key []byte, value []byte) error {
	return getKVHandler().AddValue(bucket, key, value)
}

func ExistsKey(bucket string, key []byte) (bool, error) {
	return getKVHandler().ExistsKey(bucket, key)
}

func DeleteKey(bucket string, key []byte) error {
	return getKVHandler().DeleteKey(bucket, key)
}

// IterateBucket walks all entries of a bucket, stopping when visit returns false.
func IterateBucket(bucket string, visit func(key, value []byte) bool) error {
	return getKVHandler().IterateBucket(bucket, visit)
}

var stores = map[string]KVStore{}

func Register(name string, h KVStore) {
	log.Debugf("register kv store with type [%s]", name)
	_, ok := stores[name]
	if ok {
		panic(errors.Errorf("KV handler with same name: %v already exists", name))
	}

	stores[name] = h

	handler = h
}
