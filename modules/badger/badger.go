/* Copyright © INFINI LTD. All rights reserved.
 * Web: https://infinilabs.com
 * Email: hello#infini.ltd */

package badger

import (
	"path"

	log "github.com/cihub/seelog"
	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"infini.sh/snapcache/core/errors"
	"infini.sh/snapcache/core/global"
	"infini.sh/snapcache/core/kv"
)

type Config struct {
	Enabled bool `config:"enabled"`

	Path         string `config:"path"`
	InMemoryMode bool   `config:"memory_mode"`
	SyncWrites   bool   `config:"sync_writes"`
	MemTableSize int64  `config:"mem_table_size"`

	ValueLogFileSize   int64  `config:"value_log_file_size"`
	ValueThreshold     int64  `config:"value_threshold"`
	ValueLogMaxEntries uint32 `config:"value_log_max_entries"`
}

type Module struct {
	cfg    *Config
	db     *badger.DB
	closed bool
}

func (module *Module) Name() string {
	return "badger"
}

func (module *Module) Setup() {
	module.cfg = &Config{
		Enabled:            true,
		MemTableSize:       10 * 1024 * 1024,
		ValueLogFileSize:   1<<30 - 1,
		ValueThreshold:     1048576,
		ValueLogMaxEntries: 1000000,
	}
	ok, err := global.Env().ParseConfig("badger", module.cfg)
	if ok && err != nil {
		panic(err)
	}
	if module.cfg.Path == "" {
		module.cfg.Path = path.Join(global.Env().GetDataDir(), "badger")
	}

	if module.cfg.Enabled {
		kv.Register("badger", module)
	}
}

func (module *Module) Start() error {
	if module.cfg == nil || !module.cfg.Enabled {
		return nil
	}
	module.closed = false
	return module.Open()
}

func (module *Module) Stop() error {
	if module.cfg == nil || !module.cfg.Enabled {
		return nil
	}
	module.closed = true
	return module.Close()
}

func (module *Module) Open() error {
	log.Debugf("init badger database [%v]", module.cfg.Path)

	option := badger.DefaultOptions(module.cfg.Path)
	option.InMemory = module.cfg.InMemoryMode
	option.MemTableSize = module.cfg.MemTableSize
	option.ValueLogMaxEntries = module.cfg.ValueLogMaxEntries
	option.ValueThreshold = module.cfg.ValueThreshold
	option.NumGoroutines = 1
	option.Compression = options.None
	option.MetricsEnabled = false
	option.SyncWrites = module.cfg.SyncWrites
	option.CompactL0OnClose = true
	option.ValueLogFileSize = module.cfg.ValueLogFileSize

	if !global.Env().IsDebug {
		option.Logger = nil
	}

	db, err := badger.Open(option)
	if err != nil {
		return err
	}
	module.db = db
	return nil
}

func (module *Module) Close() error {
	if module.db == nil {
		return nil
	}
	err := module.db.Close()
	module.db = nil
	return err
}

func (module *Module) mustGetDB() *badger.DB {
	if module.closed || module.db == nil {
		panic(errors.New("badger module closed"))
	}
	return module.db
}

// keys are stored flat, the bucket becomes a key prefix
func bucketKey(bucket string, key []byte) []byte {
	out := make([]byte, 0, len(bucket)+1+len(key))
	out = append(out, bucket...)
	out = append(out, ':')
	out = append(out, key...)
	return out
}

func (module *Module) GetValue(bucket string, key []byte) ([]byte, error) {
	var value []byte
	err := module.mustGetDB().View(func(txn *badger.Txn) error {
		item, err := txn.Get(bucketKey(bucket, key))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return nil
			}
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	return value, err
}

func (module *Module) AddValue(bucket string, key []byte, value []byte) error {
	return module.mustGetDB().Update(func(txn *badger.Txn) error {
		return txn.Set(bucketKey(bucket, key), value)
	})
}

func (module *Module) ExistsKey(bucket string, key []byte) (bool, error) {
	exists := false
	err := module.mustGetDB().View(func(txn *badger.Txn) error {
		_, err := txn.Get(bucketKey(bucket, key))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return nil
			}
			return err
		}
		exists = true
		return nil
	})
	return exists, err
}

func (module *Module) DeleteKey(bucket string, key []byte) error {
	return module.mustGetDB().Update(func(txn *badger.Txn) error {
		return txn.Delete(bucketKey(bucket, key))
	})
}

func (module *Module) IterateBucket(bucket string, visit func(key, value []byte) bool) error {
	prefix := bucketKey(bucket, nil)
	return module.mustGetDB().View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			key := item.KeyCopy(nil)
			if !visit(key[len(prefix):], value) {
				return nil
			}
		}
		return nil
	})
}
