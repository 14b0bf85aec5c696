/* Copyright © INFINI Ltd. All rights reserved.
 * web: https://infinilabs.com
 * mail: hello#infini.ltd */

package mount

import (
	"context"

	"infini.sh/snapcache/core/errors"
	"infini.sh/snapcache/core/global"
	"infini.sh/snapcache/modules/cache"
)

var manager *Manager

// GetManager returns the running mount manager, it panics before the module
// was started.
func GetManager() *Manager {
	if manager == nil {
		panic(errors.New("mount manager is not ready"))
	}
	return manager
}

type MountConfig struct {
	Enabled        bool `config:"enabled"`
	PrewarmWorkers int  `config:"prewarm_workers"`
}

type MountModule struct {
	cfg *MountConfig
}

func (module *MountModule) Name() string {
	return "mount"
}

func (module *MountModule) Setup() {
	module.cfg = &MountConfig{
		Enabled:        true,
		PrewarmWorkers: 2,
	}
	ok, err := global.Env().ParseConfig("mount", module.cfg)
	if ok && err != nil {
		panic(err)
	}
}

// Start depends on the cache module being started first.
func (module *MountModule) Start() error {
	if !module.cfg.Enabled {
		return nil
	}
	manager = NewManager(cache.GetService(), module.cfg.PrewarmWorkers)
	return manager.Restore(context.Background())
}

func (module *MountModule) Stop() error {
	if manager == nil {
		return nil
	}
	manager.Close()
	manager = nil
	return nil
}
