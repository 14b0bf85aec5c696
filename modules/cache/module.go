/* Copyright © INFINI Ltd. All rights reserved.
 * web: https://infinilabs.com
 * mail: hello#infini.ltd */

package cache

import (
	"path"

	"infini.sh/snapcache/core/errors"
	"infini.sh/snapcache/core/global"
)

var service *CacheService

// GetService returns the running cache service, it panics before the module
// was started.
func GetService() *CacheService {
	if service == nil {
		panic(errors.New("cache service is not ready"))
	}
	return service
}

type CacheModule struct {
	cfg *CacheConfig
}

func (module *CacheModule) Name() string {
	return "cache"
}

func (module *CacheModule) Setup() {
	module.cfg = defaultConfig()
	ok, err := global.Env().ParseConfig("cache", module.cfg)
	if ok && err != nil {
		panic(err)
	}
	if module.cfg.Path == "" {
		module.cfg.Path = path.Join(global.Env().GetDataDir(), "cache")
	}
}

func (module *CacheModule) Start() error {
	if !module.cfg.Enabled {
		return nil
	}

	svc, err := NewCacheService(module.cfg)
	if err != nil {
		return err
	}
	if err := svc.Open(); err != nil {
		return err
	}
	service = svc
	return nil
}

func (module *CacheModule) Stop() error {
	if service == nil {
		return nil
	}
	err := service.Close()
	service = nil
	return err
}
