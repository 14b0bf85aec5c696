/* Copyright © INFINI Ltd. All rights reserved.
 * web: https://infinilabs.com
 * mail: hello#infini.ltd */

package module

import (
	log "github.com/cihub/seelog"
	"infini.sh/snapcache/core/global"
)

// Module defines system level module structure
type Module interface {
	Setup()
	Start() error
	Stop() error
	Name() string
}

type Modules struct {
	system []Module
}

var m = &Modules{}

func RegisterSystemModule(mod Module) {
	m.system = append(m.system, mod)
}

func enabled(mod Module) bool {
	cfg := global.Env().GetModuleConfig(mod.Name())
	return cfg.Enabled(true)
}

func Start() {

	log.Trace("start to setup system modules")
	for _, v := range m.system {
		if enabled(v) {
			log.Trace("start to setup module: ", v.Name())
			v.Setup()
			log.Debug("setup module: ", v.Name())
		}
	}
	log.Debug("all system module setup finished")

	for _, v := range m.system {
		if enabled(v) {
			log.Trace("starting module: ", v.Name())
			err := v.Start()
			if err != nil {
				panic(err)
			}
			log.Debug("started module: ", v.Name())
		}
	}

	log.Info("all modules are started")
}

func Stop() {

	for i := len(m.system) - 1; i >= 0; i-- {
		v := m.system[i]
		if enabled(v) {
			log.Debug("stopping module: ", v.Name())
			err := v.Stop()
			if err != nil {
				log.Error(err)
			}
			log.Debug("stopped module: ", v.Name())
		}
	}

	log.Info("all modules are stopped")
}
