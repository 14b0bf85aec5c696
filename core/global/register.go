/* Copyright © INFINI Ltd. All rights reserved.
 * web: https://infinilabs.com
 * mail: hello#infini.ltd */

package global

import (
	"fmt"
	"sync"

	"infini.sh/snapcache/core/env"
	"infini.sh/snapcache/core/errors"
)

// RegisterKey is used to register custom value and retrieve back
type RegisterKey string

type registrar struct {
	values map[RegisterKey]interface{}
	sync.RWMutex
}

var (
	r = &registrar{values: map[RegisterKey]interface{}{}}
	l sync.RWMutex
	e *env.Env
)

// Register is used to register your own key and value
func Register(k RegisterKey, v interface{}) {
	r.Lock()
	defer r.Unlock()
	r.values[k] = v
}

// Lookup returns the registered value, or nil
func Lookup(k RegisterKey) interface{} {
	r.RLock()
	defer r.RUnlock()
	return r.values[k]
}

func MustLookup(k RegisterKey) interface{} {
	v := Lookup(k)
	if v == nil {
		panic(errors.New(fmt.Sprintf("invalid key: %v", k)))
	}
	return v
}

// RegisterEnv is used to register the environment
func RegisterEnv(t *env.Env) {
	l.Lock()
	defer l.Unlock()
	e = t
}

// Env returns the registered environment
func Env() *env.Env {
	l.RLock()
	defer l.RUnlock()
	if e == nil {
		panic(errors.New("env is not registered"))
	}
	return e
}
