/* Copyright © INFINI Ltd. All rights reserved.
 * web: https://infinilabs.com
 * mail: hello#infini.ltd */

package env

import (
	"os"
	"path"
	"strings"

	log "github.com/cihub/seelog"
	"infini.sh/snapcache/core/config"
	"infini.sh/snapcache/core/errors"
)

// Env holds the instance level environment: application identity, resolved
// paths and the parsed configuration tree.
type Env struct {
	name    string
	desc    string
	version string
	commit  string

	IsDebug  bool
	LogLevel string

	SystemConfig *SystemConfig

	configFile   string
	configObject *config.Config
	moduleConfig map[string]*config.Config
}

// SystemConfig is the root layout of the yaml config file.
type SystemConfig struct {
	PathConfig PathConfig       `config:"path"`
	Modules    []*config.Config `config:"modules"`
}

type PathConfig struct {
	Data string `config:"data"`
	Logs string `config:"logs"`
}

func NewEnv(name, desc, version, commit string) *Env {
	return &Env{
		name:    strings.TrimSpace(name),
		desc:    strings.TrimSpace(desc),
		version: strings.TrimSpace(version),
		commit:  strings.TrimSpace(commit),
		SystemConfig: &SystemConfig{
			PathConfig: PathConfig{Data: "data", Logs: "log"},
		},
		moduleConfig: map[string]*config.Config{},
	}
}

func (env *Env) GetAppName() string {
	return env.name
}

func (env *Env) GetAppLowercaseName() string {
	return strings.ToLower(env.name)
}

func (env *Env) GetVersion() string {
	return env.version
}

func (env *Env) GetDataDir() string {
	return path.Join(env.SystemConfig.PathConfig.Data, env.GetAppLowercaseName())
}

func (env *Env) GetLogDir() string {
	return env.SystemConfig.PathConfig.Logs
}

func (env *Env) GetConfigFile() string {
	return env.configFile
}

func (env *Env) SetConfigFile(configFile string) *Env {
	env.configFile = configFile
	return env
}

// Init loads the config file, unpacks the system section and indexes the
// per-module config blocks by name.
func (env *Env) Init() *Env {
	err := env.loadConfig()
	if err != nil {
		panic(err)
	}

	os.MkdirAll(env.GetDataDir(), 0755)
	os.MkdirAll(env.GetLogDir(), 0755)

	return env
}

func (env *Env) loadConfig() error {
	if env.configFile == "" {
		env.configFile = env.GetAppLowercaseName() + ".yml"
	}

	cfg, err := config.LoadFile(env.configFile)
	if err != nil {
		return err
	}
	env.configObject = cfg

	if err := cfg.Unpack(env.SystemConfig); err != nil {
		return err
	}

	env.moduleConfig = parseModuleConfig(env.SystemConfig.Modules)

	return nil
}

func parseModuleConfig(cfgs []*config.Config) map[string]*config.Config {
	result := map[string]*config.Config{}

	for _, cfg := range cfgs {
		name := getModuleName(cfg)
		log.Trace(name, ",", cfg.Enabled(true))
		result[name] = cfg
	}

	return result
}

// GetModuleConfig return specify module's config
func (env *Env) GetModuleConfig(name string) *config.Config {
	return env.moduleConfig[strings.ToLower(name)]
}

// ParseConfig unpacks the named top-level config section into configInstance.
func (env *Env) ParseConfig(configKey string, configInstance interface{}) (exist bool, err error) {
	return ParseConfigSection(env.configObject, configKey, configInstance)
}

func ParseConfigSection(cfg *config.Config, configKey string, configInstance interface{}) (exist bool, err error) {
	if cfg == nil {
		log.Debugf("config: %s not found", configKey)
		return false, errors.Errorf("invalid config: %s", configKey)
	}

	if !cfg.HasField(configKey) {
		return false, nil
	}

	childConfig, err := cfg.Child(configKey, -1)
	if err != nil {
		return false, err
	}

	log.Tracef("found config: %s ", configKey)

	exist = true

	err = childConfig.Unpack(configInstance)
	log.Tracef("parsed config: %s, %v", configKey, configInstance)
	if err != nil {
		return exist, err
	}

	return exist, nil
}

func getModuleName(c *config.Config) string {
	cfgObj := struct {
		Module string `config:"name"`
	}{}

	if c == nil {
		return ""
	}
	if err := c.Unpack(&cfgObj); err != nil {
		return ""
	}

	return cfgObj.Module
}
