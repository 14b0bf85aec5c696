/* Copyright © INFINI Ltd. All rights reserved.
 * web: https://infinilabs.com
 * mail: hello#infini.ltd */

package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	log "github.com/cihub/seelog"
	"infini.sh/snapcache/core/env"
	"infini.sh/snapcache/core/global"
	"infini.sh/snapcache/core/logger"
	"infini.sh/snapcache/core/module"
	"infini.sh/snapcache/modules/api"
	"infini.sh/snapcache/modules/badger"
	"infini.sh/snapcache/modules/cache"
	"infini.sh/snapcache/modules/mount"
	"infini.sh/snapcache/modules/s3"
	"infini.sh/snapcache/modules/stats"
)

var (
	version = "1.0.0_SNAPSHOT"
	commit  = "N/A"
)

func main() {
	var (
		configFile = flag.String("config", "snapcache.yml", "the location of config file")
		logLevel   = flag.String("log", "info", "the log level, options: trace,debug,info,warn,error")
		debug      = flag.Bool("debug", false, "run in debug mode")
	)
	flag.Parse()

	appEnv := env.NewEnv("SnapCache", "on-demand local cache for searchable snapshot repositories", version, commit)
	appEnv.SetConfigFile(*configFile)
	appEnv.IsDebug = *debug
	appEnv.LogLevel = *logLevel
	appEnv.Init()

	global.RegisterEnv(appEnv)

	logger.SetLogging(*logLevel, appEnv.GetAppLowercaseName(), appEnv.GetLogDir())
	defer logger.Flush()

	log.Infof("%v %v, commit: %v", appEnv.GetAppName(), appEnv.GetVersion(), commit)

	// startup order matters: kv and blob stores before the cache, the
	// cache before mounts, the api last
	module.RegisterSystemModule(&stats.SimpleStatsModule{})
	module.RegisterSystemModule(&badger.Module{})
	module.RegisterSystemModule(&s3.S3Module{})
	module.RegisterSystemModule(&cache.CacheModule{})
	module.RegisterSystemModule(&mount.MountModule{})
	module.RegisterSystemModule(&api.APIModule{})

	module.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	module.Stop()
}
