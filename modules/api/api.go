/* Copyright © INFINI Ltd. All rights reserved.
 * web: https://infinilabs.com
 * mail: hello#infini.ltd */

package api

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	log "github.com/cihub/seelog"
	"github.com/rs/cors"
	"github.com/segmentio/encoding/json"
	"infini.sh/snapcache/core/errors"
	"infini.sh/snapcache/core/global"
	"infini.sh/snapcache/core/snapshot"
	"infini.sh/snapcache/core/stats"
	"infini.sh/snapcache/modules/cache"
	"infini.sh/snapcache/modules/mount"
)

type APIConfig struct {
	Enabled        bool   `config:"enabled"`
	NetworkBinding string `config:"binding"`

	// ReadProbeMaxBytes bounds the length of a single read probe request.
	ReadProbeMaxBytes int64 `config:"read_probe_max_bytes"`
}

type APIModule struct {
	cfg    *APIConfig
	server *http.Server
}

func (module *APIModule) Name() string {
	return "api"
}

func (module *APIModule) Setup() {
	module.cfg = &APIConfig{
		Enabled:           true,
		NetworkBinding:    "0.0.0.0:2900",
		ReadProbeMaxBytes: 4 * 1024 * 1024,
	}
	ok, err := global.Env().ParseConfig("api", module.cfg)
	if ok && err != nil {
		panic(err)
	}
}

func (module *APIModule) Start() error {
	if !module.cfg.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /_cache/stats", module.cacheStatsAction)
	mux.HandleFunc("POST /_cache/clear", module.cacheClearAction)
	mux.HandleFunc("GET /_mounts", module.listMountsAction)
	mux.HandleFunc("POST /_mounts", module.createMountAction)
	mux.HandleFunc("GET /_mounts/{id}", module.getMountAction)
	mux.HandleFunc("DELETE /_mounts/{id}", module.deleteMountAction)
	mux.HandleFunc("GET /_mounts/{id}/_files/{shard}", module.listFilesAction)
	mux.HandleFunc("GET /_mounts/{id}/_read", module.readProbeAction)

	module.server = &http.Server{
		Addr:    module.cfg.NetworkBinding,
		Handler: cors.AllowAll().Handler(mux),
	}

	go func() {
		log.Infof("api server listening on [%v]", module.cfg.NetworkBinding)
		if err := module.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(err)
		}
	}()

	return nil
}

func (module *APIModule) Stop() error {
	if module.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := module.server.Shutdown(ctx)
	module.server = nil
	return err
}

func (module *APIModule) writeJSON(w http.ResponseWriter, v interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Error(err)
		return
	}
	w.Write(data)
}

func (module *APIModule) writeError(w http.ResponseWriter, err error, statusCode int) {
	module.writeJSON(w, map[string]interface{}{"error": err.Error()}, statusCode)
}

func statusOf(err error) int {
	cause := errors.Cause(err)
	switch cause {
	case mount.ErrMountNotFound, snapshot.ErrNotFound, cache.ErrFileNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (module *APIModule) cacheStatsAction(w http.ResponseWriter, req *http.Request) {
	service := cache.GetService()
	module.writeJSON(w, map[string]interface{}{
		"files":        service.FileCount(),
		"cached_bytes": service.CachedBytes(),
		"stats":        stats.StatsMap(),
	}, http.StatusOK)
}

func (module *APIModule) cacheClearAction(w http.ResponseWriter, req *http.Request) {
	evicted := cache.GetService().Clear()
	module.writeJSON(w, map[string]interface{}{"acknowledged": true, "evicted": evicted}, http.StatusOK)
}

func (module *APIModule) listMountsAction(w http.ResponseWriter, req *http.Request) {
	module.writeJSON(w, mount.GetManager().ListMounts(), http.StatusOK)
}

type createMountRequest struct {
	Repository string `json:"repository"`
	Snapshot   string `json:"snapshot"`
	Index      string `json:"index"`
	Prewarm    bool   `json:"prewarm"`
}

func (module *APIModule) createMountAction(w http.ResponseWriter, req *http.Request) {
	request := createMountRequest{}
	if err := json.NewDecoder(req.Body).Decode(&request); err != nil {
		module.writeError(w, err, http.StatusBadRequest)
		return
	}
	if request.Repository == "" || request.Snapshot == "" || request.Index == "" {
		module.writeError(w, errors.New("repository, snapshot and index are required"), http.StatusBadRequest)
		return
	}

	created, err := mount.GetManager().CreateMount(req.Context(), request.Repository, request.Snapshot, request.Index, request.Prewarm)
	if err != nil {
		module.writeError(w, err, statusOf(err))
		return
	}
	module.writeJSON(w, created, http.StatusCreated)
}

func (module *APIModule) getMountAction(w http.ResponseWriter, req *http.Request) {
	found, err := mount.GetManager().GetMount(req.PathValue("id"))
	if err != nil {
		module.writeError(w, err, statusOf(err))
		return
	}
	module.writeJSON(w, found, http.StatusOK)
}

func (module *APIModule) deleteMountAction(w http.ResponseWriter, req *http.Request) {
	if err := mount.GetManager().DeleteMount(req.PathValue("id")); err != nil {
		module.writeError(w, err, statusOf(err))
		return
	}
	module.writeJSON(w, map[string]interface{}{"acknowledged": true}, http.StatusOK)
}

func (module *APIModule) listFilesAction(w http.ResponseWriter, req *http.Request) {
	shard, err := strconv.Atoi(req.PathValue("shard"))
	if err != nil {
		module.writeError(w, errors.Errorf("invalid shard: %v", req.PathValue("shard")), http.StatusBadRequest)
		return
	}

	dir, err := mount.GetManager().GetDirectory(req.PathValue("id"), shard)
	if err != nil {
		module.writeError(w, err, statusOf(err))
		return
	}
	module.writeJSON(w, dir.ListFiles(), http.StatusOK)
}

// readProbeAction reads a byte range of a mounted file through the cache and
// returns it raw, mainly useful to verify mounts and warm specific ranges.
func (module *APIModule) readProbeAction(w http.ResponseWriter, req *http.Request) {
	query := req.URL.Query()

	shard, err := strconv.Atoi(query.Get("shard"))
	if err != nil {
		module.writeError(w, errors.New("shard is required"), http.StatusBadRequest)
		return
	}
	file := query.Get("file")
	if file == "" {
		module.writeError(w, errors.New("file is required"), http.StatusBadRequest)
		return
	}
	var offset int64
	if v := query.Get("offset"); v != "" {
		offset, err = strconv.ParseInt(v, 10, 64)
		if err != nil || offset < 0 {
			module.writeError(w, errors.Errorf("invalid offset: %v", v), http.StatusBadRequest)
			return
		}
	}
	length, err := strconv.ParseInt(query.Get("length"), 10, 64)
	if err != nil || length <= 0 || length > module.cfg.ReadProbeMaxBytes {
		module.writeError(w, errors.Errorf("length must be within (0, %v]", module.cfg.ReadProbeMaxBytes), http.StatusBadRequest)
		return
	}

	dir, err := mount.GetManager().GetDirectory(req.PathValue("id"), shard)
	if err != nil {
		module.writeError(w, err, statusOf(err))
		return
	}

	input, err := dir.Open(req.Context(), file)
	if err != nil {
		module.writeError(w, err, statusOf(err))
		return
	}
	defer input.Close()

	buf := make([]byte, length)
	n, err := input.ReadAt(buf, offset)
	if err != nil && err != io.EOF {
		module.writeError(w, err, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	w.Write(buf[:n])
}
