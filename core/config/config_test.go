/* Copyright © INFINI LTD. All rights reserved.
 * Web: https://infinilabs.com
 * Email: hello#infini.ltd */

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testYAML = []byte(`
cache:
  enabled: true
  max_size: 1048576
  region_size: 4096

mount:
  enabled: false

s3:
  backup:
    endpoint: 127.0.0.1:9000
    bucket: snapshots
`)

func TestUnpackNestedSection(t *testing.T) {
	cfg, err := NewConfigWithYAML(testYAML, "test")
	require.NoError(t, err)

	cacheCfg := struct {
		Enabled    bool  `config:"enabled"`
		MaxSize    int64 `config:"max_size"`
		RegionSize int64 `config:"region_size"`
	}{}

	child, err := cfg.Child("cache", -1)
	require.NoError(t, err)
	require.NoError(t, child.Unpack(&cacheCfg))

	assert.True(t, cacheCfg.Enabled)
	assert.Equal(t, int64(1048576), cacheCfg.MaxSize)
	assert.Equal(t, int64(4096), cacheCfg.RegionSize)
}

func TestEnabledFlag(t *testing.T) {
	cfg, err := NewConfigWithYAML(testYAML, "test")
	require.NoError(t, err)

	cacheChild, err := cfg.Child("cache", -1)
	require.NoError(t, err)
	assert.True(t, cacheChild.Enabled(false))

	mountChild, err := cfg.Child("mount", -1)
	require.NoError(t, err)
	assert.False(t, mountChild.Enabled(true))

	// absent section falls back to the default
	var missing *Config
	assert.True(t, missing.Enabled(true))
	assert.False(t, missing.Enabled(false))
}

func TestUnpackIntoMap(t *testing.T) {
	cfg, err := NewConfigWithYAML(testYAML, "test")
	require.NoError(t, err)

	repos := map[string]struct {
		Endpoint string `config:"endpoint"`
		Bucket   string `config:"bucket"`
	}{}

	child, err := cfg.Child("s3", -1)
	require.NoError(t, err)
	require.NoError(t, child.Unpack(&repos))

	require.Contains(t, repos, "backup")
	assert.Equal(t, "127.0.0.1:9000", repos["backup"].Endpoint)
	assert.Equal(t, "snapshots", repos["backup"].Bucket)
}

func TestHasField(t *testing.T) {
	cfg, err := NewConfigWithYAML(testYAML, "test")
	require.NoError(t, err)

	assert.True(t, cfg.HasField("cache"))
	assert.False(t, cfg.HasField("badger"))
}
