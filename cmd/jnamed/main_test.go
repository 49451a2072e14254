package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/haukened/rr-dns/internal/dns/common/log"
	"github.com/haukened/rr-dns/internal/dns/config"
	"github.com/haukened/rr-dns/internal/dns/server/jconf"
)

func writeZoneFile(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "example.com.yaml")
	contents := `
zone_root: example.com.
"@":
  SOA: "ns1.example.com. hostmaster.example.com. 1 3600 600 86400 300"
  NS: "ns1.example.com."
www:
  A: "192.0.2.1"
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func baseConfig() *config.AppConfig {
	cfg := config.DEFAULT_APP_CONFIG
	cfg.Port = 0
	return &cfg
}

func TestBuild_LoadsPrimaryZoneAndTransports(t *testing.T) {
	dir := t.TempDir()
	zonePath := writeZoneFile(t, dir)

	jc := &jconf.Config{
		Primaries: []jconf.PrimaryZone{{Origin: "example.com.", File: zonePath}},
		Ports:     []int{0},
		Addresses: []string{"127.0.0.1"},
	}

	app, err := build(baseConfig(), jc, log.NewNoopLogger())
	require.NoError(t, err)
	require.NotNil(t, app)
	require.Len(t, app.transports, 2) // one UDP + one TCP per address/port pair
	require.Nil(t, app.cacheStore)
}

func TestBuild_InvalidPrimaryOriginErrors(t *testing.T) {
	jc := &jconf.Config{
		Primaries: []jconf.PrimaryZone{{Origin: strings.Repeat("x", 300), File: "doesnotmatter"}},
		Ports:     []int{0},
		Addresses: []string{"127.0.0.1"},
	}

	_, err := build(baseConfig(), jc, log.NewNoopLogger())
	require.Error(t, err)
}

func TestBuild_MissingPrimaryFileErrors(t *testing.T) {
	jc := &jconf.Config{
		Primaries: []jconf.PrimaryZone{{Origin: "example.com.", File: filepath.Join(t.TempDir(), "missing.yaml")}},
		Ports:     []int{0},
		Addresses: []string{"127.0.0.1"},
	}

	_, err := build(baseConfig(), jc, log.NewNoopLogger())
	require.Error(t, err)
}

func TestBuild_OpensCacheFileWhenConfigured(t *testing.T) {
	dir := t.TempDir()
	zonePath := writeZoneFile(t, dir)
	cacheFile := filepath.Join(dir, "cache.db")

	jc := &jconf.Config{
		Primaries: []jconf.PrimaryZone{{Origin: "example.com.", File: zonePath}},
		CacheFile: cacheFile,
		Ports:     []int{0},
		Addresses: []string{"127.0.0.1"},
	}

	app, err := build(baseConfig(), jc, log.NewNoopLogger())
	require.NoError(t, err)
	require.NotNil(t, app.cacheStore)
	require.NoError(t, app.cacheStore.Close())
}

func TestBuild_InvalidKeyNameErrors(t *testing.T) {
	dir := t.TempDir()
	zonePath := writeZoneFile(t, dir)

	jc := &jconf.Config{
		Primaries: []jconf.PrimaryZone{{Origin: "example.com.", File: zonePath}},
		Keys:      []jconf.Key{{Algorithm: "hmac-md5", Name: strings.Repeat("y", 300), Secret: "c2VjcmV0"}},
		Ports:     []int{0},
		Addresses: []string{"127.0.0.1"},
	}

	_, err := build(baseConfig(), jc, log.NewNoopLogger())
	require.Error(t, err)
}
