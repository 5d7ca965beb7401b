package config_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/conceptkit/ckit/internal/config"
)

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := config.Load(nil)
	require.NoError(t, err)
	require.Equal(t, "memory", cfg.StorageBackend)
	require.Equal(t, ":8080", cfg.HTTPAddr)
	require.Equal(t, "info", cfg.LogLevel)
}

func TestLoadFlagsOverrideDefaults(t *testing.T) {
	cfg, err := config.Load([]string{"-http.addr", ":9090", "-storage.backend", "bbolt", "-log.pretty"})
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.HTTPAddr)
	require.Equal(t, "bbolt", cfg.StorageBackend)
	require.True(t, cfg.LogPretty)
}

func TestLoadParsesTransportMapping(t *testing.T) {
	cfg, err := config.Load([]string{"-transport", "Echo=http://localhost:9001"})
	require.NoError(t, err)
	require.Len(t, cfg.Transports, 1)
	require.Equal(t, "Echo", cfg.Transports[0].ConceptURI)
	require.Equal(t, "http", cfg.Transports[0].Kind)
	require.Equal(t, "localhost:9001", cfg.Transports[0].Address)
}

func TestLoadRejectsUnknownStorageBackend(t *testing.T) {
	_, err := config.Load([]string{"-storage.backend", "redis"})
	require.Error(t, err)
}
