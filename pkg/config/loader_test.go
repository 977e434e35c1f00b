package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoader_LoadFromFile_YAML(t *testing.T) {
	l := NewLoader()
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	require.NoError(t, l.SaveToFile(GenerateTemplate(), path))

	cfg, err := l.LoadFromFile(path)
	require.NoError(t, err)
	require.Len(t, cfg.Pools, 2)
	assert.Equal(t, "primary-mysql", cfg.Pools[0].Name)
}

func TestLoader_LoadFromFile_JSON(t *testing.T) {
	l := NewLoader()
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.json")
	require.NoError(t, l.SaveToFile(GenerateTemplate(), path))

	cfg, err := l.LoadFromFile(path)
	require.NoError(t, err)
	require.Len(t, cfg.Pools, 2)
}

func TestLoader_LoadFromFile_UnsupportedExtension(t *testing.T) {
	l := NewLoader()
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.toml")
	require.NoError(t, os.WriteFile(path, []byte("x=1"), 0o644))

	_, err := l.LoadFromFile(path)
	assert.Error(t, err)
}

func TestLoader_Load_FallsBackToDefaultWhenNoFile(t *testing.T) {
	l := NewLoader()
	cfg, err := l.Load(LoaderOptions{EnvPrefix: "MAPENGINE_TEST_", DefaultPaths: []string{"/nonexistent/path.yaml"}})
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Server.Port, cfg.Server.Port)
}

func TestLoader_Load_RequireFileErrorsWhenMissing(t *testing.T) {
	l := NewLoader()
	_, err := l.Load(LoaderOptions{EnvPrefix: "MAPENGINE_TEST_", DefaultPaths: []string{"/nonexistent/path.yaml"}, RequireFile: true})
	assert.Error(t, err)
}

func TestLoader_LoadFromEnvironment_OverridesServerPort(t *testing.T) {
	l := NewLoader()
	t.Setenv("MAPENGINE_TEST_SERVER_PORT", "7777")
	cfg := DefaultConfig()
	l.loadFromEnvironment(cfg, "MAPENGINE_TEST_")
	assert.Equal(t, 7777, cfg.Server.Port)
}

func TestLoader_LoadPoolEnvironmentVariables_OverridesDSN(t *testing.T) {
	l := NewLoader()
	t.Setenv("MAPENGINE_TEST_POOL_PRIMARY_DSN", "overridden-dsn")
	cfg := DefaultConfig()
	cfg.Pools = []PoolConfig{{Name: "primary", Type: PoolTypeMySQL, DSN: "original"}}
	l.loadPoolEnvironmentVariables(cfg, "MAPENGINE_TEST_")
	assert.Equal(t, "overridden-dsn", cfg.Pools[0].DSN)
}

func TestGenerateTemplate_IsValid(t *testing.T) {
	cfg := GenerateTemplate()
	assert.NoError(t, cfg.Validate())
}
