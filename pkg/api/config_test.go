package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strata-data/mapengine/pkg/config"
)

func testEngineConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Pools = []config.PoolConfig{
		{Name: "primary-mysql", Type: config.PoolTypeMySQL, DSN: "user:pass@tcp(localhost:3306)/db", Min: 1, Max: 5},
	}
	return cfg
}

func TestNewConfigService(t *testing.T) {
	cfg := testEngineConfig()
	service := NewConfigService(cfg, "/tmp/mapengine-backups")

	assert.NotNil(t, service)
	got, err := service.GetConfig()
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestDefaultConfigService_UpdateConfig_AppliesSections(t *testing.T) {
	cfg := testEngineConfig()
	service := NewConfigService(cfg, "")

	newEngine := cfg.Engine
	newEngine.MaxConcurrency = 99

	updated, err := service.UpdateConfig(ConfigUpdateRequest{Engine: &newEngine})
	require.NoError(t, err)
	assert.Equal(t, 99, updated.Engine.MaxConcurrency)
}

func TestDefaultConfigService_UpdateConfig_RejectsInvalidSection(t *testing.T) {
	cfg := testEngineConfig()
	service := NewConfigService(cfg, "")

	badEngine := cfg.Engine
	badEngine.MemoryThreshold = 2.0 // out of [0,1] range

	_, err := service.UpdateConfig(ConfigUpdateRequest{Engine: &badEngine})
	assert.Error(t, err)
}

func TestDefaultConfigService_ValidateConfig(t *testing.T) {
	service := NewConfigService(nil, "")

	valid := testEngineConfig()
	result, err := service.ValidateConfig(valid)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Empty(t, result.Errors)

	invalid := testEngineConfig()
	invalid.Engine.MemoryThreshold = 5
	result, err = service.ValidateConfig(invalid)
	require.NoError(t, err)
	assert.False(t, result.Valid)
}

func TestDefaultConfigService_BackupAndListBackups(t *testing.T) {
	cfg := testEngineConfig()
	service := NewConfigService(cfg, "")

	backup, err := service.BackupConfig()
	require.NoError(t, err)
	assert.NotEmpty(t, backup.ID)

	backups, err := service.ListBackups()
	require.NoError(t, err)
	assert.NotNil(t, backups)
}

func TestNewConfigHandler(t *testing.T) {
	cfg := testEngineConfig()
	service := NewConfigService(cfg, "")
	handler := NewConfigHandler(service)

	assert.NotNil(t, handler)
}

func TestConfigHandler_GetConfig(t *testing.T) {
	cfg := testEngineConfig()
	service := NewConfigService(cfg, "")
	handler := NewConfigHandler(service)

	req := httptest.NewRequest(http.MethodGet, "/config", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var response ConfigResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "active", response.Status)
	require.NotNil(t, response.Config)
	assert.Len(t, response.Config.Pools, 1)
}

func TestConfigHandler_UpdateConfig(t *testing.T) {
	cfg := testEngineConfig()
	service := NewConfigService(cfg, "")
	handler := NewConfigHandler(service)

	newEngine := cfg.Engine
	newEngine.BatchSize = 250
	reqBody, _ := json.Marshal(ConfigUpdateRequest{Engine: &newEngine})

	req := httptest.NewRequest(http.MethodPut, "/config", bytes.NewReader(reqBody))
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var response ConfigResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, 250, response.Config.Engine.BatchSize)
}

func TestConfigHandler_UpdateConfig_InvalidJSON(t *testing.T) {
	cfg := testEngineConfig()
	service := NewConfigService(cfg, "")
	handler := NewConfigHandler(service)

	req := httptest.NewRequest(http.MethodPut, "/config", bytes.NewReader([]byte("not json")))
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestConfigHandler_UpdateConfig_ValidationFailure(t *testing.T) {
	cfg := testEngineConfig()
	service := NewConfigService(cfg, "")
	handler := NewConfigHandler(service)

	badEngine := cfg.Engine
	badEngine.MemoryThreshold = -1
	reqBody, _ := json.Marshal(ConfigUpdateRequest{Engine: &badEngine})

	req := httptest.NewRequest(http.MethodPut, "/config", bytes.NewReader(reqBody))
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestConfigHandler_ReloadConfig(t *testing.T) {
	cfg := testEngineConfig()
	service := NewConfigService(cfg, "")
	handler := NewConfigHandler(service)

	req := httptest.NewRequest(http.MethodPost, "/config/reload", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var response ConfigReloadResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.True(t, response.Success)
}

func TestConfigHandler_ValidateConfig(t *testing.T) {
	cfg := testEngineConfig()
	service := NewConfigService(cfg, "")
	handler := NewConfigHandler(service)

	reqBody, _ := json.Marshal(testEngineConfig())
	req := httptest.NewRequest(http.MethodPost, "/config/validate", bytes.NewReader(reqBody))
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var response ConfigValidationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.True(t, response.Valid)
}

func TestConfigHandler_ValidateConfig_Invalid(t *testing.T) {
	cfg := testEngineConfig()
	service := NewConfigService(cfg, "")
	handler := NewConfigHandler(service)

	bad := testEngineConfig()
	bad.Engine.MemoryThreshold = 9
	reqBody, _ := json.Marshal(bad)

	req := httptest.NewRequest(http.MethodPost, "/config/validate", bytes.NewReader(reqBody))
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestConfigHandler_BackupAndListBackups(t *testing.T) {
	cfg := testEngineConfig()
	service := NewConfigService(cfg, "")
	handler := NewConfigHandler(service)

	req := httptest.NewRequest(http.MethodPost, "/config/backup", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/config/backups", nil)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestConfigHandler_NotFound(t *testing.T) {
	cfg := testEngineConfig()
	service := NewConfigService(cfg, "")
	handler := NewConfigHandler(service)

	req := httptest.NewRequest(http.MethodGet, "/config/invalid", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestConfigHandler_MethodNotAllowed(t *testing.T) {
	cfg := testEngineConfig()
	service := NewConfigService(cfg, "")
	handler := NewConfigHandler(service)

	tests := []struct {
		method string
		path   string
	}{
		{http.MethodDelete, "/config"},
		{http.MethodPatch, "/config"},
		{http.MethodGet, "/config/reload"},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(tt.method, tt.path, nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	}
}
