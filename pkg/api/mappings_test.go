package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strata-data/mapengine/pkg/execution"
	"github.com/strata-data/mapengine/pkg/facade"
	"github.com/strata-data/mapengine/pkg/mapping"
	"github.com/strata-data/mapengine/pkg/pool"
)

type fakeExecutor struct {
	executeResult facade.Result
	executeErr    error
	batchResult   facade.BatchResult
	batchErr      error
	streamResult  facade.StreamResult
	streamErr     error
	validateResult facade.ValidationResult
	validateErr   error

	lastMapping *mapping.Mapping
}

func (f *fakeExecutor) ExecuteMapping(ctx context.Context, m *mapping.Mapping, data map[string]interface{}, opts facade.ExecuteOptions) (facade.Result, error) {
	f.lastMapping = m
	return f.executeResult, f.executeErr
}

func (f *fakeExecutor) ExecuteBatch(ctx context.Context, m *mapping.Mapping, dataArray []map[string]interface{}, opts facade.ExecuteOptions) (facade.BatchResult, error) {
	f.lastMapping = m
	return f.batchResult, f.batchErr
}

func (f *fakeExecutor) ProcessWithStreaming(ctx context.Context, m *mapping.Mapping, dataArray []map[string]interface{}, opts facade.ExecuteOptions) (facade.StreamResult, error) {
	f.lastMapping = m
	return f.streamResult, f.streamErr
}

func (f *fakeExecutor) Validate(ctx context.Context, m *mapping.Mapping, sampleData map[string]interface{}) (facade.ValidationResult, error) {
	f.lastMapping = m
	return f.validateResult, f.validateErr
}

func testMapping(id string, active bool) *mapping.Mapping {
	return &mapping.Mapping{
		ID:      id,
		Version: "1",
		Rules: []mapping.Rule{
			{TargetField: "name", SourceField: "name"},
		},
		Active: active,
	}
}

func TestDefaultMappingStore_PutGetDelete(t *testing.T) {
	store := NewDefaultMappingStore()

	_, ok := store.Get("missing")
	assert.False(t, ok)

	m := testMapping("m1", true)
	store.Put(m)

	got, ok := store.Get("m1")
	require.True(t, ok)
	assert.Equal(t, m, got)

	store.Delete("m1")
	_, ok = store.Get("m1")
	assert.False(t, ok)
}

func newMappingsHandler(store MappingStore, exec MappingExecutor) *MappingsHandler {
	return NewMappingsHandler(exec, store)
}

func TestMappingsHandler_Execute_Success(t *testing.T) {
	store := NewDefaultMappingStore()
	store.Put(testMapping("m1", true))
	exec := &fakeExecutor{
		executeResult: facade.Result{
			Success:          true,
			MappingID:        "m1",
			ExecutionID:      "exec-1",
			RecordsProcessed: 1,
			Metrics:          execution.MetricsSnapshot{},
		},
	}
	handler := newMappingsHandler(store, exec)

	body, _ := json.Marshal(ExecuteRequest{Data: map[string]interface{}{"name": "alice"}})
	req := httptest.NewRequest(http.MethodPost, "/enhanced-mappings/m1/execute", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp ExecuteResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "m1", resp.Result.MappingID)
	assert.Equal(t, "exec-1", resp.Result.ExecutionID)
}

func TestMappingsHandler_Execute_MissingData(t *testing.T) {
	store := NewDefaultMappingStore()
	store.Put(testMapping("m1", true))
	handler := newMappingsHandler(store, &fakeExecutor{})

	body, _ := json.Marshal(ExecuteRequest{})
	req := httptest.NewRequest(http.MethodPost, "/enhanced-mappings/m1/execute", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp errorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "MISSING_SOURCE_DATA", resp.Code)
}

func TestMappingsHandler_Execute_MappingNotFound(t *testing.T) {
	store := NewDefaultMappingStore()
	handler := newMappingsHandler(store, &fakeExecutor{})

	body, _ := json.Marshal(ExecuteRequest{Data: map[string]interface{}{"a": 1}})
	req := httptest.NewRequest(http.MethodPost, "/enhanced-mappings/missing/execute", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	var resp errorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "MAPPING_NOT_FOUND", resp.Code)
}

func TestMappingsHandler_Execute_MappingInactive(t *testing.T) {
	store := NewDefaultMappingStore()
	store.Put(testMapping("m1", false))
	handler := newMappingsHandler(store, &fakeExecutor{})

	body, _ := json.Marshal(ExecuteRequest{Data: map[string]interface{}{"a": 1}})
	req := httptest.NewRequest(http.MethodPost, "/enhanced-mappings/m1/execute", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
	var resp errorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "MAPPING_INACTIVE", resp.Code)
}

func TestMappingsHandler_Execute_EngineError(t *testing.T) {
	store := NewDefaultMappingStore()
	store.Put(testMapping("m1", true))
	exec := &fakeExecutor{executeErr: errors.New("pipeline exploded")}
	handler := newMappingsHandler(store, exec)

	body, _ := json.Marshal(ExecuteRequest{Data: map[string]interface{}{"a": 1}})
	req := httptest.NewRequest(http.MethodPost, "/enhanced-mappings/m1/execute", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var resp errorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "EXECUTION_ERROR", resp.Code)
}

func TestMappingsHandler_ExecuteBatch_Success(t *testing.T) {
	store := NewDefaultMappingStore()
	store.Put(testMapping("m1", true))
	exec := &fakeExecutor{
		batchResult: facade.BatchResult{
			Successes: []map[string]interface{}{{"name": "a"}},
			Failures: []facade.BatchFailure{
				{Index: 1, Data: map[string]interface{}{"name": "b"}, Err: errors.New("bad record")},
			},
		},
	}
	handler := newMappingsHandler(store, exec)

	body, _ := json.Marshal(ExecuteBatchRequest{Data: []map[string]interface{}{{"name": "a"}, {"name": "b"}}})
	req := httptest.NewRequest(http.MethodPost, "/enhanced-mappings/m1/execute-batch", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp ExecuteBatchResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.False(t, resp.Success)
	require.Len(t, resp.Successes, 1)
	require.Len(t, resp.Failures, 1)
	assert.Equal(t, "bad record", resp.Failures[0].Error)
}

func TestMappingsHandler_ExecuteBatch_InvalidBatchData(t *testing.T) {
	store := NewDefaultMappingStore()
	store.Put(testMapping("m1", true))
	handler := newMappingsHandler(store, &fakeExecutor{})

	body, _ := json.Marshal(ExecuteBatchRequest{Data: nil})
	req := httptest.NewRequest(http.MethodPost, "/enhanced-mappings/m1/execute-batch", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp errorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "INVALID_BATCH_DATA", resp.Code)
}

func TestMappingsHandler_Stream_Success(t *testing.T) {
	store := NewDefaultMappingStore()
	store.Put(testMapping("m1", true))
	exec := &fakeExecutor{
		streamResult: facade.StreamResult{
			Results:        []map[string]interface{}{{"name": "a"}},
			ProcessingTime: 2 * time.Second,
			Throughput:     50.5,
		},
	}
	handler := newMappingsHandler(store, exec)

	body, _ := json.Marshal(StreamRequest{Data: []map[string]interface{}{{"name": "a"}}})
	req := httptest.NewRequest(http.MethodPost, "/enhanced-mappings/m1/stream", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp StreamResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 50.5, resp.Result.Throughput)
	require.Len(t, resp.Result.Results, 1)
}

func TestMappingsHandler_Validate_Success(t *testing.T) {
	store := NewDefaultMappingStore()
	store.Put(testMapping("m1", true))
	exec := &fakeExecutor{
		validateResult: facade.ValidationResult{Valid: true, Complexity: 1.5},
	}
	handler := newMappingsHandler(store, exec)

	body, _ := json.Marshal(ValidateRequest{SampleData: map[string]interface{}{"name": "a"}})
	req := httptest.NewRequest(http.MethodPost, "/enhanced-mappings/m1/validate", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp ValidateResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp.Validation.Valid)
	assert.Equal(t, 1.5, resp.Analysis.Complexity)
}

func TestMappingsHandler_Validate_AllowedWhenInactive(t *testing.T) {
	store := NewDefaultMappingStore()
	store.Put(testMapping("m1", false))
	exec := &fakeExecutor{validateResult: facade.ValidationResult{Valid: false, Errors: []string{"no rules"}}}
	handler := newMappingsHandler(store, exec)

	body, _ := json.Marshal(ValidateRequest{})
	req := httptest.NewRequest(http.MethodPost, "/enhanced-mappings/m1/validate", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestMappingsHandler_ServeHTTP_WrongMethod(t *testing.T) {
	store := NewDefaultMappingStore()
	handler := newMappingsHandler(store, &fakeExecutor{})

	req := httptest.NewRequest(http.MethodGet, "/enhanced-mappings/m1/execute", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestMappingsHandler_ServeHTTP_MalformedPath(t *testing.T) {
	store := NewDefaultMappingStore()
	handler := newMappingsHandler(store, &fakeExecutor{})

	req := httptest.NewRequest(http.MethodPost, "/enhanced-mappings/", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPoolsHandler_List(t *testing.T) {
	manager := pool.NewManager()
	handler := NewPoolsHandler(manager)

	req := httptest.NewRequest(http.MethodGet, "/connections/pools", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string][]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Empty(t, body["pools"])
}

func TestPoolsHandler_Stats(t *testing.T) {
	manager := pool.NewManager()
	handler := NewPoolsHandler(manager)

	req := httptest.NewRequest(http.MethodGet, "/connections/pools/stats", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestPoolsHandler_UnknownRoute(t *testing.T) {
	manager := pool.NewManager()
	handler := NewPoolsHandler(manager)

	req := httptest.NewRequest(http.MethodGet, "/connections/pools/bogus", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPoolCountsFunc_EmptyManager(t *testing.T) {
	manager := pool.NewManager()
	counts := PoolCountsFunc(manager)

	active, total, err := counts()
	require.NoError(t, err)
	assert.Equal(t, 0, active)
	assert.Equal(t, 0, total)
}
