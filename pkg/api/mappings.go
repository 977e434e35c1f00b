package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/strata-data/mapengine/pkg/facade"
	"github.com/strata-data/mapengine/pkg/mapping"
	"github.com/strata-data/mapengine/pkg/pool"
)

// MappingExecutor is the engine collaborator a MappingsHandler drives:
// satisfied by *facade.Engine.
type MappingExecutor interface {
	ExecuteMapping(ctx context.Context, m *mapping.Mapping, data map[string]interface{}, opts facade.ExecuteOptions) (facade.Result, error)
	ExecuteBatch(ctx context.Context, m *mapping.Mapping, dataArray []map[string]interface{}, opts facade.ExecuteOptions) (facade.BatchResult, error)
	ProcessWithStreaming(ctx context.Context, m *mapping.Mapping, dataArray []map[string]interface{}, opts facade.ExecuteOptions) (facade.StreamResult, error)
	Validate(ctx context.Context, m *mapping.Mapping, sampleData map[string]interface{}) (facade.ValidationResult, error)
}

// MappingStore resolves a mapping ID to the mapping definition the
// engine should run. DefaultMappingStore is an in-memory registry;
// a config-backed or database-backed store can satisfy the same
// interface without changing MappingsHandler.
type MappingStore interface {
	Get(id string) (*mapping.Mapping, bool)
	Put(m *mapping.Mapping)
	Delete(id string)
}

// DefaultMappingStore keeps registered mappings in memory, keyed by
// mapping ID.
type DefaultMappingStore struct {
	mu       sync.RWMutex
	mappings map[string]*mapping.Mapping
}

// NewDefaultMappingStore creates an empty in-memory mapping store.
func NewDefaultMappingStore() *DefaultMappingStore {
	return &DefaultMappingStore{mappings: make(map[string]*mapping.Mapping)}
}

func (s *DefaultMappingStore) Get(id string) (*mapping.Mapping, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.mappings[id]
	return m, ok
}

func (s *DefaultMappingStore) Put(m *mapping.Mapping) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mappings[m.ID] = m
}

func (s *DefaultMappingStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.mappings, id)
}

// errorResponse is the shape every failed mappings request returns.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Code: code, Message: message})
}

// ExecuteRequest is the body of POST /enhanced-mappings/{id}/execute.
type ExecuteRequest struct {
	Data    map[string]interface{} `json:"data"`
	Options facade.ExecuteOptions  `json:"options,omitempty"`
}

// ExecuteResponse wraps a single ExecuteMapping outcome.
type ExecuteResponse struct {
	Success bool              `json:"success"`
	Result  executeResultView `json:"result"`
	Metrics interface{}       `json:"metrics"`
}

type executeResultView struct {
	MappingID        string      `json:"mappingId"`
	ExecutionID      string      `json:"executionId"`
	Output           interface{} `json:"output"`
	ExecutionTime    string      `json:"executionTime"`
	RecordsProcessed int         `json:"recordsProcessed"`
	CacheHit         bool        `json:"cacheHit"`
	Timestamp        time.Time   `json:"timestamp"`
}

// ExecuteBatchRequest is the body of POST /enhanced-mappings/{id}/execute-batch.
type ExecuteBatchRequest struct {
	Data    []map[string]interface{} `json:"data"`
	Options facade.ExecuteOptions    `json:"options,omitempty"`
}

// ExecuteBatchResponse reports every record's fate.
type ExecuteBatchResponse struct {
	Success   bool                     `json:"success"`
	Successes []map[string]interface{} `json:"successes"`
	Failures  []batchFailureView       `json:"failures"`
}

type batchFailureView struct {
	Index int                    `json:"index"`
	Data  map[string]interface{} `json:"data"`
	Error string                 `json:"error"`
}

// StreamRequest is the body of POST /enhanced-mappings/{id}/stream.
type StreamRequest struct {
	Data    []map[string]interface{} `json:"data"`
	Options facade.ExecuteOptions    `json:"options,omitempty"`
}

// StreamResponse wraps a ProcessWithStreaming outcome.
type StreamResponse struct {
	Result streamResultView `json:"result"`
}

type streamResultView struct {
	Results        []map[string]interface{} `json:"results"`
	Errors         []string                 `json:"errors"`
	ProcessingTime string                   `json:"processingTime"`
	Throughput     float64                  `json:"throughput"`
}

// ValidateRequest is the body of POST /enhanced-mappings/{id}/validate.
type ValidateRequest struct {
	SampleData map[string]interface{} `json:"sampleData"`
}

// ValidateResponse wraps a Validate outcome.
type ValidateResponse struct {
	Validation validateResultView `json:"validation"`
	Analysis   validateAnalysis   `json:"analysis"`
}

type validateResultView struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

type validateAnalysis struct {
	Complexity      float64     `json:"complexity"`
	SystemResources interface{} `json:"systemResources"`
	Recommendations interface{} `json:"recommendations"`
}

// MappingsHandler serves spec's enhanced-mappings execution surface:
// execute, execute-batch, stream, and validate, each scoped to a
// mapping ID resolved through a MappingStore.
type MappingsHandler struct {
	engine MappingExecutor
	store  MappingStore
}

// NewMappingsHandler creates a new mappings execution handler.
func NewMappingsHandler(engine MappingExecutor, store MappingStore) *MappingsHandler {
	return &MappingsHandler{engine: engine, store: store}
}

// ServeHTTP routes /enhanced-mappings/{id}/{execute,execute-batch,stream,validate}.
func (h *MappingsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/enhanced-mappings")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 2 || parts[0] == "" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "expected /enhanced-mappings/{id}/{action}")
		return
	}

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "only POST is supported")
		return
	}

	mappingID, action := parts[0], parts[1]
	m, ok := h.store.Get(mappingID)
	if !ok {
		writeError(w, http.StatusNotFound, "MAPPING_NOT_FOUND", "mapping not found: "+mappingID)
		return
	}
	if !m.Active && action != "validate" {
		writeError(w, http.StatusConflict, "MAPPING_INACTIVE", "mapping is inactive: "+mappingID)
		return
	}

	switch action {
	case "execute":
		h.handleExecute(w, r, m)
	case "execute-batch":
		h.handleExecuteBatch(w, r, m)
	case "stream":
		h.handleStream(w, r, m)
	case "validate":
		h.handleValidate(w, r, m)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "unknown action: "+action)
	}
}

func (h *MappingsHandler) handleExecute(w http.ResponseWriter, r *http.Request, m *mapping.Mapping) {
	var req ExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid JSON body")
		return
	}
	if req.Data == nil {
		writeError(w, http.StatusBadRequest, "MISSING_SOURCE_DATA", "data is required")
		return
	}

	result, err := h.engine.ExecuteMapping(r.Context(), m, req.Data, req.Options)
	if err != nil {
		log.Error().Err(err).Str("mapping_id", m.ID).Msg("mapping execution failed")
		writeError(w, http.StatusUnprocessableEntity, "EXECUTION_ERROR", err.Error())
		return
	}

	resp := ExecuteResponse{
		Success: result.Success,
		Result: executeResultView{
			MappingID:        result.MappingID,
			ExecutionID:      result.ExecutionID,
			Output:           result.Output,
			ExecutionTime:    result.ExecutionTime.String(),
			RecordsProcessed: result.RecordsProcessed,
			CacheHit:         result.CacheHit,
			Timestamp:        time.Now(),
		},
		Metrics: result.Metrics,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error().Err(err).Msg("failed to encode execute response")
	}
}

func (h *MappingsHandler) handleExecuteBatch(w http.ResponseWriter, r *http.Request, m *mapping.Mapping) {
	var req ExecuteBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid JSON body")
		return
	}
	if len(req.Data) == 0 {
		writeError(w, http.StatusBadRequest, "INVALID_BATCH_DATA", "data must be a non-empty array")
		return
	}

	result, err := h.engine.ExecuteBatch(r.Context(), m, req.Data, req.Options)
	if err != nil {
		log.Error().Err(err).Str("mapping_id", m.ID).Msg("batch execution failed")
		writeError(w, http.StatusUnprocessableEntity, "EXECUTION_ERROR", err.Error())
		return
	}

	failures := make([]batchFailureView, 0, len(result.Failures))
	for _, f := range result.Failures {
		failures = append(failures, batchFailureView{Index: f.Index, Data: f.Data, Error: f.Err.Error()})
	}

	resp := ExecuteBatchResponse{
		Success:   len(failures) == 0,
		Successes: result.Successes,
		Failures:  failures,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error().Err(err).Msg("failed to encode execute-batch response")
	}
}

func (h *MappingsHandler) handleStream(w http.ResponseWriter, r *http.Request, m *mapping.Mapping) {
	var req StreamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid JSON body")
		return
	}
	if len(req.Data) == 0 {
		writeError(w, http.StatusBadRequest, "INVALID_BATCH_DATA", "data must be a non-empty array")
		return
	}

	result, err := h.engine.ProcessWithStreaming(r.Context(), m, req.Data, req.Options)
	if err != nil {
		log.Error().Err(err).Str("mapping_id", m.ID).Msg("stream execution failed")
		writeError(w, http.StatusUnprocessableEntity, "EXECUTION_ERROR", err.Error())
		return
	}

	errs := make([]string, 0, len(result.Errors))
	for _, e := range result.Errors {
		errs = append(errs, e.Error())
	}

	resp := StreamResponse{
		Result: streamResultView{
			Results:        result.Results,
			Errors:         errs,
			ProcessingTime: result.ProcessingTime.String(),
			Throughput:     result.Throughput,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error().Err(err).Msg("failed to encode stream response")
	}
}

func (h *MappingsHandler) handleValidate(w http.ResponseWriter, r *http.Request, m *mapping.Mapping) {
	var req ValidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid JSON body")
		return
	}

	result, err := h.engine.Validate(r.Context(), m, req.SampleData)
	if err != nil {
		log.Error().Err(err).Str("mapping_id", m.ID).Msg("mapping validation failed")
		writeError(w, http.StatusUnprocessableEntity, "EXECUTION_ERROR", err.Error())
		return
	}

	resp := ValidateResponse{
		Validation: validateResultView{Valid: result.Valid, Errors: result.Errors},
		Analysis: validateAnalysis{
			Complexity:      result.Complexity,
			SystemResources: result.Resources,
			Recommendations: result.Resources,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error().Err(err).Msg("failed to encode validate response")
	}
}

// PoolsHandler serves GET /connections/pools and GET
// /connections/pools/stats, backed by the engine's pool.Manager. Other
// methods on these paths get 405; pools cannot be registered over HTTP.
type PoolsHandler struct {
	pools *pool.Manager
}

// NewPoolsHandler creates a new connection-pool administration handler.
func NewPoolsHandler(pools *pool.Manager) *PoolsHandler {
	return &PoolsHandler{pools: pools}
}

// PoolRegistrationRequest describes a pool's name, sizing and timeouts.
// No PoolsHandler route decodes it.
type PoolRegistrationRequest struct {
	Name           string        `json:"name"`
	Min            int           `json:"min"`
	Max            int           `json:"max"`
	AcquireTimeout time.Duration `json:"acquireTimeout"`
	IdleTimeout    time.Duration `json:"idleTimeout"`
}

func (h *PoolsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/connections/pools")
	switch {
	case path == "" || path == "/":
		switch r.Method {
		case http.MethodGet:
			h.handleList(w, r)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "only GET is supported here")
		}
	case path == "/stats":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "only GET is supported")
			return
		}
		h.handleStats(w, r)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "unknown pools route")
	}
}

func (h *PoolsHandler) handleList(w http.ResponseWriter, r *http.Request) {
	metrics := h.pools.Metrics()
	names := make([]string, 0, len(metrics))
	for name := range metrics {
		names = append(names, name)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"pools": names}); err != nil {
		log.Error().Err(err).Msg("failed to encode pools list response")
	}
}

func (h *PoolsHandler) handleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"pools": h.pools.Metrics()}); err != nil {
		log.Error().Err(err).Msg("failed to encode pool stats response")
	}
}

// PoolCountsFunc builds the getPoolCounts callback PoolChecker needs
// from a pool.Manager: a pool counts as active once it has created at
// least one connection.
func PoolCountsFunc(pools *pool.Manager) func() (active, total int, err error) {
	return func() (active, total int, err error) {
		metrics := pools.Metrics()
		total = len(metrics)
		for _, m := range metrics {
			if m.Created > 0 {
				active++
			}
		}
		return active, total, nil
	}
}
