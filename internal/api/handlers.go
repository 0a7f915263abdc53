package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/latticelock/pattern-gateway/internal/audit"
	"github.com/latticelock/pattern-gateway/internal/cache"
	"github.com/latticelock/pattern-gateway/internal/chaos"
	"github.com/latticelock/pattern-gateway/internal/config"
	"github.com/latticelock/pattern-gateway/internal/generator"
	"github.com/latticelock/pattern-gateway/internal/metrics"
	"github.com/latticelock/pattern-gateway/internal/store"
)

// Handler handles HTTP requests for pattern operations.
type Handler struct {
	generator   *generator.SecureGenerator
	logger      *logrus.Logger
	metrics     *metrics.Metrics
	store       *store.Store           // nil when storage is disabled
	cache       cache.Cache            // nil when caching is disabled
	auditLogger audit.Logger           // nil when auditing is disabled
	profiles    *config.ProfileManager // nil when no material profiles are loaded
	config      *config.Config
}

// NewHandler creates a new API handler with the minimal collaborator set.
func NewHandler(gen *generator.SecureGenerator, logger *logrus.Logger, m *metrics.Metrics, cfg *config.Config) *Handler {
	return NewHandlerWithFeatures(gen, logger, m, nil, nil, nil, nil, cfg)
}

// NewHandlerWithFeatures creates a new API handler with optional storage,
// caching, auditing, and material profiles. Nil collaborators disable the
// corresponding feature.
func NewHandlerWithFeatures(
	gen *generator.SecureGenerator,
	logger *logrus.Logger,
	m *metrics.Metrics,
	s *store.Store,
	c cache.Cache,
	auditLogger audit.Logger,
	profiles *config.ProfileManager,
	cfg *config.Config,
) *Handler {
	return &Handler{
		generator:   gen,
		logger:      logger,
		metrics:     m,
		store:       s,
		cache:       c,
		auditLogger: auditLogger,
		profiles:    profiles,
		config:      cfg,
	}
}

// RegisterRoutes registers all API routes.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/health", h.handleHealth).Methods("GET")
	r.HandleFunc("/ready", h.handleReady).Methods("GET")
	r.HandleFunc("/live", h.handleLive).Methods("GET")

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/algorithms", h.handleListAlgorithms).Methods("GET")
	v1.HandleFunc("/patterns", h.handleGeneratePattern).Methods("POST")
	v1.HandleFunc("/patterns", h.handleListPatterns).Methods("GET")
	v1.HandleFunc("/patterns/verify", h.handleVerifyPattern).Methods("POST")
	v1.HandleFunc("/patterns/{uuid}", h.handleGetPattern).Methods("GET")
}

// handleHealth handles health check requests.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	metrics.HealthHandler()(w, r)
	h.metrics.RecordHTTPRequest("GET", "/health", http.StatusOK, time.Since(start), 0)
}

// handleReady handles readiness check requests.
func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	metrics.ReadinessHandler()(w, r)
	h.metrics.RecordHTTPRequest("GET", "/ready", http.StatusOK, time.Since(start), 0)
}

// handleLive handles liveness check requests.
func (h *Handler) handleLive(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	metrics.LivenessHandler()(w, r)
	h.metrics.RecordHTTPRequest("GET", "/live", http.StatusOK, time.Since(start), 0)
}

// algorithmInfo describes one supported algorithm in the listing response.
type algorithmInfo struct {
	Name    string `json:"name"`
	Default bool   `json:"default"`
}

// handleListAlgorithms lists the supported generation algorithms.
func (h *Handler) handleListAlgorithms(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	defaultAlgorithm := ""
	if h.config != nil {
		defaultAlgorithm = h.config.Generation.DefaultAlgorithm
	}

	algorithms := make([]algorithmInfo, 0, len(chaos.Algorithms()))
	for _, a := range chaos.Algorithms() {
		algorithms = append(algorithms, algorithmInfo{
			Name:    a.String(),
			Default: a.String() == defaultAlgorithm,
		})
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"algorithms": algorithms})
	h.metrics.RecordHTTPRequest("GET", "/v1/algorithms", http.StatusOK, time.Since(start), 0)
}

// generateRequest is the request body for pattern generation. Omitted fields
// fall back to the configured generation defaults, after any material profile
// matching the batch code has been applied.
type generateRequest struct {
	BatchCode string `json:"batch_code"`
	Algorithm string `json:"algorithm,omitempty"`
	GridSize  int    `json:"grid_size,omitempty"`
	NumInks   int    `json:"num_inks,omitempty"`
}

// handleGeneratePattern generates, signs, and optionally persists a pattern.
func (h *Handler) handleGeneratePattern(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, "POST", ErrInvalidRequest, start)
		return
	}
	if req.BatchCode == "" {
		h.writeError(w, r, "POST", ErrMissingBatchCode, start)
		return
	}

	// Material profiles override the generation defaults per batch family.
	effective := h.config
	if h.profiles != nil && effective != nil {
		if profile := h.profiles.GetProfileForBatch(req.BatchCode); profile != nil {
			effective = profile.ApplyToConfig(h.config)
			h.logger.WithFields(logrus.Fields{
				"batch_code": req.BatchCode,
				"profile":    profile.ID,
			}).Debug("Applied material profile")
		}
	}

	if effective != nil {
		if req.Algorithm == "" {
			req.Algorithm = effective.Generation.DefaultAlgorithm
		}
		if req.GridSize == 0 {
			req.GridSize = effective.Generation.DefaultGridSize
		}
		if req.NumInks == 0 {
			req.NumInks = effective.Generation.DefaultNumInks
		}
	}

	alg, err := chaos.ParseAlgorithm(req.Algorithm)
	if err != nil {
		h.metrics.RecordGenerationError(req.Algorithm, "invalid_algorithm")
		h.writeError(w, r, "POST", badRequest("invalid_algorithm", "unknown algorithm: %s", req.Algorithm), start)
		return
	}

	// Patterns are deterministic per (batch, algorithm, grid, inks), so a
	// cached artifact is byte-identical to what a fresh generation would
	// produce, UUID and timestamp aside.
	variant := cache.Variant(alg.String(), req.GridSize, req.NumInks)
	if h.cache != nil {
		if entry, ok := h.cache.Get(ctx, req.BatchCode, variant); ok {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-Cache", "HIT")
			w.WriteHeader(http.StatusOK)
			w.Write(entry.Data)
			h.metrics.RecordHTTPRequest("POST", "/v1/patterns", http.StatusOK, time.Since(start), int64(len(entry.Data)))
			return
		}
	}

	sp, err := h.generator.Generate(generator.GenerationConfig{
		BatchCode: req.BatchCode,
		Algorithm: alg,
		GridSize:  req.GridSize,
		NumInks:   req.NumInks,
	})
	if err != nil {
		h.metrics.RecordGenerationError(alg.String(), "invalid_config")
		h.auditGenerate(r, req.BatchCode, "", alg.String(), false, err, time.Since(start))
		h.writeError(w, r, "POST", badRequest("invalid_grid_size", "%v", err), start)
		return
	}

	body, err := json.Marshal(sp)
	if err != nil {
		h.logger.WithError(err).Error("Failed to marshal signed pattern")
		h.writeError(w, r, "POST", ErrInternal, start)
		return
	}

	if h.cache != nil {
		if err := h.cache.Set(ctx, req.BatchCode, variant, body, map[string]string{"algorithm": alg.String()}, 0); err != nil {
			h.logger.WithError(err).Warn("Failed to cache pattern")
		}
	}

	if h.store != nil {
		if err := h.store.Save(sp); err != nil {
			h.logger.WithError(err).WithField("uuid", sp.UUID).Error("Failed to persist pattern")
		} else if n, err := h.store.Count(); err == nil {
			h.metrics.SetStoredPatterns(n)
		}
	}

	h.metrics.RecordGeneration(alg.String(), time.Since(start))
	h.auditGenerate(r, req.BatchCode, sp.UUID, alg.String(), true, nil, time.Since(start))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	w.Write(body)
	h.metrics.RecordHTTPRequest("POST", "/v1/patterns", http.StatusCreated, time.Since(start), int64(len(body)))
}

// handleGetPattern looks up a persisted pattern by UUID.
func (h *Handler) handleGetPattern(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id := mux.Vars(r)["uuid"]

	if h.store == nil {
		h.writeError(w, r, "GET", ErrStoreDisabled, start)
		return
	}

	sp, err := h.store.GetByUUID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, sql.ErrNoRows) {
			h.writeError(w, r, "GET", ErrPatternNotFound, start)
			return
		}
		h.logger.WithError(err).WithField("uuid", id).Error("Pattern lookup failed")
		h.writeError(w, r, "GET", ErrInternal, start)
		return
	}

	h.writeJSON(w, http.StatusOK, sp)
	h.metrics.RecordHTTPRequest("GET", "/v1/patterns/{uuid}", http.StatusOK, time.Since(start), 0)
}

// handleListPatterns looks up persisted patterns, either all records for a
// batch code or the single record matching a scanned pattern's content hash.
func (h *Handler) handleListPatterns(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	batchCode := r.URL.Query().Get("batch_code")
	patternHash := r.URL.Query().Get("pattern_hash")
	if batchCode == "" && patternHash == "" {
		h.writeError(w, r, "GET", badRequest("missing_batch_code", "batch_code or pattern_hash query parameter is required"), start)
		return
	}
	if h.store == nil {
		h.writeError(w, r, "GET", ErrStoreDisabled, start)
		return
	}

	if patternHash != "" {
		sp, err := h.store.FindByPatternHash(patternHash)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				h.writeError(w, r, "GET", ErrPatternNotFound, start)
				return
			}
			h.logger.WithError(err).WithField("pattern_hash", patternHash).Error("Hash lookup failed")
			h.writeError(w, r, "GET", ErrInternal, start)
			return
		}
		h.writeJSON(w, http.StatusOK, sp)
		h.metrics.RecordHTTPRequest("GET", "/v1/patterns", http.StatusOK, time.Since(start), 0)
		return
	}

	patterns, err := h.store.FindByBatchCode(batchCode)
	if err != nil {
		h.logger.WithError(err).WithField("batch_code", batchCode).Error("Batch lookup failed")
		h.writeError(w, r, "GET", ErrInternal, start)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"batch_code": batchCode,
		"count":      len(patterns),
		"patterns":   patterns,
	})
	h.metrics.RecordHTTPRequest("GET", "/v1/patterns", http.StatusOK, time.Since(start), 0)
}

// handleVerifyPattern re-generates the pattern for the submitted artifact and
// checks cell equality, plus signature validity when a signature is submitted.
// A scanner that reconstructed the pattern from a printed tag has no signature
// to submit; for such requests verification is re-generation equality alone.
// A failed verification is a normal outcome, reported as verified=false with
// status 200.
func (h *Handler) handleVerifyPattern(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var sp generator.SignedPattern
	if err := json.NewDecoder(r.Body).Decode(&sp); err != nil {
		h.writeError(w, r, "POST", ErrInvalidRequest, start)
		return
	}

	patternMatch, signatureValid := h.generator.Check(&sp)
	verified := patternMatch
	if sp.Signature != "" {
		verified = patternMatch && signatureValid
	}
	duration := time.Since(start)

	// Keep the metrics label bounded: arbitrary algorithm strings from the
	// request body collapse to "unknown".
	algLabel := sp.Algorithm
	if _, err := chaos.ParseAlgorithm(sp.Algorithm); err != nil {
		algLabel = "unknown"
	}
	h.metrics.RecordVerification(algLabel, verified, duration)
	if h.auditLogger != nil {
		h.auditLogger.LogVerify(sp.BatchCode, sp.Algorithm, verified, duration, map[string]interface{}{
			"pattern_uuid": sp.UUID,
			"client_ip":    getClientIP(r),
			"request_id":   getRequestID(r),
		})
	}

	resp := map[string]interface{}{
		"verified":      verified,
		"pattern_match": patternMatch,
		"uuid":          sp.UUID,
		"batch_code":    sp.BatchCode,
	}
	if sp.Signature != "" {
		resp["signature_valid"] = signatureValid
	}
	h.writeJSON(w, http.StatusOK, resp)
	h.metrics.RecordHTTPRequest("POST", "/v1/patterns/verify", http.StatusOK, duration, 0)
}

func (h *Handler) auditGenerate(r *http.Request, batchCode, patternUUID, algorithm string, success bool, err error, duration time.Duration) {
	if h.auditLogger == nil {
		return
	}
	h.auditLogger.LogGenerate(batchCode, patternUUID, algorithm, success, err, duration, map[string]interface{}{
		"client_ip":  getClientIP(r),
		"user_agent": r.UserAgent(),
		"request_id": getRequestID(r),
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.WithError(err).Error("Failed to write JSON response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, method string, apiErr *APIError, start time.Time) {
	apiErr.WriteJSON(w)
	h.metrics.RecordHTTPRequest(method, r.URL.Path, apiErr.HTTPStatus, time.Since(start), 0)
}
