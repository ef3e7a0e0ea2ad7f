package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"
	"unicode/utf8"

	"persistence-engine/internal/logging"
	"persistence-engine/internal/persistence"
	"persistence-engine/internal/storage"

	"github.com/gorilla/mux"
)

// RESTHandler serves the inspection API over a persistence.Manager.
type RESTHandler struct {
	manager     *persistence.Manager
	logger      *logging.Logger
	maxBodySize int64
	started     time.Time
}

// NewRESTHandler creates a new REST API handler. A maxBodySize of 0 disables
// the request size limit.
func NewRESTHandler(manager *persistence.Manager, logger *logging.Logger, maxBodySize int64) *RESTHandler {
	if logger == nil {
		logger = logging.Nop()
	}
	return &RESTHandler{
		manager:     manager,
		logger:      logger,
		maxBodySize: maxBodySize,
		started:     time.Now(),
	}
}

// Values are text unless they are not valid UTF-8, in which case they travel
// as standard base64 with Encoding set to "base64".
const encodingBase64 = "base64"

// PutRequest represents a PUT request
type PutRequest struct {
	Value    string `json:"value"`
	Encoding string `json:"encoding,omitempty"`
}

// ResultResponse reports the outcome of a mutating call.
type ResultResponse struct {
	Success bool   `json:"success"`
	Result  string `json:"result"`
}

// GetResponse represents a GET response
type GetResponse struct {
	Found    bool   `json:"found"`
	Kind     string `json:"kind"`
	Key      string `json:"key"`
	Value    string `json:"value,omitempty"`
	Encoding string `json:"encoding,omitempty"`
	Size     int    `json:"size"`
	Result   string `json:"result"`
}

// ListKeysResponse represents a LIST KEYS response
type ListKeysResponse struct {
	Kind    string   `json:"kind"`
	Keys    []string `json:"keys"`
	Count   int      `json:"count"`
	HasMore bool     `json:"has_more"`
	Result  string   `json:"result"`
}

// HealthResponse represents a health check response
type HealthResponse struct {
	Healthy       bool     `json:"healthy"`
	Status        string   `json:"status"`
	UptimeSeconds int64    `json:"uptime_seconds"`
	Kinds         []string `json:"kinds"`
	Timestamp     int64    `json:"timestamp"`
}

// StatsResponse represents a stats response
type StatsResponse struct {
	Result    string                        `json:"result"`
	Providers map[string]storage.Statistics `json:"providers"`
}

// ErrorResponse represents a generic error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// statusFor maps a storage result onto an HTTP status code.
func statusFor(r storage.Result) int {
	switch r {
	case storage.Success:
		return http.StatusOK
	case storage.PartialSuccess:
		return http.StatusMultiStatus
	case storage.NotFound:
		return http.StatusNotFound
	case storage.InvalidData, storage.UnsupportedStorageType:
		return http.StatusBadRequest
	case storage.Unauthorized:
		return http.StatusForbidden
	case storage.NotInitialized:
		return http.StatusServiceUnavailable
	case storage.NetworkError:
		return http.StatusBadGateway
	case storage.InsufficientSpace:
		return http.StatusInsufficientStorage
	case storage.NotImplemented:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

// kindVar parses the {kind} route variable, writing a 400 when it is unknown.
func (h *RESTHandler) kindVar(w http.ResponseWriter, r *http.Request) (storage.Kind, bool) {
	kind, err := storage.ParseKind(mux.Vars(r)["kind"])
	if err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return 0, false
	}
	return kind, true
}

// PUT /api/v1/{kind}/{key}
func (h *RESTHandler) PutKey(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	kind, ok := h.kindVar(w, r)
	if !ok {
		return
	}
	key := mux.Vars(r)["key"]

	body := r.Body
	if h.maxBodySize > 0 {
		body = http.MaxBytesReader(w, r.Body, h.maxBodySize)
	}
	var req PutRequest
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeErrorResponse(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		h.logger.LogException(ctx, slog.LevelWarn, logging.CategoryAPI, "PUT request with invalid JSON", err)
		h.writeErrorResponse(w, http.StatusBadRequest, "Invalid JSON request")
		return
	}

	data := []byte(req.Value)
	if req.Encoding == encodingBase64 {
		decoded, err := base64.StdEncoding.DecodeString(req.Value)
		if err != nil {
			h.writeErrorResponse(w, http.StatusBadRequest, "Value is not valid base64")
			return
		}
		data = decoded
	}

	h.logger.Log(ctx, slog.LevelDebug, logging.CategoryAPI, "Processing PUT request",
		"kind", kind.String(),
		"key", key,
		"value_length", len(data),
	)

	result := h.manager.SaveBytes(ctx, key, data, kind)
	h.writeJSONResponse(w, statusFor(result), ResultResponse{Success: result.OK(), Result: result.String()})
}

// GET /api/v1/{kind}/{key}
func (h *RESTHandler) GetKey(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kindVar(w, r)
	if !ok {
		return
	}
	key := mux.Vars(r)["key"]

	data, result := h.manager.LoadBytes(r.Context(), key, kind)
	resp := GetResponse{
		Found:  result.OK(),
		Kind:   kind.String(),
		Key:    key,
		Size:   len(data),
		Result: result.String(),
	}
	if result.OK() {
		if utf8.Valid(data) {
			resp.Value = string(data)
		} else {
			resp.Value = base64.StdEncoding.EncodeToString(data)
			resp.Encoding = encodingBase64
		}
	}
	h.writeJSONResponse(w, statusFor(result), resp)
}

// DELETE /api/v1/{kind}/{key}
func (h *RESTHandler) DeleteKey(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kindVar(w, r)
	if !ok {
		return
	}
	result := h.manager.Delete(r.Context(), mux.Vars(r)["key"], kind)
	h.writeJSONResponse(w, statusFor(result), ResultResponse{Success: result.OK(), Result: result.String()})
}

// HEAD /api/v1/{kind}/{key}
func (h *RESTHandler) ExistsKey(w http.ResponseWriter, r *http.Request) {
	kind, err := storage.ParseKind(mux.Vars(r)["kind"])
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	exists, result := h.manager.Exists(r.Context(), mux.Vars(r)["key"], kind)
	switch {
	case !result.OK():
		w.WriteHeader(statusFor(result))
	case exists:
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// GET /api/v1/{kind}?limit={limit}
func (h *RESTHandler) ListKeys(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kindVar(w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.writeErrorResponse(w, http.StatusBadRequest, "Invalid limit parameter")
			return
		}
		limit = n
	}

	keys, result := h.manager.ListKeys(r.Context(), kind)
	hasMore := false
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
		hasMore = true
	}
	if keys == nil {
		keys = []string{}
	}
	h.writeJSONResponse(w, statusFor(result), ListKeysResponse{
		Kind:    kind.String(),
		Keys:    keys,
		Count:   len(keys),
		HasMore: hasMore,
		Result:  result.String(),
	})
}

// DELETE /api/v1/{kind}
func (h *RESTHandler) ClearKind(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kindVar(w, r)
	if !ok {
		return
	}
	result := h.manager.Clear(r.Context(), kind)
	h.logger.Log(r.Context(), slog.LevelInfo, logging.CategoryAPI, "Cleared storage kind",
		"kind", kind.String(),
		"result", result.String(),
	)
	h.writeJSONResponse(w, statusFor(result), ResultResponse{Success: result.OK(), Result: result.String()})
}

// GET /health
func (h *RESTHandler) Health(w http.ResponseWriter, r *http.Request) {
	h.logger.Log(r.Context(), slog.LevelDebug, logging.CategoryAPI, "Processing health check request")

	kinds := []string{}
	for _, kind := range h.manager.Kinds() {
		kinds = append(kinds, kind.String())
	}
	healthy := h.manager.Ready()
	status, code := "healthy", http.StatusOK
	if !healthy {
		status, code = "initializing", http.StatusServiceUnavailable
	}

	h.writeJSONResponse(w, code, HealthResponse{
		Healthy:       healthy,
		Status:        status,
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
		Kinds:         kinds,
		Timestamp:     time.Now().Unix(),
	})
}

// GET /api/v1/stats
func (h *RESTHandler) Stats(w http.ResponseWriter, r *http.Request) {
	all, result := h.manager.StatisticsAll(r.Context())
	providers := make(map[string]storage.Statistics, len(all))
	for kind, stats := range all {
		providers[kind.String()] = stats
	}
	code := http.StatusOK
	if result == storage.NotInitialized {
		code = statusFor(result)
	}
	h.writeJSONResponse(w, code, StatsResponse{Result: result.String(), Providers: providers})
}

// GET /api/v1/stats/{kind}
func (h *RESTHandler) KindStats(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kindVar(w, r)
	if !ok {
		return
	}
	stats, result := h.manager.Statistics(r.Context(), kind)
	resp := StatsResponse{Result: result.String(), Providers: map[string]storage.Statistics{}}
	if result.OK() {
		resp.Providers[kind.String()] = stats
	}
	h.writeJSONResponse(w, statusFor(result), resp)
}

func (h *RESTHandler) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil && !errors.Is(err, io.ErrClosedPipe) {
		h.logger.LogException(context.Background(), slog.LevelError, logging.CategoryAPI, "Failed to encode JSON response", err)
	}
}

func (h *RESTHandler) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	h.writeJSONResponse(w, statusCode, ErrorResponse{
		Error:   message,
		Code:    statusCode,
		Message: http.StatusText(statusCode),
	})
}

// CORS middleware
func (h *RESTHandler) CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, PUT, DELETE, HEAD, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
