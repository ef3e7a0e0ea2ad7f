package api

import (
	"net/http"

	"persistence-engine/internal/logging"

	"github.com/gorilla/mux"
)

// SetupRoutes configures all REST API routes
func (h *RESTHandler) SetupRoutes() *mux.Router {
	router := mux.NewRouter()

	// Apply middleware
	router.Use(logging.CorrelationIDMiddleware(h.logger))
	router.Use(logging.LoggingMiddleware(h.logger))
	router.Use(h.CORSMiddleware)

	// API version 1
	v1 := router.PathPrefix("/api/v1").Subrouter()

	// Fixed paths first so they are not taken for a storage kind.
	v1.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	v1.HandleFunc("/stats", h.Stats).Methods(http.MethodGet)
	v1.HandleFunc("/stats/{kind}", h.KindStats).Methods(http.MethodGet)

	// Per-kind operations
	v1.HandleFunc("/{kind}", h.ListKeys).Methods(http.MethodGet)
	v1.HandleFunc("/{kind}", h.ClearKind).Methods(http.MethodDelete)
	v1.HandleFunc("/{kind}/{key}", h.PutKey).Methods(http.MethodPut)
	v1.HandleFunc("/{kind}/{key}", h.GetKey).Methods(http.MethodGet)
	v1.HandleFunc("/{kind}/{key}", h.DeleteKey).Methods(http.MethodDelete)
	v1.HandleFunc("/{kind}/{key}", h.ExistsKey).Methods(http.MethodHead)

	// Handle OPTIONS for all routes (CORS preflight)
	v1.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	// Root endpoints
	router.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	router.HandleFunc("/", h.RootHandler).Methods(http.MethodGet)

	return router
}

// RootHandler handles requests to the root path
func (h *RESTHandler) RootHandler(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"service":     "Persistence Engine",
		"version":     "1.0.0",
		"api_version": "v1",
		"kinds":       []string{"keyvalue", "jsonfile", "binaryfile", "database", "cloud"},
		"endpoints": map[string]interface{}{
			"health": "/health or /api/v1/health",
			"stats":  "/api/v1/stats or /api/v1/stats/{kind}",
			"operations": map[string]string{
				"save":   "PUT /api/v1/{kind}/{key}",
				"load":   "GET /api/v1/{kind}/{key}",
				"delete": "DELETE /api/v1/{kind}/{key}",
				"exists": "HEAD /api/v1/{kind}/{key}",
				"list":   "GET /api/v1/{kind}?limit={limit}",
				"clear":  "DELETE /api/v1/{kind}",
			},
		},
	}

	h.writeJSONResponse(w, http.StatusOK, response)
}
