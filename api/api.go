// Package api exposes the operational HTTP surface: health and readiness
// probes, Prometheus metrics, and read-only views of targets, rules and
// cases.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"auditsync/storage"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Pinger is anything whose connectivity the readiness probe checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// API serves the HTTP endpoints.
type API struct {
	router      *mux.Router
	server      *http.Server
	targets     storage.TargetStorageInterface
	rules       storage.RuleStorageInterface
	cases       storage.CaseStorageInterface
	extractions storage.CaseExtractionStorageInterface
	store       Pinger
	source      Pinger
	logger      *zap.SugaredLogger
}

// NewAPI creates the API server and registers its routes.
func NewAPI(targets storage.TargetStorageInterface, rules storage.RuleStorageInterface,
	cases storage.CaseStorageInterface, extractions storage.CaseExtractionStorageInterface,
	store, source Pinger, logger *zap.SugaredLogger) *API {
	a := &API{
		router:      mux.NewRouter(),
		targets:     targets,
		rules:       rules,
		cases:       cases,
		extractions: extractions,
		store:       store,
		source:      source,
		logger:      logger,
	}
	a.setupRoutes()
	return a
}

func (a *API) setupRoutes() {
	a.router.HandleFunc("/health", a.healthCheck).Methods("GET")
	a.router.HandleFunc("/ready", a.readyCheck).Methods("GET")
	a.router.Handle("/metrics", promhttp.Handler())
	a.router.HandleFunc("/api/targets", a.getTargets).Methods("GET")
	a.router.HandleFunc("/api/targets/{name}/rules", a.getTargetRules).Methods("GET")
	a.router.HandleFunc("/api/cases", a.getOpenCases).Methods("GET")
	a.router.HandleFunc("/api/cases/{id}", a.getCase).Methods("GET")
}

// Start runs the HTTP server. Blocks until the server stops.
func (a *API) Start(addr string) error {
	a.server = &http.Server{
		Addr:         addr,
		Handler:      a.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	a.logger.Infof("API server listening on %s", addr)
	return a.server.ListenAndServe()
}

// Shutdown stops the HTTP server gracefully.
func (a *API) Shutdown(ctx context.Context) error {
	if a.server == nil {
		return nil
	}
	return a.server.Shutdown(ctx)
}

// Router exposes the handler for tests.
func (a *API) Router() http.Handler {
	return a.router
}

// respondJSON writes a JSON response with proper error handling
func (a *API) respondJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		a.logger.Errorw("Failed to encode JSON response",
			"error", err,
			"data_type", fmt.Sprintf("%T", data))
	}
}

func (a *API) respondError(w http.ResponseWriter, message string, statusCode int) {
	a.respondJSON(w, map[string]string{"error": message}, statusCode)
}

func (a *API) healthCheck(w http.ResponseWriter, r *http.Request) {
	a.respondJSON(w, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	}, http.StatusOK)
}

// readyCheck verifies the store and stream connections. A consumer that
// cannot reach either is alive but not ready.
func (a *API) readyCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]string{"storage": "ok", "stream": "ok"}
	status := http.StatusOK

	if err := a.store.Ping(ctx); err != nil {
		checks["storage"] = err.Error()
		status = http.StatusServiceUnavailable
	}
	if err := a.source.Ping(ctx); err != nil {
		checks["stream"] = err.Error()
		status = http.StatusServiceUnavailable
	}

	a.respondJSON(w, checks, status)
}

func (a *API) getTargets(w http.ResponseWriter, r *http.Request) {
	targets, err := a.targets.List(r.Context())
	if err != nil {
		a.logger.Errorf("Failed to list targets: %v", err)
		a.respondError(w, "failed to list targets", http.StatusInternalServerError)
		return
	}
	a.respondJSON(w, targets, http.StatusOK)
}

func (a *API) getTargetRules(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	exists, err := a.targets.Exists(r.Context(), name)
	if err != nil {
		a.logger.Errorf("Failed to check target %s: %v", name, err)
		a.respondError(w, "failed to check target", http.StatusInternalServerError)
		return
	}
	if !exists {
		a.respondError(w, "target not found", http.StatusNotFound)
		return
	}

	rules, err := a.rules.GetRulesByTarget(r.Context(), name)
	if err != nil {
		a.logger.Errorf("Failed to list rules for target %s: %v", name, err)
		a.respondError(w, "failed to list rules", http.StatusInternalServerError)
		return
	}
	a.respondJSON(w, rules, http.StatusOK)
}

func (a *API) getOpenCases(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	cases, err := a.cases.ListOpen(r.Context(), limit, offset)
	if err != nil {
		a.logger.Errorf("Failed to list open cases: %v", err)
		a.respondError(w, "failed to list cases", http.StatusInternalServerError)
		return
	}
	a.respondJSON(w, cases, http.StatusOK)
}

func (a *API) getCase(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	c, err := a.cases.GetByID(r.Context(), id)
	if errors.Is(err, storage.ErrCaseNotFound) {
		a.respondError(w, "case not found", http.StatusNotFound)
		return
	}
	if err != nil {
		a.logger.Errorf("Failed to get case %s: %v", id, err)
		a.respondError(w, "failed to get case", http.StatusInternalServerError)
		return
	}

	extractions, err := a.extractions.GetByCase(r.Context(), id)
	if err != nil {
		a.logger.Errorf("Failed to get extractions for case %s: %v", id, err)
		a.respondError(w, "failed to get extractions", http.StatusInternalServerError)
		return
	}

	a.respondJSON(w, map[string]interface{}{
		"case":        c,
		"extractions": extractions,
	}, http.StatusOK)
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}
