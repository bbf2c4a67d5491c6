package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"gorm.io/gorm"

	"github.com/loomworks/millgo/internal/allocation"
	"github.com/loomworks/millgo/internal/buildinfo"
	"github.com/loomworks/millgo/internal/config"
	"github.com/loomworks/millgo/internal/middleware"
	"github.com/loomworks/millgo/internal/models"
	"github.com/loomworks/millgo/internal/production"
	"github.com/loomworks/millgo/internal/stockledger"
)

// Router wraps the mux router, the database, and the engine services
type Router struct {
	*mux.Router
	db         *gorm.DB
	cfg        *config.Config
	production *production.Service
	allocation *allocation.Engine
	ledger     *stockledger.Ledger
}

// NewRouter creates a new HTTP router with all routes
func NewRouter(db *gorm.DB, cfg *config.Config, prod *production.Service, alloc *allocation.Engine, ledger *stockledger.Ledger) *Router {
	r := &Router{
		Router:     mux.NewRouter(),
		db:         db,
		cfg:        cfg,
		production: prod,
		allocation: alloc,
		ledger:     ledger,
	}

	// Health check endpoint
	r.HandleFunc("/health", r.healthCheck).Methods("GET")

	// API status
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", r.getStatus).Methods("GET")

	// Auth routes
	auth := r.PathPrefix("/auth").Subrouter()
	auth.HandleFunc("/login", r.login).Methods("POST")

	protect := middleware.AuthMiddleware(cfg.JWTSecret)

	// Production entry points (protected)
	prodRoutes := r.PathPrefix("/api/production").Subrouter()
	prodRoutes.Handle("/orders/{id}/start", protect(http.HandlerFunc(r.startOrder))).Methods("POST")
	prodRoutes.Handle("/orders/{id}/reserve", protect(http.HandlerFunc(r.reserveInputs))).Methods("POST")
	prodRoutes.Handle("/orders/{id}/complete", protect(http.HandlerFunc(r.completeOrder))).Methods("POST")
	prodRoutes.Handle("/orders/{id}/hold", protect(http.HandlerFunc(r.holdOrder))).Methods("POST")
	prodRoutes.Handle("/orders/{id}/resume", protect(http.HandlerFunc(r.resumeOrder))).Methods("POST")
	prodRoutes.HandleFunc("/orders", r.listOrders).Methods("GET")
	prodRoutes.HandleFunc("/orders/{id}", r.getOrder).Methods("GET")
	prodRoutes.HandleFunc("/batches/{id}", r.getBatch).Methods("GET")

	// Allocation entry points (protected)
	allocRoutes := r.PathPrefix("/api/allocation").Subrouter()
	allocRoutes.Handle("/demands/{id}/allocate", protect(http.HandlerFunc(r.allocateDemand))).Methods("POST")
	allocRoutes.Handle("/demands/{id}/manual", protect(http.HandlerFunc(r.manualAllocate))).Methods("POST")
	allocRoutes.Handle("/sweep/{fabricId}", protect(http.HandlerFunc(r.sweepFabric))).Methods("POST")

	// Roll housekeeping (protected)
	r.Handle("/api/rolls/archive/{fabricId}", protect(http.HandlerFunc(r.archiveRolls))).Methods("POST")

	// Read-only projections
	r.HandleFunc("/api/rolls", r.listRolls).Methods("GET")
	r.HandleFunc("/api/rolls/{id}", r.getRoll).Methods("GET")
	r.HandleFunc("/api/demands", r.listDemands).Methods("GET")
	r.HandleFunc("/api/demands/{id}", r.getDemand).Methods("GET")
	r.HandleFunc("/api/stock", r.listStock).Methods("GET")
	r.HandleFunc("/api/stock/{fabricId}/movements", r.listMovements).Methods("GET")

	return r
}

// healthCheck returns the health status of the API
func (r *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"server": "local",
	})
}

// getStatus returns the current status
func (r *Router) getStatus(w http.ResponseWriter, req *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":      "running",
		"commit":      buildinfo.CommitHash,
		"commit_time": buildinfo.CommitTime,
		"built":       buildinfo.BuildTime,
		"started":     buildinfo.StartTime,
	})
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

// respondEngineError maps the engine error taxonomy to HTTP statuses so the
// UI can tell "nothing to allocate" from "integrity violation" from "you
// clicked complete twice".
func respondEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidTransition):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, models.ErrUnbalancedProduction):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, models.ErrConcurrencyConflict):
		respondError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, models.ErrNotAuthorized):
		respondError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, gorm.ErrRecordNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}
