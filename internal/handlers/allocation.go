package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/loomworks/millgo/internal/allocation"
	"github.com/loomworks/millgo/internal/middleware"
	"github.com/loomworks/millgo/internal/models"
)

type allocateRequest struct {
	TargetQuantity decimal.Decimal `json:"target_quantity"`
}

// allocateDemand runs the FIFO auto-allocation path for one demand
func (r *Router) allocateDemand(w http.ResponseWriter, req *http.Request) {
	var body allocateRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid payload")
		return
	}

	pairs, err := r.allocation.Allocate(pathID(req, "id"), body.TargetQuantity, middleware.Authorized(req))
	if errors.Is(err, models.ErrNoAvailableStock) {
		// The demand legitimately stays unmet; not an error for the caller's
		// business flow.
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"allocations": []allocation.RollAllocation{},
			"unmet":       true,
		})
		return
	}
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"allocations": pairs,
		"unmet":       false,
	})
}

// manualAllocate applies operator-chosen roll selections
func (r *Router) manualAllocate(w http.ResponseWriter, req *http.Request) {
	var selections []allocation.RollSelection
	if err := json.NewDecoder(req.Body).Decode(&selections); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid payload")
		return
	}

	pairs, err := r.allocation.ManualAllocate(pathID(req, "id"), selections, middleware.Authorized(req))
	if errors.Is(err, models.ErrNoAvailableStock) {
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"allocations": []allocation.RollAllocation{},
			"unmet":       true,
		})
		return
	}
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"allocations": pairs,
		"unmet":       false,
	})
}

// sweepFabric serves all pending demand for a fabric, oldest first
func (r *Router) sweepFabric(w http.ResponseWriter, req *http.Request) {
	results, err := r.allocation.SweepPendingDemand(pathID(req, "fabricId"), middleware.Authorized(req))
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, results)
}

// listDemands returns demands, optionally filtered by status
func (r *Router) listDemands(w http.ResponseWriter, req *http.Request) {
	q := r.db.Order("created_at ASC")
	if status := req.URL.Query().Get("status"); status != "" {
		q = q.Where("status = ?", status)
	}
	var demands []models.Demand
	if err := q.Find(&demands).Error; err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch demands")
		return
	}
	respondJSON(w, http.StatusOK, demands)
}

// getDemand returns one demand
func (r *Router) getDemand(w http.ResponseWriter, req *http.Request) {
	var demand models.Demand
	if err := r.db.Preload("Fabric").First(&demand, pathID(req, "id")).Error; err != nil {
		respondError(w, http.StatusNotFound, "Demand not found")
		return
	}
	respondJSON(w, http.StatusOK, demand)
}
