package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/loomworks/millgo/internal/middleware"
	"github.com/loomworks/millgo/internal/models"
	"github.com/loomworks/millgo/internal/production"
)

func pathID(req *http.Request, key string) uint {
	id, _ := strconv.ParseUint(mux.Vars(req)[key], 10, 64)
	return uint(id)
}

// startOrder moves a pending order into progress
func (r *Router) startOrder(w http.ResponseWriter, req *http.Request) {
	if err := r.production.Start(pathID(req, "id"), middleware.Authorized(req)); err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": models.OrderStatusInProgress})
}

// reserveInputs FIFO-reserves upstream rolls for a coating order
func (r *Router) reserveInputs(w http.ResponseWriter, req *http.Request) {
	rolls, err := r.production.ReserveInputs(pathID(req, "id"), middleware.Authorized(req))
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, rolls)
}

// completeOrder records the grading breakdown and closes the order
func (r *Router) completeOrder(w http.ResponseWriter, req *http.Request) {
	var input production.CompletionInput
	if err := json.NewDecoder(req.Body).Decode(&input); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid grading breakdown payload")
		return
	}

	batch, err := r.production.Complete(pathID(req, "id"), input, middleware.Authorized(req))
	if err != nil {
		respondEngineError(w, err)
		return
	}

	// The completion is committed at this point. A sweep failure must not
	// make the caller believe the completion failed, so it is reported
	// alongside the batch instead of as an error status.
	response := map[string]interface{}{"batch": batch}
	sweep, err := r.allocation.SweepPendingDemand(batch.FabricID, middleware.Authorized(req))
	if err != nil {
		response["sweep_error"] = err.Error()
	} else {
		response["sweep"] = sweep
	}
	respondJSON(w, http.StatusOK, response)
}

// holdOrder parks an order
func (r *Router) holdOrder(w http.ResponseWriter, req *http.Request) {
	if err := r.production.Hold(pathID(req, "id"), middleware.Authorized(req)); err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": models.OrderStatusOnHold})
}

// resumeOrder returns an on-hold order to its previous state
func (r *Router) resumeOrder(w http.ResponseWriter, req *http.Request) {
	if err := r.production.Resume(pathID(req, "id"), middleware.Authorized(req)); err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "resumed"})
}

// listOrders returns production orders, optionally filtered by status/kind
func (r *Router) listOrders(w http.ResponseWriter, req *http.Request) {
	q := r.db.Order("created_at DESC")
	if status := req.URL.Query().Get("status"); status != "" {
		q = q.Where("status = ?", status)
	}
	if kind := req.URL.Query().Get("kind"); kind != "" {
		q = q.Where("kind = ?", kind)
	}
	var orders []models.ProductionOrder
	if err := q.Find(&orders).Error; err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch orders")
		return
	}
	respondJSON(w, http.StatusOK, orders)
}

// getOrder returns one production order with its upstream link
func (r *Router) getOrder(w http.ResponseWriter, req *http.Request) {
	var order models.ProductionOrder
	if err := r.db.Preload("UpstreamOrder").Preload("Fabric").First(&order, pathID(req, "id")).Error; err != nil {
		respondError(w, http.StatusNotFound, "Order not found")
		return
	}
	respondJSON(w, http.StatusOK, order)
}

// getBatch returns one production batch with its rolls
func (r *Router) getBatch(w http.ResponseWriter, req *http.Request) {
	var batch models.ProductionBatch
	if err := r.db.Preload("Rolls").First(&batch, pathID(req, "id")).Error; err != nil {
		respondError(w, http.StatusNotFound, "Batch not found")
		return
	}
	respondJSON(w, http.StatusOK, batch)
}
