package handlers

import (
	"net/http"

	"github.com/loomworks/millgo/internal/middleware"
	"github.com/loomworks/millgo/internal/models"
)

// listRolls returns rolls, optionally filtered by fabric/color/status
func (r *Router) listRolls(w http.ResponseWriter, req *http.Request) {
	q := r.db.Where("archived = ?", false).Order("created_at ASC, roll_number ASC")
	if fabric := req.URL.Query().Get("fabric_id"); fabric != "" {
		q = q.Where("fabric_id = ?", fabric)
	}
	if color := req.URL.Query().Get("color"); color != "" {
		q = q.Where("color = ?", color)
	}
	if status := req.URL.Query().Get("status"); status != "" {
		q = q.Where("status = ?", status)
	}
	var rolls []models.Roll
	if err := q.Find(&rolls).Error; err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch rolls")
		return
	}
	respondJSON(w, http.StatusOK, rolls)
}

// getRoll returns one roll
func (r *Router) getRoll(w http.ResponseWriter, req *http.Request) {
	var roll models.Roll
	if err := r.db.Preload("Fabric").Preload("Batch").First(&roll, pathID(req, "id")).Error; err != nil {
		respondError(w, http.StatusNotFound, "Roll not found")
		return
	}
	respondJSON(w, http.StatusOK, roll)
}

// archiveRolls retires fully consumed rolls of a fabric from the listings
func (r *Router) archiveRolls(w http.ResponseWriter, req *http.Request) {
	archived, err := r.allocation.ArchiveExhausted(pathID(req, "fabricId"), middleware.Authorized(req))
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int64{"archived": archived})
}

// listStock returns the cached stock aggregates
func (r *Router) listStock(w http.ResponseWriter, req *http.Request) {
	var aggregates []models.StockAggregate
	if err := r.db.Preload("Fabric").Find(&aggregates).Error; err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch stock")
		return
	}
	respondJSON(w, http.StatusOK, aggregates)
}

// listMovements returns the movement log for one fabric, newest first
func (r *Router) listMovements(w http.ResponseWriter, req *http.Request) {
	var movements []models.StockMovement
	err := r.db.Where("fabric_id = ?", pathID(req, "fabricId")).
		Order("created_at DESC").
		Limit(500).
		Find(&movements).Error
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch movements")
		return
	}
	respondJSON(w, http.StatusOK, movements)
}
