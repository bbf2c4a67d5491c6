package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/loomworks/millgo/internal/models"
	"github.com/loomworks/millgo/internal/utils"
)

type loginRequest struct {
	PIN string `json:"pin"`
}

// login exchanges the shared operator PIN for an operator token. The PIN is
// not a security model; it gates state-mutating operations the way the mill
// floor gates them.
func (r *Router) login(w http.ResponseWriter, req *http.Request) {
	var body loginRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid payload")
		return
	}

	var op models.OperatorAuth
	if err := r.db.First(&op).Error; err != nil {
		respondError(w, http.StatusInternalServerError, "Operator PIN not configured")
		return
	}
	if !utils.CheckPINHash(body.PIN, op.PINHash) {
		respondError(w, http.StatusUnauthorized, "Invalid PIN")
		return
	}

	token, err := utils.GenerateOperatorToken(r.cfg.JWTSecret)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to issue token")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"token": token})
}
