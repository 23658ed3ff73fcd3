package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zzjunior/whatsapp-checker-api/internal/auth"
	"github.com/zzjunior/whatsapp-checker-api/internal/domain"
	"github.com/zzjunior/whatsapp-checker-api/internal/middleware"
)

// TokenHandler handles API token management for the admin panel.
type TokenHandler struct {
	auth      *auth.Service
	instances domain.InstanceRepository
}

// NewTokenHandler creates a new token handler.
func NewTokenHandler(authSvc *auth.Service, instances domain.InstanceRepository) *TokenHandler {
	return &TokenHandler{auth: authSvc, instances: instances}
}

// CreateTokenRequest is the POST /tokens payload. instance_id binds the token
// to one of the caller's instances; checks fail without a binding.
type CreateTokenRequest struct {
	Name          string     `json:"name" validate:"required,min=1,max=100"`
	InstanceID    int64      `json:"instance_id" validate:"omitempty,gt=0"`
	RequestsLimit int        `json:"requests_limit" validate:"omitempty,gt=0"`
	ExpiresAt     *time.Time `json:"expires_at"`
}

// Create handles POST /tokens.
func (h *TokenHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.NewValidationError("invalid request body"))
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, domain.NewValidationError(err.Error()))
		return
	}

	claims, _ := middleware.ClaimsFromContext(r.Context())

	instanceID := domain.InstanceID(req.InstanceID)
	if instanceID > 0 {
		inst, err := h.instances.GetByID(r.Context(), instanceID)
		if err != nil {
			writeError(w, err)
			return
		}
		if inst.UserID != claims.UserID {
			writeError(w, domain.ErrInstanceNotOwned(instanceID))
			return
		}
	}

	token, err := h.auth.CreateToken(r.Context(), claims.UserID, req.Name, instanceID, req.RequestsLimit, req.ExpiresAt)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, token)
}

// List handles GET /tokens.
func (h *TokenHandler) List(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.ClaimsFromContext(r.Context())

	tokens, err := h.auth.ListTokens(r.Context(), claims.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tokens": tokens,
		"total":  len(tokens),
	})
}

// Revoke handles DELETE /tokens/{tokenID}.
func (h *TokenHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "tokenID"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, domain.NewValidationError("invalid token ID"))
		return
	}

	claims, _ := middleware.ClaimsFromContext(r.Context())
	if err := h.auth.RevokeToken(r.Context(), claims.UserID, id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "token revoked"})
}
