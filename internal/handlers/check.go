package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/zzjunior/whatsapp-checker-api/internal/domain"
	"github.com/zzjunior/whatsapp-checker-api/internal/middleware"
	"github.com/zzjunior/whatsapp-checker-api/internal/verification"
)

// CheckHandler is the public, API-token-authenticated check surface.
type CheckHandler struct {
	verification *verification.Service
}

// NewCheckHandler creates a new check handler.
func NewCheckHandler(svc *verification.Service) *CheckHandler {
	return &CheckHandler{verification: svc}
}

// CheckRequest is the POST /check payload. force bypasses the cache and asks
// the live instance even when a fresh entry exists.
type CheckRequest struct {
	Phone string `json:"phone" validate:"required"`
	Force bool   `json:"force"`
}

// Check handles POST /check: does the phone exist on WhatsApp.
func (h *CheckHandler) Check(w http.ResponseWriter, r *http.Request) {
	var req CheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.NewValidationError("invalid request body"))
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, domain.NewValidationError(err.Error()))
		return
	}

	token, _ := middleware.TokenFromContext(r.Context())

	result, err := h.verification.Check(r.Context(), token, verification.Request{
		Phone:     req.Phone,
		Force:     req.Force,
		IPAddress: r.RemoteAddr,
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// CheckGet handles GET /check/{phone} for quick manual probes. ?force=true
// bypasses the cache.
func (h *CheckHandler) CheckGet(w http.ResponseWriter, r *http.Request) {
	phone := chi.URLParam(r, "phone")
	if phone == "" {
		writeError(w, domain.NewValidationError("phone is required"))
		return
	}

	token, _ := middleware.TokenFromContext(r.Context())

	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))

	result, err := h.verification.Check(r.Context(), token, verification.Request{
		Phone:     phone,
		Force:     force,
		IPAddress: r.RemoteAddr,
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
