package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/zzjunior/whatsapp-checker-api/internal/domain"
	"github.com/zzjunior/whatsapp-checker-api/internal/instance"
	"github.com/zzjunior/whatsapp-checker-api/internal/middleware"
)

// InstanceHandler handles instance lifecycle requests from the admin panel.
type InstanceHandler struct {
	registry *instance.Registry
	repo     domain.InstanceRepository
}

// NewInstanceHandler creates a new instance handler.
func NewInstanceHandler(registry *instance.Registry, repo domain.InstanceRepository) *InstanceHandler {
	return &InstanceHandler{registry: registry, repo: repo}
}

func instanceIDParam(r *http.Request) (domain.InstanceID, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "instanceID"), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.NewValidationError("invalid instance ID")
	}
	return domain.InstanceID(id), nil
}

// CreateInstanceRequest is the POST /instances payload.
type CreateInstanceRequest struct {
	Name string `json:"name" validate:"required,min=1,max=100"`
}

// Create handles POST /instances.
func (h *InstanceHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateInstanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.NewValidationError("invalid request body"))
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, domain.NewValidationError(err.Error()))
		return
	}

	claims, _ := middleware.ClaimsFromContext(r.Context())
	inst, err := h.registry.CreateInstance(r.Context(), claims.UserID, req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, inst)
}

// List handles GET /instances. Stored statuses are reconciled against the
// live handles before the response is built.
func (h *InstanceHandler) List(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.ClaimsFromContext(r.Context())

	instances, err := h.repo.GetByUser(r.Context(), claims.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	for _, inst := range instances {
		h.registry.StatusOf(r.Context(), inst)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"instances": instances,
		"total":     len(instances),
	})
}

// ListAll handles GET /instances/all (admin only).
func (h *InstanceHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	instances, err := h.repo.GetAll(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	for _, inst := range instances {
		h.registry.StatusOf(r.Context(), inst)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"instances": instances,
		"total":     len(instances),
	})
}

// Get handles GET /instances/{instanceID}.
func (h *InstanceHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := instanceIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	inst, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	claims, _ := middleware.ClaimsFromContext(r.Context())
	if inst.UserID != claims.UserID && claims.Role != domain.RoleAdmin {
		writeError(w, domain.ErrInstanceNotOwned(id))
		return
	}

	h.registry.StatusOf(r.Context(), inst)
	writeJSON(w, http.StatusOK, inst)
}

// Connect handles POST /instances/{instanceID}/connect. The QR code, when
// pairing is needed, is delivered over the realtime channel.
func (h *InstanceHandler) Connect(w http.ResponseWriter, r *http.Request) {
	id, err := instanceIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	claims, _ := middleware.ClaimsFromContext(r.Context())
	if _, err := h.registry.ConnectInstance(r.Context(), claims.UserID, id, nil); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "connection started",
		"status":  string(domain.StatusConnecting),
	})
}

// Disconnect handles POST /instances/{instanceID}/disconnect.
func (h *InstanceHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	id, err := instanceIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	claims, _ := middleware.ClaimsFromContext(r.Context())
	if err := h.registry.DisconnectInstance(r.Context(), claims.UserID, id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "instance disconnected",
		"status":  string(domain.StatusDisconnected),
	})
}

// Delete handles DELETE /instances/{instanceID}. Admins may delete any
// instance; other users only their own.
func (h *InstanceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := instanceIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	claims, _ := middleware.ClaimsFromContext(r.Context())

	owner := claims.UserID
	if claims.Role == domain.RoleAdmin {
		inst, err := h.repo.GetByID(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		owner = inst.UserID
	}

	if err := h.registry.DeleteInstance(r.Context(), owner, id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "instance deleted"})
}
