package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/zzjunior/whatsapp-checker-api/internal/auth"
	"github.com/zzjunior/whatsapp-checker-api/internal/domain"
	"github.com/zzjunior/whatsapp-checker-api/internal/middleware"
)

var validate = validator.New()

// AuthHandler handles admin-panel login and user management.
type AuthHandler struct {
	auth  *auth.Service
	users domain.UserRepository
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(authSvc *auth.Service, users domain.UserRepository) *AuthHandler {
	return &AuthHandler{auth: authSvc, users: users}
}

// LoginRequest is the POST /auth/login payload.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.NewValidationError("invalid request body"))
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, domain.NewValidationError(err.Error()))
		return
	}

	token, user, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		log.Warn().Str("username", req.Username).Msg("Login failed")
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token": token,
		"user":  user,
	})
}

// Me handles GET /auth/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.ClaimsFromContext(r.Context())

	user, err := h.users.GetByID(r.Context(), claims.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// CreateUserRequest is the POST /users payload.
type CreateUserRequest struct {
	Username string `json:"username" validate:"required,min=3,max=64"`
	Password string `json:"password" validate:"required,min=6"`
	Role     string `json:"role" validate:"omitempty,oneof=admin user"`
}

// CreateUser handles POST /users (admin only).
func (h *AuthHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.NewValidationError("invalid request body"))
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, domain.NewValidationError(err.Error()))
		return
	}

	role := domain.Role(req.Role)
	if role == "" {
		role = domain.RoleUser
	}

	user, err := h.auth.CreateUser(r.Context(), req.Username, req.Password, role)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

// ListUsers handles GET /users (admin only).
func (h *AuthHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.GetAll(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"users": users,
		"total": len(users),
	})
}

// DeleteUser handles DELETE /users/{userID} (admin only).
func (h *AuthHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		writeError(w, domain.NewValidationError("invalid user ID"))
		return
	}

	claims, _ := middleware.ClaimsFromContext(r.Context())
	if domain.UserID(id) == claims.UserID {
		writeError(w, domain.NewValidationError("cannot delete your own account"))
		return
	}

	if err := h.users.Delete(r.Context(), domain.UserID(id)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "user deleted"})
}

// ChangePasswordRequest is the PUT /auth/password payload.
type ChangePasswordRequest struct {
	Password string `json:"password" validate:"required,min=6"`
}

// ChangePassword handles PUT /auth/password.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.NewValidationError("invalid request body"))
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, domain.NewValidationError(err.Error()))
		return
	}

	claims, _ := middleware.ClaimsFromContext(r.Context())
	if err := h.auth.ChangePassword(r.Context(), claims.UserID, req.Password); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "password updated"})
}
