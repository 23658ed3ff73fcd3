package handlers

import (
	"net/http"

	"github.com/zzjunior/whatsapp-checker-api/internal/domain"
	"github.com/zzjunior/whatsapp-checker-api/internal/middleware"
	"github.com/zzjunior/whatsapp-checker-api/internal/verification"
)

// StatsHandler serves verification counters to the admin panel.
type StatsHandler struct {
	verification *verification.Service
	tokens       domain.TokenRepository
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(svc *verification.Service, tokens domain.TokenRepository) *StatsHandler {
	return &StatsHandler{verification: svc, tokens: tokens}
}

// Stats handles GET /stats. Admins see global counters; everyone else sees
// their own.
func (h *StatsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.ClaimsFromContext(r.Context())

	var owner *domain.UserID
	if claims.Role != domain.RoleAdmin {
		owner = &claims.UserID
	}

	stats, err := h.verification.Stats(r.Context(), owner)
	if err != nil {
		writeError(w, err)
		return
	}

	if active, err := h.tokens.CountActive(r.Context(), claims.UserID); err == nil {
		stats.ActiveTokens = active
	}

	writeJSON(w, http.StatusOK, stats)
}
