package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/zzjunior/whatsapp-checker-api/internal/domain"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

// writeError maps domain error types onto HTTP statuses. Unclassified errors
// become opaque 500s so internals never leak to callers.
func writeError(w http.ResponseWriter, err error) {
	var status int
	message := err.Error()

	switch err.(type) {
	case *domain.ValidationError:
		status = http.StatusBadRequest
	case *domain.NotFoundError:
		status = http.StatusNotFound
	case *domain.ForbiddenError:
		status = http.StatusForbidden
	case *domain.AlreadyExistsError, *domain.ConflictError:
		status = http.StatusConflict
	case *domain.QuotaExceededError:
		status = http.StatusTooManyRequests
	case *domain.NotConnectedError:
		status = http.StatusServiceUnavailable
	case *domain.UpstreamError:
		status = http.StatusBadGateway
	default:
		status = http.StatusInternalServerError
		message = "internal server error"
	}

	writeJSON(w, status, map[string]string{"error": message})
}
