package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/festra/festra-api/internal/authz"
	"github.com/festra/festra-api/internal/push"
	"github.com/festra/festra-api/internal/repository"
	"github.com/rs/zerolog"
)

type DeviceHandler struct {
	users  repository.UserRepository
	logger zerolog.Logger
}

func NewDeviceHandler(users repository.UserRepository, logger zerolog.Logger) *DeviceHandler {
	return &DeviceHandler{
		users:  users,
		logger: logger.With().Str("handler", "device").Logger(),
	}
}

type registerDeviceRequest struct {
	Token string `json:"token"`
	Group string `json:"group"`
}

// Register stores the caller's push token. The dispatcher still validates
// token format on every fan-out; rows may predate this check.
func (h *DeviceHandler) Register(w http.ResponseWriter, r *http.Request) {
	userID, ok := authz.UserIDFromRequest(r)
	if !ok {
		http.Error(w, "Missing user context", http.StatusUnauthorized)
		return
	}

	var req registerDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	req.Token = strings.TrimSpace(req.Token)
	if !push.IsExpoPushToken(req.Token) {
		http.Error(w, "Invalid push token", http.StatusBadRequest)
		return
	}

	if err := h.users.SetPushToken(r.Context(), userID, req.Token, req.Group); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "User not found", http.StatusNotFound)
			return
		}
		h.logger.Error().Err(err).Str("user_id", userID).Msg("failed to save push token")
		http.Error(w, "Failed to register device", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "registered"})
}

func (h *DeviceHandler) Unregister(w http.ResponseWriter, r *http.Request) {
	userID, ok := authz.UserIDFromRequest(r)
	if !ok {
		http.Error(w, "Missing user context", http.StatusUnauthorized)
		return
	}

	if err := h.users.ClearPushToken(r.Context(), userID); err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("failed to clear push token")
		http.Error(w, "Failed to unregister device", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "unregistered"})
}
