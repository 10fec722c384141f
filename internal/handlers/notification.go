package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/festra/festra-api/internal/authz"
	"github.com/festra/festra-api/internal/idempotency"
	"github.com/festra/festra-api/internal/models"
	"github.com/festra/festra-api/internal/repository"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// DispatchPublisher enqueues a dispatch trigger for a freshly created
// notification. The sweep worker covers the case where publishing fails.
type DispatchPublisher interface {
	PublishDispatch(notificationID string) error
}

type NotificationHandler struct {
	notifications repository.NotificationRepository
	publisher     DispatchPublisher
	guard         *idempotency.Guard
	logger        zerolog.Logger
}

func NewNotificationHandler(notifications repository.NotificationRepository, publisher DispatchPublisher, guard *idempotency.Guard, logger zerolog.Logger) *NotificationHandler {
	return &NotificationHandler{
		notifications: notifications,
		publisher:     publisher,
		guard:         guard,
		logger:        logger.With().Str("handler", "notification").Logger(),
	}
}

type createNotificationRequest struct {
	Title        string                 `json:"title"`
	Body         string                 `json:"body"`
	Category     string                 `json:"category"`
	Priority     string                 `json:"priority"`
	TargetGroups []string               `json:"target_groups"`
	Payload      map[string]interface{} `json:"payload"`
}

// Create handles the admin broadcast endpoint. The record is persisted as
// pending; the dispatch pipeline picks it up via the queue or the sweep.
func (h *NotificationHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := authz.UserIDFromRequest(r)
	if !ok {
		http.Error(w, "Missing user context", http.StatusUnauthorized)
		return
	}

	var req createNotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	req.Title = strings.TrimSpace(req.Title)
	req.Body = strings.TrimSpace(req.Body)
	if req.Title == "" || req.Body == "" {
		http.Error(w, "Title and body are required", http.StatusBadRequest)
		return
	}

	priority := models.NotificationPriorityNormal
	switch req.Priority {
	case "", string(models.NotificationPriorityNormal):
	case string(models.NotificationPriorityHigh):
		priority = models.NotificationPriorityHigh
	default:
		http.Error(w, "Priority must be normal or high", http.StatusBadRequest)
		return
	}

	if key := strings.TrimSpace(r.Header.Get("Idempotency-Key")); key != "" {
		duplicate, err := h.guard.IsDuplicate(r.Context(), key)
		if err != nil {
			h.logger.Warn().Err(err).Msg("idempotency check failed; proceeding without it")
		} else if duplicate {
			http.Error(w, "Duplicate request", http.StatusConflict)
			return
		}
	}

	notif, err := h.notifications.Create(r.Context(), repository.CreateNotificationParams{
		Title:        req.Title,
		Body:         req.Body,
		Category:     req.Category,
		Priority:     priority,
		TargetGroups: req.TargetGroups,
		Payload:      req.Payload,
		CreatedBy:    userID,
	})
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to create notification")
		http.Error(w, "Failed to create notification", http.StatusInternalServerError)
		return
	}

	if h.publisher != nil {
		if err := h.publisher.PublishDispatch(notif.ID); err != nil {
			// The sweep worker will pick the record up.
			h.logger.Warn().Err(err).Str("notification_id", notif.ID).Msg("failed to publish dispatch trigger")
		}
	}

	writeJSON(w, http.StatusCreated, notif)
}

func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := authz.UserIDFromRequest(r)
	if !ok {
		http.Error(w, "Missing user context", http.StatusUnauthorized)
		return
	}

	limit := 25
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	notifications, err := h.notifications.ListRecent(r.Context(), userID, limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list notifications")
		http.Error(w, "Failed to list notifications", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"notifications": notifications,
	})
}

func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := authz.UserIDFromRequest(r)
	if !ok {
		http.Error(w, "Missing user context", http.StatusUnauthorized)
		return
	}

	notifID := strings.TrimSpace(mux.Vars(r)["notificationID"])
	if notifID == "" {
		http.Error(w, "Notification ID is required", http.StatusBadRequest)
		return
	}

	if _, err := h.notifications.Get(r.Context(), notifID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "Notification not found", http.StatusNotFound)
			return
		}
		h.logger.Error().Err(err).Str("notification_id", notifID).Msg("failed to load notification")
		http.Error(w, "Failed to update notification", http.StatusInternalServerError)
		return
	}

	if err := h.notifications.MarkRead(r.Context(), userID, notifID); err != nil {
		h.logger.Error().Err(err).Str("notification_id", notifID).Msg("failed to mark notification as read")
		http.Error(w, "Failed to update notification", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "read"})
}
