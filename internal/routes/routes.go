package routes

import (
	"net/http"

	"github.com/festra/festra-api/internal/authz"
	"github.com/festra/festra-api/internal/handlers"
	"github.com/festra/festra-api/internal/models"
	"github.com/gorilla/mux"
)

// NewRouter sets up the API routes
func NewRouter(auth *handlers.AuthHandler, device *handlers.DeviceHandler, notification *handlers.NotificationHandler) *mux.Router {
	router := mux.NewRouter()

	// Health check route
	router.HandleFunc("/health", handlers.HealthCheck).Methods(http.MethodGet)

	// Public auth endpoints
	router.HandleFunc("/api/signup", auth.SignUp).Methods(http.MethodPost)
	router.HandleFunc("/api/login", auth.Login).Methods(http.MethodPost)

	// Authenticated endpoints
	api := router.PathPrefix("/api").Subrouter()
	api.Use(auth.JWTMiddleware)

	api.HandleFunc("/devices", device.Register).Methods(http.MethodPut)
	api.HandleFunc("/devices", device.Unregister).Methods(http.MethodDelete)

	api.Handle("/notifications",
		authz.RequireRoleHandler(models.RoleAdmin, http.HandlerFunc(notification.Create)),
	).Methods(http.MethodPost)
	api.HandleFunc("/notifications", notification.List).Methods(http.MethodGet)
	api.HandleFunc("/notifications/{notificationID}/read", notification.MarkRead).Methods(http.MethodPost)

	return router
}
