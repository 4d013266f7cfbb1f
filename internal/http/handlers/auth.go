package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/mcqkaramu/server/internal/middleware"
	"github.com/mcqkaramu/server/internal/model"
	"github.com/mcqkaramu/server/internal/subscriber"
)

// DeviceSessions is the device session store used by the /auth endpoints
type DeviceSessions interface {
	RegisterDevice(ctx context.Context, userID, deviceID string) (model.UserSession, error)
	GetCurrentDevice(ctx context.Context, userID string) (*model.DeviceInfo, error)
}

// SubscriberLookup resolves the subscriber id a user last verified
type SubscriberLookup interface {
	GetSubscriberIDByUserID(ctx context.Context, userID string) (string, error)
}

// AuthHandler handles the /auth endpoints
type AuthHandler struct {
	sessions    DeviceSessions
	subscribers SubscriberLookup
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(sessions DeviceSessions, subscribers SubscriberLookup) *AuthHandler {
	return &AuthHandler{
		sessions:    sessions,
		subscribers: subscribers,
	}
}

// updateDeviceRequest is the request body for POST /auth/update-device
type updateDeviceRequest struct {
	DeviceID string `json:"deviceId"`
}

// HandleGetSubscriberID handles GET /auth/subscriber-id
func (h *AuthHandler) HandleGetSubscriberID(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondWithAppError(w, r, model.NewUnauthorizedError("Unauthorized"))
		return
	}

	subscriberID, err := h.subscribers.GetSubscriberIDByUserID(r.Context(), userID)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]any{
		"apiStatus":    apiStatusSuccess,
		"subscriberId": subscriberID,
	})
}

// HandleUpdateDevice handles POST /auth/update-device. The new device displaces any previous one.
func (h *AuthHandler) HandleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondWithAppError(w, r, model.NewUnauthorizedError("Unauthorized"))
		return
	}

	var req updateDeviceRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithAppError(w, r, err)
		return
	}
	req.DeviceID = strings.TrimSpace(req.DeviceID)
	if req.DeviceID == "" {
		respondWithAppError(w, r, model.NewValidationError("Device ID is required"))
		return
	}

	session, err := h.sessions.RegisterDevice(r.Context(), userID, req.DeviceID)
	if err != nil {
		respondWithAppError(w, r, model.NewInternalError("failed to register device", err))
		return
	}

	slog.InfoContext(r.Context(), "device registered",
		slog.String("user_id", userID),
		slog.String("session_id", session.ID.String()),
	)
	respondWithJSON(w, http.StatusOK, map[string]any{
		"apiStatus": apiStatusSuccess,
		"message":   "Device registered successfully",
		"updatedAt": session.UpdatedAt.Unix(),
	})
}

// HandleCheckDevice handles GET /auth/check-device
func (h *AuthHandler) HandleCheckDevice(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondWithAppError(w, r, model.NewUnauthorizedError("Unauthorized"))
		return
	}

	deviceID := headerValue(r, middleware.DeviceIDHeader)
	if deviceID == "" {
		respondWithAppError(w, r, model.NewValidationError("Device ID is required"))
		return
	}

	current, err := h.sessions.GetCurrentDevice(r.Context(), userID)
	if err != nil {
		respondWithAppError(w, r, model.NewInternalError("failed to look up device", err))
		return
	}

	if current != nil && current.DeviceID == deviceID {
		respondWithJSON(w, http.StatusOK, map[string]any{
			"apiStatus":       apiStatusSuccess,
			"message":         "Device is valid",
			"isCurrentDevice": true,
			"updatedAt":       current.UpdatedAt.Unix(),
		})
		return
	}

	respondWithJSON(w, http.StatusUnauthorized, map[string]any{
		"apiStatus":       apiStatusError,
		"message":         "Device is not the current registered device",
		"isCurrentDevice": false,
		"updatedAt":       unixOrNil(current),
		"statusCode":      model.CodeDeviceMismatch,
	})
}

func logSubscriber(id string) slog.Attr {
	return slog.String("subscriber", subscriber.MaskForLog(id))
}
