package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/mcqkaramu/server/internal/middleware"
	"github.com/mcqkaramu/server/internal/subscription"
)

// SubscriptionService is the OTP workflow behind the /subscription endpoints
type SubscriptionService interface {
	RequestOTP(ctx context.Context, subscriberID, device, os string) (*subscription.Result, error)
	VerifyOTP(ctx context.Context, ownerUserID, subscriberID, referenceNo, otp string) (*subscription.Result, error)
	Unsubscribe(ctx context.Context, subscriberID string) (*subscription.Result, error)
	GetStatus(ctx context.Context, subscriberID string) (*subscription.Result, error)
	GetChargingInfo(ctx context.Context, subscriberIDs ...string) (*subscription.Result, error)
}

// SubscriptionHandler handles the /subscription endpoints
type SubscriptionHandler struct {
	service SubscriptionService
}

// NewSubscriptionHandler creates a new subscription handler
func NewSubscriptionHandler(service SubscriptionService) *SubscriptionHandler {
	return &SubscriptionHandler{service: service}
}

// subscriptionRequest is the request body shared by the /subscription endpoints
type subscriptionRequest struct {
	SubscriberID  flexString   `json:"subscriberId"`
	SubscriberIDs []flexString `json:"subscriberIds"`
	Device        string       `json:"device"`
	OS            string       `json:"os"`
	ReferenceNo   flexString   `json:"referenceNo"`
	OTP           flexString   `json:"otp"`
}

func (h *SubscriptionHandler) decode(w http.ResponseWriter, r *http.Request) (subscriptionRequest, bool) {
	var req subscriptionRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithAppError(w, r, err)
		return req, false
	}
	return req, true
}

func (h *SubscriptionHandler) finish(w http.ResponseWriter, r *http.Request, result *subscription.Result, err error) {
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithResult(w, result)
}

// HandleOTPRequest handles POST /subscription/otp/request
func (h *SubscriptionHandler) HandleOTPRequest(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	result, err := h.service.RequestOTP(r.Context(), string(req.SubscriberID), req.Device, req.OS)
	h.finish(w, r, result, err)
}

// HandleOTPVerify handles POST /subscription/otp/verify
func (h *SubscriptionHandler) HandleOTPVerify(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	userID, _ := middleware.UserIDFromContext(r.Context())

	result, err := h.service.VerifyOTP(r.Context(), userID, string(req.SubscriberID), string(req.ReferenceNo), string(req.OTP))
	if err == nil && len(result.Warnings) > 0 {
		deviceID, _ := middleware.DeviceIDFromContext(r.Context())
		slog.WarnContext(r.Context(), "otp verified with warnings",
			logSubscriber(string(req.SubscriberID)),
			slog.String("user_id", userID),
			slog.String("device_id", deviceID),
			slog.Any("warnings", result.Warnings),
		)
	}
	h.finish(w, r, result, err)
}

// HandleUnsubscribe handles POST /subscription/unsubscribe
func (h *SubscriptionHandler) HandleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	result, err := h.service.Unsubscribe(r.Context(), string(req.SubscriberID))
	h.finish(w, r, result, err)
}

// HandleGetStatus handles POST /subscription/get-status
func (h *SubscriptionHandler) HandleGetStatus(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	result, err := h.service.GetStatus(r.Context(), string(req.SubscriberID))
	h.finish(w, r, result, err)
}

// HandleGetChargingInfo handles POST /subscription/get-charging-info.
// The body carries subscriberId, subscriberIds, or both.
func (h *SubscriptionHandler) HandleGetChargingInfo(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	ids := make([]string, 0, len(req.SubscriberIDs)+1)
	if req.SubscriberID != "" {
		ids = append(ids, string(req.SubscriberID))
	}
	for _, id := range req.SubscriberIDs {
		ids = append(ids, string(id))
	}
	result, err := h.service.GetChargingInfo(r.Context(), ids...)
	h.finish(w, r, result, err)
}
