package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcqkaramu/server/internal/middleware"
	"github.com/mcqkaramu/server/internal/provider"
	"github.com/mcqkaramu/server/internal/subscription"
)

type stubService struct {
	warnings    []string
	chargingIDs []string
}

func (s *stubService) ok() *subscription.Result {
	return &subscription.Result{
		Response: &provider.Response{StatusCode: http.StatusOK, Body: map[string]any{"statusCode": provider.SuccessCode}},
		Sentinel: provider.SuccessCode,
		Warnings: s.warnings,
	}
}

func (s *stubService) RequestOTP(context.Context, string, string, string) (*subscription.Result, error) {
	return s.ok(), nil
}

func (s *stubService) VerifyOTP(context.Context, string, string, string, string) (*subscription.Result, error) {
	return s.ok(), nil
}

func (s *stubService) Unsubscribe(context.Context, string) (*subscription.Result, error) {
	return s.ok(), nil
}

func (s *stubService) GetStatus(context.Context, string) (*subscription.Result, error) {
	return s.ok(), nil
}

func (s *stubService) GetChargingInfo(_ context.Context, subscriberIDs ...string) (*subscription.Result, error) {
	s.chargingIDs = subscriberIDs
	return s.ok(), nil
}

type allowDevice struct{}

func (allowDevice) IsValidDevice(context.Context, string, string) (bool, error) { return true, nil }

func captureDefaultLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func serveLocked(h http.HandlerFunc, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req = req.WithContext(middleware.WithUserID(req.Context(), "user-1"))
	req.Header.Set(middleware.DeviceIDHeader, "device-7")
	w := httptest.NewRecorder()
	middleware.SessionMiddleware(allowDevice{})(h).ServeHTTP(w, req)
	return w
}

func TestHandleOTPVerify_warningLogCarriesDevice(t *testing.T) {
	buf := captureDefaultLog(t)
	h := NewSubscriptionHandler(&stubService{warnings: []string{subscription.WarningIdentityNotSaved}})

	w := serveLocked(h.HandleOTPVerify, "/subscription/otp/verify",
		`{"subscriberId":"94711234567","referenceNo":"ref","otp":"123456"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, []any{subscription.WarningIdentityNotSaved}, body["warnings"])

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "otp verified with warnings", entry["msg"])
	assert.Equal(t, "device-7", entry["device_id"])
	assert.Equal(t, "user-1", entry["user_id"])
	assert.Equal(t, "94*******67", entry["subscriber"])
}

func TestHandleGetChargingInfo_collectsIDs(t *testing.T) {
	svc := &stubService{}
	h := NewSubscriptionHandler(svc)

	w := serveLocked(h.HandleGetChargingInfo, "/subscription/get-charging-info",
		`{"subscriberId":"94771234567","subscriberIds":["0761234567",94751234567]}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"94771234567", "0761234567", "94751234567"}, svc.chargingIDs)
}
