package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/mcqkaramu/server/internal/model"
	"github.com/mcqkaramu/server/internal/subscription"
)

const (
	apiStatusSuccess = "success"
	apiStatusError   = "error"

	maxRequestBytes = 64 << 10
)

// flexString accepts a JSON string or number; clients send subscriber ids either way
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return errors.New("expected string or number")
	}
	*f = flexString(n.String())
	return nil
}

// decodeJSON reads a JSON object body. An empty body decodes to the zero value.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return model.NewValidationError("invalid request body")
	}
	return nil
}

func respondWithJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", slog.Any("error", err))
	}
}

// respondWithError sends the error envelope
func respondWithError(w http.ResponseWriter, statusCode int, message, code string) {
	body := map[string]any{
		"apiStatus": apiStatusError,
		"message":   message,
	}
	if code != "" {
		body["statusCode"] = code
	}
	respondWithJSON(w, statusCode, body)
}

// respondWithAppError is the single boundary formatter for service errors
func respondWithAppError(w http.ResponseWriter, r *http.Request, err error) {
	appErr, ok := model.AsAppError(err)
	if !ok {
		appErr = model.NewInternalError("Internal server error", err)
	}

	if appErr.Status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("code", appErr.Code),
			slog.Any("error", err),
		)
	}
	respondWithError(w, appErr.Status, appErr.Message, appErr.Code)
}

// respondWithResult relays a classified provider reply with the apiStatus envelope
func respondWithResult(w http.ResponseWriter, result *subscription.Result) {
	body := make(map[string]any, len(result.Response.Body)+2)
	for k, v := range result.Response.Body {
		body[k] = v
	}

	if result.Succeeded() {
		body["apiStatus"] = apiStatusSuccess
	} else {
		body["apiStatus"] = apiStatusError
	}
	if len(result.Warnings) > 0 {
		body["warnings"] = result.Warnings
	}
	respondWithJSON(w, result.HTTPStatus(), body)
}

func unixOrNil(info *model.DeviceInfo) any {
	if info == nil {
		return nil
	}
	return info.UpdatedAt.Unix()
}

func headerValue(r *http.Request, name string) string {
	return strings.TrimSpace(r.Header.Get(name))
}
