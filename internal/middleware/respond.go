package middleware

import (
	"encoding/json"
	"net/http"
)

// respondWithError sends the error envelope; code is omitted when empty
func respondWithError(w http.ResponseWriter, statusCode int, message, code string) {
	body := map[string]any{
		"apiStatus": "error",
		"message":   message,
	}
	if code != "" {
		body["statusCode"] = code
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}
