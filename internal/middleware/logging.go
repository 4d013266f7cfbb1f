package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (sr *statusRecorder) WriteHeader(code int) {
	if !sr.written {
		sr.statusCode = code
		sr.written = true
	}
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if !sr.written {
		sr.statusCode = http.StatusOK
		sr.written = true
	}
	return sr.ResponseWriter.Write(b)
}

// userIDSlot lets the logging middleware, which wraps auth, see the user id set further in
type userIDSlot struct{ userID string }

const userIDSlotKey contextKey = "user_id_slot"

// NewLoggingMiddleware logs one structured line per request with method, path, status,
// duration_ms and, when authenticated, user_id
func NewLoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			slot := &userIDSlot{}

			ctx := r.Context()
			next.ServeHTTP(rec, r.WithContext(contextWithSlot(ctx, slot)))

			durationMs := float64(time.Since(start).Nanoseconds()) / float64(time.Millisecond)
			args := []any{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.statusCode),
				slog.Float64("duration_ms", durationMs),
			}
			if slot.userID != "" {
				args = append(args, slog.String("user_id", slot.userID))
			}

			level := slog.LevelInfo
			if rec.statusCode >= 500 {
				level = slog.LevelError
			} else if rec.statusCode >= 400 {
				level = slog.LevelWarn
			}
			logger.Log(ctx, level, "http_request", args...)
		})
	}
}

func contextWithSlot(ctx context.Context, slot *userIDSlot) context.Context {
	return context.WithValue(ctx, userIDSlotKey, slot)
}
