package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mcqkaramu/server/internal/metrics"
	"github.com/mcqkaramu/server/internal/model"
)

const maxResponseBytes = 1 << 20

// Response is an upstream reply, whatever its HTTP status
type Response struct {
	StatusCode int
	Body       map[string]any
}

// Succeeded reports whether the body carries the provider's success sentinel
func (r *Response) Succeeded(sentinel string) bool {
	code, _ := r.Body["statusCode"].(string)
	return code == sentinel
}

// HTTPStatus is the status returned to the client: 200 on success, otherwise the
// upstream status, or 400 when the upstream said 200 but the body reports failure.
func (r *Response) HTTPStatus(sentinel string) int {
	switch {
	case r.Succeeded(sentinel):
		return http.StatusOK
	case r.StatusCode != http.StatusOK && r.StatusCode != 0:
		return r.StatusCode
	default:
		return http.StatusBadRequest
	}
}

// Client posts JSON requests to the provider table
type Client struct {
	httpClient *http.Client
	timeout    time.Duration
	table      map[model.Provider]Endpoint
	metrics    metrics.Recorder
}

// NewClient creates a provider client; every call is bounded by timeout
func NewClient(table map[model.Provider]Endpoint, timeout time.Duration, recorder metrics.Recorder) *Client {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		timeout:    timeout,
		table:      table,
		metrics:    recorder,
	}
}

// SuccessCode returns the success sentinel of p
func (c *Client) SuccessCode(p model.Provider) string {
	if ep, ok := c.table[p]; ok && ep.SuccessCode != "" {
		return ep.SuccessCode
	}
	return SuccessCode
}

// Call posts payload, merged with the provider credentials, to the operation's endpoint.
// Non-2xx replies are returned as a Response; only transport failures and timeouts are errors.
func (c *Client) Call(ctx context.Context, p model.Provider, op Operation, payload map[string]any) (*Response, error) {
	ep, ok := c.table[p]
	if !ok || !ep.Configured() {
		slog.ErrorContext(ctx, "service provider not configured", slog.String("provider", string(p)))
		return nil, model.NewInternalError("service provider not configured", nil)
	}
	path, ok := ep.Paths[op]
	if !ok {
		return nil, model.NewInternalError("unknown provider operation", fmt.Errorf("%s/%s", p, op))
	}

	body := make(map[string]any, len(payload)+2)
	body["applicationId"] = ep.ApplicationID
	body["password"] = ep.Password
	for k, v := range payload {
		body[k] = v
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, model.NewInternalError("failed to encode provider request", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, joinURL(ep.BaseURL, path), bytes.NewReader(raw))
	if err != nil {
		return nil, model.NewInternalError("failed to build provider request", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.RecordUpstream(string(p), string(op), metrics.OutcomeUnavailable, time.Since(start))
		slog.WarnContext(ctx, "provider call failed",
			slog.String("provider", string(p)),
			slog.String("operation", string(op)),
			slog.Any("error", err),
		)
		return nil, model.NewUpstreamUnavailableError(err)
	}
	defer resp.Body.Close()

	out, err := decodeBody(resp.Body)
	if err != nil {
		c.metrics.RecordUpstream(string(p), string(op), metrics.OutcomeUnavailable, time.Since(start))
		return nil, model.NewUpstreamUnavailableError(err)
	}

	result := &Response{StatusCode: resp.StatusCode, Body: out}
	outcome := metrics.OutcomeError
	if result.Succeeded(c.SuccessCode(p)) {
		outcome = metrics.OutcomeSuccess
	}
	c.metrics.RecordUpstream(string(p), string(op), outcome, time.Since(start))

	slog.DebugContext(ctx, "provider call",
		slog.String("provider", string(p)),
		slog.String("operation", string(op)),
		slog.Int("status", resp.StatusCode),
		slog.String("outcome", outcome),
	)
	return result, nil
}

// decodeBody parses a JSON object; any other payload is kept as statusDetail text
func decodeBody(r io.Reader) (map[string]any, error) {
	raw, err := io.ReadAll(io.LimitReader(r, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read provider response: %w", err)
	}

	out := map[string]any{}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return out, nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return map[string]any{"statusDetail": string(trimmed)}, nil
	}
	return out, nil
}

func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}
