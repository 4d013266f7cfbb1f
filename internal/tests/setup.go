package tests

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
)

// TruncateIdentityTables clears subscriber identities for a clean test state.
func TruncateIdentityTables(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, "TRUNCATE TABLE subscriber_identities"); err != nil {
		return fmt.Errorf("truncate identity tables: %w", err)
	}
	return nil
}

// ProviderCall is one request received by FakeProvider.
type ProviderCall struct {
	Path string
	Body map[string]any
}

// FakeProvider imitates a telecom subscription API. Verify succeeds for OTP "123456"
// and returns "tel:MASK-<referenceNo>" as the masked subscriber id.
type FakeProvider struct {
	*httptest.Server

	mu    sync.Mutex
	calls []ProviderCall
}

// NewFakeProvider starts a FakeProvider; callers must Close it.
func NewFakeProvider() *FakeProvider {
	f := &FakeProvider{}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	return f
}

// Calls returns a copy of the requests received so far.
func (f *FakeProvider) Calls() []ProviderCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ProviderCall(nil), f.calls...)
}

func (f *FakeProvider) serve(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)

	f.mu.Lock()
	f.calls = append(f.calls, ProviderCall{Path: r.URL.Path, Body: body})
	f.mu.Unlock()

	reply := map[string]any{"version": "1.0", "statusCode": "S1000"}
	switch r.URL.Path {
	case "/otp/request", "/subscription/otp/request":
		reply["referenceNo"] = "REF-1"
	case "/otp/verify", "/subscription/otp/verify":
		if body["otp"] != "123456" {
			w.WriteHeader(http.StatusOK)
			_ = json.NewEncoder(w).Encode(map[string]any{"statusCode": "E1850", "statusDetail": "Invalid OTP"})
			return
		}
		ref, _ := body["referenceNo"].(string)
		reply["subscriberId"] = "tel:MASK-" + ref
		reply["subscriptionStatus"] = "REGISTERED"
	case "/subscription/getStatus":
		reply["subscriptionStatus"] = "REGISTERED"
	case "/subscription/send":
		reply["subscriptionStatus"] = "UNREGISTERED"
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(reply)
}
