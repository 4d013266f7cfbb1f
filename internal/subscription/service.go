// Package subscription runs the OTP subscription workflow against the routed provider.
package subscription

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/mcqkaramu/server/internal/metrics"
	"github.com/mcqkaramu/server/internal/model"
	"github.com/mcqkaramu/server/internal/provider"
	"github.com/mcqkaramu/server/internal/subscriber"
	"github.com/mcqkaramu/server/internal/whitelist"
)

const (
	// MaxSaveAttempts bounds identity persistence after a verified OTP
	MaxSaveAttempts = 5

	applicationHash = "abcdefgh"
	defaultMetaData = "NOT_PROVIDED"
	metaClient      = "MOBILEAPP"
	metaAppCode     = "https://play.google.com/store/apps/details?id=lk"
	actionUnsub     = "0"

	// identitySaveTimeout caps the whole persistence loop once it is detached from the request
	identitySaveTimeout = 30 * time.Second

	// WarningIdentityNotSaved is attached to a verified response whose identity mapping was not persisted
	WarningIdentityNotSaved = "subscriber identity could not be saved; unsubscribe and status lookups will fail until verified again"
)

var errSaveFailed = errors.New("save subscriber identity failed")

// Upstream is the provider transport
type Upstream interface {
	Call(ctx context.Context, p model.Provider, op provider.Operation, payload map[string]any) (*provider.Response, error)
	SuccessCode(p model.Provider) string
}

// IdentityStore persists and resolves masked ids
type IdentityStore interface {
	SaveIdentity(ctx context.Context, ownerUserID, subscriberID, maskedID string) bool
	GetMaskedID(ctx context.Context, subscriberID string) (string, error)
}

// Result is a classified provider reply
type Result struct {
	Response *provider.Response
	Provider model.Provider
	Sentinel string
	// Warnings are non-fatal problems that occurred after the provider call succeeded
	Warnings []string
}

// Succeeded reports whether the provider accepted the call
func (r *Result) Succeeded() bool {
	return r.Response.Succeeded(r.Sentinel)
}

// HTTPStatus is the status to send to the client
func (r *Result) HTTPStatus() int {
	return r.Response.HTTPStatus(r.Sentinel)
}

// Service orchestrates normalization, whitelist bypass, routing, provider calls and identity persistence
type Service struct {
	upstream    Upstream
	identities  IdentityStore
	bypass      *whitelist.Bypass
	metrics     metrics.Recorder
	saveBackoff time.Duration
}

// NewService creates a subscription service. saveBackoff is the initial delay between
// persistence attempts; zero retries immediately.
func NewService(
	upstream Upstream,
	identities IdentityStore,
	bypass *whitelist.Bypass,
	recorder metrics.Recorder,
	saveBackoff time.Duration,
) *Service {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &Service{
		upstream:    upstream,
		identities:  identities,
		bypass:      bypass,
		metrics:     recorder,
		saveBackoff: saveBackoff,
	}
}

// RequestOTP asks the subscriber's provider to send an OTP
func (s *Service) RequestOTP(ctx context.Context, subscriberID, device, os string) (*Result, error) {
	canonical, err := subscriber.Normalize(subscriberID)
	if err != nil {
		return nil, err
	}

	if s.bypass.IsWhitelisted(canonical) {
		return s.canned(provider.OpOTPRequest, whitelist.OTPRequestResponse(canonical)), nil
	}

	payload := map[string]any{
		"subscriberId":    "tel:" + canonical,
		"applicationHash": applicationHash,
		"applicationMetaData": map[string]any{
			"client":  metaClient,
			"device":  orDefault(device),
			"os":      orDefault(os),
			"appCode": metaAppCode,
		},
	}
	return s.call(ctx, canonical, provider.OpOTPRequest, payload)
}

// VerifyOTP checks the OTP and, when the provider accepts it, stores the masked id it returns
func (s *Service) VerifyOTP(ctx context.Context, ownerUserID, subscriberID, referenceNo, otp string) (*Result, error) {
	canonical, err := subscriber.Normalize(subscriberID)
	if err != nil {
		return nil, err
	}
	switch {
	case ownerUserID == "":
		return nil, model.NewUnauthorizedError("Unauthorized")
	case referenceNo == "":
		return nil, model.NewValidationError("referenceNo is required")
	case otp == "":
		return nil, model.NewValidationError("otp is required")
	}

	if s.bypass.IsWhitelisted(canonical) {
		return s.canned(provider.OpOTPVerify, whitelist.OTPVerifyResponse(otp)), nil
	}

	result, err := s.call(ctx, canonical, provider.OpOTPVerify, map[string]any{
		"referenceNo": referenceNo,
		"otp":         otp,
	})
	if err != nil {
		return nil, err
	}
	if !result.Succeeded() {
		return result, nil
	}

	maskedID, _ := result.Response.Body["subscriberId"].(string)
	if !s.saveIdentity(ctx, ownerUserID, canonical, maskedID) {
		s.metrics.RecordIdentitySaveExhausted()
		slog.ErrorContext(ctx, "subscriber identity not persisted after verification",
			slog.String("subscriber", subscriber.MaskForLog(canonical)),
			slog.String("user_id", ownerUserID),
			slog.Int("attempts", MaxSaveAttempts),
		)
		result.Warnings = append(result.Warnings, WarningIdentityNotSaved)
	}
	return result, nil
}

// Unsubscribe cancels the subscription of a previously verified subscriber
func (s *Service) Unsubscribe(ctx context.Context, subscriberID string) (*Result, error) {
	return s.maskedCall(ctx, subscriberID, provider.OpUnsubscribe, whitelist.UnsubscribeResponse, func(masked string) map[string]any {
		return map[string]any{"subscriberId": masked, "action": actionUnsub}
	})
}

// GetStatus returns the subscription status of a previously verified subscriber
func (s *Service) GetStatus(ctx context.Context, subscriberID string) (*Result, error) {
	return s.maskedCall(ctx, subscriberID, provider.OpGetStatus, whitelist.GetStatusResponse, func(masked string) map[string]any {
		return map[string]any{"subscriberId": masked}
	})
}

// GetChargingInfo returns charging details for one or more previously verified subscribers.
// All ids go to the provider of the first one in a single request.
func (s *Service) GetChargingInfo(ctx context.Context, subscriberIDs ...string) (*Result, error) {
	if len(subscriberIDs) == 0 {
		return nil, model.NewValidationError("subscriberId is required")
	}

	canonical := make([]string, 0, len(subscriberIDs))
	whitelisted := true
	for _, id := range subscriberIDs {
		c, err := subscriber.Normalize(id)
		if err != nil {
			return nil, err
		}
		canonical = append(canonical, c)
		whitelisted = whitelisted && s.bypass.IsWhitelisted(c)
	}
	if whitelisted {
		return s.canned(provider.OpGetChargingInfo, whitelist.GetChargingInfoResponse()), nil
	}

	p := subscriber.ResolveProvider(canonical[0])
	masked := make([]string, 0, len(canonical))
	for _, c := range canonical {
		if subscriber.ResolveProvider(c) != p {
			return nil, model.NewValidationError("subscriberIds must belong to the same provider")
		}
		m, err := s.identities.GetMaskedID(ctx, c)
		if err != nil {
			return nil, err
		}
		masked = append(masked, m)
	}
	return s.call(ctx, canonical[0], provider.OpGetChargingInfo, map[string]any{"subscriberIds": masked})
}

// maskedCall covers the operations addressed by masked id. The whitelist is
// consulted before the identity lookup so test subscribers need no stored mapping.
func (s *Service) maskedCall(
	ctx context.Context,
	subscriberID string,
	op provider.Operation,
	cannedFn func() *provider.Response,
	payloadFn func(masked string) map[string]any,
) (*Result, error) {
	canonical, err := subscriber.Normalize(subscriberID)
	if err != nil {
		return nil, err
	}

	if s.bypass.IsWhitelisted(canonical) {
		return s.canned(op, cannedFn()), nil
	}

	masked, err := s.identities.GetMaskedID(ctx, canonical)
	if err != nil {
		return nil, err
	}
	return s.call(ctx, canonical, op, payloadFn(masked))
}

func (s *Service) call(ctx context.Context, canonical string, op provider.Operation, payload map[string]any) (*Result, error) {
	p := subscriber.ResolveProvider(canonical)
	resp, err := s.upstream.Call(ctx, p, op, payload)
	if err != nil {
		return nil, err
	}
	return &Result{Response: resp, Provider: p, Sentinel: s.upstream.SuccessCode(p)}, nil
}

func (s *Service) canned(op provider.Operation, resp *provider.Response) *Result {
	s.metrics.RecordWhitelistBypass(string(op))
	return &Result{Response: resp, Sentinel: provider.SuccessCode}
}

// saveIdentity makes at most MaxSaveAttempts sequential attempts and stops at the first success.
// The provider has already accepted the subscription, so a client disconnect must not cut the loop short.
func (s *Service) saveIdentity(ctx context.Context, ownerUserID, canonical, maskedID string) bool {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), identitySaveTimeout)
	defer cancel()

	var b backoff.BackOff = &backoff.ZeroBackOff{}
	if s.saveBackoff > 0 {
		exp := backoff.NewExponentialBackOff()
		exp.InitialInterval = s.saveBackoff
		b = exp
	}

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		s.metrics.RecordIdentitySaveAttempt()
		if s.identities.SaveIdentity(ctx, ownerUserID, canonical, maskedID) {
			return struct{}{}, nil
		}
		return struct{}{}, errSaveFailed
	}, backoff.WithBackOff(b), backoff.WithMaxTries(MaxSaveAttempts))
	return err == nil
}

func orDefault(v string) string {
	if v == "" {
		return defaultMetaData
	}
	return v
}
