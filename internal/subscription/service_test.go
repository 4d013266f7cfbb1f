package subscription

import (
	"context"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcqkaramu/server/internal/model"
	"github.com/mcqkaramu/server/internal/provider"
	"github.com/mcqkaramu/server/internal/whitelist"
)

type upstreamCall struct {
	provider model.Provider
	op       provider.Operation
	payload  map[string]any
}

type fakeUpstream struct {
	mu    sync.Mutex
	calls []upstreamCall
	reply func(op provider.Operation) (*provider.Response, error)
}

func (f *fakeUpstream) Call(_ context.Context, p model.Provider, op provider.Operation, payload map[string]any) (*provider.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, upstreamCall{provider: p, op: op, payload: payload})
	f.mu.Unlock()
	if f.reply == nil {
		return &provider.Response{StatusCode: http.StatusOK, Body: map[string]any{"statusCode": provider.SuccessCode}}, nil
	}
	return f.reply(op)
}

func (f *fakeUpstream) SuccessCode(model.Provider) string { return provider.SuccessCode }

type fakeIdentities struct {
	mu        sync.Mutex
	saves     int
	failSaves int
	rows      map[string]string
}

func newFakeIdentities() *fakeIdentities {
	return &fakeIdentities{rows: map[string]string{}}
}

func (f *fakeIdentities) SaveIdentity(ctx context.Context, _, subscriberID, maskedID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	if ctx.Err() != nil || f.saves <= f.failSaves || subscriberID == "" || maskedID == "" {
		return false
	}
	f.rows[subscriberID] = maskedID
	return true
}

func (f *fakeIdentities) GetMaskedID(_ context.Context, subscriberID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	masked, ok := f.rows[subscriberID]
	if !ok {
		return "", model.NewSubscriberNotFoundError()
	}
	return masked, nil
}

func verifyReply(masked string) func(provider.Operation) (*provider.Response, error) {
	return func(op provider.Operation) (*provider.Response, error) {
		body := map[string]any{"statusCode": provider.SuccessCode}
		if op == provider.OpOTPVerify {
			body["subscriberId"] = masked
			body["subscriptionStatus"] = "REGISTERED"
		}
		return &provider.Response{StatusCode: http.StatusOK, Body: body}, nil
	}
}

func TestRequestOTP_payloadAndRouting(t *testing.T) {
	up := &fakeUpstream{}
	svc := NewService(up, newFakeIdentities(), whitelist.New(false, nil), nil, 0)

	res, err := svc.RequestOTP(context.Background(), "071 123 4567", "", "android")
	require.NoError(t, err)
	assert.True(t, res.Succeeded())
	assert.Equal(t, model.ProviderMobitel, res.Provider)

	require.Len(t, up.calls, 1)
	call := up.calls[0]
	assert.Equal(t, model.ProviderMobitel, call.provider)
	assert.Equal(t, provider.OpOTPRequest, call.op)
	assert.Equal(t, "tel:94711234567", call.payload["subscriberId"])
	assert.Equal(t, "abcdefgh", call.payload["applicationHash"])

	meta := call.payload["applicationMetaData"].(map[string]any)
	assert.Equal(t, "MOBILEAPP", meta["client"])
	assert.Equal(t, "NOT_PROVIDED", meta["device"])
	assert.Equal(t, "android", meta["os"])
	assert.Equal(t, "https://play.google.com/store/apps/details?id=lk", meta["appCode"])
}

func TestRequestOTP_dialogFallback(t *testing.T) {
	up := &fakeUpstream{}
	svc := NewService(up, newFakeIdentities(), whitelist.New(false, nil), nil, 0)

	res, err := svc.RequestOTP(context.Background(), "0771234567", "", "")
	require.NoError(t, err)
	assert.Equal(t, model.ProviderDialog, res.Provider)
}

func TestRequestOTP_invalidSubscriber(t *testing.T) {
	up := &fakeUpstream{}
	svc := NewService(up, newFakeIdentities(), whitelist.New(false, nil), nil, 0)

	_, err := svc.RequestOTP(context.Background(), "", "", "")
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindValidation))

	_, err = svc.RequestOTP(context.Background(), "12345", "", "")
	assert.True(t, model.IsKind(err, model.KindValidation))
	assert.Empty(t, up.calls)
}

func TestVerifyOTP_roundTripWithStatus(t *testing.T) {
	up := &fakeUpstream{reply: verifyReply("tel:MASKED-1")}
	ids := newFakeIdentities()
	svc := NewService(up, ids, whitelist.New(false, nil), nil, 0)
	ctx := context.Background()

	res, err := svc.VerifyOTP(ctx, "user-1", "0711234567", "ref-1", "123456")
	require.NoError(t, err)
	assert.True(t, res.Succeeded())
	assert.Empty(t, res.Warnings)
	assert.Equal(t, 1, ids.saves)

	_, err = svc.GetStatus(ctx, "94711234567")
	require.NoError(t, err)

	last := up.calls[len(up.calls)-1]
	assert.Equal(t, provider.OpGetStatus, last.op)
	assert.Equal(t, "tel:MASKED-1", last.payload["subscriberId"])
}

func TestVerifyOTP_overwriteUsesLatestMaskedID(t *testing.T) {
	masked := "tel:FIRST"
	up := &fakeUpstream{reply: func(op provider.Operation) (*provider.Response, error) {
		return verifyReply(masked)(op)
	}}
	svc := NewService(up, newFakeIdentities(), whitelist.New(false, nil), nil, 0)
	ctx := context.Background()

	_, err := svc.VerifyOTP(ctx, "user-1", "94711234567", "ref-1", "1")
	require.NoError(t, err)
	masked = "tel:SECOND"
	_, err = svc.VerifyOTP(ctx, "user-1", "94711234567", "ref-2", "2")
	require.NoError(t, err)

	_, err = svc.Unsubscribe(ctx, "94711234567")
	require.NoError(t, err)
	last := up.calls[len(up.calls)-1]
	assert.Equal(t, "tel:SECOND", last.payload["subscriberId"])
	assert.Equal(t, "0", last.payload["action"])
}

func TestVerifyOTP_retryStopsAtFirstSuccess(t *testing.T) {
	ids := newFakeIdentities()
	ids.failSaves = 2
	svc := NewService(&fakeUpstream{reply: verifyReply("tel:M")}, ids, whitelist.New(false, nil), nil, 0)

	res, err := svc.VerifyOTP(context.Background(), "user-1", "94711234567", "ref", "123456")
	require.NoError(t, err)
	assert.True(t, res.Succeeded())
	assert.Equal(t, 3, ids.saves)
	assert.Empty(t, res.Warnings)
}

func TestVerifyOTP_retryBoundedAtFive(t *testing.T) {
	ids := newFakeIdentities()
	ids.failSaves = 100
	svc := NewService(&fakeUpstream{reply: verifyReply("tel:M")}, ids, whitelist.New(false, nil), nil, 0)

	res, err := svc.VerifyOTP(context.Background(), "user-1", "94711234567", "ref", "123456")
	require.NoError(t, err)
	assert.Equal(t, MaxSaveAttempts, ids.saves)
	assert.True(t, res.Succeeded(), "verification still reported as success")
	assert.Equal(t, http.StatusOK, res.HTTPStatus())
	assert.Equal(t, []string{WarningIdentityNotSaved}, res.Warnings)
}

// cancelAfterVerify cancels the caller's context once the provider has accepted the OTP,
// the way net/http does when the client disconnects mid-request.
func cancelAfterVerify(cancel context.CancelFunc, masked string) func(provider.Operation) (*provider.Response, error) {
	reply := verifyReply(masked)
	return func(op provider.Operation) (*provider.Response, error) {
		defer cancel()
		return reply(op)
	}
}

func TestVerifyOTP_persistsAfterClientDisconnect(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ids := newFakeIdentities()
	svc := NewService(&fakeUpstream{reply: cancelAfterVerify(cancel, "tel:KEPT")}, ids, whitelist.New(false, nil), nil, 0)

	res, err := svc.VerifyOTP(ctx, "user-1", "94711234567", "ref", "123456")
	require.NoError(t, err)
	require.Error(t, ctx.Err(), "caller context was cancelled before persistence")
	assert.Empty(t, res.Warnings)
	assert.Equal(t, 1, ids.saves)

	masked, err := ids.GetMaskedID(context.Background(), "94711234567")
	require.NoError(t, err)
	assert.Equal(t, "tel:KEPT", masked)
}

func TestVerifyOTP_disconnectStillMakesAllAttempts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ids := newFakeIdentities()
	ids.failSaves = 100
	svc := NewService(&fakeUpstream{reply: cancelAfterVerify(cancel, "tel:M")}, ids, whitelist.New(false, nil), nil, 0)

	res, err := svc.VerifyOTP(ctx, "user-1", "94711234567", "ref", "123456")
	require.NoError(t, err)
	assert.Equal(t, MaxSaveAttempts, ids.saves)
	assert.Equal(t, []string{WarningIdentityNotSaved}, res.Warnings)
}

func TestVerifyOTP_failureSkipsPersistence(t *testing.T) {
	ids := newFakeIdentities()
	up := &fakeUpstream{reply: func(provider.Operation) (*provider.Response, error) {
		return &provider.Response{StatusCode: http.StatusOK, Body: map[string]any{"statusCode": "E1850"}}, nil
	}}
	svc := NewService(up, ids, whitelist.New(false, nil), nil, 0)

	res, err := svc.VerifyOTP(context.Background(), "user-1", "94711234567", "ref", "999999")
	require.NoError(t, err)
	assert.False(t, res.Succeeded())
	assert.Equal(t, http.StatusBadRequest, res.HTTPStatus())
	assert.Zero(t, ids.saves)
}

func TestVerifyOTP_validation(t *testing.T) {
	svc := NewService(&fakeUpstream{}, newFakeIdentities(), whitelist.New(false, nil), nil, 0)
	ctx := context.Background()

	_, err := svc.VerifyOTP(ctx, "", "94711234567", "ref", "1")
	assert.True(t, model.IsKind(err, model.KindUnauthorized))

	_, err = svc.VerifyOTP(ctx, "user-1", "94711234567", "", "1")
	require.Error(t, err)
	appErr, _ := model.AsAppError(err)
	assert.Equal(t, "referenceNo is required", appErr.Message)

	_, err = svc.VerifyOTP(ctx, "user-1", "94711234567", "ref", "")
	require.Error(t, err)
	appErr, _ = model.AsAppError(err)
	assert.Equal(t, "otp is required", appErr.Message)
}

func TestWhitelistBypass_noUpstreamCalls(t *testing.T) {
	up := &fakeUpstream{}
	ids := newFakeIdentities()
	svc := NewService(up, ids, whitelist.New(true, []string{"94711234567"}), nil, 0)
	ctx := context.Background()

	res, err := svc.RequestOTP(ctx, "0711234567", "", "")
	require.NoError(t, err)
	assert.True(t, res.Succeeded())

	res, err = svc.VerifyOTP(ctx, "user-1", "0711234567", "ref", whitelist.ValidOTP)
	require.NoError(t, err)
	assert.True(t, res.Succeeded())

	res, err = svc.VerifyOTP(ctx, "user-1", "0711234567", "ref", "000000")
	require.NoError(t, err)
	assert.False(t, res.Succeeded())

	for _, fn := range []func(context.Context, string) (*Result, error){svc.Unsubscribe, svc.GetStatus} {
		res, err := fn(ctx, "0711234567")
		require.NoError(t, err)
		assert.True(t, res.Succeeded())
	}
	res, err = svc.GetChargingInfo(ctx, "0711234567")
	require.NoError(t, err)
	assert.True(t, res.Succeeded())

	assert.Empty(t, up.calls, "whitelisted subscribers never reach a provider")
	assert.Zero(t, ids.saves, "whitelisted verification does not persist")
}

func TestMaskedCall_notFound(t *testing.T) {
	up := &fakeUpstream{}
	svc := NewService(up, newFakeIdentities(), whitelist.New(false, nil), nil, 0)

	_, err := svc.GetChargingInfo(context.Background(), "94771234567")
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindNotFound))
	assert.Empty(t, up.calls)
}

func TestGetChargingInfo_payload(t *testing.T) {
	up := &fakeUpstream{}
	ids := newFakeIdentities()
	ids.rows["94771234567"] = "tel:D-MASK"
	svc := NewService(up, ids, whitelist.New(false, nil), nil, 0)

	res, err := svc.GetChargingInfo(context.Background(), "94771234567")
	require.NoError(t, err)
	assert.Equal(t, model.ProviderDialog, res.Provider)
	require.Len(t, up.calls, 1)
	assert.Equal(t, []string{"tel:D-MASK"}, up.calls[0].payload["subscriberIds"])
}

func TestGetChargingInfo_multipleSubscribers(t *testing.T) {
	up := &fakeUpstream{}
	ids := newFakeIdentities()
	ids.rows["94771234567"] = "tel:D-1"
	ids.rows["94761234567"] = "tel:D-2"
	svc := NewService(up, ids, whitelist.New(false, nil), nil, 0)

	res, err := svc.GetChargingInfo(context.Background(), "0771234567", "761234567")
	require.NoError(t, err)
	assert.Equal(t, model.ProviderDialog, res.Provider)
	require.Len(t, up.calls, 1)
	assert.Equal(t, []string{"tel:D-1", "tel:D-2"}, up.calls[0].payload["subscriberIds"])
}

func TestGetChargingInfo_rejects(t *testing.T) {
	up := &fakeUpstream{}
	ids := newFakeIdentities()
	ids.rows["94771234567"] = "tel:D-1"
	ids.rows["94711234567"] = "tel:M-1"
	svc := NewService(up, ids, whitelist.New(false, nil), nil, 0)
	ctx := context.Background()

	_, err := svc.GetChargingInfo(ctx)
	assert.True(t, model.IsKind(err, model.KindValidation))

	_, err = svc.GetChargingInfo(ctx, "94771234567", "94711234567")
	require.Error(t, err)
	appErr, _ := model.AsAppError(err)
	assert.Equal(t, "subscriberIds must belong to the same provider", appErr.Message)

	_, err = svc.GetChargingInfo(ctx, "94771234567", "94761234567")
	assert.True(t, model.IsKind(err, model.KindNotFound))

	assert.Empty(t, up.calls)
}

func TestUpstreamUnavailablePropagates(t *testing.T) {
	up := &fakeUpstream{reply: func(provider.Operation) (*provider.Response, error) {
		return nil, model.NewUpstreamUnavailableError(context.DeadlineExceeded)
	}}
	svc := NewService(up, newFakeIdentities(), whitelist.New(false, nil), nil, 0)

	_, err := svc.RequestOTP(context.Background(), "94711234567", "", "")
	assert.True(t, model.IsKind(err, model.KindUpstreamUnavailable))
}
