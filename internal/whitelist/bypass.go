// Package whitelist answers operations for configured test subscribers without calling a provider.
package whitelist

import (
	"net/http"

	"github.com/mcqkaramu/server/internal/provider"
)

// ValidOTP is the only code the canned verify response accepts
const ValidOTP = "123456"

// Bypass decides whether a subscriber gets canned responses
type Bypass struct {
	enabled bool
	ids     map[string]struct{}
}

// New creates a Bypass. With enabled false no subscriber is whitelisted.
func New(enabled bool, ids []string) *Bypass {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return &Bypass{enabled: enabled, ids: set}
}

// IsWhitelisted reports whether canonicalID should bypass the provider
func (b *Bypass) IsWhitelisted(canonicalID string) bool {
	if b == nil || !b.enabled {
		return false
	}
	_, ok := b.ids[canonicalID]
	return ok
}

func canned(body map[string]any) *provider.Response {
	return &provider.Response{StatusCode: http.StatusOK, Body: body}
}

// OTPRequestResponse is the canned otp-request reply
func OTPRequestResponse(canonicalID string) *provider.Response {
	return canned(map[string]any{
		"referenceNo":  canonicalID + "111111111111111111111",
		"statusDetail": "Request was successfully processed.",
		"version":      "1.0",
		"statusCode":   provider.SuccessCode,
	})
}

// OTPVerifyResponse is the canned otp-verify reply; only ValidOTP succeeds
func OTPVerifyResponse(otp string) *provider.Response {
	if otp != ValidOTP {
		return canned(map[string]any{
			"statusDetail": "Invalid OTP",
			"version":      "1.0",
			"statusCode":   "E1850",
		})
	}
	return canned(map[string]any{
		"version":            "1.0",
		"statusCode":         provider.SuccessCode,
		"subscriptionStatus": "REGISTERED",
		"statusDetail":       "Success",
		"subscriberId":       "tel:sdfasdfasdfwqerqwtgfgsafgasfgasdfasdfasdfasdfasdfasf",
	})
}

// UnsubscribeResponse is the canned unsubscribe reply
func UnsubscribeResponse() *provider.Response {
	return canned(map[string]any{
		"version":            "1.0.",
		"statusCode":         provider.SuccessCode,
		"statusDetail":       "not registered",
		"subscriptionStatus": "UNREGISTERED.",
	})
}

// GetStatusResponse is the canned get-status reply
func GetStatusResponse() *provider.Response {
	return canned(map[string]any{
		"subscriptionStatus": "REGISTERED",
		"statusDetail":       "Request was successfully processed.",
		"version":            "1.0",
		"statusCode":         provider.SuccessCode,
	})
}

// GetChargingInfoResponse is the canned get-charging-info reply
func GetChargingInfoResponse() *provider.Response {
	return canned(map[string]any{
		"version": "1.0",
		"destinationResponses": []any{
			map[string]any{
				"subscriberId":       "tel:94712342345",
				"subscriptionStatus": "REGISTERED",
				"lastChargedDate":    "2020-01-23 22:03:22",
				"lastChargedAmount":  "30.00 LKR",
				"numberType":         "postpaid",
				"statusCode":         provider.SuccessCode,
				"statusDetail":       "Request was successfully processes",
			},
		},
		"statusCode":   provider.SuccessCode,
		"statusDetail": "Success.",
	})
}
