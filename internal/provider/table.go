// Package provider talks to the telecom subscription APIs.
package provider

import (
	"github.com/mcqkaramu/server/internal/config"
	"github.com/mcqkaramu/server/internal/model"
)

// Operation names one upstream endpoint
type Operation string

const (
	OpOTPRequest      Operation = "OTP_REQUEST"
	OpOTPVerify       Operation = "OTP_VERIFY"
	OpUnsubscribe     Operation = "UNSUBSCRIBE"
	OpGetStatus       Operation = "GET_STATUS"
	OpGetChargingInfo Operation = "GET_CHARGING_INFO"
)

// SuccessCode is the body statusCode both providers use for a successful call
const SuccessCode = "S1000"

// Endpoint is one row of the provider table
type Endpoint struct {
	config.ProviderConfig
	SuccessCode string
	Paths       map[Operation]string
}

var defaultPaths = map[model.Provider]map[Operation]string{
	model.ProviderMobitel: {
		OpOTPRequest:      "/otp/request",
		OpOTPVerify:       "/otp/verify",
		OpUnsubscribe:     "/subscription/send",
		OpGetStatus:       "/subscription/getStatus",
		OpGetChargingInfo: "/subscription/getSubscriberChargingInfo",
	},
	model.ProviderDialog: {
		OpOTPRequest:      "/subscription/otp/request",
		OpOTPVerify:       "/subscription/otp/verify",
		OpUnsubscribe:     "/subscription/send",
		OpGetStatus:       "/subscription/getStatus",
		OpGetChargingInfo: "/subscription/getSubscriberChargingInfo",
	},
}

// NewTable builds the provider table from configured credentials.
// Providers without a known path set are skipped.
func NewTable(cfgs map[model.Provider]config.ProviderConfig) map[model.Provider]Endpoint {
	table := make(map[model.Provider]Endpoint, len(cfgs))
	for p, cfg := range cfgs {
		paths, ok := defaultPaths[p]
		if !ok {
			continue
		}
		table[p] = Endpoint{ProviderConfig: cfg, SuccessCode: SuccessCode, Paths: paths}
	}
	return table
}
