package model

import (
	"time"

	"github.com/google/uuid"
)

// Provider identifies an upstream telecom provider
type Provider string

const (
	ProviderMobitel Provider = "MOBITEL"
	ProviderDialog  Provider = "DIALOG"
)

// UserSession is the single active device session of a user
type UserSession struct {
	ID        uuid.UUID
	UserID    string
	DeviceID  string
	CreatedAt time.Time
	UpdatedAt time.Time
	IsActive  bool
}

// DeviceInfo is the currently registered device of a user
type DeviceInfo struct {
	DeviceID  string
	UpdatedAt time.Time
}

// SubscriberIdentity maps a canonical subscriber id to the provider-assigned masked id
type SubscriberIdentity struct {
	SubscriberID string
	MaskedID     string
	OwnerUserID  *string
	CreatedAt    time.Time
}
