// Package identity maps canonical subscriber ids to the masked ids issued by providers.
package identity

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mcqkaramu/server/internal/model"
	"github.com/mcqkaramu/server/internal/repo"
	"github.com/mcqkaramu/server/internal/subscriber"
)

// Masker reads and writes subscriber identity mappings
type Masker struct {
	repo repo.IdentityRepo
}

// NewMasker creates a Masker
func NewMasker(r repo.IdentityRepo) *Masker {
	return &Masker{repo: r}
}

// SaveIdentity persists the mapping and reports whether it was written.
// It never returns an error; callers decide whether to retry.
func (m *Masker) SaveIdentity(ctx context.Context, ownerUserID, subscriberID, maskedID string) bool {
	if subscriberID == "" || maskedID == "" {
		return false
	}

	identity := model.SubscriberIdentity{SubscriberID: subscriberID, MaskedID: maskedID}
	if ownerUserID != "" {
		identity.OwnerUserID = &ownerUserID
	}

	if err := m.repo.Upsert(ctx, identity); err != nil {
		slog.WarnContext(ctx, "save subscriber identity failed",
			slog.String("subscriber", subscriber.MaskForLog(subscriberID)),
			slog.Any("error", err),
		)
		return false
	}
	return true
}

// GetMaskedID normalizes raw and returns the stored masked id
func (m *Masker) GetMaskedID(ctx context.Context, raw string) (string, error) {
	canonical, err := subscriber.Normalize(raw)
	if err != nil {
		return "", err
	}

	identity, err := m.repo.GetBySubscriberID(ctx, canonical)
	if err != nil {
		return "", translate(err, "failed to look up masked id")
	}
	return identity.MaskedID, nil
}

// GetSubscriberIDByUserID returns the subscriber id most recently verified by the user
func (m *Masker) GetSubscriberIDByUserID(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		return "", model.NewUnauthorizedError("User authentication required")
	}

	identity, err := m.repo.LatestByOwner(ctx, userID)
	if err != nil {
		return "", translate(err, "failed to look up subscriber id")
	}
	return identity.SubscriberID, nil
}

func translate(err error, msg string) error {
	if errors.Is(err, repo.ErrNotFound) {
		return model.NewSubscriberNotFoundError()
	}
	return model.NewInternalError(msg, err)
}
