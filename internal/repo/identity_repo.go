package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mcqkaramu/server/internal/model"
)

// ErrNotFound is returned when a lookup matches no row
var ErrNotFound = errors.New("not found")

// IdentityRepo defines persistence for subscriber id to masked id mappings
type IdentityRepo interface {
	Upsert(ctx context.Context, identity model.SubscriberIdentity) error
	GetBySubscriberID(ctx context.Context, subscriberID string) (model.SubscriberIdentity, error)
	LatestByOwner(ctx context.Context, ownerUserID string) (model.SubscriberIdentity, error)
}

type identityRepo struct {
	db *sql.DB
}

// NewIdentityRepo creates an IdentityRepo backed by PostgreSQL
func NewIdentityRepo(db *sql.DB) IdentityRepo {
	return &identityRepo{db: db}
}

// Upsert writes the mapping; a re-verified subscriber overwrites masked id, owner and created_at
func (r *identityRepo) Upsert(ctx context.Context, identity model.SubscriberIdentity) error {
	query := `
		INSERT INTO subscriber_identities (subscriber_id, masked_id, owner_user_id, created_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (subscriber_id) DO UPDATE SET
			masked_id = EXCLUDED.masked_id,
			owner_user_id = EXCLUDED.owner_user_id,
			created_at = EXCLUDED.created_at
	`
	var owner sql.NullString
	if identity.OwnerUserID != nil {
		owner = sql.NullString{String: *identity.OwnerUserID, Valid: true}
	}
	if _, err := r.db.ExecContext(ctx, query, identity.SubscriberID, identity.MaskedID, owner); err != nil {
		return fmt.Errorf("failed to upsert subscriber identity: %w", err)
	}
	return nil
}

// GetBySubscriberID looks up the mapping for a canonical subscriber id
func (r *identityRepo) GetBySubscriberID(ctx context.Context, subscriberID string) (model.SubscriberIdentity, error) {
	query := `
		SELECT subscriber_id, masked_id, owner_user_id, created_at
		FROM subscriber_identities
		WHERE subscriber_id = $1
	`
	return r.queryOne(ctx, query, subscriberID)
}

// LatestByOwner returns the most recently written mapping owned by the user
func (r *identityRepo) LatestByOwner(ctx context.Context, ownerUserID string) (model.SubscriberIdentity, error) {
	query := `
		SELECT subscriber_id, masked_id, owner_user_id, created_at
		FROM subscriber_identities
		WHERE owner_user_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	return r.queryOne(ctx, query, ownerUserID)
}

func (r *identityRepo) queryOne(ctx context.Context, query string, arg string) (model.SubscriberIdentity, error) {
	var (
		identity model.SubscriberIdentity
		owner    sql.NullString
	)
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&identity.SubscriberID,
		&identity.MaskedID,
		&owner,
		&identity.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.SubscriberIdentity{}, ErrNotFound
		}
		return model.SubscriberIdentity{}, fmt.Errorf("failed to query subscriber identity: %w", err)
	}
	if owner.Valid {
		identity.OwnerUserID = &owner.String
	}
	return identity, nil
}
