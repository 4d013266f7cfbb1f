package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcqkaramu/server/internal/model"
)

// SessionRepo defines the device session operations. A user has at most one session.
type SessionRepo interface {
	RegisterDevice(ctx context.Context, userID, deviceID string) (model.UserSession, error)
	IsValidDevice(ctx context.Context, userID, deviceID string) (bool, error)
	GetCurrentDevice(ctx context.Context, userID string) (*model.DeviceInfo, error)
}

type sessionRepo struct {
	db  *sql.DB
	now func() time.Time
}

// NewSessionRepo creates a SessionRepo backed by the SQLite session database
func NewSessionRepo(db *sql.DB) SessionRepo {
	return &sessionRepo{db: db, now: time.Now}
}

// RegisterDevice makes deviceID the user's only active device.
// The existing session id and created_at survive an overwrite.
func (r *sessionRepo) RegisterDevice(ctx context.Context, userID, deviceID string) (model.UserSession, error) {
	if userID == "" || deviceID == "" {
		return model.UserSession{}, fmt.Errorf("user id and device id are required")
	}

	now := r.now().Unix()
	query := `
		INSERT INTO user_sessions (id, user_id, device_id, created_at, updated_at, is_active)
		VALUES (?, ?, ?, ?, ?, 1)
		ON CONFLICT (user_id) DO UPDATE SET
			device_id = excluded.device_id,
			updated_at = excluded.updated_at,
			is_active = 1
		RETURNING id, user_id, device_id, created_at, updated_at, is_active
	`

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.UserSession{}, fmt.Errorf("failed to begin session tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	session, err := scanSession(tx.QueryRowContext(ctx, query, uuid.NewString(), userID, deviceID, now, now))
	if err != nil {
		return model.UserSession{}, fmt.Errorf("failed to upsert session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return model.UserSession{}, fmt.Errorf("failed to commit session: %w", err)
	}
	return session, nil
}

// IsValidDevice reports whether deviceID is the user's active device
func (r *sessionRepo) IsValidDevice(ctx context.Context, userID, deviceID string) (bool, error) {
	query := `
		SELECT 1 FROM user_sessions
		WHERE user_id = ? AND device_id = ? AND is_active = 1
	`
	var one int
	err := r.db.QueryRowContext(ctx, query, userID, deviceID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check device: %w", err)
	}
	return true, nil
}

// GetCurrentDevice returns the user's active device, or nil when the user has never registered one
func (r *sessionRepo) GetCurrentDevice(ctx context.Context, userID string) (*model.DeviceInfo, error) {
	query := `
		SELECT device_id, updated_at FROM user_sessions
		WHERE user_id = ? AND is_active = 1
	`
	var (
		info      model.DeviceInfo
		updatedAt int64
	)
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&info.DeviceID, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query current device: %w", err)
	}
	info.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &info, nil
}

func scanSession(row *sql.Row) (model.UserSession, error) {
	var (
		s                    model.UserSession
		idStr                string
		createdAt, updatedAt int64
		active               int
	)
	if err := row.Scan(&idStr, &s.UserID, &s.DeviceID, &createdAt, &updatedAt, &active); err != nil {
		return model.UserSession{}, err
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return model.UserSession{}, fmt.Errorf("failed to parse session ID: %w", err)
	}
	s.ID = id
	s.CreatedAt = time.Unix(createdAt, 0).UTC()
	s.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	s.IsActive = active == 1
	return s, nil
}
