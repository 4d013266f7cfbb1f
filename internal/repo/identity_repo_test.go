package repo_test

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcqkaramu/server/internal/db"
	"github.com/mcqkaramu/server/internal/model"
	"github.com/mcqkaramu/server/internal/repo"
)

func newIdentityRepo(t *testing.T) repo.IdentityRepo {
	t.Helper()
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		t.Skip("DATABASE_URL not set, skipping postgres integration test")
	}

	ctx := context.Background()
	conn, err := db.Open(ctx, databaseURL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, db.MigratePostgres(conn))

	truncate(t, conn)
	t.Cleanup(func() { truncate(t, conn) })
	return repo.NewIdentityRepo(conn)
}

func truncate(t *testing.T, conn *sql.DB) {
	t.Helper()
	_, err := conn.ExecContext(context.Background(), "TRUNCATE TABLE subscriber_identities")
	require.NoError(t, err)
}

func TestIdentityRepo_UpsertAndGet(t *testing.T) {
	r := newIdentityRepo(t)
	ctx := context.Background()
	owner := "user-1"

	require.NoError(t, r.Upsert(ctx, model.SubscriberIdentity{
		SubscriberID: "94711234567",
		MaskedID:     "tel:MASK1",
		OwnerUserID:  &owner,
	}))

	got, err := r.GetBySubscriberID(ctx, "94711234567")
	require.NoError(t, err)
	assert.Equal(t, "tel:MASK1", got.MaskedID)
	require.NotNil(t, got.OwnerUserID)
	assert.Equal(t, owner, *got.OwnerUserID)
}

func TestIdentityRepo_LastWriteWins(t *testing.T) {
	r := newIdentityRepo(t)
	ctx := context.Background()

	require.NoError(t, r.Upsert(ctx, model.SubscriberIdentity{SubscriberID: "94711234567", MaskedID: "tel:OLD"}))
	require.NoError(t, r.Upsert(ctx, model.SubscriberIdentity{SubscriberID: "94711234567", MaskedID: "tel:NEW"}))

	got, err := r.GetBySubscriberID(ctx, "94711234567")
	require.NoError(t, err)
	assert.Equal(t, "tel:NEW", got.MaskedID)
	assert.Nil(t, got.OwnerUserID)
}

func TestIdentityRepo_LatestByOwner(t *testing.T) {
	r := newIdentityRepo(t)
	ctx := context.Background()
	owner := "user-1"

	require.NoError(t, r.Upsert(ctx, model.SubscriberIdentity{SubscriberID: "94711111111", MaskedID: "tel:A", OwnerUserID: &owner}))
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, r.Upsert(ctx, model.SubscriberIdentity{SubscriberID: "94772222222", MaskedID: "tel:B", OwnerUserID: &owner}))

	got, err := r.LatestByOwner(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, "94772222222", got.SubscriberID)
}

func TestIdentityRepo_NotFound(t *testing.T) {
	r := newIdentityRepo(t)
	ctx := context.Background()

	_, err := r.GetBySubscriberID(ctx, "94700000000")
	assert.ErrorIs(t, err, repo.ErrNotFound)

	_, err = r.LatestByOwner(ctx, "nobody")
	assert.ErrorIs(t, err, repo.ErrNotFound)
}
