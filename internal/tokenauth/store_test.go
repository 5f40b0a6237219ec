package tokenauth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vocacore/internal/models"
)

func TestFindBySecret(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mob, mobSecret := seedMobileToken(t, store.DB(), nil)
	api, apiSecret := seedAPIToken(t, store.DB(), nil)

	found, err := store.FindMobileBySecret(ctx, mobSecret)
	require.NoError(t, err)
	assert.Equal(t, mob.ID, found.ID)

	foundAPI, err := store.FindAPIBySecret(ctx, apiSecret)
	require.NoError(t, err)
	assert.Equal(t, api.ID, foundAPI.ID)

	_, err = store.FindMobileBySecret(ctx, "mob_nope")
	assert.ErrorIs(t, err, ErrTokenNotFound)
	_, err = store.FindAPIBySecret(ctx, "api_nope")
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestPermissionDefaultDeny(t *testing.T) {
	store := newTestStore(t)
	tok, _ := seedAPIToken(t, store.DB(), nil)

	// Missing row: a real no-access decision, not an error.
	d, err := store.Permission(context.Background(), tok.ID, "Word")
	require.NoError(t, err)
	assert.False(t, d.Granted())
	assert.Nil(t, d.Entry())
	assert.False(t, d.Allows(ActionList))

	require.NoError(t, store.DB().Create(&models.TokenModelPermission{
		TokenID: tok.ID, ModelName: "Word", CanList: true, CanRead: true,
	}).Error)

	d, err = store.Permission(context.Background(), tok.ID, "Word")
	require.NoError(t, err)
	assert.True(t, d.Granted())
	assert.True(t, d.Allows(ActionList))
	assert.False(t, d.Allows(ActionDelete))
}

func TestRotateSecret(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	tok, oldSecret := seedAPIToken(t, store.DB(), nil)

	newSecret, err := store.RotateSecret(ctx, KindAPI, tok.ID)
	require.NoError(t, err)
	assert.NotEqual(t, oldSecret, newSecret)

	// Old secret is dead, new one resolves to the same token row.
	_, err = store.FindAPIBySecret(ctx, oldSecret)
	assert.ErrorIs(t, err, ErrTokenNotFound)
	found, err := store.FindAPIBySecret(ctx, newSecret)
	require.NoError(t, err)
	assert.Equal(t, tok.ID, found.ID)

	_, err = store.RotateSecret(ctx, KindAPI, "missing-id")
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestIncrementUsageMissingToken(t *testing.T) {
	store := newTestStore(t)
	err := store.IncrementUsage(context.Background(), KindMobile, "missing-id", time.Now())
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestCountAndOldestSince(t *testing.T) {
	store := newTestStore(t)
	tok, _ := seedAPIToken(t, store.DB(), nil)
	now := time.Now()

	oldest := now.Add(-40 * time.Minute)
	seedLog(t, store.DB(), KindAPI, tok.ID, 200, oldest)
	seedLog(t, store.DB(), KindAPI, tok.ID, 200, now.Add(-10*time.Minute))
	seedLog(t, store.DB(), KindAPI, tok.ID, 429, now.Add(-5*time.Minute))
	seedLog(t, store.DB(), KindAPI, tok.ID, 200, now.Add(-2*time.Hour))

	n, err := store.CountSince(context.Background(), KindAPI, tok.ID, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	ts, err := store.OldestSince(context.Background(), KindAPI, tok.ID, now.Add(-time.Hour))
	require.NoError(t, err)
	require.NotNil(t, ts)
	assert.WithinDuration(t, oldest, *ts, time.Second)

	// Empty window.
	ts, err = store.OldestSince(context.Background(), KindAPI, tok.ID, now)
	require.NoError(t, err)
	assert.Nil(t, ts)
}
