package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/core-coin/handlemint/internal/models"
)

func TestAcquireLock(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	ok, err := db.AcquireLock(ctx, models.LockMintPaidSessions, "a", 60_000)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = db.AcquireLock(ctx, models.LockMintPaidSessions, "b", 60_000)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = db.AcquireLock(ctx, models.LockMintConfirm, "b", 60_000)
	require.NoError(t, err)
	assert.True(t, ok, "locks are independent")

	// releasing a lock held by someone else is a no-op
	require.NoError(t, db.ReleaseLock(ctx, models.LockMintPaidSessions, "b"))
	ok, err = db.AcquireLock(ctx, models.LockMintPaidSessions, "b", 60_000)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, db.ReleaseLock(ctx, models.LockMintPaidSessions, "a"))
	ok, err = db.AcquireLock(ctx, models.LockMintPaidSessions, "b", 60_000)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAcquireLockTakesOverExpiredLease(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.Conn.Create(&models.AppLock{
		LockName:   models.LockRefreshState,
		InstanceID: "crashed",
		AcquiredAt: 1,
		ExpiresAt:  2,
	}).Error)

	ok, err := db.AcquireLock(ctx, models.LockRefreshState, "b", 60_000)
	require.NoError(t, err)
	assert.True(t, ok)

	var lock models.AppLock
	require.NoError(t, db.Conn.Where("lock_name = ?", models.LockRefreshState).First(&lock).Error)
	assert.Equal(t, "b", lock.InstanceID)
}

func TestMintingCache(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	ok, err := db.TryReserveMintingCache(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = db.TryReserveMintingCache(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, ok)

	var entry models.MintingCacheEntry
	require.NoError(t, db.Conn.First(&entry).Error)
	assert.Equal(t, "<alice>", entry.Key)

	require.NoError(t, db.ReleaseMintingCache(ctx, []string{"alice"}))
	require.NoError(t, db.ReleaseMintingCache(ctx, nil))
	ok, err = db.TryReserveMintingCache(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestClaimHandleForMint(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	first := newSession("alice", models.StatePaid)
	second := newSession("alice", models.StatePaid)
	lone := newSession("bob", models.StatePaid)
	for _, s := range []*models.ActiveSession{first, second, lone} {
		require.NoError(t, db.Conn.Create(s).Error)
	}

	claim, err := db.ClaimHandleForMint(ctx, first.ID, "alice")
	require.NoError(t, err)
	assert.False(t, claim.Claimed())
	assert.Equal(t, int64(1), claim.OtherPaidSessions)

	claim, err = db.ClaimHandleForMint(ctx, lone.ID, "bob")
	require.NoError(t, err)
	assert.True(t, claim.Claimed())

	claim, err = db.ClaimHandleForMint(ctx, lone.ID, "bob")
	require.NoError(t, err)
	assert.False(t, claim.Claimed(), "cache entry already taken")
}

func TestPaymentAddressPool(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.AddPaymentAddresses(ctx, []string{"cb02", "cb01"}))
	require.NoError(t, db.AddPaymentAddresses(ctx, []string{"cb01"}))

	first, err := db.ReservePaymentAddress(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "cb01", first)
	second, err := db.ReservePaymentAddress(ctx, "s2")
	require.NoError(t, err)
	assert.Equal(t, "cb02", second)

	_, err = db.ReservePaymentAddress(ctx, "s3")
	require.ErrorIs(t, err, models.ErrNoPaymentAddress)

	inUse, err := db.IsPaymentAddress(ctx, "cb01")
	require.NoError(t, err)
	assert.True(t, inUse)

	require.NoError(t, db.ReleasePaymentAddress(ctx, "cb01"))
	inUse, err = db.IsPaymentAddress(ctx, "cb01")
	require.NoError(t, err)
	assert.False(t, inUse)
}

func TestLatestPaymentSenders(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	payments := []*models.Payment{
		{Address: "cb01", Sender: "cbold", Amount: 1, TxHash: "0x1", BlockNumber: 10},
		{Address: "cb01", Sender: "cbnew", Amount: 1, TxHash: "0x2", BlockNumber: 12},
		{Address: "cb02", Sender: "cbother", Amount: 1, TxHash: "0x3", BlockNumber: 11},
	}
	for _, p := range payments {
		require.NoError(t, db.AddPayment(ctx, p))
	}
	require.NoError(t, db.AddPayment(ctx, &models.Payment{Address: "cb01", Sender: "cbreplay", TxHash: "0x2", BlockNumber: 99}))

	senders, err := db.LatestPaymentSenders(ctx, []string{"cb01", "cb02", "cb03"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"cb01": "cbnew", "cb02": "cbother"}, senders)
}

func TestStateAndSettings(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	settings, err := db.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultSettings().MaxMintAttempts, settings.MaxMintAttempts)

	settings.PaidSessionsLimit = 7
	require.NoError(t, db.SaveSettings(ctx, settings))
	settings, err = db.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, settings.PaidSessionsLimit)

	require.NoError(t, db.UpdateState(ctx, map[string]interface{}{"chain_load": 0.5, "total_handles": 3}))
	state, err := db.GetState(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, state.ChainLoad, 1e-9)
	assert.Equal(t, int64(3), state.TotalHandles)
}
