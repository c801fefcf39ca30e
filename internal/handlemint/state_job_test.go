package handlemint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/core-coin/handlemint/internal/models"
)

func TestRefreshState(t *testing.T) {
	env := newTestEnv(t)
	env.addSession(t, "alice")
	env.addSession(t, "bob")
	env.addSession(t, "carol", withState(models.StatePaid))
	env.addSession(t, "dave", withState(models.StateSubmitted), withTx("0xtx1", "w1"))
	env.addSession(t, "erin", withState(models.StateConfirmed), withTx("0xtx0", "w1"))
	env.chain.chainLoad = 0.42
	env.chain.totalHandles = 1234

	result, err := env.h.RefreshState(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Message)

	state, err := env.repo.GetState(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), state.PendingSessions)
	assert.Equal(t, int64(1), state.PaidSessions)
	assert.Equal(t, int64(1), state.SubmittedSessions)
	assert.InDelta(t, 0.42, state.ChainLoad, 1e-9)
	assert.Equal(t, int64(1234), state.TotalHandles)
}

func TestRefreshStateDetectsStuckWalletPool(t *testing.T) {
	env := newTestEnv(t)
	env.addWallet(t, "w1", 0)
	env.addWallet(t, "w2", 1)
	for i := 0; i < 2; i++ {
		wallet, err := env.repo.FindAndLockAvailableWallet(env.ctx)
		require.NoError(t, err)
		require.NotNil(t, wallet)
	}

	result, err := env.h.RefreshState(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, "wallet pool stuck", result.Message)
	assert.Equal(t, 2, result.Counts["locked_wallets"])

	require.NoError(t, env.repo.SetWalletTxID(env.ctx, "w1", "0xtx1"))
	result, err = env.h.RefreshState(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Message)
}
