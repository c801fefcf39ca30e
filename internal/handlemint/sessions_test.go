package handlemint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/core-coin/handlemint/internal/models"
)

func (e *testEnv) addPaymentAddresses(t *testing.T, n int) []string {
	t.Helper()
	addresses := make([]string, 0, n)
	for i := 0; i < n; i++ {
		addresses = append(addresses, addr(5000+i))
	}
	require.NoError(t, e.repo.AddPaymentAddresses(e.ctx, addresses))
	return addresses
}

func TestCreateSession(t *testing.T) {
	env := newTestEnv(t)
	pool := env.addPaymentAddresses(t, 2)

	session, err := env.h.CreateSession(env.ctx, &models.SessionRequest{Handle: "Alice", EmailAddress: "a@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "alice", session.Handle)
	assert.Equal(t, models.SystemUI, session.CreatedBySystem)
	assert.Equal(t, models.StateAwaitingPayment, session.State())
	assert.Equal(t, int64(50), session.Cost)
	assert.Contains(t, pool, session.PaymentAddress)

	stored := env.reload(t, session.ID)
	assert.Equal(t, session.PaymentAddress, stored.PaymentAddress)
	inUse, err := env.repo.IsPaymentAddress(env.ctx, session.PaymentAddress)
	require.NoError(t, err)
	assert.True(t, inUse)
}

func TestCreateSessionDuplicateReleasesAddress(t *testing.T) {
	env := newTestEnv(t)
	env.addPaymentAddresses(t, 1)
	env.addSession(t, "alice", withState(models.StatePaid))

	_, err := env.h.CreateSession(env.ctx, &models.SessionRequest{Handle: "alice"})
	require.ErrorIs(t, err, models.ErrActiveSessionExists)

	// the single address went back to the pool
	session, err := env.h.CreateSession(env.ctx, &models.SessionRequest{Handle: "bob"})
	require.NoError(t, err)
	assert.Equal(t, addr(5000), session.PaymentAddress)
}

func TestCreateSessionAfterRefundIsAllowed(t *testing.T) {
	env := newTestEnv(t)
	env.addPaymentAddresses(t, 1)
	env.addSession(t, "alice", withState(models.StateRefundable))

	_, err := env.h.CreateSession(env.ctx, &models.SessionRequest{Handle: "alice"})
	require.NoError(t, err)
}

func TestCreateSessionRejections(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.h.CreateSession(env.ctx, &models.SessionRequest{Handle: "bad handle!"})
	require.ErrorIs(t, err, models.ErrInvalidRequest)

	_, err = env.h.CreateSession(env.ctx, &models.SessionRequest{Handle: "alice", CreatedBySystem: "FAX"})
	require.ErrorIs(t, err, models.ErrInvalidRequest)

	_, err = env.h.CreateSession(env.ctx, &models.SessionRequest{Handle: "alice"})
	require.ErrorIs(t, err, models.ErrNoPaymentAddress)

	env.avail.availability = &models.Availability{Available: false, Reason: "reserved"}
	_, err = env.h.CreateSession(env.ctx, &models.SessionRequest{Handle: "alice"})
	require.ErrorIs(t, err, models.ErrHandleUnavailable)
	assert.Contains(t, err.Error(), "reserved")
}

func TestImportSessions(t *testing.T) {
	env := newTestEnv(t)
	sessions := []*models.ActiveSession{
		{Handle: "Alice", PaymentAddress: addr(7000), Cost: 50, CreatedBySystem: models.SystemCLI},
		{Handle: "bob", PaymentAddress: addr(7001), Cost: 50, CreatedBySystem: models.SystemCLI},
	}
	require.NoError(t, env.h.ImportSessions(env.ctx, sessions))

	found, err := env.h.FindSessions(env.ctx, models.SessionFilter{Handle: "alice"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, models.StateAwaitingPayment, found[0].State())
	assert.NotZero(t, found[0].DateAdded)
	assert.NotEmpty(t, found[0].ID)

	err = env.h.ImportSessions(env.ctx, []*models.ActiveSession{{Handle: "no spaces"}})
	require.ErrorIs(t, err, models.ErrInvalidRequest)
}
