package handlemint

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/core-coin/handlemint/internal/models"
)

func TestReconcileDecisionTable(t *testing.T) {
	payer := addr(500)
	tests := []struct {
		name       string
		age        time.Duration
		amount     int64
		from       string
		system     models.CreatedBySystem
		owns       bool
		wantStatus models.Status
		wantRefund int64
		wantTries  int
	}{
		{name: "expired without payment", age: 11 * time.Minute, amount: 0, wantStatus: models.StatusRefundable, wantRefund: 0},
		{name: "expired with late payment", age: 11 * time.Minute, amount: 50, from: payer, wantStatus: models.StatusRefundable, wantRefund: 50},
		{name: "exact payment", age: time.Minute, amount: 50, from: payer, wantStatus: models.StatusPaid},
		{name: "underpaid", age: time.Minute, amount: 40, from: payer, wantStatus: models.StatusRefundable, wantRefund: 40},
		{name: "overpaid", age: time.Minute, amount: 70, from: payer, wantStatus: models.StatusRefundable, wantRefund: 70},
		{name: "waiting", age: time.Minute, amount: 0, wantStatus: models.StatusPending},
		{name: "invalid return address", age: time.Minute, amount: 50, from: "not-an-address", wantStatus: models.StatusRefundable, wantRefund: 50},
		{name: "missing return address retries", age: time.Minute, amount: 50, wantStatus: models.StatusPending, wantTries: 1},
		{name: "cli window is longer", age: 11 * time.Minute, amount: 0, system: models.SystemCLI, wantStatus: models.StatusPending},
		{name: "spo owner pays", age: time.Minute, amount: 50, from: payer, system: models.SystemSPO, owns: true, wantStatus: models.StatusPaid},
		{name: "spo not owner", age: time.Minute, amount: 50, from: payer, system: models.SystemSPO, wantStatus: models.StatusRefundable, wantRefund: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.verify.owns = tt.owns
			system := tt.system
			if system == "" {
				system = models.SystemUI
			}
			session := env.addSession(t, "alice", withAge(tt.age), withSystem(system))
			env.chain.pay(session.PaymentAddress, tt.amount, tt.from)

			result, err := env.h.ReconcilePayments(env.ctx)
			require.NoError(t, err)
			assert.False(t, result.Error)

			got := env.reload(t, session.ID)
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.Equal(t, models.WorkflowPending, got.WorkflowStatus)
			assert.Equal(t, tt.wantRefund, got.RefundAmount)
			assert.Equal(t, tt.wantTries, got.Attempts)
		})
	}
}

func TestReconcileExactPaymentResetsAttempts(t *testing.T) {
	env := newTestEnv(t)
	session := env.addSession(t, "alice", withAge(time.Minute), withAttempts(2))
	env.chain.pay(session.PaymentAddress, 50, addr(500))

	_, err := env.h.ReconcilePayments(env.ctx)
	require.NoError(t, err)

	got := env.reload(t, session.ID)
	assert.Equal(t, models.StatusPaid, got.Status)
	assert.Equal(t, 0, got.Attempts)
	assert.Equal(t, addr(500), got.ReturnAddress)
}

func TestReconcileSecondClaimantLoses(t *testing.T) {
	env := newTestEnv(t)
	first := env.addSession(t, "paid", withAge(2*time.Minute))
	second := env.addSession(t, "paid", withAge(time.Minute))
	env.chain.pay(first.PaymentAddress, 50, addr(501))
	env.chain.pay(second.PaymentAddress, 50, addr(502))

	result, err := env.h.ReconcilePayments(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Counts[decisionPaid])
	assert.Equal(t, 1, result.Counts[decisionDuplicateClaim])

	assert.Equal(t, models.StatusPaid, env.reload(t, first.ID).Status)
	loser := env.reload(t, second.ID)
	assert.Equal(t, models.StatusRefundable, loser.Status)
	assert.Equal(t, int64(50), loser.RefundAmount)
}

func TestReconcileMissingReturnAddressCeiling(t *testing.T) {
	env := newTestEnv(t)
	session := env.addSession(t, "alice", withAge(time.Minute), withAttempts(2))
	env.chain.pay(session.PaymentAddress, 50, "")

	_, err := env.h.ReconcilePayments(env.ctx)
	require.NoError(t, err)

	got := env.reload(t, session.ID)
	assert.Equal(t, models.StatusRefundable, got.Status)
	assert.Equal(t, int64(50), got.RefundAmount)
	assert.Equal(t, 3, got.Attempts)
}

func TestReconcileUsesPaymentLedgerSender(t *testing.T) {
	env := newTestEnv(t)
	session := env.addSession(t, "alice", withAge(time.Minute))
	env.chain.pay(session.PaymentAddress, 50, "")
	require.NoError(t, env.repo.AddPayment(env.ctx, &models.Payment{
		Address: session.PaymentAddress, Sender: addr(777), Amount: 50, TxHash: "0xpay", BlockNumber: 10,
	}))

	_, err := env.h.ReconcilePayments(env.ctx)
	require.NoError(t, err)

	got := env.reload(t, session.ID)
	assert.Equal(t, models.StatusPaid, got.Status)
	assert.Equal(t, addr(777), got.ReturnAddress)
}

func TestReconcileSPOUnderpaidWithholdsFee(t *testing.T) {
	env := newTestEnv(t)
	session := env.addSession(t, "pool1", withAge(time.Minute), withSystem(models.SystemSPO), func(s *models.ActiveSession) {
		s.Cost = 10_000_000
	})
	env.chain.pay(session.PaymentAddress, 5_000_000, addr(500))

	_, err := env.h.ReconcilePayments(env.ctx)
	require.NoError(t, err)

	got := env.reload(t, session.ID)
	assert.Equal(t, models.StatusRefundable, got.Status)
	assert.Equal(t, int64(3_000_000), got.RefundAmount)
}

func TestReconcileSkipsSessionsWithoutRecord(t *testing.T) {
	env := newTestEnv(t)
	session := env.addSession(t, "alice", withAge(time.Hour))

	result, err := env.h.ReconcilePayments(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Counts[decisionNoRecord])
	assert.Equal(t, models.StatusPending, env.reload(t, session.ID).Status)
}

func TestReconcileSharedPaymentAddressIsNeverCredited(t *testing.T) {
	env := newTestEnv(t)
	first := env.addSession(t, "alice", withAge(2*time.Minute))
	second := env.addSession(t, "bob", withAge(time.Minute), func(s *models.ActiveSession) {
		s.PaymentAddress = first.PaymentAddress
	})
	env.chain.pay(first.PaymentAddress, 50, addr(500))

	result, err := env.h.ReconcilePayments(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Counts[decisionSharedAddress])
	assert.Equal(t, 1, result.Counts[decisionPaid])

	// The second cycle no longer sees the paid session next to the later one.
	_, err = env.h.ReconcilePayments(env.ctx)
	require.NoError(t, err)

	assert.Equal(t, models.StatusPaid, env.reload(t, first.ID).Status)
	got := env.reload(t, second.ID)
	assert.Equal(t, models.StatusRefundable, got.Status)
	assert.Equal(t, models.WorkflowPending, got.WorkflowStatus)
	assert.Equal(t, int64(0), got.RefundAmount)
}
