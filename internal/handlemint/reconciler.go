package handlemint

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/core-coin/handlemint/internal/models"
	"github.com/core-coin/handlemint/pkg/validation"
)

// balanceFanOut bounds concurrent balance lookups.
const balanceFanOut = 4

// Reconciliation decisions, also used as result counts and metric labels.
const (
	decisionNoRecord             = "no_record"
	decisionWaiting              = "waiting"
	decisionExpired              = "expired"
	decisionInvalidReturnAddress = "invalid_return_address"
	decisionAwaitReturnAddress   = "await_return_address"
	decisionMissingReturnAddress = "missing_return_address"
	decisionUnderpaid            = "underpaid"
	decisionOverpaid             = "overpaid"
	decisionDuplicateClaim       = "duplicate_claim"
	decisionSharedAddress        = "shared_address"
	decisionSPOMismatch          = "spo_mismatch"
	decisionVerifyFailed         = "verify_failed"
	decisionPaid                 = "paid"
)

// ReconcilePayments compares every session awaiting payment with its on-chain balance
// and promotes it to PAID, makes it REFUNDABLE or leaves it waiting.
func (h *Handlemint) ReconcilePayments(ctx context.Context) (*models.JobResult, error) {
	return h.runJob(ctx, JobReconcile, models.LockUpdateActiveSessions, h.reconcile)
}

func (h *Handlemint) reconcile(ctx context.Context, settings *models.Settings, result *models.JobResult) error {
	pending, err := h.repo.FindSessionsByStatusAndWorkflow(ctx, models.StatusPending, models.WorkflowPending, 0)
	if err != nil {
		return err
	}
	sessions, shared := h.dedupeByPaymentAddress(pending)
	if len(sessions) == 0 && len(shared) == 0 {
		result.Message = "no pending sessions"
		return nil
	}

	// A later session on a shared address can never prove its own payment.
	changed := make([]*models.ActiveSession, 0, len(shared))
	for _, session := range shared {
		refund(session, 0)
		result.Counts[decisionSharedAddress]++
		h.metrics.Decision(decisionSharedAddress)
		changed = append(changed, session)
	}

	addresses := make([]string, 0, len(sessions))
	for _, session := range sessions {
		addresses = append(addresses, session.PaymentAddress)
	}
	balances := h.checkBalances(ctx, addresses, settings.BalanceChunkSize)
	senders, err := h.repo.LatestPaymentSenders(ctx, addresses)
	if err != nil {
		h.logger.Warnw("Failed to load payment senders", "error", err)
	}
	for address, balance := range balances {
		if balance.ReturnAddress == "" {
			balance.ReturnAddress = senders[address]
		}
	}

	now := h.now()
	claimed := make(map[string]bool)
	for _, session := range sessions {
		decision, write := h.decide(ctx, session, balances[session.PaymentAddress], settings, now, claimed)
		result.Counts[decision]++
		h.metrics.Decision(decision)
		if write {
			changed = append(changed, session)
		}
	}

	updated, err := h.repo.UpdateSessions(ctx, changed)
	result.Counts["updated"] = updated
	if err != nil {
		h.logger.Errorw("Some session updates failed", "error", err)
	}
	return nil
}

// decide applies the reconciliation rules to one session, in order, and reports the
// decision and whether the session must be written. claimed collects the handles
// promoted to PAID in this cycle.
func (h *Handlemint) decide(
	ctx context.Context,
	session *models.ActiveSession,
	balance *models.AddressBalance,
	settings *models.Settings,
	now time.Time,
	claimed map[string]bool,
) (string, bool) {
	if balance == nil {
		return decisionNoRecord, false
	}
	amount := balance.Amount
	if balance.ReturnAddress != "" {
		session.ReturnAddress = validation.NormalizeAddress(balance.ReturnAddress)
	}

	started := session.Start
	if started == 0 {
		started = session.DateAdded
	}
	if now.Sub(time.UnixMilli(started)) >= settings.PaymentWindow(session.CreatedBySystem) {
		refund(session, amount)
		return decisionExpired, true
	}

	if amount == 0 {
		return decisionWaiting, false
	}

	if session.ReturnAddress != "" {
		if err := validation.ValidateAddress(session.ReturnAddress); err != nil {
			h.logger.Warnw("Invalid return address", "session", session.ID, "address", session.ReturnAddress, "error", err)
			refund(session, amount)
			return decisionInvalidReturnAddress, true
		}
	} else {
		session.Attempts++
		if session.Attempts < settings.ReturnAddressRetryCeiling {
			return decisionAwaitReturnAddress, true
		}
		h.logger.Notify("Paid session has no return address",
			"session", session.ID, "handle", session.Handle, "address", session.PaymentAddress, "amount", amount)
		refund(session, amount)
		return decisionMissingReturnAddress, true
	}

	switch {
	case amount < session.Cost:
		refund(session, withoutFee(session, amount, settings))
		return decisionUnderpaid, true
	case amount > session.Cost:
		refund(session, amount)
		return decisionOverpaid, true
	}

	if claimed[session.Handle] {
		refund(session, amount)
		return decisionDuplicateClaim, true
	}
	if session.CreatedBySystem == models.SystemSPO {
		owns, err := h.verifier.VerifyReturnAddressOwnsPool(ctx, session.ReturnAddress, session.Handle)
		if err != nil {
			h.logger.Warnw("Failed to verify stake pool owner", "session", session.ID, "error", err)
			return decisionVerifyFailed, false
		}
		if !owns {
			refund(session, withoutFee(session, amount, settings))
			return decisionSPOMismatch, true
		}
	}

	claimed[session.Handle] = true
	session.Status = models.StatusPaid
	session.WorkflowStatus = models.WorkflowPending
	session.Attempts = 0
	h.logger.Infow("Session paid", "session", session.ID, "handle", session.Handle)
	return decisionPaid, true
}

func refund(session *models.ActiveSession, amount int64) {
	session.Status = models.StatusRefundable
	session.WorkflowStatus = models.WorkflowPending
	session.RefundAmount = amount
}

// withoutFee withholds the SPO processing fee from a refund.
func withoutFee(session *models.ActiveSession, amount int64, settings *models.Settings) int64 {
	if session.CreatedBySystem != models.SystemSPO {
		return amount
	}
	if amount <= settings.SPOProcessingFee {
		return 0
	}
	return amount - settings.SPOProcessingFee
}

// dedupeByPaymentAddress keeps the oldest session per payment address and returns
// the later ones separately.
func (h *Handlemint) dedupeByPaymentAddress(sessions []*models.ActiveSession) (unique, shared []*models.ActiveSession) {
	seen := make(map[string]string, len(sessions))
	unique = make([]*models.ActiveSession, 0, len(sessions))
	for _, session := range sessions {
		if session.PaymentAddress == "" {
			h.logger.Warnw("Session has no payment address", "session", session.ID)
			continue
		}
		if first, ok := seen[session.PaymentAddress]; ok {
			h.logger.Notify("Payment address shared by several sessions",
				"address", session.PaymentAddress, "session", session.ID, "handle", session.Handle, "kept", first)
			shared = append(shared, session)
			continue
		}
		seen[session.PaymentAddress] = session.ID
		unique = append(unique, session)
	}
	return unique, shared
}

// checkBalances looks balances up in chunks. A failed chunk is logged and its
// addresses are left out, so those sessions are retried next cycle.
func (h *Handlemint) checkBalances(ctx context.Context, addresses []string, chunkSize int) map[string]*models.AddressBalance {
	if chunkSize <= 0 {
		chunkSize = len(addresses)
	}
	var mu sync.Mutex
	balances := make(map[string]*models.AddressBalance, len(addresses))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(balanceFanOut)
	for start := 0; start < len(addresses); start += chunkSize {
		end := start + chunkSize
		if end > len(addresses) {
			end = len(addresses)
		}
		chunk := addresses[start:end]
		g.Go(func() error {
			found, err := h.chain.CheckBalances(gctx, chunk)
			if err != nil {
				h.logger.Warnw("Failed to check balances", "addresses", len(chunk), "error", err)
				return nil
			}
			mu.Lock()
			defer mu.Unlock()
			for _, balance := range found {
				balances[balance.Address] = balance
			}
			return nil
		})
	}
	_ = g.Wait()
	return balances
}
