package handlemint

import (
	"context"
	"fmt"

	"github.com/core-coin/handlemint/internal/models"
)

// MintPaidSessions locks a wallet and submits one mint transaction for the oldest PAID
// sessions. Sessions that fail the duplicate guard become REFUNDABLE. If submission
// fails or the job crashes, the batch goes back to the PAID queue.
func (h *Handlemint) MintPaidSessions(ctx context.Context) (*models.JobResult, error) {
	return h.runJob(ctx, JobMint, models.LockMintPaidSessions, h.mint)
}

func (h *Handlemint) mint(ctx context.Context, settings *models.Settings, result *models.JobResult) error {
	h.recoverStaleProcessing(ctx, settings, result)

	state, err := h.repo.GetState(ctx)
	if err != nil {
		return err
	}
	if state.ChainLoad >= settings.ChainLoadThreshold {
		return fmt.Errorf("%w: load %.2f, threshold %.2f", models.ErrChainLoadTooHigh, state.ChainLoad, settings.ChainLoadThreshold)
	}

	wallet, err := h.repo.FindAndLockAvailableWallet(ctx)
	if err != nil {
		return err
	}
	if wallet == nil {
		return models.ErrNoWalletAvailable
	}
	txID := ""
	defer func() {
		if txID != "" {
			return
		}
		if err := h.repo.UnlockWallet(context.WithoutCancel(ctx), wallet); err != nil {
			h.logger.Errorw("Failed to unlock wallet", "wallet", wallet.ID, "error", err)
		}
	}()

	if err := h.checkWalletBalance(ctx, wallet); err != nil {
		return err
	}

	paid, err := h.repo.FindSessionsByStatusAndWorkflow(ctx, models.StatusPaid, models.WorkflowPending, settings.PaidSessionsLimit)
	if err != nil {
		return err
	}
	var batch []*models.ActiveSession
	for _, session := range paid {
		ok, err := h.repo.MarkSessionProcessing(ctx, session.ID)
		if err != nil {
			h.logger.Errorw("Failed to mark session processing", "session", session.ID, "error", err)
			continue
		}
		if !ok {
			continue
		}
		session.WorkflowStatus = models.WorkflowProcessing
		batch = append(batch, session)
	}
	result.Counts["processing"] = len(batch)
	if len(batch) == 0 {
		result.Message = "no paid sessions"
		return nil
	}

	// Until the batch is settled, a failure or panic sends every session still in
	// PROCESSING back to the queue and frees the handles reserved for it.
	var reserved []string
	settled := false
	defer func() {
		if settled {
			return
		}
		h.abandonBatch(context.WithoutCancel(ctx), batch, reserved, settings)
	}()

	var mintable, refunded, deferred []*models.ActiveSession
	for _, session := range batch {
		ok, err := h.guard(ctx, session)
		if err != nil {
			h.logger.Warnw("Duplicate guard failed, session goes back to the queue", "session", session.ID, "error", err)
			deferred = append(deferred, session)
			continue
		}
		if !ok {
			session.Status = models.StatusRefundable
			session.WorkflowStatus = models.WorkflowPending
			session.RefundAmount = session.Cost
			refunded = append(refunded, session)
			continue
		}
		reserved = append(reserved, session.Handle)
		mintable = append(mintable, session)
	}
	if len(refunded) > 0 {
		n, err := h.repo.UpdateSessions(ctx, refunded)
		if err != nil {
			h.logger.Errorw("Failed to refund duplicate sessions", "error", err)
		}
		result.Counts["refunded"] = n
	}
	if len(mintable) == 0 {
		result.Message = "nothing to mint"
		return nil
	}

	txID, err = h.minter.Mint(ctx, mintable, wallet)
	if err != nil {
		txID = ""
		h.metrics.MintBatch("failed", len(mintable))
		return fmt.Errorf("mint submission failed: %w", err)
	}
	settled = true

	h.logger.Infow("Mint batch submitted", "tx", txID, "wallet", wallet.ID, "handles", len(mintable))
	h.metrics.MintBatch("submitted", len(mintable))
	result.TxID = txID
	result.Counts["submitted"] = len(mintable)
	if len(deferred) > 0 {
		h.abandonBatch(ctx, deferred, nil, settings)
		result.Counts["deferred"] = len(deferred)
	}

	if err := h.repo.SetWalletTxID(ctx, wallet.ID, txID); err != nil {
		h.logger.Notify("Failed to record mint transaction on wallet", "wallet", wallet.ID, "tx", txID, "error", err)
	}
	ids := sessionIDs(mintable)
	n, err := h.repo.MarkSessionsSubmitted(ctx, ids, txID, wallet.ID)
	if err != nil || n != len(ids) {
		h.logger.Notify("Mint transaction submitted but sessions not all marked",
			"tx", txID, "expected", len(ids), "marked", n, "error", err)
	}
	if err := h.repo.UpdateState(ctx, map[string]interface{}{"last_minting_timestamp": h.now().UnixMilli()}); err != nil {
		h.logger.Errorw("Failed to update last minting timestamp", "error", err)
	}

	if h.backup != nil {
		for _, session := range mintable {
			session.TxID, session.WalletID = txID, wallet.ID
		}
		h.background(ctx, "backup", func(ctx context.Context) error {
			return h.backup.Backup(ctx, txID, mintable)
		})
	}
	return nil
}

// guard is the duplicate mint check: the handle must not exist on chain, no other
// session may hold it as PAID, and the minting cache reservation must succeed.
func (h *Handlemint) guard(ctx context.Context, session *models.ActiveSession) (bool, error) {
	existence, err := h.chain.HandleExistsOnChain(ctx, session.Handle)
	if err != nil {
		return false, err
	}
	if existence.Exists {
		if existence.Duplicate {
			h.logger.Notify("Handle minted more than once", "handle", session.Handle)
		}
		h.logger.Warnw("Handle already on chain", "session", session.ID, "handle", session.Handle)
		return false, nil
	}
	claim, err := h.repo.ClaimHandleForMint(ctx, session.ID, session.Handle)
	if err != nil {
		return false, err
	}
	if !claim.Claimed() {
		h.logger.Warnw("Handle is already being minted", "session", session.ID, "handle", session.Handle,
			"other_paid", claim.OtherPaidSessions, "cache_hit", !claim.Reserved)
		return false, nil
	}
	return true, nil
}

// checkWalletBalance refreshes the balance of a freshly locked wallet. A wallet below
// its minimum is flagged for refill and the cycle stops before any session is touched.
func (h *Handlemint) checkWalletBalance(ctx context.Context, wallet *models.MintingWallet) error {
	balance, err := h.chain.GetAddressBalance(ctx, wallet.Address)
	if err != nil {
		return fmt.Errorf("failed to get wallet balance: %w", err)
	}
	low := balance < wallet.MinBalance
	if err := h.repo.UpdateWalletBalance(ctx, wallet.ID, balance, low); err != nil {
		h.logger.Errorw("Failed to store wallet balance", "wallet", wallet.ID, "error", err)
	}
	wallet.Balance, wallet.LowBalance = balance, low
	if low {
		h.logger.Notify("Minting wallet balance below minimum",
			"wallet", wallet.ID, "address", wallet.Address, "balance", balance, "min_balance", wallet.MinBalance)
		return fmt.Errorf("%w: wallet %s", models.ErrWalletBalanceTooLow, wallet.ID)
	}
	return nil
}

// abandonBatch returns unsettled sessions to the PAID queue and frees their handles.
func (h *Handlemint) abandonBatch(ctx context.Context, batch []*models.ActiveSession, reserved []string, settings *models.Settings) {
	h.logger.Warnw("Reverting mint batch", "sessions", len(batch))
	dead, err := h.repo.RevertSessionsToPending(ctx, sessionIDs(batch), settings.MaxMintAttempts)
	if err != nil {
		h.logger.Errorw("Failed to revert sessions", "error", err)
	}
	h.notifyDeadLettered(dead, "mint attempts exhausted")
	if err := h.repo.ReleaseMintingCache(ctx, reserved); err != nil {
		h.logger.Errorw("Failed to release minting cache", "handles", reserved, "error", err)
	}
}

// recoverStaleProcessing reverts PROCESSING sessions left behind by a crashed runner.
func (h *Handlemint) recoverStaleProcessing(ctx context.Context, settings *models.Settings, result *models.JobResult) {
	cutoff := h.now().Add(-settings.ProcessingTimeout).UnixMilli()
	stale, err := h.repo.FindStaleProcessingSessions(ctx, cutoff)
	if err != nil {
		h.logger.Errorw("Failed to find stale processing sessions", "error", err)
		return
	}
	if len(stale) == 0 {
		return
	}
	h.logger.Warnw("Recovering stale processing sessions", "count", len(stale))
	dead, err := h.repo.RevertSessionsToPending(ctx, sessionIDs(stale), settings.MaxMintAttempts)
	if err != nil {
		h.logger.Errorw("Failed to revert stale sessions", "error", err)
	}
	h.notifyDeadLettered(dead, "mint attempts exhausted")
	if err := h.repo.ReleaseMintingCache(ctx, sessionHandles(stale)); err != nil {
		h.logger.Errorw("Failed to release minting cache", "error", err)
	}
	result.Counts["recovered"] = len(stale)
}

func (h *Handlemint) notifyDeadLettered(sessions []*models.ActiveSession, reason string) {
	for _, session := range sessions {
		h.logger.Notify("Session moved to DLQ",
			"session", session.ID, "handle", session.Handle, "attempts", session.Attempts, "reason", reason)
	}
}

func sessionIDs(sessions []*models.ActiveSession) []string {
	ids := make([]string, 0, len(sessions))
	for _, session := range sessions {
		ids = append(ids, session.ID)
	}
	return ids
}

func sessionHandles(sessions []*models.ActiveSession) []string {
	handles := make([]string, 0, len(sessions))
	for _, session := range sessions {
		handles = append(handles, session.Handle)
	}
	return handles
}
