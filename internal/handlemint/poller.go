package handlemint

import (
	"context"
	"time"

	"github.com/core-coin/handlemint/internal/models"
)

// ConfirmMints checks every submitted transaction on chain. Buried transactions become
// CONFIRMED and free their wallet, expired ones go to EXPIRED, and transactions stuck
// past the submitted timeout are dead-lettered. EXPIRED sessions are then requeued.
func (h *Handlemint) ConfirmMints(ctx context.Context) (*models.JobResult, error) {
	return h.runJob(ctx, JobConfirm, models.LockMintConfirm, h.confirm)
}

func (h *Handlemint) confirm(ctx context.Context, settings *models.Settings, result *models.JobResult) error {
	batches, err := h.repo.FindSubmittedBatches(ctx)
	if err != nil {
		return err
	}
	for _, batch := range batches {
		outcome, err := h.resolveBatch(ctx, batch, settings)
		if err != nil {
			h.logger.Errorw("Failed to resolve submitted transaction", "tx", batch.TxID, "error", err)
			result.Counts["errors"]++
			continue
		}
		result.Counts[outcome]++
		h.metrics.Confirmation(outcome)
	}

	requeued, dead, err := h.repo.RequeueExpiredSessions(ctx, settings.MaxMintAttempts)
	if err != nil {
		h.logger.Errorw("Failed to requeue expired sessions", "error", err)
	}
	result.Counts["requeued"] = len(requeued)
	result.Counts["dead_lettered"] += len(dead)
	h.notifyDeadLettered(dead, "transaction expired too many times")
	return nil
}

// resolveBatch handles one transaction. Errors are confined to the transaction.
func (h *Handlemint) resolveBatch(ctx context.Context, batch *models.SubmittedBatch, settings *models.Settings) (string, error) {
	status, err := h.chain.GetTransactionStatus(ctx, batch.TxID)
	if err != nil {
		return "", err
	}

	age := h.now().Sub(time.UnixMilli(batch.SubmittedAt))
	dropped := status.Status == models.TxStatusUnknown && age >= settings.DroppedTxGrace

	switch {
	case status.Status == models.TxStatusInLedger && status.Depth >= settings.ConfirmationDepth:
		n, err := h.repo.ResolveSubmitted(ctx, batch.TxID, models.StateConfirmed)
		if err != nil {
			return "", err
		}
		h.unlockWallet(ctx, batch.TxID)
		h.logger.Infow("Mint confirmed", "tx", batch.TxID, "sessions", n, "depth", status.Depth)
		return "confirmed", nil

	case status.Status == models.TxStatusExpired || dropped:
		sessions, err := h.repo.FindSessions(ctx, models.SessionFilter{TxID: batch.TxID})
		if err != nil {
			return "", err
		}
		n, err := h.repo.ResolveSubmitted(ctx, batch.TxID, models.StateExpired)
		if err != nil {
			return "", err
		}
		if err := h.repo.ReleaseMintingCache(ctx, sessionHandles(sessions)); err != nil {
			h.logger.Errorw("Failed to release minting cache", "tx", batch.TxID, "error", err)
		}
		h.unlockWallet(ctx, batch.TxID)
		h.logger.Warnw("Mint transaction expired", "tx", batch.TxID, "sessions", n, "status", status.Status)
		return "expired", nil
	}

	if settings.SubmittedTimeout > 0 && age >= settings.SubmittedTimeout {
		n, err := h.repo.ResolveSubmitted(ctx, batch.TxID, models.StateDLQSubmitted)
		if err != nil {
			return "", err
		}
		h.unlockWallet(ctx, batch.TxID)
		h.logger.Notify("Mint transaction never confirmed, sessions moved to DLQ",
			"tx", batch.TxID, "sessions", n, "age", age.String(), "status", string(status.Status))
		return "timed_out", nil
	}
	return "waiting", nil
}

func (h *Handlemint) unlockWallet(ctx context.Context, txID string) {
	if err := h.repo.UnlockWalletByTxID(ctx, txID); err != nil {
		h.logger.Errorw("Failed to unlock wallet", "tx", txID, "error", err)
	}
}
