package handlemint

import (
	"context"

	"github.com/core-coin/handlemint/internal/models"
)

// RefreshState recomputes the queue sizes and chain metrics cached in the state row
// and checks the wallet pool for a stuck lock.
func (h *Handlemint) RefreshState(ctx context.Context) (*models.JobResult, error) {
	return h.runJob(ctx, JobRefreshState, models.LockRefreshState, h.refreshState)
}

func (h *Handlemint) refreshState(ctx context.Context, settings *models.Settings, result *models.JobResult) error {
	queues := []struct {
		column string
		state  models.SessionState
	}{
		{"pending_sessions", models.StateAwaitingPayment},
		{"paid_sessions", models.StatePaid},
		{"submitted_sessions", models.StateSubmitted},
	}
	fields := make(map[string]interface{}, len(queues)+2)
	for _, q := range queues {
		n, err := h.repo.CountSessions(ctx, q.state)
		if err != nil {
			return err
		}
		fields[q.column] = n
		result.Counts[q.column] = int(n)
		h.metrics.SetQueue(q.column, n)
	}

	if load, err := h.chain.GetChainLoad(ctx, settings.MempoolCapacity); err != nil {
		h.logger.Warnw("Failed to get chain load", "error", err)
	} else {
		fields["chain_load"] = load
		h.metrics.SetChainLoad(load)
	}
	if total, err := h.chain.TotalHandles(ctx); err != nil {
		h.logger.Warnw("Failed to get total handles", "error", err)
	} else {
		fields["total_handles"] = total
	}
	if err := h.repo.UpdateState(ctx, fields); err != nil {
		return err
	}

	wallets, err := h.repo.ListWallets(ctx)
	if err != nil {
		return err
	}
	locked := 0
	for _, wallet := range wallets {
		if wallet.Locked {
			locked++
		}
	}
	h.metrics.SetLockedWallets(locked)
	result.Counts["locked_wallets"] = locked

	stuck, err := h.repo.DetectAllLockedWithNoTransaction(ctx)
	if err != nil {
		return err
	}
	if stuck {
		h.logger.Notify("All minting wallets are locked with no transaction", "wallets", len(wallets))
		result.Message = "wallet pool stuck"
	}
	return nil
}
