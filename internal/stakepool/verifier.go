package stakepool

import (
	"context"
	"errors"
	"fmt"

	"github.com/core-coin/handlemint/internal/models"
	"github.com/core-coin/handlemint/pkg/logger"
	"github.com/core-coin/handlemint/pkg/validation"
)

// Registry looks up stake pools by ticker.
type Registry interface {
	GetStakePoolByTicker(ctx context.Context, ticker string) (*models.StakePool, error)
}

// Verifier checks that the address an SPO paid from is the owner key of the pool whose
// ticker is being bought.
type Verifier struct {
	logger   *logger.Logger
	registry Registry
}

func NewVerifier(registry Registry, logger *logger.Logger) *Verifier {
	return &Verifier{logger: logger, registry: registry}
}

func (v *Verifier) VerifyReturnAddressOwnsPool(ctx context.Context, address, handle string) (bool, error) {
	pool, err := v.registry.GetStakePoolByTicker(ctx, handle)
	if errors.Is(err, models.ErrNotFound) {
		v.logger.Warnw("No stake pool for SPO handle", "handle", handle)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get stake pool: %w", err)
	}
	if !validation.SameAddress(pool.OwnerAddress, address) {
		v.logger.Infow("Return address does not own stake pool", "handle", handle, "pool", pool.PoolID)
		return false, nil
	}
	return true, nil
}
