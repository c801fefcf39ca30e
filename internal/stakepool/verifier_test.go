package stakepool

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/core-coin/handlemint/internal/models"
	"github.com/core-coin/handlemint/pkg/logger"
)

type fakeRegistry struct {
	pools map[string]*models.StakePool
	err   error
}

func (f *fakeRegistry) GetStakePoolByTicker(_ context.Context, ticker string) (*models.StakePool, error) {
	if f.err != nil {
		return nil, f.err
	}
	if pool, ok := f.pools[ticker]; ok {
		return pool, nil
	}
	return nil, models.ErrNotFound
}

func TestVerifyReturnAddressOwnsPool(t *testing.T) {
	registry := &fakeRegistry{pools: map[string]*models.StakePool{
		"pool1": {PoolID: "p1", Ticker: "pool1", OwnerAddress: "CB00000000000000000000000000000000000000AAAA"},
	}}
	v := NewVerifier(registry, logger.NewNop())
	ctx := context.Background()

	ok, err := v.VerifyReturnAddressOwnsPool(ctx, "0xcb00000000000000000000000000000000000000aaaa", "pool1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = v.VerifyReturnAddressOwnsPool(ctx, "cb00000000000000000000000000000000000000bbbb", "pool1")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = v.VerifyReturnAddressOwnsPool(ctx, "cb00000000000000000000000000000000000000aaaa", "pool2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyReturnAddressRegistryError(t *testing.T) {
	v := NewVerifier(&fakeRegistry{err: errors.New("db down")}, logger.NewNop())
	_, err := v.VerifyReturnAddressOwnsPool(context.Background(), "cb01", "pool1")
	require.Error(t, err)
}
