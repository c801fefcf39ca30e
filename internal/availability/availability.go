package availability

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/core-coin/handlemint/internal/models"
	"github.com/core-coin/handlemint/pkg/logger"
	"github.com/core-coin/handlemint/pkg/validation"
)

// DefaultReservedTTL is how long the reserved handle list is served before it is reloaded.
const DefaultReservedTTL = 10 * time.Minute

// Prices are handle costs in minor units, by handle length.
type Prices struct {
	OneChar    int64
	TwoChars   int64
	ThreeChars int64
	// Common covers handles of 4 to 7 characters.
	Common int64
	// Basic covers handles of 8 characters or more.
	Basic int64
	SPO   int64
}

func DefaultPrices() Prices {
	return Prices{
		OneChar:    1_000_000_000,
		TwoChars:   500_000_000,
		ThreeChars: 250_000_000,
		Common:     100_000_000,
		Basic:      50_000_000,
		SPO:        250_000_000,
	}
}

// Cost returns the price of a standard handle.
func (p Prices) Cost(handle string) int64 {
	switch n := len(handle); {
	case n == 1:
		return p.OneChar
	case n == 2:
		return p.TwoChars
	case n == 3:
		return p.ThreeChars
	case n <= 7:
		return p.Common
	default:
		return p.Basic
	}
}

// Store is the registry data the checker reads.
type Store interface {
	ListReservedHandles(ctx context.Context) ([]*models.ReservedHandle, error)
	GetStakePoolByTicker(ctx context.Context, ticker string) (*models.StakePool, error)
}

// Chain reports whether a handle was already minted.
type Chain interface {
	HandleExistsOnChain(ctx context.Context, handle string) (*models.HandleExistence, error)
}

// Checker decides whether a handle can be sold and at what price. The reserved handle
// list is cached for ttl; concurrent reloads collapse into one store query.
type Checker struct {
	logger *logger.Logger
	store  Store
	chain  Chain
	prices Prices
	ttl    time.Duration
	now    func() time.Time

	group    singleflight.Group
	mu       sync.RWMutex
	reserved map[string]string
	loadedAt time.Time
}

func NewChecker(store Store, chain Chain, prices Prices, ttl time.Duration, logger *logger.Logger) *Checker {
	if ttl <= 0 {
		ttl = DefaultReservedTTL
	}
	return &Checker{
		logger: logger,
		store:  store,
		chain:  chain,
		prices: prices,
		ttl:    ttl,
		now:    time.Now,
	}
}

func (c *Checker) CheckAvailability(ctx context.Context, handle string, system models.CreatedBySystem) (*models.Availability, error) {
	if err := validation.ValidateHandle(handle); err != nil {
		return &models.Availability{Reason: err.Error()}, nil
	}

	reserved, err := c.reservedHandles(ctx)
	if err != nil {
		return nil, err
	}
	if reason, ok := reserved[handle]; ok {
		return &models.Availability{Reason: "reserved: " + reason}, nil
	}

	availability := &models.Availability{Available: true, Type: models.HandleTypeStandard, Cost: c.prices.Cost(handle)}
	if system == models.SystemSPO {
		_, err := c.store.GetStakePoolByTicker(ctx, handle)
		if errors.Is(err, models.ErrNotFound) {
			return &models.Availability{Reason: "no stake pool registered with this ticker"}, nil
		}
		if err != nil {
			return nil, err
		}
		availability.Type = models.HandleTypeSPO
		availability.Cost = c.prices.SPO
	}

	existence, err := c.chain.HandleExistsOnChain(ctx, handle)
	if err != nil {
		return nil, fmt.Errorf("failed to check handle on chain: %w", err)
	}
	if existence.Exists {
		return &models.Availability{Reason: "already minted"}, nil
	}
	return availability, nil
}

// Invalidate drops the cached reserved handle list.
func (c *Checker) Invalidate() {
	c.mu.Lock()
	c.reserved = nil
	c.mu.Unlock()
}

func (c *Checker) reservedHandles(ctx context.Context) (map[string]string, error) {
	c.mu.RLock()
	cached, loadedAt := c.reserved, c.loadedAt
	c.mu.RUnlock()
	if cached != nil && c.now().Sub(loadedAt) < c.ttl {
		return cached, nil
	}

	v, err, _ := c.group.Do("reserved", func() (interface{}, error) {
		handles, err := c.store.ListReservedHandles(ctx)
		if err != nil {
			return nil, err
		}
		fresh := make(map[string]string, len(handles))
		for _, h := range handles {
			fresh[h.Handle] = h.Reason
		}
		c.mu.Lock()
		c.reserved = fresh
		c.loadedAt = c.now()
		c.mu.Unlock()
		c.logger.Debugw("Reserved handles loaded", "count", len(fresh))
		return fresh, nil
	})
	if err != nil {
		if cached != nil {
			c.logger.Warnw("Failed to reload reserved handles, serving stale list", "error", err)
			return cached, nil
		}
		return nil, fmt.Errorf("failed to load reserved handles: %w", err)
	}
	return v.(map[string]string), nil
}
