package availability

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/core-coin/handlemint/internal/models"
	"github.com/core-coin/handlemint/pkg/logger"
)

type fakeStore struct {
	loads    atomic.Int32
	gate     chan struct{}
	reserved []*models.ReservedHandle
	pools    map[string]*models.StakePool
	err      error
}

func (f *fakeStore) ListReservedHandles(ctx context.Context) ([]*models.ReservedHandle, error) {
	f.loads.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.reserved, nil
}

func (f *fakeStore) GetStakePoolByTicker(_ context.Context, ticker string) (*models.StakePool, error) {
	if pool, ok := f.pools[ticker]; ok {
		return pool, nil
	}
	return nil, models.ErrNotFound
}

type fakeChain struct {
	minted map[string]bool
}

func (f *fakeChain) HandleExistsOnChain(_ context.Context, handle string) (*models.HandleExistence, error) {
	return &models.HandleExistence{Exists: f.minted[handle]}, nil
}

func newChecker(store *fakeStore, chain *fakeChain) *Checker {
	return NewChecker(store, chain, DefaultPrices(), time.Minute, logger.NewNop())
}

func TestCheckAvailability(t *testing.T) {
	store := &fakeStore{
		reserved: []*models.ReservedHandle{{Handle: "core", Reason: "brand"}},
		pools:    map[string]*models.StakePool{"pool1": {PoolID: "p1", Ticker: "pool1", OwnerAddress: "cb01"}},
	}
	chain := &fakeChain{minted: map[string]bool{"taken": true}}
	checker := newChecker(store, chain)
	ctx := context.Background()

	tests := []struct {
		name      string
		handle    string
		system    models.CreatedBySystem
		available bool
		cost      int64
		kind      models.HandleType
	}{
		{"standard", "alice", models.SystemUI, true, DefaultPrices().Common, models.HandleTypeStandard},
		{"short", "ab", models.SystemCLI, true, DefaultPrices().TwoChars, models.HandleTypeStandard},
		{"long", "alicewonderland", models.SystemUI, true, DefaultPrices().Basic, models.HandleTypeStandard},
		{"reserved", "core", models.SystemUI, false, 0, ""},
		{"minted", "taken", models.SystemUI, false, 0, ""},
		{"invalid", "Bad Name", models.SystemUI, false, 0, ""},
		{"spo", "pool1", models.SystemSPO, true, DefaultPrices().SPO, models.HandleTypeSPO},
		{"spo unknown pool", "pool2", models.SystemSPO, false, 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := checker.CheckAvailability(ctx, tt.handle, tt.system)
			require.NoError(t, err)
			assert.Equal(t, tt.available, got.Available)
			if tt.available {
				assert.Equal(t, tt.cost, got.Cost)
				assert.Equal(t, tt.kind, got.Type)
			} else {
				assert.NotEmpty(t, got.Reason)
			}
		})
	}
	assert.Equal(t, int32(1), store.loads.Load())
}

func TestReservedHandlesSingleFlight(t *testing.T) {
	store := &fakeStore{gate: make(chan struct{})}
	checker := newChecker(store, &fakeChain{})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := checker.reservedHandles(context.Background())
			assert.NoError(t, err)
		}()
	}
	// let every goroutine reach the flight before releasing it
	time.Sleep(50 * time.Millisecond)
	close(store.gate)
	wg.Wait()

	assert.Equal(t, int32(1), store.loads.Load())
}

func TestReservedHandlesTTL(t *testing.T) {
	store := &fakeStore{reserved: []*models.ReservedHandle{{Handle: "core", Reason: "brand"}}}
	checker := newChecker(store, &fakeChain{})
	now := time.Now()
	checker.now = func() time.Time { return now }

	_, err := checker.reservedHandles(context.Background())
	require.NoError(t, err)
	_, err = checker.reservedHandles(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), store.loads.Load())

	now = now.Add(2 * time.Minute)
	_, err = checker.reservedHandles(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), store.loads.Load())

	checker.Invalidate()
	_, err = checker.reservedHandles(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(3), store.loads.Load())
}

func TestReservedHandlesServesStaleOnError(t *testing.T) {
	store := &fakeStore{reserved: []*models.ReservedHandle{{Handle: "core", Reason: "brand"}}}
	checker := newChecker(store, &fakeChain{})
	now := time.Now()
	checker.now = func() time.Time { return now }

	_, err := checker.reservedHandles(context.Background())
	require.NoError(t, err)

	store.err = errors.New("db down")
	now = now.Add(2 * time.Minute)
	reserved, err := checker.reservedHandles(context.Background())
	require.NoError(t, err)
	assert.Contains(t, reserved, "core")
}

func TestReservedHandlesErrorWithoutCache(t *testing.T) {
	store := &fakeStore{err: errors.New("db down")}
	checker := newChecker(store, &fakeChain{})

	_, err := checker.CheckAvailability(context.Background(), "alice", models.SystemUI)
	require.Error(t, err)
}
