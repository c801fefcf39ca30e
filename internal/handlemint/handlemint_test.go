package handlemint

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/core-coin/handlemint/internal/config"
	"github.com/core-coin/handlemint/internal/models"
	"github.com/core-coin/handlemint/internal/repository"
	"github.com/core-coin/handlemint/pkg/logger"
)

type fakeChain struct {
	mu            sync.Mutex
	balances      map[string]*models.AddressBalance
	txStatus      map[string]*models.TransactionStatus
	txErr         map[string]error
	minted        map[string]bool
	walletBalance int64
	chainLoad     float64
	totalHandles  int64
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		balances:      map[string]*models.AddressBalance{},
		txStatus:      map[string]*models.TransactionStatus{},
		txErr:         map[string]error{},
		minted:        map[string]bool{},
		walletBalance: 1_000_000,
	}
}

func (f *fakeChain) pay(address string, amount int64, from string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[address] = &models.AddressBalance{Address: address, Amount: amount, ReturnAddress: from}
}

func (f *fakeChain) CheckBalances(_ context.Context, addresses []string) ([]*models.AddressBalance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.AddressBalance
	for _, address := range addresses {
		if balance, ok := f.balances[address]; ok {
			copied := *balance
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeChain) GetTransactionStatus(_ context.Context, txID string) (*models.TransactionStatus, error) {
	if err := f.txErr[txID]; err != nil {
		return nil, err
	}
	if status, ok := f.txStatus[txID]; ok {
		return status, nil
	}
	return &models.TransactionStatus{Status: models.TxStatusPending}, nil
}

func (f *fakeChain) HandleExistsOnChain(_ context.Context, handle string) (*models.HandleExistence, error) {
	return &models.HandleExistence{Exists: f.minted[handle]}, nil
}

func (f *fakeChain) GetAddressBalance(context.Context, string) (int64, error) {
	return f.walletBalance, nil
}

func (f *fakeChain) GetChainLoad(context.Context, int64) (float64, error) {
	return f.chainLoad, nil
}

func (f *fakeChain) TotalHandles(context.Context) (int64, error) {
	return f.totalHandles, nil
}

type fakeMinter struct {
	mu    sync.Mutex
	txID  string
	err   error
	panic bool
	calls [][]*models.ActiveSession
}

func (f *fakeMinter) Mint(_ context.Context, sessions []*models.ActiveSession, _ *models.MintingWallet) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, sessions)
	if f.panic {
		panic("signer crashed")
	}
	if f.err != nil {
		return "", f.err
	}
	if f.txID == "" {
		return fmt.Sprintf("0xtx%d", len(f.calls)), nil
	}
	return f.txID, nil
}

type fakeVerifier struct {
	owns bool
}

func (f *fakeVerifier) VerifyReturnAddressOwnsPool(context.Context, string, string) (bool, error) {
	return f.owns, nil
}

type fakeAvailability struct {
	availability *models.Availability
}

func (f *fakeAvailability) CheckAvailability(context.Context, string, models.CreatedBySystem) (*models.Availability, error) {
	return f.availability, nil
}

type fakeBackup struct {
	mu  sync.Mutex
	txs []string
}

func (f *fakeBackup) Backup(_ context.Context, txID string, _ []*models.ActiveSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txs = append(f.txs, txID)
	return nil
}

type testEnv struct {
	h      *Handlemint
	repo   *repository.DB
	chain  *fakeChain
	minter *fakeMinter
	backup *fakeBackup
	avail  *fakeAvailability
	verify *fakeVerifier
	ctx    context.Context
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	repo, err := repository.NewSQLiteDB(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()), logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	env := &testEnv{
		repo:   repo,
		chain:  newFakeChain(),
		minter: &fakeMinter{txID: "0xtx1"},
		backup: &fakeBackup{},
		avail:  &fakeAvailability{availability: &models.Availability{Available: true, Cost: 50, Type: models.HandleTypeStandard}},
		verify: &fakeVerifier{owns: true},
		ctx:    context.Background(),
	}
	env.h = NewHandlemint(Dependencies{
		Repo:         repo,
		Chain:        env.chain,
		Minter:       env.minter,
		Verifier:     env.verify,
		Availability: env.avail,
		Backup:       env.backup,
	}, logger.NewNop(), &config.Config{InstanceID: "test"})
	return env
}

// shift moves the service clock forward relative to real time.
func (e *testEnv) shift(d time.Duration) {
	e.h.now = func() time.Time { return time.Now().Add(d) }
}

func addr(n int) string {
	return fmt.Sprintf("cb%042x", n)
}

type sessionOpt func(*models.ActiveSession)

func withState(state models.SessionState) sessionOpt {
	return func(s *models.ActiveSession) { s.Status, s.WorkflowStatus = state.Status, state.Workflow }
}

func withSystem(system models.CreatedBySystem) sessionOpt {
	return func(s *models.ActiveSession) { s.CreatedBySystem = system }
}

func withAge(age time.Duration) sessionOpt {
	return func(s *models.ActiveSession) {
		ts := time.Now().Add(-age).UnixMilli()
		s.Start, s.DateAdded = ts, ts
	}
}

func withTx(txID, walletID string) sessionOpt {
	return func(s *models.ActiveSession) { s.TxID, s.WalletID = txID, walletID }
}

func withAttempts(n int) sessionOpt {
	return func(s *models.ActiveSession) { s.Attempts = n }
}

func withReturnAddress(a string) sessionOpt {
	return func(s *models.ActiveSession) { s.ReturnAddress = a }
}

var addressSeq int

// addSession inserts a session directly, bypassing the one-active-session check.
func (e *testEnv) addSession(t *testing.T, handle string, opts ...sessionOpt) *models.ActiveSession {
	t.Helper()
	addressSeq++
	now := time.Now().UnixMilli()
	session := &models.ActiveSession{
		ID:              uuid.NewString(),
		Handle:          handle,
		PaymentAddress:  addr(addressSeq),
		Cost:            50,
		Status:          models.StatusPending,
		WorkflowStatus:  models.WorkflowPending,
		Start:           now,
		DateAdded:       now,
		CreatedBySystem: models.SystemUI,
	}
	for _, opt := range opts {
		opt(session)
	}
	require.NoError(t, e.repo.Conn.Create(session).Error)
	return session
}

func (e *testEnv) reload(t *testing.T, id string) *models.ActiveSession {
	t.Helper()
	session, err := e.repo.GetSession(e.ctx, id)
	require.NoError(t, err)
	return session
}

func (e *testEnv) addWallet(t *testing.T, id string, index int) *models.MintingWallet {
	t.Helper()
	wallet := &models.MintingWallet{ID: id, Index: index, Address: addr(1000 + index), MinBalance: 100}
	require.NoError(t, e.repo.UpsertWallet(e.ctx, wallet))
	return wallet
}

func (e *testEnv) wallet(t *testing.T, id string) *models.MintingWallet {
	t.Helper()
	wallets, err := e.repo.ListWallets(e.ctx)
	require.NoError(t, err)
	for _, w := range wallets {
		if w.ID == id {
			return w
		}
	}
	t.Fatalf("wallet %s not found", id)
	return nil
}

func TestRunJobLocked(t *testing.T) {
	env := newTestEnv(t)
	acquired, err := env.repo.AcquireLock(env.ctx, models.LockMintPaidSessions, "other-instance", time.Minute.Milliseconds())
	require.NoError(t, err)
	require.True(t, acquired)

	result, err := env.h.MintPaidSessions(env.ctx)
	require.ErrorIs(t, err, models.ErrJobLocked)
	assert.True(t, models.IsBenign(err))
	assert.True(t, result.Error)
	assert.Equal(t, JobMint, result.Job)
}

func TestRunJobReleasesLock(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.h.ReconcilePayments(env.ctx)
	require.NoError(t, err)

	acquired, err := env.repo.AcquireLock(env.ctx, models.LockUpdateActiveSessions, "other-instance", time.Minute.Milliseconds())
	require.NoError(t, err)
	assert.True(t, acquired)
}

func TestSafeCallRecoversPanic(t *testing.T) {
	env := newTestEnv(t)
	err := env.h.safeCall(func() error { panic("boom") }, "test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	err = env.h.safeCall(func() error { return errors.New("plain") }, "test")
	assert.EqualError(t, err, "plain")
}

func TestQueuePosition(t *testing.T) {
	env := newTestEnv(t)
	first := env.addSession(t, "first", withState(models.StatePaid), withAge(3*time.Minute))
	second := env.addSession(t, "second", withState(models.StatePaid), withAge(2*time.Minute))
	waiting := env.addSession(t, "waiting")

	info, err := env.h.QueuePosition(env.ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), info.Position)

	info, err = env.h.QueuePosition(env.ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), info.Position)

	info, err = env.h.QueuePosition(env.ctx, waiting.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), info.Position)
	assert.Equal(t, models.StatusPending, info.Status)

	_, err = env.h.QueuePosition(env.ctx, "missing")
	require.ErrorIs(t, err, models.ErrNotFound)
}
