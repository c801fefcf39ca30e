package models

import "context"

// SessionRepository is the Session Store.
type SessionRepository interface {
	CreateSessionIfAbsent(ctx context.Context, session *ActiveSession) (bool, error)
	BulkCreateSessions(ctx context.Context, sessions []*ActiveSession, chunkSize int, chunksPerSecond float64) error
	GetSession(ctx context.Context, id string) (*ActiveSession, error)
	FindSessionsByStatusAndWorkflow(ctx context.Context, status Status, workflow WorkflowStatus, limit int) ([]*ActiveSession, error)
	FindSessions(ctx context.Context, filter SessionFilter) ([]*ActiveSession, error)
	UpdateSessions(ctx context.Context, sessions []*ActiveSession) (int, error)
	MarkSessionProcessing(ctx context.Context, id string) (bool, error)
	MarkSessionsSubmitted(ctx context.Context, ids []string, txID, walletID string) (int, error)
	RevertSessionsToPending(ctx context.Context, ids []string, maxAttempts int) ([]*ActiveSession, error)
	FindStaleProcessingSessions(ctx context.Context, olderThan int64) ([]*ActiveSession, error)
	ResolveSubmitted(ctx context.Context, txID string, to SessionState) (int, error)
	RequeueExpiredSessions(ctx context.Context, maxAttempts int) (requeued, deadLettered []*ActiveSession, err error)
	FindSubmittedBatches(ctx context.Context) ([]*SubmittedBatch, error)
	CountSessions(ctx context.Context, state SessionState) (int64, error)
	CountPaidAhead(ctx context.Context, dateAdded int64) (int64, error)
}

// SubmittedBatch is one distinct transaction among PAID+SUBMITTED sessions.
type SubmittedBatch struct {
	TxID string `gorm:"column:tx_id"`
	// SubmittedAt is the oldest update time among the batch's sessions (unix millis).
	SubmittedAt int64 `gorm:"column:submitted_at"`
	Sessions    int64 `gorm:"column:sessions"`
}

// MintingCacheRepository is the at-most-once admission guard.
type MintingCacheRepository interface {
	TryReserveMintingCache(ctx context.Context, handle string) (bool, error)
	ReleaseMintingCache(ctx context.Context, handles []string) error
	ClaimHandleForMint(ctx context.Context, sessionID, handle string) (*HandleClaim, error)
}

// HandleClaim is the outcome of the store-side part of the duplicate guard.
type HandleClaim struct {
	// OtherPaidSessions counts PAID sessions for the same handle besides the claimant.
	OtherPaidSessions int64
	// Reserved is set when the minting cache entry was newly created.
	Reserved bool
}

// Claimed reports whether the claimant may mint.
func (c *HandleClaim) Claimed() bool {
	return c.Reserved && c.OtherPaidSessions == 0
}

// WalletRepository is the persistence side of the Wallet Lock Manager.
type WalletRepository interface {
	FindAndLockAvailableWallet(ctx context.Context) (*MintingWallet, error)
	UnlockWallet(ctx context.Context, wallet *MintingWallet) error
	UnlockWalletByTxID(ctx context.Context, txID string) error
	SetWalletTxID(ctx context.Context, walletID, txID string) error
	UpdateWalletBalance(ctx context.Context, walletID string, balance int64, lowBalance bool) error
	DetectAllLockedWithNoTransaction(ctx context.Context) (bool, error)
	ListWallets(ctx context.Context) ([]*MintingWallet, error)
	UpsertWallet(ctx context.Context, wallet *MintingWallet) error
}

// StateRepository owns the State and Settings singletons.
type StateRepository interface {
	GetState(ctx context.Context) (*State, error)
	UpdateState(ctx context.Context, fields map[string]interface{}) error
	GetSettings(ctx context.Context) (*Settings, error)
	SaveSettings(ctx context.Context, settings *Settings) error
}

// LockRepository holds the job locks.
type LockRepository interface {
	AcquireLock(ctx context.Context, name, instanceID string, lease int64) (bool, error)
	ReleaseLock(ctx context.Context, name, instanceID string) error
}

// PaymentRepository is the payment ledger and the payment address pool.
type PaymentRepository interface {
	AddPayment(ctx context.Context, payment *Payment) error
	LatestPaymentSenders(ctx context.Context, addresses []string) (map[string]string, error)
	IsPaymentAddress(ctx context.Context, address string) (bool, error)
	ReservePaymentAddress(ctx context.Context, sessionID string) (string, error)
	ReleasePaymentAddress(ctx context.Context, address string) error
	AddPaymentAddresses(ctx context.Context, addresses []string) error
}

// RegistryRepository holds stake pools, reserved handles and alert recipients.
type RegistryRepository interface {
	GetStakePoolByTicker(ctx context.Context, ticker string) (*StakePool, error)
	ListReservedHandles(ctx context.Context) ([]*ReservedHandle, error)
	ListAlertRecipients(ctx context.Context) ([]*AlertRecipient, error)
	SetAlertRecipientChatID(ctx context.Context, username, chatID string) (bool, error)
}

// Repository is everything the service needs from storage.
type Repository interface {
	SessionRepository
	MintingCacheRepository
	WalletRepository
	StateRepository
	LockRepository
	PaymentRepository
	RegistryRepository
	Close() error
}
