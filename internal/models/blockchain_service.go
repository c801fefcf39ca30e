package models

import "context"

// TxStatus is the chain-side status of a submitted transaction.
type TxStatus string

const (
	TxStatusInLedger TxStatus = "in_ledger"
	TxStatusPending  TxStatus = "pending"
	TxStatusExpired  TxStatus = "expired"
	// TxStatusUnknown means the node has neither the transaction nor its receipt.
	TxStatusUnknown  TxStatus = "unknown"
)

// TransactionStatus is the result of a transaction lookup.
type TransactionStatus struct {
	Status TxStatus
	// Depth is the number of blocks on top of (and including) the inclusion block.
	Depth uint64
}

// HandleExistence is the result of an on-chain handle lookup.
type HandleExistence struct {
	Exists bool
	// Duplicate is set when the handle was minted more than once.
	Duplicate bool
}

// BlockchainService represents a service that interacts with a blockchain.
type BlockchainService interface {
	CheckBalances(ctx context.Context, addresses []string) ([]*AddressBalance, error)
	GetTransactionStatus(ctx context.Context, txID string) (*TransactionStatus, error)
	HandleExistsOnChain(ctx context.Context, handle string) (*HandleExistence, error)
	GetAddressBalance(ctx context.Context, address string) (int64, error)
	GetChainLoad(ctx context.Context, mempoolCapacity int64) (float64, error)
	TotalHandles(ctx context.Context) (int64, error)
}

// Minter submits one mint transaction covering a batch of sessions.
type Minter interface {
	Mint(ctx context.Context, sessions []*ActiveSession, wallet *MintingWallet) (string, error)
}

// StakePoolVerifier checks that an SPO purchaser owns the pool behind the handle.
type StakePoolVerifier interface {
	VerifyReturnAddressOwnsPool(ctx context.Context, address, handle string) (bool, error)
}

// HandleType classifies a handle for pricing and flow.
type HandleType string

const (
	HandleTypeStandard HandleType = "standard"
	HandleTypeSPO      HandleType = "spo"
)

// Availability is the result of an availability check.
type Availability struct {
	Available bool
	Cost      int64
	Type      HandleType
	Reason    string
}

// AvailabilityChecker decides whether a handle can be sold and at what cost.
type AvailabilityChecker interface {
	CheckAvailability(ctx context.Context, handle string, system CreatedBySystem) (*Availability, error)
}

// ArtifactBackup stores generated artifacts for a submitted batch.
type ArtifactBackup interface {
	Backup(ctx context.Context, txID string, sessions []*ActiveSession) error
}
