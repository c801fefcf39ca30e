package models

import "time"

// SingletonID is the primary key of the State and Settings rows.
const SingletonID = 1

// State holds process-wide cached chain metrics and queue sizes.
type State struct {
	ID uint `json:"-" gorm:"column:id;primaryKey"`
	// ChainLoad is the last observed chain load in [0, 1].
	ChainLoad float64 `json:"chain_load" gorm:"column:chain_load"`
	// TotalHandles is the number of handles minted on-chain.
	TotalHandles int64 `json:"total_handles" gorm:"column:total_handles"`
	// PendingSessions is the number of sessions waiting for payment.
	PendingSessions int64 `json:"pending_sessions" gorm:"column:pending_sessions"`
	// PaidSessions is the number of paid sessions waiting to be minted.
	PaidSessions int64 `json:"paid_sessions" gorm:"column:paid_sessions"`
	// SubmittedSessions is the number of sessions waiting for confirmation.
	SubmittedSessions int64 `json:"submitted_sessions" gorm:"column:submitted_sessions"`
	// LastMintingTimestamp is when the last batch was submitted (unix millis).
	LastMintingTimestamp int64 `json:"last_minting_timestamp" gorm:"column:last_minting_timestamp"`
	UpdatedAt            int64 `json:"updated_at" gorm:"column:updated_at;autoUpdateTime:milli"`
}

func (State) TableName() string {
	return "app_state"
}

// Settings are operator-tunable thresholds. Read-only for the jobs.
type Settings struct {
	ID uint `json:"-" gorm:"column:id;primaryKey"`
	// PaidSessionsLimit is the maximum batch size for one mint transaction.
	PaidSessionsLimit int `json:"paid_sessions_limit" gorm:"column:paid_sessions_limit"`
	// PaymentWindowUI is how long a UI session waits for payment.
	PaymentWindowUI time.Duration `json:"payment_window_ui" gorm:"column:payment_window_ui"`
	// PaymentWindowCLI is how long a CLI session waits for payment.
	PaymentWindowCLI time.Duration `json:"payment_window_cli" gorm:"column:payment_window_cli"`
	// PaymentWindowSPO is how long an SPO session waits for payment.
	PaymentWindowSPO time.Duration `json:"payment_window_spo" gorm:"column:payment_window_spo"`
	// ChainLoadThreshold is the chain load above which minting pauses.
	ChainLoadThreshold float64 `json:"chain_load_threshold" gorm:"column:chain_load_threshold"`
	// ConfirmationDepth is how many blocks bury a mint before it is CONFIRMED.
	ConfirmationDepth uint64 `json:"confirmation_depth" gorm:"column:confirmation_depth"`
	// SPOProcessingFee is withheld from SPO refunds, in minor units.
	SPOProcessingFee int64 `json:"spo_processing_fee" gorm:"column:spo_processing_fee"`
	// ReturnAddressRetryCeiling bounds retries for a paid session without a return address.
	ReturnAddressRetryCeiling int `json:"return_address_retry_ceiling" gorm:"column:return_address_retry_ceiling"`
	// MaxMintAttempts bounds mint retries before a session is dead-lettered.
	MaxMintAttempts int `json:"max_mint_attempts" gorm:"column:max_mint_attempts"`
	// SubmittedTimeout is how long a transaction may stay unconfirmed before DLQ.
	SubmittedTimeout time.Duration `json:"submitted_timeout" gorm:"column:submitted_timeout"`
	// ProcessingTimeout is how long a session may sit in PROCESSING before it is reverted.
	ProcessingTimeout time.Duration `json:"processing_timeout" gorm:"column:processing_timeout"`
	// DroppedTxGrace is how long an unknown transaction counts as pending before it is treated as expired.
	DroppedTxGrace time.Duration `json:"dropped_tx_grace" gorm:"column:dropped_tx_grace"`
	// CronLockLease is how long a job lock is held before another instance may take it.
	CronLockLease time.Duration `json:"cron_lock_lease" gorm:"column:cron_lock_lease"`
	// BalanceChunkSize is how many addresses go in one balance lookup.
	BalanceChunkSize int `json:"balance_chunk_size" gorm:"column:balance_chunk_size"`
	// BulkChunkSize is how many sessions go in one bulk insert.
	BulkChunkSize int `json:"bulk_chunk_size" gorm:"column:bulk_chunk_size"`
	// BulkChunksPerSecond paces bulk inserts.
	BulkChunksPerSecond float64 `json:"bulk_chunks_per_second" gorm:"column:bulk_chunks_per_second"`
	// MempoolCapacity is the pending transaction count that means full load.
	MempoolCapacity int64 `json:"mempool_capacity" gorm:"column:mempool_capacity"`
}

func (Settings) TableName() string {
	return "settings"
}

// DefaultSettings returns the thresholds used when the settings row is first created.
func DefaultSettings() *Settings {
	return &Settings{
		ID:                        SingletonID,
		PaidSessionsLimit:         20,
		PaymentWindowUI:           10 * time.Minute,
		PaymentWindowCLI:          24 * time.Hour,
		PaymentWindowSPO:          24 * time.Hour,
		ChainLoadThreshold:        0.8,
		ConfirmationDepth:         5,
		SPOProcessingFee:          2_000_000,
		ReturnAddressRetryCeiling: 3,
		MaxMintAttempts:           3,
		SubmittedTimeout:          6 * time.Hour,
		ProcessingTimeout:         15 * time.Minute,
		DroppedTxGrace:            10 * time.Minute,
		CronLockLease:             5 * time.Minute,
		BalanceChunkSize:          50,
		BulkChunkSize:             100,
		BulkChunksPerSecond:       2,
		MempoolCapacity:           5000,
	}
}

// PaymentWindow returns the payment timeout for a session type.
func (s *Settings) PaymentWindow(system CreatedBySystem) time.Duration {
	switch system {
	case SystemCLI:
		return s.PaymentWindowCLI
	case SystemSPO:
		return s.PaymentWindowSPO
	default:
		return s.PaymentWindowUI
	}
}
