package models

import "context"

// JobResult is what every cron job reports back to its caller.
type JobResult struct {
	Job       string         `json:"job"`
	Error     bool           `json:"error"`
	Message   string         `json:"message"`
	TxID      string         `json:"tx_id,omitempty"`
	Counts    map[string]int `json:"counts,omitempty"`
	ElapsedMS int64          `json:"elapsed_ms"`
}

// SessionRequest is a request to start a purchase.
type SessionRequest struct {
	Handle          string
	EmailAddress    string
	CreatedBySystem CreatedBySystem
}

// QueueInfo estimates where a paid session is in the minting queue.
type QueueInfo struct {
	SessionID            string         `json:"session_id"`
	Status               Status         `json:"status"`
	WorkflowStatus       WorkflowStatus `json:"workflow_status"`
	Position             int64          `json:"position"`
	LastMintingTimestamp int64          `json:"last_minting_timestamp"`
}

type HandlemintI interface {
	// Start runs the scheduler and block watcher until ctx is done
	Start(ctx context.Context) error

	// CreateSession reserves a payment address and opens a purchase session
	CreateSession(ctx context.Context, req *SessionRequest) (*ActiveSession, error)
	GetSession(ctx context.Context, id string) (*ActiveSession, error)
	FindSessions(ctx context.Context, filter SessionFilter) ([]*ActiveSession, error)
	QueuePosition(ctx context.Context, id string) (*QueueInfo, error)

	// Cron jobs. Each returns a result and an error; benign errors still carry a result.
	ReconcilePayments(ctx context.Context) (*JobResult, error)
	MintPaidSessions(ctx context.Context) (*JobResult, error)
	ConfirmMints(ctx context.Context) (*JobResult, error)
	RefreshState(ctx context.Context) (*JobResult, error)
}

type APIServer interface {
	Start()
	Shutdown() error
}
