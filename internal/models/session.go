package models

// Status is the payment status of a session.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusPaid       Status = "PAID"
	StatusRefundable Status = "REFUNDABLE"
	StatusDLQ        Status = "DLQ"
)

// WorkflowStatus is the minting pipeline sub-state of a session.
type WorkflowStatus string

const (
	WorkflowPending    WorkflowStatus = "PENDING"
	WorkflowProcessing WorkflowStatus = "PROCESSING"
	WorkflowSubmitted  WorkflowStatus = "SUBMITTED"
	WorkflowConfirmed  WorkflowStatus = "CONFIRMED"
	WorkflowExpired    WorkflowStatus = "EXPIRED"
)

// CreatedBySystem is the surface a session was started from.
type CreatedBySystem string

const (
	SystemUI  CreatedBySystem = "UI"
	SystemCLI CreatedBySystem = "CLI"
	SystemSPO CreatedBySystem = "SPO"
)

// Valid reports whether s is one of the known systems.
func (s CreatedBySystem) Valid() bool {
	switch s {
	case SystemUI, SystemCLI, SystemSPO:
		return true
	}
	return false
}

// ActiveSession is one purchase attempt for one handle.
type ActiveSession struct {
	// ID is assigned on creation (uuid).
	ID string `json:"id" gorm:"column:id;primaryKey;size:36"`
	// Handle is the name being purchased.
	Handle string `json:"handle" gorm:"column:handle;size:64;index;not null"`
	// EmailAddress is where the purchaser is contacted.
	EmailAddress string `json:"email_address" gorm:"column:email_address;index"`
	// PaymentAddress is the address reserved for this session's payment.
	PaymentAddress string `json:"payment_address" gorm:"column:payment_address;size:64;index"`
	// Cost is the handle price in minor currency units.
	Cost int64 `json:"cost" gorm:"column:cost;not null"`
	// Status is the payment status.
	Status Status `json:"status" gorm:"column:status;size:16;index:idx_sessions_status_workflow;not null"`
	// WorkflowStatus is the minting pipeline sub-state.
	WorkflowStatus WorkflowStatus `json:"workflow_status" gorm:"column:workflow_status;size:16;index:idx_sessions_status_workflow;not null"`
	// TxID is the minting transaction the session was submitted in.
	TxID string `json:"tx_id" gorm:"column:tx_id;size:80;index"`
	// WalletID is the minting wallet that submitted TxID.
	WalletID string `json:"wallet_id" gorm:"column:wallet_id;size:64"`
	// ReturnAddress is where refunds are sent.
	ReturnAddress string `json:"return_address" gorm:"column:return_address;size:64"`
	// RefundAmount is the amount owed back to the purchaser, in minor units.
	RefundAmount int64 `json:"refund_amount" gorm:"column:refund_amount"`
	// Attempts counts retries of the current stage.
	Attempts int `json:"attempts" gorm:"column:attempts"`
	// Start is when the payment window opened (unix millis).
	Start int64 `json:"start" gorm:"column:start"`
	// DateAdded is the creation time (unix millis), used for oldest-first ordering.
	DateAdded int64 `json:"date_added" gorm:"column:date_added;index"`
	// UpdatedAt is maintained by the store (unix millis).
	UpdatedAt int64 `json:"updated_at" gorm:"column:updated_at;autoUpdateTime:milli"`
	// CreatedBySystem is the surface the purchase came from.
	CreatedBySystem CreatedBySystem `json:"created_by_system" gorm:"column:created_by_system;size:8"`
}

func (ActiveSession) TableName() string {
	return "active_sessions"
}

// State returns the (status, workflow) pair of the session.
func (s *ActiveSession) State() SessionState {
	return SessionState{Status: s.Status, Workflow: s.WorkflowStatus}
}

// SessionFilter selects sessions by one of the indexed lookup keys.
type SessionFilter struct {
	Handle         string
	PaymentAddress string
	Email          string
	TxID           string
}
