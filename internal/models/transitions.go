package models

import "fmt"

// SessionState is the (status, workflow) pair a session is in.
type SessionState struct {
	Status   Status
	Workflow WorkflowStatus
}

func (s SessionState) String() string {
	return fmt.Sprintf("%s/%s", s.Status, s.Workflow)
}

var (
	StateAwaitingPayment = SessionState{StatusPending, WorkflowPending}
	StatePaid            = SessionState{StatusPaid, WorkflowPending}
	StateProcessing      = SessionState{StatusPaid, WorkflowProcessing}
	StateSubmitted       = SessionState{StatusPaid, WorkflowSubmitted}
	StateConfirmed       = SessionState{StatusPaid, WorkflowConfirmed}
	StateExpired         = SessionState{StatusPaid, WorkflowExpired}
	StateRefundable      = SessionState{StatusRefundable, WorkflowPending}
	StateDLQProcessing   = SessionState{StatusDLQ, WorkflowProcessing}
	StateDLQSubmitted    = SessionState{StatusDLQ, WorkflowSubmitted}
	StateDLQExpired      = SessionState{StatusDLQ, WorkflowExpired}
)

// transitions lists every allowed move. Anything missing is rejected.
// REFUNDABLE, CONFIRMED and all DLQ states are terminal.
var transitions = map[SessionState][]SessionState{
	StateAwaitingPayment: {StateAwaitingPayment, StatePaid, StateRefundable},
	StatePaid:            {StateProcessing, StateRefundable},
	StateProcessing:      {StatePaid, StateSubmitted, StateRefundable, StateDLQProcessing},
	StateSubmitted:       {StateConfirmed, StateExpired, StateDLQSubmitted},
	StateExpired:         {StatePaid, StateDLQExpired},
}

// CanTransition reports whether a session may move from one state to another.
func CanTransition(from, to SessionState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsProtected reports whether leaving the state is reserved to the confirmation poller.
func IsProtected(s SessionState) bool {
	return s == StateSubmitted
}

// ErrInvalidTransition is returned when a write would break the state machine.
type ErrInvalidTransition struct {
	From SessionState
	To   SessionState
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid session transition %s -> %s", e.From, e.To)
}
