package models

import "errors"

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrJobLocked means another runner holds the job lock.
	ErrJobLocked = errors.New("job is locked by another runner")
	// ErrChainLoadTooHigh means minting is paused until the chain calms down.
	ErrChainLoadTooHigh = errors.New("chain load too high, try later")
	// ErrNoWalletAvailable means every minting wallet is busy.
	ErrNoWalletAvailable = errors.New("no minting wallet available")
	// ErrWalletBalanceTooLow means the locked wallet can't pay for a batch.
	ErrWalletBalanceTooLow = errors.New("minting wallet balance too low")
	// ErrHandleUnavailable means the handle can't be sold.
	ErrHandleUnavailable = errors.New("handle is not available")
	// ErrActiveSessionExists means another session already holds the handle.
	ErrActiveSessionExists = errors.New("an active session already exists for this handle")
	// ErrNoPaymentAddress means the payment address pool is exhausted.
	ErrNoPaymentAddress = errors.New("no payment address available")
	// ErrInvalidRequest means the caller sent something malformed.
	ErrInvalidRequest = errors.New("invalid request")
)

// IsBenign reports whether err is an expected "try later" outcome of a job.
func IsBenign(err error) bool {
	return errors.Is(err, ErrJobLocked) ||
		errors.Is(err, ErrChainLoadTooHigh) ||
		errors.Is(err, ErrNoWalletAvailable) ||
		errors.Is(err, ErrWalletBalanceTooLow)
}
