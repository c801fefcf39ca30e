package handlemint

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/core-coin/handlemint/internal/models"
	"github.com/core-coin/handlemint/pkg/validation"
)

// CreateSession checks the handle, reserves a payment address and opens a PENDING
// session. It fails with ErrActiveSessionExists when the handle already has a PENDING
// or PAID session.
func (h *Handlemint) CreateSession(ctx context.Context, req *models.SessionRequest) (*models.ActiveSession, error) {
	handle := validation.NormalizeHandle(req.Handle)
	if err := validation.ValidateHandle(handle); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidRequest, err)
	}
	system := req.CreatedBySystem
	if system == "" {
		system = models.SystemUI
	}
	if !system.Valid() {
		return nil, fmt.Errorf("%w: unknown system %q", models.ErrInvalidRequest, system)
	}

	availability, err := h.availability.CheckAvailability(ctx, handle, system)
	if err != nil {
		return nil, fmt.Errorf("failed to check availability: %w", err)
	}
	if !availability.Available {
		return nil, fmt.Errorf("%w: %s", models.ErrHandleUnavailable, availability.Reason)
	}

	id := uuid.NewString()
	address, err := h.repo.ReservePaymentAddress(ctx, id)
	if err != nil {
		return nil, err
	}

	now := h.now().UnixMilli()
	session := &models.ActiveSession{
		ID:              id,
		Handle:          handle,
		EmailAddress:    req.EmailAddress,
		PaymentAddress:  address,
		Cost:            availability.Cost,
		Status:          models.StatusPending,
		WorkflowStatus:  models.WorkflowPending,
		Start:           now,
		DateAdded:       now,
		CreatedBySystem: system,
	}
	created, err := h.repo.CreateSessionIfAbsent(ctx, session)
	if err != nil || !created {
		if releaseErr := h.repo.ReleasePaymentAddress(ctx, address); releaseErr != nil {
			h.logger.Errorw("Failed to release payment address", "address", address, "error", releaseErr)
		}
		if err != nil {
			return nil, err
		}
		return nil, models.ErrActiveSessionExists
	}

	h.logger.Infow("Session created", "session", id, "handle", handle, "system", system, "cost", session.Cost)
	return session, nil
}

// ImportSessions bulk inserts sessions prepared outside the API, such as a migration
// from another system. Sessions without an id or dates get them assigned.
func (h *Handlemint) ImportSessions(ctx context.Context, sessions []*models.ActiveSession) error {
	settings, err := h.repo.GetSettings(ctx)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}
	now := h.now().UnixMilli()
	for _, session := range sessions {
		if session.ID == "" {
			session.ID = uuid.NewString()
		}
		if session.DateAdded == 0 {
			session.DateAdded = now
		}
		if session.Start == 0 {
			session.Start = session.DateAdded
		}
		if session.Status == "" {
			session.Status = models.StatusPending
		}
		if session.WorkflowStatus == "" {
			session.WorkflowStatus = models.WorkflowPending
		}
		session.Handle = validation.NormalizeHandle(session.Handle)
		if err := validation.ValidateHandle(session.Handle); err != nil {
			return fmt.Errorf("%w: session %s: %v", models.ErrInvalidRequest, session.ID, err)
		}
	}
	h.logger.Infow("Importing sessions", "count", len(sessions))
	return h.repo.BulkCreateSessions(ctx, sessions, settings.BulkChunkSize, settings.BulkChunksPerSecond)
}
