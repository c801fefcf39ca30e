package repository

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/core-coin/handlemint/internal/models"
)

// activeStatuses are the statuses that hold a claim on a handle.
var activeStatuses = []models.Status{models.StatusPending, models.StatusPaid}

// sessionUpdateColumns are the columns a generic session update may write.
var sessionUpdateColumns = []string{
	"status", "workflow_status", "tx_id", "wallet_id",
	"return_address", "refund_amount", "attempts", "updated_at",
}

// CreateSessionIfAbsent inserts the session unless another PENDING or PAID session holds
// the same handle. The check and the insert happen in one transaction.
func (db *DB) CreateSessionIfAbsent(ctx context.Context, session *models.ActiveSession) (bool, error) {
	created := false
	err := db.transaction(ctx, true, func(tx *gorm.DB) error {
		created = false
		var count int64
		if err := tx.Model(&models.ActiveSession{}).
			Where("handle = ? AND status IN ?", session.Handle, activeStatuses).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}
		if err := tx.Create(session).Error; err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		if isConflict(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to create session: %w", err)
	}
	return created, nil
}

// BulkCreateSessions inserts sessions in chunks, pacing chunks to protect the store.
func (db *DB) BulkCreateSessions(ctx context.Context, sessions []*models.ActiveSession, chunkSize int, chunksPerSecond float64) error {
	if chunkSize <= 0 {
		chunkSize = 100
	}
	limit := rate.Inf
	if chunksPerSecond > 0 {
		limit = rate.Limit(chunksPerSecond)
	}
	limiter := rate.NewLimiter(limit, 1)

	for start := 0; start < len(sessions); start += chunkSize {
		end := start + chunkSize
		if end > len(sessions) {
			end = len(sessions)
		}
		if err := limiter.Wait(ctx); err != nil {
			return fmt.Errorf("bulk create interrupted at %d: %w", start, err)
		}
		chunk := sessions[start:end]
		if err := db.Conn.WithContext(ctx).Create(chunk).Error; err != nil {
			return fmt.Errorf("failed to bulk create sessions %d-%d: %w", start, end, err)
		}
		db.logger.Debugw("Inserted session chunk", "from", start, "to", end)
	}
	return nil
}

func (db *DB) GetSession(ctx context.Context, id string) (*models.ActiveSession, error) {
	var session models.ActiveSession
	if err := db.Conn.WithContext(ctx).Where("id = ?", id).First(&session).Error; err != nil {
		return nil, fmt.Errorf("failed to get session: %w", notFound(err))
	}
	return &session, nil
}

// FindSessionsByStatusAndWorkflow returns the oldest sessions in the given state first.
// A limit <= 0 returns every match.
func (db *DB) FindSessionsByStatusAndWorkflow(ctx context.Context, status models.Status, workflow models.WorkflowStatus, limit int) ([]*models.ActiveSession, error) {
	var sessions []*models.ActiveSession
	query := db.Conn.WithContext(ctx).
		Where("status = ? AND workflow_status = ?", status, workflow).
		Order("date_added ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("failed to find sessions by status: %w", err)
	}
	return sessions, nil
}

// FindSessions looks sessions up by handle, payment address, email or transaction id.
func (db *DB) FindSessions(ctx context.Context, filter models.SessionFilter) ([]*models.ActiveSession, error) {
	query := db.Conn.WithContext(ctx).Model(&models.ActiveSession{})
	empty := true
	if filter.Handle != "" {
		query = query.Where("handle = ?", filter.Handle)
		empty = false
	}
	if filter.PaymentAddress != "" {
		query = query.Where("payment_address = ?", filter.PaymentAddress)
		empty = false
	}
	if filter.Email != "" {
		query = query.Where("email_address = ?", filter.Email)
		empty = false
	}
	if filter.TxID != "" {
		query = query.Where("tx_id = ?", filter.TxID)
		empty = false
	}
	if empty {
		return nil, errors.New("session filter is empty")
	}

	var sessions []*models.ActiveSession
	if err := query.Order("date_added ASC").Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("failed to find sessions: %w", err)
	}
	return sessions, nil
}

// UpdateSessions writes each session in its own transaction. A write is skipped when the
// stored session is in the protected SUBMITTED state or when the move is not in the
// transition table. It returns how many sessions were written.
func (db *DB) UpdateSessions(ctx context.Context, sessions []*models.ActiveSession) (int, error) {
	updated := 0
	var errs []error
	for _, session := range sessions {
		ok, err := db.updateSession(ctx, session)
		if err != nil {
			errs = append(errs, fmt.Errorf("session %s: %w", session.ID, err))
			continue
		}
		if ok {
			updated++
		}
	}
	return updated, errors.Join(errs...)
}

func (db *DB) updateSession(ctx context.Context, session *models.ActiveSession) (bool, error) {
	written := false
	err := db.transaction(ctx, false, func(tx *gorm.DB) error {
		var current models.ActiveSession
		if err := tx.Clauses(forUpdate()).Where("id = ?", session.ID).First(&current).Error; err != nil {
			return notFound(err)
		}
		from, to := current.State(), session.State()
		if models.IsProtected(from) {
			db.logger.Warnw("Skipping update of submitted session", "session", session.ID, "to", to.String())
			return nil
		}
		if from != to && !models.CanTransition(from, to) {
			db.logger.Warnw("Skipping invalid session transition", "session", session.ID, "from", from.String(), "to", to.String())
			return nil
		}
		if err := tx.Model(session).Select(sessionUpdateColumns).Updates(session).Error; err != nil {
			return err
		}
		written = true
		return nil
	})
	return written, err
}

// MarkSessionProcessing flips a PAID session from PENDING to PROCESSING workflow. It
// returns false when the session is no longer PAID+PENDING, e.g. another runner took it.
func (db *DB) MarkSessionProcessing(ctx context.Context, id string) (bool, error) {
	res := db.Conn.WithContext(ctx).Model(&models.ActiveSession{}).
		Where("id = ? AND status = ? AND workflow_status = ?", id, models.StatusPaid, models.WorkflowPending).
		Update("workflow_status", models.WorkflowProcessing)
	if res.Error != nil {
		return false, fmt.Errorf("failed to mark session processing: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// MarkSessionsSubmitted records the mint transaction on every PROCESSING session in ids.
func (db *DB) MarkSessionsSubmitted(ctx context.Context, ids []string, txID, walletID string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := db.Conn.WithContext(ctx).Model(&models.ActiveSession{}).
		Where("id IN ? AND status = ? AND workflow_status = ?", ids, models.StatusPaid, models.WorkflowProcessing).
		Updates(map[string]interface{}{
			"workflow_status": models.WorkflowSubmitted,
			"tx_id":           txID,
			"wallet_id":       walletID,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to mark sessions submitted: %w", res.Error)
	}
	return int(res.RowsAffected), nil
}

// RevertSessionsToPending moves PROCESSING sessions back to PENDING workflow and counts
// the attempt. Sessions reaching maxAttempts are dead-lettered instead and returned.
func (db *DB) RevertSessionsToPending(ctx context.Context, ids []string, maxAttempts int) ([]*models.ActiveSession, error) {
	var deadLettered []*models.ActiveSession
	var errs []error
	for _, id := range ids {
		var dead *models.ActiveSession
		err := db.transaction(ctx, false, func(tx *gorm.DB) error {
			var session models.ActiveSession
			if err := tx.Clauses(forUpdate()).Where("id = ?", id).First(&session).Error; err != nil {
				return notFound(err)
			}
			if session.State() != models.StateProcessing {
				return nil
			}
			session.Attempts++
			next := models.StatePaid
			if maxAttempts > 0 && session.Attempts >= maxAttempts {
				next = models.StateDLQProcessing
			}
			session.Status, session.WorkflowStatus = next.Status, next.Workflow
			if err := tx.Model(&session).Select("status", "workflow_status", "attempts", "updated_at").Updates(&session).Error; err != nil {
				return err
			}
			if next == models.StateDLQProcessing {
				dead = &session
			}
			return nil
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("session %s: %w", id, err))
			continue
		}
		if dead != nil {
			deadLettered = append(deadLettered, dead)
		}
	}
	return deadLettered, errors.Join(errs...)
}

// FindStaleProcessingSessions returns PROCESSING sessions without a transaction that
// have not been touched since olderThan (unix millis).
func (db *DB) FindStaleProcessingSessions(ctx context.Context, olderThan int64) ([]*models.ActiveSession, error) {
	var sessions []*models.ActiveSession
	if err := db.Conn.WithContext(ctx).
		Where("status = ? AND workflow_status = ? AND tx_id = ? AND updated_at < ?",
			models.StatusPaid, models.WorkflowProcessing, "", olderThan).
		Order("date_added ASC").
		Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("failed to find stale processing sessions: %w", err)
	}
	return sessions, nil
}

// ResolveSubmitted moves every PAID+SUBMITTED session of txID to the given state. Only
// moves the transition table allows out of SUBMITTED are accepted.
func (db *DB) ResolveSubmitted(ctx context.Context, txID string, to models.SessionState) (int, error) {
	if !models.CanTransition(models.StateSubmitted, to) {
		return 0, &models.ErrInvalidTransition{From: models.StateSubmitted, To: to}
	}
	res := db.Conn.WithContext(ctx).Model(&models.ActiveSession{}).
		Where("tx_id = ? AND status = ? AND workflow_status = ?", txID, models.StatusPaid, models.WorkflowSubmitted).
		Updates(map[string]interface{}{
			"status":          to.Status,
			"workflow_status": to.Workflow,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to resolve submitted sessions: %w", res.Error)
	}
	return int(res.RowsAffected), nil
}

// RequeueExpiredSessions sends EXPIRED sessions back to the mint queue. Sessions that
// reach maxAttempts are dead-lettered. Both lists are returned.
func (db *DB) RequeueExpiredSessions(ctx context.Context, maxAttempts int) ([]*models.ActiveSession, []*models.ActiveSession, error) {
	expired, err := db.FindSessionsByStatusAndWorkflow(ctx, models.StatusPaid, models.WorkflowExpired, 0)
	if err != nil {
		return nil, nil, err
	}

	var requeued, deadLettered []*models.ActiveSession
	var errs []error
	for _, session := range expired {
		session.Attempts++
		next := models.StatePaid
		if maxAttempts > 0 && session.Attempts >= maxAttempts {
			next = models.StateDLQExpired
		}
		res := db.Conn.WithContext(ctx).Model(&models.ActiveSession{}).
			Where("id = ? AND status = ? AND workflow_status = ?", session.ID, models.StatusPaid, models.WorkflowExpired).
			Updates(map[string]interface{}{
				"status":          next.Status,
				"workflow_status": next.Workflow,
				"attempts":        session.Attempts,
				"tx_id":           "",
				"wallet_id":       "",
			})
		if res.Error != nil {
			errs = append(errs, fmt.Errorf("session %s: %w", session.ID, res.Error))
			continue
		}
		if res.RowsAffected == 0 {
			continue
		}
		session.Status, session.WorkflowStatus = next.Status, next.Workflow
		if next == models.StateDLQExpired {
			deadLettered = append(deadLettered, session)
		} else {
			requeued = append(requeued, session)
		}
	}
	return requeued, deadLettered, errors.Join(errs...)
}

// FindSubmittedBatches groups PAID+SUBMITTED sessions by transaction.
func (db *DB) FindSubmittedBatches(ctx context.Context) ([]*models.SubmittedBatch, error) {
	var batches []*models.SubmittedBatch
	if err := db.Conn.WithContext(ctx).Model(&models.ActiveSession{}).
		Select("tx_id, MIN(updated_at) AS submitted_at, COUNT(*) AS sessions").
		Where("status = ? AND workflow_status = ? AND tx_id <> ?", models.StatusPaid, models.WorkflowSubmitted, "").
		Group("tx_id").
		Order("submitted_at ASC").
		Scan(&batches).Error; err != nil {
		return nil, fmt.Errorf("failed to find submitted batches: %w", err)
	}
	return batches, nil
}

func (db *DB) CountSessions(ctx context.Context, state models.SessionState) (int64, error) {
	var count int64
	if err := db.Conn.WithContext(ctx).Model(&models.ActiveSession{}).
		Where("status = ? AND workflow_status = ?", state.Status, state.Workflow).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return count, nil
}

// CountPaidAhead counts PAID sessions waiting to be minted that were added before dateAdded.
func (db *DB) CountPaidAhead(ctx context.Context, dateAdded int64) (int64, error) {
	var count int64
	if err := db.Conn.WithContext(ctx).Model(&models.ActiveSession{}).
		Where("status = ? AND workflow_status = ? AND date_added < ?", models.StatusPaid, models.WorkflowPending, dateAdded).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count paid sessions: %w", err)
	}
	return count, nil
}
