package handlemint

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/core-coin/handlemint/internal/config"
	"github.com/core-coin/handlemint/internal/metrics"
	"github.com/core-coin/handlemint/internal/models"
	"github.com/core-coin/handlemint/pkg/logger"
)

// Job names reported in results, logs and metrics.
const (
	JobReconcile    = "reconcile"
	JobMint         = "mint"
	JobConfirm      = "confirm"
	JobRefreshState = "refresh-state"
)

// Runner is a long-running background component, such as the block watcher.
type Runner interface {
	Run(ctx context.Context) error
}

// Dependencies are the collaborators of the service. Backup, Watcher and Metrics are optional.
type Dependencies struct {
	Repo         models.Repository
	Chain        models.BlockchainService
	Minter       models.Minter
	Verifier     models.StakePoolVerifier
	Availability models.AvailabilityChecker
	Backup       models.ArtifactBackup
	Watcher      Runner
	Metrics      *metrics.Metrics
}

// Handlemint owns the session lifecycle: it opens purchase sessions and runs the
// reconcile, mint, confirm and state jobs that move them along.
type Handlemint struct {
	logger *logger.Logger
	config *config.Config

	repo         models.Repository
	chain        models.BlockchainService
	minter       models.Minter
	verifier     models.StakePoolVerifier
	availability models.AvailabilityChecker
	backup       models.ArtifactBackup
	watcher      Runner
	metrics      *metrics.Metrics

	now   func() time.Time
	tasks sync.WaitGroup
}

func NewHandlemint(deps Dependencies, logger *logger.Logger, config *config.Config) *Handlemint {
	return &Handlemint{
		logger:       logger,
		config:       config,
		repo:         deps.Repo,
		chain:        deps.Chain,
		minter:       deps.Minter,
		verifier:     deps.Verifier,
		availability: deps.Availability,
		backup:       deps.Backup,
		watcher:      deps.Watcher,
		metrics:      deps.Metrics,
		now:          time.Now,
	}
}

// Wait blocks until background tasks started by jobs, such as backups, are done.
func (h *Handlemint) Wait() {
	h.tasks.Wait()
}

func (h *Handlemint) GetSession(ctx context.Context, id string) (*models.ActiveSession, error) {
	return h.repo.GetSession(ctx, id)
}

func (h *Handlemint) FindSessions(ctx context.Context, filter models.SessionFilter) ([]*models.ActiveSession, error) {
	return h.repo.FindSessions(ctx, filter)
}

// QueuePosition estimates where a paid session is in the mint queue. Sessions that
// are not waiting to be minted have position 0.
func (h *Handlemint) QueuePosition(ctx context.Context, id string) (*models.QueueInfo, error) {
	session, err := h.repo.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	state, err := h.repo.GetState(ctx)
	if err != nil {
		return nil, err
	}
	info := &models.QueueInfo{
		SessionID:            session.ID,
		Status:               session.Status,
		WorkflowStatus:       session.WorkflowStatus,
		LastMintingTimestamp: state.LastMintingTimestamp,
	}
	if session.State() == models.StatePaid {
		ahead, err := h.repo.CountPaidAhead(ctx, session.DateAdded)
		if err != nil {
			return nil, err
		}
		info.Position = ahead + 1
	}
	return info, nil
}

type jobFunc func(ctx context.Context, settings *models.Settings, result *models.JobResult) error

// runJob takes the job lock, runs fn with panic recovery and reports the outcome.
// Benign errors still come with a result.
func (h *Handlemint) runJob(ctx context.Context, job, lockName string, fn jobFunc) (*models.JobResult, error) {
	start := h.now()
	result := &models.JobResult{Job: job, Counts: map[string]int{}}

	err := h.withLock(ctx, job, lockName, fn, result)

	result.ElapsedMS = h.now().Sub(start).Milliseconds()
	outcome := "ok"
	switch {
	case err == nil:
		if result.Message == "" {
			result.Message = "ok"
		}
		h.logger.Infow("Job finished", "job", job, "counts", result.Counts, "elapsed_ms", result.ElapsedMS)
	case models.IsBenign(err):
		outcome = "benign"
		result.Error = true
		result.Message = err.Error()
		h.logger.Infow("Job skipped", "job", job, "reason", err.Error())
	default:
		outcome = "error"
		result.Error = true
		result.Message = err.Error()
		h.logger.Errorw("Job failed", "job", job, "error", err, "counts", result.Counts)
	}
	h.metrics.ObserveJob(job, outcome, time.Duration(result.ElapsedMS)*time.Millisecond)
	return result, err
}

func (h *Handlemint) withLock(ctx context.Context, job, lockName string, fn jobFunc, result *models.JobResult) error {
	settings, err := h.repo.GetSettings(ctx)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}
	acquired, err := h.repo.AcquireLock(ctx, lockName, h.config.InstanceID, settings.CronLockLease.Milliseconds())
	if err != nil {
		return err
	}
	if !acquired {
		return models.ErrJobLocked
	}
	defer func() {
		if err := h.repo.ReleaseLock(context.WithoutCancel(ctx), lockName, h.config.InstanceID); err != nil {
			h.logger.Errorw("Failed to release job lock", "job", job, "error", err)
		}
	}()
	return h.safeCall(func() error { return fn(ctx, settings, result) }, job)
}

// safeCall runs a function with panic recovery and turns a panic into an error
func (h *Handlemint) safeCall(fn func() error, context string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Errorw("Function panicked",
				"context", context,
				"panic", r,
				"stack", string(debug.Stack()))
			err = fmt.Errorf("%s panicked: %v", context, r)
		}
	}()
	return fn()
}

// background runs fn after the current job returns, detached from its cancellation.
func (h *Handlemint) background(ctx context.Context, name string, fn func(ctx context.Context) error) {
	ctx = context.WithoutCancel(ctx)
	h.tasks.Add(1)
	go func() {
		defer h.tasks.Done()
		err := h.safeCall(func() error { return fn(ctx) }, name)
		if err != nil && !errors.Is(err, context.Canceled) {
			h.logger.Warnw("Background task failed", "task", name, "error", err)
		}
	}()
}
