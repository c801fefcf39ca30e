package handlemint

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/core-coin/handlemint/pkg/logger"
)

// cronLogger adapts the service logger to cron.Logger.
type cronLogger struct {
	logger *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}

// Start runs the job scheduler, when enabled, and the block watcher until ctx is done.
func (h *Handlemint) Start(ctx context.Context) error {
	var scheduler *cron.Cron
	if h.config.SchedulerEnabled {
		var err error
		scheduler, err = h.newScheduler(ctx)
		if err != nil {
			return err
		}
		scheduler.Start()
		h.logger.Info("Job scheduler started")
	}

	watcherDone := make(chan struct{})
	if h.watcher != nil {
		go func() {
			defer close(watcherDone)
			if err := h.watcher.Run(ctx); err != nil && ctx.Err() == nil {
				h.logger.Errorw("Block watcher stopped", "error", err)
			}
		}()
	} else {
		close(watcherDone)
	}

	<-ctx.Done()
	if scheduler != nil {
		<-scheduler.Stop().Done()
	}
	<-watcherDone
	h.Wait()
	h.logger.Info("Handlemint stopped")
	return nil
}

func (h *Handlemint) newScheduler(ctx context.Context) (*cron.Cron, error) {
	log := cronLogger{logger: h.logger}
	scheduler := cron.New(cron.WithLogger(log), cron.WithChain(cron.Recover(log), cron.SkipIfStillRunning(log)))

	jobs := []struct {
		spec string
		name string
		run  func(context.Context) error
	}{
		{h.config.CronReconcile, JobReconcile, func(ctx context.Context) error { _, err := h.ReconcilePayments(ctx); return err }},
		{h.config.CronMint, JobMint, func(ctx context.Context) error { _, err := h.MintPaidSessions(ctx); return err }},
		{h.config.CronConfirm, JobConfirm, func(ctx context.Context) error { _, err := h.ConfirmMints(ctx); return err }},
		{h.config.CronState, JobRefreshState, func(ctx context.Context) error { _, err := h.RefreshState(ctx); return err }},
	}
	for _, job := range jobs {
		if job.spec == "" {
			continue
		}
		run := job.run
		if _, err := scheduler.AddFunc(job.spec, func() { _ = run(ctx) }); err != nil {
			return nil, fmt.Errorf("invalid schedule %q for job %s: %w", job.spec, job.name, err)
		}
	}
	return scheduler, nil
}
