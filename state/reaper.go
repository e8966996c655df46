package state

import (
	"context"
	"fmt"
	"time"

	"github.com/CurvatureX/trigger-engine/common/logger"
	"github.com/CurvatureX/trigger-engine/common/models"
	"github.com/CurvatureX/trigger-engine/repository"
)

// Reaper periodically scans for executions that have stopped heartbeating
// and pauses that have exceeded their timeout, transitioning both out of
// their stuck state. Every transition goes through an affected-rows check
// so a reaper tick racing another replica's tick is a safe no-op.
type Reaper struct {
	repo          repository.ExecutionRepository
	manager       *Manager
	log           *logger.Logger
	checkInterval time.Duration
	staleAfter    time.Duration
}

// NewReaper creates a Reaper. checkInterval controls how often it scans;
// staleAfter is how long a RUNNING execution may go without a heartbeat
// before it's considered hung.
func NewReaper(repo repository.ExecutionRepository, manager *Manager, checkInterval, staleAfter time.Duration, log *logger.Logger) *Reaper {
	return &Reaper{
		repo:          repo,
		manager:       manager,
		log:           log,
		checkInterval: checkInterval,
		staleAfter:    staleAfter,
	}
}

// Start runs the scan loop until ctx is cancelled.
func (r *Reaper) Start(ctx context.Context) error {
	r.log.Info("reaper starting", "check_interval", r.checkInterval, "stale_after", r.staleAfter)

	ticker := time.NewTicker(r.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("reaper shutting down")
			return ctx.Err()
		case <-ticker.C:
			if err := r.sweep(ctx); err != nil {
				r.log.Error("reaper sweep failed", "error", err)
			}
		}
	}
}

func (r *Reaper) sweep(ctx context.Context) error {
	if err := r.reapHangingExecutions(ctx); err != nil {
		return fmt.Errorf("reap hanging executions: %w", err)
	}
	if err := r.reapExpiredPauses(ctx); err != nil {
		return fmt.Errorf("reap expired pauses: %w", err)
	}
	return nil
}

func (r *Reaper) reapHangingExecutions(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-r.staleAfter)
	hanging, err := r.repo.ListRunningOlderThan(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("list hanging executions: %w", err)
	}

	var reaped int
	for _, exec := range hanging {
		reason := fmt.Sprintf("timeout: no heartbeat for %s", r.staleAfter)
		if err := r.repo.UpdateStatus(ctx, exec.ExecutionID, models.ExecutionFailed, reason); err != nil {
			if err == repository.ErrNotFound {
				continue
			}
			r.log.Error("failed to fail hanging execution", "execution_id", exec.ExecutionID, "error", err)
			continue
		}
		r.log.Warn("reaped hanging execution", "execution_id", exec.ExecutionID, "last_heartbeat", exec.LastHeartbeat)
		reaped++
	}
	if reaped > 0 {
		r.log.Info("reaped hanging executions", "count", reaped)
	}
	return nil
}

// reapExpiredPauses resolves pauses past their timeout. Per the
// resume_conditions' "timeout_action" (default "fail"), the execution is
// either resumed with the default data, cancelled, or failed.
func (r *Reaper) reapExpiredPauses(ctx context.Context) error {
	expired, err := r.repo.ListExpiredPauses(ctx, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("list expired pauses: %w", err)
	}

	var reaped int
	for _, pause := range expired {
		if err := r.handleExpiredPause(ctx, pause); err != nil {
			r.log.Error("failed to handle expired pause", "pause_id", pause.PauseID, "error", err)
			continue
		}
		reaped++
	}
	if reaped > 0 {
		r.log.Info("reaped expired pauses", "count", reaped)
	}
	return nil
}

func (r *Reaper) handleExpiredPause(ctx context.Context, pause *models.PauseRecord) error {
	action, _ := pause.ResumeConditions["timeout_action"].(string)

	switch action {
	case "resume":
		defaultData, _ := pause.ResumeConditions["timeout_default_data"].(map[string]interface{})
		if _, err := r.manager.ResumeExecution(ctx, pause.ExecutionID, ResumeTimeoutReached, defaultData); err != nil {
			return fmt.Errorf("resume on timeout: %w", err)
		}
	case "cancel":
		if err := r.repo.ResolvePause(ctx, pause.PauseID); err != nil {
			return fmt.Errorf("resolve pause: %w", err)
		}
		if err := r.manager.CancelExecution(ctx, pause.ExecutionID); err != nil {
			return fmt.Errorf("cancel on timeout: %w", err)
		}
	default:
		if err := r.repo.ResolvePause(ctx, pause.PauseID); err != nil {
			return fmt.Errorf("resolve pause: %w", err)
		}
		if err := r.manager.FailExecution(ctx, pause.ExecutionID, "hil pause timed out"); err != nil {
			return fmt.Errorf("fail on timeout: %w", err)
		}
	}

	r.log.Warn("reaped expired pause", "pause_id", pause.PauseID, "execution_id", pause.ExecutionID, "action", action)
	return nil
}
