package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/interviewpilot/internal/interview"
	"github.com/spigell/interviewpilot/internal/report"
)

// NotCompletedError is returned by Report for sessions that are not completed.
// It carries the progress view and matches interview.ErrInvalidState.
type NotCompletedError struct {
	Progress report.Progress
}

func (e *NotCompletedError) Error() string {
	return fmt.Sprintf("session %s is %s, report not available", e.Progress.SessionID, e.Progress.Status)
}

func (e *NotCompletedError) Unwrap() error { return interview.ErrInvalidState }

// Report returns the final report of a completed session.
func (e *Engine) Report(ctx context.Context, userID int64, sessionID string) (*report.Report, error) {
	r, err := e.buildReport(ctx, userID, sessionID)
	return r, e.fail("report", err)
}

func (e *Engine) buildReport(ctx context.Context, userID int64, sessionID string) (*report.Report, error) {
	sess, err := e.owned(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status != interview.StatusCompleted {
		return nil, &NotCompletedError{Progress: report.BuildProgress(sess)}
	}
	return report.Build(sess)
}

// Progress returns the partial view of a session in any status.
func (e *Engine) Progress(ctx context.Context, userID int64, sessionID string) (*report.Progress, error) {
	sess, err := e.owned(ctx, userID, sessionID)
	if err != nil {
		return nil, e.fail("progress", err)
	}
	p := report.BuildProgress(sess)
	return &p, nil
}

// List returns the caller's sessions, newest first.
func (e *Engine) List(ctx context.Context, userID int64) ([]interview.Summary, error) {
	list, err := e.store.ListForUser(ctx, userID)
	return list, e.fail("list", err)
}

// ExpireStale cancels active sessions older than the configured maximum
// duration and returns how many were cancelled. Sessions that finish while
// the sweep runs are skipped.
func (e *Engine) ExpireStale(ctx context.Context) (int, error) {
	if e.cfg.MaxDuration <= 0 {
		return 0, nil
	}

	cutoff := e.clock().Add(-e.cfg.MaxDuration)
	ids, err := e.store.ListStale(ctx, cutoff)
	if err != nil {
		return 0, e.fail("expire", err)
	}

	expired := 0
	for _, id := range ids {
		changed, err := e.cancel(ctx, id)
		switch {
		case err == nil && changed:
			expired++
			e.metrics.SessionCancelled(reasonExpired)
		case err == nil:
		case interview.CodeOf(err) == interview.CodeInvalidState:
			// completed between listing and cancelling
		case ctx.Err() != nil:
			return expired, ctx.Err()
		default:
			e.logger.Warn("expire session", zap.String("session_id", id), zap.Error(err))
		}
	}

	if expired > 0 {
		e.logger.Info("expired stale sessions",
			zap.Int("count", expired),
			zap.Duration("max_duration", e.cfg.MaxDuration),
			zap.Time("cutoff", cutoff.Truncate(time.Second)),
		)
	}
	return expired, nil
}
