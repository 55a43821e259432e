// Package batch drives the daily jobs: reward distribution for the previous
// day, staking accrual, maturity reminders, and the nightly backup. The loop
// guarantees at-least-once invocation; every write underneath is idempotency
// keyed, so re-runs and retries are safe.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/stridefam/stridefam/internal/model"
	"github.com/stridefam/stridefam/internal/push"
	"github.com/stridefam/stridefam/internal/reward"
	"github.com/stridefam/stridefam/internal/staking"
	"github.com/stridefam/stridefam/internal/store"
	"github.com/stridefam/stridefam/internal/tokenomics"
	"github.com/stridefam/stridefam/internal/websocket"
)

// BackupFunc runs the nightly snapshot. Nil disables backups.
type BackupFunc func(ctx context.Context) error

type Runner struct {
	mu     sync.RWMutex
	cancel context.CancelFunc
	done   chan struct{}

	cfg       tokenomics.Config
	steps     *store.StepStore
	ledger    *store.LedgerStore
	positions *store.StakingStore
	sessions  *store.SessionStore
	staking   *staking.Service
	notifier  *push.Notifier
	hub       *websocket.Hub
	backup    BackupFunc
	logger    *slog.Logger

	interval time.Duration
	lastDay  string
}

func NewRunner(
	cfg tokenomics.Config,
	steps *store.StepStore,
	ledger *store.LedgerStore,
	positions *store.StakingStore,
	sessions *store.SessionStore,
	stakingSvc *staking.Service,
	notifier *push.Notifier,
	hub *websocket.Hub,
	backup BackupFunc,
	logger *slog.Logger,
) *Runner {
	return &Runner{
		cfg:       cfg,
		steps:     steps,
		ledger:    ledger,
		positions: positions,
		sessions:  sessions,
		staking:   stakingSvc,
		notifier:  notifier,
		hub:       hub,
		backup:    backup,
		logger:    logger.With("component", "batch"),
		interval:  time.Minute,
	}
}

// Start begins the scheduler loop.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	r.mu.Unlock()

	go func() {
		defer close(r.done)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.tick(ctx)
			}
		}
	}()
}

// Stop gracefully stops the scheduler.
func (r *Runner) Stop() {
	r.mu.RLock()
	cancel := r.cancel
	done := r.done
	r.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// tick fires the daily jobs once per UTC day, at the first tick past
// midnight. A restart later the same day re-runs them; idempotency keys make
// that harmless.
func (r *Runner) tick(ctx context.Context) {
	now := time.Now().UTC()
	today := now.Format("2006-01-02")

	r.mu.Lock()
	alreadyRan := r.lastDay == today
	r.lastDay = today
	r.mu.Unlock()
	if alreadyRan {
		r.maturityOnly(ctx, now)
		return
	}

	previous := now.AddDate(0, 0, -1).Format("2006-01-02")
	runID := uuid.NewString()

	if err := r.RunRewards(ctx, previous, runID); err != nil && !errors.Is(err, store.ErrDayAlreadyPaid) {
		r.logger.Error("reward run failed", "day", previous, "error", err)
	}
	if err := r.RunAccrual(ctx, today); err != nil {
		r.logger.Error("accrual run failed", "day", today, "error", err)
	}
	r.RunMaturityCheck(ctx, now)

	if n, err := r.sessions.DeleteExpired(); err != nil {
		r.logger.Error("session cleanup failed", "error", err)
	} else if n > 0 {
		r.logger.Info("expired sessions pruned", "count", n)
	}

	if r.backup != nil {
		if err := r.backup(ctx); err != nil {
			r.logger.Error("nightly backup failed", "error", err)
		}
	}
}

func (r *Runner) maturityOnly(ctx context.Context, now time.Time) {
	// Reminders re-check within the day so positions crossing a threshold
	// mid-day still get one.
	r.RunMaturityCheck(ctx, now)
}

// RunRewards distributes day's pool over every user with synced steps.
// Callable directly for manual re-runs; a replay with the same runID is a
// no-op, a different runID against a paid day fails per user with
// ErrDayAlreadyPaid.
func (r *Runner) RunRewards(ctx context.Context, day, runID string) error {
	users, err := r.steps.ListForDay(day)
	if err != nil {
		return fmt.Errorf("list step days: %w", err)
	}
	if len(users) == 0 {
		r.logger.Info("no activity for day", "day", day)
		return nil
	}

	summary := reward.BuildDay(r.cfg, users, day, runID)
	r.logger.Info("reward run computed",
		"day", day, "run_id", runID,
		"users", len(summary.Plans),
		"rate", summary.Rate,
		"total_weighted", summary.TotalWeighted)

	var failed, paid int
	for _, plan := range summary.Plans {
		// Per-entity isolation: one bad user-day never stops the batch.
		err := r.withRetry(ctx, func(ctx context.Context) error {
			return r.ledger.ApplyRewardPlan(plan)
		})
		switch {
		case errors.Is(err, store.ErrDayAlreadyPaid):
			r.logger.Warn("day already paid by another run", "uid", plan.Result.UID, "day", day)
			failed++
		case err != nil:
			r.logger.Error("apply reward plan", "uid", plan.Result.UID, "day", day, "error", err)
			failed++
		default:
			if plan.Result.Status == model.RewardPaid {
				paid++
				r.hub.Broadcast(websocket.NewMessage(websocket.EntityBalance, "updated", plan.Result.UID, nil))
			}
		}
	}

	r.hub.Broadcast(websocket.NewMessage(websocket.EntityRewardRun, "completed", runID, map[string]any{
		"day": day, "paid": paid, "failed": failed,
	}))
	r.logger.Info("reward run finished", "day", day, "run_id", runID, "paid", paid, "failed", failed)
	return nil
}

// RunAccrual applies one day's staking yield to every active position.
func (r *Runner) RunAccrual(ctx context.Context, day string) error {
	positions, err := r.positions.ListActive()
	if err != nil {
		return fmt.Errorf("list active positions: %w", err)
	}

	var failed int
	for i := range positions {
		pos := positions[i]
		err := r.withRetry(ctx, func(ctx context.Context) error {
			return r.staking.AccrueDay(&pos, day)
		})
		if err != nil {
			r.logger.Error("accrue position", "position_id", pos.ID, "day", day, "error", err)
			failed++
		}
	}

	r.logger.Info("accrual run finished", "day", day, "positions", len(positions), "failed", failed)
	return nil
}

// RunMaturityCheck fires at-most-once reminders for positions approaching
// unlock. Side effects only; never fails the batch.
func (r *Runner) RunMaturityCheck(ctx context.Context, now time.Time) {
	positions, err := r.positions.ListActive()
	if err != nil {
		r.logger.Error("maturity check: list positions", "error", err)
		return
	}

	for i := range positions {
		pos := positions[i]
		threshold := staking.MaturityThreshold(&pos, now)
		if threshold == "" {
			continue
		}
		r.notifier.StakeMaturity(ctx, &pos, threshold)
		r.hub.Broadcast(websocket.NewMessage(websocket.EntityStaking, "maturing", pos.ID, map[string]any{
			"threshold": threshold,
		}))
	}
}

func (r *Runner) withRetry(ctx context.Context, fn func(context.Context) error) error {
	backoff := retry.WithMaxRetries(3, retry.NewExponential(100*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		// Precondition failures are final; only transient store errors retry.
		if errors.Is(err, store.ErrDayAlreadyPaid) || errors.Is(err, store.ErrPositionClosed) {
			return err
		}
		return retry.RetryableError(err)
	})
}
