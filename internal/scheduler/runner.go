// Package scheduler implements the batch runner that drives subscription
// lifecycle evaluation over the tenant base. It is invoked hourly by the
// lifecycle-runner Lambda and manually through the ops service.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"pawdesk/internal/config"
	"pawdesk/internal/lifecycle"
	"pawdesk/internal/types"
)

// TenantStore combines the read and write tenant operations the runner needs.
type TenantStore interface {
	types.TenantLister
	types.TenantMutator
}

// Stats summarizes one run for job history and logging.
type Stats struct {
	Processed    int
	Transitioned int
	Published    int
	// Skipped counts tenants whose status changed concurrently between the
	// page read and the CAS write. They are picked up by a later run.
	Skipped int
	Failed  int
}

// Runner executes the lifecycle tasks: trial_check walks trial tenants,
// dunning walks past-due tenants. Each batch is evaluated with bounded
// concurrency; per-tenant failures are counted and never abort the run.
type Runner struct {
	tenants   TenantStore
	evaluator *lifecycle.Evaluator
	publisher types.IntentPublisher
	cfg       config.SchedulerConfig
	logger    *slog.Logger
}

// NewRunner creates a Runner. The evaluator window is taken from the
// scheduler configuration.
func NewRunner(tenants TenantStore, publisher types.IntentPublisher, cfg config.SchedulerConfig, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		tenants:   tenants,
		evaluator: lifecycle.NewEvaluator(cfg.TrialReminderWindowDays),
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run dispatches a task by type. Unknown tasks yield validation_invalid_task.
func (r *Runner) Run(ctx context.Context, task types.TaskType, now time.Time) (Stats, error) {
	switch task {
	case types.TaskTrialCheck:
		return r.RunTrialCheck(ctx, now)
	case types.TaskDunning:
		return r.RunDunning(ctx, now)
	default:
		return Stats{}, types.NewAppError(types.ErrCodeValidationInvalidTask,
			fmt.Sprintf("unknown task %q", task), nil)
	}
}

// RunTrialCheck walks all trial tenants: expired trials transition to
// expired, trials inside the reminder window get an expiring-trial reminder
// at most once per UTC day.
func (r *Runner) RunTrialCheck(ctx context.Context, now time.Time) (Stats, error) {
	return r.runBatches(ctx, types.SubStatusTrial, now)
}

// RunDunning walks all past-due tenants and emits a payment reminder for
// each one on every run.
func (r *Runner) RunDunning(ctx context.Context, now time.Time) (Stats, error) {
	return r.runBatches(ctx, types.SubStatusPastDue, now)
}

// runBatches pages over tenants in the given status with keyset pagination
// and evaluates each batch with bounded concurrency.
func (r *Runner) runBatches(ctx context.Context, status types.SubscriptionStatus, now time.Time) (Stats, error) {
	var (
		stats   Stats
		mu      sync.Mutex
		afterID string
	)

	for {
		tenants, err := r.tenants.ListByStatus(ctx, status, afterID, r.cfg.BatchLimit)
		if err != nil {
			return stats, fmt.Errorf("listing %s tenants: %w", status, err)
		}
		if len(tenants) == 0 {
			break
		}

		r.logger.InfoContext(ctx, "processing tenant batch",
			"status", string(status),
			"batch_size", len(tenants),
			"processed_so_far", stats.Processed,
		)

		g, gCtx := errgroup.WithContext(ctx)
		g.SetLimit(r.cfg.Concurrency)
		for i := range tenants {
			tenant := tenants[i]
			g.Go(func() error {
				res := r.processTenant(gCtx, tenant, now)
				mu.Lock()
				stats.Processed++
				stats.Transitioned += res.transitioned
				stats.Published += res.published
				stats.Skipped += res.skipped
				stats.Failed += res.failed
				mu.Unlock()
				// Per-tenant failures are recorded, not propagated; one bad
				// tenant must not cancel the rest of the batch.
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return stats, err
		}

		last := tenants[len(tenants)-1].ID
		if last == afterID {
			r.logger.WarnContext(ctx, "pagination made no progress, stopping",
				"after_id", afterID)
			break
		}
		afterID = last

		if len(tenants) < r.cfg.BatchLimit {
			break
		}
	}

	r.logger.InfoContext(ctx, "lifecycle run complete",
		"status", string(status),
		"processed", stats.Processed,
		"transitioned", stats.Transitioned,
		"published", stats.Published,
		"skipped", stats.Skipped,
		"failed", stats.Failed,
	)

	return stats, nil
}

type tenantResult struct {
	transitioned int
	published    int
	skipped      int
	failed       int
}

// processTenant evaluates one tenant and applies the outcome: CAS status
// write first, then intent publishes, then the reminder watermark. The
// watermark is stamped only after the queue accepted the reminder, so a
// publish failure leads to a retry on the next run instead of a lost
// reminder.
func (r *Runner) processTenant(ctx context.Context, tenant types.Tenant, now time.Time) tenantResult {
	var res tenantResult
	outcome := r.evaluator.Evaluate(tenant, now)

	if outcome.Transition != nil {
		err := r.tenants.TransitionStatus(ctx, tenant.ID, *outcome.Transition)
		switch {
		case err == nil:
			res.transitioned++
		case isConflict(err):
			// Someone else moved the tenant since the page was read. Their
			// view wins; skip everything derived from our stale read.
			res.skipped++
			return res
		default:
			r.logger.ErrorContext(ctx, "tenant status transition failed",
				"tenant_id", tenant.ID, "error", err)
			res.failed++
			return res
		}
	}

	publishedAll := true
	for _, intent := range outcome.Intents {
		if err := r.publisher.Publish(ctx, types.IntentMessage{Intent: intent}); err != nil {
			r.logger.ErrorContext(ctx, "intent publish failed",
				"tenant_id", tenant.ID,
				"template_key", string(intent.TemplateKey),
				"error", err)
			res.failed++
			publishedAll = false
			continue
		}
		res.published++
	}

	if outcome.StampTrialReminder && publishedAll {
		if err := r.tenants.SetTrialReminderSentAt(ctx, tenant.ID, now); err != nil {
			// Worst case the tenant gets a duplicate reminder tomorrow.
			r.logger.ErrorContext(ctx, "failed to stamp trial reminder watermark",
				"tenant_id", tenant.ID, "error", err)
			res.failed++
		}
	}

	return res
}

func isConflict(err error) bool {
	var appErr *types.AppError
	return errors.As(err, &appErr) && appErr.Code == types.ErrCodeConflictStatusChanged
}
