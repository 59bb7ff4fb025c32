package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/famline/notifications/internal/digest_service/domain"
	"github.com/famline/notifications/internal/digest_service/repository"
)

// PollerConfig tunes the digest schedule poller.
type PollerConfig struct {
	PollInterval time.Duration `mapstructure:"DIGEST_POLL_INTERVAL"`
	BatchSize    int           `mapstructure:"DIGEST_BATCH_SIZE"`
	ClaimLease   time.Duration `mapstructure:"DIGEST_CLAIM_LEASE"`
}

// Poller claims due digest schedules and drives the compiler. The
// claim's lease serializes compiles per schedule across processes.
type Poller struct {
	schedules repository.ScheduleRepository
	compiler  *Compiler
	logger    *slog.Logger
	config    PollerConfig
	nowFn     func() time.Time
}

func NewPoller(schedules repository.ScheduleRepository, compiler *Compiler, logger *slog.Logger, cfg PollerConfig) *Poller {
	if cfg.ClaimLease <= 0 {
		cfg.ClaimLease = 10 * time.Minute
	}
	return &Poller{
		schedules: schedules,
		compiler:  compiler,
		logger:    logger.With("component", "digest_poller"),
		config:    cfg,
		nowFn:     time.Now,
	}
}

// Run polls until the context is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			processed, err := p.PollOnce(ctx)
			if err != nil {
				p.logger.ErrorContext(ctx, "Digest poller critical error, stopping", "error", err)
				return err
			}
			if processed > 0 {
				p.logger.InfoContext(ctx, "Digest poll cycle finished", "processed", processed)
			}
		case <-ctx.Done():
			p.logger.InfoContext(ctx, "Digest poller stopping", "reason", ctx.Err())
			return ctx.Err()
		}
	}
}

// PollOnce claims one batch of due schedules and compiles each.
func (p *Poller) PollOnce(ctx context.Context) (int, error) {
	now := p.nowFn().UTC()
	schedules, err := p.schedules.AcquireDue(ctx, now, p.config.ClaimLease, p.config.BatchSize)
	if err != nil {
		if errors.Is(err, domain.ErrNoDueSchedules) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to acquire due schedules: %w", err)
	}

	for _, schedule := range schedules {
		p.runSchedule(ctx, schedule)
	}
	return len(schedules), nil
}

func (p *Poller) runSchedule(ctx context.Context, schedule *domain.DigestSchedule) {
	log := p.logger.With("schedule_id", schedule.ID, "frequency", schedule.Frequency)
	now := p.nowFn().UTC()

	_, err := p.compiler.CompileForSchedule(ctx, schedule)
	switch {
	case err == nil:
		// Compiled; fall through to recompute the next run.
	case errors.Is(err, domain.ErrNoEligibleItems):
		// Nothing to send this cycle. The schedule still advances, so a
		// quiet week does not pile up stale due schedules.
		emptyCompilesCounter.Inc()
		log.InfoContext(ctx, "Digest compile skipped, no eligible content")
	default:
		// Leave next_scheduled_at at the lease expiry so the compile
		// retries once the lease lapses.
		compileErrorsCounter.Inc()
		log.ErrorContext(ctx, "Digest compile failed, will retry after lease", "error", err)
		return
	}

	next, calcErr := ComputeNextRun(schedule, now)
	if calcErr != nil {
		log.ErrorContext(ctx, "Failed to compute next digest run", "error", calcErr)
		return
	}
	if err := p.schedules.CompleteRun(ctx, schedule.ID, now, next); err != nil {
		log.ErrorContext(ctx, "Failed to record digest run completion", "error", err)
		return
	}
	log.InfoContext(ctx, "Digest run complete", "next_scheduled_at", next)
}
