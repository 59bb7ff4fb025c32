package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/famline/notifications/internal/notification_service/adapters/channel"
	"github.com/famline/notifications/internal/notification_service/breaker"
	"github.com/famline/notifications/internal/notification_service/domain"
	"github.com/famline/notifications/internal/notification_service/repository"
)

// WorkerConfig holds configuration for a delivery worker loop.
type WorkerConfig struct {
	PollInterval        time.Duration `mapstructure:"WORKER_POLL_INTERVAL"`
	BatchSize           int           `mapstructure:"WORKER_BATCH_SIZE"`
	SendTimeout         time.Duration `mapstructure:"SEND_TIMEOUT"`
	BreakerRequeueDelay time.Duration `mapstructure:"BREAKER_REQUEUE_DELAY"`
}

// DeliveryWorker claims due notification jobs and drives them through
// the circuit breaker, channel senders, and status bookkeeping. Several
// workers may run against the same store; the claim is atomic.
type DeliveryWorker struct {
	jobs    repository.JobRepository
	senders *channel.Registry
	breaker *breaker.Registry
	backoff domain.BackoffPolicy
	logger  *slog.Logger
	config  WorkerConfig
	nowFn   func() time.Time
}

func NewDeliveryWorker(
	jobs repository.JobRepository,
	senders *channel.Registry,
	br *breaker.Registry,
	backoff domain.BackoffPolicy,
	logger *slog.Logger,
	cfg WorkerConfig,
) *DeliveryWorker {
	return &DeliveryWorker{
		jobs:    jobs,
		senders: senders,
		breaker: br,
		backoff: backoff,
		logger:  logger.With("component", "delivery_worker"),
		config:  cfg,
		nowFn:   time.Now,
	}
}

// Run polls until the context is cancelled. A store error is critical:
// claiming halts (fail closed) and the error propagates so the process
// reports unhealthy, instead of risking double sends on a flaky store.
func (w *DeliveryWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			processed, err := w.PollAndProcess(ctx)
			if err != nil {
				w.logger.ErrorContext(ctx, "Delivery worker critical error, stopping", "error", err)
				return err
			}
			if processed > 0 {
				w.logger.InfoContext(ctx, "Delivery poll cycle finished", "processed", processed)
			}
		case <-ctx.Done():
			w.logger.InfoContext(ctx, "Delivery worker stopping", "reason", ctx.Err())
			return ctx.Err()
		}
	}
}

// PollAndProcess claims one batch of due jobs and processes each.
// Returns the number of jobs handled in this cycle.
func (w *DeliveryWorker) PollAndProcess(ctx context.Context) (int, error) {
	jobs, err := w.jobs.AcquireDue(ctx, w.nowFn().UTC(), w.config.BatchSize)
	if err != nil {
		if errors.Is(err, domain.ErrNoDueJobs) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to acquire due jobs: %w", err)
	}

	for _, job := range jobs {
		w.processJob(ctx, job)
	}
	return len(jobs), nil
}

func (w *DeliveryWorker) processJob(ctx context.Context, job *domain.NotificationJob) {
	channelName := string(job.DeliveryMethod)
	log := w.logger.With("job_id", job.ID, "channel", channelName, "retry_count", job.RetryCount)

	// Local preconditions come before the breaker gate: a half-open
	// circuit hands out a single probe slot per Allow, and a job that
	// fails without reaching the provider would consume it with no
	// outcome report to return it.
	sender, err := w.senders.SenderFor(job.DeliveryMethod)
	if err != nil {
		// Misconfigured channel: permanent, and not the provider's fault.
		w.finishFailed(ctx, job, err.Error(), "no_sender", job.RetryCount)
		return
	}

	var msg domain.MessagePayload
	if len(job.Payload) > 0 {
		if err := msg.FromJSON(job.Payload); err != nil {
			w.finishFailed(ctx, job, "payload deserialization failed: "+err.Error(), "bad_payload", job.RetryCount)
			return
		}
	}

	if !w.breaker.Allow(channelName) {
		// Provider outage: defer, do not fail, do not touch the retry
		// budget.
		breakerDeferralsCounter.WithLabelValues(channelName).Inc()
		nextAttempt := w.nowFn().UTC().Add(w.config.BreakerRequeueDelay)
		if err := w.jobs.Release(ctx, job.ID, nextAttempt); err != nil {
			log.ErrorContext(ctx, "Failed to release job after breaker deferral", "error", err)
			return
		}
		log.WarnContext(ctx, "Channel circuit open, job deferred", "next_attempt_at", nextAttempt)
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, w.config.SendTimeout)
	start := time.Now()
	resp, sendErr := sender.Send(sendCtx, channel.Request{
		JobID:            job.ID,
		Recipient:        job.RecipientAddress,
		Subject:          msg.Subject,
		Body:             msg.Body,
		NotificationType: job.NotificationType,
	})
	cancel()
	elapsed := time.Since(start)
	deliveryDurationHist.WithLabelValues(channelName).Observe(elapsed.Seconds())

	attemptedAt := w.nowFn().UTC()

	if sendErr == nil {
		providerID := sql.NullString{}
		if resp != nil && resp.ProviderMessageID != "" {
			providerID = sql.NullString{String: resp.ProviderMessageID, Valid: true}
		}
		err := w.jobs.FinishAttempt(ctx, repository.FinishAttemptParams{
			JobID:             job.ID,
			Outcome:           repository.OutcomeSent,
			AttemptedAt:       attemptedAt,
			DurationMs:        elapsed.Milliseconds(),
			ProviderMessageID: providerID,
		})
		if err != nil {
			log.ErrorContext(ctx, "Failed to record sent attempt", "error", err)
		}
		w.breaker.ReportSuccess(channelName)
		deliveryAttemptsCounter.WithLabelValues(channelName, "sent").Inc()
		log.InfoContext(ctx, "Notification delivered", "duration_ms", elapsed.Milliseconds())
		return
	}

	errCode := sql.NullString{}
	if code := channel.ErrorCode(sendErr); code != "" {
		errCode = sql.NullString{String: code, Valid: true}
	}

	if channel.IsPermanent(sendErr) {
		// Permanent errors say nothing about provider health: the
		// breaker is not fed, the job fails with its budget intact.
		err := w.jobs.FinishAttempt(ctx, repository.FinishAttemptParams{
			JobID:         job.ID,
			Outcome:       repository.OutcomeFailed,
			AttemptedAt:   attemptedAt,
			DurationMs:    elapsed.Milliseconds(),
			FailureReason: sql.NullString{String: sendErr.Error(), Valid: true},
			ErrorCode:     errCode,
			RetryCount:    job.RetryCount,
		})
		if err != nil {
			log.ErrorContext(ctx, "Failed to record permanent failure", "error", err)
		}
		deliveryAttemptsCounter.WithLabelValues(channelName, "failed_permanent").Inc()
		log.WarnContext(ctx, "Notification failed permanently", "error", sendErr)
		return
	}

	w.breaker.ReportFailure(channelName)
	newRetryCount := job.RetryCount + 1

	if newRetryCount < job.MaxRetries {
		nextAttempt := attemptedAt.Add(w.backoff.NextDelay(job.RetryCount))
		err := w.jobs.FinishAttempt(ctx, repository.FinishAttemptParams{
			JobID:         job.ID,
			Outcome:       repository.OutcomeRetry,
			AttemptedAt:   attemptedAt,
			DurationMs:    elapsed.Milliseconds(),
			FailureReason: sql.NullString{String: sendErr.Error(), Valid: true},
			ErrorCode:     errCode,
			RetryCount:    newRetryCount,
			NextAttemptAt: nextAttempt,
		})
		if err != nil {
			log.ErrorContext(ctx, "Failed to record retry attempt", "error", err)
		}
		deliveryAttemptsCounter.WithLabelValues(channelName, "retry").Inc()
		log.WarnContext(ctx, "Transient delivery failure, retry scheduled",
			"error", sendErr, "next_attempt_at", nextAttempt, "new_retry_count", newRetryCount)
		return
	}

	w.finishFailed(ctx, job, "failed after max retries: "+sendErr.Error(), channel.ErrorCode(sendErr), newRetryCount)
}

func (w *DeliveryWorker) finishFailed(ctx context.Context, job *domain.NotificationJob, reason, code string, retryCount int) {
	channelName := string(job.DeliveryMethod)
	errCode := sql.NullString{}
	if code != "" {
		errCode = sql.NullString{String: code, Valid: true}
	}
	err := w.jobs.FinishAttempt(ctx, repository.FinishAttemptParams{
		JobID:         job.ID,
		Outcome:       repository.OutcomeFailed,
		AttemptedAt:   w.nowFn().UTC(),
		FailureReason: sql.NullString{String: reason, Valid: true},
		ErrorCode:     errCode,
		RetryCount:    retryCount,
	})
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to record terminal failure", "error", err, "job_id", job.ID)
	}
	deliveryAttemptsCounter.WithLabelValues(channelName, "failed").Inc()
	w.logger.WarnContext(ctx, "Notification failed terminally", "job_id", job.ID, "reason", reason)
}
