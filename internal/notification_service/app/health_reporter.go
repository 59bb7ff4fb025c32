package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/famline/notifications/internal/notification_service/breaker"
	"github.com/famline/notifications/internal/notification_service/domain"
	"github.com/famline/notifications/internal/notification_service/repository"
)

// QueueHealth is the operator-facing snapshot of the delivery pipeline.
type QueueHealth struct {
	Window          string                       `json:"window"`
	StatusCounts    map[domain.JobStatus]int     `json:"status_counts"`
	SuccessRate     float64                      `json:"success_rate"`
	AvgProcessingMs float64                      `json:"avg_processing_ms"`
	OverdueCount    int                          `json:"overdue_count"`
	Breakers        []breaker.Snapshot           `json:"breakers"`
	GeneratedAt     time.Time                    `json:"generated_at"`
}

// HealthReporter aggregates queue and breaker state for the metrics
// endpoint. Read-only; it never mutates jobs.
type HealthReporter struct {
	jobs     repository.JobRepository
	logs     repository.DeliveryLogRepository
	breaker  *breaker.Registry
	channels []string
	window   time.Duration
	logger   *slog.Logger
	nowFn    func() time.Time
}

func NewHealthReporter(
	jobs repository.JobRepository,
	logs repository.DeliveryLogRepository,
	br *breaker.Registry,
	channels []string,
	window time.Duration,
	logger *slog.Logger,
) *HealthReporter {
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &HealthReporter{
		jobs:     jobs,
		logs:     logs,
		breaker:  br,
		channels: channels,
		window:   window,
		logger:   logger.With("component", "health_reporter"),
		nowFn:    time.Now,
	}
}

// Report builds the snapshot over the trailing window. An empty queue
// reports a success rate of 1.0: no attempts means nothing has failed.
func (h *HealthReporter) Report(ctx context.Context) (*QueueHealth, error) {
	now := h.nowFn().UTC()
	since := now.Add(-h.window)

	counts, err := h.jobs.CountByStatus(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs by status: %w", err)
	}

	stats, err := h.logs.StatsSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate delivery stats: %w", err)
	}

	overdue, err := h.jobs.CountOverdue(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to count overdue jobs: %w", err)
	}

	successRate := 1.0
	if stats.Attempts > 0 {
		successRate = float64(stats.Succeeded) / float64(stats.Attempts)
	}

	return &QueueHealth{
		Window:          h.window.String(),
		StatusCounts:    counts,
		SuccessRate:     successRate,
		AvgProcessingMs: stats.AvgDurationMs,
		OverdueCount:    overdue,
		Breakers:        h.breaker.Snapshots(h.channels),
		GeneratedAt:     now,
	}, nil
}
