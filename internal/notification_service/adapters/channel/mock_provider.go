package channel

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"
)

// MockSender is a simulated channel sender for development and testing.
type MockSender struct {
	logger       *slog.Logger
	name         string
	failRate     float64 // chance of a simulated transient failure, 0.0 to 1.0
	minLatencyMs int
	maxLatencyMs int
}

func NewMockSender(logger *slog.Logger, name string, failRate float64, minLatencyMs, maxLatencyMs int) *MockSender {
	if name == "" {
		name = "mock-sender"
	}
	return &MockSender{
		logger:       logger.With("provider", name),
		name:         name,
		failRate:     failRate,
		minLatencyMs: minLatencyMs,
		maxLatencyMs: maxLatencyMs,
	}
}

func (m *MockSender) Name() string { return m.name }

func (m *MockSender) Send(ctx context.Context, req Request) (*Response, error) {
	if m.maxLatencyMs > m.minLatencyMs {
		latency := m.minLatencyMs + rand.Intn(m.maxLatencyMs-m.minLatencyMs+1)
		time.Sleep(time.Duration(latency) * time.Millisecond)
	}

	if rand.Float64() < m.failRate {
		errMsg := fmt.Sprintf("simulated failure for recipient %s", req.Recipient)
		m.logger.WarnContext(ctx, "MockSender simulated failure", "job_id", req.JobID)
		return nil, NewTransientError("mock_simulated", errMsg)
	}

	providerMsgID := uuid.NewString()
	m.logger.InfoContext(ctx, "MockSender delivered (simulated)",
		"job_id", req.JobID,
		"provider_message_id", providerMsgID)
	return &Response{ProviderMessageID: providerMsgID}, nil
}
