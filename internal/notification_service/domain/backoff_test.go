package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffPolicy_NextDelay(t *testing.T) {
	policy := BackoffPolicy{Base: 30 * time.Second, Max: time.Hour}

	tests := []struct {
		name       string
		retryCount int
		want       time.Duration
	}{
		{"first retry", 0, 30 * time.Second},
		{"second retry", 1, time.Minute},
		{"third retry", 2, 2 * time.Minute},
		{"doubles each retry", 5, 16 * time.Minute},
		{"caps at max", 10, time.Hour},
		{"negative treated as zero", -3, 30 * time.Second},
		{"huge count does not overflow", 500, time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, policy.NextDelay(tt.retryCount))
		})
	}
}

func TestMaxRetriesFor(t *testing.T) {
	assert.Equal(t, 3, MaxRetriesFor(MethodEmail))
	assert.Equal(t, 2, MaxRetriesFor(MethodPush))
	assert.Equal(t, 3, MaxRetriesFor(DeliveryMethod("unknown")))
}
