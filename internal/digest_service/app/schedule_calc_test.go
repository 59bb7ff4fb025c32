package app

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/famline/notifications/internal/digest_service/domain"
)

func testSchedule(freq domain.Frequency, day int, tz string) *domain.DigestSchedule {
	s := &domain.DigestSchedule{
		Frequency:    freq,
		DeliveryTime: domain.DeliveryTime{Hour: 8, Minute: 0, Second: 0},
		Timezone:     tz,
	}
	if day > 0 {
		s.DeliveryDay = sql.NullInt32{Int32: int32(day), Valid: true}
	}
	return s
}

func mustLoc(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	require.NoError(t, err)
	return loc
}

func TestComputeNextRun_Daily(t *testing.T) {
	ny := mustLoc(t, "America/New_York")
	s := testSchedule(domain.FrequencyDaily, 0, "America/New_York")

	t.Run("before delivery time runs today", func(t *testing.T) {
		now := time.Date(2026, 3, 10, 6, 30, 0, 0, ny)
		next, err := ComputeNextRun(s, now)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 3, 10, 8, 0, 0, 0, ny).UTC(), next)
	})

	t.Run("after delivery time runs tomorrow", func(t *testing.T) {
		now := time.Date(2026, 3, 10, 9, 0, 0, 0, ny)
		next, err := ComputeNextRun(s, now)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 3, 11, 8, 0, 0, 0, ny).UTC(), next)
	})

	t.Run("exactly at delivery time runs tomorrow", func(t *testing.T) {
		now := time.Date(2026, 3, 10, 8, 0, 0, 0, ny)
		next, err := ComputeNextRun(s, now)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 3, 11, 8, 0, 0, 0, ny).UTC(), next)
	})
}

func TestComputeNextRun_Weekly(t *testing.T) {
	utc := time.UTC
	s := testSchedule(domain.FrequencyWeekly, 3, "UTC") // Wednesday

	t.Run("on wednesday before time runs today", func(t *testing.T) {
		// 2026-03-11 is a Wednesday.
		now := time.Date(2026, 3, 11, 7, 0, 0, 0, utc)
		next, err := ComputeNextRun(s, now)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 3, 11, 8, 0, 0, 0, utc), next)
	})

	t.Run("on wednesday after time runs exactly seven days later", func(t *testing.T) {
		now := time.Date(2026, 3, 11, 9, 0, 0, 0, utc)
		next, err := ComputeNextRun(s, now)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 3, 18, 8, 0, 0, 0, utc), next)
	})

	t.Run("mid week rolls forward to wednesday", func(t *testing.T) {
		// 2026-03-09 is a Monday.
		now := time.Date(2026, 3, 9, 12, 0, 0, 0, utc)
		next, err := ComputeNextRun(s, now)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 3, 11, 8, 0, 0, 0, utc), next)
	})

	t.Run("sunday schedule uses iso day seven", func(t *testing.T) {
		sun := testSchedule(domain.FrequencyWeekly, 7, "UTC")
		// 2026-03-13 is a Friday.
		now := time.Date(2026, 3, 13, 12, 0, 0, 0, utc)
		next, err := ComputeNextRun(sun, now)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 3, 15, 8, 0, 0, 0, utc), next)
	})

	t.Run("missing delivery day errors", func(t *testing.T) {
		bad := testSchedule(domain.FrequencyWeekly, 0, "UTC")
		_, err := ComputeNextRun(bad, time.Now())
		assert.Error(t, err)
	})
}

func TestComputeNextRun_Monthly(t *testing.T) {
	utc := time.UTC
	s := testSchedule(domain.FrequencyMonthly, 15, "UTC")

	t.Run("before this month's occurrence", func(t *testing.T) {
		now := time.Date(2026, 3, 10, 0, 0, 0, 0, utc)
		next, err := ComputeNextRun(s, now)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 3, 15, 8, 0, 0, 0, utc), next)
	})

	t.Run("after this month's occurrence rolls to next month", func(t *testing.T) {
		now := time.Date(2026, 3, 20, 0, 0, 0, 0, utc)
		next, err := ComputeNextRun(s, now)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 4, 15, 8, 0, 0, 0, utc), next)
	})

	t.Run("day 31 clamps to short months", func(t *testing.T) {
		d31 := testSchedule(domain.FrequencyMonthly, 31, "UTC")
		now := time.Date(2026, 2, 1, 0, 0, 0, 0, utc)
		next, err := ComputeNextRun(d31, now)
		require.NoError(t, err)
		// 2026 is not a leap year.
		assert.Equal(t, time.Date(2026, 2, 28, 8, 0, 0, 0, utc), next)
	})

	t.Run("day 31 clamps to feb 29 in leap years", func(t *testing.T) {
		d31 := testSchedule(domain.FrequencyMonthly, 31, "UTC")
		now := time.Date(2028, 2, 1, 0, 0, 0, 0, utc)
		next, err := ComputeNextRun(d31, now)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2028, 2, 29, 8, 0, 0, 0, utc), next)
	})

	t.Run("december rolls into january", func(t *testing.T) {
		now := time.Date(2026, 12, 20, 0, 0, 0, 0, utc)
		next, err := ComputeNextRun(s, now)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2027, 1, 15, 8, 0, 0, 0, utc), next)
	})
}

func TestComputeNextRun_ResultIsAlwaysInFuture(t *testing.T) {
	now := time.Date(2026, 6, 15, 8, 0, 0, 0, time.UTC)
	schedules := []*domain.DigestSchedule{
		testSchedule(domain.FrequencyDaily, 0, "UTC"),
		testSchedule(domain.FrequencyWeekly, 1, "Europe/Berlin"),
		testSchedule(domain.FrequencyMonthly, 15, "Asia/Tokyo"),
	}
	for _, s := range schedules {
		next, err := ComputeNextRun(s, now)
		require.NoError(t, err)
		assert.True(t, next.After(now), "frequency %s", s.Frequency)
	}
}

func TestComputeNextRun_UnknownFrequency(t *testing.T) {
	s := testSchedule(domain.Frequency("hourly"), 0, "UTC")
	_, err := ComputeNextRun(s, time.Now())
	assert.Error(t, err)
}
