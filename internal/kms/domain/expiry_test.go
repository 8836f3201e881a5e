package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDaysUntil(t *testing.T) {
	now := time.Date(2026, 3, 15, 9, 30, 0, 0, time.UTC)

	assert.Equal(t, 0, DaysUntil(now, now))
	assert.Equal(t, 0, DaysUntil(time.Date(2026, 3, 15, 23, 59, 0, 0, time.UTC), now))
	assert.Equal(t, 1, DaysUntil(time.Date(2026, 3, 16, 0, 1, 0, 0, time.UTC), now))
	assert.Equal(t, -1, DaysUntil(time.Date(2026, 3, 14, 23, 0, 0, 0, time.UTC), now))
	assert.Equal(t, 30, DaysUntil(now.AddDate(0, 0, 30), now))
}

func TestExpiryTarget(t *testing.T) {
	now := time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)
	days := func(n int) *time.Time {
		d := now.AddDate(0, 0, n)
		return &d
	}

	tests := []struct {
		name       string
		status     LifecycleStatus
		expiry     *time.Time
		wantStatus LifecycleStatus
		wantChange bool
	}{
		{"active well before window", StatusActive, days(60), StatusActive, false},
		{"active entering window", StatusActive, days(30), StatusNearExpired, true},
		{"active just inside window", StatusActive, days(1), StatusNearExpired, true},
		{"active past expiry", StatusActive, days(-1), StatusExpired, true},
		{"near expired unchanged", StatusNearExpired, days(10), StatusNearExpired, false},
		{"near expired crosses expiry", StatusNearExpired, days(-3), StatusExpired, true},
		{"extended document recovers", StatusExpired, days(90), StatusActive, true},
		{"expired stays expired", StatusExpired, days(-10), StatusExpired, false},
		{"expiring today counts as near expired", StatusActive, days(0), StatusNearExpired, true},
		{"no expiry date", StatusActive, nil, StatusActive, false},
		{"draft never changes", StatusDraft, days(-5), StatusDraft, false},
		{"hidden never changes", StatusHidden, days(-5), StatusHidden, false},
		{"archived never changes", StatusArchived, days(-5), StatusArchived, false},
		{"pending never changes", StatusPendingLevel2, days(-5), StatusPendingLevel2, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, changed := ExpiryTarget(tt.status, tt.expiry, now, DefaultNearExpiryThresholdDays)
			assert.Equal(t, tt.wantStatus, got)
			assert.Equal(t, tt.wantChange, changed)
		})
	}
}

func TestExpiryTargetIsIdempotent(t *testing.T) {
	now := time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)
	expiry := now.AddDate(0, 0, 7)

	first, changed := ExpiryTarget(StatusActive, &expiry, now, DefaultNearExpiryThresholdDays)
	assert.True(t, changed)
	assert.Equal(t, StatusNearExpired, first)

	// A second pass with the updated status is a no-op.
	second, changed := ExpiryTarget(first, &expiry, now, DefaultNearExpiryThresholdDays)
	assert.False(t, changed)
	assert.Equal(t, first, second)
}

func TestExpiryTargetCustomThreshold(t *testing.T) {
	now := time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)
	expiry := now.AddDate(0, 0, 10)

	got, changed := ExpiryTarget(StatusActive, &expiry, now, 7)
	assert.False(t, changed)
	assert.Equal(t, StatusActive, got)

	got, changed = ExpiryTarget(StatusActive, &expiry, now, 14)
	assert.True(t, changed)
	assert.Equal(t, StatusNearExpired, got)

	// Non-positive thresholds fall back to the default window.
	got, _ = ExpiryTarget(StatusActive, &expiry, now, 0)
	assert.Equal(t, StatusNearExpired, got)
}
