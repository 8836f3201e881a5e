package domain

import "time"

// DefaultNearExpiryThresholdDays is the window, in calendar days, before
// the expiry date during which an active document counts as near expired.
const DefaultNearExpiryThresholdDays = 30

// DaysUntil returns the number of whole calendar days from now until t.
// Both instants are truncated to their UTC date before comparing, so a
// document expiring later today reports zero days.
func DaysUntil(t, now time.Time) int {
	td := t.UTC().Truncate(24 * time.Hour)
	nd := now.UTC().Truncate(24 * time.Hour)
	return int(td.Sub(nd).Hours() / 24)
}

// ExpiryTarget computes the lifecycle status a published document should
// hold given its expiry date and the current time. It is a pure
// recomputation: calling it twice with the same inputs yields the same
// answer, which is what makes the periodic scan idempotent.
//
// The second return value reports whether the target differs from the
// current status. Unpublished, hidden and archived documents never
// change, nor do documents without an expiry date.
func ExpiryTarget(s LifecycleStatus, expiryDate *time.Time, now time.Time, thresholdDays int) (LifecycleStatus, bool) {
	if !s.IsPublished() || expiryDate == nil {
		return s, false
	}
	if thresholdDays <= 0 {
		thresholdDays = DefaultNearExpiryThresholdDays
	}

	days := DaysUntil(*expiryDate, now)

	var target LifecycleStatus
	switch {
	case days < 0:
		target = StatusExpired
	case days <= thresholdDays:
		target = StatusNearExpired
	default:
		target = StatusActive
	}

	return target, target != s
}
