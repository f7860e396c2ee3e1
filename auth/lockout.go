package auth

import (
	"time"

	"client-portal/domain"
)

// Lockout locks an account for Window once MaxAttempts consecutive
// failures are reached. Any successful login resets the counter.
type Lockout struct {
	MaxAttempts int
	Window      time.Duration
}

func DefaultLockout() Lockout {
	return Lockout{MaxAttempts: 5, Window: 15 * time.Minute}
}

// Fail records one failed attempt on u and reports whether it locked the account.
// A lock that already ran out starts a fresh count.
func (l Lockout) Fail(u *domain.User, now time.Time) bool {
	if u.LockedUntil != nil && !u.IsLocked(now) {
		u.LockedUntil = nil
		u.FailedAttempts = 0
	}
	u.FailedAttempts++
	if u.FailedAttempts >= l.MaxAttempts {
		until := now.Add(l.Window)
		u.LockedUntil = &until
		return true
	}
	return false
}

// Succeed clears the failure bookkeeping and stamps the login time.
// It reports whether anything changed besides the timestamp.
func (l Lockout) Succeed(u *domain.User, now time.Time) bool {
	changed := u.FailedAttempts != 0 || u.LockedUntil != nil
	u.FailedAttempts = 0
	u.LockedUntil = nil
	u.LastLoginAt = &now
	return changed
}
