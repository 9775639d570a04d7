// Package anticheat implements the admission layer: token buckets,
// per-IP limits, sequence anti-replay, timestamp sanity, and z-score
// anomaly detection with escalation. All clocks are millisecond
// timestamps passed in by the caller, so tests never sleep.
package anticheat

import (
	"fishshoot.dev/server/config"
)

// Category names one per-session token bucket.
type Category uint8

const (
	CategoryShoot Category = iota
	CategoryMovement
	CategoryRoomAction
	CategoryWeaponSwitch
	CategoryTimeSync
	CategoryStateRequest

	numCategories
)

func (c Category) String() string {
	switch c {
	case CategoryShoot:
		return "shoot"
	case CategoryMovement:
		return "movement"
	case CategoryRoomAction:
		return "room_action"
	case CategoryWeaponSwitch:
		return "weapon_switch"
	case CategoryTimeSync:
		return "time_sync"
	case CategoryStateRequest:
		return "state_request"
	default:
		return "unknown"
	}
}

// Verdict is the admission result for one request.
type Verdict uint8

const (
	Allowed Verdict = iota
	Limited
	Banned
)

// banThreshold is the violation count at which a session stops being
// served entirely.
const banThreshold = 30

// bucket is a lazily refilled token bucket. Tokens are float so partial
// refills between closely spaced requests are not lost.
type bucket struct {
	capacity float64
	refill   float64 // tokens per second
	tokens   float64
	lastMs   int64
}

func newBucket(spec config.BucketSpec, nowMs int64) bucket {
	return bucket{
		capacity: float64(spec.Capacity),
		refill:   float64(spec.RefillPerSec),
		tokens:   float64(spec.Capacity),
		lastMs:   nowMs,
	}
}

func (b *bucket) take(nowMs int64) bool {
	if nowMs > b.lastMs {
		b.tokens += float64(nowMs-b.lastMs) / 1000 * b.refill
		if b.tokens > b.capacity {
			b.tokens = b.capacity
		}
		b.lastMs = nowMs
	}
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// SessionLimiter holds the six per-session buckets and the violation
// counter. It is owned by one connection and needs no locking.
type SessionLimiter struct {
	buckets    [numCategories]bucket
	violations int
}

func NewSessionLimiter(rl config.RateLimits, nowMs int64) *SessionLimiter {
	l := &SessionLimiter{}
	l.buckets[CategoryShoot] = newBucket(rl.Shoot, nowMs)
	l.buckets[CategoryMovement] = newBucket(rl.Movement, nowMs)
	l.buckets[CategoryRoomAction] = newBucket(rl.RoomAction, nowMs)
	l.buckets[CategoryWeaponSwitch] = newBucket(rl.WeaponSwitch, nowMs)
	l.buckets[CategoryTimeSync] = newBucket(rl.TimeSync, nowMs)
	l.buckets[CategoryStateRequest] = newBucket(rl.StateRequest, nowMs)
	return l
}

// Allow admits or rejects one request in the given category. Once the
// violation counter crosses the ban threshold every further request is
// Banned and the caller must terminate the session.
func (l *SessionLimiter) Allow(cat Category, nowMs int64) Verdict {
	if l.violations >= banThreshold {
		return Banned
	}
	if l.buckets[cat].take(nowMs) {
		return Allowed
	}
	l.violations++
	if l.violations >= banThreshold {
		log.Infof("session crossed ban threshold on %s bucket", cat)
		return Banned
	}
	return Limited
}

// Violations reports the accumulated count, surfaced in admission
// replies.
func (l *SessionLimiter) Violations() int { return l.violations }
