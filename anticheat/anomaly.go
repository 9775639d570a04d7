package anticheat

import (
	"math"

	"fishshoot.dev/server/config"
	"fishshoot.dev/server/wire"
)

// Escalation is the anomaly response ladder.
type Escalation uint8

const (
	EscalationNone Escalation = iota
	EscalationWarning
	EscalationCooldown
	EscalationDisconnect
)

func (e Escalation) String() string {
	switch e {
	case EscalationNone:
		return "none"
	case EscalationWarning:
		return "warning"
	case EscalationCooldown:
		return "cooldown"
	case EscalationDisconnect:
		return "disconnect"
	default:
		return "unknown"
	}
}

// Flag counts at which each escalation level engages.
const (
	warningFlags    = 1
	cooldownFlags   = 3
	disconnectFlags = 5
)

type statKey struct {
	player wire.PlayerID
	weapon string
}

type weaponStats struct {
	shots int
	hits  int
}

// Detector watches per-(player, weapon) hit rates and flags sessions
// whose observed rate sits implausibly far above the certified
// expectation. It is owned by one room's loop and needs no locking.
type Detector struct {
	sigma      float64
	minShots   int
	cooldownMs int64
	expected   map[string]float64

	stats         map[statKey]*weaponStats
	flags         map[wire.PlayerID]int
	cooldownUntil map[wire.PlayerID]int64
}

func NewDetector(cfg config.Config) *Detector {
	expected := make(map[string]float64, len(cfg.Weapons))
	for key, w := range cfg.Weapons {
		expected[key] = float64(w.ExpectedHitRatePct) / 100
	}
	return &Detector{
		sigma:         cfg.SigmaThreshold,
		minShots:      cfg.MinShotsForDetection,
		cooldownMs:    cfg.CooldownDurationMs,
		expected:      expected,
		stats:         make(map[statKey]*weaponStats),
		flags:         make(map[wire.PlayerID]int),
		cooldownUntil: make(map[wire.PlayerID]int64),
	}
}

// RecordShot books one shot and its hit outcome, runs the z-test once
// the sample is large enough, and returns the player's current
// escalation level. When a flag is recorded the weapon's window resets
// so one hot streak yields one flag, not one per subsequent shot.
func (d *Detector) RecordShot(player wire.PlayerID, weapon string, hit bool, nowMs int64) Escalation {
	key := statKey{player: player, weapon: weapon}
	st := d.stats[key]
	if st == nil {
		st = &weaponStats{}
		d.stats[key] = st
	}
	st.shots++
	if hit {
		st.hits++
	}

	expected, ok := d.expected[weapon]
	if ok && st.shots >= d.minShots {
		observed := float64(st.hits) / float64(st.shots)
		se := math.Sqrt(expected * (1 - expected) / float64(st.shots))
		if se > 0 && (observed-expected)/se > d.sigma {
			d.flags[player]++
			st.shots, st.hits = 0, 0
			log.Infof("anomaly flag %d: weapon=%s observed=%.2f expected=%.2f",
				d.flags[player], weapon, observed, expected)
			if d.flags[player] >= cooldownFlags && d.flags[player] < disconnectFlags {
				d.cooldownUntil[player] = nowMs + d.cooldownMs
			}
		}
	}
	return d.Level(player)
}

// Level maps the accumulated flag count onto the ladder.
func (d *Detector) Level(player wire.PlayerID) Escalation {
	switch flags := d.flags[player]; {
	case flags >= disconnectFlags:
		return EscalationDisconnect
	case flags >= cooldownFlags:
		return EscalationCooldown
	case flags >= warningFlags:
		return EscalationWarning
	default:
		return EscalationNone
	}
}

// InCooldown reports whether the player's shots are currently blocked.
func (d *Detector) InCooldown(player wire.PlayerID, nowMs int64) bool {
	return nowMs < d.cooldownUntil[player]
}

// Flags returns the player's cumulative flag count.
func (d *Detector) Flags(player wire.PlayerID) int { return d.flags[player] }

// Forget drops all state for a player when the session ends.
func (d *Detector) Forget(player wire.PlayerID) {
	for key := range d.stats {
		if key.player == player {
			delete(d.stats, key)
		}
	}
	delete(d.flags, player)
	delete(d.cooldownUntil, player)
}
