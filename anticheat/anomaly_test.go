package anticheat

import (
	"testing"

	"fishshoot.dev/server/config"
	"fishshoot.dev/server/wire"
)

var cheater = wire.PlayerID{0xcc}

func testDetector() *Detector {
	return NewDetector(config.DefaultConfig())
}

// A perfect hit rate on a weapon certified at 35% must flag within the
// first hundred shots and put the player at warning level.
func TestPerfectHitRateFlagsWarning(t *testing.T) {
	d := testDetector()
	var level Escalation
	for i := 0; i < 100; i++ {
		level = d.RecordShot(cheater, "1x", true, 0)
	}
	if d.Flags(cheater) < 1 {
		t.Fatalf("no flags after 100 perfect shots")
	}
	if level != EscalationWarning {
		t.Fatalf("level %v, want warning", level)
	}
}

// An honest player at the certified rate never flags.
func TestExpectedHitRateStaysClean(t *testing.T) {
	d := testDetector()
	// 7 hits per 20 shots, the certified rate for "1x".
	for i := 0; i < 2_000; i++ {
		d.RecordShot(cheater, "1x", i%20 < 7, 0)
	}
	if d.Flags(cheater) != 0 {
		t.Fatalf("honest play flagged %d times", d.Flags(cheater))
	}
	if d.Level(cheater) != EscalationNone {
		t.Fatalf("level %v", d.Level(cheater))
	}
}

func TestEscalationLadder(t *testing.T) {
	d := testDetector()
	const nowMs = 50_000

	flagOnce := func() {
		before := d.Flags(cheater)
		for i := 0; i < 200 && d.Flags(cheater) == before; i++ {
			d.RecordShot(cheater, "1x", true, nowMs)
		}
		if d.Flags(cheater) != before+1 {
			t.Fatalf("could not provoke flag %d", before+1)
		}
	}

	flagOnce()
	if d.Level(cheater) != EscalationWarning {
		t.Fatalf("after 1 flag: %v", d.Level(cheater))
	}

	flagOnce()
	flagOnce()
	if d.Level(cheater) != EscalationCooldown {
		t.Fatalf("after 3 flags: %v", d.Level(cheater))
	}
	if !d.InCooldown(cheater, nowMs) {
		t.Fatalf("cooldown not engaged")
	}
	if d.InCooldown(cheater, nowMs+config.DefaultCooldownDurationMs+1) {
		t.Fatalf("cooldown never expires")
	}

	flagOnce()
	flagOnce()
	if d.Level(cheater) != EscalationDisconnect {
		t.Fatalf("after 5 flags: %v", d.Level(cheater))
	}
	// The level sticks for subsequent admissions.
	if lvl := d.RecordShot(cheater, "1x", false, nowMs); lvl != EscalationDisconnect {
		t.Fatalf("post-disconnect admission: %v", lvl)
	}
}

func TestFlagResetsWeaponWindow(t *testing.T) {
	d := testDetector()
	for i := 0; i < 50; i++ {
		d.RecordShot(cheater, "1x", true, 0)
	}
	if d.Flags(cheater) != 1 {
		t.Fatalf("flags %d after one hot window", d.Flags(cheater))
	}
	// The very next shot starts a fresh window instead of flagging
	// again immediately.
	d.RecordShot(cheater, "1x", true, 0)
	if d.Flags(cheater) != 1 {
		t.Fatalf("flag repeated without a full window")
	}
}

func TestWeaponsTrackedIndependently(t *testing.T) {
	d := testDetector()
	for i := 0; i < 49; i++ {
		d.RecordShot(cheater, "1x", true, 0)
		d.RecordShot(cheater, "laser", true, 0)
	}
	if d.Flags(cheater) != 0 {
		t.Fatalf("flagged below min shots")
	}
	d.RecordShot(cheater, "1x", true, 0)
	if d.Flags(cheater) != 1 {
		t.Fatalf("1x window did not flag at min shots")
	}
}

func TestForgetDropsPlayerState(t *testing.T) {
	d := testDetector()
	for i := 0; i < 60; i++ {
		d.RecordShot(cheater, "1x", true, 0)
	}
	d.Forget(cheater)
	if d.Flags(cheater) != 0 || d.Level(cheater) != EscalationNone {
		t.Fatalf("state survived forget")
	}
}
