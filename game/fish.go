// Package game implements the authoritative room simulation: the fixed
// 60 Hz tick, target and projectile lifecycle, swept collision, and
// damage-proportional reward attribution. Physics runs in floating
// point; everything outcome-bearing stays integer and lives elsewhere.
package game

import "fishshoot.dev/server/wire"

// Fish is one live target. Kinematics are float64 world units; combat
// bookkeeping is integral.
type Fish struct {
	ID      uint32
	Species string
	SpecID  uint16
	Tier    int
	Boss    bool
	Special bool

	HP    int
	MaxHP int

	X, Z         float64
	PrevX, PrevZ float64
	VX, VZ       float64
	Rotation     float64
	Size         float64

	DamageByPlayer map[wire.PlayerID]int
	LastHitBy      wire.PlayerID

	SpawnTick uint64
}

// advance moves the fish one step and remembers the previous position
// for swept collision.
func (f *Fish) advance(dt float64) {
	f.PrevX, f.PrevZ = f.X, f.Z
	f.X += f.VX * dt
	f.Z += f.VZ * dt
}

// radius is the collision radius before the bullet's own radius is
// added.
func (f *Fish) radius() float64 {
	return baseFishRadius * f.Size
}

// recordDamage books damage against the attacker and clamps HP at
// zero.
func (f *Fish) recordDamage(attacker wire.PlayerID, damage int) {
	if f.DamageByPlayer == nil {
		f.DamageByPlayer = make(map[wire.PlayerID]int)
	}
	f.DamageByPlayer[attacker] += damage
	f.LastHitBy = attacker
	f.HP -= damage
	if f.HP < 0 {
		f.HP = 0
	}
}
