package game

import "fishshoot.dev/server/wire"

// Bullet is one live projectile. Cost is carried in fp units so a
// confirmed hit can be credited to the payout engine without a weapon
// table lookup.
type Bullet struct {
	ID     uint32
	Owner  wire.PlayerID
	Weapon string
	Damage int
	CostFp int64

	X, Z         float64
	PrevX, PrevZ float64
	VX, VZ       float64

	SpawnTick uint64
	HasHit    bool
}

func (b *Bullet) advance(dt float64) {
	b.PrevX, b.PrevZ = b.X, b.Z
	b.X += b.VX * dt
	b.Z += b.VZ * dt
}

func (b *Bullet) expired(tick uint64) bool {
	return tick-b.SpawnTick > bulletLifetimeTicks
}
