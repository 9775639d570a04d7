package game

import (
	"math"
	"sort"

	"fishshoot.dev/server/wire"
)

// Simulation constants. The tick grid is fixed; wall-clock pacing lives
// in the loop.
const (
	TickRate       = 60
	TickDT         = 1.0 / float64(TickRate)
	BroadcastEvery = 3 // 20 Hz on a 60 Hz grid
	MaxCatchUp     = 8

	arenaHalfWidth  = 800.0
	arenaHalfHeight = 450.0
	boundsMargin    = 120.0
	spawnInset      = 40.0

	baseFishRadius = 30.0
	bulletRadius   = 4.0
	BulletSpeed    = 600.0

	bulletLifetimeTicks = 3 * TickRate

	maxLiveFish         = 24
	spawnEveryTicks     = 45
	bossSpawnEveryTicks = 90 * TickRate
)

// Hit is one confirmed bullet-target intersection found during a tick.
// The caller feeds hits to the payout engine and decides whether the
// target actually dies.
type Hit struct {
	Bullet *Bullet
	Fish   *Fish
	Damage int
}

// StepResult is everything one tick changed that the room must react
// to.
type StepResult struct {
	Hits        []Hit
	Spawned     []*Fish
	AgedOut     []uint32
	SpentBullet []uint32
}

// World is the simulation state for one room. It is not safe for
// concurrent use; the room's loop owns it.
type World struct {
	fish    map[uint32]*Fish
	bullets map[uint32]*Bullet

	nextFishID   uint32
	nextBulletID uint32
	tick         uint64

	spawner       *Spawner
	bossAlive     bool
	lastSpawn     uint64
	lastBossSpawn uint64
}

func NewWorld(spawner *Spawner) *World {
	return &World{
		fish:    make(map[uint32]*Fish),
		bullets: make(map[uint32]*Bullet),
		spawner: spawner,
	}
}

// Tick is the current simulation tick.
func (w *World) Tick() uint64 { return w.tick }

// Step advances the simulation exactly one tick.
func (w *World) Step() StepResult {
	w.tick++
	var res StepResult

	// Targets first, so bullets sweep against updated positions.
	for _, id := range w.sortedFishIDs() {
		f := w.fish[id]
		f.advance(TickDT)
		if outOfBounds(f.X, f.Z) {
			if f.Boss {
				w.bossAlive = false
			}
			delete(w.fish, id)
			res.AgedOut = append(res.AgedOut, id)
		}
	}

	for _, id := range w.sortedBulletIDs() {
		b := w.bullets[id]
		b.advance(TickDT)
		if b.expired(w.tick) || outOfBounds(b.X, b.Z) {
			delete(w.bullets, id)
			res.SpentBullet = append(res.SpentBullet, id)
		}
	}

	res.Hits = w.collide()

	w.spawnPass(&res)
	return res
}

// collide sweeps every live bullet against every live fish in id order.
// A bullet hits at most one target per tick.
func (w *World) collide() []Hit {
	var hits []Hit
	for _, bid := range w.sortedBulletIDs() {
		b := w.bullets[bid]
		if b.HasHit {
			continue
		}
		for _, fid := range w.sortedFishIDs() {
			f := w.fish[fid]
			r := f.radius() + bulletRadius
			if !sweptCircleHit(b.PrevX, b.PrevZ, b.X, b.Z, f.X, f.Z, r) {
				continue
			}
			b.HasHit = true
			f.recordDamage(b.Owner, b.Damage)
			hits = append(hits, Hit{Bullet: b, Fish: f, Damage: b.Damage})
			delete(w.bullets, bid)
			break
		}
	}
	return hits
}

func (w *World) spawnPass(res *StepResult) {
	if len(w.fish) >= maxLiveFish {
		return
	}
	if !w.bossAlive && w.tick-w.lastBossSpawn >= bossSpawnEveryTicks {
		f := w.spawnFish(true)
		w.lastBossSpawn = w.tick
		res.Spawned = append(res.Spawned, f)
		return
	}
	if w.tick-w.lastSpawn >= spawnEveryTicks {
		f := w.spawnFish(false)
		w.lastSpawn = w.tick
		res.Spawned = append(res.Spawned, f)
	}
}

func (w *World) spawnFish(wantBoss bool) *Fish {
	w.nextFishID++
	f := w.spawner.Spawn(w.nextFishID, w.tick, wantBoss)
	if f.Boss {
		w.bossAlive = true
	}
	w.fish[f.ID] = f
	log.Debugf("spawn fish %d species=%s tier=%d boss=%v", f.ID, f.Species, f.Tier, f.Boss)
	return f
}

// FireBullet creates a projectile from the origin toward the target
// point. The caller has already admitted and charged the shot.
func (w *World) FireBullet(owner wire.PlayerID, weapon string, damage int, costFp int64, ox, oz, tx, tz float64) *Bullet {
	dx, dz := tx-ox, tz-oz
	norm := math.Hypot(dx, dz)
	if norm == 0 {
		norm = 1
		dx = 1
	}
	w.nextBulletID++
	b := &Bullet{
		ID:        w.nextBulletID,
		Owner:     owner,
		Weapon:    weapon,
		Damage:    damage,
		CostFp:    costFp,
		X:         ox,
		Z:         oz,
		PrevX:     ox,
		PrevZ:     oz,
		VX:        dx / norm * BulletSpeed,
		VZ:        dz / norm * BulletSpeed,
		SpawnTick: w.tick,
	}
	w.bullets[b.ID] = b
	return b
}

// TargetsNear returns up to max live fish within radius of (x, z),
// closest first. Area weapons use it to build their candidate list.
func (w *World) TargetsNear(x, z, radius float64, max int) []*Fish {
	type cand struct {
		f *Fish
		d float64
	}
	var cands []cand
	for _, id := range w.sortedFishIDs() {
		f := w.fish[id]
		d := math.Hypot(f.X-x, f.Z-z)
		if d <= radius+f.radius() {
			cands = append(cands, cand{f, d})
		}
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].d < cands[j].d })
	if len(cands) > max {
		cands = cands[:max]
	}
	out := make([]*Fish, len(cands))
	for i, c := range cands {
		out[i] = c.f
	}
	return out
}

// TargetsAlongBeam returns up to max fish whose center is within
// halfWidth of the ray from (ox, oz) through (tx, tz), ordered by
// distance along the beam.
func (w *World) TargetsAlongBeam(ox, oz, tx, tz, halfWidth float64, max int) []*Fish {
	dx, dz := tx-ox, tz-oz
	norm := math.Hypot(dx, dz)
	if norm == 0 {
		return nil
	}
	dx, dz = dx/norm, dz/norm

	type cand struct {
		f *Fish
		t float64
	}
	var cands []cand
	for _, id := range w.sortedFishIDs() {
		f := w.fish[id]
		// Project the center onto the beam axis.
		px, pz := f.X-ox, f.Z-oz
		t := px*dx + pz*dz
		if t < 0 {
			continue
		}
		perp := math.Abs(px*dz - pz*dx)
		if perp <= halfWidth+f.radius() {
			cands = append(cands, cand{f, t})
		}
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].t < cands[j].t })
	if len(cands) > max {
		cands = cands[:max]
	}
	out := make([]*Fish, len(cands))
	for i, c := range cands {
		out[i] = c.f
	}
	return out
}

// ApplyDamage books direct damage against a fish, for area and beam
// weapons that resolve without a projectile.
func (w *World) ApplyDamage(id uint32, attacker wire.PlayerID, damage int) bool {
	f, ok := w.fish[id]
	if !ok {
		return false
	}
	f.recordDamage(attacker, damage)
	return true
}

// KillFish removes a fish after the payout engine admitted the kill and
// returns it for attribution.
func (w *World) KillFish(id uint32) (*Fish, bool) {
	f, ok := w.fish[id]
	if !ok {
		return nil, false
	}
	if f.Boss {
		w.bossAlive = false
	}
	f.HP = 0
	delete(w.fish, id)
	return f, true
}

// Fish returns one live fish by id.
func (w *World) Fish(id uint32) (*Fish, bool) {
	f, ok := w.fish[id]
	return f, ok
}

// LiveFish returns all fish in id order, for snapshots.
func (w *World) LiveFish() []*Fish {
	out := make([]*Fish, 0, len(w.fish))
	for _, id := range w.sortedFishIDs() {
		out = append(out, w.fish[id])
	}
	return out
}

// LiveBullets returns all bullets in id order, for snapshots.
func (w *World) LiveBullets() []*Bullet {
	out := make([]*Bullet, 0, len(w.bullets))
	for _, id := range w.sortedBulletIDs() {
		out = append(out, w.bullets[id])
	}
	return out
}

// BossActive reports whether a boss target is alive.
func (w *World) BossActive() bool { return w.bossAlive }

func (w *World) sortedFishIDs() []uint32 {
	ids := make([]uint32, 0, len(w.fish))
	for id := range w.fish {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (w *World) sortedBulletIDs() []uint32 {
	ids := make([]uint32, 0, len(w.bullets))
	for id := range w.bullets {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func outOfBounds(x, z float64) bool {
	return x < -arenaHalfWidth-boundsMargin || x > arenaHalfWidth+boundsMargin ||
		z < -arenaHalfHeight-boundsMargin || z > arenaHalfHeight+boundsMargin
}
