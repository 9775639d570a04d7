package game

import (
	"crypto/sha256"
	"encoding/binary"
	"math"
	"sort"

	"fishshoot.dev/server/config"
	"fishshoot.dev/server/wire"
)

// Spawner decides what spawns, where it enters, and where it heads.
// It runs on a room-scoped LCG so a room replays identically from its
// seed; outcome rolls use a separate CSPRNG and never touch this
// stream.
type Spawner struct {
	seed  uint64
	state uint64

	species        []config.FishSpecies
	names          []string
	totalWeight    int64
	ordinaryWeight int64
	speedFactor    float64
}

// NewSpawner builds a spawner over the species table. Species are
// ordered by name so the weighted draw is independent of map iteration.
func NewSpawner(cfg config.Config, seed uint64) *Spawner {
	names := make([]string, 0, len(cfg.FishSpecies))
	for name := range cfg.FishSpecies {
		names = append(names, name)
	}
	sort.Strings(names)

	s := &Spawner{
		seed:        seed,
		state:       seed,
		speedFactor: 1.0,
	}
	for _, name := range names {
		sp := cfg.FishSpecies[name]
		if sp.SpawnWeight <= 0 {
			continue
		}
		s.species = append(s.species, sp)
		s.names = append(s.names, name)
		s.totalWeight += sp.SpawnWeight
		if !sp.IsBoss {
			s.ordinaryWeight += sp.SpawnWeight
		}
	}
	return s
}

// SeedCommitment is the hash published in audit receipts. The seed
// itself stays private until the room closes.
func (s *Spawner) SeedCommitment() [32]byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], s.seed)
	return sha256.Sum256(buf[:])
}

func (s *Spawner) next() uint64 {
	s.state = s.state*6364136223846793005 + 1442695040888963407
	return s.state >> 11
}

// nextFloat returns a uniform float in [0, 1).
func (s *Spawner) nextFloat() float64 {
	return float64(s.next()%(1<<52)) / (1 << 52)
}

// pickSpecies draws by spawn weight. A boss spawns only on an explicit
// wantBoss draw; the ordinary cadence rolls over the non-boss weight
// sum so the boss cadence stays the single source of boss spawns.
func (s *Spawner) pickSpecies(wantBoss bool) (string, config.FishSpecies) {
	if wantBoss {
		for i, sp := range s.species {
			if sp.IsBoss {
				return s.names[i], sp
			}
		}
	}
	weight := s.ordinaryWeight
	if weight == 0 {
		// All-boss table: nothing ordinary to draw, fall back to the
		// full table rather than divide by zero.
		weight = s.totalWeight
	}
	roll := int64(s.next() % uint64(weight))
	for i, sp := range s.species {
		if sp.IsBoss && weight != s.totalWeight {
			continue
		}
		roll -= sp.SpawnWeight
		if roll < 0 {
			return s.names[i], sp
		}
	}
	return s.names[len(s.names)-1], s.species[len(s.species)-1]
}

// edgePoint returns a point on one of the four arena edges, just
// outside the visible bounds.
func (s *Spawner) edgePoint(edge int) (float64, float64) {
	u := s.nextFloat()
	switch edge % 4 {
	case 0: // left
		return -arenaHalfWidth - spawnInset, (u*2 - 1) * arenaHalfHeight
	case 1: // right
		return arenaHalfWidth + spawnInset, (u*2 - 1) * arenaHalfHeight
	case 2: // top
		return (u*2 - 1) * arenaHalfWidth, -arenaHalfHeight - spawnInset
	default: // bottom
		return (u*2 - 1) * arenaHalfWidth, arenaHalfHeight + spawnInset
	}
}

// Spawn produces one fish entering from a random edge and swimming
// toward the opposite edge.
func (s *Spawner) Spawn(id uint32, tick uint64, wantBoss bool) *Fish {
	name, sp := s.pickSpecies(wantBoss)

	entry := int(s.next() % 4)
	x, z := s.edgePoint(entry)
	// Opposite edge keeps the fish crossing the visible area instead of
	// skimming a corner.
	dx, dz := s.edgePoint(entry ^ 1)

	vx, vz := dx-x, dz-z
	norm := math.Hypot(vx, vz)
	if norm == 0 {
		norm = 1
	}
	speed := sp.Speed * s.speedFactor
	vx, vz = vx/norm*speed, vz/norm*speed

	return &Fish{
		ID:             id,
		Species:        name,
		SpecID:         uint16(sp.ID),
		Tier:           sp.Tier,
		Boss:           sp.IsBoss,
		Special:        sp.IsSpecial,
		HP:             sp.Health,
		MaxHP:          sp.Health,
		X:              x,
		Z:              z,
		PrevX:          x,
		PrevZ:          z,
		VX:             vx,
		VZ:             vz,
		Rotation:       math.Atan2(vz, vx),
		Size:           sp.Size,
		DamageByPlayer: make(map[wire.PlayerID]int),
		SpawnTick:      tick,
	}
}
