package config

import (
	"errors"
	"fmt"
	"strings"
)

// Fixed-point scales. Every monetary, probability, weight, and RTP value
// in the engine is an integer scaled by one of these. Floating point never
// touches an outcome.
const (
	// MoneyScale converts one staked unit into fp money units.
	MoneyScale int64 = 1_000

	// RTPScale expresses return-to-player in basis points: 9000 = 90.00%.
	RTPScale int64 = 10_000

	// WeightScale normalizes multi-target weights; weights for one fire
	// event always sum to exactly WeightScale.
	WeightScale int64 = 1_000_000

	// PScale is the range of the outcome roll: rolls are uniform in
	// [0, PScale).
	PScale int64 = 1_000_000_000

	// KScale scales the soft-roll smoothing factor: 76 = 0.76.
	KScale int64 = 100
)

// TierParams describes one payout tier, all in fp units.
type TierParams struct {
	// RTPFp is the certified target return-to-player, RTPScale-based.
	RTPFp int64 `json:"rtp_tier_fp"`
	// N1Fp is the pity point: a kill is forced once cumulative credited
	// cost reaches N1Fp.
	N1Fp int64 `json:"n1_fp"`
	// RewardFp is the payout on kill, MoneyScale-based per unit staked.
	RewardFp int64 `json:"reward_fp"`
}

// WeaponSpec describes one weapon the client may fire.
type WeaponSpec struct {
	CostFp     int64  `json:"cost"`
	Damage     int    `json:"damage"`
	CooldownMs int64  `json:"cooldown_ms"`
	Multiplier int64  `json:"multiplier"`
	RTPFp      int64  `json:"rtp"`
	Class      string `json:"class"` // "single", "aoe", "laser"
	// ExpectedHitRatePct is the certified geometric hit rate used by the
	// anomaly detector, in percent (35 = 0.35).
	ExpectedHitRatePct int64 `json:"expected_hit_rate_pct"`
}

// FishSpecies describes one spawnable target species.
type FishSpecies struct {
	ID          int    `json:"id"`
	Tier        int    `json:"tier"`
	Health      int    `json:"health"`
	Multiplier  int64  `json:"multiplier"`
	Size        float64 `json:"size"`
	Speed       float64 `json:"speed"`
	SpawnWeight int64  `json:"spawn_weight"`
	IsBoss      bool   `json:"is_boss,omitempty"`
	IsSpecial   bool   `json:"is_special,omitempty"`
	SpecialType string `json:"special_type,omitempty"`
}

// BucketSpec parameterizes one token bucket.
type BucketSpec struct {
	Capacity     int64 `json:"capacity"`
	RefillPerSec int64 `json:"refill_per_sec"`
}

// RateLimits holds the per-session bucket table plus the per-IP buckets.
type RateLimits struct {
	Shoot        BucketSpec `json:"shoot"`
	Movement     BucketSpec `json:"movement"`
	RoomAction   BucketSpec `json:"room_action"`
	WeaponSwitch BucketSpec `json:"weapon_switch"`
	TimeSync     BucketSpec `json:"time_sync"`
	StateRequest BucketSpec `json:"state_request"`

	IPHandshake BucketSpec `json:"ip_handshake"`
	IPGlobal    BucketSpec `json:"ip_global"`
}

// ConnectionLimits bounds per-IP connection behavior.
type ConnectionLimits struct {
	MaxConnectionsPerIP    int   `json:"max_connections_per_ip"`
	RoomOpsWindowMs        int64 `json:"room_ops_window_ms"`
	MaxRoomOpsPerIPWindow  int   `json:"max_room_ops_per_ip_window"`
	BucketExpiryMs         int64 `json:"bucket_expiry_ms"`
}

// Config is the process-wide static rules object. It is read-only after
// Validate; its canonical hash is the rules_hash every receipt cites.
type Config struct {
	Tiers       map[int]TierParams     `json:"tier_config"`
	Weapons     map[string]WeaponSpec  `json:"weapons"`
	FishSpecies map[string]FishSpecies `json:"fish_species"`

	AOEMaxTargets   int `json:"aoe_max_targets"`
	LaserMaxTargets int `json:"laser_max_targets"`

	RateLimits       RateLimits       `json:"rate_limits"`
	ConnectionLimits ConnectionLimits `json:"connection_limits"`

	// SoftRollK is the tier-independent smoothing divisor for the soft
	// roll, KScale-based (76 = 0.76).
	SoftRollK int64 `json:"soft_roll_k"`

	SigmaThreshold       float64 `json:"sigma_threshold"`
	MinShotsForDetection int     `json:"min_shots_for_detection"`
	CooldownDurationMs   int64   `json:"cooldown_duration_ms"`
}

const (
	TierCount = 6

	DefaultSigmaThreshold       = 3.0
	DefaultMinShotsForDetection = 50
	DefaultCooldownDurationMs   = 10_000

	// DefaultSoftRollK keeps the soft-roll probability high enough that
	// a kill lands within a shot or two of the gate opening; larger
	// values drag the long-run payout ratio below the tier target.
	DefaultSoftRollK = 76
)

// DefaultConfig returns the certified rules table.
func DefaultConfig() Config {
	return Config{
		// Each row is tuned so the budget gate opens exactly at the
		// break-even shot for 1-unit fire: RewardFp is a whole multiple
		// of the per-shot accrual floor(MoneyScale*RTPFp/RTPScale).
		Tiers: map[int]TierParams{
			1: {RTPFp: 9000, N1Fp: 6 * MoneyScale, RewardFp: 4500},
			2: {RTPFp: 9100, N1Fp: 15 * MoneyScale, RewardFp: 10_920},
			3: {RTPFp: 9200, N1Fp: 32 * MoneyScale, RewardFp: 23_000},
			4: {RTPFp: 9300, N1Fp: 62 * MoneyScale, RewardFp: 46_500},
			5: {RTPFp: 9400, N1Fp: 125 * MoneyScale, RewardFp: 94_000},
			6: {RTPFp: 9500, N1Fp: 190 * MoneyScale, RewardFp: 142_500},
		},
		Weapons: map[string]WeaponSpec{
			"1x":    {CostFp: 1 * MoneyScale, Damage: 10, CooldownMs: 150, Multiplier: 1, RTPFp: 9000, Class: "single", ExpectedHitRatePct: 35},
			"2x":    {CostFp: 2 * MoneyScale, Damage: 22, CooldownMs: 180, Multiplier: 2, RTPFp: 9100, Class: "single", ExpectedHitRatePct: 35},
			"5x":    {CostFp: 5 * MoneyScale, Damage: 60, CooldownMs: 250, Multiplier: 5, RTPFp: 9200, Class: "single", ExpectedHitRatePct: 35},
			"aoe":   {CostFp: 5 * MoneyScale, Damage: 35, CooldownMs: 600, Multiplier: 5, RTPFp: 9200, Class: "aoe", ExpectedHitRatePct: 60},
			"laser": {CostFp: 10 * MoneyScale, Damage: 80, CooldownMs: 1200, Multiplier: 10, RTPFp: 9300, Class: "laser", ExpectedHitRatePct: 55},
		},
		FishSpecies: map[string]FishSpecies{
			"sardine":    {ID: 1, Tier: 1, Health: 10, Multiplier: 2, Size: 0.6, Speed: 90, SpawnWeight: 400},
			"clownfish":  {ID: 2, Tier: 2, Health: 25, Multiplier: 4, Size: 0.8, Speed: 80, SpawnWeight: 250},
			"lionfish":   {ID: 3, Tier: 3, Health: 55, Multiplier: 8, Size: 1.0, Speed: 70, SpawnWeight: 160},
			"ray":        {ID: 4, Tier: 4, Health: 120, Multiplier: 15, Size: 1.4, Speed: 55, SpawnWeight: 100},
			"shark":      {ID: 5, Tier: 5, Health: 280, Multiplier: 30, Size: 1.9, Speed: 45, SpawnWeight: 60},
			"goldwhale":  {ID: 6, Tier: 6, Health: 650, Multiplier: 60, Size: 2.6, Speed: 30, SpawnWeight: 25, IsBoss: true},
			"bombpuffer": {ID: 7, Tier: 3, Health: 40, Multiplier: 8, Size: 0.9, Speed: 75, SpawnWeight: 30, IsSpecial: true, SpecialType: "bomb"},
		},
		AOEMaxTargets:   8,
		LaserMaxTargets: 6,
		RateLimits: RateLimits{
			Shoot:        BucketSpec{Capacity: 15, RefillPerSec: 10},
			Movement:     BucketSpec{Capacity: 30, RefillPerSec: 20},
			RoomAction:   BucketSpec{Capacity: 5, RefillPerSec: 1},
			WeaponSwitch: BucketSpec{Capacity: 5, RefillPerSec: 2},
			TimeSync:     BucketSpec{Capacity: 4, RefillPerSec: 1},
			StateRequest: BucketSpec{Capacity: 4, RefillPerSec: 1},
			IPHandshake:  BucketSpec{Capacity: 6, RefillPerSec: 1},
			IPGlobal:     BucketSpec{Capacity: 120, RefillPerSec: 60},
		},
		ConnectionLimits: ConnectionLimits{
			MaxConnectionsPerIP:   8,
			RoomOpsWindowMs:       60_000,
			MaxRoomOpsPerIPWindow: 20,
			BucketExpiryMs:        600_000,
		},
		SoftRollK:            DefaultSoftRollK,
		SigmaThreshold:       DefaultSigmaThreshold,
		MinShotsForDetection: DefaultMinShotsForDetection,
		CooldownDurationMs:   DefaultCooldownDurationMs,
	}
}

var allowedWeaponClasses = map[string]struct{}{
	"single": {},
	"aoe":    {},
	"laser":  {},
}

// Validate checks the rules object for internal consistency. A config
// that fails validation must never be served.
func Validate(cfg Config) error {
	if len(cfg.Tiers) != TierCount {
		return fmt.Errorf("tier_config must have exactly %d tiers, got %d", TierCount, len(cfg.Tiers))
	}
	for t := 1; t <= TierCount; t++ {
		tp, ok := cfg.Tiers[t]
		if !ok {
			return fmt.Errorf("tier_config missing tier %d", t)
		}
		if tp.RTPFp <= 0 || tp.RTPFp >= RTPScale {
			return fmt.Errorf("tier %d: rtp_tier_fp %d out of (0, %d)", t, tp.RTPFp, RTPScale)
		}
		if tp.N1Fp <= 0 {
			return fmt.Errorf("tier %d: n1_fp must be > 0", t)
		}
		if tp.RewardFp <= 0 {
			return fmt.Errorf("tier %d: reward_fp must be > 0", t)
		}
		// Pity must be reachable before the budget could not have covered
		// the reward: at pity, accumulated budget is at least
		// N1Fp*rtp/RTPScale and debt is bounded by RewardFp.
		if tp.RewardFp > tp.N1Fp {
			return fmt.Errorf("tier %d: reward_fp %d exceeds n1_fp %d", t, tp.RewardFp, tp.N1Fp)
		}
	}
	if len(cfg.Weapons) == 0 {
		return errors.New("weapons table is required")
	}
	for key, w := range cfg.Weapons {
		if strings.TrimSpace(key) == "" {
			return errors.New("weapon key must be non-empty")
		}
		if w.CostFp <= 0 {
			return fmt.Errorf("weapon %q: cost must be > 0", key)
		}
		if w.Damage <= 0 {
			return fmt.Errorf("weapon %q: damage must be > 0", key)
		}
		if w.CooldownMs < 0 {
			return fmt.Errorf("weapon %q: cooldown_ms must be >= 0", key)
		}
		if _, ok := allowedWeaponClasses[w.Class]; !ok {
			return fmt.Errorf("weapon %q: unknown class %q", key, w.Class)
		}
		if w.ExpectedHitRatePct <= 0 || w.ExpectedHitRatePct >= 100 {
			return fmt.Errorf("weapon %q: expected_hit_rate_pct %d out of (0, 100)", key, w.ExpectedHitRatePct)
		}
	}
	if len(cfg.FishSpecies) == 0 {
		return errors.New("fish_species table is required")
	}
	seenIDs := make(map[int]string, len(cfg.FishSpecies))
	for name, sp := range cfg.FishSpecies {
		if sp.Tier < 1 || sp.Tier > TierCount {
			return fmt.Errorf("species %q: tier %d out of [1, %d]", name, sp.Tier, TierCount)
		}
		if sp.Health <= 0 {
			return fmt.Errorf("species %q: health must be > 0", name)
		}
		if sp.SpawnWeight < 0 {
			return fmt.Errorf("species %q: spawn_weight must be >= 0", name)
		}
		if sp.Size <= 0 || sp.Speed <= 0 {
			return fmt.Errorf("species %q: size and speed must be > 0", name)
		}
		if other, dup := seenIDs[sp.ID]; dup {
			return fmt.Errorf("species %q: id %d already used by %q", name, sp.ID, other)
		}
		seenIDs[sp.ID] = name
	}
	if cfg.AOEMaxTargets <= 0 || cfg.LaserMaxTargets <= 0 {
		return errors.New("aoe_max_targets and laser_max_targets must be > 0")
	}
	for _, b := range []struct {
		name string
		spec BucketSpec
	}{
		{"shoot", cfg.RateLimits.Shoot},
		{"movement", cfg.RateLimits.Movement},
		{"room_action", cfg.RateLimits.RoomAction},
		{"weapon_switch", cfg.RateLimits.WeaponSwitch},
		{"time_sync", cfg.RateLimits.TimeSync},
		{"state_request", cfg.RateLimits.StateRequest},
		{"ip_handshake", cfg.RateLimits.IPHandshake},
		{"ip_global", cfg.RateLimits.IPGlobal},
	} {
		if b.spec.Capacity <= 0 || b.spec.RefillPerSec <= 0 {
			return fmt.Errorf("rate_limits.%s: capacity and refill_per_sec must be > 0", b.name)
		}
	}
	cl := cfg.ConnectionLimits
	if cl.MaxConnectionsPerIP <= 0 {
		return errors.New("connection_limits.max_connections_per_ip must be > 0")
	}
	if cl.RoomOpsWindowMs <= 0 || cl.MaxRoomOpsPerIPWindow <= 0 {
		return errors.New("connection_limits room-op window settings must be > 0")
	}
	if cl.BucketExpiryMs <= 0 {
		return errors.New("connection_limits.bucket_expiry_ms must be > 0")
	}
	if cfg.SoftRollK <= 0 {
		return errors.New("soft_roll_k must be > 0")
	}
	if cfg.SigmaThreshold <= 0 {
		return errors.New("sigma_threshold must be > 0")
	}
	if cfg.MinShotsForDetection <= 0 {
		return errors.New("min_shots_for_detection must be > 0")
	}
	if cfg.CooldownDurationMs <= 0 {
		return errors.New("cooldown_duration_ms must be > 0")
	}
	return nil
}

// WithDefaults fills the optional detection settings when unset.
func WithDefaults(cfg Config) Config {
	if cfg.SigmaThreshold == 0 {
		cfg.SigmaThreshold = DefaultSigmaThreshold
	}
	if cfg.MinShotsForDetection == 0 {
		cfg.MinShotsForDetection = DefaultMinShotsForDetection
	}
	if cfg.CooldownDurationMs == 0 {
		cfg.CooldownDurationMs = DefaultCooldownDurationMs
	}
	if cfg.SoftRollK == 0 {
		cfg.SoftRollK = DefaultSoftRollK
	}
	return cfg
}
