// Package audit ties every payout to the exact rules it was computed
// under: a canonical hash of the rules tables, a monotonically bumped
// rules version, and a per-room hash chain of kill receipts.
package audit

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"fishshoot.dev/server/config"
)

// Rules identifies one rules revision.
type Rules struct {
	Hash    [32]byte
	Version uint32
}

// canonicalRules is the subset of the config whose change must change
// the rules hash: everything that influences an outcome or a payout.
// Field order here is the canonical field order.
type canonicalRules struct {
	Tiers           map[int]config.TierParams     `json:"tier_config"`
	Weapons         map[string]config.WeaponSpec  `json:"weapons"`
	FishSpecies     map[string]config.FishSpecies `json:"fish_species"`
	AOEMaxTargets   int                           `json:"aoe_max_targets"`
	LaserMaxTargets int                           `json:"laser_max_targets"`
	SoftRollK       int64                         `json:"soft_roll_k"`
}

// CanonicalRules serializes the outcome-bearing tables in a stable
// form: JSON with recursively sorted object keys (the encoder sorts
// map keys; struct fields follow declaration order).
func CanonicalRules(cfg config.Config) ([]byte, error) {
	b, err := json.Marshal(canonicalRules{
		Tiers:           cfg.Tiers,
		Weapons:         cfg.Weapons,
		FishSpecies:     cfg.FishSpecies,
		AOEMaxTargets:   cfg.AOEMaxTargets,
		LaserMaxTargets: cfg.LaserMaxTargets,
		SoftRollK:       cfg.SoftRollK,
	})
	if err != nil {
		return nil, fmt.Errorf("audit: canonicalize rules: %w", err)
	}
	return b, nil
}

// HashRules computes the rules hash for a config.
func HashRules(cfg config.Config) ([32]byte, error) {
	b, err := CanonicalRules(cfg)
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(b), nil
}

// Registry tracks the live rules revision and bumps the version
// whenever the hash changes.
type Registry struct {
	current Rules
}

// NewRegistry seeds a registry at version 1 for the given config.
func NewRegistry(cfg config.Config) (*Registry, error) {
	h, err := HashRules(cfg)
	if err != nil {
		return nil, err
	}
	return &Registry{current: Rules{Hash: h, Version: 1}}, nil
}

// ResumeRegistry restores a registry from persisted state, bumping the
// version if the supplied config no longer matches the stored hash.
func ResumeRegistry(cfg config.Config, stored Rules) (*Registry, error) {
	h, err := HashRules(cfg)
	if err != nil {
		return nil, err
	}
	if h == stored.Hash {
		return &Registry{current: stored}, nil
	}
	log.Infof("rules changed, bumping version %d -> %d", stored.Version, stored.Version+1)
	return &Registry{current: Rules{Hash: h, Version: stored.Version + 1}}, nil
}

// Update recomputes the hash for cfg; if it differs from the current
// revision the version is bumped. Returns the live revision and
// whether a bump happened.
func (r *Registry) Update(cfg config.Config) (Rules, bool, error) {
	h, err := HashRules(cfg)
	if err != nil {
		return Rules{}, false, err
	}
	if h == r.current.Hash {
		return r.current, false, nil
	}
	r.current = Rules{Hash: h, Version: r.current.Version + 1}
	return r.current, true, nil
}

// Current returns the live rules revision.
func (r *Registry) Current() Rules { return r.current }
