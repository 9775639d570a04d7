package rtp

import (
	"fmt"

	"fishshoot.dev/server/config"
	"fishshoot.dev/server/wire"
)

// Candidate is one target inside an area or beam fire event. The caller
// orders candidates by the weapon's rule before registration: area fire
// by distance ascending, beam fire by beam index.
type Candidate struct {
	Target uint32
	Tier   int
	// Distance from the impact point in integer world units. Only area
	// weighting reads it.
	Distance int64
}

// Allocation records how one fire event's weight and budget were split,
// for audit receipts and tests. Weights always sum to exactly
// config.WeightScale, budgets to exactly BudgetTotalFp, and costs to
// exactly the weapon cost.
type Allocation struct {
	Weights       []int64
	BudgetsFp     []int64
	CostsFp       []int64
	RTPWeightedFp int64
	BudgetTotalFp int64
}

// RegisterMulti splits one area/beam fire event across its candidates
// and registers each slice as a pseudo-shot. Class is the weapon class
// from config ("aoe" or "laser"); candidates beyond the class cap are
// dropped from the tail.
func (e *Engine) RegisterMulti(player wire.PlayerID, weaponCostFp int64, class string, candidates []Candidate) ([]Outcome, Allocation, error) {
	if weaponCostFp <= 0 {
		return nil, Allocation{}, fmt.Errorf("rtp: non-positive weapon cost %d", weaponCostFp)
	}
	if len(candidates) == 0 {
		return nil, Allocation{}, fmt.Errorf("rtp: no candidates")
	}

	var limit int
	switch class {
	case "aoe":
		limit = e.aoeMax
	case "laser":
		limit = e.laserMax
	default:
		return nil, Allocation{}, fmt.Errorf("rtp: class %q is not multi-target", class)
	}
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	tiers := make([]config.TierParams, len(candidates))
	for i, c := range candidates {
		tp, ok := e.tiers[c.Tier]
		if !ok {
			return nil, Allocation{}, fmt.Errorf("rtp: unknown tier %d", c.Tier)
		}
		tiers[i] = tp
	}

	alloc := e.allocate(weaponCostFp, class, candidates, tiers)

	outcomes := make([]Outcome, len(candidates))
	for i, c := range candidates {
		outcomes[i] = e.registerCredit(player, c.Target, alloc.CostsFp[i], alloc.BudgetsFp[i], tiers[i])
	}
	return outcomes, alloc, nil
}

// allocate computes the integer weight, cost, and budget split. Every
// division truncates; the final index absorbs the residue so each sum
// is exact.
func (e *Engine) allocate(weaponCostFp int64, class string, candidates []Candidate, tiers []config.TierParams) Allocation {
	n := len(candidates)
	raw := make([]int64, n)
	var rawSum int64
	for i, c := range candidates {
		switch class {
		case "aoe":
			d := c.Distance
			if d < 1 {
				d = 1
			}
			raw[i] = config.WeightScale / d
		default: // laser
			raw[i] = config.WeightScale / int64(i+1)
		}
		rawSum += raw[i]
	}
	if rawSum == 0 {
		rawSum = 1
	}

	weights := make([]int64, n)
	var wSum int64
	for i := 0; i < n-1; i++ {
		weights[i] = raw[i] * config.WeightScale / rawSum
		wSum += weights[i]
	}
	weights[n-1] = config.WeightScale - wSum

	var rtpWeighted int64
	for i, w := range weights {
		rtpWeighted += w * tiers[i].RTPFp / config.WeightScale
	}
	budgetTotal := weaponCostFp * rtpWeighted / config.RTPScale

	budgets := make([]int64, n)
	costs := make([]int64, n)
	var bSum, cSum int64
	for i := 0; i < n-1; i++ {
		budgets[i] = weights[i] * budgetTotal / config.WeightScale
		costs[i] = weights[i] * weaponCostFp / config.WeightScale
		bSum += budgets[i]
		cSum += costs[i]
	}
	budgets[n-1] = budgetTotal - bSum
	costs[n-1] = weaponCostFp - cSum

	return Allocation{
		Weights:       weights,
		BudgetsFp:     budgets,
		CostsFp:       costs,
		RTPWeightedFp: rtpWeighted,
		BudgetTotalFp: budgetTotal,
	}
}
