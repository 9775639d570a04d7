package rtp

import (
	"testing"

	"github.com/davecgh/go-spew/spew"

	"fishshoot.dev/server/config"
)

// Area fire over three targets at tiers 1..3 and distances 10/20/30:
// the split must conserve weight, budget, and cost exactly, with the
// closest target weighted heaviest.
func TestAOEAllocationConservation(t *testing.T) {
	e := testEngine(t, alwaysFail)
	weaponCost := 5 * config.MoneyScale

	cands := []Candidate{
		{Target: 1, Tier: 1, Distance: 10},
		{Target: 2, Tier: 2, Distance: 20},
		{Target: 3, Tier: 3, Distance: 30},
	}
	outcomes, alloc, err := e.RegisterMulti(playerA, weaponCost, "aoe", cands)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if len(outcomes) != 3 {
		t.Fatalf("outcomes: %d", len(outcomes))
	}

	var wSum, bSum, cSum int64
	for i := range alloc.Weights {
		wSum += alloc.Weights[i]
		bSum += alloc.BudgetsFp[i]
		cSum += alloc.CostsFp[i]
	}
	if wSum != config.WeightScale {
		t.Errorf("weight sum %d, want %d", wSum, config.WeightScale)
	}
	if bSum != alloc.BudgetTotalFp {
		t.Errorf("budget sum %d, want %d", bSum, alloc.BudgetTotalFp)
	}
	if cSum != weaponCost {
		t.Errorf("cost sum %d, want %d", cSum, weaponCost)
	}
	if want := weaponCost * alloc.RTPWeightedFp / config.RTPScale; alloc.BudgetTotalFp != want {
		t.Errorf("budget total %d, want %d", alloc.BudgetTotalFp, want)
	}
	if !(alloc.Weights[0] > alloc.Weights[1] && alloc.Weights[1] > alloc.Weights[2]) {
		t.Errorf("weights not distance-ordered:\n%s", spew.Sdump(alloc))
	}
}

func TestAOEAllocationExactValues(t *testing.T) {
	e := testEngine(t, alwaysFail)
	cands := []Candidate{
		{Target: 1, Tier: 1, Distance: 10},
		{Target: 2, Tier: 2, Distance: 20},
		{Target: 3, Tier: 3, Distance: 30},
	}
	_, alloc, err := e.RegisterMulti(playerA, 5*config.MoneyScale, "aoe", cands)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	wantW := []int64{545455, 272727, 181818}
	for i, w := range wantW {
		if alloc.Weights[i] != w {
			t.Fatalf("weights %v, want %v", alloc.Weights, wantW)
		}
	}
	if alloc.RTPWeightedFp != 9062 {
		t.Errorf("rtp weighted %d, want 9062", alloc.RTPWeightedFp)
	}
	if alloc.BudgetTotalFp != 4531 {
		t.Errorf("budget total %d, want 4531", alloc.BudgetTotalFp)
	}
}

func TestLaserWeightsByBeamIndex(t *testing.T) {
	e := testEngine(t, alwaysFail)
	cands := []Candidate{
		{Target: 1, Tier: 2},
		{Target: 2, Tier: 2},
		{Target: 3, Tier: 2},
	}
	_, alloc, err := e.RegisterMulti(playerA, 10*config.MoneyScale, "laser", cands)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if !(alloc.Weights[0] > alloc.Weights[1] && alloc.Weights[1] > alloc.Weights[2]) {
		t.Errorf("beam weights not index-ordered: %v", alloc.Weights)
	}
	var wSum int64
	for _, w := range alloc.Weights {
		wSum += w
	}
	if wSum != config.WeightScale {
		t.Errorf("weight sum %d", wSum)
	}
}

func TestMultiTargetCapTrimsTail(t *testing.T) {
	cfg := config.DefaultConfig()
	e := testEngine(t, alwaysFail)

	cands := make([]Candidate, 12)
	for i := range cands {
		cands[i] = Candidate{Target: uint32(i + 1), Tier: 1, Distance: int64(10 + i)}
	}
	outcomes, _, err := e.RegisterMulti(playerA, 5*config.MoneyScale, "aoe", cands)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if len(outcomes) != cfg.AOEMaxTargets {
		t.Fatalf("outcomes %d, want %d", len(outcomes), cfg.AOEMaxTargets)
	}
	// The trimmed tail must have no engine state.
	if e.StateCount() != cfg.AOEMaxTargets {
		t.Fatalf("state count %d, want %d", e.StateCount(), cfg.AOEMaxTargets)
	}
}

func TestSingleCandidateTakesFullWeight(t *testing.T) {
	e := testEngine(t, alwaysFail)
	_, alloc, err := e.RegisterMulti(playerA, 5*config.MoneyScale, "aoe", []Candidate{{Target: 1, Tier: 1, Distance: 500}})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if alloc.Weights[0] != config.WeightScale {
		t.Fatalf("weight %d, want %d", alloc.Weights[0], config.WeightScale)
	}
	if alloc.CostsFp[0] != 5*config.MoneyScale {
		t.Fatalf("cost %d", alloc.CostsFp[0])
	}
}

// Conservation holds for arbitrary candidate mixes, not just the
// handpicked cases.
func TestAllocationConservationSweep(t *testing.T) {
	e := testEngine(t, alwaysFail)
	roller := NewSeededRoller(0xabcd)

	for round := 0; round < 500; round++ {
		n := int(roller.next()%8) + 1
		cands := make([]Candidate, n)
		for i := range cands {
			cands[i] = Candidate{
				Target:   uint32(round*100 + i),
				Tier:     int(roller.next()%6) + 1,
				Distance: int64(roller.next() % 2_000_000),
			}
		}
		cost := (int64(roller.next()%20) + 1) * config.MoneyScale
		_, alloc, err := e.RegisterMulti(playerA, cost, "aoe", cands)
		if err != nil {
			t.Fatalf("round %d: %v", round, err)
		}
		var wSum, bSum, cSum int64
		for i := range alloc.Weights {
			wSum += alloc.Weights[i]
			bSum += alloc.BudgetsFp[i]
			cSum += alloc.CostsFp[i]
		}
		if wSum != config.WeightScale || bSum != alloc.BudgetTotalFp || cSum != cost {
			t.Fatalf("round %d: sums drifted:\n%s", round, spew.Sdump(alloc))
		}
	}
}

func TestRegisterMultiRejectsBadInput(t *testing.T) {
	e := testEngine(t, alwaysFail)
	cands := []Candidate{{Target: 1, Tier: 1, Distance: 1}}
	if _, _, err := e.RegisterMulti(playerA, 0, "aoe", cands); err == nil {
		t.Fatalf("zero cost accepted")
	}
	if _, _, err := e.RegisterMulti(playerA, 5000, "aoe", nil); err == nil {
		t.Fatalf("empty candidates accepted")
	}
	if _, _, err := e.RegisterMulti(playerA, 5000, "single", cands); err == nil {
		t.Fatalf("single-target class accepted")
	}
	if _, _, err := e.RegisterMulti(playerA, 5000, "aoe", []Candidate{{Target: 1, Tier: 99, Distance: 1}}); err == nil {
		t.Fatalf("unknown tier accepted")
	}
}
