// Package rtp implements the deterministic fixed-point payout engine.
// Every quantity it touches is an integer in fp units; the only source
// of nondeterminism is the injected Roller.
package rtp

import (
	"fmt"

	"fishshoot.dev/server/config"
	"fishshoot.dev/server/wire"
)

// Reason tags the outcome of one registered shot.
type Reason uint8

const (
	ReasonAlreadyKilled Reason = iota
	ReasonBudgetGate
	ReasonRollFailed
	ReasonHardPity
	ReasonSoft
)

func (r Reason) String() string {
	switch r {
	case ReasonAlreadyKilled:
		return "already_killed"
	case ReasonBudgetGate:
		return "budget_gate"
	case ReasonRollFailed:
		return "roll_failed"
	case ReasonHardPity:
		return "hard_pity"
	case ReasonSoft:
		return "soft"
	default:
		return fmt.Sprintf("reason(%d)", uint8(r))
	}
}

// Outcome is the engine's verdict for one credited hit.
type Outcome struct {
	Kill     bool
	Reason   Reason
	RewardFp int64

	// State after the shot, for callers and audit.
	BudgetRemainingFp int64
	SumCostFp         int64
	Shots             int64
}

// Key scopes payout state: independent per player and per target.
type Key struct {
	Player wire.PlayerID
	Target uint32
}

type targetState struct {
	sumCostFp         int64
	budgetRemainingFp int64
	shots             int64
	killed            bool
}

// Engine holds per-(player, target) payout state for one room. It is
// not safe for concurrent use; the owning room serializes access.
type Engine struct {
	tiers     map[int]config.TierParams
	softRollK int64
	aoeMax    int
	laserMax  int
	roller    Roller
	states    map[Key]*targetState
}

// NewEngine builds an engine over a validated config. The roller is the
// only randomness the engine ever consumes.
func NewEngine(cfg config.Config, roller Roller) *Engine {
	return &Engine{
		tiers:     cfg.Tiers,
		softRollK: cfg.SoftRollK,
		aoeMax:    cfg.AOEMaxTargets,
		laserMax:  cfg.LaserMaxTargets,
		roller:    roller,
		states:    make(map[Key]*targetState),
	}
}

// RegisterShot credits one single-target hit and returns the verdict.
// The budget accrues costFp * rtp / RTPScale; a kill is admitted by
// hard pity, or by the soft roll once the budget covers the reward.
func (e *Engine) RegisterShot(player wire.PlayerID, target uint32, costFp int64, tier int) (Outcome, error) {
	tp, ok := e.tiers[tier]
	if !ok {
		return Outcome{}, fmt.Errorf("rtp: unknown tier %d", tier)
	}
	if costFp <= 0 {
		return Outcome{}, fmt.Errorf("rtp: non-positive cost %d", costFp)
	}
	budgetAdd := costFp * tp.RTPFp / config.RTPScale
	return e.registerCredit(player, target, costFp, budgetAdd, tp), nil
}

// registerCredit is the shared per-shot core. budgetAddFp is already
// computed by the caller: derived from cost for single shots, allocated
// by the multi-target splitter for area and beam fire.
func (e *Engine) registerCredit(player wire.PlayerID, target uint32, costFp, budgetAddFp int64, tp config.TierParams) Outcome {
	key := Key{Player: player, Target: target}
	st := e.states[key]
	if st != nil && st.killed {
		return Outcome{
			Reason:            ReasonAlreadyKilled,
			BudgetRemainingFp: st.budgetRemainingFp,
			SumCostFp:         st.sumCostFp,
			Shots:             st.shots,
		}
	}
	if st == nil {
		st = &targetState{}
		e.states[key] = st
	}

	st.sumCostFp += costFp
	st.budgetRemainingFp += budgetAddFp
	st.shots++

	var reason Reason
	switch {
	case st.sumCostFp >= tp.N1Fp:
		reason = ReasonHardPity
	case st.budgetRemainingFp < tp.RewardFp:
		return Outcome{
			Reason:            ReasonBudgetGate,
			BudgetRemainingFp: st.budgetRemainingFp,
			SumCostFp:         st.sumCostFp,
			Shots:             st.shots,
		}
	default:
		pFp := tp.RewardFp * config.PScale / tp.N1Fp * config.KScale / e.softRollK
		if e.roller.Roll() >= pFp {
			return Outcome{
				Reason:            ReasonRollFailed,
				BudgetRemainingFp: st.budgetRemainingFp,
				SumCostFp:         st.sumCostFp,
				Shots:             st.shots,
			}
		}
		reason = ReasonSoft
	}

	// Kill. Controlled debt: the budget may dip below zero here, but
	// never by more than one reward.
	st.budgetRemainingFp -= tp.RewardFp
	st.killed = true
	return Outcome{
		Kill:              true,
		Reason:            reason,
		RewardFp:          tp.RewardFp,
		BudgetRemainingFp: st.budgetRemainingFp,
		SumCostFp:         st.sumCostFp,
		Shots:             st.shots,
	}
}

// ClearTargetStates drops all per-player state for a target. Called
// when the room removes the target, killed or aged out.
func (e *Engine) ClearTargetStates(target uint32) {
	for key := range e.states {
		if key.Target == target {
			delete(e.states, key)
		}
	}
}

// ClearPlayerStates drops all per-target state for a player, used when
// a session leaves the room.
func (e *Engine) ClearPlayerStates(player wire.PlayerID) {
	for key := range e.states {
		if key.Player == player {
			delete(e.states, key)
		}
	}
}

// StateCount reports live (player, target) entries, for eviction
// bookkeeping and tests.
func (e *Engine) StateCount() int { return len(e.states) }
