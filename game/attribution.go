package game

import (
	"bytes"
	"sort"

	"fishshoot.dev/server/wire"
)

// Contribution is one player's share of a kill reward, fp units.
type Contribution struct {
	Player   wire.PlayerID
	DamageFp int64
	AmountFp int64
}

// Attribute splits rewardFp across damage contributors in proportion
// to damage dealt. All arithmetic is integer; the final contributor
// absorbs the rounding residue, so the shares always sum to rewardFp
// exactly. Contributors are ordered by damage descending, ties broken
// by player id, so the split is stable across runs.
func Attribute(rewardFp int64, damageByPlayer map[wire.PlayerID]int) []Contribution {
	if rewardFp <= 0 || len(damageByPlayer) == 0 {
		return nil
	}

	out := make([]Contribution, 0, len(damageByPlayer))
	var total int64
	for player, dmg := range damageByPlayer {
		if dmg <= 0 {
			continue
		}
		out = append(out, Contribution{Player: player, DamageFp: int64(dmg)})
		total += int64(dmg)
	}
	if total == 0 {
		return nil
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DamageFp != out[j].DamageFp {
			return out[i].DamageFp > out[j].DamageFp
		}
		return bytes.Compare(out[i].Player[:], out[j].Player[:]) < 0
	})

	var allocated int64
	for i := range out[:len(out)-1] {
		out[i].AmountFp = out[i].DamageFp * rewardFp / total
		allocated += out[i].AmountFp
	}
	out[len(out)-1].AmountFp = rewardFp - allocated
	return out
}
