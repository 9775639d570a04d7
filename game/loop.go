package game

import (
	"context"
	"time"
)

// Handler receives the results of each simulation tick. HandleStep runs
// once per tick; Broadcast runs on the 20 Hz network boundary after the
// tick that landed on it.
type Handler interface {
	HandleStep(tick uint64, res StepResult)
	Broadcast(tick uint64)
}

// Run drives the world on the fixed tick grid until the context is
// cancelled. If the loop falls behind wall clock it replays at most
// MaxCatchUp ticks per iteration and then resynchronizes, so a stall
// never turns into an unbounded burst.
func Run(ctx context.Context, w *World, h Handler) {
	tickDur := time.Second / TickRate
	next := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		loops := 0
		for !time.Now().Before(next) && loops < MaxCatchUp {
			res := w.Step()
			h.HandleStep(w.Tick(), res)
			if w.Tick()%BroadcastEvery == 0 {
				h.Broadcast(w.Tick())
			}
			next = next.Add(tickDur)
			loops++
		}
		if loops == MaxCatchUp && !time.Now().Before(next) {
			// Too far behind to replay; drop the backlog.
			log.Warnf("simulation %v behind, resyncing tick clock", time.Since(next))
			next = time.Now()
		}

		wait := time.Until(next)
		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}
	}
}
