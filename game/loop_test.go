package game

import (
	"context"
	"testing"
	"time"
)

type countingHandler struct {
	steps      int
	broadcasts int
	lastTick   uint64
}

func (h *countingHandler) HandleStep(tick uint64, res StepResult) {
	h.steps++
	if tick != h.lastTick+1 {
		panic("tick not contiguous")
	}
	h.lastTick = tick
}

func (h *countingHandler) Broadcast(tick uint64) {
	h.broadcasts++
	if tick%BroadcastEvery != 0 {
		panic("broadcast off the network boundary")
	}
}

func TestRunPacesTicksAndBroadcasts(t *testing.T) {
	w := newTestWorld(1)
	h := &countingHandler{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		Run(ctx, w, h)
		close(done)
	}()

	time.Sleep(250 * time.Millisecond)
	cancel()
	<-done

	// 250ms at 60 Hz is 15 ticks; allow generous scheduling slack in
	// both directions.
	if h.steps < 5 || h.steps > 40 {
		t.Fatalf("steps in 250ms: %d", h.steps)
	}
	if h.broadcasts == 0 {
		t.Fatalf("no broadcasts")
	}
	if h.broadcasts > h.steps/BroadcastEvery+1 {
		t.Fatalf("broadcasts %d for %d steps", h.broadcasts, h.steps)
	}
}
