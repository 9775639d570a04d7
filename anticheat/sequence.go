package anticheat

// MaxSeqGap bounds how far ahead of the high-water mark a sequence
// number may jump. It tolerates packet loss without letting a client
// burn through the 32-bit space.
const MaxSeqGap = 100

// SeqResult classifies one sequence number.
type SeqResult uint8

const (
	SeqOK SeqResult = iota
	SeqReplay
	SeqGapTooLarge
)

func (r SeqResult) String() string {
	switch r {
	case SeqOK:
		return "ok"
	case SeqReplay:
		return "replay_detected"
	case SeqGapTooLarge:
		return "seq_gap_too_large"
	default:
		return "unknown"
	}
}

// SequenceTracker enforces strictly increasing per-session sequence
// numbers with a bounded gap. Owned by one connection, no locking.
type SequenceTracker struct {
	max        uint32
	violations int
}

// Validate accepts or rejects one sequence number. On acceptance the
// high-water mark advances; rejections leave it untouched.
func (t *SequenceTracker) Validate(seq uint32) SeqResult {
	if seq <= t.max {
		t.violations++
		return SeqReplay
	}
	if seq-t.max > MaxSeqGap {
		t.violations++
		return SeqGapTooLarge
	}
	t.max = seq
	return SeqOK
}

// Max returns the high-water mark.
func (t *SequenceTracker) Max() uint32 { return t.max }

// Violations reports rejected sequence numbers to date.
func (t *SequenceTracker) Violations() int { return t.violations }
