package audit

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	"fishshoot.dev/server/wire"
)

var (
	// ErrDuplicateKill marks a second receipt for an already settled
	// target.
	ErrDuplicateKill = errors.New("audit: duplicate kill receipt for target")

	// ErrChainBroken marks a prev-hash mismatch during verification.
	ErrChainBroken = errors.New("audit: receipt chain broken")
)

// Contributor is one player's slice of a kill payout.
type Contributor struct {
	Player   wire.PlayerID
	AmountFp int64
}

// Receipt is the immutable settlement record for one kill. Receipts in
// a room form a hash chain: each one commits to the previous receipt's
// hash, the rules revision it was paid under, and the room's spawn seed
// commitment.
type Receipt struct {
	Seq            uint64
	TargetID       uint32
	RewardFp       int64
	RulesHash      [32]byte
	RulesVersion   uint32
	SeedCommitment [32]byte
	PrevHash       [32]byte
	Contributors   []Contributor
}

// Encode serializes a receipt. Layout, all big-endian:
//
//	seq u64 | target u32 | reward i64 | rules_hash 32 | rules_version u32 |
//	seed_commitment 32 | prev 32 | count u16 | (player 16 | amount i64)*
func (r *Receipt) Encode() []byte {
	buf := make([]byte, 0, 8+4+8+32+4+32+32+2+len(r.Contributors)*24)
	buf = binary.BigEndian.AppendUint64(buf, r.Seq)
	buf = binary.BigEndian.AppendUint32(buf, r.TargetID)
	buf = binary.BigEndian.AppendUint64(buf, uint64(r.RewardFp))
	buf = append(buf, r.RulesHash[:]...)
	buf = binary.BigEndian.AppendUint32(buf, r.RulesVersion)
	buf = append(buf, r.SeedCommitment[:]...)
	buf = append(buf, r.PrevHash[:]...)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(r.Contributors)))
	for _, c := range r.Contributors {
		buf = append(buf, c.Player[:]...)
		buf = binary.BigEndian.AppendUint64(buf, uint64(c.AmountFp))
	}
	return buf
}

// DecodeReceipt parses a receipt produced by Encode.
func DecodeReceipt(b []byte) (*Receipt, error) {
	const fixed = 8 + 4 + 8 + 32 + 4 + 32 + 32 + 2
	if len(b) < fixed {
		return nil, fmt.Errorf("audit: receipt too short: %d bytes", len(b))
	}
	var r Receipt
	off := 0
	r.Seq = binary.BigEndian.Uint64(b[off:])
	off += 8
	r.TargetID = binary.BigEndian.Uint32(b[off:])
	off += 4
	r.RewardFp = int64(binary.BigEndian.Uint64(b[off:]))
	off += 8
	copy(r.RulesHash[:], b[off:])
	off += 32
	r.RulesVersion = binary.BigEndian.Uint32(b[off:])
	off += 4
	copy(r.SeedCommitment[:], b[off:])
	off += 32
	copy(r.PrevHash[:], b[off:])
	off += 32
	count := int(binary.BigEndian.Uint16(b[off:]))
	off += 2
	if len(b) != fixed+count*24 {
		return nil, fmt.Errorf("audit: receipt length %d does not match %d contributors", len(b), count)
	}
	r.Contributors = make([]Contributor, count)
	for i := range r.Contributors {
		copy(r.Contributors[i].Player[:], b[off:])
		off += 16
		r.Contributors[i].AmountFp = int64(binary.BigEndian.Uint64(b[off:]))
		off += 8
	}
	return &r, nil
}

// Hash is the chain link value for this receipt.
func (r *Receipt) Hash() [32]byte {
	return sha256.Sum256(r.Encode())
}

// Chain builds the receipt sequence for one room. The zero-valued
// genesis prev hash anchors the chain.
type Chain struct {
	roomID         string
	seedCommitment [32]byte
	nextSeq        uint64
	tipHash        [32]byte
	seen           map[uint32]struct{}
}

// NewChain starts an empty chain for a room.
func NewChain(roomID string, seedCommitment [32]byte) *Chain {
	return &Chain{
		roomID:         roomID,
		seedCommitment: seedCommitment,
		seen:           make(map[uint32]struct{}),
	}
}

// Append mints the next receipt in the chain. At most one receipt may
// ever exist per target.
func (c *Chain) Append(targetID uint32, rewardFp int64, rules Rules, contributors []Contributor) (*Receipt, error) {
	if _, dup := c.seen[targetID]; dup {
		return nil, fmt.Errorf("%w %d", ErrDuplicateKill, targetID)
	}
	if rewardFp <= 0 {
		return nil, fmt.Errorf("audit: reward must be > 0, got %d", rewardFp)
	}
	if len(contributors) == 0 {
		return nil, errors.New("audit: receipt needs at least one contributor")
	}
	var sum int64
	for _, ct := range contributors {
		sum += ct.AmountFp
	}
	if sum != rewardFp {
		return nil, fmt.Errorf("audit: contributor amounts sum to %d, reward is %d", sum, rewardFp)
	}
	r := &Receipt{
		Seq:            c.nextSeq,
		TargetID:       targetID,
		RewardFp:       rewardFp,
		RulesHash:      rules.Hash,
		RulesVersion:   rules.Version,
		SeedCommitment: c.seedCommitment,
		PrevHash:       c.tipHash,
		Contributors:   append([]Contributor(nil), contributors...),
	}
	c.seen[targetID] = struct{}{}
	c.nextSeq++
	c.tipHash = r.Hash()
	log.Debugf("room %s receipt seq=%d target=%d reward=%d", c.roomID, r.Seq, r.TargetID, r.RewardFp)
	return r, nil
}

// Tip returns the hash of the most recent receipt, or the zero anchor
// for an empty chain.
func (c *Chain) Tip() [32]byte { return c.tipHash }

// Len returns the number of receipts minted so far.
func (c *Chain) Len() uint64 { return c.nextSeq }

// VerifyChain checks sequence numbering, prev-hash linkage, the
// single-receipt-per-target rule, and a consistent seed commitment over
// a receipt slice ordered by Seq.
func VerifyChain(receipts []*Receipt) error {
	var prev [32]byte
	seen := make(map[uint32]struct{}, len(receipts))
	for i, r := range receipts {
		if r.Seq != uint64(i) {
			return fmt.Errorf("%w: receipt %d carries seq %d", ErrChainBroken, i, r.Seq)
		}
		if !bytes.Equal(r.PrevHash[:], prev[:]) {
			return fmt.Errorf("%w: prev mismatch at seq %d", ErrChainBroken, r.Seq)
		}
		if _, dup := seen[r.TargetID]; dup {
			return fmt.Errorf("%w %d at seq %d", ErrDuplicateKill, r.TargetID, r.Seq)
		}
		if i > 0 && r.SeedCommitment != receipts[0].SeedCommitment {
			return fmt.Errorf("%w: seed commitment changed at seq %d", ErrChainBroken, r.Seq)
		}
		seen[r.TargetID] = struct{}{}
		prev = r.Hash()
	}
	return nil
}
