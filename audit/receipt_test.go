package audit

import (
	"crypto/sha256"
	"errors"
	"testing"

	"github.com/davecgh/go-spew/spew"

	"fishshoot.dev/server/wire"
)

var (
	alice = wire.PlayerID{0x01}
	bob   = wire.PlayerID{0x02}

	testRules = Rules{Hash: sha256.Sum256([]byte("rules-v1")), Version: 1}
	testSeed  = sha256.Sum256([]byte("seed"))
)

func TestReceiptEncodeRoundtrip(t *testing.T) {
	r := &Receipt{
		Seq:            3,
		TargetID:       42,
		RewardFp:       4500,
		RulesHash:      testRules.Hash,
		RulesVersion:   testRules.Version,
		SeedCommitment: testSeed,
		PrevHash:       sha256.Sum256([]byte("prev")),
		Contributors: []Contributor{
			{Player: alice, AmountFp: 3000},
			{Player: bob, AmountFp: 1500},
		},
	}
	got, err := DecodeReceipt(r.Encode())
	if err != nil {
		t.Fatal(err)
	}
	if got.Hash() != r.Hash() {
		t.Fatalf("roundtrip changed the receipt:\n%s\nvs\n%s", spew.Sdump(got), spew.Sdump(r))
	}
}

func TestDecodeReceiptRejectsBadLengths(t *testing.T) {
	r := &Receipt{RewardFp: 1, Contributors: []Contributor{{Player: alice, AmountFp: 1}}}
	enc := r.Encode()
	if _, err := DecodeReceipt(enc[:len(enc)-1]); err == nil {
		t.Fatalf("truncated receipt decoded")
	}
	if _, err := DecodeReceipt(append(enc, 0x00)); err == nil {
		t.Fatalf("oversized receipt decoded")
	}
	if _, err := DecodeReceipt(nil); err == nil {
		t.Fatalf("empty receipt decoded")
	}
}

func TestChainLinksReceipts(t *testing.T) {
	c := NewChain("room-1", testSeed)

	r0, err := c.Append(10, 4500, testRules, []Contributor{{Player: alice, AmountFp: 4500}})
	if err != nil {
		t.Fatal(err)
	}
	if r0.Seq != 0 || r0.PrevHash != [32]byte{} {
		t.Fatalf("genesis receipt: seq=%d prev=%x", r0.Seq, r0.PrevHash)
	}

	r1, err := c.Append(11, 10_920, testRules, []Contributor{
		{Player: alice, AmountFp: 6000},
		{Player: bob, AmountFp: 4920},
	})
	if err != nil {
		t.Fatal(err)
	}
	if r1.PrevHash != r0.Hash() {
		t.Fatalf("chain not linked")
	}
	if c.Tip() != r1.Hash() || c.Len() != 2 {
		t.Fatalf("tip/len out of step")
	}

	if err := VerifyChain([]*Receipt{r0, r1}); err != nil {
		t.Fatalf("valid chain rejected: %v", err)
	}
}

func TestChainRejectsSecondKillForTarget(t *testing.T) {
	c := NewChain("room-1", testSeed)
	if _, err := c.Append(10, 100, testRules, []Contributor{{Player: alice, AmountFp: 100}}); err != nil {
		t.Fatal(err)
	}
	_, err := c.Append(10, 100, testRules, []Contributor{{Player: alice, AmountFp: 100}})
	if !errors.Is(err, ErrDuplicateKill) {
		t.Fatalf("duplicate target: %v", err)
	}
}

func TestChainRejectsBadPayoutSplit(t *testing.T) {
	c := NewChain("room-1", testSeed)
	_, err := c.Append(10, 100, testRules, []Contributor{{Player: alice, AmountFp: 99}})
	if err == nil {
		t.Fatalf("short contributor split accepted")
	}
	if _, err := c.Append(10, 100, testRules, nil); err == nil {
		t.Fatalf("empty contributor list accepted")
	}
	if _, err := c.Append(10, 0, testRules, []Contributor{{Player: alice}}); err == nil {
		t.Fatalf("zero reward accepted")
	}
}

func TestVerifyChainDetectsTampering(t *testing.T) {
	c := NewChain("room-1", testSeed)
	var receipts []*Receipt
	for i := uint32(0); i < 5; i++ {
		r, err := c.Append(100+i, 4500, testRules, []Contributor{{Player: alice, AmountFp: 4500}})
		if err != nil {
			t.Fatal(err)
		}
		receipts = append(receipts, r)
	}
	if err := VerifyChain(receipts); err != nil {
		t.Fatal(err)
	}

	// Inflate one payout mid-chain. Its own hash changes, so the next
	// receipt's prev no longer matches.
	receipts[2].RewardFp += 1000
	if err := VerifyChain(receipts); !errors.Is(err, ErrChainBroken) {
		t.Fatalf("tampered payout: %v", err)
	}
	receipts[2].RewardFp -= 1000

	// Drop a receipt: sequence numbering breaks.
	if err := VerifyChain(append(receipts[:2:2], receipts[3:]...)); !errors.Is(err, ErrChainBroken) {
		t.Fatalf("dropped receipt: %v", err)
	}

	// Duplicate target across receipts.
	receipts[3].TargetID = receipts[1].TargetID
	err := VerifyChain(receipts)
	if !errors.Is(err, ErrDuplicateKill) && !errors.Is(err, ErrChainBroken) {
		t.Fatalf("duplicate target in stored chain: %v", err)
	}
}
