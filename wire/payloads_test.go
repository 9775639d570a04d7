package wire

import (
	"bytes"
	"testing"

	"github.com/davecgh/go-spew/spew"
)

var testPlayer = PlayerID{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10}

func TestFixedPayloadSizes(t *testing.T) {
	cases := []struct {
		id   PacketID
		b    []byte
		want int
	}{
		{PacketShotFired, ShotFired{Seq: 1, Weapon: "1x"}.Encode(), 53},
		{PacketBalanceUpdate, BalanceUpdate{Player: testPlayer}.Encode(), 37},
		{PacketWeaponSwitch, WeaponSwitch{Weapon: "laser"}.Encode(), 25},
		{PacketFishSpawn, FishSpawn{TargetID: 7}.Encode(), 54},
		{PacketPlayerJoin, PlayerJoin{Player: testPlayer, Name: "ann"}.Encode(), 66},
		{PacketRoomCreate, RoomCreate{Name: "ann"}.Encode(), 41},
		{PacketRoomJoin, RoomJoin{Name: "ann", RoomCode: "ABC123"}.Encode(), 46},
		{PacketGameStart, GameStart{ClientTS: 5}.Encode(), 8},
		{PacketTimeSyncPing, TimeSyncPing{Seq: 1}.Encode(), 12},
		{PacketTimeSyncPong, TimeSyncPong{Seq: 1}.Encode(), 20},
	}
	for _, tc := range cases {
		if len(tc.b) != tc.want {
			t.Errorf("%s: encoded %d bytes, want %d", tc.id, len(tc.b), tc.want)
		}
		if err := CheckPayloadSize(tc.id, len(tc.b)); err != nil {
			t.Errorf("%s: size policy rejects own encoding: %v", tc.id, err)
		}
	}
}

func TestHandshakePayloadSizes(t *testing.T) {
	if HandshakeRequestSize != 98 {
		t.Fatalf("handshake request size %d, want 98", HandshakeRequestSize)
	}
	if HandshakeResponseSize != 145 {
		t.Fatalf("handshake response size %d, want 145", HandshakeResponseSize)
	}
}

func TestShotFiredRoundTrip(t *testing.T) {
	in := ShotFired{
		Seq:      42,
		ClientTS: 1_723_456_789_012,
		Weapon:   "aoe",
		OriginX:  12.5,
		OriginZ:  -3.25,
		TargetX:  100.0,
		TargetZ:  55.5,
		Flags:    1,
	}
	out, err := DecodeShotFired(in.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out != in {
		t.Fatalf("roundtrip mismatch:\n%s", spew.Sdump(in, out))
	}
}

func TestHitResultRoundTrip(t *testing.T) {
	in := HitResult{
		Seq:      9,
		BulletID: 77,
		TargetID: 5,
		Kill:     true,
		Reason:   3,
		RewardFp: 4500,
		BalanceFp: 1_000_000,
		Contributors: []HitContribution{
			{Player: testPlayer, AmountFp: 3000},
			{Player: PlayerID{0xff}, AmountFp: 1500},
		},
	}
	b := in.Encode()
	if len(b) != 32+2*24 {
		t.Fatalf("encoded %d bytes, want %d", len(b), 32+2*24)
	}
	out, err := DecodeHitResult(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Kill != in.Kill || out.RewardFp != in.RewardFp || len(out.Contributors) != 2 {
		t.Fatalf("roundtrip mismatch:\n%s", spew.Sdump(in, out))
	}
	if out.Contributors[1].AmountFp != 1500 {
		t.Fatalf("contributor amount mismatch: %d", out.Contributors[1].AmountFp)
	}
}

func TestRoomSnapshotRoundTrip(t *testing.T) {
	in := RoomSnapshot{
		Tick:         1200,
		ServerTS:     1_723_456_789_012,
		RoomCode:     "XK92QA",
		Phase:        1,
		BossActive:   true,
		RulesVersion: 3,
		Fish: []FishRecord{
			{TargetID: 1, Species: 5, Tier: 5, HP: 250, MaxHP: 280, X: 10, Z: 20, VX: -1, VZ: 0.5, Rotation: 1.5},
		},
		Bullets: []BulletRecord{
			{BulletID: 9, Owner: testPlayer, X: 1, Z: 2, VX: 3, VZ: 4},
		},
		Players: []PlayerRecord{
			{Player: testPlayer, BalanceFp: 987_654, Weapon: "5x"},
		},
	}
	b := in.Encode()
	if len(b) != 32+30+36+32 {
		t.Fatalf("encoded %d bytes, want %d", len(b), 32+30+36+32)
	}
	out, err := DecodeRoomSnapshot(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.RoomCode != in.RoomCode || !out.BossActive || len(out.Fish) != 1 || len(out.Bullets) != 1 || len(out.Players) != 1 {
		t.Fatalf("roundtrip mismatch:\n%s", spew.Sdump(in, out))
	}
	if out.Fish[0] != in.Fish[0] || out.Bullets[0] != in.Bullets[0] || out.Players[0] != in.Players[0] {
		t.Fatalf("record mismatch:\n%s", spew.Sdump(in, out))
	}
}

func TestEmptyRoomSnapshotIsMinimumSize(t *testing.T) {
	b := RoomSnapshot{RoomCode: "AAAAAA"}.Encode()
	if len(b) != 32 {
		t.Fatalf("empty snapshot %d bytes, want 32", len(b))
	}
	if err := CheckPayloadSize(PacketRoomSnapshot, len(b)); err != nil {
		t.Fatalf("size policy rejects empty snapshot: %v", err)
	}
}

func TestFishDeathRoundTrip(t *testing.T) {
	in := FishDeath{
		TargetID:     33,
		Killer:       testPlayer,
		RewardFp:     180_000,
		Tier:         6,
		Reason:       2,
		RulesVersion: 1,
		Contributors: []HitContribution{{Player: testPlayer, AmountFp: 180_000}},
	}
	b := in.Encode()
	if len(b) != 36+24 {
		t.Fatalf("encoded %d bytes, want %d", len(b), 36+24)
	}
	out, err := DecodeFishDeath(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.TargetID != 33 || out.Killer != testPlayer || len(out.Contributors) != 1 {
		t.Fatalf("roundtrip mismatch:\n%s", spew.Sdump(in, out))
	}
}

func TestErrorPacketRoundTrip(t *testing.T) {
	in := ErrorPacket{Code: RATE_LIMITED, Msg: "slow down"}
	out, err := DecodeErrorPacket(in.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out != in {
		t.Fatalf("roundtrip mismatch: %+v != %+v", out, in)
	}
	// Bare code, no message: exactly the 4-byte minimum.
	b := ErrorPacket{Code: INVALID_NONCE}.Encode()
	if len(b) != 4 {
		t.Fatalf("bare error %d bytes, want 4", len(b))
	}
}

func TestTruncatedPayloadRejected(t *testing.T) {
	b := ShotFired{Seq: 1, Weapon: "1x"}.Encode()
	if _, err := DecodeShotFired(b[:len(b)-1]); err == nil || err.Code != PAYLOAD_TOO_SMALL {
		t.Fatalf("expected PAYLOAD_TOO_SMALL, got %v", err)
	}
}

func TestTrailingBytesRejected(t *testing.T) {
	b := append(GameStart{ClientTS: 1}.Encode(), 0x00)
	if _, err := DecodeGameStart(b); err == nil || err.Code != PAYLOAD_TOO_LARGE {
		t.Fatalf("expected PAYLOAD_TOO_LARGE, got %v", err)
	}
}

func TestFixedStringPadding(t *testing.T) {
	b := RoomJoin{Name: "a", RoomCode: "AB12"}.Encode()
	out, err := DecodeRoomJoin(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Name != "a" || out.RoomCode != "AB12" {
		t.Fatalf("padding not trimmed: %+v", out)
	}
	// Overlong names truncate to the declared width.
	long := RoomJoin{Name: string(bytes.Repeat([]byte{'x'}, 64)), RoomCode: "ABCDEF"}
	out2, err := DecodeRoomJoin(long.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out2.Name) != PlayerNameSize {
		t.Fatalf("name width %d, want %d", len(out2.Name), PlayerNameSize)
	}
}

func TestUnknownPacketIDRejected(t *testing.T) {
	if err := CheckPayloadSize(PacketID(0x0099), 10); err == nil || err.Code != UNKNOWN_PACKET_ID {
		t.Fatalf("expected UNKNOWN_PACKET_ID, got %v", err)
	}
}

func TestSizePolicyBounds(t *testing.T) {
	if err := CheckPayloadSize(PacketShotFired, 54); err == nil || err.Code != PAYLOAD_TOO_LARGE {
		t.Fatalf("expected PAYLOAD_TOO_LARGE, got %v", err)
	}
	if err := CheckPayloadSize(PacketShotFired, 52); err == nil || err.Code != PAYLOAD_TOO_SMALL {
		t.Fatalf("expected PAYLOAD_TOO_SMALL, got %v", err)
	}
	if err := CheckPayloadSize(PacketHitResult, 31); err == nil || err.Code != PAYLOAD_TOO_SMALL {
		t.Fatalf("expected PAYLOAD_TOO_SMALL, got %v", err)
	}
	if err := CheckPayloadSize(PacketError, 261); err == nil || err.Code != PAYLOAD_TOO_LARGE {
		t.Fatalf("expected PAYLOAD_TOO_LARGE, got %v", err)
	}
}
