package wire

import (
	"bytes"
	"testing"
)

func testKeys() SessionKeys {
	var k SessionKeys
	for i := range k.EncKey {
		k.EncKey[i] = byte(i)
		k.HMACKey[i] = byte(0xff - i)
	}
	return k
}

func TestSealOpenRoundTrip(t *testing.T) {
	keys := testKeys()
	payload := ShotFired{Seq: 1, ClientTS: 99, Weapon: "1x", TargetX: 10, TargetZ: 20}.Encode()

	frame, err := Seal(keys, PacketShotFired, 1, payload)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if len(frame) != HeaderSize+len(payload)+GCMTagSize+HMACSize {
		t.Fatalf("frame length %d", len(frame))
	}

	h, plain, err := Open(keys, frame, 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if h.PacketID != PacketShotFired || h.Nonce != 1 {
		t.Fatalf("header mismatch: %+v", h)
	}
	if !bytes.Equal(plain, payload) {
		t.Fatalf("payload mismatch")
	}
}

func TestOpenRejectsReplayedNonce(t *testing.T) {
	keys := testKeys()
	payload := GameStart{ClientTS: 7}.Encode()
	frame, err := Seal(keys, PacketGameStart, 5, payload)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if _, _, err := Open(keys, frame, 4); err != nil {
		t.Fatalf("first open: %v", err)
	}
	// Same frame again with the advanced watermark: replay.
	if _, _, err := Open(keys, frame, 5); err == nil || err.Code != INVALID_NONCE {
		t.Fatalf("expected INVALID_NONCE, got %v", err)
	}
	// Older nonce likewise.
	if _, _, err := Open(keys, frame, 9); err == nil || err.Code != INVALID_NONCE {
		t.Fatalf("expected INVALID_NONCE, got %v", err)
	}
}

// Every byte mutation anywhere in the frame must produce a fatal error.
func TestEveryByteMutationIsFatal(t *testing.T) {
	keys := testKeys()
	payload := TimeSyncPing{Seq: 3, ClientTS: 123}.Encode()
	frame, err := Seal(keys, PacketTimeSyncPing, 10, payload)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	for i := 0; i < len(frame); i++ {
		mutated := append([]byte(nil), frame...)
		mutated[i] ^= 0x01
		_, _, merr := Open(keys, mutated, 0)
		if merr == nil {
			t.Fatalf("mutation at byte %d accepted", i)
		}
		if !merr.Code.Fatal() {
			t.Fatalf("mutation at byte %d produced non-fatal %v", i, merr)
		}
	}
}

func TestOpenWrongHMACKey(t *testing.T) {
	keys := testKeys()
	payload := GameStart{ClientTS: 1}.Encode()
	frame, err := Seal(keys, PacketGameStart, 1, payload)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	other := keys
	other.HMACKey[0] ^= 1
	if _, _, err := Open(other, frame, 0); err == nil || err.Code != INVALID_HMAC {
		t.Fatalf("expected INVALID_HMAC, got %v", err)
	}
}

func TestOpenWrongEncKey(t *testing.T) {
	keys := testKeys()
	payload := GameStart{ClientTS: 1}.Encode()
	frame, err := Seal(keys, PacketGameStart, 1, payload)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	other := keys
	other.EncKey[0] ^= 1
	// HMAC still verifies (same hmac key), decryption must fail.
	if _, _, err := Open(other, frame, 0); err == nil || err.Code != DECRYPTION_FAILED {
		t.Fatalf("expected DECRYPTION_FAILED, got %v", err)
	}
}

func TestSealEnforcesSizePolicy(t *testing.T) {
	keys := testKeys()
	if _, err := Seal(keys, PacketGameStart, 1, make([]byte, 9)); err == nil || err.Code != PAYLOAD_TOO_LARGE {
		t.Fatalf("expected PAYLOAD_TOO_LARGE, got %v", err)
	}
	if _, err := Seal(keys, PacketID(0x0777), 1, nil); err == nil || err.Code != UNKNOWN_PACKET_ID {
		t.Fatalf("expected UNKNOWN_PACKET_ID, got %v", err)
	}
}

func TestReadFrameRejectsOversizeBeforeBody(t *testing.T) {
	h := Header{Version: ProtoVersion, PacketID: PacketHitResult, Length: MaxPayloadBytes + 1, Nonce: 1}
	// Header only; a correct implementation must reject on the declared
	// length without waiting for a body.
	_, err := ReadFrame(bytes.NewReader(h.Marshal()))
	if err == nil || err.Code != PAYLOAD_TOO_LARGE {
		t.Fatalf("expected PAYLOAD_TOO_LARGE, got %v", err)
	}
}

func TestReadFrameRoundTrip(t *testing.T) {
	keys := testKeys()
	payload := WeaponSwitch{Seq: 2, Weapon: "2x"}.Encode()
	frame, err := Seal(keys, PacketWeaponSwitch, 2, payload)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	var buf bytes.Buffer
	if err := WriteFrame(&buf, frame); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, rerr := ReadFrame(&buf)
	if rerr != nil {
		t.Fatalf("read: %v", rerr)
	}
	if !bytes.Equal(got, frame) {
		t.Fatalf("frame bytes changed in transit")
	}
}

func TestHeaderParseRejections(t *testing.T) {
	good := Header{Version: ProtoVersion, PacketID: PacketGameStart, Length: 8, Nonce: 1}

	b := good.Marshal()
	b[0] = 1 // old protocol version
	if _, err := ParseHeader(b); err == nil || err.Code != INVALID_PACKET {
		t.Fatalf("expected INVALID_PACKET for version, got %v", err)
	}

	bad := good
	bad.PacketID = PacketID(0x0999)
	if _, err := ParseHeader(bad.Marshal()); err == nil || err.Code != UNKNOWN_PACKET_ID {
		t.Fatalf("expected UNKNOWN_PACKET_ID, got %v", err)
	}

	if _, err := ParseHeader(make([]byte, HeaderSize-1)); err == nil || err.Code != INVALID_PACKET {
		t.Fatalf("expected INVALID_PACKET for short header, got %v", err)
	}
}
