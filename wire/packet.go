package wire

import "fmt"

// PacketID identifies the payload schema of a frame. The id space is
// partitioned by function: handshake 0x0001-, game action 0x0010-, game
// state 0x0020-, boss 0x0030-, player 0x0040-, room 0x0050-, time sync
// 0x0060-, system 0x00F0-.
type PacketID uint16

const (
	PacketHandshakeRequest  PacketID = 0x0001
	PacketHandshakeResponse PacketID = 0x0002

	PacketShotFired     PacketID = 0x0010
	PacketHitResult     PacketID = 0x0011
	PacketBalanceUpdate PacketID = 0x0012
	PacketWeaponSwitch  PacketID = 0x0013

	PacketRoomSnapshot PacketID = 0x0020
	PacketFishSpawn    PacketID = 0x0021
	PacketFishDeath    PacketID = 0x0022

	PacketBossSpawn PacketID = 0x0030

	PacketPlayerJoin PacketID = 0x0040

	PacketRoomCreate PacketID = 0x0050
	PacketRoomJoin   PacketID = 0x0051
	PacketGameStart  PacketID = 0x0054

	PacketTimeSyncPing PacketID = 0x0060
	PacketTimeSyncPong PacketID = 0x0061

	PacketError PacketID = 0x00F0
)

// sizePolicy declares the acceptable decrypted payload length for one
// packet id. Fixed-size packets set Min == Max.
type sizePolicy struct {
	Min int
	Max int
}

// MaxPayloadBytes caps every payload regardless of per-id policy. A
// declared length above this is rejected before any payload is read.
const MaxPayloadBytes = 65_536

var packetSizes = map[PacketID]sizePolicy{
	PacketHandshakeRequest:  {Min: HandshakeRequestSize, Max: HandshakeRequestSize},
	PacketHandshakeResponse: {Min: HandshakeResponseSize, Max: HandshakeResponseSize},

	PacketShotFired:     {Min: 53, Max: 53},
	PacketHitResult:     {Min: 32, Max: 4096},
	PacketBalanceUpdate: {Min: 37, Max: 37},
	PacketWeaponSwitch:  {Min: 25, Max: 25},

	PacketRoomSnapshot: {Min: 32, Max: MaxPayloadBytes},
	PacketFishSpawn:    {Min: 54, Max: 54},
	PacketFishDeath:    {Min: 36, Max: 4096},

	PacketBossSpawn: {Min: 54, Max: 54},

	PacketPlayerJoin: {Min: 66, Max: 66},

	PacketRoomCreate: {Min: 41, Max: 41},
	PacketRoomJoin:   {Min: 46, Max: 46},
	PacketGameStart:  {Min: 8, Max: 8},

	PacketTimeSyncPing: {Min: 12, Max: 12},
	PacketTimeSyncPong: {Min: 20, Max: 20},

	PacketError: {Min: 4, Max: 260},
}

var packetNames = map[PacketID]string{
	PacketHandshakeRequest:  "HANDSHAKE_REQUEST",
	PacketHandshakeResponse: "HANDSHAKE_RESPONSE",
	PacketShotFired:         "SHOT_FIRED",
	PacketHitResult:         "HIT_RESULT",
	PacketBalanceUpdate:     "BALANCE_UPDATE",
	PacketWeaponSwitch:      "WEAPON_SWITCH",
	PacketRoomSnapshot:      "ROOM_SNAPSHOT",
	PacketFishSpawn:         "FISH_SPAWN",
	PacketFishDeath:         "FISH_DEATH",
	PacketBossSpawn:         "BOSS_SPAWN",
	PacketPlayerJoin:        "PLAYER_JOIN",
	PacketRoomCreate:        "ROOM_CREATE",
	PacketRoomJoin:          "ROOM_JOIN",
	PacketGameStart:         "GAME_START",
	PacketTimeSyncPing:      "TIME_SYNC_PING",
	PacketTimeSyncPong:      "TIME_SYNC_PONG",
	PacketError:             "ERROR",
}

func (id PacketID) String() string {
	if s, ok := packetNames[id]; ok {
		return s
	}
	return fmt.Sprintf("PacketID(0x%04x)", uint16(id))
}

// Known reports whether id is in the whitelist.
func (id PacketID) Known() bool {
	_, ok := packetSizes[id]
	return ok
}

// CheckPayloadSize enforces the per-id size policy on a declared payload
// length. Unknown ids fail with UNKNOWN_PACKET_ID.
func CheckPayloadSize(id PacketID, n int) *Error {
	pol, ok := packetSizes[id]
	if !ok {
		return werr(UNKNOWN_PACKET_ID, id.String())
	}
	if n > MaxPayloadBytes || n > pol.Max {
		return werr(PAYLOAD_TOO_LARGE, fmt.Sprintf("%s: %d > %d", id, n, pol.Max))
	}
	if n < pol.Min {
		return werr(PAYLOAD_TOO_SMALL, fmt.Sprintf("%s: %d < %d", id, n, pol.Min))
	}
	return nil
}
