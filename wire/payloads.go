package wire

// Fixed string field widths shared across payloads.
const (
	PlayerIDSize   = 16
	PlayerNameSize = 32
	RoomCodeSize   = 6
	WeaponKeySize  = 8
	SessionIDSize  = 16
)

// PlayerID is the opaque 16-byte account identifier.
type PlayerID [PlayerIDSize]byte

func (p PlayerID) IsZero() bool {
	return p == PlayerID{}
}

func finish(r *reader, id PacketID) *Error {
	if err := r.Err(); err != nil {
		return err
	}
	if r.Remaining() != 0 {
		return werr(PAYLOAD_TOO_LARGE, id.String()+": trailing bytes")
	}
	return nil
}

// ShotFired (0x0010, 53 B, C->S): the client's fire intent. Coordinates
// are intent only; the server owns the outcome.
type ShotFired struct {
	Seq      uint32
	ClientTS uint64 // ms
	Weapon   string
	OriginX  float64
	OriginZ  float64
	TargetX  float64
	TargetZ  float64
	Flags    uint8
}

func (p ShotFired) Encode() []byte {
	w := newWriter(53)
	w.U32(p.Seq)
	w.U64(p.ClientTS)
	w.String(p.Weapon, WeaponKeySize)
	w.F64(p.OriginX)
	w.F64(p.OriginZ)
	w.F64(p.TargetX)
	w.F64(p.TargetZ)
	w.U8(p.Flags)
	return w.Finish()
}

func DecodeShotFired(b []byte) (ShotFired, *Error) {
	r := newReader(b)
	p := ShotFired{
		Seq:      r.U32(),
		ClientTS: r.U64(),
		Weapon:   r.String(WeaponKeySize),
		OriginX:  r.F64(),
		OriginZ:  r.F64(),
		TargetX:  r.F64(),
		TargetZ:  r.F64(),
		Flags:    r.U8(),
	}
	return p, finish(r, PacketShotFired)
}

// HitContribution is one contributor line inside HIT_RESULT / FISH_DEATH.
type HitContribution struct {
	Player   PlayerID
	AmountFp int64
}

// HitResult (0x0011, var >= 32, S->C): authoritative outcome for one shot.
type HitResult struct {
	Seq          uint32
	BulletID     uint32
	TargetID     uint32
	Kill         bool
	Reason       uint8
	RewardFp     int64
	BalanceFp    int64
	Contributors []HitContribution
}

func (p HitResult) Encode() []byte {
	w := newWriter(32 + len(p.Contributors)*(PlayerIDSize+8))
	w.U32(p.Seq)
	w.U32(p.BulletID)
	w.U32(p.TargetID)
	if p.Kill {
		w.U8(1)
	} else {
		w.U8(0)
	}
	w.U8(p.Reason)
	w.I64(p.RewardFp)
	w.I64(p.BalanceFp)
	w.U16(uint16(len(p.Contributors)))
	for _, c := range p.Contributors {
		w.Bytes(c.Player[:])
		w.I64(c.AmountFp)
	}
	return w.Finish()
}

func DecodeHitResult(b []byte) (HitResult, *Error) {
	r := newReader(b)
	p := HitResult{
		Seq:      r.U32(),
		BulletID: r.U32(),
		TargetID: r.U32(),
		Kill:     r.U8() == 1,
		Reason:   r.U8(),
		RewardFp: r.I64(),
	}
	p.BalanceFp = r.I64()
	n := int(r.U16())
	for i := 0; i < n; i++ {
		var c HitContribution
		copy(c.Player[:], r.Bytes(PlayerIDSize))
		c.AmountFp = r.I64()
		p.Contributors = append(p.Contributors, c)
	}
	return p, finish(r, PacketHitResult)
}

// BalanceUpdate (0x0012, 37 B, S->C).
type BalanceUpdate struct {
	Player       PlayerID
	BalanceFp    int64
	DeltaFp      int64
	Reason       uint8
	RulesVersion uint32
}

func (p BalanceUpdate) Encode() []byte {
	w := newWriter(37)
	w.Bytes(p.Player[:])
	w.I64(p.BalanceFp)
	w.I64(p.DeltaFp)
	w.U8(p.Reason)
	w.U32(p.RulesVersion)
	return w.Finish()
}

func DecodeBalanceUpdate(b []byte) (BalanceUpdate, *Error) {
	r := newReader(b)
	var p BalanceUpdate
	copy(p.Player[:], r.Bytes(PlayerIDSize))
	p.BalanceFp = r.I64()
	p.DeltaFp = r.I64()
	p.Reason = r.U8()
	p.RulesVersion = r.U32()
	return p, finish(r, PacketBalanceUpdate)
}

// WeaponSwitch (0x0013, 25 B, C->S).
type WeaponSwitch struct {
	Seq        uint32
	ClientTS   uint64
	Weapon     string
	Multiplier uint32
	Slot       uint8
}

func (p WeaponSwitch) Encode() []byte {
	w := newWriter(25)
	w.U32(p.Seq)
	w.U64(p.ClientTS)
	w.String(p.Weapon, WeaponKeySize)
	w.U32(p.Multiplier)
	w.U8(p.Slot)
	return w.Finish()
}

func DecodeWeaponSwitch(b []byte) (WeaponSwitch, *Error) {
	r := newReader(b)
	p := WeaponSwitch{
		Seq:        r.U32(),
		ClientTS:   r.U64(),
		Weapon:     r.String(WeaponKeySize),
		Multiplier: r.U32(),
		Slot:       r.U8(),
	}
	return p, finish(r, PacketWeaponSwitch)
}

// Snapshot records use f32 coordinates to keep the 20 Hz broadcast small;
// the simulation itself runs on f64.
type FishRecord struct {
	TargetID uint32
	Species  uint8
	Tier     uint8
	HP       uint16
	MaxHP    uint16
	X, Z     float32
	VX, VZ   float32
	Rotation float32
}

type BulletRecord struct {
	BulletID uint32
	Owner    PlayerID
	X, Z     float32
	VX, VZ   float32
}

type PlayerRecord struct {
	Player    PlayerID
	BalanceFp int64
	Weapon    string
}

// RoomSnapshot (0x0020, var >= 32, S->C): the 20 Hz room broadcast.
type RoomSnapshot struct {
	Tick         uint64
	ServerTS     uint64
	RoomCode     string
	Phase        uint8
	BossActive   bool
	RulesVersion uint16
	Fish         []FishRecord
	Bullets      []BulletRecord
	Players      []PlayerRecord
}

func (p RoomSnapshot) Encode() []byte {
	w := newWriter(32 + len(p.Fish)*30 + len(p.Bullets)*36 + len(p.Players)*32)
	w.U64(p.Tick)
	w.U64(p.ServerTS)
	w.String(p.RoomCode, RoomCodeSize)
	w.U8(p.Phase)
	if p.BossActive {
		w.U8(1)
	} else {
		w.U8(0)
	}
	w.U16(uint16(len(p.Fish)))
	w.U16(uint16(len(p.Bullets)))
	w.U16(uint16(len(p.Players)))
	w.U16(p.RulesVersion)
	for _, f := range p.Fish {
		w.U32(f.TargetID)
		w.U8(f.Species)
		w.U8(f.Tier)
		w.U16(f.HP)
		w.U16(f.MaxHP)
		w.F32(f.X)
		w.F32(f.Z)
		w.F32(f.VX)
		w.F32(f.VZ)
		w.F32(f.Rotation)
	}
	for _, bl := range p.Bullets {
		w.U32(bl.BulletID)
		w.Bytes(bl.Owner[:])
		w.F32(bl.X)
		w.F32(bl.Z)
		w.F32(bl.VX)
		w.F32(bl.VZ)
	}
	for _, pl := range p.Players {
		w.Bytes(pl.Player[:])
		w.I64(pl.BalanceFp)
		w.String(pl.Weapon, WeaponKeySize)
	}
	return w.Finish()
}

func DecodeRoomSnapshot(b []byte) (RoomSnapshot, *Error) {
	r := newReader(b)
	p := RoomSnapshot{
		Tick:     r.U64(),
		ServerTS: r.U64(),
		RoomCode: r.String(RoomCodeSize),
		Phase:    r.U8(),
	}
	p.BossActive = r.U8() == 1
	nFish := int(r.U16())
	nBullets := int(r.U16())
	nPlayers := int(r.U16())
	p.RulesVersion = r.U16()
	for i := 0; i < nFish; i++ {
		p.Fish = append(p.Fish, FishRecord{
			TargetID: r.U32(),
			Species:  r.U8(),
			Tier:     r.U8(),
			HP:       r.U16(),
			MaxHP:    r.U16(),
			X:        r.F32(),
			Z:        r.F32(),
			VX:       r.F32(),
			VZ:       r.F32(),
			Rotation: r.F32(),
		})
	}
	for i := 0; i < nBullets; i++ {
		var bl BulletRecord
		bl.BulletID = r.U32()
		copy(bl.Owner[:], r.Bytes(PlayerIDSize))
		bl.X = r.F32()
		bl.Z = r.F32()
		bl.VX = r.F32()
		bl.VZ = r.F32()
		p.Bullets = append(p.Bullets, bl)
	}
	for i := 0; i < nPlayers; i++ {
		var pl PlayerRecord
		copy(pl.Player[:], r.Bytes(PlayerIDSize))
		pl.BalanceFp = r.I64()
		pl.Weapon = r.String(WeaponKeySize)
		p.Players = append(p.Players, pl)
	}
	return p, finish(r, PacketRoomSnapshot)
}

// FishSpawn (0x0021 / 0x0030 for bosses, 54 B, S->C).
type FishSpawn struct {
	TargetID uint32
	Species  uint16
	Tier     uint8
	Flags    uint8 // bit0 boss, bit1 special
	HP       uint16
	MaxHP    uint16
	X, Z     float64
	VX, VZ   float64
	Size     float32
	Rotation float32
	Reserved uint16
}

const (
	FishFlagBoss    = 1 << 0
	FishFlagSpecial = 1 << 1
)

func (p FishSpawn) Encode() []byte {
	w := newWriter(54)
	w.U32(p.TargetID)
	w.U16(p.Species)
	w.U8(p.Tier)
	w.U8(p.Flags)
	w.U16(p.HP)
	w.U16(p.MaxHP)
	w.F64(p.X)
	w.F64(p.Z)
	w.F64(p.VX)
	w.F64(p.VZ)
	w.F32(p.Size)
	w.F32(p.Rotation)
	w.U16(p.Reserved)
	return w.Finish()
}

func DecodeFishSpawn(b []byte) (FishSpawn, *Error) {
	r := newReader(b)
	p := FishSpawn{
		TargetID: r.U32(),
		Species:  r.U16(),
		Tier:     r.U8(),
		Flags:    r.U8(),
		HP:       r.U16(),
		MaxHP:    r.U16(),
		X:        r.F64(),
		Z:        r.F64(),
		VX:       r.F64(),
		VZ:       r.F64(),
		Size:     r.F32(),
		Rotation: r.F32(),
		Reserved: r.U16(),
	}
	return p, finish(r, PacketFishSpawn)
}

// FishDeath (0x0022, var >= 36, S->C): the kill announcement with the
// contributor split.
type FishDeath struct {
	TargetID     uint32
	Killer       PlayerID
	RewardFp     int64
	Tier         uint8
	Reason       uint8
	RulesVersion uint32
	Contributors []HitContribution
}

func (p FishDeath) Encode() []byte {
	w := newWriter(36 + len(p.Contributors)*(PlayerIDSize+8))
	w.U32(p.TargetID)
	w.Bytes(p.Killer[:])
	w.I64(p.RewardFp)
	w.U8(p.Tier)
	w.U8(p.Reason)
	w.U16(uint16(len(p.Contributors)))
	w.U32(p.RulesVersion)
	for _, c := range p.Contributors {
		w.Bytes(c.Player[:])
		w.I64(c.AmountFp)
	}
	return w.Finish()
}

func DecodeFishDeath(b []byte) (FishDeath, *Error) {
	r := newReader(b)
	var p FishDeath
	p.TargetID = r.U32()
	copy(p.Killer[:], r.Bytes(PlayerIDSize))
	p.RewardFp = r.I64()
	p.Tier = r.U8()
	p.Reason = r.U8()
	n := int(r.U16())
	p.RulesVersion = r.U32()
	for i := 0; i < n; i++ {
		var c HitContribution
		copy(c.Player[:], r.Bytes(PlayerIDSize))
		c.AmountFp = r.I64()
		p.Contributors = append(p.Contributors, c)
	}
	return p, finish(r, PacketFishDeath)
}

// PlayerJoin (0x0040, 66 B, S->C): announces a player binding to a room.
type PlayerJoin struct {
	Player    PlayerID
	Name      string
	RoomCode  string
	Seat      uint8
	IsHost    bool
	BalanceFp int64
	Reserved  uint16
}

func (p PlayerJoin) Encode() []byte {
	w := newWriter(66)
	w.Bytes(p.Player[:])
	w.String(p.Name, PlayerNameSize)
	w.String(p.RoomCode, RoomCodeSize)
	w.U8(p.Seat)
	if p.IsHost {
		w.U8(1)
	} else {
		w.U8(0)
	}
	w.I64(p.BalanceFp)
	w.U16(p.Reserved)
	return w.Finish()
}

func DecodePlayerJoin(b []byte) (PlayerJoin, *Error) {
	r := newReader(b)
	var p PlayerJoin
	copy(p.Player[:], r.Bytes(PlayerIDSize))
	p.Name = r.String(PlayerNameSize)
	p.RoomCode = r.String(RoomCodeSize)
	p.Seat = r.U8()
	p.IsHost = r.U8() == 1
	p.BalanceFp = r.I64()
	p.Reserved = r.U16()
	return p, finish(r, PacketPlayerJoin)
}

// RoomCreate (0x0050, 41 B, C->S). The server assigns the player id and
// room code; the client supplies only its display name.
type RoomCreate struct {
	ClientTS   uint64
	Name       string
	MaxPlayers uint8
}

func (p RoomCreate) Encode() []byte {
	w := newWriter(41)
	w.U64(p.ClientTS)
	w.String(p.Name, PlayerNameSize)
	w.U8(p.MaxPlayers)
	return w.Finish()
}

func DecodeRoomCreate(b []byte) (RoomCreate, *Error) {
	r := newReader(b)
	p := RoomCreate{
		ClientTS:   r.U64(),
		Name:       r.String(PlayerNameSize),
		MaxPlayers: r.U8(),
	}
	return p, finish(r, PacketRoomCreate)
}

// RoomJoin (0x0051, 46 B, C->S).
type RoomJoin struct {
	ClientTS uint64
	Name     string
	RoomCode string
}

func (p RoomJoin) Encode() []byte {
	w := newWriter(46)
	w.U64(p.ClientTS)
	w.String(p.Name, PlayerNameSize)
	w.String(p.RoomCode, RoomCodeSize)
	return w.Finish()
}

func DecodeRoomJoin(b []byte) (RoomJoin, *Error) {
	r := newReader(b)
	p := RoomJoin{
		ClientTS: r.U64(),
		Name:     r.String(PlayerNameSize),
		RoomCode: r.String(RoomCodeSize),
	}
	return p, finish(r, PacketRoomJoin)
}

// GameStart (0x0054, 8 B, C->S): host starts the room.
type GameStart struct {
	ClientTS uint64
}

func (p GameStart) Encode() []byte {
	w := newWriter(8)
	w.U64(p.ClientTS)
	return w.Finish()
}

func DecodeGameStart(b []byte) (GameStart, *Error) {
	r := newReader(b)
	p := GameStart{ClientTS: r.U64()}
	return p, finish(r, PacketGameStart)
}

// TimeSyncPing (0x0060, 12 B, C->S) / TimeSyncPong (0x0061, 20 B, S->C).
type TimeSyncPing struct {
	Seq      uint32
	ClientTS uint64
}

func (p TimeSyncPing) Encode() []byte {
	w := newWriter(12)
	w.U32(p.Seq)
	w.U64(p.ClientTS)
	return w.Finish()
}

func DecodeTimeSyncPing(b []byte) (TimeSyncPing, *Error) {
	r := newReader(b)
	p := TimeSyncPing{Seq: r.U32(), ClientTS: r.U64()}
	return p, finish(r, PacketTimeSyncPing)
}

type TimeSyncPong struct {
	Seq      uint32
	ClientTS uint64
	ServerTS uint64
}

func (p TimeSyncPong) Encode() []byte {
	w := newWriter(20)
	w.U32(p.Seq)
	w.U64(p.ClientTS)
	w.U64(p.ServerTS)
	return w.Finish()
}

func DecodeTimeSyncPong(b []byte) (TimeSyncPong, *Error) {
	r := newReader(b)
	p := TimeSyncPong{Seq: r.U32(), ClientTS: r.U64(), ServerTS: r.U64()}
	return p, finish(r, PacketTimeSyncPong)
}

// ErrorPacket (0x00F0, var >= 4, S->C): code plus a short message. The
// message never carries diagnostic detail for fatal failures.
type ErrorPacket struct {
	Code ErrorCode
	Msg  string
}

const maxErrorMsgBytes = 256

func (p ErrorPacket) Encode() []byte {
	msg := p.Msg
	if len(msg) > maxErrorMsgBytes {
		msg = msg[:maxErrorMsgBytes]
	}
	w := newWriter(4 + len(msg))
	w.U16(uint16(p.Code))
	w.U16(uint16(len(msg)))
	w.Bytes([]byte(msg))
	return w.Finish()
}

func DecodeErrorPacket(b []byte) (ErrorPacket, *Error) {
	r := newReader(b)
	p := ErrorPacket{Code: ErrorCode(r.U16())}
	n := int(r.U16())
	p.Msg = string(r.Bytes(n))
	return p, finish(r, PacketError)
}
