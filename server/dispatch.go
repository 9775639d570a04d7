package server

import (
	"fishshoot.dev/server/anticheat"
	"fishshoot.dev/server/wire"
)

// dispatch routes one decrypted packet. The returned error, if any, is
// sent to the client; terminate forces the connection closed even for
// reported codes (bucket ban, anomaly disconnect).
func (s *Server) dispatch(sess *Session, ip string, id wire.PacketID, payload []byte, nowMs int64) (*wire.Error, bool) {
	switch id {
	case wire.PacketShotFired:
		return s.onShot(sess, payload, nowMs)
	case wire.PacketWeaponSwitch:
		return s.onWeaponSwitch(sess, payload, nowMs)
	case wire.PacketRoomCreate:
		return s.onRoomCreate(sess, ip, payload, nowMs)
	case wire.PacketRoomJoin:
		return s.onRoomJoin(sess, ip, payload, nowMs)
	case wire.PacketGameStart:
		return s.onGameStart(sess, payload, nowMs)
	case wire.PacketTimeSyncPing:
		return s.onTimeSync(sess, payload, nowMs)
	default:
		// Whitelisted but server-to-client only: a client sending one is
		// malformed traffic, not congestion.
		return &wire.Error{Code: wire.INVALID_PACKET, Msg: "unexpected " + id.String()}, true
	}
}

// admit charges the category bucket. A Banned verdict terminates the
// connection.
func (s *Server) admit(sess *Session, cat anticheat.Category, nowMs int64) (*wire.Error, bool) {
	switch sess.Limiter.Allow(cat, nowMs) {
	case anticheat.Banned:
		return &wire.Error{Code: wire.RATE_LIMITED, Msg: "banned"}, true
	case anticheat.Limited:
		return &wire.Error{Code: wire.RATE_LIMITED, Msg: cat.String()}, false
	default:
		return nil, false
	}
}

// checkAction runs the shared action-packet validation: sequence
// anti-replay and timestamp sanity.
func (s *Server) checkAction(sess *Session, seq uint32, clientTS uint64, nowMs int64) *wire.Error {
	if res := sess.Seq.Validate(seq); res != anticheat.SeqOK {
		return &wire.Error{Code: wire.RATE_LIMITED, Msg: res.String()}
	}
	if !anticheat.ValidTimestamp(int64(clientTS), nowMs) {
		return &wire.Error{Code: wire.RATE_LIMITED, Msg: "timestamp"}
	}
	return nil
}

func (s *Server) room(sess *Session) (*Room, *wire.Error) {
	if sess.RoomCode == "" {
		return nil, &wire.Error{Code: wire.INVALID_ROOM, Msg: "not in a room"}
	}
	room := s.rooms.Get(sess.RoomCode)
	if room == nil {
		return nil, &wire.Error{Code: wire.INVALID_ROOM, Msg: "room closed"}
	}
	return room, nil
}

func (s *Server) onShot(sess *Session, payload []byte, nowMs int64) (*wire.Error, bool) {
	if werr, terminate := s.admit(sess, anticheat.CategoryShoot, nowMs); werr != nil {
		return werr, terminate
	}
	shot, werr := wire.DecodeShotFired(payload)
	if werr != nil {
		return werr, true
	}
	if werr := s.checkAction(sess, shot.Seq, shot.ClientTS, nowMs); werr != nil {
		return werr, false
	}
	room, werr := s.room(sess)
	if werr != nil {
		return werr, false
	}
	room.FireShot(sess.Player, shot, nowMs)
	return nil, false
}

func (s *Server) onWeaponSwitch(sess *Session, payload []byte, nowMs int64) (*wire.Error, bool) {
	if werr, terminate := s.admit(sess, anticheat.CategoryWeaponSwitch, nowMs); werr != nil {
		return werr, terminate
	}
	sw, werr := wire.DecodeWeaponSwitch(payload)
	if werr != nil {
		return werr, true
	}
	if werr := s.checkAction(sess, sw.Seq, sw.ClientTS, nowMs); werr != nil {
		return werr, false
	}
	if _, ok := s.cfg.Weapons[sw.Weapon]; !ok {
		return &wire.Error{Code: wire.INVALID_WEAPON, Msg: sw.Weapon}, false
	}
	room, werr := s.room(sess)
	if werr != nil {
		return werr, false
	}
	room.SwitchWeapon(sess.Player, sw.Weapon)
	return nil, false
}

func (s *Server) onRoomCreate(sess *Session, ip string, payload []byte, nowMs int64) (*wire.Error, bool) {
	if werr, terminate := s.admit(sess, anticheat.CategoryRoomAction, nowMs); werr != nil {
		return werr, terminate
	}
	if !s.ip.AllowRoomOp(ip, nowMs) {
		return &wire.Error{Code: wire.RATE_LIMITED, Msg: "room ops"}, false
	}
	rc, werr := wire.DecodeRoomCreate(payload)
	if werr != nil {
		return werr, true
	}
	if sess.RoomCode != "" {
		return &wire.Error{Code: wire.INVALID_ROOM, Msg: "already in a room"}, false
	}
	sess.Name = rc.Name
	_, _, werr = s.rooms.Create(sess, rc.Name, rc.MaxPlayers, nowMs)
	if werr != nil {
		return werr, false
	}
	s.sessions.BindPlayer(sess)
	return nil, false
}

func (s *Server) onRoomJoin(sess *Session, ip string, payload []byte, nowMs int64) (*wire.Error, bool) {
	if werr, terminate := s.admit(sess, anticheat.CategoryRoomAction, nowMs); werr != nil {
		return werr, terminate
	}
	if !s.ip.AllowRoomOp(ip, nowMs) {
		return &wire.Error{Code: wire.RATE_LIMITED, Msg: "room ops"}, false
	}
	rj, werr := wire.DecodeRoomJoin(payload)
	if werr != nil {
		return werr, true
	}
	if sess.RoomCode != "" {
		return &wire.Error{Code: wire.INVALID_ROOM, Msg: "already in a room"}, false
	}
	sess.Name = rj.Name
	_, _, werr = s.rooms.Join(rj.RoomCode, sess, rj.Name, nowMs)
	if werr != nil {
		return werr, false
	}
	s.sessions.BindPlayer(sess)
	return nil, false
}

func (s *Server) onGameStart(sess *Session, payload []byte, nowMs int64) (*wire.Error, bool) {
	if werr, terminate := s.admit(sess, anticheat.CategoryRoomAction, nowMs); werr != nil {
		return werr, terminate
	}
	if _, werr := wire.DecodeGameStart(payload); werr != nil {
		return werr, true
	}
	room, werr := s.room(sess)
	if werr != nil {
		return werr, false
	}
	room.Start(sess.Player)
	return nil, false
}

func (s *Server) onTimeSync(sess *Session, payload []byte, nowMs int64) (*wire.Error, bool) {
	if werr, terminate := s.admit(sess, anticheat.CategoryTimeSync, nowMs); werr != nil {
		return werr, terminate
	}
	ping, werr := wire.DecodeTimeSyncPing(payload)
	if werr != nil {
		return werr, true
	}
	_ = sess.Send(wire.PacketTimeSyncPong, wire.TimeSyncPong{
		Seq:      ping.Seq,
		ClientTS: ping.ClientTS,
		ServerTS: uint64(nowMs),
	}.Encode())
	return nil, false
}
