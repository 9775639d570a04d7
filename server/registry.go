package server

import (
	"crypto/rand"
	"encoding/binary"
	"sync"

	"fishshoot.dev/server/audit"
	"fishshoot.dev/server/config"
	"fishshoot.dev/server/wire"
)

const (
	defaultRoomSize = 4
	maxRoomSize     = 8
)

// Registry owns the live room set. Rooms remove themselves when their
// last player leaves.
type Registry struct {
	mu    sync.Mutex
	cfg   config.Config
	rules audit.Rules
	sink  AuditSink
	rooms map[string]*Room
}

func NewRegistry(cfg config.Config, rules audit.Rules, sink AuditSink) *Registry {
	return &Registry{
		cfg:   cfg,
		rules: rules,
		sink:  sink,
		rooms: make(map[string]*Room),
	}
}

const roomCodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

func newRoomCode() string {
	var raw [wire.RoomCodeSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		panic("registry: csprng failure: " + err.Error())
	}
	code := make([]byte, wire.RoomCodeSize)
	for i, b := range raw {
		code[i] = roomCodeAlphabet[int(b)%len(roomCodeAlphabet)]
	}
	return string(code)
}

func newRoomSeed() uint64 {
	var raw [8]byte
	if _, err := rand.Read(raw[:]); err != nil {
		panic("registry: csprng failure: " + err.Error())
	}
	return binary.BigEndian.Uint64(raw[:])
}

// Create builds a room, starts its loop, and seats the creator as host.
// The session's player id and room code are bound before it returns.
func (g *Registry) Create(sess *Session, name string, maxPlayers uint8, nowMs int64) (*Room, wire.PlayerJoin, *wire.Error) {
	size := int(maxPlayers)
	if size == 0 {
		size = defaultRoomSize
	}
	if size > maxRoomSize {
		size = maxRoomSize
	}

	g.mu.Lock()
	var code string
	for {
		code = newRoomCode()
		if _, taken := g.rooms[code]; !taken {
			break
		}
	}
	room := newRoom(code, g.cfg, g.rules, g.sink, newRoomSeed(), size, g.remove)
	g.rooms[code] = room
	g.mu.Unlock()

	room.start()
	pj, werr := room.Join(sess, name, nowMs)
	if werr != nil {
		// Cannot happen for a fresh room, but do not leak it if it does.
		g.remove(code)
		return nil, wire.PlayerJoin{}, werr
	}
	sess.Player = pj.Player
	sess.RoomCode = code
	log.Infof("room %s created by %s (max %d)", code, name, size)
	return room, pj, nil
}

// Join seats the session in an existing room and binds its identity.
func (g *Registry) Join(code string, sess *Session, name string, nowMs int64) (*Room, wire.PlayerJoin, *wire.Error) {
	room := g.Get(code)
	if room == nil {
		return nil, wire.PlayerJoin{}, &wire.Error{Code: wire.INVALID_ROOM, Msg: code}
	}
	pj, werr := room.Join(sess, name, nowMs)
	if werr != nil {
		return nil, wire.PlayerJoin{}, werr
	}
	sess.Player = pj.Player
	sess.RoomCode = code
	return room, pj, nil
}

// Get looks a room up by code.
func (g *Registry) Get(code string) *Room {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rooms[code]
}

// Leave detaches a player from their room.
func (g *Registry) Leave(code string, player wire.PlayerID) {
	if room := g.Get(code); room != nil {
		room.Leave(player)
	}
}

func (g *Registry) remove(code string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.rooms, code)
}

// Count reports live rooms.
func (g *Registry) Count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.rooms)
}
