package server

import (
	"io"
	"sync"
	"sync/atomic"

	"fishshoot.dev/server/anticheat"
	"fishshoot.dev/server/wire"
)

// Session idle eviction threshold.
const sessionIdleMs = 30 * 60 * 1000

// Sender is the narrow surface a room uses to reach one client. The
// concrete implementation is Session; tests substitute a capture fake.
type Sender interface {
	Send(id wire.PacketID, payload []byte) error
	SendError(code wire.ErrorCode, msg string)
	Close()
}

// Session binds one transport connection to its handshake-derived keys,
// both nonce counters, and eventually to a player and room. The inbound
// side (OpenFrame, Seq, Limiter) is touched only by the connection's
// read goroutine; the outbound side serializes under sendMu because the
// room loop sends too.
type Session struct {
	ID   [wire.SessionIDSize]byte
	Keys wire.SessionKeys

	Player   wire.PlayerID
	RoomCode string
	Name     string

	Limiter *anticheat.SessionLimiter
	Seq     anticheat.SequenceTracker

	CreatedMs int64

	conn      io.ReadWriteCloser
	lastNonce uint64

	sendMu      sync.Mutex
	serverNonce uint64
	closeOnce   sync.Once

	activityMs atomic.Int64
}

func NewSession(id [wire.SessionIDSize]byte, keys wire.SessionKeys, conn io.ReadWriteCloser, limiter *anticheat.SessionLimiter, nowMs int64) *Session {
	s := &Session{
		ID:        id,
		Keys:      keys,
		Limiter:   limiter,
		CreatedMs: nowMs,
		conn:      conn,
	}
	s.activityMs.Store(nowMs)
	return s
}

// OpenFrame runs the receive pipeline on one frame and advances the
// client nonce watermark on success. Any failure is fatal for the
// connection.
func (s *Session) OpenFrame(frame []byte) (wire.Header, []byte, *wire.Error) {
	h, plaintext, werr := wire.Open(s.Keys, frame, s.lastNonce)
	if werr != nil {
		return wire.Header{}, nil, werr
	}
	s.lastNonce = h.Nonce
	return h, plaintext, nil
}

// Send seals and writes one server packet under the session's outgoing
// nonce counter.
func (s *Session) Send(id wire.PacketID, payload []byte) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	s.serverNonce++
	frame, werr := wire.Seal(s.Keys, id, s.serverNonce, payload)
	if werr != nil {
		return werr
	}
	if _, err := s.conn.Write(frame); err != nil {
		return err
	}
	return nil
}

// SendError sends an encrypted error packet. Write failures are ignored:
// the code is advisory and the socket fate is decided elsewhere.
func (s *Session) SendError(code wire.ErrorCode, msg string) {
	_ = s.Send(wire.PacketError, wire.ErrorPacket{Code: code, Msg: msg}.Encode())
}

// Close shuts the transport down. Safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() { _ = s.conn.Close() })
}

// Touch records activity for the idle reaper.
func (s *Session) Touch(nowMs int64) { s.activityMs.Store(nowMs) }

// LastActivityMs reports the most recent inbound packet time.
func (s *Session) LastActivityMs() int64 { return s.activityMs.Load() }

// SessionManager indexes live sessions by session id and, once a room
// binds them, by player id.
type SessionManager struct {
	mu       sync.Mutex
	byID     map[[wire.SessionIDSize]byte]*Session
	byPlayer map[wire.PlayerID]*Session
}

func NewSessionManager() *SessionManager {
	return &SessionManager{
		byID:     make(map[[wire.SessionIDSize]byte]*Session),
		byPlayer: make(map[wire.PlayerID]*Session),
	}
}

func (m *SessionManager) Add(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[s.ID] = s
}

// BindPlayer indexes the session by its assigned player id. Called
// after a room join assigns one.
func (m *SessionManager) BindPlayer(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !s.Player.IsZero() {
		m.byPlayer[s.Player] = s
	}
}

func (m *SessionManager) Remove(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byID, s.ID)
	if !s.Player.IsZero() {
		delete(m.byPlayer, s.Player)
	}
}

// ByPlayer looks a session up by player id.
func (m *SessionManager) ByPlayer(p wire.PlayerID) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byPlayer[p]
}

// Count reports live sessions.
func (m *SessionManager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}

// SweepIdle returns sessions idle longer than idleMs without removing
// them; the caller closes each one and removal happens through the
// normal teardown path.
func (m *SessionManager) SweepIdle(nowMs, idleMs int64) []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	var idle []*Session
	for _, s := range m.byID {
		if nowMs-s.LastActivityMs() > idleMs {
			idle = append(idle, s)
		}
	}
	return idle
}
