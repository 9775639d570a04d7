package server

import (
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"fishshoot.dev/server/anticheat"
	"fishshoot.dev/server/audit"
	"fishshoot.dev/server/config"
	"fishshoot.dev/server/wire"
)

const reaperInterval = time.Minute

// Server accepts connections, runs the handshake, and routes decrypted
// packets into rooms.
type Server struct {
	cfg   config.Config
	rules audit.Rules

	ip       *anticheat.IPLimiter
	sessions *SessionManager
	rooms    *Registry

	nowMs func() int64

	quit      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func New(cfg config.Config, rules audit.Rules, sink AuditSink) *Server {
	return &Server{
		cfg:      cfg,
		rules:    rules,
		ip:       anticheat.NewIPLimiter(cfg.RateLimits, cfg.ConnectionLimits),
		sessions: NewSessionManager(),
		rooms:    NewRegistry(cfg, rules, sink),
		nowMs:    func() int64 { return time.Now().UnixMilli() },
		quit:     make(chan struct{}),
	}
}

// Serve accepts connections on ln until Close. One goroutine per
// connection; each room runs its own loop independently.
func (s *Server) Serve(ln net.Listener) error {
	s.wg.Add(1)
	go s.reaper()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return nil
			default:
				return err
			}
		}
		ip := remoteIP(conn)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.HandleStream(conn, ip)
		}()
	}
}

// Close stops accepting work and waits for connection goroutines.
func (s *Server) Close() {
	s.closeOnce.Do(func() { close(s.quit) })
	s.wg.Wait()
}

func remoteIP(conn net.Conn) string {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return conn.RemoteAddr().String()
	}
	return host
}

// HandleStream runs the full per-connection protocol over any byte
// stream: TCP sockets and the websocket adapter both land here.
func (s *Server) HandleStream(conn io.ReadWriteCloser, ip string) {
	nowMs := s.nowMs()
	if !s.ip.AddConn(ip, nowMs) {
		log.Debugf("connection cap for %s", ip)
		conn.Close()
		return
	}
	defer s.ip.RemoveConn(ip)

	sess, werr := s.handshake(conn, ip, nowMs)
	if werr != nil {
		// Handshake failures are silent: no error packet before keys.
		log.Debugf("handshake from %s: %v", ip, werr)
		conn.Close()
		return
	}
	s.sessions.Add(sess)
	defer s.teardown(sess)

	s.readLoop(sess, ip)
}

func (s *Server) handshake(conn io.ReadWriteCloser, ip string, nowMs int64) (*Session, *wire.Error) {
	if !s.ip.AllowHandshake(ip, nowMs) {
		return nil, &wire.Error{Code: wire.RATE_LIMITED, Msg: "handshake"}
	}
	payload, werr := wire.ReadHandshakeFrame(conn, wire.HandshakeRequestSize)
	if werr != nil {
		return nil, werr
	}
	req, werr := wire.DecodeHandshakeRequest(payload)
	if werr != nil {
		return nil, werr
	}
	sessionID := [wire.SessionIDSize]byte(uuid.New())
	keys, resp, werr := wire.ServerHandshake(req, sessionID)
	if werr != nil {
		return nil, werr
	}
	if werr := wire.WriteHandshakeFrame(conn, resp.Encode()); werr != nil {
		return nil, werr
	}
	limiter := anticheat.NewSessionLimiter(s.cfg.RateLimits, nowMs)
	return NewSession(sessionID, keys, conn, limiter, nowMs), nil
}

func (s *Server) readLoop(sess *Session, ip string) {
	for {
		select {
		case <-s.quit:
			return
		default:
		}

		frame, werr := wire.ReadFrame(sess.conn)
		if werr != nil {
			return
		}
		nowMs := s.nowMs()
		if !s.ip.AllowPacket(ip, nowMs) {
			sess.SendError(wire.RATE_LIMITED, "ip")
			continue
		}

		h, payload, werr := sess.OpenFrame(frame)
		if werr != nil {
			sess.SendError(werr.Code, "")
			log.Debugf("session %x: %v", sess.ID[:4], werr)
			return
		}
		sess.Touch(nowMs)

		werr, terminate := s.dispatch(sess, ip, h.PacketID, payload, nowMs)
		if werr != nil {
			sess.SendError(werr.Code, werr.Msg)
			if werr.Code.Fatal() {
				return
			}
		}
		if terminate {
			return
		}
	}
}

// teardown runs once per connection: the session leaves its room and
// drops out of the index, then the socket closes.
func (s *Server) teardown(sess *Session) {
	s.sessions.Remove(sess)
	if sess.RoomCode != "" {
		s.rooms.Leave(sess.RoomCode, sess.Player)
	}
	sess.Close()
}

// reaper evicts idle sessions and stale IP bookkeeping.
func (s *Server) reaper() {
	defer s.wg.Done()
	ticker := time.NewTicker(reaperInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.quit:
			return
		case <-ticker.C:
			nowMs := s.nowMs()
			for _, sess := range s.sessions.SweepIdle(nowMs, sessionIdleMs) {
				log.Infof("evicting idle session %x", sess.ID[:4])
				sess.Close()
			}
			s.ip.Sweep(nowMs)
		}
	}
}
