package anticheat

import (
	"sync"

	"fishshoot.dev/server/config"
)

// IPLimiter tracks per-address pressure: handshake and global packet
// buckets, a sliding window of room operations, and a hard connection
// cap. Unlike the session limiter it is shared across connections, so
// it locks.
type IPLimiter struct {
	mu sync.Mutex

	rl      config.RateLimits
	cl      config.ConnectionLimits
	entries map[string]*ipEntry
}

type ipEntry struct {
	handshake bucket
	global    bucket
	roomOps   []int64
	conns     int
	lastSeen  int64
}

func NewIPLimiter(rl config.RateLimits, cl config.ConnectionLimits) *IPLimiter {
	return &IPLimiter{
		rl:      rl,
		cl:      cl,
		entries: make(map[string]*ipEntry),
	}
}

func (l *IPLimiter) entry(ip string, nowMs int64) *ipEntry {
	e, ok := l.entries[ip]
	if !ok {
		e = &ipEntry{
			handshake: newBucket(l.rl.IPHandshake, nowMs),
			global:    newBucket(l.rl.IPGlobal, nowMs),
		}
		l.entries[ip] = e
	}
	e.lastSeen = nowMs
	return e
}

// AllowHandshake gates new key exchanges from one address.
func (l *IPLimiter) AllowHandshake(ip string, nowMs int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.entry(ip, nowMs).handshake.take(nowMs)
}

// AllowPacket gates overall packet pressure from one address.
func (l *IPLimiter) AllowPacket(ip string, nowMs int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.entry(ip, nowMs).global.take(nowMs)
}

// AllowRoomOp admits a room create/join within the sliding window.
func (l *IPLimiter) AllowRoomOp(ip string, nowMs int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	e := l.entry(ip, nowMs)

	cutoff := nowMs - l.cl.RoomOpsWindowMs
	kept := e.roomOps[:0]
	for _, ts := range e.roomOps {
		if ts > cutoff {
			kept = append(kept, ts)
		}
	}
	e.roomOps = kept
	if len(e.roomOps) >= l.cl.MaxRoomOpsPerIPWindow {
		return false
	}
	e.roomOps = append(e.roomOps, nowMs)
	return true
}

// AddConn registers one connection; false means the per-IP cap is hit
// and the caller must refuse the socket.
func (l *IPLimiter) AddConn(ip string, nowMs int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	e := l.entry(ip, nowMs)
	if e.conns >= l.cl.MaxConnectionsPerIP {
		return false
	}
	e.conns++
	return true
}

// RemoveConn releases a connection slot.
func (l *IPLimiter) RemoveConn(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.entries[ip]; ok && e.conns > 0 {
		e.conns--
	}
}

// Sweep drops idle entries so the map does not grow with every address
// ever seen. Entries with live connections are kept regardless of age.
func (l *IPLimiter) Sweep(nowMs int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := nowMs - l.cl.BucketExpiryMs
	for ip, e := range l.entries {
		if e.conns == 0 && e.lastSeen < cutoff {
			delete(l.entries, ip)
		}
	}
}

// Tracked reports live entries, for tests and metrics.
func (l *IPLimiter) Tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
