package rtp

import (
	"crypto/rand"
	"encoding/binary"

	"fishshoot.dev/server/config"
)

// Roller is the source of outcome rolls. Roll returns a uniform value in
// [0, config.PScale). Production uses the crypto/rand-backed roller;
// tests substitute a seeded generator for deterministic replay.
type Roller interface {
	Roll() int64
}

// RollerFunc adapts a plain function to the Roller interface.
type RollerFunc func() int64

func (f RollerFunc) Roll() int64 { return f() }

// CryptoRoller draws rolls from the operating system CSPRNG with
// rejection sampling, so the result is unbiased over [0, PScale).
type CryptoRoller struct{}

func NewCryptoRoller() CryptoRoller { return CryptoRoller{} }

func (CryptoRoller) Roll() int64 {
	// Largest multiple of PScale that fits in 63 bits. Draws at or above
	// it are rejected; the retry probability is about 4e-10.
	const bound = (int64(1<<63-1) / config.PScale) * config.PScale
	var buf [8]byte
	for {
		if _, err := rand.Read(buf[:]); err != nil {
			// The platform CSPRNG failing is not survivable for a
			// payout engine.
			panic("rtp: csprng read: " + err.Error())
		}
		v := int64(binary.BigEndian.Uint64(buf[:]) & (1<<63 - 1))
		if v < bound {
			return v % config.PScale
		}
	}
}

// SeededRoller is a deterministic splitmix64 generator for tests and
// replay harnesses. It is not cryptographically secure and must never
// back a production engine.
type SeededRoller struct {
	state uint64
}

func NewSeededRoller(seed uint64) *SeededRoller {
	return &SeededRoller{state: seed}
}

func (s *SeededRoller) next() uint64 {
	s.state += 0x9e3779b97f4a7c15
	z := s.state
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

func (s *SeededRoller) Roll() int64 {
	return int64(s.next()>>10) % config.PScale
}
