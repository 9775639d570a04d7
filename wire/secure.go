package wire

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"io"
)

// SessionKeys holds the two per-session keys derived by the handshake.
type SessionKeys struct {
	EncKey  [32]byte
	HMACKey [32]byte
}

const gcmIVSize = 12

// gcmIV derives the 12-byte IV for one frame: be_u64(nonce) || u32 zero.
// Nonce monotonicity guarantees IV uniqueness per key.
func gcmIV(nonce uint64) [gcmIVSize]byte {
	var iv [gcmIVSize]byte
	binary.BigEndian.PutUint64(iv[0:8], nonce)
	return iv
}

func newGCM(key [32]byte) (cipher.AEAD, *Error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, werr(DECRYPTION_FAILED, "cipher init")
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, werr(DECRYPTION_FAILED, "gcm init")
	}
	return aead, nil
}

// Seal builds a complete encrypted frame:
//
//	[header 19 | ciphertext L | gcm tag 16 | hmac 32]
//
// The caller supplies its own monotonic nonce counter.
func Seal(keys SessionKeys, id PacketID, nonce uint64, plaintext []byte) ([]byte, *Error) {
	if err := CheckPayloadSize(id, len(plaintext)); err != nil {
		return nil, err
	}
	aead, werr2 := newGCM(keys.EncKey)
	if werr2 != nil {
		return nil, werr2
	}
	iv := gcmIV(nonce)
	ctAndTag := aead.Seal(nil, iv[:], plaintext, nil)

	h := Header{
		Version:  ProtoVersion,
		PacketID: id,
		Length:   uint32(len(plaintext)),
		Nonce:    nonce,
	}
	h.CRC32 = frameCRC(h, ctAndTag)
	hdr := h.Marshal()

	mac := hmac.New(sha256.New, keys.HMACKey[:])
	mac.Write(hdr)
	mac.Write(ctAndTag)

	frame := make([]byte, 0, HeaderSize+len(ctAndTag)+HMACSize)
	frame = append(frame, hdr...)
	frame = append(frame, ctAndTag...)
	frame = append(frame, mac.Sum(nil)...)
	return frame, nil
}

// Open runs the full receive pipeline on one frame in the order the
// protocol requires: header policy, CRC32, constant-time HMAC, AES-GCM,
// then nonce monotonicity against lastNonce. Every failure is fatal for
// the connection. On success it returns the header and the plaintext;
// the caller advances its nonce watermark to header.Nonce.
func Open(keys SessionKeys, frame []byte, lastNonce uint64) (Header, []byte, *Error) {
	if len(frame) < HeaderSize+GCMTagSize+HMACSize {
		return Header{}, nil, werr(INVALID_PACKET, "short frame")
	}
	h, perr := ParseHeader(frame[:HeaderSize])
	if perr != nil {
		return Header{}, nil, perr
	}
	want := HeaderSize + int(h.Length) + GCMTagSize + HMACSize
	if len(frame) != want {
		return Header{}, nil, werr(INVALID_PACKET, "frame length mismatch")
	}
	ctAndTag := frame[HeaderSize : HeaderSize+int(h.Length)+GCMTagSize]
	trailer := frame[want-HMACSize:]

	if frameCRC(h, ctAndTag) != h.CRC32 {
		return Header{}, nil, werr(INVALID_CHECKSUM, "")
	}

	mac := hmac.New(sha256.New, keys.HMACKey[:])
	mac.Write(frame[:HeaderSize])
	mac.Write(ctAndTag)
	if !hmac.Equal(mac.Sum(nil), trailer) {
		return Header{}, nil, werr(INVALID_HMAC, "")
	}

	aead, gerr := newGCM(keys.EncKey)
	if gerr != nil {
		return Header{}, nil, gerr
	}
	iv := gcmIV(h.Nonce)
	plaintext, err := aead.Open(nil, iv[:], ctAndTag, nil)
	if err != nil {
		return Header{}, nil, werr(DECRYPTION_FAILED, "")
	}

	if h.Nonce <= lastNonce {
		return Header{}, nil, werr(INVALID_NONCE, "")
	}
	return h, plaintext, nil
}

// ReadFrame reads exactly one encrypted frame from r, enforcing the size
// policy on the declared length before reading the body. It handles
// partial reads.
func ReadFrame(r io.Reader) ([]byte, *Error) {
	hdr := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return nil, werr(INVALID_PACKET, "read header")
	}
	h, perr := ParseHeader(hdr)
	if perr != nil {
		// Do not read an attacker-controlled body for a rejected header.
		return nil, perr
	}
	body := make([]byte, int(h.Length)+GCMTagSize+HMACSize)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, werr(INVALID_PACKET, "read body")
	}
	return append(hdr, body...), nil
}

// WriteFrame writes one complete frame to w.
func WriteFrame(w io.Writer, frame []byte) *Error {
	if _, err := w.Write(frame); err != nil {
		return werr(INVALID_PACKET, "write frame")
	}
	return nil
}
