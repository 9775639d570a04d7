package wire

import (
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Handshake frames travel before session keys exist, so they use a small
// plaintext prefix instead of the 19-byte encrypted-frame header:
//
//	version  u8   must be ProtoVersion
//	reserved u8   must be zero
//	length   u16  payload length, big-endian
const handshakePrefixSize = 4

const (
	ecPointSize        = 65 // uncompressed P-256 point
	handshakeNonceSize = 32
	handshakeSaltSize  = 32

	HandshakeRequestSize  = ecPointSize + handshakeNonceSize + 1
	HandshakeResponseSize = ecPointSize + handshakeNonceSize + handshakeSaltSize + SessionIDSize
)

// hkdfInfoTag binds the derived keys to this protocol revision.
const hkdfInfoTag = "fishshoot-v2 session keys"

// HandshakeRequest is the client's opening message.
type HandshakeRequest struct {
	ClientPub   [ecPointSize]byte
	ClientNonce [handshakeNonceSize]byte
	Version     uint8
}

func (p HandshakeRequest) Encode() []byte {
	w := newWriter(HandshakeRequestSize)
	w.Bytes(p.ClientPub[:])
	w.Bytes(p.ClientNonce[:])
	w.U8(p.Version)
	return w.Finish()
}

func DecodeHandshakeRequest(b []byte) (HandshakeRequest, *Error) {
	r := newReader(b)
	var p HandshakeRequest
	copy(p.ClientPub[:], r.Bytes(ecPointSize))
	copy(p.ClientNonce[:], r.Bytes(handshakeNonceSize))
	p.Version = r.U8()
	if err := finish(r, PacketHandshakeRequest); err != nil {
		return HandshakeRequest{}, err
	}
	return p, nil
}

// HandshakeResponse is the server's reply.
type HandshakeResponse struct {
	ServerPub   [ecPointSize]byte
	ServerNonce [handshakeNonceSize]byte
	Salt        [handshakeSaltSize]byte
	SessionID   [SessionIDSize]byte
}

func (p HandshakeResponse) Encode() []byte {
	w := newWriter(HandshakeResponseSize)
	w.Bytes(p.ServerPub[:])
	w.Bytes(p.ServerNonce[:])
	w.Bytes(p.Salt[:])
	w.Bytes(p.SessionID[:])
	return w.Finish()
}

func DecodeHandshakeResponse(b []byte) (HandshakeResponse, *Error) {
	r := newReader(b)
	var p HandshakeResponse
	copy(p.ServerPub[:], r.Bytes(ecPointSize))
	copy(p.ServerNonce[:], r.Bytes(handshakeNonceSize))
	copy(p.Salt[:], r.Bytes(handshakeSaltSize))
	copy(p.SessionID[:], r.Bytes(SessionIDSize))
	if err := finish(r, PacketHandshakeResponse); err != nil {
		return HandshakeResponse{}, err
	}
	return p, nil
}

// WriteHandshakeFrame writes one plaintext-prefixed handshake message.
func WriteHandshakeFrame(w io.Writer, payload []byte) *Error {
	if len(payload) > 0xffff {
		return werr(INVALID_HANDSHAKE, "payload too large")
	}
	var prefix [handshakePrefixSize]byte
	prefix[0] = ProtoVersion
	binary.BigEndian.PutUint16(prefix[2:4], uint16(len(payload)))
	if _, err := w.Write(prefix[:]); err != nil {
		return werr(INVALID_HANDSHAKE, "write prefix")
	}
	if _, err := w.Write(payload); err != nil {
		return werr(INVALID_HANDSHAKE, "write payload")
	}
	return nil
}

// ReadHandshakeFrame reads one plaintext-prefixed handshake message of
// the exact expected size. Handshake failures are fatal and silent: the
// caller closes the socket without an encrypted error.
func ReadHandshakeFrame(r io.Reader, wantSize int) ([]byte, *Error) {
	var prefix [handshakePrefixSize]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, werr(INVALID_HANDSHAKE, "read prefix")
	}
	if prefix[0] != ProtoVersion || prefix[1] != 0 {
		return nil, werr(INVALID_HANDSHAKE, "bad prefix")
	}
	n := int(binary.BigEndian.Uint16(prefix[2:4]))
	if n != wantSize {
		return nil, werr(INVALID_HANDSHAKE, "bad handshake length")
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, werr(INVALID_HANDSHAKE, "read payload")
	}
	return payload, nil
}

// transcript binds both public keys, both nonces, and the protocol
// version into the KDF info so a transplanted key exchange cannot yield
// the same session keys.
func transcript(clientPub, serverPub []byte, clientNonce, serverNonce [handshakeNonceSize]byte, version uint8) [32]byte {
	h := sha256.New()
	h.Write(clientPub)
	h.Write(serverPub)
	h.Write(clientNonce[:])
	h.Write(serverNonce[:])
	h.Write([]byte{version})
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// deriveKeys runs HKDF-SHA256 (RFC 5869) over the ECDH shared secret.
func deriveKeys(shared []byte, salt [handshakeSaltSize]byte, ts [32]byte) (SessionKeys, *Error) {
	info := make([]byte, 0, len(ts)+len(hkdfInfoTag))
	info = append(info, ts[:]...)
	info = append(info, hkdfInfoTag...)
	kr := hkdf.New(sha256.New, shared, salt[:], info)
	var okm [64]byte
	if _, err := io.ReadFull(kr, okm[:]); err != nil {
		return SessionKeys{}, werr(KEY_DERIVATION_FAILED, "")
	}
	var keys SessionKeys
	copy(keys.EncKey[:], okm[0:32])
	copy(keys.HMACKey[:], okm[32:64])
	return keys, nil
}

// ServerHandshake consumes a decoded request and produces the session
// keys plus the response to send. The ephemeral private key never leaves
// this function.
func ServerHandshake(req HandshakeRequest, sessionID [SessionIDSize]byte) (SessionKeys, HandshakeResponse, *Error) {
	if req.Version != ProtoVersion {
		return SessionKeys{}, HandshakeResponse{}, werr(INVALID_HANDSHAKE, "version")
	}
	curve := ecdh.P256()
	clientPub, err := curve.NewPublicKey(req.ClientPub[:])
	if err != nil {
		return SessionKeys{}, HandshakeResponse{}, werr(INVALID_HANDSHAKE, "client key")
	}
	serverPriv, err := curve.GenerateKey(rand.Reader)
	if err != nil {
		return SessionKeys{}, HandshakeResponse{}, werr(KEY_DERIVATION_FAILED, "")
	}
	shared, err := serverPriv.ECDH(clientPub)
	if err != nil {
		return SessionKeys{}, HandshakeResponse{}, werr(INVALID_HANDSHAKE, "ecdh")
	}

	var resp HandshakeResponse
	copy(resp.ServerPub[:], serverPriv.PublicKey().Bytes())
	if _, err := rand.Read(resp.ServerNonce[:]); err != nil {
		return SessionKeys{}, HandshakeResponse{}, werr(KEY_DERIVATION_FAILED, "")
	}
	if _, err := rand.Read(resp.Salt[:]); err != nil {
		return SessionKeys{}, HandshakeResponse{}, werr(KEY_DERIVATION_FAILED, "")
	}
	resp.SessionID = sessionID

	ts := transcript(req.ClientPub[:], resp.ServerPub[:], req.ClientNonce, resp.ServerNonce, req.Version)
	keys, derr := deriveKeys(shared, resp.Salt, ts)
	if derr != nil {
		return SessionKeys{}, HandshakeResponse{}, derr
	}
	return keys, resp, nil
}

// ClientHandshakeStart generates the client side's ephemeral key and
// request message.
func ClientHandshakeStart() (*ecdh.PrivateKey, HandshakeRequest, *Error) {
	curve := ecdh.P256()
	priv, err := curve.GenerateKey(rand.Reader)
	if err != nil {
		return nil, HandshakeRequest{}, werr(KEY_DERIVATION_FAILED, "")
	}
	var req HandshakeRequest
	copy(req.ClientPub[:], priv.PublicKey().Bytes())
	if _, err := rand.Read(req.ClientNonce[:]); err != nil {
		return nil, HandshakeRequest{}, werr(KEY_DERIVATION_FAILED, "")
	}
	req.Version = ProtoVersion
	return priv, req, nil
}

// ClientHandshakeFinish derives the client side's copy of the session
// keys from the server's response.
func ClientHandshakeFinish(priv *ecdh.PrivateKey, req HandshakeRequest, resp HandshakeResponse) (SessionKeys, *Error) {
	curve := ecdh.P256()
	serverPub, err := curve.NewPublicKey(resp.ServerPub[:])
	if err != nil {
		return SessionKeys{}, werr(INVALID_HANDSHAKE, "server key")
	}
	shared, err := priv.ECDH(serverPub)
	if err != nil {
		return SessionKeys{}, werr(INVALID_HANDSHAKE, "ecdh")
	}
	ts := transcript(req.ClientPub[:], resp.ServerPub[:], req.ClientNonce, resp.ServerNonce, req.Version)
	return deriveKeys(shared, resp.Salt, ts)
}
