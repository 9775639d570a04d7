package wire

import "fmt"

// ErrorCode enumerates every protocol failure the server can produce.
type ErrorCode uint16

const (
	// Fatal codes: the socket closes after (at most) a bare error packet.
	INVALID_PACKET        ErrorCode = 0x0001
	INVALID_CHECKSUM      ErrorCode = 0x0002
	INVALID_HMAC          ErrorCode = 0x0003
	DECRYPTION_FAILED     ErrorCode = 0x0004
	INVALID_NONCE         ErrorCode = 0x0005
	INVALID_HANDSHAKE     ErrorCode = 0x0006
	UNKNOWN_PACKET_ID     ErrorCode = 0x0007
	PAYLOAD_TOO_LARGE     ErrorCode = 0x0008
	PAYLOAD_TOO_SMALL     ErrorCode = 0x0009
	KEY_DERIVATION_FAILED ErrorCode = 0x000A

	// Reported codes: the session continues.
	RATE_LIMITED         ErrorCode = 0x0101
	INSUFFICIENT_BALANCE ErrorCode = 0x0102
	INVALID_WEAPON       ErrorCode = 0x0103
	INVALID_ROOM         ErrorCode = 0x0104
	ROOM_FULL            ErrorCode = 0x0105
	INVALID_SESSION      ErrorCode = 0x0106
)

var codeNames = map[ErrorCode]string{
	INVALID_PACKET:        "INVALID_PACKET",
	INVALID_CHECKSUM:      "INVALID_CHECKSUM",
	INVALID_HMAC:          "INVALID_HMAC",
	DECRYPTION_FAILED:     "DECRYPTION_FAILED",
	INVALID_NONCE:         "INVALID_NONCE",
	INVALID_HANDSHAKE:     "INVALID_HANDSHAKE",
	UNKNOWN_PACKET_ID:     "UNKNOWN_PACKET_ID",
	PAYLOAD_TOO_LARGE:     "PAYLOAD_TOO_LARGE",
	PAYLOAD_TOO_SMALL:     "PAYLOAD_TOO_SMALL",
	KEY_DERIVATION_FAILED: "KEY_DERIVATION_FAILED",
	RATE_LIMITED:          "RATE_LIMITED",
	INSUFFICIENT_BALANCE:  "INSUFFICIENT_BALANCE",
	INVALID_WEAPON:        "INVALID_WEAPON",
	INVALID_ROOM:          "INVALID_ROOM",
	ROOM_FULL:             "ROOM_FULL",
	INVALID_SESSION:       "INVALID_SESSION",
}

func (c ErrorCode) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("ErrorCode(0x%04x)", uint16(c))
}

// Fatal reports whether the code must close the connection.
func (c ErrorCode) Fatal() bool {
	return c < 0x0100
}

// Error is the policy surface for protocol failures: the code tells the
// caller whether to close the socket; Msg never carries diagnostic detail
// beyond what may go over the wire.
type Error struct {
	Code ErrorCode
	Msg  string
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func werr(code ErrorCode, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

// CodeOf extracts the protocol code from err, or INVALID_PACKET when err
// is not a wire error.
func CodeOf(err error) ErrorCode {
	if we, ok := err.(*Error); ok && we != nil {
		return we.Code
	}
	return INVALID_PACKET
}
