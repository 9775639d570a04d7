package wire

import (
	"encoding/binary"
	"hash/crc32"
)

const (
	// ProtoVersion is the only protocol version this server speaks. There
	// is no compatibility path to the old unencrypted format.
	ProtoVersion = 2

	// HeaderSize is the fixed frame header length.
	HeaderSize = 19

	// GCMTagSize and HMACSize are the trailing authenticator lengths.
	GCMTagSize = 16
	HMACSize   = 32

	// crcCoverage is the header prefix covered by the CRC (version, id,
	// length, and the zeroed checksum field itself).
	crcCoverage = 11
)

// Header is the 19-byte big-endian frame header:
//
//	version   u8
//	packet_id u16
//	length    u32   decrypted payload length L (== ciphertext length)
//	crc32     u32   over header[0:11] (crc field zeroed) || ct || tag
//	nonce     u64
type Header struct {
	Version  uint8
	PacketID PacketID
	Length   uint32
	CRC32    uint32
	Nonce    uint64
}

// Marshal writes the header into a fresh 19-byte slice.
func (h Header) Marshal() []byte {
	out := make([]byte, HeaderSize)
	out[0] = h.Version
	binary.BigEndian.PutUint16(out[1:3], uint16(h.PacketID))
	binary.BigEndian.PutUint32(out[3:7], h.Length)
	binary.BigEndian.PutUint32(out[7:11], h.CRC32)
	binary.BigEndian.PutUint64(out[11:19], h.Nonce)
	return out
}

// ParseHeader validates version, id whitelist, and size policy. Any
// failure is fatal for the connection.
func ParseHeader(b []byte) (Header, *Error) {
	if len(b) < HeaderSize {
		return Header{}, werr(INVALID_PACKET, "short header")
	}
	h := Header{
		Version:  b[0],
		PacketID: PacketID(binary.BigEndian.Uint16(b[1:3])),
		Length:   binary.BigEndian.Uint32(b[3:7]),
		CRC32:    binary.BigEndian.Uint32(b[7:11]),
		Nonce:    binary.BigEndian.Uint64(b[11:19]),
	}
	if h.Version != ProtoVersion {
		return Header{}, werr(INVALID_PACKET, "unsupported protocol version")
	}
	if !h.PacketID.Known() {
		return Header{}, werr(UNKNOWN_PACKET_ID, h.PacketID.String())
	}
	if err := CheckPayloadSize(h.PacketID, int(h.Length)); err != nil {
		return Header{}, err
	}
	return h, nil
}

// frameCRC computes the integrity checksum over the first 11 header bytes
// with the checksum field zeroed, followed by ciphertext and GCM tag.
func frameCRC(h Header, ctAndTag []byte) uint32 {
	var prefix [crcCoverage]byte
	prefix[0] = h.Version
	binary.BigEndian.PutUint16(prefix[1:3], uint16(h.PacketID))
	binary.BigEndian.PutUint32(prefix[3:7], h.Length)
	// prefix[7:11] stays zero.
	c := crc32.NewIEEE()
	_, _ = c.Write(prefix[:])
	_, _ = c.Write(ctAndTag)
	return c.Sum32()
}
