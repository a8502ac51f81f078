// Package packet implements the wire format embedded into video frames:
// fixed-width, big-endian headers carrying a symbol payload, CRC-protected,
// and scannable out of an arbitrary byte stream by magic-number resync.
package packet

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/zsiec/yts3/internal/config"
	"github.com/zsiec/yts3/internal/integrity"
)

// Magic is the 4-byte ASCII tag every packet header begins with.
const Magic = "YTS3"

// Version is the current packet format version. Any change to the header
// layout or the canonical DCT coefficient position list must bump this.
const Version = 2

// Field widths, in bytes, in header order.
const (
	magicSize       = 4
	versionSize     = 1
	fileIDSize      = config.FileIDSize
	totalChunksSize = 4
	chunkIndexSize  = 4
	kSize           = 2
	symbolIndexSize = 2
	seedSize        = 4
	origLenSize     = 4
	symbolSizeSize  = 2
	encFlagSize     = 1
	reservedSize    = 6
	crcSize         = 4
)

// HeaderSize is the total header length, derived from the field widths
// above rather than hard-coded.
const HeaderSize = magicSize + versionSize + fileIDSize + totalChunksSize +
	chunkIndexSize + kSize + symbolIndexSize + seedSize + origLenSize +
	symbolSizeSize + encFlagSize + reservedSize + crcSize

// field offsets, computed from the widths above to keep layout and offsets
// from drifting apart.
const (
	offMagic       = 0
	offVersion     = offMagic + magicSize
	offFileID      = offVersion + versionSize
	offTotalChunks = offFileID + fileIDSize
	offChunkIndex  = offTotalChunks + totalChunksSize
	offK           = offChunkIndex + chunkIndexSize
	offSymbolIndex = offK + kSize
	offSeed        = offSymbolIndex + symbolIndexSize
	offOrigLen     = offSeed + seedSize
	offSymbolSize  = offOrigLen + origLenSize
	offEncFlag     = offSymbolSize + symbolSizeSize
	offReserved    = offEncFlag + encFlagSize
	offCRC         = offReserved + reservedSize
)

// Header holds the parsed fields of a packet header.
type Header struct {
	Version           uint8
	FileID            [config.FileIDSize]byte
	TotalChunks       uint32
	ChunkIndex        uint32
	K                 uint16
	SymbolIndex       uint16
	Seed              uint32
	ChunkOriginalLen  uint32
	SymbolSize        uint16
	Encrypted         bool
	CRC               uint32
}

// Packet is a complete header plus its symbol payload.
type Packet struct {
	Header  Header
	Payload []byte
}

// IsSource reports whether this packet carries a verbatim source symbol
// (symbol_index < k, seed == 0), as opposed to a fountain repair symbol.
func (h Header) IsSource() bool {
	return h.Seed == 0 && uint32(h.SymbolIndex) < uint32(h.K)
}

// ErrUnsupportedVersion is returned (and silently causes the scanner to
// skip the match) when a packet's version field isn't one this build knows.
var ErrUnsupportedVersion = errors.New("packet: unsupported version")

// ErrBufferTooShort is returned when there are not enough bytes to hold a
// full header, or a full header+payload.
var ErrBufferTooShort = errors.New("packet: buffer too short")

// ErrCRCMismatch is returned when the trailing CRC field does not match the
// checksum computed over the rest of the packet.
var ErrCRCMismatch = errors.New("packet: crc mismatch")

// ErrInvalidMagic is returned when the leading 4 bytes aren't the magic tag.
var ErrInvalidMagic = errors.New("packet: invalid magic")

// Serialize builds a complete packet (header + payload) as a byte slice.
// The symbol_size header field is taken directly from len(payload), so
// decode never needs a side-channel symbol size — it's read back out of
// the packet itself.
func Serialize(fileID [config.FileIDSize]byte, totalChunks, chunkIndex uint32, k uint16, symbolIndex uint16, seed uint32, chunkOriginalLen uint32, encrypted bool, payload []byte) []byte {
	buf := make([]byte, HeaderSize+len(payload))

	copy(buf[offMagic:], Magic)
	buf[offVersion] = Version
	copy(buf[offFileID:], fileID[:])
	binary.BigEndian.PutUint32(buf[offTotalChunks:], totalChunks)
	binary.BigEndian.PutUint32(buf[offChunkIndex:], chunkIndex)
	binary.BigEndian.PutUint16(buf[offK:], k)
	binary.BigEndian.PutUint16(buf[offSymbolIndex:], symbolIndex)
	binary.BigEndian.PutUint32(buf[offSeed:], seed)
	binary.BigEndian.PutUint32(buf[offOrigLen:], chunkOriginalLen)
	binary.BigEndian.PutUint16(buf[offSymbolSize:], uint16(len(payload)))
	if encrypted {
		buf[offEncFlag] = 1
	}
	// offReserved..offCRC is already zero-filled by make().
	copy(buf[HeaderSize:], payload)

	crc := integrity.PacketCRC32(buf[:HeaderSize], offCRC, payload)
	binary.BigEndian.PutUint32(buf[offCRC:], crc)

	return buf
}

// Deserialize parses a single packet from the front of data. It returns the
// parsed packet and the number of bytes consumed (HeaderSize + payload
// length). The payload length comes from the header's own symbol_size
// field — no side-channel configuration is needed to parse a packet.
func Deserialize(data []byte) (Packet, int, error) {
	if len(data) < HeaderSize {
		return Packet{}, 0, fmt.Errorf("%w: need %d header bytes, have %d", ErrBufferTooShort, HeaderSize, len(data))
	}
	if string(data[offMagic:offMagic+magicSize]) != Magic {
		return Packet{}, 0, ErrInvalidMagic
	}

	version := data[offVersion]
	if version != Version {
		return Packet{}, 0, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}

	symbolSize := int(binary.BigEndian.Uint16(data[offSymbolSize:]))
	total := HeaderSize + symbolSize
	if len(data) < total {
		return Packet{}, 0, fmt.Errorf("%w: need %d bytes, have %d", ErrBufferTooShort, total, len(data))
	}

	header := data[:HeaderSize]
	payload := data[HeaderSize:total]

	crcExpect := binary.BigEndian.Uint32(header[offCRC:])
	if err := integrity.VerifyPacketCRC(header, offCRC, payload, crcExpect); err != nil {
		return Packet{}, 0, fmt.Errorf("%w: %v", ErrCRCMismatch, err)
	}

	var h Header
	h.Version = version
	copy(h.FileID[:], header[offFileID:offFileID+fileIDSize])
	h.TotalChunks = binary.BigEndian.Uint32(header[offTotalChunks:])
	h.ChunkIndex = binary.BigEndian.Uint32(header[offChunkIndex:])
	h.K = binary.BigEndian.Uint16(header[offK:])
	h.SymbolIndex = binary.BigEndian.Uint16(header[offSymbolIndex:])
	h.Seed = binary.BigEndian.Uint32(header[offSeed:])
	h.ChunkOriginalLen = binary.BigEndian.Uint32(header[offOrigLen:])
	h.SymbolSize = uint16(symbolSize)
	h.Encrypted = header[offEncFlag] != 0
	h.CRC = crcExpect

	pkt := Packet{Header: h, Payload: append([]byte(nil), payload...)}
	return pkt, total, nil
}
