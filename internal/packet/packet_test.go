package packet

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zsiec/yts3/internal/config"
)

func testFileID() [config.FileIDSize]byte {
	var id [config.FileIDSize]byte
	for i := range id {
		id[i] = byte(i)
	}
	return id
}

func TestSerializeDeserializeRoundtrip(t *testing.T) {
	t.Parallel()

	fileID := testFileID()
	payload := bytesOf(0xAA, 256)

	data := Serialize(fileID, 5, 3, 4, 3, 0, 900, false, payload)
	require.Equal(t, HeaderSize+256, len(data))

	pkt, consumed, err := Deserialize(data)
	require.NoError(t, err)
	require.Equal(t, HeaderSize+256, consumed)
	require.Equal(t, fileID, pkt.Header.FileID)
	require.Equal(t, uint32(5), pkt.Header.TotalChunks)
	require.Equal(t, uint32(3), pkt.Header.ChunkIndex)
	require.Equal(t, uint16(4), pkt.Header.K)
	require.Equal(t, uint16(3), pkt.Header.SymbolIndex)
	require.Equal(t, uint32(900), pkt.Header.ChunkOriginalLen)
	require.Equal(t, uint16(256), pkt.Header.SymbolSize)
	require.False(t, pkt.Header.Encrypted)
	require.True(t, pkt.Header.IsSource()) // symbol_index 3 < k 4, seed 0
	require.Equal(t, payload, pkt.Payload)
}

func TestDeserializeCRCMismatch(t *testing.T) {
	t.Parallel()

	fileID := testFileID()
	payload := bytesOf(0xBB, 128)
	data := Serialize(fileID, 1, 0, 4, 0, 0, 512, false, payload)

	data[HeaderSize+10] ^= 0xFF

	_, _, err := Deserialize(data)
	require.ErrorIs(t, err, ErrCRCMismatch)
}

func TestScanFindsPacketsAcrossGarbage(t *testing.T) {
	t.Parallel()

	fileID := testFileID()
	p1 := Serialize(fileID, 1, 0, 4, 0, 0, 200, false, bytesOf(1, 64))
	p2 := Serialize(fileID, 1, 0, 4, 1, 7, 200, false, bytesOf(2, 64))

	var stream []byte
	stream = append(stream, bytesOf(0xFF, 10)...)
	stream = append(stream, p1...)
	stream = append(stream, bytesOf(0x00, 5)...)
	stream = append(stream, p2...)
	stream = append(stream, bytesOf(0xAA, 20)...)

	packets := Scan(stream)
	require.Len(t, packets, 2)
	require.Equal(t, uint16(0), packets[0].Header.SymbolIndex)
	require.Equal(t, uint16(1), packets[1].Header.SymbolIndex)
	require.Equal(t, uint32(7), packets[1].Header.Seed)
}

func TestScanIsIdempotent(t *testing.T) {
	t.Parallel()

	fileID := testFileID()
	data := Serialize(fileID, 1, 0, 1, 0, 0, 10, false, bytesOf(9, 16))

	first := Scan(data)
	second := Scan(data)
	require.Equal(t, first, second)
}

func TestScanSkipsSingleByteTamperOutsideCRC(t *testing.T) {
	t.Parallel()

	fileID := testFileID()
	data := Serialize(fileID, 1, 0, 1, 0, 0, 16, false, bytesOf(1, 16))

	for i := 0; i < len(data); i++ {
		if i == offCRC || i == offCRC+1 || i == offCRC+2 || i == offCRC+3 {
			continue
		}
		mutated := append([]byte(nil), data...)
		mutated[i] ^= 0xFF
		packets := Scan(mutated)
		require.Empty(t, packets, "mutating byte %d should invalidate the packet", i)
	}
}

func bytesOf(b byte, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = b
	}
	return out
}
