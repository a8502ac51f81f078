package chunker

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChunkBytesEmpty(t *testing.T) {
	t.Parallel()

	chunks := ChunkBytes(nil, 1024)
	require.Len(t, chunks, 1)
	require.Equal(t, uint32(0), chunks[0].OriginalLen)
	require.Len(t, chunks[0].Data, 1024)
}

func TestChunkBytesMultiple(t *testing.T) {
	t.Parallel()

	data := bytes.Repeat([]byte{0xAB}, 2500)
	chunks := ChunkBytes(data, 1000)
	require.Len(t, chunks, 3)
	require.Equal(t, uint32(1000), chunks[0].OriginalLen)
	require.Equal(t, uint32(1000), chunks[1].OriginalLen)
	require.Equal(t, uint32(500), chunks[2].OriginalLen)
	require.Len(t, chunks[2].Data, 1000) // padded
}

func TestChunkBytesExactMultiple(t *testing.T) {
	t.Parallel()

	data := make([]byte, 2048)
	chunks := ChunkBytes(data, 1024)
	require.Len(t, chunks, 2)
	require.Equal(t, uint32(1024), chunks[1].OriginalLen)
}

func TestChunkFileRoundtrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "input.bin")

	data := make([]byte, 5000)
	for i := range data {
		data[i] = byte(i % 256)
	}
	require.NoError(t, os.WriteFile(path, data, 0o600))

	chunks, err := ChunkFile(path, 2000)
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	var reassembled []byte
	for _, c := range chunks {
		reassembled = append(reassembled, c.Data[:c.OriginalLen]...)
	}
	require.Equal(t, data, reassembled)
}

func TestAssemblerWriteToOrdersByIndex(t *testing.T) {
	t.Parallel()

	a := NewAssembler(3)
	a.Add(2, append(bytes.Repeat([]byte{3}, 8), 0, 0), 8)
	a.Add(0, append(bytes.Repeat([]byte{1}, 8), 0, 0), 8)
	a.Add(1, append(bytes.Repeat([]byte{2}, 8), 0, 0), 8)

	var buf bytes.Buffer
	require.NoError(t, a.WriteTo(&buf))

	want := append(bytes.Repeat([]byte{1}, 8), bytes.Repeat([]byte{2}, 8)...)
	want = append(want, bytes.Repeat([]byte{3}, 8)...)
	require.Equal(t, want, buf.Bytes())
}

func TestAssemblerMissingChunk(t *testing.T) {
	t.Parallel()

	a := NewAssembler(2)
	a.Add(0, []byte{1, 2, 3}, 3)

	var buf bytes.Buffer
	err := a.WriteTo(&buf)
	require.ErrorIs(t, err, ErrMissingChunks)
}
