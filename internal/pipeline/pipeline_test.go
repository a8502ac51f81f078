package pipeline

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zsiec/yts3/internal/config"
	"github.com/zsiec/yts3/internal/crypto"
)

// requireFFmpeg skips the test if ffmpeg isn't on PATH: Encode/Decode shell
// out to it, so these are integration tests against a real external tool,
// not unit tests.
func requireFFmpeg(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not found on PATH, skipping pipeline integration test")
	}
}

func smallConfig() config.Config {
	return config.Config{
		Width:               32,
		Height:              32,
		FPS:                 1,
		BitsPerBlock:        1,
		CoefficientStrength: config.DefaultCoefficientStrength,
		ChunkSize:           64,
		RepairOverhead:      2.0,
		SymbolSize:          16,
	}
}

func TestEncodeDecodeRoundtripNoPassword(t *testing.T) {
	requireFFmpeg(t)
	t.Parallel()

	dir := t.TempDir()
	input := filepath.Join(dir, "input.bin")
	video := filepath.Join(dir, "out.mkv")
	output := filepath.Join(dir, "output.bin")

	data := make([]byte, 500)
	for i := range data {
		data[i] = byte(i % 256)
	}
	require.NoError(t, os.WriteFile(input, data, 0o644))

	ctx := context.Background()
	cfg := smallConfig()

	require.NoError(t, Encode(ctx, input, video, "", cfg))
	require.NoError(t, Decode(ctx, video, output, "", cfg))

	got, err := os.ReadFile(output)
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestEncodeDecodeRoundtripWithPassword(t *testing.T) {
	requireFFmpeg(t)
	t.Parallel()

	dir := t.TempDir()
	input := filepath.Join(dir, "input.bin")
	video := filepath.Join(dir, "out.mkv")
	output := filepath.Join(dir, "output.bin")

	data := []byte("a secret little message, repeated a few times over to fill chunks")
	require.NoError(t, os.WriteFile(input, data, 0o644))

	ctx := context.Background()
	cfg := smallConfig()

	require.NoError(t, Encode(ctx, input, video, "correct-password", cfg))
	require.NoError(t, Decode(ctx, video, output, "correct-password", cfg))

	got, err := os.ReadFile(output)
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestDecodeWithWrongPasswordLeavesNoOutputFile(t *testing.T) {
	requireFFmpeg(t)
	t.Parallel()

	dir := t.TempDir()
	input := filepath.Join(dir, "input.bin")
	video := filepath.Join(dir, "out.mkv")
	output := filepath.Join(dir, "output.bin")

	require.NoError(t, os.WriteFile(input, []byte("protected contents"), 0o644))

	ctx := context.Background()
	cfg := smallConfig()

	require.NoError(t, Encode(ctx, input, video, "correct-password", cfg))

	err := Decode(ctx, video, output, "wrong-password", cfg)
	require.Error(t, err)
	require.ErrorIs(t, err, crypto.ErrAuthFailed)

	_, statErr := os.Stat(output)
	require.True(t, os.IsNotExist(statErr), "decode must not leave a partial output file behind on failure")
}

func TestDecodeWithNoPasswordOnEncryptedFileFails(t *testing.T) {
	requireFFmpeg(t)
	t.Parallel()

	dir := t.TempDir()
	input := filepath.Join(dir, "input.bin")
	video := filepath.Join(dir, "out.mkv")
	output := filepath.Join(dir, "output.bin")

	require.NoError(t, os.WriteFile(input, []byte("protected contents"), 0o644))

	ctx := context.Background()
	cfg := smallConfig()

	require.NoError(t, Encode(ctx, input, video, "a-password", cfg))

	err := Decode(ctx, video, output, "", cfg)
	require.True(t, errors.Is(err, ErrPasswordRequired))
}

func TestRoundtripHelperWithNoopHook(t *testing.T) {
	requireFFmpeg(t)
	t.Parallel()

	dir := t.TempDir()
	input := filepath.Join(dir, "input.bin")
	video := filepath.Join(dir, "out.mkv")
	output := filepath.Join(dir, "output.bin")

	require.NoError(t, os.WriteFile(input, []byte("roundtrip via the helper"), 0o644))

	ctx := context.Background()
	cfg := smallConfig()

	result, err := Roundtrip(ctx, input, video, output, "", cfg, NoopHook{})
	require.NoError(t, err)
	require.True(t, result.Matched)
	require.Equal(t, result.OriginalHash, result.DecodedHash)
}

func TestEncodeRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	input := filepath.Join(dir, "input.bin")
	require.NoError(t, os.WriteFile(input, []byte("x"), 0o644))

	cfg := smallConfig()
	cfg.Width = 7 // not a multiple of the block size

	err := Encode(context.Background(), input, filepath.Join(dir, "out.mkv"), "", cfg)
	require.ErrorIs(t, err, config.ErrInvalidConfig)
}
