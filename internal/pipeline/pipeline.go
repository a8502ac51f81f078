// Package pipeline wires chunker, crypto, fountain, packet, and frame
// together into the two end-to-end operations the rest of the system
// cares about: Encode (file -> video) and Decode (video -> file), plus a
// Roundtrip helper that runs both with a Hook in between for verifying
// the codec against a real transport.
package pipeline

import (
	"context"
	"fmt"

	"github.com/zsiec/yts3/internal/config"
	"github.com/zsiec/yts3/internal/integrity"
)

// RoundtripResult reports the outcome of a full Encode -> Hook -> Decode
// cycle.
type RoundtripResult struct {
	OriginalHash string
	DecodedHash  string
	Matched      bool
}

// Roundtrip hashes input, encodes it to encodedPath, calls hook.AfterEncode
// to get the path to decode from, decodes that into outputPath, and
// compares the SHA-256 of input against the SHA-256 of the decoded output.
func Roundtrip(ctx context.Context, inputPath, encodedPath, outputPath, password string, cfg config.Config, hook Hook) (RoundtripResult, error) {
	originalHash, err := integrity.SHA256File(inputPath)
	if err != nil {
		return RoundtripResult{}, fmt.Errorf("pipeline: %w", err)
	}

	if err := Encode(ctx, inputPath, encodedPath, password, cfg); err != nil {
		return RoundtripResult{}, err
	}

	decodeFrom, err := hook.AfterEncode(ctx, encodedPath)
	if err != nil {
		return RoundtripResult{}, fmt.Errorf("pipeline: hook: %w", err)
	}

	if err := Decode(ctx, decodeFrom, outputPath, password, cfg); err != nil {
		return RoundtripResult{}, err
	}

	decodedHash, err := integrity.SHA256File(outputPath)
	if err != nil {
		return RoundtripResult{}, fmt.Errorf("pipeline: %w", err)
	}

	return RoundtripResult{
		OriginalHash: originalHash,
		DecodedHash:  decodedHash,
		Matched:      originalHash == decodedHash,
	}, nil
}
