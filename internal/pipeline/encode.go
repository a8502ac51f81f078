package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/zsiec/yts3/internal/chunker"
	"github.com/zsiec/yts3/internal/config"
	"github.com/zsiec/yts3/internal/crypto"
	"github.com/zsiec/yts3/internal/fountain"
	"github.com/zsiec/yts3/internal/frame"
	"github.com/zsiec/yts3/internal/packet"
)

// Encode runs the full pipeline forward: chunk the input file, optionally
// encrypt each chunk, fountain-code it into symbols, wrap each symbol in a
// packet, and paint the resulting byte stream into outputPath as an
// FFV1/MKV video. password may be empty to skip encryption.
func Encode(ctx context.Context, inputPath, outputPath, password string, cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	fileID, err := crypto.GenerateFileID()
	if err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}

	encrypted := password != ""
	var key [32]byte
	if encrypted {
		key = crypto.DeriveKey(password, fileID)
		defer crypto.SecureZero(key[:])
	}

	chunks, err := chunker.ChunkFile(inputPath, cfg.ChunkSize)
	if err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	slog.Info("chunked input", "chunks", len(chunks), "chunk_size", cfg.ChunkSize, "encrypted", encrypted)

	totalChunks := uint32(len(chunks))
	packetBatches := make([][]byte, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, runtime.NumCPU())

	for i, chunk := range chunks {
		i, chunk := i, chunk
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
			case <-gctx.Done():
				return gctx.Err()
			}
			defer func() { <-sem }()

			data := chunk.Data
			if encrypted {
				// Pad the plaintext so the ciphertext (plaintext plus the
				// 16-byte tag) fills whole symbols: Decode opens the
				// recovered k*SymbolSize bytes as they are.
				if rem := (len(data) + 16) % cfg.SymbolSize; rem != 0 {
					data = append(append([]byte(nil), data...), make([]byte, cfg.SymbolSize-rem)...)
				}
				ct, err := crypto.EncryptChunk(key, fileID, chunk.Index, data)
				if err != nil {
					return fmt.Errorf("chunk %d: %w", chunk.Index, err)
				}
				data = ct
			}

			symbols := fountain.Encode(fileID, chunk.Index, data, cfg.SymbolSize, cfg.RepairOverhead)
			k := uint16((len(data) + cfg.SymbolSize - 1) / cfg.SymbolSize)

			var buf bytes.Buffer
			for _, sym := range symbols {
				buf.Write(packet.Serialize(fileID, totalChunks, chunk.Index, k, sym.Index, sym.Seed, chunk.OriginalLen, encrypted, sym.Data))
			}

			packetBatches[i] = buf.Bytes()
			slog.Debug("chunk encoded", "index", chunk.Index, "symbols", len(symbols))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("pipeline: encode chunks: %w", err)
	}

	var packetStream []byte
	for _, b := range packetBatches {
		packetStream = append(packetStream, b...)
	}
	slog.Info("packetized", "bytes", len(packetStream))

	painter := frame.NewPainter(cfg)
	if err := painter.Paint(ctx, outputPath, packetStream); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}

	slog.Info("encode complete", "output", outputPath)
	return nil
}
