package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/zsiec/yts3/internal/chunker"
	"github.com/zsiec/yts3/internal/config"
	"github.com/zsiec/yts3/internal/crypto"
	"github.com/zsiec/yts3/internal/fountain"
	"github.com/zsiec/yts3/internal/frame"
	"github.com/zsiec/yts3/internal/packet"
)

type chunkMeta struct {
	k           uint16
	originalLen uint32
	symbolSize  int
}

type decodedChunk struct {
	index uint32
	data  []byte
}

// Decode runs the full pipeline backward: read inputVideoPath's frames,
// scan the recovered byte stream for packets, fountain-decode each chunk,
// optionally decrypt it, and reassemble the original file at outputPath.
// No output file is written unless every chunk decodes and (when
// encrypted) authenticates successfully.
func Decode(ctx context.Context, inputVideoPath, outputPath, password string, cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	reader := frame.NewReader(cfg)
	raw, err := reader.Read(ctx, inputVideoPath)
	if err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}

	packets := packet.Scan(raw)
	slog.Info("scanned video", "packets", len(packets))
	if len(packets) == 0 {
		return ErrNoPackets
	}

	fileID := packets[0].Header.FileID
	encrypted := packets[0].Header.Encrypted
	totalChunks := packets[0].Header.TotalChunks

	var key [32]byte
	if encrypted {
		if password == "" {
			return ErrPasswordRequired
		}
		key = crypto.DeriveKey(password, fileID)
		defer crypto.SecureZero(key[:])
	}

	chunkPackets := make(map[uint32][]packet.Packet)
	chunkMetas := make(map[uint32]chunkMeta)
	for _, pkt := range packets {
		ci := pkt.Header.ChunkIndex
		chunkPackets[ci] = append(chunkPackets[ci], pkt)
		if _, ok := chunkMetas[ci]; !ok {
			chunkMetas[ci] = chunkMeta{k: pkt.Header.K, originalLen: pkt.Header.ChunkOriginalLen, symbolSize: int(pkt.Header.SymbolSize)}
		}
	}

	indices := make([]uint32, 0, len(chunkPackets))
	for ci := range chunkPackets {
		indices = append(indices, ci)
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })
	slog.Info("grouped packets", "chunks", len(indices), "total_chunks", totalChunks)

	results := make([]decodedChunk, len(indices))

	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, runtime.NumCPU())

	for pos, ci := range indices {
		pos, ci := pos, ci
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
			case <-gctx.Done():
				return gctx.Err()
			}
			defer func() { <-sem }()

			meta := chunkMetas[ci]
			fdec := fountain.NewDecoder(int(meta.k), meta.symbolSize)
			for _, pkt := range chunkPackets[ci] {
				fdec.AddSymbol(pkt.Header.SymbolIndex, pkt.Header.Seed, pkt.Payload)
			}

			recovered, err := fdec.Recover()
			if err != nil {
				return fmt.Errorf("chunk %d: %w", ci, err)
			}

			if encrypted {
				plaintext, err := crypto.DecryptChunk(key, fileID, ci, recovered)
				if err != nil {
					return fmt.Errorf("chunk %d: %w", ci, err)
				}
				recovered = plaintext
			}

			results[pos] = decodedChunk{index: ci, data: recovered}
			slog.Debug("chunk decoded", "index", ci)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("pipeline: decode chunks: %w", err)
	}

	assembler := chunker.NewAssembler(totalChunks)
	for _, r := range results {
		meta := chunkMetas[r.index]
		assembler.Add(r.index, r.data, meta.originalLen)
	}

	// Reassemble into memory first: the output file must not appear at all
	// if any chunk is missing or fails to authenticate.
	var buf bytes.Buffer
	if err := assembler.WriteTo(&buf); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}

	if err := os.WriteFile(outputPath, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("pipeline: write output: %w", err)
	}

	slog.Info("decode complete", "output", outputPath, "bytes", buf.Len())
	return nil
}
