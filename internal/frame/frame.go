// Package frame turns a byte stream into a sequence of grayscale video
// frames (Painter) and back (Reader), each frame carrying its payload in
// the DCT coefficients of raster-ordered 8x8 blocks. ffmpeg is driven as a
// subprocess: Painter pipes raw gray8 frames into an FFV1/MKV encode,
// Reader pipes an FFV1/MKV file back out as raw gray8 frames.
package frame

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/zsiec/yts3/internal/config"
	"github.com/zsiec/yts3/internal/dct"
)

const midGray = 128

// Painter renders a byte stream into gray8 video frames and muxes them
// into an FFV1/MKV file via ffmpeg.
type Painter struct {
	cfg   config.Config
	basis *dct.Basis
}

// NewPainter builds a Painter for cfg. cfg must already be validated.
func NewPainter(cfg config.Config) *Painter {
	return &Painter{cfg: cfg, basis: dct.NewBasis(embedPositions(cfg))}
}

func embedPositions(cfg config.Config) [][2]int {
	positions := make([][2]int, cfg.BitsPerBlock)
	for i := 0; i < cfg.BitsPerBlock; i++ {
		positions[i] = config.EmbedPositions[i]
	}
	return positions
}

// Paint renders data as video frames and streams them into ffmpeg, writing
// the resulting video to outputPath. Frames are rendered in parallel,
// batched to bound memory, and written to ffmpeg's stdin strictly in
// order.
func (p *Painter) Paint(ctx context.Context, outputPath string, data []byte) error {
	bytesPerFrame := p.cfg.BytesPerFrame()
	numFrames := (len(data) + bytesPerFrame - 1) / bytesPerFrame
	if numFrames == 0 {
		numFrames = 1
	}

	cmd, stdin, stderr, err := spawnEncoder(ctx, outputPath, p.cfg)
	if err != nil {
		return err
	}

	writeErr := p.paintFrames(ctx, stdin, data, numFrames, bytesPerFrame)
	closeErr := stdin.Close()
	waitErr := cmd.Wait()

	if waitErr != nil {
		return fmt.Errorf("frame: ffmpeg encode failed: %w (stderr: %s)", waitErr, stderr.String())
	}
	if writeErr != nil {
		return fmt.Errorf("frame: rendering frames: %w", writeErr)
	}
	if closeErr != nil {
		return fmt.Errorf("frame: closing ffmpeg stdin: %w", closeErr)
	}
	return nil
}

func (p *Painter) paintFrames(ctx context.Context, w io.Writer, data []byte, numFrames, bytesPerFrame int) error {
	batchSize := runtime.NumCPU()
	if batchSize < 1 {
		batchSize = 1
	}

	for start := 0; start < numFrames; start += batchSize {
		end := start + batchSize
		if end > numFrames {
			end = numFrames
		}

		batch := make([][]byte, end-start)
		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			i := i
			slot := i - start
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				frameStart := i * bytesPerFrame
				frameEnd := frameStart + bytesPerFrame
				if frameEnd > len(data) {
					frameEnd = len(data)
				}
				var frameData []byte
				if frameStart < len(data) {
					frameData = data[frameStart:frameEnd]
				}
				batch[slot] = p.renderFrame(frameData)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		for _, pixels := range batch {
			if _, err := w.Write(pixels); err != nil {
				return fmt.Errorf("writing frame to ffmpeg stdin: %w", err)
			}
		}
	}
	return nil
}

// renderFrame embeds data (at most BytesPerFrame bytes) into a mid-gray
// frame, one DCT block per 8x8 pixel tile, raster order, MSB-first bit
// packing within each byte.
func (p *Painter) renderFrame(data []byte) []byte {
	pixels := make([]byte, p.cfg.Width*p.cfg.Height)
	for i := range pixels {
		pixels[i] = midGray
	}

	blocksX := p.cfg.Width / config.BlockSize
	blocksY := p.cfg.Height / config.BlockSize
	totalBits := len(data) * 8
	bitIndex := 0

	for by := 0; by < blocksY; by++ {
		for bx := 0; bx < blocksX; bx++ {
			if bitIndex >= totalBits {
				break
			}

			var block [64]byte
			for i := range block {
				block[i] = midGray
			}

			for i := 0; i < p.cfg.BitsPerBlock && bitIndex < totalBits; i++ {
				bit := int(data[bitIndex/8]>>(7-bitIndex%8)) & 1
				p.basis.EmbedBit(&block, i, bit, p.cfg.CoefficientStrength)
				bitIndex++
			}

			px := bx * config.BlockSize
			py := by * config.BlockSize
			for row := 0; row < config.BlockSize; row++ {
				frameOffset := (py+row)*p.cfg.Width + px
				blockOffset := row * config.BlockSize
				copy(pixels[frameOffset:frameOffset+config.BlockSize], block[blockOffset:blockOffset+config.BlockSize])
			}
		}
	}

	return pixels
}

// Reader extracts the byte stream embedded in a video file's frames.
type Reader struct {
	cfg   config.Config
	basis *dct.Basis
}

// NewReader builds a Reader for cfg. cfg must match the Config the video
// was painted with.
func NewReader(cfg config.Config) *Reader {
	return &Reader{cfg: cfg, basis: dct.NewBasis(embedPositions(cfg))}
}

// Read decodes every frame of the video at inputPath and returns the
// concatenated embedded byte stream. Frames are read from ffmpeg
// sequentially (I/O is inherently serial) and extracted in parallel
// batches to keep all cores busy.
func (r *Reader) Read(ctx context.Context, inputPath string) ([]byte, error) {
	cmd, stdout, stderr, err := spawnDecoder(ctx, inputPath, r.cfg)
	if err != nil {
		return nil, err
	}

	data, readErr := r.readFrames(ctx, stdout)
	waitErr := cmd.Wait()

	if waitErr != nil {
		return nil, fmt.Errorf("frame: ffmpeg decode failed: %w (stderr: %s)", waitErr, stderr.String())
	}
	if readErr != nil {
		return nil, fmt.Errorf("frame: extracting frames: %w", readErr)
	}
	return data, nil
}

func (r *Reader) readFrames(ctx context.Context, stdout io.Reader) ([]byte, error) {
	frameSize := r.cfg.Width * r.cfg.Height
	bytesPerFrame := r.cfg.BytesPerFrame()
	batchSize := runtime.NumCPU()
	if batchSize < 1 {
		batchSize = 1
	}

	var out []byte
	batch := make([][]byte, 0, batchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		extracted := make([][]byte, len(batch))
		g, gctx := errgroup.WithContext(ctx)
		for i, pixels := range batch {
			i, pixels := i, pixels
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				extracted[i] = r.extractFrame(pixels, bytesPerFrame)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		for _, d := range extracted {
			out = append(out, d...)
		}
		batch = batch[:0]
		return nil
	}

	for {
		frameBuf := make([]byte, frameSize)
		n, err := io.ReadFull(stdout, frameBuf)
		if err == io.EOF {
			break
		}
		if err == io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("partial frame read: got %d of %d bytes", n, frameSize)
		}
		if err != nil {
			return nil, err
		}

		batch = append(batch, frameBuf)
		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}

	return out, nil
}

// extractFrame is the inverse of renderFrame: it walks the same raster
// order of 8x8 blocks, recovers bitsPerBlock bits from each via DCT
// projection, and packs them MSB-first into at most bytesPerFrame bytes.
func (r *Reader) extractFrame(pixels []byte, bytesPerFrame int) []byte {
	data := make([]byte, bytesPerFrame)
	totalBits := bytesPerFrame * 8
	bitIndex := 0

	blocksX := r.cfg.Width / config.BlockSize
	blocksY := r.cfg.Height / config.BlockSize

	for by := 0; by < blocksY && bitIndex < totalBits; by++ {
		for bx := 0; bx < blocksX && bitIndex < totalBits; bx++ {
			var block [64]byte
			px := bx * config.BlockSize
			py := by * config.BlockSize
			for row := 0; row < config.BlockSize; row++ {
				frameOffset := (py+row)*r.cfg.Width + px
				blockOffset := row * config.BlockSize
				copy(block[blockOffset:blockOffset+config.BlockSize], pixels[frameOffset:frameOffset+config.BlockSize])
			}

			for i := 0; i < r.cfg.BitsPerBlock && bitIndex < totalBits; i++ {
				bit := r.basis.ExtractBit(&block, i)
				byteIdx := bitIndex / 8
				bitPos := 7 - bitIndex%8
				data[byteIdx] |= byte(bit << bitPos)
				bitIndex++
			}
		}
	}

	return data
}

func spawnEncoder(ctx context.Context, outputPath string, cfg config.Config) (*exec.Cmd, io.WriteCloser, *bytes.Buffer, error) {
	args := []string{
		"-y",
		"-f", "rawvideo",
		"-pixel_format", "gray",
		"-video_size", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
		"-framerate", fmt.Sprintf("%d", cfg.FPS),
		"-i", "pipe:0",
		"-c:v", "ffv1",
		"-level", "3",
		"-slices", "4",
		"-slicecrc", "1",
		outputPath,
	}
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("frame: ffmpeg stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, nil, fmt.Errorf("frame: spawn ffmpeg (is it installed?): %w", err)
	}
	return cmd, stdin, &stderr, nil
}

func spawnDecoder(ctx context.Context, inputPath string, cfg config.Config) (*exec.Cmd, io.Reader, *bytes.Buffer, error) {
	args := []string{
		"-i", inputPath,
		"-f", "rawvideo",
		"-pixel_format", "gray",
		"-video_size", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
		"pipe:1",
	}
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("frame: ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, nil, fmt.Errorf("frame: spawn ffmpeg (is it installed?): %w", err)
	}
	return cmd, stdout, &stderr, nil
}
