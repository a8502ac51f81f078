package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/zsiec/yts3/internal/config"
	"github.com/zsiec/yts3/internal/pipeline"
)

var version = "dev"

func main() {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	var err error
	switch os.Args[1] {
	case "encode":
		err = runEncode(ctx, os.Args[2:])
	case "decode":
		err = runDecode(ctx, os.Args[2:])
	case "version":
		fmt.Println(version)
		return
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		slog.Error("yts3 failed", "error", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: yts3 <encode|decode> [flags]")
}

func runEncode(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("encode", flag.ExitOnError)
	input := fs.String("input", "", "path to the file to encode")
	output := fs.String("output", "", "path to write the video to")
	password := fs.String("password", "", "password to encrypt chunks with (optional)")
	width := fs.Int("width", config.DefaultWidth, "frame width in pixels")
	height := fs.Int("height", config.DefaultHeight, "frame height in pixels")
	fps := fs.Int("fps", config.DefaultFPS, "frame rate")
	bitsPerBlock := fs.Int("bits-per-block", config.DefaultBitsPerBlock, "bits embedded per 8x8 block")
	coefficientStrength := fs.Float64("coefficient-strength", config.DefaultCoefficientStrength, "DCT coefficient embedding strength")
	chunkSize := fs.Int("chunk-size", config.DefaultChunkSize, "chunk size in bytes")
	repairOverhead := fs.Float64("repair-overhead", config.DefaultRepairOverhead, "fountain repair symbol overhead factor")
	symbolSize := fs.Int("symbol-size", config.DefaultSymbolSize, "fountain symbol size in bytes")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *input == "" || *output == "" {
		return fmt.Errorf("encode: --input and --output are required")
	}

	cfg := config.Config{
		Width:               *width,
		Height:              *height,
		FPS:                 *fps,
		BitsPerBlock:        *bitsPerBlock,
		CoefficientStrength: *coefficientStrength,
		ChunkSize:           *chunkSize,
		RepairOverhead:      *repairOverhead,
		SymbolSize:          *symbolSize,
	}

	return pipeline.Encode(ctx, *input, *output, *password, cfg)
}

func runDecode(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("decode", flag.ExitOnError)
	input := fs.String("input", "", "path to the video to decode")
	output := fs.String("output", "", "path to write the recovered file to")
	password := fs.String("password", "", "password to decrypt chunks with, if the file is encrypted")
	width := fs.Int("width", config.DefaultWidth, "frame width in pixels (must match encode)")
	height := fs.Int("height", config.DefaultHeight, "frame height in pixels (must match encode)")
	bitsPerBlock := fs.Int("bits-per-block", config.DefaultBitsPerBlock, "bits embedded per 8x8 block (must match encode)")
	coefficientStrength := fs.Float64("coefficient-strength", config.DefaultCoefficientStrength, "DCT coefficient embedding strength (must match encode)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *input == "" || *output == "" {
		return fmt.Errorf("decode: --input and --output are required")
	}

	cfg := config.Default()
	cfg.Width = *width
	cfg.Height = *height
	cfg.BitsPerBlock = *bitsPerBlock
	cfg.CoefficientStrength = *coefficientStrength

	return pipeline.Decode(ctx, *input, *output, *password, cfg)
}
