package audio

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Converter normalizes arbitrary audio input to 16 kHz mono PCM WAV, which is
// what the embedding model expects.
type Converter struct {
	ffmpegPath string
}

// NewConverter returns a Converter using the given ffmpeg binary.
func NewConverter(ffmpegPath string) *Converter {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Converter{ffmpegPath: ffmpegPath}
}

// ConvertToWAV converts the input file to a 16 kHz mono WAV next to it and
// returns the output path. If the input already has a .wav extension it is
// still re-encoded, since container extensions lie often enough.
func (c *Converter) ConvertToWAV(ctx context.Context, inputPath string) (string, error) {
	base := strings.TrimSuffix(inputPath, filepath.Ext(inputPath))
	outputPath := base + "_converted.wav"

	cmd := exec.CommandContext(ctx, c.ffmpegPath,
		"-y",
		"-i", inputPath,
		"-ar", "16000",
		"-ac", "1",
		"-c:a", "pcm_s16le",
		outputPath,
	)
	output, err := cmd.CombinedOutput()
	if err != nil {
		os.Remove(outputPath)
		return "", fmt.Errorf("ffmpeg conversion failed: %w (%s)", err, tail(string(output), 400))
	}

	info, err := os.Stat(outputPath)
	if err != nil || info.Size() == 0 {
		os.Remove(outputPath)
		return "", fmt.Errorf("ffmpeg produced no output for %s", inputPath)
	}

	return outputPath, nil
}

// ClipToWAV extracts [startMs, endMs) from the input into a standalone WAV.
func (c *Converter) ClipToWAV(ctx context.Context, inputPath string, startMs, endMs int64, outputPath string) error {
	startSec := float64(startMs) / 1000.0
	durSec := float64(endMs-startMs) / 1000.0
	if durSec <= 0 {
		return fmt.Errorf("invalid clip range: start %dms end %dms", startMs, endMs)
	}

	cmd := exec.CommandContext(ctx, c.ffmpegPath,
		"-y",
		"-i", inputPath,
		"-ss", fmt.Sprintf("%.3f", startSec),
		"-t", fmt.Sprintf("%.3f", durSec),
		"-ar", "16000",
		"-ac", "1",
		"-c:a", "pcm_s16le",
		outputPath,
	)
	output, err := cmd.CombinedOutput()
	if err != nil {
		os.Remove(outputPath)
		return fmt.Errorf("ffmpeg clip failed: %w (%s)", err, tail(string(output), 400))
	}
	return nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
