package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// DefaultConvertTimeout bounds a single ffmpeg invocation when the caller's
// context carries no deadline.
const DefaultConvertTimeout = 30 * time.Second

var ErrFFmpegMissing = errors.New("ffmpeg not found in PATH")

// Converter shells out to ffmpeg to produce 16-bit mono PCM WAV files.
type Converter struct {
	TempDir string
	Timeout time.Duration
	// Binary defaults to "ffmpeg".
	Binary string
}

func (c *Converter) binary() string {
	if c.Binary != "" {
		return c.Binary
	}
	return "ffmpeg"
}

// Available reports whether the ffmpeg binary can be found.
func (c *Converter) Available() bool {
	_, err := exec.LookPath(c.binary())
	return err == nil
}

// ToMonoWAV converts inputPath to a mono WAV at sampleRate inside TempDir
// and returns the new file's path. The caller owns the returned file.
func (c *Converter) ToMonoWAV(ctx context.Context, inputPath string, sampleRate int) (string, error) {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	if !c.Available() {
		return "", ErrFFmpegMissing
	}

	if _, ok := ctx.Deadline(); !ok {
		timeout := c.Timeout
		if timeout <= 0 {
			timeout = DefaultConvertTimeout
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	dir := c.TempDir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating temp dir: %w", err)
	}

	base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	tmp, err := os.CreateTemp(dir, base+"-*.wav")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	outputPath := tmp.Name()
	tmp.Close()

	cmd := exec.CommandContext(
		ctx,
		c.binary(),
		"-y",
		"-v", "quiet",
		"-i", inputPath,
		"-ac", "1", // mono
		"-ar", fmt.Sprintf("%d", sampleRate),
		"-c:a", "pcm_s16le",
		outputPath,
	)

	if out, err := cmd.CombinedOutput(); err != nil {
		os.Remove(outputPath)
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("ffmpeg failed: %v (%s)", err, strings.TrimSpace(string(out)))
	}

	return outputPath, nil
}
