package analyzers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"

	"github.com/RyanBlaney/sonido-critique/logging"
)

// Capabilities records which external tools were found at startup. It is never written
// after DetectCapabilities returns.
type Capabilities struct {
	FFmpeg  bool `json:"ffmpeg"`
	FFprobe bool `json:"ffprobe"`
	Aubio   bool `json:"aubio"`

	FFmpegPath  string `json:"ffmpeg_path,omitempty"`
	FFprobePath string `json:"ffprobe_path,omitempty"`
	AubioPath   string `json:"aubio_path,omitempty"`
}

// DetectCapabilities resolves each tool with exec.LookPath
func DetectCapabilities(ffmpeg, ffprobe, aubio string) Capabilities {
	var caps Capabilities
	caps.FFmpegPath, caps.FFmpeg = lookPath(ffmpeg)
	caps.FFprobePath, caps.FFprobe = lookPath(ffprobe)
	caps.AubioPath, caps.Aubio = lookPath(aubio)

	logging.Debug("Detected analysis tools", logging.Fields{
		"component": "analyzers",
		"ffmpeg":    caps.FFmpeg,
		"ffprobe":   caps.FFprobe,
		"aubio":     caps.Aubio,
	})
	return caps
}

func lookPath(name string) (string, bool) {
	if name == "" {
		return "", false
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return "", false
	}
	return path, true
}

// runTool executes an external tool and returns stdout and stderr
func runTool(ctx context.Context, bin string, args ...string) (string, string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", "", fmt.Errorf("%s timed out: %w", bin, ctx.Err())
		}
		var exitError *exec.ExitError
		if errors.As(err, &exitError) {
			return "", "", fmt.Errorf("%s failed: %w, stderr: %s", bin, err, tail(stderr.String(), 512))
		}
		return "", "", fmt.Errorf("%s failed: %w", bin, err)
	}
	return stdout.String(), stderr.String(), nil
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
