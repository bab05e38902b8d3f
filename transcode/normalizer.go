package transcode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/RyanBlaney/sonido-critique/logging"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// LoudnessMeasurement is the source loudness reported by ffmpeg's loudnorm pass
type LoudnessMeasurement struct {
	InputI       float64 `json:"input_i"`      // integrated loudness, LUFS
	InputTP      float64 `json:"input_tp"`     // true peak, dBTP
	InputLRA     float64 `json:"input_lra"`    // loudness range, LU
	InputThresh  float64 `json:"input_thresh"` // gating threshold, LUFS
	TargetOffset float64 `json:"target_offset"`
}

// NormalizedAudio is the read-only view of a track handed to every analyzer
type NormalizedAudio struct {
	Path           string               `json:"path"`        // file that path-based analyzers read
	SourcePath     string               `json:"source_path"` // the original asset
	PCM            []float64            `json:"-"`           // mono, [-1, 1]
	SampleRate     int                  `json:"sample_rate"`
	Duration       time.Duration        `json:"duration"`
	Normalized     bool                 `json:"normalized"`
	SourceLoudness *LoudnessMeasurement `json:"source_loudness,omitempty"`

	tempPath    string
	releaseOnce sync.Once
}

// HasPCM reports whether in-process analyzers have samples to work on
func (a *NormalizedAudio) HasPCM() bool {
	return a != nil && len(a.PCM) > 0 && a.SampleRate > 0
}

// Release removes the temporary normalized file. Safe to call more than once.
func (a *NormalizedAudio) Release() {
	if a == nil {
		return
	}
	a.releaseOnce.Do(func() {
		if a.tempPath == "" {
			return
		}
		if err := os.Remove(a.tempPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			logging.Warn("Failed to remove normalized temp file", logging.Fields{
				"component": "normalizer",
				"path":      a.tempPath,
				"error":     err.Error(),
			})
		}
	})
}

// NormalizerConfig holds normalization settings
type NormalizerConfig struct {
	FFmpegPath    string        `json:"ffmpeg_path"`
	TempDir       string        `json:"temp_dir"`
	SampleRate    int           `json:"sample_rate"`
	TargetLUFS    float64       `json:"target_lufs"`
	TargetPeak    float64       `json:"target_peak"`
	LoudnessRange float64       `json:"loudness_range"`
	Timeout       time.Duration `json:"timeout"`
}

// DefaultNormalizerConfig returns streaming-level loudness targets
func DefaultNormalizerConfig() *NormalizerConfig {
	return &NormalizerConfig{
		FFmpegPath:    "ffmpeg",
		TempDir:       os.TempDir(),
		SampleRate:    44100,
		TargetLUFS:    -14.0,
		TargetPeak:    -1.0,
		LoudnessRange: 11.0,
		Timeout:       12 * time.Second,
	}
}

// Normalizer converts assets into mono loudness-normalized WAV via ffmpeg
type Normalizer struct {
	config *NormalizerConfig
}

// NewNormalizer creates a new normalizer
func NewNormalizer(config *NormalizerConfig) *Normalizer {
	if config == nil {
		config = DefaultNormalizerConfig()
	}
	return &Normalizer{config: config}
}

// Normalize converts the asset. Conversion failures never propagate: the original asset is
// returned un-normalized with whatever PCM can be decoded in-process.
// Only a missing source yields an error (ErrAssetNotFound).
func (n *Normalizer) Normalize(ctx context.Context, asset *Asset) (*NormalizedAudio, error) {
	logger := logging.WithFields(logging.Fields{
		"component": "normalizer",
		"function":  "Normalize",
		"path":      asset.Path,
	})

	if err := checkExists(asset.Path); err != nil {
		return nil, err
	}

	if n.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.config.Timeout)
		defer cancel()
	}

	tempPath := filepath.Join(n.config.TempDir, "sonido-"+uuid.NewString()+".wav")

	start := time.Now()
	stderr, err := n.runFFmpeg(ctx, asset.Path, tempPath)
	if err != nil {
		removeQuietly(tempPath)
		logger.Info("Normalization unavailable, falling back to un-normalized input", logging.Fields{
			"error": err.Error(),
		})
		return n.fallback(asset, logger), nil
	}

	pcm, sampleRate, err := decodeWAVFile(tempPath)
	if err != nil || len(pcm) == 0 {
		removeQuietly(tempPath)
		logger.Info("Normalized output undecodable, falling back", logging.Fields{
			"error": fmt.Sprint(err),
		})
		return n.fallback(asset, logger), nil
	}

	measurement, err := ParseLoudnormOutput(stderr)
	if err != nil {
		logger.Debug("No loudnorm measurement in ffmpeg output", logging.Fields{"error": err.Error()})
	}

	logger.Debug("Normalization completed", logging.Fields{
		"samples":     len(pcm),
		"sample_rate": sampleRate,
		"elapsed_ms":  time.Since(start).Milliseconds(),
	})

	return &NormalizedAudio{
		Path:           tempPath,
		SourcePath:     asset.Path,
		PCM:            pcm,
		SampleRate:     sampleRate,
		Duration:       samplesToDuration(len(pcm), sampleRate),
		Normalized:     true,
		SourceLoudness: measurement,
		tempPath:       tempPath,
	}, nil
}

func (n *Normalizer) runFFmpeg(ctx context.Context, src, dst string) (string, error) {
	args := n.buildFFmpegArgs(src, dst)

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, n.config.FFmpegPath, args...)
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("ffmpeg timed out: %w", ctx.Err())
		}
		var exitError *exec.ExitError
		if errors.As(err, &exitError) {
			return "", fmt.Errorf("ffmpeg failed: %w, stderr: %s", err, tail(stderr.String(), 512))
		}
		return "", fmt.Errorf("ffmpeg failed: %w", err)
	}

	return stderr.String(), nil
}

func (n *Normalizer) buildFFmpegArgs(src, dst string) []string {
	return []string{
		"-hide_banner",
		"-nostats",
		"-y",
		"-i", src,
		"-af", n.loudnormFilter(),
		"-ac", "1",
		"-ar", strconv.Itoa(n.config.SampleRate),
		"-c:a", "pcm_s16le",
		"-f", "wav",
		dst,
	}
}

func (n *Normalizer) loudnormFilter() string {
	return fmt.Sprintf("loudnorm=I=%s:TP=%s:LRA=%s:print_format=json",
		formatTarget(n.config.TargetLUFS),
		formatTarget(n.config.TargetPeak),
		formatTarget(n.config.LoudnessRange))
}

func formatTarget(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func (n *Normalizer) fallback(asset *Asset, logger logging.Logger) *NormalizedAudio {
	audio := &NormalizedAudio{
		Path:       asset.Path,
		SourcePath: asset.Path,
	}

	pcm, sampleRate, err := decodeFile(asset.Path, asset.Extension)
	if err != nil {
		logger.Info("In-process decode unavailable, only path-based analyzers can run", logging.Fields{
			"error": err.Error(),
		})
		return audio
	}

	audio.PCM = pcm
	audio.SampleRate = sampleRate
	audio.Duration = samplesToDuration(len(pcm), sampleRate)
	return audio
}

type loudnormStats struct {
	InputI       string `json:"input_i"`
	InputTP      string `json:"input_tp"`
	InputLRA     string `json:"input_lra"`
	InputThresh  string `json:"input_thresh"`
	TargetOffset string `json:"target_offset"`
}

// ParseLoudnormOutput extracts the loudnorm print_format=json block from ffmpeg stderr.
// The block is the last {...} in the output and its values are strings.
func ParseLoudnormOutput(output string) (*LoudnessMeasurement, error) {
	end := strings.LastIndex(output, "}")
	if end == -1 {
		return nil, errors.New("no JSON found in loudnorm output")
	}
	start := strings.LastIndex(output[:end], "{")
	if start == -1 {
		return nil, errors.New("no JSON found in loudnorm output")
	}

	var stats loudnormStats
	if err := json.Unmarshal([]byte(output[start:end+1]), &stats); err != nil {
		return nil, fmt.Errorf("failed to parse loudnorm JSON: %w", err)
	}

	inputI, err := parseFinite(stats.InputI)
	if err != nil {
		return nil, fmt.Errorf("input_i: %w", err)
	}

	// the remaining values are informative; silence reports -inf for them
	m := &LoudnessMeasurement{InputI: inputI}
	m.InputTP, _ = parseFinite(stats.InputTP)
	m.InputLRA, _ = parseFinite(stats.InputLRA)
	m.InputThresh, _ = parseFinite(stats.InputThresh)
	m.TargetOffset, _ = parseFinite(stats.TargetOffset)

	return m, nil
}

func parseFinite(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, fmt.Errorf("non-finite value %q", s)
	}
	return v, nil
}

func samplesToDuration(samples, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}

func removeQuietly(path string) {
	_ = os.Remove(path)
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
