package analyzers

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"time"

	"github.com/RyanBlaney/sonido-critique/algorithms/temporal"
	"github.com/RyanBlaney/sonido-critique/logging"
	"github.com/RyanBlaney/sonido-critique/transcode"
)

const (
	EBUR128Name  = "ebur128"
	GatedRMSName = "gated-rms"
)

// The summary prints each value on its own line ("I:", "LRA:", "Peak:"); older builds print
// "Integrated loudness: -14.0 LUFS" on one line. Per-frame lines come first, so the last match wins.
var (
	integratedPattern = regexp.MustCompile(`(?:Integrated loudness:\s*|\bI:\s*)([-\d.]+)\s*LUFS`)
	rangePattern      = regexp.MustCompile(`(?:Loudness range:\s*|\bLRA:\s*)([-\d.]+)\s*LU\b`)
	truePeakPattern   = regexp.MustCompile(`(?:True peak:\s*|\bPeak:\s*)([-\d.]+)\s*dB(?:FS|TP)`)
)

// EBUR128Summary is the summary block printed by ffmpeg's ebur128 filter
type EBUR128Summary struct {
	Integrated float64
	Range      float64
	TruePeak   *float64
}

// ParseEBUR128Output reads the last summary block of ffmpeg's ebur128 filter from stderr.
// Integrated loudness is required, the loudness range and true peak are optional.
func ParseEBUR128Output(output string) (*EBUR128Summary, error) {
	integrated, ok := lastFloat(integratedPattern, output)
	if !ok {
		return nil, errors.New("no integrated loudness in ebur128 output")
	}

	summary := &EBUR128Summary{Integrated: integrated}
	if lra, ok := lastFloat(rangePattern, output); ok {
		summary.Range = lra
	}
	if tp, ok := lastFloat(truePeakPattern, output); ok {
		summary.TruePeak = &tp
	}
	return summary, nil
}

func lastFloat(re *regexp.Regexp, output string) (float64, bool) {
	matches := re.FindAllStringSubmatch(output, -1)
	if len(matches) == 0 {
		return 0, false
	}
	v, err := strconv.ParseFloat(matches[len(matches)-1][1], 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// EBUR128 measures the source file with ffmpeg's ebur128 filter
type EBUR128 struct {
	base
	ffmpeg string
}

// NewEBUR128 creates the primary loudness backend
func NewEBUR128(ffmpeg string) *EBUR128 {
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	return &EBUR128{
		base:   base{name: EBUR128Name, category: CategoryLoudness, fidelity: FidelityPrimary},
		ffmpeg: ffmpeg,
	}
}

// Analyze reads the source rather than the normalized copy so the measurement reflects
// the master as submitted
func (e *EBUR128) Analyze(ctx context.Context, audio *transcode.NormalizedAudio) (*Result, error) {
	start := time.Now()

	_, stderr, err := runTool(ctx, e.ffmpeg,
		"-hide_banner", "-nostats", "-vn",
		"-i", audio.SourcePath,
		"-filter_complex", "ebur128=peak=true",
		"-f", "null", "-")
	if err != nil {
		return nil, err
	}

	summary, err := ParseEBUR128Output(stderr)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", e.name, err)
	}

	features := &LoudnessFeatures{
		IntegratedLUFS: summary.Integrated,
		LoudnessRange:  summary.Range,
		TruePeak:       summary.TruePeak,
		Energy:         temporal.Energy(summary.Integrated),
	}

	if audio.HasPCM() {
		features.CrestFactor = temporal.CrestFactorDB(audio.PCM)
		if m, err := temporal.NewLoudnessMeter(audio.SampleRate).Measure(audio.PCM); err == nil {
			features.DynamicComplexity = m.DynamicComplexity
		}
	}

	res := e.result()
	res.Loudness = features
	res.Elapsed = time.Since(start)
	return res, nil
}

// GatedRMS measures K-weighted gated loudness in-process
type GatedRMS struct {
	base
	logger logging.Logger
}

// NewGatedRMS creates the secondary loudness backend
func NewGatedRMS() *GatedRMS {
	return &GatedRMS{
		base: base{name: GatedRMSName, category: CategoryLoudness, fidelity: FidelitySecondary},
		logger: logging.WithFields(logging.Fields{
			"component": "analyzer",
			"analyzer":  GatedRMSName,
		}),
	}
}

// Analyze measures the decoded PCM. Normalized PCM sits at the target level, so the loudnorm
// input measurement is reported instead when it exists.
func (g *GatedRMS) Analyze(ctx context.Context, audio *transcode.NormalizedAudio) (*Result, error) {
	if !audio.HasPCM() {
		return nil, fmt.Errorf("%s: %w", g.name, ErrNoAudio)
	}
	start := time.Now()

	m, err := temporal.NewLoudnessMeter(audio.SampleRate).Measure(audio.PCM)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", g.name, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	integrated, lra := m.Integrated, m.Range
	if audio.Normalized && audio.SourceLoudness != nil {
		g.logger.Debug("Reporting source loudness from normalization pass", logging.Fields{
			"measured":  m.Integrated,
			"source_i":  audio.SourceLoudness.InputI,
			"source_lr": audio.SourceLoudness.InputLRA,
		})
		integrated = audio.SourceLoudness.InputI
		lra = audio.SourceLoudness.InputLRA
	}

	res := g.result()
	res.Loudness = &LoudnessFeatures{
		IntegratedLUFS:    integrated,
		LoudnessRange:     lra,
		DynamicComplexity: m.DynamicComplexity,
		CrestFactor:       temporal.CrestFactorDB(audio.PCM),
		Energy:            temporal.Energy(integrated),
	}
	res.Elapsed = time.Since(start)
	return res, nil
}
