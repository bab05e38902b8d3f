package analyzers

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/RyanBlaney/sonido-critique/algorithms/temporal"
	"github.com/RyanBlaney/sonido-critique/logging"
	"github.com/RyanBlaney/sonido-critique/transcode"
)

const (
	AubioBeatName  = "aubio-beat"
	OnsetTempoName = "onset-tempo"
)

// AubioBeat runs `aubio beat` on the track file and derives tempo from the beat times
type AubioBeat struct {
	base
	binary string
	onsets *temporal.OnsetDetection
}

// NewAubioBeat creates the primary rhythm backend
func NewAubioBeat(binary string) *AubioBeat {
	if binary == "" {
		binary = "aubio"
	}
	return &AubioBeat{
		base:   base{name: AubioBeatName, category: CategoryRhythm, fidelity: FidelityPrimary},
		binary: binary,
		onsets: temporal.NewOnsetDetection(),
	}
}

// Analyze measures tempo from aubio's beat grid. Beat strength needs decoded PCM and is
// reported as 0 without it.
func (a *AubioBeat) Analyze(ctx context.Context, audio *transcode.NormalizedAudio) (*Result, error) {
	start := time.Now()

	stdout, _, err := runTool(ctx, a.binary, "beat", "-i", audio.Path)
	if err != nil {
		return nil, err
	}

	beats := ParseAubioBeats(stdout)
	bpm, confidence, ok := temporal.TempoFromBeatTimes(beats)
	if !ok {
		return nil, fmt.Errorf("aubio reported %d beats, too few for a tempo", len(beats))
	}

	strength := 0.0
	if audio.HasPCM() {
		envelope := a.onsets.Strength(audio.PCM, audio.SampleRate)
		strength = temporal.BeatStrength(envelope, beats)
	}

	res := a.result()
	res.Rhythm = &RhythmFeatures{
		Tempo:            bpm,
		Confidence:       confidence,
		BeatStrength:     strength,
		BeatStrengthBand: BeatStrengthBand(strength),
		BeatCount:        len(beats),
	}
	res.Elapsed = time.Since(start)
	return res, nil
}

// ParseAubioBeats reads one beat time in seconds per line, skipping anything else
func ParseAubioBeats(output string) []float64 {
	var beats []float64
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		t, err := strconv.ParseFloat(fields[0], 64)
		if err != nil || t < 0 {
			continue
		}
		beats = append(beats, t)
	}
	return beats
}

// OnsetTempo estimates tempo in-process from the onset envelope
type OnsetTempo struct {
	base
	estimator *temporal.TempoEstimation
	logger    logging.Logger
}

// NewOnsetTempo creates the secondary rhythm backend
func NewOnsetTempo() *OnsetTempo {
	return &OnsetTempo{
		base:      base{name: OnsetTempoName, category: CategoryRhythm, fidelity: FidelitySecondary},
		estimator: temporal.NewTempoEstimation(),
		logger: logging.WithFields(logging.Fields{
			"component": "analyzer",
			"analyzer":  OnsetTempoName,
		}),
	}
}

// Analyze combines autocorrelation and inter-onset interval estimates
func (o *OnsetTempo) Analyze(ctx context.Context, audio *transcode.NormalizedAudio) (*Result, error) {
	if !audio.HasPCM() {
		return nil, fmt.Errorf("%s: %w", o.name, ErrNoAudio)
	}
	start := time.Now()

	est, envelope, ok := o.estimator.Estimate(audio.PCM, audio.SampleRate)
	if !ok {
		return nil, fmt.Errorf("%s: no periodicity found", o.name)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	beats := temporal.TrackBeats(envelope, est.BPM)
	strength := temporal.BeatStrength(envelope, beats)

	o.logger.Debug("Tempo estimated", logging.Fields{
		"bpm":          est.BPM,
		"interval_bpm": est.IntervalBPM,
		"peak":         est.PeakHeight,
	})

	res := o.result()
	res.Rhythm = &RhythmFeatures{
		Tempo:            est.BPM,
		Confidence:       est.Confidence,
		BeatStrength:     strength,
		BeatStrengthBand: BeatStrengthBand(strength),
		BeatCount:        len(beats),
	}
	res.Elapsed = time.Since(start)
	return res, nil
}
