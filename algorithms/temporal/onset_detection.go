package temporal

import (
	"github.com/RyanBlaney/sonido-critique/algorithms/common"
)

// OnsetStrength is a per-frame novelty curve
type OnsetStrength struct {
	Values     []float64 `json:"values"`
	HopSize    int       `json:"hop_size"`
	SampleRate int       `json:"sample_rate"`
}

// FrameRate returns frames per second
func (o *OnsetStrength) FrameRate() float64 {
	if o.HopSize == 0 {
		return 0
	}
	return float64(o.SampleRate) / float64(o.HopSize)
}

// TimeToFrame converts seconds into the nearest frame index
func (o *OnsetStrength) TimeToFrame(t float64) int {
	return int(t*o.FrameRate() + 0.5)
}

// OnsetDetection derives onset strength from the energy envelope
type OnsetDetection struct {
	envelope *Envelope
}

// NewOnsetDetection creates a new onset detector
func NewOnsetDetection() *OnsetDetection {
	return &OnsetDetection{
		envelope: NewEnvelope(),
	}
}

// frameSizeFor picks frames of at least 20ms rounded up to a power of two (1024 at 44.1 kHz)
func frameSizeFor(sampleRate int) int {
	return max(256, common.NextPowerOfTwo(sampleRate/50))
}

// Strength returns the half-wave rectified first difference of the RMS envelope,
// using a hop of a quarter frame
func (od *OnsetDetection) Strength(signal []float64, sampleRate int) *OnsetStrength {
	frameSize := frameSizeFor(sampleRate)
	hopSize := frameSize / 4

	env := od.envelope.ComputeRMS(signal, frameSize, hopSize)
	strength := make([]float64, len(env))
	for i := 1; i < len(env); i++ {
		if diff := env[i] - env[i-1]; diff > 0 {
			strength[i] = diff
		}
	}

	return &OnsetStrength{
		Values:     strength,
		HopSize:    hopSize,
		SampleRate: sampleRate,
	}
}

// DetectOnsets picks peaks above mean + 0.5·stddev at least minInterval seconds apart.
// It returns onset times in seconds.
func (od *OnsetDetection) DetectOnsets(strength *OnsetStrength, minInterval float64) []float64 {
	values := strength.Values
	if len(values) < 3 {
		return []float64{}
	}

	threshold := common.Mean(values) + 0.5*common.StandardDeviation(values)
	minFrames := int(minInterval * strength.FrameRate())

	var onsets []float64
	last := -minFrames - 1
	for i := 1; i < len(values)-1; i++ {
		if values[i] > values[i-1] &&
			values[i] >= values[i+1] &&
			values[i] > threshold &&
			i-last >= minFrames {
			onsets = append(onsets, float64(i)/strength.FrameRate())
			last = i
		}
	}
	return onsets
}
