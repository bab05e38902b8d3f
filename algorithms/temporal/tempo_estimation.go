package temporal

import (
	"math"

	"github.com/RyanBlaney/sonido-critique/algorithms/common"
)

// TempoEstimate combines the autocorrelation and inter-onset-interval estimates
type TempoEstimate struct {
	BPM         float64 `json:"bpm"`
	Confidence  float64 `json:"confidence"`
	IntervalBPM float64 `json:"interval_bpm"` // 0 when too few onsets
	PeakHeight  float64 `json:"peak_height"`  // normalized autocorrelation at the chosen lag
}

// TempoEstimation estimates tempo from onset strength
type TempoEstimation struct {
	onsets *OnsetDetection

	MinBPM      float64
	MaxBPM      float64
	PriorCenter float64 // log-normal prior center, BPM
	PriorWidth  float64 // prior width in octaves
}

// NewTempoEstimation creates an estimator searching 60-200 BPM with a prior centered at 120 BPM
func NewTempoEstimation() *TempoEstimation {
	return &TempoEstimation{
		onsets:      NewOnsetDetection(),
		MinBPM:      60,
		MaxBPM:      200,
		PriorCenter: 120,
		PriorWidth:  1.0,
	}
}

// Estimate runs both estimators on the signal. ok is false when no periodicity was found.
func (te *TempoEstimation) Estimate(signal []float64, sampleRate int) (TempoEstimate, *OnsetStrength, bool) {
	strength := te.onsets.Strength(signal, sampleRate)

	bpm, peak, ok := te.EstimateAutocorrelation(strength)
	if !ok {
		return TempoEstimate{}, strength, false
	}

	est := TempoEstimate{BPM: bpm, PeakHeight: peak}

	onsetTimes := te.onsets.DetectOnsets(strength, 0.1)
	if intervalBPM, ok := te.EstimateFromIntervals(Intervals(onsetTimes)); ok {
		est.IntervalBPM = intervalBPM
		est.Confidence = math.Max(0.0, 1.0-math.Abs(bpm-intervalBPM)/50.0)
	} else {
		est.Confidence = 0.5 * common.Clamp01(peak)
	}

	return est, strength, true
}

// EstimateAutocorrelation finds the strongest periodicity of the mean-removed onset strength,
// weighted by a log-normal tempo prior
func (te *TempoEstimation) EstimateAutocorrelation(strength *OnsetStrength) (bpm, peak float64, ok bool) {
	values := strength.Values
	frameRate := strength.FrameRate()
	if len(values) < 10 || frameRate <= 0 {
		return 0, 0, false
	}

	minLag := max(1, int(math.Floor(60.0/te.MaxBPM*frameRate)))
	maxLag := int(math.Ceil(60.0 / te.MinBPM * frameRate))
	if maxLag >= len(values)-1 {
		maxLag = len(values) - 2
	}
	if minLag >= maxLag {
		return 0, 0, false
	}

	ac := autocorrelation(values, maxLag+2)
	if ac == nil {
		return 0, 0, false
	}

	bestLag, bestScore := 0, 0.0
	for lag := minLag; lag <= maxLag; lag++ {
		if ac[lag] <= 0 || ac[lag] < ac[lag-1] || ac[lag] < ac[lag+1] {
			continue
		}
		score := ac[lag] * te.prior(60.0*frameRate/float64(lag))
		if score > bestScore {
			bestScore, bestLag = score, lag
		}
	}
	if bestLag == 0 {
		return 0, 0, false
	}

	// parabolic interpolation around the peak for sub-frame resolution
	lag := float64(bestLag)
	a, b, c := ac[bestLag-1], ac[bestLag], ac[bestLag+1]
	if denom := a - 2*b + c; denom != 0 {
		lag += 0.5 * (a - c) / denom
	}

	return FoldTempo(60.0*frameRate/lag, te.MinBPM, te.MaxBPM), b, true
}

func (te *TempoEstimation) prior(bpm float64) float64 {
	octaves := math.Log2(bpm / te.PriorCenter)
	return math.Exp(-0.5 * (octaves / te.PriorWidth) * (octaves / te.PriorWidth))
}

// EstimateFromIntervals votes inter-onset intervals into 10 BPM wide bins
func (te *TempoEstimation) EstimateFromIntervals(intervals []float64) (float64, bool) {
	tempoBins := []float64{60, 70, 80, 90, 100, 110, 120, 130, 140, 150, 160, 170, 180, 190, 200}
	counts := make([]int, len(tempoBins))

	for _, interval := range intervals {
		if interval <= 0.2 || interval >= 2.0 {
			continue
		}
		tempo := FoldTempo(60.0/interval, te.MinBPM, te.MaxBPM)

		bestIdx, bestDiff := 0, math.Inf(1)
		for i, ref := range tempoBins {
			if diff := math.Abs(tempo - ref); diff < bestDiff {
				bestIdx, bestDiff = i, diff
			}
		}
		if bestDiff < 10.0 {
			counts[bestIdx]++
		}
	}

	maxCount, best := 0, 0.0
	for i, count := range counts {
		if count > maxCount {
			maxCount, best = count, tempoBins[i]
		}
	}
	return best, maxCount > 0
}

// FoldTempo doubles or halves bpm into [lo, hi]
func FoldTempo(bpm, lo, hi float64) float64 {
	if bpm <= 0 || lo <= 0 || hi < 2*lo {
		return bpm
	}
	for bpm < lo {
		bpm *= 2
	}
	for bpm > hi {
		bpm /= 2
	}
	return bpm
}

// Intervals returns successive differences of sorted event times
func Intervals(times []float64) []float64 {
	if len(times) < 2 {
		return []float64{}
	}
	out := make([]float64, len(times)-1)
	for i := range out {
		out[i] = times[i+1] - times[i]
	}
	return out
}

// autocorrelation of the mean-removed signal, normalized so lag 0 is 1
func autocorrelation(signal []float64, maxLag int) []float64 {
	mean := common.Mean(signal)
	centered := make([]float64, len(signal))
	for i, v := range signal {
		centered[i] = v - mean
	}

	maxLag = min(maxLag, len(centered))
	ac := make([]float64, maxLag)
	for lag := range maxLag {
		sum := 0.0
		for i := 0; i+lag < len(centered); i++ {
			sum += centered[i] * centered[i+lag]
		}
		ac[lag] = sum
	}

	norm := ac[0]
	if norm <= 0 {
		return nil
	}
	for i := range ac {
		ac[i] /= norm
	}
	return ac
}
