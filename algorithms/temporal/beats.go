package temporal

import (
	"math"

	"github.com/RyanBlaney/sonido-critique/algorithms/common"
)

// TempoFromBeatTimes derives tempo from the median inter-beat interval.
// Confidence is 1 minus the coefficient of variation of the intervals.
func TempoFromBeatTimes(times []float64) (bpm, confidence float64, ok bool) {
	intervals := Intervals(times)

	valid := intervals[:0:0]
	for _, iv := range intervals {
		if iv > 0 {
			valid = append(valid, iv)
		}
	}
	if len(valid) < 2 {
		return 0, 0, false
	}

	median := common.Median(valid)
	if median <= 0 {
		return 0, 0, false
	}

	bpm = FoldTempo(60.0/median, 60, 200)
	confidence = common.Clamp01(1 - common.CoefficientOfVariation(valid))
	return bpm, confidence, true
}

// TrackBeats places a beat grid at the given tempo, choosing the phase that collects
// the most onset strength
func TrackBeats(strength *OnsetStrength, bpm float64) []float64 {
	frameRate := strength.FrameRate()
	values := strength.Values
	if bpm <= 0 || frameRate <= 0 || len(values) == 0 {
		return []float64{}
	}

	period := 60.0 / bpm * frameRate
	if period < 1 || period > float64(len(values)) {
		return []float64{}
	}

	bestPhase, bestScore := 0, -1.0
	for phase := 0; phase < int(math.Ceil(period)); phase++ {
		score := 0.0
		for pos := float64(phase); int(pos) < len(values); pos += period {
			score += values[int(pos)]
		}
		if score > bestScore {
			bestScore, bestPhase = score, phase
		}
	}

	var beats []float64
	for pos := float64(bestPhase); int(pos) < len(values); pos += period {
		beats = append(beats, pos/frameRate)
	}
	return beats
}

// BeatStrength is the mean onset strength at the beats (the local maximum within
// two frames), relative to the 95th percentile of the whole curve, clamped to [0, 1]
func BeatStrength(strength *OnsetStrength, beatTimes []float64) float64 {
	values := strength.Values
	if len(values) == 0 || len(beatTimes) == 0 {
		return 0
	}

	reference := common.Percentile(values, 0.95)
	if reference <= 0 {
		return 0
	}

	sum, n := 0.0, 0
	for _, t := range beatTimes {
		frame := strength.TimeToFrame(t)
		if frame < 0 || frame >= len(values) {
			continue
		}
		local := 0.0
		for j := max(0, frame-2); j <= min(len(values)-1, frame+2); j++ {
			local = math.Max(local, values[j])
		}
		sum += local
		n++
	}
	if n == 0 {
		return 0
	}

	return common.Clamp01(sum / float64(n) / reference)
}
