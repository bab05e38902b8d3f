package temporal

import (
	"errors"
	"math"
	"slices"

	"github.com/RyanBlaney/sonido-critique/algorithms/common"
)

const (
	absoluteGateLUFS = -70.0
	relativeGateLU   = -10.0
	lraRelativeGate  = -20.0
)

// LoudnessMeasurement is an ITU-R BS.1770 style measurement of a mono signal
type LoudnessMeasurement struct {
	Integrated        float64   `json:"integrated"`         // LUFS
	Range             float64   `json:"range"`              // LU, EBU Tech 3342
	ShortTerm         []float64 `json:"short_term"`         // 3s windows, 1s hop, LUFS
	DynamicComplexity float64   `json:"dynamic_complexity"` // mean |short-term - integrated|, LU
}

type biquad struct {
	b0, b1, b2, a1, a2 float64
}

func (f biquad) process(in []float64) []float64 {
	out := make([]float64, len(in))
	var x1, x2, y1, y2 float64
	for i, x := range in {
		y := f.b0*x + f.b1*x1 + f.b2*x2 - f.a1*y1 - f.a2*y2
		x2, x1 = x1, x
		y2, y1 = y1, y
		out[i] = y
	}
	return out
}

// LoudnessMeter applies K-weighting and gated block loudness
type LoudnessMeter struct {
	sampleRate int
	shelf      biquad
	highPass   biquad
}

// NewLoudnessMeter derives the K-weighting filters for sampleRate
func NewLoudnessMeter(sampleRate int) *LoudnessMeter {
	fs := float64(sampleRate)
	return &LoudnessMeter{
		sampleRate: sampleRate,
		shelf:      highShelf(fs, 1500.0, 4.0, 1/math.Sqrt2),
		highPass:   highPass(fs, 38.0, 0.5),
	}
}

func highShelf(fs, fc, gainDB, q float64) biquad {
	a := math.Pow(10, gainDB/40)
	w0 := 2 * math.Pi * fc / fs
	alpha := math.Sin(w0) / (2 * q)
	cosw := math.Cos(w0)
	sqrtA := math.Sqrt(a)

	b0 := a * ((a + 1) + (a-1)*cosw + 2*sqrtA*alpha)
	b1 := -2 * a * ((a - 1) + (a+1)*cosw)
	b2 := a * ((a + 1) + (a-1)*cosw - 2*sqrtA*alpha)
	a0 := (a + 1) - (a-1)*cosw + 2*sqrtA*alpha
	a1 := 2 * ((a - 1) - (a+1)*cosw)
	a2 := (a + 1) - (a-1)*cosw - 2*sqrtA*alpha

	return biquad{b0 / a0, b1 / a0, b2 / a0, a1 / a0, a2 / a0}
}

func highPass(fs, fc, q float64) biquad {
	w0 := 2 * math.Pi * fc / fs
	alpha := math.Sin(w0) / (2 * q)
	cosw := math.Cos(w0)

	b0 := (1 + cosw) / 2
	b1 := -(1 + cosw)
	b2 := (1 + cosw) / 2
	a0 := 1 + alpha
	a1 := -2 * cosw
	a2 := 1 - alpha

	return biquad{b0 / a0, b1 / a0, b2 / a0, a1 / a0, a2 / a0}
}

// Measure computes integrated loudness (400ms blocks, 75% overlap, -70 LUFS absolute and
// -10 LU relative gates), loudness range and dynamic complexity
func (m *LoudnessMeter) Measure(signal []float64) (*LoudnessMeasurement, error) {
	block := int(0.4 * float64(m.sampleRate))
	if m.sampleRate <= 0 || len(signal) < block {
		return nil, errors.New("signal shorter than one 400ms block")
	}

	weighted := m.highPass.process(m.shelf.process(signal))

	// prefix sums of squares make every window mean O(1)
	prefix := make([]float64, len(weighted)+1)
	for i, v := range weighted {
		prefix[i+1] = prefix[i] + v*v
	}
	meanSquare := func(start, length int) float64 {
		return (prefix[start+length] - prefix[start]) / float64(length)
	}

	hop := block / 4
	var blockPowers []float64
	for start := 0; start+block <= len(weighted); start += hop {
		blockPowers = append(blockPowers, meanSquare(start, block))
	}

	integrated, ok := gatedLoudness(blockPowers, relativeGateLU)
	if !ok {
		return nil, errors.New("signal is below the absolute gate")
	}

	shortWindow := 3 * m.sampleRate
	shortHop := m.sampleRate
	var shortTerm []float64
	if len(weighted) >= shortWindow {
		for start := 0; start+shortWindow <= len(weighted); start += shortHop {
			shortTerm = append(shortTerm, powerToLUFS(meanSquare(start, shortWindow)))
		}
	} else {
		shortTerm = append(shortTerm, powerToLUFS(meanSquare(0, len(weighted))))
	}

	return &LoudnessMeasurement{
		Integrated:        integrated,
		Range:             loudnessRange(shortTerm),
		ShortTerm:         shortTerm,
		DynamicComplexity: dynamicComplexity(shortTerm, integrated),
	}, nil
}

func powerToLUFS(power float64) float64 {
	if power <= 0 {
		return math.Inf(-1)
	}
	return -0.691 + 10*math.Log10(power)
}

func lufsToPower(lufs float64) float64 {
	return math.Pow(10, (lufs+0.691)/10)
}

// gatedLoudness applies the absolute gate, then a relative gate offset LU below the
// loudness of the surviving blocks
func gatedLoudness(powers []float64, offset float64) (float64, bool) {
	var aboveAbs []float64
	for _, p := range powers {
		if powerToLUFS(p) > absoluteGateLUFS {
			aboveAbs = append(aboveAbs, p)
		}
	}
	if len(aboveAbs) == 0 {
		return 0, false
	}

	relGate := powerToLUFS(common.Mean(aboveAbs)) + offset

	var gated []float64
	for _, p := range aboveAbs {
		if powerToLUFS(p) > relGate {
			gated = append(gated, p)
		}
	}
	if len(gated) == 0 {
		return 0, false
	}
	return powerToLUFS(common.Mean(gated)), true
}

// loudnessRange is the spread between the 10th and 95th percentile of gated short-term loudness
func loudnessRange(shortTerm []float64) float64 {
	var powers []float64
	for _, l := range shortTerm {
		if !math.IsInf(l, -1) {
			powers = append(powers, lufsToPower(l))
		}
	}

	var aboveAbs []float64
	for _, p := range powers {
		if powerToLUFS(p) > absoluteGateLUFS {
			aboveAbs = append(aboveAbs, p)
		}
	}
	if len(aboveAbs) < 2 {
		return 0
	}

	relGate := powerToLUFS(common.Mean(aboveAbs)) + lraRelativeGate
	var gated []float64
	for _, p := range aboveAbs {
		if l := powerToLUFS(p); l > relGate {
			gated = append(gated, l)
		}
	}
	if len(gated) < 2 {
		return 0
	}

	slices.Sort(gated)
	return math.Max(0, common.Percentile(gated, 0.95)-common.Percentile(gated, 0.10))
}

func dynamicComplexity(shortTerm []float64, integrated float64) float64 {
	var gated []float64
	for _, l := range shortTerm {
		if l > absoluteGateLUFS {
			gated = append(gated, l)
		}
	}
	return common.MeanAbsoluteDeviation(gated, integrated)
}

// Energy maps integrated loudness onto [0, 1]: -30 LUFS is silent-ish, -6 LUFS is maximal
func Energy(lufs float64) float64 {
	return common.Clamp01((lufs + 30) / 24)
}
