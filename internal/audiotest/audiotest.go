// Package audiotest generates synthetic signals and WAV fixtures for tests.
package audiotest

import (
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Sine returns a sine wave of the given frequency and amplitude
func Sine(freq float64, sampleRate int, seconds, amplitude float64) []float64 {
	n := int(seconds * float64(sampleRate))
	out := make([]float64, n)
	for i := range out {
		out[i] = amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
	}
	return out
}

// Chord sums sines at the given frequencies, scaled to keep the peak below amplitude
func Chord(freqs []float64, sampleRate int, seconds, amplitude float64) []float64 {
	n := int(seconds * float64(sampleRate))
	out := make([]float64, n)
	if len(freqs) == 0 {
		return out
	}
	gain := amplitude / float64(len(freqs))
	for _, f := range freqs {
		for i := range out {
			out[i] += gain * math.Sin(2*math.Pi*f*float64(i)/float64(sampleRate))
		}
	}
	return out
}

// ClickTrack returns short decaying noise bursts at a steady tempo
func ClickTrack(bpm float64, sampleRate int, seconds float64) []float64 {
	n := int(seconds * float64(sampleRate))
	out := make([]float64, n)
	period := int(60.0 / bpm * float64(sampleRate))
	clickLen := sampleRate / 50 // 20ms
	rng := rand.New(rand.NewSource(7))

	for start := 0; start < n; start += period {
		for j := 0; j < clickLen && start+j < n; j++ {
			decay := math.Exp(-float64(j) / float64(clickLen) * 5)
			out[start+j] = 0.9 * decay * (rng.Float64()*2 - 1)
		}
	}
	return out
}

// WhiteNoise returns deterministic uniform noise
func WhiteNoise(sampleRate int, seconds, amplitude float64) []float64 {
	n := int(seconds * float64(sampleRate))
	out := make([]float64, n)
	rng := rand.New(rand.NewSource(42))
	for i := range out {
		out[i] = amplitude * (rng.Float64()*2 - 1)
	}
	return out
}

// WriteWAV encodes mono samples in [-1, 1] as a 16-bit WAV in a test temp dir
func WriteWAV(t testing.TB, name string, samples []float64, sampleRate int) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create wav: %v", err)
	}

	data := make([]int, len(samples))
	for i, s := range samples {
		s = math.Max(-1, math.Min(1, s))
		data[i] = int(s * 32767)
	}

	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("write wav: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close wav encoder: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close wav: %v", err)
	}
	return path
}

// WriteFile writes raw bytes into a test temp dir
func WriteFile(t testing.TB, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	return path
}
