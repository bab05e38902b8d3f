package analyzers

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/RyanBlaney/sonido-critique/internal/audiotest"
	"github.com/RyanBlaney/sonido-critique/transcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ebur128Summary = `[Parsed_ebur128_0 @ 0x55d1] t: 0.4  TARGET:-23 LUFS    M: -20.1 S:-120.7     I: -20.1 LUFS       LRA:   0.0 LU  FTPK: -3.2 dBFS  TPK: -3.2 dBFS
[Parsed_ebur128_0 @ 0x55d1] Summary:

  Integrated loudness:
    I:         -12.4 LUFS
    Threshold: -22.7 LUFS

  Loudness range:
    LRA:         7.3 LU
    Threshold: -32.9 LUFS
    LRA low:   -17.1 LUFS
    LRA high:   -9.8 LUFS

  True peak:
    Peak:       -0.6 dBFS
`

func pcmAudio(samples []float64, sampleRate int) *transcode.NormalizedAudio {
	return &transcode.NormalizedAudio{PCM: samples, SampleRate: sampleRate}
}

// fakeTool writes an executable shell script into a temp dir
func fakeTool(t *testing.T, name, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755))
	return path
}

func TestParseEBUR128Output(t *testing.T) {
	summary, err := ParseEBUR128Output(ebur128Summary)
	require.NoError(t, err)
	assert.Equal(t, -12.4, summary.Integrated)
	assert.Equal(t, 7.3, summary.Range)
	require.NotNil(t, summary.TruePeak)
	assert.Equal(t, -0.6, *summary.TruePeak)

	single, err := ParseEBUR128Output("Integrated loudness: -14.2 LUFS\nLoudness range: 5.1 LU\n")
	require.NoError(t, err)
	assert.Equal(t, -14.2, single.Integrated)
	assert.Equal(t, 5.1, single.Range)
	assert.Nil(t, single.TruePeak)

	_, err = ParseEBUR128Output("Input #0, wav, from 'x.wav'")
	assert.Error(t, err)
}

func TestParseAubioBeats(t *testing.T) {
	beats := ParseAubioBeats("0.510839\n1.021678\n\nwarning: something\n1.532517\n")
	assert.Equal(t, []float64{0.510839, 1.021678, 1.532517}, beats)
	assert.Empty(t, ParseAubioBeats(""))
}

func TestBeatStrengthBand(t *testing.T) {
	tests := []struct {
		strength float64
		want     string
	}{
		{0.95, "Strong"},
		{0.8, "Moderate"},
		{0.51, "Moderate"},
		{0.5, "Weak"},
		{0, "Weak"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, BeatStrengthBand(tt.strength), "strength %v", tt.strength)
	}
}

func TestRegistryTiers(t *testing.T) {
	t.Run("no tools", func(t *testing.T) {
		r := NewRegistry(Capabilities{}, Options{})

		rhythm := r.Tiers(CategoryRhythm)
		require.Len(t, rhythm, 2)
		assert.Equal(t, AubioBeatName, rhythm[0].Name())
		assert.Equal(t, FidelityUnavailable, rhythm[0].Fidelity())
		assert.Equal(t, OnsetTempoName, rhythm[1].Name())

		loudness := r.Tiers(CategoryLoudness)
		assert.Equal(t, FidelityUnavailable, loudness[0].Fidelity())
		assert.Equal(t, GatedRMSName, loudness[1].Name())

		harmonic := r.Tiers(CategoryHarmonic)
		assert.Equal(t, ChromaKeyName, harmonic[0].Name())
		assert.Equal(t, FidelityPrimary, harmonic[0].Fidelity())
	})

	t.Run("all tools", func(t *testing.T) {
		caps := Capabilities{FFmpeg: true, Aubio: true, FFmpegPath: "/usr/bin/ffmpeg", AubioPath: "/usr/bin/aubio"}
		r := NewRegistry(caps, Options{})

		for _, category := range Categories() {
			tiers := r.Tiers(category)
			require.Len(t, tiers, 2)
			assert.Equal(t, FidelityPrimary, tiers[0].Fidelity(), string(category))
			assert.Equal(t, FidelitySecondary, tiers[1].Fidelity(), string(category))
			assert.Equal(t, category, tiers[0].Category())
		}
	})

	t.Run("primaries disabled", func(t *testing.T) {
		caps := Capabilities{FFmpeg: true, Aubio: true}
		r := NewRegistry(caps, Options{DisablePrimary: true})

		for _, category := range Categories() {
			tiers := r.Tiers(category)
			assert.Equal(t, FidelityUnavailable, tiers[0].Fidelity(), string(category))
			assert.Equal(t, FidelitySecondary, tiers[1].Fidelity(), string(category))
		}
		assert.Contains(t, r.TierNames()[CategorySpectral], "ltas-spectral (secondary)")
	})

	t.Run("empty category", func(t *testing.T) {
		r := NewRegistryWithTiers(Capabilities{}, nil)
		tiers := r.Tiers(CategoryRhythm)
		require.Len(t, tiers, 1)
		_, err := tiers[0].Analyze(context.Background(), pcmAudio(nil, 0))
		assert.ErrorIs(t, err, ErrUnavailable)
	})
}

func TestInProcessAnalyzersNeedPCM(t *testing.T) {
	empty := &transcode.NormalizedAudio{Path: "/tmp/track.ogg", SourcePath: "/tmp/track.ogg"}

	for _, a := range []SignalAnalyzer{NewOnsetTempo(), NewChromaKey(), NewSpectrumKey(), NewGatedRMS(), NewSTFTSpectral(), NewLTASSpectral()} {
		_, err := a.Analyze(context.Background(), empty)
		assert.ErrorIs(t, err, ErrNoAudio, a.Name())
	}
}

func TestOnsetTempo(t *testing.T) {
	const sr = 8000
	res, err := NewOnsetTempo().Analyze(context.Background(), pcmAudio(audiotest.ClickTrack(120, sr, 12), sr))
	require.NoError(t, err)

	require.NotNil(t, res.Rhythm)
	assert.Equal(t, OnsetTempoName, res.Analyzer)
	assert.Equal(t, FidelitySecondary, res.Fidelity)
	assert.InDelta(t, 120, res.Rhythm.Tempo, 3)
	assert.Greater(t, res.Rhythm.BeatCount, 10)
	assert.Equal(t, BeatStrengthBand(res.Rhythm.BeatStrength), res.Rhythm.BeatStrengthBand)
}

func TestAubioBeatWithFakeBinary(t *testing.T) {
	aubio := fakeTool(t, "aubio", `printf "0.5\n1.0\n1.5\n2.0\n2.5\n3.0\n"`)

	res, err := NewAubioBeat(aubio).Analyze(context.Background(), &transcode.NormalizedAudio{Path: "track.wav"})
	require.NoError(t, err)
	assert.InDelta(t, 120, res.Rhythm.Tempo, 1e-6)
	assert.InDelta(t, 1.0, res.Rhythm.Confidence, 1e-6)
	assert.Equal(t, 6, res.Rhythm.BeatCount)
	assert.Equal(t, "Weak", res.Rhythm.BeatStrengthBand)

	failing := fakeTool(t, "aubio", "exit 3\n")
	_, err = NewAubioBeat(failing).Analyze(context.Background(), &transcode.NormalizedAudio{Path: "track.wav"})
	assert.Error(t, err)
}

func TestEBUR128WithFakeBinary(t *testing.T) {
	ffmpeg := fakeTool(t, "ffmpeg", "cat >&2 <<'EOF'\n"+ebur128Summary+"EOF\n")

	res, err := NewEBUR128(ffmpeg).Analyze(context.Background(), &transcode.NormalizedAudio{SourcePath: "track.wav"})
	require.NoError(t, err)
	require.NotNil(t, res.Loudness)
	assert.Equal(t, -12.4, res.Loudness.IntegratedLUFS)
	assert.Equal(t, 7.3, res.Loudness.LoudnessRange)
	require.NotNil(t, res.Loudness.TruePeak)
	assert.InDelta(t, (-12.4+30)/24, res.Loudness.Energy, 1e-9)
}

func TestChromaKeyAMinorChord(t *testing.T) {
	const sr = 44100
	chord := audiotest.Chord([]float64{440.0, 523.25, 659.26}, sr, 2, 0.9)

	for _, a := range []SignalAnalyzer{NewChromaKey(), NewSpectrumKey()} {
		res, err := a.Analyze(context.Background(), pcmAudio(chord, sr))
		require.NoError(t, err, a.Name())
		require.NotNil(t, res.Harmonic)
		assert.Equal(t, "A", res.Harmonic.Key, a.Name())
		assert.Equal(t, "minor", res.Harmonic.Scale, a.Name())
		assert.Greater(t, res.Harmonic.Confidence, 0.0)
	}
}

func TestGatedRMS(t *testing.T) {
	const sr = 44100
	sine := audiotest.Sine(1000, sr, 4, 0.5)

	res, err := NewGatedRMS().Analyze(context.Background(), pcmAudio(sine, sr))
	require.NoError(t, err)
	assert.InDelta(t, -9.03, res.Loudness.IntegratedLUFS, 0.3)
	assert.InDelta(t, 3.01, res.Loudness.CrestFactor, 0.05)
	assert.Nil(t, res.Loudness.TruePeak)

	normalized := pcmAudio(sine, sr)
	normalized.Normalized = true
	normalized.SourceLoudness = &transcode.LoudnessMeasurement{InputI: -8.2, InputLRA: 4.5}

	res, err = NewGatedRMS().Analyze(context.Background(), normalized)
	require.NoError(t, err)
	assert.Equal(t, -8.2, res.Loudness.IntegratedLUFS)
	assert.Equal(t, 4.5, res.Loudness.LoudnessRange)
}

func TestSpectralBackendsAgreeOnShape(t *testing.T) {
	const sr = 44100
	tone := pcmAudio(audiotest.Sine(1000, sr, 2, 0.5), sr)
	noise := pcmAudio(audiotest.WhiteNoise(sr, 2, 0.5), sr)

	for _, a := range []SignalAnalyzer{NewSTFTSpectral(), NewLTASSpectral()} {
		toneRes, err := a.Analyze(context.Background(), tone)
		require.NoError(t, err, a.Name())
		noiseRes, err := a.Analyze(context.Background(), noise)
		require.NoError(t, err, a.Name())

		assert.InDelta(t, 1000, toneRes.Spectral.Centroid, 100, a.Name())
		assert.Less(t, toneRes.Spectral.Flatness, noiseRes.Spectral.Flatness, a.Name())
		assert.GreaterOrEqual(t, toneRes.Spectral.Contrast, 0.0)
		assert.LessOrEqual(t, toneRes.Spectral.Contrast, 1.0)
	}
}
