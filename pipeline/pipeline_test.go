package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/RyanBlaney/sonido-critique/analyzers"
	"github.com/RyanBlaney/sonido-critique/config"
	"github.com/RyanBlaney/sonido-critique/features"
	"github.com/RyanBlaney/sonido-critique/internal/audiotest"
	"github.com/RyanBlaney/sonido-critique/metadata"
	"github.com/RyanBlaney/sonido-critique/transcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAnalyzer struct {
	name     string
	category analyzers.Category
	fidelity analyzers.Fidelity
	analyze  func(ctx context.Context) (*analyzers.Result, error)
}

func (f *fakeAnalyzer) Name() string                 { return f.name }
func (f *fakeAnalyzer) Category() analyzers.Category { return f.category }
func (f *fakeAnalyzer) Fidelity() analyzers.Fidelity { return f.fidelity }
func (f *fakeAnalyzer) Analyze(ctx context.Context, _ *transcode.NormalizedAudio) (*analyzers.Result, error) {
	return f.analyze(ctx)
}

func tempoResult(name string, fidelity analyzers.Fidelity, bpm float64) *analyzers.Result {
	return &analyzers.Result{
		Analyzer: name,
		Category: analyzers.CategoryRhythm,
		Fidelity: fidelity,
		Rhythm:   &analyzers.RhythmFeatures{Tempo: bpm, BeatStrength: 0.6},
	}
}

type stubNormalizer struct{}

func (stubNormalizer) Normalize(_ context.Context, asset *transcode.Asset) (*transcode.NormalizedAudio, error) {
	return &transcode.NormalizedAudio{Path: asset.Path, SourcePath: asset.Path, PCM: make([]float64, 100), SampleRate: 8000}, nil
}

type stubExtractor struct{}

func (stubExtractor) Extract(_ context.Context, asset *transcode.Asset) metadata.Record {
	return metadata.Record{Title: "Stub", Artist: "Someone"}
}

func budgets(deadline, analyzer time.Duration) config.PipelineConfig {
	return config.PipelineConfig{
		Deadline:            deadline,
		NormalizationBudget: time.Second,
		MetadataBudget:      time.Second,
		AnalyzerBudget:      analyzer,
	}
}

func stubPipeline(cfg config.PipelineConfig, rhythm ...analyzers.SignalAnalyzer) *Pipeline {
	return New(Options{
		Config:     cfg,
		Normalizer: stubNormalizer{},
		Extractor:  stubExtractor{},
		Registry:   analyzers.NewRegistryWithTiers(analyzers.Capabilities{}, map[analyzers.Category][]analyzers.SignalAnalyzer{analyzers.CategoryRhythm: rhythm}),
	})
}

func trackFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "track.wav")
	require.NoError(t, os.WriteFile(path, []byte("RIFF"), 0o644))
	return path
}

func realPipeline(t *testing.T) *Pipeline {
	t.Helper()
	cfg := config.Default()
	cfg.Transcode.FFmpegPath = filepath.Join(t.TempDir(), "missing-ffmpeg")
	cfg.Transcode.TempDir = t.TempDir()
	return NewFromConfig(cfg, analyzers.NewRegistry(analyzers.Capabilities{}, analyzers.Options{}))
}

func TestRunMissingFile(t *testing.T) {
	_, err := realPipeline(t).Run(context.Background(), "/definitely/not/here.mp3")
	assert.ErrorIs(t, err, transcode.ErrAssetNotFound)
}

func TestRunCorruptedFileIsTotalAndIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupt.mp3")
	require.NoError(t, os.WriteFile(path, []byte("ID3\x04garbage that is not audio at all"), 0o644))

	p := realPipeline(t)
	first, err := p.Run(context.Background(), path)
	require.NoError(t, err)
	second, err := p.Run(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, features.DefaultRecord("corrupt"), first.Record)
	assert.Equal(t, first.Record, second.Record)
	assert.Equal(t, first.Summary, second.Summary)
	assert.False(t, first.Normalized)
	assert.False(t, first.TimedOut)
}

func TestRunEmptyFileGivesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.wav")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	analysis, err := realPipeline(t).Run(context.Background(), path)
	require.NoError(t, err)

	r := analysis.Record
	assert.Equal(t, 120.0, r.Tempo.Value)
	assert.Equal(t, "Unknown", r.Key.Label())
	assert.Equal(t, 0.5, r.Energy.Value)
	assert.Equal(t, 6.0, r.DynamicRange.Value)
}

func TestRunClickTrackInProcess(t *testing.T) {
	const sr = 8000
	path := audiotest.WriteWAV(t, "click.wav", audiotest.ClickTrack(120, sr, 12), sr)

	analysis, err := realPipeline(t).Run(context.Background(), path)
	require.NoError(t, err)

	assert.InDelta(t, 120, analysis.Record.Tempo.Value, 3)
	assert.Equal(t, analyzers.OnsetTempoName, analysis.Record.Tempo.Source)
	assert.Equal(t, analyzers.OnsetTempoName, analysis.Succeeded(analyzers.CategoryRhythm))
	assert.Equal(t, analyzers.GatedRMSName, analysis.Record.Loudness.Source)

	var aubio StageReport
	for _, s := range analysis.Stages {
		if s.Analyzer == analyzers.AubioBeatName {
			aubio = s
		}
	}
	assert.Equal(t, StatusUnavailable, aubio.Status)
}

func TestSlowPrimaryFallsBackToSecondary(t *testing.T) {
	slow := &fakeAnalyzer{
		name: "slow-primary", category: analyzers.CategoryRhythm, fidelity: analyzers.FidelityPrimary,
		analyze: func(ctx context.Context) (*analyzers.Result, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	fast := &fakeAnalyzer{
		name: "fast-secondary", category: analyzers.CategoryRhythm, fidelity: analyzers.FidelitySecondary,
		analyze: func(context.Context) (*analyzers.Result, error) {
			return tempoResult("fast-secondary", analyzers.FidelitySecondary, 99), nil
		},
	}

	analysis, err := stubPipeline(budgets(5*time.Second, 50*time.Millisecond), slow, fast).Run(context.Background(), trackFile(t))
	require.NoError(t, err)

	assert.Equal(t, features.Measure{Value: 99, Source: "fast-secondary"}, analysis.Record.Tempo)
	assert.Equal(t, "Someone", analysis.Record.Artist)

	statuses := map[string]StageStatus{}
	for _, s := range analysis.Stages {
		statuses[s.Analyzer] = s.Status
	}
	assert.Equal(t, StatusTimeout, statuses["slow-primary"])
	assert.Equal(t, StatusOK, statuses["fast-secondary"])
	assert.Equal(t, StatusOK, statuses["extractor"])
}

func TestPanickingAnalyzerIsContained(t *testing.T) {
	boom := &fakeAnalyzer{
		name: "boom", category: analyzers.CategoryRhythm, fidelity: analyzers.FidelityPrimary,
		analyze: func(context.Context) (*analyzers.Result, error) { panic("index out of range") },
	}
	backup := &fakeAnalyzer{
		name: "backup", category: analyzers.CategoryRhythm, fidelity: analyzers.FidelitySecondary,
		analyze: func(context.Context) (*analyzers.Result, error) {
			return tempoResult("backup", analyzers.FidelitySecondary, 87), nil
		},
	}

	analysis, err := stubPipeline(budgets(5*time.Second, time.Second), boom, backup).Run(context.Background(), trackFile(t))
	require.NoError(t, err)
	assert.Equal(t, 87.0, analysis.Record.Tempo.Value)

	require.NotEmpty(t, analysis.Stages)
	for _, s := range analysis.Stages {
		if s.Analyzer == "boom" {
			assert.Equal(t, StatusFailed, s.Status)
			assert.Contains(t, s.Error, "panicked")
		}
	}
}

func TestSuccessfulPrimarySkipsSecondary(t *testing.T) {
	calls := 0
	primary := &fakeAnalyzer{
		name: "primary", category: analyzers.CategoryRhythm, fidelity: analyzers.FidelityPrimary,
		analyze: func(context.Context) (*analyzers.Result, error) {
			return tempoResult("primary", analyzers.FidelityPrimary, 128), nil
		},
	}
	secondary := &fakeAnalyzer{
		name: "secondary", category: analyzers.CategoryRhythm, fidelity: analyzers.FidelitySecondary,
		analyze: func(context.Context) (*analyzers.Result, error) {
			calls++
			return tempoResult("secondary", analyzers.FidelitySecondary, 64), nil
		},
	}

	analysis, err := stubPipeline(budgets(5*time.Second, time.Second), primary, secondary).Run(context.Background(), trackFile(t))
	require.NoError(t, err)
	assert.Equal(t, 128.0, analysis.Record.Tempo.Value)
	assert.Zero(t, calls)
}

func TestOverallDeadlineReturnsDefaults(t *testing.T) {
	stuck := &fakeAnalyzer{
		name: "stuck", category: analyzers.CategoryRhythm, fidelity: analyzers.FidelityPrimary,
		analyze: func(context.Context) (*analyzers.Result, error) {
			time.Sleep(2 * time.Second)
			return tempoResult("stuck", analyzers.FidelityPrimary, 140), nil
		},
	}

	start := time.Now()
	analysis, err := stubPipeline(budgets(100*time.Millisecond, 10*time.Second), stuck).Run(context.Background(), trackFile(t))
	require.NoError(t, err)

	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, analysis.TimedOut)
	assert.Equal(t, features.SourceDefault, analysis.Record.Tempo.Source)
	assert.Equal(t, 120.0, analysis.Record.Tempo.Value)
}

// fakeFFmpegPipeline runs the real normalizer against a script that copies a fixture WAV
// to its output argument. It returns the normalizer's temp dir.
func fakeFFmpegPipeline(t *testing.T, cfg config.PipelineConfig, rhythm ...analyzers.SignalAnalyzer) (*Pipeline, string) {
	t.Helper()
	const sr = 8000
	fixture := audiotest.WriteWAV(t, "normalized.wav", audiotest.ClickTrack(120, sr, 4), sr)

	script := "#!/bin/sh\nfor arg; do dst=\"$arg\"; done\ncp '" + fixture + "' \"$dst\"\n" +
		"echo '{\"input_i\" : \"-9.00\", \"input_tp\" : \"-1.00\"}' >&2\n"
	ffmpeg := filepath.Join(t.TempDir(), "ffmpeg")
	require.NoError(t, os.WriteFile(ffmpeg, []byte(script), 0o755))

	tempDir := t.TempDir()
	p := New(Options{
		Config: cfg,
		Normalizer: transcode.NewNormalizer(&transcode.NormalizerConfig{
			FFmpegPath: ffmpeg,
			TempDir:    tempDir,
			SampleRate: sr,
			TargetLUFS: -14,
			TargetPeak: -1,
			Timeout:    5 * time.Second,
		}),
		Extractor: stubExtractor{},
		Registry:  analyzers.NewRegistryWithTiers(analyzers.Capabilities{}, map[analyzers.Category][]analyzers.SignalAnalyzer{analyzers.CategoryRhythm: rhythm}),
	})
	return p, tempDir
}

func countEntries(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	return len(entries)
}

func TestNormalizedTempFileRemoved(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		var during int
		var tempDir string
		quick := &fakeAnalyzer{
			name: "quick", category: analyzers.CategoryRhythm, fidelity: analyzers.FidelityPrimary,
			analyze: func(context.Context) (*analyzers.Result, error) {
				entries, _ := os.ReadDir(tempDir)
				during = len(entries)
				return tempoResult("quick", analyzers.FidelityPrimary, 124), nil
			},
		}
		var p *Pipeline
		p, tempDir = fakeFFmpegPipeline(t, budgets(5*time.Second, time.Second), quick)

		analysis, err := p.Run(context.Background(), trackFile(t))
		require.NoError(t, err)

		assert.True(t, analysis.Normalized)
		assert.False(t, analysis.TimedOut)
		assert.Equal(t, 124.0, analysis.Record.Tempo.Value)
		assert.Equal(t, 1, during)
		assert.Zero(t, countEntries(t, tempDir))
	})

	t.Run("deadline", func(t *testing.T) {
		stuck := &fakeAnalyzer{
			name: "stuck", category: analyzers.CategoryRhythm, fidelity: analyzers.FidelityPrimary,
			analyze: func(ctx context.Context) (*analyzers.Result, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			},
		}
		p, tempDir := fakeFFmpegPipeline(t, budgets(500*time.Millisecond, 10*time.Second), stuck)

		analysis, err := p.Run(context.Background(), trackFile(t))
		require.NoError(t, err)

		assert.True(t, analysis.Normalized)
		assert.True(t, analysis.TimedOut)
		assert.Zero(t, countEntries(t, tempDir))
	})
}
