// Package pipeline runs one track through normalization, metadata extraction and every
// analyzer category, then aggregates and describes the result.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/RyanBlaney/sonido-critique/analyzers"
	"github.com/RyanBlaney/sonido-critique/config"
	"github.com/RyanBlaney/sonido-critique/describe"
	"github.com/RyanBlaney/sonido-critique/features"
	"github.com/RyanBlaney/sonido-critique/logging"
	"github.com/RyanBlaney/sonido-critique/metadata"
	"github.com/RyanBlaney/sonido-critique/transcode"
	"github.com/arunsworld/nursery"
)

// Normalizer prepares the audio every analyzer reads
type Normalizer interface {
	Normalize(ctx context.Context, asset *transcode.Asset) (*transcode.NormalizedAudio, error)
}

// MetadataExtractor reads declared and technical metadata; it never fails
type MetadataExtractor interface {
	Extract(ctx context.Context, asset *transcode.Asset) metadata.Record
}

// Analysis is everything one run produced
type Analysis struct {
	Record     features.Record  `json:"record"`
	Summary    describe.Summary `json:"summary"`
	Metadata   metadata.Record  `json:"metadata"`
	Stages     []StageReport    `json:"stages"`
	TimedOut   bool             `json:"timed_out"`
	Normalized bool             `json:"normalized"`
	Elapsed    time.Duration    `json:"elapsed"`
}

// Options wires a pipeline from explicit components
type Options struct {
	Config      config.PipelineConfig
	MaxFileSize int64
	Normalizer  Normalizer
	Extractor   MetadataExtractor
	Registry    *analyzers.Registry
}

// Pipeline is safe for concurrent runs; it holds no per-run state
type Pipeline struct {
	config      config.PipelineConfig
	maxFileSize int64
	normalizer  Normalizer
	extractor   MetadataExtractor
	registry    *analyzers.Registry
	logger      logging.Logger
}

// New creates a pipeline from explicit components
func New(opts Options) *Pipeline {
	return &Pipeline{
		config:      opts.Config,
		maxFileSize: opts.MaxFileSize,
		normalizer:  opts.Normalizer,
		extractor:   opts.Extractor,
		registry:    opts.Registry,
		logger: logging.WithFields(logging.Fields{
			"component": "pipeline",
		}),
	}
}

// NewFromConfig builds the ffmpeg normalizer and the metadata extractor for registry
func NewFromConfig(cfg *config.Config, registry *analyzers.Registry) *Pipeline {
	caps := registry.Capabilities()

	normalizer := transcode.NewNormalizer(&transcode.NormalizerConfig{
		FFmpegPath:    cfg.Transcode.FFmpegPath,
		TempDir:       cfg.Transcode.TempDir,
		SampleRate:    cfg.Transcode.SampleRate,
		TargetLUFS:    cfg.Transcode.TargetLUFS,
		TargetPeak:    cfg.Transcode.TargetPeak,
		LoudnessRange: cfg.Transcode.LoudnessRange,
		Timeout:       cfg.Pipeline.NormalizationBudget,
	})

	var prober metadata.Prober
	if caps.FFprobe {
		prober = transcode.NewProber(caps.FFprobePath, cfg.Pipeline.MetadataBudget)
	}

	return New(Options{
		Config:      cfg.Pipeline,
		MaxFileSize: cfg.Transcode.MaxFileSize,
		Normalizer:  normalizer,
		Extractor:   metadata.NewExtractor(prober),
		Registry:    registry,
	})
}

// Registry exposes the tier lists the pipeline runs
func (p *Pipeline) Registry() *analyzers.Registry {
	return p.registry
}

// Run analyzes the file at path. The only error is transcode.ErrAssetNotFound; every other
// failure degrades into defaults recorded in the stage reports.
func (p *Pipeline) Run(ctx context.Context, path string) (*Analysis, error) {
	start := time.Now()
	logger := p.logger.WithContext(ctx).WithFields(logging.Fields{
		"function": "Run",
		"path":     path,
	})

	asset, err := transcode.OpenAsset(path, p.maxFileSize)
	if err != nil {
		return nil, err
	}
	if asset.Oversized {
		logger.Warn("Asset exceeds the upload size cap", logging.Fields{"size": asset.Size})
	}

	runCtx := ctx
	if p.config.Deadline > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, p.config.Deadline)
		defer cancel()
	}

	audio, err := p.normalizer.Normalize(runCtx, asset)
	if err != nil {
		return nil, err
	}
	defer audio.Release()

	categories := analyzers.Categories()
	results := make([]*analyzers.Result, len(categories))
	reports := make([][]StageReport, len(categories))
	var meta *metadata.Record
	var metaReport StageReport

	jobs := []nursery.ConcurrentJob{
		func(jobCtx context.Context, _ chan error) {
			meta, metaReport = p.runMetadata(jobCtx, asset)
		},
	}
	for i, category := range categories {
		jobs = append(jobs, func(jobCtx context.Context, _ chan error) {
			results[i], reports[i] = p.runCategory(jobCtx, category, audio)
		})
	}

	if err := nursery.RunConcurrentlyWithContext(runCtx, jobs...); err != nil {
		// jobs never report errors; keep whatever slots were filled
		logger.Warn("Analysis jobs reported an error", logging.Fields{"error": err.Error()})
	}

	analysis := &Analysis{
		Normalized: audio.Normalized,
		TimedOut:   runCtx.Err() != nil,
	}

	if meta != nil {
		analysis.Metadata = *meta
	} else {
		analysis.Metadata = metadata.MinimalRecord(asset.Path)
	}

	analysis.Stages = append(analysis.Stages, metaReport)
	var completed []analyzers.Result
	for i := range categories {
		analysis.Stages = append(analysis.Stages, reports[i]...)
		if results[i] != nil {
			completed = append(completed, *results[i])
		}
	}

	analysis.Record = features.Aggregate(analysis.Metadata, completed)
	analysis.Summary = describe.Describe(analysis.Record)
	analysis.Elapsed = time.Since(start)

	logger.Info("Analysis completed", logging.Fields{
		"analyzers_ok": len(completed),
		"timed_out":    analysis.TimedOut,
		"normalized":   analysis.Normalized,
		"elapsed_ms":   analysis.Elapsed.Milliseconds(),
	})

	return analysis, nil
}

type metadataOutcome struct {
	record metadata.Record
	err    error
}

func (p *Pipeline) runMetadata(ctx context.Context, asset *transcode.Asset) (*metadata.Record, StageReport) {
	report := StageReport{Category: StageMetadata, Analyzer: "extractor"}
	start := time.Now()

	if p.config.MetadataBudget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.MetadataBudget)
		defer cancel()
	}

	ch := make(chan metadataOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- metadataOutcome{err: fmt.Errorf("metadata extraction panicked: %v", r)}
			}
		}()
		ch <- metadataOutcome{record: p.extractor.Extract(ctx, asset)}
	}()

	select {
	case out := <-ch:
		report.Elapsed = time.Since(start)
		if out.err != nil {
			report.fail(StatusFailed, out.err)
			return nil, report
		}
		report.Status = StatusOK
		return &out.record, report
	case <-ctx.Done():
		report.Elapsed = time.Since(start)
		report.fail(StatusTimeout, ctx.Err())
		return nil, report
	}
}

type analyzerOutcome struct {
	result *analyzers.Result
	err    error
}

// runCategory walks the tier list until one analyzer succeeds
func (p *Pipeline) runCategory(ctx context.Context, category analyzers.Category, audio *transcode.NormalizedAudio) (*analyzers.Result, []StageReport) {
	logger := p.logger.WithContext(ctx).WithFields(logging.Fields{
		"function": "runCategory",
		"category": category,
	})

	var reports []StageReport
	var chosen *analyzers.Result

	for _, a := range p.registry.Tiers(category) {
		report := StageReport{Category: string(category), Analyzer: a.Name(), Fidelity: a.Fidelity()}

		switch {
		case chosen != nil:
			report.Status = StatusSkipped
		case ctx.Err() != nil:
			report.fail(StatusSkipped, ctx.Err())
		case a.Fidelity() == analyzers.FidelityUnavailable:
			report.Status = StatusUnavailable
			if u, ok := a.(*analyzers.Unavailable); ok {
				report.Error = u.Reason()
			}
		default:
			start := time.Now()
			res, status, err := p.attempt(ctx, a, audio)
			report.Elapsed = time.Since(start)
			if err != nil {
				report.fail(status, err)
				logger.Info("Analyzer failed, trying next tier", logging.Fields{
					"analyzer": a.Name(),
					"status":   status,
					"error":    err.Error(),
				})
			} else {
				report.Status = StatusOK
				chosen = res
			}
		}

		reports = append(reports, report)
	}

	return chosen, reports
}

func (p *Pipeline) attempt(ctx context.Context, a analyzers.SignalAnalyzer, audio *transcode.NormalizedAudio) (*analyzers.Result, StageStatus, error) {
	if p.config.AnalyzerBudget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.AnalyzerBudget)
		defer cancel()
	}

	// buffered so an abandoned analyzer can still deliver and exit
	ch := make(chan analyzerOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- analyzerOutcome{err: fmt.Errorf("%s panicked: %v", a.Name(), r)}
			}
		}()
		res, err := a.Analyze(ctx, audio)
		ch <- analyzerOutcome{result: res, err: err}
	}()

	select {
	case out := <-ch:
		switch {
		case out.err != nil && errors.Is(out.err, context.DeadlineExceeded):
			return nil, StatusTimeout, out.err
		case errors.Is(out.err, analyzers.ErrUnavailable):
			return nil, StatusUnavailable, out.err
		case out.err != nil:
			return nil, StatusFailed, out.err
		case out.result == nil:
			return nil, StatusFailed, errors.New("analyzer returned no result")
		}
		return out.result, StatusOK, nil
	case <-ctx.Done():
		return nil, StatusTimeout, fmt.Errorf("%s: %w", a.Name(), ctx.Err())
	}
}
