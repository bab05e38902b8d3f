package cmd

import (
	"context"

	"github.com/RyanBlaney/sonido-critique/analyzers"
	"github.com/RyanBlaney/sonido-critique/compare"
	"github.com/RyanBlaney/sonido-critique/config"
	"github.com/RyanBlaney/sonido-critique/feedback"
	"github.com/RyanBlaney/sonido-critique/jobs"
	"github.com/RyanBlaney/sonido-critique/logging"
	"github.com/RyanBlaney/sonido-critique/pipeline"
	"github.com/RyanBlaney/sonido-critique/reference"
	"github.com/RyanBlaney/sonido-critique/reference/harvest"
)

// app is the wired set of components shared by analyze and serve
type app struct {
	registry   *analyzers.Registry
	pipeline   *pipeline.Pipeline
	comparator *compare.Comparator
	generator  *feedback.Generator
	processor  *jobs.AnalysisProcessor
	store      *reference.Store
}

func newRegistry(cfg *config.Config) *analyzers.Registry {
	caps := analyzers.DetectCapabilities(cfg.Transcode.FFmpegPath, cfg.Transcode.FFprobePath, cfg.Analyzers.AubioPath)
	return analyzers.NewRegistry(caps, analyzers.Options{DisablePrimary: cfg.Analyzers.DisablePrimary})
}

// newApp wires every component from cfg. A profile store that cannot be opened only
// disables caching.
func newApp(ctx context.Context, cfg *config.Config) *app {
	logger := logging.WithContext(ctx).WithFields(logging.Fields{
		"component": "cli",
		"function":  "newApp",
	})

	a := &app{registry: newRegistry(cfg)}
	a.pipeline = pipeline.NewFromConfig(cfg, a.registry)

	opts := reference.ResolverOptions{
		HarvestTimeout: cfg.Reference.HarvestTimeout,
		TrackLimit:     cfg.Reference.HarvestTrackLimit,
	}
	store, err := reference.OpenStore(cfg.Reference.DatabasePath, cfg.Reference.ProfileTTL)
	if err != nil {
		logger.Warn("Reference profile store unavailable, continuing without it", logging.Fields{
			"path":  cfg.Reference.DatabasePath,
			"error": err.Error(),
		})
	} else {
		a.store = store
		opts.Store = store
	}
	if cfg.Reference.HarvestOnDemand {
		opts.Harvester = harvest.NewFromConfig(ctx, cfg.Reference, nil)
	}

	a.comparator = compare.NewComparator(reference.NewResolver(opts), nil)
	a.generator = feedback.NewFromConfig(cfg.Feedback)
	a.processor = jobs.NewAnalysisProcessor(a.pipeline, a.comparator, a.generator)
	return a
}

func (a *app) Close() {
	if a.store != nil {
		a.store.Close()
	}
}
