package jobs

import (
	"context"
	"fmt"

	"github.com/RyanBlaney/sonido-critique/compare"
	"github.com/RyanBlaney/sonido-critique/describe"
	"github.com/RyanBlaney/sonido-critique/features"
	"github.com/RyanBlaney/sonido-critique/feedback"
	"github.com/RyanBlaney/sonido-critique/pipeline"
)

// Analyzer runs the analysis pipeline on one file
type Analyzer interface {
	Run(ctx context.Context, path string) (*pipeline.Analysis, error)
}

// Comparer compares a record against reference artists
type Comparer interface {
	Compare(ctx context.Context, record features.Record, artists []string) compare.Result
}

// FeedbackGenerator produces production feedback; it never fails
type FeedbackGenerator interface {
	Generate(ctx context.Context, summary describe.Summary, comparison *compare.Result, artists []string) feedback.Feedback
}

// AnalysisProcessor runs the pipeline, then the optional comparison and feedback
type AnalysisProcessor struct {
	analyzer  Analyzer
	comparer  Comparer
	generator FeedbackGenerator
}

// NewAnalysisProcessor wires a processor. comparer and generator may be nil, which skips
// their stage.
func NewAnalysisProcessor(analyzer Analyzer, comparer Comparer, generator FeedbackGenerator) *AnalysisProcessor {
	return &AnalysisProcessor{analyzer: analyzer, comparer: comparer, generator: generator}
}

// Process analyzes req.TrackPath. Only a missing track fails the job.
func (p *AnalysisProcessor) Process(ctx context.Context, req Request) (*Result, error) {
	analysis, err := p.analyzer.Run(ctx, req.TrackPath)
	if err != nil {
		return nil, fmt.Errorf("analyze %s: %w", req.TrackPath, err)
	}

	result := &Result{Analysis: analysis}
	if len(req.Artists) > 0 && p.comparer != nil {
		cmp := p.comparer.Compare(ctx, analysis.Record, req.Artists)
		result.Comparison = &cmp
	}
	if req.WantFeedback && p.generator != nil {
		fb := p.generator.Generate(ctx, analysis.Summary, result.Comparison, req.Artists)
		result.Feedback = &fb
	}
	return result, nil
}
