// Package feedback asks a language model for production feedback on an analyzed track and
// substitutes canned advice whenever the model is slow or unavailable.
package feedback

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/RyanBlaney/sonido-critique/compare"
	"github.com/RyanBlaney/sonido-critique/config"
	"github.com/RyanBlaney/sonido-critique/describe"
	"github.com/RyanBlaney/sonido-critique/logging"
)

// Timeout bounds for a single feedback request
const (
	MinTimeout = 20 * time.Second
	MaxTimeout = 30 * time.Second
)

// Feedback sources
const (
	SourceModel    = "model"
	SourceFallback = "fallback"
)

const systemPrompt = "You are an experienced mixing and mastering engineer. " +
	"Give concise, practical production feedback on the track described by the user. " +
	"Comment on tempo, loudness, dynamics, mix balance and arrangement, and suggest concrete next steps. " +
	"When reference artists are given, explain how the track differs from their typical sound."

// Chatter is the model endpoint the generator calls
type Chatter interface {
	Chat(ctx context.Context, messages []Message) (string, error)
}

// Feedback is the generated advice
type Feedback struct {
	Text    string        `json:"text"`
	Source  string        `json:"source"`
	Model   string        `json:"model,omitempty"`
	Error   string        `json:"error,omitempty"`
	Elapsed time.Duration `json:"elapsed"`
}

// Generator produces feedback and never fails
type Generator struct {
	chatter Chatter
	model   string
	timeout time.Duration
	logger  logging.Logger
}

// NewGenerator creates a generator whose timeout is clamped into [MinTimeout, MaxTimeout]
func NewGenerator(chatter Chatter, model string, timeout time.Duration) *Generator {
	return &Generator{
		chatter: chatter,
		model:   model,
		timeout: ClampTimeout(timeout),
		logger: logging.WithFields(logging.Fields{
			"component": "feedback_generator",
		}),
	}
}

// NewFromConfig wires an Ollama-backed generator
func NewFromConfig(cfg config.FeedbackConfig) *Generator {
	return NewGenerator(NewOllamaClient(cfg.OllamaHost, cfg.Model), cfg.Model, cfg.Timeout)
}

// ClampTimeout keeps a requested timeout inside the allowed window
func ClampTimeout(d time.Duration) time.Duration {
	return min(max(d, MinTimeout), MaxTimeout)
}

// Generate asks the model for feedback. Timeouts, transport errors and empty replies
// yield the canned fallback.
func (g *Generator) Generate(ctx context.Context, summary describe.Summary, comparison *compare.Result, artists []string) Feedback {
	logger := g.logger.WithContext(ctx).WithFields(logging.Fields{
		"function": "Generate",
		"title":    summary.Title,
	})

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	messages := []Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: BuildPrompt(summary, comparison, artists)},
	}

	text, err := g.chatter.Chat(ctx, messages)
	elapsed := time.Since(start)
	if err != nil {
		logger.Warn("Feedback model failed, using fallback", logging.Fields{
			"error":      err.Error(),
			"elapsed_ms": elapsed.Milliseconds(),
		})
		return Feedback{
			Text:    FallbackText(summary),
			Source:  SourceFallback,
			Error:   err.Error(),
			Elapsed: elapsed,
		}
	}

	logger.Info("Feedback generated", logging.Fields{"elapsed_ms": elapsed.Milliseconds()})
	return Feedback{Text: text, Source: SourceModel, Model: g.model, Elapsed: elapsed}
}

// BuildPrompt renders the summary, comparison deltas and artist list as the user message
func BuildPrompt(summary describe.Summary, comparison *compare.Result, artists []string) string {
	var b strings.Builder

	title := summary.Title
	if title == "" {
		title = "Untitled"
	}
	fmt.Fprintf(&b, "Track: %s", title)
	if summary.Artist != "" {
		fmt.Fprintf(&b, " by %s", summary.Artist)
	}
	b.WriteString("\n\nAnalysis:\n")
	b.WriteString(summary.PromptText())

	if len(artists) > 0 {
		fmt.Fprintf(&b, "\n\nReference artists: %s", strings.Join(artists, ", "))
	}

	if comparison != nil {
		b.WriteString("\n\nComparison with the reference artists:\n")
		for _, d := range compare.Dimensions() {
			if delta := comparison.Delta(d); delta.Available {
				fmt.Fprintf(&b, "- %s\n", delta.Description)
			}
		}
		fmt.Fprintf(&b, "- Overall similarity: %.0f/100", comparison.SimilarityScore)
		if comparison.ClosestMatch.Artist != "" {
			fmt.Fprintf(&b, "\n- Closest match: %s (%.0f/100)", comparison.ClosestMatch.Artist, comparison.ClosestMatch.Score)
		}
	}

	return b.String()
}

// FallbackText is the canned advice used when the model cannot answer
func FallbackText(summary describe.Summary) string {
	lines := []string{
		"Automated feedback is unavailable right now, so here is a quick read of the analysis.",
		fmt.Sprintf("Tempo: %s. Loudness: %s.", summary.Tempo.Description, summary.Loudness.Quality),
		fmt.Sprintf("Mix balance: %s.", summary.MixBalance.Quality),
	}
	if summary.Dynamics.ImprovementNeeded {
		lines = append(lines, "Dynamics are limited; try easing off bus compression and limiting to let transients breathe.")
	} else {
		lines = append(lines, fmt.Sprintf("Dynamics: %s.", summary.Dynamics.Description))
	}
	lines = append(lines, "Compare your mix against a few reference tracks at matched loudness before finalizing.")
	return strings.Join(lines, "\n")
}
