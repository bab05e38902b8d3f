package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/RyanBlaney/sonido-critique/compare"
	"github.com/RyanBlaney/sonido-critique/jobs"
	"github.com/RyanBlaney/sonido-critique/pipeline"
	"github.com/fatih/color"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	headingColor = color.New(color.FgCyan, color.Bold)
	labelColor   = color.New(color.Bold)
	goodColor    = color.New(color.FgGreen)
	warnColor    = color.New(color.FgYellow)
	badColor     = color.New(color.FgRed)
	faintColor   = color.New(color.Faint)
)

func init() {
	cmdRoot.AddCommand(cmdAnalyze())
}

func cmdAnalyze() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze <file>",
		Short: "Analyze a track and print its feature report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			artists, _ := cmd.Flags().GetStringArray("artist")
			wantFeedback, _ := cmd.Flags().GetBool("feedback")
			asJSON, _ := cmd.Flags().GetBool("json")

			a := newApp(cmd.Context(), cfg)
			defer a.Close()

			result, err := a.processor.Process(cmd.Context(), jobs.Request{
				TrackPath:    args[0],
				Artists:      artists,
				WantFeedback: wantFeedback,
			})
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}
			renderReport(cmd.OutOrStdout(), result)
			return nil
		},
	}
	cmd.Flags().StringArrayP("artist", "a", nil, "reference artist to compare against (repeatable)")
	cmd.Flags().Bool("feedback", false, "ask the language model for production feedback")
	cmd.Flags().Bool("json", false, "print the full result as JSON")
	return cmd
}

// renderReport prints a human readable report of one analysis
func renderReport(w io.Writer, result *jobs.Result) {
	analysis := result.Analysis
	s := analysis.Summary

	title := s.Title
	if s.Artist != "" {
		title += " by " + s.Artist
	}
	headingColor.Fprintln(w, title)
	if analysis.TimedOut {
		warnColor.Fprintln(w, "Analysis hit its deadline; some values are defaults.")
	}
	fmt.Fprintln(w)

	row := func(label, value string) {
		labelColor.Fprintf(w, "  %-14s", label)
		fmt.Fprintln(w, value)
	}
	row("Tempo", fmt.Sprintf("%.0f BPM, %s", s.Tempo.Value, s.Tempo.Description))
	row("Key", s.Harmonic.Description)
	row("Loudness", fmt.Sprintf("%.1f LUFS, %s", s.Loudness.Value, s.Loudness.Quality))
	dynamics := fmt.Sprintf("%.1f LU, %s", s.Dynamics.Value, s.Dynamics.Description)
	if s.Dynamics.ImprovementNeeded {
		dynamics = warnColor.Sprint(dynamics)
	}
	row("Dynamics", dynamics)
	row("Mix balance", fmt.Sprintf("%.2f, %s", s.MixBalance.Value, s.MixBalance.Quality))
	row("Complexity", s.Complexity.Description)
	row("Beat", s.BeatStrength.Band)
	row("Mood", s.Mood)

	fmt.Fprintln(w)
	headingColor.Fprintln(w, "Analyzers")
	for _, stage := range analysis.Stages {
		fmt.Fprintf(w, "  %-10s %-16s %s", stage.Category, stage.Analyzer, stageColor(stage.Status).Sprint(stage.Status))
		if stage.Error != "" {
			faintColor.Fprintf(w, "  %s", stage.Error)
		}
		fmt.Fprintln(w)
	}

	if cmp := result.Comparison; cmp != nil {
		fmt.Fprintln(w)
		headingColor.Fprintln(w, "Reference comparison")
		for _, d := range compare.Dimensions() {
			delta := cmp.Delta(d)
			if !delta.Available {
				faintColor.Fprintf(w, "  %s: no reference data\n", d)
				continue
			}
			c := goodColor
			if delta.Direction != "matches" {
				c = warnColor
			}
			c.Fprintf(w, "  %s\n", delta.Description)
		}
		fmt.Fprintf(w, "  Similarity: %.0f/100\n", cmp.SimilarityScore)
		if cmp.ClosestMatch.Artist != "" {
			fmt.Fprintf(w, "  Closest match: %s (%.0f/100)\n", cmp.ClosestMatch.Artist, cmp.ClosestMatch.Score)
		}
	}

	if fb := result.Feedback; fb != nil {
		fmt.Fprintln(w)
		heading := "Feedback"
		if fb.Model != "" {
			heading += " (" + fb.Model + ")"
		}
		headingColor.Fprintln(w, heading)
		for _, line := range strings.Split(fb.Text, "\n") {
			fmt.Fprintln(w, "  "+line)
		}
	}
}

func stageColor(status pipeline.StageStatus) *color.Color {
	switch status {
	case pipeline.StatusOK:
		return goodColor
	case pipeline.StatusFailed:
		return badColor
	case pipeline.StatusSkipped:
		return faintColor
	default:
		return warnColor
	}
}
