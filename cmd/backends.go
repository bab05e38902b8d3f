package cmd

import (
	"fmt"
	"io"

	"github.com/RyanBlaney/sonido-critique/analyzers"
	"github.com/spf13/cobra"
)

func init() {
	cmdRoot.AddCommand(cmdBackends())
}

func cmdBackends() *cobra.Command {
	return &cobra.Command{
		Use:   "backends",
		Short: "Show detected tools and the analyzer tiers per category",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			printBackends(cmd.OutOrStdout(), newRegistry(cfg))
			return nil
		},
	}
}

func printBackends(w io.Writer, registry *analyzers.Registry) {
	caps := registry.Capabilities()

	headingColor.Fprintln(w, "Tools")
	for _, tool := range []struct {
		name  string
		found bool
		path  string
	}{
		{"ffmpeg", caps.FFmpeg, caps.FFmpegPath},
		{"ffprobe", caps.FFprobe, caps.FFprobePath},
		{"aubio", caps.Aubio, caps.AubioPath},
	} {
		if tool.found {
			fmt.Fprintf(w, "  %-8s %s %s\n", tool.name, goodColor.Sprint("found"), faintColor.Sprint(tool.path))
		} else {
			fmt.Fprintf(w, "  %-8s %s\n", tool.name, warnColor.Sprint("missing"))
		}
	}

	fmt.Fprintln(w)
	headingColor.Fprintln(w, "Analyzer tiers")
	tiers := registry.TierNames()
	for _, category := range analyzers.Categories() {
		labelColor.Fprintf(w, "  %s\n", category)
		for i, name := range tiers[category] {
			fmt.Fprintf(w, "    %d. %s\n", i+1, name)
		}
	}
}
