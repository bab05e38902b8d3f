package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/RyanBlaney/sonido-critique/reference"
	"github.com/RyanBlaney/sonido-critique/reference/harvest"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

func init() {
	cmdRoot.AddCommand(cmdHarvest())
}

func cmdHarvest() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "harvest <artist>...",
		Short: "Build reference profiles from external sources and store them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			limit, _ := cmd.Flags().GetInt("limit")
			if limit <= 0 {
				limit = cfg.Reference.HarvestTrackLimit
			}

			store, err := reference.OpenStore(cfg.Reference.DatabasePath, cfg.Reference.ProfileTTL)
			if err != nil {
				return err
			}
			defer store.Close()

			var bar *progressbar.ProgressBar
			h := harvest.NewFromConfig(cmd.Context(), cfg.Reference, func(string, harvest.TrackRef) {
				bar.Add(1)
			})

			newBar := func(artist string) {
				bar = progressbar.NewOptions(-1,
					progressbar.OptionSetWriter(os.Stderr),
					progressbar.OptionSetDescription("harvesting "+artist),
					progressbar.OptionShowCount(),
					progressbar.OptionClearOnFinish(),
				)
			}
			finish := func() { bar.Finish() }

			return harvestArtists(cmd.Context(), cmd.OutOrStdout(), h, store, args, limit, newBar, finish)
		},
	}
	cmd.Flags().IntP("limit", "n", 0, "maximum tracks per artist (default from config)")
	return cmd
}

type profileWriter interface {
	Put(ctx context.Context, p reference.Profile) error
}

// harvestArtists harvests each artist in turn and stores the profiles. before and after
// bracket every harvest. It fails if any artist failed.
func harvestArtists(ctx context.Context, w io.Writer, h reference.Harvester, store profileWriter, artists []string, limit int, before func(string), after func()) error {
	var failed []string
	for _, artist := range artists {
		before(artist)
		profile, err := h.Harvest(ctx, artist, limit)
		after()

		if err == nil {
			err = store.Put(ctx, profile)
		}
		if err != nil {
			badColor.Fprintf(w, "✗ %s: %v\n", artist, err)
			failed = append(failed, artist)
			continue
		}
		goodColor.Fprintf(w, "✓ %s: %s\n", profile.Artist, profileLine(profile))
	}

	if len(failed) > 0 {
		return fmt.Errorf("harvest failed for %d of %d artists: %s", len(failed), len(artists), strings.Join(failed, ", "))
	}
	return nil
}

func profileLine(p reference.Profile) string {
	parts := []string{fmt.Sprintf("%d tracks", p.TrackCount)}
	if p.MedianTempo != nil {
		parts = append(parts, fmt.Sprintf("%.1f BPM", *p.MedianTempo))
	}
	if p.MedianLoudness != nil {
		parts = append(parts, fmt.Sprintf("%.1f dB", *p.MedianLoudness))
	}
	if len(p.KeyHistogram) > 0 {
		parts = append(parts, p.KeyHistogram[0].Key)
	}
	if len(p.TopMoods) > 0 {
		parts = append(parts, strings.Join(p.TopMoods, "/"))
	}
	return strings.Join(parts, ", ")
}
