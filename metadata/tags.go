package metadata

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/bogem/id3v2/v2"
	"github.com/dhowden/tag"
)

var (
	bpmKeys        = []string{"TBPM", "TBP", "bpm", "tmpo", "BPM"}
	keyKeys        = []string{"TKEY", "TKE", "initialkey", "key", "INITIALKEY"}
	replayGainKeys = []string{"replaygain_track_gain", "REPLAYGAIN_TRACK_GAIN"}
)

// readTags fills descriptive fields and declared values from container tags
func readTags(path string, rec *Record) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("could not open file: %w", err)
	}
	defer file.Close()

	meta, err := tag.ReadFrom(file)
	if err != nil {
		return fmt.Errorf("could not parse tags: %w", err)
	}

	rec.Title = strings.TrimSpace(meta.Title())
	rec.Artist = strings.TrimSpace(meta.Artist())
	rec.Album = strings.TrimSpace(meta.Album())
	rec.Genre = strings.TrimSpace(meta.Genre())

	raw := meta.Raw()

	if v, ok := lookupRaw(raw, bpmKeys); ok {
		if bpm, ok := parseBPM(v); ok {
			rec.DeclaredBPM = &bpm
		}
	}

	if v, ok := lookupRaw(raw, keyKeys); ok {
		if key, scale, ok := ParseKey(v); ok {
			rec.DeclaredKey, rec.DeclaredScale = key, scale
		}
	}

	gain, ok := lookupRaw(raw, replayGainKeys)
	if !ok {
		gain, ok = lookupUserText(raw, "REPLAYGAIN_TRACK_GAIN")
	}
	if ok {
		if g, ok := parseGain(gain); ok {
			lufs := replayGainToLUFS(g)
			rec.DeclaredLoudness = &lufs
		}
	}

	return nil
}

// lookupRaw returns the first key present as a string. Raw values are strings for text frames
// and Vorbis comments, and integers for MP4 atoms like tmpo.
func lookupRaw(raw map[string]any, keys []string) (string, bool) {
	for _, k := range keys {
		v, ok := raw[k]
		if !ok {
			continue
		}
		if s := rawString(v); s != "" {
			return s, true
		}
	}
	return "", false
}

func rawString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case int:
		return strconv.Itoa(val)
	case []string:
		if len(val) > 0 {
			return strings.TrimSpace(val[0])
		}
	case *tag.Comm:
		return strings.TrimSpace(val.Text)
	}
	return ""
}

// lookupUserText finds ID3 TXXX frames (stored as TXXX, TXXX_0, ...) by description
func lookupUserText(raw map[string]any, description string) (string, bool) {
	for k, v := range raw {
		if !strings.HasPrefix(k, "TXXX") && !strings.HasPrefix(k, "TXX") {
			continue
		}
		if c, ok := v.(*tag.Comm); ok && strings.EqualFold(c.Description, description) {
			return strings.TrimSpace(c.Text), true
		}
	}
	return "", false
}

// readID3Frames reads TBPM/TKEY and the ReplayGain TXXX frame directly from an MP3's ID3v2 tag.
// Only fields still empty are filled.
func readID3Frames(path string, rec *Record) error {
	id3Tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return fmt.Errorf("failed to open mp3 file: %w", err)
	}
	defer id3Tag.Close()

	if rec.Title == "" {
		rec.Title = strings.TrimSpace(id3Tag.Title())
	}
	if rec.Artist == "" {
		rec.Artist = strings.TrimSpace(id3Tag.Artist())
	}
	if rec.Genre == "" {
		rec.Genre = strings.TrimSpace(id3Tag.Genre())
	}

	if rec.DeclaredBPM == nil {
		if bpm, ok := parseBPM(id3Tag.GetTextFrame(id3Tag.CommonID("BPM")).Text); ok {
			rec.DeclaredBPM = &bpm
		}
	}

	if rec.DeclaredKey == "" {
		if key, scale, ok := ParseKey(id3Tag.GetTextFrame(id3Tag.CommonID("Initial key")).Text); ok {
			rec.DeclaredKey, rec.DeclaredScale = key, scale
		}
	}

	if rec.DeclaredLoudness == nil {
		for _, f := range id3Tag.GetFrames(id3Tag.CommonID("User defined text information frame")) {
			udtf, ok := f.(id3v2.UserDefinedTextFrame)
			if !ok || !strings.EqualFold(udtf.Description, "REPLAYGAIN_TRACK_GAIN") {
				continue
			}
			if g, ok := parseGain(udtf.Value); ok {
				lufs := replayGainToLUFS(g)
				rec.DeclaredLoudness = &lufs
			}
		}
	}

	return nil
}

func parseBPM(s string) (float64, bool) {
	bpm, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || bpm < 20 || bpm > 300 {
		return 0, false
	}
	return bpm, true
}

// parseGain reads values like "-7.45 dB"
func parseGain(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(strings.TrimSuffix(s, "dB"), "db")
	g, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return g, true
}
