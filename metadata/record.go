package metadata

import (
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// FallbackSampleRate is reported when nothing about the file could be read
const FallbackSampleRate = 44100

// Record is the descriptive and technical information read from a file
type Record struct {
	Title  string `json:"title"`
	Artist string `json:"artist"`
	Album  string `json:"album"`
	Genre  string `json:"genre"`

	Duration   time.Duration `json:"duration"`
	Bitrate    int           `json:"bitrate"` // bits per second
	SampleRate int           `json:"sample_rate"`
	Channels   int           `json:"channels"`
	Codec      string        `json:"codec"`
	BitDepth   int           `json:"bit_depth"`
	Lossless   bool          `json:"lossless"`

	// Values declared in tags, not measured
	DeclaredBPM      *float64 `json:"declared_bpm,omitempty"`
	DeclaredKey      string   `json:"declared_key,omitempty"`
	DeclaredScale    string   `json:"declared_scale,omitempty"`
	DeclaredLoudness *float64 `json:"declared_loudness,omitempty"` // LUFS, from ReplayGain

	Fallback bool `json:"fallback"`
}

var trackNumberPrefix = regexp.MustCompile(`^(\d+)[\.\-\s]+(.+)`)

// TitleFromFilename strips the extension and a leading track number, and turns underscores into spaces
func TitleFromFilename(path string) string {
	name := filepath.Base(path)
	title := strings.TrimSuffix(name, filepath.Ext(name))

	if matches := trackNumberPrefix.FindStringSubmatch(title); len(matches) > 2 {
		title = matches[2]
	}

	title = strings.TrimSpace(strings.ReplaceAll(title, "_", " "))
	if title == "" {
		return "Untitled"
	}
	return title
}

// MinimalRecord is the record used when nothing could be read from the file
func MinimalRecord(path string) Record {
	return Record{
		Title:      TitleFromFilename(path),
		SampleRate: FallbackSampleRate,
		Fallback:   true,
	}
}

// replayGainToLUFS converts a ReplayGain track gain (reference -18 LUFS) into integrated loudness
func replayGainToLUFS(gainDB float64) float64 {
	return -18.0 - gainDB
}

func isLosslessCodec(codec string) bool {
	codec = strings.ToLower(codec)
	switch {
	case codec == "flac", codec == "alac", codec == "wavpack", codec == "ape":
		return true
	case strings.HasPrefix(codec, "pcm_"):
		return true
	}
	return false
}

func isLosslessExtension(ext string) bool {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "wav", "flac", "aiff", "aif":
		return true
	}
	return false
}
