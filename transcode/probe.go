package transcode

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"time"
)

// ProbeResult holds audio properties detected by ffprobe
type ProbeResult struct {
	SampleRate int     `json:"sample_rate"`
	Channels   int     `json:"channels"`
	Codec      string  `json:"codec"`
	BitDepth   int     `json:"bit_depth,omitempty"`
	Duration   float64 `json:"duration"` // seconds
	Bitrate    int     `json:"bitrate"`  // bits per second
	Format     string  `json:"format"`
}

// Prober wraps the ffprobe binary
type Prober struct {
	FFprobePath string
	Timeout     time.Duration
}

// NewProber creates a prober; an empty path means "ffprobe" on PATH
func NewProber(path string, timeout time.Duration) *Prober {
	if path == "" {
		path = "ffprobe"
	}
	return &Prober{FFprobePath: path, Timeout: timeout}
}

// Probe reads stream and container information for the first audio stream
func (p *Prober) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_streams",
		"-show_format",
		"-select_streams", "a:0",
		path,
	}

	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	output, err := exec.CommandContext(ctx, p.FFprobePath, args...).Output()
	if err != nil {
		var exitError *exec.ExitError
		if errors.As(err, &exitError) {
			return nil, fmt.Errorf("ffprobe failed: %w, stderr: %s", err, string(exitError.Stderr))
		}
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	return ParseFFprobeOutput(output)
}

// ParseFFprobeOutput parses ffprobe JSON. Stream values win over format values
// where both exist.
func ParseFFprobeOutput(jsonData []byte) (*ProbeResult, error) {
	var probe struct {
		Streams []struct {
			CodecType        string `json:"codec_type"`
			CodecName        string `json:"codec_name"`
			SampleRate       string `json:"sample_rate"`
			Channels         int    `json:"channels"`
			Duration         string `json:"duration"`
			BitRate          string `json:"bit_rate"`
			BitsPerRawSample string `json:"bits_per_raw_sample"`
			BitsPerSample    int    `json:"bits_per_sample"`
		} `json:"streams"`
		Format struct {
			FormatName string `json:"format_name"`
			Duration   string `json:"duration"`
			BitRate    string `json:"bit_rate"`
		} `json:"format"`
	}

	if err := json.Unmarshal(jsonData, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	if len(probe.Streams) == 0 {
		return nil, fmt.Errorf("no audio streams found")
	}

	stream := probe.Streams[0]
	if stream.CodecType != "audio" {
		return nil, fmt.Errorf("stream is not audio type: %s", stream.CodecType)
	}

	if stream.Channels <= 0 || stream.Channels > 8 {
		return nil, fmt.Errorf("invalid channel count: %d", stream.Channels)
	}

	result := &ProbeResult{
		Channels: stream.Channels,
		Codec:    stream.CodecName,
		Format:   probe.Format.FormatName,
	}

	result.SampleRate, _ = strconv.Atoi(stream.SampleRate)

	result.Duration = firstFloat(stream.Duration, probe.Format.Duration)
	result.Bitrate = int(firstFloat(stream.BitRate, probe.Format.BitRate))

	if bits, err := strconv.Atoi(stream.BitsPerRawSample); err == nil && bits > 0 {
		result.BitDepth = bits
	} else if stream.BitsPerSample > 0 {
		result.BitDepth = stream.BitsPerSample
	}

	return result, nil
}

func firstFloat(values ...string) float64 {
	for _, v := range values {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			return f
		}
	}
	return 0
}
