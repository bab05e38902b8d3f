package metadata

import (
	"context"
	"fmt"
	"time"

	"github.com/RyanBlaney/sonido-critique/logging"
	"github.com/RyanBlaney/sonido-critique/transcode"
)

// Prober reads technical properties from a file. *transcode.Prober satisfies it.
type Prober interface {
	Probe(ctx context.Context, path string) (*transcode.ProbeResult, error)
}

// Extractor reads tags and technical properties. It never fails.
type Extractor struct {
	prober Prober
}

// NewExtractor creates an extractor; prober may be nil when ffprobe is unavailable
func NewExtractor(prober Prober) *Extractor {
	return &Extractor{prober: prober}
}

// Extract returns the best record it can assemble. Any failure that leaves nothing
// readable yields MinimalRecord.
func (e *Extractor) Extract(ctx context.Context, asset *transcode.Asset) (rec Record) {
	logger := logging.WithFields(logging.Fields{
		"component": "metadata_extractor",
		"function":  "Extract",
		"path":      asset.Path,
	})

	defer func() {
		if r := recover(); r != nil {
			logger.Warn("Metadata extraction panicked, using minimal record", logging.Fields{
				"panic": fmt.Sprint(r),
			})
			rec = MinimalRecord(asset.Path)
		}
	}()

	tagErr := readTags(asset.Path, &rec)
	if tagErr != nil {
		logger.Debug("Container tags unavailable", logging.Fields{"error": tagErr.Error()})
	}

	if asset.Extension == "mp3" && (tagErr != nil || rec.DeclaredBPM == nil || rec.DeclaredKey == "") {
		if err := readID3Frames(asset.Path, &rec); err != nil {
			logger.Debug("ID3v2 frames unavailable", logging.Fields{"error": err.Error()})
		} else {
			tagErr = nil
		}
	}

	var techErr error
	switch asset.Extension {
	case "mp3":
		techErr = readMP3Properties(asset.Path, &rec)
	case "wav":
		techErr = readWAVProperties(asset.Path, &rec)
	case "flac":
		techErr = readFLACProperties(asset.Path, &rec)
	default:
		techErr = fmt.Errorf("no in-process reader for %q", asset.Extension)
	}
	if techErr != nil {
		logger.Debug("In-process technical read failed", logging.Fields{"error": techErr.Error()})
	}

	probed := false
	if e.prober != nil && (rec.Codec == "" || rec.SampleRate == 0 || rec.Bitrate == 0 || rec.Channels == 0) {
		probed = e.fillFromProbe(ctx, asset.Path, &rec, logger)
	}

	if tagErr != nil && techErr != nil && !probed {
		logger.Info("Nothing readable in file, using minimal record")
		return MinimalRecord(asset.Path)
	}

	if rec.Title == "" {
		rec.Title = TitleFromFilename(asset.Path)
	}

	rec.Lossless = isLosslessCodec(rec.Codec) || isLosslessExtension(asset.Extension)

	return rec
}

func (e *Extractor) fillFromProbe(ctx context.Context, path string, rec *Record, logger logging.Logger) bool {
	result, err := e.prober.Probe(ctx, path)
	if err != nil {
		logger.Debug("ffprobe unavailable", logging.Fields{"error": err.Error()})
		return false
	}

	if rec.Codec == "" {
		rec.Codec = result.Codec
	}
	if rec.SampleRate == 0 {
		rec.SampleRate = result.SampleRate
	}
	if rec.Channels == 0 {
		rec.Channels = result.Channels
	}
	if rec.Bitrate == 0 {
		rec.Bitrate = result.Bitrate
	}
	if rec.BitDepth == 0 {
		rec.BitDepth = result.BitDepth
	}
	if rec.Duration == 0 && result.Duration > 0 {
		rec.Duration = time.Duration(result.Duration * float64(time.Second))
	}
	return true
}
