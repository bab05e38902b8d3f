package transcode

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// ErrAssetNotFound is returned when the input path is missing, unreadable or a directory.
// It is the only error that aborts an analysis run.
var ErrAssetNotFound = errors.New("audio asset not found")

// DefaultMaxFileSize is the practical upload cap (~25 MB)
const DefaultMaxFileSize int64 = 25 << 20

var supportedExtensions = map[string]bool{
	"mp3":  true,
	"wav":  true,
	"m4a":  true,
	"aac":  true,
	"ogg":  true,
	"flac": true,
}

// Asset is a user-supplied audio file. The pipeline only ever reads it.
type Asset struct {
	Path      string `json:"path"`
	MIME      string `json:"mime"`
	Extension string `json:"extension"` // lower case, no dot
	Size      int64  `json:"size"`
	Oversized bool   `json:"oversized"`
}

// IsSupportedExtension reports whether ext (with or without a dot) is an accepted input format
func IsSupportedExtension(ext string) bool {
	return supportedExtensions[normalizeExtension(ext)]
}

// SupportedExtensions lists the accepted input formats
func SupportedExtensions() []string {
	return []string{"mp3", "wav", "m4a", "aac", "ogg", "flac"}
}

func normalizeExtension(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// OpenAsset validates that path exists and is a regular file, and sniffs its content type.
// maxSize <= 0 disables the oversize flag.
func OpenAsset(path string, maxSize int64) (*Asset, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrAssetNotFound, path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrAssetNotFound, path)
	}

	asset := &Asset{
		Path:      path,
		Extension: normalizeExtension(filepath.Ext(path)),
		Size:      info.Size(),
		Oversized: maxSize > 0 && info.Size() > maxSize,
	}

	if mtype, err := mimetype.DetectFile(path); err == nil {
		asset.MIME = mtype.String()
	} else {
		asset.MIME = mimeFromExtension(asset.Extension)
	}

	return asset, nil
}

func mimeFromExtension(ext string) string {
	switch ext {
	case "mp3":
		return "audio/mpeg"
	case "wav":
		return "audio/wav"
	case "m4a", "aac":
		return "audio/mp4"
	case "ogg":
		return "audio/ogg"
	case "flac":
		return "audio/flac"
	default:
		return "application/octet-stream"
	}
}

func checkExists(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrAssetNotFound, path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrAssetNotFound, path)
	}
	return nil
}
