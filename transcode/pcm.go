package transcode

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
)

var errUnsupportedDecode = errors.New("format cannot be decoded in-process")

// decodeFile decodes a WAV or MP3 file into mono float64 PCM in [-1, 1]
func decodeFile(path, ext string) ([]float64, int, error) {
	switch normalizeExtension(ext) {
	case "wav":
		return decodeWAVFile(path)
	case "mp3":
		return decodeMP3File(path)
	default:
		return nil, 0, fmt.Errorf("%w: %s", errUnsupportedDecode, ext)
	}
}

func decodeWAVFile(path string) ([]float64, int, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("could not open file: %w", err)
	}
	defer file.Close()

	decoder := wav.NewDecoder(file)
	if !decoder.IsValidFile() {
		return nil, 0, errors.New("invalid WAV file")
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("could not read PCM buffer: %w", err)
	}

	return intBufferToMono(buf, int(decoder.BitDepth)), int(decoder.SampleRate), nil
}

func intBufferToMono(buf *audio.IntBuffer, bitDepth int) []float64 {
	if buf == nil || buf.Format == nil || len(buf.Data) == 0 {
		return nil
	}

	if bitDepth <= 0 {
		bitDepth = buf.SourceBitDepth
	}
	if bitDepth <= 0 {
		bitDepth = 16
	}

	scale := float64(int64(1) << (bitDepth - 1))
	offset := 0.0
	if bitDepth == 8 {
		// 8-bit WAV is unsigned
		offset = 128
	}

	interleaved := make([]float64, len(buf.Data))
	for i, v := range buf.Data {
		interleaved[i] = (float64(v) - offset) / scale
	}

	return downmix(interleaved, buf.Format.NumChannels)
}

// decodeMP3File decodes with go-mp3, which always yields 16-bit little-endian stereo
func decodeMP3File(path string) ([]float64, int, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("could not open file: %w", err)
	}
	defer file.Close()

	decoder, err := mp3.NewDecoder(file)
	if err != nil {
		return nil, 0, fmt.Errorf("mp3 decode failed: %w", err)
	}

	var interleaved []float64
	if n := decoder.Length(); n > 0 {
		interleaved = make([]float64, 0, n/2)
	}

	buf := make([]byte, 8192)
	for {
		n, err := decoder.Read(buf)
		for i := 0; i+1 < n; i += 2 {
			sample := int16(buf[i]) | int16(buf[i+1])<<8
			interleaved = append(interleaved, float64(sample)/32768.0)
		}
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, 0, fmt.Errorf("mp3 read failed: %w", err)
		}
	}

	if len(interleaved) == 0 {
		return nil, 0, errors.New("mp3 contains no samples")
	}

	return downmix(interleaved, 2), decoder.SampleRate(), nil
}

// downmix averages interleaved channels into a single channel
func downmix(interleaved []float64, channels int) []float64 {
	if channels <= 1 {
		return interleaved
	}

	frames := len(interleaved) / channels
	mono := make([]float64, frames)
	for i := range frames {
		var sum float64
		for ch := range channels {
			sum += interleaved[i*channels+ch]
		}
		mono[i] = sum / float64(channels)
	}
	return mono
}
