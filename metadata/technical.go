package metadata

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-audio/wav"
	"github.com/go-flac/go-flac/v2"
	"github.com/hajimehoshi/go-mp3"
)

func readMP3Properties(path string, rec *Record) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("could not open file: %w", err)
	}
	defer file.Close()

	d, err := mp3.NewDecoder(file)
	if err != nil {
		return fmt.Errorf("mp3 decode failed: %w", err)
	}

	rec.SampleRate = d.SampleRate()
	rec.Codec = "mp3"

	// decoded output is 16-bit stereo: 4 bytes per sample frame
	const sampleSize = 4
	samples := d.Length() / sampleSize
	if samples > 0 && rec.SampleRate > 0 {
		seconds := float64(samples) / float64(rec.SampleRate)
		rec.Duration = time.Duration(seconds * float64(time.Second))

		if info, err := file.Stat(); err == nil {
			rec.Bitrate = int(float64(info.Size()*8) / seconds)
		}
	}

	return nil
}

func readWAVProperties(path string, rec *Record) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("could not open file: %w", err)
	}
	defer file.Close()

	d := wav.NewDecoder(file)
	if !d.IsValidFile() {
		return errors.New("invalid WAV file")
	}

	rec.SampleRate = int(d.SampleRate)
	rec.Channels = int(d.NumChans)
	rec.BitDepth = int(d.BitDepth)
	rec.Codec = fmt.Sprintf("pcm_s%dle", d.BitDepth)
	rec.Bitrate = rec.SampleRate * rec.Channels * rec.BitDepth

	if duration, err := d.Duration(); err == nil {
		rec.Duration = duration
	}

	return nil
}

func readFLACProperties(path string, rec *Record) error {
	f, err := flac.ParseFile(path)
	if err != nil {
		return fmt.Errorf("failed to parse FLAC file: %w", err)
	}
	defer f.Close()

	info, err := f.GetStreamInfo()
	if err != nil {
		return fmt.Errorf("failed to get stream info: %w", err)
	}

	rec.SampleRate = info.SampleRate
	rec.BitDepth = info.BitDepth
	rec.Codec = "flac"

	if info.SampleRate > 0 {
		seconds := float64(info.SampleCount) / float64(info.SampleRate)
		rec.Duration = time.Duration(seconds * float64(time.Second))

		if stat, err := os.Stat(path); err == nil && seconds > 0 {
			rec.Bitrate = int(float64(stat.Size()*8) / seconds)
		}
	}

	return nil
}
