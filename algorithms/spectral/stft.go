package spectral

import (
	"context"
	"fmt"
	"runtime"
	"sync"
)

// STFT provides Short-Time Fourier Transform functionality
type STFT struct {
	fft *FFT
}

// STFTResult holds a magnitude spectrogram
type STFTResult struct {
	Magnitude      [][]float64 `json:"magnitude"` // time x frequency
	TimeFrames     int         `json:"time_frames"`
	FreqBins       int         `json:"freq_bins"`
	SampleRate     int         `json:"sample_rate"`
	WindowSize     int         `json:"window_size"`
	HopSize        int         `json:"hop_size"`
	FreqResolution float64     `json:"freq_resolution"` // Hz per bin
	TimeResolution float64     `json:"time_resolution"` // seconds per frame
}

// Window is applied to each frame before the transform
type Window interface {
	ApplyInPlace(signal []float64) error
}

// NewSTFT creates a new STFT calculator
func NewSTFT() *STFT {
	return &STFT{
		fft: NewFFT(),
	}
}

// ComputeWithWindow computes the magnitude STFT with a worker pool.
// Cancellation stops feeding frames and returns ctx.Err().
func (s *STFT) ComputeWithWindow(ctx context.Context, signal []float64, windowSize, hopSize, sampleRate int, window Window) (*STFTResult, error) {
	if len(signal) == 0 {
		return nil, fmt.Errorf("empty signal")
	}
	if windowSize <= 0 {
		return nil, fmt.Errorf("window size must be positive")
	}
	if hopSize <= 0 {
		return nil, fmt.Errorf("hop size must be positive")
	}

	numFrames := (len(signal)-windowSize)/hopSize + 1
	if len(signal) < windowSize || numFrames <= 0 {
		return nil, fmt.Errorf("signal too short for given window size and hop size")
	}

	freqBins := windowSize/2 + 1
	magnitude := make([][]float64, numFrames)

	jobs := make(chan int, numFrames)
	var wg sync.WaitGroup

	for range workerCount(numFrames) {
		wg.Add(1)
		go func() {
			defer wg.Done()

			frame := make([]float64, windowSize)
			for frameIdx := range jobs {
				if ctx.Err() != nil {
					continue
				}
				start := frameIdx * hopSize
				copy(frame, signal[start:start+windowSize])

				if window != nil {
					if err := window.ApplyInPlace(frame); err != nil {
						continue
					}
				}

				mags := s.fft.Magnitude(frame)
				magnitude[frameIdx] = mags[:freqBins]
			}
		}()
	}

	var sendErr error
feed:
	for frameIdx := range numFrames {
		select {
		case <-ctx.Done():
			sendErr = ctx.Err()
			break feed
		case jobs <- frameIdx:
		}
	}
	close(jobs)
	wg.Wait()

	if sendErr == nil {
		sendErr = ctx.Err()
	}
	if sendErr != nil {
		return nil, sendErr
	}

	// frames skipped by a window error stay silent
	for i := range magnitude {
		if magnitude[i] == nil {
			magnitude[i] = make([]float64, freqBins)
		}
	}

	return &STFTResult{
		Magnitude:      magnitude,
		TimeFrames:     numFrames,
		FreqBins:       freqBins,
		SampleRate:     sampleRate,
		WindowSize:     windowSize,
		HopSize:        hopSize,
		FreqResolution: float64(sampleRate) / float64(windowSize),
		TimeResolution: float64(hopSize) / float64(sampleRate),
	}, nil
}

// workerCount never returns less than one worker
func workerCount(numFrames int) int {
	numCPU := runtime.NumCPU()

	switch {
	case numFrames < 100:
		return max(1, min(numCPU/2, numFrames))
	case numFrames < 1000:
		return max(1, min(numCPU, 8))
	default:
		return max(1, numCPU)
	}
}
