// SPDX-License-Identifier: MIT
// Package offline analyzes WAV files with the same DSP pipeline the
// live engine runs, for checking material without a capture device.
package offline

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-audio/wav"

	"spectra/internal/analysis"
	applog "spectra/internal/log"
)

// Options tune the analysis; zero values pick the live defaults.
type Options struct {
	FFTSize int    // Block size; 0 means 1024.
	Window  string // Window function name; empty means hann.
}

// Summary aggregates block-level analysis over a whole file.
type Summary struct {
	Path       string
	SampleRate float64
	Channels   int
	Frames     int // Mono frames decoded.
	Duration   time.Duration

	RMS           float64 // Mean block RMS.
	Peak          float64 // Maximum block peak.
	PeakFrequency float64 // Frequency of the strongest non-DC bin.
}

// WriteText prints the summary in a shape matching the device listing.
func (s *Summary) WriteText(w io.Writer) {
	fmt.Fprintf(w, "%s\n", s.Path)
	fmt.Fprintf(w, "  Sample rate: %.0f Hz\n", s.SampleRate)
	fmt.Fprintf(w, "  Channels: %d\n", s.Channels)
	fmt.Fprintf(w, "  Duration: %s (%d frames)\n", s.Duration.Round(time.Millisecond), s.Frames)
	fmt.Fprintf(w, "  RMS: %.3f\n", s.RMS)
	fmt.Fprintf(w, "  Peak: %.3f\n", s.Peak)
	fmt.Fprintf(w, "  Peak frequency: %.1f Hz\n", s.PeakFrequency)
}

// Analyze decodes the WAV file at path, averages multi-channel audio
// to mono, and runs unsmoothed level and spectral analysis over
// consecutive FFT-sized blocks. A trailing partial block is ignored.
func Analyze(path string, opts Options) (*Summary, error) {
	fftSize := opts.FFTSize
	if fftSize == 0 {
		fftSize = 1024
	}
	windowName := opts.Window
	if windowName == "" {
		windowName = "hann"
	}
	window, err := analysis.ParseWindowFunc(windowName)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%s is not a valid wav file", path)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	channels := buf.Format.NumChannels
	if channels < 1 || len(buf.Data) == 0 {
		return nil, fmt.Errorf("%s contains no audio", path)
	}
	rate := float64(buf.Format.SampleRate)

	bits := buf.SourceBitDepth
	if bits == 0 {
		bits = int(dec.BitDepth)
	}
	if bits == 0 {
		bits = 16
	}
	scale := 1.0 / float64(uint64(1)<<(bits-1))

	// Average interleaved channels down to mono, normalized to [-1, 1].
	frames := len(buf.Data) / channels
	mono := make([]float32, frames)
	for i := 0; i < frames; i++ {
		sum := 0.0
		for ch := 0; ch < channels; ch++ {
			sum += float64(buf.Data[i*channels+ch])
		}
		mono[i] = float32(sum / float64(channels) * scale)
	}

	if frames < fftSize {
		return nil, fmt.Errorf("%s holds %d frames, shorter than one %d sample block", path, frames, fftSize)
	}

	spectral, err := analysis.NewSpectralAnalyzer(analysis.SpectralConfig{
		FFTSize:    fftSize,
		SampleRate: rate,
		Window:     window,
	})
	if err != nil {
		return nil, err
	}
	meter := analysis.NewLevelMeter(0)

	applog.Debugf("analyzing %s (fft=%d window=%s)", path, fftSize, windowName)

	var rmsSum, peakMax, bestMag float64
	bestBin := 0
	blocks := 0
	for off := 0; off+fftSize <= frames; off += fftSize {
		block := mono[off : off+fftSize]

		rms, peak := meter.Update(block)
		rmsSum += rms
		if peak > peakMax {
			peakMax = peak
		}

		mags, err := spectral.Update(block)
		if err != nil {
			return nil, err
		}
		for i := 1; i < len(mags); i++ {
			if mags[i] > bestMag {
				bestMag, bestBin = mags[i], i
			}
		}
		blocks++
	}

	return &Summary{
		Path:          path,
		SampleRate:    rate,
		Channels:      channels,
		Frames:        frames,
		Duration:      time.Duration(float64(frames) / rate * float64(time.Second)),
		RMS:           rmsSum / float64(blocks),
		Peak:          peakMax,
		PeakFrequency: spectral.FrequencyForBin(bestBin),
	}, nil
}
