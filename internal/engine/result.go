// SPDX-License-Identifier: MIT
package engine

import "time"

// Result is one analysis emission. Spectrum is a fresh slice per
// emission; subscribers may keep it but must treat it as read-only
// since the latest-result snapshot shares it.
type Result struct {
	Seq        uint64    `json:"seq"`
	Timestamp  time.Time `json:"timestamp"`
	RMS        float64   `json:"rms"`
	Peak       float64   `json:"peak"`
	Spectrum   []float64 `json:"spectrum"`
	SampleRate float64   `json:"sampleRate"`
	FFTSize    int       `json:"fftSize"`
}
