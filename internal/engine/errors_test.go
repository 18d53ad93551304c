// SPDX-License-Identifier: MIT
package engine

import (
	"errors"
	"fmt"
	"testing"
)

func TestEngineErrorFormat(t *testing.T) {
	bare := errState("start", "engine is %s, start requires idle", StateRunning)
	if got, want := bare.Error(), "start: engine is running, start requires idle"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	cause := errors.New("device unplugged")
	wrapped := errRuntime("capture", cause, "capture stream failed")
	if got, want := wrapped.Error(), "capture: capture stream failed: device unplugged"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(wrapped, cause) {
		t.Error("wrapped error does not match its cause")
	}
}

func TestIsCode(t *testing.T) {
	base := errConfig("start", "unsupported fft size %d", 1000)

	tests := []struct {
		name string
		err  error
		code ErrorCode
		want bool
	}{
		{"Direct", base, ErrCodeConfig, true},
		{"Wrapped", fmt.Errorf("starting analysis: %w", base), ErrCodeConfig, true},
		{"WrongCode", base, ErrCodeState, false},
		{"Nil", nil, ErrCodeConfig, false},
		{"Foreign", errors.New("plain"), ErrCodeConfig, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsCode(tt.err, tt.code); got != tt.want {
				t.Errorf("IsCode(%v, %s) = %v, want %v", tt.err, tt.code, got, tt.want)
			}
		})
	}
}
