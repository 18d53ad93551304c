// SPDX-License-Identifier: MIT
package transport

import (
	"spectra/internal/engine"
	applog "spectra/internal/log"
)

// LoggingTransport writes a one-line summary of each payload to the
// debug log. Useful while bringing up a pipeline without a consumer.
type LoggingTransport struct{}

func NewLoggingTransport() *LoggingTransport {
	return &LoggingTransport{}
}

func (t *LoggingTransport) Send(v any) error {
	switch r := v.(type) {
	case engine.Result:
		applog.Debugf("result seq=%d rms=%.3f peak=%.3f bins=%d", r.Seq, r.RMS, r.Peak, len(r.Spectrum))
	default:
		applog.Debugf("transport payload (%T): %+v", v, v)
	}
	return nil
}

func (t *LoggingTransport) Close() error {
	return nil
}

var _ Transport = (*LoggingTransport)(nil)
