// SPDX-License-Identifier: MIT
/*
Package capture provides microphone input behind a small backend
interface: a PortAudio implementation for real hardware, host device
enumeration, and a fixed-capacity frame ring that decouples the
real-time capture callback from the analysis consumer.
*/
package capture

// StreamConfig describes one capture session.
type StreamConfig struct {
	DeviceID        int // Host device ID; MinDeviceID selects the default input.
	SampleRate      float64
	FramesPerBuffer int
	Channels        int
	LowLatency      bool
}

// Backend opens capture streams. Implementations deliver mono frames in
// the normalized [-1, 1] float32 range to the emit callback; the slice
// is borrowed for the duration of the call only, so the callback must
// copy anything it keeps.
//
// The emit callback runs on the backend's capture thread and must not
// block.
type Backend interface {
	Name() string
	Open(cfg StreamConfig, emit func(frame []float32)) (Stream, error)
}

// Stream is one open capture session. Close releases the underlying
// device resources and must be called exactly once per opened stream.
type Stream interface {
	Start() error
	Stop() error
	Close() error

	// Errors delivers asynchronous fatal stream failures, such as the
	// device disappearing mid-session. The channel is never closed.
	Errors() <-chan error
}
