// SPDX-License-Identifier: MIT
/*
Package udp streams analysis results as compact binary packets, sized
for visualizers that want spectra without JSON overhead.
*/
package udp

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

/*
Packet layout (BigEndian):

|<-- 4 Bytes -->|<---- 8 Bytes ---->|<-- 4 Bytes -->|<-- 4 Bytes -->|<- 2 Bytes ->|<-- N * 4 Bytes -->|
+---------------+-------------------+---------------+---------------+-------------+-------------------+
|   Sequence    |     Timestamp     |      RMS      |     Peak      |  Magnitude  |    Magnitudes     |
|   (uint32)    |  (int64, ns since |   (float32)   |   (float32)   |    Count    |   (N * float32)   |
|               |       epoch)      |               |               |  (uint16)   |                   |
+---------------+-------------------+---------------+---------------+-------------+-------------------+
*/

// headerSize is the fixed packet prefix before the magnitude payload.
const headerSize = 4 + 8 + 4 + 4 + 2

// MaxMagnitudes is the largest spectrum one packet can carry, bounded
// by the uint16 count field. Native resolution at fftSize 4096 is 2049
// bins, well inside the limit.
const MaxMagnitudes = math.MaxUint16

// Packet is one analysis emission in wire form. Seq wraps at 32 bits;
// consumers only use it to order and dedupe a stream.
type Packet struct {
	Seq        uint32
	Timestamp  int64 // Nanoseconds since the Unix epoch.
	RMS        float32
	Peak       float32
	Magnitudes []float32
}

// EncodeTo serializes the packet into buf, which the caller resets and
// reuses between packets.
func (p *Packet) EncodeTo(buf *bytes.Buffer) error {
	if len(p.Magnitudes) > MaxMagnitudes {
		return fmt.Errorf("too many magnitudes for one packet: %d", len(p.Magnitudes))
	}

	if err := binary.Write(buf, binary.BigEndian, p.Seq); err != nil {
		return fmt.Errorf("failed to encode packet header: %w", err)
	}
	if err := binary.Write(buf, binary.BigEndian, p.Timestamp); err != nil {
		return fmt.Errorf("failed to encode packet header: %w", err)
	}
	if err := binary.Write(buf, binary.BigEndian, p.RMS); err != nil {
		return fmt.Errorf("failed to encode packet header: %w", err)
	}
	if err := binary.Write(buf, binary.BigEndian, p.Peak); err != nil {
		return fmt.Errorf("failed to encode packet header: %w", err)
	}
	if err := binary.Write(buf, binary.BigEndian, uint16(len(p.Magnitudes))); err != nil {
		return fmt.Errorf("failed to encode packet header: %w", err)
	}
	if err := binary.Write(buf, binary.BigEndian, p.Magnitudes); err != nil {
		return fmt.Errorf("failed to encode magnitudes: %w", err)
	}
	return nil
}

// Decode parses one packet from data. The magnitude slice is freshly
// allocated and does not alias data.
func Decode(data []byte) (Packet, error) {
	if len(data) < headerSize {
		return Packet{}, fmt.Errorf("packet too short: %d bytes, header needs %d", len(data), headerSize)
	}

	p := Packet{
		Seq:       binary.BigEndian.Uint32(data[0:4]),
		Timestamp: int64(binary.BigEndian.Uint64(data[4:12])),
		RMS:       math.Float32frombits(binary.BigEndian.Uint32(data[12:16])),
		Peak:      math.Float32frombits(binary.BigEndian.Uint32(data[16:20])),
	}

	count := int(binary.BigEndian.Uint16(data[20:22]))
	payload := data[headerSize:]
	if len(payload) != count*4 {
		return Packet{}, fmt.Errorf("magnitude payload is %d bytes, header declares %d values", len(payload), count)
	}

	p.Magnitudes = make([]float32, count)
	for i := range p.Magnitudes {
		p.Magnitudes[i] = math.Float32frombits(binary.BigEndian.Uint32(payload[i*4 : i*4+4]))
	}
	return p, nil
}
