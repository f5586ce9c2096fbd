// Package headunit reproduces the head unit's serial wire protocol:
// fixed framing with an additive-complement checksum, a closed table of
// message payload layouts, and the transmit cadence the receiver
// expects. The payload table is versioned by code, not data-driven; it
// has to match the target receiver byte for byte.
package headunit

import "errors"

// Marker opens every frame in both directions.
const Marker byte = 0x2E

var (
	// ErrShortFrame means buf ends before the frame does; feed more
	// bytes and parse again.
	ErrShortFrame = errors.New("headunit: incomplete frame")
	// ErrBadChecksum marks a complete frame whose check byte does not
	// match; the frame is consumed and dropped.
	ErrBadChecksum = errors.New("headunit: checksum mismatch")
)

// Checksum computes the frame check byte: kind, length and payload
// bytes summed with 8-bit wraparound at every step, then XOR 0xFF.
func Checksum(code byte, payload []byte) byte {
	sum := code + byte(len(payload))
	for _, b := range payload {
		sum += b
	}
	return sum ^ 0xFF
}

// AppendFrame appends a complete wire frame to dst:
// marker, code, length, payload, checksum.
func AppendFrame(dst []byte, code byte, payload []byte) []byte {
	dst = append(dst, Marker, code, byte(len(payload)))
	dst = append(dst, payload...)
	return append(dst, Checksum(code, payload))
}

// ParseFrame decodes one frame from the start of buf, which must begin
// at a marker byte. It returns the code, the payload (aliasing buf) and
// the byte count consumed. On ErrShortFrame nothing is consumed; on
// ErrBadChecksum the whole frame is.
func ParseFrame(buf []byte) (code byte, payload []byte, n int, err error) {
	if len(buf) < 4 {
		return 0, nil, 0, ErrShortFrame
	}
	plen := int(buf[2])
	total := 4 + plen
	if len(buf) < total {
		return 0, nil, 0, ErrShortFrame
	}
	code, payload = buf[1], buf[3:3+plen]
	if Checksum(code, payload) != buf[3+plen] {
		return 0, nil, total, ErrBadChecksum
	}
	return code, payload, total, nil
}
