// Package dmx receives DMX512 frames from a bus adapter. Every source fills a
// caller-owned RawFrame and reports how many bytes arrived, or NoFrame when
// the receive timeout elapsed without traffic.
package dmx

import (
	"context"
	"errors"
	"time"
)

// PacketSize is the largest DMX512 packet: the start code plus 512 slots.
const PacketSize = 513

// MaxChannel is the highest addressable channel number.
const MaxChannel = PacketSize - 1

// StartCodeDimmer is the null start code carried by ordinary level data.
const StartCodeDimmer = 0x00

// ErrSourceClosed is returned by Receive once the underlying transport is gone.
var ErrSourceClosed = errors.New("dmx source closed")

// RawFrame holds one received packet. Data[0] is the start code and Data[n]
// is channel n. Only the first Size bytes belong to the latest frame; the
// remainder is whatever an earlier frame left behind.
type RawFrame struct {
	Data [PacketSize]byte
	Size int
}

// Channel returns the value of channel ch and whether it was carried by the
// current frame.
func (f *RawFrame) Channel(ch int) (byte, bool) {
	if ch < 1 || ch >= f.Size || ch > MaxChannel {
		return 0, false
	}
	return f.Data[ch], true
}

// fill copies a packet into the frame. Oversized packets are truncated.
func (f *RawFrame) fill(packet []byte) int {
	n := copy(f.Data[:], packet)
	f.Size = n
	return n
}

// Result reports the outcome of a receive call.
type Result struct {
	Size int
}

// NoFrame is the result of a receive that timed out.
var NoFrame = Result{}

// Received reports whether a frame arrived.
func (r Result) Received() bool {
	return r.Size > 0
}

// Source is a bus receiver. Receive blocks for at most timeout. A timeout is
// reported as NoFrame with a nil error; errors are reserved for transport
// failures.
type Source interface {
	Receive(ctx context.Context, frame *RawFrame, timeout time.Duration) (Result, error)
	Close() error
}
