//go:build !pcap
// +build !pcap

package dmx

import (
	"context"
	"errors"
	"time"
)

var errPCAPDisabled = errors.New("PCAP support not enabled: rebuild with -tags=pcap to enable capture replay")

// ReplaySource is a stub when PCAP support is disabled.
type ReplaySource struct{}

// OpenReplay always fails without the pcap build tag.
func OpenReplay(pcapFile string, udpPort int, universe uint16, realtime bool) (*ReplaySource, error) {
	return nil, errPCAPDisabled
}

// Receive always fails without the pcap build tag.
func (r *ReplaySource) Receive(ctx context.Context, frame *RawFrame, timeout time.Duration) (Result, error) {
	return NoFrame, errPCAPDisabled
}

// Close is a no-op.
func (r *ReplaySource) Close() error { return nil }
