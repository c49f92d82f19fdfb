//go:build pcap
// +build pcap

package dmx

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
)

// ReplaySource replays ArtDmx traffic from a pcap capture.
// This type is only functional when building with the 'pcap' build tag.
type ReplaySource struct {
	handle   *pcap.Handle
	packets  chan gopacket.Packet
	universe uint16
	realtime bool

	pending   []byte
	pendingAt time.Time
	firstAt   time.Time
	startedAt time.Time
	count     int
}

// OpenReplay opens pcapFile and filters it to Art-Net traffic on udpPort.
// With realtime set, packets are released with their captured spacing.
func OpenReplay(pcapFile string, udpPort int, universe uint16, realtime bool) (*ReplaySource, error) {
	handle, err := pcap.OpenOffline(pcapFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open PCAP file %s: %w", pcapFile, err)
	}

	filterStr := fmt.Sprintf("udp port %d", udpPort)
	if err := handle.SetBPFFilter(filterStr); err != nil {
		handle.Close()
		return nil, fmt.Errorf("failed to set BPF filter '%s': %w", filterStr, err)
	}
	log.Printf("PCAP BPF filter set: %s", filterStr)

	return &ReplaySource{
		handle:   handle,
		packets:  gopacket.NewPacketSource(handle, handle.LinkType()).Packets(),
		universe: universe,
		realtime: realtime,
	}, nil
}

// Receive returns the next ArtDmx packet for the configured universe.
func (r *ReplaySource) Receive(ctx context.Context, frame *RawFrame, timeout time.Duration) (Result, error) {
	if r.pending == nil {
		if err := r.advance(ctx); err != nil {
			return NoFrame, err
		}
	}

	if r.realtime {
		due := r.startedAt.Add(r.pendingAt.Sub(r.firstAt))
		wait := time.Until(due)
		if wait > timeout {
			select {
			case <-time.After(timeout):
				return NoFrame, nil
			case <-ctx.Done():
				return NoFrame, ctx.Err()
			}
		}
		if wait > 0 {
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return NoFrame, ctx.Err()
			}
		}
	}

	n := fillArtDmx(frame, r.pending)
	r.pending = nil
	return Result{Size: n}, nil
}

func (r *ReplaySource) advance(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case packet := <-r.packets:
			if packet == nil {
				log.Printf("PCAP replay complete: %d frames", r.count)
				return ErrSourceClosed
			}
			udpLayer := packet.Layer(layers.LayerTypeUDP)
			if udpLayer == nil {
				continue
			}
			udp, ok := udpLayer.(*layers.UDP)
			if !ok {
				continue
			}
			pkt, err := ParseArtDmx(udp.Payload)
			if err != nil || pkt.Universe != r.universe {
				continue
			}

			ts := packet.Metadata().Timestamp
			if r.count == 0 {
				r.firstAt = ts
				r.startedAt = time.Now()
			}
			r.count++
			r.pending = append([]byte(nil), pkt.Data...)
			r.pendingAt = ts
			return nil
		}
	}
}

// Close releases the pcap handle.
func (r *ReplaySource) Close() error {
	r.handle.Close()
	return nil
}
