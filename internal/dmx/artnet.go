package dmx

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"time"
)

// ArtNetPort is the registered Art-Net UDP port.
const ArtNetPort = 6454

// OpDmx is the Art-Net opcode for an ArtDmx packet.
const OpDmx = 0x5000

const artDmxHeaderLen = 18

var artNetID = []byte("Art-Net\x00")

// ErrNotArtDmx is returned for datagrams that are not ArtDmx packets.
var ErrNotArtDmx = errors.New("not an ArtDmx packet")

// UDPSocket defines the socket operations used by ArtNetSource.
// This abstraction enables unit testing without real network connections.
type UDPSocket interface {
	ReadFromUDP(b []byte) (n int, addr *net.UDPAddr, err error)
	SetReadDeadline(t time.Time) error
	Close() error
}

// ArtDmx is a decoded ArtDmx packet.
type ArtDmx struct {
	Sequence byte
	Physical byte
	Universe uint16
	Data     []byte
}

// ParseArtDmx decodes an ArtDmx datagram. Data aliases the input slice.
func ParseArtDmx(b []byte) (ArtDmx, error) {
	if len(b) < artDmxHeaderLen || !bytes.Equal(b[:8], artNetID) {
		return ArtDmx{}, ErrNotArtDmx
	}
	if op := binary.LittleEndian.Uint16(b[8:10]); op != OpDmx {
		return ArtDmx{}, fmt.Errorf("%w: opcode 0x%04x", ErrNotArtDmx, op)
	}
	length := int(binary.BigEndian.Uint16(b[16:18]))
	if length < 2 || length > MaxChannel {
		return ArtDmx{}, fmt.Errorf("invalid ArtDmx length %d", length)
	}
	if len(b) < artDmxHeaderLen+length {
		return ArtDmx{}, fmt.Errorf("truncated ArtDmx: want %d data bytes, have %d", length, len(b)-artDmxHeaderLen)
	}
	return ArtDmx{
		Sequence: b[12],
		Physical: b[13],
		Universe: binary.LittleEndian.Uint16(b[14:16]),
		Data:     b[artDmxHeaderLen : artDmxHeaderLen+length],
	}, nil
}

// EncodeArtDmx builds an ArtDmx datagram. Used by tests and the replay tools.
func EncodeArtDmx(universe uint16, sequence byte, data []byte) []byte {
	out := make([]byte, artDmxHeaderLen, artDmxHeaderLen+len(data))
	copy(out, artNetID)
	binary.LittleEndian.PutUint16(out[8:10], OpDmx)
	out[11] = 14 // protocol version
	out[12] = sequence
	binary.LittleEndian.PutUint16(out[14:16], universe)
	binary.BigEndian.PutUint16(out[16:18], uint16(len(data)))
	return append(out, data...)
}

// ArtNetSource receives ArtDmx packets for a single universe.
type ArtNetSource struct {
	sock     UDPSocket
	universe uint16
	buf      []byte
}

// ListenArtNet binds addr (for example ":6454") and returns a source for universe.
func ListenArtNet(addr string, universe uint16) (*ArtNetSource, error) {
	laddr, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("invalid Art-Net listen address %q: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp4", laddr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen for Art-Net on %s: %w", addr, err)
	}
	return NewArtNetSource(conn, universe), nil
}

// NewArtNetSource wraps an existing socket.
func NewArtNetSource(sock UDPSocket, universe uint16) *ArtNetSource {
	return &ArtNetSource{sock: sock, universe: universe, buf: make([]byte, 1024)}
}

// Receive waits up to timeout for an ArtDmx packet on the configured
// universe. The payload is placed at channel 1 with a zero start code.
func (a *ArtNetSource) Receive(ctx context.Context, frame *RawFrame, timeout time.Duration) (Result, error) {
	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := a.sock.SetReadDeadline(deadline); err != nil {
		return NoFrame, fmt.Errorf("failed to set read deadline: %w", err)
	}

	for {
		if err := ctx.Err(); err != nil {
			return NoFrame, err
		}
		n, _, err := a.sock.ReadFromUDP(a.buf)
		if err != nil {
			if isTimeout(err) {
				return NoFrame, nil
			}
			if errors.Is(err, net.ErrClosed) {
				return NoFrame, ErrSourceClosed
			}
			return NoFrame, fmt.Errorf("art-net read failed: %w", err)
		}
		pkt, err := ParseArtDmx(a.buf[:n])
		if err != nil || pkt.Universe != a.universe {
			continue
		}
		return Result{Size: fillArtDmx(frame, pkt.Data)}, nil
	}
}

// Close closes the socket.
func (a *ArtNetSource) Close() error {
	return a.sock.Close()
}

func fillArtDmx(frame *RawFrame, data []byte) int {
	frame.Data[0] = StartCodeDimmer
	n := copy(frame.Data[1:], data)
	frame.Size = n + 1
	return frame.Size
}
