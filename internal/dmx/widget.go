package dmx

import (
	"errors"
	"fmt"
)

// Enttec DMX USB Pro message framing.
const (
	widgetStart = 0x7E
	widgetEnd   = 0xE7

	// LabelReceivedDMX carries a receive status byte followed by a DMX packet.
	LabelReceivedDMX = 5
	// LabelReceiveMode selects whether the widget sends every packet or only changes.
	LabelReceiveMode = 8

	// widgetMaxPayload is the largest payload the widget emits.
	widgetMaxPayload = 600
)

// Receive status bits reported in the first byte of a label 5 payload.
const (
	StatusQueueOverflow = 1 << 0
	StatusOverrun       = 1 << 1
)

var (
	// ErrReceiveStatus is returned for a packet the widget flagged as damaged.
	ErrReceiveStatus = errors.New("widget reported receive error")
	// ErrNotDimmerPacket is returned for packets with a non-zero start code.
	ErrNotDimmerPacket = errors.New("packet start code is not 0x00")
)

// WidgetMessage is one framed message from the widget.
type WidgetMessage struct {
	Label   byte
	Payload []byte
}

// EncodeWidgetMessage frames payload for transmission to the widget.
func EncodeWidgetMessage(label byte, payload []byte) []byte {
	out := make([]byte, 0, len(payload)+5)
	out = append(out, widgetStart, label, byte(len(payload)), byte(len(payload)>>8))
	out = append(out, payload...)
	return append(out, widgetEnd)
}

// ReceiveAlwaysRequest asks the widget to forward every packet it sees.
func ReceiveAlwaysRequest() []byte {
	return EncodeWidgetMessage(LabelReceiveMode, []byte{0x00})
}

// DMXPacket extracts the DMX packet from a label 5 message. The returned
// slice starts with the start code.
func (m WidgetMessage) DMXPacket() ([]byte, error) {
	if m.Label != LabelReceivedDMX {
		return nil, fmt.Errorf("unexpected widget label %d", m.Label)
	}
	if len(m.Payload) < 2 {
		return nil, fmt.Errorf("short DMX message: %d bytes", len(m.Payload))
	}
	if status := m.Payload[0]; status&(StatusQueueOverflow|StatusOverrun) != 0 {
		return nil, fmt.Errorf("%w: status 0x%02x", ErrReceiveStatus, status)
	}
	packet := m.Payload[1:]
	if packet[0] != StartCodeDimmer {
		return nil, fmt.Errorf("%w: got 0x%02x", ErrNotDimmerPacket, packet[0])
	}
	return packet, nil
}

type parseState int

const (
	stateStart parseState = iota
	stateLabel
	stateLenLo
	stateLenHi
	statePayload
	stateEnd
)

// WidgetParser reassembles widget messages from a byte stream. Bytes outside
// a frame are skipped until the next start delimiter.
type WidgetParser struct {
	state   parseState
	label   byte
	length  int
	payload []byte

	// Resyncs counts frames abandoned because of a bad length or end byte.
	Resyncs int
}

// Feed consumes one byte. It returns a message once a complete frame has
// been received.
func (p *WidgetParser) Feed(b byte) (WidgetMessage, bool) {
	switch p.state {
	case stateStart:
		if b == widgetStart {
			p.state = stateLabel
		}
	case stateLabel:
		p.label = b
		p.state = stateLenLo
	case stateLenLo:
		p.length = int(b)
		p.state = stateLenHi
	case stateLenHi:
		p.length |= int(b) << 8
		if p.length > widgetMaxPayload {
			p.Resyncs++
			p.reset()
			return WidgetMessage{}, false
		}
		p.payload = p.payload[:0]
		if p.length == 0 {
			p.state = stateEnd
		} else {
			p.state = statePayload
		}
	case statePayload:
		p.payload = append(p.payload, b)
		if len(p.payload) == p.length {
			p.state = stateEnd
		}
	case stateEnd:
		if b != widgetEnd {
			p.Resyncs++
			p.reset()
			if b == widgetStart {
				p.state = stateLabel
			}
			return WidgetMessage{}, false
		}
		msg := WidgetMessage{Label: p.label, Payload: append([]byte(nil), p.payload...)}
		p.reset()
		return msg, true
	}
	return WidgetMessage{}, false
}

func (p *WidgetParser) reset() {
	p.state = stateStart
	p.label = 0
	p.length = 0
	p.payload = p.payload[:0]
}
