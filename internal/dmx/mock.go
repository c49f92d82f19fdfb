package dmx

import (
	"bytes"
	"context"
	"errors"
	"net"
	"sync"
	"time"
)

// TestableSerialPort implements TimeoutSerialPorter with configurable
// behaviour for testing widget sources without hardware.
type TestableSerialPort struct {
	mu sync.Mutex

	// ReadBuffer holds data to be returned by Read calls
	ReadBuffer *bytes.Buffer

	// WriteBuffer captures data written to the port
	WriteBuffer *bytes.Buffer

	// ReadError is returned by the next Read call if set
	ReadError error

	// WriteError is returned by the next Write call if set
	WriteError error

	// Closed indicates whether Close was called
	Closed bool

	// ReadTimeout is the current read timeout
	ReadTimeout time.Duration

	// BlockReads causes Read to block until data is added or Close is called
	BlockReads bool

	readCond *sync.Cond
}

// NewTestableSerialPort creates a new TestableSerialPort for testing.
func NewTestableSerialPort() *TestableSerialPort {
	tsp := &TestableSerialPort{
		ReadBuffer:  bytes.NewBuffer(nil),
		WriteBuffer: bytes.NewBuffer(nil),
		BlockReads:  true,
	}
	tsp.readCond = sync.NewCond(&tsp.mu)
	return tsp
}

// Read reads from the read buffer, blocking for data when BlockReads is set.
func (t *TestableSerialPort) Read(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for {
		if t.Closed {
			return 0, errors.New("serial port closed")
		}
		if t.ReadError != nil {
			err := t.ReadError
			t.ReadError = nil
			return 0, err
		}
		if t.ReadBuffer.Len() > 0 || !t.BlockReads {
			return t.ReadBuffer.Read(p)
		}
		t.readCond.Wait()
	}
}

// Write appends to the write buffer.
func (t *TestableSerialPort) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.Closed {
		return 0, errors.New("serial port closed")
	}
	if t.WriteError != nil {
		err := t.WriteError
		t.WriteError = nil
		return 0, err
	}
	return t.WriteBuffer.Write(p)
}

// Close marks the port as closed and wakes blocked readers.
func (t *TestableSerialPort) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.Closed = true
	t.readCond.Broadcast()
	return nil
}

// SetReadTimeout implements TimeoutSerialPorter.
func (t *TestableSerialPort) SetReadTimeout(timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ReadTimeout = timeout
	return nil
}

// AddReadData adds raw bytes to be returned by subsequent Read calls.
func (t *TestableSerialPort) AddReadData(data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ReadBuffer.Write(data)
	t.readCond.Broadcast()
}

// FailNextRead makes the next Read return err.
func (t *TestableSerialPort) FailNextRead(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ReadError = err
	t.readCond.Broadcast()
}

// AddDMXPacket frames packet as a widget "received DMX" message with the
// given status byte and queues it for reading.
func (t *TestableSerialPort) AddDMXPacket(status byte, packet []byte) {
	payload := append([]byte{status}, packet...)
	t.AddReadData(EncodeWidgetMessage(LabelReceivedDMX, payload))
}

// GetWrittenData returns all data written to the port.
func (t *TestableSerialPort) GetWrittenData() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()

	return append([]byte(nil), t.WriteBuffer.Bytes()...)
}

// MockUDPSocket implements UDPSocket for testing.
type MockUDPSocket struct {
	// Packets holds the datagrams to return from ReadFromUDP.
	Packets [][]byte
	// ReadIndex tracks the current position in Packets.
	ReadIndex int
	// Closed indicates whether Close was called.
	Closed bool
	// ReadDeadline holds the value set by SetReadDeadline.
	ReadDeadline time.Time
	// ReadError is returned on the next ReadFromUDP call if set.
	ReadError error
}

// NewMockUDPSocket creates a new MockUDPSocket with the given datagrams.
func NewMockUDPSocket(packets ...[]byte) *MockUDPSocket {
	return &MockUDPSocket{Packets: packets}
}

// ReadFromUDP returns the next datagram, or a timeout once drained.
func (m *MockUDPSocket) ReadFromUDP(b []byte) (int, *net.UDPAddr, error) {
	if m.Closed {
		return 0, nil, net.ErrClosed
	}
	if m.ReadError != nil {
		err := m.ReadError
		m.ReadError = nil
		return 0, nil, err
	}
	if m.ReadIndex >= len(m.Packets) {
		return 0, nil, &net.OpError{Op: "read", Net: "udp", Err: timeoutError{}}
	}
	pkt := m.Packets[m.ReadIndex]
	m.ReadIndex++
	return copy(b, pkt), &net.UDPAddr{IP: net.IPv4(10, 0, 0, 1), Port: ArtNetPort}, nil
}

// SetReadDeadline records the deadline.
func (m *MockUDPSocket) SetReadDeadline(t time.Time) error {
	m.ReadDeadline = t
	return nil
}

// Close marks the socket as closed.
func (m *MockUDPSocket) Close() error {
	m.Closed = true
	return nil
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

// ScriptStep is one scripted Receive outcome. A nil Packet with a nil Err is
// a timeout.
type ScriptStep struct {
	Packet []byte
	Err    error
}

// ScriptedSource replays a fixed sequence of receive outcomes. Once the
// script is exhausted it reports ErrSourceClosed.
type ScriptedSource struct {
	mu    sync.Mutex
	steps []ScriptStep
	next  int

	// Timeouts records the timeout passed to every Receive call.
	Timeouts []time.Duration
}

// NewScriptedSource returns a source that plays steps in order.
func NewScriptedSource(steps ...ScriptStep) *ScriptedSource {
	return &ScriptedSource{steps: steps}
}

// Receive returns the next scripted outcome.
func (s *ScriptedSource) Receive(ctx context.Context, frame *RawFrame, timeout time.Duration) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return NoFrame, err
	}
	s.Timeouts = append(s.Timeouts, timeout)
	if s.next >= len(s.steps) {
		return NoFrame, ErrSourceClosed
	}
	step := s.steps[s.next]
	s.next++
	if step.Err != nil {
		return NoFrame, step.Err
	}
	if step.Packet == nil {
		return NoFrame, nil
	}
	return Result{Size: frame.fill(step.Packet)}, nil
}

// Close is a no-op.
func (s *ScriptedSource) Close() error { return nil }
