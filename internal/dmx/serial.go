package dmx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/banshee-data/dmxcam/internal/monitoring"
)

// readPollInterval bounds how long the reader blocks in Read before checking
// for shutdown on ports that support read timeouts.
const readPollInterval = 200 * time.Millisecond

// SerialSource receives frames from an Enttec DMX USB Pro compatible widget.
// A reader goroutine parses the byte stream and hands packets to Receive
// through a one-slot channel, so frames are delivered in arrival order.
type SerialSource struct {
	port SerialPorter

	packets chan []byte
	errs    chan error

	startOnce sync.Once
	closeOnce sync.Once
	done      chan struct{}

	mu      sync.Mutex
	dropped int
}

// OpenSerialSource opens the widget at path and switches it to send-always
// receive mode.
func OpenSerialSource(path string, opts PortOptions) (*SerialSource, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, fmt.Errorf("invalid serial options: %w", err)
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", path, err)
	}
	src := NewSerialSource(port)
	if err := src.Initialize(); err != nil {
		_ = port.Close()
		return nil, err
	}
	return src, nil
}

// NewSerialSource wraps an already open port.
func NewSerialSource(port SerialPorter) *SerialSource {
	return &SerialSource{
		port:    port,
		packets: make(chan []byte, 1),
		errs:    make(chan error, 1),
		done:    make(chan struct{}),
	}
}

// Initialize configures the widget receive mode.
func (s *SerialSource) Initialize() error {
	if _, err := s.port.Write(ReceiveAlwaysRequest()); err != nil {
		return fmt.Errorf("failed to set widget receive mode: %w", err)
	}
	if tp, ok := s.port.(TimeoutSerialPorter); ok {
		if err := tp.SetReadTimeout(readPollInterval); err != nil {
			return fmt.Errorf("failed to set read timeout: %w", err)
		}
	}
	return nil
}

// Receive waits up to timeout for the next DMX packet.
func (s *SerialSource) Receive(ctx context.Context, frame *RawFrame, timeout time.Duration) (Result, error) {
	s.startOnce.Do(func() { go s.readLoop() })

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case packet := <-s.packets:
		return Result{Size: frame.fill(packet)}, nil
	case err := <-s.errs:
		return NoFrame, err
	case <-timer.C:
		return NoFrame, nil
	case <-ctx.Done():
		return NoFrame, ctx.Err()
	case <-s.done:
		return NoFrame, ErrSourceClosed
	}
}

// Dropped returns the number of widget packets discarded because of receive
// errors or a non-zero start code.
func (s *SerialSource) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Close stops the reader and closes the port.
func (s *SerialSource) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.port.Close()
	})
	return err
}

func (s *SerialSource) readLoop() {
	var parser WidgetParser
	buf := make([]byte, 256)

	for {
		select {
		case <-s.done:
			return
		default:
		}

		// go.bug.st/serial returns (0, nil) when the read timeout expires.
		n, err := s.port.Read(buf)
		for _, b := range buf[:n] {
			msg, ok := parser.Feed(b)
			if !ok || msg.Label != LabelReceivedDMX {
				continue
			}
			packet, perr := msg.DMXPacket()
			if perr != nil {
				s.mu.Lock()
				s.dropped++
				s.mu.Unlock()
				if errors.Is(perr, ErrReceiveStatus) {
					monitoring.Logf("dmx widget: dropping packet: %v", perr)
				} else {
					monitoring.Debugf("dmx widget: ignoring packet: %v", perr)
				}
				continue
			}
			select {
			case s.packets <- packet:
			case <-s.done:
				return
			}
		}

		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			if n == 0 && isTimeout(err) {
				continue
			}
			if errors.Is(err, io.EOF) {
				err = ErrSourceClosed
			}
			select {
			case s.errs <- fmt.Errorf("serial read failed: %w", err):
			case <-s.done:
			}
			return
		}
	}
}

type timeoutErr interface{ Timeout() bool }

func isTimeout(err error) bool {
	var te timeoutErr
	return errors.As(err, &te) && te.Timeout()
}
