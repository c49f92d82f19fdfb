// Package output drives the indicator line toggled by the fixture's output
// channel, usually a flash LED.
package output

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"go.bug.st/serial"

	"github.com/banshee-data/dmxcam/internal/monitoring"
)

// Indicator is a single digital output. Hold latches the current level so it
// survives the controller going idle.
type Indicator interface {
	Set(on bool) error
	Hold() error
}

// DefaultSysfsRoot is the kernel GPIO sysfs directory.
const DefaultSysfsRoot = "/sys/class/gpio"

// GPIOIndicator drives a GPIO line through the sysfs interface.
type GPIOIndicator struct {
	root string
	pin  int

	mu    sync.Mutex
	level bool
	held  bool
}

// OpenGPIO exports pin under root (DefaultSysfsRoot when empty) and
// configures it as an output.
func OpenGPIO(root string, pin int) (*GPIOIndicator, error) {
	if root == "" {
		root = DefaultSysfsRoot
	}
	g := &GPIOIndicator{root: root, pin: pin}
	if _, err := os.Stat(g.pinDir()); errors.Is(err, os.ErrNotExist) {
		if err := os.WriteFile(filepath.Join(root, "export"), []byte(strconv.Itoa(pin)), 0o200); err != nil {
			return nil, fmt.Errorf("export gpio %d: %w", pin, err)
		}
	}
	if err := os.WriteFile(filepath.Join(g.pinDir(), "direction"), []byte("out"), 0o644); err != nil {
		return nil, fmt.Errorf("set gpio %d direction: %w", pin, err)
	}
	return g, nil
}

func (g *GPIOIndicator) pinDir() string {
	return filepath.Join(g.root, "gpio"+strconv.Itoa(g.pin))
}

// Set drives the line high or low.
func (g *GPIOIndicator) Set(on bool) error {
	v := "0"
	if on {
		v = "1"
	}
	if err := os.WriteFile(filepath.Join(g.pinDir(), "value"), []byte(v), 0o644); err != nil {
		return fmt.Errorf("write gpio %d: %w", g.pin, err)
	}
	g.mu.Lock()
	g.level = on
	g.held = false
	g.mu.Unlock()
	return nil
}

// Hold verifies the line reads back the level last set. Sysfs lines keep
// their level until changed, so no extra latch is needed.
func (g *GPIOIndicator) Hold() error {
	data, err := os.ReadFile(filepath.Join(g.pinDir(), "value"))
	if err != nil {
		return fmt.Errorf("read gpio %d: %w", g.pin, err)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	got := strings.TrimSpace(string(data)) == "1"
	if got != g.level {
		return fmt.Errorf("gpio %d reads %v after set %v", g.pin, got, g.level)
	}
	g.held = true
	return nil
}

// Held reports whether the current level has been latched.
func (g *GPIOIndicator) Held() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.held
}

// ModemLines is the subset of a serial port used to drive RTS and DTR.
type ModemLines interface {
	SetRTS(rts bool) error
	SetDTR(dtr bool) error
}

// Line selects which modem-control line a SerialLineIndicator drives.
type Line string

const (
	LineRTS Line = "rts"
	LineDTR Line = "dtr"
)

// SerialLineIndicator drives a USB-serial adapter's RTS or DTR pin, a cheap
// way to switch a relay from a host without GPIO.
type SerialLineIndicator struct {
	port ModemLines
	line Line

	mu    sync.Mutex
	level bool
}

// OpenSerialLine opens path and returns an indicator on line.
func OpenSerialLine(path string, line Line) (*SerialLineIndicator, error) {
	port, err := serial.Open(path, &serial.Mode{BaudRate: 9600})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", path, err)
	}
	return NewSerialLineIndicator(port, line)
}

// NewSerialLineIndicator wraps an open port.
func NewSerialLineIndicator(port ModemLines, line Line) (*SerialLineIndicator, error) {
	switch line {
	case LineRTS, LineDTR:
	default:
		return nil, fmt.Errorf("unknown modem line %q", line)
	}
	return &SerialLineIndicator{port: port, line: line}, nil
}

// Set drives the selected line.
func (s *SerialLineIndicator) Set(on bool) error {
	var err error
	if s.line == LineRTS {
		err = s.port.SetRTS(on)
	} else {
		err = s.port.SetDTR(on)
	}
	if err != nil {
		return fmt.Errorf("set %s: %w", s.line, err)
	}
	s.mu.Lock()
	s.level = on
	s.mu.Unlock()
	return nil
}

// Close releases the port when it can be closed.
func (s *SerialLineIndicator) Close() error {
	if c, ok := s.port.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Hold is a no-op; the port keeps modem lines asserted while open.
func (s *SerialLineIndicator) Hold() error { return nil }

// Noop logs indicator changes without driving hardware.
type Noop struct {
	mu    sync.Mutex
	level bool
	sets  int
}

func (n *Noop) Set(on bool) error {
	n.mu.Lock()
	n.level = on
	n.sets++
	n.mu.Unlock()
	monitoring.Logf("indicator output -> %v", on)
	return nil
}

func (n *Noop) Hold() error { return nil }

// Level returns the last level set and how many times Set was called.
func (n *Noop) Level() (bool, int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.level, n.sets
}
