package imaging

import (
	"errors"
	"fmt"
	"sync"
)

// ErrMockAcquire is the error MockSensor returns for scripted failures.
var ErrMockAcquire = errors.New("mock sensor: frame buffer unavailable")

// MockSensor is a scripted Sensor for tests.
type MockSensor struct {
	mu sync.Mutex

	// Frame is returned by successful acquisitions.
	Frame []byte
	// FailAcquireAt makes the nth AcquireFrame call (1-based) fail. Zero disables.
	FailAcquireAt int
	// ConfigureErr is returned by Configure when set.
	ConfigureErr error

	Configured []Settings
	Acquired   int
	Released   int
	held       bool
}

// NewMockSensor returns a sensor producing a small JPEG-like payload.
func NewMockSensor() *MockSensor {
	return &MockSensor{Frame: []byte{0xFF, 0xD8, 0xFF, 0xD9}}
}

func (m *MockSensor) Configure(s Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Configured = append(m.Configured, s)
	return m.ConfigureErr
}

func (m *MockSensor) AcquireFrame() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Acquired++
	if m.FailAcquireAt > 0 && m.Acquired == m.FailAcquireAt {
		return nil, ErrMockAcquire
	}
	if m.held {
		return nil, fmt.Errorf("mock sensor: frame %d acquired before release", m.Acquired)
	}
	m.held = true
	return append([]byte(nil), m.Frame...), nil
}

func (m *MockSensor) ReleaseFrame() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Released++
	m.held = false
}

// Held reports whether a frame is acquired and not yet released.
func (m *MockSensor) Held() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.held
}
