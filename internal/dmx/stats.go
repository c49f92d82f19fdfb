package dmx

import (
	"math"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/dmxcam/internal/timeutil"
)

// statsWindow is the number of recent inter-frame intervals kept.
const statsWindow = 256

// FrameStats tracks bus activity for the status API.
type FrameStats struct {
	mu    sync.Mutex
	clock timeutil.Clock

	frames    uint64
	noFrames  uint64
	lastFrame time.Time
	intervals []float64 // seconds, ring buffer
	pos       int
}

// StatsSummary is a point-in-time view of FrameStats.
type StatsSummary struct {
	Frames         uint64    `json:"frames"`
	NoFrames       uint64    `json:"no_frames"`
	LastFrame      time.Time `json:"last_frame,omitempty"`
	MeanIntervalMS float64   `json:"mean_interval_ms"`
	StdDevMS       float64   `json:"stddev_interval_ms"`
	FrameRateHz    float64   `json:"frame_rate_hz"`
}

// NewFrameStats returns an empty tracker using clock for timestamps.
func NewFrameStats(clock timeutil.Clock) *FrameStats {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &FrameStats{clock: clock, intervals: make([]float64, 0, statsWindow)}
}

// Observe records the outcome of one Receive call.
func (s *FrameStats) Observe(r Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !r.Received() {
		s.noFrames++
		return
	}

	now := s.clock.Now()
	if !s.lastFrame.IsZero() {
		d := now.Sub(s.lastFrame).Seconds()
		if len(s.intervals) < statsWindow {
			s.intervals = append(s.intervals, d)
		} else {
			s.intervals[s.pos] = d
			s.pos = (s.pos + 1) % statsWindow
		}
	}
	s.lastFrame = now
	s.frames++
}

// Summary computes interval statistics over the recent window.
func (s *FrameStats) Summary() StatsSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	sum := StatsSummary{
		Frames:    s.frames,
		NoFrames:  s.noFrames,
		LastFrame: s.lastFrame,
	}
	if len(s.intervals) == 0 {
		return sum
	}

	mean, std := stat.MeanStdDev(s.intervals, nil)
	if math.IsNaN(std) {
		std = 0
	}
	sum.MeanIntervalMS = mean * 1000
	sum.StdDevMS = std * 1000
	if mean > 0 {
		sum.FrameRateHz = 1 / mean
	}
	return sum
}
