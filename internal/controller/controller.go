// Package controller runs the receive, decode and dispatch loop.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/banshee-data/dmxcam/internal/capture"
	"github.com/banshee-data/dmxcam/internal/dmx"
	"github.com/banshee-data/dmxcam/internal/fixture"
	"github.com/banshee-data/dmxcam/internal/imaging"
	"github.com/banshee-data/dmxcam/internal/monitoring"
	"github.com/banshee-data/dmxcam/internal/output"
	"github.com/banshee-data/dmxcam/internal/timeutil"
)

// DefaultReceiveTimeout bounds each wait for a frame.
const DefaultReceiveTimeout = time.Second

// Capturer takes and stores a picture.
type Capturer interface {
	CaptureAndStore(ctx context.Context) (capture.Result, error)
}

// FrameEvent describes one decoded frame.
type FrameEvent struct {
	At      time.Time          `json:"at"`
	Record  fixture.Record     `json:"record"`
	Flags   fixture.DirtyFlags `json:"flags"`
	Changed []string           `json:"changed,omitempty"`
}

// Options configures a Controller.
type Options struct {
	ReceiveTimeout time.Duration
	// IdleLogEvery limits idle-bus log lines to one per interval.
	IdleLogEvery time.Duration
	Stats        *dmx.FrameStats
	Clock        timeutil.Clock
	// OnFrame, when set, is called for every frame that changed the record.
	OnFrame func(FrameEvent)
}

// Controller owns the frame buffer, the decoded record and the handlers.
// Run and Dispatch must be called from a single goroutine.
type Controller struct {
	source    dmx.Source
	decoder   *fixture.Decoder
	sensor    imaging.Sensor
	indicator output.Indicator
	capturer  Capturer
	opts      Options

	frame dmx.RawFrame
	idle  *rate.Limiter

	mu     sync.Mutex
	status Status
}

// Status is a snapshot for the status API.
type Status struct {
	StartChannel     int                `json:"start_channel"`
	Frames           uint64             `json:"frames"`
	Dispatches       uint64             `json:"dispatches"`
	Record           fixture.Record     `json:"record"`
	LastFlags        fixture.DirtyFlags `json:"last_flags"`
	LastFrameAt      time.Time          `json:"last_frame_at,omitempty"`
	LastCapture      *capture.Result    `json:"last_capture,omitempty"`
	LastCaptureError string             `json:"last_capture_error,omitempty"`
	SettingsErrors   uint64             `json:"settings_errors"`
	OutputErrors     uint64             `json:"output_errors"`
}

// New wires a controller. indicator may be nil.
func New(source dmx.Source, decoder *fixture.Decoder, sensor imaging.Sensor, indicator output.Indicator, capturer Capturer, opts Options) *Controller {
	if opts.ReceiveTimeout <= 0 {
		opts.ReceiveTimeout = DefaultReceiveTimeout
	}
	if opts.IdleLogEvery <= 0 {
		opts.IdleLogEvery = 30 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	if indicator == nil {
		indicator = &output.Noop{}
	}
	return &Controller{
		source:    source,
		decoder:   decoder,
		sensor:    sensor,
		indicator: indicator,
		capturer:  capturer,
		opts:      opts,
		idle:      rate.NewLimiter(rate.Every(opts.IdleLogEvery), 1),
		status:    Status{StartChannel: decoder.StartChannel()},
	}
}

// Run processes frames until ctx is cancelled or a fatal error occurs.
// Frame acquisition failures are fatal and returned wrapping
// capture.ErrAcquisition.
func (c *Controller) Run(ctx context.Context) error {
	monitoring.Logf("controller: listening for fixture at channel %d", c.decoder.StartChannel())
	for {
		if ctx.Err() != nil {
			return nil
		}
		if err := c.Step(ctx); err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				return nil
			}
			return err
		}
	}
}

// Step receives at most one frame and dispatches its changes.
func (c *Controller) Step(ctx context.Context) error {
	res, err := c.source.Receive(ctx, &c.frame, c.opts.ReceiveTimeout)
	if c.opts.Stats != nil {
		c.opts.Stats.Observe(res)
	}
	if err != nil {
		return fmt.Errorf("receive frame: %w", err)
	}
	if !res.Received() {
		if c.idle.Allow() {
			monitoring.Debugf("controller: no DMX frame within %s", c.opts.ReceiveTimeout)
		}
		return nil
	}

	changes := c.decoder.Changes(&c.frame)
	rec := c.decoder.Record()
	flags := changes.Fold()
	now := c.opts.Clock.Now()

	c.mu.Lock()
	c.status.Frames++
	c.status.Record = rec
	c.status.LastFrameAt = now
	if flags.Any() {
		c.status.LastFlags = flags
	}
	c.mu.Unlock()

	if !flags.Any() {
		return nil
	}
	if c.opts.OnFrame != nil {
		ev := FrameEvent{At: now, Record: rec, Flags: flags}
		for _, f := range changes.Fields() {
			ev.Changed = append(ev.Changed, f.String())
		}
		c.opts.OnFrame(ev)
	}
	return c.Dispatch(ctx, rec, flags)
}

// Dispatch runs the handlers for flags in order: settings, output, picture.
// Only a picture acquisition failure is returned.
func (c *Controller) Dispatch(ctx context.Context, rec fixture.Record, flags fixture.DirtyFlags) error {
	c.mu.Lock()
	c.status.Dispatches++
	c.mu.Unlock()

	if flags.SettingsChanged {
		settings := imaging.SettingsFromRecord(rec)
		monitoring.Debugf("controller: applying settings b=%d c=%d s=%d effect=%s mirror=%v flip=%v",
			settings.Brightness, settings.Contrast, settings.Saturation, settings.Effect, settings.HMirror, settings.VFlip)
		if err := c.sensor.Configure(settings); err != nil {
			monitoring.Logf("controller: sensor configuration failed: %v", err)
			c.bump(&c.status.SettingsErrors)
		}
	}

	if flags.OutputChanged {
		if err := c.setOutput(rec.Output()); err != nil {
			monitoring.Logf("controller: indicator: %v", err)
			c.bump(&c.status.OutputErrors)
		}
	}

	if flags.PictureRequested {
		monitoring.Logf("controller: picture requested (index %d)", rec.PictureIndex)
		res, err := c.capturer.CaptureAndStore(ctx)

		c.mu.Lock()
		if err != nil {
			c.status.LastCaptureError = err.Error()
		} else {
			c.status.LastCapture = &res
			c.status.LastCaptureError = ""
		}
		c.mu.Unlock()

		if err != nil {
			if errors.Is(err, capture.ErrAcquisition) {
				return err
			}
			monitoring.Logf("controller: picture not stored: %v", err)
		}
	}
	return nil
}

func (c *Controller) setOutput(on bool) error {
	if err := c.indicator.Set(on); err != nil {
		return fmt.Errorf("set %v: %w", on, err)
	}
	if err := c.indicator.Hold(); err != nil {
		return fmt.Errorf("hold: %w", err)
	}
	return nil
}

func (c *Controller) bump(n *uint64) {
	c.mu.Lock()
	*n++
	c.mu.Unlock()
}

// Status returns a snapshot of the controller state.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.status
	if s.LastCapture != nil {
		lc := *s.LastCapture
		s.LastCapture = &lc
	}
	return s
}
