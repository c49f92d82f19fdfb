// Package capture takes a picture, stores it under the next sequence number
// and hands it to the upload guard.
package capture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/dmxcam/internal/counter"
	"github.com/banshee-data/dmxcam/internal/imaging"
	"github.com/banshee-data/dmxcam/internal/monitoring"
	"github.com/banshee-data/dmxcam/internal/timeutil"
	"github.com/banshee-data/dmxcam/internal/upload"
)

// DefaultWarmupFrames is how many frames are discarded before the kept one,
// letting auto exposure and white balance settle.
const DefaultWarmupFrames = 4

var (
	// ErrAcquisition means the sensor could not deliver a frame. The
	// controller treats it as fatal.
	ErrAcquisition = errors.New("frame acquisition failed")
	// ErrStorage means the picture or its sequence number could not be
	// persisted.
	ErrStorage = errors.New("picture storage failed")
)

// Writer stores picture bytes by name.
type Writer interface {
	Write(name string, data []byte) error
}

// Uploads accepts stored pictures for upload.
type Uploads interface {
	TryStartUpload(ctx context.Context, a upload.Artifact) bool
}

// Result describes one stored picture.
type Result struct {
	Sequence      uint32    `json:"sequence"`
	Name          string    `json:"name"`
	Size          int       `json:"size"`
	CapturedAt    time.Time `json:"captured_at"`
	UploadStarted bool      `json:"upload_started"`
}

// Log persists capture records.
type Log interface {
	RecordCapture(ctx context.Context, r Result) error
}

// Options configures a Pipeline.
type Options struct {
	StartChannel int
	// WarmupFrames overrides DefaultWarmupFrames when positive. Use a
	// negative value to disable warm-up.
	WarmupFrames int

	Log     Log
	Uploads Uploads
	Clock   timeutil.Clock
}

// Pipeline runs capture and persist.
type Pipeline struct {
	sensor  imaging.Sensor
	store   Writer
	counter *counter.Counter
	opts    Options
}

// NewPipeline wires the sensor, picture store and sequence counter.
func NewPipeline(sensor imaging.Sensor, store Writer, seq *counter.Counter, opts Options) *Pipeline {
	switch {
	case opts.WarmupFrames == 0:
		opts.WarmupFrames = DefaultWarmupFrames
	case opts.WarmupFrames < 0:
		opts.WarmupFrames = 0
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	return &Pipeline{sensor: sensor, store: store, counter: seq, opts: opts}
}

// FileName returns the stored name of picture seq.
func (p *Pipeline) FileName(seq uint32) string {
	return fmt.Sprintf("dmx_channel_%d_%d.jpg", p.opts.StartChannel, seq)
}

// CaptureAndStore discards warm-up frames, acquires one picture and stores
// it as the next sequence number. The counter advances only after the
// picture is written. Upload is attempted afterwards and does not affect
// the result.
func (p *Pipeline) CaptureAndStore(ctx context.Context) (Result, error) {
	for i := 0; i < p.opts.WarmupFrames; i++ {
		if _, err := p.sensor.AcquireFrame(); err != nil {
			return Result{}, fmt.Errorf("%w: warm-up frame %d: %v", ErrAcquisition, i+1, err)
		}
		p.sensor.ReleaseFrame()
	}

	frame, err := p.sensor.AcquireFrame()
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrAcquisition, err)
	}
	data := append([]byte(nil), frame...)
	p.sensor.ReleaseFrame()

	seq, err := p.counter.Next()
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	rec := Result{
		Sequence:   seq,
		Name:       p.FileName(seq),
		Size:       len(data),
		CapturedAt: p.opts.Clock.Now(),
	}

	if err := p.store.Write(rec.Name, data); err != nil {
		monitoring.Logf("capture: failed to save %s: %v", rec.Name, err)
		return Result{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if err := p.counter.Persist(seq); err != nil {
		monitoring.Logf("capture: saved %s but could not persist sequence: %v", rec.Name, err)
		return Result{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	monitoring.Logf("capture: saved %s (%d bytes)", rec.Name, rec.Size)

	if p.opts.Uploads != nil {
		rec.UploadStarted = p.opts.Uploads.TryStartUpload(ctx, upload.Artifact{
			Name:       rec.Name,
			Sequence:   seq,
			Data:       data,
			CapturedAt: rec.CapturedAt,
		})
	}

	if p.opts.Log != nil {
		if err := p.opts.Log.RecordCapture(ctx, rec); err != nil {
			monitoring.Logf("capture: failed to record %s: %v", rec.Name, err)
		}
	}
	return rec, nil
}
