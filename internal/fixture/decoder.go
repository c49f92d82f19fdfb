package fixture

import (
	"fmt"

	"github.com/banshee-data/dmxcam/internal/dmx"
)

// MinStartChannel and MaxStartChannel bound the first channel of the
// footprint so that all eight channels are addressable.
const (
	MinStartChannel = 1
	MaxStartChannel = dmx.MaxChannel - Footprint + 1
)

// Decoder owns the live record and compares each frame against it.
type Decoder struct {
	startChannel int

	// legacyContrastCopy compares the contrast channel but stores the
	// brightness channel into Contrast.
	legacyContrastCopy bool

	rec Record
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithLegacyContrastCopy reproduces the historical contrast channel defect
// for rigs whose cue lists were programmed against it.
func WithLegacyContrastCopy(enabled bool) Option {
	return func(d *Decoder) { d.legacyContrastCopy = enabled }
}

// NewDecoder returns a decoder for the footprint starting at startChannel.
func NewDecoder(startChannel int, opts ...Option) (*Decoder, error) {
	if startChannel < MinStartChannel || startChannel > MaxStartChannel {
		return nil, fmt.Errorf("start channel %d out of range %d..%d", startChannel, MinStartChannel, MaxStartChannel)
	}
	d := &Decoder{startChannel: startChannel}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// StartChannel returns the first channel of the footprint.
func (d *Decoder) StartChannel() int { return d.startChannel }

// Record returns a copy of the live record.
func (d *Decoder) Record() Record { return d.rec }

// Decode updates the live record from frame and returns the record with the
// folded change flags.
func (d *Decoder) Decode(frame *dmx.RawFrame) (Record, DirtyFlags) {
	return d.rec, d.Changes(frame).Fold()
}

// Changes updates the live record from frame and reports which fields
// differed. Channels beyond the frame's size are not compared.
func (d *Decoder) Changes(frame *dmx.RawFrame) Changes {
	var c Changes
	for i := 0; i < Footprint; i++ {
		f := Field(i)
		cmpCh := d.startChannel + i
		srcCh := cmpCh
		if f == FieldContrast && d.legacyContrastCopy {
			srcCh = d.startChannel + int(FieldBrightness)
		}

		cmpVal, ok := frame.Channel(cmpCh)
		if !ok {
			continue
		}
		src, ok := frame.Channel(srcCh)
		if !ok {
			continue
		}

		stored := d.rec.field(f)
		if cmpVal != *stored {
			*stored = src
			c[i] = true
		}
	}
	return c
}
