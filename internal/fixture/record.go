// Package fixture decodes the controller's 8-channel DMX footprint into a
// settings record and reports which settings changed since the last frame.
package fixture

// Footprint is the number of consecutive channels the fixture occupies.
const Footprint = 8

// Field identifies one channel of the footprint by its offset from the
// start channel.
type Field int

const (
	FieldPictureIndex Field = iota
	FieldBrightness
	FieldContrast
	FieldSaturation
	FieldSpecialEffect
	FieldHorizontalMirror
	FieldVerticalFlip
	FieldOutput
)

var fieldNames = [Footprint]string{
	"picture_index",
	"brightness",
	"contrast",
	"saturation",
	"special_effect",
	"horizontal_mirror",
	"vertical_flip",
	"output",
}

func (f Field) String() string {
	if f < 0 || int(f) >= Footprint {
		return "unknown"
	}
	return fieldNames[f]
}

// Record holds the raw channel bytes of the fixture. Conversions to sensor
// units happen in the imaging package.
type Record struct {
	PictureIndex     byte `json:"picture_index"`
	Brightness       byte `json:"brightness"`
	Contrast         byte `json:"contrast"`
	Saturation       byte `json:"saturation"`
	SpecialEffect    byte `json:"special_effect"`
	HorizontalMirror byte `json:"horizontal_mirror"`
	VerticalFlip     byte `json:"vertical_flip"`
	OutputEnabled    byte `json:"output_enabled"`
}

// Mirror reports whether horizontal mirroring is requested.
func (r Record) Mirror() bool { return r.HorizontalMirror != 0 }

// Flip reports whether vertical flipping is requested.
func (r Record) Flip() bool { return r.VerticalFlip != 0 }

// Output reports whether the indicator output should be on.
func (r Record) Output() bool { return r.OutputEnabled != 0 }

// Effect returns the coerced special effect.
func (r Record) Effect() Effect { return EffectFromRaw(r.SpecialEffect) }

func (r *Record) field(f Field) *byte {
	switch f {
	case FieldPictureIndex:
		return &r.PictureIndex
	case FieldBrightness:
		return &r.Brightness
	case FieldContrast:
		return &r.Contrast
	case FieldSaturation:
		return &r.Saturation
	case FieldSpecialEffect:
		return &r.SpecialEffect
	case FieldHorizontalMirror:
		return &r.HorizontalMirror
	case FieldVerticalFlip:
		return &r.VerticalFlip
	case FieldOutput:
		return &r.OutputEnabled
	}
	return nil
}

// Changes marks which fields differed from the stored record.
type Changes [Footprint]bool

// Any reports whether any field changed.
func (c Changes) Any() bool {
	for _, v := range c {
		if v {
			return true
		}
	}
	return false
}

// Fields lists the changed fields in footprint order.
func (c Changes) Fields() []Field {
	var out []Field
	for i, v := range c {
		if v {
			out = append(out, Field(i))
		}
	}
	return out
}

// DirtyFlags groups changes by the action they trigger.
type DirtyFlags struct {
	SettingsChanged  bool
	PictureRequested bool
	OutputChanged    bool
}

// Any reports whether any action is pending.
func (d DirtyFlags) Any() bool {
	return d.SettingsChanged || d.PictureRequested || d.OutputChanged
}

// Fold collapses per-field changes into action flags: the picture index
// requests a picture, the output channel toggles the indicator, and every
// other field reconfigures the sensor.
func (c Changes) Fold() DirtyFlags {
	var d DirtyFlags
	for i, changed := range c {
		if !changed {
			continue
		}
		switch Field(i) {
		case FieldPictureIndex:
			d.PictureRequested = true
		case FieldOutput:
			d.OutputChanged = true
		default:
			d.SettingsChanged = true
		}
	}
	return d
}
