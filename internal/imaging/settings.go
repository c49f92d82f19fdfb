// Package imaging drives the camera sensor: applying fixture settings and
// acquiring still frames.
package imaging

import "github.com/banshee-data/dmxcam/internal/fixture"

// White balance modes.
const (
	WBModeAuto = iota
	WBModeSunny
	WBModeCloudy
	WBModeOffice
	WBModeHome
)

// Settings is the full sensor configuration applied on every settings change.
type Settings struct {
	Brightness int            `json:"brightness"`
	Contrast   int            `json:"contrast"`
	Saturation int            `json:"saturation"`
	Effect     fixture.Effect `json:"effect"`
	HMirror    bool           `json:"hmirror"`
	VFlip      bool           `json:"vflip"`

	WhiteBalance   bool `json:"whitebal"`
	AWBGain        bool `json:"awb_gain"`
	WBMode         int  `json:"wb_mode"`
	ExposureCtrl   bool `json:"exposure_ctrl"`
	AEC2           bool `json:"aec2"`
	AELevel        int  `json:"ae_level"`
	AECValue       int  `json:"aec_value"`
	GainCtrl       bool `json:"gain_ctrl"`
	AGCGain        int  `json:"agc_gain"`
	GainCeiling    int  `json:"gainceiling"`
	BPC            bool `json:"bpc"`
	WPC            bool `json:"wpc"`
	RawGamma       bool `json:"raw_gma"`
	LensCorrection bool `json:"lenc"`
	DCW            bool `json:"dcw"`
	ColorBar       bool `json:"colorbar"`
}

// Baseline returns the fixed automatic exposure and colour configuration
// with neutral image adjustments.
func Baseline() Settings {
	return Settings{
		WhiteBalance:   true,
		AWBGain:        true,
		WBMode:         WBModeAuto,
		ExposureCtrl:   true,
		AEC2:           true,
		AELevel:        0,
		AECValue:       300,
		GainCtrl:       true,
		AGCGain:        0,
		GainCeiling:    0,
		BPC:            false,
		WPC:            true,
		RawGamma:       true,
		LensCorrection: true,
		DCW:            true,
		ColorBar:       false,
	}
}

// SettingsFromRecord converts the raw fixture record into sensor settings.
func SettingsFromRecord(rec fixture.Record) Settings {
	s := Baseline()
	s.Brightness = fixture.Rescale(rec.Brightness)
	s.Contrast = fixture.Rescale(rec.Contrast)
	s.Saturation = fixture.Rescale(rec.Saturation)
	s.Effect = rec.Effect()
	s.HMirror = rec.Mirror()
	s.VFlip = rec.Flip()
	return s
}
