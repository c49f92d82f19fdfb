package imaging

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/dmxcam/internal/fixture"
	"github.com/banshee-data/dmxcam/internal/monitoring"
)

func TestSettingsFromRecord(t *testing.T) {
	rec := fixture.Record{
		Brightness:       0,
		Contrast:         255,
		Saturation:       1,
		SpecialEffect:    8,
		HorizontalMirror: 3,
		VerticalFlip:     0,
	}

	want := Baseline()
	want.Brightness = 0
	want.Contrast = 2
	want.Saturation = -2
	want.Effect = fixture.EffectNone
	want.HMirror = true

	if diff := cmp.Diff(want, SettingsFromRecord(rec)); diff != "" {
		t.Errorf("settings mismatch (-want +got):\n%s", diff)
	}
}

func TestBaseline(t *testing.T) {
	b := Baseline()
	assert.True(t, b.WhiteBalance)
	assert.Equal(t, 300, b.AECValue)
	assert.False(t, b.BPC)
	assert.True(t, b.WPC)
	assert.False(t, b.ColorBar)
}

func TestCommandSensor_Args(t *testing.T) {
	c := NewCommandSensor("rpicam-still", "--width", "1600")
	s := Baseline()
	s.Brightness = 2
	s.Contrast = -2
	s.Effect = fixture.EffectGrayscale
	s.HMirror = true
	s.VFlip = true
	s.GainCtrl = false
	s.AGCGain = 3
	require.NoError(t, c.Configure(s))

	want := []string{
		"--width", "1600",
		"--nopreview", "--immediate", "--encoding", "jpg", "--output", "-",
		"--brightness", "0.50",
		"--contrast", "0.50",
		"--ev", "0",
		"--saturation", "0.00",
		"--hflip", "--vflip",
		"--awb", "auto",
		"--gain", "4",
	}
	if diff := cmp.Diff(want, c.Args()); diff != "" {
		t.Errorf("args mismatch (-want +got):\n%s", diff)
	}
}

func TestCommandSensor_AcquireFrame(t *testing.T) {
	c := NewCommandSensor("rpicam-still")
	var gotName string
	c.Run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		gotName = name
		return []byte{0xFF, 0xD8}, nil
	}

	frame, err := c.AcquireFrame()
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0xD8}, frame)
	assert.Equal(t, "rpicam-still", gotName)
	c.ReleaseFrame()

	c.Run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return nil, nil
	}
	_, err = c.AcquireFrame()
	assert.ErrorIs(t, err, ErrNoFrame)

	c.Run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return nil, errors.New("no cameras available")
	}
	_, err = c.AcquireFrame()
	assert.ErrorContains(t, err, "no cameras available")
}

func TestFileSensor(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.jpg")
	require.NoError(t, os.WriteFile(path, []byte("jpeg"), 0o644))

	f := NewFileSensor(path)
	s := Baseline()
	s.VFlip = true
	require.NoError(t, f.Configure(s))
	assert.True(t, f.Settings().VFlip)

	data, err := f.AcquireFrame()
	require.NoError(t, err)
	assert.Equal(t, "jpeg", string(data))

	_, err = NewFileSensor(filepath.Join(t.TempDir(), "missing.jpg")).AcquireFrame()
	assert.Error(t, err)
}

func TestCommandSensor_UnsupportedEffectLogged(t *testing.T) {
	var lines []string
	monitoring.SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, v...))
	})
	monitoring.SetDebug(true)
	t.Cleanup(func() {
		monitoring.SetDebug(false)
		monitoring.SetLogger(nil)
	})

	tests := []struct {
		effect  fixture.Effect
		logged  bool
		satFlag string
	}{
		{fixture.EffectNone, false, "1.00"},
		{fixture.EffectGrayscale, false, "0.00"},
		{fixture.EffectNegative, true, "1.00"},
		{fixture.EffectSepia, true, "1.00"},
	}
	for _, tt := range tests {
		t.Run(tt.effect.String(), func(t *testing.T) {
			lines = nil
			c := NewCommandSensor("rpicam-still")
			s := Baseline()
			s.Effect = tt.effect
			require.NoError(t, c.Configure(s))

			if tt.logged {
				require.Len(t, lines, 1)
				assert.Contains(t, lines[0], tt.effect.String())
			} else {
				assert.Empty(t, lines)
			}
			args := c.Args()
			i := slices.Index(args, "--saturation")
			require.GreaterOrEqual(t, i, 0)
			assert.Equal(t, tt.satFlag, args[i+1])
		})
	}
}
