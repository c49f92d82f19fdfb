package imaging

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/banshee-data/dmxcam/internal/fixture"
	"github.com/banshee-data/dmxcam/internal/monitoring"
)

// Sensor is the camera. A frame returned by AcquireFrame stays valid until
// ReleaseFrame is called.
type Sensor interface {
	Configure(s Settings) error
	AcquireFrame() ([]byte, error)
	ReleaseFrame()
}

// ErrNoFrame is returned when the sensor produced no image data.
var ErrNoFrame = errors.New("sensor returned an empty frame")

// Runner executes a still-capture command and returns its stdout.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
		return nil, fmt.Errorf("%w: %s", err, exitErr.Stderr)
	}
	return out, err
}

// CommandSensor captures stills by running an external program that writes a
// JPEG to stdout, such as libcamera-still or rpicam-still.
//
// The still commands have no colour effect options. Grayscale is rendered
// as zero saturation; the other effects are accepted and ignored.
type CommandSensor struct {
	Command string
	// ExtraArgs are appended before the settings arguments.
	ExtraArgs []string
	Timeout   time.Duration
	Run       Runner

	mu       sync.Mutex
	settings Settings
	frame    []byte
}

// NewCommandSensor returns a sensor that runs command for each frame.
func NewCommandSensor(command string, extraArgs ...string) *CommandSensor {
	return &CommandSensor{
		Command:   command,
		ExtraArgs: extraArgs,
		Timeout:   10 * time.Second,
		Run:       execRunner,
		settings:  Baseline(),
	}
}

// Check verifies the capture command is installed.
func (c *CommandSensor) Check() error {
	if _, err := exec.LookPath(c.Command); err != nil {
		return fmt.Errorf("capture command %q: %w", c.Command, err)
	}
	return nil
}

// Configure stores the settings used by subsequent captures.
func (c *CommandSensor) Configure(s Settings) error {
	c.mu.Lock()
	c.settings = s
	c.mu.Unlock()
	if !commandSupportsEffect(s.Effect) {
		monitoring.Debugf("camera: effect %s has no %s option, ignoring", s.Effect, c.Command)
	}
	return nil
}

func commandSupportsEffect(e fixture.Effect) bool {
	return e == fixture.EffectNone || e == fixture.EffectGrayscale
}

// Args returns the command line for the current settings.
func (c *CommandSensor) Args() []string {
	c.mu.Lock()
	s := c.settings
	c.mu.Unlock()

	args := append([]string{}, c.ExtraArgs...)
	args = append(args,
		"--nopreview",
		"--immediate",
		"--encoding", "jpg",
		"--output", "-",
		"--brightness", formatFloat(float64(s.Brightness)*0.25),
		"--contrast", formatFloat(1+float64(s.Contrast)*0.25),
		"--ev", strconv.Itoa(s.AELevel),
	)

	saturation := 1 + float64(s.Saturation)*0.25
	if s.Effect == fixture.EffectGrayscale {
		saturation = 0
	}
	args = append(args, "--saturation", formatFloat(saturation))

	if s.HMirror {
		args = append(args, "--hflip")
	}
	if s.VFlip {
		args = append(args, "--vflip")
	}
	if s.WhiteBalance {
		args = append(args, "--awb", "auto")
	}
	if !s.GainCtrl {
		args = append(args, "--gain", strconv.Itoa(1+s.AGCGain))
	}
	if !s.ExposureCtrl {
		// AEC value is in sensor lines; the command takes microseconds.
		args = append(args, "--shutter", strconv.Itoa(s.AECValue*100))
	}
	return args
}

// AcquireFrame runs the capture command.
func (c *CommandSensor) AcquireFrame() ([]byte, error) {
	run := c.Run
	if run == nil {
		run = execRunner
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.Timeout)
	defer cancel()

	out, err := run(ctx, c.Command, c.Args()...)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", c.Command, err)
	}
	if len(out) == 0 {
		return nil, ErrNoFrame
	}

	c.mu.Lock()
	c.frame = out
	c.mu.Unlock()
	return out, nil
}

// ReleaseFrame drops the last captured frame.
func (c *CommandSensor) ReleaseFrame() {
	c.mu.Lock()
	c.frame = nil
	c.mu.Unlock()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// FileSensor returns the same image for every frame. Used on benches
// without a camera.
type FileSensor struct {
	Path string

	mu       sync.Mutex
	settings Settings
}

// NewFileSensor returns a sensor that serves the image at path.
func NewFileSensor(path string) *FileSensor {
	return &FileSensor{Path: path, settings: Baseline()}
}

func (f *FileSensor) Configure(s Settings) error {
	f.mu.Lock()
	f.settings = s
	f.mu.Unlock()
	monitoring.Debugf("file sensor configured: %+v", s)
	return nil
}

func (f *FileSensor) AcquireFrame() ([]byte, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("read sample image: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrNoFrame
	}
	return data, nil
}

func (f *FileSensor) ReleaseFrame() {}

// Settings returns the last applied settings.
func (f *FileSensor) Settings() Settings {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.settings
}
