// Package config loads the controller's JSON configuration file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/dmxcam/internal/dmx"
	"github.com/banshee-data/dmxcam/internal/fixture"
)

// DefaultConfigPath is the configuration file read when --config is not given.
const DefaultConfigPath = "config/dmxcam.json"

// Frame sources.
const (
	SourceSerial = "serial"
	SourceArtNet = "artnet"
	SourcePCAP   = "pcap"
)

// Sensors.
const (
	SensorCommand = "command"
	SensorFile    = "file"
)

// Indicators.
const (
	IndicatorNone   = "none"
	IndicatorGPIO   = "gpio"
	IndicatorSerial = "serial"
)

// Uploaders.
const (
	UploaderNone  = "none"
	UploaderHTTP  = "http"
	UploaderMQTT  = "mqtt"
	UploaderRedis = "redis"
)

// Config is the controller configuration. Unset fields fall back to the
// defaults returned by the Get* methods, so partial files are valid.
type Config struct {
	// Fixture
	FixtureStartChannel *int  `json:"fixture_start_channel,omitempty"`
	LegacyContrastCopy  *bool `json:"legacy_contrast_copy,omitempty"`

	// Frame source
	Source         *string          `json:"source,omitempty"`
	SerialPort     *string          `json:"serial_port,omitempty"`
	SerialOptions  *dmx.PortOptions `json:"serial_options,omitempty"`
	ArtNetListen   *string          `json:"artnet_listen,omitempty"`
	ArtNetUniverse *int             `json:"artnet_universe,omitempty"`
	PCAPFile       *string          `json:"pcap_file,omitempty"`
	PCAPRealtime   *bool            `json:"pcap_realtime,omitempty"`
	ReceiveTimeout *string          `json:"receive_timeout,omitempty"` // duration string like "1s"
	IdleLogEvery   *string          `json:"idle_log_every,omitempty"`  // duration string like "30s"

	// Capture
	WarmupFrames  *int     `json:"warmup_frames,omitempty"`
	PictureDir    *string  `json:"picture_dir,omitempty"`
	Sensor        *string  `json:"sensor,omitempty"`
	SensorCommand *string  `json:"sensor_command,omitempty"`
	SensorArgs    []string `json:"sensor_args,omitempty"`
	SampleImage   *string  `json:"sample_image,omitempty"`

	// Indicator output
	Indicator           *string `json:"indicator,omitempty"`
	GPIOPin             *int    `json:"gpio_pin,omitempty"`
	GPIORoot            *string `json:"gpio_root,omitempty"`
	IndicatorSerialPort *string `json:"indicator_serial_port,omitempty"`
	IndicatorLine       *string `json:"indicator_line,omitempty"`

	// Upload
	Uploader               *string `json:"uploader,omitempty"`
	RemotePath             *string `json:"remote_path,omitempty"`
	SingleUploadPerSession *bool   `json:"single_upload_per_session,omitempty"`
	UploadURL              *string `json:"upload_url,omitempty"`
	MQTTBroker             *string `json:"mqtt_broker,omitempty"`
	MQTTClientID           *string `json:"mqtt_client_id,omitempty"`
	MQTTUsername           *string `json:"mqtt_username,omitempty"`
	MQTTTopicPrefix        *string `json:"mqtt_topic_prefix,omitempty"`
	RedisAddr              *string `json:"redis_addr,omitempty"`
	RedisDB                *int    `json:"redis_db,omitempty"`
	RedisKeyPrefix         *string `json:"redis_key_prefix,omitempty"`
	RedisChannel           *string `json:"redis_channel,omitempty"`
	RedisTTL               *string `json:"redis_ttl,omitempty"`
}

// Load reads a Config from a JSON file.
// The file must have a .json extension and be under the max file size.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func oneOf(field, v string, allowed ...string) error {
	for _, a := range allowed {
		if v == a {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of %v, got %q", field, allowed, v)
}

func checkDuration(field string, v *string) error {
	if v == nil || *v == "" {
		return nil
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return fmt.Errorf("invalid %s '%s': %w", field, *v, err)
	}
	if d < 0 {
		return fmt.Errorf("%s must be non-negative, got %s", field, *v)
	}
	return nil
}

// Validate checks that the configuration values are valid.
func (c *Config) Validate() error {
	if c.FixtureStartChannel != nil {
		ch := *c.FixtureStartChannel
		if ch < fixture.MinStartChannel || ch > fixture.MaxStartChannel {
			return fmt.Errorf("fixture_start_channel must be between %d and %d, got %d",
				fixture.MinStartChannel, fixture.MaxStartChannel, ch)
		}
	}

	if err := oneOf("source", c.GetSource(), SourceSerial, SourceArtNet, SourcePCAP); err != nil {
		return err
	}
	if c.SerialOptions != nil {
		if _, err := c.SerialOptions.Normalize(); err != nil {
			return fmt.Errorf("serial_options: %w", err)
		}
	}
	if c.ArtNetUniverse != nil && (*c.ArtNetUniverse < 0 || *c.ArtNetUniverse > 0x7FFF) {
		return fmt.Errorf("artnet_universe must be between 0 and 32767, got %d", *c.ArtNetUniverse)
	}
	if c.GetSource() == SourcePCAP && c.GetPCAPFile() == "" {
		return fmt.Errorf("pcap_file is required when source is %q", SourcePCAP)
	}
	for field, v := range map[string]*string{
		"receive_timeout": c.ReceiveTimeout,
		"idle_log_every":  c.IdleLogEvery,
		"redis_ttl":       c.RedisTTL,
	} {
		if err := checkDuration(field, v); err != nil {
			return err
		}
	}
	if c.ReceiveTimeout != nil && c.GetReceiveTimeout() == 0 {
		return fmt.Errorf("receive_timeout must be positive")
	}

	if err := oneOf("sensor", c.GetSensor(), SensorCommand, SensorFile); err != nil {
		return err
	}
	if c.GetSensor() == SensorFile && c.GetSampleImage() == "" {
		return fmt.Errorf("sample_image is required when sensor is %q", SensorFile)
	}

	if err := oneOf("indicator", c.GetIndicator(), IndicatorNone, IndicatorGPIO, IndicatorSerial); err != nil {
		return err
	}
	if c.GetIndicator() == IndicatorGPIO && c.GPIOPin == nil {
		return fmt.Errorf("gpio_pin is required when indicator is %q", IndicatorGPIO)
	}
	if c.GetIndicator() == IndicatorSerial {
		if c.GetIndicatorSerialPort() == "" {
			return fmt.Errorf("indicator_serial_port is required when indicator is %q", IndicatorSerial)
		}
		if err := oneOf("indicator_line", c.GetIndicatorLine(), "rts", "dtr"); err != nil {
			return err
		}
	}

	if err := oneOf("uploader", c.GetUploader(), UploaderNone, UploaderHTTP, UploaderMQTT, UploaderRedis); err != nil {
		return err
	}
	switch c.GetUploader() {
	case UploaderHTTP:
		if c.GetUploadURL() == "" {
			return fmt.Errorf("upload_url is required when uploader is %q", UploaderHTTP)
		}
	case UploaderMQTT:
		if c.GetMQTTBroker() == "" {
			return fmt.Errorf("mqtt_broker is required when uploader is %q", UploaderMQTT)
		}
	}

	if c.WarmupFrames != nil && *c.WarmupFrames < 0 {
		return fmt.Errorf("warmup_frames must be non-negative, got %d", *c.WarmupFrames)
	}
	return nil
}

func str(p *string, def string) string {
	if p == nil || *p == "" {
		return def
	}
	return *p
}

func dur(p *string, def time.Duration) time.Duration {
	if p == nil || *p == "" {
		return def
	}
	d, err := time.ParseDuration(*p)
	if err != nil {
		return def
	}
	return d
}

// GetFixtureStartChannel returns the first DMX channel of the fixture.
func (c *Config) GetFixtureStartChannel() int {
	if c.FixtureStartChannel == nil {
		return 100
	}
	return *c.FixtureStartChannel
}

func (c *Config) GetLegacyContrastCopy() bool {
	return c.LegacyContrastCopy != nil && *c.LegacyContrastCopy
}

func (c *Config) GetSource() string     { return str(c.Source, SourceSerial) }
func (c *Config) GetSerialPort() string { return str(c.SerialPort, "/dev/ttyUSB0") }

// GetSerialOptions returns the widget port options, unnormalised.
func (c *Config) GetSerialOptions() dmx.PortOptions {
	if c.SerialOptions == nil {
		return dmx.PortOptions{}
	}
	return *c.SerialOptions
}

func (c *Config) GetArtNetListen() string { return str(c.ArtNetListen, fmt.Sprintf(":%d", dmx.ArtNetPort)) }

func (c *Config) GetArtNetUniverse() uint16 {
	if c.ArtNetUniverse == nil {
		return 0
	}
	return uint16(*c.ArtNetUniverse)
}

func (c *Config) GetPCAPFile() string { return str(c.PCAPFile, "") }

func (c *Config) GetPCAPRealtime() bool {
	return c.PCAPRealtime == nil || *c.PCAPRealtime
}

// GetReceiveTimeout bounds each wait for a bus frame.
func (c *Config) GetReceiveTimeout() time.Duration { return dur(c.ReceiveTimeout, time.Second) }

// GetIdleLogEvery limits how often an idle bus is logged.
func (c *Config) GetIdleLogEvery() time.Duration { return dur(c.IdleLogEvery, 30*time.Second) }

// GetWarmupFrames returns the number of frames discarded before a picture.
func (c *Config) GetWarmupFrames() int {
	if c.WarmupFrames == nil {
		return 4
	}
	return *c.WarmupFrames
}

func (c *Config) GetPictureDir() string    { return str(c.PictureDir, "pictures") }
func (c *Config) GetSensor() string        { return str(c.Sensor, SensorCommand) }
func (c *Config) GetSensorCommand() string { return str(c.SensorCommand, "rpicam-still") }
func (c *Config) GetSampleImage() string   { return str(c.SampleImage, "") }

func (c *Config) GetIndicator() string           { return str(c.Indicator, IndicatorNone) }
func (c *Config) GetGPIORoot() string            { return str(c.GPIORoot, "") }
func (c *Config) GetIndicatorSerialPort() string { return str(c.IndicatorSerialPort, "") }
func (c *Config) GetIndicatorLine() string       { return str(c.IndicatorLine, "rts") }

func (c *Config) GetGPIOPin() int {
	if c.GPIOPin == nil {
		return 0
	}
	return *c.GPIOPin
}

func (c *Config) GetUploader() string   { return str(c.Uploader, UploaderNone) }
func (c *Config) GetRemotePath() string { return str(c.RemotePath, "data/photo.jpg") }
func (c *Config) GetUploadURL() string  { return str(c.UploadURL, "") }

// GetSingleUploadPerSession reports whether only one successful upload is
// allowed per process lifetime.
func (c *Config) GetSingleUploadPerSession() bool {
	return c.SingleUploadPerSession != nil && *c.SingleUploadPerSession
}

func (c *Config) GetMQTTBroker() string      { return str(c.MQTTBroker, "") }
func (c *Config) GetMQTTClientID() string    { return str(c.MQTTClientID, "dmxcam") }
func (c *Config) GetMQTTUsername() string    { return str(c.MQTTUsername, "") }
func (c *Config) GetMQTTTopicPrefix() string { return str(c.MQTTTopicPrefix, "dmxcam") }

func (c *Config) GetRedisAddr() string      { return str(c.RedisAddr, "localhost:6379") }
func (c *Config) GetRedisKeyPrefix() string { return str(c.RedisKeyPrefix, "dmxcam") }
func (c *Config) GetRedisChannel() string   { return str(c.RedisChannel, "") }
func (c *Config) GetRedisTTL() time.Duration {
	return dur(c.RedisTTL, 0)
}

func (c *Config) GetRedisDB() int {
	if c.RedisDB == nil {
		return 0
	}
	return *c.RedisDB
}
