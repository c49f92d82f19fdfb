package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/dmxcam/internal/dmx"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_ExampleFile(t *testing.T) {
	cfg, err := Load("../../config/dmxcam.example.json")
	require.NoError(t, err)

	assert.Equal(t, 100, cfg.GetFixtureStartChannel())
	assert.Equal(t, SourceSerial, cfg.GetSource())
	assert.Equal(t, dmx.PortOptions{BaudRate: 57600, DataBits: 8, StopBits: 1, Parity: "N"}, cfg.GetSerialOptions())
	assert.Equal(t, []string{"--width", "1600", "--height", "1200"}, cfg.SensorArgs)
	assert.Equal(t, IndicatorGPIO, cfg.GetIndicator())
	assert.Equal(t, 4, cfg.GetGPIOPin())
	assert.Equal(t, UploaderHTTP, cfg.GetUploader())
}

func TestDefaults(t *testing.T) {
	cfg := &Config{}
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 100, cfg.GetFixtureStartChannel())
	assert.False(t, cfg.GetLegacyContrastCopy())
	assert.False(t, cfg.GetSingleUploadPerSession())
	assert.Equal(t, SourceSerial, cfg.GetSource())
	assert.Equal(t, ":6454", cfg.GetArtNetListen())
	assert.Equal(t, time.Second, cfg.GetReceiveTimeout())
	assert.Equal(t, 30*time.Second, cfg.GetIdleLogEvery())
	assert.Equal(t, 4, cfg.GetWarmupFrames())
	assert.Equal(t, "data/photo.jpg", cfg.GetRemotePath())
	assert.Equal(t, UploaderNone, cfg.GetUploader())
	assert.Equal(t, IndicatorNone, cfg.GetIndicator())
	assert.True(t, cfg.GetPCAPRealtime())
}

func TestLoad_PartialOverrides(t *testing.T) {
	path := writeConfig(t, "c.json", `{
		"fixture_start_channel": 1,
		"legacy_contrast_copy": true,
		"single_upload_per_session": true,
		"receive_timeout": "250ms"
	}`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 1, cfg.GetFixtureStartChannel())
	assert.True(t, cfg.GetLegacyContrastCopy())
	assert.True(t, cfg.GetSingleUploadPerSession())
	assert.Equal(t, 250*time.Millisecond, cfg.GetReceiveTimeout())
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		body    string
		wantErr string
	}{
		{name: "extension", file: "c.yaml", body: `{}`, wantErr: ".json extension"},
		{name: "bad json", file: "c.json", body: `{`, wantErr: "parse config JSON"},
		{name: "start channel low", file: "c.json", body: `{"fixture_start_channel": 0}`, wantErr: "fixture_start_channel"},
		{name: "start channel high", file: "c.json", body: `{"fixture_start_channel": 506}`, wantErr: "fixture_start_channel"},
		{name: "source", file: "c.json", body: `{"source": "sacn"}`, wantErr: "source must be one of"},
		{name: "pcap needs file", file: "c.json", body: `{"source": "pcap"}`, wantErr: "pcap_file"},
		{name: "timeout", file: "c.json", body: `{"receive_timeout": "soon"}`, wantErr: "receive_timeout"},
		{name: "zero timeout", file: "c.json", body: `{"receive_timeout": "0s"}`, wantErr: "receive_timeout"},
		{name: "serial options", file: "c.json", body: `{"serial_options": {"parity": "mark"}}`, wantErr: "serial_options"},
		{name: "file sensor", file: "c.json", body: `{"sensor": "file"}`, wantErr: "sample_image"},
		{name: "gpio pin", file: "c.json", body: `{"indicator": "gpio"}`, wantErr: "gpio_pin"},
		{name: "indicator line", file: "c.json", body: `{"indicator": "serial", "indicator_serial_port": "/dev/ttyACM0", "indicator_line": "cts"}`, wantErr: "indicator_line"},
		{name: "http url", file: "c.json", body: `{"uploader": "http"}`, wantErr: "upload_url"},
		{name: "mqtt broker", file: "c.json", body: `{"uploader": "mqtt"}`, wantErr: "mqtt_broker"},
		{name: "warmup", file: "c.json", body: `{"warmup_frames": -1}`, wantErr: "warmup_frames"},
		{name: "universe", file: "c.json", body: `{"artnet_universe": 40000}`, wantErr: "artnet_universe"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.file, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_TooLarge(t *testing.T) {
	body := `{"picture_dir": "` + strings.Repeat("a", 1024*1024) + `"}`
	_, err := Load(writeConfig(t, "big.json", body))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}
