package upload

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/banshee-data/dmxcam/internal/monitoring"
)

// MQTTOptions configures the MQTT uploader.
type MQTTOptions struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	QoS         byte
	Timeout     time.Duration
}

// Publisher is the part of mqtt.Client the uploader needs.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTUploader publishes each picture as a retained message followed by a
// JSON metadata message.
type MQTTUploader struct {
	client  Publisher
	broker  string
	prefix  string
	qos     byte
	timeout time.Duration
}

// DialMQTT connects to the broker and returns an uploader. The client
// reconnects in the background after the first successful connection.
func DialMQTT(opts MQTTOptions) (*MQTTUploader, mqtt.Client, error) {
	if opts.Broker == "" {
		return nil, nil, errors.New("mqtt broker is required")
	}
	prefix := strings.TrimSuffix(opts.TopicPrefix, "/")
	if prefix == "" {
		prefix = "dmxcam"
	}

	co := mqtt.NewClientOptions()
	co.AddBroker(opts.Broker)
	co.SetClientID(opts.ClientID)
	co.SetUsername(opts.Username)
	co.SetPassword(opts.Password)
	co.SetKeepAlive(10 * time.Second)
	co.SetPingTimeout(5 * time.Second)
	co.SetAutoReconnect(true)
	co.SetMaxReconnectInterval(time.Minute)
	co.SetWill(prefix+"/availability", "offline", 1, true)
	co.SetOnConnectHandler(func(c mqtt.Client) {
		monitoring.Logf("[MQTT] Connected to %s", opts.Broker)
		c.Publish(prefix+"/availability", 1, true, "online")
	})
	co.SetConnectionLostHandler(func(c mqtt.Client, err error) {
		monitoring.Logf("[MQTT] Connection lost: %v. Retrying in background...", err)
	})

	client := mqtt.NewClient(co)
	token := client.Connect()
	if !token.WaitTimeout(10*time.Second) {
		return nil, nil, fmt.Errorf("mqtt connect to %s timed out", opts.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, nil, fmt.Errorf("mqtt connect to %s: %w", opts.Broker, err)
	}

	opts.TopicPrefix = prefix
	return NewMQTTUploader(client, opts), client, nil
}

// NewMQTTUploader wraps an existing client.
func NewMQTTUploader(client Publisher, opts MQTTOptions) *MQTTUploader {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	prefix := strings.TrimSuffix(opts.TopicPrefix, "/")
	if prefix == "" {
		prefix = "dmxcam"
	}
	return &MQTTUploader{client: client, broker: opts.Broker, prefix: prefix, qos: opts.QoS, timeout: timeout}
}

// Topic returns the topic a picture at remotePath is published on.
func (m *MQTTUploader) Topic(remotePath string) string {
	return m.prefix + "/pictures/" + strings.TrimPrefix(path.Clean("/"+remotePath), "/")
}

// UploadAsync publishes in a new goroutine.
func (m *MQTTUploader) UploadAsync(ctx context.Context, a Artifact, remotePath, contentType string, onStatus StatusFunc) error {
	go func() {
		total := int64(len(a.Data))
		onStatus(Event{Status: StatusInit, TotalBytes: total})

		topic := m.Topic(remotePath)
		if err := m.wait(ctx, m.client.Publish(topic, m.qos, true, a.Data)); err != nil {
			onStatus(Event{Status: StatusError, Err: fmt.Errorf("publish %s: %w", topic, err)})
			return
		}
		onStatus(Event{Status: StatusProgress, BytesSent: total, TotalBytes: total})

		md := Metadata{
			Name:        path.Base(remotePath),
			Size:        total,
			ContentType: contentType,
			URL:         "mqtt://" + strings.TrimPrefix(strings.TrimPrefix(m.broker, "tcp://"), "mqtt://") + "/" + topic,
		}
		body, err := json.Marshal(struct {
			Metadata
			Artifact   string    `json:"artifact"`
			Sequence   uint32    `json:"sequence"`
			CapturedAt time.Time `json:"captured_at"`
		}{md, a.Name, a.Sequence, a.CapturedAt})
		if err != nil {
			onStatus(Event{Status: StatusError, Err: err})
			return
		}
		if err := m.wait(ctx, m.client.Publish(topic+"/meta", m.qos, true, body)); err != nil {
			onStatus(Event{Status: StatusError, Err: fmt.Errorf("publish metadata: %w", err)})
			return
		}
		onStatus(Event{Status: StatusComplete, BytesSent: total, TotalBytes: total, Metadata: md})
	}()
	return nil
}

func (m *MQTTUploader) wait(ctx context.Context, token mqtt.Token) error {
	timer := time.NewTimer(m.timeout)
	defer timer.Stop()
	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return errors.New("timed out")
	case <-ctx.Done():
		return ctx.Err()
	}
}
