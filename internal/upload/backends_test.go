package upload

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type doneToken struct {
	err  error
	done chan struct{}
}

func newDoneToken(err error) *doneToken {
	ch := make(chan struct{})
	close(ch)
	return &doneToken{err: err, done: ch}
}

func (t *doneToken) Wait() bool                     { return true }
func (t *doneToken) WaitTimeout(time.Duration) bool { return true }
func (t *doneToken) Done() <-chan struct{}          { return t.done }
func (t *doneToken) Error() error                   { return t.err }

type fakePublisher struct {
	mu       sync.Mutex
	topics   []string
	payloads []interface{}
	failOn   string
}

func (f *fakePublisher) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topics = append(f.topics, topic)
	f.payloads = append(f.payloads, payload)
	if topic == f.failOn {
		return newDoneToken(errors.New("not authorized"))
	}
	return newDoneToken(nil)
}

func TestMQTTUploader(t *testing.T) {
	pub := &fakePublisher{}
	up := NewMQTTUploader(pub, MQTTOptions{Broker: "tcp://broker:1883", TopicPrefix: "studio/cam1/"})

	sink := newEventSink()
	a := Artifact{Name: "dmx_channel_100_7.jpg", Sequence: 7, Data: []byte{9, 9}}
	require.NoError(t, up.UploadAsync(context.Background(), a, "/data/photo.jpg", ContentTypeJPEG, sink.onStatus))
	<-sink.done

	pub.mu.Lock()
	defer pub.mu.Unlock()
	assert.Equal(t, []string{"studio/cam1/pictures/data/photo.jpg", "studio/cam1/pictures/data/photo.jpg/meta"}, pub.topics)
	assert.Equal(t, []byte{9, 9}, pub.payloads[0])

	var meta map[string]interface{}
	require.NoError(t, json.Unmarshal(pub.payloads[1].([]byte), &meta))
	assert.Equal(t, "dmx_channel_100_7.jpg", meta["artifact"])
	assert.Equal(t, float64(7), meta["sequence"])

	last := sink.last()
	assert.Equal(t, StatusComplete, last.Status)
	assert.Equal(t, "mqtt://broker:1883/studio/cam1/pictures/data/photo.jpg", last.Metadata.URL)
}

func TestMQTTUploader_PublishError(t *testing.T) {
	pub := &fakePublisher{failOn: "dmxcam/pictures/photo.jpg"}
	up := NewMQTTUploader(pub, MQTTOptions{})

	sink := newEventSink()
	require.NoError(t, up.UploadAsync(context.Background(), Artifact{Name: "a", Data: []byte{1}}, "photo.jpg", ContentTypeJPEG, sink.onStatus))
	<-sink.done
	assert.Equal(t, StatusError, sink.last().Status)
	assert.ErrorContains(t, sink.last().Err, "not authorized")
}

type fakeRedis struct {
	mu        sync.Mutex
	sets      map[string]interface{}
	published []interface{}
	setErr    error
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return redis.NewStatusResult("", f.setErr)
	}
	if f.sets == nil {
		f.sets = make(map[string]interface{})
	}
	f.sets[key] = value
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, message)
	return redis.NewIntResult(1, nil)
}

func TestRedisUploader(t *testing.T) {
	rdb := &fakeRedis{}
	up := NewRedisUploader(rdb, RedisOptions{Addr: "redis:6379"})

	sink := newEventSink()
	require.NoError(t, up.UploadAsync(context.Background(), Artifact{Name: "p.jpg", Data: []byte{1, 2}}, "/data/photo.jpg", ContentTypeJPEG, sink.onStatus))
	<-sink.done

	rdb.mu.Lock()
	defer rdb.mu.Unlock()
	assert.Equal(t, []byte{1, 2}, rdb.sets["dmxcam:data/photo.jpg"])
	require.Len(t, rdb.published, 1)

	var md Metadata
	require.NoError(t, json.Unmarshal(rdb.published[0].([]byte), &md))
	assert.Equal(t, "p.jpg", md.Name)
	assert.Equal(t, "redis://redis:6379/dmxcam:data/photo.jpg", md.URL)
	assert.Equal(t, StatusComplete, sink.last().Status)
}

func TestRedisUploader_SetError(t *testing.T) {
	up := NewRedisUploader(&fakeRedis{setErr: errors.New("OOM")}, RedisOptions{})

	sink := newEventSink()
	require.NoError(t, up.UploadAsync(context.Background(), Artifact{Name: "p.jpg", Data: []byte{1}}, "x", ContentTypeJPEG, sink.onStatus))
	<-sink.done
	assert.Equal(t, StatusError, sink.last().Status)
}
