package upload

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOptions configures the Redis uploader.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	// KeyPrefix namespaces stored pictures.
	KeyPrefix string
	// Channel receives a JSON notification for each stored picture.
	Channel string
	// TTL expires stored pictures; zero keeps them.
	TTL time.Duration
}

// RedisClient is the part of *redis.Client the uploader needs.
type RedisClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisUploader stores pictures as Redis strings and announces them on a
// pub/sub channel.
type RedisUploader struct {
	client RedisClient
	opts   RedisOptions
}

// DialRedis connects and pings the server.
func DialRedis(ctx context.Context, opts RedisOptions) (*RedisUploader, *redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 10 * time.Second,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisUploader(rdb, opts), rdb, nil
}

// NewRedisUploader wraps an existing client.
func NewRedisUploader(client RedisClient, opts RedisOptions) *RedisUploader {
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = "dmxcam"
	}
	if opts.Channel == "" {
		opts.Channel = opts.KeyPrefix + ":uploads"
	}
	return &RedisUploader{client: client, opts: opts}
}

// Key returns the key a picture at remotePath is stored under.
func (r *RedisUploader) Key(remotePath string) string {
	return r.opts.KeyPrefix + ":" + strings.TrimPrefix(remotePath, "/")
}

// UploadAsync writes in a new goroutine.
func (r *RedisUploader) UploadAsync(ctx context.Context, a Artifact, remotePath, contentType string, onStatus StatusFunc) error {
	go func() {
		total := int64(len(a.Data))
		onStatus(Event{Status: StatusInit, TotalBytes: total})

		key := r.Key(remotePath)
		if err := r.client.Set(ctx, key, a.Data, r.opts.TTL).Err(); err != nil {
			onStatus(Event{Status: StatusError, Err: fmt.Errorf("SET %s: %w", key, err)})
			return
		}
		onStatus(Event{Status: StatusProgress, BytesSent: total, TotalBytes: total})

		md := Metadata{
			Name:        a.Name,
			Size:        total,
			ContentType: contentType,
			URL:         "redis://" + r.opts.Addr + "/" + key,
		}
		body, err := json.Marshal(md)
		if err == nil {
			err = r.client.Publish(ctx, r.opts.Channel, body).Err()
		}
		if err != nil {
			onStatus(Event{Status: StatusError, Err: fmt.Errorf("PUBLISH %s: %w", r.opts.Channel, err)})
			return
		}
		onStatus(Event{Status: StatusComplete, BytesSent: total, TotalBytes: total, Metadata: md})
	}()
	return nil
}
