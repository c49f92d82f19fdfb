package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/banshee-data/dmxcam/internal/api"
	"github.com/banshee-data/dmxcam/internal/capture"
	"github.com/banshee-data/dmxcam/internal/config"
	"github.com/banshee-data/dmxcam/internal/controller"
	"github.com/banshee-data/dmxcam/internal/counter"
	"github.com/banshee-data/dmxcam/internal/db"
	"github.com/banshee-data/dmxcam/internal/dmx"
	"github.com/banshee-data/dmxcam/internal/fixture"
	"github.com/banshee-data/dmxcam/internal/imaging"
	"github.com/banshee-data/dmxcam/internal/monitoring"
	"github.com/banshee-data/dmxcam/internal/output"
	"github.com/banshee-data/dmxcam/internal/storage"
	"github.com/banshee-data/dmxcam/internal/timeutil"
	"github.com/banshee-data/dmxcam/internal/upload"
)

// Environment variables holding upload credentials.
const (
	envUploadToken   = "DMXCAM_UPLOAD_TOKEN"
	envMQTTPassword  = "DMXCAM_MQTT_PASSWORD"
	envRedisPassword = "DMXCAM_REDIS_PASSWORD"
)

// Secrets are credentials kept out of the config file.
type Secrets struct {
	UploadToken   string
	MQTTPassword  string
	RedisPassword string
}

func secretsFromEnv() Secrets {
	return Secrets{
		UploadToken:   os.Getenv(envUploadToken),
		MQTTPassword:  os.Getenv(envMQTTPassword),
		RedisPassword: os.Getenv(envRedisPassword),
	}
}

type buildOptions struct {
	DBPath string
	// Dev replaces the camera with the configured sample image and the
	// indicator with a no-op.
	Dev     bool
	Secrets Secrets

	// Source, when set, is used instead of opening the configured one.
	Source dmx.Source
	// PictureFS overrides the OS filesystem for stored pictures.
	PictureFS storage.FileSystem
}

// App is the wired controller and its observers.
type App struct {
	Controller *controller.Controller
	API        *api.Server
	DB         *db.DB
	Frames     *api.FrameHub

	closers []func() error
	waiters []func()
}

// Wait blocks until background uploads have finished.
func (a *App) Wait() {
	for _, w := range a.waiters {
		w()
	}
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Printf("close: %v", err)
		}
	}
	a.closers = nil
}

func build(ctx context.Context, cfg *config.Config, opts buildOptions) (_ *App, err error) {
	app := &App{}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	clock := timeutil.RealClock{}

	database, err := db.Open(opts.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	app.DB = database
	app.closers = append(app.closers, database.Close)

	decoder, err := fixture.NewDecoder(cfg.GetFixtureStartChannel(),
		fixture.WithLegacyContrastCopy(cfg.GetLegacyContrastCopy()))
	if err != nil {
		return nil, err
	}

	src := opts.Source
	if src == nil {
		if src, err = openSource(cfg); err != nil {
			return nil, err
		}
	}
	app.closers = append(app.closers, src.Close)

	sensor, err := openSensor(cfg, opts.Dev)
	if err != nil {
		return nil, err
	}

	indicator, closeIndicator, err := openIndicator(cfg, opts.Dev)
	if err != nil {
		return nil, err
	}
	if closeIndicator != nil {
		app.closers = append(app.closers, closeIndicator)
	}

	var guard *upload.Guard
	uploader, closeUploader, err := openUploader(ctx, cfg, opts.Secrets)
	if err != nil {
		return nil, err
	}
	if closeUploader != nil {
		app.closers = append(app.closers, closeUploader)
	}
	if uploader != nil {
		guard = upload.NewGuard(uploader, upload.GuardOptions{
			RemotePath:             cfg.GetRemotePath(),
			SingleUploadPerSession: cfg.GetSingleUploadPerSession(),
			Log:                    database,
			Clock:                  clock,
		})
		if w, ok := uploader.(interface{ Wait() }); ok {
			app.waiters = append(app.waiters, w.Wait)
		}
	}

	fsys := opts.PictureFS
	if fsys == nil {
		fsys = storage.OSFileSystem{}
	}
	pictures := storage.New(fsys, cfg.GetPictureDir())

	capOpts := capture.Options{
		StartChannel: decoder.StartChannel(),
		WarmupFrames: cfg.GetWarmupFrames(),
		Log:          database,
		Clock:        clock,
	}
	if guard != nil {
		capOpts.Uploads = guard
	}
	pipeline := capture.NewPipeline(sensor, pictures, counter.New(database.CounterStore()), capOpts)

	stats := dmx.NewFrameStats(clock)
	app.Frames = api.NewFrameHub(api.DefaultHistory)
	app.Controller = controller.New(src, decoder, sensor, indicator, pipeline, controller.Options{
		ReceiveTimeout: cfg.GetReceiveTimeout(),
		IdleLogEvery:   cfg.GetIdleLogEvery(),
		Stats:          stats,
		Clock:          clock,
		OnFrame:        app.Frames.Publish,
	})

	app.API = &api.Server{
		Controller: app.Controller,
		Bus:        stats,
		History:    database,
		Pictures:   pictures,
		Frames:     app.Frames,
	}
	if guard != nil {
		app.API.Uploads = guard
	}
	app.closers = append(app.closers, func() error { app.Frames.Close(); return nil })

	log.Printf("fixture at DMX channel %d, pictures in %s", decoder.StartChannel(), pictures.Root())
	return app, nil
}

func openSource(cfg *config.Config) (dmx.Source, error) {
	switch cfg.GetSource() {
	case config.SourceArtNet:
		src, err := dmx.ListenArtNet(cfg.GetArtNetListen(), cfg.GetArtNetUniverse())
		if err != nil {
			return nil, err
		}
		log.Printf("listening for Art-Net universe %d on %s", cfg.GetArtNetUniverse(), cfg.GetArtNetListen())
		return src, nil
	case config.SourcePCAP:
		src, err := dmx.OpenReplay(cfg.GetPCAPFile(), dmx.ArtNetPort, cfg.GetArtNetUniverse(), cfg.GetPCAPRealtime())
		if err != nil {
			return nil, err
		}
		log.Printf("replaying Art-Net from %s", cfg.GetPCAPFile())
		return src, nil
	default:
		src, err := dmx.OpenSerialSource(cfg.GetSerialPort(), cfg.GetSerialOptions())
		if err != nil {
			return nil, err
		}
		log.Printf("DMX widget on %s", cfg.GetSerialPort())
		return src, nil
	}
}

func openSensor(cfg *config.Config, dev bool) (imaging.Sensor, error) {
	if dev || cfg.GetSensor() == config.SensorFile {
		path := cfg.GetSampleImage()
		if path == "" {
			return nil, fmt.Errorf("sample_image is required for the file sensor")
		}
		log.Printf("using sample image %s as camera", filepath.Clean(path))
		return imaging.NewFileSensor(path), nil
	}
	s := imaging.NewCommandSensor(cfg.GetSensorCommand(), cfg.SensorArgs...)
	if err := s.Check(); err != nil {
		return nil, err
	}
	return s, nil
}

func openIndicator(cfg *config.Config, dev bool) (output.Indicator, func() error, error) {
	if dev {
		return &output.Noop{}, nil, nil
	}
	switch cfg.GetIndicator() {
	case config.IndicatorGPIO:
		g, err := output.OpenGPIO(cfg.GetGPIORoot(), cfg.GetGPIOPin())
		if err != nil {
			return nil, nil, err
		}
		return g, nil, nil
	case config.IndicatorSerial:
		s, err := output.OpenSerialLine(cfg.GetIndicatorSerialPort(), output.Line(cfg.GetIndicatorLine()))
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return &output.Noop{}, nil, nil
	}
}

func openUploader(ctx context.Context, cfg *config.Config, secrets Secrets) (upload.Uploader, func() error, error) {
	switch cfg.GetUploader() {
	case config.UploaderHTTP:
		u, err := upload.NewHTTPUploader(cfg.GetUploadURL(), secrets.UploadToken)
		if err != nil {
			return nil, nil, err
		}
		return u, nil, nil
	case config.UploaderMQTT:
		u, client, err := upload.DialMQTT(upload.MQTTOptions{
			Broker:      cfg.GetMQTTBroker(),
			ClientID:    cfg.GetMQTTClientID(),
			Username:    cfg.GetMQTTUsername(),
			Password:    secrets.MQTTPassword,
			TopicPrefix: cfg.GetMQTTTopicPrefix(),
			QoS:         1,
		})
		if err != nil {
			return nil, nil, err
		}
		return u, func() error { client.Disconnect(250); return nil }, nil
	case config.UploaderRedis:
		u, client, err := upload.DialRedis(ctx, upload.RedisOptions{
			Addr:      cfg.GetRedisAddr(),
			Password:  secrets.RedisPassword,
			DB:        cfg.GetRedisDB(),
			KeyPrefix: cfg.GetRedisKeyPrefix(),
			Channel:   cfg.GetRedisChannel(),
			TTL:       cfg.GetRedisTTL(),
		})
		if err != nil {
			return nil, nil, err
		}
		return u, client.Close, nil
	default:
		monitoring.Debugf("uploads disabled")
		return nil, nil, nil
	}
}
