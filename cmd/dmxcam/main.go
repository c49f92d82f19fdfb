// Command dmxcam runs the DMX-controlled camera: it listens for the fixture
// on a DMX bus, applies image settings, drives the indicator output and
// stores (and optionally uploads) a picture whenever the picture channel
// changes.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/dmxcam/internal/api"
	"github.com/banshee-data/dmxcam/internal/config"
	"github.com/banshee-data/dmxcam/internal/db"
	"github.com/banshee-data/dmxcam/internal/monitoring"
	"github.com/banshee-data/dmxcam/internal/version"
)

var (
	configPath  = flag.String("config", "", "Path to JSON configuration file (default: "+config.DefaultConfigPath+" when present)")
	listen      = flag.String("listen", ":8080", "HTTP listen address for the status API; empty disables it")
	port        = flag.String("port", "", "Serial port of the DMX widget (overrides serial_port)")
	source      = flag.String("source", "", "Frame source: serial, artnet or pcap (overrides source)")
	dbPath      = flag.String("db-path", "dmxcam.db", "Path to the SQLite database")
	debug       = flag.Bool("debug", false, "Enable debug logging")
	devMode     = flag.Bool("dev", false, "Run without camera or indicator hardware")
	envFile     = flag.String("env-file", ".env", "Optional dotenv file with upload secrets")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	if flag.Arg(0) == "migrate" {
		if err := db.RunMigrateCommand(flag.Args()[1:], *dbPath, os.Stdout); err != nil {
			log.Printf("migrate: %v", err)
			os.Exit(1)
		}
		return
	}

	if err := run(); err != nil {
		log.Printf("dmxcam: %v", err)
		os.Exit(1)
	}
}

func run() error {
	monitoring.SetDebug(*debug || *devMode)
	log.Printf("starting %s", version.String())

	if err := loadEnv(*envFile); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	applyFlagOverrides(cfg, *source, *port)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := build(ctx, cfg, buildOptions{DBPath: *dbPath, Dev: *devMode, Secrets: secretsFromEnv()})
	if err != nil {
		return err
	}
	defer app.Close()

	g, gctx := errgroup.WithContext(ctx)

	// The control loop ends the process on a fatal error; the HTTP server
	// is shut down with it.
	g.Go(func() error {
		err := app.Controller.Run(gctx)
		if err != nil {
			return fmt.Errorf("controller stopped: %w", err)
		}
		return errShutdown
	})

	if *listen != "" {
		g.Go(func() error { return serve(gctx, *listen, app) })
	}

	err = g.Wait()
	if errors.Is(err, errShutdown) {
		err = nil
	}
	app.Wait()
	if err == nil {
		log.Printf("graceful shutdown complete")
	}
	return err
}

// errShutdown stops the group when the controller returns cleanly.
var errShutdown = errors.New("shutdown")

func loadEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	monitoring.Debugf("loaded environment from %s", path)
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		if _, err := os.Stat(config.DefaultConfigPath); err != nil {
			log.Printf("no config file, using defaults")
			return &config.Config{}, nil
		}
		path = config.DefaultConfigPath
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	log.Printf("loaded config from %s", path)
	return cfg, nil
}

func applyFlagOverrides(cfg *config.Config, source, port string) {
	if source != "" {
		cfg.Source = &source
	}
	if port != "" {
		cfg.SerialPort = &port
	}
}

func serve(ctx context.Context, addr string, app *App) error {
	mux := app.API.ServeMux()
	app.API.AttachAdminRoutes(mux)
	if app.DB != nil {
		app.DB.AttachAdminRoutes(mux)
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           api.LoggingMiddleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Printf("HTTP server listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- fmt.Errorf("http server: %w", err)
			return
		}
		errc <- nil
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	log.Println("shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		_ = server.Close()
	}
	<-errc
	log.Printf("HTTP server routine stopped")
	return nil
}
