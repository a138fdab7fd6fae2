package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sweeney/weatherstation/internal/config"
	"github.com/sweeney/weatherstation/internal/gpio"
	"github.com/sweeney/weatherstation/internal/ingest"
	"github.com/sweeney/weatherstation/internal/metrics"
	"github.com/sweeney/weatherstation/internal/mqtt"
	"github.com/sweeney/weatherstation/internal/status"
	"github.com/sweeney/weatherstation/internal/store"
	"github.com/sweeney/weatherstation/internal/sun"
	"github.com/sweeney/weatherstation/internal/web"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the ingestion daemon and web server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, zone, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer logger.Sync()

			return run(cmd.Context(), cfg, zone, logger)
		},
	}
}

func run(ctx context.Context, cfg *config.Config, zone *time.Location, logger *zap.Logger) error {
	cfg.PrintConfig(logger)

	s, err := store.Open(ctx, cfg.Storage.Driver, cfg.Storage.DSN)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer s.Close()

	client := mqtt.NewRealClient(mqtt.Options{
		Broker:         cfg.MQTT.Broker,
		ConnectTimeout: cfg.MQTT.ConnectTimeout,
		KeepAlive:      cfg.MQTT.KeepAlive,
		ClientIDPrefix: cfg.MQTT.ClientIDPrefix,
	}, logger.Named("mqtt"))

	d, err := newDaemon(cfg, zone, client, s, logger)
	if err != nil {
		return err
	}

	if cfg.LED.Pin > 0 {
		led, err := gpio.NewRealLED(cfg.LED.Chip, cfg.LED.Pin)
		if err != nil {
			logger.Warn("connection LED disabled", zap.Error(err))
		} else {
			defer led.Close()
			d.led = led
		}
	}

	ln, err := net.Listen("tcp", cfg.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.HTTP.Addr, err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	return d.runLoop(ctx, ln, sigCh)
}

// daemon owns the long-running components of the serve command.
type daemon struct {
	tracker   *status.Tracker
	refresher *status.Refresher
	engine    *ingest.Engine
	server    *web.Server
	cron      *cron.Cron
	led       gpio.LED
	log       *zap.Logger
}

func newDaemon(cfg *config.Config, zone *time.Location, client mqtt.Client, s store.Store, logger *zap.Logger) (*daemon, error) {
	topics := cfg.Topics()

	tracker := status.NewTracker(time.Now(), status.Config{
		Broker: cfg.MQTT.Broker,
		Topics: topics.List(),
		Zone:   zone,
	})

	calc := sun.NewCalculator(cfg.Station.Latitude, cfg.Station.Longitude, zone)
	refresher := status.NewRefresher(tracker, s, calc, cfg.Station.Window, logger.Named("refresh"))

	c := cron.New(cron.WithLocation(zone))
	if _, err := c.AddFunc(cfg.Station.RefreshSchedule, refresher.Run); err != nil {
		return nil, fmt.Errorf("schedule refresh %q: %w", cfg.Station.RefreshSchedule, err)
	}

	m := metrics.New()
	engine := ingest.New(ingest.Config{
		Topics:         topics,
		SaveInterval:   cfg.Station.SaveInterval,
		ReconnectDelay: cfg.MQTT.ReconnectDelay,
	}, client, s, tracker, refresher, m, logger.Named("ingest"))

	server := web.New(cfg.HTTP.Addr, tracker, web.Deps{
		Store:          s,
		Intents:        engine,
		Metrics:        m.Handler(),
		Window:         cfg.Station.Window,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		Logger:         logger.Named("web"),
	})

	return &daemon{
		tracker:   tracker,
		refresher: refresher,
		engine:    engine,
		server:    server,
		cron:      c,
		log:       logger,
	}, nil
}

// runLoop starts every component, connects to the broker and blocks until
// a signal arrives, ctx is cancelled or the HTTP server fails. A failed
// initial connect is logged; the user can retry from the web page.
func (d *daemon) runLoop(ctx context.Context, ln net.Listener, sig <-chan os.Signal) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	engineDone := make(chan struct{})
	go func() {
		defer close(engineDone)
		if err := d.engine.Run(ctx); err != nil {
			d.log.Error("ingest engine", zap.Error(err))
		}
	}()

	serverErr := make(chan error, 1)
	go func() {
		if err := d.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()
	d.log.Info("http server listening", zap.String("addr", ln.Addr().String()))

	if d.led != nil {
		snaps, unsubscribe := d.tracker.Subscribe()
		defer unsubscribe()
		go gpio.Follow(ctx, d.led, snaps, d.log.Named("led"))
	}

	d.refresher.Run()
	d.cron.Start()

	if err := d.engine.Connect(ctx); err != nil {
		d.log.Warn("initial connect failed", zap.Error(err))
	}

	var err error
	select {
	case s := <-sig:
		d.log.Info("shutting down", zap.String("signal", s.String()))
	case <-ctx.Done():
		d.log.Info("shutting down", zap.Error(ctx.Err()))
	case err = <-serverErr:
		d.log.Error("http server failed", zap.Error(err))
		err = fmt.Errorf("http server: %w", err)
	}

	<-d.cron.Stop().Done()
	d.engine.Disconnect()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if serr := d.server.Shutdown(shutdownCtx); serr != nil {
		d.log.Warn("http shutdown", zap.Error(serr))
	}

	cancel()
	<-engineDone
	return err
}
