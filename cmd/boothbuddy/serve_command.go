package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/boothbuddy/boothbuddy/internal/api"
	"github.com/boothbuddy/boothbuddy/internal/booth"
	"github.com/boothbuddy/boothbuddy/internal/camera"
	"github.com/boothbuddy/boothbuddy/internal/client"
	"github.com/boothbuddy/boothbuddy/internal/config"
	"github.com/boothbuddy/boothbuddy/internal/db"
	"github.com/boothbuddy/boothbuddy/internal/gallery"
	"github.com/boothbuddy/boothbuddy/internal/kiosk"
	"github.com/boothbuddy/boothbuddy/internal/logging"
	"github.com/boothbuddy/boothbuddy/internal/notify"
	"github.com/boothbuddy/boothbuddy/internal/preview"
	"github.com/boothbuddy/boothbuddy/internal/session"
	"github.com/boothbuddy/boothbuddy/internal/storage"
	"github.com/boothbuddy/boothbuddy/internal/strip"
	"github.com/boothbuddy/boothbuddy/internal/trigger"
	"github.com/boothbuddy/boothbuddy/internal/ui"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var kioskFlag, headlessFlag bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, and the kiosk when enabled",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			opts := serveOptions{
				kiosk:    cfg.Kiosk().Enabled || kioskFlag,
				headless: cfg.Kiosk().Headless || headlessFlag,
			}
			return runServe(cfg, opts)
		},
	}

	cmd.Flags().BoolVar(&kioskFlag, "kiosk", false, "Own the camera and run the kiosk controller")
	cmd.Flags().BoolVar(&headlessFlag, "headless", false, "Do not show the system tray")
	return cmd
}

type serveOptions struct {
	kiosk    bool
	headless bool
}

func runServe(cfg *config.EnvConfig, opts serveOptions) error {
	startTime := time.Now()

	for _, dir := range []string{cfg.DataDir(), cfg.TmpDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	lock := flock.New(cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another boothbuddy instance is using %s", cfg.DataDir())
	}
	defer lock.Unlock()

	logger := logging.NewLogger(cfg.LogLevel())
	logger.Info("starting boothbuddy", "version", Version, "data_dir", cfg.DataDir(), "kiosk", opts.kiosk)

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	repo := gallery.NewRepository(database.Conn())

	authToken, err := ensureAuthToken(repo)
	if err != nil {
		return fmt.Errorf("failed to ensure auth token: %w", err)
	}

	store, local, err := newStorage(cfg)
	if err != nil {
		return err
	}

	svc := gallery.NewService(repo, store, cfg.TmpDir(), logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	janitor := gallery.NewJanitor(svc, cfg.PreviewTTL(), logger)
	go janitor.Start(ctx)

	serverCfg := api.ServerConfig{
		Host:           cfg.Host(),
		Port:           cfg.Port(),
		Gallery:        svc,
		Repository:     repo,
		Preview:        preview.NewServer(logger),
		LocalStore:     local,
		AllowedOrigins: cfg.AllowedOrigins(),
		MaxBodyBytes:   cfg.MaxBodyBytes(),
		Shots:          cfg.Kiosk().Shots,
		DecodeTimeout:  strip.DefaultDecodeTimeout,
		Logger:         logger,
		StartTime:      startTime,
		Version:        Version,
	}

	var kr *kioskRuntime
	if opts.kiosk {
		kr, err = startKiosk(ctx, cfg, authToken, logger)
		if err != nil {
			return err
		}
		defer kr.close()
		serverCfg.Kiosk = kr.ctrl
		serverCfg.Events = kr.events
	}

	printBanner(cfg, authToken, store, opts.kiosk)

	apiServer := api.NewServer(serverCfg)

	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	if kr != nil {
		go kr.warmUp(ctx)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	quitCh := make(chan struct{})
	var quitOnce sync.Once
	quit := func() { quitOnce.Do(func() { close(quitCh) }) }

	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			quit()
		case <-quitCh:
		}
	}()

	if opts.headless {
		logger.Info("running in headless mode (no system tray)")
	} else {
		trayCfg := ui.TrayConfig{
			Janitor: janitor,
			Logger:  logger,
			OnQuit:  quit,
		}
		if kr != nil {
			trayCfg.Kiosk = kr.ctrl
		}
		go ui.NewTray(trayCfg).Run()
	}

	<-quitCh

	logger.Info("initiating graceful shutdown")
	cancel()

	if kr != nil {
		// open event streams would otherwise hold Shutdown until the timeout
		kr.events.Close()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

func newStorage(cfg config.Config) (storage.Backend, *storage.LocalBackend, error) {
	s := cfg.Storage()
	switch s.Backend {
	case config.StorageS3:
		b, err := storage.NewS3Backend(storage.S3Config{
			Bucket:    s.Bucket,
			Region:    s.Region,
			Endpoint:  s.Endpoint,
			PublicURL: s.PublicURL,
			PathStyle: s.PathStyle,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize s3 storage: %w", err)
		}
		return b, nil, nil
	default:
		b, err := storage.NewLocalBackend(cfg.StripsDir(), "")
		if err != nil {
			return nil, nil, err
		}
		return b, b, nil
	}
}

// kioskRuntime owns everything the kiosk mode starts.
type kioskRuntime struct {
	ctrl     *kiosk.Controller
	events   *api.Broadcaster
	camera   *camera.FFmpegSource
	notifier notify.Notifier
	driver   trigger.Driver
	unsub    func()
	logger   *slog.Logger
}

func startKiosk(ctx context.Context, cfg *config.EnvConfig, authToken string, logger *slog.Logger) (*kioskRuntime, error) {
	k := cfg.Kiosk()
	rt := &kioskRuntime{logger: logger}

	rt.camera = camera.NewFFmpegSource(k.CameraDevice, k.CameraFormat, logger)
	if err := rt.camera.Open(ctx); err != nil {
		// capture retries Open and answers resource_unavailable until it works
		logger.Warn("camera unavailable", "device", k.CameraDevice, "error", err)
	}

	rt.notifier = notify.Nop{}
	if m := cfg.MQTT(); m.Enabled() {
		clientID := m.ClientID
		if clientID == "" {
			clientID = "boothbuddy-" + gallery.NewID()[:8]
		}
		mq := notify.NewMQTTNotifier(notify.MQTTOptions{
			Broker:      m.Broker,
			ClientID:    clientID,
			TopicPrefix: m.TopicPrefix,
		}, logger)
		if err := mq.Connect(ctx); err != nil {
			logger.Warn("mqtt notifier not connected", "broker", m.Broker, "error", err)
		}
		rt.notifier = mq
	}

	base := k.APIBaseURL
	if base == "" {
		base = localAPIURL(cfg)
	}

	rt.ctrl = kiosk.NewController(kiosk.Options{
		API:    client.NewHTTPClient(base, authToken, logger),
		Source: rt.camera,
		Sequence: booth.Options{
			Shots:         k.Shots,
			CountdownFrom: k.Countdown(),
			Tick:          booth.DefaultTick,
			Flash:         k.Flash(),
		},
		Session:    session.NewStore(),
		Notifier:   rt.notifier,
		FrameWidth: k.FrameWidth,
		Logger:     logger,
		Reopen:     rt.camera.Open,
	})

	rt.events = api.NewBroadcaster()
	rt.unsub = rt.ctrl.Subscribe(func(s kiosk.Snapshot) {
		rt.events.Broadcast(api.EventSnapshot, s)
	})

	if k.ButtonPin > 0 {
		driver, err := trigger.NewDriver(k.MockGPIO, logger)
		if err != nil {
			logger.Warn("gpio unavailable, capture button disabled", "pin", k.ButtonPin, "error", err)
		} else {
			rt.driver = driver
			btn := trigger.NewButton(driver, k.ButtonPin, rt.ctrl.StartCapture, logger)
			go func() {
				if err := btn.Run(ctx); err != nil && ctx.Err() == nil {
					logger.Error("capture button stopped", "error", err)
				}
			}()
		}
	}

	logger.Info("kiosk ready", "api", base, "shots", k.Shots, "button_pin", k.ButtonPin)
	return rt, nil
}

// warmUp fetches the filter catalog and the gallery once the API is up.
func (rt *kioskRuntime) warmUp(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	for attempt := 1; attempt <= 5; attempt++ {
		_, err := rt.ctrl.LoadFilters(ctx)
		if err == nil {
			break
		}
		rt.logger.Debug("filter catalog not loaded yet", "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
	if _, err := rt.ctrl.RefreshGallery(ctx); err != nil {
		rt.logger.Debug("initial gallery refresh failed", "error", err)
	}
}

func (rt *kioskRuntime) close() {
	rt.unsub()
	rt.ctrl.Close()
	if rt.driver != nil {
		rt.driver.Close()
	}
	if err := rt.camera.Close(); err != nil {
		rt.logger.Debug("camera close", "error", err)
	}
	rt.notifier.Close()
}

func ensureAuthToken(repo gallery.Repository) (string, error) {
	ctx := context.Background()

	existing, err := repo.GetConfig(ctx, api.AuthTokenKey)
	if err == nil && existing != "" {
		return existing, nil
	}

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", err
	}
	token := hex.EncodeToString(tokenBytes)

	if err := repo.SetConfig(ctx, api.AuthTokenKey, token); err != nil {
		return "", err
	}

	return token, nil
}

func printBanner(cfg config.Config, authToken string, store storage.Backend, kioskMode bool) {
	backend := cfg.Storage().Backend
	if _, ok := store.(*storage.LocalBackend); ok {
		backend += " (" + cfg.StripsDir() + ")"
	}

	rows := [][]string{
		{"API URL", localAPIURL(cfg)},
		{"Auth Token", authToken},
		{"Storage", backend},
		{"Kiosk", strconv.FormatBool(kioskMode)},
	}
	fmt.Println()
	fmt.Println(renderTable([]string{"BoothBuddy " + Version, ""}, rows, nil))
	fmt.Println()
}
