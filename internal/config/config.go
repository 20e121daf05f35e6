// Package config provides configuration management for BoothBuddy.
// Configuration starts from defaults, is overlaid by an optional YAML or TOML
// file and finally by environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	// Default values
	DefaultHost     = "127.0.0.1"
	DefaultPort     = 5000
	DefaultLogLevel = "info"
	DefaultDataDir  = ".boothbuddy"
	DefaultOrigin   = "http://localhost:5173"

	// Environment variable names
	EnvConfigFile     = "BOOTH_CONFIG"
	EnvHost           = "BOOTH_HOST"
	EnvPort           = "BOOTH_PORT"
	EnvLogLevel       = "BOOTH_LOG_LEVEL"
	EnvDataDir        = "BOOTH_DATA_DIR"
	EnvAllowedOrigins = "BOOTH_ALLOWED_ORIGINS"
	EnvPreviewTTL     = "BOOTH_PREVIEW_TTL_MINUTES"

	// Storage environment variable names
	EnvStorageBackend = "BOOTH_STORAGE_BACKEND"
	EnvS3Bucket       = "BOOTH_S3_BUCKET"
	EnvS3Region       = "BOOTH_S3_REGION"
	EnvS3Endpoint     = "BOOTH_S3_ENDPOINT"
	EnvS3PublicURL    = "BOOTH_S3_PUBLIC_URL"

	// Kiosk environment variable names
	EnvKiosk        = "BOOTH_KIOSK"
	EnvHeadless     = "BOOTH_HEADLESS"
	EnvCameraDevice = "BOOTH_CAMERA_DEVICE"
	EnvCameraFormat = "BOOTH_CAMERA_FORMAT"
	EnvAPIBaseURL   = "BOOTH_API_BASE_URL"
	EnvButtonPin    = "BOOTH_BUTTON_PIN"
	EnvMockGPIO     = "BOOTH_MOCK_GPIO"

	// Notifier environment variable names
	EnvMQTTBroker = "BOOTH_MQTT_BROKER"
	EnvMQTTTopic  = "BOOTH_MQTT_TOPIC"

	// Database filename
	DBFilename = "boothbuddy.db"
	// Lock filename guarding the data directory
	LockFilename = "boothbuddy.lock"

	StorageLocal = "local"
	StorageS3    = "s3"

	// Capture defaults
	DefaultShots            = 4
	DefaultCountdownSeconds = 3
	DefaultFlashMs          = 150
	DefaultFrameWidth       = 200
	DefaultFrameHeight      = 280
	DefaultCameraDevice     = "/dev/video0"
	DefaultCameraFormat     = "v4l2"

	DefaultPreviewTTLMinutes = 60
	DefaultMQTTTopic         = "boothbuddy"
	DefaultMaxBodyBytes      = 10 * 1024 * 1024
)

// Config defines the application configuration interface
type Config interface {
	Host() string
	Port() int
	LogLevel() string
	DataDir() string
	DBPath() string
	LockPath() string
	TmpDir() string
	StripsDir() string
	AllowedOrigins() []string
	MaxBodyBytes() int64
	PreviewTTL() time.Duration
	Storage() StorageSettings
	Kiosk() KioskSettings
	MQTT() MQTTSettings
}

// StorageSettings selects and configures the strip storage backend.
type StorageSettings struct {
	Backend   string `yaml:"backend" toml:"backend"`
	Bucket    string `yaml:"bucket" toml:"bucket"`
	Region    string `yaml:"region" toml:"region"`
	Endpoint  string `yaml:"endpoint" toml:"endpoint"`
	PublicURL string `yaml:"public_url" toml:"public_url"`
	PathStyle bool   `yaml:"path_style" toml:"path_style"`
}

// KioskSettings configures the camera-owning kiosk mode.
type KioskSettings struct {
	Enabled          bool   `yaml:"enabled" toml:"enabled"`
	Headless         bool   `yaml:"headless" toml:"headless"`
	CameraDevice     string `yaml:"camera_device" toml:"camera_device"`
	CameraFormat     string `yaml:"camera_format" toml:"camera_format"`
	APIBaseURL       string `yaml:"api_base_url" toml:"api_base_url"`
	Shots            int    `yaml:"shots" toml:"shots"`
	CountdownSeconds int    `yaml:"countdown_seconds" toml:"countdown_seconds"`
	FlashMs          int    `yaml:"flash_ms" toml:"flash_ms"`
	FrameWidth       int    `yaml:"frame_width" toml:"frame_width"`
	ButtonPin        int    `yaml:"button_pin" toml:"button_pin"` // BCM numbering, 0 = no button
	MockGPIO         bool   `yaml:"mock_gpio" toml:"mock_gpio"`
}

// Countdown returns how many seconds each shot counts down from.
func (k KioskSettings) Countdown() int {
	return k.CountdownSeconds
}

// Flash returns the flash duration.
func (k KioskSettings) Flash() time.Duration {
	return time.Duration(k.FlashMs) * time.Millisecond
}

// MQTTSettings configures the optional event notifier.
type MQTTSettings struct {
	Broker      string `yaml:"broker" toml:"broker"`
	ClientID    string `yaml:"client_id" toml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix" toml:"topic_prefix"`
}

// Enabled reports whether a broker is configured.
func (m MQTTSettings) Enabled() bool {
	return m.Broker != ""
}

// EnvConfig holds the resolved configuration
type EnvConfig struct {
	host              string
	port              int
	logLevel          string
	dataDir           string
	allowedOrigins    []string
	previewTTLMinutes int
	maxBodyBytes      int64

	storage StorageSettings
	kiosk   KioskSettings
	mqtt    MQTTSettings

	file string
}

// New creates a new EnvConfig with defaults, the optional config file and
// environment variable overrides
func New() (*EnvConfig, error) {
	cfg := defaults()

	if path := os.Getenv(EnvConfigFile); path != "" {
		fc, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		cfg.applyFile(fc)
		cfg.file = path
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func defaults() *EnvConfig {
	return &EnvConfig{
		host:              DefaultHost,
		port:              DefaultPort,
		logLevel:          DefaultLogLevel,
		dataDir:           defaultDataDir(),
		allowedOrigins:    []string{DefaultOrigin},
		previewTTLMinutes: DefaultPreviewTTLMinutes,
		maxBodyBytes:      DefaultMaxBodyBytes,
		storage: StorageSettings{
			Backend: StorageLocal,
		},
		kiosk: KioskSettings{
			CameraDevice:     DefaultCameraDevice,
			CameraFormat:     DefaultCameraFormat,
			Shots:            DefaultShots,
			CountdownSeconds: DefaultCountdownSeconds,
			FlashMs:          DefaultFlashMs,
			FrameWidth:       DefaultFrameWidth,
		},
		mqtt: MQTTSettings{
			TopicPrefix: DefaultMQTTTopic,
		},
	}
}

func (c *EnvConfig) applyEnv() error {
	// Override port from environment
	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		c.port = port
	}

	setString(&c.host, EnvHost)

	if ll := os.Getenv(EnvLogLevel); ll != "" {
		c.logLevel = ll
	}

	if dd := os.Getenv(EnvDataDir); dd != "" {
		c.dataDir = dd
	}

	if origins := os.Getenv(EnvAllowedOrigins); origins != "" {
		c.allowedOrigins = splitList(origins)
	}

	if ttl := os.Getenv(EnvPreviewTTL); ttl != "" {
		minutes, err := strconv.Atoi(ttl)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvPreviewTTL, err)
		}
		c.previewTTLMinutes = minutes
	}

	if b := os.Getenv(EnvStorageBackend); b != "" {
		c.storage.Backend = strings.ToLower(b)
	}
	setString(&c.storage.Bucket, EnvS3Bucket)
	setString(&c.storage.Region, EnvS3Region)
	setString(&c.storage.Endpoint, EnvS3Endpoint)
	setString(&c.storage.PublicURL, EnvS3PublicURL)

	if err := setBool(&c.kiosk.Enabled, EnvKiosk); err != nil {
		return err
	}
	if err := setBool(&c.kiosk.Headless, EnvHeadless); err != nil {
		return err
	}
	if err := setBool(&c.kiosk.MockGPIO, EnvMockGPIO); err != nil {
		return err
	}
	setString(&c.kiosk.CameraDevice, EnvCameraDevice)
	setString(&c.kiosk.CameraFormat, EnvCameraFormat)
	setString(&c.kiosk.APIBaseURL, EnvAPIBaseURL)

	if pin := os.Getenv(EnvButtonPin); pin != "" {
		n, err := strconv.Atoi(pin)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvButtonPin, err)
		}
		c.kiosk.ButtonPin = n
	}

	setString(&c.mqtt.Broker, EnvMQTTBroker)
	setString(&c.mqtt.TopicPrefix, EnvMQTTTopic)

	return nil
}

func (c *EnvConfig) validate() error {
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port %d: port must be between 1 and 65535", c.port)
	}
	switch c.storage.Backend {
	case StorageLocal:
	case StorageS3:
		if c.storage.Bucket == "" {
			return fmt.Errorf("storage.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("unsupported storage backend %q", c.storage.Backend)
	}
	if c.kiosk.Shots < 1 {
		return fmt.Errorf("kiosk.shots must be >= 1, got %d", c.kiosk.Shots)
	}
	if c.kiosk.CountdownSeconds < 0 {
		return fmt.Errorf("kiosk.countdown_seconds must be >= 0, got %d", c.kiosk.CountdownSeconds)
	}
	if c.kiosk.FlashMs < 0 {
		return fmt.Errorf("kiosk.flash_ms must be >= 0, got %d", c.kiosk.FlashMs)
	}
	if c.kiosk.FrameWidth <= 0 {
		c.kiosk.FrameWidth = DefaultFrameWidth
	}
	if c.previewTTLMinutes <= 0 {
		c.previewTTLMinutes = DefaultPreviewTTLMinutes
	}
	return nil
}

// Host returns the interface the HTTP server binds to
func (c *EnvConfig) Host() string {
	return c.host
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

// LockPath returns the path of the data directory lock file
func (c *EnvConfig) LockPath() string {
	return filepath.Join(c.dataDir, LockFilename)
}

// TmpDir holds composed strips that have not been saved yet
func (c *EnvConfig) TmpDir() string {
	return filepath.Join(c.dataDir, "tmp")
}

// StripsDir is the root of the local storage backend
func (c *EnvConfig) StripsDir() string {
	return filepath.Join(c.dataDir, "strips")
}

func (c *EnvConfig) AllowedOrigins() []string {
	out := make([]string, len(c.allowedOrigins))
	copy(out, c.allowedOrigins)
	return out
}

func (c *EnvConfig) MaxBodyBytes() int64 {
	return c.maxBodyBytes
}

// PreviewTTL is how long an unsaved composed strip is kept
func (c *EnvConfig) PreviewTTL() time.Duration {
	return time.Duration(c.previewTTLMinutes) * time.Minute
}

func (c *EnvConfig) Storage() StorageSettings {
	return c.storage
}

func (c *EnvConfig) Kiosk() KioskSettings {
	return c.kiosk
}

func (c *EnvConfig) MQTT() MQTTSettings {
	return c.mqtt
}

// File returns the config file path that was loaded, if any
func (c *EnvConfig) File() string {
	return c.file
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

func setString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, env string) error {
	v := os.Getenv(env)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", env, err)
	}
	*dst = b
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
