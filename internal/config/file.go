package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// FileConfig mirrors the on-disk configuration file. Zero values leave the
// corresponding default untouched.
type FileConfig struct {
	Host              string          `yaml:"host" toml:"host"`
	Port              int             `yaml:"port" toml:"port"`
	LogLevel          string          `yaml:"log_level" toml:"log_level"`
	DataDir           string          `yaml:"data_dir" toml:"data_dir"`
	AllowedOrigins    []string        `yaml:"allowed_origins" toml:"allowed_origins"`
	PreviewTTLMinutes int             `yaml:"preview_ttl_minutes" toml:"preview_ttl_minutes"`
	Storage           StorageSettings `yaml:"storage" toml:"storage"`
	Kiosk             KioskSettings   `yaml:"kiosk" toml:"kiosk"`
	MQTT              MQTTSettings    `yaml:"mqtt" toml:"mqtt"`
}

// LoadFile reads a YAML (.yaml, .yml) or TOML (.toml) configuration file.
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc FileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("unmarshal yaml: %w", err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("unmarshal toml: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file extension %q (want .yaml, .yml or .toml)", filepath.Ext(path))
	}

	return &fc, nil
}

func (c *EnvConfig) applyFile(fc *FileConfig) {
	mergeString(&c.host, fc.Host)
	if fc.Port != 0 {
		c.port = fc.Port
	}
	if fc.LogLevel != "" {
		c.logLevel = fc.LogLevel
	}
	if fc.DataDir != "" {
		c.dataDir = fc.DataDir
	}
	if len(fc.AllowedOrigins) > 0 {
		c.allowedOrigins = append([]string(nil), fc.AllowedOrigins...)
	}
	if fc.PreviewTTLMinutes != 0 {
		c.previewTTLMinutes = fc.PreviewTTLMinutes
	}

	s := fc.Storage
	if s.Backend != "" {
		c.storage.Backend = strings.ToLower(s.Backend)
	}
	mergeString(&c.storage.Bucket, s.Bucket)
	mergeString(&c.storage.Region, s.Region)
	mergeString(&c.storage.Endpoint, s.Endpoint)
	mergeString(&c.storage.PublicURL, s.PublicURL)
	c.storage.PathStyle = c.storage.PathStyle || s.PathStyle

	k := fc.Kiosk
	c.kiosk.Enabled = c.kiosk.Enabled || k.Enabled
	c.kiosk.Headless = c.kiosk.Headless || k.Headless
	c.kiosk.MockGPIO = c.kiosk.MockGPIO || k.MockGPIO
	mergeString(&c.kiosk.CameraDevice, k.CameraDevice)
	mergeString(&c.kiosk.CameraFormat, k.CameraFormat)
	mergeString(&c.kiosk.APIBaseURL, k.APIBaseURL)
	mergeInt(&c.kiosk.Shots, k.Shots)
	mergeInt(&c.kiosk.CountdownSeconds, k.CountdownSeconds)
	mergeInt(&c.kiosk.FlashMs, k.FlashMs)
	mergeInt(&c.kiosk.FrameWidth, k.FrameWidth)
	mergeInt(&c.kiosk.ButtonPin, k.ButtonPin)

	mergeString(&c.mqtt.Broker, fc.MQTT.Broker)
	mergeString(&c.mqtt.ClientID, fc.MQTT.ClientID)
	mergeString(&c.mqtt.TopicPrefix, fc.MQTT.TopicPrefix)
}

func mergeString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func mergeInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}
