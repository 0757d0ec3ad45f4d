// Package config provides configuration loading for go-pitchside commands.
//
// Values come from an optional YAML file and are then overridden by
// environment variables, so a checked-in file can be tweaked per machine.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults.
const (
	DefaultServiceURL   = "http://localhost:8000"
	DefaultStreamPath   = "/pose-estimation/stream"
	DefaultUploadPath   = "/pose-estimation/upload"
	DefaultWebPort      = "8080"
	DefaultLogLevel     = "info"
	DefaultCameraDevice = "0"
)

// Environment variables.
const (
	EnvConfigFile   = "PITCHSIDE_CONFIG"
	EnvServiceURL   = "POSE_SERVICE_URL"
	EnvWebPort      = "WEB_PORT"
	EnvLogLevel     = "LOG_LEVEL"
	EnvCameraDevice = "CAMERA_DEVICE"
	EnvDialTimeout  = "POSE_DIAL_TIMEOUT"
)

// Config is the top-level configuration shared by the commands.
type Config struct {
	Service ServiceConfig `yaml:"service"`
	Web     WebConfig     `yaml:"web"`
	Camera  CameraConfig  `yaml:"camera"`
	Log     LogConfig     `yaml:"log"`
}

// ServiceConfig locates the remote pose-estimation service.
type ServiceConfig struct {
	URL         string        `yaml:"url"`
	StreamPath  string        `yaml:"stream_path"`
	UploadPath  string        `yaml:"upload_path"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// WebConfig configures the viewer server.
type WebConfig struct {
	Port      string `yaml:"port"`
	StaticDir string `yaml:"static_dir"`
}

// CameraConfig holds the preferred capture settings.
type CameraConfig struct {
	Device    string `yaml:"device"`
	Preset    string `yaml:"preset"`
	Width     int    `yaml:"width"`
	Height    int    `yaml:"height"`
	Framerate int    `yaml:"framerate"`
	Quality   int    `yaml:"quality"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Service: ServiceConfig{
			URL:         DefaultServiceURL,
			StreamPath:  DefaultStreamPath,
			UploadPath:  DefaultUploadPath,
			DialTimeout: 10 * time.Second,
		},
		Web:    WebConfig{Port: DefaultWebPort},
		Camera: CameraConfig{Device: DefaultCameraDevice},
		Log:    LogConfig{Level: DefaultLogLevel},
	}
}

// Load reads the YAML file at path (if non-empty) over the defaults and then
// applies environment overrides. When path is empty, PITCHSIDE_CONFIG is
// consulted.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvConfigFile)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvServiceURL); v != "" {
		c.Service.URL = v
	}
	if v := os.Getenv(EnvWebPort); v != "" {
		c.Web.Port = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv(EnvCameraDevice); v != "" {
		c.Camera.Device = v
	}
	if v := os.Getenv(EnvDialTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", EnvDialTimeout, err)
		}
		c.Service.DialTimeout = d
	}
	return nil
}

// SetServiceURL replaces the service URL, for command-line overrides, and
// revalidates the configuration.
func (c *Config) SetServiceURL(u string) error {
	c.Service.URL = u
	return c.Validate()
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	var errs []error

	u, err := url.Parse(c.Service.URL)
	if err != nil || u.Host == "" {
		errs = append(errs, fmt.Errorf("config: invalid service url %q", c.Service.URL))
	} else if u.Scheme != "http" && u.Scheme != "https" {
		errs = append(errs, fmt.Errorf("config: service url must be http or https, got %q", u.Scheme))
	}
	if !strings.HasPrefix(c.Service.StreamPath, "/") {
		errs = append(errs, fmt.Errorf("config: stream_path must start with /"))
	}
	if !strings.HasPrefix(c.Service.UploadPath, "/") {
		errs = append(errs, fmt.Errorf("config: upload_path must start with /"))
	}
	if c.Service.DialTimeout <= 0 {
		errs = append(errs, fmt.Errorf("config: dial_timeout must be positive"))
	}
	if _, err := strconv.Atoi(c.Web.Port); err != nil {
		errs = append(errs, fmt.Errorf("config: invalid web port %q", c.Web.Port))
	}

	return errors.Join(errs...)
}

// StreamURL returns the websocket URL of the streaming endpoint, derived
// from the HTTP service URL.
func (s ServiceConfig) StreamURL() string {
	u, err := url.Parse(s.URL)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + s.StreamPath
	return u.String()
}

// UploadURL returns the HTTP URL of the upload endpoint.
func (s ServiceConfig) UploadURL() string {
	return strings.TrimSuffix(s.URL, "/") + s.UploadPath
}
