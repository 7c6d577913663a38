package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"shutter-capture/pkg/camera"
	"shutter-capture/pkg/framepool"
	"shutter-capture/pkg/types"
)

var ErrInvalid = errors.New("invalid configuration")

// Config is the shutterd configuration file.
type Config struct {
	Port       int    `yaml:"port"`
	WebdavPort int    `yaml:"webdav_port"`
	StorageDir string `yaml:"storage_dir"`
	LogLevel   string `yaml:"log_level"`
	// CORSOrigins restricts the web ui origins; empty allows any.
	CORSOrigins []string `yaml:"cors_origins"`

	Camera    CameraConfig    `yaml:"camera"`
	Capture   CaptureConfig   `yaml:"capture"`
	Clock     ClockConfig     `yaml:"clock"`
	Timelapse TimelapseConfig `yaml:"timelapse"`
}

type CameraConfig struct {
	// Fake serves synthetic frames instead of opening devices.
	Fake        bool             `yaml:"fake"`
	Devices     []string         `yaml:"devices"`
	Name        string           `yaml:"name"`
	PixelFormat string           `yaml:"pixel_format"` // yuyv, mjpeg, rgb24
	Framerates  []int            `yaml:"framerates"`
	Controls    map[uint32]int32 `yaml:"controls"`
	Rotation    int              `yaml:"rotation"`
}

type CaptureConfig struct {
	types.CaptureConfig `yaml:",inline"`

	AutoStart      bool          `yaml:"auto_start"`
	Buffers        int           `yaml:"buffers"`
	ObserverPeriod time.Duration `yaml:"observer_period"`
	JPEGQuality    int           `yaml:"jpeg_quality"`
}

type ClockConfig struct {
	// NTPServer enables NTP-corrected frame timestamps when set.
	NTPServer string `yaml:"ntp_server"`
}

type TimelapseConfig struct {
	Album    string        `yaml:"album"`
	Interval time.Duration `yaml:"interval"`
}

func Default() *Config {
	cfg := &Config{}
	_ = Validate(cfg)
	return cfg
}

// Load reads and validates a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate fills defaults and rejects values the daemon can not run with.
func Validate(cfg *Config) error {
	if cfg.Port == 0 {
		cfg.Port = 9999
	}
	if cfg.WebdavPort == 0 {
		cfg.WebdavPort = 9998
	}
	if cfg.StorageDir == "" {
		cfg.StorageDir = "./shutter"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	cam := &cfg.Camera
	if len(cam.Devices) == 0 {
		cam.Devices = []string{camera.DefaultDevice}
	}
	if cam.PixelFormat == "" {
		cam.PixelFormat = "yuyv"
	}
	if _, err := ParsePixelFormat(cam.PixelFormat); err != nil {
		return err
	}
	if !camera.ValidRotation(cam.Rotation) {
		return fmt.Errorf("%w: camera.rotation %d", ErrInvalid, cam.Rotation)
	}

	c := &cfg.Capture
	if c.Width == 0 && c.Height == 0 {
		c.Width, c.Height = 640, 480
	}
	if c.MaxFPS == 0 {
		c.MaxFPS = camera.DefaultFPS
	}
	if err := c.CaptureConfig.Validate(); err != nil {
		return fmt.Errorf("%w: capture: %w", ErrInvalid, err)
	}
	if c.Buffers == 0 {
		c.Buffers = framepool.DefaultCapacity
	}
	if c.Buffers < 1 {
		return fmt.Errorf("%w: capture.buffers %d", ErrInvalid, c.Buffers)
	}
	if c.ObserverPeriod == 0 {
		c.ObserverPeriod = camera.DefaultObserverPeriod
	}
	if c.JPEGQuality == 0 {
		c.JPEGQuality = 90
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return fmt.Errorf("%w: capture.jpeg_quality %d", ErrInvalid, c.JPEGQuality)
	}

	if cfg.Timelapse.Album != "" && cfg.Timelapse.Interval <= 0 {
		return fmt.Errorf("%w: timelapse.interval must be set with timelapse.album", ErrInvalid)
	}

	return nil
}

func ParsePixelFormat(s string) (types.PixelFormat, error) {
	switch s {
	case "yuyv":
		return types.PixelFmtYUYV, nil
	case "mjpeg":
		return types.PixelFmtMJPEG, nil
	case "rgb24":
		return types.PixelFmtRGB24, nil
	case "nv21":
		return types.PixelFmtNV21, nil
	}
	return 0, fmt.Errorf("%w: pixel format %q", ErrInvalid, s)
}
