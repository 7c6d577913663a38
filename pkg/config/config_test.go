package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"shutter-capture/pkg/types"
)

func write(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "shutter.yaml")
	if err := os.WriteFile(p, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoad(t *testing.T) {
	p := write(t, `
port: 8080
storage_dir: /var/lib/shutter
camera:
  devices: [/dev/video0, /dev/video2]
  pixel_format: mjpeg
  controls:
    10094850: 3000
capture:
  width: 1280
  height: 720
  min_fps: 15
  max_fps: 30
  auto_start: true
  observer_period: 10s
timelapse:
  album: garden
  interval: 5m
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != 8080 || cfg.WebdavPort != 9998 {
		t.Fatalf("unexpected ports %d %d", cfg.Port, cfg.WebdavPort)
	}
	want := types.CaptureConfig{Width: 1280, Height: 720, MinFPS: 15, MaxFPS: 30}
	if cfg.Capture.CaptureConfig != want || !cfg.Capture.AutoStart {
		t.Fatalf("unexpected capture config %+v", cfg.Capture)
	}
	if cfg.Capture.ObserverPeriod != 10*time.Second || cfg.Capture.Buffers != 3 {
		t.Fatalf("unexpected capture defaults %+v", cfg.Capture)
	}
	if len(cfg.Camera.Devices) != 2 || cfg.Camera.Controls[10094850] != 3000 {
		t.Fatalf("unexpected camera config %+v", cfg.Camera)
	}
	if cfg.Timelapse.Interval != 5*time.Minute {
		t.Fatalf("unexpected timelapse %+v", cfg.Timelapse)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Capture.Width != 640 || cfg.Capture.MaxFPS != 15 || cfg.Camera.Devices[0] != "/dev/video0" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := map[string]string{
		"pixel format": "camera:\n  pixel_format: h264\n",
		"rotation":     "camera:\n  rotation: 45\n",
		"fps range":    "capture:\n  min_fps: 30\n  max_fps: 15\n",
		"quality":      "capture:\n  jpeg_quality: 101\n",
		"timelapse":    "timelapse:\n  album: garden\n",
	}
	for name, content := range tests {
		if _, err := Load(write(t, content)); !errors.Is(err, ErrInvalid) {
			t.Errorf("%s: want ErrInvalid, got %v", name, err)
		}
	}
}
