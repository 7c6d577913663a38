package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/vincent-vinf/go-jsend"
	"go.uber.org/zap"

	"shutter-capture/pkg/camera"
	"shutter-capture/pkg/camera/fakecam"
	"shutter-capture/pkg/camera/v4l2cam"
	"shutter-capture/pkg/config"
	"shutter-capture/pkg/schedule"
	"shutter-capture/pkg/storage"
	"shutter-capture/pkg/stream"
	"shutter-capture/pkg/types"
	"shutter-capture/pkg/utils"
	"shutter-capture/pkg/utils/clock"
	"shutter-capture/pkg/video"
	"shutter-capture/pkg/webdav"
)

var (
	configPath = flag.String("config", "", "path of the yaml config file")
	port       = flag.Int("port", 0, "ui port, overrides the config")
	webdavPort = flag.Int("webdav-port", 0, "webdav port, overrides the config")
	storageDir = flag.String("dir", "", "storage directory, overrides the config")
	staticsDir = flag.String("statics", "", "directory of the web ui")
	fake       = flag.Bool("fake", false, "use synthetic cameras")

	logger *zap.SugaredLogger
)

func init() {
	logger = utils.GetLogger()
	flag.Parse()
}

// daemon holds everything the HTTP handlers work with.
type daemon struct {
	cfg        *config.Config
	controller *camera.Controller
	hub        *stream.Hub
	recorder   *video.Recorder
	scheduler  *schedule.Scheduler
	stg        *storage.Storage
	dav        *webdav.Webdav

	lastError atomic.Value
}

func main() {
	defer logger.Sync()

	cfg, err := loadConfig()
	if err != nil {
		logger.Fatal(err)
	}
	if err = utils.SetLevel(cfg.LogLevel); err != nil {
		logger.Warnf("log level %q: %s", cfg.LogLevel, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stg, err := storage.New(cfg.StorageDir)
	if err != nil {
		logger.Fatal(err)
	}
	defer stg.Close()

	hw, err := newHardware(cfg)
	if err != nil {
		logger.Fatal(err)
	}
	logger.Infof("cameras: %v", camera.DeviceNames(hw))

	d := &daemon{
		cfg: cfg,
		hub: stream.NewHub(),
		stg: stg,
		dav: webdav.New(ctx, cfg.WebdavPort, cfg.StorageDir),
	}
	defer d.hub.Close()
	d.recorder = video.NewRecorder(d.hub, cfg.Capture.JPEGQuality)
	d.scheduler = schedule.New(ctx, d.hub, cfg.Capture.JPEGQuality)

	d.controller, err = camera.New(hw, cfg.Camera.Name, d.hub,
		camera.WithBufferCount(cfg.Capture.Buffers),
		camera.WithObserverPeriod(cfg.Capture.ObserverPeriod),
		camera.WithClock(newClock(ctx, cfg.Clock)),
		camera.WithErrorHandler(d.onCameraError),
	)
	if err != nil {
		logger.Fatal(err)
	}
	defer d.controller.Close()

	if _, err = d.controller.SetDisplayRotation(ctx, cfg.Camera.Rotation); err != nil {
		logger.Fatal(err)
	}
	if cfg.Capture.AutoStart {
		if err = d.controller.StartCapture(ctx, cfg.Capture.CaptureConfig); err != nil {
			logger.Errorf("auto start: %s", err)
		}
	}
	if cfg.Timelapse.Album != "" {
		a, err := stg.GetOrCreateAlbum(cfg.Timelapse.Album)
		if err != nil {
			logger.Fatal(err)
		}
		d.scheduler.Begin(a, cfg.Timelapse.Interval)
	}
	defer func() {
		if d.recorder.Recording() {
			if _, err := d.recorder.Stop(); err != nil {
				logger.Error(err)
			}
		}
	}()

	// init gin
	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(utils.Cors(cfg.CORSOrigins...))
	if *staticsDir != "" {
		if err := registerStaticsDir(r, *staticsDir, "/"); err != nil {
			logger.Fatal(err)
		}
	}
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, jsend.SimpleErr("page not found"))
	})
	d.register(r.Group("/api"))

	if err = utils.ListenAndServe(ctx, r, cfg.Port); err != nil {
		logger.Error(err)
	}
}

func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			return nil, err
		}
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *webdavPort != 0 {
		cfg.WebdavPort = *webdavPort
	}
	if *storageDir != "" {
		cfg.StorageDir = *storageDir
	}
	if *fake {
		cfg.Camera.Fake = true
	}
	return cfg, nil
}

func newHardware(cfg *config.Config) (camera.Hardware, error) {
	if cfg.Camera.Fake {
		hw := fakecam.New()
		hw.AutoRun(cfg.Capture.MaxFPS)
		return hw, nil
	}
	format, err := config.ParsePixelFormat(cfg.Camera.PixelFormat)
	if err != nil {
		return nil, err
	}
	opts := []v4l2cam.Option{v4l2cam.WithPixelFormat(format), v4l2cam.WithControls(cfg.Camera.Controls)}
	if len(cfg.Camera.Framerates) > 0 {
		opts = append(opts, v4l2cam.WithFramerates(cfg.Camera.Framerates...))
	}
	return v4l2cam.New(cfg.Camera.Devices, opts...)
}

func newClock(ctx context.Context, cfg config.ClockConfig) clock.Clock {
	if cfg.NTPServer == "" {
		return clock.System
	}
	c := clock.NewNTP(cfg.NTPServer)
	sync := func() {
		if err := c.Sync(); err != nil {
			logger.Warnf("ntp %s: %s", cfg.NTPServer, err)
			return
		}
		logger.Infof("ntp %s: clock offset %s", cfg.NTPServer, c.Offset())
	}
	sync()
	go func() {
		t := time.NewTicker(10 * time.Minute)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				sync()
			case <-ctx.Done():
				return
			}
		}
	}()
	return c
}

func (d *daemon) onCameraError(description string) {
	d.lastError.Store(description)
}

func registerStaticsDir(group gin.IRoutes, dir, relativeGroup string) error {
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return fmt.Errorf("the specified directory %s does not exist", dir)
	}
	dir = filepath.ToSlash(filepath.Clean(dir))
	group.StaticFile(relativeGroup, filepath.Join(dir, "index.html"))
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			relativePath := path.Join(relativeGroup, strings.Replace(filepath.ToSlash(p), dir, "", 1))
			group.StaticFile(relativePath, p)
		}
		return nil
	})
}

func internalErr(c *gin.Context, err error) {
	c.JSON(http.StatusInternalServerError, jsend.SimpleErr(err.Error()))
}

// cameraErr maps controller errors onto status codes.
func cameraErr(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, camera.ErrContractViolation), errors.Is(err, camera.ErrSwitchPending):
		status = http.StatusConflict
	case errors.Is(err, types.ErrInvalidConfig), errors.Is(err, camera.ErrInvalidRotation), errors.Is(err, camera.ErrPreviewBind),
		errors.Is(err, camera.ErrSingleCamera), errors.Is(err, camera.ErrCameraNotFound):
		status = http.StatusBadRequest
	case errors.Is(err, camera.ErrAcquisition):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		status = http.StatusGatewayTimeout
	}
	c.JSON(status, jsend.SimpleErr(err.Error()))
}
