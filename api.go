package main

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/vincent-vinf/go-jsend"

	"shutter-capture/pkg/camera"
	"shutter-capture/pkg/ov"
	"shutter-capture/pkg/storage"
	"shutter-capture/pkg/storage/album"
	"shutter-capture/pkg/storage/consts"
	"shutter-capture/pkg/utils"
	"shutter-capture/pkg/utils/image"
	"shutter-capture/pkg/utils/ps"
	"shutter-capture/pkg/video"
	"shutter-capture/pkg/webdav"
)

const (
	opStart    = "start"
	opShutdown = "shutdown"

	cameraTimeout = 5 * time.Second
)

var (
	targetsLock sync.Mutex
	targets     = map[string]*camera.HeadlessTarget{}
)

func (d *daemon) register(apiRouter *gin.RouterGroup) {
	captureRouter := apiRouter.Group("/capture")
	captureRouter.POST("/start", d.startCapture)
	captureRouter.POST("/stop", d.stopCapture)
	captureRouter.PUT("/format", d.changeFormat)
	captureRouter.PUT("/output", d.requestOutputFormat)
	captureRouter.POST("/switch", d.switchCamera)
	captureRouter.PUT("/rotation", d.setRotation)
	captureRouter.PUT("/preview", d.attachPreview)
	captureRouter.DELETE("/preview", d.detachPreview)
	captureRouter.GET("/status", d.captureStatus)
	captureRouter.GET("/formats", d.supportedFormats)
	captureRouter.PUT("/record", d.ctlRecord)
	captureRouter.POST("/snapshot", d.snapshot)

	deviceRouter := apiRouter.Group("/device")
	deviceRouter.GET("/realtime/video", d.realtimeVideo)
	deviceRouter.GET("/stats", d.deviceStats)
	deviceRouter.PUT("/webdav", d.ctlWebdav)

	apiRouter.PUT("/timelapse", d.ctlTimelapse)

	albumRouter := apiRouter.Group("/album")
	albumRouter.GET("", d.listAlbum)
	albumRouter.GET("/:name", d.getAlbum)
	albumRouter.POST("", d.createAlbum)
	albumRouter.DELETE("/:name", d.deleteAlbum)
	albumRouter.GET("/:name/images", d.listImages)
	albumRouter.GET("/:name/images/:image", d.getImage)
}

func cameraCtx(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), cameraTimeout)
}

func (d *daemon) startCapture(c *gin.Context) {
	var f ov.Format
	if err := c.Bind(&f); err != nil {
		return
	}
	ctx, cancel := cameraCtx(c)
	defer cancel()
	if err := d.controller.StartCapture(ctx, f.CaptureConfig()); err != nil {
		cameraErr(c, err)
		return
	}

	c.JSON(http.StatusOK, jsend.Success(f))
}

func (d *daemon) stopCapture(c *gin.Context) {
	ctx, cancel := cameraCtx(c)
	defer cancel()
	if err := d.controller.StopCapture(ctx); err != nil {
		cameraErr(c, err)
		return
	}

	c.JSON(http.StatusOK, jsend.Success(nil))
}

func (d *daemon) changeFormat(c *gin.Context) {
	var f ov.Format
	if err := c.Bind(&f); err != nil {
		return
	}
	ctx, cancel := cameraCtx(c)
	defer cancel()
	if err := d.controller.ChangeCaptureFormat(ctx, f.CaptureConfig()); err != nil {
		cameraErr(c, err)
		return
	}

	c.JSON(http.StatusOK, jsend.Success(f))
}

func (d *daemon) requestOutputFormat(c *gin.Context) {
	var f ov.OutputFormat
	if err := c.Bind(&f); err != nil {
		return
	}
	ctx, cancel := cameraCtx(c)
	defer cancel()
	if err := d.controller.RequestOutputFormat(ctx, f.Width, f.Height, f.FPS); err != nil {
		cameraErr(c, err)
		return
	}

	c.JSON(http.StatusOK, jsend.Success(f))
}

func (d *daemon) switchCamera(c *gin.Context) {
	ctx, cancel := cameraCtx(c)
	defer cancel()
	desc, err := d.controller.SwitchCamera(ctx)
	if err != nil {
		cameraErr(c, err)
		return
	}

	c.JSON(http.StatusOK, jsend.Success(desc))
}

func (d *daemon) setRotation(c *gin.Context) {
	var r ov.Rotation
	if err := c.Bind(&r); err != nil {
		return
	}
	ctx, cancel := cameraCtx(c)
	defer cancel()
	preview, err := d.controller.SetDisplayRotation(ctx, *r.Degrees)
	if err != nil {
		cameraErr(c, err)
		return
	}

	c.JSON(http.StatusOK, jsend.Success(gin.H{"display": *r.Degrees, "preview": preview}))
}

// attachPreview binds a named headless surface, creating it on first use.
func (d *daemon) attachPreview(c *gin.Context) {
	var p ov.Preview
	if err := c.Bind(&p); err != nil {
		return
	}
	targetsLock.Lock()
	t, ok := targets[p.Name]
	if !ok {
		t = camera.NewHeadlessTarget(p.Name)
		targets[p.Name] = t
	}
	targetsLock.Unlock()

	ctx, cancel := cameraCtx(c)
	defer cancel()
	if err := d.controller.AttachPreview(ctx, t); err != nil {
		cameraErr(c, err)
		return
	}

	c.JSON(http.StatusOK, jsend.Success(p))
}

func (d *daemon) detachPreview(c *gin.Context) {
	ctx, cancel := cameraCtx(c)
	defer cancel()
	if err := d.controller.DetachPreview(ctx); err != nil {
		cameraErr(c, err)
		return
	}

	c.JSON(http.StatusOK, jsend.Success(nil))
}

func (d *daemon) captureStatus(c *gin.Context) {
	ctx, cancel := cameraCtx(c)
	defer cancel()
	stats, err := d.controller.Stats(ctx)
	if err != nil {
		cameraErr(c, err)
		return
	}

	c.JSON(http.StatusOK, jsend.Success(stats))
}

func (d *daemon) supportedFormats(c *gin.Context) {
	ctx, cancel := cameraCtx(c)
	defer cancel()
	formats, err := d.controller.SupportedFormats(ctx)
	if err != nil {
		cameraErr(c, err)
		return
	}

	c.JSON(http.StatusOK, jsend.Success(formats))
}

func (d *daemon) ctlRecord(c *gin.Context) {
	switch c.Query("op") {
	case opStart:
		d.startRecord(c)
	case opShutdown:
		d.stopRecord(c)
	default:
		c.JSON(http.StatusBadRequest, jsend.SimpleErr("unknown operation"))
	}
}

func (d *daemon) startRecord(c *gin.Context) {
	var r ov.Record
	if err := c.Bind(&r); err != nil {
		return
	}
	a, err := d.stg.GetOrCreateAlbum(r.Album)
	if err != nil {
		internalErr(c, err)
		return
	}
	if r.FPS <= 0 {
		r.FPS = d.cfg.Capture.MaxFPS
	}
	p := a.NewVideoPath()
	if err = d.recorder.Start(p, r.FPS); err != nil {
		if errors.Is(err, video.ErrRecording) {
			c.JSON(http.StatusConflict, jsend.SimpleErr(err.Error()))
			return
		}
		internalErr(c, err)
		return
	}

	c.JSON(http.StatusOK, jsend.Success(p))
}

func (d *daemon) stopRecord(c *gin.Context) {
	res, err := d.recorder.Stop()
	if errors.Is(err, video.ErrNotRecording) {
		c.JSON(http.StatusConflict, jsend.SimpleErr(err.Error()))
		return
	}
	if err != nil {
		internalErr(c, err)
		return
	}

	c.JSON(http.StatusOK, jsend.Success(res))
}

// snapshot saves the latest frame into an album, or returns it as a JPEG
// when no album is named.
func (d *daemon) snapshot(c *gin.Context) {
	f := d.hub.Latest()
	if f == nil {
		c.JSON(http.StatusConflict, jsend.SimpleErr("no frame captured yet"))
		return
	}
	jpg, err := image.FrameToJPEG(f, d.cfg.Capture.JPEGQuality)
	if err != nil {
		internalErr(c, err)
		return
	}
	name := c.Query("album")
	if name == "" {
		c.Data(http.StatusOK, "image/jpeg", jpg)
		return
	}
	a, err := d.stg.GetOrCreateAlbum(name)
	if err != nil {
		internalErr(c, err)
		return
	}
	img, err := a.SaveImage(jpg)
	if err != nil {
		internalErr(c, err)
		return
	}

	c.JSON(http.StatusOK, jsend.Success(img))
}

func (d *daemon) ctlTimelapse(c *gin.Context) {
	switch c.Query("op") {
	case opStart:
		var t ov.Timelapse
		if err := c.Bind(&t); err != nil {
			return
		}
		if t.Interval < consts.MinInterval {
			c.JSON(http.StatusBadRequest, jsend.SimpleErr(fmt.Sprintf("interval %dms less than %dms", t.Interval, consts.MinInterval)))
			return
		}
		a, err := d.stg.GetOrCreateAlbum(t.Album)
		if err != nil {
			internalErr(c, err)
			return
		}
		d.scheduler.Begin(a, utils.MsToDuration(t.Interval))
		c.JSON(http.StatusOK, jsend.Success(d.scheduler.Status()))
	case opShutdown:
		d.scheduler.Stop()
		c.JSON(http.StatusOK, jsend.Success(nil))
	default:
		c.JSON(http.StatusBadRequest, jsend.SimpleErr("unknown operation"))
	}
}

func (d *daemon) realtimeVideo(c *gin.Context) {
	sub := d.hub.Subscribe()
	defer sub.Close()
	go func() {
		<-c.Request.Context().Done()
		sub.Close()
	}()

	mimeWriter := multipart.NewWriter(c.Writer)
	c.Header("Content-Type", fmt.Sprintf("multipart/x-mixed-replace; boundary=%s", mimeWriter.Boundary()))
	partHeader := make(textproto.MIMEHeader)
	partHeader.Add("Content-Type", "image/jpeg")

	for f := sub.Next(); f != nil; f = sub.Next() {
		jpg, err := image.FrameToJPEG(f, d.cfg.Capture.JPEGQuality)
		if err != nil {
			logger.Warnf("realtime video: %s", err)
			continue
		}
		partWriter, err := mimeWriter.CreatePart(partHeader)
		if err != nil {
			logger.Errorf("failed to create multi-part writer: %s", err)
			return
		}
		if _, err := partWriter.Write(jpg); err != nil {
			logger.Errorf("failed to write image: %s", err)
			return
		}
		c.Writer.Flush()
	}
}

func (d *daemon) deviceStats(c *gin.Context) {
	var (
		s   ov.DeviceStats
		err error
	)
	if s.CPU, err = ps.CPUStatus(); err != nil {
		internalErr(c, err)
		return
	}
	if s.Memory, err = ps.MemoryStatus(); err != nil {
		internalErr(c, err)
		return
	}
	if s.Disk, err = ps.DiskStatus(d.cfg.StorageDir); err != nil {
		internalErr(c, err)
		return
	}
	ctx, cancel := cameraCtx(c)
	defer cancel()
	if s.Camera, err = d.controller.Stats(ctx); err != nil {
		cameraErr(c, err)
		return
	}
	s.Stream = d.hub.Stats()
	s.Timelapse = d.scheduler.Status()
	s.Webdav = d.dav.Running()
	s.Recording = d.recorder.Recording()
	if v, ok := d.lastError.Load().(string); ok {
		s.LastError = v
	}

	c.JSON(http.StatusOK, jsend.Success(s))
}

func (d *daemon) ctlWebdav(c *gin.Context) {
	switch c.Query("op") {
	case opStart:
		err := d.dav.Start()
		if errors.Is(err, webdav.ErrRunning) {
			c.JSON(http.StatusOK, jsend.Success(err.Error()))
			return
		}
		if err != nil {
			internalErr(c, err)
			return
		}
		c.JSON(http.StatusOK, jsend.Success(d.dav.Addr().String()))
	case opShutdown:
		if err := d.dav.Stop(); err != nil {
			c.JSON(http.StatusOK, jsend.SimpleErr(err.Error()))
			return
		}
		c.JSON(http.StatusOK, jsend.Success(nil))
	default:
		c.JSON(http.StatusBadRequest, jsend.SimpleErr("unknown operation"))
	}
}

func (d *daemon) listAlbum(c *gin.Context) {
	c.JSON(http.StatusOK, jsend.Success(d.stg.ListAlbums()))
}

func (d *daemon) getAlbum(c *gin.Context) {
	a := d.stg.GetAlbum(c.Param("name"))
	if a == nil {
		c.JSON(http.StatusNotFound, jsend.SimpleErr("album not found"))
		return
	}

	c.JSON(http.StatusOK, jsend.Success(a))
}

func (d *daemon) createAlbum(c *gin.Context) {
	var a ov.Album
	if err := c.Bind(&a); err != nil {
		return
	}
	created, err := d.stg.NewAlbum(a.Name, a.Info)
	if errors.Is(err, storage.ErrExists) || errors.Is(err, storage.ErrEmptyName) {
		c.JSON(http.StatusBadRequest, jsend.SimpleErr(err.Error()))
		return
	}
	if err != nil {
		internalErr(c, err)
		return
	}

	c.JSON(http.StatusOK, jsend.Success(created))
}

func (d *daemon) deleteAlbum(c *gin.Context) {
	name := c.Param("name")
	err := d.stg.DeleteAlbum(name)
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusBadRequest, jsend.SimpleErr("album does not exist"))
		return
	}
	if err != nil {
		internalErr(c, err)
		return
	}

	c.JSON(http.StatusOK, jsend.Success(fmt.Sprintf("delete album %s success", name)))
}

func (d *daemon) listImages(c *gin.Context) {
	a := d.stg.GetAlbum(c.Param("name"))
	if a == nil {
		c.JSON(http.StatusNotFound, jsend.SimpleErr("album not found"))
		return
	}
	images, err := a.ListImages()
	if err != nil {
		internalErr(c, err)
		return
	}

	c.JSON(http.StatusOK, jsend.Success(images))
}

// getImage serves one image; the name "latest" resolves to the newest.
func (d *daemon) getImage(c *gin.Context) {
	a := d.stg.GetAlbum(c.Param("name"))
	if a == nil {
		c.JSON(http.StatusNotFound, jsend.SimpleErr("album not found"))
		return
	}
	name := c.Param("image")
	if name == "latest" {
		var err error
		if name, err = a.LatestImageName(); err != nil {
			internalErr(c, err)
			return
		}
	}
	data, err := a.GetImage(name)
	if errors.Is(err, album.ErrBadName) {
		c.JSON(http.StatusBadRequest, jsend.SimpleErr(err.Error()))
		return
	}
	if err != nil {
		c.JSON(http.StatusNotFound, jsend.SimpleErr(err.Error()))
		return
	}

	c.Data(http.StatusOK, "image/jpeg", data)
}
