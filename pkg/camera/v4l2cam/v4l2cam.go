//go:build linux

// Package v4l2cam drives V4L2 capture devices through go4vl.
package v4l2cam

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/vladimirvivien/go4vl/device"
	"github.com/vladimirvivien/go4vl/v4l2"
	"go.uber.org/zap"

	"shutter-capture/pkg/camera"
	"shutter-capture/pkg/types"
	"shutter-capture/pkg/utils"
)

var logger *zap.SugaredLogger

func init() {
	logger = utils.GetLogger()
}

var (
	ErrBusy        = errors.New("device is in use")
	ErrReleased    = errors.New("device has been released")
	ErrUnsupported = errors.New("unsupported pixel format")
	ErrNoTarget    = errors.New("no preview target set")
)

const driverBuffers = 2

// DefaultFramerates are offered as fixed ranges; V4L2 drivers pick the
// nearest interval they support.
var DefaultFramerates = []int{5, 10, 15, 30}

// Hardware exposes a list of device nodes as cameras.
type Hardware struct {
	paths      []string
	format     types.PixelFormat
	framerates []int
	controls   map[v4l2.CtrlID]v4l2.CtrlValue

	mu   sync.Mutex
	busy map[int]bool
}

type Option func(h *Hardware)

// WithPixelFormat sets the format frames are captured in. YUYV and MJPEG
// are supported.
func WithPixelFormat(f types.PixelFormat) Option {
	return func(h *Hardware) { h.format = f }
}

func WithFramerates(fps ...int) Option {
	return func(h *Hardware) { h.framerates = fps }
}

// WithControls applies V4L2 control values, keyed by control id, every
// time streaming starts.
func WithControls(ctrls map[uint32]int32) Option {
	return func(h *Hardware) {
		h.controls = make(map[v4l2.CtrlID]v4l2.CtrlValue, len(ctrls))
		for id, v := range ctrls {
			h.controls[v4l2.CtrlID(id)] = v4l2.CtrlValue(v)
		}
	}
}

func New(paths []string, opts ...Option) (*Hardware, error) {
	h := &Hardware{
		paths:      paths,
		format:     types.PixelFmtYUYV,
		framerates: DefaultFramerates,
		busy:       make(map[int]bool),
	}
	for _, opt := range opts {
		opt(h)
	}
	if _, err := fourCC(h.format); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *Hardware) NumberOfCameras() int {
	return len(h.paths)
}

func (h *Hardware) CameraInfo(index int) (types.CameraDescriptor, error) {
	if index < 0 || index >= len(h.paths) {
		return types.CameraDescriptor{}, fmt.Errorf("%w: %d", camera.ErrCameraNotFound, index)
	}
	return types.CameraDescriptor{
		Index:  index,
		Name:   h.paths[index],
		Facing: types.FacingBack,
	}, nil
}

func (h *Hardware) Open(index int) (camera.Device, error) {
	desc, err := h.CameraInfo(index)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	if h.busy[index] {
		h.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrBusy, desc.Name)
	}
	h.busy[index] = true
	h.mu.Unlock()

	sizes, err := h.frameSizes(desc.Name)
	if err != nil {
		h.release(index)
		return nil, err
	}
	ranges := make([]types.FramerateRange, 0, len(h.framerates))
	for _, fps := range h.framerates {
		ranges = append(ranges, types.FramerateRange{Min: fps, Max: fps})
	}

	return &Device{
		hw:    h,
		index: index,
		path:  desc.Name,
		params: camera.Parameters{
			SupportedPreviewSizes: sizes,
			SupportedFpsRanges:    ranges,
			PreviewSize:           sizes[0],
			PreviewFpsRange:       ranges[0],
			PixelFormat:           h.format,
		},
	}, nil
}

// frameSizes opens path briefly and lists the frame sizes it supports in
// the configured pixel format.
func (h *Hardware) frameSizes(path string) ([]types.Size, error) {
	pixFmt, _ := fourCC(h.format)
	dev, err := device.Open(path,
		device.WithBufferSize(1),
		device.WithPixFormat(v4l2.PixFormat{
			PixelFormat: pixFmt,
			Width:       320,
			Height:      240,
		}))
	if err != nil {
		return nil, err
	}
	defer dev.Close()

	all, err := v4l2.GetAllFormatFrameSizes(dev.Fd())
	if err != nil {
		return nil, err
	}
	var res []types.Size
	for _, s := range all {
		if s.PixelFormat != pixFmt {
			continue
		}
		size := types.Size{Width: int(s.Size.MaxWidth), Height: int(s.Size.MaxHeight)}
		if s.Size.MinWidth != 0 && s.Size.MinWidth != s.Size.MaxWidth {
			res = append(res, types.Size{Width: int(s.Size.MinWidth), Height: int(s.Size.MinHeight)})
		}
		res = append(res, size)
	}
	if len(res) == 0 {
		return nil, fmt.Errorf("%w: %s has no %s frame sizes", camera.ErrNoSupportedSize, path, h.format)
	}
	return res, nil
}

func (h *Hardware) release(index int) {
	h.mu.Lock()
	h.busy[index] = false
	h.mu.Unlock()
}

// Device copies frames from a go4vl stream into the callback buffers it was
// given. Frames arriving while no buffer is queued are dropped.
type Device struct {
	hw    *Hardware
	index int
	path  string

	mu          sync.Mutex
	params      camera.Parameters
	buffers     [][]byte
	callback    camera.PreviewCallback
	errCallback camera.ErrorCallback
	target      camera.PreviewTarget
	released    bool
	dropped     uint64

	dev    *device.Device
	cancel context.CancelFunc
	done   chan struct{}
}

func (d *Device) AddCallbackBuffer(buf []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.released {
		d.buffers = append(d.buffers, buf)
	}
}

func (d *Device) Parameters() (camera.Parameters, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return camera.Parameters{}, ErrReleased
	}
	return d.params, nil
}

func (d *Device) SetParameters(p camera.Parameters) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return ErrReleased
	}
	p.Stabilization = false
	p.StabilizationSupported = false
	d.params = p
	return nil
}

func (d *Device) SetPreviewTarget(target camera.PreviewTarget) error {
	d.mu.Lock()
	d.target = target
	d.mu.Unlock()
	return nil
}

// SetDisplayOrientation is accepted and ignored. Frames carry their rotation
// and consumers apply it.
func (d *Device) SetDisplayOrientation(int) error {
	return nil
}

func (d *Device) SetErrorCallback(cb camera.ErrorCallback) {
	d.mu.Lock()
	d.errCallback = cb
	d.mu.Unlock()
}

func (d *Device) SetPreviewCallbackWithBuffer(cb camera.PreviewCallback) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.callback = cb
	if cb == nil {
		d.buffers = nil
	}
}

func (d *Device) StartPreview() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return ErrReleased
	}
	if d.target == nil {
		return ErrNoTarget
	}
	if d.dev != nil {
		return nil
	}

	pixFmt, err := fourCC(d.params.PixelFormat)
	if err != nil {
		return err
	}
	dev, err := device.Open(d.path,
		device.WithBufferSize(driverBuffers),
		device.WithFPS(uint32(d.params.PreviewFpsRange.Max)),
		device.WithPixFormat(v4l2.PixFormat{
			PixelFormat: pixFmt,
			Width:       uint32(d.params.PreviewSize.Width),
			Height:      uint32(d.params.PreviewSize.Height),
			Field:       v4l2.FieldNone,
		}))
	if err != nil {
		return err
	}
	if format, err := v4l2.GetPixFormat(dev.Fd()); err == nil {
		logger.Debugf("v4l2cam: %s streaming %dx%d", d.path, format.Width, format.Height)
	}
	d.applyControls(dev)

	ctx, cancel := context.WithCancel(context.Background())
	if err = dev.Start(ctx); err != nil {
		cancel()
		_ = dev.Close()
		return err
	}
	d.dev = dev
	d.cancel = cancel
	d.done = make(chan struct{})
	go d.pump(ctx, dev.GetOutput(), d.done)

	return nil
}

func (d *Device) applyControls(dev *device.Device) {
	for id, value := range d.hw.controls {
		if err := dev.SetControlValue(id, value); err != nil {
			logger.Warnf("v4l2cam: set ctrl(%d) to %d, err: %s", id, value, err)
		}
	}
}

func (d *Device) pump(ctx context.Context, frames <-chan []byte, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-frames:
			if !ok {
				if ctx.Err() == nil {
					d.fail(camera.ErrorServerDied)
				}
				return
			}
			d.deliver(frame)
		}
	}
}

func (d *Device) deliver(frame []byte) {
	d.mu.Lock()
	cb := d.callback
	if cb == nil || len(d.buffers) == 0 {
		d.dropped++
		d.mu.Unlock()
		return
	}
	buf := d.buffers[0]
	if len(frame) > len(buf) {
		d.dropped++
		d.mu.Unlock()
		logger.Warnf("v4l2cam: %d byte frame does not fit a %d byte buffer", len(frame), len(buf))
		return
	}
	d.buffers = d.buffers[1:]
	d.mu.Unlock()

	n := copy(buf, frame)
	cb(buf[:n], d)
}

func (d *Device) fail(code int) {
	d.mu.Lock()
	cb := d.errCallback
	d.mu.Unlock()
	if cb != nil {
		cb(code, d)
	}
}

func (d *Device) StopPreview() error {
	d.mu.Lock()
	dev, cancel, done := d.dev, d.cancel, d.done
	d.dev, d.cancel, d.done = nil, nil, nil
	d.mu.Unlock()

	if dev == nil {
		return nil
	}
	cancel()
	<-done
	return dev.Close()
}

func (d *Device) Release() error {
	err := d.StopPreview()

	d.mu.Lock()
	if d.released {
		d.mu.Unlock()
		return ErrReleased
	}
	d.released = true
	d.buffers = nil
	d.callback = nil
	if d.dropped > 0 {
		logger.Infof("v4l2cam: %s dropped %d frames without a free buffer", d.path, d.dropped)
	}
	d.mu.Unlock()

	d.hw.release(d.index)
	return err
}

func fourCC(f types.PixelFormat) (uint32, error) {
	switch f {
	case types.PixelFmtYUYV:
		return v4l2.PixelFmtYUYV, nil
	case types.PixelFmtMJPEG:
		return v4l2.PixelFmtMJPEG, nil
	case types.PixelFmtRGB24:
		return v4l2.PixelFmtRGB24, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrUnsupported, f)
}
