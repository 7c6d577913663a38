// Package fakecam is an in-memory camera.Hardware. It backs tests and runs
// shutterd on hosts without a camera.
package fakecam

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"shutter-capture/pkg/camera"
	"shutter-capture/pkg/types"
)

var (
	ErrBusy           = errors.New("camera is in use")
	ErrReleased       = errors.New("camera has been released")
	ErrNoTarget       = errors.New("no preview target set")
	ErrUnsupported    = errors.New("unsupported parameters")
	ErrInjected       = errors.New("injected failure")
	ErrNoSuchCamera   = errors.New("no such camera")
	ErrAlreadyRunning = errors.New("preview already running")
)

var (
	DefaultSizes = []types.Size{
		{Width: 640, Height: 480},
		{Width: 1280, Height: 720},
		{Width: 1920, Height: 1080},
	}
	DefaultFpsRanges = []types.FramerateRange{
		{Min: 15, Max: 15},
		{Min: 15, Max: 30},
		{Min: 30, Max: 30},
	}
)

// Hardware holds a fixed list of cameras. Each can be opened once at a time.
type Hardware struct {
	mu      sync.Mutex
	cameras []types.CameraDescriptor
	busy    map[int]bool
	devices []*Device

	failNextOpen error
	failStart    bool
	autoFPS      int
}

// New returns hardware with one back and one front camera.
func New() *Hardware {
	return NewWith(
		types.CameraDescriptor{Name: "back", Facing: types.FacingBack, Orientation: 90},
		types.CameraDescriptor{Name: "front", Facing: types.FacingFront, Orientation: 270},
	)
}

func NewWith(cameras ...types.CameraDescriptor) *Hardware {
	for i := range cameras {
		cameras[i].Index = i
	}
	return &Hardware{cameras: cameras, busy: make(map[int]bool)}
}

func (h *Hardware) NumberOfCameras() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.cameras)
}

func (h *Hardware) CameraInfo(index int) (types.CameraDescriptor, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if index < 0 || index >= len(h.cameras) {
		return types.CameraDescriptor{}, fmt.Errorf("%w: %d", ErrNoSuchCamera, index)
	}
	return h.cameras[index], nil
}

func (h *Hardware) Open(index int) (camera.Device, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if index < 0 || index >= len(h.cameras) {
		return nil, fmt.Errorf("%w: %d", ErrNoSuchCamera, index)
	}
	if err := h.failNextOpen; err != nil {
		h.failNextOpen = nil
		return nil, err
	}
	if h.busy[index] {
		return nil, fmt.Errorf("%w: %s", ErrBusy, h.cameras[index].Name)
	}
	h.busy[index] = true

	d := &Device{
		hw:    h,
		index: index,
		params: camera.Parameters{
			SupportedPreviewSizes:  append([]types.Size(nil), DefaultSizes...),
			SupportedFpsRanges:     append([]types.FramerateRange(nil), DefaultFpsRanges...),
			StabilizationSupported: true,
			PreviewSize:            DefaultSizes[0],
			PreviewFpsRange:        DefaultFpsRanges[0],
			PixelFormat:            types.PixelFmtNV21,
		},
		failStart: h.failStart,
		autoFPS:   h.autoFPS,
	}
	h.devices = append(h.devices, d)
	return d, nil
}

// AutoRun makes devices emit frames at fps on their own while streaming.
func (h *Hardware) AutoRun(fps int) {
	h.mu.Lock()
	h.autoFPS = fps
	h.mu.Unlock()
}

// FailNextOpen makes the next Open return err.
func (h *Hardware) FailNextOpen(err error) {
	h.mu.Lock()
	h.failNextOpen = err
	h.mu.Unlock()
}

// FailStart makes StartPreview of devices opened later fail.
func (h *Hardware) FailStart(fail bool) {
	h.mu.Lock()
	h.failStart = fail
	h.mu.Unlock()
}

// Devices lists every device opened so far, released ones included.
func (h *Hardware) Devices() []*Device {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*Device(nil), h.devices...)
}

// Last is the most recently opened device, or nil.
func (h *Hardware) Last() *Device {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.devices) == 0 {
		return nil
	}
	return h.devices[len(h.devices)-1]
}

// OpenCount reports how many devices are currently held.
func (h *Hardware) OpenCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, b := range h.busy {
		if b {
			n++
		}
	}
	return n
}

func (h *Hardware) release(index int) {
	h.mu.Lock()
	h.busy[index] = false
	h.mu.Unlock()
}

// Device writes synthetic frames into the buffers it was given.
type Device struct {
	hw    *Hardware
	index int

	mu          sync.Mutex
	params      camera.Parameters
	buffers     [][]byte
	callback    camera.PreviewCallback
	errCallback camera.ErrorCallback
	target      camera.PreviewTarget
	orientation int
	streaming   bool
	released    bool
	sequence    byte

	autoFPS int
	stopRun context.CancelFunc

	failStart         bool
	failSetParameters bool
}

func (d *Device) Index() int {
	return d.index
}

func (d *Device) AddCallbackBuffer(buf []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return
	}
	d.buffers = append(d.buffers, buf)
}

func (d *Device) Parameters() (camera.Parameters, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return camera.Parameters{}, ErrReleased
	}
	p := d.params
	p.SupportedPreviewSizes = append([]types.Size(nil), p.SupportedPreviewSizes...)
	p.SupportedFpsRanges = append([]types.FramerateRange(nil), p.SupportedFpsRanges...)
	return p, nil
}

func (d *Device) SetParameters(p camera.Parameters) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return ErrReleased
	}
	if d.failSetParameters {
		return ErrInjected
	}
	if !containsSize(d.params.SupportedPreviewSizes, p.PreviewSize) {
		return fmt.Errorf("%w: size %s", ErrUnsupported, p.PreviewSize)
	}
	d.params.PreviewSize = p.PreviewSize
	d.params.PreviewFpsRange = p.PreviewFpsRange
	d.params.Stabilization = p.Stabilization && d.params.StabilizationSupported
	return nil
}

func (d *Device) SetPreviewTarget(target camera.PreviewTarget) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return ErrReleased
	}
	d.target = target
	return nil
}

func (d *Device) SetDisplayOrientation(degrees int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return ErrReleased
	}
	d.orientation = degrees
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

// StartPreview refuses to stream without a preview target, like most real
// camera stacks.
func (d *Device) StartPreview() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch {
	case d.released:
		return ErrReleased
	case d.failStart:
		return ErrInjected
	case d.target == nil:
		return ErrNoTarget
	case d.streaming:
		return ErrAlreadyRunning
	}
	d.streaming = true
	if d.autoFPS > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		d.stopRun = cancel
		go d.Run(ctx, d.autoFPS)
	}
	return nil
}

func (d *Device) StopPreview() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return ErrReleased
	}
	d.streaming = false
	d.cancelRun()
	return nil
}

func (d *Device) cancelRun() {
	if d.stopRun != nil {
		d.stopRun()
		d.stopRun = nil
	}
}

func (d *Device) Release() error {
	d.mu.Lock()
	if d.released {
		d.mu.Unlock()
		return ErrReleased
	}
	d.released = true
	d.streaming = false
	d.cancelRun()
	d.buffers = nil
	d.callback = nil
	d.target = nil
	d.mu.Unlock()

	d.hw.release(d.index)
	return nil
}

// Emit fills the oldest queued buffer and hands it to the preview callback.
// It reports false when the device is not streaming or has no buffer.
func (d *Device) Emit() bool {
	d.mu.Lock()
	if !d.streaming || d.callback == nil || len(d.buffers) == 0 {
		d.mu.Unlock()
		return false
	}
	buf := d.buffers[0]
	d.buffers = d.buffers[1:]
	cb := d.callback
	d.sequence++
	for i := range buf {
		buf[i] = d.sequence
	}
	d.mu.Unlock()

	cb(buf, d)
	return true
}

// EmitStale delivers buf as if it had been queued by an earlier
// configuration.
func (d *Device) EmitStale(buf []byte) bool {
	d.mu.Lock()
	cb := d.callback
	d.mu.Unlock()
	if cb == nil {
		return false
	}
	cb(buf, d)
	return true
}

// RaiseError invokes the error callback with code.
func (d *Device) RaiseError(code int) {
	d.mu.Lock()
	cb := d.errCallback
	d.mu.Unlock()
	if cb != nil {
		cb(code, d)
	}
}

// Run emits frames at fps until ctx ends or the device is released.
func (d *Device) Run(ctx context.Context, fps int) {
	if fps <= 0 {
		fps = camera.DefaultFPS
	}
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if d.Released() {
				return
			}
			d.Emit()
		}
	}
}

func (d *Device) FailSetParameters(fail bool) {
	d.mu.Lock()
	d.failSetParameters = fail
	d.mu.Unlock()
}

func (d *Device) QueuedBuffers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.buffers)
}

func (d *Device) Streaming() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.streaming
}

func (d *Device) Released() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.released
}

func (d *Device) Target() camera.PreviewTarget {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.target
}

func (d *Device) Orientation() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.orientation
}

// Params returns the current configuration without the released check.
func (d *Device) Params() camera.Parameters {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.params
}

func containsSize(sizes []types.Size, s types.Size) bool {
	for _, v := range sizes {
		if v == s {
			return true
		}
	}
	return false
}
