package camera

import (
	"shutter-capture/pkg/framepool"
	"shutter-capture/pkg/types"
)

// Device error codes passed to an ErrorCallback.
const (
	ErrorUnknown    = 1
	ErrorServerDied = 100
)

// Hardware enumerates and opens cameras.
type Hardware interface {
	NumberOfCameras() int
	CameraInfo(index int) (types.CameraDescriptor, error)
	Open(index int) (Device, error)
}

// PreviewCallback receives a filled buffer previously handed to
// AddCallbackBuffer. It may run on any goroutine.
type PreviewCallback func(data []byte, dev Device)

type ErrorCallback func(code int, dev Device)

// Device is an open camera. Implementations need not be safe for
// concurrent use; the controller only calls them from its looper.
type Device interface {
	framepool.Sink

	Parameters() (Parameters, error)
	SetParameters(p Parameters) error

	// SetPreviewTarget attaches the surface frames are displayed on. Nil
	// detaches it.
	SetPreviewTarget(target PreviewTarget) error
	SetDisplayOrientation(degrees int) error

	SetErrorCallback(cb ErrorCallback)
	// SetPreviewCallbackWithBuffer registers cb for frames written into
	// callback buffers. Nil unregisters it and drops the queued buffers.
	SetPreviewCallbackWithBuffer(cb PreviewCallback)

	StartPreview() error
	StopPreview() error
	Release() error
}

// Parameters is the capability and configuration snapshot of a device.
type Parameters struct {
	SupportedPreviewSizes  []types.Size
	SupportedFpsRanges     []types.FramerateRange
	StabilizationSupported bool

	PreviewSize     types.Size
	PreviewFpsRange types.FramerateRange
	PixelFormat     types.PixelFormat
	Stabilization   bool
}
