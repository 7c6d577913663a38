package camera

import (
	"shutter-capture/pkg/framepool"
	"shutter-capture/pkg/types"
)

// session is either closedSession or *openSession. The device handle only
// exists inside an open session.
type session interface {
	isSession()
}

type closedSession struct{}

func (closedSession) isSession() {}

type openSession struct {
	dev   Device
	desc  types.CameraDescriptor
	token string

	config    types.CaptureConfig
	format    types.CaptureFormat
	streaming bool

	pool   *framepool.Pool
	target PreviewTarget

	observer *observer

	frame         types.Frame
	frames        uint64
	dropped       uint64
	lastTimestamp int64
}

func (*openSession) isSession() {}
