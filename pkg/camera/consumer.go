package camera

import (
	"shutter-capture/pkg/types"
)

// Consumer receives the output of a Controller. Its methods run on the
// controller's looper and must return quickly: frame delivery throttles the
// capture rate. Frame data is only valid until OnFrameCaptured returns.
type Consumer interface {
	OnCapturerStarted(success bool)
	OnFrameCaptured(frame *types.Frame)
	OnOutputFormatRequest(width, height, fps int)
}

// MultiConsumer fans every call out to each consumer in order.
type MultiConsumer []Consumer

func (m MultiConsumer) OnCapturerStarted(success bool) {
	for _, c := range m {
		c.OnCapturerStarted(success)
	}
}

func (m MultiConsumer) OnFrameCaptured(frame *types.Frame) {
	for _, c := range m {
		c.OnFrameCaptured(frame)
	}
}

func (m MultiConsumer) OnOutputFormatRequest(width, height, fps int) {
	for _, c := range m {
		c.OnOutputFormatRequest(width, height, fps)
	}
}

type nopConsumer struct{}

func (nopConsumer) OnCapturerStarted(bool)            {}
func (nopConsumer) OnFrameCaptured(*types.Frame)      {}
func (nopConsumer) OnOutputFormatRequest(_, _, _ int) {}
