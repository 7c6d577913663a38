package camera

import (
	"time"
)

const DefaultObserverPeriod = 5 * time.Second

// observer samples the frame rate and buffer headroom of an open session.
type observer struct {
	period time.Duration
	cancel func()

	frames         int
	captureBuffers int

	lastFPS     int
	lastBuffers float64
}

func newObserver(period time.Duration) *observer {
	return &observer{period: period}
}

func (o *observer) onFrame(queuedBuffers int) {
	o.frames++
	o.captureBuffers += queuedBuffers
}

// sample closes the current period. It reports false when no frame arrived
// in it.
func (o *observer) sample() bool {
	periodMs := int(o.period / time.Millisecond)
	if periodMs <= 0 {
		periodMs = 1
	}
	o.lastFPS = (o.frames*1000 + periodMs/2) / periodMs
	o.lastBuffers = 0
	if o.frames > 0 {
		o.lastBuffers = float64(o.captureBuffers) / float64(o.frames)
	}
	if o.frames == 0 {
		return false
	}
	o.frames = 0
	o.captureBuffers = 0
	return true
}

func (o *observer) stop() {
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
}
