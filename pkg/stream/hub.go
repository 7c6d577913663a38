// Package stream fans captured frames out to readers that run at their own
// pace, such as HTTP viewers and the timelapse scheduler.
package stream

import (
	"bytes"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"shutter-capture/pkg/types"
	"shutter-capture/pkg/utils"
)

// Hub is a camera consumer. Every subscriber owns a single frame mailbox:
// a frame that was not read before the next one arrives is dropped.
//
// Frames are copied out of the capture buffer once per delivery and shared
// read-only between subscribers.
type Hub struct {
	logger *zap.SugaredLogger

	mu     sync.Mutex
	subs   map[string]*Subscription
	latest *types.Frame

	minInterval time.Duration
	lastSent    time.Time

	published atomic.Uint64
	throttled atomic.Uint64
}

func NewHub() *Hub {
	return &Hub{
		logger: utils.GetLogger(),
		subs:   make(map[string]*Subscription),
	}
}

func (h *Hub) OnCapturerStarted(success bool) {
	if !success {
		h.logger.Warn("stream: capturer failed to start")
	}
}

func (h *Hub) OnFrameCaptured(f *types.Frame) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.minInterval > 0 && !h.lastSent.IsZero() && f.Timestamp.Sub(h.lastSent) < h.minInterval {
		h.throttled.Add(1)
		return
	}
	h.lastSent = f.Timestamp

	frame := *f
	frame.Data = bytes.Clone(f.Data)
	h.latest = &frame
	h.published.Add(1)

	for _, s := range h.subs {
		s.publish(&frame)
	}
}

// OnOutputFormatRequest limits the rate frames are published at. Size
// requests are left to the readers.
func (h *Hub) OnOutputFormatRequest(width, height, fps int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if fps <= 0 {
		h.minInterval = 0
	} else {
		h.minInterval = time.Second / time.Duration(fps)
	}
	h.logger.Infof("stream: output format %dx%d@%d requested", width, height, fps)
}

// Latest returns the most recent frame, or nil before the first one.
func (h *Hub) Latest() *types.Frame {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.latest
}

func (h *Hub) Subscribe() *Subscription {
	s := &Subscription{id: uuid.NewString(), hub: h}
	s.cond = sync.NewCond(&s.mu)

	h.mu.Lock()
	h.subs[s.id] = s
	h.mu.Unlock()
	h.logger.Debugf("stream: subscriber %s joined", s.id)

	return s
}

func (h *Hub) unsubscribe(id string) {
	h.mu.Lock()
	delete(h.subs, id)
	h.mu.Unlock()
}

// Close ends every subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[string]*Subscription)
	h.mu.Unlock()

	for _, s := range subs {
		s.close()
	}
}

type Stats struct {
	Subscribers int    `json:"subscribers"`
	Published   uint64 `json:"published"`
	Throttled   uint64 `json:"throttled"`
}

func (h *Hub) Stats() Stats {
	h.mu.Lock()
	n := len(h.subs)
	h.mu.Unlock()
	return Stats{
		Subscribers: n,
		Published:   h.published.Load(),
		Throttled:   h.throttled.Load(),
	}
}

type Subscription struct {
	id  string
	hub *Hub

	mu      sync.Mutex
	cond    *sync.Cond
	frame   *types.Frame
	closed  bool
	dropped uint64
}

func (s *Subscription) ID() string {
	return s.id
}

func (s *Subscription) publish(f *types.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.frame != nil {
		s.dropped++
	}
	s.frame = f
	s.cond.Signal()
}

// Next blocks until a frame is available. It returns nil once the
// subscription is closed.
func (s *Subscription) Next() *types.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.frame == nil && !s.closed {
		s.cond.Wait()
	}
	if s.closed {
		return nil
	}
	f := s.frame
	s.frame = nil
	return f
}

func (s *Subscription) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Close unsubscribes and wakes a blocked Next. It is safe to call more
// than once.
func (s *Subscription) Close() {
	s.hub.unsubscribe(s.id)
	s.close()
}

func (s *Subscription) close() {
	s.mu.Lock()
	s.closed = true
	s.cond.Broadcast()
	s.mu.Unlock()
}
