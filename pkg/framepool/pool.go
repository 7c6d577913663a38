// Package framepool keeps the fixed set of capture buffers shared between a
// camera device and the frame consumer.
//
// A slot is either queued (handed to the device as a write target) or
// pending (delivered to the consumer and not yet returned). Queue allocates
// a fresh generation of slots; nothing else allocates.
//
// A Pool is not safe for concurrent use. It belongs to the goroutine that
// owns the device.
package framepool

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

// DefaultCapacity is the queue depth. More slots hold more memory; fewer make
// the device stall sooner when the consumer is slow.
const DefaultCapacity = 3

var (
	ErrStaleBuffer        = errors.New("callback buffer from previous configuration")
	ErrUnknownTimestamp   = errors.New("unknown buffer timestamp")
	ErrDuplicateTimestamp = errors.New("timestamp already pending")
	ErrUnexpectedSize     = errors.New("callback buffer has unexpected frame size")
)

// Sink receives write targets. Camera devices implement it.
type Sink interface {
	AddCallbackBuffer(buf []byte)
}

type Slot struct {
	ID         uint64
	Generation uint64
	Data       []byte
}

type Stats struct {
	Capacity   int    `json:"capacity"`
	FrameSize  int    `json:"frameSize"`
	Generation uint64 `json:"generation"`
	Queued     int    `json:"queued"`
	Pending    int    `json:"pending"`
}

type Pool struct {
	capacity int
	logger   *zap.SugaredLogger

	sink       Sink
	frameSize  int
	generation uint64
	nextID     uint64

	queued  map[*byte]*Slot
	pending map[int64]*Slot
}

func New(capacity int, logger *zap.SugaredLogger) *Pool {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Pool{
		capacity: capacity,
		logger:   logger,
		queued:   make(map[*byte]*Slot),
		pending:  make(map[int64]*Slot),
	}
}

func (p *Pool) Capacity() int {
	return p.capacity
}

func (p *Pool) FrameSize() int {
	return p.frameSize
}

func (p *Pool) Generation() uint64 {
	return p.generation
}

// Queue discards previously queued slots, allocates a new generation of
// Capacity slots of frameSize bytes and hands all of them to sink.
// Pending slots of older generations are kept until returned.
func (p *Pool) Queue(frameSize int, sink Sink) {
	p.sink = sink
	p.frameSize = frameSize
	p.generation++
	clear(p.queued)

	for i := 0; i < p.capacity; i++ {
		p.nextID++
		s := &Slot{
			ID:         p.nextID,
			Generation: p.generation,
			Data:       make([]byte, frameSize),
		}
		p.queued[key(s.Data)] = s
		sink.AddCallbackBuffer(s.Data)
	}
	p.logger.Debugf("framepool: queued %d buffers of %s (generation %d)",
		p.capacity, humanize.IBytes(uint64(frameSize)), p.generation)
}

// Reserve marks the queued slot backing data as pending under timestamp.
// Buffers that are not queued in the current generation, such as frames
// written with the previous format while the format was changing, yield
// ErrStaleBuffer.
func (p *Pool) Reserve(data []byte, timestamp int64) (*Slot, error) {
	s, ok := p.queued[key(data)]
	if !ok {
		return nil, fmt.Errorf("%w: length %d", ErrStaleBuffer, len(data))
	}
	if len(s.Data) != p.frameSize {
		return nil, fmt.Errorf("%w: %d != %d", ErrUnexpectedSize, len(s.Data), p.frameSize)
	}
	if _, dup := p.pending[timestamp]; dup {
		return nil, fmt.Errorf("%w: %d", ErrDuplicateTimestamp, timestamp)
	}
	delete(p.queued, key(data))
	p.pending[timestamp] = s
	if len(p.queued) == 0 {
		p.logger.Debugf("framepool: device is out of capture buffers, pending %v", p.pendingTimestamps())
	}

	return s, nil
}

// Return gives the slot pending under timestamp back to the device. Slots of
// an older frame size, or returned after Stop, are dropped.
func (p *Pool) Return(timestamp int64) error {
	s, ok := p.pending[timestamp]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownTimestamp, timestamp)
	}
	delete(p.pending, timestamp)

	if p.sink != nil && s.Generation == p.generation {
		p.queued[key(s.Data)] = s
		p.sink.AddCallbackBuffer(s.Data)
		return nil
	}
	if s.Generation != p.generation {
		p.logger.Debugf("framepool: dropping buffer of generation %d returned at %d", s.Generation, timestamp)
		return nil
	}
	p.logger.Debugf("framepool: buffer returned at %d after the device stopped", timestamp)

	return nil
}

// Stop stops handing buffers to the device and forgets the queued ones.
// Pending slots stay valid until they are returned.
func (p *Pool) Stop() {
	p.sink = nil
	clear(p.queued)
	if len(p.pending) == 0 {
		p.logger.Debug("framepool: stopped, all buffers have been returned")
		return
	}
	p.logger.Debugf("framepool: stopped, pending buffers %v ms", p.pendingTimestamps())
}

func (p *Pool) Queued() int {
	return len(p.queued)
}

func (p *Pool) Pending() int {
	return len(p.pending)
}

func (p *Pool) Stats() Stats {
	return Stats{
		Capacity:   p.capacity,
		FrameSize:  p.frameSize,
		Generation: p.generation,
		Queued:     len(p.queued),
		Pending:    len(p.pending),
	}
}

func (p *Pool) pendingTimestamps() []int64 {
	res := make([]int64, 0, len(p.pending))
	for ts := range p.pending {
		res = append(res, time.Duration(ts).Milliseconds())
	}
	slices.Sort(res)
	return res
}

func key(b []byte) *byte {
	if cap(b) == 0 {
		return nil
	}
	return &b[:1][0]
}
