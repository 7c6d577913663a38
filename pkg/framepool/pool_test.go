package framepool

import (
	"errors"
	"testing"
)

type sinkRecorder struct {
	bufs [][]byte
}

func (s *sinkRecorder) AddCallbackBuffer(buf []byte) {
	s.bufs = append(s.bufs, buf)
}

func (s *sinkRecorder) pop() []byte {
	b := s.bufs[0]
	s.bufs = s.bufs[1:]
	return b
}

func TestQueueHandsEverySlotToSink(t *testing.T) {
	p := New(3, nil)
	sink := &sinkRecorder{}
	p.Queue(64, sink)

	if len(sink.bufs) != 3 {
		t.Fatalf("want 3 buffers queued, got %d", len(sink.bufs))
	}
	for _, b := range sink.bufs {
		if len(b) != 64 {
			t.Fatalf("want 64 byte buffer, got %d", len(b))
		}
	}
	if p.Queued() != 3 || p.Pending() != 0 {
		t.Fatalf("unexpected stats %+v", p.Stats())
	}
}

func TestCapacityIsConserved(t *testing.T) {
	p := New(DefaultCapacity, nil)
	sink := &sinkRecorder{}
	p.Queue(16, sink)

	for ts := int64(1); ts <= 50; ts++ {
		buf := sink.pop()
		if _, err := p.Reserve(buf, ts); err != nil {
			t.Fatal(err)
		}
		// the device holds what is left in the sink, the consumer holds one
		if got := len(sink.bufs) + p.Pending(); got != p.Capacity() {
			t.Fatalf("frame %d: device %d + pending %d != %d", ts, len(sink.bufs), p.Pending(), p.Capacity())
		}
		if p.Queued()+p.Pending() != p.Capacity() {
			t.Fatalf("frame %d: queued %d + pending %d != %d", ts, p.Queued(), p.Pending(), p.Capacity())
		}
		if err := p.Return(ts); err != nil {
			t.Fatal(err)
		}
		if len(sink.bufs) != p.Capacity() {
			t.Fatalf("frame %d: buffer not handed back", ts)
		}
	}
}

func TestReserveRejectsStaleGeneration(t *testing.T) {
	p := New(2, nil)
	sink := &sinkRecorder{}
	p.Queue(16, sink)
	old := sink.pop()

	p.Queue(32, &sinkRecorder{})
	if p.Generation() != 2 {
		t.Fatalf("want generation 2, got %d", p.Generation())
	}
	if _, err := p.Reserve(old, 1); !errors.Is(err, ErrStaleBuffer) {
		t.Fatalf("want ErrStaleBuffer, got %v", err)
	}
}

func TestReserveRejectsForeignBuffer(t *testing.T) {
	p := New(2, nil)
	p.Queue(16, &sinkRecorder{})

	if _, err := p.Reserve(make([]byte, 16), 1); !errors.Is(err, ErrStaleBuffer) {
		t.Fatalf("want ErrStaleBuffer, got %v", err)
	}
}

func TestDuplicateTimestamp(t *testing.T) {
	p := New(2, nil)
	sink := &sinkRecorder{}
	p.Queue(16, sink)

	if _, err := p.Reserve(sink.pop(), 7); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Reserve(sink.pop(), 7); !errors.Is(err, ErrDuplicateTimestamp) {
		t.Fatalf("want ErrDuplicateTimestamp, got %v", err)
	}
}

func TestReturnUnknownTimestamp(t *testing.T) {
	p := New(2, nil)
	p.Queue(16, &sinkRecorder{})
	if err := p.Return(99); !errors.Is(err, ErrUnknownTimestamp) {
		t.Fatalf("want ErrUnknownTimestamp, got %v", err)
	}
}

func TestReturnAfterStopIsDropped(t *testing.T) {
	p := New(2, nil)
	sink := &sinkRecorder{}
	p.Queue(16, sink)

	if _, err := p.Reserve(sink.pop(), 1); err != nil {
		t.Fatal(err)
	}
	p.Stop()
	if p.Queued() != 0 || p.Pending() != 1 {
		t.Fatalf("unexpected stats after stop %+v", p.Stats())
	}
	if err := p.Return(1); err != nil {
		t.Fatal(err)
	}
	if len(sink.bufs) != 1 {
		t.Fatalf("buffer handed back to a stopped device")
	}
	if p.Pending() != 0 || p.Queued() != 0 {
		t.Fatalf("unexpected stats %+v", p.Stats())
	}
}

func TestReturnOldGenerationIsDropped(t *testing.T) {
	p := New(2, nil)
	first := &sinkRecorder{}
	p.Queue(16, first)
	if _, err := p.Reserve(first.pop(), 1); err != nil {
		t.Fatal(err)
	}

	second := &sinkRecorder{}
	p.Queue(32, second)
	if err := p.Return(1); err != nil {
		t.Fatal(err)
	}
	if len(second.bufs) != 2 || p.Queued() != 2 {
		t.Fatalf("old generation buffer was requeued: %+v", p.Stats())
	}
}
