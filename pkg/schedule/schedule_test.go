package schedule

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"shutter-capture/pkg/storage/album"
	"shutter-capture/pkg/types"
)

type source struct {
	mu sync.Mutex
	f  *types.Frame
}

func (s *source) Latest() *types.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f
}

func (s *source) set(ts time.Time) {
	s.mu.Lock()
	s.f = &types.Frame{
		Data:        make([]byte, 16*16*3/2),
		Width:       16,
		Height:      16,
		PixelFormat: types.PixelFmtNV21,
		Timestamp:   ts,
	}
	s.mu.Unlock()
}

func TestShootSavesEachFrameOnce(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := &source{}
	s := New(ctx, src, 0)
	a, err := album.New("tl", "", t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	s.Begin(a, time.Hour)
	defer s.Stop()

	if _, err = s.Shoot(); !errors.Is(err, ErrNoFrame) {
		t.Fatalf("want ErrNoFrame, got %v", err)
	}
	src.set(time.Unix(10, 0))
	name, err := s.Shoot()
	if err != nil {
		t.Fatal(err)
	}
	if name != "tl-0.jpg" {
		t.Fatalf("unexpected name %s", name)
	}
	if _, err = s.Shoot(); !errors.Is(err, ErrNoFrame) {
		t.Fatalf("same frame saved twice: %v", err)
	}
	if st := s.Status(); st.Shots != 1 || !st.Running || st.Album != "tl" {
		t.Fatalf("unexpected status %+v", st)
	}
}

func TestTickerShoots(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := &source{}
	src.set(time.Now())
	s := New(ctx, src, 0)
	a, err := album.New("tick", "", t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	s.Begin(a, 10*time.Millisecond)

	deadline := time.Now().Add(time.Second)
	for s.Status().Shots == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	s.Stop()

	images, err := a.ListImages()
	if err != nil {
		t.Fatal(err)
	}
	if len(images) != 1 {
		t.Fatalf("want 1 image, got %v", images)
	}
}
