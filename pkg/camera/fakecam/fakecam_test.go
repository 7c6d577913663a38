package fakecam

import (
	"errors"
	"testing"
	"time"

	"shutter-capture/pkg/camera"
)

func TestOpenIsExclusive(t *testing.T) {
	hw := New()
	dev, err := hw.Open(0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err = hw.Open(0); !errors.Is(err, ErrBusy) {
		t.Fatalf("want ErrBusy, got %v", err)
	}
	if err = dev.Release(); err != nil {
		t.Fatal(err)
	}
	if err = dev.Release(); !errors.Is(err, ErrReleased) {
		t.Fatalf("want ErrReleased, got %v", err)
	}
	if _, err = hw.Open(0); err != nil {
		t.Fatalf("open after release: %v", err)
	}
}

func TestAutoRunEmitsWhileStreaming(t *testing.T) {
	hw := New()
	hw.AutoRun(100)
	dev, err := hw.Open(0)
	if err != nil {
		t.Fatal(err)
	}
	defer dev.Release()

	got := make(chan []byte, 16)
	dev.SetPreviewCallbackWithBuffer(func(data []byte, d camera.Device) {
		select {
		case got <- append([]byte(nil), data...):
		default:
		}
		d.AddCallbackBuffer(data)
	})
	dev.AddCallbackBuffer(make([]byte, 8))
	if err = dev.SetPreviewTarget(camera.Discard); err != nil {
		t.Fatal(err)
	}
	if err = dev.StartPreview(); err != nil {
		t.Fatal(err)
	}

	select {
	case b := <-got:
		if b[0] == 0 {
			t.Fatal("frame was not written")
		}
	case <-time.After(time.Second):
		t.Fatal("no frame emitted")
	}
	if err = dev.StopPreview(); err != nil {
		t.Fatal(err)
	}
}

func TestStartPreviewNeedsTarget(t *testing.T) {
	dev, err := New().Open(1)
	if err != nil {
		t.Fatal(err)
	}
	if err = dev.StartPreview(); !errors.Is(err, ErrNoTarget) {
		t.Fatalf("want ErrNoTarget, got %v", err)
	}
}
