package image

import (
	"bytes"
	"errors"
	"image/color"
	"image/jpeg"
	"testing"

	"shutter-capture/pkg/types"
)

const (
	width  = 64
	height = 48
)

func filled(n int, v byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = v
	}
	return b
}

func TestDecodeYUYV(t *testing.T) {
	img := DecodeYUYV(filled(width*height*2, 128), width, height)
	r, g, b, _ := img.At(10, 10).RGBA()
	if r>>8 != 128 || g>>8 != 128 || b>>8 != 128 {
		t.Fatalf("want mid gray, got %d %d %d", r>>8, g>>8, b>>8)
	}
}

func TestDecodeNV21(t *testing.T) {
	data := filled(width*height*3/2, 128)
	for i := 0; i < width*height; i++ {
		data[i] = 200
	}
	img := DecodeNV21(data, width, height)
	if got := img.YCbCrAt(width-1, height-1); got.Y != 200 || got.Cb != 128 || got.Cr != 128 {
		t.Fatalf("unexpected pixel %+v", got)
	}
}

func TestDecodeRGB24(t *testing.T) {
	data := make([]byte, width*height*3)
	for i := 0; i < len(data); i += 3 {
		data[i] = 0xff
	}
	img, err := Decode(data, width, height, types.PixelFmtRGB24)
	if err != nil {
		t.Fatal(err)
	}
	if got := img.At(3, 4); got != (color.RGBA{R: 0xff, A: 0xff}) {
		t.Fatalf("want red, got %v", got)
	}
}

func TestDecodeShortFrame(t *testing.T) {
	if _, err := Decode(make([]byte, 10), width, height, types.PixelFmtYUYV); !errors.Is(err, ErrShortFrame) {
		t.Fatalf("want ErrShortFrame, got %v", err)
	}
}

func TestFrameToJPEG(t *testing.T) {
	f := &types.Frame{
		Data:        filled(width*height*3/2, 90),
		Width:       width,
		Height:      height,
		PixelFormat: types.PixelFmtNV21,
	}
	out, err := FrameToJPEG(f, DefaultQuality)
	if err != nil {
		t.Fatal(err)
	}
	img, err := jpeg.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != width || b.Dy() != height {
		t.Fatalf("unexpected bounds %v", b)
	}

	mjpeg := &types.Frame{Data: out, Width: width, Height: height, PixelFormat: types.PixelFmtMJPEG}
	again, err := FrameToJPEG(mjpeg, DefaultQuality)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(again, out) {
		t.Fatal("mjpeg frame was re-encoded")
	}
}
