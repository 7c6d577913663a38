package camera

import (
	"errors"
	"strings"
	"testing"

	"shutter-capture/pkg/types"
)

var sizes = []types.Size{
	{Width: 320, Height: 240},
	{Width: 640, Height: 480},
	{Width: 1280, Height: 720},
	{Width: 1920, Height: 1080},
}

func TestClosestSupportedSize(t *testing.T) {
	tests := []struct {
		width, height int
		want          types.Size
	}{
		{640, 480, types.Size{Width: 640, Height: 480}},
		{800, 600, types.Size{Width: 640, Height: 480}},
		{1280, 800, types.Size{Width: 1280, Height: 720}},
		{4000, 3000, types.Size{Width: 1920, Height: 1080}},
		{1, 1, types.Size{Width: 320, Height: 240}},
	}
	for _, tt := range tests {
		if got := ClosestSupportedSize(sizes, tt.width, tt.height); got != tt.want {
			t.Errorf("%dx%d: want %s, got %s", tt.width, tt.height, tt.want, got)
		}
	}
}

func TestClosestFramerateRange(t *testing.T) {
	ranges := []types.FramerateRange{{Min: 7, Max: 15}, {Min: 15, Max: 30}, {Min: 30, Max: 30}}

	if got := ClosestFramerateRange(ranges, 15, 30); got != (types.FramerateRange{Min: 15, Max: 30}) {
		t.Errorf("want [15,30], got %+v", got)
	}
	if got := ClosestFramerateRange(ranges, 30, 30); got != (types.FramerateRange{Min: 30, Max: 30}) {
		t.Errorf("want [30,30], got %+v", got)
	}
	if got := ClosestFramerateRange(ranges, 5, 10); got != (types.FramerateRange{Min: 7, Max: 15}) {
		t.Errorf("want [7,15], got %+v", got)
	}
}

func TestNegotiateFormat(t *testing.T) {
	p := Parameters{
		SupportedPreviewSizes: sizes,
		SupportedFpsRanges:    []types.FramerateRange{{Min: 15, Max: 30}},
		PixelFormat:           types.PixelFmtNV21,
	}
	f, err := NegotiateFormat(p, types.CaptureConfig{Width: 1270, Height: 710, MinFPS: 10, MaxFPS: 25})
	if err != nil {
		t.Fatal(err)
	}
	want := types.CaptureFormat{Width: 1280, Height: 720, MinFramerate: 15, MaxFramerate: 30, PixelFormat: types.PixelFmtNV21}
	if f != want {
		t.Fatalf("want %s, got %s", want, f)
	}
	if f.FrameSize() != 1280*720*3/2 {
		t.Fatalf("unexpected frame size %d", f.FrameSize())
	}

	if _, err = NegotiateFormat(Parameters{}, types.CaptureConfig{Width: 1, Height: 1, MaxFPS: 1}); !errors.Is(err, ErrNoSupportedSize) {
		t.Fatalf("want ErrNoSupportedSize, got %v", err)
	}
}

func TestFormatsJSON(t *testing.T) {
	p := Parameters{
		SupportedPreviewSizes: sizes[:2],
		SupportedFpsRanges:    []types.FramerateRange{{Min: 15, Max: 15}, {Min: 7, Max: 30}},
		PixelFormat:           types.PixelFmtYUYV,
	}
	formats := SupportedFormats(p)
	if len(formats) != 2 || formats[1].MinFramerate != 7 || formats[1].MaxFramerate != 30 {
		t.Fatalf("unexpected formats %v", formats)
	}

	b, err := FormatsJSON(formats)
	if err != nil {
		t.Fatal(err)
	}
	s := string(b)
	for _, want := range []string{`"width":320`, `"height":480`, `"pixelFormat":"YUYV"`, `"maxFramerate":30`} {
		if !strings.Contains(s, want) {
			t.Errorf("%s missing from %s", want, s)
		}
	}
}
