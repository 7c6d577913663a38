package camera

import (
	"testing"

	"shutter-capture/pkg/types"
)

func TestPreviewRotation(t *testing.T) {
	for _, deg := range []int{0, 90, 180, 270} {
		if got := PreviewRotation(types.FacingBack, deg); got != deg {
			t.Errorf("back %d: got %d", deg, got)
		}
	}
	front := map[int]int{0: 0, 90: 270, 180: 180, 270: 90}
	for deg, want := range front {
		if got := PreviewRotation(types.FacingFront, deg); got != want {
			t.Errorf("front %d: want %d, got %d", deg, want, got)
		}
	}
}

func TestFrameRotation(t *testing.T) {
	back := types.CameraDescriptor{Facing: types.FacingBack, Orientation: 90}
	front := types.CameraDescriptor{Facing: types.FacingFront, Orientation: 270}

	tests := []struct {
		desc types.CameraDescriptor
		deg  int
		want int
	}{
		{back, 0, 90},
		{back, 90, 0},
		{back, 270, 180},
		{front, 0, 270},
		{front, 90, 0},
		{front, 180, 90},
	}
	for _, tt := range tests {
		if got := FrameRotation(tt.desc, tt.deg); got != tt.want {
			t.Errorf("%s camera at %d: want %d, got %d", tt.desc.Facing, tt.deg, tt.want, got)
		}
	}
}

func TestValidRotation(t *testing.T) {
	if !ValidRotation(270) || ValidRotation(45) || ValidRotation(360) {
		t.Fatal("unexpected rotation validation")
	}
}
