package camera

import (
	"shutter-capture/pkg/types"
)

func ValidRotation(degrees int) bool {
	switch degrees {
	case 0, 90, 180, 270:
		return true
	}
	return false
}

// PreviewRotation is the display orientation to apply for a display rotated
// by degrees. Front cameras are mirrored, so their rotation runs the other
// way.
func PreviewRotation(facing types.Facing, degrees int) int {
	if facing == types.FacingFront {
		return (360 - degrees) % 360
	}
	return degrees
}

// FrameRotation is the clockwise rotation a consumer has to apply to a frame
// of camera desc to show it upright on a display rotated by degrees.
func FrameRotation(desc types.CameraDescriptor, degrees int) int {
	if desc.Facing == types.FacingBack {
		degrees = 360 - degrees
	}
	return (desc.Orientation + degrees) % 360
}
