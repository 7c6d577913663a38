package camera

import (
	"fmt"
	"math"

	"github.com/goccy/go-json"

	"shutter-capture/pkg/types"
)

// ClosestSupportedSize picks the size with the smallest summed distance in
// width and height from the request.
func ClosestSupportedSize(sizes []types.Size, width, height int) types.Size {
	best := types.Size{}
	bestDiff := math.MaxInt
	for _, s := range sizes {
		diff := abs(s.Width-width) + abs(s.Height-height)
		if diff < bestDiff {
			best, bestDiff = s, diff
		}
	}
	return best
}

// ClosestFramerateRange prefers the range whose maximum is nearest to the
// requested maximum, then the one whose minimum is nearest.
func ClosestFramerateRange(ranges []types.FramerateRange, minFPS, maxFPS int) types.FramerateRange {
	best := types.FramerateRange{}
	bestDiff := math.MaxInt
	for _, r := range ranges {
		diff := 2*abs(r.Max-maxFPS) + abs(r.Min-minFPS)
		if diff < bestDiff {
			best, bestDiff = r, diff
		}
	}
	return best
}

// NegotiateFormat maps a request onto what the device supports.
func NegotiateFormat(p Parameters, cfg types.CaptureConfig) (types.CaptureFormat, error) {
	if len(p.SupportedPreviewSizes) == 0 {
		return types.CaptureFormat{}, ErrNoSupportedSize
	}
	size := ClosestSupportedSize(p.SupportedPreviewSizes, cfg.Width, cfg.Height)
	fps := ClosestFramerateRange(p.SupportedFpsRanges, cfg.MinFPS, cfg.MaxFPS)

	return types.CaptureFormat{
		Width:        size.Width,
		Height:       size.Height,
		MinFramerate: fps.Min,
		MaxFramerate: fps.Max,
		PixelFormat:  p.PixelFormat,
	}, nil
}

// SupportedFormats lists one format per preview size, spanning every frame
// rate the device offers.
func SupportedFormats(p Parameters) []types.CaptureFormat {
	minFPS, maxFPS := 0, 0
	for i, r := range p.SupportedFpsRanges {
		if i == 0 || r.Min < minFPS {
			minFPS = r.Min
		}
		if r.Max > maxFPS {
			maxFPS = r.Max
		}
	}

	res := make([]types.CaptureFormat, 0, len(p.SupportedPreviewSizes))
	for _, s := range p.SupportedPreviewSizes {
		res = append(res, types.CaptureFormat{
			Width:        s.Width,
			Height:       s.Height,
			MinFramerate: minFPS,
			MaxFramerate: maxFPS,
			PixelFormat:  p.PixelFormat,
		})
	}
	return res
}

func FormatsJSON(formats []types.CaptureFormat) ([]byte, error) {
	return json.Marshal(formats)
}

func DeviceNames(hw Hardware) []string {
	n := hw.NumberOfCameras()
	names := make([]string, 0, n)
	for i := 0; i < n; i++ {
		info, err := hw.CameraInfo(i)
		if err != nil {
			logger.Warnf("camera %d: %s", i, err)
			continue
		}
		names = append(names, info.Name)
	}
	return names
}

// FindCamera resolves a device name. An empty name selects the first camera.
func FindCamera(hw Hardware, name string) (types.CameraDescriptor, error) {
	if hw.NumberOfCameras() == 0 {
		return types.CameraDescriptor{}, ErrCameraNotFound
	}
	if name == "" {
		return hw.CameraInfo(0)
	}
	for i := 0; i < hw.NumberOfCameras(); i++ {
		info, err := hw.CameraInfo(i)
		if err != nil {
			continue
		}
		if info.Name == name {
			return info, nil
		}
	}
	return types.CameraDescriptor{}, fmt.Errorf("%w: %s", ErrCameraNotFound, name)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
