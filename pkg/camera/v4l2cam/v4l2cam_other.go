//go:build !linux

package v4l2cam

import (
	"errors"

	"shutter-capture/pkg/camera"
	"shutter-capture/pkg/types"
)

var ErrUnsupportedPlatform = errors.New("v4l2 capture is only available on linux")

type Option func()

func WithPixelFormat(types.PixelFormat) Option { return func() {} }

func WithFramerates(...int) Option { return func() {} }

func WithControls(map[uint32]int32) Option { return func() {} }

func New([]string, ...Option) (camera.Hardware, error) {
	return nil, ErrUnsupportedPlatform
}
