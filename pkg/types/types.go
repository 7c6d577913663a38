package types

import (
	"errors"
	"fmt"
	"time"
)

type Facing int

const (
	FacingBack Facing = iota
	FacingFront
)

func (f Facing) String() string {
	switch f {
	case FacingFront:
		return "front"
	default:
		return "back"
	}
}

func ParseFacing(s string) (Facing, error) {
	switch s {
	case "", "back":
		return FacingBack, nil
	case "front":
		return FacingFront, nil
	}
	return FacingBack, fmt.Errorf("unknown facing %q", s)
}

// CameraDescriptor is the static identity of a physical camera.
type CameraDescriptor struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
	// Facing is the direction the lens points relative to the user.
	Facing Facing `json:"facing"`
	// Orientation is the sensor mounting angle in degrees.
	Orientation int `json:"orientation"`
}

type PixelFormat int

const (
	PixelFmtNV21 PixelFormat = iota
	PixelFmtYUYV
	PixelFmtRGB24
	PixelFmtMJPEG
)

func (p PixelFormat) String() string {
	switch p {
	case PixelFmtNV21:
		return "NV21"
	case PixelFmtYUYV:
		return "YUYV"
	case PixelFmtRGB24:
		return "RGB24"
	case PixelFmtMJPEG:
		return "MJPEG"
	default:
		return "unknown"
	}
}

// BitsPerPixel is the storage cost of one pixel. MJPEG reports the
// uncompressed YUYV bound so that a slot can hold any compressed frame.
func (p PixelFormat) BitsPerPixel() int {
	switch p {
	case PixelFmtNV21:
		return 12
	case PixelFmtYUYV, PixelFmtMJPEG:
		return 16
	case PixelFmtRGB24:
		return 24
	default:
		return 0
	}
}

type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// FramerateRange is an inclusive fps interval supported by a device.
type FramerateRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// CaptureConfig is what a caller asks for; the device decides what it gets.
type CaptureConfig struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
	MinFPS int `json:"minFps" yaml:"min_fps"`
	MaxFPS int `json:"maxFps" yaml:"max_fps"`
}

var ErrInvalidConfig = errors.New("invalid capture config")

func (c CaptureConfig) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("%w: size %dx%d", ErrInvalidConfig, c.Width, c.Height)
	}
	if c.MaxFPS <= 0 {
		return fmt.Errorf("%w: max fps %d", ErrInvalidConfig, c.MaxFPS)
	}
	if c.MinFPS < 0 || c.MinFPS > c.MaxFPS {
		return fmt.Errorf("%w: fps range [%d, %d]", ErrInvalidConfig, c.MinFPS, c.MaxFPS)
	}
	return nil
}

func (c CaptureConfig) String() string {
	return fmt.Sprintf("%dx%d@[%d,%d]", c.Width, c.Height, c.MinFPS, c.MaxFPS)
}

// CaptureFormat is a format negotiated with the device.
type CaptureFormat struct {
	Width        int         `json:"width"`
	Height       int         `json:"height"`
	MinFramerate int         `json:"minFramerate"`
	MaxFramerate int         `json:"maxFramerate"`
	PixelFormat  PixelFormat `json:"pixelFormat"`
}

func (f CaptureFormat) FrameSize() int {
	return f.Width * f.Height * f.PixelFormat.BitsPerPixel() / 8
}

func (f CaptureFormat) String() string {
	return fmt.Sprintf("%dx%d@[%d:%d] %s", f.Width, f.Height, f.MinFramerate, f.MaxFramerate, f.PixelFormat)
}

// Frame is a view over a pool slot. It is only valid for the duration of
// the consumer callback that receives it.
type Frame struct {
	Data        []byte
	Width       int
	Height      int
	PixelFormat PixelFormat
	Rotation    int
	Timestamp   time.Time
	// Session identifies the capture session the frame belongs to.
	Session string
}

type State int

const (
	StateUninitialized State = iota
	StateStarting
	StateCapturing
	StateStopping
	StateStopped
)

var stateNames = map[State]string{
	StateUninitialized: "uninitialized",
	StateStarting:      "starting",
	StateCapturing:     "capturing",
	StateStopping:      "stopping",
	StateStopped:       "stopped",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "unknown"
}

func ParseState(s string) (State, error) {
	for st, n := range stateNames {
		if n == s {
			return st, nil
		}
	}
	return StateUninitialized, fmt.Errorf("unknown state %q", s)
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (f Facing) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

func (p PixelFormat) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}
