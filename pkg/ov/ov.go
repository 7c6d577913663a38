package ov

import (
	"shutter-capture/pkg/camera"
	"shutter-capture/pkg/schedule"
	"shutter-capture/pkg/stream"
	"shutter-capture/pkg/types"
	"shutter-capture/pkg/utils/ps"
)

type Album struct {
	Name string `json:"name" binding:"required"`
	Info string `json:"info"`
}

// Format is the body of capture start and format change requests.
type Format struct {
	Width  int `json:"width" binding:"required"`
	Height int `json:"height" binding:"required"`
	MinFPS int `json:"minFps"`
	MaxFPS int `json:"maxFps" binding:"required"`
}

func (f Format) CaptureConfig() types.CaptureConfig {
	return types.CaptureConfig{Width: f.Width, Height: f.Height, MinFPS: f.MinFPS, MaxFPS: f.MaxFPS}
}

type OutputFormat struct {
	Width  int `json:"width"`
	Height int `json:"height"`
	FPS    int `json:"fps" binding:"required"`
}

type Rotation struct {
	Degrees *int `json:"degrees" binding:"required"`
}

type Preview struct {
	Name string `json:"name" binding:"required"`
}

// Timelapse starts saving frames into Album every Interval milliseconds.
type Timelapse struct {
	Album    string `json:"album" binding:"required"`
	Interval int    `json:"interval" binding:"required"`
}

type Record struct {
	Album string `json:"album" binding:"required"`
	FPS   int    `json:"fps"`
}

type DeviceStats struct {
	CPU       ps.CPU          `json:"cpu"`
	Memory    ps.Memory       `json:"memory"`
	Disk      ps.Disk         `json:"disk"`
	Stream    stream.Stats    `json:"stream"`
	Camera    camera.Stats    `json:"camera"`
	Timelapse schedule.Status `json:"timelapse"`

	LastError string `json:"lastError,omitempty"`
	Webdav    bool   `json:"webdav"`
	Recording bool   `json:"recording"`
}
