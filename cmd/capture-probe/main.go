package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"shutter-capture/pkg/camera"
	"shutter-capture/pkg/camera/fakecam"
	"shutter-capture/pkg/camera/v4l2cam"
	"shutter-capture/pkg/config"
	"shutter-capture/pkg/stream"
	"shutter-capture/pkg/types"
	"shutter-capture/pkg/utils"
	"shutter-capture/pkg/video"
)

var logger = utils.GetLogger()

func main() {
	app := &cli.App{
		Name:  "capture-probe",
		Usage: "inspect cameras and record short clips",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "device", Aliases: []string{"d"}, Value: cli.NewStringSlice(camera.DefaultDevice), Usage: "v4l2 device paths"},
			&cli.StringFlag{Name: "pixel-format", Value: "yuyv", Usage: "yuyv, mjpeg or rgb24"},
			&cli.BoolFlag{Name: "fake", Usage: "use synthetic cameras"},
			&cli.StringFlag{Name: "log-level", Value: "info"},
		},
		Before: func(c *cli.Context) error {
			return utils.SetLevel(c.String("log-level"))
		},
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "list cameras",
				Action: list,
			},
			{
				Name:   "formats",
				Usage:  "print the capture formats of a camera as json",
				Flags:  []cli.Flag{&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "camera name, the first camera when empty"}},
				Action: formats,
			},
			{
				Name:  "record",
				Usage: "record an mjpeg avi",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Aliases: []string{"n"}},
					&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Value: "probe.avi"},
					&cli.IntFlag{Name: "width", Value: 640},
					&cli.IntFlag{Name: "height", Value: 480},
					&cli.IntFlag{Name: "fps", Value: camera.DefaultFPS},
					&cli.DurationFlag{Name: "duration", Value: 5 * time.Second},
					&cli.IntFlag{Name: "quality", Value: 90},
				},
				Action: record,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Fatal(err)
	}
}

func hardware(c *cli.Context) (camera.Hardware, error) {
	if c.Bool("fake") {
		hw := fakecam.New()
		hw.AutoRun(camera.DefaultFPS)
		return hw, nil
	}
	format, err := config.ParsePixelFormat(c.String("pixel-format"))
	if err != nil {
		return nil, err
	}
	return v4l2cam.New(c.StringSlice("device"), v4l2cam.WithPixelFormat(format))
}

func list(c *cli.Context) error {
	hw, err := hardware(c)
	if err != nil {
		return err
	}
	for i := 0; i < hw.NumberOfCameras(); i++ {
		desc, err := hw.CameraInfo(i)
		if err != nil {
			return err
		}
		fmt.Printf("%d\t%s\t%s\t%d\n", i, desc.Name, desc.Facing, desc.Orientation)
	}
	return nil
}

func formats(c *cli.Context) error {
	hw, err := hardware(c)
	if err != nil {
		return err
	}
	ctl, err := camera.New(hw, c.String("name"), nil)
	if err != nil {
		return err
	}
	defer ctl.Close()

	fs, err := ctl.SupportedFormats(c.Context)
	if err != nil {
		return err
	}
	data, err := camera.FormatsJSON(fs)
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func record(c *cli.Context) error {
	hw, err := hardware(c)
	if err != nil {
		return err
	}
	hub := stream.NewHub()
	defer hub.Close()
	ctl, err := camera.New(hw, c.String("name"), hub)
	if err != nil {
		return err
	}
	defer ctl.Close()

	cfg := types.CaptureConfig{
		Width:  c.Int("width"),
		Height: c.Int("height"),
		MaxFPS: c.Int("fps"),
	}
	if err = ctl.StartCapture(c.Context, cfg); err != nil {
		return err
	}
	rec := video.NewRecorder(hub, c.Int("quality"))
	if err = rec.Start(c.String("out"), cfg.MaxFPS); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Context, c.Duration("duration"))
	defer cancel()
	<-ctx.Done()

	res, err := rec.Stop()
	if err != nil {
		return err
	}
	if err = ctl.StopCapture(c.Context); err != nil {
		return err
	}
	logger.Infof("wrote %s: %d frames (%d skipped) in %s", res.Path, res.Frames, res.Skipped, res.Duration)
	return nil
}
