package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"shutter-capture/pkg/camera"
	"shutter-capture/pkg/camera/fakecam"
	"shutter-capture/pkg/camera/v4l2cam"
	"shutter-capture/pkg/stream"
	"shutter-capture/pkg/types"
	"shutter-capture/pkg/utils/image"
)

var (
	dev    = flag.String("device", camera.DefaultDevice, "")
	fake   = flag.Bool("fake", false, "use a synthetic camera")
	width  = flag.Int("width", 640, "")
	height = flag.Int("height", 480, "")
	out    = flag.String("o", "1.jpg", "output file")
)

func main() {
	flag.Parse()

	var hw camera.Hardware
	if *fake {
		f := fakecam.New()
		f.AutoRun(camera.DefaultFPS)
		hw = f
	} else {
		v, err := v4l2cam.New([]string{*dev})
		if err != nil {
			log.Fatalln(err)
		}
		hw = v
	}

	hub := stream.NewHub()
	defer hub.Close()
	ctl, err := camera.New(hw, "", hub)
	if err != nil {
		log.Fatalln(err)
	}
	defer ctl.Close()

	if err = getImage(ctl, hub, *out); err != nil {
		log.Println(err)
	}
}

func getImage(ctl *camera.Controller, hub *stream.Hub, path string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sub := hub.Subscribe()
	defer sub.Close()
	go func() {
		<-ctx.Done()
		sub.Close()
	}()

	cfg := types.CaptureConfig{Width: *width, Height: *height, MaxFPS: camera.DefaultFPS}
	if err := ctl.StartCapture(ctx, cfg); err != nil {
		return err
	}
	defer ctl.StopCapture(context.Background())

	log.Println("get output")
	f := sub.Next()
	if f == nil {
		return ctx.Err()
	}
	jpg, err := image.FrameToJPEG(f, image.DefaultQuality)
	if err != nil {
		return err
	}

	return os.WriteFile(path, jpg, 0666)
}
