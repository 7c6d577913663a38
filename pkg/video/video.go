package video

import (
	"errors"
	"sync"
	"time"

	"github.com/icza/mjpeg"
	"go.uber.org/zap"

	"shutter-capture/pkg/stream"
	"shutter-capture/pkg/types"
	"shutter-capture/pkg/utils"
	"shutter-capture/pkg/utils/image"
)

var (
	ErrRecording    = errors.New("already recording")
	ErrNotRecording = errors.New("not recording")
)

// Builder writes JPEG frames into an MJPEG AVI file.
type Builder struct {
	width  int
	height int
	fps    int

	cnt int
	aw  mjpeg.AviWriter
}

func NewBuilder(path string, width, height, fps int) (*Builder, error) {
	aw, err := mjpeg.New(path, int32(width), int32(height), int32(fps))
	if err != nil {
		return nil, err
	}

	return &Builder{
		width:  width,
		height: height,
		fps:    fps,
		aw:     aw,
	}, nil
}

func (b *Builder) Add(frame []byte) error {
	err := b.aw.AddFrame(frame)
	if err != nil {
		return err
	}
	b.cnt++

	return nil
}

func (b *Builder) Close() error {
	return b.aw.Close()
}

func (b *Builder) GetCnt() int {
	return b.cnt
}

// Recorder records frames read from a stream hub. The AVI header takes the
// size of the first frame; frames of any other size are skipped.
type Recorder struct {
	hub     *stream.Hub
	quality int
	logger  *zap.SugaredLogger

	lock    sync.Mutex
	current *recording
}

type recording struct {
	path string
	fps  int
	sub  *stream.Subscription
	done chan struct{}

	builder *Builder
	skipped int
	err     error
	started time.Time
}

// Result describes a finished recording.
type Result struct {
	Path     string        `json:"path"`
	Frames   int           `json:"frames"`
	Skipped  int           `json:"skipped"`
	Duration time.Duration `json:"duration"`
}

func NewRecorder(hub *stream.Hub, quality int) *Recorder {
	if quality <= 0 {
		quality = image.DefaultQuality
	}
	return &Recorder{hub: hub, quality: quality, logger: utils.GetLogger()}
}

func (r *Recorder) Start(path string, fps int) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.current != nil {
		return ErrRecording
	}

	rec := &recording{
		path:    path,
		fps:     fps,
		sub:     r.hub.Subscribe(),
		done:    make(chan struct{}),
		started: time.Now(),
	}
	r.current = rec
	go r.run(rec)
	r.logger.Infof("video: recording to %s at %d fps", path, fps)

	return nil
}

func (r *Recorder) Recording() bool {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.current != nil
}

// Stop finishes the file and reports what was written.
func (r *Recorder) Stop() (Result, error) {
	r.lock.Lock()
	rec := r.current
	r.current = nil
	r.lock.Unlock()
	if rec == nil {
		return Result{}, ErrNotRecording
	}

	rec.sub.Close()
	<-rec.done

	res := Result{Path: rec.path, Skipped: rec.skipped, Duration: time.Since(rec.started)}
	err := rec.err
	if rec.builder != nil {
		res.Frames = rec.builder.GetCnt()
		err = errors.Join(err, rec.builder.Close())
	}
	r.logger.Infof("video: %s finished, %d frames, %d skipped", rec.path, res.Frames, res.Skipped)

	return res, err
}

func (r *Recorder) run(rec *recording) {
	defer close(rec.done)
	for {
		f := rec.sub.Next()
		if f == nil {
			return
		}
		if err := r.add(rec, f); err != nil {
			rec.err = err
			r.logger.Errorf("video: %s: %s", rec.path, err)
			return
		}
	}
}

func (r *Recorder) add(rec *recording, f *types.Frame) error {
	if rec.builder == nil {
		b, err := NewBuilder(rec.path, f.Width, f.Height, rec.fps)
		if err != nil {
			return err
		}
		rec.builder = b
	}
	if f.Width != rec.builder.width || f.Height != rec.builder.height {
		rec.skipped++
		return nil
	}
	jpg, err := image.FrameToJPEG(f, r.quality)
	if err != nil {
		rec.skipped++
		r.logger.Warnf("video: skip frame: %s", err)
		return nil
	}
	return rec.builder.Add(jpg)
}
