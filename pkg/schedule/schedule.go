package schedule

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"shutter-capture/pkg/storage/album"
	"shutter-capture/pkg/types"
	"shutter-capture/pkg/utils"
	"shutter-capture/pkg/utils/image"
)

var ErrNoFrame = errors.New("no new frame since the last shot")

// FrameSource hands out the most recent captured frame.
type FrameSource interface {
	Latest() *types.Frame
}

// Scheduler saves the newest frame into an album at a fixed interval.
type Scheduler struct {
	t       *time.Ticker
	source  FrameSource
	quality int

	lock     sync.Mutex
	a        *album.Album
	interval time.Duration
	lastShot time.Time
	shots    int
	logger   *zap.SugaredLogger
}

func New(ctx context.Context, source FrameSource, quality int) *Scheduler {
	t := time.NewTicker(time.Second)
	t.Stop()

	if quality <= 0 {
		quality = image.DefaultQuality
	}
	s := &Scheduler{
		t:       t,
		source:  source,
		quality: quality,
		logger:  utils.GetLogger(),
	}
	s.startDeal(ctx)

	return s
}

func (s *Scheduler) Begin(a *album.Album, interval time.Duration) {
	if a == nil || interval <= 0 {
		s.Stop()
		return
	}
	s.lock.Lock()
	s.a = a
	s.interval = interval
	s.shots = 0
	s.lock.Unlock()
	s.t.Reset(interval)
	s.logger.Infof("scheduler: saving a frame into %s every %s", a.Name, interval)
}

func (s *Scheduler) Stop() {
	s.t.Stop()
	s.lock.Lock()
	s.a = nil
	s.lock.Unlock()
	s.logger.Info("scheduler: stopped")
}

type Status struct {
	Album    string        `json:"album,omitempty"`
	Interval time.Duration `json:"interval"`
	Shots    int           `json:"shots"`
	Running  bool          `json:"running"`
}

func (s *Scheduler) Status() Status {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.a == nil {
		return Status{}
	}
	return Status{Album: s.a.Name, Interval: s.interval, Shots: s.shots, Running: true}
}

// Shoot saves the latest frame into the active album once.
func (s *Scheduler) Shoot() (string, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.a == nil {
		return "", errors.New("no album selected")
	}
	f := s.source.Latest()
	if f == nil || !f.Timestamp.After(s.lastShot) {
		return "", ErrNoFrame
	}
	jpg, err := image.FrameToJPEG(f, s.quality)
	if err != nil {
		return "", err
	}
	name, err := s.a.SaveImage(jpg)
	if err != nil {
		return "", err
	}
	s.lastShot = f.Timestamp
	s.shots++

	return name, nil
}

func (s *Scheduler) startDeal(ctx context.Context) {
	go func(s *Scheduler) {
		for {
			select {
			case start := <-s.t.C:
				name, err := s.Shoot()
				if err != nil {
					s.logger.Warnf("scheduler: %s", err)
					continue
				}
				s.logger.Infof("scheduler: took %s to save %s", time.Since(start), name)
			case <-ctx.Done():
				s.t.Stop()
				s.logger.Info("scheduler: stopped!")
				return
			}
		}
	}(s)
}
