package camera

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"shutter-capture/pkg/framepool"
	"shutter-capture/pkg/looper"
	"shutter-capture/pkg/types"
	"shutter-capture/pkg/utils/clock"
)

// ErrorHandler is told about device failures and freezes. It runs on the
// looper.
type ErrorHandler func(description string)

type Option func(c *Controller)

func WithLogger(l *zap.SugaredLogger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithPreviewTarget registers the surface bound at start.
func WithPreviewTarget(t PreviewTarget) Option {
	return func(c *Controller) { c.target = t }
}

func WithErrorHandler(h ErrorHandler) Option {
	return func(c *Controller) { c.errorHandler = h }
}

func WithBufferCount(n int) Option {
	return func(c *Controller) { c.bufferCount = n }
}

func WithClock(cl clock.Clock) Option {
	return func(c *Controller) { c.clock = cl }
}

// WithObserverPeriod sets how often frame rate and freezes are checked.
// Zero disables the observer.
func WithObserverPeriod(d time.Duration) Option {
	return func(c *Controller) { c.observerPeriod = d }
}

// Stats is a snapshot taken on the looper.
type Stats struct {
	State           types.State            `json:"state"`
	Camera          types.CameraDescriptor `json:"camera"`
	Session         string                 `json:"session,omitempty"`
	Format          *types.CaptureFormat   `json:"format,omitempty"`
	Frames          uint64                 `json:"frames"`
	Dropped         uint64                 `json:"dropped"`
	FPS             int                    `json:"fps"`
	Pool            *framepool.Stats       `json:"pool,omitempty"`
	DisplayRotation int                    `json:"displayRotation"`
	PreviewRotation int                    `json:"previewRotation"`
	PreviewAttached bool                   `json:"previewAttached"`
}

// Controller owns one camera. See the package documentation for the
// threading rules.
type Controller struct {
	hw       Hardware
	consumer Consumer
	looper   *looper.Looper

	logger         *zap.SugaredLogger
	clock          clock.Clock
	errorHandler   ErrorHandler
	bufferCount    int
	observerPeriod time.Duration

	closed        atomic.Bool
	pendingSwitch atomic.Bool

	// looper only
	desc            types.CameraDescriptor
	target          PreviewTarget
	displayRotation int
	state           *stateMachine
	sess            session
}

// New resolves deviceName (empty for the first camera) and starts the
// controller's looper. The camera is not opened until StartCapture.
func New(hw Hardware, deviceName string, consumer Consumer, opts ...Option) (*Controller, error) {
	desc, err := FindCamera(hw, deviceName)
	if err != nil {
		return nil, err
	}
	if consumer == nil {
		consumer = nopConsumer{}
	}

	c := &Controller{
		hw:             hw,
		consumer:       consumer,
		logger:         logger,
		clock:          clock.System,
		bufferCount:    framepool.DefaultCapacity,
		observerPeriod: DefaultObserverPeriod,
		desc:           desc,
		sess:           closedSession{},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.state = newStateMachine(c.logger)
	c.looper = looper.New("camera-" + desc.Name)
	c.logger.Infof("camera: controller for %s (%s, orientation %d)", desc.Name, desc.Facing, desc.Orientation)

	return c, nil
}

// StartCapture opens the camera and starts streaming the format closest to
// cfg. A controller that is already capturing rejects the call and keeps its
// session.
func (c *Controller) StartCapture(ctx context.Context, cfg types.CaptureConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	return c.do(ctx, func() error {
		return c.startOnLooper(cfg)
	})
}

// StopCapture stops streaming and releases the camera. Stopping a camera that
// is not capturing is a contract violation.
func (c *Controller) StopCapture(ctx context.Context) error {
	return c.do(ctx, c.stopOnLooper)
}

// ChangeCaptureFormat restarts streaming with a new format. Buffers of the
// previous format that are still in flight are dropped.
func (c *Controller) ChangeCaptureFormat(ctx context.Context, cfg types.CaptureConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	return c.do(ctx, func() error {
		s, ok := c.sess.(*openSession)
		if !ok {
			return c.violation("ChangeCaptureFormat", ErrNotCapturing)
		}
		if err := c.startPreview(s, cfg); err != nil {
			if !s.streaming {
				c.abort(s, "camera can not be restarted with the new format")
			}
			return err
		}
		return nil
	})
}

// SwitchCamera restarts capture on the next camera with the same requested
// format and returns its descriptor.
func (c *Controller) SwitchCamera(ctx context.Context) (types.CameraDescriptor, error) {
	if c.closed.Load() {
		return types.CameraDescriptor{}, ErrClosed
	}
	if !c.pendingSwitch.CompareAndSwap(false, true) {
		c.logger.Warn("camera: ignoring camera switch request")
		return types.CameraDescriptor{}, ErrSwitchPending
	}
	defer c.pendingSwitch.Store(false)

	return call(ctx, c, func() (types.CameraDescriptor, error) {
		s, ok := c.sess.(*openSession)
		if !ok {
			return c.desc, c.violation("SwitchCamera", ErrNotCapturing)
		}
		n := c.hw.NumberOfCameras()
		if n < 2 {
			return c.desc, ErrSingleCamera
		}
		next, err := c.hw.CameraInfo((c.desc.Index + 1) % n)
		if err != nil {
			return c.desc, err
		}

		cfg := s.config
		if err = c.stopOnLooper(); err != nil {
			c.logger.Warnf("camera: switch: %s", err)
		}
		c.desc = next
		c.logger.Infof("camera: switching to %s", next.Name)

		return c.desc, c.startOnLooper(cfg)
	})
}

// SetDisplayRotation records the display rotation and applies the matching
// preview orientation. It returns the orientation applied.
func (c *Controller) SetDisplayRotation(ctx context.Context, degrees int) (int, error) {
	if !ValidRotation(degrees) {
		return 0, fmt.Errorf("%w: %d", ErrInvalidRotation, degrees)
	}
	return call(ctx, c, func() (int, error) {
		c.displayRotation = degrees
		rotation := PreviewRotation(c.desc.Facing, degrees)
		if s, ok := c.sess.(*openSession); ok {
			if err := s.dev.SetDisplayOrientation(rotation); err != nil {
				return rotation, fmt.Errorf("%w: display orientation %d: %w", ErrPreviewBind, rotation, err)
			}
		}
		return rotation, nil
	})
}

// AttachPreview registers target and, when capturing, binds it in place of
// the current one. A failed bind leaves the running capture untouched.
func (c *Controller) AttachPreview(ctx context.Context, target PreviewTarget) error {
	if target == nil {
		return fmt.Errorf("%w: nil target", ErrPreviewBind)
	}
	return c.do(ctx, func() error {
		if !target.Valid() {
			return fmt.Errorf("%w: %w", ErrPreviewBind, ErrTargetInvalid)
		}
		if s, ok := c.sess.(*openSession); ok {
			if err := c.rebindPreview(s, target); err != nil {
				return err
			}
		}
		c.target = target
		return nil
	})
}

// DetachPreview forgets the registered target. A capturing camera keeps
// streaming into the discard target.
func (c *Controller) DetachPreview(ctx context.Context) error {
	return c.do(ctx, func() error {
		if c.target == nil {
			return nil
		}
		if s, ok := c.sess.(*openSession); ok {
			if err := c.rebindPreview(s, Discard); err != nil {
				return err
			}
		}
		c.target = nil
		return nil
	})
}

// RequestOutputFormat asks the consumer to scale or drop frames to the given
// format.
func (c *Controller) RequestOutputFormat(ctx context.Context, width, height, fps int) error {
	return c.do(ctx, func() error {
		if _, ok := c.sess.(*openSession); !ok {
			return c.violation("RequestOutputFormat", ErrNotCapturing)
		}
		c.consumer.OnOutputFormatRequest(width, height, fps)
		return nil
	})
}

// SupportedFormats lists the formats of the active camera. When not
// capturing the camera is opened just long enough to ask.
func (c *Controller) SupportedFormats(ctx context.Context) ([]types.CaptureFormat, error) {
	return call(ctx, c, func() ([]types.CaptureFormat, error) {
		if s, ok := c.sess.(*openSession); ok {
			p, err := s.dev.Parameters()
			if err != nil {
				return nil, err
			}
			return SupportedFormats(p), nil
		}

		dev, err := c.hw.Open(c.desc.Index)
		if err != nil {
			return nil, fmt.Errorf("%w: open %s: %w", ErrAcquisition, c.desc.Name, err)
		}
		defer dev.Release()
		p, err := dev.Parameters()
		if err != nil {
			return nil, err
		}
		return SupportedFormats(p), nil
	})
}

func (c *Controller) State(ctx context.Context) (types.State, error) {
	return call(ctx, c, func() (types.State, error) {
		return c.state.current(), nil
	})
}

func (c *Controller) Stats(ctx context.Context) (Stats, error) {
	return call(ctx, c, func() (Stats, error) {
		st := Stats{
			State:           c.state.current(),
			Camera:          c.desc,
			DisplayRotation: c.displayRotation,
			PreviewRotation: PreviewRotation(c.desc.Facing, c.displayRotation),
			PreviewAttached: c.target != nil,
		}
		if s, ok := c.sess.(*openSession); ok {
			format := s.format
			pool := s.pool.Stats()
			st.Session = s.token
			st.Format = &format
			st.Frames = s.frames
			st.Dropped = s.dropped
			st.Pool = &pool
			if s.observer != nil {
				st.FPS = s.observer.lastFPS
			}
		}
		return st, nil
	})
}

// RunUntilIdle returns once everything posted to the looper before the call
// has run, including frames already handed over by the device.
func (c *Controller) RunUntilIdle(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if err := looper.Sync(ctx, c.looper); err != nil {
		if errors.Is(err, looper.ErrClosed) {
			return ErrClosed
		}
		return err
	}
	return nil
}

// Close stops a running capture and ends the looper. Every later call fails
// with ErrClosed.
func (c *Controller) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := looper.Do(context.Background(), c.looper, func() error {
		var err error
		if _, ok := c.sess.(*openSession); ok {
			err = c.stopOnLooper()
		}
		if ferr := c.state.fire(eventClose); ferr != nil {
			c.logger.Warnf("camera: close: %s", ferr)
		}
		return err
	})
	c.looper.Quit()
	<-c.looper.Done()
	c.logger.Infof("camera: controller for %s closed", c.desc.Name)

	return err
}

func (c *Controller) do(ctx context.Context, fn func() error) error {
	_, err := call(ctx, c, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

func call[T any](ctx context.Context, c *Controller, fn func() (T, error)) (T, error) {
	var zero T
	if c.closed.Load() {
		return zero, ErrClosed
	}
	v, err := looper.Call(ctx, c.looper, fn)
	if errors.Is(err, looper.ErrClosed) {
		return zero, ErrClosed
	}
	return v, err
}

func (c *Controller) violation(op string, err error) error {
	c.logger.Errorf("camera: %s: %s (state %s)", op, err, c.state.current())
	return err
}

func (c *Controller) reportError(description string) {
	c.logger.Errorf("camera: %s", description)
	if c.errorHandler != nil {
		c.errorHandler(description)
	}
}

func (c *Controller) startOnLooper(cfg types.CaptureConfig) error {
	switch c.state.current() {
	case types.StateStopped:
		return c.violation("StartCapture", ErrClosed)
	case types.StateUninitialized:
	default:
		return c.violation("StartCapture", ErrAlreadyCapturing)
	}

	c.logger.Infof("camera: start capture %s on %s", cfg, c.desc.Name)
	if err := c.state.fire(eventStart); err != nil {
		return err
	}

	s, err := c.openSession(cfg)
	if err != nil {
		_ = c.state.fire(eventStartFailed)
		c.consumer.OnCapturerStarted(false)
		c.reportError("camera can not be started: " + err.Error())
		return err
	}

	c.sess = s
	_ = c.state.fire(eventStarted)
	c.consumer.OnCapturerStarted(true)
	c.scheduleObserver(s)

	return nil
}

// openSession runs the start sequence. Whatever it acquired is released
// again before it returns an error.
func (c *Controller) openSession(cfg types.CaptureConfig) (*openSession, error) {
	dev, err := c.hw.Open(c.desc.Index)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrAcquisition, c.desc.Name, err)
	}
	s := &openSession{
		dev:   dev,
		desc:  c.desc,
		token: uuid.NewString(),
		pool:  framepool.New(c.bufferCount, c.logger),
	}
	if c.observerPeriod > 0 {
		s.observer = newObserver(c.observerPeriod)
	}

	target := c.target
	if target == nil {
		target = Discard
	}
	if err = c.bindPreview(s, target); err != nil {
		c.teardown(s)
		return nil, err
	}

	dev.SetErrorCallback(c.onDeviceError)
	if err = c.startPreview(s, cfg); err != nil {
		c.teardown(s)
		return nil, err
	}
	rotation := PreviewRotation(c.desc.Facing, c.displayRotation)
	if err = dev.SetDisplayOrientation(rotation); err != nil {
		c.teardown(s)
		return nil, fmt.Errorf("%w: display orientation %d: %w", ErrPreviewBind, rotation, err)
	}

	return s, nil
}

// startPreview (re)starts streaming with the closest supported format to cfg.
// It is a no-op when that format is already streaming.
func (c *Controller) startPreview(s *openSession, cfg types.CaptureConfig) error {
	p, err := s.dev.Parameters()
	if err != nil {
		return fmt.Errorf("%w: parameters: %w", ErrAcquisition, err)
	}
	format, err := NegotiateFormat(p, cfg)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAcquisition, err)
	}
	s.config = cfg
	if s.streaming && format == s.format {
		c.logger.Debugf("camera: already capturing %s", format)
		return nil
	}

	if p.StabilizationSupported {
		p.Stabilization = true
	}
	p.PreviewSize = types.Size{Width: format.Width, Height: format.Height}
	p.PreviewFpsRange = types.FramerateRange{Min: format.MinFramerate, Max: format.MaxFramerate}

	if s.streaming {
		if err = s.dev.StopPreview(); err != nil {
			c.logger.Warnf("camera: stop preview: %s", err)
		}
		s.dev.SetPreviewCallbackWithBuffer(nil)
		s.streaming = false
	}
	if err = s.dev.SetParameters(p); err != nil {
		return fmt.Errorf("%w: set parameters %s: %w", ErrAcquisition, format, err)
	}

	c.logger.Infof("camera: capturing %s, stabilization %t", format, p.Stabilization)
	s.format = format
	s.pool.Queue(format.FrameSize(), s.dev)
	s.dev.SetPreviewCallbackWithBuffer(c.onPreviewFrame)
	if err = s.dev.StartPreview(); err != nil {
		s.dev.SetPreviewCallbackWithBuffer(nil)
		return fmt.Errorf("%w: start preview: %w", ErrAcquisition, err)
	}
	s.streaming = true

	return nil
}

func (c *Controller) stopOnLooper() error {
	switch s := c.sess.(type) {
	case *openSession:
		c.logger.Infof("camera: stop capture on %s", s.desc.Name)
		_ = c.state.fire(eventStop)
		err := c.teardown(s)
		c.sess = closedSession{}
		_ = c.state.fire(eventStopped)
		return err
	case closedSession:
		if c.state.is(types.StateStopped) {
			return c.violation("StopCapture", ErrClosed)
		}
		return c.violation("StopCapture", ErrNotCapturing)
	}
	return nil
}

// abort ends a session that broke while capturing.
func (c *Controller) abort(s *openSession, reason string) {
	_ = c.state.fire(eventStop)
	_ = c.teardown(s)
	c.sess = closedSession{}
	_ = c.state.fire(eventStopped)
	c.reportError(reason)
}

// teardown releases everything an open session holds. It keeps going after
// failures and reports all of them.
func (c *Controller) teardown(s *openSession) error {
	var errs []error
	if s.observer != nil {
		s.observer.stop()
	}
	if s.streaming {
		if err := s.dev.StopPreview(); err != nil {
			errs = append(errs, fmt.Errorf("stop preview: %w", err))
		}
		s.streaming = false
	}
	s.dev.SetPreviewCallbackWithBuffer(nil)
	s.pool.Stop()
	if err := c.unbindPreview(s); err != nil {
		errs = append(errs, err)
	}
	c.logger.Debugf("camera: release %s", s.desc.Name)
	if err := s.dev.Release(); err != nil {
		errs = append(errs, fmt.Errorf("release: %w", err))
	}

	err := errors.Join(errs...)
	if err != nil {
		c.logger.Errorf("camera: failed to stop camera: %s", err)
	}
	return err
}

func (c *Controller) bindPreview(s *openSession, target PreviewTarget) error {
	if !target.Valid() {
		return fmt.Errorf("%w: %w", ErrPreviewBind, ErrTargetInvalid)
	}
	if err := target.Bind(s.dev); err != nil {
		return fmt.Errorf("%w: %w", ErrPreviewBind, err)
	}
	if err := s.dev.SetPreviewTarget(target); err != nil {
		_ = target.Unbind()
		return fmt.Errorf("%w: %w", ErrPreviewBind, err)
	}
	s.target = target
	return nil
}

func (c *Controller) unbindPreview(s *openSession) error {
	if s.target == nil {
		return nil
	}
	t := s.target
	s.target = nil
	if err := s.dev.SetPreviewTarget(nil); err != nil {
		return fmt.Errorf("%w: detach: %w", ErrPreviewBind, err)
	}
	return t.Unbind()
}

// rebindPreview swaps the bound target. The new target is bound before the
// old one is let go, so a failure keeps the old binding.
func (c *Controller) rebindPreview(s *openSession, target PreviewTarget) error {
	old := s.target
	if err := c.bindPreview(s, target); err != nil {
		s.target = old
		return err
	}
	if old != nil && old != target {
		if err := old.Unbind(); err != nil {
			c.logger.Warnf("camera: unbind previous preview target: %s", err)
		}
	}
	return nil
}

// onPreviewFrame runs on the device's goroutine and hands the buffer to the
// looper.
func (c *Controller) onPreviewFrame(data []byte, dev Device) {
	if err := c.looper.Post(func() { c.deliverFrame(data, dev) }); err != nil {
		c.logger.Debug("camera: frame after close dropped")
	}
}

func (c *Controller) deliverFrame(data []byte, dev Device) {
	s, ok := c.sess.(*openSession)
	if !ok || s.dev != dev {
		c.logger.Debug("camera: dropping frame of a stopped camera")
		return
	}

	queued := s.pool.Queued()
	ts := c.nextTimestamp(s)
	slot, err := s.pool.Reserve(data, ts.UnixNano())
	if err != nil {
		s.dropped++
		if errors.Is(err, framepool.ErrStaleBuffer) {
			c.logger.Warnf("camera: %s, dropping frame", err)
			return
		}
		c.logger.Errorf("camera: reserve buffer: %s", err)
		return
	}
	if s.observer != nil {
		s.observer.onFrame(queued)
	}
	s.frames++

	s.frame = types.Frame{
		Data:        data,
		Width:       s.format.Width,
		Height:      s.format.Height,
		PixelFormat: s.format.PixelFormat,
		Rotation:    FrameRotation(s.desc, c.displayRotation),
		Timestamp:   ts,
		Session:     s.token,
	}
	c.consumer.OnFrameCaptured(&s.frame)
	s.frame = types.Frame{}

	if err = s.pool.Return(ts.UnixNano()); err != nil {
		c.logger.Errorf("camera: return buffer %d: %s", slot.ID, err)
	}
}

// nextTimestamp keeps timestamps strictly increasing within a session; the
// pool tracks pending buffers by them.
func (c *Controller) nextTimestamp(s *openSession) time.Time {
	ts := c.clock.Now()
	if ts.UnixNano() <= s.lastTimestamp {
		ts = time.Unix(0, s.lastTimestamp+1)
	}
	s.lastTimestamp = ts.UnixNano()
	return ts
}

func (c *Controller) onDeviceError(code int, dev Device) {
	_ = c.looper.Post(func() {
		s, ok := c.sess.(*openSession)
		if !ok || s.dev != dev {
			return
		}
		if code == ErrorServerDied {
			c.reportError("camera server died")
			return
		}
		c.reportError(fmt.Sprintf("camera error: %d", code))
	})
}

func (c *Controller) scheduleObserver(s *openSession) {
	if s.observer == nil {
		return
	}
	s.observer.cancel = c.looper.PostDelayed(func() { c.observe(s) }, s.observer.period)
}

func (c *Controller) observe(s *openSession) {
	if cur, ok := c.sess.(*openSession); !ok || cur != s {
		return
	}
	o := s.observer
	alive := o.sample()
	c.logger.Debugf("camera: fps %d, capture buffers %.1f, pending %d", o.lastFPS, o.lastBuffers, s.pool.Pending())
	if !alive {
		c.reportError("camera freezed")
		return
	}
	c.scheduleObserver(s)
}
