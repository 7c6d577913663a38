package camera

import (
	"errors"
	"sync"
)

// PreviewTarget is a surface a device can display its preview on.
type PreviewTarget interface {
	Bind(dev Device) error
	Unbind() error
	Valid() bool
}

// Discard is bound when no preview target is registered. Some devices
// refuse to stream without one.
var Discard PreviewTarget = discardTarget{}

type discardTarget struct{}

func (discardTarget) Bind(Device) error { return nil }
func (discardTarget) Unbind() error     { return nil }
func (discardTarget) Valid() bool       { return true }

var ErrTargetInvalid = errors.New("preview target is not valid")

// HeadlessTarget stands in for a display surface on hosts that have none.
// It only tracks whether a device is bound to it.
type HeadlessTarget struct {
	name string

	mu      sync.Mutex
	bound   Device
	invalid bool
}

func NewHeadlessTarget(name string) *HeadlessTarget {
	return &HeadlessTarget{name: name}
}

func (t *HeadlessTarget) Name() string {
	return t.name
}

func (t *HeadlessTarget) Bind(dev Device) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.invalid {
		return ErrTargetInvalid
	}
	t.bound = dev
	return nil
}

func (t *HeadlessTarget) Unbind() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.bound = nil
	return nil
}

func (t *HeadlessTarget) Valid() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.invalid
}

func (t *HeadlessTarget) Bound() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.bound != nil
}

// Invalidate makes the target refuse later binds, like a destroyed surface.
func (t *HeadlessTarget) Invalidate() {
	t.mu.Lock()
	t.invalid = true
	t.mu.Unlock()
}
