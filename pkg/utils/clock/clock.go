// Package clock supplies capture timestamps.
package clock

import (
	"sync/atomic"
	"time"

	"github.com/beevik/ntp"
)

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// System is the local wall clock.
var System Clock = systemClock{}

// NTP is the local clock corrected by the offset measured against an NTP
// server. Sync may be called again at any time to refresh the offset.
type NTP struct {
	server string
	offset atomic.Int64
}

func NewNTP(server string) *NTP {
	return &NTP{server: server}
}

func (c *NTP) Sync() error {
	resp, err := ntp.Query(c.server)
	if err != nil {
		return err
	}
	if err = resp.Validate(); err != nil {
		return err
	}
	c.offset.Store(int64(resp.ClockOffset))
	return nil
}

func (c *NTP) Offset() time.Duration {
	return time.Duration(c.offset.Load())
}

func (c *NTP) Now() time.Time {
	return time.Now().Add(c.Offset())
}

// Fixed returns the same instant on every call. Tests use it.
type Fixed time.Time

func (f Fixed) Now() time.Time { return time.Time(f) }
