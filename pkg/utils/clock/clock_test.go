package clock

import (
	"testing"
	"time"
)

func TestFixed(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	c := Fixed(at)
	if !c.Now().Equal(at) || !c.Now().Equal(c.Now()) {
		t.Fatalf("fixed clock moved: %s", c.Now())
	}
}

func TestNTPWithoutSyncFollowsSystem(t *testing.T) {
	c := NewNTP("127.0.0.1")
	if c.Offset() != 0 {
		t.Fatalf("unexpected offset %s", c.Offset())
	}
	before := time.Now()
	now := c.Now()
	if now.Before(before) || now.Sub(before) > time.Second {
		t.Fatalf("ntp clock %s far from system %s", now, before)
	}
}
