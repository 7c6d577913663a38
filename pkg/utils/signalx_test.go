package utils

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"
)

func TestListenAndServeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- ListenAndServe(ctx, http.NotFoundHandler(), 0)
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestListenAndServeBindError(t *testing.T) {
	l, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	port := l.Addr().(*net.TCPAddr).Port
	if err = ListenAndServe(context.Background(), http.NotFoundHandler(), port); err == nil {
		t.Fatal("want a bind error")
	}
}

func TestMsToDuration(t *testing.T) {
	if d := MsToDuration(1500); d != 1500*time.Millisecond {
		t.Fatalf("got %s", d)
	}
}
