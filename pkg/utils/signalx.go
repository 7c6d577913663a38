package utils

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// WatchSignal blocks until SIGINT or SIGTERM arrives or ctx is done. It
// returns nil in the latter case.
func WatchSignal(ctx context.Context) os.Signal {
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(signalCh)
	select {
	case s := <-signalCh:
		return s
	case <-ctx.Done():
		return nil
	}
}

// ListenAndServe serves h until a signal arrives or ctx is done, then shuts
// the server down. Bind and serve errors are returned.
func ListenAndServe(ctx context.Context, h http.Handler, port int) error {
	l, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: h}
	errCh := make(chan error, 1)
	go func() {
		logger.Infof("listening on %s", l.Addr())
		errCh <- srv.Serve(l)
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		if s := WatchSignal(ctx); s != nil {
			logger.Infof("received %s", s)
			cancel()
		}
	}()

	select {
	case err = <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	err = srv.Shutdown(shutdownCtx)
	logger.Info("server shutdown")
	return err
}

func MsToDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
