package webdav

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/net/webdav"

	"shutter-capture/pkg/utils"
)

var (
	ErrRunning    = errors.New("the webdav service is already enabled")
	ErrNotRunning = errors.New("the webdav service has been shut down")
)

// Webdav shares the storage directory read-only so albums and recordings
// can be pulled off the device. The daemon stays the only writer.
type Webdav struct {
	lock sync.Mutex
	ctx  context.Context
	port int
	dir  string

	cancel context.CancelFunc
	addr   net.Addr
}

func New(ctx context.Context, port int, dir string) *Webdav {
	return &Webdav{
		ctx:  ctx,
		port: port,
		dir:  dir,
	}
}

// Start binds the port before returning, so address errors surface here.
func (w *Webdav) Start() error {
	w.lock.Lock()
	defer w.lock.Unlock()
	if w.cancel != nil {
		return ErrRunning
	}
	l, err := net.Listen("tcp", fmt.Sprintf(":%d", w.port))
	if err != nil {
		return err
	}
	newCtx, cancel := context.WithCancel(w.ctx)
	w.cancel = cancel
	w.addr = l.Addr()
	serve(newCtx, l, Handler(w.dir))
	return nil
}

func (w *Webdav) Stop() error {
	w.lock.Lock()
	defer w.lock.Unlock()
	if w.cancel == nil {
		return ErrNotRunning
	}
	w.cancel()
	w.cancel = nil
	w.addr = nil
	return nil
}

func (w *Webdav) Running() bool {
	w.lock.Lock()
	defer w.lock.Unlock()
	return w.cancel != nil
}

// Addr is the bound address, nil while stopped.
func (w *Webdav) Addr() net.Addr {
	w.lock.Lock()
	defer w.lock.Unlock()
	return w.addr
}

var readMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodOptions: true,
	"PROPFIND":         true,
}

// Handler serves dir over webdav and refuses every method that writes.
func Handler(dir string) http.Handler {
	logger := utils.GetLogger()
	h := &webdav.Handler{
		FileSystem: webdav.Dir(dir),
		LockSystem: webdav.NewMemLS(),
		Logger: func(r *http.Request, err error) {
			if err != nil {
				logger.Errorf("WEBDAV [%s]: %s, err: %s", r.Method, r.URL, err)
			}
		},
	}
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if !readMethods[r.Method] {
			http.Error(rw, "read-only share", http.StatusMethodNotAllowed)
			return
		}
		h.ServeHTTP(rw, r)
	})
}

func serve(ctx context.Context, l net.Listener, h http.Handler) {
	logger := utils.GetLogger()
	svr := &http.Server{Handler: h}

	go func() {
		if err := svr.Serve(l); err != nil && err != http.ErrServerClosed {
			logger.Errorf("webdav server err: %s", err)
		}
	}()
	go func() {
		<-ctx.Done()
		srcCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := svr.Shutdown(srcCtx); err != nil {
			logger.Errorf("shutdown webdav server err: %s", err)
		}
	}()
}
