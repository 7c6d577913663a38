package webdav

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestHandlerServesFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.avi"), []byte("avi"), 0600); err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	Handler(dir).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/a.avi", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "avi" {
		t.Fatalf("unexpected response %d %q", rec.Code, rec.Body.String())
	}
}

func TestHandlerIsReadOnly(t *testing.T) {
	dir := t.TempDir()
	for _, m := range []string{http.MethodPut, http.MethodDelete, "MKCOL", "MOVE"} {
		rec := httptest.NewRecorder()
		Handler(dir).ServeHTTP(rec, httptest.NewRequest(m, "/b.avi", strings.NewReader("x")))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s: got %d", m, rec.Code)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "b.avi")); !os.IsNotExist(err) {
		t.Fatalf("file was written: %v", err)
	}
}

func TestStartStop(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.avi"), []byte("avi"), 0600); err != nil {
		t.Fatal(err)
	}
	w := New(context.Background(), 0, dir)
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	if err := w.Start(); !errors.Is(err, ErrRunning) {
		t.Fatalf("want ErrRunning, got %v", err)
	}
	if !w.Running() {
		t.Fatal("not running after start")
	}

	client := http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://127.0.0.1:%d/a.avi", w.Addr().(*net.TCPAddr).Port))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}

	if err = w.Stop(); err != nil {
		t.Fatal(err)
	}
	if err = w.Stop(); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("want ErrNotRunning, got %v", err)
	}
}
