package storage

import (
	"errors"
	"os"
	"testing"
)

func TestAlbum(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	checkErr(t, err)

	a, err := s.NewAlbum("garden", "east window")
	checkErr(t, err)
	if _, err = s.NewAlbum("garden", ""); !errors.Is(err, ErrExists) {
		t.Fatalf("want ErrExists, got %v", err)
	}

	name, err := a.SaveImage([]byte("1234"))
	checkErr(t, err)
	if name != "garden-0.jpg" {
		t.Fatalf("unexpected image name %s", name)
	}
	_, err = a.SaveImage([]byte("5678"))
	checkErr(t, err)

	latest, err := a.LatestImageName()
	checkErr(t, err)
	if latest != "garden-1.jpg" {
		t.Fatalf("unexpected latest image %s", latest)
	}
	images, err := a.ListImages()
	checkErr(t, err)
	if len(images) != 2 {
		t.Fatalf("want 2 images, got %v", images)
	}
	data, err := a.GetImage(latest)
	checkErr(t, err)
	if string(data) != "5678" {
		t.Fatalf("unexpected image data %q", data)
	}
	if _, err = a.GetImage("../info.json"); err == nil {
		t.Fatal("path outside the album was served")
	}
	checkErr(t, s.Close())

	// album list survives a restart
	s, err = New(dir)
	checkErr(t, err)
	again := s.GetAlbum("garden")
	if again == nil || again.Info != "east window" {
		t.Fatalf("album not reloaded: %+v", again)
	}
	if latest, err = again.LatestImageName(); err != nil || latest != "garden-1.jpg" {
		t.Fatalf("image info not reloaded: %s, %v", latest, err)
	}

	checkErr(t, s.DeleteAlbum("garden"))
	if _, err = os.Stat(again.Dir()); !os.IsNotExist(err) {
		t.Fatalf("album directory left behind: %v", err)
	}
	if err = s.DeleteAlbum("garden"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestGetOrCreateAlbum(t *testing.T) {
	s, err := New(t.TempDir())
	checkErr(t, err)

	a, err := s.GetOrCreateAlbum("snapshots")
	checkErr(t, err)
	b, err := s.GetOrCreateAlbum("snapshots")
	checkErr(t, err)
	if a != b || len(s.ListAlbums()) != 1 {
		t.Fatal("album created twice")
	}
	if _, err = s.NewAlbum("", ""); !errors.Is(err, ErrEmptyName) {
		t.Fatalf("want ErrEmptyName, got %v", err)
	}
}

func checkErr(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}
