package storage

import (
	"errors"
	"fmt"
	"os"
	"path"
	"sync"

	"github.com/goccy/go-json"

	"shutter-capture/pkg/storage/album"
	"shutter-capture/pkg/storage/consts"
)

var (
	ErrEmptyName = errors.New("name can not be empty")
	ErrExists    = errors.New("album name already exists")
	ErrNotFound  = errors.New("album not found")
)

// Storage keeps albums under one directory and their list in info.json.
type Storage struct {
	dir string

	lock   sync.Mutex
	albums []*album.Album
}

func New(dir string) (*Storage, error) {
	if dir == "" {
		return nil, fmt.Errorf("storage path can not be empty")
	}
	if err := os.MkdirAll(dir, consts.DefaultDirPerm); err != nil {
		return nil, err
	}
	s := &Storage{dir: dir}
	if err := s.load(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Storage) Dir() string {
	return s.dir
}

func (s *Storage) ListAlbums() []*album.Album {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]*album.Album(nil), s.albums...)
}

// GetAlbum returns nil when there is no album called name.
func (s *Storage) GetAlbum(name string) *album.Album {
	s.lock.Lock()
	defer s.lock.Unlock()
	for _, a := range s.albums {
		if a.Name == name {
			return a
		}
	}

	return nil
}

func (s *Storage) NewAlbum(name, info string) (*album.Album, error) {
	if name == "" || name != path.Base(name) {
		return nil, ErrEmptyName
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	for _, a := range s.albums {
		if a.Name == name {
			return nil, fmt.Errorf("%w: %s", ErrExists, name)
		}
	}
	a, err := album.New(name, info, s.dir)
	if err != nil {
		return nil, err
	}
	s.albums = append(s.albums, a)

	return a, s.dump()
}

// GetOrCreateAlbum is used by snapshots and recordings that name an album
// nobody created yet.
func (s *Storage) GetOrCreateAlbum(name string) (*album.Album, error) {
	if a := s.GetAlbum(name); a != nil {
		return a, nil
	}
	a, err := s.NewAlbum(name, "")
	if errors.Is(err, ErrExists) {
		return s.GetAlbum(name), nil
	}
	return a, err
}

func (s *Storage) DeleteAlbum(name string) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	for i, a := range s.albums {
		if a.Name != name {
			continue
		}
		if err := a.Clear(); err != nil {
			return err
		}
		s.albums = append(s.albums[:i], s.albums[i+1:]...)
		return s.dump()
	}

	return fmt.Errorf("%w: %s", ErrNotFound, name)
}

func (s *Storage) Close() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.dump()
}

func (s *Storage) load() error {
	data, err := os.ReadFile(s.infoPath())
	if os.IsNotExist(err) {
		s.albums = make([]*album.Album, 0)
		return s.dump()
	}
	if err != nil {
		return err
	}
	var list []*album.Album
	if err = json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("unmarshal album info err: %w", err)
	}
	for _, a := range list {
		a.SetRootDir(s.dir)
	}
	s.albums = list

	return nil
}

func (s *Storage) dump() error {
	f, err := os.Create(s.infoPath())
	if err != nil {
		return err
	}
	defer f.Close()

	return json.NewEncoder(f).Encode(s.albums)
}

func (s *Storage) infoPath() string {
	return path.Join(s.dir, consts.DefaultInfoFile)
}
