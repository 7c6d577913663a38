package album

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"shutter-capture/pkg/storage/consts"
)

var ErrBadName = errors.New("invalid file name")

// Album is a directory of snapshots and recordings.
type Album struct {
	Name string `json:"name"`
	Info string `json:"info"`

	CreatedAt time.Time `json:"createdAt"`

	lock    sync.Mutex
	rootDir string
}

type ImagesInfo struct {
	MaxNumber   int    `json:"maxNumber"`
	LatestImage string `json:"latestImage"`

	UpdateAt time.Time `json:"updateAt"`
}

func (a *Album) SetRootDir(dir string) {
	a.rootDir = path.Join(dir, a.Name)
}

func New(name, info, rootDir string) (*Album, error) {
	a := &Album{
		Name:      name,
		Info:      info,
		CreatedAt: time.Now(),
	}
	a.SetRootDir(rootDir)
	err := mkdirAll(
		a.getImageDirPath(),
		a.getVideoDirPath(),
	)
	if err != nil {
		return a, err
	}

	return a, a.dumpImageInfo(&ImagesInfo{})
}

// SaveImage stores a JPEG under the next sequence number and returns its
// file name.
func (a *Album) SaveImage(image []byte) (string, error) {
	a.lock.Lock()
	defer a.lock.Unlock()

	info, err := a.loadImageInfo()
	if err != nil {
		return "", err
	}
	name := a.generateImageName(info.MaxNumber)
	if err = os.WriteFile(a.GetImagePath(name), image, consts.DefaultFilePerm); err != nil {
		return "", err
	}

	info.MaxNumber++
	info.LatestImage = name
	if err = a.dumpImageInfo(info); err != nil {
		return "", err
	}

	return name, nil
}

func (a *Album) LatestImageName() (string, error) {
	a.lock.Lock()
	defer a.lock.Unlock()
	info, err := a.loadImageInfo()
	if err != nil {
		return "", err
	}

	return info.LatestImage, nil
}

func (a *Album) GetImage(name string) ([]byte, error) {
	if name == "" || name != filepath.Base(name) {
		return nil, fmt.Errorf("%w: %q", ErrBadName, name)
	}
	file, err := os.ReadFile(path.Join(a.getImageDirPath(), name))
	if err != nil {
		return nil, fmt.Errorf("picture not found, %w", err)
	}

	return file, nil
}

func (a *Album) ListImages() ([]string, error) {
	files, err := os.ReadDir(a.getImageDirPath())
	if err != nil {
		return nil, err
	}
	var res []string
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		if !strings.HasSuffix(file.Name(), consts.DefaultImageExt) {
			continue
		}
		res = append(res, file.Name())
	}

	return res, nil
}

// NewVideoPath names a recording file started now.
func (a *Album) NewVideoPath() string {
	name := fmt.Sprintf("%s-%s%s", a.Name, time.Now().Format("20060102-150405"), consts.DefaultVideoExt)
	return path.Join(a.getVideoDirPath(), name)
}

func (a *Album) Dir() string {
	return a.rootDir
}

func (a *Album) Clear() error {
	return os.RemoveAll(a.rootDir)
}

func (a *Album) generateImageName(number int) string {
	return fmt.Sprintf("%s-%d%s", a.Name, number, consts.DefaultImageExt)
}

func (a *Album) loadImageInfo() (*ImagesInfo, error) {
	data, err := os.ReadFile(a.getImageInfoPath())
	if err != nil {
		return nil, fmt.Errorf("read image info err: %w", err)
	}
	info := &ImagesInfo{}
	if err = json.Unmarshal(data, info); err != nil {
		return nil, fmt.Errorf("unmarshal image info err: %w", err)
	}

	return info, nil
}

func (a *Album) dumpImageInfo(info *ImagesInfo) error {
	info.UpdateAt = time.Now()
	data, err := json.Marshal(info)
	if err != nil {
		return err
	}

	return os.WriteFile(a.getImageInfoPath(), data, consts.DefaultFilePerm)
}

func (a *Album) GetImagePath(name string) string {
	return path.Join(a.rootDir, consts.DefaultImagesDir, name)
}

func (a *Album) getImageInfoPath() string {
	return path.Join(a.rootDir, consts.DefaultImagesDir, consts.DefaultInfoFile)
}

func (a *Album) getImageDirPath() string {
	return path.Join(a.rootDir, consts.DefaultImagesDir)
}

func (a *Album) getVideoDirPath() string {
	return path.Join(a.rootDir, consts.DefaultVideosDir)
}

func mkdirAll(dirs ...string) error {
	for _, d := range dirs {
		err := os.MkdirAll(d, consts.DefaultDirPerm)
		if err != nil {
			return err
		}
	}

	return nil
}
