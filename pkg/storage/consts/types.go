package consts

const (
	DefaultImagesDir = "images"
	DefaultVideosDir = "videos"
	DefaultInfoFile  = "info.json"

	DefaultImageExt = ".jpg"
	DefaultVideoExt = ".avi"

	DefaultFilePerm = 0666
	DefaultDirPerm  = 0777

	// MinInterval is the shortest timelapse interval in milliseconds.
	MinInterval = 300
)
