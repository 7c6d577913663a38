// Package camera owns a capture device on a dedicated looper and delivers
// its frames to a Consumer.
//
// Every call into a Device happens on the controller's looper. Public
// Controller methods post a closure there and wait for its result, so they
// may be called from any goroutine but never from a Consumer callback.
package camera

import (
	"go.uber.org/zap"

	"shutter-capture/pkg/utils"
)

const (
	DefaultDevice = "/dev/video0"
	DefaultFPS    = 15
)

var logger *zap.SugaredLogger

func init() {
	logger = utils.GetLogger()
}
