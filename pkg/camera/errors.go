package camera

import (
	"errors"
	"fmt"
)

var (
	// ErrAcquisition covers a device that could not be opened, configured
	// or started. The controller is left uninitialized.
	ErrAcquisition = errors.New("camera acquisition failed")

	// ErrContractViolation marks calls the caller should never make.
	ErrContractViolation = errors.New("camera contract violation")

	ErrNotCapturing     = fmt.Errorf("%w: camera is not capturing", ErrContractViolation)
	ErrAlreadyCapturing = fmt.Errorf("%w: camera has already been started", ErrContractViolation)
	ErrClosed           = fmt.Errorf("%w: controller closed", ErrContractViolation)

	ErrPreviewBind     = errors.New("preview target binding failed")
	ErrInvalidRotation = errors.New("rotation must be one of 0, 90, 180, 270")
	ErrNoSupportedSize = errors.New("device reports no preview sizes")
	ErrCameraNotFound  = errors.New("camera not found")
	ErrSingleCamera    = errors.New("no other camera to switch to")
	ErrSwitchPending   = errors.New("camera switch already pending")
)
