package media

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"syscall"
)

var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrDeviceNotFound   = errors.New("device not found")
	ErrDeviceBusy       = errors.New("device busy")
	ErrUnsupported      = errors.New("media capture unsupported")

	ErrNoStream     = errors.New("no local stream")
	ErrTrackMissing = errors.New("track not present in stream")
)

// AccessError is returned by Acquire. Kind is one of the four access
// sentinels above; Cause is whatever the backend reported.
type AccessError struct {
	Op     string
	Device string
	Kind   error
	Cause  error
}

func (e *AccessError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Op, e.Kind)
	if e.Device != "" {
		msg = fmt.Sprintf("%s %s: %v", e.Op, e.Device, e.Kind)
	}
	if e.Cause != nil && e.Cause != e.Kind {
		msg += fmt.Sprintf(" (%v)", e.Cause)
	}
	return msg
}

func (e *AccessError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

// Hint is the remediation text shown to the user verbatim.
func (e *AccessError) Hint() string {
	switch e.Kind {
	case ErrPermissionDenied:
		return "Allow this program to use your camera and microphone, then start a new chat."
	case ErrDeviceNotFound:
		return "No camera or microphone was found. Connect one (or point --video/--audio at a media file) and try again."
	case ErrDeviceBusy:
		return "Your camera or microphone is in use by another application. Close it and start a new chat."
	default:
		return "Media capture is not available in this build. Use --video/--audio files or rebuild with -tags mediadevices."
	}
}

func newAccessError(op, device string, kind, cause error) *AccessError {
	return &AccessError{Op: op, Device: device, Kind: kind, Cause: cause}
}

// classify turns a backend failure into an AccessError. Errors already
// classified pass through unchanged.
func classify(op, device string, err error) *AccessError {
	var ae *AccessError
	if errors.As(err, &ae) {
		return ae
	}

	switch {
	case errors.Is(err, ErrPermissionDenied), errors.Is(err, fs.ErrPermission),
		errors.Is(err, syscall.EACCES), errors.Is(err, syscall.EPERM):
		return newAccessError(op, device, ErrPermissionDenied, err)
	case errors.Is(err, ErrDeviceBusy), errors.Is(err, syscall.EBUSY):
		return newAccessError(op, device, ErrDeviceBusy, err)
	case errors.Is(err, ErrDeviceNotFound), errors.Is(err, fs.ErrNotExist), errors.Is(err, syscall.ENODEV):
		return newAccessError(op, device, ErrDeviceNotFound, err)
	case errors.Is(err, ErrUnsupported):
		return newAccessError(op, device, ErrUnsupported, err)
	}

	// Driver errors from mediadevices are plain strings.
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "permission"):
		return newAccessError(op, device, ErrPermissionDenied, err)
	case strings.Contains(msg, "busy"), strings.Contains(msg, "in use"):
		return newAccessError(op, device, ErrDeviceBusy, err)
	case strings.Contains(msg, "not found"), strings.Contains(msg, "no such"), strings.Contains(msg, "failed to find"):
		return newAccessError(op, device, ErrDeviceNotFound, err)
	}
	return newAccessError(op, device, ErrUnsupported, err)
}
