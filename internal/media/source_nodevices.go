//go:build !mediadevices

package media

import "go.uber.org/zap"

// NewDeviceSource reports ErrUnsupported on every Open unless the binary was
// built with -tags mediadevices.
func NewDeviceSource(*zap.Logger) Source {
	return NoSource{}
}
