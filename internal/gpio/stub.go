//go:build !linux

package gpio

import "errors"

// RealWriter is not available on non-Linux platforms.
type RealWriter struct{}

// NewRealWriter returns an error on non-Linux platforms.
func NewRealWriter(chipName string, pinA, pinB int) (*RealWriter, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

// Set is not implemented on non-Linux platforms.
func (r *RealWriter) Set(out Output, on bool) error {
	return errors.New("gpio: not supported")
}

// Toggle is not implemented on non-Linux platforms.
func (r *RealWriter) Toggle(out Output) error {
	return errors.New("gpio: not supported")
}

// Level always reports off on non-Linux platforms.
func (r *RealWriter) Level(out Output) bool {
	return false
}

// Close is not implemented on non-Linux platforms.
func (r *RealWriter) Close() error {
	return nil
}
