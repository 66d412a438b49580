package transport

import "errors"

// Normalized transport errors.
var (
	// ErrUnsupported means the host has no serial capability at all.
	ErrUnsupported = errors.New("SERIAL_UNSUPPORTED")

	// ErrDevice means the device could not be opened (busy, missing,
	// permission denied, selection cancelled).
	ErrDevice = errors.New("DEVICE_ERROR")

	// ErrNotConnected means a write was attempted while the link is down.
	ErrNotConnected = errors.New("NOT_CONNECTED")

	// ErrAlreadyConnected means Connect was called on an open link.
	ErrAlreadyConnected = errors.New("ALREADY_CONNECTED")
)
