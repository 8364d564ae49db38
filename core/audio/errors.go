package audio

import "errors"

var (
	// ErrUnsupportedFormat is returned when a resource cannot be
	// identified as any decodable audio container.
	ErrUnsupportedFormat = errors.New("audio: unsupported format")

	// ErrContextClosed is returned when starting a handle on a context
	// that has been shut down.
	ErrContextClosed = errors.New("audio: context closed")
)
