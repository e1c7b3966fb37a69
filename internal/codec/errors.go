package codec

import (
	"errors"

	"github.com/junsooki/telecom3d/internal/frame"
)

// Sentinel errors for codec operations.
var (
	// ErrInvalidFrame indicates Encode was given a frame whose sizes disagree.
	// The same input will fail again; callers must not retry it.
	ErrInvalidFrame = frame.ErrInvalidFrame

	// ErrCorruptFrame indicates a buffer that cannot be decoded: truncated,
	// inconsistent lengths, or undecompressable payloads.
	ErrCorruptFrame = errors.New("corrupt frame")
)

// Construction errors.
var (
	// ErrUnknownCompression indicates an unsupported compressor name.
	ErrUnknownCompression = errors.New("unknown compression")

	// ErrInvalidOption indicates an out-of-range codec option.
	ErrInvalidOption = errors.New("invalid codec option")
)
