package engine

import "errors"

// Sentinel errors, wrapped with call-site context via fmt.Errorf(...: %w).
// Grounded on the teacher pack's errors.go pattern
// (_examples/alnah-go-transcript/errors.go): package-level sentinels,
// wrapped at the call site rather than carried as typed error structs.
var (
	// ErrStateGuard is returned when an operation is attempted from a
	// status that does not permit it.
	ErrStateGuard = errors.New("engine: invalid state transition")

	// ErrNoAudioPath is returned by retry when the session has no
	// audio_path to re-transcribe.
	ErrNoAudioPath = errors.New("engine: session has no audio recording")

	// ErrPlatformUnsupported surfaces audio.ErrPlatformUnsupported at
	// the engine boundary for system-audio sessions on non-macOS.
	ErrPlatformUnsupported = errors.New("engine: platform not supported")

	// ErrClockSkew is returned by stop_recording when now < created_at.
	ErrClockSkew = errors.New("engine: recording duration would be negative")
)
