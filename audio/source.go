// Package audio produces mono 16kHz float32 sample chunks from live
// microphone and system-audio sources.
package audio

import "errors"

// SampleRate is the canonical capture rate every Source delivers at.
const SampleRate = 16000

// ErrPlatformUnsupported is returned when a source is not available on
// the current OS (system-audio capture outside darwin).
var ErrPlatformUnsupported = errors.New("audio: platform not supported")

// ErrAlreadyRunning is returned by Start when the source is already active.
var ErrAlreadyRunning = errors.New("audio: source already running")

// DataFunc receives a chunk of mono float32 samples in [-1, 1].
type DataFunc func(samples []float32)

// ErrorFunc receives a terminal error from a running Source. It fires at
// most once per Start/Stop cycle.
type ErrorFunc func(err error)

// Source is a live producer of mono 16kHz float32 sample chunks. Once
// Start succeeds, it delivers chunks to onData on a source-owned thread
// until Stop is called or onError fires. Callbacks must not block on
// long-held locks.
type Source interface {
	Start(onData DataFunc, onError ErrorFunc) error
	Stop() error
}

// AudioSourceKind selects which source(s) feed a recording session.
type AudioSourceKind string

const (
	MicrophoneOnly AudioSourceKind = "microphone_only"
	SystemOnly     AudioSourceKind = "system_only"
	Mixed          AudioSourceKind = "mixed"
)
