// Package transcribe is the Transcription Bridge: it reads a stopped
// session's WAV file, hands the decoded samples to an external speech
// recognizer, and records the outcome back to the store.
//
// Grounded on internal/service/transcription.go's WAV-read /
// invoke-engine / write-result shape (including the raw header-skip +
// binary.LittleEndian.Uint16 PCM decode at the tail of that file),
// generalized behind the Transcriber interface since the concrete STT
// engine is an out-of-scope external collaborator (spec.md §1 Non-goals).
package transcribe

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"meetcap/internal/events"
	"meetcap/internal/logging"
	"meetcap/store"
)

const (
	wavHeaderSize      = 44
	expectedSampleRate = 16000
	expectedBitDepth   = 16
)

// ErrEmptySamples is returned when a WAV file decodes to zero samples.
var ErrEmptySamples = errors.New("transcribe: audio file has no samples")

// ErrUnsupportedFormat is returned when the WAV file's sample rate or
// bit depth does not match the sink's fixed recording format.
var ErrUnsupportedFormat = errors.New("transcribe: unsupported audio format")

// Transcriber is the contract with the external STT engine: decoded
// mono float32 samples in, transcript text out.
type Transcriber interface {
	Transcribe(ctx context.Context, samples []float32) (string, error)
}

// Bridge implements engine.Transcriber by wiring a Transcriber to the
// session store and event bus.
type Bridge struct {
	store        *store.Store
	meetingsRoot string
	transcriber  Transcriber
	emitter      events.Emitter
}

// New builds a transcription bridge. emitter may be nil, in which case
// events are dropped.
func New(st *store.Store, meetingsRoot string, transcriber Transcriber, emitter events.Emitter) *Bridge {
	if emitter == nil {
		emitter = events.NopEmitter{}
	}
	return &Bridge{store: st, meetingsRoot: meetingsRoot, transcriber: transcriber, emitter: emitter}
}

// Run executes the Transcription Bridge for one session (spec.md §4.6).
// It is meant to be invoked on its own goroutine by the engine and is
// fire-and-forget: its only externally visible effects are the store
// update and the emitted event.
func (b *Bridge) Run(sessionID string) {
	sess, err := b.store.GetByID(sessionID)
	if err != nil {
		logging.Error("transcribe: load session", zap.String("session_id", sessionID), zap.Error(err))
		return
	}
	if sess.AudioPath == nil || *sess.AudioPath == "" {
		b.fail(sessionID, fmt.Errorf("transcribe: session has no audio_path"))
		return
	}

	samples, err := readWAV(filepath.Join(b.meetingsRoot, *sess.AudioPath))
	if err != nil {
		b.fail(sessionID, err)
		return
	}

	text, err := b.transcriber.Transcribe(context.Background(), samples)
	if err != nil {
		b.fail(sessionID, fmt.Errorf("transcribe: engine failed: %w", err))
		return
	}
	if text == "" {
		b.fail(sessionID, fmt.Errorf("transcribe: engine returned empty text"))
		return
	}

	transcriptRel := filepath.Join(sessionID, "transcript.txt")
	transcriptAbs := filepath.Join(b.meetingsRoot, transcriptRel)
	if err := os.WriteFile(transcriptAbs, []byte(text), 0o644); err != nil {
		b.fail(sessionID, fmt.Errorf("transcribe: write transcript: %w", err))
		return
	}

	if err := b.store.UpdatePaths(sessionID, nil, &transcriptRel, nil, nil); err != nil {
		logging.Error("transcribe: patch transcript_path", zap.String("session_id", sessionID), zap.Error(err))
		return
	}
	if err := b.store.UpdateStatus(sessionID, store.StatusCompleted); err != nil {
		logging.Error("transcribe: mark completed", zap.String("session_id", sessionID), zap.Error(err))
		return
	}

	updated, err := b.store.GetByID(sessionID)
	if err != nil {
		logging.Error("transcribe: reload completed session", zap.String("session_id", sessionID), zap.Error(err))
		return
	}

	logging.Info("session transcribed", zap.String("session_id", sessionID), zap.Int("samples", len(samples)))
	b.emitter.Emit(events.Event{Type: events.MeetingCompleted, Data: updated})
}

func (b *Bridge) fail(sessionID string, cause error) {
	logging.Warn("transcription failed", zap.String("session_id", sessionID), zap.Error(cause))
	if err := b.store.UpdateStatusWithError(sessionID, store.StatusFailed, cause.Error()); err != nil {
		logging.Error("transcribe: mark failed", zap.String("session_id", sessionID), zap.Error(err))
		return
	}
	updated, err := b.store.GetByID(sessionID)
	if err != nil {
		logging.Error("transcribe: reload failed session", zap.String("session_id", sessionID), zap.Error(err))
		return
	}
	b.emitter.Emit(events.Event{Type: events.MeetingFailed, Data: updated})
}

// readWAV decodes a 16-bit PCM mono 16kHz WAV file into normalized
// float32 samples (x/32767), validating the format fields the sink
// always writes. Any mismatch fails the task per spec.md §4.6 step 1.
func readWAV(path string) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("transcribe: open audio file: %w", err)
	}
	defer f.Close()

	header := make([]byte, wavHeaderSize)
	if _, err := io.ReadFull(f, header); err != nil {
		return nil, fmt.Errorf("transcribe: read wav header: %w", err)
	}

	channels := binary.LittleEndian.Uint16(header[22:24])
	sampleRate := binary.LittleEndian.Uint32(header[24:28])
	bitsPerSample := binary.LittleEndian.Uint16(header[34:36])
	if channels != 1 || sampleRate != expectedSampleRate || bitsPerSample != expectedBitDepth {
		return nil, fmt.Errorf("%w: channels=%d sample_rate=%d bits_per_sample=%d", ErrUnsupportedFormat, channels, sampleRate, bitsPerSample)
	}

	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("transcribe: stat audio file: %w", err)
	}
	dataSize := stat.Size() - wavHeaderSize
	if dataSize <= 0 {
		return nil, ErrEmptySamples
	}

	buf := make([]byte, dataSize)
	if _, err := io.ReadFull(f, buf); err != nil {
		return nil, fmt.Errorf("transcribe: read samples: %w", err)
	}

	count := int(dataSize) / 2
	samples := make([]float32, count)
	for i := 0; i < count; i++ {
		sample16 := int16(binary.LittleEndian.Uint16(buf[i*2 : i*2+2]))
		samples[i] = float32(sample16) / 32767.0
	}
	if len(samples) == 0 {
		return nil, ErrEmptySamples
	}
	return samples, nil
}
