// Package sink implements the incremental WAV writer: a 16-bit PCM mono
// 16kHz file that accepts sample chunks from a producer thread
// indefinitely, then finalizes with bounded latency even if the producer
// is still in flight.
package sink

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// SampleRate is the canonical WAV sample rate.
	SampleRate = 16000
	// Channels is always mono.
	Channels = 1
	// BitsPerSample is always 16-bit signed PCM.
	BitsPerSample = 16

	headerSize = 44

	defaultFinalizeTimeout = 5 * time.Second
	finalizeRetryInterval  = 10 * time.Millisecond
)

// ErrFinalizeTimeout is returned by Finalize when the writer could not be
// acquired within the deadline. The partial file on disk remains valid up
// to the last successful flush.
var ErrFinalizeTimeout = errors.New("sink: finalize timed out waiting for in-flight writers")

// WAVSink is the incremental writer bound to one session's audio file.
//
// Grounded directly on
// _examples/askidmobile-AIWisper/backend/session/wav_writer.go (the
// 44-byte canonical header, the header-patch-on-close shape), extended
// with the closed-flag + bounded-spin Finalize the spec requires: the
// producing audio callback and the stopping control thread both want the
// writer mutex, and a naive unwrap-and-close would race one of them.
type WAVSink struct {
	file *os.File

	mu             sync.Mutex
	samplesWritten int64

	closed atomic.Bool
}

// New creates the sink's file and writes the placeholder 44-byte header.
func New(path string) (*WAVSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("sink: create wav file: %w", err)
	}

	s := &WAVSink{file: f}
	if err := s.writeHeaderLocked(); err != nil {
		f.Close()
		return nil, fmt.Errorf("sink: write header: %w", err)
	}
	return s, nil
}

// Write appends samples to the file, converting each float32 to a
// saturated signed 16-bit PCM sample. If the sink is closed, Write
// silently discards the input instead of erroring — the spec requires
// producers to never see a write failure purely because finalize raced
// them.
func (s *WAVSink) Write(samples []float32) error {
	if s.closed.Load() {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Re-check under the lock: Finalize may have flipped closed and
	// patched the header between the atomic load above and this point.
	if s.closed.Load() {
		return nil
	}

	buf := make([]byte, len(samples)*2)
	for i, v := range samples {
		buf[i*2], buf[i*2+1] = encodeSample(v)
	}
	n, err := s.file.Write(buf)
	s.samplesWritten += int64(n / 2)
	if err != nil {
		return fmt.Errorf("sink: write samples: %w", err)
	}
	return s.file.Sync()
}

func encodeSample(v float32) (byte, byte) {
	if v > 1.0 {
		v = 1.0
	} else if v < -1.0 {
		v = -1.0
	}
	sample := int16(v * 32767)
	return byte(sample), byte(sample >> 8)
}

// SamplesWritten returns the number of samples committed so far.
func (s *WAVSink) SamplesWritten() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.samplesWritten
}

// Finalize marks the sink closed with release semantics, then repeatedly
// attempts a non-blocking acquire of the writer lock, patching the header
// and closing the file once acquired. If the deadline passes first, it
// returns ErrFinalizeTimeout — the caller should log and move on; the
// file on disk is still a valid (if short) WAV up to the last flush.
func (s *WAVSink) Finalize(timeout time.Duration) error {
	if timeout <= 0 {
		timeout = defaultFinalizeTimeout
	}
	s.closed.Store(true)

	deadline := time.Now().Add(timeout)
	for {
		if s.mu.TryLock() {
			defer s.mu.Unlock()
			if err := s.writeHeaderLocked(); err != nil {
				return fmt.Errorf("sink: finalize header patch: %w", err)
			}
			return s.file.Close()
		}
		if time.Now().After(deadline) {
			return ErrFinalizeTimeout
		}
		time.Sleep(finalizeRetryInterval)
	}
}

// writeHeaderLocked seeks to 0, writes the canonical 44-byte PCM header
// sized for samplesWritten, then seeks back to the end of the data. It
// must be called with mu held.
func (s *WAVSink) writeHeaderLocked() error {
	if _, err := s.file.Seek(0, 0); err != nil {
		return err
	}

	dataSize := uint32(s.samplesWritten * (BitsPerSample / 8))
	byteRate := SampleRate * Channels * BitsPerSample / 8
	blockAlign := Channels * BitsPerSample / 8

	var hdr [headerSize]byte
	copy(hdr[0:4], "RIFF")
	binary.LittleEndian.PutUint32(hdr[4:8], 36+dataSize)
	copy(hdr[8:12], "WAVE")
	copy(hdr[12:16], "fmt ")
	binary.LittleEndian.PutUint32(hdr[16:20], 16)
	binary.LittleEndian.PutUint16(hdr[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(hdr[22:24], uint16(Channels))
	binary.LittleEndian.PutUint32(hdr[24:28], uint32(SampleRate))
	binary.LittleEndian.PutUint32(hdr[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(hdr[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(hdr[34:36], uint16(BitsPerSample))
	copy(hdr[36:40], "data")
	binary.LittleEndian.PutUint32(hdr[40:44], dataSize)

	if _, err := s.file.Write(hdr[:]); err != nil {
		return err
	}

	if s.samplesWritten > 0 {
		if _, err := s.file.Seek(0, 2); err != nil {
			return err
		}
	}
	return nil
}
