// Package engine implements the session lifecycle state machine: the
// single authority deciding when a meeting may start, stop, fail, or be
// retried. Every transition runs under one engine-wide lock that also
// guards the in-memory "current session" slot and the active source/sink
// handles.
//
// Grounded on internal/service/recording.go's RecordingService
// (mutex-guarded currentSession slot, cleanup-on-error closure,
// extract-then-unlock pattern in StopSession) and session/manager.go's
// single-source-of-truth session state.
package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"meetcap/audio"
	"meetcap/internal/events"
	"meetcap/internal/logging"
	"meetcap/store"

	"go.uber.org/zap"
)

// Transcriber runs the Transcription Bridge for a stopped session. The
// engine only needs to fire it off; transcribe.Bridge implements this
// without importing engine, avoiding a cycle.
type Transcriber interface {
	Run(sessionID string)
}

// activeSession is the in-memory cache for the one session the engine
// may be recording or processing right now. It is a cache only: the
// store remains authoritative for terminal status (spec.md §9).
type activeSession struct {
	id        string
	createdAt time.Time
	pipeline  *recordingPipeline
}

// Engine coordinates audio capture, the session store, and the
// transcription handoff behind a single mutex.
type Engine struct {
	mu sync.Mutex

	store        *store.Store
	meetingsRoot string
	emitter      events.Emitter
	sources      sourceFactory
	transcriber  Transcriber

	micDevice       string
	finalizeTimeout time.Duration

	// OnAudioLevel, if set, is called roughly every 100ms during an
	// active recording with the current mic/system RMS levels, for a
	// host UI VU meter. Optional observability hook, not part of the
	// state machine.
	OnAudioLevel func(micLevel, sysLevel float64)

	current *activeSession
}

// New constructs an Engine. micDevice may be empty to select the
// platform default input device.
func New(st *store.Store, meetingsRoot string, emitter events.Emitter, transcriber Transcriber, micDevice string, finalizeTimeout time.Duration) *Engine {
	if emitter == nil {
		emitter = events.NopEmitter{}
	}
	if finalizeTimeout <= 0 {
		finalizeTimeout = 5 * time.Second
	}
	return &Engine{
		store:           st,
		meetingsRoot:    meetingsRoot,
		emitter:         emitter,
		sources:         defaultSourceFactory{},
		transcriber:     transcriber,
		micDevice:       micDevice,
		finalizeTimeout: finalizeTimeout,
	}
}

func (e *Engine) sessionDir(id string) string {
	return filepath.Join(e.meetingsRoot, id)
}

func (e *Engine) audioPath(id string) string {
	return filepath.Join(e.sessionDir(id), "audio.wav")
}

// StartRecording begins a new session with the given capture mode.
// Implements spec.md §4.5 start_recording.
func (e *Engine) StartRecording(kind store.AudioSource) (*store.Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current != nil {
		return nil, fmt.Errorf("%w: a session is already recording", ErrStateGuard)
	}
	active, err := e.store.ExistsActive()
	if err != nil {
		return nil, err
	}
	if active {
		return nil, fmt.Errorf("%w: a session is already recording or processing", ErrStateGuard)
	}

	id := uuid.NewString()
	now := time.Now()
	title := generateTitle(now)
	dir := e.sessionDir(id)

	sess := &store.Session{
		ID:          id,
		Title:       title,
		CreatedAt:   now.Unix(),
		Status:      string(store.StatusIdle),
		AudioSource: string(kind),
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("engine: create session folder: %w", err)
	}
	if err := e.store.Insert(sess); err != nil {
		os.RemoveAll(dir)
		return nil, err
	}

	rollback := func(cause error, started *recordingPipeline) (*store.Session, error) {
		msg := cause.Error()
		if started != nil {
			started.stopStarted()
			started.sink.Finalize(e.finalizeTimeout)
		}
		if err := os.Remove(e.audioPath(id)); err != nil && !os.IsNotExist(err) {
			logging.Warn("engine: remove audio file on rollback", zap.String("session_id", id), zap.Error(err))
		}
		if err := e.store.UpdateStatusWithError(id, store.StatusFailed, msg); err != nil {
			logging.Error("engine: mark failed start_recording rollback", zap.String("session_id", id), zap.Error(err))
		}
		sess.Status = string(store.StatusFailed)
		sess.ErrorMessage = &msg
		return sess, cause
	}

	sourceKind := audioSourceKind(kind)
	pipeline, err := newRecordingPipeline(e.sources, sourceKind, e.micDevice, e.audioPath(id), func(cause error) {
		e.handleDisconnectAsync(id, cause)
	}, e.OnAudioLevel)
	if err != nil {
		return rollback(err, nil)
	}

	if err := pipeline.start(); err != nil {
		return rollback(err, pipeline)
	}

	relAudioPath := filepath.Join(id, "audio.wav")
	if err := e.store.UpdatePaths(id, &relAudioPath, nil, nil, nil); err != nil {
		return rollback(err, pipeline)
	}
	if err := e.store.UpdateStatus(id, store.StatusRecording); err != nil {
		return rollback(err, pipeline)
	}

	sess.AudioPath = &relAudioPath
	sess.Status = string(store.StatusRecording)

	e.current = &activeSession{id: id, createdAt: now, pipeline: pipeline}

	logging.Info("session recording started", zap.String("session_id", id), zap.String("audio_source", string(kind)))
	e.emitter.Emit(events.Event{Type: events.MeetingStarted, Data: sess})

	return sess, nil
}

func audioSourceKind(s store.AudioSource) audio.AudioSourceKind {
	switch s {
	case store.SourceMicrophoneOnly:
		return audio.MicrophoneOnly
	case store.SourceSystemOnly:
		return audio.SystemOnly
	default:
		return audio.Mixed
	}
}

// StopRecording ends the current recording normally, handing off to the
// transcription worker. Returns the session's relative audio path.
// Implements spec.md §4.5 stop_recording.
func (e *Engine) StopRecording() (string, error) {
	e.mu.Lock()

	if e.current == nil {
		e.mu.Unlock()
		return "", fmt.Errorf("%w: no session is recording", ErrStateGuard)
	}
	sess, err := e.store.GetByID(e.current.id)
	if err != nil {
		e.mu.Unlock()
		return "", err
	}
	if sess.Status != string(store.StatusRecording) {
		e.mu.Unlock()
		return "", fmt.Errorf("%w: current session status is %s, not recording", ErrStateGuard, sess.Status)
	}

	active := e.current
	e.current = nil
	e.mu.Unlock()

	_, finalizeErr := active.pipeline.stop(e.finalizeTimeout)
	if finalizeErr != nil {
		logging.Warn("engine: finalize timed out, keeping partial audio", zap.String("session_id", active.id), zap.Error(finalizeErr))
	}

	now := time.Now()
	if now.Before(active.createdAt) {
		return "", fmt.Errorf("%w", ErrClockSkew)
	}
	duration := int64(now.Sub(active.createdAt).Seconds())
	if duration < 0 {
		duration = 0
	}

	if err := e.store.UpdatePaths(active.id, nil, nil, nil, &duration); err != nil {
		return "", err
	}
	if err := e.store.UpdateStatus(active.id, store.StatusProcessing); err != nil {
		return "", err
	}

	updated, err := e.store.GetByID(active.id)
	if err != nil {
		return "", err
	}

	logging.Info("session recording stopped", zap.String("session_id", active.id), zap.Int64("duration_seconds", duration))
	e.emitter.Emit(events.Event{Type: events.MeetingStopped, Data: updated})
	e.emitter.Emit(events.Event{Type: events.MeetingProcessing, Data: updated})

	e.spawnTranscription(active.id)

	relPath := filepath.Join(active.id, "audio.wav")
	return relPath, nil
}

func (e *Engine) spawnTranscription(sessionID string) {
	if e.transcriber == nil {
		return
	}
	go e.transcriber.Run(sessionID)
}

// handleDisconnectAsync is wired as the debounced source error callback.
// The pipeline's disconnectOnce already guarantees single-fire; this
// hands the actual work off to its own goroutine so the audio callback
// thread never blocks on the engine mutex (spec.md §4.5 handle_disconnect,
// §9 debounced error callback).
func (e *Engine) handleDisconnectAsync(sessionID string, cause error) {
	go e.HandleDisconnect(sessionID, cause.Error())
}

// HandleDisconnect reacts to a source error mid-recording. No-ops if the
// named session is not the current recording session.
func (e *Engine) HandleDisconnect(sessionID, errMessage string) {
	e.mu.Lock()
	if e.current == nil || e.current.id != sessionID {
		e.mu.Unlock()
		return
	}
	active := e.current
	e.current = nil
	e.mu.Unlock()

	active.pipeline.stop(e.finalizeTimeout)

	now := time.Now()
	duration := int64(now.Sub(active.createdAt).Seconds())
	if duration < 0 {
		duration = 0
	}

	msg := fmt.Sprintf("Microphone disconnected: %s", errMessage)
	if err := e.store.UpdatePaths(active.id, nil, nil, nil, &duration); err != nil {
		logging.Error("engine: record duration on disconnect", zap.String("session_id", active.id), zap.Error(err))
	}
	if err := e.store.UpdateStatusWithError(active.id, store.StatusFailed, msg); err != nil {
		logging.Error("engine: mark failed on disconnect", zap.String("session_id", active.id), zap.Error(err))
		return
	}

	updated, err := e.store.GetByID(active.id)
	if err != nil {
		logging.Error("engine: reload session after disconnect", zap.String("session_id", active.id), zap.Error(err))
		return
	}

	logging.Warn("microphone disconnected mid-recording", zap.String("session_id", active.id), zap.String("error", errMessage))
	e.emitter.Emit(events.Event{Type: events.MeetingFailed, Data: updated})
	e.emitter.Emit(events.Event{Type: events.MicDisconnected, Data: events.DisconnectPayload{
		SessionID:         active.id,
		ErrorMessage:      errMessage,
		PartialAudioSaved: true,
	}})
}

// HandleAppShutdown stops any in-progress recording gracefully, marking
// it Interrupted instead of Processing. Reports whether a session was
// interrupted. Implements spec.md §4.5 handle_app_shutdown.
func (e *Engine) HandleAppShutdown() (bool, error) {
	e.mu.Lock()
	if e.current == nil {
		e.mu.Unlock()
		return false, nil
	}
	active := e.current
	e.current = nil
	e.mu.Unlock()

	_, finalizeErr := active.pipeline.stop(e.finalizeTimeout)
	if finalizeErr != nil {
		logging.Warn("engine: finalize timed out during shutdown", zap.String("session_id", active.id), zap.Error(finalizeErr))
	}

	now := time.Now()
	duration := int64(now.Sub(active.createdAt).Seconds())
	if duration < 0 {
		duration = 0
	}

	const shutdownMessage = "Session interrupted due to app shutdown (recovered on next launch)"
	if err := e.store.UpdatePaths(active.id, nil, nil, nil, &duration); err != nil {
		return true, err
	}
	if err := e.store.UpdateStatusWithError(active.id, store.StatusInterrupted, shutdownMessage); err != nil {
		return true, err
	}

	logging.Info("session interrupted by app shutdown", zap.String("session_id", active.id))
	return true, nil
}

// Retry re-queues a session for transcription. Permitted from Failed,
// Interrupted, or Completed. Implements spec.md §4.5 retry.
func (e *Engine) Retry(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	sess, err := e.store.GetByID(id)
	if err != nil {
		return err
	}

	switch store.Status(sess.Status) {
	case store.StatusFailed, store.StatusInterrupted, store.StatusCompleted:
	default:
		return fmt.Errorf("%w: session status is %s, retry requires failed, interrupted, or completed", ErrStateGuard, sess.Status)
	}

	if sess.AudioPath == nil || *sess.AudioPath == "" {
		return fmt.Errorf("%w", ErrNoAudioPath)
	}

	if err := e.store.UpdateStatus(id, store.StatusProcessing); err != nil {
		return err
	}

	logging.Info("session retry requested", zap.String("session_id", id))
	e.spawnTranscription(id)
	return nil
}

// Delete removes a session's folder and row. Best-effort folder removal:
// a failure there does not prevent the row from being deleted, since the
// store remains the source of truth (spec.md §4.5 delete). Deleting the
// currently recording session is not guarded here; the caller is
// expected to enforce idle before deleting.
func (e *Engine) Delete(id string) error {
	if _, err := e.store.GetByID(id); err != nil {
		return err
	}

	if err := os.RemoveAll(e.sessionDir(id)); err != nil {
		logging.Warn("engine: best-effort folder removal failed", zap.String("session_id", id), zap.Error(err))
	}

	if err := e.store.Delete(id); err != nil {
		return err
	}

	logging.Info("session deleted", zap.String("session_id", id))
	return nil
}

// CurrentSessionID returns the id of the session currently recording, or
// "" if the engine is idle.
func (e *Engine) CurrentSessionID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return ""
	}
	return e.current.id
}
