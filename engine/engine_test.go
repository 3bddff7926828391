package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meetcap/audio"
	"meetcap/internal/events"
	"meetcap/store"
)

// fakeSource is a controllable audio.Source for tests: production code
// drives it by calling feed/fail; it never touches real hardware.
type fakeSource struct {
	mu      sync.Mutex
	running bool
	onData  audio.DataFunc
	onError audio.ErrorFunc
}

func (f *fakeSource) Start(onData audio.DataFunc, onError audio.ErrorFunc) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = true
	f.onData = onData
	f.onError = onError
	return nil
}

func (f *fakeSource) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = false
	return nil
}

func (f *fakeSource) feed(samples []float32) {
	f.mu.Lock()
	onData := f.onData
	f.mu.Unlock()
	if onData != nil {
		onData(samples)
	}
}

func (f *fakeSource) fail(err error) {
	f.mu.Lock()
	onError := f.onError
	f.mu.Unlock()
	if onError != nil {
		onError(err)
	}
}

type fakeFactory struct {
	mic *fakeSource
	sys *fakeSource
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{mic: &fakeSource{}, sys: &fakeSource{}}
}

func (f *fakeFactory) NewMicrophone(string) (audio.Source, error) { return f.mic, nil }
func (f *fakeFactory) NewSystem() (audio.Source, error)           { return f.sys, nil }

// fakeTranscriber records Run invocations instead of performing real STT;
// transcribe.Bridge exercises the real path in its own package tests.
type fakeTranscriber struct {
	mu  sync.Mutex
	ran []string
}

func (t *fakeTranscriber) Run(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ran = append(t.ran, sessionID)
}

func (t *fakeTranscriber) runCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.ran)
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []events.Event
}

func (e *recordingEmitter) Emit(ev events.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
}

func (e *recordingEmitter) countType(t events.Type) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, ev := range e.events {
		if ev.Type == t {
			n++
		}
	}
	return n
}

func newTestEngine(t *testing.T) (*Engine, *store.Store, *fakeFactory, *fakeTranscriber, *recordingEmitter) {
	t.Helper()
	root := t.TempDir()
	st, err := store.Open(filepath.Join(root, "meetings.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	factory := newFakeFactory()
	transcriber := &fakeTranscriber{}
	emitter := &recordingEmitter{}

	e := New(st, root, emitter, transcriber, "", 2*time.Second)
	e.sources = factory

	return e, st, factory, transcriber, emitter
}

func TestStartRecordingCreatesFolderAndRow(t *testing.T) {
	e, st, factory, _, emitter := newTestEngine(t)

	sess, err := e.StartRecording(store.SourceMicrophoneOnly)
	require.NoError(t, err)
	assert.Equal(t, string(store.StatusRecording), sess.Status)
	assert.NotNil(t, sess.AudioPath)
	assert.True(t, factory.mic.running)
	assert.Equal(t, 1, emitter.countType(events.MeetingStarted))

	row, err := st.GetByID(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, string(store.StatusRecording), row.Status)

	_, err = os.Stat(filepath.Join(e.meetingsRoot, sess.ID))
	assert.NoError(t, err)
}

func TestStartRecordingRejectsWhileRecording(t *testing.T) {
	e, _, _, _, _ := newTestEngine(t)

	_, err := e.StartRecording(store.SourceMicrophoneOnly)
	require.NoError(t, err)

	_, err = e.StartRecording(store.SourceMicrophoneOnly)
	assert.ErrorIs(t, err, ErrStateGuard)
}

func TestStartRecordingRejectsWhileAnotherSessionProcessing(t *testing.T) {
	e, st, _, _, _ := newTestEngine(t)

	processing := &store.Session{
		ID:          "stuck",
		Title:       "Meeting - stuck",
		CreatedAt:   time.Now().Unix(),
		Status:      string(store.StatusProcessing),
		AudioSource: string(store.SourceMicrophoneOnly),
	}
	require.NoError(t, st.Insert(processing))

	_, err := e.StartRecording(store.SourceMicrophoneOnly)
	assert.ErrorIs(t, err, ErrStateGuard)
}

func TestNormalMicFlow(t *testing.T) {
	e, st, factory, transcriber, emitter := newTestEngine(t)

	sess, err := e.StartRecording(store.SourceMicrophoneOnly)
	require.NoError(t, err)

	samples := make([]float32, 32000)
	factory.mic.feed(samples)

	relPath, err := e.StopRecording()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(sess.ID, "audio.wav"), relPath)

	row, err := st.GetByID(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, string(store.StatusProcessing), row.Status)
	assert.Equal(t, 1, transcriber.runCount())
	assert.Equal(t, 1, emitter.countType(events.MeetingProcessing))

	audioPath := filepath.Join(e.meetingsRoot, *row.AudioPath)
	info, err := os.Stat(audioPath)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(44))
}

func TestStopRecordingRejectsWhenIdle(t *testing.T) {
	e, _, _, _, _ := newTestEngine(t)
	_, err := e.StopRecording()
	assert.ErrorIs(t, err, ErrStateGuard)
}

func TestDisconnectMidRecording(t *testing.T) {
	e, st, factory, _, emitter := newTestEngine(t)

	sess, err := e.StartRecording(store.SourceMicrophoneOnly)
	require.NoError(t, err)

	factory.mic.feed(make([]float32, 16000))
	factory.mic.fail(fmt.Errorf("device removed"))

	// handle_disconnect runs on its own goroutine; give it a moment.
	waitFor(t, func() bool {
		row, err := st.GetByID(sess.ID)
		return err == nil && row.Status == string(store.StatusFailed)
	})

	row, err := st.GetByID(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, string(store.StatusFailed), row.Status)
	require.NotNil(t, row.ErrorMessage)
	assert.Equal(t, "Microphone disconnected: device removed", *row.ErrorMessage)
	assert.Equal(t, 1, emitter.countType(events.MicDisconnected))
	assert.Equal(t, "", e.CurrentSessionID())

	audioPath := filepath.Join(e.meetingsRoot, *row.AudioPath)
	_, err = os.Stat(audioPath)
	assert.NoError(t, err)
}

func TestDisconnectDebouncedToOneEvent(t *testing.T) {
	e, st, factory, _, emitter := newTestEngine(t)

	sess, err := e.StartRecording(store.SourceMicrophoneOnly)
	require.NoError(t, err)

	factory.mic.fail(fmt.Errorf("first error"))
	factory.mic.fail(fmt.Errorf("second error"))

	waitFor(t, func() bool {
		row, err := st.GetByID(sess.ID)
		return err == nil && row.Status == string(store.StatusFailed)
	})
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, 1, emitter.countType(events.MicDisconnected))
}

func TestAppShutdownInterruptsRecording(t *testing.T) {
	e, st, factory, _, _ := newTestEngine(t)

	sess, err := e.StartRecording(store.SourceMicrophoneOnly)
	require.NoError(t, err)
	factory.mic.feed(make([]float32, 8000))

	interrupted, err := e.HandleAppShutdown()
	require.NoError(t, err)
	assert.True(t, interrupted)

	row, err := st.GetByID(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, string(store.StatusInterrupted), row.Status)

	// A second shutdown call with nothing recording is a no-op.
	interrupted, err = e.HandleAppShutdown()
	require.NoError(t, err)
	assert.False(t, interrupted)

	row, err = st.GetByID(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, string(store.StatusInterrupted), row.Status)
}

func TestUncleanShutdownRecovery(t *testing.T) {
	root := t.TempDir()
	dbPath := filepath.Join(root, "meetings.db")

	st, err := store.Open(dbPath)
	require.NoError(t, err)

	stuck := &store.Session{
		ID:          "crashed",
		Title:       "Meeting - crashed",
		CreatedAt:   time.Now().Unix(),
		Status:      string(store.StatusRecording),
		AudioSource: string(store.SourceMicrophoneOnly),
	}
	require.NoError(t, st.Insert(stuck))
	require.NoError(t, st.Close())

	st2, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st2.Close()

	row, err := st2.GetByID("crashed")
	require.NoError(t, err)
	assert.Equal(t, string(store.StatusInterrupted), row.Status)
	require.NotNil(t, row.ErrorMessage)
	assert.Contains(t, *row.ErrorMessage, "interrupted due to app shutdown")
}

func TestRetryFromFailedTransitionsToProcessing(t *testing.T) {
	e, st, _, transcriber, _ := newTestEngine(t)

	audioPath := "failed-session/audio.wav"
	sess := &store.Session{
		ID:          "failed-session",
		Title:       "Meeting - failed",
		CreatedAt:   time.Now().Unix(),
		Status:      string(store.StatusFailed),
		AudioSource: string(store.SourceMicrophoneOnly),
		AudioPath:   &audioPath,
	}
	require.NoError(t, st.Insert(sess))

	require.NoError(t, e.Retry(sess.ID))

	row, err := st.GetByID(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, string(store.StatusProcessing), row.Status)
	assert.Equal(t, 1, transcriber.runCount())
}

func TestRetryRejectsWithoutAudioPath(t *testing.T) {
	e, st, _, _, _ := newTestEngine(t)

	sess := &store.Session{
		ID:          "no-audio",
		Title:       "Meeting - no audio",
		CreatedAt:   time.Now().Unix(),
		Status:      string(store.StatusFailed),
		AudioSource: string(store.SourceMicrophoneOnly),
	}
	require.NoError(t, st.Insert(sess))

	err := e.Retry(sess.ID)
	assert.ErrorIs(t, err, ErrNoAudioPath)
}

func TestRetryRejectsFromRecording(t *testing.T) {
	e, _, _, _, _ := newTestEngine(t)

	sess, err := e.StartRecording(store.SourceMicrophoneOnly)
	require.NoError(t, err)

	err = e.Retry(sess.ID)
	assert.ErrorIs(t, err, ErrStateGuard)
}

func TestDeleteRemovesFolderAndRow(t *testing.T) {
	e, st, _, _, _ := newTestEngine(t)

	sess, err := e.StartRecording(store.SourceMicrophoneOnly)
	require.NoError(t, err)
	_, err = e.StopRecording()
	require.NoError(t, err)

	dir := filepath.Join(e.meetingsRoot, sess.ID)
	require.DirExists(t, dir)

	require.NoError(t, e.Delete(sess.ID))

	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))

	_, err = st.GetByID(sess.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDeleteUnknownIDFails(t *testing.T) {
	e, _, _, _, _ := newTestEngine(t)
	err := e.Delete("nonexistent")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAudioLevelCallbackReportsMicRMS(t *testing.T) {
	e, _, factory, _, _ := newTestEngine(t)

	var mu sync.Mutex
	var calls int
	var lastMic float64
	e.OnAudioLevel = func(micLevel, sysLevel float64) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		lastMic = micLevel
	}

	_, err := e.StartRecording(store.SourceMicrophoneOnly)
	require.NoError(t, err)

	loud := make([]float32, 1600)
	for i := range loud {
		loud[i] = 1.0
	}
	factory.mic.feed(loud)

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls > 0 && lastMic > 0
	})

	_, err = e.StopRecording()
	require.NoError(t, err)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
