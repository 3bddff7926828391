package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meetcap/audio"
	"meetcap/engine"
	"meetcap/internal/events"
	"meetcap/store"
	"meetcap/summarize"
)

// fakeSource is a controllable audio.Source; production capture wiring
// is exercised by engine's own tests, this package only needs the
// command surface to drive a real engine end to end.
type fakeSource struct {
	mu      sync.Mutex
	onData  audio.DataFunc
	onError audio.ErrorFunc
}

func (f *fakeSource) Start(onData audio.DataFunc, onError audio.ErrorFunc) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onData = onData
	f.onError = onError
	return nil
}

func (f *fakeSource) Stop() error { return nil }

type fakeFactory struct{ mic, sys *fakeSource }

func (f *fakeFactory) NewMicrophone(string) (audio.Source, error) { return f.mic, nil }
func (f *fakeFactory) NewSystem() (audio.Source, error)           { return f.sys, nil }

type fakeTranscriber struct{}

func (fakeTranscriber) Run(sessionID string) {}

func newTestServer(t *testing.T) (*Server, *store.Store, string) {
	t.Helper()
	root := t.TempDir()
	st, err := store.Open(filepath.Join(root, "meetings.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	broadcaster := events.NewWebsocketBroadcaster()
	eng := engine.New(st, root, broadcaster, fakeTranscriber{}, "", 2*time.Second)

	summaries := summarize.New(st, root, summarize.NewLLMClient("http://unused.invalid", "llama3.1"), broadcaster, 0)
	srv := New(eng, st, summaries, broadcaster, root)
	return srv, st, root
}

func doRequest(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	reader := strings.NewReader("")
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = strings.NewReader(string(b))
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	srv.Mux().ServeHTTP(rec, req)
	return rec
}

func TestHandleDirectory(t *testing.T) {
	srv, _, root := newTestServer(t)
	rec := doRequest(t, srv, http.MethodGet, "/api/meetings/directory", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp directoryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, root, resp.Path)
}

func TestHandleCurrentWhenIdle(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := doRequest(t, srv, http.MethodGet, "/api/meetings/current", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "null\n", rec.Body.String())
}

func TestStartListAndStopMeeting(t *testing.T) {
	srv, st, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/meetings", startRequest{AudioSource: "microphone_only"})
	require.Equal(t, http.StatusCreated, rec.Code)

	var started sessionView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))
	assert.Equal(t, string(store.StatusRecording), started.Status)

	rec = doRequest(t, srv, http.MethodGet, "/api/meetings", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	var list []sessionView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, started.ID, list[0].ID)

	rec = doRequest(t, srv, http.MethodPost, "/api/meetings/stop", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	row, err := st.GetByID(started.ID)
	require.NoError(t, err)
	assert.Equal(t, string(store.StatusProcessing), row.Status)
}

func TestStartRejectsSecondSession(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/meetings", startRequest{AudioSource: "microphone_only"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(t, srv, http.MethodPost, "/api/meetings", startRequest{AudioSource: "microphone_only"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateTitleRejectsEmpty(t *testing.T) {
	srv, st, _ := newTestServer(t)

	sess := &store.Session{
		ID:          "sess-1",
		Title:       "Meeting - one",
		Status:      string(store.StatusCompleted),
		AudioSource: string(store.SourceMicrophoneOnly),
	}
	require.NoError(t, st.Insert(sess))

	rec := doRequest(t, srv, http.MethodPatch, "/api/meetings/sess-1/title", titleRequest{Title: "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, srv, http.MethodPatch, "/api/meetings/sess-1/title", titleRequest{Title: "Renamed"})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	row, err := st.GetByID("sess-1")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", row.Title)
}

func TestRetryRejectsWithoutAudioPath(t *testing.T) {
	srv, st, _ := newTestServer(t)

	sess := &store.Session{
		ID:          "sess-2",
		Title:       "Meeting - two",
		Status:      string(store.StatusFailed),
		AudioSource: string(store.SourceMicrophoneOnly),
	}
	require.NoError(t, st.Insert(sess))

	rec := doRequest(t, srv, http.MethodPost, "/api/meetings/sess-2/retry", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetTranscriptReturnsFileContents(t *testing.T) {
	srv, st, root := newTestServer(t)

	transcriptRel := filepath.Join("sess-3", "transcript.txt")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sess-3"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, transcriptRel), []byte("hello world"), 0o644))

	sess := &store.Session{
		ID:             "sess-3",
		Title:          "Meeting - three",
		Status:         string(store.StatusCompleted),
		AudioSource:    string(store.SourceMicrophoneOnly),
		TranscriptPath: &transcriptRel,
	}
	require.NoError(t, st.Insert(sess))

	rec := doRequest(t, srv, http.MethodGet, "/api/meetings/sess-3/transcript", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp transcriptResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "hello world", resp.Text)
}

func TestDeleteMeetingSession(t *testing.T) {
	srv, st, _ := newTestServer(t)

	sess := &store.Session{
		ID:          "sess-4",
		Title:       "Meeting - four",
		Status:      string(store.StatusCompleted),
		AudioSource: string(store.SourceMicrophoneOnly),
	}
	require.NoError(t, st.Insert(sess))

	rec := doRequest(t, srv, http.MethodDelete, "/api/meetings/sess-4", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	_, err := st.GetByID("sess-4")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUnknownRouteReturnsNotFound(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := doRequest(t, srv, http.MethodGet, "/api/meetings/sess-5/nonsense", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
