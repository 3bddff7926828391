package summarize

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meetcap/internal/events"
	"meetcap/store"
)

type captureEmitter struct {
	events []events.Event
}

func (c *captureEmitter) Emit(ev events.Event) { c.events = append(c.events, ev) }

func newTestStore(t *testing.T) (*store.Store, string) {
	t.Helper()
	root := t.TempDir()
	st, err := store.Open(filepath.Join(root, "meetings.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st, root
}

func seedCompletedSession(t *testing.T, st *store.Store, root, id, transcript string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(root, id), 0o755))
	transcriptRel := filepath.Join(id, "transcript.txt")
	require.NoError(t, os.WriteFile(filepath.Join(root, transcriptRel), []byte(transcript), 0o644))

	sess := &store.Session{
		ID:             id,
		Title:          "Meeting - test",
		Status:         string(store.StatusCompleted),
		AudioSource:    string(store.SourceMicrophoneOnly),
		TranscriptPath: &transcriptRel,
	}
	require.NoError(t, st.Insert(sess))
}

func TestGenerateWritesSummaryAndPatchesStore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"message":{"content":"## Key Points\n- a"}}`))
	}))
	defer srv.Close()

	st, root := newTestStore(t)
	seedCompletedSession(t, st, root, "sess-1", "speaker one: let's ship it")

	client := NewLLMClient(srv.URL, "llama3.1")
	emitter := &captureEmitter{}
	bridge := New(st, root, client, emitter, 0)

	summary, err := bridge.Generate(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.True(t, strings.Contains(summary, "Key Points"))

	row, err := st.GetByID("sess-1")
	require.NoError(t, err)
	require.NotNil(t, row.SummaryPath)

	data, err := os.ReadFile(filepath.Join(root, *row.SummaryPath))
	require.NoError(t, err)
	assert.Equal(t, summary, string(data))

	require.Len(t, emitter.events, 1)
	assert.Equal(t, events.MeetingSummaryGenerated, emitter.events[0].Type)
}

func TestGenerateRejectsOversizeTranscript(t *testing.T) {
	st, root := newTestStore(t)
	seedCompletedSession(t, st, root, "sess-2", strings.Repeat("x", 100))

	client := NewLLMClient("http://unused.invalid", "llama3.1")
	bridge := New(st, root, client, nil, 10)

	_, err := bridge.Generate(context.Background(), "sess-2")
	assert.ErrorIs(t, err, ErrTranscriptTooLarge)
}

func TestGenerateFailsWithoutTranscript(t *testing.T) {
	st, root := newTestStore(t)

	sess := &store.Session{
		ID:          "sess-3",
		Title:       "Meeting - test",
		Status:      string(store.StatusCompleted),
		AudioSource: string(store.SourceMicrophoneOnly),
	}
	require.NoError(t, st.Insert(sess))

	client := NewLLMClient("http://unused.invalid", "llama3.1")
	bridge := New(st, root, client, nil, 0)

	_, err := bridge.Generate(context.Background(), "sess-3")
	assert.Error(t, err)
}

func TestLLMClientSurfacesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":"model not found"}`))
	}))
	defer srv.Close()

	client := NewLLMClient(srv.URL, "missing-model")
	_, err := client.Summarize(context.Background(), "transcript text")
	assert.ErrorContains(t, err, "model not found")
}
