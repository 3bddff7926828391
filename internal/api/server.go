// Package api exposes meetcapd's command surface (spec.md §6) over
// HTTP, plus a /ws endpoint streaming lifecycle events to any connected
// host.
//
// Grounded on the teacher's internal/api/server.go: plain net/http with
// manual path parsing (no router dependency), the CORS header block on
// each handler, and the /ws upgrade wired through a websocket.Upgrader.
// The teacher's single 2000-line handler file mixed in diarization,
// voiceprint matching, and hybrid-transcription endpoints that are out
// of scope here (spec.md §1 Non-goals); this file keeps only the shape
// (manual routing, CORS, JSON envelopes) and replaces the handlers
// wholesale with the twelve commands spec.md §6 names.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strings"

	"go.uber.org/zap"

	"meetcap/engine"
	"meetcap/internal/events"
	"meetcap/internal/logging"
	"meetcap/internal/pathsafe"
	"meetcap/store"
	"meetcap/summarize"
)

// Server wires the session engine, store, and summary bridge to HTTP.
type Server struct {
	engine       *engine.Engine
	store        *store.Store
	summaries    *summarize.Bridge
	broadcaster  *events.WebsocketBroadcaster
	meetingsRoot string
}

// New builds the command-surface server. broadcaster may be nil to
// disable /ws.
func New(eng *engine.Engine, st *store.Store, summaries *summarize.Bridge, broadcaster *events.WebsocketBroadcaster, meetingsRoot string) *Server {
	return &Server{engine: eng, store: st, summaries: summaries, broadcaster: broadcaster, meetingsRoot: meetingsRoot}
}

// Mux builds the HTTP handler for every route this server serves.
func (s *Server) Mux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/meetings/directory", s.handleDirectory)
	mux.HandleFunc("/api/meetings/current", s.handleCurrent)
	mux.HandleFunc("/api/meetings/status", s.handleStatus)
	mux.HandleFunc("/api/meetings", s.handleMeetingsCollection)
	mux.HandleFunc("/api/meetings/", s.handleMeetingItem)
	if s.broadcaster != nil {
		mux.Handle("/ws", s.broadcaster)
	}
	return mux
}

func withCORS(w http.ResponseWriter, r *http.Request) bool {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return true
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	logging.Warn("api: request failed", zap.Error(err))
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// statusFor maps an error to its HTTP status: state-guard, missing audio
// path, and path-escape errors are 400, not-found is 404, everything
// else is a server error.
func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrStateGuard), errors.Is(err, engine.ErrNoAudioPath), errors.Is(err, pathsafe.ErrEscape):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// handleDirectory implements get_meetings_directory.
func (s *Server) handleDirectory(w http.ResponseWriter, r *http.Request) {
	if withCORS(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, directoryResponse{Path: s.meetingsRoot})
}

// handleCurrent implements get_current_meeting.
func (s *Server) handleCurrent(w http.ResponseWriter, r *http.Request) {
	if withCORS(w, r) {
		return
	}
	id := s.engine.CurrentSessionID()
	if id == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	sess, err := s.store.GetByID(id)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionView(sess))
}

// handleStatus implements get_meeting_status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if withCORS(w, r) {
		return
	}
	id := s.engine.CurrentSessionID()
	if id == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	sess, err := s.store.GetByID(id)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Status)
}

// handleMeetingsCollection implements start_meeting_session (POST) and
// list_meeting_sessions (GET) on /api/meetings.
func (s *Server) handleMeetingsCollection(w http.ResponseWriter, r *http.Request) {
	if withCORS(w, r) {
		return
	}
	switch r.Method {
	case http.MethodGet:
		sessions, err := s.store.ListOrderedByCreatedDesc()
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, toSessionViews(sessions))
	case http.MethodPost:
		var req startRequest
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&req)
		}
		kind := store.AudioSource(req.AudioSource)
		switch kind {
		case store.SourceMicrophoneOnly, store.SourceSystemOnly, store.SourceMixed:
		default:
			kind = store.SourceMicrophoneOnly
		}
		sess, err := s.engine.StartRecording(kind)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusCreated, toSessionView(sess))
	default:
		writeError(w, http.StatusMethodNotAllowed, errors.New("api: method not allowed"))
	}
}

// handleMeetingItem routes every /api/meetings/{id}[/action] request.
func (s *Server) handleMeetingItem(w http.ResponseWriter, r *http.Request) {
	if withCORS(w, r) {
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/api/meetings/")
	rest = strings.Trim(rest, "/")
	if rest == "" {
		writeError(w, http.StatusBadRequest, errors.New("api: missing session id"))
		return
	}

	if rest == "stop" && r.Method == http.MethodPost {
		s.handleStop(w, r)
		return
	}

	parts := strings.SplitN(rest, "/", 2)
	id := parts[0]
	action := ""
	if len(parts) == 2 {
		action = parts[1]
	}

	switch {
	case action == "" && r.Method == http.MethodDelete:
		s.handleDelete(w, r, id)
	case action == "title" && r.Method == http.MethodPatch:
		s.handleUpdateTitle(w, r, id)
	case action == "retry" && r.Method == http.MethodPost:
		s.handleRetry(w, r, id)
	case action == "transcript" && r.Method == http.MethodGet:
		s.handleGetTranscript(w, r, id)
	case action == "summary" && r.Method == http.MethodPost:
		s.handleGenerateSummary(w, r, id)
	case action == "summary" && r.Method == http.MethodGet:
		s.handleGetSummary(w, r, id)
	default:
		writeError(w, http.StatusNotFound, errors.New("api: unknown route"))
	}
}

// handleStop implements stop_meeting_session.
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	relPath, err := s.engine.StopRecording()
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, directoryResponse{Path: relPath})
}

// handleDelete implements delete_meeting_session.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request, id string) {
	if err := s.engine.Delete(id); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleUpdateTitle implements update_meeting_title.
func (s *Server) handleUpdateTitle(w http.ResponseWriter, r *http.Request, id string) {
	var req titleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		writeError(w, http.StatusBadRequest, errors.New("api: title must not be empty"))
		return
	}
	if err := s.store.UpdateTitle(id, title); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRetry implements retry_transcription.
func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request, id string) {
	if err := s.engine.Retry(id); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleGetTranscript implements get_meeting_transcript.
func (s *Server) handleGetTranscript(w http.ResponseWriter, r *http.Request, id string) {
	sess, err := s.store.GetByID(id)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if sess.TranscriptPath == nil || *sess.TranscriptPath == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	abs, err := pathsafe.Resolve(s.meetingsRoot, *sess.TranscriptPath)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, transcriptResponse{Text: string(data)})
}

// handleGenerateSummary implements generate_meeting_summary.
func (s *Server) handleGenerateSummary(w http.ResponseWriter, r *http.Request, id string) {
	text, err := s.summaries.Generate(r.Context(), id)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, summaryResponse{Text: text})
}

// handleGetSummary implements get_meeting_summary.
func (s *Server) handleGetSummary(w http.ResponseWriter, r *http.Request, id string) {
	sess, err := s.store.GetByID(id)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if sess.SummaryPath == nil || *sess.SummaryPath == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	abs, err := pathsafe.Resolve(s.meetingsRoot, *sess.SummaryPath)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, summaryResponse{Text: string(data)})
}
