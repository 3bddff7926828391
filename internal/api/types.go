package api

import "meetcap/store"

// startRequest is the body of POST /api/meetings.
type startRequest struct {
	AudioSource string `json:"audio_source,omitempty"`
}

// titleRequest is the body of PATCH /api/meetings/{id}/title.
type titleRequest struct {
	Title string `json:"title"`
}

// transcriptResponse is returned by GET /api/meetings/{id}/transcript.
type transcriptResponse struct {
	Text string `json:"text"`
}

// summaryResponse is returned by the summary endpoints.
type summaryResponse struct {
	Text string `json:"text"`
}

// directoryResponse is returned by GET /api/meetings/directory.
type directoryResponse struct {
	Path string `json:"path"`
}

// errorResponse is the uniform JSON error envelope for failed requests.
type errorResponse struct {
	Error string `json:"error"`
}

// sessionView mirrors store.Session verbatim; kept as a distinct type so
// the wire shape is decoupled from the GORM model's tags.
type sessionView struct {
	ID              string  `json:"id"`
	Title           string  `json:"title"`
	CreatedAt       int64   `json:"created_at"`
	DurationSeconds *int64  `json:"duration_seconds,omitempty"`
	Status          string  `json:"status"`
	AudioPath       *string `json:"audio_path,omitempty"`
	TranscriptPath  *string `json:"transcript_path,omitempty"`
	SummaryPath     *string `json:"summary_path,omitempty"`
	ErrorMessage    *string `json:"error_message,omitempty"`
	AudioSource     string  `json:"audio_source"`
}

func toSessionView(s *store.Session) *sessionView {
	if s == nil {
		return nil
	}
	return &sessionView{
		ID:              s.ID,
		Title:           s.Title,
		CreatedAt:       s.CreatedAt,
		DurationSeconds: s.DurationSeconds,
		Status:          s.Status,
		AudioPath:       s.AudioPath,
		TranscriptPath:  s.TranscriptPath,
		SummaryPath:     s.SummaryPath,
		ErrorMessage:    s.ErrorMessage,
		AudioSource:     s.AudioSource,
	}
}

func toSessionViews(sessions []*store.Session) []*sessionView {
	views := make([]*sessionView, len(sessions))
	for i, s := range sessions {
		views[i] = toSessionView(s)
	}
	return views
}
