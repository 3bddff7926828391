// Package events defines the typed notifications the engine emits to the
// host application frame and a minimal websocket broadcaster that
// exercises the same envelope the host would consume.
package events

// Type names the kind of event emitted to the host. These mirror the
// command surface's terminal transitions and disconnect notification.
type Type string

const (
	MeetingStarted          Type = "meeting_started"
	MeetingStopped          Type = "meeting_stopped"
	MeetingProcessing       Type = "meeting_processing"
	MeetingCompleted        Type = "meeting_completed"
	MeetingFailed           Type = "meeting_failed"
	MicDisconnected         Type = "mic_disconnected"
	MeetingSummaryGenerated Type = "meeting_summary_generated"
)

// Event is the envelope delivered to the host for every notification.
// Data carries the event-specific payload (a Session for most events,
// a DisconnectPayload for mic_disconnected).
type Event struct {
	Type Type `json:"type"`
	Data any  `json:"data,omitempty"`
}

// DisconnectPayload is the mic_disconnected event's payload.
type DisconnectPayload struct {
	SessionID         string `json:"session_id"`
	ErrorMessage      string `json:"error_message"`
	PartialAudioSaved bool   `json:"partial_audio_saved"`
}

// Emitter is implemented by anything the engine can hand events to. The
// host application frame is the real implementation; tests use a
// recording stub.
type Emitter interface {
	Emit(Event)
}

// NopEmitter discards every event. Used where a caller has not wired a
// real host connection yet.
type NopEmitter struct{}

func (NopEmitter) Emit(Event) {}
