package summarize

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"meetcap/internal/events"
	"meetcap/internal/logging"
	"meetcap/internal/pathsafe"
	"meetcap/store"
)

// DefaultMaxTranscriptBytes is the default transcript size ceiling
// (spec.md §4.7: "configurable maximum size (default 1 MiB)").
const DefaultMaxTranscriptBytes = 1 << 20

// ErrTranscriptTooLarge is returned when the transcript exceeds the
// configured size ceiling.
var ErrTranscriptTooLarge = fmt.Errorf("summarize: transcript exceeds size limit")

// Bridge generates and persists a session's summary.
type Bridge struct {
	store         *store.Store
	meetingsRoot  string
	client        *LLMClient
	emitter       events.Emitter
	maxTranscript int64
}

// New builds a summary bridge. maxTranscriptBytes <= 0 selects
// DefaultMaxTranscriptBytes. emitter may be nil to drop events.
func New(st *store.Store, meetingsRoot string, client *LLMClient, emitter events.Emitter, maxTranscriptBytes int64) *Bridge {
	if emitter == nil {
		emitter = events.NopEmitter{}
	}
	if maxTranscriptBytes <= 0 {
		maxTranscriptBytes = DefaultMaxTranscriptBytes
	}
	return &Bridge{store: st, meetingsRoot: meetingsRoot, client: client, emitter: emitter, maxTranscript: maxTranscriptBytes}
}

// Generate reads <id>/transcript.txt, sends it to the LLM, writes
// <id>/summary.md, and patches the store. Returns the summary text.
// Implements spec.md §4.7.
func (b *Bridge) Generate(ctx context.Context, sessionID string) (string, error) {
	sess, err := b.store.GetByID(sessionID)
	if err != nil {
		return "", err
	}
	if sess.TranscriptPath == nil || *sess.TranscriptPath == "" {
		return "", fmt.Errorf("summarize: session has no transcript")
	}

	transcriptAbs, err := pathsafe.Resolve(b.meetingsRoot, *sess.TranscriptPath)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(transcriptAbs)
	if err != nil {
		return "", fmt.Errorf("summarize: stat transcript: %w", err)
	}
	if info.Size() > b.maxTranscript {
		return "", fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrTranscriptTooLarge, info.Size(), b.maxTranscript)
	}

	transcriptBytes, err := os.ReadFile(transcriptAbs)
	if err != nil {
		return "", fmt.Errorf("summarize: read transcript: %w", err)
	}

	summary, err := b.client.Summarize(ctx, string(transcriptBytes))
	if err != nil {
		return "", err
	}

	summaryRel := filepath.Join(sessionID, "summary.md")
	summaryAbs, err := pathsafe.Resolve(b.meetingsRoot, summaryRel)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(summaryAbs, []byte(summary), 0o644); err != nil {
		return "", fmt.Errorf("summarize: write summary: %w", err)
	}

	if err := b.store.UpdatePaths(sessionID, nil, nil, &summaryRel, nil); err != nil {
		return "", err
	}

	updated, err := b.store.GetByID(sessionID)
	if err != nil {
		return "", err
	}

	logging.Info("session summary generated", zap.String("session_id", sessionID))
	b.emitter.Emit(events.Event{Type: events.MeetingSummaryGenerated, Data: updated})

	return summary, nil
}
