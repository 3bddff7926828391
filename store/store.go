// Package store is the session store: an embedded relational store
// keyed by session id, with schema evolution through an ordered,
// idempotent migration list.
package store

import (
	"errors"
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"meetcap/store/migrations"
)

// ErrNotFound is returned when a session id has no matching row.
var ErrNotFound = errors.New("store: session not found")

// recoveredMessage is recorded on any row swept from Recording to
// Interrupted at startup (spec.md §4.4).
const recoveredMessage = "Session interrupted due to app shutdown (recovered on next launch)"

// Store wraps the embedded SQLite database holding session metadata.
type Store struct {
	db *gorm.DB
}

// Open connects to (creating if absent) the SQLite database at path,
// applies any pending migrations, and sweeps any row left in Recording
// status to Interrupted — the sole mechanism that detects an unclean
// prior shutdown (spec.md §4.4, §9).
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("store: underlying sql.DB: %w", err)
	}

	if err := migrations.Apply(sqlDB); err != nil {
		return nil, err
	}

	s := &Store{db: db}
	if err := s.sweepUncleanShutdown(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) sweepUncleanShutdown() error {
	msg := recoveredMessage
	res := s.db.Model(&Session{}).
		Where("status = ?", string(StatusRecording)).
		Updates(map[string]any{
			"status":        string(StatusInterrupted),
			"error_message": msg,
		})
	if res.Error != nil {
		return fmt.Errorf("store: sweep unclean shutdown: %w", res.Error)
	}
	return nil
}

// Insert persists a new session row.
func (s *Store) Insert(sess *Session) error {
	if err := s.db.Create(sess).Error; err != nil {
		return fmt.Errorf("store: insert session: %w", err)
	}
	return nil
}

// GetByID loads a session by id. Returns ErrNotFound if no row matches.
func (s *Store) GetByID(id string) (*Session, error) {
	var sess Session
	err := s.db.First(&sess, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get session %s: %w", id, err)
	}
	return &sess, nil
}

// ListOrderedByCreatedDesc returns every session, newest first.
func (s *Store) ListOrderedByCreatedDesc() ([]*Session, error) {
	var sessions []*Session
	if err := s.db.Order("created_at DESC").Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("store: list sessions: %w", err)
	}
	return sessions, nil
}

// ExistsActive reports whether any row currently has status Recording
// or Processing — the process-wide guard invariant 4 (spec.md §3)
// depends on, checked independently of the engine's in-memory slot so
// a retry worker's Processing row is never missed by a concurrent
// start_recording.
func (s *Store) ExistsActive() (bool, error) {
	var count int64
	err := s.db.Model(&Session{}).
		Where("status IN ?", []string{string(StatusRecording), string(StatusProcessing)}).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("store: check active sessions: %w", err)
	}
	return count > 0, nil
}

// UpdateStatus transitions a session's status with no error message.
func (s *Store) UpdateStatus(id string, status Status) error {
	return s.update(id, map[string]any{
		"status":        string(status),
		"error_message": nil,
	})
}

// UpdateStatusWithError transitions a session's status and records an
// error message (used for Failed and Interrupted transitions).
func (s *Store) UpdateStatusWithError(id string, status Status, errMsg string) error {
	return s.update(id, map[string]any{
		"status":        string(status),
		"error_message": errMsg,
	})
}

// UpdatePaths patches the audio/transcript/summary paths and, when
// duration is non-nil, the duration_seconds column.
func (s *Store) UpdatePaths(id string, audioPath, transcriptPath, summaryPath *string, duration *int64) error {
	values := map[string]any{}
	if audioPath != nil {
		values["audio_path"] = *audioPath
	}
	if transcriptPath != nil {
		values["transcript_path"] = *transcriptPath
	}
	if summaryPath != nil {
		values["summary_path"] = *summaryPath
	}
	if duration != nil {
		values["duration_seconds"] = *duration
	}
	if len(values) == 0 {
		return nil
	}
	return s.update(id, values)
}

// UpdateTitle renames a session. Caller is responsible for the
// non-empty-after-trim invariant.
func (s *Store) UpdateTitle(id, title string) error {
	return s.update(id, map[string]any{"title": title})
}

func (s *Store) update(id string, values map[string]any) error {
	res := s.db.Model(&Session{}).Where("id = ?", id).Updates(values)
	if res.Error != nil {
		return fmt.Errorf("store: update session %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a session row.
func (s *Store) Delete(id string) error {
	res := s.db.Delete(&Session{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("store: delete session %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
