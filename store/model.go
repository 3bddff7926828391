package store

// Status is the persisted lowercase string form of a session's lifecycle
// state (spec.md §6: "status values persisted as lowercase strings").
type Status string

const (
	StatusIdle        Status = "idle"
	StatusRecording   Status = "recording"
	StatusProcessing  Status = "processing"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusInterrupted Status = "interrupted"
)

// AudioSource is the persisted lowercase string form of a session's
// configured capture mode.
type AudioSource string

const (
	SourceMicrophoneOnly AudioSource = "microphone_only"
	SourceSystemOnly     AudioSource = "system_only"
	SourceMixed          AudioSource = "mixed"
)

// Session is the GORM-mapped row for one recording session. Column names
// match the migration in store/migrations exactly; GORM here is a thin
// query layer over a schema that golang-migrate owns.
type Session struct {
	ID              string  `gorm:"column:id;primaryKey"`
	Title           string  `gorm:"column:title"`
	CreatedAt       int64   `gorm:"column:created_at"`
	DurationSeconds *int64  `gorm:"column:duration_seconds"`
	Status          string  `gorm:"column:status"`
	AudioPath       *string `gorm:"column:audio_path"`
	TranscriptPath  *string `gorm:"column:transcript_path"`
	SummaryPath     *string `gorm:"column:summary_path"`
	ErrorMessage    *string `gorm:"column:error_message"`
	AudioSource     string  `gorm:"column:audio_source"`
}

// TableName pins the GORM table name to the one the migrations create;
// GORM's default pluralization happens to match here, but pinning it
// keeps schema and model from silently drifting.
func (Session) TableName() string { return "sessions" }
