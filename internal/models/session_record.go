package models

import "time"

// Session final states recorded in the journal. These mirror the relay
// session state machine's terminal states.
const (
	SessionOutcomeStopped = "stopped"
	SessionOutcomeError   = "error"
)

// SessionRecord is the journal entry written when a relay session reaches a
// terminal state. It backs the playback history API and is pruned by the
// scheduler after the configured retention.
type SessionRecord struct {
	BaseModel

	// SessionID is the runtime UUID of the relay session.
	SessionID string `gorm:"uniqueIndex;not null;size:36" json:"session_id"`

	// DeviceID is the speaker the session relayed to.
	DeviceID string `gorm:"index;not null;size:100" json:"device_id"`

	// StationName is the display name at play time, if known.
	StationName string `gorm:"size:500" json:"station_name,omitempty"`

	// SourceURL is the upstream station URL.
	SourceURL string `gorm:"not null;size:2048" json:"source_url"`

	// Outcome is the terminal state: stopped or error.
	Outcome string `gorm:"not null;size:20;index" json:"outcome"`

	// Error holds the failure detail when Outcome is error.
	Error string `gorm:"size:1000" json:"error,omitempty"`

	// BytesRelayed is the total payload forwarded to consumers.
	BytesRelayed int64 `json:"bytes_relayed"`

	StartedAt time.Time `gorm:"not null;index" json:"started_at"`
	EndedAt   time.Time `gorm:"not null" json:"ended_at"`
}

// TableName returns the table name for SessionRecord.
func (SessionRecord) TableName() string {
	return "session_records"
}

// Duration returns how long the session lived.
func (r *SessionRecord) Duration() time.Duration {
	return r.EndedAt.Sub(r.StartedAt)
}
