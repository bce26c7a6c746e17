package models

import "errors"

// Common validation errors for models.
var (
	// ErrSessionIDRequired indicates a required session ID field is empty.
	ErrSessionIDRequired = errors.New("session_id is required")

	// ErrDeviceIDRequired indicates a required device ID field is empty.
	ErrDeviceIDRequired = errors.New("device_id is required")

	// ErrURLRequired indicates a required URL field is empty.
	ErrURLRequired = errors.New("source_url is required")

	// ErrInvalidOutcome indicates an unknown terminal state string.
	ErrInvalidOutcome = errors.New("invalid outcome: must be 'stopped' or 'error'")

	// ErrSourceURLNotFound indicates no verdict exists for the given URL.
	ErrSourceURLNotFound = errors.New("source URL not found")
)

// Validate checks the record has the fields the journal requires.
func (r *SessionRecord) Validate() error {
	if r.SessionID == "" {
		return ErrSessionIDRequired
	}
	if r.DeviceID == "" {
		return ErrDeviceIDRequired
	}
	if r.SourceURL == "" {
		return ErrURLRequired
	}
	if r.Outcome != SessionOutcomeStopped && r.Outcome != SessionOutcomeError {
		return ErrInvalidOutcome
	}
	return nil
}

// Validate checks the verdict has a probed URL.
func (p *ProbeVerdict) Validate() error {
	if p.SourceURL == "" {
		return ErrURLRequired
	}
	return nil
}
