package models

import "time"

// ProbeVerdict caches the compatibility decision for a station URL.
// Replaying the same station within the TTL skips the network probe.
type ProbeVerdict struct {
	BaseModel

	// SourceURL is the URL that was probed (unique index).
	SourceURL string `gorm:"uniqueIndex;not null;size:2048" json:"source_url"`

	// Compatible reports whether the speaker can consume the URL directly.
	Compatible bool `gorm:"not null" json:"compatible"`

	// Codec is the sniffed audio codec, when determinable (mp3, aac, ogg).
	Codec string `gorm:"size:50" json:"codec,omitempty"`

	// Container is the sniffed container format (adts, mpegts, ogg, hls).
	Container string `gorm:"size:50" json:"container,omitempty"`

	// ContentType is the Content-Type header the source declared.
	ContentType string `gorm:"size:200" json:"content_type,omitempty"`

	// ResolvedURL is the media URL after playlist resolution, when it
	// differs from SourceURL.
	ResolvedURL string `gorm:"size:2048" json:"resolved_url,omitempty"`

	// CheckedAt is when the probe ran.
	CheckedAt time.Time `gorm:"not null;index" json:"checked_at"`

	// ExpiresAt is when the verdict stops being reusable.
	ExpiresAt time.Time `gorm:"not null;index" json:"expires_at"`

	// HitCount tracks cache reuse.
	HitCount int64 `gorm:"default:0" json:"hit_count"`
}

// TableName returns the table name for ProbeVerdict.
func (ProbeVerdict) TableName() string {
	return "probe_verdicts"
}

// Expired reports whether the verdict is past its TTL at the given time.
func (p *ProbeVerdict) Expired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}
