package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewULID(t *testing.T) {
	id := NewULID()
	assert.False(t, id.IsZero(), "NewULID should generate a non-zero ID")

	other := NewULID()
	assert.NotEqual(t, id.String(), other.String(), "ULIDs should be unique")
}

func TestParseULID(t *testing.T) {
	id := NewULID()

	parsed, err := ParseULID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)

	_, err = ParseULID("not-a-ulid")
	assert.Error(t, err)
}

func TestULID_ValueScan(t *testing.T) {
	id := NewULID()

	v, err := id.Value()
	require.NoError(t, err)
	require.IsType(t, "", v)

	var scanned ULID
	require.NoError(t, scanned.Scan(v))
	assert.Equal(t, id, scanned)

	t.Run("zero value stores NULL", func(t *testing.T) {
		var zero ULID
		v, err := zero.Value()
		require.NoError(t, err)
		assert.Nil(t, v)
	})

	t.Run("scan nil yields zero", func(t *testing.T) {
		var u ULID
		require.NoError(t, u.Scan(nil))
		assert.True(t, u.IsZero())
	})

	t.Run("scan bytes", func(t *testing.T) {
		var u ULID
		require.NoError(t, u.Scan([]byte(id.String())))
		assert.Equal(t, id, u)
	})

	t.Run("scan unsupported type", func(t *testing.T) {
		var u ULID
		assert.Error(t, u.Scan(42))
	})
}

func TestULID_JSON(t *testing.T) {
	id := NewULID()

	data, err := json.Marshal(id)
	require.NoError(t, err)
	assert.Equal(t, `"`+id.String()+`"`, string(data))

	var decoded ULID
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, id, decoded)

	t.Run("zero marshals to null", func(t *testing.T) {
		var zero ULID
		data, err := json.Marshal(zero)
		require.NoError(t, err)
		assert.Equal(t, "null", string(data))
	})

	t.Run("null unmarshals to zero", func(t *testing.T) {
		var u ULID
		require.NoError(t, json.Unmarshal([]byte("null"), &u))
		assert.True(t, u.IsZero())
	})
}

func TestSessionRecord_Validate(t *testing.T) {
	valid := func() *SessionRecord {
		return &SessionRecord{
			SessionID: "5f6b0f9e-8a3d-4c2b-9f1e-0a1b2c3d4e5f",
			DeviceID:  "RINCON_XXXX",
			SourceURL: "http://radio.example.com/stream",
			Outcome:   SessionOutcomeStopped,
			StartedAt: time.Now().Add(-time.Minute),
			EndedAt:   time.Now(),
		}
	}

	tests := []struct {
		name    string
		mutate  func(*SessionRecord)
		wantErr error
	}{
		{"valid", func(*SessionRecord) {}, nil},
		{"missing session id", func(r *SessionRecord) { r.SessionID = "" }, ErrSessionIDRequired},
		{"missing device id", func(r *SessionRecord) { r.DeviceID = "" }, ErrDeviceIDRequired},
		{"missing source url", func(r *SessionRecord) { r.SourceURL = "" }, ErrURLRequired},
		{"bad outcome", func(r *SessionRecord) { r.Outcome = "crashed" }, ErrInvalidOutcome},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := valid()
			tt.mutate(rec)

			err := rec.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestSessionRecord_Duration(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := &SessionRecord{StartedAt: start, EndedAt: start.Add(90 * time.Second)}
	assert.Equal(t, 90*time.Second, rec.Duration())
}

func TestProbeVerdict_Expired(t *testing.T) {
	now := time.Now()
	v := &ProbeVerdict{ExpiresAt: now.Add(time.Hour)}
	assert.False(t, v.Expired(now))
	assert.True(t, v.Expired(now.Add(2*time.Hour)))
}

func TestProbeVerdict_Validate(t *testing.T) {
	v := &ProbeVerdict{SourceURL: "http://radio.example.com/stream"}
	assert.NoError(t, v.Validate())

	v.SourceURL = ""
	assert.ErrorIs(t, v.Validate(), ErrURLRequired)
}
