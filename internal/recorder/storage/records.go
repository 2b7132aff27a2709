package storage

import (
	"database/sql"
	"errors"
	"time"
)

// SegmentStatus tracks a segment through the upload path.
type SegmentStatus string

const (
	StatusRecorded SegmentStatus = "recorded"
	StatusUploaded SegmentStatus = "uploaded"
	StatusFailed   SegmentStatus = "failed"
)

// ErrSegmentNotFound is returned for unknown segment ids.
var ErrSegmentNotFound = errors.New("segment not found")

// ErrDuplicateSegment is returned when a session reuses a segment number.
var ErrDuplicateSegment = errors.New("duplicate segment number for session")

// SegmentRecord is one finished event segment.
type SegmentRecord struct {
	ID        string `json:"id" db:"id"`
	SessionID string `json:"session_id" db:"session_id"`
	// Number is the per-run segment id that also names the file.
	Number int    `json:"number" db:"segment_number"`
	Camera string `json:"camera" db:"camera"`

	LocalPath string         `json:"local_path" db:"local_path"`
	ObjectKey sql.NullString `json:"object_key,omitempty" db:"object_key"`
	Frames    int64          `json:"frames" db:"frames"`
	SizeBytes int64          `json:"size_bytes" db:"size_bytes"`

	Status SegmentStatus  `json:"status" db:"status"`
	Error  sql.NullString `json:"error,omitempty" db:"error"`

	StartedAt time.Time `json:"started_at" db:"started_at"`
	EndedAt   time.Time `json:"ended_at" db:"ended_at"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Duration is the wall time the segment covers.
func (r *SegmentRecord) Duration() time.Duration {
	return r.EndedAt.Sub(r.StartedAt)
}

// SegmentQuery filters ListSegments. Zero fields match everything.
type SegmentQuery struct {
	SessionID string
	Status    SegmentStatus
	Limit     int
}
