package feed

import "time"

// Message types
const (
	TypeSegmentStart = "segment_start"
	TypeSegmentStop  = "segment_stop"
)

// Message announces a segment boundary to feed subscribers.
type Message struct {
	Type      string    `json:"type"`
	Camera    string    `json:"camera,omitempty"`
	Session   string    `json:"session"`
	SegmentID int       `json:"segment_id"`
	File      string    `json:"file"`
	Frames    int64     `json:"frames,omitempty"`
	Time      time.Time `json:"time"`
}
