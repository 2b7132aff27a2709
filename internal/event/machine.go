// Package event turns the per-frame motion trigger into recording segments.
//
// The Machine applies asymmetric hysteresis: a single triggering frame starts
// a segment, while a segment only stops after momentum drops below
// -StopAfter, i.e. after a long run of quiet frames. StopAfter counts frames,
// not wall-clock time.
package event

import (
	"fmt"
	"math"
)

// State is the recording state of a Machine.
type State int

const (
	Idle State = iota
	Recording
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Kind tells the recorder what to do with the current frame.
type Kind int

const (
	NoOp Kind = iota
	Start
	Continue
	Stop
)

func (k Kind) String() string {
	switch k {
	case NoOp:
		return "noop"
	case Start:
		return "start"
	case Continue:
		return "continue"
	case Stop:
		return "stop"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Event is the outcome of one Next call. SegmentID is zero for NoOp.
type Event struct {
	Kind      Kind
	SegmentID int
}

func (e Event) String() string {
	if e.Kind == NoOp {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s(%d)", e.Kind, e.SegmentID)
}

// Config tunes the hysteresis.
type Config struct {
	// StopAfter is the momentum bound; a segment stops once momentum < -StopAfter.
	StopAfter int `yaml:"stop_after_frames" json:"stop_after_frames"`
}

// DefaultConfig returns the stock hysteresis.
func DefaultConfig() Config {
	return Config{StopAfter: 50}
}

// Validate reports an invalid bound.
func (c Config) Validate() error {
	if c.StopAfter < 0 {
		return fmt.Errorf("recording.stop_after_frames must not be negative, got %d", c.StopAfter)
	}
	return nil
}

// Machine is the recording state machine. It is a total function of
// (state, momentum, trigger) and never rejects input. Not safe for
// concurrent use.
type Machine struct {
	cfg Config

	state     State
	momentum  int
	segmentID int
	elapsed   int
}

// NewMachine returns a Machine in Idle with momentum 0.
func NewMachine(cfg Config) *Machine {
	return &Machine{cfg: cfg}
}

// Next feeds one frame's trigger and returns what to do with that frame.
func (m *Machine) Next(trigger bool) Event {
	if trigger {
		m.momentum = 1
	} else if m.momentum > math.MinInt {
		m.momentum--
	}

	switch m.state {
	case Recording:
		if m.momentum < -m.cfg.StopAfter {
			m.state = Idle
			return Event{Kind: Stop, SegmentID: m.segmentID}
		}
		m.elapsed++
		return Event{Kind: Continue, SegmentID: m.segmentID}
	default:
		if m.momentum > 0 {
			m.state = Recording
			m.segmentID++
			m.elapsed = 1
			return Event{Kind: Start, SegmentID: m.segmentID}
		}
		return Event{Kind: NoOp}
	}
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// Momentum returns the signed motion streak counter.
func (m *Machine) Momentum() int { return m.momentum }

// SegmentID returns the id of the current (or last) segment; 0 before the
// first Start.
func (m *Machine) SegmentID() int { return m.segmentID }

// Elapsed returns the number of frames in the open segment, 0 when Idle.
func (m *Machine) Elapsed() int {
	if m.state != Recording {
		return 0
	}
	return m.elapsed
}
