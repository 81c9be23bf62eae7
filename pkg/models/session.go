// Package models contains domain models for wallroll.
package models

import (
	"fmt"
	"time"
)

// Step is the questionnaire field currently awaited by a session.
type Step int

const (
	StepLength Step = iota
	StepWidth
	StepHeight
	StepWindowCount
	StepWindowWidth
	StepWindowHeight
	StepDoorCount
	StepDoorWidth
	StepDoorHeight
	StepRollWidth
	StepRollLength
	StepRapport
	StepDone
)

var stepNames = [...]string{
	StepLength:       "length",
	StepWidth:        "width",
	StepHeight:       "height",
	StepWindowCount:  "window_count",
	StepWindowWidth:  "window_width",
	StepWindowHeight: "window_height",
	StepDoorCount:    "door_count",
	StepDoorWidth:    "door_width",
	StepDoorHeight:   "door_height",
	StepRollWidth:    "roll_width",
	StepRollLength:   "roll_length",
	StepRapport:      "rapport",
	StepDone:         "done",
}

// AllSteps lists every step in questionnaire order.
func AllSteps() []Step {
	steps := make([]Step, 0, len(stepNames))
	for s := StepLength; s <= StepDone; s++ {
		steps = append(steps, s)
	}
	return steps
}

// String returns the wire name of the step.
func (s Step) String() string {
	if s < StepLength || s > StepDone {
		return fmt.Sprintf("step(%d)", int(s))
	}
	return stepNames[s]
}

// Valid reports whether s is a known step.
func (s Step) Valid() bool {
	return s >= StepLength && s <= StepDone
}

// MarshalText encodes the step by name so stored sessions stay readable.
func (s Step) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("unknown step %d", int(s))
	}
	return []byte(stepNames[s]), nil
}

// UnmarshalText decodes a step name.
func (s *Step) UnmarshalText(text []byte) error {
	name := string(text)
	for i, n := range stepNames {
		if n == name {
			*s = Step(i)
			return nil
		}
	}
	return fmt.Errorf("unknown step %q", name)
}

// Session holds the answers collected so far for one conversation.
// Fields before Cursor in questionnaire order are set; the rest are zero.
type Session struct {
	Cursor Step `json:"cursor"`

	RoomLength float64 `json:"room_length,omitempty"`
	RoomWidth  float64 `json:"room_width,omitempty"`
	WallHeight float64 `json:"wall_height,omitempty"`

	WindowCount int       `json:"window_count,omitempty"`
	WindowDims  []float64 `json:"window_dims,omitempty"`
	DoorCount   int       `json:"door_count,omitempty"`
	DoorDims    []float64 `json:"door_dims,omitempty"`

	RollWidth  float64 `json:"roll_width,omitempty"`
	RollLength float64 `json:"roll_length,omitempty"`
	Rapport    float64 `json:"rapport,omitempty"`

	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSession returns an empty session waiting for the room length.
func NewSession(now time.Time) *Session {
	return &Session{
		Cursor:    StepLength,
		StartedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.WindowDims != nil {
		c.WindowDims = append([]float64(nil), s.WindowDims...)
	}
	if s.DoorDims != nil {
		c.DoorDims = append([]float64(nil), s.DoorDims...)
	}
	return &c
}

// CurrentItem returns the 1-based window or door number the cursor refers to.
// It is 0 when the cursor is outside both pair loops.
func (s *Session) CurrentItem() int {
	switch s.Cursor {
	case StepWindowWidth, StepWindowHeight:
		return len(s.WindowDims)/2 + 1
	case StepDoorWidth, StepDoorHeight:
		return len(s.DoorDims)/2 + 1
	default:
		return 0
	}
}

// Validate checks that the cursor agrees with the pair buffers.
func (s *Session) Validate() error {
	if !s.Cursor.Valid() {
		return fmt.Errorf("invalid cursor %d", int(s.Cursor))
	}
	if s.WindowCount < 0 || s.DoorCount < 0 {
		return fmt.Errorf("negative opening count")
	}
	if err := checkPairs("window", s.WindowDims, s.WindowCount, s.Cursor, StepWindowWidth, StepWindowHeight); err != nil {
		return err
	}
	return checkPairs("door", s.DoorDims, s.DoorCount, s.Cursor, StepDoorWidth, StepDoorHeight)
}

func checkPairs(kind string, dims []float64, count int, cursor, widthStep, heightStep Step) error {
	if len(dims) > count*2 {
		return fmt.Errorf("%s buffer holds %d values for %d items", kind, len(dims), count)
	}
	switch cursor {
	case widthStep:
		if len(dims)%2 != 0 {
			return fmt.Errorf("%s width expected but buffer is odd", kind)
		}
	case heightStep:
		if len(dims)%2 != 1 {
			return fmt.Errorf("%s height expected but buffer is even", kind)
		}
	}
	if cursor > heightStep && len(dims) != count*2 {
		return fmt.Errorf("%s loop closed with %d of %d values", kind, len(dims), count*2)
	}
	return nil
}
