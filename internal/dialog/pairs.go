package dialog

import (
	"github.com/thebtf/wallroll/pkg/models"
)

// Opening selects the window or door half of a session.
type Opening struct {
	Name       string
	CountStep  models.Step
	WidthStep  models.Step
	HeightStep models.Step
	// AfterStep follows the last pair.
	AfterStep models.Step

	count func(*models.Session) int
	dims  func(*models.Session) *[]float64
}

var (
	Windows = Opening{
		Name:       "window",
		CountStep:  models.StepWindowCount,
		WidthStep:  models.StepWindowWidth,
		HeightStep: models.StepWindowHeight,
		AfterStep:  models.StepDoorCount,
		count:      func(s *models.Session) int { return s.WindowCount },
		dims:       func(s *models.Session) *[]float64 { return &s.WindowDims },
	}
	Doors = Opening{
		Name:       "door",
		CountStep:  models.StepDoorCount,
		WidthStep:  models.StepDoorWidth,
		HeightStep: models.StepDoorHeight,
		AfterStep:  models.StepRollWidth,
		count:      func(s *models.Session) int { return s.DoorCount },
		dims:       func(s *models.Session) *[]float64 { return &s.DoorDims },
	}
)

// openingFor returns the opening whose pair loop contains step.
func openingFor(step models.Step) (Opening, bool) {
	switch step {
	case models.StepWindowWidth, models.StepWindowHeight:
		return Windows, true
	case models.StepDoorWidth, models.StepDoorHeight:
		return Doors, true
	}
	return Opening{}, false
}

// PairProgress describes the pair loop after one value was accepted.
type PairProgress struct {
	// Item is the 1-based number of the window or door asked about next.
	Item int
	Next models.Step
}

// PairCollector collects width/height pairs one scalar at a time.
type PairCollector struct {
	Opening Opening
}

// Collect validates a positive measurement and appends it to the pair buffer.
// On error s is not modified.
func (pc PairCollector) Collect(s *models.Session, step models.Step, text string) (PairProgress, error) {
	v, err := ParseNumber(text)
	if err != nil {
		return PairProgress{}, &InputError{Kind: KindParse, Step: step, Constraint: Positive, Input: text}
	}
	if err := checkConstraint(step, Positive, v, text); err != nil {
		return PairProgress{}, err
	}
	return pc.Append(s, v), nil
}

// Append stores v and reports what the loop needs next.
// An odd buffer means the current item's width was just stored and its height is
// due; an even buffer closes the item.
func (pc PairCollector) Append(s *models.Session, v float64) PairProgress {
	buf := pc.Opening.dims(s)
	*buf = append(*buf, v)
	return PairProgress{Item: len(*buf)/2 + 1, Next: pc.Opening.next(s)}
}

// next derives the step following the pair buffer's current length.
func (o Opening) next(s *models.Session) models.Step {
	n := len(*o.dims(s))
	switch {
	case n%2 == 1:
		return o.HeightStep
	case n/2 < o.count(s):
		return o.WidthStep
	default:
		return o.AfterStep
	}
}

// afterCount is the step following the count answer.
func (o Opening) afterCount(s *models.Session) models.Step {
	if o.count(s) == 0 {
		return o.AfterStep
	}
	return o.WidthStep
}
