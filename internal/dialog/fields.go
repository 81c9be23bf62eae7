// Package dialog drives the wallpaper questionnaire one answer at a time.
package dialog

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/thebtf/wallroll/pkg/models"
)

// ErrorKind classifies rejected answers.
type ErrorKind int

const (
	// KindParse means the text is not a number.
	KindParse ErrorKind = iota + 1
	// KindRange means the number violates the field's sign or size limit.
	KindRange
	// KindIntegrality means a count was given a fractional value.
	KindIntegrality
)

func (k ErrorKind) String() string {
	switch k {
	case KindParse:
		return "parse"
	case KindRange:
		return "range"
	case KindIntegrality:
		return "integrality"
	default:
		return "unknown"
	}
}

// Constraint is the sign requirement of a numeric field.
type Constraint int

const (
	Positive Constraint = iota
	NonNegative
)

// InputError is returned when an answer is rejected. The session is left unchanged.
type InputError struct {
	Kind       ErrorKind
	Step       models.Step
	Constraint Constraint
	Input      string
	// Max is set when a count exceeded the allowed number of openings.
	Max int
}

func (e *InputError) Error() string {
	switch {
	case e.Kind == KindRange && e.Max > 0:
		return fmt.Sprintf("%s: %q exceeds maximum %d", e.Step, e.Input, e.Max)
	case e.Kind == KindRange && e.Constraint == Positive:
		return fmt.Sprintf("%s: %q must be positive", e.Step, e.Input)
	case e.Kind == KindRange:
		return fmt.Sprintf("%s: %q must not be negative", e.Step, e.Input)
	case e.Kind == KindIntegrality:
		return fmt.Sprintf("%s: %q is not a whole number", e.Step, e.Input)
	default:
		return fmt.Sprintf("%s: %q is not a number", e.Step, e.Input)
	}
}

// Field describes one scalar questionnaire answer.
type Field struct {
	Step       models.Step
	Constraint Constraint
	Integral   bool
	assign     func(s *models.Session, v float64)
}

// DefaultMaxOpenings bounds window and door counts.
const DefaultMaxOpenings = 50

var scalarFields = map[models.Step]Field{
	models.StepLength: {Step: models.StepLength, assign: func(s *models.Session, v float64) { s.RoomLength = v }},
	models.StepWidth:  {Step: models.StepWidth, assign: func(s *models.Session, v float64) { s.RoomWidth = v }},
	models.StepHeight: {Step: models.StepHeight, assign: func(s *models.Session, v float64) { s.WallHeight = v }},
	models.StepWindowCount: {
		Step: models.StepWindowCount, Constraint: NonNegative, Integral: true,
		assign: func(s *models.Session, v float64) {
			s.WindowCount = int(v)
			s.WindowDims = []float64{}
		},
	},
	models.StepDoorCount: {
		Step: models.StepDoorCount, Constraint: NonNegative, Integral: true,
		assign: func(s *models.Session, v float64) {
			s.DoorCount = int(v)
			s.DoorDims = []float64{}
		},
	},
	models.StepRollWidth:  {Step: models.StepRollWidth, assign: func(s *models.Session, v float64) { s.RollWidth = v }},
	models.StepRollLength: {Step: models.StepRollLength, assign: func(s *models.Session, v float64) { s.RollLength = v }},
	models.StepRapport:    {Step: models.StepRapport, Constraint: NonNegative, assign: func(s *models.Session, v float64) { s.Rapport = v }},
}

// ScalarField returns the field collected at step, if step is a scalar step.
func ScalarField(step models.Step) (Field, bool) {
	f, ok := scalarFields[step]
	return f, ok
}

// FieldCollector parses and validates scalar answers.
type FieldCollector struct {
	MaxOpenings int
}

// Collect validates text for f and stores it on s. On error s is not modified.
func (fc FieldCollector) Collect(s *models.Session, f Field, text string) error {
	v, err := fc.Validate(f, text)
	if err != nil {
		return err
	}
	f.assign(s, v)
	return nil
}

// Validate parses text and checks it against the field's constraints.
func (fc FieldCollector) Validate(f Field, text string) (float64, error) {
	v, err := ParseNumber(text)
	if err != nil {
		return 0, &InputError{Kind: KindParse, Step: f.Step, Constraint: f.Constraint, Input: text}
	}
	if err := checkConstraint(f.Step, f.Constraint, v, text); err != nil {
		return 0, err
	}
	if f.Integral {
		if v != math.Trunc(v) {
			return 0, &InputError{Kind: KindIntegrality, Step: f.Step, Constraint: f.Constraint, Input: text}
		}
		max := fc.MaxOpenings
		if max <= 0 {
			max = DefaultMaxOpenings
		}
		if v > float64(max) {
			return 0, &InputError{Kind: KindRange, Step: f.Step, Constraint: f.Constraint, Input: text, Max: max}
		}
	}
	return v, nil
}

func checkConstraint(step models.Step, c Constraint, v float64, text string) error {
	switch c {
	case Positive:
		if v <= 0 {
			return &InputError{Kind: KindRange, Step: step, Constraint: c, Input: text}
		}
	case NonNegative:
		if v < 0 {
			return &InputError{Kind: KindRange, Step: step, Constraint: c, Input: text}
		}
	}
	return nil
}

var numberPattern = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// ParseNumber parses a decimal number written with either '.' or ',' as separator.
func ParseNumber(text string) (float64, error) {
	t := strings.ReplaceAll(strings.TrimSpace(text), ",", ".")
	if !numberPattern.MatchString(t) {
		return 0, fmt.Errorf("not a number: %q", text)
	}
	v, err := strconv.ParseFloat(t, 64)
	if err != nil {
		return 0, err
	}
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, fmt.Errorf("not a finite number: %q", text)
	}
	return v, nil
}
