// Package calc computes wallpaper quantities for a completed questionnaire.
package calc

import (
	"errors"
	"fmt"
	"math"

	"github.com/thebtf/wallroll/pkg/models"
)

// tolerance absorbs float error when a quotient lands on an integer.
const tolerance = 1e-9

// GeometryError reports that no whole strip can be cut from one roll.
type GeometryError struct {
	StripHeight float64
	RollLength  float64
	Reason      string
}

func (e *GeometryError) Error() string {
	return fmt.Sprintf("geometry: %s (strip height %.2f m, roll length %.2f m)", e.Reason, e.StripHeight, e.RollLength)
}

// ErrIncomplete is returned for sessions that do not hold valid answers.
var ErrIncomplete = errors.New("session is incomplete")

// Compute derives the quantities for s. It has no side effects.
func Compute(s *models.Session) (models.CalculationResult, error) {
	var res models.CalculationResult
	if err := checkInputs(s); err != nil {
		return res, err
	}

	res.Perimeter = 2 * (s.RoomLength + s.RoomWidth)
	res.WallArea = res.Perimeter * s.WallHeight
	res.WindowArea = OpeningArea(s.WindowDims)
	res.DoorArea = OpeningArea(s.DoorDims)
	res.NetArea = math.Max(res.WallArea-res.WindowArea-res.DoorArea, 0)
	res.StripHeight = StripHeight(s.WallHeight, s.Rapport)

	if !finite(res.Perimeter) || !finite(res.WallArea) || !finite(res.WindowArea) || !finite(res.DoorArea) {
		return res, &GeometryError{StripHeight: res.StripHeight, RollLength: s.RollLength, Reason: "room dimensions out of range"}
	}
	if !(res.StripHeight > 0) || !finite(res.StripHeight) {
		return res, &GeometryError{StripHeight: res.StripHeight, RollLength: s.RollLength, Reason: "strip height is not positive"}
	}
	if s.RollLength < res.StripHeight-tolerance {
		return res, &GeometryError{StripHeight: res.StripHeight, RollLength: s.RollLength, Reason: "roll is shorter than one strip"}
	}

	perRoll, ok := floorCount(s.RollLength / res.StripHeight)
	if !ok {
		return res, &GeometryError{StripHeight: res.StripHeight, RollLength: s.RollLength, Reason: "strips per roll out of range"}
	}
	if perRoll == 0 {
		return res, &GeometryError{StripHeight: res.StripHeight, RollLength: s.RollLength, Reason: "no strip fits in a roll"}
	}
	res.StripsPerRoll = perRoll

	needed, ok := ceilCount(res.Perimeter / s.RollWidth)
	if !ok {
		return res, &GeometryError{StripHeight: res.StripHeight, RollLength: s.RollLength, Reason: "strips needed out of range"}
	}
	res.StripsNeeded = needed
	res.RollsNeeded, _ = ceilCount(float64(needed) / float64(perRoll))
	return res, nil
}

// OpeningArea sums w*h over consecutive (width, height) pairs.
// A trailing unpaired width contributes nothing.
func OpeningArea(dims []float64) float64 {
	var area float64
	for i := 0; i+1 < len(dims); i += 2 {
		area += dims[i] * dims[i+1]
	}
	return area
}

// StripHeight rounds the wall height up to a whole number of pattern repeats.
// A rapport of zero means the pattern needs no alignment.
func StripHeight(wallHeight, rapport float64) float64 {
	if rapport <= 0 {
		return wallHeight
	}
	return math.Ceil(wallHeight/rapport-tolerance) * rapport
}

func checkInputs(s *models.Session) error {
	if s == nil {
		return ErrIncomplete
	}
	positive := []struct {
		name  string
		value float64
	}{
		{"room length", s.RoomLength},
		{"room width", s.RoomWidth},
		{"wall height", s.WallHeight},
		{"roll width", s.RollWidth},
		{"roll length", s.RollLength},
	}
	for _, p := range positive {
		if !(p.value > 0) || math.IsInf(p.value, 0) {
			return fmt.Errorf("%w: %s is %v", ErrIncomplete, p.name, p.value)
		}
	}
	if !(s.Rapport >= 0) || math.IsInf(s.Rapport, 0) {
		return fmt.Errorf("%w: rapport is %v", ErrIncomplete, s.Rapport)
	}
	if len(s.WindowDims) != s.WindowCount*2 || len(s.DoorDims) != s.DoorCount*2 {
		return fmt.Errorf("%w: opening measurements missing", ErrIncomplete)
	}
	return nil
}

// MaxCount bounds strip and roll counts.
const MaxCount = math.MaxInt32

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

func toCount(x float64) (int, bool) {
	if !finite(x) || x < 0 || x > MaxCount {
		return 0, false
	}
	return int(x), true
}

func ceilCount(x float64) (int, bool) {
	return toCount(math.Ceil(x - tolerance))
}

func floorCount(x float64) (int, bool) {
	return toCount(math.Floor(x + tolerance))
}
