package dialog

import (
	"github.com/thebtf/wallroll/pkg/models"
)

// transition computes the step that follows an accepted answer from the session
// contents alone.
type transition func(s *models.Session) models.Step

func always(step models.Step) transition {
	return func(*models.Session) models.Step { return step }
}

// transitions holds an entry for every step; StepDone loops onto itself.
var transitions = map[models.Step]transition{
	models.StepLength:       always(models.StepWidth),
	models.StepWidth:        always(models.StepHeight),
	models.StepHeight:       always(models.StepWindowCount),
	models.StepWindowCount:  Windows.afterCount,
	models.StepWindowWidth:  Windows.next,
	models.StepWindowHeight: Windows.next,
	models.StepDoorCount:    Doors.afterCount,
	models.StepDoorWidth:    Doors.next,
	models.StepDoorHeight:   Doors.next,
	models.StepRollWidth:    always(models.StepRollLength),
	models.StepRollLength:   always(models.StepRapport),
	models.StepRapport:      always(models.StepDone),
	models.StepDone:         always(models.StepDone),
}

// Next returns the step that follows s.Cursor once its answer is stored.
func Next(s *models.Session) models.Step {
	t, ok := transitions[s.Cursor]
	if !ok {
		return models.StepDone
	}
	return t(s)
}
