package dialog

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/wallroll/pkg/models"
)

func TestPairCollector_TwoWindows(t *testing.T) {
	s := models.NewSession(time.Now())
	s.Cursor = models.StepWindowWidth
	s.WindowCount = 2
	s.WindowDims = []float64{}

	pc := PairCollector{Opening: Windows}
	steps := []struct {
		input    string
		wantNext models.Step
		wantItem int
	}{
		{"1.0", models.StepWindowHeight, 1},
		{"1.2", models.StepWindowWidth, 2},
		{"1,5", models.StepWindowHeight, 2},
		{"1.1", models.StepDoorCount, 3},
	}

	for _, st := range steps {
		p, err := pc.Collect(s, s.Cursor, st.input)
		require.NoError(t, err, st.input)
		assert.Equal(t, st.wantNext, p.Next, st.input)
		assert.Equal(t, st.wantItem, p.Item, st.input)
		s.Cursor = p.Next
	}

	assert.Equal(t, []float64{1.0, 1.2, 1.5, 1.1}, s.WindowDims)
}

func TestPairCollector_DoorsLeadToRollWidth(t *testing.T) {
	s := models.NewSession(time.Now())
	s.DoorCount = 1
	s.DoorDims = []float64{}

	pc := PairCollector{Opening: Doors}
	p := pc.Append(s, 0.9)
	assert.Equal(t, models.StepDoorHeight, p.Next)
	p = pc.Append(s, 2.0)
	assert.Equal(t, models.StepRollWidth, p.Next)
	assert.Equal(t, []float64{0.9, 2.0}, s.DoorDims)
}

func TestPairCollector_RejectsNonPositive(t *testing.T) {
	s := models.NewSession(time.Now())
	s.WindowCount = 1
	s.WindowDims = []float64{}
	pc := PairCollector{Opening: Windows}

	for _, input := range []string{"0", "-1.2", "wide"} {
		_, err := pc.Collect(s, models.StepWindowWidth, input)
		var inErr *InputError
		require.True(t, errors.As(err, &inErr), input)
		assert.Equal(t, Positive, inErr.Constraint)
	}
	assert.Empty(t, s.WindowDims)
}

func TestTransitions_Total(t *testing.T) {
	for _, step := range models.AllSteps() {
		_, ok := transitions[step]
		assert.True(t, ok, "missing transition for %s", step)
	}
}

func TestNext_ZeroCountsSkipLoops(t *testing.T) {
	s := models.NewSession(time.Now())

	s.Cursor = models.StepWindowCount
	s.WindowCount = 0
	assert.Equal(t, models.StepDoorCount, Next(s))

	s.Cursor = models.StepDoorCount
	s.DoorCount = 0
	assert.Equal(t, models.StepRollWidth, Next(s))

	s.Cursor = models.StepDoorCount
	s.DoorCount = 3
	assert.Equal(t, models.StepDoorWidth, Next(s))
}

func TestNext_LinearSteps(t *testing.T) {
	s := models.NewSession(time.Now())
	pairs := map[models.Step]models.Step{
		models.StepLength:     models.StepWidth,
		models.StepWidth:      models.StepHeight,
		models.StepHeight:     models.StepWindowCount,
		models.StepRollWidth:  models.StepRollLength,
		models.StepRollLength: models.StepRapport,
		models.StepRapport:    models.StepDone,
		models.StepDone:       models.StepDone,
	}
	for from, to := range pairs {
		s.Cursor = from
		assert.Equal(t, to, Next(s), from.String())
	}

	s.Cursor = models.Step(77)
	assert.Equal(t, models.StepDone, Next(s))
}
