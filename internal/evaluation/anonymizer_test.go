package evaluation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/infinitystory/humanstudy/internal/model"
)

func TestResolveAndDeanonymize(t *testing.T) {
	unit := model.ComparisonUnit{
		Episode: "ep1.mp4",
		Mapping: model.SlotMapping{
			model.SlotA: "movieagent",
			model.SlotB: "infinitystory",
			model.SlotC: "videogenofthought",
		},
	}

	id, err := Resolve(model.SlotB, unit)
	require.NoError(t, err)
	assert.Equal(t, "infinitystory", id)

	_, err = Resolve(model.Slot("D"), unit)
	assert.Error(t, err)

	answers, err := Deanonymize(unit, map[model.ComparisonQuestion]model.Slot{
		model.QuestionBackground:  model.SlotB,
		model.QuestionTransitions: model.SlotA,
		model.QuestionCharacters:  model.SlotC,
		model.QuestionMotion:      model.SlotB,
		model.QuestionAesthetic:   model.SlotB,
	})
	require.NoError(t, err)
	assert.Equal(t, model.ComparisonAnswers{
		BackgroundConsistency: "infinitystory",
		Transitions:           "movieagent",
		CharacterConsistency:  "videogenofthought",
		MotionSmoothness:      "infinitystory",
		ImageQualityAesthetic: "infinitystory",
	}, answers)
}

func TestAssignSlotsIsPermutation(t *testing.T) {
	methods := [3]model.Method{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	r := seeded(9)

	orders := map[[3]string]bool{}
	for i := 0; i < 200; i++ {
		ordered, mapping := AssignSlots(methods, r)
		var key [3]string
		for j, slot := range model.Slots {
			assert.Equal(t, ordered[j].ID, mapping[slot])
			key[j] = mapping[slot]
		}
		orders[key] = true
	}
	assert.Len(t, orders, 6)
}

func TestMissingAnswers(t *testing.T) {
	missing := MissingAnswers(map[model.ComparisonQuestion]model.Slot{
		model.QuestionBackground:  model.SlotA,
		model.QuestionTransitions: model.SlotA,
		model.QuestionCharacters:  model.Slot(""),
		model.QuestionMotion:      model.SlotC,
	})
	assert.Equal(t, []model.ComparisonQuestion{model.QuestionCharacters, model.QuestionAesthetic}, missing)
}
