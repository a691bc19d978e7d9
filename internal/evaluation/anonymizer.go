package evaluation

import (
	"fmt"

	"github.com/infinitystory/humanstudy/internal/model"
)

// AssignSlots permutes the three methods uniformly and maps slots A/B/C to
// the permuted order. Callers draw a fresh assignment for every unit.
func AssignSlots(methods [methodsPerComparison]model.Method, r Rand) ([methodsPerComparison]model.Method, model.SlotMapping) {
	ordered := methods
	shuffle(ordered[:], r)

	mapping := make(model.SlotMapping, len(model.Slots))
	for i, slot := range model.Slots {
		mapping[slot] = ordered[i].ID
	}
	return ordered, mapping
}

// Resolve returns the method shown in slot within unit
func Resolve(slot model.Slot, unit model.ComparisonUnit) (string, error) {
	id, ok := unit.Mapping[slot]
	if !ok || id == "" {
		return "", fmt.Errorf("slot %q has no method in episode %s", slot, unit.Episode)
	}
	return id, nil
}

// Deanonymize translates the slot chosen per question into method ids
func Deanonymize(unit model.ComparisonUnit, raw map[model.ComparisonQuestion]model.Slot) (model.ComparisonAnswers, error) {
	var answers model.ComparisonAnswers
	for _, q := range model.ComparisonQuestions {
		slot, ok := raw[q]
		if !ok {
			continue
		}
		id, err := Resolve(slot, unit)
		if err != nil {
			return model.ComparisonAnswers{}, err
		}
		answers.Set(q, id)
	}
	return answers, nil
}

// MissingAnswers lists the questions with no valid slot selected
func MissingAnswers(raw map[model.ComparisonQuestion]model.Slot) []model.ComparisonQuestion {
	var missing []model.ComparisonQuestion
	for _, q := range model.ComparisonQuestions {
		if slot, ok := raw[q]; !ok || !slot.Valid() {
			missing = append(missing, q)
		}
	}
	return missing
}
