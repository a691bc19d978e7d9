package evaluation

import (
	"context"
	"fmt"
	"time"

	"github.com/infinitystory/humanstudy/internal/model"
)

// ComparisonSession walks an evaluator through comparison units in order.
// It is not safe for concurrent use.
type ComparisonSession struct {
	cfg  *model.EvaluationConfig
	opts Options

	evaluatorID string
	startTime   time.Time
	units       []model.ComparisonUnit
	cursor      int
	results     []model.ComparisonResult
	lastSave    time.Time
}

// StartComparison opens a comparison session. A saved snapshot is resumed
// unless the prompter confirms discarding it twice.
func StartComparison(ctx context.Context, cfg *model.EvaluationConfig, opts Options, p Prompter) (*ComparisonSession, bool, error) {
	opts = opts.withDefaults()
	s := &ComparisonSession{cfg: cfg, opts: opts}

	var snap model.ComparisonSnapshot
	found, err := loadSnapshot(ctx, opts.Bridge, model.KeyComparisonProgress, &snap)
	if err != nil {
		return nil, false, err
	}
	if found {
		if DecideResume(p) && s.restore(snap) {
			notify(opts.Observer, s.View())
			return s, true, nil
		}
		opts.Bridge.Clear(ctx, model.KeyComparisonProgress)
	}

	units, err := GenerateComparisons(cfg, opts.Comparison, opts.Rand)
	if err != nil {
		return nil, false, err
	}

	now := opts.Clock()
	s.units = units
	s.startTime = now
	s.evaluatorID = opts.EvaluatorID
	if s.evaluatorID == "" {
		s.evaluatorID = NewEvaluatorID(now)
	}

	notify(opts.Observer, s.View())
	return s, false, nil
}

func (s *ComparisonSession) restore(snap model.ComparisonSnapshot) bool {
	if len(snap.Units) == 0 || snap.CurrentComparisonIndex < 0 || snap.CurrentComparisonIndex > len(snap.Units) {
		return false
	}
	// one result per submitted unit
	if len(snap.Results) != snap.CurrentComparisonIndex {
		return false
	}
	s.evaluatorID = snap.EvaluatorID
	s.startTime = snap.StartTime
	s.units = snap.Units
	s.cursor = snap.CurrentComparisonIndex
	s.results = snap.Results
	s.lastSave = snap.LastSaveTime
	if s.evaluatorID == "" {
		s.evaluatorID = NewEvaluatorID(s.opts.Clock())
	}
	return true
}

func (s *ComparisonSession) EvaluatorID() string { return s.evaluatorID }

// Complete reports whether every unit has been submitted
func (s *ComparisonSession) Complete() bool {
	return s.cursor >= len(s.units)
}

func (s *ComparisonSession) Units() []model.ComparisonUnit { return s.units }

func (s *ComparisonSession) Results() []model.ComparisonResult { return s.results }

// Current returns the unit awaiting an answer
func (s *ComparisonSession) Current() (model.ComparisonUnit, bool) {
	if s.Complete() {
		return model.ComparisonUnit{}, false
	}
	return s.units[s.cursor], true
}

// Submit records the slot chosen for every question of the current unit.
// Unless every question names a valid slot nothing changes.
func (s *ComparisonSession) Submit(ctx context.Context, raw map[model.ComparisonQuestion]model.Slot) (model.View, error) {
	unit, ok := s.Current()
	if !ok {
		return s.View(), ErrSessionComplete
	}

	if missing := MissingAnswers(raw); len(missing) > 0 {
		names := make([]string, len(missing))
		for i, q := range missing {
			names[i] = string(q)
		}
		return s.View(), &IncompleteAnswerError{Missing: names}
	}

	answers, err := Deanonymize(unit, raw)
	if err != nil {
		return s.View(), fmt.Errorf("%w: %v", ErrIncompleteAnswer, err)
	}

	recorded := make(map[model.ComparisonQuestion]model.Slot, len(model.ComparisonQuestions))
	for _, q := range model.ComparisonQuestions {
		recorded[q] = raw[q]
	}

	now := s.opts.Clock()
	s.results = append(s.results, model.ComparisonResult{
		ComparisonIndex: s.cursor + 1,
		Episode:         unit.Episode,
		EpisodeIndex:    unit.EpisodeIndex,
		Timestamp:       now,
		VideoA:          unit.Mapping[model.SlotA],
		VideoB:          unit.Mapping[model.SlotB],
		VideoC:          unit.Mapping[model.SlotC],
		Answers:         answers,
		RawAnswers:      recorded,
	})
	s.cursor++
	s.lastSave = now

	batch := s.Batch()
	s.opts.Bridge.Save(ctx, model.KeyComparisonResults, batch)
	if s.Complete() {
		s.opts.Bridge.Clear(ctx, model.KeyComparisonProgress)
	} else {
		s.opts.Bridge.Save(ctx, model.KeyComparisonProgress, s.Snapshot())
	}
	s.opts.Bridge.Forward(batch)

	view := s.View()
	notify(s.opts.Observer, view)
	return view, nil
}

// Batch returns the results collected so far in relay form
func (s *ComparisonSession) Batch() model.ComparisonBatch {
	results := make([]model.ComparisonResult, len(s.results))
	copy(results, s.results)
	return model.ComparisonBatch{
		EvaluatorID:      s.evaluatorID,
		Timestamp:        s.opts.Clock(),
		TotalComparisons: len(results),
		Comparisons:      results,
	}
}

// Snapshot returns the resumable state
func (s *ComparisonSession) Snapshot() model.ComparisonSnapshot {
	return model.ComparisonSnapshot{
		EvaluatorID:            s.evaluatorID,
		StartTime:              s.startTime,
		Units:                  s.units,
		CurrentComparisonIndex: s.cursor,
		Results:                s.results,
		TotalComparisons:       len(s.units),
		LastSaveTime:           s.lastSave,
	}
}

// Summary counts wins per method, overall and per question
func (s *ComparisonSession) Summary() model.ComparisonSummary {
	sum := model.ComparisonSummary{
		TotalComparisons: len(s.results),
		Wins:             make(map[string]int),
		WinsByCriterion:  make(map[string]map[string]int),
	}
	for _, q := range model.ComparisonQuestions {
		sum.WinsByCriterion[string(q)] = make(map[string]int)
	}
	for _, r := range s.results {
		for _, q := range model.ComparisonQuestions {
			winner := r.Answers.Get(q)
			if winner == "" {
				continue
			}
			sum.Wins[winner]++
			sum.WinsByCriterion[string(q)][winner]++
		}
	}
	return sum
}

// View returns the observable state for the rendering surface
func (s *ComparisonSession) View() model.View {
	total := len(s.units)
	v := model.View{
		Flow:         model.FlowComparison,
		EvaluatorID:  s.evaluatorID,
		Phase:        model.PhaseComparison,
		LastSaveTime: timePtr(s.lastSave),
		Progress: model.Progress{
			Current:    s.cursor,
			Total:      total,
			Percentage: percentage(s.cursor, total),
		},
	}

	unit, ok := s.Current()
	if !ok {
		v.Phase = model.PhaseComplete
		v.Progress.Text = fmt.Sprintf("All %d comparisons completed!", total)
		summary := s.Summary()
		v.ComparisonSummary = &summary
		return v
	}

	v.Progress.Text = fmt.Sprintf("Comparison %d of %d", s.cursor+1, total)
	videos := make(map[model.Slot]string, len(model.Slots))
	for i, slot := range model.Slots {
		videos[slot] = model.MediaPath(s.opts.ClipBase, unit.Methods[i], unit.Episode)
	}
	v.Comparison = &model.ComparisonView{
		Index:        s.cursor,
		Episode:      unit.Episode,
		EpisodeIndex: unit.EpisodeIndex,
		Videos:       videos,
		Questions:    model.ComparisonQuestions,
	}
	return v
}
