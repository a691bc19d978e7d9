// Package evaluation implements the evaluation session controller: task
// generation, slot anonymization and the forward-only session state machines
// for the comparison and review flows.
package evaluation

import (
	"errors"
	"fmt"

	"github.com/infinitystory/humanstudy/internal/model"
)

// Errors returned by the generator and the session state machines
var (
	ErrInvalidConfig    = errors.New("invalid evaluation configuration")
	ErrIncompleteAnswer = errors.New("incomplete answer")
	ErrSessionComplete  = errors.New("session already complete")
	ErrWrongPhase       = errors.New("operation not allowed in current phase")
	ErrInvalidRating    = errors.New("rating must be between 1 and 5")

	ErrSnapshotUnavailable = errors.New("saved progress could not be read")
)

const (
	DefaultReferenceMethod  = "infinitystory"
	DefaultComparisonCount  = 4
	DefaultWholisticClips   = 5
	methodsPerComparison    = 3
	othersPerComparisonUnit = methodsPerComparison - 1
)

// Rand is the source of randomness used for sampling and shuffling.
// *rand.Rand from math/rand/v2 satisfies it.
type Rand interface {
	IntN(n int) int
}

// ComparisonOptions controls comparison generation
type ComparisonOptions struct {
	// ReferenceID is the method that appears in every unit
	ReferenceID string
	// Episodes is the number of leading clips turned into units
	Episodes int
}

func (o ComparisonOptions) withDefaults() ComparisonOptions {
	if o.ReferenceID == "" {
		o.ReferenceID = DefaultReferenceMethod
	}
	if o.Episodes <= 0 {
		o.Episodes = DefaultComparisonCount
	}
	return o
}

// shuffle performs an in-place Fisher-Yates shuffle
func shuffle[T any](items []T, r Rand) {
	for i := len(items) - 1; i > 0; i-- {
		j := r.IntN(i + 1)
		items[i], items[j] = items[j], items[i]
	}
}

// GenerateComparisons builds one unit per leading episode. Every unit holds the
// reference method plus two others sampled without replacement, permuted into
// slots A/B/C. Episode order is kept as configured.
func GenerateComparisons(cfg *model.EvaluationConfig, opts ComparisonOptions, r Rand) ([]model.ComparisonUnit, error) {
	opts = opts.withDefaults()

	reference, ok := cfg.Paper(opts.ReferenceID)
	if !ok {
		return nil, fmt.Errorf("%w: reference method %q not found", ErrInvalidConfig, opts.ReferenceID)
	}

	others := make([]model.Method, 0, len(cfg.Papers))
	for _, p := range cfg.Papers {
		if p.ID != reference.ID {
			others = append(others, p)
		}
	}
	if len(others) < othersPerComparisonUnit {
		return nil, fmt.Errorf("%w: need at least %d methods besides %q, found %d",
			ErrInvalidConfig, othersPerComparisonUnit, reference.ID, len(others))
	}

	episodes := cfg.Clips(opts.Episodes)
	if len(episodes) == 0 {
		return nil, fmt.Errorf("%w: no evaluation clips configured", ErrInvalidConfig)
	}

	units := make([]model.ComparisonUnit, 0, len(episodes))
	for i, episode := range episodes {
		pool := make([]model.Method, len(others))
		copy(pool, others)
		shuffle(pool, r)

		methods := [methodsPerComparison]model.Method{reference, pool[0], pool[1]}
		ordered, mapping := AssignSlots(methods, r)

		units = append(units, model.ComparisonUnit{
			Episode:      episode,
			EpisodeIndex: i,
			Methods:      ordered,
			Mapping:      mapping,
		})
	}

	return units, nil
}

// buildSectionPools returns the unshuffled tasks of every section, sections
// sorted by order, methods in configuration order, first K clips.
func buildSectionPools(cfg *model.EvaluationConfig) ([][]model.SegmentTask, error) {
	sections := cfg.SortedSections()
	if len(sections) == 0 {
		return nil, fmt.Errorf("%w: no evaluation sections configured", ErrInvalidConfig)
	}
	if len(cfg.Papers) == 0 {
		return nil, fmt.Errorf("%w: no methods configured", ErrInvalidConfig)
	}
	clips := cfg.SectionClips()
	if len(clips) == 0 {
		return nil, fmt.Errorf("%w: no evaluation clips configured", ErrInvalidConfig)
	}

	pools := make([][]model.SegmentTask, 0, len(sections))
	for _, section := range sections {
		pool := make([]model.SegmentTask, 0, len(cfg.Papers)*len(clips))
		for _, paper := range cfg.Papers {
			for _, clip := range clips {
				pool = append(pool, model.SegmentTask{
					Method:     paper,
					Section:    section,
					Clip:       clip,
					StarLabels: section.StarLabels,
				})
			}
		}
		pools = append(pools, pool)
	}
	return pools, nil
}

// GenerateSegmentTasks builds sections x methods x clips tasks, shuffled once
// within each section and concatenated in section order.
func GenerateSegmentTasks(cfg *model.EvaluationConfig, r Rand) ([]model.SegmentTask, error) {
	pools, err := buildSectionPools(cfg)
	if err != nil {
		return nil, err
	}

	var tasks []model.SegmentTask
	for _, pool := range pools {
		shuffle(pool, r)
		tasks = append(tasks, pool...)
	}
	return tasks, nil
}

// RestoreSegmentTasks rebuilds the task list in the persisted order. Identities
// no longer present in the configuration are dropped.
func RestoreSegmentTasks(cfg *model.EvaluationConfig, order []model.TaskRef) ([]model.SegmentTask, error) {
	pools, err := buildSectionPools(cfg)
	if err != nil {
		return nil, err
	}

	lookup := make(map[model.TaskRef]model.SegmentTask)
	for _, pool := range pools {
		for _, task := range pool {
			lookup[task.Ref()] = task
		}
	}

	tasks := make([]model.SegmentTask, 0, len(order))
	for _, ref := range order {
		if task, ok := lookup[ref]; ok {
			tasks = append(tasks, task)
		}
	}
	return tasks, nil
}

// TaskOrder returns the persisted identity list of tasks
func TaskOrder(tasks []model.SegmentTask) []model.TaskRef {
	order := make([]model.TaskRef, len(tasks))
	for i, t := range tasks {
		order[i] = t.Ref()
	}
	return order
}
