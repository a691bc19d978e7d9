package evaluation

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/infinitystory/humanstudy/internal/model"
	"github.com/infinitystory/humanstudy/internal/store"
)

// Observer receives the session view after every transition
type Observer func(model.View)

// Prompter asks the evaluator a yes/no question
type Prompter interface {
	Confirm(message string) bool
}

// Prompt messages of the resume protocol
const (
	ResumePrompt  = "Found saved progress. Would you like to resume where you left off?"
	DiscardPrompt = "Start a new evaluation? This will discard your saved progress."
)

// DecideResume runs the resume protocol against a saved snapshot. Resuming
// takes at most one confirmation; discarding takes two.
func DecideResume(p Prompter) bool {
	if p == nil || p.Confirm(ResumePrompt) {
		return true
	}
	return !p.Confirm(DiscardPrompt)
}

// Answers is a Prompter with fixed answers, consumed in order. Once exhausted
// it declines.
type Answers []bool

func (a *Answers) Confirm(string) bool {
	if len(*a) == 0 {
		return false
	}
	v := (*a)[0]
	*a = (*a)[1:]
	return v
}

// IncompleteAnswerError lists the questions a submission left unanswered
type IncompleteAnswerError struct {
	Missing []string
}

func (e *IncompleteAnswerError) Error() string {
	return fmt.Sprintf("incomplete answer: missing %s", strings.Join(e.Missing, ", "))
}

func (e *IncompleteAnswerError) Unwrap() error {
	return ErrIncompleteAnswer
}

// Options holds the collaborators shared by both session kinds
type Options struct {
	Bridge   *Bridge
	Observer Observer
	Rand     Rand
	Clock    func() time.Time
	// ClipBase prefixes every media path
	ClipBase string
	// EvaluatorID overrides the generated id of a fresh session
	EvaluatorID    string
	Comparison     ComparisonOptions
	WholisticClips int
}

func (o Options) withDefaults() Options {
	if o.Rand == nil {
		o.Rand = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), rand.Uint64()))
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.Bridge == nil {
		o.Bridge = NewBridge(store.NewMemoryStore(), nil)
	}
	if o.WholisticClips <= 0 {
		o.WholisticClips = DefaultWholisticClips
	}
	o.Comparison = o.Comparison.withDefaults()
	return o
}

// NewEvaluatorID returns an id of the form EVAL_<unix-ms>_<9 chars>
func NewEvaluatorID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:9]
	return fmt.Sprintf("EVAL_%d_%s", now.UnixMilli(), suffix)
}

func percentage(done, total int) float64 {
	if total == 0 {
		return 100
	}
	return float64(done) / float64(total) * 100
}

func notify(o Observer, v model.View) {
	if o != nil {
		o(v)
	}
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// loadSnapshot clears only snapshots that fail to decode. Other read
// failures leave the key in place and surface as ErrSnapshotUnavailable.
func loadSnapshot(ctx context.Context, b *Bridge, key string, v interface{}) (bool, error) {
	ok, err := b.Load(ctx, key, v)
	switch {
	case err == nil:
		return ok, nil
	case errors.Is(err, store.ErrCorrupt):
		b.log.Warn().Err(err).Str("key", key).Msg("discarding unreadable snapshot")
		b.Clear(ctx, key)
		return false, nil
	default:
		b.log.Error().Err(err).Str("key", key).Msg("failed to read snapshot")
		return false, fmt.Errorf("%w: %v", ErrSnapshotUnavailable, err)
	}
}
