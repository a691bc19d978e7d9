package evaluation

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/infinitystory/humanstudy/internal/store"
)

type recordingRelay struct {
	mu       sync.Mutex
	payloads []interface{}
}

func (r *recordingRelay) Forward(payload interface{}) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payloads = append(r.payloads, payload)
	return true
}

func (r *recordingRelay) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.payloads)
}

type fixedClock struct {
	t time.Time
}

func (c *fixedClock) now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func testOptions(s store.Store, relay Relay, seed uint64) Options {
	clock := &fixedClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	return Options{
		Bridge:   NewBridge(s, relay),
		Rand:     seeded(seed),
		Clock:    clock.now,
		ClipBase: "clips",
	}
}

func TestDecideResume(t *testing.T) {
	cases := []struct {
		name    string
		answers Answers
		want    bool
	}{
		{"accept resume", Answers{true}, true},
		{"decline then confirm discard", Answers{false, true}, false},
		{"decline twice resumes anyway", Answers{false, false}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := tc.answers
			assert.Equal(t, tc.want, DecideResume(&a))
		})
	}
	assert.True(t, DecideResume(nil))
}

func TestNewEvaluatorID(t *testing.T) {
	now := time.UnixMilli(1714564800123)
	id := NewEvaluatorID(now)
	assert.Regexp(t, `^EVAL_1714564800123_[0-9a-f]{9}$`, id)
	assert.NotEqual(t, id, NewEvaluatorID(now))
}
