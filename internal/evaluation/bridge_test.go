package evaluation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/infinitystory/humanstudy/internal/model"
	"github.com/infinitystory/humanstudy/internal/store"
)

type failingStore struct{}

func (failingStore) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("connection refused")
}
func (failingStore) Set(context.Context, string, []byte) error {
	return errors.New("connection refused")
}
func (failingStore) Delete(context.Context, string) error { return errors.New("connection refused") }

// readOnlyStore serves reads from memory and refuses every write
type readOnlyStore struct {
	*store.MemoryStore
}

func (readOnlyStore) Set(context.Context, string, []byte) error {
	return errors.New("connection refused")
}
func (readOnlyStore) Delete(context.Context, string) error { return errors.New("connection refused") }

type counter int

func (c *counter) Inc() { *c++ }

func TestBridgeSwallowsStoreFailures(t *testing.T) {
	ctx := context.Background()
	var failures counter
	b := NewBridge(failingStore{}, nil, WithFailureCounter(&failures))

	assert.False(t, b.Save(ctx, model.KeyReviewProgress, map[string]int{"a": 1}))
	b.Clear(ctx, model.KeyReviewProgress)
	b.Forward("ignored")
	assert.Equal(t, counter(2), failures)
}

func TestSessionProgressesWhenStoreIsDown(t *testing.T) {
	ctx := context.Background()
	relay := &recordingRelay{}
	opts := testOptions(nil, relay, 4)
	opts.Bridge = NewBridge(readOnlyStore{store.NewMemoryStore()}, relay)

	s, resumed, err := StartComparison(ctx, threeMethodConfig(), opts, nil)
	require.NoError(t, err)
	require.False(t, resumed)

	_, err = s.Submit(ctx, allFor(model.SlotC))
	require.NoError(t, err)
	assert.Len(t, s.Results(), 1)
	assert.Equal(t, 1, relay.count())
}

func TestStartFailsWhenSnapshotUnreadable(t *testing.T) {
	ctx := context.Background()
	opts := testOptions(nil, nil, 4)
	opts.Bridge = NewBridge(failingStore{}, nil)

	_, _, err := StartComparison(ctx, threeMethodConfig(), opts, nil)
	assert.ErrorIs(t, err, ErrSnapshotUnavailable)

	_, _, err = StartReview(ctx, testConfig(), opts, nil)
	assert.ErrorIs(t, err, ErrSnapshotUnavailable)
}
