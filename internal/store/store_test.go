package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryStoreOverwriteAndDelete(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.Get(ctx, "missing")
	require.ErrorIs(err, ErrNotFound)

	require.NoError(s.Set(ctx, "k", []byte("one")))
	require.NoError(s.Set(ctx, "k", []byte("two")))

	v, err := s.Get(ctx, "k")
	require.NoError(err)
	require.Equal("two", string(v))
	require.Equal(1, s.Len())

	require.NoError(s.Delete(ctx, "k"))
	_, err = s.Get(ctx, "k")
	require.ErrorIs(err, ErrNotFound)
}

func TestScopedKeysDoNotCollide(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	base := NewMemoryStore()

	a := Scoped(base, "device-a")
	b := Scoped(base, "device-b")

	require.NoError(a.Set(ctx, "evaluation_progress", []byte("a")))
	_, err := b.Get(ctx, "evaluation_progress")
	require.ErrorIs(err, ErrNotFound)

	raw, err := base.Get(ctx, "device-a:evaluation_progress")
	require.NoError(err)
	require.Equal("a", string(raw))
}

func TestJSONHelpers(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	s := NewMemoryStore()

	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	require.NoError(SetJSON(ctx, s, "p", payload{Name: "x", Count: 3}))

	var got payload
	require.NoError(GetJSON(ctx, s, "p", &got))
	require.Equal(payload{Name: "x", Count: 3}, got)

	require.NoError(s.Set(ctx, "bad", []byte("{not json")))
	require.ErrorIs(GetJSON(ctx, s, "bad", &got), ErrCorrupt)

	err := GetJSON(ctx, s, "missing", &got)
	require.ErrorIs(err, ErrNotFound)
	require.NotErrorIs(err, ErrCorrupt)
}
