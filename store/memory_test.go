package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	s := NewMemoryStore(0)
	ctx := context.Background()

	_, err := s.Load(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Save(ctx, "k", []byte("v1")))
	got, err := s.Load(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), got)

	require.NoError(t, s.Save(ctx, "k", []byte("v2")))
	got, err = s.Load(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, []byte("v2"), got)
}

func TestMemoryStoreCapacity(t *testing.T) {
	s := NewMemoryStore(4)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "k", []byte("abcd")))
	require.ErrorIs(t, s.Save(ctx, "k2", []byte("x")), ErrStorageFull)

	// Replacing a value frees its old size first.
	require.NoError(t, s.Save(ctx, "k", []byte("ab")))
	require.NoError(t, s.Save(ctx, "k2", []byte("xy")))
}

func TestMemoryStoreCopiesValues(t *testing.T) {
	s := NewMemoryStore(0)
	ctx := context.Background()

	val := []byte("orig")
	require.NoError(t, s.Save(ctx, "k", val))
	val[0] = 'X'

	got, err := s.Load(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, []byte("orig"), got)

	got[0] = 'Y'
	again, err := s.Load(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, []byte("orig"), again)
}
