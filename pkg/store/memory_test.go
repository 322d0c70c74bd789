package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryLists(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.LPush(ctx, KeyTimestamp, "100"))
	require.NoError(t, m.LPush(ctx, KeyTimestamp, "200"))
	require.NoError(t, m.LPush(ctx, KeyTimestamp, "300"))

	newest, err := m.LIndex(ctx, KeyTimestamp, 0)
	require.NoError(t, err)
	require.Equal(t, "300", newest)

	all, err := m.LRange(ctx, KeyTimestamp, 0, -1)
	require.NoError(t, err)
	require.Equal(t, []string{"300", "200", "100"}, all)

	_, err = m.LIndex(ctx, KeyTimestamp, 5)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = m.LIndex(ctx, "nope", 0)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryLTrim(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	for _, v := range []string{"1", "2", "3", "4", "5"} {
		require.NoError(t, m.LPush(ctx, KeySpeed, v))
	}

	require.NoError(t, m.LTrim(ctx, KeySpeed, 0, 2))
	got, err := m.LRange(ctx, KeySpeed, 0, -1)
	require.NoError(t, err)
	require.Equal(t, []string{"5", "4", "3"}, got)
}

func TestMemoryScalars(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, err := m.Get(ctx, KeySessionStart)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, m.Set(ctx, KeySessionStart, "1000"))
	got, err := m.Get(ctx, KeySessionStart)
	require.NoError(t, err)
	require.Equal(t, "1000", got)

	ok, err := m.Exists(ctx, KeySessionStart)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, m.Del(ctx, KeySessionStart))
	ok, err = m.Exists(ctx, KeySessionStart)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemoryFlushAll(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Set(ctx, KeyBikeIP, "1.2.3.4"))
	require.NoError(t, m.LPush(ctx, KeyHeart, "120"))

	require.NoError(t, m.FlushAll(ctx))

	ok, err := m.Exists(ctx, KeyBikeIP)
	require.NoError(t, err)
	require.False(t, ok)
	ok, err = m.Exists(ctx, KeyHeart)
	require.NoError(t, err)
	require.False(t, ok)
}
