// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestKV(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, ok, err := s.Get(ctx, KeyUserID)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, KeyUserID, "abc"))
	require.NoError(t, s.Set(ctx, KeyUserID, "def"))

	v, ok, err := s.Get(ctx, KeyUserID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "def", v)

	require.NoError(t, s.Delete(ctx, KeyUserID))
	require.NoError(t, s.Delete(ctx, KeyUserID))
	_, ok, err = s.Get(ctx, KeyUserID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestKV_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, KeyLastConversation, "c1"))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	v, ok, err := s.Get(ctx, KeyLastConversation)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "c1", v)
}

func TestHistory(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	for _, line := range []string{"one", "two", "two", "  ", "three"} {
		require.NoError(t, s.AppendHistory(ctx, line))
	}

	lines, err := s.History(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two", "three"}, lines)

	lines, err = s.History(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"two", "three"}, lines)
}

func TestHistory_Trimmed(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	s.historyLimit = 3

	for i := 0; i < 5; i++ {
		require.NoError(t, s.AppendHistory(ctx, fmt.Sprintf("line %d", i)))
	}

	lines, err := s.History(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"line 2", "line 3", "line 4"}, lines)
}

func TestClosed(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, _, err = s.Get(context.Background(), KeyUserID)
	assert.ErrorIs(t, err, ErrClosed)
}
