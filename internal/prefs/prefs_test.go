package prefs

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_SetGetUnset(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, ok, err := s.Get(ctx, KeyDeleteLimit)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, KeyDeleteLimit, "50"))
	require.NoError(t, s.Set(ctx, KeyDeleteLimit, "75"))

	v, ok, err := s.Get(ctx, KeyDeleteLimit)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "75", v)

	removed, err := s.Unset(ctx, KeyDeleteLimit)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = s.Unset(ctx, KeyDeleteLimit)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestStore_Validation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	tests := []struct {
		key, value string
		wantErr    bool
	}{
		{KeyDeleteLimit, "10", false},
		{KeyDeleteLimit, "0", true},
		{KeyDeleteDepth, "abc", true},
		{KeyDeleteDryRun, "true", false},
		{KeyDeleteDryRun, "maybe", true},
		{KeyMode, "graph", false},
		{KeyMode, "monitor", true},
		{"color", "blue", true},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			err := s.Set(ctx, tt.key, tt.value)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	assert.ErrorIs(t, Validate("color", "blue"), ErrUnknownKey)
}

func TestStore_List(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, KeyMode, "input"))
	require.NoError(t, s.Set(ctx, KeyDeleteDepth, "3"))

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, KeyDeleteDepth, list[0].Key)
	assert.Equal(t, KeyMode, list[1].Key)
	assert.False(t, list[0].UpdatedAt.IsZero())
}

func TestStore_TypedGetters(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	n, err := s.Int(ctx, KeyDeleteDepth, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	require.NoError(t, s.Set(ctx, KeyDeleteDepth, "2"))
	n, err = s.Int(ctx, KeyDeleteDepth, 5)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	b, err := s.Bool(ctx, KeyDeleteDryRun, false)
	require.NoError(t, err)
	assert.False(t, b)

	require.NoError(t, s.Set(ctx, KeyDeleteDryRun, "1"))
	b, err = s.Bool(ctx, KeyDeleteDryRun, false)
	require.NoError(t, err)
	assert.True(t, b)
}

func TestStore_PersistsOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.db")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, KeyMode, "graph"))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	v, ok, err := s.Get(ctx, KeyMode)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "graph", v)

	version, err := Version(s.db)
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, []string{KeyDeleteDepth, KeyDeleteDryRun, KeyDeleteLimit, KeyMode}, Keys())
}
