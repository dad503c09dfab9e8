package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webspoilt/code-janitor/internal/types"
)

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New()

	first, err := s.PutBackup(ctx, "/src/a.py", []byte("x = 1\n"))
	require.NoError(t, err)
	second, err := s.PutBackup(ctx, "/src/a.py", []byte("x = 2\n"))
	require.NoError(t, err)
	_, err = s.PutBackup(ctx, "/src/b.py", []byte("y = 1\n"))
	require.NoError(t, err)
	assert.Greater(t, second.Revision, first.Revision)

	got, err := s.GetBackup(ctx, first.Revision)
	require.NoError(t, err)
	assert.Equal(t, "x = 1\n", string(got.Content))
	assert.Equal(t, int64(6), got.Size)

	// Callers cannot mutate stored content
	got.Content[0] = 'z'
	again, err := s.GetBackup(ctx, first.Revision)
	require.NoError(t, err)
	assert.Equal(t, "x = 1\n", string(again.Content))

	list, err := s.ListBackups(ctx, "/src/a.py")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.Revision, list[0].Revision)
	assert.Nil(t, list[0].Content)

	_, err = s.GetBackup(ctx, 999)
	assert.True(t, errors.Is(err, types.ErrNotFound))

	_, err = s.PutBackup(ctx, "", []byte("x"))
	assert.Error(t, err)
}

func TestStoreDeleteBackups(t *testing.T) {
	ctx := context.Background()
	s := New()
	for _, unit := range []string{"/src/a.py", "/src/a.py", "/src/b.py"} {
		_, err := s.PutBackup(ctx, unit, []byte("x\n"))
		require.NoError(t, err)
	}

	n, err := s.DeleteBackups(ctx, types.BackupFilter{})
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = s.DeleteBackups(ctx, types.BackupFilter{Unit: "/src/a.py"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, s.Len())

	n, err = s.DeleteBackups(ctx, types.BackupFilter{Before: time.Now().Add(time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, s.Len())
}

func TestStoreFailPut(t *testing.T) {
	s := New()
	s.FailPut = errors.New("disk full")
	_, err := s.PutBackup(context.Background(), "/src/a.py", []byte("x\n"))
	assert.EqualError(t, err, "disk full")
	assert.Equal(t, 0, s.Len())
}
