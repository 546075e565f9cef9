package bolt

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pario-ai/benchrun/pkg/models"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "answers.bolt")
	s, err := New(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func TestStore_RoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	want := models.AnswerRecord{
		Fingerprint: "abc",
		Answer:      "42",
		Tool:        "text",
		Status:      models.StatusSuccess,
		CreatedAt:   time.Date(2026, 1, 2, 3, 4, 5, 6, time.UTC),
	}
	require.NoError(t, s.Save(ctx, want))

	got, ok, err := s.Load(ctx, "abc")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, want.SameContent(got))
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt))
}

func TestStore_Miss(t *testing.T) {
	s, _ := newTestStore(t)

	_, ok, err := s.Load(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_ResetAndCount(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	for _, fp := range []string{"a", "b", "c"} {
		require.NoError(t, s.Save(ctx, models.AnswerRecord{Fingerprint: fp, Status: models.StatusSuccess}))
	}

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	require.NoError(t, s.Reset(ctx))

	n, err = s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	// Store must stay usable after a reset.
	require.NoError(t, s.Save(ctx, models.AnswerRecord{Fingerprint: "d", Status: models.StatusSuccess}))
}

func TestNew_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.bolt")
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte("garbage!"), 1024), 0o600))

	_, err := New(path)
	assert.ErrorIs(t, err, ErrCorrupt)
	assert.NotErrorIs(t, err, ErrLocked)
}

func TestStore_LockedByAnotherHandle(t *testing.T) {
	_, path := newTestStore(t)

	_, err := New(path)
	assert.ErrorIs(t, err, ErrLocked)
}
