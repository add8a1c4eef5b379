package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dedupe/internal/domain"
)

func TestLoadMissingFileIsEmpty(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "nope", "training.json"))
	got, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Dedupe_Training", "donations.json")
	s := NewStore(path)
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	in := []domain.LabeledPair{
		{Left: "1", Right: "2", Label: domain.LabelMatch, Session: "a", LabeledAt: at,
			LeftValues: map[string]string{"name": "John Smith"}, RightValues: map[string]string{"name": "JOHN SMITH"}},
		{Left: "1", Right: "3", Label: domain.LabelDistinct, Session: "a", LabeledAt: at},
	}
	require.NoError(t, s.Save(context.Background(), in))

	got, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, in, got)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temporary file is renamed away")
}

func TestLoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "training.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	_, err := NewStore(path).Load(context.Background())
	assert.Error(t, err)
}

func TestLoadCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewStore(filepath.Join(t.TempDir(), "training.json")).Load(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
