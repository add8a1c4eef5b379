package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dedupe/internal/domain"
)

func TestStoreCopies(t *testing.T) {
	ctx := context.Background()
	s := NewStore(domain.LabeledPair{Left: "1", Right: "2", Label: domain.LabelMatch})

	got, err := s.Load(ctx)
	require.NoError(t, err)
	got[0].Label = domain.LabelDistinct

	again, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.LabelMatch, again[0].Label)

	require.NoError(t, s.Save(ctx, append(again, domain.LabeledPair{Left: "3", Right: "4", Label: domain.LabelDistinct})))
	again, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, again, 2)
	assert.Equal(t, 1, s.Saves())
}
