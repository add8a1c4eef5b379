package replay

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dedupe/internal/active"
	"dedupe/internal/domain"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "answers.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	l, err := Load(writeFile(t, "left_id,right_id,label\n2,1,y\n1,3,distinct\n4,5,u\n"))
	require.NoError(t, err)
	assert.Equal(t, 3, l.Len())
	assert.Equal(t, domain.LabelMatch, l.answers[domain.NewPair("1", "2")])
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(writeFile(t, "left,right,label\n1,2,y\n"))
	assert.Error(t, err)
	_, err = Load(writeFile(t, "left_id,right_id,label\n1,2,perhaps\n"))
	assert.Error(t, err)
	_, err = Load(writeFile(t, "left_id,right_id,label\n1,,y\n"))
	assert.Error(t, err)
	_, err = Load(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}

func TestRunStopsOnUnknownPair(t *testing.T) {
	l := New(map[domain.Pair]domain.Label{domain.NewPair("1", "2"): domain.LabelMatch})
	queries := make(chan active.Query)
	answers := make(chan active.Answer)
	done := make(chan error, 1)
	go func() { done <- l.Run(context.Background(), queries, answers) }()

	queries <- active.Query{Seq: 0, Pair: domain.NewPair("1", "2")}
	assert.Equal(t, active.Answer{Seq: 0, Label: domain.LabelMatch}, <-answers)

	queries <- active.Query{Seq: 1, Pair: domain.NewPair("1", "9")}
	assert.Equal(t, active.Answer{Seq: 1, Stop: true}, <-answers)
	require.NoError(t, <-done)
	assert.Equal(t, 1, l.Unknown())
}
