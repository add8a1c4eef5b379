package console

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/chzyer/readline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dedupe/internal/active"
	"dedupe/internal/domain"
)

type scripted struct {
	lines []string
	err   error
}

func (s *scripted) Readline() (string, error) {
	if len(s.lines) == 0 {
		if s.err != nil {
			return "", s.err
		}
		return "", io.EOF
	}
	line := s.lines[0]
	s.lines = s.lines[1:]
	return line, nil
}

func (s *scripted) Close() error { return nil }

func query(seq int) active.Query {
	return active.Query{
		Seq:  seq,
		Pair: domain.NewPair("1", "2"),
		Left: domain.Record{ID: "1", Values: map[string]domain.Value{"name": domain.Text("John Smith")}},
		Right: domain.Record{ID: "2", Values: map[string]domain.Value{
			"name": domain.Text("JOHN SMITH"), "city": domain.Text("Spokane"),
		}},
		Fields:   []domain.FieldSpec{{Name: "name"}, {Name: "city"}},
		Progress: active.Progress{Matches: 1, Distincts: 2, Remaining: 5},
	}
}

// drive sends the queries one at a time and collects the answers.
func drive(t *testing.T, l *Labeler, n int) ([]active.Answer, error) {
	t.Helper()
	ctx := context.Background()
	queries := make(chan active.Query)
	answers := make(chan active.Answer)
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx, queries, answers) }()

	var got []active.Answer
	for i := 0; i < n; i++ {
		select {
		case queries <- query(i):
		case err := <-done:
			return got, err
		}
		select {
		case a := <-answers:
			got = append(got, a)
			if a.Stop {
				return got, <-done
			}
		case err := <-done:
			return got, err
		}
	}
	close(queries)
	return got, <-done
}

func TestRunAnswers(t *testing.T) {
	var out bytes.Buffer
	l := NewWithReader(&scripted{lines: []string{"y", "", "what", "n", "u"}}, &out)
	got, err := drive(t, l, 3)
	require.NoError(t, err)
	assert.Equal(t, []active.Answer{
		{Seq: 0, Label: domain.LabelMatch},
		{Seq: 1, Label: domain.LabelDistinct},
		{Seq: 2, Label: domain.LabelUncertain},
	}, got)
	assert.Contains(t, out.String(), "John Smith")
	assert.Contains(t, out.String(), "Spokane")
	assert.Contains(t, out.String(), "5 candidates left")
	assert.Contains(t, out.String(), "answer y, n, u or f")
}

func TestRunFinished(t *testing.T) {
	var out bytes.Buffer
	l := NewWithReader(&scripted{lines: []string{"y", "f"}}, &out)
	got, err := drive(t, l, 5)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[1].Stop)
	assert.Equal(t, 1, got[1].Seq)
}

func TestRunInterruptStops(t *testing.T) {
	l := NewWithReader(&scripted{err: readline.ErrInterrupt}, io.Discard)
	got, err := drive(t, l, 2)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Stop)
}

func TestRunEOFStops(t *testing.T) {
	l := NewWithReader(&scripted{}, io.Discard)
	got, err := drive(t, l, 2)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Stop)
}
