package tui

import (
	"context"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dedupe/internal/active"
	"dedupe/internal/domain"
)

func pairQuery(seq int) active.Query {
	return active.Query{
		Seq:   seq,
		Pair:  domain.NewPair("7", "9"),
		Left:  domain.Record{ID: "7", Values: map[string]domain.Value{"name": domain.Text("John Smith"), "zip": domain.Text("99201")}},
		Right: domain.Record{ID: "9", Values: map[string]domain.Value{"name": domain.Text("Jon Smith")}},
		Fields: []domain.FieldSpec{
			{Name: "name", Type: domain.FieldString},
			{Name: "zip", Type: domain.FieldString},
		},
		Progress: active.Progress{Matches: 2, Distincts: 1, Remaining: 12},
	}
}

func key(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func TestModelAnswersQuery(t *testing.T) {
	ctx := context.Background()
	queries := make(chan active.Query, 1)
	answers := make(chan active.Answer, 1)
	var m tea.Model = New(ctx, queries, answers)

	m, _ = m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	m, _ = m.Update(queryMsg{query: pairQuery(4), ok: true})
	view := m.View()
	assert.Contains(t, view, "John Smith")
	assert.Contains(t, view, "Jon Smith")
	assert.Contains(t, view, "12 candidates left")

	m, cmd := m.Update(key('y'))
	require.NotNil(t, cmd)
	msg := cmd()
	assert.Equal(t, answeredMsg{}, msg)
	assert.Equal(t, active.Answer{Seq: 4, Label: domain.LabelMatch}, <-answers)

	// a second key press while the answer is in flight is ignored
	_, cmd = m.Update(key('n'))
	assert.Nil(t, cmd)

	m, cmd = m.Update(msg)
	require.NotNil(t, cmd)
	queries <- pairQuery(5)
	next := cmd()
	assert.Equal(t, queryMsg{query: pairQuery(5), ok: true}, next)
	assert.Equal(t, 1, m.(Model).answered)
}

func TestModelFinish(t *testing.T) {
	ctx := context.Background()
	answers := make(chan active.Answer, 1)
	var m tea.Model = New(ctx, make(chan active.Query), answers)
	m, _ = m.Update(queryMsg{query: pairQuery(0), ok: true})

	m, cmd := m.Update(key('f'))
	require.NotNil(t, cmd)
	msg := cmd()
	assert.Equal(t, active.Answer{Seq: 0, Stop: true}, <-answers)

	m, cmd = m.Update(msg)
	assert.True(t, m.(Model).finished)
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestModelQuitsWhenQueriesClose(t *testing.T) {
	var m tea.Model = New(context.Background(), nil, nil)
	m, cmd := m.Update(queryMsg{ok: false})
	assert.True(t, m.(Model).finished)
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}
