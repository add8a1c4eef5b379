// Package replay answers labeling queries from a file of recorded judgments.
// It makes labeling sessions reproducible without a person at the terminal.
package replay

import (
	"context"
	"fmt"

	"dedupe/internal/active"
	"dedupe/internal/domain"
	"dedupe/internal/records"
)

// Columns of a replay file.
const (
	LeftColumn  = "left_id"
	RightColumn = "right_id"
	LabelColumn = "label"
)

// Labeler answers from a fixed set of judgments. A query about a pair it has
// no answer for ends the session.
type Labeler struct {
	answers map[domain.Pair]domain.Label
	unknown int
}

// New returns a labeler answering from the given judgments.
func New(judgments map[domain.Pair]domain.Label) *Labeler {
	return &Labeler{answers: judgments}
}

// Load reads a CSV or TSV file with left_id, right_id and label columns.
func Load(path string) (*Labeler, error) {
	t, err := records.ReadCSV(path)
	if err != nil {
		return nil, err
	}
	return FromTable(t)
}

// FromTable builds a labeler from a judgments table.
func FromTable(t *records.Table) (*Labeler, error) {
	left, right, label := t.Column(LeftColumn), t.Column(RightColumn), t.Column(LabelColumn)
	for _, name := range []string{LeftColumn, RightColumn, LabelColumn} {
		if t.Column(name) < 0 {
			return nil, fmt.Errorf("replay: missing column %q", name)
		}
	}
	judgments := make(map[domain.Pair]domain.Label, len(t.Rows))
	for i, row := range t.Rows {
		l, r := t.Cell(row, left), t.Cell(row, right)
		if l == "" || r == "" {
			return nil, fmt.Errorf("replay: row %d: empty identifier", i+2)
		}
		lbl, err := domain.ParseLabel(t.Cell(row, label))
		if err != nil {
			return nil, fmt.Errorf("replay: row %d: %w", i+2, err)
		}
		judgments[domain.NewPair(domain.ID(l), domain.ID(r))] = lbl
	}
	return New(judgments), nil
}

// Len returns the number of known judgments.
func (l *Labeler) Len() int { return len(l.answers) }

// Unknown reports how many queries had no recorded answer.
func (l *Labeler) Unknown() int { return l.unknown }

// Run implements active.Labeler.
func (l *Labeler) Run(ctx context.Context, queries <-chan active.Query, answers chan<- active.Answer) error {
	for {
		var q active.Query
		var ok bool
		select {
		case <-ctx.Done():
			return ctx.Err()
		case q, ok = <-queries:
			if !ok {
				return nil
			}
		}
		a := active.Answer{Seq: q.Seq}
		if label, known := l.answers[q.Pair]; known {
			a.Label = label
		} else {
			l.unknown++
			a.Stop = true
		}
		select {
		case answers <- a:
		case <-ctx.Done():
			return ctx.Err()
		}
		if a.Stop {
			return nil
		}
	}
}
