package active

import (
	"context"

	"dedupe/internal/domain"
)

// Progress summarizes the labeling state shown alongside a query.
type Progress struct {
	Matches   int
	Distincts int
	Uncertain int
	Remaining int
}

// Query asks the labeler to judge one candidate pair.
type Query struct {
	Seq      int
	Pair     domain.Pair
	Left     domain.Record
	Right    domain.Record
	Fields   []domain.FieldSpec
	Progress Progress
}

// Answer is the labeler's reply to the query with the same Seq. Stop ends the
// session without judging the pair.
type Answer struct {
	Seq   int
	Label domain.Label
	Stop  bool
}

// Labeler supplies judgments. Run receives queries until the channel is
// closed or ctx is done and sends exactly one answer per query. It may return
// early; the trainer treats that as a stop.
type Labeler interface {
	Run(ctx context.Context, queries <-chan Query, answers chan<- Answer) error
}

// LabelerFunc adapts a function answering one query at a time to a Labeler.
type LabelerFunc func(ctx context.Context, q Query) (Answer, error)

// Run implements Labeler.
func (f LabelerFunc) Run(ctx context.Context, queries <-chan Query, answers chan<- Answer) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case q, ok := <-queries:
			if !ok {
				return nil
			}
			a, err := f(ctx, q)
			if err != nil {
				return err
			}
			a.Seq = q.Seq
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
}
