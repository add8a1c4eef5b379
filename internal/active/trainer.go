// Package active runs the active-learning loop that collects match/distinct
// judgments and fits the pair classifier from them.
package active

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"dedupe/internal/classifier"
	"dedupe/internal/domain"
)

// DefaultSampleSize caps the candidate pool the trainer chooses from.
const DefaultSampleSize = 15000

// Comparator is what the trainer needs from a field comparator.
type Comparator interface {
	domain.Comparator
	Fields() []domain.FieldSpec
}

// Options tunes the trainer.
type Options struct {
	// SampleSize caps the candidate pool; <= 0 uses DefaultSampleSize.
	SampleSize int
	// L2 is the classifier ridge penalty; < 0 uses classifier.DefaultL2.
	L2 float64
	// MaxQueries ends a labeling session after that many answers; 0 is unlimited.
	MaxQueries int
}

// Trainer selects informative pairs, records judgments and fits the classifier.
// It is not safe for concurrent use; Label confines all state changes to the
// calling goroutine.
type Trainer struct {
	comparator Comparator
	blocker    domain.Blocker
	store      domain.JudgmentStore
	opts       Options
	logger     zerolog.Logger

	session   string
	now       func() time.Time
	records   domain.RecordSet
	pool      []domain.Pair
	judgments []domain.LabeledPair
}

func NewTrainer(comparator Comparator, blocker domain.Blocker, store domain.JudgmentStore, opts Options, logger zerolog.Logger) *Trainer {
	if opts.SampleSize <= 0 {
		opts.SampleSize = DefaultSampleSize
	}
	if opts.L2 < 0 {
		opts.L2 = classifier.DefaultL2
	}
	return &Trainer{
		comparator: comparator,
		blocker:    blocker,
		store:      store,
		opts:       opts,
		logger:     logger,
		session:    uuid.NewString(),
		now:        time.Now,
	}
}

// Session identifies the judgments recorded by this trainer.
func (t *Trainer) Session() string { return t.session }

// Judgments returns the judgment history including this session's additions.
func (t *Trainer) Judgments() []domain.LabeledPair { return t.judgments }

// LoadPriorJudgments reads the stored history. A store with nothing in it,
// including a training file that does not exist yet, yields an empty sequence.
func (t *Trainer) LoadPriorJudgments(ctx context.Context) ([]domain.LabeledPair, error) {
	judgments, err := t.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load prior judgments: %w", err)
	}
	if judgments == nil {
		judgments = []domain.LabeledPair{}
	}
	t.judgments = judgments
	t.logger.Debug().Int("judgments", len(judgments)).Msg("loaded prior judgments")
	return judgments, nil
}

// Prepare fits the comparator to the record set and builds the candidate pool
// from blocking, thinned deterministically to the sample size.
func (t *Trainer) Prepare(records domain.RecordSet) error {
	if len(records) == 0 {
		return &domain.EmptyInputError{Stage: "train"}
	}
	if err := t.comparator.Prepare(records); err != nil {
		return fmt.Errorf("prepare comparator: %w", err)
	}
	pairs := t.blocker.Pairs(records)
	t.pool = sample(pairs, t.opts.SampleSize)
	t.records = records
	t.logger.Debug().Int("blocked_pairs", len(pairs)).Int("pool", len(t.pool)).Msg("candidate pool ready")
	if r, ok := t.blocker.(domain.BlockReporter); ok {
		if skipped := r.Skipped(); len(skipped) > 0 {
			t.logger.Warn().Strs("skipped_blocks", skipped).Msg("oversized blocks left out of the candidate pool")
		}
	}
	return nil
}

// ensurePrepared prepares on first use. A trainer serves one record set.
func (t *Trainer) ensurePrepared(records domain.RecordSet) error {
	if t.records != nil {
		return nil
	}
	return t.Prepare(records)
}

// SelectNextPair returns the most informative unjudged candidate, or false when
// none is left. While the history lacks a match it proposes the most similar
// pair, while it lacks a distinct the least similar one; afterwards the pair
// the classifier is least sure about. Ties go to the earlier pair.
func (t *Trainer) SelectNextPair(records domain.RecordSet, judgments []domain.LabeledPair) (domain.Pair, bool) {
	if err := t.ensurePrepared(records); err != nil {
		t.logger.Warn().Err(err).Msg("cannot build candidate pool")
		return domain.Pair{}, false
	}
	judged := make(map[domain.Pair]struct{}, len(judgments))
	for _, j := range judgments {
		judged[j.Key()] = struct{}{}
	}
	matches, distincts, _ := countLabels(judgments)

	var (
		score func(a, b domain.Record) float64
		// better reports whether candidate value v beats the current best
		better func(v, best float64) bool
	)
	switch {
	case matches == 0:
		score = t.comparator.Similarity
		better = func(v, best float64) bool { return v > best }
	case distincts == 0:
		score = t.comparator.Similarity
		better = func(v, best float64) bool { return v < best }
	default:
		clf, err := t.Fit(records, judgments)
		if err != nil {
			t.logger.Warn().Err(err).Msg("fit failed; falling back to similarity")
			score = t.comparator.Similarity
			better = func(v, best float64) bool { return v > best }
			break
		}
		score = func(a, b domain.Record) float64 { return math.Abs(clf.Score(a, b) - 0.5) }
		better = func(v, best float64) bool { return v < best }
	}

	best, found := 0.0, false
	var choice domain.Pair
	for _, p := range t.pool {
		if _, ok := judged[p]; ok {
			continue
		}
		a, aok := records[p.Left]
		b, bok := records[p.Right]
		if !aok || !bok {
			continue
		}
		if v := score(a, b); !found || better(v, best) {
			best, choice, found = v, p, true
		}
	}
	return choice, found
}

// RecordJudgment appends a judgment to the in-memory history. Nothing is
// written until Persist.
func (t *Trainer) RecordJudgment(pair domain.Pair, label domain.Label) domain.LabeledPair {
	lp := domain.LabeledPair{
		Left:      pair.Left,
		Right:     pair.Right,
		Label:     label,
		Session:   t.session,
		LabeledAt: t.now().UTC(),
	}
	if t.records != nil {
		fields := t.comparator.Fields()
		if r, ok := t.records[pair.Left]; ok {
			lp.LeftValues = r.Snapshot(fields)
		}
		if r, ok := t.records[pair.Right]; ok {
			lp.RightValues = r.Snapshot(fields)
		}
	}
	t.judgments = append(t.judgments, lp)
	return lp
}

// Fit trains the classifier on the match and distinct judgments; uncertain
// ones are ignored. Judgments about records no longer loaded are rebuilt from
// their value snapshots.
func (t *Trainer) Fit(records domain.RecordSet, judgments []domain.LabeledPair) (*classifier.Logistic, error) {
	if err := t.ensurePrepared(records); err != nil {
		return nil, err
	}
	examples := make([]classifier.Example, 0, len(judgments))
	for _, j := range judgments {
		if j.Label != domain.LabelMatch && j.Label != domain.LabelDistinct {
			continue
		}
		a, aok := resolve(records, j.Left, j.LeftValues)
		b, bok := resolve(records, j.Right, j.RightValues)
		if !aok || !bok {
			continue
		}
		examples = append(examples, classifier.Example{
			Features: t.comparator.Features(a, b),
			Match:    j.Label == domain.LabelMatch,
		})
	}
	return classifier.Fit(t.comparator, examples, t.opts.L2)
}

// Persist writes the judgment history to the store.
func (t *Trainer) Persist(ctx context.Context, judgments []domain.LabeledPair) error {
	if err := t.store.Save(ctx, judgments); err != nil {
		return fmt.Errorf("persist judgments: %w", err)
	}
	t.logger.Debug().Int("judgments", len(judgments)).Msg("judgments persisted")
	return nil
}

// IsInsufficient reports whether err means more judgments are needed.
func IsInsufficient(err error) bool {
	var insufficient *domain.InsufficientTrainingDataError
	return errors.As(err, &insufficient)
}

func resolve(records domain.RecordSet, id domain.ID, snapshot map[string]string) (domain.Record, bool) {
	if r, ok := records[id]; ok {
		return r, true
	}
	if len(snapshot) == 0 {
		return domain.Record{}, false
	}
	return domain.RecordFromSnapshot(id, snapshot), true
}

func countLabels(judgments []domain.LabeledPair) (matches, distincts, uncertain int) {
	for _, j := range judgments {
		switch j.Label {
		case domain.LabelMatch:
			matches++
		case domain.LabelDistinct:
			distincts++
		default:
			uncertain++
		}
	}
	return matches, distincts, uncertain
}

// sample keeps at most n pairs spread evenly over the sorted input.
func sample(pairs []domain.Pair, n int) []domain.Pair {
	if n <= 0 || len(pairs) <= n {
		return pairs
	}
	out := make([]domain.Pair, n)
	for i := range out {
		out[i] = pairs[i*len(pairs)/n]
	}
	return out
}
