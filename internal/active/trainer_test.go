package active

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dedupe/internal/blocking"
	"dedupe/internal/compare"
	"dedupe/internal/domain"
	"dedupe/internal/store/memory"
)

var fields = []domain.FieldSpec{
	{Name: "name", Type: domain.FieldString},
	{Name: "city", Type: domain.FieldString},
	{Name: "zip", Type: domain.FieldString},
}

// entity is the ground truth the test oracle answers from.
var entity = map[domain.ID]string{"1": "A", "2": "A", "3": "A", "4": "B", "5": "C", "6": "C"}

func contributors() domain.RecordSet {
	rec := func(id, name, city, zip string) domain.Record {
		return domain.Record{ID: domain.ID(id), Values: map[string]domain.Value{
			"name": domain.Text(name), "city": domain.Text(city), "zip": domain.Text(zip),
		}}
	}
	out := domain.RecordSet{}
	for _, r := range []domain.Record{
		rec("1", "John Smith", "Spokane", "99201"),
		rec("2", "John Smith", "Spokane", "99201"),
		rec("3", "Jon Smith", "Spokane", "99201"),
		rec("4", "Mary Jones", "Spokane", "99205"),
		rec("5", "Jane Doe", "Seattle", "98101"),
		rec("6", "Janet Doe", "Seattle", "98101"),
	} {
		out[r.ID] = r
	}
	return out
}

func newTrainer(t *testing.T, store domain.JudgmentStore, opts Options) *Trainer {
	t.Helper()
	cmp, err := compare.New(fields)
	require.NoError(t, err)
	blocker, err := blocking.NewBlocker(fields, nil, 0)
	require.NoError(t, err)
	tr := NewTrainer(cmp, blocker, store, opts, zerolog.Nop())
	tr.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	return tr
}

func oracle() LabelerFunc {
	return func(_ context.Context, q Query) (Answer, error) {
		if entity[q.Pair.Left] == entity[q.Pair.Right] {
			return Answer{Label: domain.LabelMatch}, nil
		}
		return Answer{Label: domain.LabelDistinct}, nil
	}
}

func TestLoadPriorJudgmentsEmpty(t *testing.T) {
	tr := newTrainer(t, memory.NewStore(), Options{})
	got, err := tr.LoadPriorJudgments(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestSelectNextPairColdStart(t *testing.T) {
	records := contributors()
	tr := newTrainer(t, memory.NewStore(), Options{})
	require.NoError(t, tr.Prepare(records))

	first, ok := tr.SelectNextPair(records, nil)
	require.True(t, ok)
	assert.Equal(t, domain.NewPair("1", "2"), first, "identical records are proposed first")

	tr.RecordJudgment(first, domain.LabelMatch)
	second, ok := tr.SelectNextPair(records, tr.Judgments())
	require.True(t, ok)
	assert.Equal(t, domain.ID("4"), second.Right, "least similar pair is proposed once a match exists")
}

func TestSelectNextPairSkipsPriorJudgments(t *testing.T) {
	records := contributors()
	store := memory.NewStore(domain.LabeledPair{Left: "1", Right: "2", Label: domain.LabelMatch})
	tr := newTrainer(t, store, Options{})
	prior, err := tr.LoadPriorJudgments(context.Background())
	require.NoError(t, err)
	require.Len(t, prior, 1)

	next, ok := tr.SelectNextPair(records, prior)
	require.True(t, ok)
	assert.NotEqual(t, domain.NewPair("1", "2"), next)
}

func TestSelectNextPairDeterministic(t *testing.T) {
	records := contributors()
	judgments := []domain.LabeledPair{
		{Left: "1", Right: "2", Label: domain.LabelMatch},
		{Left: "1", Right: "4", Label: domain.LabelDistinct},
	}
	a := newTrainer(t, memory.NewStore(), Options{})
	b := newTrainer(t, memory.NewStore(), Options{})
	pa, oka := a.SelectNextPair(records, judgments)
	pb, okb := b.SelectNextPair(records, judgments)
	require.True(t, oka)
	require.True(t, okb)
	assert.Equal(t, pa, pb)
	assert.NotEqual(t, domain.NewPair("1", "2"), pa)
	assert.NotEqual(t, domain.NewPair("1", "4"), pa)
}

func TestFitIgnoresUncertain(t *testing.T) {
	records := contributors()
	tr := newTrainer(t, memory.NewStore(), Options{})
	_, err := tr.Fit(records, []domain.LabeledPair{
		{Left: "1", Right: "2", Label: domain.LabelMatch},
		{Left: "1", Right: "4", Label: domain.LabelUncertain},
	})
	require.True(t, IsInsufficient(err))
	var insufficient *domain.InsufficientTrainingDataError
	require.True(t, errors.As(err, &insufficient))
	assert.Equal(t, 1, insufficient.Matches)
	assert.Equal(t, 0, insufficient.Distincts)
}

func TestFitUsesSnapshots(t *testing.T) {
	records := contributors()
	tr := newTrainer(t, memory.NewStore(), Options{})
	stale := domain.LabeledPair{Left: "90", Right: "91", Label: domain.LabelDistinct}
	match := domain.LabeledPair{Left: "1", Right: "2", Label: domain.LabelMatch}

	_, err := tr.Fit(records, []domain.LabeledPair{match, stale})
	assert.True(t, IsInsufficient(err), "a judgment about unknown records without snapshots is skipped")

	stale.LeftValues = map[string]string{"name": "Alice Brown", "city": "Tacoma", "zip": "98402"}
	stale.RightValues = map[string]string{"name": "Bob Green", "city": "Yakima", "zip": "98901"}
	clf, err := tr.Fit(records, []domain.LabeledPair{match, stale})
	require.NoError(t, err)
	assert.Greater(t, clf.Score(records["1"], records["2"]), 0.5)
}

func TestLabelRunsToExhaustion(t *testing.T) {
	records := contributors()
	store := memory.NewStore()
	tr := newTrainer(t, store, Options{})

	res, err := tr.Label(context.Background(), records, oracle())
	require.NoError(t, err)
	assert.Equal(t, StopExhausted, res.Reason)
	assert.Equal(t, 7, res.Asked)
	assert.Equal(t, 7, res.Added)
	assert.Equal(t, tr.Session(), res.Session)

	saved, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, saved, 7)
	for _, j := range saved {
		assert.Equal(t, entity[j.Left] == entity[j.Right], j.Label == domain.LabelMatch, "pair %s", j.Key())
		assert.Equal(t, tr.Session(), j.Session)
		assert.NotEmpty(t, j.LeftValues)
	}
	assert.Equal(t, 1, store.Saves())

	clf, err := tr.Fit(records, saved)
	require.NoError(t, err)
	assert.Greater(t, clf.Score(records["1"], records["2"]), 0.5)
	assert.Less(t, clf.Score(records["1"], records["4"]), 0.5)
}

func TestLabelStopAnswer(t *testing.T) {
	records := contributors()
	store := memory.NewStore()
	tr := newTrainer(t, store, Options{})

	answered := 0
	res, err := tr.Label(context.Background(), records, LabelerFunc(func(ctx context.Context, q Query) (Answer, error) {
		if answered == 2 {
			return Answer{Stop: true}, nil
		}
		answered++
		return oracle()(ctx, q)
	}))
	require.NoError(t, err)
	assert.Equal(t, StopRequested, res.Reason)
	assert.Equal(t, 2, res.Added)

	saved, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, saved, 2)
}

func TestLabelPersistsOnCancellation(t *testing.T) {
	records := contributors()
	store := memory.NewStore()
	tr := newTrainer(t, store, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	res, err := tr.Label(ctx, records, LabelerFunc(func(inner context.Context, q Query) (Answer, error) {
		if q.Seq == 2 {
			cancel()
			<-inner.Done()
			return Answer{}, inner.Err()
		}
		return oracle()(inner, q)
	}))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StopCancelled, res.Reason)

	saved, loadErr := store.Load(context.Background())
	require.NoError(t, loadErr)
	assert.Len(t, saved, 2, "judgments collected before the interruption are flushed")
}

func TestLabelRejectsUnknownLabel(t *testing.T) {
	store := memory.NewStore()
	tr := newTrainer(t, store, Options{})
	_, err := tr.Label(context.Background(), contributors(), LabelerFunc(func(context.Context, Query) (Answer, error) {
		return Answer{Label: "maybe"}, nil
	}))
	assert.Error(t, err)
	assert.Equal(t, 1, store.Saves())
}

func TestLabelLabelerError(t *testing.T) {
	store := memory.NewStore()
	tr := newTrainer(t, store, Options{})
	boom := errors.New("terminal gone")
	res, err := tr.Label(context.Background(), contributors(), LabelerFunc(func(context.Context, Query) (Answer, error) {
		return Answer{}, boom
	}))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, StopLabeler, res.Reason)
	assert.Equal(t, 1, store.Saves())
}

func TestLabelMaxQueries(t *testing.T) {
	store := memory.NewStore()
	tr := newTrainer(t, store, Options{MaxQueries: 3})
	res, err := tr.Label(context.Background(), contributors(), oracle())
	require.NoError(t, err)
	assert.Equal(t, StopLimit, res.Reason)
	assert.Equal(t, 3, res.Asked)
	assert.Equal(t, 3, res.Total)
}

func TestSample(t *testing.T) {
	pairs := make([]domain.Pair, 10)
	for i := range pairs {
		pairs[i] = domain.NewPair("0", domain.ID(string(rune('a'+i))))
	}
	got := sample(pairs, 3)
	assert.Equal(t, []domain.Pair{pairs[0], pairs[3], pairs[6]}, got)
	assert.Len(t, sample(pairs, 20), 10)
}
