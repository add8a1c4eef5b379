package domain

import "context"

// Classifier maps a pair of records to a match probability in [0,1].
type Classifier interface {
	Score(a, b Record) float64
}

// Comparator turns a record pair into a feature vector for the classifier.
// Implementations may require a preparation phase over the record set.
type Comparator interface {
	Prepare(records RecordSet) error
	Dimension() int
	Features(a, b Record) []float64
	Similarity(a, b Record) float64
}

// Blocker groups records that share an indexable feature so only those are compared.
type Blocker interface {
	Pairs(records RecordSet) []Pair
}

// BlockReporter is implemented by blockers that skip oversized blocks. Skipped
// lists the block keys ignored by the last Pairs call.
type BlockReporter interface {
	Skipped() []string
}

// JudgmentStore persists the labeled pairs collected across runs.
type JudgmentStore interface {
	Load(ctx context.Context) ([]LabeledPair, error)
	Save(ctx context.Context, judgments []LabeledPair) error
	Close() error
}
