// Package compare turns record pairs into per-field similarity features.
//
// Each declared field contributes two features: its similarity in [0,1] and an
// indicator that at least one side is missing. Missing values never count as
// similar, so "no data" is treated uniformly instead of as an empty string.
package compare

import (
	"fmt"

	"github.com/xrash/smetrics"

	"dedupe/internal/domain"
	"dedupe/internal/embedding/tfidf"
)

const (
	jaroBoostThreshold = 0.7
	jaroPrefixSize     = 4
)

// FieldComparator compares the values of one field.
type FieldComparator interface {
	Prepare(corpus []string) error
	Compare(a, b string) float64
}

// Comparator implements domain.Comparator over a list of field specs.
type Comparator struct {
	fields      []domain.FieldSpec
	comparators []FieldComparator
}

// New builds a comparator for the declared fields.
func New(fields []domain.FieldSpec) (*Comparator, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("no comparison fields declared")
	}
	c := &Comparator{fields: fields, comparators: make([]FieldComparator, len(fields))}
	for i, f := range fields {
		switch f.Type {
		case domain.FieldString, "":
			c.comparators[i] = stringComparator{}
		case domain.FieldText:
			c.comparators[i] = &textComparator{embedder: tfidf.NewEmbedder()}
		default:
			return nil, fmt.Errorf("field %q: unknown comparison type %q", f.Name, f.Type)
		}
	}
	return c, nil
}

// Fields returns the declared field specs.
func (c *Comparator) Fields() []domain.FieldSpec { return c.fields }

// Prepare lets corpus-based comparators learn from the record set.
func (c *Comparator) Prepare(records domain.RecordSet) error {
	for i, f := range c.fields {
		corpus := make([]string, 0, len(records))
		for _, id := range records.IDs() {
			if v := records[id].Get(f.Name); v.Present {
				corpus = append(corpus, v.Text)
			}
		}
		if len(corpus) == 0 {
			// nothing to learn; every comparison on this field is missing
			corpus = []string{""}
		}
		if err := c.comparators[i].Prepare(corpus); err != nil {
			return fmt.Errorf("prepare field %q: %w", f.Name, err)
		}
	}
	return nil
}

// Dimension is the length of a feature vector.
func (c *Comparator) Dimension() int { return 2 * len(c.fields) }

// Features returns [similarity, missing] for every field, in declaration order.
func (c *Comparator) Features(a, b domain.Record) []float64 {
	out := make([]float64, 0, c.Dimension())
	for i, f := range c.fields {
		va, vb := a.Get(f.Name), b.Get(f.Name)
		if !va.Present || !vb.Present {
			out = append(out, 0, 1)
			continue
		}
		out = append(out, c.comparators[i].Compare(va.Text, vb.Text), 0)
	}
	return out
}

// Similarity is the mean similarity over fields present on both sides. It
// stands in for a classifier before any judgments exist.
func (c *Comparator) Similarity(a, b domain.Record) float64 {
	features := c.Features(a, b)
	sum, n := 0.0, 0
	for i := 0; i < len(features); i += 2 {
		if features[i+1] == 1 {
			continue
		}
		sum += features[i]
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

type stringComparator struct{}

func (stringComparator) Prepare([]string) error { return nil }

func (stringComparator) Compare(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	if na == nb {
		return 1
	}
	if na == "" || nb == "" {
		return 0
	}
	return smetrics.JaroWinkler(na, nb, jaroBoostThreshold, jaroPrefixSize)
}

type textComparator struct {
	embedder *tfidf.Embedder
}

func (t *textComparator) Prepare(corpus []string) error {
	return t.embedder.Prepare(corpus)
}

func (t *textComparator) Compare(a, b string) float64 {
	if Normalize(a) == Normalize(b) {
		return 1
	}
	sim, err := t.embedder.Similarity(a, b)
	if err != nil {
		return 0
	}
	return sim
}
