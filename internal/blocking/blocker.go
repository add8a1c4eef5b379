package blocking

import (
	"fmt"
	"sort"
	"strings"

	"dedupe/internal/compare"
	"dedupe/internal/domain"
)

// Predicate derives indexable keys from one normalized field value.
type Predicate string

const (
	Exact      Predicate = "exact"
	FirstToken Predicate = "first_token"
	Tokens     Predicate = "tokens"
	Prefix     Predicate = "prefix"
)

// DefaultPredicates are used when none are configured.
var DefaultPredicates = []Predicate{Exact, FirstToken, Prefix}

const prefixLen = 3

// Blocker splits records into blocks of shared keys and emits the pairs
// inside each block. Records sharing no key are never compared.
type Blocker struct {
	fields       []domain.FieldSpec
	predicates   []Predicate
	maxBlockSize int
	skipped      []string
}

// NewBlocker creates a blocker. maxBlockSize <= 0 disables the size cap.
func NewBlocker(fields []domain.FieldSpec, predicates []Predicate, maxBlockSize int) (*Blocker, error) {
	if len(predicates) == 0 {
		predicates = DefaultPredicates
	}
	for _, p := range predicates {
		switch p {
		case Exact, FirstToken, Tokens, Prefix:
		default:
			return nil, fmt.Errorf("unknown blocking predicate %q", p)
		}
	}
	return &Blocker{fields: fields, predicates: predicates, maxBlockSize: maxBlockSize}, nil
}

// Keys returns the block keys of a record, sorted and unique.
func (b *Blocker) Keys(r domain.Record) []string {
	seen := make(map[string]struct{})
	for _, f := range b.fields {
		v := r.Get(f.Name)
		if !v.Present {
			continue
		}
		normalized := compare.Normalize(v.Text)
		if normalized == "" {
			continue
		}
		for _, p := range b.predicates {
			for _, value := range apply(p, normalized) {
				seen[f.Name+":"+string(p)+":"+value] = struct{}{}
			}
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Pairs returns every distinct pair sharing at least one block, in stable order.
func (b *Blocker) Pairs(records domain.RecordSet) []domain.Pair {
	blocks := make(map[string][]domain.ID)
	for _, id := range records.IDs() {
		for _, key := range b.Keys(records[id]) {
			blocks[key] = append(blocks[key], id)
		}
	}
	keys := make([]string, 0, len(blocks))
	for k := range blocks {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	b.skipped = nil
	seen := make(map[domain.Pair]struct{})
	var pairs []domain.Pair
	for _, key := range keys {
		ids := blocks[key]
		if len(ids) < 2 {
			continue
		}
		if b.maxBlockSize > 0 && len(ids) > b.maxBlockSize {
			b.skipped = append(b.skipped, key)
			continue
		}
		for i := 0; i < len(ids); i++ {
			for j := i + 1; j < len(ids); j++ {
				p := domain.NewPair(ids[i], ids[j])
				if _, ok := seen[p]; ok {
					continue
				}
				seen[p] = struct{}{}
				pairs = append(pairs, p)
			}
		}
	}
	domain.SortPairs(pairs)
	return pairs
}

// Skipped lists the oversized blocks ignored by the last Pairs call.
func (b *Blocker) Skipped() []string { return b.skipped }

func apply(p Predicate, normalized string) []string {
	switch p {
	case Exact:
		return []string{normalized}
	case FirstToken:
		return []string{strings.Fields(normalized)[0]}
	case Tokens:
		return strings.Fields(normalized)
	case Prefix:
		compact := []rune(strings.ReplaceAll(normalized, " ", ""))
		if len(compact) < prefixLen {
			return []string{string(compact)}
		}
		return []string{string(compact[:prefixLen])}
	}
	return nil
}
