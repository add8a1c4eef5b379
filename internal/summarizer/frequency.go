package summarizer

import (
	"sort"
	"strings"
)

// frequency counts the non-empty values seen for one column of a cluster.
type frequency struct {
	counts map[string]int
}

func newFrequency() *frequency {
	return &frequency{counts: make(map[string]int)}
}

func (f *frequency) add(v string) {
	v = strings.TrimSpace(v)
	if v == "" {
		return
	}
	f.counts[v]++
}

// canonical returns the most frequent value. Ties go to the value that sorts
// first so the result does not depend on row order.
func (f *frequency) canonical() string {
	values := make([]string, 0, len(f.counts))
	for v := range f.counts {
		values = append(values, v)
	}
	sort.Slice(values, func(i, j int) bool {
		if f.counts[values[i]] != f.counts[values[j]] {
			return f.counts[values[i]] > f.counts[values[j]]
		}
		return values[i] < values[j]
	})
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
