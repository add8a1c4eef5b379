// Package summarizer aggregates a clustered table into one row per cluster.
package summarizer

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"dedupe/internal/records"
)

// Options selects the aggregates to compute.
type Options struct {
	// Fields get a canonical (most frequent) value per cluster.
	Fields []string
	// SumColumn is totalled per cluster when set.
	SumColumn string
	// DateColumn yields the first and last date per cluster when set.
	DateColumn string
	// ShareColumn splits the cluster total (or row count without SumColumn)
	// by the values of this column, as percentages.
	ShareColumn string
}

// Summary describes one cluster.
type Summary struct {
	ClusterID      int
	Size           int
	MeanConfidence float64
	Canonical      map[string]string
	Total          float64
	First, Last    time.Time
	Shares         map[string]float64
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"01/02/2006",
	"1/2/2006",
	"01/02/2006 15:04",
}

type accumulator struct {
	id          int
	rows        int
	confidences []float64
	amounts     []float64
	canonical   map[string]*frequency
	first, last time.Time
	shares      map[string]float64
	shareTotal  float64
}

// Summarize groups the rows of a clustered table by cluster id. Rows without
// a cluster are skipped. Summaries are ordered by cluster id.
func Summarize(t *records.Table, opts Options) ([]Summary, error) {
	clusterCol := t.Column(records.ClusterColumn)
	if clusterCol < 0 {
		return nil, fmt.Errorf("summarize: column %q not found; run clustering first", records.ClusterColumn)
	}
	confidenceCol := t.Column(records.ConfidenceColumn)
	fieldCols := make([]int, len(opts.Fields))
	for i, f := range opts.Fields {
		if fieldCols[i] = t.Column(f); fieldCols[i] < 0 {
			return nil, fmt.Errorf("summarize: column %q not found", f)
		}
	}
	sumCol, err := optionalColumn(t, opts.SumColumn)
	if err != nil {
		return nil, err
	}
	dateCol, err := optionalColumn(t, opts.DateColumn)
	if err != nil {
		return nil, err
	}
	shareCol, err := optionalColumn(t, opts.ShareColumn)
	if err != nil {
		return nil, err
	}

	groups := make(map[int]*accumulator)
	for i, row := range t.Rows {
		raw := t.Cell(row, clusterCol)
		if raw == "" {
			continue
		}
		id, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("summarize: row %d: bad cluster id %q", i+2, raw)
		}
		acc, ok := groups[id]
		if !ok {
			acc = &accumulator{id: id, canonical: make(map[string]*frequency), shares: make(map[string]float64)}
			for _, f := range opts.Fields {
				acc.canonical[f] = newFrequency()
			}
			groups[id] = acc
		}
		acc.rows++
		if confidenceCol >= 0 {
			if c, err := strconv.ParseFloat(t.Cell(row, confidenceCol), 64); err == nil {
				acc.confidences = append(acc.confidences, c)
			}
		}
		for j, f := range opts.Fields {
			acc.canonical[f].add(t.Cell(row, fieldCols[j]))
		}
		weight := 1.0
		if sumCol >= 0 {
			amount, ok := parseAmount(t.Cell(row, sumCol))
			if ok {
				acc.amounts = append(acc.amounts, amount)
			}
			weight = amount
		}
		if dateCol >= 0 {
			if d, ok := parseDate(t.Cell(row, dateCol)); ok {
				if acc.first.IsZero() || d.Before(acc.first) {
					acc.first = d
				}
				if acc.last.IsZero() || d.After(acc.last) {
					acc.last = d
				}
			}
		}
		if shareCol >= 0 {
			acc.shares[t.Cell(row, shareCol)] += weight
			acc.shareTotal += weight
		}
	}

	ids := make([]int, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]Summary, 0, len(ids))
	for _, id := range ids {
		acc := groups[id]
		s := Summary{
			ClusterID: id,
			Size:      acc.rows,
			Canonical: make(map[string]string, len(acc.canonical)),
			First:     acc.first,
			Last:      acc.last,
		}
		if len(acc.confidences) > 0 {
			s.MeanConfidence = stat.Mean(acc.confidences, nil)
		}
		for f, freq := range acc.canonical {
			s.Canonical[f] = freq.canonical()
		}
		if len(acc.amounts) > 0 {
			s.Total = floats.Sum(acc.amounts)
		}
		if shareCol >= 0 {
			s.Shares = make(map[string]float64, len(acc.shares))
			for k, v := range acc.shares {
				if acc.shareTotal != 0 {
					s.Shares[k] = 100 * v / acc.shareTotal
				}
			}
		}
		out = append(out, s)
	}
	return out, nil
}

// Table renders summaries as a table: cluster id, size, mean confidence, the
// canonical fields, then the optional total, date range and share columns.
func Table(summaries []Summary, opts Options) *records.Table {
	header := []string{records.ClusterColumn, "size", "mean_confidence"}
	header = append(header, opts.Fields...)
	if opts.SumColumn != "" {
		header = append(header, "total_"+opts.SumColumn)
	}
	if opts.DateColumn != "" {
		header = append(header, "first_"+opts.DateColumn, "last_"+opts.DateColumn)
	}
	var shareKeys []string
	if opts.ShareColumn != "" {
		seen := map[string]struct{}{}
		for _, s := range summaries {
			for k := range s.Shares {
				if _, ok := seen[k]; !ok {
					seen[k] = struct{}{}
					shareKeys = append(shareKeys, k)
				}
			}
		}
		sort.Strings(shareKeys)
		for _, k := range shareKeys {
			label := k
			if label == "" {
				label = "unknown"
			}
			header = append(header, "% "+label)
		}
	}

	out := &records.Table{Header: header}
	for _, s := range summaries {
		row := []string{
			strconv.Itoa(s.ClusterID),
			strconv.Itoa(s.Size),
			strconv.FormatFloat(s.MeanConfidence, 'f', 4, 64),
		}
		for _, f := range opts.Fields {
			row = append(row, s.Canonical[f])
		}
		if opts.SumColumn != "" {
			row = append(row, strconv.FormatFloat(s.Total, 'f', 2, 64))
		}
		if opts.DateColumn != "" {
			row = append(row, formatDate(s.First), formatDate(s.Last))
		}
		for _, k := range shareKeys {
			row = append(row, strconv.FormatFloat(s.Shares[k], 'f', 1, 64))
		}
		out.Rows = append(out.Rows, row)
	}
	return out
}

// SummaryPath derives the summary file name from the clustered output path.
func SummaryPath(output string) string {
	ext := filepath.Ext(output)
	base := strings.TrimSuffix(output, ext)
	if ext == "" {
		ext = ".csv"
	}
	return base + "_summary" + ext
}

func optionalColumn(t *records.Table, name string) (int, error) {
	if name == "" {
		return -1, nil
	}
	col := t.Column(name)
	if col < 0 {
		return -1, fmt.Errorf("summarize: column %q not found", name)
	}
	return col, nil
}

func parseAmount(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	negative := strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")")
	s = strings.Trim(s, "()")
	s = strings.ReplaceAll(strings.TrimPrefix(s, "$"), ",", "")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	if negative {
		v = -v
	}
	return v, true
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, s); err == nil {
			return d, true
		}
	}
	return time.Time{}, false
}

func formatDate(d time.Time) string {
	if d.IsZero() {
		return ""
	}
	return d.Format("2006-01-02")
}
