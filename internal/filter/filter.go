// Package filter applies a configured row policy to a table before linkage.
//
// A policy is an ordered list of rules. Predicates drop rows; transforms
// rewrite a cell. Rules run in order on each row, so a transform placed
// before a predicate affects what the predicate sees.
package filter

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"dedupe/internal/records"
)

// Op names a rule.
type Op string

const (
	// OpRequired keeps rows whose column is not empty.
	OpRequired Op = "required"
	// OpIn keeps rows whose column equals one of Values.
	OpIn Op = "in"
	// OpEquals keeps rows whose column equals Value.
	OpEquals Op = "equals"
	// OpNotContains drops rows whose column contains Value, ignoring case.
	OpNotContains Op = "not_contains"
	// OpGreaterThan keeps rows whose column is a number above Value.
	OpGreaterThan Op = "greater_than"

	OpUpper Op = "upper"
	OpLower Op = "lower"
	OpTrim  Op = "trim"
)

// Rule is one step of a policy.
type Rule struct {
	Column string   `yaml:"column"`
	Op     Op       `yaml:"op"`
	Value  string   `yaml:"value,omitempty"`
	Values []string `yaml:"values,omitempty"`
}

func (r Rule) String() string {
	switch r.Op {
	case OpIn:
		return fmt.Sprintf("%s %s [%s]", r.Column, r.Op, strings.Join(r.Values, ", "))
	case OpEquals, OpNotContains, OpGreaterThan:
		return fmt.Sprintf("%s %s %q", r.Column, r.Op, r.Value)
	}
	return fmt.Sprintf("%s %s", r.Column, r.Op)
}

// Profile is a named policy.
type Profile struct {
	Description string `yaml:"description,omitempty"`
	Rules       []Rule `yaml:"rules"`
}

// Report counts what a policy did.
type Report struct {
	Input   int
	Kept    int
	Dropped map[string]int
}

// Rules returns the rules that dropped rows, sorted.
func (r Report) Rules() []string {
	rules := make([]string, 0, len(r.Dropped))
	for rule := range r.Dropped {
		rules = append(rules, rule)
	}
	sort.Strings(rules)
	return rules
}

// Validate checks that every rule is well formed.
func Validate(rules []Rule) error {
	for i, r := range rules {
		if strings.TrimSpace(r.Column) == "" {
			return fmt.Errorf("rule %d: column is required", i+1)
		}
		switch r.Op {
		case OpRequired, OpUpper, OpLower, OpTrim:
		case OpIn:
			if len(r.Values) == 0 {
				return fmt.Errorf("rule %d (%s): values are required", i+1, r.Column)
			}
		case OpEquals, OpNotContains:
			if r.Value == "" {
				return fmt.Errorf("rule %d (%s): value is required", i+1, r.Column)
			}
		case OpGreaterThan:
			if _, err := strconv.ParseFloat(r.Value, 64); err != nil {
				return fmt.Errorf("rule %d (%s): value %q is not a number", i+1, r.Column, r.Value)
			}
		default:
			return fmt.Errorf("rule %d (%s): unknown op %q", i+1, r.Column, r.Op)
		}
	}
	return nil
}

type compiled struct {
	Rule
	col       int
	allowed   map[string]struct{}
	threshold float64
	needle    string
}

// Apply returns a new table holding the rows the rules keep. The input table
// is left untouched.
func Apply(t *records.Table, rules []Rule) (*records.Table, Report, error) {
	report := Report{Input: len(t.Rows), Dropped: map[string]int{}}
	if err := Validate(rules); err != nil {
		return nil, report, err
	}
	steps := make([]compiled, len(rules))
	for i, r := range rules {
		c := compiled{Rule: r, col: t.Column(r.Column)}
		if c.col < 0 {
			return nil, report, fmt.Errorf("rule %d: column %q not found", i+1, r.Column)
		}
		switch r.Op {
		case OpIn:
			c.allowed = make(map[string]struct{}, len(r.Values))
			for _, v := range r.Values {
				c.allowed[strings.TrimSpace(v)] = struct{}{}
			}
		case OpGreaterThan:
			c.threshold, _ = strconv.ParseFloat(r.Value, 64)
		case OpNotContains:
			c.needle = strings.ToLower(r.Value)
		}
		steps[i] = c
	}

	out := &records.Table{Header: append([]string(nil), t.Header...)}
	for _, src := range t.Rows {
		row := append([]string(nil), src...)
		for len(row) < len(t.Header) {
			row = append(row, "")
		}
		keep := true
		for _, s := range steps {
			if !s.apply(row) {
				report.Dropped[s.String()]++
				keep = false
				break
			}
		}
		if keep {
			out.Rows = append(out.Rows, row)
		}
	}
	report.Kept = len(out.Rows)
	return out, report, nil
}

// apply runs one step on a row, rewriting it for transforms. It reports
// whether the row is kept.
func (c compiled) apply(row []string) bool {
	cell := strings.TrimSpace(row[c.col])
	switch c.Op {
	case OpRequired:
		return cell != ""
	case OpIn:
		_, ok := c.allowed[cell]
		return ok
	case OpEquals:
		return cell == strings.TrimSpace(c.Value)
	case OpNotContains:
		return !strings.Contains(strings.ToLower(cell), c.needle)
	case OpGreaterThan:
		v, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimPrefix(cell, "$"), ",", ""), 64)
		return err == nil && v > c.threshold
	case OpUpper:
		row[c.col] = strings.ToUpper(row[c.col])
	case OpLower:
		row[c.col] = strings.ToLower(row[c.col])
	case OpTrim:
		row[c.col] = cell
	}
	return true
}
