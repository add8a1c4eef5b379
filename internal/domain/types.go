package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// ID identifies a record. Integer ids are stored in canonical decimal form and
// composite ids join their parts with CompositeSeparator.
type ID string

// CompositeSeparator joins the parts of a composite identifier.
const CompositeSeparator = "|"

// Value is an optional text cell. A zero Value is missing, which is distinct
// from a present empty string.
type Value struct {
	Text    string
	Present bool
}

// Missing is the explicit absent marker.
var Missing = Value{}

// Text returns a present value.
func Text(s string) Value { return Value{Text: s, Present: true} }

func (v Value) String() string {
	if !v.Present {
		return "<missing>"
	}
	return v.Text
}

// Record is one loaded row keyed by its identifier.
type Record struct {
	ID     ID
	Values map[string]Value
}

// Get returns the value of a field, missing if the field is unknown.
func (r Record) Get(field string) Value {
	if r.Values == nil {
		return Missing
	}
	return r.Values[field]
}

// Snapshot returns the present values as plain strings.
func (r Record) Snapshot(fields []FieldSpec) map[string]string {
	out := make(map[string]string, len(fields))
	for _, f := range fields {
		if v := r.Get(f.Name); v.Present {
			out[f.Name] = v.Text
		}
	}
	return out
}

// RecordFromSnapshot rebuilds a record from a stored snapshot.
func RecordFromSnapshot(id ID, snap map[string]string) Record {
	values := make(map[string]Value, len(snap))
	for k, v := range snap {
		values[k] = Text(v)
	}
	return Record{ID: id, Values: values}
}

// RecordSet is the full set of records of a run.
type RecordSet map[ID]Record

// IDs returns the identifiers in a stable order.
func (s RecordSet) IDs() []ID {
	ids := make([]ID, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	SortIDs(ids)
	return ids
}

// SortIDs orders identifiers numerically when both are integers, lexically otherwise.
func SortIDs(ids []ID) {
	sort.Slice(ids, func(i, j int) bool { return LessID(ids[i], ids[j]) })
}

// LessID reports whether a orders before b.
func LessID(a, b ID) bool {
	an, aok := numeric(a)
	bn, bok := numeric(b)
	switch {
	case aok && bok:
		if len(an) != len(bn) {
			return len(an) < len(bn)
		}
		if an == bn {
			return a < b
		}
		return an < bn
	case aok != bok:
		return aok
	default:
		return a < b
	}
}

func numeric(id ID) (string, bool) {
	s := string(id)
	if s == "" {
		return "", false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return "", false
		}
	}
	trimmed := strings.TrimLeft(s, "0")
	if trimmed == "" {
		trimmed = "0"
	}
	return trimmed, true
}

// FieldType is the comparison type of a field.
type FieldType string

const (
	// FieldString compares short free text with Jaro-Winkler similarity.
	FieldString FieldType = "String"
	// FieldText compares longer free text with TF-IDF cosine similarity.
	FieldText FieldType = "Text"
)

// FieldSpec declares a field participating in similarity comparison.
type FieldSpec struct {
	Name string    `yaml:"field" json:"field"`
	Type FieldType `yaml:"type" json:"type"`
}

// Pair is an ordered pair of record identifiers with Left ordering before Right.
type Pair struct {
	Left  ID
	Right ID
}

// NewPair orders the two identifiers.
func NewPair(a, b ID) Pair {
	if LessID(b, a) {
		a, b = b, a
	}
	return Pair{Left: a, Right: b}
}

// Less orders pairs by left then right identifier.
func (p Pair) Less(o Pair) bool {
	if p.Left != o.Left {
		return LessID(p.Left, o.Left)
	}
	return LessID(p.Right, o.Right)
}

func (p Pair) String() string { return fmt.Sprintf("(%s, %s)", p.Left, p.Right) }

// SortPairs orders pairs deterministically.
func SortPairs(pairs []Pair) {
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Less(pairs[j]) })
}

// Label is a human judgment about a candidate pair.
type Label string

const (
	LabelMatch     Label = "match"
	LabelDistinct  Label = "distinct"
	LabelUncertain Label = "uncertain"
)

// ParseLabel accepts the stored label names and the y/n/u shorthands.
func ParseLabel(s string) (Label, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "match", "y", "yes", "1", "true":
		return LabelMatch, nil
	case "distinct", "n", "no", "0", "false":
		return LabelDistinct, nil
	case "uncertain", "u", "unsure", "?":
		return LabelUncertain, nil
	}
	return "", fmt.Errorf("unknown label %q", s)
}

// LabeledPair is a human judgment about a candidate pair. The value snapshots
// let a later run retrain even when the pair's records are no longer loaded.
type LabeledPair struct {
	Left        ID                `json:"left_id"`
	Right       ID                `json:"right_id"`
	Label       Label             `json:"label"`
	Session     string            `json:"session,omitempty"`
	LabeledAt   time.Time         `json:"labeled_at"`
	LeftValues  map[string]string `json:"left,omitempty"`
	RightValues map[string]string `json:"right,omitempty"`
}

// Key returns the ordered pair the judgment is about.
func (lp LabeledPair) Key() Pair { return NewPair(lp.Left, lp.Right) }

// Member is one record of a cluster with its affinity to the rest of the cluster.
type Member struct {
	ID         ID
	Confidence float64
}

// Cluster is a set of records presumed to denote the same entity.
type Cluster struct {
	ID      int
	Members []Member
}

// Membership is the cluster assignment of one record.
type Membership struct {
	ClusterID  int
	Confidence float64
}

// Assignment maps clustered records to their cluster and remembers every
// identifier that was presented to the partitioner.
type Assignment struct {
	Members   map[ID]Membership
	Presented map[ID]struct{}
}

// NewAssignment builds the assignment of a partition over records.
func NewAssignment(records RecordSet, clusters []Cluster) Assignment {
	a := Assignment{
		Members:   make(map[ID]Membership),
		Presented: make(map[ID]struct{}, len(records)),
	}
	for id := range records {
		a.Presented[id] = struct{}{}
	}
	for _, c := range clusters {
		for _, m := range c.Members {
			a.Members[m.ID] = Membership{ClusterID: c.ID, Confidence: m.Confidence}
		}
	}
	return a
}
