package records

import (
	"fmt"
	"strconv"
	"strings"

	"dedupe/internal/domain"
)

// IDType is the declared type of the identifier column(s).
type IDType string

const (
	IDInt    IDType = "int"
	IDString IDType = "string"
)

// IDSpec declares which column(s) identify a row. Several fields form a composite key.
type IDSpec struct {
	Fields []string
	Type   IDType
}

// Dataset is a loaded table plus its records keyed by identifier.
type Dataset struct {
	Table   *Table
	Records domain.RecordSet
	// Order lists identifiers in row order.
	Order []domain.ID
}

// Load reads path and builds the record set.
func Load(path string, spec IDSpec, fields []domain.FieldSpec) (*Dataset, error) {
	t, err := ReadCSV(path)
	if err != nil {
		return nil, err
	}
	return FromTable(t, spec, fields)
}

// FromTable builds records from an already read table. Every column becomes a
// record value; empty cells become missing.
func FromTable(t *Table, spec IDSpec, fields []domain.FieldSpec) (*Dataset, error) {
	resolver, err := newIDResolver(t, spec)
	if err != nil {
		return nil, err
	}
	for _, f := range fields {
		if t.Column(f.Name) < 0 {
			return nil, &domain.MalformedRecordError{Row: 1, Column: f.Name, Reason: "comparison field is not a column"}
		}
	}
	ds := &Dataset{
		Table:   t,
		Records: make(domain.RecordSet, len(t.Rows)),
		Order:   make([]domain.ID, 0, len(t.Rows)),
	}
	for i, row := range t.Rows {
		// header is line 1
		line := i + 2
		id, err := resolver.id(row, line)
		if err != nil {
			return nil, err
		}
		if _, dup := ds.Records[id]; dup {
			return nil, &domain.MalformedRecordError{Row: line, Column: strings.Join(spec.Fields, ","), Reason: fmt.Sprintf("duplicate identifier %q", string(id))}
		}
		values := make(map[string]domain.Value, len(t.Header))
		for c, name := range t.Header {
			if name == "" {
				continue
			}
			if cell := t.Cell(row, c); cell != "" {
				values[name] = domain.Text(cell)
			} else {
				values[name] = domain.Missing
			}
		}
		ds.Records[id] = domain.Record{ID: id, Values: values}
		ds.Order = append(ds.Order, id)
	}
	return ds, nil
}

type idResolver struct {
	spec    IDSpec
	columns []int
}

func newIDResolver(t *Table, spec IDSpec) (*idResolver, error) {
	if len(spec.Fields) == 0 {
		return nil, &domain.MalformedRecordError{Row: 1, Reason: "no identifier field declared"}
	}
	cols := make([]int, len(spec.Fields))
	for i, name := range spec.Fields {
		cols[i] = t.Column(name)
		if cols[i] < 0 {
			return nil, &domain.MalformedRecordError{Row: 1, Column: name, Reason: "identifier column missing from header"}
		}
	}
	return &idResolver{spec: spec, columns: cols}, nil
}

func (r *idResolver) id(row []string, line int) (domain.ID, error) {
	parts := make([]string, len(r.columns))
	for i, col := range r.columns {
		name := r.spec.Fields[i]
		if col >= len(row) {
			return "", &domain.MalformedRecordError{Row: line, Column: name, Reason: "identifier absent"}
		}
		raw := strings.TrimSpace(row[col])
		if raw == "" {
			return "", &domain.MalformedRecordError{Row: line, Column: name, Reason: "identifier absent"}
		}
		if r.spec.Type == IDInt || r.spec.Type == "" {
			n, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				// pandas writes integer ids as "12.0" after a float round trip
				f, ferr := strconv.ParseFloat(raw, 64)
				if ferr != nil || f != float64(int64(f)) {
					return "", &domain.MalformedRecordError{Row: line, Column: name, Reason: fmt.Sprintf("identifier %q is not an integer", raw)}
				}
				n = int64(f)
			}
			raw = strconv.FormatInt(n, 10)
		}
		parts[i] = raw
	}
	return domain.ID(strings.Join(parts, domain.CompositeSeparator)), nil
}
