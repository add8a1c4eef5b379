package records

import (
	"strconv"

	"dedupe/internal/domain"
)

// Output column names prepended by Attach.
const (
	ClusterColumn    = "Cluster ID"
	ConfidenceColumn = "confidence_score"
)

// Attach returns a new table with the cluster id and confidence prepended to
// every row. Rows keep their order; unclustered rows get empty cells. A row
// whose identifier was never presented to the partitioner is a wiring defect.
func Attach(t *Table, spec IDSpec, assignment domain.Assignment) (*Table, error) {
	resolver, err := newIDResolver(t, spec)
	if err != nil {
		return nil, err
	}
	out := &Table{
		Header: append([]string{ClusterColumn, ConfidenceColumn}, t.Header...),
		Rows:   make([][]string, len(t.Rows)),
	}
	for i, row := range t.Rows {
		id, err := resolver.id(row, i+2)
		if err != nil {
			return nil, err
		}
		if _, ok := assignment.Presented[id]; !ok {
			return nil, &domain.UnknownIdentifierError{ID: id}
		}
		cluster, score := "", ""
		if m, ok := assignment.Members[id]; ok {
			cluster = strconv.Itoa(m.ClusterID)
			score = strconv.FormatFloat(m.Confidence, 'f', -1, 64)
		}
		newRow := make([]string, 0, len(row)+2)
		newRow = append(newRow, cluster, score)
		newRow = append(newRow, row...)
		out.Rows[i] = newRow
	}
	return out, nil
}
