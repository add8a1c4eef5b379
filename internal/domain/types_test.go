package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSortIDs(t *testing.T) {
	ids := []ID{"10", "b", "2", "a", "1", "007"}
	SortIDs(ids)
	assert.Equal(t, []ID{"1", "2", "007", "10", "a", "b"}, ids)
}

func TestNewPairOrders(t *testing.T) {
	p := NewPair("12", "3")
	assert.Equal(t, ID("3"), p.Left)
	assert.Equal(t, ID("12"), p.Right)
	assert.Equal(t, p, NewPair("3", "12"))
}

func TestParseLabel(t *testing.T) {
	tests := []struct {
		in      string
		want    Label
		wantErr bool
	}{
		{in: "y", want: LabelMatch},
		{in: "Match", want: LabelMatch},
		{in: "n", want: LabelDistinct},
		{in: "distinct", want: LabelDistinct},
		{in: "u", want: LabelUncertain},
		{in: "maybe", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLabel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValueMissingIsDistinctFromEmpty(t *testing.T) {
	r := Record{ID: "1", Values: map[string]Value{"name": Text("")}}
	assert.True(t, r.Get("name").Present)
	assert.False(t, r.Get("city").Present)
	assert.Equal(t, Missing, r.Get("city"))
}

func TestSnapshotRoundTrip(t *testing.T) {
	fields := []FieldSpec{{Name: "name", Type: FieldString}, {Name: "zip", Type: FieldString}}
	r := Record{ID: "4", Values: map[string]Value{"name": Text("John Smith"), "zip": Missing}}
	snap := r.Snapshot(fields)
	assert.Equal(t, map[string]string{"name": "John Smith"}, snap)

	back := RecordFromSnapshot("4", snap)
	assert.Equal(t, Text("John Smith"), back.Get("name"))
	assert.False(t, back.Get("zip").Present)
}

func TestNewAssignment(t *testing.T) {
	records := RecordSet{"1": {ID: "1"}, "2": {ID: "2"}, "3": {ID: "3"}}
	clusters := []Cluster{{ID: 0, Members: []Member{{ID: "1", Confidence: 0.9}, {ID: "2", Confidence: 0.8}}}}
	a := NewAssignment(records, clusters)

	assert.Len(t, a.Presented, 3)
	assert.Equal(t, Membership{ClusterID: 0, Confidence: 0.8}, a.Members["2"])
	_, ok := a.Members["3"]
	assert.False(t, ok)
}

func TestErrorsAreTyped(t *testing.T) {
	var err error = &UnknownIdentifierError{ID: "99"}
	var target *UnknownIdentifierError
	require.True(t, errors.As(err, &target))
	assert.Equal(t, ID("99"), target.ID)
	assert.Contains(t, (&MalformedRecordError{Row: 3, Column: "id", Reason: "empty"}).Error(), `column "id"`)
	assert.Contains(t, (&InsufficientTrainingDataError{Matches: 2}).Error(), "2 match, 0 distinct")
}
