package compare

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dedupe/internal/domain"
)

func rec(id string, values map[string]string) domain.Record {
	r := domain.Record{ID: domain.ID(id), Values: map[string]domain.Value{}}
	for k, v := range values {
		if v == "" {
			r.Values[k] = domain.Missing
			continue
		}
		r.Values[k] = domain.Text(v)
	}
	return r
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "john smith", Normalize("  JOHN   Smith. "))
	assert.Equal(t, "smith john", Normalize("Smith,John"))
	assert.Equal(t, "123 main st", Normalize("１２３ Main St."))
	assert.Equal(t, []string{"po", "box", "7"}, Tokens("P.O. Box #7"))
}

func TestNewRejectsUnknownType(t *testing.T) {
	_, err := New([]domain.FieldSpec{{Name: "name", Type: "Phonetic"}})
	assert.Error(t, err)
	_, err = New(nil)
	assert.Error(t, err)
}

func TestFeatures(t *testing.T) {
	fields := []domain.FieldSpec{
		{Name: "name", Type: domain.FieldString},
		{Name: "address", Type: domain.FieldText},
		{Name: "zip", Type: domain.FieldString},
	}
	c, err := New(fields)
	require.NoError(t, err)
	assert.Equal(t, 6, c.Dimension())

	a := rec("1", map[string]string{"name": "John Smith", "address": "123 Main St", "zip": "99201"})
	b := rec("2", map[string]string{"name": "john smith", "address": "123 MAIN ST", "zip": ""})
	records := domain.RecordSet{a.ID: a, b.ID: b}
	require.NoError(t, c.Prepare(records))

	f := c.Features(a, b)
	require.Len(t, f, 6)
	assert.Equal(t, []float64{1, 0}, f[0:2], "normalized names are equal")
	assert.InDelta(t, 1.0, f[2], 1e-9)
	assert.Equal(t, 0.0, f[3])
	assert.Equal(t, []float64{0, 1}, f[4:6], "missing zip yields indicator")

	assert.InDelta(t, 1.0, c.Similarity(a, b), 1e-9, "missing fields are excluded from the mean")
}

func TestSimilarityOrdering(t *testing.T) {
	c, err := New([]domain.FieldSpec{{Name: "name", Type: domain.FieldString}, {Name: "city", Type: domain.FieldString}})
	require.NoError(t, err)
	john := rec("1", map[string]string{"name": "John Smith", "city": "Spokane"})
	jon := rec("2", map[string]string{"name": "Jon Smith", "city": "Spokane"})
	jane := rec("3", map[string]string{"name": "Jane Doe", "city": "Seattle"})
	require.NoError(t, c.Prepare(domain.RecordSet{"1": john, "2": jon, "3": jane}))

	assert.Greater(t, c.Similarity(john, jon), c.Similarity(john, jane))
	assert.Equal(t, 0.0, c.Similarity(rec("4", nil), rec("5", nil)))
}
