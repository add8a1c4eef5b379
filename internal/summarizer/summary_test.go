package summarizer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dedupe/internal/records"
)

func clustered() *records.Table {
	return &records.Table{
		Header: []string{records.ClusterColumn, records.ConfidenceColumn, "id", "contributor_name", "amount", "receipt_date", "party"},
		Rows: [][]string{
			{"1", "0.9", "10", "John Smith", "$100.00", "2020-03-01", "DEMOCRAT"},
			{"", "", "11", "Jane Doe", "40", "2020-01-01", "REPUBLICAN"},
			{"1", "0.7", "12", "JOHN SMITH", "1,000", "02/15/2019", "REPUBLICAN"},
			{"0", "0.8", "13", "Mary Jones", "25", "2021-06-30", "DEMOCRAT"},
			{"1", "0.8", "14", "John Smith", "(50)", "not a date", "DEMOCRAT"},
			{"0", "0.8", "15", "MARY JONES", "75", "", "DEMOCRAT"},
		},
	}
}

func TestSummarize(t *testing.T) {
	opts := Options{Fields: []string{"contributor_name"}, SumColumn: "amount", DateColumn: "receipt_date", ShareColumn: "party"}
	got, err := Summarize(clustered(), opts)
	require.NoError(t, err)
	require.Len(t, got, 2)

	zero, one := got[0], got[1]
	assert.Equal(t, 0, zero.ClusterID)
	assert.Equal(t, 2, zero.Size)
	assert.InDelta(t, 0.8, zero.MeanConfidence, 1e-9)
	assert.Equal(t, "MARY JONES", zero.Canonical["contributor_name"], "ties go to the value sorting first")
	assert.InDelta(t, 100, zero.Total, 1e-9)
	assert.InDelta(t, 100, zero.Shares["DEMOCRAT"], 1e-9)

	assert.Equal(t, 1, one.ClusterID)
	assert.Equal(t, 3, one.Size)
	assert.InDelta(t, 0.8, one.MeanConfidence, 1e-9)
	assert.Equal(t, "John Smith", one.Canonical["contributor_name"])
	assert.InDelta(t, 1050, one.Total, 1e-9)
	assert.Equal(t, time.Date(2019, 2, 15, 0, 0, 0, 0, time.UTC), one.First)
	assert.Equal(t, time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC), one.Last)
	assert.InDelta(t, 100*1000.0/1050, one.Shares["REPUBLICAN"], 1e-9)

	table := Table(got, opts)
	assert.Equal(t, []string{
		"Cluster ID", "size", "mean_confidence", "contributor_name", "total_amount",
		"first_receipt_date", "last_receipt_date", "% DEMOCRAT", "% REPUBLICAN",
	}, table.Header)
	assert.Equal(t, []string{"1", "3", "0.8000", "John Smith", "1050.00", "2019-02-15", "2020-03-01", "4.8", "95.2"}, table.Rows[1])
	assert.Equal(t, "0.0", table.Rows[0][8])
}

func TestSummarizeMissingColumns(t *testing.T) {
	_, err := Summarize(&records.Table{Header: []string{"id"}}, Options{})
	assert.Error(t, err)
	_, err = Summarize(clustered(), Options{SumColumn: "total"})
	assert.Error(t, err)
	_, err = Summarize(clustered(), Options{Fields: []string{"zip"}})
	assert.Error(t, err)
}

func TestSummaryPath(t *testing.T) {
	assert.Equal(t, "out/donations_clusters_summary.csv", SummaryPath("out/donations_clusters.csv"))
	assert.Equal(t, "sales_summary.tsv", SummaryPath("sales.tsv"))
	assert.Equal(t, "data_summary.csv", SummaryPath("data"))
}
