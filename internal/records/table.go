package records

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// Table is a character-separated file read wholesale: a header and its rows.
type Table struct {
	Header []string
	Rows   [][]string
}

// Column returns the index of a header column, or -1.
func (t *Table) Column(name string) int {
	for i, col := range t.Header {
		if col == name {
			return i
		}
	}
	return -1
}

// Cell returns the trimmed cell of a row, empty if the column is out of range.
func (t *Table) Cell(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[col])
}

// Clone returns a deep copy so callers can derive tables without mutating the source.
func (t *Table) Clone() *Table {
	out := &Table{
		Header: append([]string(nil), t.Header...),
		Rows:   make([][]string, len(t.Rows)),
	}
	for i, row := range t.Rows {
		out.Rows[i] = append([]string(nil), row...)
	}
	return out
}

// Comma picks the separator from the file extension.
func Comma(path string) rune {
	if strings.EqualFold(filepath.Ext(path), ".tsv") {
		return '\t'
	}
	return ','
}

// ReadCSV reads a CSV (or TSV, by extension) file with a header row.
func ReadCSV(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "records: open %s", filepath.Base(path))
	}
	defer f.Close()
	t, err := ReadTable(f, Comma(path))
	if err != nil {
		return nil, eris.Wrapf(err, "records: read %s", filepath.Base(path))
	}
	return t, nil
}

// ReadTable parses separated values from r. The first row is the header.
func ReadTable(r io.Reader, comma rune) (*Table, error) {
	reader := csv.NewReader(r)
	reader.Comma = comma
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, eris.New("records: file has no header row")
	}
	header := make([]string, len(rows[0]))
	for i, cell := range rows[0] {
		header[i] = cleanCell(cell)
	}
	return &Table{Header: header, Rows: rows[1:]}, nil
}

// WriteCSV writes the table atomically through a temporary file.
func WriteCSV(path string, t *Table) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrap(err, "records: create output dir")
		}
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return eris.Wrapf(err, "records: create %s", filepath.Base(tmp))
	}
	if err := WriteTable(f, t, Comma(path)); err != nil {
		f.Close()
		os.Remove(tmp)
		return eris.Wrapf(err, "records: write %s", filepath.Base(path))
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return eris.Wrapf(err, "records: close %s", filepath.Base(tmp))
	}
	if err := os.Rename(tmp, path); err != nil {
		return eris.Wrapf(err, "records: rename %s", filepath.Base(path))
	}
	return nil
}

// WriteTable writes header and rows to w.
func WriteTable(w io.Writer, t *Table, comma rune) error {
	writer := csv.NewWriter(w)
	writer.Comma = comma
	if err := writer.Write(t.Header); err != nil {
		return err
	}
	if err := writer.WriteAll(t.Rows); err != nil {
		return err
	}
	return writer.Error()
}

func cleanCell(v string) string {
	v = strings.TrimPrefix(v, "\ufeff")
	return strings.TrimSpace(v)
}
