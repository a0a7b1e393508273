package export

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sliceIterator struct {
	rows []map[string]interface{}
	pos  int
}

func (s *sliceIterator) Next() (map[string]interface{}, bool, error) {
	if s.pos >= len(s.rows) {
		return nil, false, nil
	}
	row := s.rows[s.pos]
	s.pos++
	return row, true, nil
}

func sampleRows() []map[string]interface{} {
	return []map[string]interface{}{
		{"id": "1", "name": "Alice", "age": 30.0},
		{"id": "2", "name": "Bob", "age": 41.0},
		{"id": "3", "name": "Cara", "age": 27.0},
	}
}

func TestWriteCSVProducesHeaderAndSortedColumns(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.csv")

	iter := &sliceIterator{rows: sampleRows()}
	var progressed int64
	require.NoError(t, Write(iter, FormatCSV, path, Options{}, func(rows, _ int64) { progressed = rows }))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	r := csv.NewReader(bufio.NewReader(f))
	records, err := r.ReadAll()
	require.NoError(t, err)

	require.Len(t, records, 4) // header + 3 rows
	assert.Equal(t, []string{"age", "id", "name"}, records[0])
	assert.Equal(t, int64(3), progressed)
}

func TestWriteTSVUsesTabDelimiter(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.tsv")

	iter := &sliceIterator{rows: sampleRows()}
	require.NoError(t, Write(iter, FormatTSV, path, Options{}, nil))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "\t")
}

func TestWriteJSONLOneObjectPerLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.jsonl")

	iter := &sliceIterator{rows: sampleRows()}
	require.NoError(t, Write(iter, FormatJSONL, path, Options{}, nil))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var lines int
	for scanner.Scan() {
		var obj map[string]interface{}
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &obj))
		lines++
	}
	assert.Equal(t, 3, lines)
}

func TestWriteJSONEmitsArray(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.json")

	iter := &sliceIterator{rows: sampleRows()}
	require.NoError(t, Write(iter, FormatJSON, path, Options{}, nil))

	content, err := os.ReadFile(path)
	require.NoError(t, err)

	var out []map[string]interface{}
	require.NoError(t, json.Unmarshal(content, &out))
	assert.Len(t, out, 3)
}

func TestWriteUnsupportedFormatFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.bin")

	iter := &sliceIterator{rows: sampleRows()}
	err := Write(iter, Format("xml"), path, Options{}, nil)
	assert.Error(t, err)
}

func TestWriteCSVHandlesEmptyIterator(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.csv")

	iter := &sliceIterator{rows: nil}
	require.NoError(t, Write(iter, FormatCSV, path, Options{}, nil))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Empty(t, string(content))
}
