package export

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
	"sort"

	"github.com/blackcore/queryengine/pkg/qerr"
)

// writeDelimited serves both CSV and TSV: the header is derived from the
// first row's keys (sorted, for a deterministic column order) and every
// row thereafter is projected onto that column set, missing fields blank.
func writeDelimited(iter RecordIterator, path string, opts Options, delim rune, onProgress ProgressFunc) error {
	f, err := os.Create(path)
	if err != nil {
		return qerr.Wrap(qerr.ExportFailed, "export.writeDelimited", "export failed", err)
	}
	defer f.Close()

	buf := bufio.NewWriterSize(f, 64*1024)
	w := csv.NewWriter(buf)
	if opts.Delimiter != 0 {
		w.Comma = opts.Delimiter
	} else {
		w.Comma = delim
	}

	var columns []string
	var rows int64
	chunk := opts.chunkSize()
	written := 0

	for {
		row, ok, err := iter.Next()
		if err != nil {
			return qerr.Wrap(qerr.ExportFailed, "export.writeDelimited", "export failed", err)
		}
		if !ok {
			break
		}

		if columns == nil {
			columns = sortedKeys(row)
			if !opts.NoHeader {
				_ = w.Write(columns)
			}
		}

		record := make([]string, len(columns))
		for i, col := range columns {
			record[i] = stringify(row[col])
		}
		if err := w.Write(record); err != nil {
			return qerr.Wrap(qerr.ExportFailed, "export.writeDelimited", "export failed", err)
		}

		rows++
		written++
		if written >= chunk {
			w.Flush()
			if err := w.Error(); err != nil {
				return qerr.Wrap(qerr.ExportFailed, "export.writeDelimited", "export failed", err)
			}
			written = 0
		}
		if onProgress != nil {
			onProgress(rows, 0)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return qerr.Wrap(qerr.ExportFailed, "export.writeDelimited", "export failed", err)
	}
	return buf.Flush()
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func stringify(v interface{}) string {
	if v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprintf("%v", t)
	}
}
