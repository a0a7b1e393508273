// Package export implements the chunked per-format writers of §4.10: each
// writer consumes a record iterator and streams to disk in fixed-size
// chunks without materializing the full result set.
package export

import (
	"github.com/blackcore/queryengine/pkg/qerr"
)

// Format is one of the six supported export formats.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatTSV     Format = "tsv"
	FormatJSON    Format = "json"
	FormatJSONL   Format = "jsonl"
	FormatExcel   Format = "excel"
	FormatParquet Format = "parquet"
)

// RecordIterator yields rows one at a time. Next returns (nil, false, nil)
// at end of stream, or a non-nil error to abort the export.
type RecordIterator interface {
	Next() (map[string]interface{}, bool, error)
}

// Options tunes a writer; zero values fall back to per-format defaults.
type Options struct {
	ChunkSize   int  // default 10000, per §4.10
	NoHeader    bool // CSV/TSV/Excel: suppress the header row (default emits one)
	Pretty      bool // JSON: indent output
	Delimiter   rune // CSV/TSV: field separator override
	Compression string // Parquet: codec name (default "snappy")
}

func (o Options) chunkSize() int {
	if o.ChunkSize > 0 {
		return o.ChunkSize
	}
	return 10000
}

// ProgressFunc is invoked after every row with the running row count, so a
// caller (the export job manager) can update job progress without the
// writer knowing about jobs. The built-in writers do not count bytes: they
// always pass 0 for bytesWritten.
type ProgressFunc func(rowsProcessed, bytesWritten int64)

// Write dispatches to the writer for format, writing to path.
func Write(iter RecordIterator, format Format, path string, opts Options, onProgress ProgressFunc) error {
	switch format {
	case FormatCSV:
		return writeDelimited(iter, path, opts, ',', onProgress)
	case FormatTSV:
		return writeDelimited(iter, path, opts, '\t', onProgress)
	case FormatJSON:
		return writeJSON(iter, path, opts, onProgress)
	case FormatJSONL:
		return writeJSONL(iter, path, opts, onProgress)
	case FormatExcel:
		return writeExcel(iter, path, opts, onProgress)
	case FormatParquet:
		return writeParquet(iter, path, opts, onProgress)
	default:
		return qerr.New(qerr.ExportFailed, "export.Write", "unsupported format: "+string(format))
	}
}
