package export

import (
	"bufio"
	"encoding/json"
	"os"

	"github.com/blackcore/queryengine/pkg/qerr"
)

// writeJSONL streams one JSON object per line and never buffers more than
// a single row in memory, making it the cheapest format for very large
// result sets.
func writeJSONL(iter RecordIterator, path string, opts Options, onProgress ProgressFunc) error {
	f, err := os.Create(path)
	if err != nil {
		return qerr.Wrap(qerr.ExportFailed, "export.writeJSONL", "export failed", err)
	}
	defer f.Close()

	buf := bufio.NewWriterSize(f, 64*1024)
	enc := json.NewEncoder(buf)

	var rows int64
	chunk := opts.chunkSize()
	written := 0
	for {
		row, ok, err := iter.Next()
		if err != nil {
			return qerr.Wrap(qerr.ExportFailed, "export.writeJSONL", "export failed", err)
		}
		if !ok {
			break
		}
		if err := enc.Encode(row); err != nil {
			return qerr.Wrap(qerr.ExportFailed, "export.writeJSONL", "export failed", err)
		}
		rows++
		written++
		if written >= chunk {
			if err := buf.Flush(); err != nil {
				return qerr.Wrap(qerr.ExportFailed, "export.writeJSONL", "export failed", err)
			}
			written = 0
		}
		if onProgress != nil {
			onProgress(rows, 0)
		}
	}
	return buf.Flush()
}

// writeJSON emits a single top-level JSON array. Rows are streamed as
// individually-marshaled elements so no more than one chunk's worth of
// records is ever held in memory at once.
func writeJSON(iter RecordIterator, path string, opts Options, onProgress ProgressFunc) error {
	f, err := os.Create(path)
	if err != nil {
		return qerr.Wrap(qerr.ExportFailed, "export.writeJSON", "export failed", err)
	}
	defer f.Close()

	buf := bufio.NewWriterSize(f, 64*1024)
	if _, err := buf.WriteString("[\n"); err != nil {
		return qerr.Wrap(qerr.ExportFailed, "export.writeJSON", "export failed", err)
	}

	var rows int64
	chunk := opts.chunkSize()
	written := 0
	first := true

	for {
		row, ok, err := iter.Next()
		if err != nil {
			return qerr.Wrap(qerr.ExportFailed, "export.writeJSON", "export failed", err)
		}
		if !ok {
			break
		}

		var b []byte
		if opts.Pretty {
			b, err = json.MarshalIndent(row, "  ", "  ")
		} else {
			b, err = json.Marshal(row)
		}
		if err != nil {
			return qerr.Wrap(qerr.ExportFailed, "export.writeJSON", "export failed", err)
		}

		if !first {
			if _, err := buf.WriteString(",\n"); err != nil {
				return qerr.Wrap(qerr.ExportFailed, "export.writeJSON", "export failed", err)
			}
		}
		first = false

		if _, err := buf.WriteString("  "); err != nil {
			return qerr.Wrap(qerr.ExportFailed, "export.writeJSON", "export failed", err)
		}
		if _, err := buf.Write(b); err != nil {
			return qerr.Wrap(qerr.ExportFailed, "export.writeJSON", "export failed", err)
		}

		rows++
		written++
		if written >= chunk {
			if err := buf.Flush(); err != nil {
				return qerr.Wrap(qerr.ExportFailed, "export.writeJSON", "export failed", err)
			}
			written = 0
		}
		if onProgress != nil {
			onProgress(rows, 0)
		}
	}

	if _, err := buf.WriteString("\n]\n"); err != nil {
		return qerr.Wrap(qerr.ExportFailed, "export.writeJSON", "export failed", err)
	}
	return buf.Flush()
}
