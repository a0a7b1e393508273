package export

import (
	"encoding/json"
	"fmt"

	"github.com/blackcore/queryengine/pkg/qerr"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

// writeParquet infers a flat JSON schema from the first row (every field
// becomes an optional column; unrecognized value types fall back to
// UTF8 string) and streams the rest through parquet-go's JSON writer,
// which buffers only rowGroupSize rows at a time before flushing a group.
func writeParquet(iter RecordIterator, path string, opts Options, onProgress ProgressFunc) error {
	first, ok, err := iter.Next()
	if err != nil {
		return qerr.Wrap(qerr.ExportFailed, "export.writeParquet", "reading first row", err)
	}
	if !ok {
		return qerr.New(qerr.ExportFailed, "export.writeParquet", "no rows to export")
	}

	columns := sortedKeys(first)
	schema := inferJSONSchema(columns, first)

	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return qerr.Wrap(qerr.ExportFailed, "export.writeParquet", "opening output file", err)
	}
	defer fw.Close()

	pw, err := writer.NewJSONWriter(schema, fw, 4)
	if err != nil {
		return qerr.Wrap(qerr.ExportFailed, "export.writeParquet", "creating parquet writer", err)
	}
	pw.RowGroupSize = int64(opts.chunkSize()) * 1024 * 1024
	pw.CompressionType = compressionCodec(opts.Compression)

	var rows int64
	writeRow := func(row map[string]interface{}) error {
		b, err := json.Marshal(projectRow(columns, row))
		if err != nil {
			return err
		}
		if err := pw.Write(string(b)); err != nil {
			return err
		}
		rows++
		if onProgress != nil {
			onProgress(rows, 0)
		}
		return nil
	}

	if err := writeRow(first); err != nil {
		return qerr.Wrap(qerr.ExportFailed, "export.writeParquet", "writing row", err)
	}

	for {
		row, ok, err := iter.Next()
		if err != nil {
			return qerr.Wrap(qerr.ExportFailed, "export.writeParquet", "reading row", err)
		}
		if !ok {
			break
		}
		if err := writeRow(row); err != nil {
			return qerr.Wrap(qerr.ExportFailed, "export.writeParquet", "writing row", err)
		}
	}

	if err := pw.WriteStop(); err != nil {
		return qerr.Wrap(qerr.ExportFailed, "export.writeParquet", "finalizing file", err)
	}
	return nil
}

// projectRow fills in a null placeholder for any column missing from row,
// so every emitted JSON object matches the schema derived from the first
// row even when later rows have sparser fields.
func projectRow(columns []string, row map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(columns))
	for _, c := range columns {
		out[c] = row[c]
	}
	return out
}

func inferJSONSchema(columns []string, sample map[string]interface{}) string {
	type field struct {
		Tag    string        `json:"Tag"`
		Fields []interface{} `json:"Fields,omitempty"`
	}
	tags := make([]string, 0, len(columns))
	for _, c := range columns {
		tags = append(tags, fmt.Sprintf(`{"Tag":"name=%s, type=%s, repetitiontype=OPTIONAL"}`, c, parquetType(sample[c])))
	}
	schema := `{"Tag":"name=row, repetitiontype=REQUIRED","Fields":[` + join(tags) + `]}`
	return schema
}

func parquetType(v interface{}) string {
	switch v.(type) {
	case float64, float32, int, int64:
		return "DOUBLE"
	case bool:
		return "BOOLEAN"
	default:
		return "BYTE_ARRAY, convertedtype=UTF8"
	}
}

func join(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ","
		}
		out += p
	}
	return out
}

func compressionCodec(name string) parquet.CompressionCodec {
	switch name {
	case "gzip":
		return parquet.CompressionCodec_GZIP
	case "none":
		return parquet.CompressionCodec_UNCOMPRESSED
	default:
		return parquet.CompressionCodec_SNAPPY
	}
}
