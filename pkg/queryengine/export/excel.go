package export

import (
	"fmt"

	"github.com/blackcore/queryengine/pkg/qerr"
	"github.com/xuri/excelize/v2"
)

const excelSheetName = "Sheet1"

// writeExcel uses excelize's StreamWriter, which keeps rows on disk as
// they are written instead of building the whole sheet in memory — the
// same chunked-without-materializing contract as the other writers.
func writeExcel(iter RecordIterator, path string, opts Options, onProgress ProgressFunc) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(excelSheetName)
	if err != nil {
		return qerr.Wrap(qerr.ExportFailed, "export.writeExcel", "export failed", err)
	}
	f.SetActiveSheet(index)

	sw, err := f.NewStreamWriter(excelSheetName)
	if err != nil {
		return qerr.Wrap(qerr.ExportFailed, "export.writeExcel", "export failed", err)
	}

	var columns []string
	var rows int64
	rowNum := 1

	for {
		row, ok, err := iter.Next()
		if err != nil {
			return qerr.Wrap(qerr.ExportFailed, "export.writeExcel", "export failed", err)
		}
		if !ok {
			break
		}

		if columns == nil {
			columns = sortedKeys(row)
			if !opts.NoHeader {
				header := make([]interface{}, len(columns))
				for i, c := range columns {
					header[i] = c
				}
				cell, _ := excelize.CoordinatesToCellName(1, rowNum)
				if err := sw.SetRow(cell, header); err != nil {
					return qerr.Wrap(qerr.ExportFailed, "export.writeExcel", "export failed", err)
				}
				rowNum++
			}
		}

		values := make([]interface{}, len(columns))
		for i, col := range columns {
			values[i] = row[col]
		}
		cell, _ := excelize.CoordinatesToCellName(1, rowNum)
		if err := sw.SetRow(cell, values); err != nil {
			return qerr.Wrap(qerr.ExportFailed, "export.writeExcel", "export failed", err)
		}
		rowNum++
		rows++

		if onProgress != nil {
			onProgress(rows, 0)
		}
	}

	if err := sw.Flush(); err != nil {
		return qerr.Wrap(qerr.ExportFailed, "export.writeExcel", "export failed", err)
	}
	if err := f.SaveAs(path); err != nil {
		return qerr.Wrap(qerr.ExportFailed, fmt.Sprintf("export.writeExcel: save %s", path), "export failed", err)
	}
	return nil
}
