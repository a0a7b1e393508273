package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/blackcore/queryengine/internal/server"
	"github.com/blackcore/queryengine/pkg/queryengine/export"
	"github.com/blackcore/queryengine/pkg/queryengine/model"
)

var (
	exportDatabase string
	exportFilters  []string
	exportFormat   string
	exportOut      string
)

// exportCmd runs one query and writes its result page straight to disk,
// bypassing the async job manager — useful for scripting and cron. The query
// runs as a single page, which the engine caps at 1000 rows, so at most the
// first 1000 matching rows are written.
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Run a query and write up to its first 1000 rows to a file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if exportDatabase == "" {
			return fmt.Errorf("--database is required")
		}
		filters, err := parseFilterFlags(exportFilters)
		if err != nil {
			return err
		}

		engines, cleanup, err := server.Boot()
		if err != nil {
			return err
		}
		defer cleanup()

		q := model.StructuredQuery{
			Database:   exportDatabase,
			Filters:    filters,
			Pagination: model.Pagination{Page: 1, Size: 1_000_000},
		}

		result, err := engines.Query.Execute(context.Background(), q)
		if err != nil {
			return fmt.Errorf("query failed: %w", err)
		}

		iter := &rowIterator{rows: result.Data}
		if err := export.Write(iter, export.Format(exportFormat), exportOut, export.Options{}, nil); err != nil {
			return fmt.Errorf("export failed: %w", err)
		}

		fmt.Printf("wrote %d rows to %s\n", len(result.Data), exportOut)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportDatabase, "database", "", "database to query")
	exportCmd.Flags().StringArrayVar(&exportFilters, "filter", nil, "filter as field:operator:value, repeatable")
	exportCmd.Flags().StringVar(&exportFormat, "format", "csv", "csv|tsv|json|jsonl|excel|parquet")
	exportCmd.Flags().StringVar(&exportOut, "out", "export.out", "output file path")
}

// parseFilterFlags turns "field:operator:value" CLI flags into model.Filter
// equality/comparison filters. Values are kept as strings; filter.Apply
// coerces against each record field's actual type.
func parseFilterFlags(raw []string) ([]model.Filter, error) {
	out := make([]model.Filter, 0, len(raw))
	for _, f := range raw {
		parts := strings.SplitN(f, ":", 3)
		if len(parts) != 3 {
			return nil, fmt.Errorf("malformed --filter %q, want field:operator:value", f)
		}
		out = append(out, model.Filter{
			Field:    parts[0],
			Operator: model.Operator(parts[1]),
			Value:    parts[2],
		})
	}
	return out, nil
}

type rowIterator struct {
	rows []map[string]interface{}
	pos  int
}

func (it *rowIterator) Next() (map[string]interface{}, bool, error) {
	if it.pos >= len(it.rows) {
		return nil, false, nil
	}
	row := it.rows[it.pos]
	it.pos++
	return row, true, nil
}
