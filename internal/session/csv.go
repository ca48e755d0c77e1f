package session

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// csvHeader is the downstream export row shape.
var csvHeader = []string{"raw_input", "common_name", "latin_name", "matched_level", "status", "locked"}

// WriteCSV writes the batch in row order, one record per row plus a
// header line. Unresolved rows export with empty name columns so the
// record count always equals the row count.
func WriteCSV(w io.Writer, rows []*Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, row := range rows {
		var common, latin, level, status string
		if row.Result != nil {
			status = string(row.Result.Status)
			if c := row.Result.Candidate; c != nil {
				common = c.Common()
				latin = c.Latin()
				level = string(c.Level)
			}
		}
		record := []string{row.RawInput, common, latin, level, status, strconv.FormatBool(row.Locked)}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write csv record: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
