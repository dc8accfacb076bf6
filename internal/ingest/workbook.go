package ingest

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ParseWorkbook reads match rows from the first sheet of an Excel workbook.
// League datasets circulate as .xlsx exports as often as plain CSV; both
// feed the same positional header mapping and schema check.
func ParseWorkbook(r io.Reader) (*ParseResult, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}

	var header []string
	result := &ParseResult{}
	for _, row := range rows {
		if isEmptyRow(row) {
			continue
		}
		if header == nil {
			header = trimRow(row)
			if missing := missingRequired(header); len(missing) > 0 {
				return nil, &SchemaError{Missing: missing}
			}
			result.Header = header
			continue
		}
		result.Records = append(result.Records, mapRow(header, trimRow(row)))
	}
	if header == nil {
		return nil, &SchemaError{Missing: RequiredColumns}
	}
	return result, nil
}

func isEmptyRow(row []string) bool {
	for _, cell := range row {
		if cell != "" {
			return false
		}
	}
	return true
}

func trimRow(row []string) []string {
	out := make([]string, len(row))
	for i, cell := range row {
		out[i] = strings.TrimSpace(cell)
	}
	return out
}
