package ingest

import (
	"fmt"
	"strings"

	"matchstage/pkg/contracts/domain"
)

// RequiredColumns are the header columns every upload must carry. All other
// columns are passed through opaquely.
var RequiredColumns = []string{domain.ColHomeTeam, domain.ColAwayTeam}

// SchemaError reports a header missing one or more required columns. The
// whole parse is rejected; no partial record set is returned.
type SchemaError struct {
	Missing []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("input header missing required columns: %s", strings.Join(e.Missing, ", "))
}

// ParseResult holds the ordered header and one RawRecord per data row.
type ParseResult struct {
	Header  []string
	Records []domain.RawRecord
}

// Parse splits raw delimited text into records. The first non-empty line is
// the header; each subsequent non-empty line maps header[i] -> value[i]
// positionally. Rows shorter than the header map their missing trailing
// columns to "" rather than failing, mirroring the tolerant behavior real
// CSV exports require. Excess values beyond the header are dropped.
func Parse(text string) (*ParseResult, error) {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return nil, &SchemaError{Missing: RequiredColumns}
	}

	header := splitRow(lines[0])
	if missing := missingRequired(header); len(missing) > 0 {
		return nil, &SchemaError{Missing: missing}
	}

	result := &ParseResult{Header: header}
	for _, line := range lines[1:] {
		result.Records = append(result.Records, mapRow(header, splitRow(line)))
	}
	return result, nil
}

func splitRow(line string) []string {
	fields := strings.Split(line, ",")
	for i, f := range fields {
		fields[i] = strings.TrimSpace(f)
	}
	return fields
}

// mapRow maps values onto header columns positionally. Column identifiers
// are keys, not positions, from here on.
func mapRow(header, values []string) domain.RawRecord {
	rec := make(domain.RawRecord, len(header))
	for i, col := range header {
		if i < len(values) {
			rec[col] = values[i]
		} else {
			rec[col] = ""
		}
	}
	return rec
}

func missingRequired(header []string) []string {
	var missing []string
	for _, req := range RequiredColumns {
		found := false
		for _, col := range header {
			if col == req {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, req)
		}
	}
	return missing
}
