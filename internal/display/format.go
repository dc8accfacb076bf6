package display

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"matchstage/pkg/contracts/domain"
)

// Input date layouts accepted by the date rule, tried in order.
var dateLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC3339,
	"02/01/2006",
	"02/01/06",
}

// displayDateLayout is the localized output form, DD-MM-YYYY.
const displayDateLayout = "02-01-2006"

// FormatRow maps a merged candidate to one display string per column, in
// column order. Pure function: formatting the same candidate twice yields
// identical output.
func FormatRow(c *domain.MatchCandidate, columns []string) []string {
	out := make([]string, len(columns))
	for i, col := range columns {
		out[i] = FormatValue(c, col)
	}
	return out
}

// FormatValue renders one column of a candidate according to the column's
// class. Derived features take precedence over raw columns of the same name.
func FormatValue(c *domain.MatchCandidate, col string) string {
	if f, ok := c.Feature(col); ok {
		return formatNumber(f, classOf(col))
	}

	raw, ok := c.Raw(col)
	if !ok {
		return ""
	}

	if classOf(col) == classDate {
		return formatDate(raw)
	}

	if raw == "" {
		return ""
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return formatNumber(f, classOf(col))
	}
	return raw
}

// formatDate renders a parseable calendar date as DD-MM-YYYY and passes
// everything else through unchanged. Never fails on unparsable input.
func formatDate(raw string) string {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format(displayDateLayout)
		}
	}
	return raw
}

func formatNumber(f float64, class columnClass) string {
	switch class {
	case classCount:
		// Counts round half away from zero, consistently.
		return strconv.FormatInt(int64(math.Round(f)), 10)
	case classOdds:
		return fmt.Sprintf("%.2f", f)
	default:
		if f == math.Trunc(f) && !math.IsInf(f, 0) {
			return strconv.FormatInt(int64(f), 10)
		}
		return fmt.Sprintf("%.3f", f)
	}
}
