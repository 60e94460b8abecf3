package core

// convert.go provides cell-level value helpers shared by the codec, the
// validator and the workbook reader.
//
// These functions handle the messy reality of spreadsheet data:
//   - Empty markers left behind by other tools (nan, NaT, inf)
//   - Thousands separators and stray ".0" suffixes on numbers
//   - Several date layouts, Excel serial dates and RFC 3339 timestamps
//   - Excel formula prefixes (="value")

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// numericRegex validates that a string is a valid numeric format after cleanup.
// Matches integers, decimals, and scientific notation.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// thousandsRegex matches numbers grouped with comma thousands separators.
var thousandsRegex = regexp.MustCompile(`^[+-]?\d{1,3}(,\d{3})+(\.\d+)?$`)

// decimalCommaRegex matches numbers written with a decimal comma (12,5).
var decimalCommaRegex = regexp.MustCompile(`^[+-]?\d+,\d+$`)

// emptyMarkers are textual values treated as "no value".
var emptyMarkers = map[string]bool{
	"nan":  true,
	"nat":  true,
	"inf":  true,
	"-inf": true,
}

// Timestamp layouts tried before plain date layouts.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"02-01-2006 15:04:05",
}

// Date layouts, day-first before month-first.
var dateLayouts = []string{
	"2006-01-02",
	"02-01-2006", "2-1-2006",
	"02/01/2006", "2/1/2006",
	"02.01.2006", "2.1.2006",
	"2006/01/02",
	"2 January 2006", "2 Jan 2006", "Jan 2, 2006",
}

// IsEmpty reports whether v represents "no value": nil, NaN, ±Inf, a
// blank string or one of the textual empty markers.
func IsEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		s := strings.TrimSpace(x)
		return s == "" || emptyMarkers[strings.ToLower(s)]
	case float64:
		return math.IsNaN(x) || math.IsInf(x, 0)
	case float32:
		f := float64(x)
		return math.IsNaN(f) || math.IsInf(f, 0)
	case *string:
		return x == nil || IsEmpty(*x)
	case time.Time:
		return x.IsZero()
	}
	return false
}

// CleanCell removes common spreadsheet artifacts from a cell value:
// surrounding whitespace, an Excel formula prefix (="...") and quotes.
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	}

	return strings.Trim(s, `"`)
}

// toFloat parses v as a number. Strings may carry thousands separators.
func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, !math.IsNaN(x) && !math.IsInf(x, 0)
	case float32:
		return toFloat(float64(x))
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint64:
		return float64(x), true
	case bool:
		return 0, false
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0, false
		}
		switch {
		case numericRegex.MatchString(s):
		case thousandsRegex.MatchString(s):
			s = strings.ReplaceAll(s, ",", "")
		case decimalCommaRegex.MatchString(s):
			s = strings.Replace(s, ",", ".", 1)
		default:
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// isWhole reports whether f has no fractional part and fits in an int64.
func isWhole(f float64) bool {
	return f == math.Trunc(f) && fitsInt64(f)
}

// fitsInt64 reports whether f truncates to an int64 without overflow.
func fitsInt64(f float64) bool {
	return math.Abs(f) < 1<<63
}

// formatNumber renders a float without a trailing ".0" for whole values.
func formatNumber(f float64) string {
	if isWhole(f) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// stringify is the default textual conversion used for STRING and unknown
// types. Whole floats render without a decimal part.
func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return formatNumber(x)
	case float32:
		return formatNumber(float64(x))
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 {
			return x.Format("2006-01-02")
		}
		return x.Format(time.RFC3339)
	case fmt.Stringer:
		return x.String()
	}
	return fmt.Sprint(v)
}

// parseYear extracts a four-digit year from a bare year value such as
// 2015, "2015", "2015.0" or "2,015".
func parseYear(v any) (int, bool) {
	if s, ok := v.(string); ok {
		s = strings.TrimSpace(s)
		s = strings.TrimSuffix(s, ".0")
		s = strings.ReplaceAll(s, ",", "")
		v = s
	}
	f, ok := toFloat(v)
	if !ok || !isWhole(f) {
		return 0, false
	}
	y := int(f)
	if y < 1000 || y > 9999 {
		return 0, false
	}
	return y, true
}

// parseTime interprets v as a point in time. Bare four-digit years are
// January 1st of that year; other numbers are Excel serial dates.
func parseTime(v any) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		return x.UTC(), !x.IsZero()
	case *time.Time:
		if x == nil {
			return time.Time{}, false
		}
		return parseTime(*x)
	}

	if y, ok := parseYear(v); ok {
		return time.Date(y, time.January, 1, 0, 0, 0, 0, time.UTC), true
	}

	if f, ok := toFloat(v); ok {
		if f <= 0 {
			return time.Time{}, false
		}
		t, err := excelize.ExcelDateToTime(f, false)
		if err != nil {
			return time.Time{}, false
		}
		return t.UTC(), true
	}

	s, ok := v.(string)
	if !ok {
		return time.Time{}, false
	}
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
