package core

// codec.go converts single values between their spreadsheet and API forms.
//
// Both directions short-circuit empty input to nil before dispatching on
// the field's resolved kind. Unknown kinds behave as strings.
//
// Dates carry one quirk from the API: end-of-period values are stored as
// 23:00 UTC on the previous day (midnight local time). Exports shift those
// values forward one hour before formatting, and for year-only fields a
// 31 December 23:00 value counts as the next year.

import (
	"errors"
	"strings"
	"time"
)

// Spreadsheet representations of API booleans.
const (
	BoolYes = "Ja"
	BoolNo  = "Nee"
)

var errNotConvertible = errors.New("value not convertible")

// ToAPI converts a spreadsheet cell to its API representation. A non-nil
// error is a conversion warning: the returned value is nil and the caller
// continues.
func ToAPI(raw any, meta FieldMetadata) (any, error) {
	if IsEmpty(raw) {
		return nil, nil
	}
	if s, ok := raw.(string); ok {
		raw = strings.TrimSpace(s)
	}

	switch meta.Kind {
	case KindInt:
		f, ok := toFloat(raw)
		if !ok || !fitsInt64(f) {
			return nil, errNotConvertible
		}
		return int64(f), nil

	case KindFloat, KindNumber:
		f, ok := toFloat(raw)
		if !ok {
			return stringify(raw), nil
		}
		if isWhole(f) {
			return int64(f), nil
		}
		return formatNumber(f), nil

	case KindBoolean:
		b, ok := parseBool(raw)
		if !ok {
			return nil, errNotConvertible
		}
		if b {
			return "true", nil
		}
		return "false", nil

	case KindDate:
		return dateToAPI(raw, meta.DateFormat)

	default:
		return stringify(raw), nil
	}
}

// ToSpreadsheet converts an API value to its spreadsheet representation.
// A non-nil error is a conversion warning and the cell is left empty.
func ToSpreadsheet(apiValue any, meta FieldMetadata) (any, error) {
	if IsEmpty(apiValue) {
		return nil, nil
	}

	switch meta.Kind {
	case KindBoolean:
		b, ok := parseBool(apiValue)
		if !ok {
			return nil, errNotConvertible
		}
		if b {
			return BoolYes, nil
		}
		return BoolNo, nil

	case KindDate:
		return dateToSpreadsheet(apiValue, meta.DateFormat)

	case KindInt, KindFloat, KindNumber:
		f, ok := toFloat(apiValue)
		if !ok {
			return stringify(apiValue), nil
		}
		if isWhole(f) {
			return int64(f), nil
		}
		return f, nil

	default:
		switch apiValue.(type) {
		case string, int, int64, float64:
			return apiValue, nil
		}
		return stringify(apiValue), nil
	}
}

// parseBool accepts the API pair true/false and the spreadsheet pair
// Ja/Nee, case-insensitively.
func parseBool(v any) (bool, bool) {
	switch x := v.(type) {
	case bool:
		return x, true
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "true", "ja":
			return true, true
		case "false", "nee":
			return false, true
		}
	}
	return false, false
}

// dateToAPI formats a spreadsheet date for the API. A bare year in a
// full-date format stands for the last day of that year.
func dateToAPI(raw any, format DateFormat) (any, error) {
	if format == "" {
		format = DateISO
	}

	if y, ok := parseYear(raw); ok {
		end := time.Date(y, time.December, 31, 0, 0, 0, 0, time.UTC)
		return end.Format(format.layout()), nil
	}

	t, ok := parseTime(raw)
	if !ok {
		return nil, errNotConvertible
	}
	return t.Format(format.layout()), nil
}

// dateToSpreadsheet formats an API timestamp for the sheet.
func dateToSpreadsheet(v any, format DateFormat) (any, error) {
	if format == "" {
		format = DateISO
	}

	t, ok := parseTime(v)
	if !ok {
		return nil, errNotConvertible
	}

	if format == DateYear {
		return yearOf(t), nil
	}

	if t.Hour() == 23 && t.Minute() == 0 && t.Second() == 0 {
		t = t.Add(time.Hour)
	}
	return t.Format(format.layout()), nil
}

// yearOf returns the four-digit year for t, counting 31 December 23:00 as
// the start of the next year.
func yearOf(t time.Time) string {
	y := t.Year()
	if t.Month() == time.December && t.Day() == 31 && t.Hour() == 23 {
		y++
	}
	return time.Date(y, 1, 1, 0, 0, 0, 0, time.UTC).Format("2006")
}
