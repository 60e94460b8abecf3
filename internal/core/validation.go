package core

// validation.go checks an uploaded Data sheet against the dataset
// configuration and the API metadata before anything is translated.
//
// Validation happens at three levels, all of which always run:
//  1. Column set: required configured columns present, no unknown columns
//  2. System columns: identifier and objectType present and filled,
//     objectType equal to the configured type
//  3. Cells: required, type, year range and enumerated-value checks
//
// Messages are in Dutch; they are shown verbatim to the people editing the
// spreadsheet.

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
)

// Validation messages.
const (
	msgSystemColumnMissing = "Verplichte systeemkolom ontbreekt"
	msgSystemColumnBlank   = "Verplichte systeemkolom mag niet leeg zijn"
	msgColumnMissing       = "Verplichte kolom ontbreekt"
	msgUnknownColumn       = "Onbekende kolom aanwezig"
	msgRequiredBlank       = "Verplicht veld mag niet leeg zijn"
	msgObjectTypeMismatch  = "ObjectType komt niet overeen met configuratie"
	msgNotText             = "Waarde moet een tekst zijn"
	msgNotNumber           = "Waarde moet een getal zijn"
	msgNotBoolean          = "Waarde moet Ja, Nee of leeg zijn"
	msgNotDate             = "Waarde moet een geldige datum zijn"
	msgNotYear             = "Waarde moet een geldig jaartal zijn"
	msgNotOption           = "Waarde moet één van de toegestane opties zijn"

	foundColumnMissing = "Kolom ontbreekt"
	wantColumnPresent  = "Kolom moet aanwezig zijn"
	foundExtraColumn   = "Extra kolom"
	wantConfigured     = "Kolom niet gedefinieerd in configuratie"
	foundBlankValue    = "Lege waarde"
	wantNonBlankValue  = "Niet-lege waarde"
	foundBlank         = "Leeg"
	wantNonBlank       = "Niet leeg"
)

// RowRef is a 1-based sheet row including the header offset. The zero
// value stands for column-level problems and renders as "N/A".
type RowRef int

// NoRow marks a column-level validation error.
const NoRow RowRef = 0

func (r RowRef) String() string {
	if r == NoRow {
		return "N/A"
	}
	return strconv.Itoa(int(r))
}

// MarshalJSON renders row numbers as numbers and NoRow as "N/A".
func (r RowRef) MarshalJSON() ([]byte, error) {
	if r == NoRow {
		return []byte(`"N/A"`), nil
	}
	return []byte(strconv.Itoa(int(r))), nil
}

// UnmarshalJSON accepts both forms produced by MarshalJSON.
func (r *RowRef) UnmarshalJSON(b []byte) error {
	if string(b) == `"N/A"` {
		*r = NoRow
		return nil
	}
	var n int
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("row reference: %w", err)
	}
	*r = RowRef(n)
	return nil
}

// ValidationError is one problem found in an uploaded sheet.
type ValidationError struct {
	Row      RowRef `json:"row"`
	Column   string `json:"column"`
	Error    string `json:"error"`
	Found    string `json:"found"`
	Expected string `json:"expected"`
}

func (e ValidationError) String() string {
	return fmt.Sprintf("Rij %s, kolom %q: %s (gevonden: %s, verwacht: %s)",
		e.Row, e.Column, e.Error, e.Found, e.Expected)
}

// Blocking reports whether errs should stop an import. Any error blocks.
func Blocking(errs []ValidationError) bool {
	return len(errs) > 0
}

// TableValidator validates sheets for one dataset.
type TableValidator struct {
	cfg *DatasetConfig
	mm  MetadataMap
}

// NewTableValidator creates a validator for cfg with resolved metadata mm.
func NewTableValidator(cfg *DatasetConfig, mm MetadataMap) *TableValidator {
	return &TableValidator{cfg: cfg, mm: mm}
}

// Validate runs every check and returns all problems found.
func (v *TableValidator) Validate(t *Table) []ValidationError {
	var errs []ValidationError
	errs = append(errs, v.validateColumns(t)...)
	errs = append(errs, v.validateIdentifier(t)...)
	errs = append(errs, v.validateObjectType(t)...)
	errs = append(errs, v.validateCells(t)...)
	return errs
}

// configuredColumns returns the accepted headers in config order.
func (v *TableValidator) configuredColumns() []string {
	cols := []string{ColumnObjectType, ColumnIdentifier}
	for _, a := range v.cfg.Attributes {
		cols = append(cols, a.ExcelColumnName)
	}
	if v.cfg.HasParent() {
		cols = append(cols, v.cfg.ParentIdentifier)
	}
	return lo.Uniq(cols)
}

// columnRequired reports whether any attribute behind header is required.
func (v *TableValidator) columnRequired(header string) bool {
	return lo.SomeBy(v.cfg.Attributes, func(a AttributeMapping) bool {
		return a.ExcelColumnName == header && v.mm[a.AttributeName].Required
	})
}

func (v *TableValidator) validateColumns(t *Table) []ValidationError {
	var errs []ValidationError
	configured := v.configuredColumns()

	for _, col := range configured {
		if t.HasColumn(col) || !v.columnRequired(col) {
			continue
		}
		errs = append(errs, ValidationError{
			Row: NoRow, Column: col, Error: msgColumnMissing,
			Found: foundColumnMissing, Expected: wantColumnPresent,
		})
	}

	for _, col := range t.Columns {
		if slices.Contains(configured, col) {
			continue
		}
		errs = append(errs, ValidationError{
			Row: NoRow, Column: col, Error: msgUnknownColumn,
			Found: foundExtraColumn, Expected: wantConfigured,
		})
	}
	return errs
}

func (v *TableValidator) validateIdentifier(t *Table) []ValidationError {
	values := t.Column(ColumnIdentifier)
	if values == nil {
		return []ValidationError{{
			Row: NoRow, Column: ColumnIdentifier, Error: msgSystemColumnMissing,
			Found: foundColumnMissing, Expected: wantColumnPresent,
		}}
	}

	var errs []ValidationError
	for i, val := range values {
		if IsEmpty(val) {
			errs = append(errs, ValidationError{
				Row: RowRef(SheetRow(i)), Column: ColumnIdentifier, Error: msgSystemColumnBlank,
				Found: foundBlankValue, Expected: wantNonBlankValue,
			})
		}
	}
	return errs
}

func (v *TableValidator) validateObjectType(t *Table) []ValidationError {
	values := t.Column(ColumnObjectType)
	if values == nil {
		return []ValidationError{{
			Row: NoRow, Column: ColumnObjectType, Error: msgSystemColumnMissing,
			Found: foundColumnMissing, Expected: wantColumnPresent,
		}}
	}

	var errs []ValidationError
	for i, val := range values {
		row := RowRef(SheetRow(i))
		switch {
		case IsEmpty(val):
			errs = append(errs, ValidationError{
				Row: row, Column: ColumnObjectType, Error: msgSystemColumnBlank,
				Found: foundBlankValue, Expected: wantNonBlankValue,
			})
		case strings.TrimSpace(stringify(val)) != v.cfg.ObjectType:
			errs = append(errs, ValidationError{
				Row: row, Column: ColumnObjectType, Error: msgObjectTypeMismatch,
				Found: stringify(val), Expected: v.cfg.ObjectType,
			})
		}
	}
	return errs
}

func (v *TableValidator) validateCells(t *Table) []ValidationError {
	var errs []ValidationError
	seen := make(map[string]bool)

	for _, a := range v.cfg.Attributes {
		col := a.ExcelColumnName
		if seen[col] {
			continue
		}
		seen[col] = true

		idx := t.ColumnIndex(col)
		if idx < 0 {
			continue
		}
		meta := v.mm[a.AttributeName]

		for r := range t.Rows {
			val := t.Cell(r, idx)
			row := RowRef(SheetRow(r))

			if IsEmpty(val) {
				if meta.Required {
					errs = append(errs, ValidationError{
						Row: row, Column: col, Error: msgRequiredBlank,
						Found: foundBlank, Expected: wantNonBlank,
					})
				}
				continue
			}

			if e, ok := checkType(val, meta); !ok {
				e.Row, e.Column = row, col
				errs = append(errs, e)
			}
			if meta.IsYear() {
				if y, ok := parseYear(val); !ok || y < MinYear || y > MaxYear {
					errs = append(errs, ValidationError{
						Row: row, Column: col, Error: msgNotYear,
						Found: stringify(val), Expected: fmt.Sprintf("jaartal tussen %d-%d", MinYear, MaxYear),
					})
				}
			}
			if len(meta.Options) > 0 && !slices.Contains(meta.Options, stringify(val)) {
				errs = append(errs, ValidationError{
					Row: row, Column: col, Error: msgNotOption,
					Found: stringify(val), Expected: "één van: " + strings.Join(meta.Options, ", "),
				})
			}
		}
	}
	return errs
}

// checkType checks val against the field kind. Row and column of the
// returned error are filled in by the caller.
func checkType(val any, meta FieldMetadata) (ValidationError, bool) {
	found := stringify(val)
	switch meta.Kind {
	case KindString:
		switch val.(type) {
		case string, int, int64, float64, float32:
			return ValidationError{}, true
		}
		return ValidationError{Error: msgNotText, Found: found, Expected: "string"}, false

	case KindNumber, KindInt, KindFloat:
		if _, ok := toFloat(val); ok {
			return ValidationError{}, true
		}
		return ValidationError{Error: msgNotNumber, Found: found, Expected: "getal"}, false

	case KindBoolean:
		if _, ok := parseBool(val); ok && !isAPIBool(val) {
			return ValidationError{}, true
		}
		return ValidationError{Error: msgNotBoolean, Found: found, Expected: "Ja, Nee of leeg"}, false

	case KindDate:
		if _, ok := parseTime(val); ok {
			return ValidationError{}, true
		}
		example := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC).Format(DateDayFirst.layout())
		return ValidationError{Error: msgNotDate, Found: found, Expected: "datum (bijv. " + example + ")"}, false
	}
	return ValidationError{}, true
}

// isAPIBool reports whether val is spelled the API way (true/false), which
// is not accepted in a sheet.
func isAPIBool(val any) bool {
	switch x := val.(type) {
	case bool:
		return true
	case string:
		s := strings.ToLower(strings.TrimSpace(x))
		return s == "true" || s == "false"
	}
	return false
}
