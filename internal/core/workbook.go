package core

// workbook.go reads and writes the xlsx exchange format.
//
// An exported workbook has two sheets:
//   - Data: the table with a styled header, autofilter, frozen system
//     columns and per-column data validation
//   - Lookup_Lists (hidden): the Ja/Nee list and one column per
//     enumerated field, each exposed as a named range

import (
	"fmt"
	"io"
	"regexp"
	"strconv"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

// Sheet and range names of the exchange format.
const (
	DataSheet       = "Data"
	LookupSheet     = "Lookup_Lists"
	BooleanListName = "BooleanList"
)

// Column width bounds, in characters.
const (
	minColumnWidth = 8
	maxColumnWidth = 50
)

const maxRangeNameLength = 255

// Data validation messages shown in Excel.
const (
	lockedTitle   = "Let op!"
	lockedMessage = "Deze kolom mag niet worden aangepast."
	yearMessage   = "Geef een geldig jaar (1900-2100) op."
	intMessage    = "Geef een geldig geheel getal op."
)

// Year bounds accepted for yyyy date fields.
const (
	MinYear = 1900
	MaxYear = 2100
)

var (
	rangeNameInvalid = regexp.MustCompile(`[^A-Za-z0-9]`)
	cellRefLike      = regexp.MustCompile(`^[A-Za-z]{1,3}[0-9]+$|^[RrCc][0-9]*$|^[Rr][0-9]+[Cc][0-9]+$`)
)

// SanitizeRangeName converts name into an Excel-safe defined name:
// non-alphanumerics become underscores, a leading digit or underscore gets
// an "N" prefix, and the result is capped at 255 characters.
func SanitizeRangeName(name string) string {
	cleaned := rangeNameInvalid.ReplaceAllString(name, "_")
	if cleaned == "" {
		cleaned = "_"
	}
	if c := cleaned[0]; c == '_' || (c >= '0' && c <= '9') {
		cleaned = "N" + cleaned
	}
	if len(cleaned) > maxRangeNameLength {
		cleaned = cleaned[:maxRangeNameLength]
	}
	return cleaned
}

// WorkbookOptions tunes presentation details of an exported workbook.
type WorkbookOptions struct {
	// HighlightAllColumns applies the non Ja/Nee highlight to every data
	// column instead of only BOOLEAN columns.
	HighlightAllColumns bool
}

// WriteWorkbook renders table as an xlsx workbook to w. Column semantics
// come from cfg and mm; the table must come from BuildTable.
func WriteWorkbook(w io.Writer, table *Table, cfg *DatasetConfig, mm MetadataMap, opts WorkbookOptions) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", DataSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := writeDataSheet(f, table); err != nil {
		return err
	}
	if err := formatDataSheet(f, table); err != nil {
		return err
	}

	fields := columnFields(table, cfg, mm)
	ranges, err := writeLookupSheet(f, fields)
	if err != nil {
		return err
	}
	if err := addValidations(f, table, fields, ranges); err != nil {
		return err
	}
	if err := addHighlight(f, table, fields, opts); err != nil {
		return err
	}

	f.SetActiveSheet(0)
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// columnField is the resolved API attribute behind a sheet column.
type columnField struct {
	attribute string
	meta      FieldMetadata
	system    bool
}

func columnFields(table *Table, cfg *DatasetConfig, mm MetadataMap) []columnField {
	mapping := cfg.ColumnsMapping()
	fields := make([]columnField, len(table.Columns))
	for i, header := range table.Columns {
		if header == ColumnObjectType || header == ColumnIdentifier {
			fields[i] = columnField{attribute: header, system: true}
			continue
		}
		attr, ok := mapping[header]
		if !ok {
			attr = header
		}
		fields[i] = columnField{attribute: attr, meta: mm[attr]}
	}
	return fields
}

func writeDataSheet(f *excelize.File, table *Table) error {
	header := make([]any, len(table.Columns))
	for i, c := range table.Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(DataSheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for r, row := range table.Rows {
		cell, _ := excelize.CoordinatesToCellName(1, r+2)
		values := make([]any, len(row))
		copy(values, row)
		if err := f.SetSheetRow(DataSheet, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", r+2, err)
		}
	}
	return nil
}

func formatDataSheet(f *excelize.File, table *Table) error {
	ncols := len(table.Columns)
	if ncols == 0 {
		return nil
	}
	lastCol, _ := excelize.ColumnNumberToName(ncols)

	border := []excelize.Border{
		{Type: "left", Color: "000000", Style: 1},
		{Type: "top", Color: "000000", Style: 1},
		{Type: "right", Color: "000000", Style: 1},
		{Type: "bottom", Color: "000000", Style: 1},
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"EDEDED"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "left"},
		Border:    border,
	})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	if err := f.SetCellStyle(DataSheet, "A1", lastCol+"1", headerStyle); err != nil {
		return fmt.Errorf("apply header style: %w", err)
	}

	for i := range table.Columns {
		col, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(DataSheet, col, col, float64(columnWidth(table, i))); err != nil {
			return fmt.Errorf("column width: %w", err)
		}
	}

	if err := f.AutoFilter(DataSheet, "A1:"+lastCol+"1", nil); err != nil {
		return fmt.Errorf("autofilter: %w", err)
	}

	// Freeze the header row and the two system columns.
	if err := f.SetPanes(DataSheet, &excelize.Panes{
		Freeze:      true,
		XSplit:      2,
		YSplit:      1,
		TopLeftCell: "C2",
		ActivePane:  "bottomRight",
		Selection: []excelize.Selection{
			{SQRef: "C2", ActiveCell: "C2", Pane: "bottomRight"},
		},
	}); err != nil {
		return fmt.Errorf("freeze panes: %w", err)
	}
	return nil
}

// columnWidth is the longer of header and content plus a margin, clamped.
func columnWidth(table *Table, col int) int {
	width := utf8.RuneCountInString(table.Columns[col])
	for r := range table.Rows {
		v := table.Cell(r, col)
		if v == nil {
			continue
		}
		if n := utf8.RuneCountInString(stringify(v)); n > width {
			width = n
		}
	}
	width += 2
	return max(minColumnWidth, min(width, maxColumnWidth))
}

// writeLookupSheet fills the hidden lookup sheet and returns the named
// range per attribute with enumerated options.
func writeLookupSheet(f *excelize.File, fields []columnField) (map[string]string, error) {
	if _, err := f.NewSheet(LookupSheet); err != nil {
		return nil, fmt.Errorf("lookup sheet: %w", err)
	}

	if err := f.SetSheetCol(LookupSheet, "A1", &[]any{BoolYes, BoolNo}); err != nil {
		return nil, fmt.Errorf("write boolean list: %w", err)
	}
	if err := f.SetDefinedName(&excelize.DefinedName{
		Name:     BooleanListName,
		RefersTo: fmt.Sprintf("'%s'!$A$1:$A$2", LookupSheet),
	}); err != nil {
		return nil, fmt.Errorf("define %s: %w", BooleanListName, err)
	}

	ranges := make(map[string]string)
	used := map[string]bool{BooleanListName: true}
	next := 2
	for _, field := range fields {
		if field.system || len(field.meta.Options) == 0 {
			continue
		}
		if _, done := ranges[field.attribute]; done {
			continue
		}

		name := uniqueRangeName(field.attribute, used)
		used[name] = true

		col, _ := excelize.ColumnNumberToName(next)
		values := make([]any, len(field.meta.Options))
		for i, o := range field.meta.Options {
			values[i] = o
		}
		if err := f.SetSheetCol(LookupSheet, col+"1", &values); err != nil {
			return nil, fmt.Errorf("write options for %q: %w", field.attribute, err)
		}
		if err := f.SetDefinedName(&excelize.DefinedName{
			Name:     name,
			RefersTo: fmt.Sprintf("'%s'!$%s$1:$%s$%d", LookupSheet, col, col, len(values)),
		}); err != nil {
			return nil, fmt.Errorf("define %s: %w", name, err)
		}
		ranges[field.attribute] = name
		next++
	}

	if err := f.SetSheetVisible(LookupSheet, false); err != nil {
		return nil, fmt.Errorf("hide lookup sheet: %w", err)
	}
	return ranges, nil
}

// uniqueRangeName sanitizes attribute and disambiguates it against used.
func uniqueRangeName(attribute string, used map[string]bool) string {
	base := SanitizeRangeName(attribute)
	if cellRefLike.MatchString(base) {
		base = "N" + base
	}
	name := base
	for i := 2; used[name]; i++ {
		suffix := "_" + strconv.Itoa(i)
		if len(base)+len(suffix) > maxRangeNameLength {
			name = base[:maxRangeNameLength-len(suffix)] + suffix
		} else {
			name = base + suffix
		}
	}
	return name
}

// dataRange returns the data-region reference of column col (0-based).
func dataRange(table *Table, col int) string {
	name, _ := excelize.ColumnNumberToName(col + 1)
	last := table.Len() + 1
	if last < 2 {
		last = 2
	}
	return fmt.Sprintf("%s2:%s%d", name, name, last)
}

func addValidations(f *excelize.File, table *Table, fields []columnField, ranges map[string]string) error {
	for i, field := range fields {
		sqref := dataRange(table, i)

		if field.system {
			dv := excelize.NewDataValidation(true)
			dv.Sqref = sqref
			dv.SetInput(lockedTitle, lockedMessage)
			if err := f.AddDataValidation(DataSheet, dv); err != nil {
				return fmt.Errorf("validation %s: %w", sqref, err)
			}
			continue
		}

		dv, err := columnValidation(field, ranges)
		if err != nil {
			return fmt.Errorf("validation %s: %w", sqref, err)
		}
		if dv == nil {
			continue
		}
		dv.Sqref = sqref
		if err := f.AddDataValidation(DataSheet, dv); err != nil {
			return fmt.Errorf("validation %s: %w", sqref, err)
		}
	}
	return nil
}

// columnValidation returns the rule for a data column, or nil. A cell
// holds at most one rule; lists take precedence over numeric ranges.
func columnValidation(field columnField, ranges map[string]string) (*excelize.DataValidation, error) {
	meta := field.meta
	dv := excelize.NewDataValidation(true)

	switch name, enum := ranges[field.attribute]; {
	case meta.Kind == KindBoolean:
		dv.SetSqrefDropList(BooleanListName)
	case enum:
		dv.SetSqrefDropList(name)
	case meta.IsYear():
		if err := dv.SetRange(MinYear, MaxYear, excelize.DataValidationTypeWhole, excelize.DataValidationOperatorBetween); err != nil {
			return nil, err
		}
		dv.SetError(excelize.DataValidationErrorStyleStop, "", yearMessage)
	case meta.Kind == KindInt:
		if err := dv.SetRange(0, 0, excelize.DataValidationTypeWhole, excelize.DataValidationOperatorGreaterThanOrEqual); err != nil {
			return nil, err
		}
		dv.SetError(excelize.DataValidationErrorStyleStop, "", intMessage)
	default:
		return nil, nil
	}
	return dv, nil
}

// addHighlight fills non-blank cells that are neither Ja nor Nee yellow.
func addHighlight(f *excelize.File, table *Table, fields []columnField, opts WorkbookOptions) error {
	format, err := f.NewConditionalStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"FFFF00"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("highlight style: %w", err)
	}

	for i, field := range fields {
		if field.system {
			continue
		}
		if !opts.HighlightAllColumns && field.meta.Kind != KindBoolean {
			continue
		}
		col, _ := excelize.ColumnNumberToName(i + 1)
		first := col + "2"
		criteria := fmt.Sprintf(`AND(%s<>"",%s<>"%s",%s<>"%s")`, first, first, BoolYes, first, BoolNo)
		err := f.SetConditionalFormat(DataSheet, dataRange(table, i), []excelize.ConditionalFormatOptions{
			{Type: "formula", Criteria: criteria, Format: &format},
		})
		if err != nil {
			return fmt.Errorf("highlight %s: %w", col, err)
		}
	}
	return nil
}

// ReadTable reads the Data sheet (or the first sheet when there is no Data
// sheet) of an xlsx workbook. Empty cells read as nil; other cells as their
// raw text, so dates typed in Excel arrive as serial numbers.
func ReadTable(r io.Reader) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWorkbook, err)
	}
	defer f.Close()

	sheet := DataSheet
	if idx, err := f.GetSheetIndex(DataSheet); err != nil || idx < 0 {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("%w: no sheets", ErrInvalidWorkbook)
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrInvalidWorkbook, sheet, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: sheet %s is empty", ErrInvalidWorkbook, sheet)
	}

	table := &Table{Columns: headerNames(rows[0])}
	for _, raw := range rows[1:] {
		row := make([]any, len(table.Columns))
		for c := range row {
			if c >= len(raw) {
				break
			}
			if v := CleanCell(raw[c]); v != "" {
				row[c] = v
			}
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

// headerNames cleans the header row, drops trailing blank headers and
// suffixes repeated names with ".1", ".2", ...
func headerNames(raw []string) []string {
	n := len(raw)
	for n > 0 && CleanCell(raw[n-1]) == "" {
		n--
	}

	seen := make(map[string]int, n)
	out := make([]string, n)
	for i := 0; i < n; i++ {
		name := CleanCell(raw[i])
		if name == "" {
			name = fmt.Sprintf("Unnamed: %d", i)
		}
		if k, dup := seen[name]; dup {
			seen[name] = k + 1
			name = fmt.Sprintf("%s.%d", name, k+1)
		} else {
			seen[name] = 0
		}
		out[i] = name
	}
	return out
}
