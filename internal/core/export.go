package core

// export.go turns API objects into the Data sheet table.
//
// The resulting columns are always [objectType, identifier, attributes in
// config order], renamed to their spreadsheet headers. Identifiers that
// look auto-generated are cleared so a re-import cannot target them.

import (
	"fmt"
	"regexp"

	"github.com/samber/lo"
)

// GeneratedIdentifierPattern returns the pattern of identifiers the API
// generates for objectType: the type name, an underscore and an
// eight-character lowercase hex/dash token.
func GeneratedIdentifierPattern(objectType string) *regexp.Regexp {
	return regexp.MustCompile(fmt.Sprintf("^%s_[a-f0-9-]{8}$", regexp.QuoteMeta(objectType)))
}

// exportColumn is one output column before renaming.
type exportColumn struct {
	key    string // API attribute key or system column
	header string
	meta   FieldMetadata
}

// exportColumns resolves the ordered, de-duplicated output columns.
func exportColumns(cfg *DatasetConfig, mm MetadataMap) []exportColumn {
	cols := []exportColumn{
		{key: ColumnObjectType, header: ColumnObjectType},
		{key: ColumnIdentifier, header: ColumnIdentifier},
	}

	attrs := lo.UniqBy(cfg.Attributes, func(a AttributeMapping) string { return a.AttributeName })
	seen := map[string]bool{ColumnObjectType: true, ColumnIdentifier: true}
	for _, a := range attrs {
		header := a.ExcelColumnName
		if header == "" {
			header = a.AttributeName
		}
		if seen[header] {
			continue
		}
		seen[header] = true
		cols = append(cols, exportColumn{key: a.AttributeName, header: header, meta: mm[a.AttributeName]})
	}
	return cols
}

// BuildTable flattens objects into the Data sheet table. Conversion
// problems are returned as warnings and leave the cell empty.
// The input is not modified; the same input always yields the same table.
func BuildTable(objects []APIObject, mm MetadataMap, cfg *DatasetConfig) (*Table, []ConversionWarning, error) {
	if len(objects) == 0 {
		return nil, nil, ErrEmptyDataset
	}

	cols := exportColumns(cfg, mm)
	generated := GeneratedIdentifierPattern(cfg.ObjectType)

	table := &Table{
		Columns: lo.Map(cols, func(c exportColumn, _ int) string { return c.header }),
		Rows:    make([][]any, 0, len(objects)),
	}

	var warnings []ConversionWarning
	for i, obj := range objects {
		row := make([]any, len(cols))
		for c, col := range cols {
			switch col.key {
			case ColumnObjectType:
				row[c] = cfg.ObjectType
			case ColumnIdentifier:
				if obj.Identifier != "" && !generated.MatchString(obj.Identifier) {
					row[c] = obj.Identifier
				}
			default:
				raw, ok := obj.Attributes[col.key]
				if !ok {
					continue
				}
				v, err := ToSpreadsheet(raw, col.meta)
				if err != nil {
					warnings = append(warnings, ConversionWarning{
						Row:    SheetRow(i),
						Column: col.header,
						Value:  raw,
						Reason: fmt.Sprintf("not a valid %s", col.meta.Kind),
					})
					continue
				}
				row[c] = v
			}
		}
		table.Rows = append(table.Rows, row)
	}

	return table, warnings, nil
}
