package core

// Table is the in-memory form of a data sheet: a header row plus data rows.
// Cells hold strings, numbers or nil for "no value".
type Table struct {
	Columns []string
	Rows    [][]any
}

// ColumnIndex returns the position of the named column, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// HasColumn reports whether the named column exists.
func (t *Table) HasColumn(name string) bool {
	return t.ColumnIndex(name) >= 0
}

// Cell returns the value at row r in column c. Short rows read as nil.
func (t *Table) Cell(r, c int) any {
	if r < 0 || r >= len(t.Rows) || c < 0 || c >= len(t.Rows[r]) {
		return nil
	}
	return t.Rows[r][c]
}

// Column returns all values of the named column, or nil when absent.
func (t *Table) Column(name string) []any {
	idx := t.ColumnIndex(name)
	if idx < 0 {
		return nil
	}
	out := make([]any, len(t.Rows))
	for r := range t.Rows {
		out[r] = t.Cell(r, idx)
	}
	return out
}

// Len returns the number of data rows.
func (t *Table) Len() int { return len(t.Rows) }

// SheetRow converts a zero-based data row index to the 1-based sheet row,
// accounting for the header.
func SheetRow(index int) int { return index + 2 }
