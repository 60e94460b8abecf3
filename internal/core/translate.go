package core

// translate.go converts validated sheet rows into API objects.

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

// NewClientIdentifier returns a stable client-side identifier for a new
// object of objectType. The full UUID never matches
// GeneratedIdentifierPattern, so a re-export keeps it.
func NewClientIdentifier(objectType string) string {
	return objectType + "_" + uuid.NewString()
}

// RowTranslator converts sheet rows into API objects for one dataset.
type RowTranslator struct {
	cfg    *DatasetConfig
	mm     MetadataMap
	logger *slog.Logger

	// newID assigns identifiers to rows without one.
	newID func(objectType string) string
}

// NewRowTranslator creates a translator for cfg with resolved metadata mm.
func NewRowTranslator(cfg *DatasetConfig, mm MetadataMap) *RowTranslator {
	return &RowTranslator{
		cfg:    cfg,
		mm:     mm,
		logger: slog.Default(),
		newID:  NewClientIdentifier,
	}
}

// WithLogger sets the logger used for conversion warnings.
func (rt *RowTranslator) WithLogger(logger *slog.Logger) *RowTranslator {
	rt.logger = logger
	return rt
}

// Translate converts every row of t. It fails before any row is processed
// when the identifier column is missing. Cell conversion problems are
// returned as warnings and leave the attribute null.
//
// Rows without an identifier get a client-side one so every write can be
// retried safely.
func (rt *RowTranslator) Translate(t *Table) ([]APIObject, []ConversionWarning, error) {
	idCol := t.ColumnIndex(ColumnIdentifier)
	if idCol < 0 {
		return nil, nil, ErrMissingIdentifierColumn
	}

	type boundColumn struct {
		attr   string
		header string
		idx    int
		meta   FieldMetadata
	}
	var cols []boundColumn
	for _, a := range rt.cfg.Attributes {
		idx := t.ColumnIndex(a.ExcelColumnName)
		if idx < 0 {
			continue
		}
		cols = append(cols, boundColumn{attr: a.AttributeName, header: a.ExcelColumnName, idx: idx, meta: rt.mm[a.AttributeName]})
	}

	parentCol := -1
	if rt.cfg.HasParent() {
		parentCol = t.ColumnIndex(rt.cfg.ParentIdentifier)
	}

	objects := make([]APIObject, 0, t.Len())
	var warnings []ConversionWarning

	for r := range t.Rows {
		sheetRow := SheetRow(r)
		obj := APIObject{
			ObjectType: rt.cfg.ObjectType,
			Attributes: make(map[string]any, len(cols)),
		}

		if id := t.Cell(r, idCol); !IsEmpty(id) {
			obj.Identifier = strings.TrimSpace(stringify(id))
		} else {
			obj.Identifier = rt.newID(rt.cfg.ObjectType)
			rt.logger.Debug("assigned client identifier", "row", sheetRow, "identifier", obj.Identifier)
		}

		for _, c := range cols {
			raw := t.Cell(r, c.idx)
			v, err := ToAPI(raw, c.meta)
			if err != nil {
				w := ConversionWarning{
					Row:    sheetRow,
					Column: c.header,
					Value:  raw,
					Reason: fmt.Sprintf("not a valid %s", c.meta.Kind),
				}
				rt.logger.Warn("conversion warning", "row", w.Row, "column", w.Column, "value", w.Value, "reason", w.Reason)
				warnings = append(warnings, w)
			}
			obj.Attributes[c.attr] = v
		}

		if rt.cfg.HasParent() {
			parent := t.Cell(r, parentCol)
			if parentCol >= 0 && !IsEmpty(parent) {
				obj.ParentObjectType = rt.cfg.ParentObjectType
				obj.ParentIdentifier = strings.TrimSpace(stringify(parent))
			} else {
				w := ConversionWarning{
					Row:    sheetRow,
					Column: rt.cfg.ParentIdentifier,
					Reason: "parent identifier column missing or blank, parent not attached",
				}
				rt.logger.Warn("parent not attached", "row", w.Row, "column", w.Column)
				warnings = append(warnings, w)
			}
		}

		objects = append(objects, obj)
	}

	return objects, warnings, nil
}
