package core

import (
	"log/slog"
	"strings"
)

// nameSeparator splits an API attribute name from its entity/tenant suffix,
// e.g. "Jaar laatste dakonderhoud - Building - Woonstad Rotterdam".
const nameSeparator = " - "

// simplifiedName returns the part of name before the first separator.
func simplifiedName(name string) string {
	if i := strings.Index(name, nameSeparator); i >= 0 {
		return name[:i]
	}
	return name
}

// NewFieldMetadata resolves an API descriptor into FieldMetadata.
func NewFieldMetadata(d AttributeDescriptor) FieldMetadata {
	m := FieldMetadata{
		Name:       d.Name,
		RawType:    d.Type,
		Kind:       ParseFieldKind(d.Type),
		Required:   d.Required,
		Definition: d.Definition,
	}
	if m.Kind == KindDate {
		m.DateFormat = ParseDateFormat(d.DateFormat)
	}
	if len(d.AttributeValueOptions) > 0 {
		m.Options = append([]string(nil), d.AttributeValueOptions...)
	}
	return m
}

// BuildMetadataMap resolves every configured attribute against the API
// metadata for cfg.ObjectType.
//
// Attributes are indexed by full name and by simplified name. A full-name
// match always wins; among simplified names the first attribute in payload
// order wins. Unmatched attributes get an empty FieldMetadata.
func BuildMetadataMap(payload *MetadataPayload, cfg *DatasetConfig) (MetadataMap, error) {
	return buildMetadataMap(payload, cfg, slog.Default())
}

func buildMetadataMap(payload *MetadataPayload, cfg *DatasetConfig, logger *slog.Logger) (MetadataMap, error) {
	var ot *ObjectTypeMetadata
	if payload != nil {
		for i := range payload.ObjectTypes {
			if payload.ObjectTypes[i].Name == cfg.ObjectType {
				ot = &payload.ObjectTypes[i]
				break
			}
		}
	}
	if ot == nil {
		return nil, &ConfigurationError{ObjectType: cfg.ObjectType, Reason: "not found in metadata"}
	}

	byName := make(map[string]AttributeDescriptor, len(ot.Attributes)*2)
	for _, attr := range ot.Attributes {
		if _, dup := byName[attr.Name]; !dup {
			byName[attr.Name] = attr
		}
	}
	for _, attr := range ot.Attributes {
		simple := simplifiedName(attr.Name)
		if simple == attr.Name {
			continue
		}
		if prev, taken := byName[simple]; taken {
			if prev.Name != attr.Name {
				logger.Debug("simplified attribute name collision",
					"object_type", cfg.ObjectType,
					"name", simple,
					"kept", prev.Name,
					"ignored", attr.Name,
				)
			}
			continue
		}
		byName[simple] = attr
	}

	mm := make(MetadataMap, len(cfg.Attributes))
	for _, a := range cfg.Attributes {
		d, ok := byName[a.AttributeName]
		if !ok {
			logger.Warn("attribute not found in metadata, treating as text",
				"object_type", cfg.ObjectType,
				"attribute", a.AttributeName,
			)
			mm[a.AttributeName] = FieldMetadata{}
			continue
		}
		mm[a.AttributeName] = NewFieldMetadata(d)
	}
	return mm, nil
}

// ColumnInfo describes an expected spreadsheet column for display.
type ColumnInfo struct {
	Column     string   `json:"column"`
	Attribute  string   `json:"attribute"`
	Type       string   `json:"type"`
	Required   bool     `json:"required"`
	Format     string   `json:"format"`
	Definition string   `json:"definition"`
	Options    []string `json:"options,omitempty"`
}

// ExpectedColumns lists the configured columns with their resolved types.
func ExpectedColumns(cfg *DatasetConfig, mm MetadataMap) []ColumnInfo {
	out := make([]ColumnInfo, 0, len(cfg.Attributes))
	for _, a := range cfg.Attributes {
		m := mm[a.AttributeName]
		info := ColumnInfo{
			Column:     a.ExcelColumnName,
			Attribute:  a.AttributeName,
			Type:       m.Kind.String(),
			Required:   m.Required,
			Format:     "-",
			Definition: m.Definition,
			Options:    m.Options,
		}
		if m.Kind == KindDate {
			info.Format = string(m.DateFormat)
		}
		if info.Definition == "" {
			info.Definition = "-"
		}
		out = append(out, info)
	}
	return out
}
