package core

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// System columns present in every exported sheet.
const (
	ColumnObjectType = "objectType"
	ColumnIdentifier = "identifier"
)

// AttributeMapping binds one API attribute to its spreadsheet header.
type AttributeMapping struct {
	AttributeName   string `json:"AttributeName"`
	ExcelColumnName string `json:"excelColumnName"`
}

// DatasetConfig is one dataset's export/import contract.
type DatasetConfig struct {
	Dataset          string             `json:"dataset"`
	ObjectType       string             `json:"objectType"`
	Attributes       []AttributeMapping `json:"attributes"`
	ParentObjectType string             `json:"parentObjectType,omitempty"`
	ParentIdentifier string             `json:"parentIdentifier,omitempty"` // spreadsheet column
}

// AttributeNames returns the configured API attribute keys in config order.
func (c *DatasetConfig) AttributeNames() []string {
	names := make([]string, len(c.Attributes))
	for i, a := range c.Attributes {
		names[i] = a.AttributeName
	}
	return names
}

// ColumnsMapping returns spreadsheet header -> API attribute key.
func (c *DatasetConfig) ColumnsMapping() map[string]string {
	m := make(map[string]string, len(c.Attributes))
	for _, a := range c.Attributes {
		m[a.ExcelColumnName] = a.AttributeName
	}
	return m
}

// ExcelColumn returns the spreadsheet header for an API attribute key.
func (c *DatasetConfig) ExcelColumn(attribute string) (string, bool) {
	for _, a := range c.Attributes {
		if a.AttributeName == attribute {
			return a.ExcelColumnName, true
		}
	}
	return "", false
}

// HasParent reports whether rows carry a parent reference.
func (c *DatasetConfig) HasParent() bool {
	return c.ParentObjectType != "" && c.ParentIdentifier != ""
}

// FieldKind is the resolved type of an API attribute.
type FieldKind int

const (
	KindUnknown FieldKind = iota
	KindString
	KindInt
	KindFloat
	KindNumber
	KindBoolean
	KindDate
)

var kindNames = map[FieldKind]string{
	KindUnknown: "UNKNOWN",
	KindString:  "STRING",
	KindInt:     "INT",
	KindFloat:   "FLOAT",
	KindNumber:  "NUMBER",
	KindBoolean: "BOOLEAN",
	KindDate:    "DATE",
}

func (k FieldKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "UNKNOWN"
}

// ParseFieldKind maps a metadata type string (case-insensitive) to a FieldKind.
func ParseFieldKind(s string) FieldKind {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "STRING":
		return KindString
	case "INT", "INTEGER":
		return KindInt
	case "FLOAT", "DOUBLE", "DECIMAL":
		return KindFloat
	case "NUMBER":
		return KindNumber
	case "BOOLEAN", "BOOL":
		return KindBoolean
	case "DATE":
		return KindDate
	default:
		return KindUnknown
	}
}

// DateFormat is the textual format of a DATE attribute.
type DateFormat string

const (
	DateYear     DateFormat = "yyyy"
	DateDayFirst DateFormat = "dd-MM-yyyy"
	DateISO      DateFormat = "yyyy-MM-dd"
)

// ParseDateFormat normalizes a metadata dateFormat. Unknown formats fall
// back to yyyy-MM-dd.
func ParseDateFormat(s string) DateFormat {
	switch DateFormat(strings.TrimSpace(s)) {
	case DateYear:
		return DateYear
	case DateDayFirst:
		return DateDayFirst
	default:
		return DateISO
	}
}

// layout returns the Go time layout for the format.
func (f DateFormat) layout() string {
	switch f {
	case DateYear:
		return "2006"
	case DateDayFirst:
		return "02-01-2006"
	default:
		return "2006-01-02"
	}
}

// FieldMetadata describes one API attribute, resolved once per cycle.
// The zero value is the degraded "unmatched" state and behaves as a string.
type FieldMetadata struct {
	Name       string     `json:"name,omitempty"`
	RawType    string     `json:"type,omitempty"`
	Kind       FieldKind  `json:"-"`
	DateFormat DateFormat `json:"dateFormat,omitempty"`
	Required   bool       `json:"required"`
	Options    []string   `json:"attributeValueOptions,omitempty"`
	Definition string     `json:"definition,omitempty"`
}

// Matched reports whether the field was found in the API metadata.
func (m FieldMetadata) Matched() bool { return m.Name != "" }

// IsYear reports whether the field is a DATE stored as a bare year.
func (m FieldMetadata) IsYear() bool { return m.Kind == KindDate && m.DateFormat == DateYear }

// MetadataMap maps configured AttributeName to its FieldMetadata.
// Every configured attribute has an entry.
type MetadataMap map[string]FieldMetadata

// MetadataPayload is the metadata endpoint response.
type MetadataPayload struct {
	ObjectTypes []ObjectTypeMetadata `json:"objectTypes"`
}

// ObjectTypeMetadata lists the attributes of one object type.
type ObjectTypeMetadata struct {
	Name       string                `json:"name"`
	Attributes []AttributeDescriptor `json:"attributes"`
}

// AttributeDescriptor is one attribute as described by the API.
type AttributeDescriptor struct {
	Name                  string   `json:"name"`
	Type                  string   `json:"type"`
	DateFormat            string   `json:"dateFormat,omitempty"`
	Required              bool     `json:"required"`
	AttributeValueOptions []string `json:"attributeValueOptions,omitempty"`
	Definition            string   `json:"definition,omitempty"`
}

// APIObject is one record as exchanged with the object API.
type APIObject struct {
	ObjectType       string         `json:"objectType"`
	Identifier       string         `json:"identifier,omitempty"`
	Attributes       map[string]any `json:"attributes"`
	ParentObjectType string         `json:"parentObjectType,omitempty"`
	ParentIdentifier string         `json:"parentIdentifier,omitempty"`
}

// ObjectResult is the API outcome for one written object.
type ObjectResult struct {
	Identifier string `json:"identifier"`
	Success    bool   `json:"success"`
	Message    string `json:"message,omitempty"`
}

// UploadReport aggregates the results of a full batch upload.
type UploadReport struct {
	Total     int            `json:"total"`
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
	Results   []ObjectResult `json:"results"`
}

// Failures returns the results that were not successful.
func (r *UploadReport) Failures() []ObjectResult {
	var out []ObjectResult
	for _, res := range r.Results {
		if !res.Success {
			out = append(out, res)
		}
	}
	return out
}

// WriteMode selects how objects are written back.
type WriteMode string

const (
	WriteUpdate WriteMode = "update" // PUT /v1/objects
	WriteUpsert WriteMode = "upsert" // POST /v1/objects
)

// ParseWriteMode returns the WriteMode for s, defaulting to update.
func ParseWriteMode(s string) WriteMode {
	if strings.EqualFold(strings.TrimSpace(s), string(WriteUpsert)) {
		return WriteUpsert
	}
	return WriteUpdate
}

// ObjectQuery selects one page of objects.
type ObjectQuery struct {
	ObjectType string
	Attributes []string
	Identifier string
	OnlyActive bool
	Filters    map[string]string
	Page       int
	PageSize   int
}

// ObjectPage is one page returned by the object API.
type ObjectPage struct {
	Objects    []APIObject `json:"objects"`
	TotalCount int         `json:"totalCount"`
}

// ObjectAPI is the remote object API consumed by the engine.
// Authentication is the implementation's concern.
type ObjectAPI interface {
	GetMetadata(ctx context.Context, objectType string) (*MetadataPayload, error)
	GetObjects(ctx context.Context, q ObjectQuery) (*ObjectPage, error)
	SaveObjects(ctx context.Context, mode WriteMode, objects []APIObject) ([]ObjectResult, error)
}

// DatasetSource supplies dataset configurations by name.
type DatasetSource interface {
	Get(name string) (*DatasetConfig, error)
	List() []string
}
