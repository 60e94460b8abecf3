package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// AuditAction represents the type of action being audited.
type AuditAction string

const (
	ActionExport   AuditAction = "export"
	ActionValidate AuditAction = "validate"
	ActionImport   AuditAction = "import"
)

// AuditSeverity represents the severity level of an audit entry.
type AuditSeverity string

const (
	SeverityLow    AuditSeverity = "low"
	SeverityMedium AuditSeverity = "medium"
	SeverityHigh   AuditSeverity = "high"
)

// DefaultHistoryLimit is the default page size for audit queries.
const DefaultHistoryLimit = 50

// AuditEntry represents a single audit log entry.
type AuditEntry struct {
	ID         string        `json:"id"`
	Action     AuditAction   `json:"action"`
	Severity   AuditSeverity `json:"severity"`
	Dataset    string        `json:"dataset"`
	ObjectType string        `json:"objectType,omitempty"`
	IPAddress  string        `json:"ipAddress,omitempty"`
	UserAgent  string        `json:"userAgent,omitempty"`
	Rows       int           `json:"rows,omitempty"`
	Succeeded  int           `json:"succeeded,omitempty"`
	Failed     int           `json:"failed,omitempty"`
	Reason     string        `json:"reason,omitempty"`
	CreatedAt  time.Time     `json:"createdAt"`
}

// AuditLogParams contains parameters for creating an audit log entry.
type AuditLogParams struct {
	Action     AuditAction
	Dataset    string
	ObjectType string
	IPAddress  string
	UserAgent  string
	Rows       int
	Succeeded  int
	Failed     int
	Reason     string
}

// AuditLogFilter contains filtering options for querying audit logs.
type AuditLogFilter struct {
	Dataset   string
	Action    AuditAction
	StartTime time.Time
	EndTime   time.Time
	Limit     int
	Offset    int
}

// AuditStore records export and import activity.
type AuditStore interface {
	Log(ctx context.Context, params AuditLogParams) (*AuditEntry, error)
	List(ctx context.Context, filter AuditLogFilter) ([]AuditEntry, error)
	Purge(ctx context.Context, daysToKeep int) (int64, error)
}

// determineSeverity returns the appropriate severity for an action.
func determineSeverity(action AuditAction) AuditSeverity {
	switch action {
	case ActionImport:
		return SeverityHigh
	case ActionExport:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// NopAuditStore discards audit entries. Used when no database is configured.
type NopAuditStore struct{}

func (NopAuditStore) Log(_ context.Context, p AuditLogParams) (*AuditEntry, error) {
	return &AuditEntry{
		Action:     p.Action,
		Severity:   determineSeverity(p.Action),
		Dataset:    p.Dataset,
		ObjectType: p.ObjectType,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

func (NopAuditStore) List(context.Context, AuditLogFilter) ([]AuditEntry, error) { return nil, nil }

func (NopAuditStore) Purge(context.Context, int) (int64, error) { return 0, nil }

// AuditSchema creates the audit table. It is safe to run on every start.
const AuditSchema = `
CREATE TABLE IF NOT EXISTS audit_log (
	id          UUID PRIMARY KEY,
	action      TEXT NOT NULL,
	severity    TEXT NOT NULL,
	dataset     TEXT NOT NULL,
	object_type TEXT,
	ip_address  TEXT,
	user_agent  TEXT,
	row_count   INTEGER,
	succeeded   INTEGER,
	failed      INTEGER,
	reason      TEXT,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS audit_log_created_at_idx ON audit_log (created_at);
CREATE INDEX IF NOT EXISTS audit_log_dataset_idx ON audit_log (dataset, created_at);
`

// PgAuditStore stores audit entries in PostgreSQL.
type PgAuditStore struct {
	db DBTX
}

// NewPgAuditStore creates a store over db (a pool or a transaction).
func NewPgAuditStore(db DBTX) *PgAuditStore {
	return &PgAuditStore{db: db}
}

// EnsureSchema creates the audit table when missing.
func (s *PgAuditStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, AuditSchema); err != nil {
		return fmt.Errorf("create audit schema: %w", err)
	}
	return nil
}

const auditColumns = `id, action, severity, dataset, object_type, ip_address, user_agent, row_count, succeeded, failed, reason, created_at`

// Log creates a new audit log entry.
func (s *PgAuditStore) Log(ctx context.Context, p AuditLogParams) (*AuditEntry, error) {
	row := s.db.QueryRow(ctx,
		`INSERT INTO audit_log (id, action, severity, dataset, object_type, ip_address, user_agent, row_count, succeeded, failed, reason)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING `+auditColumns,
		toPgUUID(uuid.NewString()),
		string(p.Action),
		string(determineSeverity(p.Action)),
		p.Dataset,
		toPgText(p.ObjectType),
		toPgText(p.IPAddress),
		toPgText(p.UserAgent),
		toPgInt4(p.Rows),
		toPgInt4(p.Succeeded),
		toPgInt4(p.Failed),
		toPgText(p.Reason),
	)
	entry, err := scanAuditEntry(row)
	if err != nil {
		return nil, fmt.Errorf("insert audit log: %w", err)
	}
	return entry, nil
}

// List retrieves audit log entries, newest first, with optional filtering.
func (s *PgAuditStore) List(ctx context.Context, filter AuditLogFilter) ([]AuditEntry, error) {
	query, args := buildAuditQuery(filter)
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		entry, err := scanAuditEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

// Purge deletes entries older than daysToKeep days.
func (s *PgAuditStore) Purge(ctx context.Context, daysToKeep int) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM audit_log WHERE created_at < now() - make_interval(days => $1)`,
		int32(daysToKeep),
	)
	if err != nil {
		return 0, fmt.Errorf("purge audit log: %w", err)
	}
	return tag.RowsAffected(), nil
}

// buildAuditQuery renders the list query for filter. Zero times mean
// unbounded.
func buildAuditQuery(filter AuditLogFilter) (string, []any) {
	if filter.Limit <= 0 {
		filter.Limit = DefaultHistoryLimit
	}

	var conds []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.Dataset != "" {
		add("dataset = $%d", filter.Dataset)
	}
	if filter.Action != "" {
		add("action = $%d", string(filter.Action))
	}
	if !filter.StartTime.IsZero() {
		add("created_at >= $%d", pgtype.Timestamptz{Time: filter.StartTime, Valid: true})
	}
	if !filter.EndTime.IsZero() {
		add("created_at < $%d", pgtype.Timestamptz{Time: filter.EndTime, Valid: true})
	}

	var b strings.Builder
	b.WriteString("SELECT " + auditColumns + " FROM audit_log")
	if len(conds) > 0 {
		b.WriteString(" WHERE " + strings.Join(conds, " AND "))
	}
	args = append(args, filter.Limit, filter.Offset)
	fmt.Fprintf(&b, " ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	return b.String(), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAuditEntry(row rowScanner) (*AuditEntry, error) {
	var (
		id                         pgtype.UUID
		action, severity, dataset  string
		objectType, ip, ua, reason pgtype.Text
		rows, succeeded, failed    pgtype.Int4
		createdAt                  pgtype.Timestamptz
	)
	if err := row.Scan(&id, &action, &severity, &dataset, &objectType, &ip, &ua, &rows, &succeeded, &failed, &reason, &createdAt); err != nil {
		return nil, err
	}
	return &AuditEntry{
		ID:         uuidToString(id),
		Action:     AuditAction(action),
		Severity:   AuditSeverity(severity),
		Dataset:    dataset,
		ObjectType: objectType.String,
		IPAddress:  ip.String,
		UserAgent:  ua.String,
		Rows:       int(rows.Int32),
		Succeeded:  int(succeeded.Int32),
		Failed:     int(failed.Int32),
		Reason:     reason.String,
		CreatedAt:  createdAt.Time,
	}, nil
}

// Helper functions for type conversion

func toPgText(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: s, Valid: true}
}

func toPgInt4(i int) pgtype.Int4 {
	if i == 0 {
		return pgtype.Int4{Valid: false}
	}
	return pgtype.Int4{Int32: int32(i), Valid: true}
}

func toPgUUID(s string) pgtype.UUID {
	if s == "" {
		return pgtype.UUID{Valid: false}
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return pgtype.UUID{Valid: false}
	}
	return pgtype.UUID{Bytes: parsed, Valid: true}
}

func uuidToString(u pgtype.UUID) string {
	if !u.Valid {
		return ""
	}
	return uuid.UUID(u.Bytes).String()
}
