package core

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

func TestBuildAuditQuery(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		filter    AuditLogFilter
		wantWhere string
		wantLimit string
		wantArgs  int
	}{
		{
			name:      "no filter uses default limit",
			filter:    AuditLogFilter{},
			wantLimit: " ORDER BY created_at DESC LIMIT $1 OFFSET $2",
			wantArgs:  2,
		},
		{
			name:      "dataset and action",
			filter:    AuditLogFilter{Dataset: "Daken", Action: ActionImport, Limit: 10},
			wantWhere: " WHERE dataset = $1 AND action = $2",
			wantLimit: " ORDER BY created_at DESC LIMIT $3 OFFSET $4",
			wantArgs:  4,
		},
		{
			name:      "time range",
			filter:    AuditLogFilter{StartTime: start, EndTime: start.AddDate(0, 1, 0), Offset: 20},
			wantWhere: " WHERE created_at >= $1 AND created_at < $2",
			wantLimit: " ORDER BY created_at DESC LIMIT $3 OFFSET $4",
			wantArgs:  4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, args := buildAuditQuery(tt.filter)

			want := "SELECT " + auditColumns + " FROM audit_log" + tt.wantWhere + tt.wantLimit
			if query != want {
				t.Errorf("query =\n%s\nwant\n%s", query, want)
			}
			if len(args) != tt.wantArgs {
				t.Fatalf("args = %v, want %d", args, tt.wantArgs)
			}

			limit := tt.filter.Limit
			if limit <= 0 {
				limit = DefaultHistoryLimit
			}
			if args[len(args)-2] != limit || args[len(args)-1] != tt.filter.Offset {
				t.Errorf("limit/offset = %v/%v", args[len(args)-2], args[len(args)-1])
			}
		})
	}
}

func TestBuildAuditQuery_TimeArgs(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	_, args := buildAuditQuery(AuditLogFilter{StartTime: start})

	want := pgtype.Timestamptz{Time: start, Valid: true}
	if !reflect.DeepEqual(args[0], want) {
		t.Errorf("arg = %#v, want %#v", args[0], want)
	}
}

func TestDetermineSeverity(t *testing.T) {
	tests := map[AuditAction]AuditSeverity{
		ActionImport:   SeverityHigh,
		ActionExport:   SeverityMedium,
		ActionValidate: SeverityLow,
	}
	for action, want := range tests {
		if got := determineSeverity(action); got != want {
			t.Errorf("determineSeverity(%s) = %s, want %s", action, got, want)
		}
	}
}

func TestNopAuditStore(t *testing.T) {
	var store AuditStore = NopAuditStore{}
	ctx := context.Background()

	entry, err := store.Log(ctx, AuditLogParams{Action: ActionImport, Dataset: "Daken"})
	if err != nil {
		t.Fatalf("Log: %v", err)
	}
	if entry.Severity != SeverityHigh || entry.Dataset != "Daken" {
		t.Errorf("entry = %+v", entry)
	}

	entries, err := store.List(ctx, AuditLogFilter{})
	if err != nil || entries != nil {
		t.Errorf("List = %v, %v", entries, err)
	}
	if n, err := store.Purge(ctx, 30); n != 0 || err != nil {
		t.Errorf("Purge = %d, %v", n, err)
	}
}

func TestPgHelpers(t *testing.T) {
	if v := toPgText(""); v.Valid {
		t.Error("empty text should be NULL")
	}
	if v := toPgText("x"); !v.Valid || v.String != "x" {
		t.Errorf("toPgText = %+v", v)
	}
	if v := toPgInt4(0); v.Valid {
		t.Error("zero should be NULL")
	}
	if v := toPgInt4(7); !v.Valid || v.Int32 != 7 {
		t.Errorf("toPgInt4 = %+v", v)
	}
	if v := toPgUUID("not-a-uuid"); v.Valid {
		t.Error("invalid uuid should be NULL")
	}

	id := uuid.NewString()
	if got := uuidToString(toPgUUID(id)); got != id {
		t.Errorf("uuid round trip = %q, want %q", got, id)
	}
	if got := uuidToString(pgtype.UUID{}); got != "" {
		t.Errorf("NULL uuid = %q", got)
	}
}
