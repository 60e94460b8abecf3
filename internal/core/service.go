package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// ServiceOptions configures a Service.
type ServiceOptions struct {
	PageSize   int
	OnlyActive bool

	// FilterKey is the query parameter that export filter values are
	// applied to, e.g. "Cluster".
	FilterKey string

	Upload   UploadOptions
	Workbook WorkbookOptions
}

// Service runs export and import cycles for configured datasets.
// Each call fetches fresh metadata; nothing is cached between calls.
type Service struct {
	api      ObjectAPI
	datasets DatasetSource
	audit    AuditStore
	opts     ServiceOptions
	logger   *slog.Logger
}

// NewService creates a new Service instance. A nil audit store disables
// audit logging.
func NewService(api ObjectAPI, datasets DatasetSource, audit AuditStore, opts ServiceOptions) *Service {
	if audit == nil {
		audit = NopAuditStore{}
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	opts.Upload = opts.Upload.withDefaults()
	return &Service{
		api:      api,
		datasets: datasets,
		audit:    audit,
		opts:     opts,
		logger:   slog.Default(),
	}
}

// WithLogger sets the service logger.
func (s *Service) WithLogger(logger *slog.Logger) *Service {
	s.logger = logger
	return s
}

// Audit returns the audit store.
func (s *Service) Audit() AuditStore { return s.audit }

// Datasets returns the configured dataset names.
func (s *Service) Datasets() []string {
	return s.datasets.List()
}

// Dataset returns the configuration of one dataset.
func (s *Service) Dataset(name string) (*DatasetConfig, error) {
	return s.datasets.Get(name)
}

// resolve loads the dataset and builds its metadata map.
func (s *Service) resolve(ctx context.Context, dataset string) (*DatasetConfig, MetadataMap, error) {
	cfg, err := s.datasets.Get(dataset)
	if err != nil {
		return nil, nil, err
	}
	payload, err := s.api.GetMetadata(ctx, cfg.ObjectType)
	if err != nil {
		return nil, nil, fmt.Errorf("get metadata for %s: %w", cfg.ObjectType, err)
	}
	mm, err := buildMetadataMap(payload, cfg, s.logger)
	if err != nil {
		return nil, nil, err
	}
	return cfg, mm, nil
}

// ExpectedColumns lists the columns an import sheet for dataset may carry.
func (s *Service) ExpectedColumns(ctx context.Context, dataset string) ([]ColumnInfo, error) {
	cfg, mm, err := s.resolve(ctx, dataset)
	if err != nil {
		return nil, err
	}
	return ExpectedColumns(cfg, mm), nil
}

// ExportResult describes a finished export.
type ExportResult struct {
	Dataset    string              `json:"dataset"`
	ObjectType string              `json:"objectType"`
	FileName   string              `json:"fileName"`
	Rows       int                 `json:"rows"`
	Warnings   []ConversionWarning `json:"-"`
	Duration   time.Duration       `json:"duration"`
}

// Export fetches every object of the dataset and writes it to w as a
// workbook. With filter values the objects are fetched once per value.
func (s *Service) Export(ctx context.Context, dataset string, filterValues []string, w io.Writer, progress ProgressFunc) (*ExportResult, error) {
	start := time.Now()
	logger := s.logger.With("dataset", dataset, "action", ActionExport)

	progress.notify(ProgressEvent{Phase: PhaseMetadata})
	cfg, mm, err := s.resolve(ctx, dataset)
	if err != nil {
		return nil, s.fail(ctx, logger, ActionExport, dataset, "", err)
	}

	q := ObjectQuery{
		ObjectType: cfg.ObjectType,
		Attributes: cfg.AttributeNames(),
		OnlyActive: s.opts.OnlyActive,
		PageSize:   s.opts.PageSize,
	}
	objects, err := NewPaginator(s.api).
		WithLogger(logger).
		WithProgress(progress).
		FetchAllFiltered(ctx, q, s.opts.FilterKey, filterValues)
	if err != nil {
		return nil, s.fail(ctx, logger, ActionExport, dataset, cfg.ObjectType, err)
	}

	progress.notify(ProgressEvent{Phase: PhaseBuilding, Objects: len(objects)})
	table, warnings, err := BuildTable(objects, mm, cfg)
	if err != nil {
		return nil, s.fail(ctx, logger, ActionExport, dataset, cfg.ObjectType, err)
	}
	for _, wn := range warnings {
		logger.Warn("conversion warning", "row", wn.Row, "column", wn.Column, "value", wn.Value, "reason", wn.Reason)
	}

	// Render fully before writing so a failure leaves w untouched.
	var buf bytes.Buffer
	if err := WriteWorkbook(&buf, table, cfg, mm, s.opts.Workbook); err != nil {
		return nil, s.fail(ctx, logger, ActionExport, dataset, cfg.ObjectType, err)
	}
	if _, err := buf.WriteTo(w); err != nil {
		return nil, fmt.Errorf("write export: %w", err)
	}

	result := &ExportResult{
		Dataset:    dataset,
		ObjectType: cfg.ObjectType,
		FileName:   ExportFileName(cfg.Dataset),
		Rows:       table.Len(),
		Warnings:   warnings,
		Duration:   time.Since(start),
	}
	s.record(ctx, logger, AuditLogParams{
		Action:     ActionExport,
		Dataset:    dataset,
		ObjectType: cfg.ObjectType,
		Rows:       result.Rows,
	})
	progress.notify(ProgressEvent{Phase: PhaseComplete, Objects: result.Rows})
	logger.Info("export complete",
		"object_type", cfg.ObjectType,
		"rows", result.Rows,
		"warnings", len(warnings),
		"duration_ms", result.Duration.Milliseconds(),
	)
	return result, nil
}

// ExportFileName returns the download name for a dataset export.
func ExportFileName(dataset string) string {
	return SanitizeRangeName(dataset) + ".xlsx"
}

// ValidationResult is the outcome of checking an uploaded workbook.
type ValidationResult struct {
	Dataset string            `json:"dataset"`
	Rows    int               `json:"rows"`
	Valid   bool              `json:"valid"`
	Errors  []ValidationError `json:"errors"`
}

// Validate reads a workbook and checks it without writing anything.
func (s *Service) Validate(ctx context.Context, dataset string, r io.Reader) (*ValidationResult, error) {
	logger := s.logger.With("dataset", dataset, "action", ActionValidate)

	cfg, mm, table, err := s.load(ctx, dataset, r)
	if err != nil {
		return nil, s.fail(ctx, logger, ActionValidate, dataset, "", err)
	}

	errs := NewTableValidator(cfg, mm).Validate(table)
	result := &ValidationResult{
		Dataset: dataset,
		Rows:    table.Len(),
		Valid:   !Blocking(errs),
		Errors:  errs,
	}
	if result.Errors == nil {
		result.Errors = []ValidationError{}
	}

	s.record(ctx, logger, AuditLogParams{
		Action:     ActionValidate,
		Dataset:    dataset,
		ObjectType: cfg.ObjectType,
		Rows:       result.Rows,
		Failed:     len(errs),
	})
	logger.Info("validation complete", "rows", result.Rows, "errors", len(errs))
	return result, nil
}

// ImportResult is the outcome of a completed import.
type ImportResult struct {
	Dataset  string              `json:"dataset"`
	Report   *UploadReport       `json:"report"`
	Warnings []ConversionWarning `json:"-"`
	Duration time.Duration       `json:"duration"`
}

// Import validates a workbook, translates it and writes the objects.
// Blocking validation errors are returned as *ValidationFailedError
// before anything is sent.
func (s *Service) Import(ctx context.Context, dataset string, r io.Reader, progress ProgressFunc) (*ImportResult, error) {
	start := time.Now()
	logger := s.logger.With("dataset", dataset, "action", ActionImport)

	progress.notify(ProgressEvent{Phase: PhaseReading})
	cfg, mm, table, err := s.load(ctx, dataset, r)
	if err != nil {
		return nil, s.fail(ctx, logger, ActionImport, dataset, "", err)
	}

	progress.notify(ProgressEvent{Phase: PhaseValidating, Total: table.Len()})
	if errs := NewTableValidator(cfg, mm).Validate(table); Blocking(errs) {
		return nil, s.fail(ctx, logger, ActionImport, dataset, cfg.ObjectType, &ValidationFailedError{Errors: errs})
	}

	objects, warnings, err := NewRowTranslator(cfg, mm).WithLogger(logger).Translate(table)
	if err != nil {
		return nil, s.fail(ctx, logger, ActionImport, dataset, cfg.ObjectType, err)
	}

	opts := s.opts.Upload
	opts.Progress = progress
	report, err := NewBatchUploader(s.api, opts).WithLogger(logger).Upload(ctx, objects)
	if err != nil {
		return nil, s.fail(ctx, logger, ActionImport, dataset, cfg.ObjectType, err)
	}

	s.record(ctx, logger, AuditLogParams{
		Action:     ActionImport,
		Dataset:    dataset,
		ObjectType: cfg.ObjectType,
		Rows:       report.Total,
		Succeeded:  report.Succeeded,
		Failed:     report.Failed,
	})
	return &ImportResult{
		Dataset:  dataset,
		Report:   report,
		Warnings: warnings,
		Duration: time.Since(start),
	}, nil
}

// load resolves the dataset and reads the uploaded workbook.
func (s *Service) load(ctx context.Context, dataset string, r io.Reader) (*DatasetConfig, MetadataMap, *Table, error) {
	table, err := ReadTable(r)
	if err != nil {
		return nil, nil, nil, err
	}
	cfg, mm, err := s.resolve(ctx, dataset)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, mm, table, nil
}

// fail logs and audits a failed operation and returns err unchanged.
// Unknown datasets are not audited.
func (s *Service) fail(ctx context.Context, logger *slog.Logger, action AuditAction, dataset, objectType string, err error) error {
	logger.Error("operation failed", "error", err)
	if errors.Is(err, ErrDatasetNotFound) {
		return err
	}

	params := AuditLogParams{
		Action:     action,
		Dataset:    dataset,
		ObjectType: objectType,
		Reason:     err.Error(),
	}
	var vErr *ValidationFailedError
	if errors.As(err, &vErr) {
		params.Failed = len(vErr.Errors)
	}
	s.record(ctx, logger, params)
	return err
}

// record writes an audit entry. Audit failures are logged, never returned.
func (s *Service) record(ctx context.Context, logger *slog.Logger, params AuditLogParams) {
	meta := RequestMetaFrom(ctx)
	params.IPAddress = meta.IPAddress
	params.UserAgent = meta.UserAgent

	// The operation's own context may already be done.
	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if _, err := s.audit.Log(auditCtx, params); err != nil {
		logger.Warn("audit log failed", "error", err)
	}
}
