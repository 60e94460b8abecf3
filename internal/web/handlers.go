package web

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"

	"github.com/JonMunkholm/datamakelaar/internal/core"
	"github.com/JonMunkholm/datamakelaar/internal/logging"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// multipartMemory is the part of an upload kept in memory; the rest
// spills to a temporary file.
const multipartMemory = 32 << 20

var (
	errNoFile       = errors.New("no file provided")
	errFileTooLarge = errors.New("file too large")
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"datasets": len(s.service.Datasets()),
	})
}

// DatasetSummary is one entry of the dataset listing.
type DatasetSummary struct {
	Name       string `json:"name"`
	ObjectType string `json:"objectType"`
	Attributes int    `json:"attributes"`
}

func (s *Server) handleListDatasets(w http.ResponseWriter, r *http.Request) {
	names := s.service.Datasets()
	out := make([]DatasetSummary, 0, len(names))
	for _, name := range names {
		cfg, err := s.service.Dataset(name)
		if err != nil {
			continue
		}
		out = append(out, DatasetSummary{
			Name:       cfg.Dataset,
			ObjectType: cfg.ObjectType,
			Attributes: len(cfg.Attributes),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetDataset(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.service.Dataset(chi.URLParam(r, "dataset"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// handleColumns lists the expected import columns with their API types.
func (s *Server) handleColumns(w http.ResponseWriter, r *http.Request) {
	cols, err := s.service.ExpectedColumns(r.Context(), chi.URLParam(r, "dataset"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cols)
}

// handleExport streams the dataset as an xlsx download. Filter values are
// taken from repeated or comma-separated "filter" parameters.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	dataset := chi.URLParam(r, "dataset")
	r = withRequestMeta(r)
	logger := logging.WithFields(r.Context(), "dataset", dataset)

	var buf bytes.Buffer
	result, err := s.service.Export(r.Context(), dataset, filterValues(r.URL.Query()), &buf, progressLogger(logger))
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.FileName))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("X-Export-Rows", strconv.Itoa(result.Rows))
	w.Header().Set("X-Export-Warnings", strconv.Itoa(len(result.Warnings)))
	if _, err := buf.WriteTo(w); err != nil {
		logger.Warn("export write interrupted", "error", err)
	}
}

func filterValues(q url.Values) []string {
	var out []string
	for _, v := range q["filter"] {
		out = append(out, strings.Split(v, ",")...)
	}
	out = lo.Map(out, func(v string, _ int) string { return strings.TrimSpace(v) })
	return lo.Uniq(lo.Compact(out))
}

// handleValidate checks an uploaded workbook without writing anything.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	dataset := chi.URLParam(r, "dataset")
	r = withRequestMeta(r)

	file, err := s.readUpload(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	defer file.Close()

	result, err := s.service.Validate(r.Context(), dataset, file)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ImportResponse is the body of a successful import.
type ImportResponse struct {
	Dataset    string              `json:"dataset"`
	Report     *core.UploadReport  `json:"report"`
	Failures   []core.ObjectResult `json:"failures"`
	Warnings   int                 `json:"warnings"`
	DurationMS int64               `json:"durationMs"`
}

// handleImport validates, translates and writes an uploaded workbook. The
// number of concurrent imports is bounded by the import limiter.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	dataset := chi.URLParam(r, "dataset")
	r = withRequestMeta(r)
	logger := logging.WithFields(r.Context(), "dataset", dataset)

	file, err := s.readUpload(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	defer file.Close()

	var result *core.ImportResult
	err = s.imports.Do(r.Context(), func(ctx context.Context) error {
		var err error
		result, err = s.service.Import(ctx, dataset, file, progressLogger(logger))
		return err
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	failures := result.Report.Failures()
	if failures == nil {
		failures = []core.ObjectResult{}
	}
	writeJSON(w, http.StatusOK, ImportResponse{
		Dataset:    result.Dataset,
		Report:     result.Report,
		Failures:   failures,
		Warnings:   len(result.Warnings),
		DurationMS: result.Duration.Milliseconds(),
	})
}

// readUpload returns the "file" part of a multipart upload.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (multipart.File, error) {
	maxSize := s.cfg.Upload.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, fmt.Errorf("%w: limit is %d bytes", errFileTooLarge, maxSize)
		}
		return nil, fmt.Errorf("%w: %w", errNoFile, err)
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		return nil, errNoFile
	}
	return file, nil
}

func progressLogger(logger *slog.Logger) core.ProgressFunc {
	return func(e core.ProgressEvent) {
		logger.Debug("progress",
			"phase", e.Phase,
			"current", e.Current,
			"total", e.Total,
			"objects", e.Objects,
		)
	}
}

// handleAuditLog lists audit entries, newest first.
func (s *Server) handleAuditLog(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := core.AuditLogFilter{
		Dataset: q.Get("dataset"),
		Action:  core.AuditAction(q.Get("action")),
		Limit:   parseIntParam(r, "limit", core.DefaultHistoryLimit),
		Offset:  parseIntParam(r, "offset", 0),
	}

	var err error
	if filter.StartTime, err = parseTimeParam(q.Get("since")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid since: use RFC 3339 or yyyy-mm-dd")
		return
	}
	if filter.EndTime, err = parseTimeParam(q.Get("until")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid until: use RFC 3339 or yyyy-mm-dd")
		return
	}

	entries, err := s.service.Audit().List(r.Context(), filter)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if entries == nil {
		entries = []core.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleImportStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.imports.Status())
}

// parseIntParam parses a non-negative integer query parameter with a
// default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 0 {
		return defaultVal
	}
	return i
}

func parseTimeParam(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, v)
}
