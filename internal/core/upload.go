package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/samber/lo"
)

// Upload defaults.
const (
	DefaultBatchSize   = 100
	DefaultTimeout     = 300 * time.Second
	DefaultMaxRetries  = 3
	DefaultBackoffBase = 5 * time.Second
)

// UploadOptions controls a batch upload.
type UploadOptions struct {
	BatchSize  int
	Timeout    time.Duration // per request
	MaxRetries int           // attempts per batch, including the first
	Mode       WriteMode

	// BackoffBase is multiplied by the attempt number before each retry.
	BackoffBase time.Duration

	Progress ProgressFunc
}

// DefaultUploadOptions returns the standard upload settings.
func DefaultUploadOptions() UploadOptions {
	return UploadOptions{
		BatchSize:   DefaultBatchSize,
		Timeout:     DefaultTimeout,
		MaxRetries:  DefaultMaxRetries,
		Mode:        WriteUpdate,
		BackoffBase: DefaultBackoffBase,
	}
}

func (o UploadOptions) withDefaults() UploadOptions {
	d := DefaultUploadOptions()
	if o.BatchSize <= 0 {
		o.BatchSize = d.BatchSize
	}
	if o.Timeout <= 0 {
		o.Timeout = d.Timeout
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = d.MaxRetries
	}
	if o.Mode == "" {
		o.Mode = d.Mode
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = d.BackoffBase
	}
	return o
}

// BatchUploader writes objects to the API in fixed-size batches.
// Batches are sent one at a time, in order.
type BatchUploader struct {
	api    ObjectAPI
	opts   UploadOptions
	logger *slog.Logger

	// sleep waits between attempts; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewBatchUploader creates an uploader. Zero option fields take their
// defaults.
func NewBatchUploader(api ObjectAPI, opts UploadOptions) *BatchUploader {
	return &BatchUploader{
		api:    api,
		opts:   opts.withDefaults(),
		logger: slog.Default(),
		sleep:  sleepContext,
	}
}

// WithLogger sets the logger used for batch progress.
func (u *BatchUploader) WithLogger(logger *slog.Logger) *BatchUploader {
	u.logger = logger
	return u
}

// Upload writes objects and returns the aggregated report.
//
// Transient failures are retried up to MaxRetries attempts per batch with
// a linear backoff. When a batch cannot be written the upload stops and a
// *BatchError is returned without a report; batches written before it are
// not rolled back.
func (u *BatchUploader) Upload(ctx context.Context, objects []APIObject) (*UploadReport, error) {
	report := &UploadReport{Results: []ObjectResult{}}
	if len(objects) == 0 {
		return report, nil
	}

	// Once started, an upload runs to completion or a batch failure.
	// Cancelling the caller's context does not stop it; each request is
	// bounded by Timeout only.
	ctx = context.WithoutCancel(ctx)

	batches := lo.Chunk(objects, u.opts.BatchSize)
	u.logger.Info("upload started",
		"objects", len(objects),
		"batches", len(batches),
		"batch_size", u.opts.BatchSize,
		"mode", u.opts.Mode,
	)

	written := 0
	for i, batch := range batches {
		results, attempts, err := u.sendBatch(ctx, i+1, len(batches), batch)
		if err != nil {
			u.logger.Error("batch failed",
				"batch", i+1,
				"batches", len(batches),
				"attempts", attempts,
				"error", err,
			)
			u.opts.Progress.notify(ProgressEvent{
				Phase:   PhaseFailed,
				Current: i,
				Total:   len(batches),
				Objects: written,
				Error:   err.Error(),
			})
			return nil, &BatchError{Batch: i + 1, Batches: len(batches), Attempts: attempts, Err: err}
		}

		report.Results = append(report.Results, results...)
		written += len(batch)

		u.logger.Debug("batch written", "batch", i+1, "batches", len(batches), "results", len(results))
		u.opts.Progress.notify(ProgressEvent{
			Phase:   PhaseUploading,
			Current: i + 1,
			Total:   len(batches),
			Objects: written,
		})
	}

	report.Total = len(report.Results)
	report.Succeeded = lo.CountBy(report.Results, func(r ObjectResult) bool { return r.Success })
	report.Failed = report.Total - report.Succeeded

	u.opts.Progress.notify(ProgressEvent{
		Phase:   PhaseComplete,
		Current: len(batches),
		Total:   len(batches),
		Objects: written,
	})
	u.logger.Info("upload complete",
		"total", report.Total,
		"succeeded", report.Succeeded,
		"failed", report.Failed,
	)
	return report, nil
}

// sendBatch writes one batch, retrying transient failures. It returns the
// number of attempts made.
func (u *BatchUploader) sendBatch(ctx context.Context, n, total int, batch []APIObject) ([]ObjectResult, int, error) {
	retryable := lo.EveryBy(batch, func(o APIObject) bool { return o.Identifier != "" })

	var lastErr error
	for attempt := 1; attempt <= u.opts.MaxRetries; attempt++ {
		results, err := u.attempt(ctx, batch)
		if err == nil {
			return results, attempt, nil
		}
		lastErr = err

		if !IsTransient(err) {
			return nil, attempt, err
		}
		if !retryable {
			return nil, attempt, fmt.Errorf("batch contains objects without identifier, not retrying: %w", err)
		}
		if attempt == u.opts.MaxRetries {
			break
		}

		delay := u.opts.BackoffBase * time.Duration(attempt)
		u.logger.Warn("transient batch failure, retrying",
			"batch", n,
			"batches", total,
			"attempt", attempt,
			"max_attempts", u.opts.MaxRetries,
			"delay", delay,
			"error", err,
		)
		u.opts.Progress.notify(ProgressEvent{
			Phase:   PhaseRetrying,
			Current: n - 1,
			Total:   total,
			Attempt: attempt + 1,
			Error:   err.Error(),
		})
		if err := u.sleep(ctx, delay); err != nil {
			return nil, attempt, err
		}
	}
	return nil, u.opts.MaxRetries, lastErr
}

// attempt performs a single request under the per-request timeout. A
// request that runs out of its own time is a transient failure.
func (u *BatchUploader) attempt(ctx context.Context, batch []APIObject) ([]ObjectResult, error) {
	reqCtx, cancel := context.WithTimeout(ctx, u.opts.Timeout)
	defer cancel()

	results, err := u.api.SaveObjects(reqCtx, u.opts.Mode, batch)
	if err != nil && errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("request timed out after %s: %w: %w", u.opts.Timeout, ErrTransient, err)
	}
	return results, err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
