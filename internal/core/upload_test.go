package core

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"
)

func makeObjects(n int) []APIObject {
	objs := make([]APIObject, n)
	for i := range objs {
		objs[i] = APIObject{ObjectType: "Building", Identifier: fmt.Sprintf("B%d", i+1)}
	}
	return objs
}

// newTestUploader returns an uploader that records sleeps instead of waiting.
func newTestUploader(api ObjectAPI, opts UploadOptions) (*BatchUploader, *[]time.Duration) {
	u := NewBatchUploader(api, opts)
	var sleeps []time.Duration
	u.sleep = func(_ context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}
	return u, &sleeps
}

func TestUpload_Batches(t *testing.T) {
	api := &fakeAPI{}
	u, _ := newTestUploader(api, UploadOptions{BatchSize: 2})

	objects := makeObjects(5)
	report, err := u.Upload(context.Background(), objects)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	if len(api.saveCalls) != 3 {
		t.Fatalf("got %d batches, want 3", len(api.saveCalls))
	}
	var sent []APIObject
	for _, b := range api.saveCalls {
		sent = append(sent, b...)
	}
	if !reflect.DeepEqual(sent, objects) {
		t.Error("batches reordered or dropped objects")
	}
	if len(api.saveCalls[2]) != 1 {
		t.Errorf("last batch size = %d, want 1", len(api.saveCalls[2]))
	}
	if report.Total != 5 || report.Succeeded != 5 || report.Failed != 0 {
		t.Errorf("report = %+v", report)
	}
	if api.saveModes[0] != WriteUpdate {
		t.Errorf("mode = %q, want update by default", api.saveModes[0])
	}
}

func TestUpload_TalliesFailures(t *testing.T) {
	api := &fakeAPI{saveFn: func(_ int, objs []APIObject) ([]ObjectResult, error) {
		results := succeedAll(objs)
		results[0] = ObjectResult{Identifier: objs[0].Identifier, Success: false, Message: "onbekend object"}
		return results, nil
	}}
	u, _ := newTestUploader(api, UploadOptions{BatchSize: 3, Mode: WriteUpsert})

	report, err := u.Upload(context.Background(), makeObjects(6))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if report.Total != 6 || report.Succeeded != 4 || report.Failed != 2 {
		t.Errorf("report = %+v", report)
	}
	failures := report.Failures()
	if len(failures) != 2 || failures[0].Identifier != "B1" || failures[1].Identifier != "B4" {
		t.Errorf("failures = %+v", failures)
	}
	if api.saveModes[0] != WriteUpsert {
		t.Errorf("mode = %q, want upsert", api.saveModes[0])
	}
}

func TestUpload_RetriesTransient(t *testing.T) {
	api := &fakeAPI{saveFn: func(n int, objs []APIObject) ([]ObjectResult, error) {
		if n < 3 {
			return nil, fmt.Errorf("post objects: %w", ErrTransient)
		}
		return succeedAll(objs), nil
	}}

	var events []ProgressEvent
	u, sleeps := newTestUploader(api, UploadOptions{
		MaxRetries: 3,
		Progress:   func(e ProgressEvent) { events = append(events, e) },
	})

	report, err := u.Upload(context.Background(), makeObjects(4))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if len(api.saveCalls) != 3 {
		t.Errorf("attempts = %d, want 3", len(api.saveCalls))
	}
	if want := []time.Duration{5 * time.Second, 10 * time.Second}; !reflect.DeepEqual(*sleeps, want) {
		t.Errorf("backoff = %v, want %v", *sleeps, want)
	}
	if report.Succeeded != 4 || report.Failed != 0 {
		t.Errorf("report = %+v", report)
	}

	retries := 0
	for _, e := range events {
		if e.Phase == PhaseRetrying {
			retries++
		}
	}
	if retries != 2 {
		t.Errorf("retry events = %d, want 2", retries)
	}
	if last := events[len(events)-1]; last.Phase != PhaseComplete {
		t.Errorf("last event = %+v, want complete", last)
	}
}

func TestUpload_GatewayErrorIsRetried(t *testing.T) {
	api := &fakeAPI{saveFn: func(n int, objs []APIObject) ([]ObjectResult, error) {
		if n == 1 {
			return nil, &APIError{Method: "PUT", Path: "/v1/objects", StatusCode: 503}
		}
		return succeedAll(objs), nil
	}}
	u, sleeps := newTestUploader(api, UploadOptions{})

	if _, err := u.Upload(context.Background(), makeObjects(1)); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if len(*sleeps) != 1 {
		t.Errorf("sleeps = %v, want one retry", *sleeps)
	}
}

func TestUpload_RetriesExhausted(t *testing.T) {
	api := &fakeAPI{saveFn: func(n int, objs []APIObject) ([]ObjectResult, error) {
		if n == 1 {
			return succeedAll(objs), nil
		}
		return nil, fmt.Errorf("dial: %w", ErrTransient)
	}}
	u, sleeps := newTestUploader(api, UploadOptions{BatchSize: 2, MaxRetries: 3})

	report, err := u.Upload(context.Background(), makeObjects(4))
	if report != nil {
		t.Errorf("partial report returned: %+v", report)
	}
	var batchErr *BatchError
	if !errors.As(err, &batchErr) {
		t.Fatalf("expected BatchError, got %v", err)
	}
	if batchErr.Batch != 2 || batchErr.Batches != 2 || batchErr.Attempts != 3 {
		t.Errorf("batch error = %+v", batchErr)
	}
	if !errors.Is(err, ErrTransient) {
		t.Error("cause should be preserved")
	}
	if len(api.saveCalls) != 4 {
		t.Errorf("calls = %d, want 1 + 3", len(api.saveCalls))
	}
	if len(*sleeps) != 2 {
		t.Errorf("sleeps = %v, want 2", *sleeps)
	}
}

func TestUpload_NonTransientAbortsImmediately(t *testing.T) {
	rejected := &APIError{Method: "PUT", Path: "/v1/objects", StatusCode: 400, Body: "invalid attribute"}
	api := &fakeAPI{saveFn: func(int, []APIObject) ([]ObjectResult, error) { return nil, rejected }}
	u, sleeps := newTestUploader(api, UploadOptions{BatchSize: 2})

	_, err := u.Upload(context.Background(), makeObjects(4))
	var batchErr *BatchError
	if !errors.As(err, &batchErr) || batchErr.Attempts != 1 || batchErr.Batch != 1 {
		t.Fatalf("err = %v", err)
	}
	if len(api.saveCalls) != 1 || len(*sleeps) != 0 {
		t.Errorf("calls = %d, sleeps = %v; want no retry", len(api.saveCalls), *sleeps)
	}
}

func TestUpload_NoRetryWithoutIdentifiers(t *testing.T) {
	api := &fakeAPI{saveFn: func(int, []APIObject) ([]ObjectResult, error) { return nil, ErrTransient }}
	u, _ := newTestUploader(api, UploadOptions{})

	objects := makeObjects(2)
	objects[1].Identifier = ""

	if _, err := u.Upload(context.Background(), objects); err == nil {
		t.Fatal("expected error")
	}
	if len(api.saveCalls) != 1 {
		t.Errorf("calls = %d, want 1", len(api.saveCalls))
	}
}

func TestUpload_RequestTimeoutIsTransient(t *testing.T) {
	calls := 0
	api := &fakeAPI{saveFn: func(_ int, objs []APIObject) ([]ObjectResult, error) {
		calls++
		if calls == 1 {
			return nil, context.DeadlineExceeded
		}
		return succeedAll(objs), nil
	}}
	u, sleeps := newTestUploader(api, UploadOptions{Timeout: time.Minute})

	if _, err := u.Upload(context.Background(), makeObjects(1)); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if len(*sleeps) != 1 {
		t.Errorf("sleeps = %v, want one retry", *sleeps)
	}
}

func TestUpload_CallerCancelDoesNotStopBatches(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	api := &fakeAPI{saveFn: func(n int, objects []APIObject) ([]ObjectResult, error) {
		if n == 2 {
			cancel()
		}
		return succeedAll(objects), nil
	}}
	u, _ := newTestUploader(api, UploadOptions{BatchSize: 2})

	report, err := u.Upload(ctx, makeObjects(6))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if len(api.saveCalls) != 3 {
		t.Fatalf("save calls = %d, want 3", len(api.saveCalls))
	}
	if report.Succeeded != 6 {
		t.Errorf("succeeded = %d, want 6", report.Succeeded)
	}
	for i, ctxErr := range api.saveCtxErrs {
		if ctxErr != nil {
			t.Errorf("batch %d saw cancelled context: %v", i+1, ctxErr)
		}
	}
}

func TestUpload_Empty(t *testing.T) {
	api := &fakeAPI{}
	report, err := NewBatchUploader(api, UploadOptions{}).Upload(context.Background(), nil)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if report.Total != 0 || len(api.saveCalls) != 0 {
		t.Errorf("report = %+v, calls = %d", report, len(api.saveCalls))
	}
}

func TestSleepContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if err := sleepContext(context.Background(), time.Millisecond); err != nil {
		t.Errorf("err = %v", err)
	}
}
